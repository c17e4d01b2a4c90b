package lsmdb

import (
	"math"

	"go.uber.org/zap"
)

// Autocompact decides which levels need merging after a write transaction.
// Level 0 drains into level 1 once it holds LevelBase entries. Deeper
// levels are paced by the total number of puts ever made: each level gets
// one unit of work every MergeBatch puts, phase-shifted per level so they
// do not all merge in the same transaction, and uses it only when its
// readable tables hold at least LevelBase*LevelGrowth^level entries.
//
// The put counter lives in the metadata table next to the level states,
// so pacing survives restarts. Commit calls Autocompact for top-level
// write transactions.
func (txn *Txn) Autocompact() error {
	if !txn.valid() {
		return NewError(ErrBadTxn)
	}
	if txn.IsReadOnly() {
		return nil
	}
	o := &txn.env.opts

	n, err := txn.kv.Entries(txn.env.writeTable())
	if err != nil {
		return err
	}
	if n >= o.LevelBase {
		if _, err := txn.Compact(0, math.MaxUint64); err != nil {
			return err
		}
	}

	before, err := txn.readWritten()
	if err != nil {
		return err
	}
	after := before + txn.pending
	txn.pending = 0
	if after == before {
		return nil
	}
	if err := txn.storeWritten(after); err != nil {
		return err
	}

	for level := 1; level < LevelMax-1; level++ {
		offset := o.MergeBatch * uint64(LevelMax-level) / LevelMax
		inc := (after+offset)/o.MergeBatch - (before+offset)/o.MergeBatch
		if inc == 0 {
			continue
		}
		s := txn.states.get(level)
		if s == StateNil {
			continue
		}
		n, err := txn.readableEntries(level, s)
		if err != nil {
			return err
		}
		if n < o.levelTarget(level) {
			continue
		}
		res, err := txn.Compact(level, o.MergeBatch*inc*CursorsPerLevel)
		if err != nil {
			return err
		}
		txn.env.log.Debug("autocompacted level",
			zap.Int("level", level),
			zap.Uint64("increment", inc),
			zap.Uint64("steps", res.Steps),
			zap.Bool("done", res.Done))
	}
	return nil
}
