package lsmdb

import (
	"errors"
	"math"

	"go.uber.org/zap"

	"github.com/Giulio2002/lsmdb/internal/kv"
)

// CompactResult reports the outcome of one Compact call.
type CompactResult struct {
	Level int
	// Steps is the number of entries appended to the destination
	Steps uint64
	// Done is set when both sources were exhausted and roles rotated
	Done bool
}

// compaction is the state of one Compact call: merge the prev table of
// level with the next table of level+1 into the pending table of level+1.
type compaction struct {
	txn    *Txn
	level  int
	budget uint64
	// written counts entries appended to dest by this call
	written uint64

	older, newer, dest kv.Cursor

	ok1, ok2 bool
	k1, v1   []byte
	k2, v2   []byte
}

// Compact advances the merge of level into level+1 by at most steps
// entries. The merge resumes after the largest key already in the
// destination, so repeated calls continue where the last one stopped. When
// both sources are exhausted the merged-away tables are dropped and the
// level states rotate, all inside txn.
//
// A steps value of 0 means no limit. Level 0 always drains completely: its
// table keeps taking writes, so a partial merge could miss them. Any
// substrate error aborts txn.
func (txn *Txn) Compact(level int, steps uint64) (CompactResult, error) {
	res := CompactResult{Level: level}
	if !txn.valid() {
		return res, NewError(ErrBadTxn)
	}
	if txn.IsReadOnly() {
		return res, WrapError(ErrBadTxn, kv.ErrReadOnly)
	}
	if level < 0 || level >= LevelMax-1 {
		return res, errorf(ErrInvalidArgument, "cannot compact level %d", level)
	}
	if level == 0 || steps == 0 {
		steps = math.MaxUint64
	}
	src := txn.states.get(level)
	if level > 0 && src == StateNil {
		return res, nil
	}

	log := txn.env.log.With(zap.Int("level", level))
	fail := func(err error) (CompactResult, error) {
		log.Error("compaction failed, aborting transaction", zap.Error(err))
		txn.Abort()
		return res, err
	}

	dst := txn.states.get(level + 1)
	if dst == StateNil {
		dst = StateABC
		txn.states.set(level+1, dst)
		if err := txn.storeLevelStates(); err != nil {
			return fail(err)
		}
		txn.invalidateCursors()
	}

	cx := &compaction{txn: txn, level: level, budget: steps}
	done, err := cx.run(
		txn.env.table(level, src, RolePrev),
		txn.env.table(level+1, dst, RoleNext),
		txn.env.table(level+1, dst, RolePending),
	)
	res.Steps = cx.written
	if err != nil {
		return fail(err)
	}
	if !done {
		log.Debug("compaction paused", zap.Uint64("steps", res.Steps))
		return res, nil
	}

	drops := []kv.TableID{txn.env.table(level, src, RolePrev)}
	if level > 0 {
		drops = append(drops, txn.env.table(level, src, RolePending))
	}
	drops = append(drops, txn.env.table(level+1, dst, RoleNext))
	txn.invalidateCursors()
	for _, id := range drops {
		if err := txn.kv.DropTable(id); err != nil {
			return fail(err)
		}
	}
	if level > 0 {
		txn.states.set(level, src.RotateSelf())
	}
	txn.states.set(level+1, dst.RotateReceive())
	if err := txn.storeLevelStates(); err != nil {
		return fail(err)
	}
	res.Done = true
	log.Debug("compaction finished",
		zap.Uint64("steps", res.Steps),
		zap.Stringer("state", txn.states.get(level)),
		zap.Stringer("target_state", txn.states.get(level+1)))
	return res, nil
}

func (cx *compaction) open(older, newer, dest kv.TableID) error {
	var err error
	if cx.older, err = cx.txn.kv.OpenCursor(older); err != nil {
		return err
	}
	if cx.newer, err = cx.txn.kv.OpenCursor(newer); err != nil {
		return err
	}
	cx.dest, err = cx.txn.kv.OpenCursor(dest)
	return err
}

func (cx *compaction) close() {
	for _, c := range []kv.Cursor{cx.older, cx.newer, cx.dest} {
		if c != nil {
			c.Close()
		}
	}
}

// step reads op from c; a missing entry marks the source exhausted.
func step(c kv.Cursor, key []byte, op kv.Op) (bool, []byte, []byte, error) {
	k, v, err := c.Get(key, op)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil, nil, nil
	}
	if err != nil {
		return false, nil, nil, err
	}
	return true, k, v, nil
}

// seekPast positions c at the first key strictly greater than key.
func (cx *compaction) seekPast(c kv.Cursor, key []byte) (bool, []byte, []byte, error) {
	ok, k, v, err := step(c, key, kv.SetRange)
	if err != nil || !ok {
		return ok, k, v, err
	}
	if cx.txn.Cmp(k, key) == 0 {
		return step(c, nil, kv.Next)
	}
	return ok, k, v, nil
}

// resume positions both sources after the destination's largest key, or
// at their first entries when the destination is empty.
func (cx *compaction) resume() error {
	ok, last, _, err := step(cx.dest, nil, kv.Last)
	if err != nil {
		return err
	}
	if !ok {
		if cx.ok1, cx.k1, cx.v1, err = step(cx.older, nil, kv.First); err != nil {
			return err
		}
		cx.ok2, cx.k2, cx.v2, err = step(cx.newer, nil, kv.First)
		return err
	}
	last = append([]byte(nil), last...)
	if cx.ok1, cx.k1, cx.v1, err = cx.seekPast(cx.older, last); err != nil {
		return err
	}
	cx.ok2, cx.k2, cx.v2, err = cx.seekPast(cx.newer, last)
	return err
}

func (cx *compaction) run(older, newer, dest kv.TableID) (bool, error) {
	defer cx.close()
	if err := cx.open(older, newer, dest); err != nil {
		return false, err
	}
	if err := cx.resume(); err != nil {
		return false, err
	}

	var err error
	for cx.written < cx.budget && (cx.ok1 || cx.ok2) {
		var k, v []byte
		advance1, advance2 := false, false
		switch {
		case !cx.ok2:
			k, v, advance1 = cx.k1, cx.v1, true
		case !cx.ok1:
			k, v, advance2 = cx.k2, cx.v2, true
		default:
			c := cx.txn.Cmp(cx.k1, cx.k2)
			if c <= 0 {
				// the upper level is fresher; an equal key below is dropped
				k, v, advance1, advance2 = cx.k1, cx.v1, true, c == 0
			} else {
				k, v, advance2 = cx.k2, cx.v2, true
			}
		}
		if err := cx.dest.Put(k, v, kv.Append); err != nil {
			return false, err
		}
		cx.written++
		if advance1 {
			if cx.ok1, cx.k1, cx.v1, err = step(cx.older, nil, kv.Next); err != nil {
				return false, err
			}
		}
		if advance2 {
			if cx.ok2, cx.k2, cx.v2, err = step(cx.newer, nil, kv.Next); err != nil {
				return false, err
			}
		}
	}
	return !cx.ok1 && !cx.ok2, nil
}
