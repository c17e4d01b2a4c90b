package lsmdb

import (
	"encoding/binary"
	"errors"

	"github.com/Giulio2002/lsmdb/internal/kv"
)

// txnSignature is the magic number for valid transactions
const txnSignature int32 = 0x4C534D54 // "LSMT"

// Txn is a substrate transaction plus the level states it has loaded or
// mutated. Compaction rotations are staged here and become durable only
// when the transaction commits.
type Txn struct {
	signature int32
	env       *Env
	parent    *Txn
	kv        kv.Txn
	flags     uint

	states levelStates

	// cursor backs Get, Put and Del; cursors lists every open fan-out
	// cursor so a state change can reload them.
	cursor  *Cursor
	cursors []*Cursor

	// pending counts puts not yet seen by Autocompact.
	pending uint64
}

// BeginTxn starts a transaction, nested under parent when non-nil, and
// loads the level states. Nested transactions need the mdbx backend.
func (e *Env) BeginTxn(parent *Txn, flags uint) (*Txn, error) {
	if !e.valid() {
		return nil, NewError(ErrBadTxn)
	}
	readOnly := flags&TxnReadOnly != 0

	var kvParent kv.Txn
	if parent != nil {
		if !parent.valid() || parent.env != e {
			return nil, NewError(ErrBadTxn)
		}
		if parent.IsReadOnly() || readOnly {
			return nil, errorf(ErrInvalidArgument, "nested transactions must be read-write")
		}
		kvParent = parent.kv
	}

	st, err := e.kv.BeginTxn(kvParent, readOnly)
	if err != nil {
		return nil, err
	}
	txn := &Txn{
		signature: txnSignature,
		env:       e,
		parent:    parent,
		kv:        st,
		flags:     flags,
	}
	if err := txn.loadLevelStates(); err != nil {
		st.Abort()
		return nil, err
	}
	return txn, nil
}

// valid returns true if the transaction is usable.
func (txn *Txn) valid() bool {
	return txn != nil && txn.signature == txnSignature
}

// Env returns the transaction's environment.
func (txn *Txn) Env() *Env {
	return txn.env
}

// IsReadOnly returns true for read-only transactions.
func (txn *Txn) IsReadOnly() bool {
	return txn.flags&TxnReadOnly != 0
}

// loadLevelStates reads the state vector; an absent entry means no level
// holds data yet.
func (txn *Txn) loadLevelStates() error {
	buf, err := txn.kv.Get(txn.env.metaTable(), levelsKey)
	if errors.Is(err, kv.ErrNotFound) {
		txn.states = levelStates{}
		return nil
	}
	if err != nil {
		return err
	}
	states, err := decodeLevelStates(buf)
	if err != nil {
		return err
	}
	txn.states = states
	return nil
}

// storeLevelStates writes the whole vector inside this transaction.
func (txn *Txn) storeLevelStates() error {
	return txn.kv.Put(txn.env.metaTable(), levelsKey, txn.states.encode(), kv.Upsert)
}

// readWritten returns the persisted pacing counter.
func (txn *Txn) readWritten() (uint64, error) {
	buf, err := txn.kv.Get(txn.env.metaTable(), writtenKey)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(buf) != 8 {
		return 0, errorf(ErrIncompatible, "pacing counter has %d bytes", len(buf))
	}
	return binary.BigEndian.Uint64(buf), nil
}

func (txn *Txn) storeWritten(n uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return txn.kv.Put(txn.env.metaTable(), writtenKey, buf[:], kv.Upsert)
}

// LevelState returns the state of level (1..LevelMax-1) as seen by txn.
func (txn *Txn) LevelState(level int) LevelState {
	return txn.states.get(level)
}

// Commit runs autocompaction for top-level write transactions, then
// commits. A nested commit hands its level states and write count to the
// parent. If autocompaction fails the transaction is aborted.
func (txn *Txn) Commit() error {
	if !txn.valid() {
		return NewError(ErrBadTxn)
	}
	if !txn.IsReadOnly() && txn.parent == nil && !txn.env.opts.DisableAutoCompact {
		if err := txn.Autocompact(); err != nil {
			txn.Abort()
			return err
		}
	}
	txn.closeCursors()
	txn.signature = 0
	if err := txn.kv.Commit(); err != nil {
		return err
	}
	if p := txn.parent; p != nil {
		p.states = txn.states
		p.pending += txn.pending
		p.invalidateCursors()
	}
	return nil
}

// Abort discards the transaction, including any staged rotations.
func (txn *Txn) Abort() {
	if !txn.valid() {
		return
	}
	txn.closeCursors()
	txn.signature = 0
	txn.kv.Abort()
}

// Reset releases a read-only transaction's snapshot; Renew reacquires one.
func (txn *Txn) Reset() {
	if !txn.valid() || !txn.IsReadOnly() {
		return
	}
	txn.invalidateCursors()
	txn.kv.Reset()
}

// Renew re-reads level states from a fresh snapshot after Reset. Open
// cursors reload on their next positioning call.
func (txn *Txn) Renew() error {
	if !txn.valid() || !txn.IsReadOnly() {
		return NewError(ErrBadTxn)
	}
	if err := txn.kv.Renew(); err != nil {
		return err
	}
	txn.invalidateCursors()
	return txn.loadLevelStates()
}

// implicitCursor returns the cursor backing Get, Put and Del.
func (txn *Txn) implicitCursor() (*Cursor, error) {
	if txn.cursor == nil {
		c, err := txn.OpenCursor()
		if err != nil {
			return nil, err
		}
		txn.cursor = c
	}
	return txn.cursor, nil
}

// Get returns the freshest value stored for key at any level.
func (txn *Txn) Get(key []byte) ([]byte, error) {
	if !txn.valid() {
		return nil, NewError(ErrBadTxn)
	}
	c, err := txn.implicitCursor()
	if err != nil {
		return nil, err
	}
	_, v, err := c.Seek(key, Exact)
	return v, err
}

// Put writes key into the level-0 write table. With NoOverwrite, a key
// visible at any level fails with ErrKeyExist.
func (txn *Txn) Put(key, value []byte, flags uint) error {
	if !txn.valid() {
		return NewError(ErrBadTxn)
	}
	c, err := txn.implicitCursor()
	if err != nil {
		return err
	}
	return c.Put(key, value, flags)
}

// Del removes every physical copy of key. It returns ErrNotFound when the
// key is not visible.
func (txn *Txn) Del(key []byte) error {
	if !txn.valid() {
		return NewError(ErrBadTxn)
	}
	c, err := txn.implicitCursor()
	if err != nil {
		return err
	}
	if _, _, err := c.Seek(key, Exact); err != nil {
		return err
	}
	return c.Del()
}

// Cmp compares two keys with the store's key order.
func (txn *Txn) Cmp(a, b []byte) int {
	return txn.kv.Compare(txn.env.writeTable(), a, b)
}

// LevelStat reports entry counts for one level's tables.
type LevelStat struct {
	Level   int
	State   LevelState
	Prev    uint64
	Next    uint64
	Pending uint64
}

// Stat returns the entry counts of level's tables. Level 0 reports the
// write table as Next.
func (txn *Txn) Stat(level int) (LevelStat, error) {
	if !txn.valid() {
		return LevelStat{}, NewError(ErrBadTxn)
	}
	if level < 0 || level >= LevelMax {
		return LevelStat{}, errorf(ErrInvalidArgument, "level %d out of range", level)
	}
	st := LevelStat{Level: level, State: txn.states.get(level)}
	if level == 0 {
		n, err := txn.kv.Entries(txn.env.writeTable())
		st.Next = n
		return st, err
	}
	for _, f := range []struct {
		role Role
		dst  *uint64
	}{{RolePrev, &st.Prev}, {RoleNext, &st.Next}, {RolePending, &st.Pending}} {
		n, err := txn.kv.Entries(txn.env.table(level, st.State, f.role))
		if err != nil {
			return st, err
		}
		*f.dst = n
	}
	return st, nil
}

// readableEntries counts the entries of level's prev and next tables.
func (txn *Txn) readableEntries(level int, s LevelState) (uint64, error) {
	var total uint64
	for _, r := range [CursorsPerLevel]Role{RolePrev, RoleNext} {
		n, err := txn.kv.Entries(txn.env.table(level, s, r))
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// invalidateCursors unloads every open cursor; each reloads its sub-cursors
// against the current level states on its next positioning call.
func (txn *Txn) invalidateCursors() {
	for _, c := range txn.cursors {
		c.unload()
	}
}

func (txn *Txn) closeCursors() {
	for _, c := range txn.cursors {
		c.unload()
		c.txn = nil
	}
	txn.cursors = nil
	txn.cursor = nil
}

func (txn *Txn) removeCursor(c *Cursor) {
	for i, x := range txn.cursors {
		if x == c {
			txn.cursors = append(txn.cursors[:i], txn.cursors[i+1:]...)
			break
		}
	}
	if txn.cursor == c {
		txn.cursor = nil
	}
}
