package lsmdb

import (
	"errors"
	"slices"

	"github.com/Giulio2002/lsmdb/internal/kv"
)

// cursorSignature is the magic number for valid cursors
const cursorSignature int32 = 0x4C534D43 // "LSMC"

// subCursor is one readable table's cursor inside a fan-out cursor.
type subCursor struct {
	idx   int // position in Cursor.subs, the tie-break after the key
	level int
	role  Role
	table kv.TableID
	c     kv.Cursor

	// init reports whether the last positioning call found an entry
	init     bool
	key, val []byte
}

// Cursor merges the cursors of every readable table into one ordered view.
// subs holds the write table first, then each level's next and prev
// tables; for equal keys the lower index wins, so fresher copies shadow
// older ones. A Cursor must not be used from more than one goroutine.
type Cursor struct {
	signature int32
	txn       *Txn
	loaded    bool

	n     int
	subs  [MaxCursors]subCursor
	order [MaxCursors]*subCursor

	// dir is 0 while uninitialized
	dir Direction
	// key is a copy of the current key; eof is set once a scan ran off the
	// end in dir.
	key []byte
	eof bool
	// afterDelete makes the next Next in dir return the current entry,
	// which Del already advanced to.
	afterDelete bool
}

// OpenCursor creates a fan-out cursor over every readable table.
func (txn *Txn) OpenCursor() (*Cursor, error) {
	if !txn.valid() {
		return nil, NewError(ErrBadTxn)
	}
	c := &Cursor{signature: cursorSignature, txn: txn}
	txn.cursors = append(txn.cursors, c)
	return c, nil
}

// valid returns true if the cursor is bound to a live transaction.
func (c *Cursor) valid() bool {
	return c != nil && c.signature == cursorSignature && c.txn.valid()
}

// Txn returns the cursor's transaction.
func (c *Cursor) Txn() *Txn {
	return c.txn
}

// Close releases the sub-cursors and detaches from the transaction.
func (c *Cursor) Close() {
	if c == nil || c.signature != cursorSignature {
		return
	}
	c.unload()
	if c.txn != nil {
		c.txn.removeCursor(c)
	}
	c.txn = nil
	c.signature = 0
}

// Renew moves the cursor to txn, dropping its position.
func (c *Cursor) Renew(txn *Txn) error {
	if c == nil || c.signature != cursorSignature || !txn.valid() {
		return NewError(ErrBadTxn)
	}
	c.unload()
	if c.txn != nil {
		c.txn.removeCursor(c)
	}
	c.txn = txn
	txn.cursors = append(txn.cursors, c)
	return nil
}

// Clear drops the cursor's position without closing it.
func (c *Cursor) Clear() {
	for i := 0; i < c.n; i++ {
		c.subs[i].init = false
	}
	c.dir = 0
	c.key = c.key[:0]
	c.eof = false
	c.afterDelete = false
}

func (c *Cursor) ready() error {
	if !c.valid() {
		return NewError(ErrBadTxn)
	}
	return c.load()
}

// load opens one sub-cursor for the write table and for the next and prev
// tables of every level holding data.
func (c *Cursor) load() error {
	if c.loaded {
		return nil
	}
	txn := c.txn
	add := func(level int, role Role, table kv.TableID) error {
		kc, err := txn.kv.OpenCursor(table)
		if err != nil {
			return err
		}
		c.subs[c.n] = subCursor{idx: c.n, level: level, role: role, table: table, c: kc}
		c.order[c.n] = &c.subs[c.n]
		c.n++
		return nil
	}
	if err := add(0, RoleNext, txn.env.writeTable()); err != nil {
		c.unload()
		return err
	}
	for level := 1; level < LevelMax; level++ {
		s := txn.states.get(level)
		if s == StateNil {
			continue
		}
		for _, role := range [CursorsPerLevel]Role{RoleNext, RolePrev} {
			if err := add(level, role, txn.env.table(level, s, role)); err != nil {
				c.unload()
				return err
			}
		}
	}
	c.loaded = true
	c.Clear()
	return nil
}

func (c *Cursor) unload() {
	for i := 0; i < c.n; i++ {
		if c.subs[i].c != nil {
			c.subs[i].c.Close()
		}
		c.subs[i] = subCursor{}
		c.order[i] = nil
	}
	c.n = 0
	c.loaded = false
	c.dir = 0
	c.key = c.key[:0]
	c.eof = false
	c.afterDelete = false
}

func (c *Cursor) cmp(a, b []byte) int {
	return c.txn.Cmp(a, b)
}

// get runs op on s and records the outcome. NotFound only clears init.
func (c *Cursor) get(s *subCursor, key []byte, op kv.Op) error {
	k, v, err := s.c.Get(key, op)
	if err != nil {
		s.init, s.key, s.val = false, nil, nil
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		return err
	}
	s.init, s.key, s.val = true, k, v
	return nil
}

// seekSub positions s at key: the first entry >= key going forward, the
// last entry <= key going backward.
func (c *Cursor) seekSub(s *subCursor, key []byte, dir Direction) error {
	if err := c.get(s, key, kv.SetRange); err != nil {
		return err
	}
	if dir == Forward {
		return nil
	}
	if !s.init {
		return c.get(s, nil, kv.Last)
	}
	if c.cmp(s.key, key) != 0 {
		return c.get(s, nil, kv.Prev)
	}
	return nil
}

// settle sorts the sub-cursors for dir and records the winner's key.
func (c *Cursor) settle(dir Direction) ([]byte, []byte, error) {
	c.dir = dir
	c.afterDelete = false
	slices.SortFunc(c.order[:c.n], func(a, b *subCursor) int {
		if a.init != b.init {
			if a.init {
				return -1
			}
			return 1
		}
		if a.init {
			if r := c.cmp(a.key, b.key) * int(dir); r != 0 {
				return r
			}
		}
		return a.idx - b.idx
	})
	if c.n == 0 || !c.order[0].init {
		c.key = c.key[:0]
		c.eof = true
		return nil, nil, NewError(ErrNotFound)
	}
	w := c.order[0]
	c.key = append(c.key[:0], w.key...)
	c.eof = false
	return w.key, w.val, nil
}

// Seek positions every sub-cursor at key. Forward lands on the first key
// >= key, Backward on the last key <= key, Exact fails with ErrNotFound
// unless key itself is visible; an exact hit leaves the cursor ready to
// scan forward.
func (c *Cursor) Seek(key []byte, dir Direction) ([]byte, []byte, error) {
	if err := c.ready(); err != nil {
		return nil, nil, err
	}
	sdir := dir
	switch dir {
	case Forward, Backward:
	case Exact:
		sdir = Forward
	default:
		return nil, nil, errorf(ErrInvalidArgument, "seek direction %d", dir)
	}
	for i := 0; i < c.n; i++ {
		if err := c.seekSub(&c.subs[i], key, sdir); err != nil {
			return nil, nil, err
		}
	}
	k, v, err := c.settle(sdir)
	if dir != Exact {
		return k, v, err
	}
	if err == nil && c.cmp(k, key) == 0 {
		return k, v, nil
	}
	c.Clear()
	if err != nil && !IsNotFound(err) {
		return nil, nil, err
	}
	return nil, nil, NewError(ErrNotFound)
}

// First positions at the smallest key (Forward) or largest (Backward).
func (c *Cursor) First(dir Direction) ([]byte, []byte, error) {
	if err := c.ready(); err != nil {
		return nil, nil, err
	}
	op := kv.First
	switch dir {
	case Forward:
	case Backward:
		op = kv.Last
	default:
		return nil, nil, errorf(ErrInvalidArgument, "first direction %d", dir)
	}
	for i := 0; i < c.n; i++ {
		if err := c.get(&c.subs[i], nil, op); err != nil {
			return nil, nil, err
		}
	}
	return c.settle(dir)
}

// Next advances in dir. An uninitialized cursor starts from First. When
// dir reverses the previous scan, sub-cursors not sitting on the current
// key are stale and are first re-seeked toward it.
func (c *Cursor) Next(dir Direction) ([]byte, []byte, error) {
	if err := c.ready(); err != nil {
		return nil, nil, err
	}
	if dir != Forward && dir != Backward {
		return nil, nil, errorf(ErrInvalidArgument, "next direction %d", dir)
	}
	if c.dir == 0 {
		return c.First(dir)
	}
	if c.eof {
		if dir == c.dir {
			return nil, nil, NewError(ErrNotFound)
		}
		return c.First(dir)
	}
	if c.afterDelete && dir == c.dir {
		c.afterDelete = false
		return c.Current()
	}

	key := c.key
	op := kv.Next
	if dir == Backward {
		op = kv.Prev
	}
	if dir != c.dir {
		for i := 0; i < c.n; i++ {
			s := &c.subs[i]
			if s.init && c.cmp(s.key, key) == 0 {
				continue
			}
			if err := c.seekSub(s, key, dir); err != nil {
				return nil, nil, err
			}
		}
	}
	for i := 0; i < c.n; i++ {
		s := &c.subs[i]
		if !s.init || c.cmp(s.key, key) != 0 {
			continue
		}
		if err := c.get(s, nil, op); err != nil {
			return nil, nil, err
		}
	}
	return c.settle(dir)
}

// Current returns the entry under the cursor.
func (c *Cursor) Current() ([]byte, []byte, error) {
	if !c.valid() {
		return nil, nil, NewError(ErrBadTxn)
	}
	if c.dir == 0 || c.n == 0 || !c.order[0].init {
		return nil, nil, NewError(ErrNotFound)
	}
	w := c.order[0]
	return w.key, w.val, nil
}

// Get dispatches an MDBX-style cursor operation.
func (c *Cursor) Get(key []byte, op CursorOp) ([]byte, []byte, error) {
	switch op {
	case First:
		return c.First(Forward)
	case Last:
		return c.First(Backward)
	case Next:
		return c.Next(Forward)
	case Prev:
		return c.Next(Backward)
	case Set, SetKey:
		return c.Seek(key, Exact)
	case SetRange:
		return c.Seek(key, Forward)
	case GetCurrent:
		return c.Current()
	}
	return nil, nil, errorf(ErrInvalidArgument, "cursor op %d", op)
}

// Put writes key into the level-0 write table and drops the cursor's
// position. With NoOverwrite, a key visible at any level fails with
// ErrKeyExist.
func (c *Cursor) Put(key, value []byte, flags uint) error {
	if err := c.ready(); err != nil {
		return err
	}
	if c.txn.IsReadOnly() {
		return WrapError(ErrBadTxn, kv.ErrReadOnly)
	}
	if flags&NoOverwrite != 0 {
		_, _, err := c.Seek(key, Exact)
		if err == nil {
			return NewError(ErrKeyExist)
		}
		if !IsNotFound(err) {
			return err
		}
	}
	c.Clear()
	if err := c.txn.kv.Put(c.txn.env.writeTable(), key, value, kv.Upsert); err != nil {
		return err
	}
	c.txn.pending++
	return nil
}

// Del deletes the current key from every table holding a copy of it,
// leaving the cursor on the following entry in its direction.
//
// No tombstones are written: every physical copy must be visible to this
// transaction, which holds because compaction runs inside write
// transactions and only one write transaction exists at a time. Copies
// already merged into a pending table are removed as well so that an
// unfinished merge cannot bring the key back.
func (c *Cursor) Del() error {
	if err := c.ready(); err != nil {
		return err
	}
	if c.txn.IsReadOnly() {
		return WrapError(ErrBadTxn, kv.ErrReadOnly)
	}
	k, _, err := c.Current()
	if err != nil {
		return err
	}
	key := append([]byte(nil), k...)
	dir := c.dir

	for i := 0; i < c.n; i++ {
		if err := deleteKey(c.subs[i].c, key); err != nil {
			return err
		}
	}
	txn := c.txn
	for level := 1; level < LevelMax; level++ {
		s := txn.states.get(level)
		if s == StateNil {
			continue
		}
		pc, err := txn.kv.OpenCursor(txn.env.table(level, s, RolePending))
		if err != nil {
			return err
		}
		err = deleteKey(pc, key)
		pc.Close()
		if err != nil {
			return err
		}
	}

	for i := 0; i < c.n; i++ {
		if err := c.seekSub(&c.subs[i], key, dir); err != nil {
			return err
		}
	}
	if _, _, err := c.settle(dir); err != nil && !IsNotFound(err) {
		return err
	}
	c.afterDelete = true
	return nil
}

// deleteKey removes key from the cursor's table if present.
func deleteKey(kc kv.Cursor, key []byte) error {
	_, _, err := kc.Get(key, kv.Set)
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return kc.Del()
}
