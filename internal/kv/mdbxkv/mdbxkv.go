// Package mdbxkv implements the kv substrate on libmdbx via mdbx-go.
package mdbxkv

import (
	"runtime"

	"github.com/erigontech/mdbx-go/mdbx"

	"github.com/Giulio2002/lsmdb/internal/kv"
)

// Env wraps an mdbx environment.
type Env struct {
	env *mdbx.Env
}

// Open opens (creating if needed) the mdbx environment in directory path.
// sizeLimit caps the datafile; values <= 0 keep the libmdbx default.
// noSync trades commit durability for speed; the store stays consistent.
func Open(path string, sizeLimit int64, maxTables int, noSync bool) (*Env, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	env, err := mdbx.NewEnv(mdbx.Label("lsmdb"))
	if err != nil {
		return nil, err
	}
	if err := env.SetOption(mdbx.OptMaxDB, uint64(maxTables)); err != nil {
		env.Close()
		return nil, err
	}
	upper := -1
	if sizeLimit > 0 {
		upper = int(sizeLimit)
	}
	if err := env.SetGeometry(-1, -1, upper, -1, -1, -1); err != nil {
		env.Close()
		return nil, err
	}
	var flags uint = mdbx.Durable
	if noSync {
		flags = mdbx.SafeNoSync
	}
	if err := env.Open(path, flags, 0644); err != nil {
		env.Close()
		return nil, err
	}
	return &Env{env: env}, nil
}

// BeginTxn starts a transaction. Write transactions and their children
// are pinned to the calling OS thread until Commit or Abort.
func (e *Env) BeginTxn(parent kv.Txn, readOnly bool) (kv.Txn, error) {
	var p *mdbx.Txn
	if parent != nil {
		p = parent.(*Txn).txn
	}
	var flags uint
	if readOnly {
		flags = mdbx.Readonly
	}
	runtime.LockOSThread()
	txn, err := e.env.BeginTxn(p, flags)
	if err != nil {
		runtime.UnlockOSThread()
		return nil, translate(err)
	}
	return &Txn{txn: txn, readOnly: readOnly}, nil
}

// Close releases the environment.
func (e *Env) Close() error {
	e.env.Close()
	return nil
}

// Txn wraps an mdbx transaction.
type Txn struct {
	txn      *mdbx.Txn
	readOnly bool
	done     bool
}

func (t *Txn) OpenTable(name string, create bool) (kv.TableID, error) {
	var flags uint
	if create {
		flags = mdbx.Create
	}
	dbi, err := t.txn.OpenDBI(name, flags, nil, nil)
	if err != nil {
		return 0, translate(err)
	}
	return kv.TableID(dbi), nil
}

func (t *Txn) DropTable(id kv.TableID) error {
	return translate(t.txn.Drop(mdbx.DBI(id), false))
}

func (t *Txn) Entries(id kv.TableID) (uint64, error) {
	st, err := t.txn.StatDBI(mdbx.DBI(id))
	if err != nil {
		return 0, translate(err)
	}
	return st.Entries, nil
}

func (t *Txn) Compare(id kv.TableID, a, b []byte) int {
	return t.txn.Cmp(mdbx.DBI(id), a, b)
}

func (t *Txn) Get(id kv.TableID, key []byte) ([]byte, error) {
	v, err := t.txn.Get(mdbx.DBI(id), key)
	return v, translate(err)
}

func (t *Txn) Put(id kv.TableID, key, value []byte, flags kv.PutFlags) error {
	return translate(t.txn.Put(mdbx.DBI(id), key, value, putFlags(flags)))
}

func (t *Txn) OpenCursor(id kv.TableID) (kv.Cursor, error) {
	c, err := t.txn.OpenCursor(mdbx.DBI(id))
	if err != nil {
		return nil, translate(err)
	}
	return &Cursor{c: c}, nil
}

func (t *Txn) ReadOnly() bool { return t.readOnly }

func (t *Txn) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	defer runtime.UnlockOSThread()
	_, err := t.txn.Commit()
	return translate(err)
}

func (t *Txn) Abort() {
	if t.done {
		return
	}
	t.done = true
	t.txn.Abort()
	runtime.UnlockOSThread()
}

func (t *Txn) Reset() { t.txn.Reset() }

func (t *Txn) Renew() error { return translate(t.txn.Renew()) }

// Cursor wraps an mdbx cursor.
type Cursor struct {
	c *mdbx.Cursor
}

func (c *Cursor) Get(key []byte, op kv.Op) ([]byte, []byte, error) {
	var mop uint
	switch op {
	case kv.First:
		mop = mdbx.First
	case kv.Last:
		mop = mdbx.Last
	case kv.Next:
		mop = mdbx.Next
	case kv.Prev:
		mop = mdbx.Prev
	case kv.Set:
		mop = mdbx.SetKey
	case kv.SetRange:
		mop = mdbx.SetRange
	case kv.GetCurrent:
		mop = mdbx.GetCurrent
	}
	k, v, err := c.c.Get(key, nil, mop)
	if err != nil {
		return nil, nil, translate(err)
	}
	return k, v, nil
}

func (c *Cursor) Put(key, value []byte, flags kv.PutFlags) error {
	return translate(c.c.Put(key, value, putFlags(flags)))
}

func (c *Cursor) Del() error { return translate(c.c.Del(0)) }

func (c *Cursor) Close() { c.c.Close() }

func putFlags(f kv.PutFlags) uint {
	var flags uint
	if f&kv.NoOverwrite != 0 {
		flags |= mdbx.NoOverwrite
	}
	if f&kv.Append != 0 {
		flags |= mdbx.Append
	}
	return flags
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case mdbx.IsNotFound(err):
		return kv.ErrNotFound
	case mdbx.IsErrno(err, mdbx.KeyExist):
		return kv.ErrKeyExists
	}
	return err
}
