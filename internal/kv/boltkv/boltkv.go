// Package boltkv implements the kv substrate on bbolt. Tables are buckets;
// identifiers are handed out densely in the order tables are first opened.
// bbolt has no nested transactions and no datafile cap.
package boltkv

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Giulio2002/lsmdb/internal/kv"
)

// DataFileName is the bbolt file created inside the environment directory.
const DataFileName = "lsmdb.bolt"

var errRenew = errors.New("boltkv: renew needs a reset read-only transaction")

// Env wraps a bbolt database.
type Env struct {
	db *bolt.DB

	mu    sync.Mutex
	names [][]byte
	ids   map[string]kv.TableID
}

// Open opens (creating if needed) the bbolt file inside directory path.
// sizeLimit, when positive, is used as the initial mmap size.
func Open(path string, sizeLimit int64, noSync bool) (*Env, error) {
	opts := &bolt.Options{
		Timeout:        time.Second,
		NoSync:         noSync,
		NoFreelistSync: noSync,
	}
	if sizeLimit > 0 {
		opts.InitialMmapSize = int(sizeLimit)
	}
	db, err := bolt.Open(filepath.Join(path, DataFileName), os.FileMode(0644), opts)
	if err != nil {
		return nil, err
	}
	return &Env{db: db, ids: make(map[string]kv.TableID)}, nil
}

func (e *Env) BeginTxn(parent kv.Txn, readOnly bool) (kv.Txn, error) {
	if parent != nil {
		return nil, kv.ErrNestedTxn
	}
	tx, err := e.db.Begin(!readOnly)
	if err != nil {
		return nil, err
	}
	return &Txn{env: e, tx: tx, readOnly: readOnly}, nil
}

func (e *Env) Close() error {
	return e.db.Close()
}

func (e *Env) register(name string) kv.TableID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id, ok := e.ids[name]; ok {
		return id
	}
	id := kv.TableID(len(e.names))
	e.names = append(e.names, []byte(name))
	e.ids[name] = id
	return id
}

func (e *Env) name(id kv.TableID) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(id) >= len(e.names) {
		return nil
	}
	return e.names[id]
}

// Txn wraps a bbolt transaction.
type Txn struct {
	env      *Env
	tx       *bolt.Tx
	readOnly bool

	// counts holds entry counts of tables touched by this transaction.
	// Bucket.Stats only sees committed pages, so a count is seeded before
	// the first write to its table and adjusted on every put and delete.
	counts map[kv.TableID]uint64
}

func (t *Txn) count(id kv.TableID, b *bolt.Bucket) uint64 {
	if n, ok := t.counts[id]; ok {
		return n
	}
	n := uint64(b.Stats().KeyN)
	if t.counts == nil {
		t.counts = make(map[kv.TableID]uint64)
	}
	t.counts[id] = n
	return n
}

func (t *Txn) bucket(id kv.TableID) (*bolt.Bucket, error) {
	name := t.env.name(id)
	if name == nil || t.tx == nil {
		return nil, kv.ErrNotFound
	}
	b := t.tx.Bucket(name)
	if b == nil {
		return nil, kv.ErrNotFound
	}
	return b, nil
}

func (t *Txn) OpenTable(name string, create bool) (kv.TableID, error) {
	if t.tx.Bucket([]byte(name)) == nil {
		if !create {
			return 0, kv.ErrNotFound
		}
		if t.readOnly {
			return 0, kv.ErrReadOnly
		}
		if _, err := t.tx.CreateBucket([]byte(name)); err != nil {
			return 0, err
		}
	}
	return t.env.register(name), nil
}

func (t *Txn) DropTable(id kv.TableID) error {
	if t.readOnly {
		return kv.ErrReadOnly
	}
	name := t.env.name(id)
	if name == nil {
		return kv.ErrNotFound
	}
	if err := t.tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
		return err
	}
	if _, err := t.tx.CreateBucket(name); err != nil {
		return err
	}
	if t.counts == nil {
		t.counts = make(map[kv.TableID]uint64)
	}
	t.counts[id] = 0
	return nil
}

func (t *Txn) Entries(id kv.TableID) (uint64, error) {
	b, err := t.bucket(id)
	if err != nil {
		return 0, err
	}
	return t.count(id, b), nil
}

func (t *Txn) Compare(_ kv.TableID, a, b []byte) int {
	return bytes.Compare(a, b)
}

func (t *Txn) Get(id kv.TableID, key []byte) ([]byte, error) {
	b, err := t.bucket(id)
	if err != nil {
		return nil, err
	}
	k, v := b.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, kv.ErrNotFound
	}
	return v, nil
}

func (t *Txn) Put(id kv.TableID, key, value []byte, flags kv.PutFlags) error {
	if t.readOnly {
		return kv.ErrReadOnly
	}
	b, err := t.bucket(id)
	if err != nil {
		return err
	}
	return t.put(id, b, key, value, flags)
}

func (t *Txn) put(id kv.TableID, b *bolt.Bucket, key, value []byte, flags kv.PutFlags) error {
	n := t.count(id, b)
	exists := false
	if flags&kv.Append != 0 {
		if last, _ := b.Cursor().Last(); last != nil && bytes.Compare(key, last) <= 0 {
			return kv.ErrKeyExists
		}
		// Sequential inserts pack pages fully.
		b.FillPercent = 1.0
	} else if k, _ := b.Cursor().Seek(key); k != nil && bytes.Equal(k, key) {
		if flags&kv.NoOverwrite != 0 {
			return kv.ErrKeyExists
		}
		exists = true
	}
	// bbolt keeps a reference to value until commit.
	if err := b.Put(key, bytes.Clone(value)); err != nil {
		return err
	}
	if !exists {
		t.counts[id] = n + 1
	}
	return nil
}

func (t *Txn) OpenCursor(id kv.TableID) (kv.Cursor, error) {
	b, err := t.bucket(id)
	if err != nil {
		return nil, err
	}
	return &Cursor{txn: t, id: id, b: b, c: b.Cursor()}, nil
}

func (t *Txn) ReadOnly() bool { return t.readOnly }

func (t *Txn) Commit() error {
	if t.tx == nil {
		return nil
	}
	tx := t.tx
	t.tx = nil
	if t.readOnly {
		return tx.Rollback()
	}
	return tx.Commit()
}

func (t *Txn) Abort() {
	if t.tx == nil {
		return
	}
	_ = t.tx.Rollback()
	t.tx = nil
}

func (t *Txn) Reset() {
	if !t.readOnly {
		return
	}
	t.Abort()
}

func (t *Txn) Renew() error {
	if !t.readOnly || t.tx != nil {
		return errRenew
	}
	tx, err := t.env.db.Begin(false)
	if err != nil {
		return err
	}
	t.tx = tx
	t.counts = nil
	return nil
}

// Cursor wraps a bbolt cursor and remembers its position, which bbolt does
// not expose directly.
type Cursor struct {
	txn  *Txn
	id   kv.TableID
	b    *bolt.Bucket
	c    *bolt.Cursor
	k, v []byte
}

func (c *Cursor) Get(key []byte, op kv.Op) ([]byte, []byte, error) {
	var k, v []byte
	switch op {
	case kv.First:
		k, v = c.c.First()
	case kv.Last:
		k, v = c.c.Last()
	case kv.Next:
		k, v = c.c.Next()
	case kv.Prev:
		k, v = c.c.Prev()
	case kv.Set:
		k, v = c.c.Seek(key)
		if k != nil && !bytes.Equal(k, key) {
			k, v = nil, nil
		}
	case kv.SetRange:
		k, v = c.c.Seek(key)
	case kv.GetCurrent:
		k, v = c.k, c.v
	}
	c.k, c.v = k, v
	if k == nil {
		return nil, nil, kv.ErrNotFound
	}
	return k, v, nil
}

func (c *Cursor) Put(key, value []byte, flags kv.PutFlags) error {
	if c.txn.readOnly {
		return kv.ErrReadOnly
	}
	if err := c.txn.put(c.id, c.b, key, value, flags); err != nil {
		return err
	}
	c.k, c.v = c.c.Seek(key)
	return nil
}

func (c *Cursor) Del() error {
	if c.txn.readOnly {
		return kv.ErrReadOnly
	}
	if c.k == nil {
		return kv.ErrNotFound
	}
	n := c.txn.count(c.id, c.b)
	if err := c.c.Delete(); err != nil {
		return err
	}
	c.txn.counts[c.id] = n - 1
	c.k, c.v = nil, nil
	return nil
}

func (c *Cursor) Close() {}
