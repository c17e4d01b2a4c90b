// Package kv describes the ordered, transactional key-value substrate the
// LSM layer is built on. Implementations live in the mdbxkv and boltkv
// subpackages.
package kv

import "errors"

// TableID identifies a table within an environment.
type TableID uint32

// Op is a cursor positioning operation.
type Op uint

const (
	// First positions at the first key
	First Op = iota
	// Last positions at the last key
	Last
	// Next moves to the next key
	Next
	// Prev moves to the previous key
	Prev
	// Set positions at exactly the specified key
	Set
	// SetRange positions at the first key >= specified
	SetRange
	// GetCurrent returns the entry under the cursor
	GetCurrent
)

// PutFlags modify a put.
type PutFlags uint

const (
	// Upsert inserts or replaces
	Upsert PutFlags = 0
	// NoOverwrite fails with ErrKeyExists if the key is present
	NoOverwrite PutFlags = 1 << iota
	// Append requires the key to sort after every key in the table
	Append
)

var (
	// ErrNotFound is returned when no matching entry exists.
	ErrNotFound = errors.New("kv: not found")
	// ErrKeyExists is returned by NoOverwrite and Append puts on collision.
	ErrKeyExists = errors.New("kv: key exists")
	// ErrNestedTxn is returned by backends without nested transactions.
	ErrNestedTxn = errors.New("kv: nested transactions not supported")
	// ErrReadOnly is returned for writes inside a read-only transaction.
	ErrReadOnly = errors.New("kv: read-only transaction")
)

// Env is an opened store.
type Env interface {
	// BeginTxn starts a transaction, nested under parent when non-nil.
	BeginTxn(parent Txn, readOnly bool) (Txn, error)
	Close() error
}

// Txn is a substrate transaction. Slices returned by Get and cursor reads
// are only valid until the next write in the same transaction.
type Txn interface {
	OpenTable(name string, create bool) (TableID, error)
	// DropTable removes every entry from the table, keeping the table.
	DropTable(id TableID) error
	Entries(id TableID) (uint64, error)
	Compare(id TableID, a, b []byte) int

	Get(id TableID, key []byte) ([]byte, error)
	Put(id TableID, key, value []byte, flags PutFlags) error
	OpenCursor(id TableID) (Cursor, error)

	ReadOnly() bool
	Commit() error
	Abort()
	// Reset releases a read-only snapshot; Renew acquires a fresh one.
	Reset()
	Renew() error
}

// Cursor iterates one table.
type Cursor interface {
	Get(key []byte, op Op) (k, v []byte, err error)
	Put(key, value []byte, flags PutFlags) error
	// Del removes the entry under the cursor.
	Del() error
	Close()
}
