package lsmdb

import (
	"errors"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/Giulio2002/lsmdb/internal/kv"
	"github.com/Giulio2002/lsmdb/internal/kv/boltkv"
	"github.com/Giulio2002/lsmdb/internal/kv/mdbxkv"
)

// envSignature is the magic number for valid environments
const envSignature int32 = 0x4C534D45 // "LSME"

// Env is an opened LSM store: the substrate handle plus the fixed table
// layout. The table set is read-only after Open and shared by every
// transaction.
type Env struct {
	signature int32
	path      string
	opts      Options
	log       *zap.Logger
	kv        kv.Env

	// tables[0] is the write table, tables[1] the metadata table, then
	// TablesPerLevel tables for each level 1..LevelMax-1.
	tables [tableCount]kv.TableID
}

// TxnOp is a function that operates on a transaction.
type TxnOp func(txn *Txn) error

// Open creates or opens the store in directory path. A store whose table
// layout or level state does not match this build fails with
// ErrIncompatible.
func Open(path string, opts *Options) (*Env, error) {
	o := DefaultOptions()
	if opts != nil {
		*o = *opts
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(path, DataDirMode); err != nil {
		return nil, err
	}

	var (
		store kv.Env
		err   error
	)
	switch o.Backend {
	case BackendBolt:
		store, err = boltkv.Open(path, o.SizeLimit, o.NoSync)
	default:
		store, err = mdbxkv.Open(path, o.SizeLimit, tableCount+2, o.NoSync)
	}
	if err != nil {
		return nil, err
	}

	e := &Env{
		signature: envSignature,
		path:      path,
		opts:      *o,
		log:       o.Logger.With(zap.String("path", path)),
		kv:        store,
	}
	if err := e.setup(); err != nil {
		store.Close()
		return nil, err
	}
	e.log.Info("opened lsm store",
		zap.String("backend", string(o.Backend)),
		zap.Bool("no_sync", o.NoSync),
		zap.Bool("autocompact", !o.DisableAutoCompact))
	return e, nil
}

// setup creates every table once and checks that identifiers are dense,
// then validates any stored level states.
func (e *Env) setup() error {
	txn, err := e.kv.BeginTxn(nil, false)
	if err != nil {
		return err
	}
	defer txn.Abort()

	for i := 0; i < tableCount; i++ {
		id, err := txn.OpenTable(tableName(i), true)
		if err != nil {
			return err
		}
		if i > 0 && id != e.tables[0]+kv.TableID(i) {
			return errorf(ErrIncompatible, "table %s has id %d, want %d", tableName(i), id, e.tables[0]+kv.TableID(i))
		}
		e.tables[i] = id
	}

	buf, err := txn.Get(e.metaTable(), formatKey)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		if err := txn.Put(e.metaTable(), formatKey, []byte{FormatVersion}, kv.Upsert); err != nil {
			return err
		}
	case err != nil:
		return err
	case len(buf) != 1 || buf[0] != FormatVersion:
		return errorf(ErrIncompatible, "store format %x, want %d", buf, FormatVersion)
	}

	buf, err = txn.Get(e.metaTable(), levelsKey)
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		return err
	default:
		if _, err := decodeLevelStates(buf); err != nil {
			return err
		}
	}
	return txn.Commit()
}

func tableName(i int) string {
	switch i {
	case 0:
		return writeTableName
	case 1:
		return metaTableName
	}
	i -= 2
	level := i/TablesPerLevel + 1
	slot := byte('a' + i%TablesPerLevel)
	return "lsm." + strconv.Itoa(level) + "." + string(slot)
}

// valid returns true if the environment is open.
func (e *Env) valid() bool {
	return e != nil && e.signature == envSignature
}

func (e *Env) writeTable() kv.TableID { return e.tables[0] }

func (e *Env) metaTable() kv.TableID { return e.tables[1] }

// table returns the table playing role r at level for state s. Level 0 has
// one table for every role.
func (e *Env) table(level int, s LevelState, r Role) kv.TableID {
	if level == 0 {
		return e.writeTable()
	}
	return e.tables[2+(level-1)*TablesPerLevel+int(s.Slot(r))]
}

// Path returns the store directory.
func (e *Env) Path() string {
	return e.path
}

// Options returns a copy of the options the environment was opened with.
func (e *Env) Options() Options {
	return e.opts
}

// Close releases the substrate. Transactions must be finished first.
func (e *Env) Close() error {
	if !e.valid() {
		return nil
	}
	e.signature = 0
	e.log.Info("closed lsm store")
	return e.kv.Close()
}

// View executes a read-only transaction.
func (e *Env) View(fn TxnOp) error {
	return e.RunTxn(TxnReadOnly, fn)
}

// Update executes a read-write transaction. Commit runs autocompaction
// unless it is disabled in Options.
func (e *Env) Update(fn TxnOp) error {
	return e.RunTxn(TxnReadWrite, fn)
}

// RunTxn runs a transaction with the given flags.
// The transaction is committed when fn returns nil and aborted otherwise.
func (e *Env) RunTxn(flags uint, fn TxnOp) error {
	txn, err := e.BeginTxn(nil, flags)
	if err != nil {
		return err
	}
	if err := fn(txn); err != nil {
		txn.Abort()
		return err
	}
	return txn.Commit()
}
