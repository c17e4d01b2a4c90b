package lsmdb

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Giulio2002/lsmdb/internal/kv"
)

func TestTableNames(t *testing.T) {
	require.Equal(t, "lsm.write", tableName(0))
	require.Equal(t, "lsm.meta", tableName(1))
	require.Equal(t, "lsm.1.a", tableName(2))
	require.Equal(t, "lsm.1.c", tableName(4))
	require.Equal(t, "lsm.2.a", tableName(5))
	require.Equal(t, "lsm.9.c", tableName(tableCount-1))
}

func TestOpenFreshStore(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		dir := filepath.Join(t.TempDir(), "nested", "store")
		env := openTestEnvAt(t, dir, b, nil)
		require.Equal(t, dir, env.Path())
		require.Equal(t, b, env.Options().Backend)

		require.NoError(t, env.View(func(txn *Txn) error {
			for level := 1; level < LevelMax; level++ {
				require.Equal(t, StateNil, txn.LevelState(level))
			}
			st, err := txn.Stat(0)
			require.NoError(t, err)
			require.Zero(t, st.Next)

			_, err = txn.Get([]byte("missing"))
			require.True(t, IsNotFound(err))
			return nil
		}))

		for i := 1; i < tableCount; i++ {
			require.Equal(t, env.tables[0]+kv.TableID(i), env.tables[i])
		}
	})
}

func TestReopenKeepsDataAndStates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		dir := t.TempDir()
		env := openTestEnvAt(t, dir, b, manual)
		putRange(t, env, 0, 50, 1)
		compactLevel(t, env, 0, 0)
		putRange(t, env, 50, 60, 1)
		require.NoError(t, env.Close())

		env = openTestEnvAt(t, dir, b, manual)
		require.NoError(t, env.View(func(txn *Txn) error {
			require.Equal(t, StateACB, txn.LevelState(1))
			return nil
		}))
		require.Equal(t, expected(0, 60, 1), scan(t, env, Forward))
	})
}

func TestOpenRejectsIncompatibleStore(t *testing.T) {
	tests := []struct {
		name  string
		key   []byte
		value []byte
	}{
		{"invalid state byte", levelsKey, []byte{byte(StateABC), 0x7f}},
		{"state vector too long", levelsKey, make([]byte, LevelMax)},
		{"format version", formatKey, []byte{FormatVersion + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forEachBackend(t, func(t *testing.T, b Backend) {
				dir := t.TempDir()
				env := openTestEnvAt(t, dir, b, nil)
				require.NoError(t, env.Update(func(txn *Txn) error {
					return txn.kv.Put(txn.env.metaTable(), tt.key, tt.value, kv.Upsert)
				}))
				require.NoError(t, env.Close())

				_, err := Open(dir, testOptions(t, b, nil))
				require.Error(t, err)
				require.True(t, IsIncompatible(err), "got %v", err)
			})
		})
	}
}

func TestBeginTxnErrors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		env := openTestEnv(t, b, nil)

		ro, err := env.BeginTxn(nil, TxnReadOnly)
		require.NoError(t, err)
		_, err = env.BeginTxn(ro, TxnReadWrite)
		require.True(t, IsInvalidArgument(err), "got %v", err)

		require.True(t, errors.Is(ro.Put([]byte("k"), []byte("v"), Upsert), ErrBadTxnError))
		_, err = ro.Compact(0, 1)
		require.True(t, errors.Is(err, ErrBadTxnError))
		ro.Abort()

		_, err = ro.Get([]byte("k"))
		require.True(t, errors.Is(err, ErrBadTxnError))
		require.True(t, errors.Is(ro.Commit(), ErrBadTxnError))

		require.NoError(t, env.Close())
		_, err = env.BeginTxn(nil, TxnReadOnly)
		require.True(t, errors.Is(err, ErrBadTxnError))
	})
}

func TestNestedTxn(t *testing.T) {
	env := openTestEnv(t, BackendMDBX, manual)
	putRange(t, env, 0, 10, 1)
	compactLevel(t, env, 0, 0)

	parent, err := env.BeginTxn(nil, TxnReadWrite)
	require.NoError(t, err)
	require.NoError(t, parent.Put([]byte("a"), []byte("1"), Upsert))

	child, err := env.BeginTxn(parent, TxnReadWrite)
	require.NoError(t, err)
	require.NoError(t, child.Put([]byte("b"), []byte("2"), Upsert))
	res, err := child.Compact(0, 0)
	require.NoError(t, err)
	require.True(t, res.Done)
	require.NoError(t, child.Commit())

	require.Equal(t, StateABC, parent.LevelState(1))
	v, err := parent.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v)

	child, err = env.BeginTxn(parent, TxnReadWrite)
	require.NoError(t, err)
	require.NoError(t, child.Put([]byte("c"), []byte("3"), Upsert))
	child.Abort()

	_, err = parent.Get([]byte("c"))
	require.True(t, IsNotFound(err))
	require.NoError(t, parent.Commit())

	got := scan(t, env, Forward)
	require.Len(t, got, 12)
	require.Equal(t, "a=1", got[0])
	require.Equal(t, "b=2", got[1])
}

func TestNestedTxnUnsupportedOnBolt(t *testing.T) {
	env := openTestEnv(t, BackendBolt, nil)
	parent, err := env.BeginTxn(nil, TxnReadWrite)
	require.NoError(t, err)
	defer parent.Abort()

	_, err = env.BeginTxn(parent, TxnReadWrite)
	require.ErrorIs(t, err, kv.ErrNestedTxn)
}

func TestResetRenew(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		env := openTestEnv(t, b, manual)
		putRange(t, env, 0, 5, 1)

		ro, err := env.BeginTxn(nil, TxnReadOnly)
		require.NoError(t, err)
		defer ro.Abort()
		_, err = ro.Get(keyf(7))
		require.True(t, IsNotFound(err))
		ro.Reset()

		// the writer gets its own goroutine so mdbx never sees a read and a
		// write transaction on one thread
		errc := make(chan error, 1)
		go func() {
			errc <- env.Update(func(txn *Txn) error {
				for i := 5; i < 10; i++ {
					if err := txn.Put(keyf(i), valf(i, 1), Upsert); err != nil {
						return err
					}
				}
				_, err := txn.Compact(0, 0)
				return err
			})
		}()
		require.NoError(t, <-errc)

		require.NoError(t, ro.Renew())
		require.Equal(t, StateACB, ro.LevelState(1))
		v, err := ro.Get(keyf(7))
		require.NoError(t, err)
		require.Equal(t, valf(7, 1), v)
	})
}

func TestOptions(t *testing.T) {
	t.Run("defaults when missing", func(t *testing.T) {
		opts, err := LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		require.Equal(t, BackendMDBX, opts.Backend)
		require.Equal(t, uint64(DefaultLevelBase), opts.LevelBase)
		require.Equal(t, uint64(DefaultLevelGrowth), opts.LevelGrowth)
		require.Equal(t, uint64(DefaultMergeBatch), opts.MergeBatch)
		require.NotNil(t, opts.Logger)
	})

	t.Run("yaml overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lsmdb.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"backend: bolt\nlevel_base: 100\nmerge_batch: 400\ndisable_autocompact: true\n"), 0644))
		opts, err := LoadOptions(path)
		require.NoError(t, err)
		require.Equal(t, BackendBolt, opts.Backend)
		require.Equal(t, uint64(100), opts.LevelBase)
		require.Equal(t, uint64(DefaultLevelGrowth), opts.LevelGrowth)
		require.Equal(t, uint64(400), opts.MergeBatch)
		require.True(t, opts.DisableAutoCompact)
		require.Equal(t, uint64(100*DefaultLevelGrowth*DefaultLevelGrowth), opts.levelTarget(2))
	})

	t.Run("level targets saturate", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lsmdb.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"level_base: 1099511627776\nlevel_growth: 1048576\n"), 0644))
		opts, err := LoadOptions(path)
		require.NoError(t, err)
		require.Equal(t, uint64(1)<<60, opts.levelTarget(1))
		for level := 2; level < LevelMax; level++ {
			require.Equal(t, uint64(math.MaxUint64), opts.levelTarget(level), "level %d", level)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lsmdb.yaml")
		require.NoError(t, os.WriteFile(path, []byte("backend: leveldb\n"), 0644))
		_, err := LoadOptions(path)
		require.True(t, IsInvalidArgument(err), "got %v", err)

		opts := DefaultOptions()
		opts.LevelGrowth = 0
		_, err = Open(t.TempDir(), opts)
		require.True(t, IsInvalidArgument(err), "got %v", err)
	})
}

func TestErrors(t *testing.T) {
	err := errorf(ErrInvalidArgument, "level %d", 12)
	require.True(t, IsInvalidArgument(err))
	require.ErrorIs(t, err, NewError(ErrInvalidArgument))
	require.Equal(t, ErrInvalidArgument, Code(err))
	require.Equal(t, "lsmdb: invalid argument: level 12", err.Error())

	require.Equal(t, Success, Code(nil))
	require.Equal(t, ErrorCode(-1), Code(kv.ErrNotFound))
	require.False(t, IsNotFound(kv.ErrNotFound))
	require.Contains(t, Version(), "format 1")
}
