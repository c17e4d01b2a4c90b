// Package kvtest checks that a kv implementation behaves the way the LSM
// layer expects.
package kvtest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Giulio2002/lsmdb/internal/kv"
)

// Opener opens a fresh environment in dir.
type Opener func(t *testing.T, dir string) kv.Env

// Run exercises tables, puts, cursors and transaction lifecycle.
func Run(t *testing.T, open Opener) {
	t.Run("Tables", func(t *testing.T) { testTables(t, open) })
	t.Run("Put", func(t *testing.T) { testPut(t, open) })
	t.Run("Cursor", func(t *testing.T) { testCursor(t, open) })
	t.Run("Drop", func(t *testing.T) { testDrop(t, open) })
	t.Run("Entries", func(t *testing.T) { testEntries(t, open) })
	t.Run("Lifecycle", func(t *testing.T) { testLifecycle(t, open) })
}

func key(i int) []byte { return []byte(fmt.Sprintf("k%04d", i)) }

func update(t *testing.T, env kv.Env, fn func(txn kv.Txn)) {
	t.Helper()
	txn, err := env.BeginTxn(nil, false)
	require.NoError(t, err)
	fn(txn)
	require.NoError(t, txn.Commit())
}

func view(t *testing.T, env kv.Env, fn func(txn kv.Txn)) {
	t.Helper()
	txn, err := env.BeginTxn(nil, true)
	require.NoError(t, err)
	defer txn.Abort()
	fn(txn)
}

// setup creates tables "a" and "b" and fills "a" with keys 0..n-1.
func setup(t *testing.T, open Opener, n int) (kv.Env, kv.TableID, kv.TableID) {
	t.Helper()
	env := open(t, t.TempDir())
	t.Cleanup(func() { env.Close() })
	var a, b kv.TableID
	update(t, env, func(txn kv.Txn) {
		var err error
		a, err = txn.OpenTable("a", true)
		require.NoError(t, err)
		b, err = txn.OpenTable("b", true)
		require.NoError(t, err)
		require.Equal(t, a+1, b)
		for i := 0; i < n; i++ {
			require.NoError(t, txn.Put(a, key(i), key(i), kv.Upsert))
		}
	})
	return env, a, b
}

func testTables(t *testing.T, open Opener) {
	env, a, _ := setup(t, open, 0)
	update(t, env, func(txn kv.Txn) {
		id, err := txn.OpenTable("a", false)
		require.NoError(t, err)
		require.Equal(t, a, id)
		_, err = txn.OpenTable("missing", false)
		require.ErrorIs(t, err, kv.ErrNotFound)
	})
}

func testPut(t *testing.T, open Opener) {
	env, a, b := setup(t, open, 10)
	update(t, env, func(txn kv.Txn) {
		v, err := txn.Get(a, key(3))
		require.NoError(t, err)
		require.Equal(t, key(3), v)
		_, err = txn.Get(a, []byte("k0003x"))
		require.ErrorIs(t, err, kv.ErrNotFound)

		require.ErrorIs(t, txn.Put(a, key(3), []byte("x"), kv.NoOverwrite), kv.ErrKeyExists)
		require.NoError(t, txn.Put(a, key(3), []byte("y"), kv.Upsert))
		v, err = txn.Get(a, key(3))
		require.NoError(t, err)
		require.Equal(t, []byte("y"), v)

		require.NoError(t, txn.Put(b, key(5), nil, kv.Append))
		require.NoError(t, txn.Put(b, key(6), nil, kv.Append))
		require.Error(t, txn.Put(b, key(6), nil, kv.Append))
		require.Error(t, txn.Put(b, key(1), nil, kv.Append))

		n, err := txn.Entries(b)
		require.NoError(t, err)
		require.Equal(t, uint64(2), n)
		require.Negative(t, txn.Compare(a, key(1), key(2)))
		require.Zero(t, txn.Compare(a, key(2), key(2)))
	})
	view(t, env, func(txn kv.Txn) {
		require.True(t, txn.ReadOnly())
		require.Error(t, txn.Put(a, key(1), nil, kv.Upsert))
		n, err := txn.Entries(a)
		require.NoError(t, err)
		require.Equal(t, uint64(10), n)
	})
}

func testCursor(t *testing.T, open Opener) {
	env, a, b := setup(t, open, 10)
	view(t, env, func(txn kv.Txn) {
		c, err := txn.OpenCursor(a)
		require.NoError(t, err)
		defer c.Close()

		k, _, err := c.Get(nil, kv.First)
		require.NoError(t, err)
		require.Equal(t, key(0), k)
		k, _, err = c.Get(nil, kv.Next)
		require.NoError(t, err)
		require.Equal(t, key(1), k)
		k, _, err = c.Get(nil, kv.GetCurrent)
		require.NoError(t, err)
		require.Equal(t, key(1), k)
		_, _, err = c.Get(nil, kv.Prev)
		require.NoError(t, err)
		_, _, err = c.Get(nil, kv.Prev)
		require.ErrorIs(t, err, kv.ErrNotFound)

		k, v, err := c.Get(nil, kv.Last)
		require.NoError(t, err)
		require.Equal(t, key(9), k)
		require.Equal(t, key(9), v)
		_, _, err = c.Get(nil, kv.Next)
		require.ErrorIs(t, err, kv.ErrNotFound)

		k, _, err = c.Get(key(4), kv.Set)
		require.NoError(t, err)
		require.Equal(t, key(4), k)
		_, _, err = c.Get([]byte("k0004x"), kv.Set)
		require.ErrorIs(t, err, kv.ErrNotFound)
		k, _, err = c.Get([]byte("k0004x"), kv.SetRange)
		require.NoError(t, err)
		require.Equal(t, key(5), k)
		_, _, err = c.Get([]byte("z"), kv.SetRange)
		require.ErrorIs(t, err, kv.ErrNotFound)

		eb, err := txn.OpenCursor(b)
		require.NoError(t, err)
		defer eb.Close()
		_, _, err = eb.Get(nil, kv.First)
		require.ErrorIs(t, err, kv.ErrNotFound)
		_, _, err = eb.Get(nil, kv.Last)
		require.ErrorIs(t, err, kv.ErrNotFound)
	})

	update(t, env, func(txn kv.Txn) {
		c, err := txn.OpenCursor(a)
		require.NoError(t, err)
		defer c.Close()
		_, _, err = c.Get(key(4), kv.Set)
		require.NoError(t, err)
		require.NoError(t, c.Del())
		require.NoError(t, c.Put(key(20), key(20), kv.Append))

		n, err := txn.Entries(a)
		require.NoError(t, err)
		require.Equal(t, uint64(10), n)
		_, err = txn.Get(a, key(4))
		require.ErrorIs(t, err, kv.ErrNotFound)
	})
}

func testDrop(t *testing.T, open Opener) {
	env, a, _ := setup(t, open, 10)
	update(t, env, func(txn kv.Txn) {
		require.NoError(t, txn.DropTable(a))
		n, err := txn.Entries(a)
		require.NoError(t, err)
		require.Zero(t, n)
		require.NoError(t, txn.Put(a, key(1), key(1), kv.Upsert))
	})
	view(t, env, func(txn kv.Txn) {
		n, err := txn.Entries(a)
		require.NoError(t, err)
		require.Equal(t, uint64(1), n)
	})
}

func testEntries(t *testing.T, open Opener) {
	env, a, b := setup(t, open, 10)
	entries := func(txn kv.Txn, id kv.TableID) uint64 {
		t.Helper()
		n, err := txn.Entries(id)
		require.NoError(t, err)
		return n
	}
	update(t, env, func(txn kv.Txn) {
		require.Equal(t, uint64(10), entries(txn, a))
		require.NoError(t, txn.Put(a, key(3), []byte("x"), kv.Upsert))
		require.Equal(t, uint64(10), entries(txn, a))
		require.NoError(t, txn.Put(a, key(30), key(30), kv.Upsert))
		require.ErrorIs(t, txn.Put(a, key(30), nil, kv.NoOverwrite), kv.ErrKeyExists)
		require.Equal(t, uint64(11), entries(txn, a))

		c, err := txn.OpenCursor(a)
		require.NoError(t, err)
		_, _, err = c.Get(key(5), kv.Set)
		require.NoError(t, err)
		require.NoError(t, c.Del())
		require.NoError(t, c.Put(key(40), key(40), kv.Append))
		require.NoError(t, c.Put(key(41), key(41), kv.Append))
		c.Close()
		require.Equal(t, uint64(12), entries(txn, a))

		require.NoError(t, txn.Put(b, key(1), key(1), kv.Upsert))
		require.NoError(t, txn.DropTable(b))
		require.Zero(t, entries(txn, b))
		require.NoError(t, txn.Put(b, key(2), key(2), kv.Upsert))
		require.Equal(t, uint64(1), entries(txn, b))
	})
	view(t, env, func(txn kv.Txn) {
		require.Equal(t, uint64(12), entries(txn, a))
		require.Equal(t, uint64(1), entries(txn, b))
	})
}

func testLifecycle(t *testing.T, open Opener) {
	env, a, _ := setup(t, open, 3)

	txn, err := env.BeginTxn(nil, false)
	require.NoError(t, err)
	require.NoError(t, txn.Put(a, key(7), key(7), kv.Upsert))
	txn.Abort()
	txn.Abort()

	ro, err := env.BeginTxn(nil, true)
	require.NoError(t, err)
	_, err = ro.Get(a, key(7))
	require.ErrorIs(t, err, kv.ErrNotFound)
	ro.Reset()

	errc := make(chan error, 1)
	go func() {
		w, err := env.BeginTxn(nil, false)
		if err != nil {
			errc <- err
			return
		}
		if err := w.Put(a, key(8), key(8), kv.Upsert); err != nil {
			w.Abort()
			errc <- err
			return
		}
		errc <- w.Commit()
	}()
	require.NoError(t, <-errc)

	require.NoError(t, ro.Renew())
	v, err := ro.Get(a, key(8))
	require.NoError(t, err)
	require.Equal(t, key(8), v)
	require.NoError(t, ro.Commit())
}
