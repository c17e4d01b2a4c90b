package boltkv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Giulio2002/lsmdb/internal/kv"
	"github.com/Giulio2002/lsmdb/internal/kv/kvtest"
)

func open(t *testing.T, dir string) kv.Env {
	env, err := Open(dir, 1<<24, true)
	require.NoError(t, err)
	return env
}

func TestConformance(t *testing.T) {
	kvtest.Run(t, open)
}

func TestDataFile(t *testing.T) {
	dir := t.TempDir()
	env := open(t, dir)
	defer env.Close()
	_, err := os.Stat(filepath.Join(dir, DataFileName))
	require.NoError(t, err)
}

func TestNoNestedTxn(t *testing.T) {
	env := open(t, t.TempDir())
	defer env.Close()
	parent, err := env.BeginTxn(nil, false)
	require.NoError(t, err)
	defer parent.Abort()
	_, err = env.BeginTxn(parent, false)
	require.ErrorIs(t, err, kv.ErrNestedTxn)
}

func TestRenewNeedsReset(t *testing.T) {
	env := open(t, t.TempDir())
	defer env.Close()
	txn, err := env.BeginTxn(nil, true)
	require.NoError(t, err)
	defer txn.Abort()
	require.Error(t, txn.Renew())
}

func TestTableIDsFollowOpenOrder(t *testing.T) {
	dir := t.TempDir()
	env := open(t, dir)
	txn, err := env.BeginTxn(nil, false)
	require.NoError(t, err)
	for i, name := range []string{"x", "y", "z"} {
		id, err := txn.OpenTable(name, true)
		require.NoError(t, err)
		require.Equal(t, kv.TableID(i), id)
	}
	require.NoError(t, txn.Commit())
	require.NoError(t, env.Close())

	// a reopened file hands ids out again in open order
	env = open(t, dir)
	defer env.Close()
	txn, err = env.BeginTxn(nil, true)
	require.NoError(t, err)
	defer txn.Abort()
	id, err := txn.OpenTable("z", false)
	require.NoError(t, err)
	require.Equal(t, kv.TableID(0), id)
}
