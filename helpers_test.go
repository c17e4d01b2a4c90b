package lsmdb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var backends = []Backend{BackendMDBX, BackendBolt}

func forEachBackend(t *testing.T, fn func(t *testing.T, b Backend)) {
	for _, b := range backends {
		t.Run(string(b), func(t *testing.T) { fn(t, b) })
	}
}

func testOptions(t *testing.T, b Backend, configure func(*Options)) *Options {
	opts := DefaultOptions()
	opts.Backend = b
	opts.SizeLimit = 256 << 20
	opts.NoSync = true
	opts.Logger = zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	if configure != nil {
		configure(opts)
	}
	return opts
}

func openTestEnvAt(t *testing.T, dir string, b Backend, configure func(*Options)) *Env {
	t.Helper()
	env, err := Open(dir, testOptions(t, b, configure))
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env
}

func openTestEnv(t *testing.T, b Backend, configure func(*Options)) *Env {
	t.Helper()
	return openTestEnvAt(t, t.TempDir(), b, configure)
}

// manual disables autocompaction so tests drive Compact themselves.
func manual(o *Options) {
	o.DisableAutoCompact = true
}

func keyf(i int) []byte {
	return []byte(fmt.Sprintf("key%06d", i))
}

func keyIndex(t *testing.T, k []byte) int {
	t.Helper()
	var i int
	_, err := fmt.Sscanf(string(k), "key%06d", &i)
	require.NoError(t, err)
	return i
}

func valf(i, gen int) []byte {
	return []byte(fmt.Sprintf("val%06d.%d", i, gen))
}

func putRange(t *testing.T, env *Env, from, to, gen int) {
	t.Helper()
	require.NoError(t, env.Update(func(txn *Txn) error {
		for i := from; i < to; i++ {
			if err := txn.Put(keyf(i), valf(i, gen), Upsert); err != nil {
				return err
			}
		}
		return nil
	}))
}

func compactLevel(t *testing.T, env *Env, level int, steps uint64) CompactResult {
	t.Helper()
	var res CompactResult
	require.NoError(t, env.Update(func(txn *Txn) error {
		var err error
		res, err = txn.Compact(level, steps)
		return err
	}))
	return res
}

// scan collects "key=value" pairs in dir order.
func scan(t *testing.T, env *Env, dir Direction) []string {
	t.Helper()
	var out []string
	require.NoError(t, env.View(func(txn *Txn) error {
		c, err := txn.OpenCursor()
		if err != nil {
			return err
		}
		defer c.Close()
		k, v, err := c.First(dir)
		for ; err == nil; k, v, err = c.Next(dir) {
			out = append(out, string(k)+"="+string(v))
		}
		if !IsNotFound(err) {
			return err
		}
		return nil
	}))
	return out
}

func expected(from, to, gen int) []string {
	out := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, string(keyf(i))+"="+string(valf(i, gen)))
	}
	return out
}

func reversed(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[len(in)-1-i] = s
	}
	return out
}

func levelStat(t *testing.T, env *Env, level int) LevelStat {
	t.Helper()
	var st LevelStat
	require.NoError(t, env.View(func(txn *Txn) error {
		var err error
		st, err = txn.Stat(level)
		return err
	}))
	return st
}
