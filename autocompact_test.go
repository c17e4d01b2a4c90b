package lsmdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func smallLevels(o *Options) {
	o.LevelBase = 100
	o.LevelGrowth = 4
	o.MergeBatch = 400
}

func TestAutocompactManyCommits(t *testing.T) {
	const n = 10000
	forEachBackend(t, func(t *testing.T, b Backend) {
		env := openTestEnv(t, b, smallLevels)

		for i := 0; i < n; i++ {
			require.NoError(t, env.Update(func(txn *Txn) error {
				return txn.Put(keyf(i), valf(i, 1), Upsert)
			}))
			if i%1000 == 999 {
				require.Less(t, levelStat(t, env, 0).Next, uint64(100))
			}
		}

		var total uint64
		deepest := 0
		for level := 0; level < LevelMax; level++ {
			st := levelStat(t, env, level)
			total += st.Prev + st.Next
			if st.Prev+st.Next > 0 {
				deepest = level
			}
		}
		// every key sits in exactly one readable table
		require.Equal(t, uint64(n), total)
		require.GreaterOrEqual(t, deepest, 2)

		require.Equal(t, expected(0, n, 1), scan(t, env, Forward))

		require.NoError(t, env.View(func(txn *Txn) error {
			written, err := txn.readWritten()
			require.NoError(t, err)
			require.Equal(t, uint64(n), written)
			return nil
		}))
	})
}

func TestAutocompactDefaults(t *testing.T) {
	const n = 10000
	forEachBackend(t, func(t *testing.T, b Backend) {
		env := openTestEnv(t, b, nil)
		for i := 1; i <= n; i++ {
			require.NoError(t, env.Update(func(txn *Txn) error {
				return txn.Put(keyf(i), valf(i, 1), Upsert)
			}))
		}

		require.Zero(t, levelStat(t, env, 0).Next)
		l1 := levelStat(t, env, 1)
		require.Equal(t, uint64(n), l1.Next)
		require.Zero(t, l1.Prev+l1.Pending)
		require.Equal(t, StateNil, levelStat(t, env, 2).State)

		want := expected(1, n+1, 1)
		require.Equal(t, want, scan(t, env, Forward))
		require.Equal(t, reversed(want), scan(t, env, Backward))
	})
}

func TestAutocompactOverwrites(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		env := openTestEnv(t, b, smallLevels)
		for gen := 1; gen <= 6; gen++ {
			for i := 0; i < 300; i += 30 {
				putRange(t, env, i, i+30, gen)
			}
		}
		require.Equal(t, expected(0, 300, 6), scan(t, env, Forward))
		require.Equal(t, reversed(expected(0, 300, 6)), scan(t, env, Backward))
	})
}

func TestAutocompactPacingSurvivesReopen(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		dir := t.TempDir()
		noDrain := func(o *Options) {
			o.LevelBase = 1 << 20
		}
		env := openTestEnvAt(t, dir, b, noDrain)
		for i := 0; i < 7; i++ {
			putRange(t, env, i*3, i*3+3, 1)
		}
		require.NoError(t, env.Close())

		env = openTestEnvAt(t, dir, b, noDrain)
		putRange(t, env, 100, 102, 1)
		require.NoError(t, env.View(func(txn *Txn) error {
			written, err := txn.readWritten()
			require.NoError(t, err)
			require.Equal(t, uint64(23), written)
			return nil
		}))
	})
}

func TestAutocompactExplicit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b Backend) {
		env := openTestEnv(t, b, func(o *Options) {
			smallLevels(o)
			manual(o)
		})
		putRange(t, env, 0, 150, 1)
		require.Equal(t, uint64(150), levelStat(t, env, 0).Next)

		require.NoError(t, env.Update(func(txn *Txn) error {
			require.NoError(t, txn.Put(keyf(150), valf(150, 1), Upsert))
			return txn.Autocompact()
		}))
		require.Zero(t, levelStat(t, env, 0).Next)
		require.Equal(t, uint64(151), levelStat(t, env, 1).Next)
		require.Equal(t, expected(0, 151, 1), scan(t, env, Forward))

		require.NoError(t, env.View(func(txn *Txn) error {
			// commits without autocompaction are not counted
			written, err := txn.readWritten()
			require.NoError(t, err)
			require.Equal(t, uint64(1), written)
			return txn.Autocompact()
		}))
	})
}
