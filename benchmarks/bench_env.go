// Package benchmarks compares the LSM layer against the raw substrates it
// runs on.
package benchmarks

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/erigontech/mdbx-go/mdbx"
	bolt "go.etcd.io/bbolt"

	"github.com/Giulio2002/lsmdb"
)

func formatSize(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%dM", n/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%dk", n/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// shuffled returns 0..n-1 in a fixed pseudo-random order.
func shuffled(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for i := len(order) - 1; i > 0; i-- {
		j := int(uint64(i*17+31) % uint64(i+1))
		order[i], order[j] = order[j], order[i]
	}
	return order
}

func openLSM(b *testing.B, backend lsmdb.Backend) *lsmdb.Env {
	opts := lsmdb.DefaultOptions()
	opts.Backend = backend
	opts.NoSync = true
	opts.SizeLimit = 4 << 30
	env, err := lsmdb.Open(b.TempDir(), opts)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { env.Close() })
	return env
}

func populateLSM(b *testing.B, env *lsmdb.Env, n int) {
	key := make([]byte, 8)
	val := make([]byte, 32)
	order := shuffled(n)
	for i := 0; i < n; i += 1000 {
		err := env.Update(func(txn *lsmdb.Txn) error {
			for j := i; j < i+1000 && j < n; j++ {
				binary.BigEndian.PutUint64(key, uint64(order[j]))
				binary.BigEndian.PutUint64(val, uint64(j))
				if err := txn.Put(key, val, lsmdb.Upsert); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

func openMdbx(b *testing.B) (*mdbx.Env, mdbx.DBI) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	env, err := mdbx.NewEnv(mdbx.Label("bench"))
	if err != nil {
		b.Fatal(err)
	}
	env.SetOption(mdbx.OptMaxDB, 4)
	env.SetGeometry(-1, -1, 4<<30, -1, -1, -1)
	if err := env.Open(b.TempDir(), mdbx.SafeNoSync, 0644); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(env.Close)

	txn, err := env.BeginTxn(nil, 0)
	if err != nil {
		b.Fatal(err)
	}
	dbi, err := txn.OpenDBI("bench", mdbx.Create, nil, nil)
	if err != nil {
		b.Fatal(err)
	}
	if _, err := txn.Commit(); err != nil {
		b.Fatal(err)
	}
	return env, dbi
}

func openBolt(b *testing.B) *bolt.DB {
	db, err := bolt.Open(filepath.Join(b.TempDir(), "bench.db"), 0644, &bolt.Options{
		NoSync:         true,
		NoFreelistSync: true,
	})
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { db.Close() })
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucket([]byte("bench"))
		return err
	}); err != nil {
		b.Fatal(err)
	}
	return db
}
