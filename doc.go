// Package lsmdb is an embedded log-structured merge layer on top of an
// ordered, transactional B-tree store (libmdbx or bbolt).
//
// Writes land in a single level-0 table. Each deeper level owns three
// physical tables whose roles (prev, next, pending) are tracked by a
// one-byte LevelState per level; compaction merges a level's prev table
// with the next level's readable table into that level's pending table,
// incrementally and in key order, then rotates roles instead of copying
// data. Readers see every level through a fan-out Cursor in which fresher
// levels shadow older copies of a key.
//
// Key features:
//   - LSM write amortization on a copy-on-write B-tree substrate
//   - Resumable, budgeted two-way merges
//   - Level rotations committed atomically with the owning transaction
//   - Forward and backward merged iteration with direction flips
//   - Size and write-count paced autocompaction
//
// Basic usage:
//
//	env, err := lsmdb.Open("/path/to/db", lsmdb.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer env.Close()
//
//	err = env.Update(func(txn *lsmdb.Txn) error {
//	    return txn.Put([]byte("key"), []byte("value"), 0)
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = env.View(func(txn *lsmdb.Txn) error {
//	    c, err := txn.OpenCursor()
//	    if err != nil {
//	        return err
//	    }
//	    defer c.Close()
//	    for k, v, err := c.First(lsmdb.Forward); err == nil; k, v, err = c.Next(lsmdb.Forward) {
//	        fmt.Printf("%s=%s\n", k, v)
//	    }
//	    return nil
//	})
package lsmdb
