package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Giulio2002/lsmdb"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "put":
		err = putCmd(args)
	case "get":
		err = getCmd(args)
	case "del":
		err = delCmd(args)
	case "scan":
		err = scanCmd(args)
	case "compact":
		err = compactCmd(args)
	case "autocompact":
		err = autocompactCmd(args)
	case "stat":
		err = statCmd(args)
	case "bench":
		err = benchCmd(args)
	case "version":
		fmt.Println(lsmdb.Version())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`lsmdb - LSM store on mdbx or bbolt

Usage:
  lsmdb <command> [options] [args]

Commands:
  put          Write a key
  get          Read a key
  del          Delete a key
  scan         List keys in order
  compact      Merge one level into the next
  autocompact  Run the autocompaction scheduler once
  stat         Show level states and table sizes
  bench        Write keys while concurrent readers scan
  version      Print version
  help         Show this help

Common options:
  -db      store directory (default ./lsmdb-data)
  -config  YAML options file
  -v       debug logging

Examples:
  lsmdb put -db /tmp/lsm hello world
  lsmdb scan -db /tmp/lsm -reverse -limit 10
  lsmdb compact -db /tmp/lsm -level 1 -steps 1000
  lsmdb bench -db /tmp/lsm -n 100000 -readers 4`)
}

type common struct {
	db      *string
	config  *string
	verbose *bool
}

func newFlagSet(name string) (*flag.FlagSet, common) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return fs, common{
		db:      fs.String("db", "./lsmdb-data", "Store directory"),
		config:  fs.String("config", "", "YAML options file"),
		verbose: fs.Bool("v", false, "Debug logging"),
	}
}

func (c common) open() (*lsmdb.Env, *zap.Logger, error) {
	var (
		log *zap.Logger
		err error
	)
	if *c.verbose {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, err
	}

	opts := lsmdb.DefaultOptions()
	if *c.config != "" {
		if opts, err = lsmdb.LoadOptions(*c.config); err != nil {
			return nil, nil, err
		}
	}
	opts.Logger = log

	env, err := lsmdb.Open(*c.db, opts)
	if err != nil {
		return nil, nil, err
	}
	return env, log, nil
}

func putCmd(args []string) error {
	fs, c := newFlagSet("put")
	noOverwrite := fs.Bool("no-overwrite", false, "Fail if the key exists")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("put needs <key> <value>")
	}
	env, log, err := c.open()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer env.Close()

	flags := lsmdb.Upsert
	if *noOverwrite {
		flags = lsmdb.NoOverwrite
	}
	return env.Update(func(txn *lsmdb.Txn) error {
		return txn.Put([]byte(fs.Arg(0)), []byte(fs.Arg(1)), flags)
	})
}

func getCmd(args []string) error {
	fs, c := newFlagSet("get")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("get needs <key>")
	}
	env, log, err := c.open()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer env.Close()

	return env.View(func(txn *lsmdb.Txn) error {
		v, err := txn.Get([]byte(fs.Arg(0)))
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", v)
		return nil
	})
}

func delCmd(args []string) error {
	fs, c := newFlagSet("del")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("del needs <key>")
	}
	env, log, err := c.open()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer env.Close()

	return env.Update(func(txn *lsmdb.Txn) error {
		return txn.Del([]byte(fs.Arg(0)))
	})
}

func scanCmd(args []string) error {
	fs, c := newFlagSet("scan")
	reverse := fs.Bool("reverse", false, "Scan in descending key order")
	from := fs.String("from", "", "Start key (inclusive)")
	limit := fs.Int("limit", 0, "Maximum entries (0 for all)")
	fs.Parse(args)

	env, log, err := c.open()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer env.Close()

	dir := lsmdb.Forward
	if *reverse {
		dir = lsmdb.Backward
	}
	return env.View(func(txn *lsmdb.Txn) error {
		cur, err := txn.OpenCursor()
		if err != nil {
			return err
		}
		defer cur.Close()

		var k, v []byte
		if *from != "" {
			k, v, err = cur.Seek([]byte(*from), dir)
		} else {
			k, v, err = cur.First(dir)
		}
		for n := 0; err == nil && (*limit == 0 || n < *limit); n++ {
			fmt.Printf("%s\t%s\n", k, v)
			k, v, err = cur.Next(dir)
		}
		if err != nil && !lsmdb.IsNotFound(err) {
			return err
		}
		return nil
	})
}

func compactCmd(args []string) error {
	fs, c := newFlagSet("compact")
	level := fs.Int("level", 0, "Source level")
	steps := fs.Uint64("steps", 0, "Entry budget (0 for a full merge)")
	fs.Parse(args)

	env, log, err := c.open()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer env.Close()

	var res lsmdb.CompactResult
	err = env.Update(func(txn *lsmdb.Txn) error {
		var err error
		res, err = txn.Compact(*level, *steps)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Printf("level %d: %d entries merged, done=%t\n", res.Level, res.Steps, res.Done)
	return nil
}

func autocompactCmd(args []string) error {
	fs, c := newFlagSet("autocompact")
	fs.Parse(args)

	env, log, err := c.open()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer env.Close()

	return env.Update(func(txn *lsmdb.Txn) error {
		return txn.Autocompact()
	})
}

func statCmd(args []string) error {
	fs, c := newFlagSet("stat")
	fs.Parse(args)

	env, log, err := c.open()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer env.Close()

	return printStats(env)
}

func printStats(env *lsmdb.Env) error {
	return env.View(func(txn *lsmdb.Txn) error {
		fmt.Printf("%-6s %-6s %10s %10s %10s\n", "LEVEL", "STATE", "PREV", "NEXT", "PENDING")
		for level := 0; level < lsmdb.LevelMax; level++ {
			st, err := txn.Stat(level)
			if err != nil {
				return err
			}
			if level > 0 && st.State == lsmdb.StateNil {
				continue
			}
			state := st.State.String()
			if level == 0 {
				state = "write"
			}
			fmt.Printf("%-6d %-6s %10d %10d %10d\n", level, state, st.Prev, st.Next, st.Pending)
		}
		return nil
	})
}

func benchCmd(args []string) error {
	fs, c := newFlagSet("bench")
	n := fs.Int("n", 100000, "Keys to write")
	batch := fs.Int("batch", 100, "Puts per write transaction")
	readers := fs.Int("readers", 2, "Concurrent scanning readers")
	fs.Parse(args)
	if *batch <= 0 {
		return fmt.Errorf("-batch must be positive")
	}

	env, log, err := c.open()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer env.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	start := time.Now()
	g.Go(func() error {
		defer cancel()
		for i := 0; i < *n; i += *batch {
			err := env.Update(func(txn *lsmdb.Txn) error {
				for j := i; j < i+*batch && j < *n; j++ {
					// spread keys over the key space
					k := fmt.Sprintf("bench%010d", (uint64(j)*2654435761)%uint64(*n))
					if err := txn.Put([]byte(k), []byte(k), lsmdb.Upsert); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		log.Info("writer finished", zap.Int("keys", *n), zap.Duration("elapsed", time.Since(start)))
		return nil
	})

	scans := make([]int, *readers)
	for r := 0; r < *readers; r++ {
		g.Go(func() error {
			for ctx.Err() == nil {
				err := env.View(func(txn *lsmdb.Txn) error {
					cur, err := txn.OpenCursor()
					if err != nil {
						return err
					}
					defer cur.Close()
					var prev []byte
					k, _, err := cur.First(lsmdb.Forward)
					for ; err == nil; k, _, err = cur.Next(lsmdb.Forward) {
						if prev != nil && txn.Cmp(prev, k) >= 0 {
							return fmt.Errorf("scan out of order at %q", k)
						}
						prev = append(prev[:0], k...)
					}
					if !lsmdb.IsNotFound(err) {
						return err
					}
					return nil
				})
				if err != nil {
					return err
				}
				scans[r]++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)
	total := 0
	for _, s := range scans {
		total += s
	}
	fmt.Printf("wrote %d keys in %v (%.0f puts/s), %d full scans by %d readers\n",
		*n, elapsed, float64(*n)/elapsed.Seconds(), total, *readers)
	return printStats(env)
}
