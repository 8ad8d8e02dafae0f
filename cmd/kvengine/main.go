// Command kvengine is a thin CLI wrapper around the embedded storage
// engine, useful for manual inspection and scripting. It is not part
// of the engine's core API.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/nyasuto/kvengine/internal/kvengine"
	"github.com/nyasuto/kvengine/internal/segment"
)

func main() {
	dir := flag.String("dir", "./kvengine_data", "database directory")
	format := flag.String("format", "bsst", "database format: sorted, bsst, or lsm")
	memtableCap := flag.Int("memtable-capacity", 1000, "entries held before a flush")
	bufferpoolCap := flag.Int("bufferpool-capacity", 256, "pages cached by the buffer pool (0 disables caching)")
	bitsPerEntry := flag.Int64("bits-per-entry", segment.DefaultBitsPerEntry, "bloom filter bits per entry")
	help := flag.Bool("help", false, "show help message")
	flag.Parse()

	if *help {
		printUsage()
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	opts := kvengine.DefaultOptions()
	opts.MemtableCapacity = *memtableCap
	opts.BufferpoolCapacity = *bufferpoolCap
	opts.BitsPerEntry = *bitsPerEntry
	switch *format {
	case "sorted":
		opts.SegmentFormat = segment.Sorted
	case "bsst":
		opts.SegmentFormat = segment.BSST
	case "lsm":
		opts.SegmentFormat = segment.LSM
	default:
		log.Fatalf("unknown format %q: must be sorted, bsst, or lsm", *format)
	}

	db, err := kvengine.Open(*dir, opts)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Fatalf("closing database: %v", err)
		}
	}()

	if err := dispatch(db, args); err != nil {
		log.Fatalf("%v", err)
	}
}

func dispatch(db *kvengine.DB, args []string) error {
	command := args[0]
	rest := args[1:]

	switch command {
	case "put":
		if len(rest) != 2 {
			return fmt.Errorf("usage: kvengine put <key> <value>")
		}
		key, value, err := parsePair(rest[0], rest[1])
		if err != nil {
			return err
		}
		if err := db.Put(key, value); err != nil {
			return fmt.Errorf("put: %w", err)
		}
		fmt.Printf("stored %d = %d\n", key, value)

	case "get":
		if len(rest) != 1 {
			return fmt.Errorf("usage: kvengine get <key>")
		}
		key, err := parseKey(rest[0])
		if err != nil {
			return err
		}
		value, ok, err := db.Get(key)
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		if !ok {
			fmt.Println("not found")
			return nil
		}
		fmt.Println(value)

	case "scan":
		if len(rest) != 2 {
			return fmt.Errorf("usage: kvengine scan <lo> <hi>")
		}
		lo, hi, err := parsePair(rest[0], rest[1])
		if err != nil {
			return err
		}
		entries, err := db.Scan(lo, hi)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		for _, e := range entries {
			fmt.Printf("%d = %d\n", e.Key, e.Value)
		}

	case "del", "delete":
		if len(rest) != 1 {
			return fmt.Errorf("usage: kvengine del <key>")
		}
		key, err := parseKey(rest[0])
		if err != nil {
			return err
		}
		if err := db.Delete(key); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		fmt.Printf("deleted %d\n", key)

	case "update":
		if len(rest) != 2 {
			return fmt.Errorf("usage: kvengine update <key> <value>")
		}
		key, value, err := parsePair(rest[0], rest[1])
		if err != nil {
			return err
		}
		if err := db.Update(key, value); err != nil {
			return fmt.Errorf("update: %w", err)
		}
		fmt.Printf("updated %d = %d\n", key, value)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func parseKey(s string) (int64, error) {
	k, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid key %q: %w", s, err)
	}
	return k, nil
}

func parsePair(ks, vs string) (int64, int64, error) {
	k, err := parseKey(ks)
	if err != nil {
		return 0, 0, err
	}
	v, err := strconv.ParseInt(vs, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid value %q: %w", vs, err)
	}
	return k, v, nil
}

func printUsage() {
	fmt.Println("kvengine - an embedded, single-threaded LSM key-value store")
	fmt.Println()
	fmt.Println("Usage: kvengine [flags] <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  put <key> <value>     store a key-value pair")
	fmt.Println("  get <key>             look up a key")
	fmt.Println("  scan <lo> <hi>        list keys in [lo, hi]")
	fmt.Println("  del <key>             delete a key")
	fmt.Println("  update <key> <value>  overwrite a key (same as put)")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
