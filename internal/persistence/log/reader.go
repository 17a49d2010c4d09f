package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"polardrop.dev/internal/sim/world"
)

// EventFiles lists the events-*.jsonl.zst files in dir in write order.
func EventFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "events-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	// Hour stamps are zero-padded so lexical order is chronological.
	sort.Strings(files)
	return files, nil
}

// ReadTicks decodes every tick entry in dir's event files and calls fn in
// order. fn returning an error stops the scan.
func ReadTicks(dir string, fn func(world.TickLogEntry) error) error {
	files, err := EventFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no event files in %s", dir)
	}
	for _, path := range files {
		if err := readTickFile(path, fn); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func readTickFile(path string, fn func(world.TickLogEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	return scanTicks(dec, fn)
}

func scanTicks(r io.Reader, fn func(world.TickLogEntry) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e world.TickLogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}
