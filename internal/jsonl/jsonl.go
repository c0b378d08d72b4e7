// Package jsonl implements the append-only JSON-lines files shared by the
// audit log, the feedback log, and the queue event log. Appends within one
// process serialize through a per-writer mutex so concurrent writers never
// interleave partial lines.
package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Writer appends one JSON object per line to a log file, optionally
// partitioned by date as <base>_<YYYY-MM-DD>.<ext>.
type Writer struct {
	mu          sync.Mutex
	dir         string
	base        string
	ext         string
	partitioned bool
	now         func() time.Time
}

// NewWriter creates a date-partitioned JSONL writer.
func NewWriter(dir, base string) *Writer {
	return &Writer{dir: dir, base: base, ext: "jsonl", partitioned: true, now: time.Now}
}

// NewSingleFileWriter creates a writer that always appends to <base>.<ext>.
func NewSingleFileWriter(dir, base string) *Writer {
	w := NewWriter(dir, base)
	w.partitioned = false
	return w
}

// SetClock overrides the partition clock, for tests.
func (w *Writer) SetClock(now func() time.Time) { w.now = now }

// Filename returns the target file for the given instant.
func (w *Writer) Filename(t time.Time) string {
	if !w.partitioned {
		return filepath.Join(w.dir, w.base+"."+w.ext)
	}
	return filepath.Join(w.dir, fmt.Sprintf("%s_%s.%s", w.base, t.Format("2006-01-02"), w.ext))
}

// Append marshals v and appends it as one line. The write is atomic with
// respect to other Append calls on the same Writer.
func (w *Writer) Append(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("jsonl marshal: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return fmt.Errorf("jsonl mkdir: %w", err)
	}
	f, err := os.OpenFile(w.Filename(w.now()), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("jsonl open: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("jsonl write: %w", err)
	}
	return nil
}

// ForEach streams every line of every partition for the given base name in
// file order (partitions sorted by name, so by date). Malformed lines are
// skipped with a warning; consumers receive raw JSON and unmarshal themselves.
func ForEach(dir, base string, fn func(line []byte) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("jsonl read dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, base) || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	for _, path := range files {
		if err := forEachLine(path, fn); err != nil {
			return err
		}
	}
	return nil
}

func forEachLine(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("jsonl open %s: %w", path, err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !json.Valid([]byte(line)) {
			slog.Warn("skipping malformed log line", "file", path)
			continue
		}
		if err := fn([]byte(line)); err != nil {
			return err
		}
	}
	return sc.Err()
}
