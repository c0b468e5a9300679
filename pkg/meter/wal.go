package meter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// WAL is a local append-only write-ahead log for meter events. Emit never
// blocks on the relational store (spec.md §4.C); append is serialised by a
// per-process mutex, matching the "single writer lock" requirement in §5.
type WAL struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewWAL opens (creating if absent) a WAL file at path.
func NewWAL(path string, logger *slog.Logger) (*WAL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating WAL directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening WAL file: %w", err)
	}
	_ = f.Close()
	return &WAL{path: path, logger: logger}, nil
}

// Append writes one JSON line to the WAL and returns. Cost: one open +
// write + close per call, acceptable because the hot path never touches
// the network (spec.md §5); fsync is not forced per line — durability is
// per-batch, backstopped by the DLQ (see SPEC_FULL.md open question).
func (w *WAL) Append(e Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening WAL for append: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending to WAL: %w", err)
	}
	return nil
}

// Snapshot reads all currently-present lines and the byte offset marking
// the end of this snapshot. Lines appended after Snapshot returns are not
// included and must remain in the WAL after Compact (spec.md §4.C
// concurrency note: emits during a flush must survive the rewrite).
func (w *WAL) Snapshot() ([]Event, int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening WAL for read: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stating WAL: %w", err)
	}
	offset := info.Size()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			w.logger.Warn("skipping malformed WAL line", "error", err)
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("scanning WAL: %w", err)
	}

	return events, offset, nil
}

// Compact rewrites the WAL, keeping only the bytes beyond upToOffset (the
// tail written by concurrent emits during the flush) plus any lines in
// keep (events that failed to flush and must be retried). Uses
// write-temp-then-rename so a crash mid-compaction never corrupts the WAL
// (spec.md §6).
func (w *WAL) Compact(upToOffset int64, keep []Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		return fmt.Errorf("opening WAL for compaction read: %w", err)
	}

	tail := make([]byte, 0)
	if info, statErr := f.Stat(); statErr == nil && info.Size() > upToOffset {
		tail = make([]byte, info.Size()-upToOffset)
		if _, err := f.ReadAt(tail, upToOffset); err != nil {
			f.Close()
			return fmt.Errorf("reading WAL tail: %w", err)
		}
	}
	f.Close()

	tmpPath := w.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating temp WAL: %w", err)
	}

	for _, e := range keep {
		line, err := json.Marshal(e)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("marshalling retained event: %w", err)
		}
		if _, err := tmp.Write(append(line, '\n')); err != nil {
			tmp.Close()
			return fmt.Errorf("writing retained event: %w", err)
		}
	}
	if _, err := tmp.Write(tail); err != nil {
		tmp.Close()
		return fmt.Errorf("writing WAL tail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp WAL: %w", err)
	}

	if err := os.Rename(tmpPath, w.path); err != nil {
		return fmt.Errorf("renaming temp WAL into place: %w", err)
	}
	return nil
}

// DLQ is the append-only dead-letter queue for events that exceeded the
// flush retry limit.
type DLQ struct {
	path string
	mu   sync.Mutex
}

// NewDLQ opens (creating if absent) a DLQ file at path.
func NewDLQ(path string) (*DLQ, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating DLQ directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening DLQ file: %w", err)
	}
	_ = f.Close()
	return &DLQ{path: path}, nil
}

// Append writes one dead-lettered event to the DLQ.
func (d *DLQ) Append(e Event, cause error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := os.OpenFile(d.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening DLQ for append: %w", err)
	}
	defer f.Close()

	dle := DeadLetterEvent{
		Event:        e,
		DLQTimestamp: time.Now().UTC(),
		DLQError:     cause.Error(),
		DLQRetries:   e.Retries,
	}
	line, err := json.Marshal(dle)
	if err != nil {
		return fmt.Errorf("marshalling dead-letter event: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending to DLQ: %w", err)
	}
	return nil
}
