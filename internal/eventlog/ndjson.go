package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/parlorgames/parlor/internal/parlor"
)

// NDJSONSink appends events to a newline-delimited JSON file, one record
// per line. A batch is buffered and written with a single flush so a crash
// mid-batch can truncate at most the last line; a partial line is tolerated
// by the reader and is never mixed with a later batch.
type NDJSONSink struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewNDJSONSink opens (or creates) the log file in append mode. If a
// previous process died mid-write and left a torn final line, a newline is
// appended first so the next batch never shares a line with it.
func NewNDJSONSink(path string) (*NDJSONSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}
	if err := sealTornLine(f); err != nil {
		f.Close()
		return nil, err
	}
	return &NDJSONSink{path: path, file: f}, nil
}

// sealTornLine terminates the file's last line if it lacks a newline.
func sealTornLine(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat event log: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("read event log tail: %w", err)
	}
	if last[0] != '\n' {
		if _, err := f.Write([]byte{'\n'}); err != nil {
			return fmt.Errorf("seal event log: %w", err)
		}
	}
	return nil
}

// Append writes the batch as one buffered write.
func (s *NDJSONSink) Append(_ context.Context, events []parlor.RoomEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := bufio.NewWriter(s.file)
	enc := json.NewEncoder(w) // Encode terminates each record with '\n'.
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("encode event %s: %w", ev.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush event log: %w", err)
	}
	return nil
}

// Read returns every durable event for a room, in append order. Lines that
// fail to parse (a truncated final line from a crash) are skipped.
func (s *NDJSONSink) Read(_ context.Context, mode parlor.Mode, roomID string) ([]parlor.RoomEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open event log %s: %w", s.path, err)
	}
	defer f.Close()

	var out []parlor.RoomEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev parlor.RoomEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue // tolerate a partial trailing line
		}
		if ev.Mode == mode && ev.RoomID == roomID {
			out = append(out, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("scan event log: %w", err)
	}
	return out, nil
}

// Close closes the underlying file.
func (s *NDJSONSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
