// Package progress writes training-progress lines in the wire shape the
// search package scans.
package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	linePrefix = "progress log"
	delimiter  = " : "
	timeLayout = "2006-01-02 15:04:05"
)

// Fields is a progress payload about to be emitted.
type Fields map[string]any

// Emitter serializes progress records onto a writer, one line per record:
//
//	2021-01-01 00:00:00 INFO: progress log : {"current_iteration": 10}
type Emitter struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewEmitter writes progress lines to w.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w, now: time.Now}
}

// WithClock overrides the timestamp source, for deterministic output.
func (e *Emitter) WithClock(now func() time.Time) *Emitter {
	if now != nil {
		e.now = now
	}
	return e
}

// Emit writes one progress line carrying the given payload.
func (e *Emitter) Emit(fields Fields) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal progress payload: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	ts := e.now().UTC().Format(timeLayout)
	_, err = fmt.Fprintf(e.w, "%s INFO: %s%s%s\n", ts, linePrefix, delimiter, payload)
	if err != nil {
		return fmt.Errorf("write progress line: %w", err)
	}
	return nil
}

// EmitToFile appends one progress line to the log file at path, creating it
// and any parent directories as needed. The file handle is released before
// returning.
func EmitToFile(path string, fields Fields) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	return NewEmitter(f).Emit(fields)
}
