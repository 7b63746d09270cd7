// Package search locates structured progress records inside training log
// files. Trainers emit progress lines of the form
//
//	2021-01-01 00:00:00 INFO: progress log : {"current_iteration": 10, "loss": 0.5}
//
// and tests assert on training behaviour by searching those lines for the
// first record satisfying a set of conditions.
package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pengKiina/trainwatch/internal/domain"
)

const (
	// Marker tags a log line as carrying a structured progress payload.
	Marker = "progress"
	// Delimiter separates the human-readable prefix from the JSON payload.
	Delimiter = " : "
)

// ErrNoMatch reports that no progress record satisfied every condition.
var ErrNoMatch = errors.New("no progress record matched the search conditions")

// ParseError reports a marker-tagged line that could not be decoded. The
// search aborts on the first such line; malformed progress lines are never
// skipped.
type ParseError struct {
	Line int // 1-based line number in the log file
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse progress line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errMissingDelimiter = errors.New(`missing " : " delimiter`)

// Condition tests one requirement against a decoded progress record.
type Condition func(domain.Record) bool

// Searcher scans log files for progress records. The zero value is not
// usable; use NewSearcher.
type Searcher struct {
	marker    string
	delimiter string
}

// NewSearcher returns a Searcher using the standard progress marker and
// payload delimiter.
func NewSearcher() *Searcher {
	return &Searcher{marker: Marker, delimiter: Delimiter}
}

// Search returns the first record in file order whose payload satisfies
// every condition. An empty condition set matches the first progress line.
//
// The file is read fully and closed before any line is examined. Errors are
// one of three kinds: a wrapped I/O error from reading the file, a
// *ParseError for a malformed progress line, or ErrNoMatch when the scan
// completes without a satisfying record.
func (s *Searcher) Search(logFile string, conditions ...Condition) (domain.Record, error) {
	data, err := os.ReadFile(logFile)
	if err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, s.marker) {
			continue
		}

		idx := strings.Index(line, s.delimiter)
		if idx < 0 {
			return nil, &ParseError{Line: i + 1, Err: errMissingDelimiter}
		}
		payload := line[idx+len(s.delimiter):]

		var rec domain.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, &ParseError{Line: i + 1, Err: err}
		}

		if satisfiesAll(rec, conditions) {
			return rec, nil
		}
	}

	return nil, ErrNoMatch
}

func satisfiesAll(rec domain.Record, conditions []Condition) bool {
	for _, cond := range conditions {
		if !cond(rec) {
			return false
		}
	}
	return true
}

// Search runs a one-shot search with the default Searcher.
func Search(logFile string, conditions ...Condition) (domain.Record, error) {
	return NewSearcher().Search(logFile, conditions...)
}
