// Package monitor follows a live training log, turning newly appended
// progress records into metrics, archive writes, and published events.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pengKiina/trainwatch/internal/domain"
	"github.com/pengKiina/trainwatch/internal/metrics"
	"github.com/pengKiina/trainwatch/internal/search"
	loggerpkg "github.com/pengKiina/trainwatch/logger"
)

// Config assembles a Monitor.
type Config struct {
	LogFile   string
	Interval  time.Duration
	Store     domain.Store
	Publisher domain.Publisher
	Logger    loggerpkg.Logger
}

// Monitor periodically rescans the training log for progress records
// appended since the previous run. Unlike the one-shot search, a malformed
// progress line is logged and skipped: a live log may be mid-write and the
// monitor must keep following it.
type Monitor struct {
	logFile   string
	interval  time.Duration
	store     domain.Store
	publisher domain.Publisher
	logger    loggerpkg.Logger

	mu        sync.Mutex
	seenLines int
	latest    domain.Record
}

// New builds a Monitor from the config.
func New(cfg Config) (*Monitor, error) {
	if strings.TrimSpace(cfg.LogFile) == "" {
		return nil, errors.New("monitor log file is required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("monitor interval must be positive")
	}
	logr := cfg.Logger
	if logr == nil {
		logr = loggerpkg.NewNop()
	}
	return &Monitor{
		logFile:   cfg.LogFile,
		interval:  cfg.Interval,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		logger:    logr,
	}, nil
}

// Start launches the periodic scan loop until the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		// Run immediately once at startup.
		m.runOnce(ctx)

		for {
			select {
			case <-ticker.C:
				m.runOnce(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Monitor) runOnce(ctx context.Context) {
	if err := m.RunOnce(ctx); err != nil {
		m.logger.Error("monitor run failed", loggerpkg.F("error", err))
	}
	metrics.IncMonitorRuns()
}

// RunOnce scans the log once, processing any progress records past the
// high-water mark of the previous run.
func (m *Monitor) RunOnce(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	data, err := os.ReadFile(m.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			// The trainer may not have produced output yet.
			m.logger.Debug("training log not present yet", loggerpkg.F("path", m.logFile))
			return nil
		}
		return fmt.Errorf("read training log: %w", err)
	}

	records := m.collectNewRecords(string(data))
	if len(records) == 0 {
		return nil
	}

	m.observe(records)

	if m.store != nil {
		if err := m.store.SaveRecords(ctx, records); err != nil {
			return fmt.Errorf("archive progress records: %w", err)
		}
	}
	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, records); err != nil {
			return fmt.Errorf("publish progress records: %w", err)
		}
	}
	return nil
}

// collectNewRecords parses progress records from lines beyond the previous
// high-water mark and advances it.
func (m *Monitor) collectNewRecords(content string) []domain.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines := strings.Split(content, "\n")
	// The final element is either the empty string after the last newline
	// or a partially written line; neither is a complete line yet.
	complete := len(lines) - 1

	if complete < m.seenLines {
		// Truncated or rotated; start over.
		m.logger.Warn("training log shrank, rescanning from the top",
			loggerpkg.F("path", m.logFile))
		m.seenLines = 0
	}

	var records []domain.Record
	for i := m.seenLines; i < complete; i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.Contains(line, search.Marker) {
			continue
		}
		idx := strings.Index(line, search.Delimiter)
		if idx < 0 {
			metrics.IncParseFailures()
			m.logger.Warn("skip progress line without delimiter", loggerpkg.F("line", i+1))
			continue
		}
		var rec domain.Record
		if err := json.Unmarshal([]byte(line[idx+len(search.Delimiter):]), &rec); err != nil {
			metrics.IncParseFailures()
			m.logger.Warn("skip malformed progress line",
				loggerpkg.F("line", i+1), loggerpkg.F("error", err))
			continue
		}
		records = append(records, rec)
	}
	m.seenLines = complete

	if len(records) > 0 {
		m.latest = records[len(records)-1].Clone()
	}
	return records
}

func (m *Monitor) observe(records []domain.Record) {
	metrics.AddRecordsObserved(len(records))
	last := records[len(records)-1]
	if iter, ok := last.Float("current_iteration"); ok {
		metrics.SetLatestIteration(iter)
	}
	if loss, ok := last.Float("loss"); ok {
		metrics.SetLatestLoss(loss)
	}
	m.logger.Info("observed progress records",
		loggerpkg.F("count", len(records)),
		loggerpkg.F("path", m.logFile))
}

// Latest returns the most recent progress record the monitor has seen.
func (m *Monitor) Latest() (domain.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		return nil, false
	}
	return m.latest.Clone(), true
}
