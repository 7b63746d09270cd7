// Package storage archives observed progress records as NDJSON, either on
// the local filesystem or in MinIO-compatible object storage.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pengKiina/trainwatch/internal/domain"
	loggerpkg "github.com/pengKiina/trainwatch/logger"
)

const (
	dateLayout  = "2006-01-02"
	archiveName = "progress.ndjson"
)

// FileStore appends progress records to a dated NDJSON archive on disk.
type FileStore struct {
	baseDir string
	logger  loggerpkg.Logger
	now     func() time.Time

	mu        sync.Mutex
	fileLocks map[string]*sync.Mutex
}

// NewFileStore returns a file-backed Store rooted at baseDir.
func NewFileStore(baseDir string, logr loggerpkg.Logger) *FileStore {
	if logr == nil {
		logr = loggerpkg.NewNop()
	}
	return &FileStore{
		baseDir:   baseDir,
		logger:    logr,
		now:       time.Now,
		fileLocks: make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the archive-dating clock, for deterministic tests.
func (s *FileStore) WithClock(now func() time.Time) *FileStore {
	if now != nil {
		s.now = now
	}
	return s
}

// SaveRecords appends the records to today's archive file.
func (s *FileStore) SaveRecords(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	day := s.now().UTC().Format(dateLayout)
	path := filepath.Join(s.baseDir, day, archiveName)
	if err := s.appendRecords(path, records); err != nil {
		return err
	}
	s.logger.Debug("archived progress records",
		loggerpkg.F("path", path),
		loggerpkg.F("count", len(records)))
	return nil
}

func (s *FileStore) appendRecords(path string, records []domain.Record) error {
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open archive file: %w", err)
	}
	defer file.Close()

	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal progress record: %w", err)
		}
		if _, err := file.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("write progress record: %w", err)
		}
	}
	return nil
}

func (s *FileStore) lockFor(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.fileLocks[path]
	if !ok {
		lock = &sync.Mutex{}
		s.fileLocks[path] = lock
	}
	return lock
}
