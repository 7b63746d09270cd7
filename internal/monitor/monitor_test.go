package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pengKiina/trainwatch/internal/domain"
	"github.com/pengKiina/trainwatch/internal/progress"
	loggerpkg "github.com/pengKiina/trainwatch/logger"
)

type fakeStore struct {
	mu      sync.Mutex
	saved   []domain.Record
	saveErr error
}

func (f *fakeStore) SaveRecords(ctx context.Context, records []domain.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, records...)
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []domain.Record
}

func (f *fakePublisher) Publish(ctx context.Context, records []domain.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, records...)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func newTestMonitor(t *testing.T, logFile string, store domain.Store, pub domain.Publisher, logr loggerpkg.Logger) *Monitor {
	t.Helper()
	m, err := New(Config{
		LogFile:   logFile,
		Interval:  time.Minute,
		Store:     store,
		Publisher: pub,
		Logger:    logr,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func emit(t *testing.T, path string, fields progress.Fields) {
	t.Helper()
	if err := progress.EmitToFile(path, fields); err != nil {
		t.Fatalf("emit progress line: %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{name: "missing log file", cfg: Config{Interval: time.Second}},
		{name: "non-positive interval", cfg: Config{LogFile: "train.log"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}

func TestRunOncePicksUpOnlyNewRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.log")
	store := &fakeStore{}
	pub := &fakePublisher{}
	m := newTestMonitor(t, path, store, pub, nil)

	emit(t, path, progress.Fields{"current_iteration": 10, "loss": 0.5})
	if err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
	if len(store.saved) != 1 || len(pub.published) != 1 {
		t.Fatalf("expected 1 record after first run, got store=%d pub=%d", len(store.saved), len(pub.published))
	}

	emit(t, path, progress.Fields{"current_iteration": 20, "loss": 0.3})
	if err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if len(store.saved) != 2 {
		t.Fatalf("expected 2 records after second run, got %d", len(store.saved))
	}
	if iter, _ := store.saved[1].Float("current_iteration"); iter != 20 {
		t.Fatalf("expected second record iteration 20, got %v", iter)
	}

	// Nothing new: a further run must not re-process old lines.
	if err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("third RunOnce: %v", err)
	}
	if len(store.saved) != 2 || len(pub.published) != 2 {
		t.Fatalf("idle run re-processed records: store=%d pub=%d", len(store.saved), len(pub.published))
	}
}

func TestRunOnceMissingFileIsNotAnError(t *testing.T) {
	m := newTestMonitor(t, filepath.Join(t.TempDir(), "absent.log"), &fakeStore{}, nil, nil)
	if err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce on missing file: %v", err)
	}
}

func TestRunOnceSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.log")
	content := "2021-01-01 00:00:00 INFO: progress log : {broken\n" +
		"2021-01-01 00:00:01 INFO: progress log : {\"current_iteration\": 20, \"loss\": 0.3}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log fixture: %v", err)
	}

	capture := loggerpkg.NewCapture()
	store := &fakeStore{}
	m := newTestMonitor(t, path, store, nil, capture)

	if err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected the well-formed record to survive, got %d", len(store.saved))
	}
	if !capture.Contains("warn", "skip malformed progress line") {
		t.Fatal("expected a warning for the malformed line")
	}
}

func TestRunOnceHoldsBackPartialLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.log")
	partial := "2021-01-01 00:00:00 INFO: progress log : {\"current_itera"
	if err := os.WriteFile(path, []byte(partial), 0o644); err != nil {
		t.Fatalf("write log fixture: %v", err)
	}

	store := &fakeStore{}
	m := newTestMonitor(t, path, store, nil, nil)
	if err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce with partial line: %v", err)
	}
	if len(store.saved) != 0 {
		t.Fatalf("partial line must not be processed, got %d records", len(store.saved))
	}

	// Complete the line and scan again.
	full := partial + "tion\": 10, \"loss\": 0.5}\n"
	if err := os.WriteFile(path, []byte(full), 0o644); err != nil {
		t.Fatalf("complete log fixture: %v", err)
	}
	if err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce after completion: %v", err)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected completed record, got %d", len(store.saved))
	}
}

func TestRunOnceHandlesRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.log")
	store := &fakeStore{}
	m := newTestMonitor(t, path, store, nil, nil)

	emit(t, path, progress.Fields{"current_iteration": 10})
	emit(t, path, progress.Fields{"current_iteration": 20})
	if err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce before rotation: %v", err)
	}

	// Rotate: replace the file with a shorter one.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove log: %v", err)
	}
	emit(t, path, progress.Fields{"current_iteration": 1})
	if err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce after rotation: %v", err)
	}

	if len(store.saved) != 3 {
		t.Fatalf("expected 3 records across rotation, got %d", len(store.saved))
	}
	if iter, _ := store.saved[2].Float("current_iteration"); iter != 1 {
		t.Fatalf("expected post-rotation iteration 1, got %v", iter)
	}
}

func TestRunOnceSurfacesStoreErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.log")
	emit(t, path, progress.Fields{"current_iteration": 10})

	store := &fakeStore{saveErr: errors.New("disk full")}
	m := newTestMonitor(t, path, store, nil, nil)
	if err := m.RunOnce(context.Background()); err == nil {
		t.Fatal("expected store error to surface")
	}
}

func TestLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.log")
	m := newTestMonitor(t, path, nil, nil, nil)

	if _, ok := m.Latest(); ok {
		t.Fatal("no latest record expected before any scan")
	}

	emit(t, path, progress.Fields{"current_iteration": 10, "loss": 0.5})
	emit(t, path, progress.Fields{"current_iteration": 20, "loss": 0.3})
	if err := m.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	rec, ok := m.Latest()
	if !ok {
		t.Fatal("expected a latest record")
	}
	if iter, _ := rec.Float("current_iteration"); iter != 20 {
		t.Fatalf("expected latest iteration 20, got %v", iter)
	}

	// Mutating the returned record must not affect the monitor's copy.
	rec["current_iteration"] = float64(999)
	again, _ := m.Latest()
	if iter, _ := again.Float("current_iteration"); iter != 20 {
		t.Fatal("Latest must return a copy")
	}
}

func TestStartScansPeriodically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.log")
	store := &fakeStore{}
	m, err := New(Config{
		LogFile:  path,
		Interval: 10 * time.Millisecond,
		Store:    store,
		Logger:   loggerpkg.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	emit(t, path, progress.Fields{"current_iteration": 10})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		n := len(store.saved)
		store.mu.Unlock()
		if n == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("monitor never archived the record, saved=%d", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
}
