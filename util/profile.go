package util

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"path/filepath"
	runtimePprof "runtime/pprof"
	"time"

	loggerpkg "github.com/pengKiina/trainwatch/logger"
)

// MaybeStartPprof serves the pprof handlers on a side port when profiling
// is enabled via environment.
func MaybeStartPprof(logr loggerpkg.Logger) {
	if logr == nil {
		logr = loggerpkg.NewNop()
	}
	if !GetBoolEnv(ProfileEnable) {
		return
	}
	addr := GetEnv(ProfileAddr, DefaultProfileAddr)
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		logr.Info("pprof server listening", loggerpkg.F("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("pprof server error", loggerpkg.F("error", err))
		}
	}()
}

// WithProfiling runs the action while capturing CPU and heap profiles under
// dir. An empty dir falls back to the PROFILE_DIR environment variable.
func WithProfiling(dir, profileName string, logr loggerpkg.Logger, action func() error) error {
	if logr == nil {
		logr = loggerpkg.NewNop()
	}
	if dir == "" {
		dir = GetEnv(ProfileDir, DefaultProfileDir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create profiling dir: %w", err)
	}

	cpuPath := filepath.Join(dir, fmt.Sprintf("cpu_%s.prof", profileName))
	stopCPU, err := startCPUProfile(cpuPath)
	if err != nil {
		logr.Warn("cpu profiling disabled", loggerpkg.F("error", err))
		stopCPU = func() {}
	}
	defer stopCPU()

	start := time.Now()
	err = action()
	duration := time.Since(start)
	logr.Info("profiling completed", loggerpkg.F("profile", profileName), loggerpkg.F("duration", duration.String()))

	dumpProfile("heap", filepath.Join(dir, fmt.Sprintf("heap_%s.prof", profileName)), logr)
	dumpProfile("goroutine", filepath.Join(dir, fmt.Sprintf("goroutine_%s.prof", profileName)), logr)

	return err
}

func startCPUProfile(path string) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := runtimePprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		runtimePprof.StopCPUProfile()
		f.Close()
	}, nil
}

func dumpProfile(name, path string, logr loggerpkg.Logger) {
	prof := runtimePprof.Lookup(name)
	if prof == nil {
		logr.Warn("unknown profile", loggerpkg.F("profile", name))
		return
	}
	f, err := os.Create(path)
	if err != nil {
		logr.Error("cannot create profile file", loggerpkg.F("path", path), loggerpkg.F("error", err))
		return
	}
	defer f.Close()
	if err := prof.WriteTo(f, 0); err != nil {
		logr.Error("failed to write profile", loggerpkg.F("path", path), loggerpkg.F("error", err))
	}
}
