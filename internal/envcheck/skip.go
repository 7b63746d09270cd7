package envcheck

import (
	"context"
	"runtime"
	"testing"
)

// SkipUnlessNetwork skips the test when outbound network is unavailable.
func SkipUnlessNetwork(t testing.TB) {
	t.Helper()
	if !NetworkReachable(context.Background()) {
		t.Skip("network is not available")
	}
}

// SkipIfWindows skips the test on Windows.
func SkipIfWindows(t testing.TB) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("doesn't run on Windows")
	}
}

// SkipIfDarwin skips the test on macOS.
func SkipIfDarwin(t testing.TB) {
	t.Helper()
	if runtime.GOOS == "darwin" {
		t.Skip("doesn't run on macOS")
	}
}
