// Package testutil holds process-global isolation helpers shared by wakutest and the root
// package's own tests.
package testutil

import (
	"os"
	"sync"
	"testing"
)

var trackedEnv = []string{"WAKU_ENV", "APP_ENV"}

// WithIsolatedGlobals snapshots and restores WAKU_ENV/APP_ENV around fn, so a test toggling the
// active environment marker doesn't leak it to tests that run after.
func WithIsolatedGlobals(fn func()) {
	envSnapshot := map[string]*string{}
	for _, k := range trackedEnv {
		if v, ok := os.LookupEnv(k); ok {
			val := v
			envSnapshot[k] = &val
		} else {
			envSnapshot[k] = nil
		}
	}

	var mu sync.Mutex
	mu.Lock()
	defer mu.Unlock()

	defer func() {
		for k, v := range envSnapshot {
			if v == nil {
				_ = os.Unsetenv(k)
			} else {
				_ = os.Setenv(k, *v)
			}
		}
	}()

	fn()
}

// Isolate is the *testing.T-integrated form of WithIsolatedGlobals: it snapshots WAKU_ENV/APP_ENV
// and registers a t.Cleanup to restore them. Safe to call more than once in the same test —
// cleanups run LIFO, so the outermost snapshot wins last.
func Isolate(t *testing.T) {
	t.Helper()

	envSnapshot := map[string]*string{}
	for _, k := range trackedEnv {
		if v, ok := os.LookupEnv(k); ok {
			vCopy := v
			envSnapshot[k] = &vCopy
		} else {
			envSnapshot[k] = nil
		}
	}

	t.Cleanup(func() {
		for k, v := range envSnapshot {
			if v == nil {
				_ = os.Unsetenv(k)
			} else {
				_ = os.Setenv(k, *v)
			}
		}
	})
}
