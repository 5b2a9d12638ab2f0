package app

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

const testModeEnv = "INVOICE_TEST_MODE"

var (
	testMode     atomic.Bool
	testModeOnce sync.Once
)

// InTestMode reports whether binaries should return before opening
// connections. It holds inside test binaries and when INVOICE_TEST_MODE is a
// true boolean.
func InTestMode() bool {
	testModeOnce.Do(RefreshTestMode)
	return testMode.Load()
}

// RefreshTestMode re-reads the environment.
func RefreshTestMode() {
	enabled, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Store(enabled || testing.Testing())
}
