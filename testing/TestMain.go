// Package testing prepares a hermetic environment for package tests. Import it
// for its side effects.
package testing

import (
	"io"
	"log/slog"
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

// hermetic pins the variables LoadConfig reads so a developer's .env or shell
// cannot point tests at real services.
var hermetic = map[string]string{
	"INVOICE_TEST_MODE":      "1",
	"APP_ENV":                "test",
	"LOG_LEVEL":              "error",
	"ACTIVITY_BACKEND":       "postgres",
	"PDF_RENDERER":           "local",
	"GOTENBERG_URL":          "http://127.0.0.1:0",
	"IDENTITY_TOKENINFO_URL": "",
	"CHAIN_API_URL":          "",
	"SMTP_HOST":              "",
}

func ensureTestMode() {
	once.Do(func() {
		for key, value := range hermetic {
			_ = os.Setenv(key, value)
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain can be delegated to from a package's own TestMain.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}

// Logger returns a logger that drops everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
