// Package testing switches the process into test mode when imported and
// fills in the configuration a test binary needs to call app.LoadConfig.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var testEnv = map[string]string{
	"TALLY_TEST_MODE":             "1",
	"TOKEN_SECRET":                "test-signing-secret",
	"SESSION_DEFAULT_TIMEOUT_MIN": "30",
	"LOG_FORMAT":                  "json",
}

var once sync.Once

func ensureTestEnv() {
	once.Do(func() {
		for key, value := range testEnv {
			if key == "TALLY_TEST_MODE" || os.Getenv(key) == "" {
				_ = os.Setenv(key, value)
			}
		}
	})
}

func init() {
	ensureTestEnv()
}

// TestMain lets packages delegate their TestMain here.
func TestMain(m *stdtesting.M) {
	ensureTestEnv()
	os.Exit(m.Run())
}
