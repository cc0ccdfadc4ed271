package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("TOURBOOK_TEST_MODE", "1")
		if os.Getenv("JWT_SECRET") == "" {
			_ = os.Setenv("JWT_SECRET", "test-only-secret-0123456789abcdef")
		}
		if os.Getenv("USER_STORE") == "" {
			_ = os.Setenv("USER_STORE", "memory")
		}
		if os.Getenv("MAIL_DRIVER") == "" {
			_ = os.Setenv("MAIL_DRIVER", "log")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
