package app

import (
	"os"
	"sync"
)

const testModeEnv = "TOURBOOK_TEST_MODE"

// InTestMode reports whether the application should skip runtime side
// effects. The flag is read once per process.
var InTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})
