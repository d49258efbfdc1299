// Package guard flags the process as running under test so binaries linked
// into test programs skip their runtime startup. Test helpers import it for
// its side effect.
package guard

import (
	"os"
	"sync"
)

// Env is the variable read by app.InTestMode.
const Env = "PHARMAPROC_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(Env) == "" {
			_ = os.Setenv(Env, "1")
		}
	})
}
