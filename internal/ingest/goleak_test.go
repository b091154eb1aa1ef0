package ingest

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures the accept loop and per-connection goroutines spawned
// by each test have exited before the test binary exits.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("sync.runtime_Semacquire"),
	)
}
