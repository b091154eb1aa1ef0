package bus

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures the Task.Run goroutine spawned by each test has
// exited before the test binary exits.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("sync.runtime_Semacquire"),
	)
}
