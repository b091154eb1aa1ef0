package podtail

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/docstream/internal/bus"
)

func TestEnvelopeWrapsPlainText(t *testing.T) {
	got := envelope("nginx-0", "connection refused")
	require.JSONEq(t, `{"pod":"nginx-0","log":"connection refused"}`, string(got))
}

func TestEnvelopePassesThroughJSON(t *testing.T) {
	got := envelope("nginx-0", `{"level":"error","msg":"boom"}`)
	require.JSONEq(t, `{"level":"error","msg":"boom"}`, string(got))
}

func TestStartTailsAppendedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	commands := make(chan bus.Command, 16)
	stop, err := Start(path, commands)
	require.NoError(t, err)
	defer stop()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("boot complete\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case cmd := <-commands:
		require.Equal(t, bus.Insert, cmd.Kind)
		require.JSONEq(t, `{"pod":"app.log","log":"boot complete"}`, string(cmd.InsertBody))
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for tailed line")
	}
}
