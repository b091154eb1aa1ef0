package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, DefaultBindAddr, cfg.Network.BindAddr)
	assert.Equal(t, DefaultStagingByteBudget, cfg.Staging.ByteBudget)
	assert.Equal(t, DefaultAdmissionP, cfg.Store.AdmissionP)
	assert.Equal(t, int64(DefaultDictionaryThresholdBytes), cfg.Store.DictionaryThresholdBytes)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.kdl"))
	require.NoError(t, err)
	assert.Equal(t, DefaultBindAddr, cfg.Network.BindAddr)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestMergeKDLOverridesNetworkAndStaging(t *testing.T) {
	kdlContent := `
network {
    bind "0.0.0.0:9000"
}
staging {
    byte_budget "16MiB"
    sort_pointer "/ts"
}
store {
    admission_p 0.8
    dictionary_threshold "64MiB"
}
`
	cfg := defaultConfig()
	require.NoError(t, mergeKDL(cfg, kdlContent))

	assert.Equal(t, "0.0.0.0:9000", cfg.Network.BindAddr)
	assert.Equal(t, int64(16*1024*1024), cfg.Staging.ByteBudget)
	assert.Equal(t, "/ts", cfg.Staging.SortPointer)
	assert.Equal(t, 0.8, cfg.Store.AdmissionP)
	assert.Equal(t, int64(64*1024*1024), cfg.Store.DictionaryThresholdBytes)
}

func TestMergeKDLPartialLeavesDefaults(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, mergeKDL(cfg, `store { admission_p 0.9 }`))

	assert.Equal(t, 0.9, cfg.Store.AdmissionP)
	assert.Equal(t, DefaultBindAddr, cfg.Network.BindAddr)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docstream.kdl")
	require.NoError(t, os.WriteFile(path, []byte(`
network {
    bind "127.0.0.1:8001"
}
performance {
    command_channel_capacity 256
    metrics_interval_ms 50
}
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8001", cfg.Network.BindAddr)
	assert.Equal(t, 256, cfg.Performance.CommandChannelCapacity)
	assert.Equal(t, 50, cfg.Performance.MetricsIntervalMs)
}

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"1024":  1024,
		"1KB":   1024,
		"1KiB":  1024,
		"2MB":   2 * 1024 * 1024,
		"1GiB":  1024 * 1024 * 1024,
		"10B":   10,
	}
	for input, want := range cases {
		got, err := parseSize(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
}
