package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 4096, cfg.PagePool.PageBytes)
	assert.Equal(t, 1024, cfg.PagePool.HardCapMegaBytes)
	assert.Equal(t, "127.0.0.1:6544", cfg.Server.Addr)
	assert.Equal(t, time.Duration(0), cfg.WaitTimeout())
}

func TestWaitTimeout_ZeroWhenUnset(t *testing.T) {
	cfg := &KernelConfig{}
	assert.Equal(t, time.Duration(0), cfg.WaitTimeout())
}

func TestWaitTimeout_ConvertsMillis(t *testing.T) {
	cfg := &KernelConfig{}
	cfg.Worker.WaitTimeoutMS = 250
	assert.Equal(t, 250*time.Millisecond, cfg.WaitTimeout())
}

func TestLoad_ReadsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kernel.yaml")
	contents := `
pagepool:
  page_bytes: 8192
  hard_cap_megabytes: 512
worker:
  wait_timeout_ms: 500
server:
  addr: "0.0.0.0:9000"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8192, cfg.PagePool.PageBytes)
	assert.Equal(t, 512, cfg.PagePool.HardCapMegaBytes)
	assert.Equal(t, 500*time.Millisecond, cfg.WaitTimeout())
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
