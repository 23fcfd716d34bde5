package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()
	require.Equal(t, "http://127.0.0.1:8080", cfg.ServerEndpointAddr)
	require.Equal(t, 5*time.Minute, cfg.RequestTimeout)
}

func TestParseJson(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server_endpoint_addr":"http://example.test","request_timeout":"30s"}`), 0o600))

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"cli", "-c", path}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)

	require.Equal(t, "http://example.test", cfg.ServerEndpointAddr)
	require.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestParseFlags(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"cli", "-a", "http://flag.test", "-t", "45"}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFlags(cfg)

	require.Equal(t, "http://flag.test", cfg.ServerEndpointAddr)
	require.Equal(t, 45*time.Second, cfg.RequestTimeout)
}
