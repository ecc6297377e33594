package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Endpoint string `json:"endpoint"`
	Throttle int    `json:"throttle"`
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json5")
	err := os.WriteFile(path, []byte(`{
		// comments are allowed
		endpoint: "https://example.com",
		throttle: 2,
	}`), 0o644)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](path)
	require.NoError(t, err)
	require.Equal(t, testConfig{Endpoint: "https://example.com", Throttle: 2}, cfg)
}

func TestReadConfigLocalOverride(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "test.json5"), []byte(`{
		endpoint: "https://example.com",
		throttle: 2,
	}`), 0o644)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(dir, "test.local.json5"), []byte(`{
		throttle: 9,
	}`), 0o644)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "test.json5"))
	require.NoError(t, err)
	require.Equal(t, "https://example.com", cfg.Endpoint)
	require.Equal(t, 9, cfg.Throttle)
}

func TestReadConfigOnlyLocal(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "test.local.json5"), []byte(`{
		endpoint: "https://local.example.com",
	}`), 0o644)
	require.NoError(t, err)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "test.json5"))
	require.NoError(t, err)
	require.Equal(t, "https://local.example.com", cfg.Endpoint)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "absent.json5"))
	require.True(t, os.IsNotExist(err))
}
