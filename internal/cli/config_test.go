package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeTestConfig(t, `
version: "0.1.0"
server_url: desk.example.com/api
retries: 2
default_page_size: 50
`)
	require.NoError(t, LoadConfig(path))

	cfg := GetConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "https://desk.example.com/api", cfg.GetServerURL())
	assert.Equal(t, 2, cfg.GetDefaultRetries())
	assert.Equal(t, 50, cfg.DefaultPageSize)
}

func TestLoadConfigMissingServer(t *testing.T) {
	path := writeTestConfig(t, "version: \"0.1.0\"\n")
	err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ServerURL")
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("OPSDECK_SERVER_URL", "https://override.example.com/api")
	t.Setenv("OPSDECK_RETRIES", "3")

	path := writeTestConfig(t, "server_url: desk.example.com/api\n")
	require.NoError(t, LoadConfig(path))

	cfg := GetConfig()
	assert.Equal(t, "https://override.example.com/api", cfg.GetServerURL())
	assert.Equal(t, 3, cfg.GetDefaultRetries())
}

func TestMorphServer(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"desk.example.com", "https://desk.example.com"},
		{"http://localhost:8000/api/", "http://localhost:8000/api"},
		{"https://desk.example.com/api", "https://desk.example.com/api"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MorphServer(tt.in))
	}
}

func TestWriteConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := &Config{Version: "0.1.0", ServerURL: "https://desk.example.com/api", Retries: 1}
	require.NoError(t, cfg.WriteConfig(path))

	require.NoError(t, LoadConfig(path))
	assert.Equal(t, "https://desk.example.com/api", GetConfig().GetServerURL())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
