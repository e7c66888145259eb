package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "ocamllsp", cfg.Server.Command)
	assert.Equal(t, "ocaml", cfg.Language)
	assert.Equal(t, ".mli", cfg.InterfaceExtension)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	content := `
server:
  command: my-lsp
  args: ["--stdio"]
  initialization_options:
    codelens:
      enable: false
language: reason
interface_extension: .rei
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "my-lsp", cfg.Server.Command)
	assert.Equal(t, []string{"--stdio"}, cfg.Server.Args)
	assert.Equal(t, "reason", cfg.Language)
	assert.Equal(t, ".rei", cfg.InterfaceExtension)
	assert.NotNil(t, cfg.Server.InitializationOptions)
}

func TestLoadConfigFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("language: ocaml\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "ocamllsp", cfg.Server.Command)
	assert.Equal(t, ".mli", cfg.InterfaceExtension)
}

func TestLoadConfigRejectsBadExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interface_extension: mli\n"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
