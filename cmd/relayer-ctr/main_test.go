package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/agent"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := loadConfig(filepath.Join(dir, "missing.toml"), false)
	require.NoError(t, err)
	assert.Equal(t, agent.DefaultImage, cfg.Image)
	assert.Empty(t, cfg.DataDir)

	_, err = loadConfig(filepath.Join(dir, "missing.toml"), true)
	assert.Error(t, err, "an explicitly named file must exist")

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("data-dir = \"/var/lib/relayer\"\ncontainer-id = \"relayer-test\"\n"), 0600))
	cfg, err = loadConfig(path, false)
	require.NoError(t, err)
	assert.Equal(t, "relayer-test", cfg.ContainerID)
}

func TestSetConfigRejectsInvalidRelayChains(t *testing.T) {
	app := newApp()
	app.Writer = &strings.Builder{}
	err := app.Run([]string{"relayer-ctr", "set-config", "--socket", filepath.Join(t.TempDir(), "none.sock"), "--relay-chains", "ethereum"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least two chains")
}
