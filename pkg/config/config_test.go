package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/agent"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/engine"
)

func TestParseDefaults(t *testing.T) {
	c, err := Parse([]byte(`data-dir = "/var/lib/relayer"`))
	assert.NilError(t, err)

	assert.Equal(t, c.DataDir, "/var/lib/relayer")
	assert.Equal(t, c.ContainerdSocket, engine.DefaultSocket)
	assert.Equal(t, c.Image, agent.DefaultImage)
	assert.Equal(t, c.ContainerID, agent.DefaultContainerID)
	assert.Equal(t, c.JobSocket, DefaultJobSocket)
	assert.Equal(t, c.SettleDuration(), 20*time.Second)
	assert.Equal(t, c.StopDuration(), engine.DefaultStopTimeout)
	assert.Assert(t, c.ResumeEnabled())
	assert.Assert(t, !c.JSONLogs())
	assert.Equal(t, c.Test.Network, "")
}

func TestParseFull(t *testing.T) {
	c, err := Parse([]byte(`
data-dir = "/var/lib/relayer"
keystore = "/etc/relayer-ctr/signer.key"
image = "777777777777.dkr.ecr.us-west-2.amazonaws.com/hyperlane-agent:v1"
metrics-address = "127.0.0.1:9090"
settle-window = "5s"
log-format = "json"
resume = false

[test]
network = "hyperlane_relayer_test_net"

[registry.mirrors."gcr.io"]
endpoints = ["mirror.example.com", "localhost"]
`))
	assert.NilError(t, err)

	assert.Equal(t, c.Keystore, "/etc/relayer-ctr/signer.key")
	assert.Equal(t, c.MetricsAddress, "127.0.0.1:9090")
	assert.Equal(t, c.SettleDuration(), 5*time.Second)
	assert.Assert(t, c.JSONLogs())
	assert.Assert(t, !c.ResumeEnabled())
	assert.Equal(t, c.Test.Network, "hyperlane_relayer_test_net")
	assert.Equal(t, c.Test.CNIConfDir, engine.DefaultCNIConfDir)
	assert.DeepEqual(t, c.Registry.Mirrors["gcr.io"].Endpoints, []string{"mirror.example.com", "localhost"})
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		err  string
	}{
		{"missing data dir", `image = "busybox"`, "data-dir must be provided"},
		{"relative data dir", `data-dir = "data"`, "must be an absolute path"},
		{"bad settle window", "data-dir = \"/d\"\nsettle-window = \"soon\"", "invalid settle-window"},
		{"negative stop timeout", "data-dir = \"/d\"\nstop-timeout = \"-1s\"", "must not be negative"},
		{"bad log format", "data-dir = \"/d\"\nlog-format = \"xml\"", "log-format"},
		{"bad toml", `data-dir = `, "unable to parse config"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw))
			assert.Assert(t, is.ErrorContains(err, tc.err))
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	assert.NilError(t, os.WriteFile(path, []byte(`data-dir = "/var/lib/relayer"`), 0600))

	c, err := Load(path)
	assert.NilError(t, err)
	assert.Equal(t, c.DataDir, "/var/lib/relayer")

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "unable to read config file")
}

func TestDefaultNeedsDataDir(t *testing.T) {
	c := Default()
	assert.ErrorContains(t, c.Validate(), "data-dir")

	c.DataDir = "/var/lib/relayer"
	assert.NilError(t, c.Validate())
	assert.Equal(t, c.SettleDuration(), 20*time.Second)
}
