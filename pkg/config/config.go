// Package config loads the relayer-ctr daemon configuration from TOML.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/agent"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/engine"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/supervisor"
)

const (
	// DefaultJobSocket is where the daemon listens for jobs.
	DefaultJobSocket = "/run/relayer-ctr/jobs.sock"
	// DefaultPath is the configuration file read when none is given.
	DefaultPath = "/etc/relayer-ctr/config.toml"

	formatText = "text"
	formatJSON = "json"
)

// Config is the daemon configuration.
type Config struct {
	// DataDir roots the agent database and configuration files. Required.
	DataDir string `toml:"data-dir"`
	// Keystore is a file holding the hex encoded signing key. Required for
	// the daemon.
	Keystore string `toml:"keystore"`

	ContainerdSocket string `toml:"containerd-socket"`
	Namespace        string `toml:"namespace"`
	Image            string `toml:"image"`
	ContainerID      string `toml:"container-id"`

	JobSocket      string `toml:"job-socket"`
	MetricsAddress string `toml:"metrics-address"`

	SettleWindow string `toml:"settle-window"`
	StopTimeout  string `toml:"stop-timeout"`

	LogLevel  string `toml:"log-level"`
	LogFormat string `toml:"log-format"`

	// Resume starts the agent from the configuration already on disk when
	// the daemon starts. Defaults to true.
	Resume *bool `toml:"resume"`

	Test     Test                  `toml:"test"`
	Registry engine.RegistryConfig `toml:"registry"`

	settleWindow time.Duration
	stopTimeout  time.Duration
}

// Test configures test mode, in which the agent joins a dedicated network.
type Test struct {
	Network    string `toml:"network"`
	CNIConfDir string `toml:"cni-conf-dir"`
	CNIBinDir  string `toml:"cni-bin-dir"`
}

// Default returns a configuration with every optional key set.
func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

// Load reads the TOML file at path and validates it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read config file")
	}
	return Parse(raw)
}

// Parse decodes raw TOML and validates it.
func Parse(raw []byte) (*Config, error) {
	c := &Config{}
	if err := toml.Unmarshal(raw, c); err != nil {
		return nil, errors.Wrap(err, "unable to parse config")
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) setDefaults() {
	if c.ContainerdSocket == "" {
		c.ContainerdSocket = engine.DefaultSocket
	}
	if c.Namespace == "" {
		c.Namespace = engine.DefaultNamespace
	}
	if c.Image == "" {
		c.Image = agent.DefaultImage
	}
	if c.ContainerID == "" {
		c.ContainerID = agent.DefaultContainerID
	}
	if c.JobSocket == "" {
		c.JobSocket = DefaultJobSocket
	}
	if c.SettleWindow == "" {
		c.SettleWindow = supervisor.DefaultSettleWindow.String()
	}
	if c.StopTimeout == "" {
		c.StopTimeout = engine.DefaultStopTimeout.String()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = formatText
	}
	if c.Resume == nil {
		resume := true
		c.Resume = &resume
	}
	if c.Test.CNIConfDir == "" {
		c.Test.CNIConfDir = engine.DefaultCNIConfDir
	}
	if c.Test.CNIBinDir == "" {
		c.Test.CNIBinDir = engine.DefaultCNIBinDir
	}
}

// Validate checks required keys and parses durations.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data-dir must be provided")
	}
	if !filepath.IsAbs(c.DataDir) {
		return errors.Errorf("data-dir %q must be an absolute path", c.DataDir)
	}

	var err error
	if c.settleWindow, err = parseDuration("settle-window", c.SettleWindow); err != nil {
		return err
	}
	if c.stopTimeout, err = parseDuration("stop-timeout", c.StopTimeout); err != nil {
		return err
	}

	switch c.LogFormat {
	case formatText, formatJSON:
	default:
		return errors.Errorf("log-format %q must be %q or %q", c.LogFormat, formatText, formatJSON)
	}
	return nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", key)
	}
	if d < 0 {
		return 0, errors.Errorf("%s must not be negative", key)
	}
	return d, nil
}

// SettleDuration is the parsed settle window.
func (c *Config) SettleDuration() time.Duration { return c.settleWindow }

// StopDuration is the parsed stop timeout.
func (c *Config) StopDuration() time.Duration { return c.stopTimeout }

// JSONLogs reports whether logs are JSON formatted.
func (c *Config) JSONLogs() bool { return c.LogFormat == formatJSON }

// ResumeEnabled reports whether the daemon resumes the agent at start.
func (c *Config) ResumeEnabled() bool { return c.Resume == nil || *c.Resume }
