// Package agent describes the relayer agent container and builds its start
// specification from the configuration currently on disk.
package agent

import (
	"path"
	"strings"

	"github.com/pkg/errors"
)

const (
	// DefaultImage is the relayer agent image.
	DefaultImage = "gcr.io/abacus-labs-dev/hyperlane-agent:main"
	// DefaultContainerID names the single agent container.
	DefaultContainerID = "hyperlane-relayer"

	databaseMount = "/hyperlane_db"
	configMount   = "/config"
	relayerBinary = "./relayer"

	envConfigFiles = "CONFIG_FILES"
	envRelayChains = "HYP_RELAYCHAINS"
)

// Configs is the read side of the configuration store used when launching.
type Configs interface {
	EnsureDatabase() (string, error)
	ConfigsPath() string
	Documents() ([]string, error)
	RelayChains() (string, bool, error)
}

// Signer yields the hex-encoded signing key passed to the agent.
type Signer interface {
	HexKey() (string, error)
}

// Launcher builds agent container specs.
type Launcher struct {
	ContainerID string
	Image       string
	// Network is the test network to attach to, empty outside test mode.
	Network string

	configs Configs
	signer  Signer
}

// NewLauncher returns a Launcher for the default image and container name.
func NewLauncher(configs Configs, signer Signer) *Launcher {
	return &Launcher{
		ContainerID: DefaultContainerID,
		Image:       DefaultImage,
		configs:     configs,
		signer:      signer,
	}
}

// ImageRef returns the image the agent container runs.
func (l *Launcher) ImageRef() string { return l.Image }

// Build assembles the start spec from the current configuration.
func (l *Launcher) Build() (Spec, error) {
	spec := Spec{
		ID:      l.ContainerID,
		Image:   l.Image,
		Network: l.Network,
	}

	databasePath, err := l.configs.EnsureDatabase()
	if err != nil {
		return Spec{}, err
	}
	spec.Binds = append(spec.Binds, Bind{Source: databasePath, Destination: databaseMount})

	documents, err := l.configs.Documents()
	if err != nil {
		return Spec{}, err
	}
	if len(documents) > 0 {
		spec.Binds = append(spec.Binds, Bind{
			Source:      l.configs.ConfigsPath(),
			Destination: configMount,
			ReadOnly:    true,
		})
		mounted := make([]string, len(documents))
		for i, name := range documents {
			mounted[i] = path.Join(configMount, name)
		}
		spec.Env = append(spec.Env, envConfigFiles+"="+strings.Join(mounted, ","))
	}

	relayChains, ok, err := l.configs.RelayChains()
	if err != nil {
		return Spec{}, err
	}
	if ok {
		spec.Env = append(spec.Env, envRelayChains+"="+relayChains)
	}

	secret, err := l.signer.HexKey()
	if err != nil {
		return Spec{}, errors.Wrap(err, "unable to read signing key")
	}
	spec.Args = []string{
		relayerBinary,
		"--db", databaseMount,
		"--defaultSigner.key", "0x" + secret,
	}
	return spec, nil
}
