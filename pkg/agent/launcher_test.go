package agent

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfigs struct {
	documents   []string
	relayChains string
	hasRelay    bool
	err         error
}

func (f *fakeConfigs) EnsureDatabase() (string, error) { return "/data/hyperlane_db", f.err }
func (f *fakeConfigs) ConfigsPath() string             { return "/data/agent_configs" }
func (f *fakeConfigs) Documents() ([]string, error)    { return f.documents, nil }
func (f *fakeConfigs) RelayChains() (string, bool, error) {
	return f.relayChains, f.hasRelay, nil
}

type fakeSigner string

func (s fakeSigner) HexKey() (string, error) { return string(s), nil }

func TestBuildWithDocuments(t *testing.T) {
	l := NewLauncher(&fakeConfigs{
		documents:   []string{"0.json", "1.json"},
		relayChains: "ethereum,polygon",
		hasRelay:    true,
	}, fakeSigner("abcd"))

	spec, err := l.Build()
	require.NoError(t, err)

	assert.Equal(t, DefaultContainerID, spec.ID)
	assert.Equal(t, DefaultImage, spec.Image)
	assert.Equal(t, []Bind{
		{Source: "/data/hyperlane_db", Destination: "/hyperlane_db"},
		{Source: "/data/agent_configs", Destination: "/config", ReadOnly: true},
	}, spec.Binds)
	assert.Equal(t, []string{
		"CONFIG_FILES=/config/0.json,/config/1.json",
		"HYP_RELAYCHAINS=ethereum,polygon",
	}, spec.Env)
	assert.Equal(t, []string{"./relayer", "--db", "/hyperlane_db", "--defaultSigner.key", "0xabcd"}, spec.Args)
	assert.Empty(t, spec.Network)
}

func TestBuildWithoutDocuments(t *testing.T) {
	l := NewLauncher(&fakeConfigs{}, fakeSigner("abcd"))
	l.Network = "hyperlane_relayer_test_net"

	spec, err := l.Build()
	require.NoError(t, err)

	assert.Len(t, spec.Binds, 1, "empty documents directory is not mounted")
	assert.Empty(t, spec.Env)
	_, ok := spec.Getenv("HYP_RELAYCHAINS")
	assert.False(t, ok)
	assert.Equal(t, "hyperlane_relayer_test_net", spec.Network)
}

func TestBuildPropagatesStoreErrors(t *testing.T) {
	l := NewLauncher(&fakeConfigs{err: errors.New("read-only filesystem")}, fakeSigner("abcd"))
	_, err := l.Build()
	assert.Error(t, err)
}

func TestGetenv(t *testing.T) {
	spec := Spec{Env: []string{"HYP_RELAYCHAINS=a,b", "HYP=x"}}
	v, ok := spec.Getenv("HYP_RELAYCHAINS")
	assert.True(t, ok)
	assert.Equal(t, "a,b", v)
	v, ok = spec.Getenv("HYP")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
}
