package engine

import (
	"testing"

	runtimespec "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/stretchr/testify/assert"

	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/agent"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/supervisor"
)

var _ supervisor.Engine = (*Engine)(nil)

func TestMounts(t *testing.T) {
	got := mounts([]agent.Bind{
		{Source: "/data/hyperlane_db", Destination: "/hyperlane_db"},
		{Source: "/data/agent_configs", Destination: "/config", ReadOnly: true},
	})
	assert.Equal(t, []runtimespec.Mount{
		{Type: "bind", Source: "/data/hyperlane_db", Destination: "/hyperlane_db", Options: []string{"rbind", "rw"}},
		{Type: "bind", Source: "/data/agent_configs", Destination: "/config", Options: []string{"rbind", "ro"}},
	}, got)
}

func TestSpecOptsNetwork(t *testing.T) {
	host := specOpts(nil, agent.Spec{})
	isolated := specOpts(nil, agent.Spec{Network: "hyperlane_relayer_test_net"})
	assert.Len(t, host, len(isolated)+1, "only the host network is shared outside test mode")
}

func TestECRRegex(t *testing.T) {
	tests := []struct {
		image string
		ecr   bool
	}{
		{"777777777777.dkr.ecr.us-west-2.amazonaws.com/my_image:latest", true},
		{"777777777777.dkr.ecr.cn-north-1.amazonaws.com.cn/my_image:latest", true},
		{agent.DefaultImage, false},
		{"docker.io/library/busybox:latest", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.ecr, ecrRegex.MatchString(tc.image), tc.image)
	}
}
