package engine

import (
	"testing"

	"github.com/containerd/containerd/remotes/docker"
	"github.com/stretchr/testify/assert"
)

func TestRegistryHosts(t *testing.T) {
	authorizer := docker.NewDockerAuthorizer()
	host := func(h, scheme string) docker.RegistryHost {
		return docker.RegistryHost{
			Authorizer:   authorizer,
			Host:         h,
			Scheme:       scheme,
			Path:         "/v2",
			Capabilities: docker.HostCapabilityResolve | docker.HostCapabilityPull,
		}
	}

	tests := []struct {
		name     string
		host     string
		config   RegistryConfig
		expected []docker.RegistryHost
	}{
		{
			"HTTP scheme",
			"gcr.io",
			RegistryConfig{Mirrors: map[string]Mirror{
				"gcr.io": {Endpoints: []string{"http://198.158.0.0"}},
			}},
			[]docker.RegistryHost{host("198.158.0.0", "http"), host("gcr.io", "https")},
		},
		{
			"No scheme",
			"docker.io",
			RegistryConfig{Mirrors: map[string]Mirror{
				"docker.io": {Endpoints: []string{"localhost", "198.158.0.0", "127.0.0.1"}},
			}},
			[]docker.RegistryHost{
				host("localhost", "http"),
				host("198.158.0.0", "https"),
				host("127.0.0.1", "http"),
				host("registry-1.docker.io", "https"),
			},
		},
		{
			"* endpoints",
			"weird.io",
			RegistryConfig{Mirrors: map[string]Mirror{
				"docker.io": {Endpoints: []string{"notme", "certainly-not-me"}},
				"*":         {Endpoints: []string{"198.158.0.0", "example.com"}},
			}},
			[]docker.RegistryHost{host("198.158.0.0", "https"), host("example.com", "https"), host("weird.io", "https")},
		},
		{
			"No mirrors",
			"gcr.io",
			RegistryConfig{},
			[]docker.RegistryHost{host("gcr.io", "https")},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := registryHosts(tc.config, authorizer)(tc.host)
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestBadRegistryHosts(t *testing.T) {
	f := registryHosts(RegistryConfig{
		Mirrors: map[string]Mirror{
			"gcr.io": {Endpoints: []string{"$#%#$$#%#$"}},
		},
	}, docker.NewDockerAuthorizer())
	_, err := f("gcr.io")
	assert.Error(t, err)
}
