package engine

import (
	"net/url"
	"strings"

	"github.com/containerd/containerd/remotes/docker"
	"github.com/pkg/errors"
)

// Mirror lists the endpoints tried for a registry host before the host
// itself.
type Mirror struct {
	Endpoints []string `toml:"endpoints"`
}

// RegistryConfig holds registry mirrors keyed by host, with "*" matching any
// host that has no entry of its own.
type RegistryConfig struct {
	Mirrors map[string]Mirror `toml:"mirrors"`
}

// registryHosts returns the registry hosts to be used by the resolver.
// Heavily borrowed from containerd CRI plugin's implementation.
func registryHosts(registryConfig RegistryConfig, authorizer docker.Authorizer) docker.RegistryHosts {
	return func(host string) ([]docker.RegistryHost, error) {
		var (
			registries []docker.RegistryHost
			endpoints  []string
		)
		if mirror, ok := registryConfig.Mirrors[host]; ok {
			endpoints = append(endpoints, mirror.Endpoints...)
		} else {
			endpoints = append(endpoints, registryConfig.Mirrors["*"].Endpoints...)
		}
		defaultHost, err := docker.DefaultHost(host)
		if err != nil {
			return nil, errors.Wrap(err, "get default host")
		}
		endpoints = append(endpoints, defaultHost)

		for _, endpoint := range endpoints {
			// Prefix the endpoint with an appropriate URL scheme if the endpoint does not have one.
			if !strings.Contains(endpoint, "://") {
				if endpoint == "localhost" || endpoint == "127.0.0.1" || endpoint == "::1" {
					endpoint = "http://" + endpoint
				} else {
					endpoint = "https://" + endpoint
				}
			}
			u, err := url.Parse(endpoint)
			if err != nil {
				return nil, errors.Wrapf(err, "parse registry endpoint %q from mirrors", endpoint)
			}
			if u.Path == "" {
				u.Path = "/v2"
			}
			registries = append(registries, docker.RegistryHost{
				Authorizer:   authorizer,
				Host:         u.Host,
				Scheme:       u.Scheme,
				Path:         u.Path,
				Capabilities: docker.HostCapabilityResolve | docker.HostCapabilityPull,
			})
		}
		return registries, nil
	}
}
