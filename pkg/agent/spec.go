package agent

// Status is the health the container engine reports for an agent container.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Bind mounts a host path into the agent container.
type Bind struct {
	Source      string
	Destination string
	ReadOnly    bool
}

// Spec is everything the container engine needs to create the agent
// container.
type Spec struct {
	// ID is the container identifier requested from the engine.
	ID    string
	Image string
	Binds []Bind
	Env   []string
	Args  []string
	// Network, when set, is joined after the container is created and
	// before it is started. Only used when running against a test network.
	Network string
}

// Getenv returns the value of key in the spec's environment.
func (s Spec) Getenv(key string) (string, bool) {
	prefix := key + "="
	for _, kv := range s.Env {
		if len(kv) >= len(prefix) && kv[:len(prefix)] == prefix {
			return kv[len(prefix):], true
		}
	}
	return "", false
}
