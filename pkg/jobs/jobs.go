// Package jobs exposes the configuration transaction as numbered jobs on a
// unix socket. Each connection carries one CBOR encoded Call answered by one
// Reply.
package jobs

import (
	"github.com/fxamacker/cbor/v2"
)

// JobSetConfig replaces the agent configuration.
const JobSetConfig uint64 = 0

// Call invokes a job.
type Call struct {
	Job  uint64          `cbor:"job"`
	Args cbor.RawMessage `cbor:"args,omitempty"`
}

// SetConfigArgs are the arguments of JobSetConfig. A nil ConfigSources
// leaves the agent on its built-in defaults.
type SetConfigArgs struct {
	ConfigSources []string `cbor:"config_sources,omitempty"`
	RelayChains   string   `cbor:"relay_chains"`
}

// Reply is the outcome of a Call.
type Reply struct {
	OK     bool   `cbor:"ok"`
	Result uint64 `cbor:"result"`
	Error  string `cbor:"error,omitempty"`
	// Kind names the failure kind of Error.
	Kind string `cbor:"kind,omitempty"`
}
