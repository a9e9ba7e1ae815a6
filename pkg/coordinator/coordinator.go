// Package coordinator applies new agent configuration as a transaction:
// the old container is removed, the configuration swapped on disk and a new
// container started, with a rollback to the previous configuration when the
// new one fails to come up.
package coordinator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/errdefs"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/logging"
)

// StatusApplied is returned when a configuration, new or restored, is running.
const StatusApplied uint64 = 0

// Transaction outcomes reported to the Recorder.
const (
	OutcomeCommitted = "committed"
	OutcomeRestored  = "restored"
	OutcomeInvalid   = "invalid"
	OutcomeAborted   = "aborted"
	OutcomeFatal     = "fatal"
	OutcomeFailed    = "failed"
)

const relayChainSeparator = ","

// Store is the on-disk configuration the coordinator swaps.
type Store interface {
	Lock(ctx context.Context) (func() error, error)
	Stage() error
	WriteDocuments(blobs [][]byte) error
	WriteRelayChains(relayChains string) error
	Rollback() error
	RelayChains() (string, bool, error)
}

// Supervisor owns the agent container slot.
type Supervisor interface {
	Spinup(ctx context.Context) error
	RemoveExisting(ctx context.Context) error
}

// Resolver turns a configuration source into document content.
type Resolver interface {
	Resolve(ctx context.Context, src string) ([]byte, error)
}

// Recorder observes finished transactions.
type Recorder interface {
	Transaction(outcome string, elapsed time.Duration)
}

// Coordinator serializes configuration transactions.
type Coordinator struct {
	log        logging.Logger
	store      Store
	supervisor Supervisor
	resolver   Resolver
	recorder   Recorder

	mu sync.Mutex
}

// New returns a Coordinator. recorder may be nil.
func New(log logging.Logger, store Store, supervisor Supervisor, resolver Resolver, recorder Recorder) *Coordinator {
	return &Coordinator{
		log:        log,
		store:      store,
		supervisor: supervisor,
		resolver:   resolver,
		recorder:   recorder,
	}
}

// ValidateRelayChains checks that relayChains names at least two chains.
func ValidateRelayChains(relayChains string) error {
	if relayChains == "" {
		return errdefs.InvalidInput(errors.New("relay chains must be provided"))
	}
	if !strings.Contains(relayChains, relayChainSeparator) {
		return errdefs.InvalidInput(errors.Errorf("relay chains %q must be a comma separated list of at least two chains", relayChains))
	}
	n := 0
	for _, id := range strings.Split(relayChains, relayChainSeparator) {
		if strings.TrimSpace(id) != "" {
			n++
		}
	}
	if n < 2 {
		return errdefs.InvalidInput(errors.Errorf("relay chains %q must name at least two chains", relayChains))
	}
	return nil
}

// SetConfig replaces the agent configuration with the documents resolved
// from sources and the given relay chains, and restarts the agent. If the
// new configuration does not come up, the previous one is restored and
// restarted; StatusApplied is returned when that restart succeeds.
//
// Once the input is validated the transaction runs to completion even if
// ctx is cancelled.
func (c *Coordinator) SetConfig(ctx context.Context, sources []string, relayChains string) (uint64, error) {
	start := time.Now()
	log := c.log.WithField("tx", uuid.NewString())

	if err := ValidateRelayChains(relayChains); err != nil {
		log.WithError(err).Warn("rejecting configuration")
		c.record(OutcomeInvalid, start)
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	unlock, err := c.store.Lock(ctx)
	if err != nil {
		c.record(OutcomeAborted, start)
		return 0, err
	}
	defer func() {
		if err := unlock(); err != nil {
			log.WithError(err).Warn("failed to release configuration lock")
		}
	}()

	blobs, err := c.resolve(ctx, sources)
	if err != nil {
		log.WithError(err).Warn("rejecting configuration")
		c.record(OutcomeInvalid, start)
		return 0, err
	}

	ctx = context.WithoutCancel(ctx)
	outcome, err := c.apply(ctx, log, blobs, relayChains)
	c.record(outcome, start)
	if err != nil {
		log.WithError(err).WithField("outcome", outcome).Error("configuration transaction failed")
		return 0, err
	}
	log.WithField("outcome", outcome).Info("configuration transaction finished")
	return StatusApplied, nil
}

func (c *Coordinator) resolve(ctx context.Context, sources []string) ([][]byte, error) {
	blobs := make([][]byte, 0, len(sources))
	for i, src := range sources {
		blob, err := c.resolver.Resolve(ctx, src)
		if err != nil {
			return nil, errdefs.InvalidInput(errors.Wrapf(err, "unable to resolve config source %d", i))
		}
		blobs = append(blobs, blob)
	}
	return blobs, nil
}

func (c *Coordinator) apply(ctx context.Context, log logging.Logger, blobs [][]byte, relayChains string) (string, error) {
	if err := c.supervisor.RemoveExisting(ctx); err != nil {
		return OutcomeAborted, err
	}
	if err := c.store.Stage(); err != nil {
		return OutcomeAborted, err
	}
	if err := c.store.WriteDocuments(blobs); err != nil {
		return OutcomeAborted, err
	}
	if err := c.store.WriteRelayChains(relayChains); err != nil {
		return OutcomeAborted, err
	}

	spinupErr := c.supervisor.Spinup(ctx)
	if spinupErr == nil {
		return OutcomeCommitted, nil
	}
	if errdefs.IsFilesystem(spinupErr) {
		return OutcomeAborted, spinupErr
	}

	log.WithError(spinupErr).Warn("new configuration failed, rolling back")
	if err := c.supervisor.RemoveExisting(ctx); err != nil {
		return OutcomeAborted, err
	}
	if err := c.store.Rollback(); err != nil {
		if errdefs.IsNoFallback(err) {
			return OutcomeFatal, err
		}
		return OutcomeAborted, err
	}
	log.Info("previous configuration restored, restarting")
	if err := c.supervisor.Spinup(ctx); err != nil {
		return OutcomeFailed, errors.WithMessage(err, "restored configuration failed to start")
	}
	return OutcomeRestored, nil
}

// Resume starts the agent from the configuration left by an earlier run. It
// does nothing when no configuration has ever been applied.
func (c *Coordinator) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	unlock, err := c.store.Lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	_, ok, err := c.store.RelayChains()
	if err != nil {
		return err
	}
	if !ok {
		c.log.Info("no configuration applied yet, not starting agent")
		return nil
	}
	c.log.Info("resuming agent with existing configuration")
	return c.supervisor.Spinup(ctx)
}

func (c *Coordinator) record(outcome string, start time.Time) {
	if c.recorder != nil {
		c.recorder.Transaction(outcome, time.Since(start))
	}
}
