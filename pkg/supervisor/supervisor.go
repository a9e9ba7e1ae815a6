// Package supervisor owns the single agent container. At most one container
// is tracked at a time; every operation on it runs under one lock.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/agent"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/errdefs"
	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/logging"
)

// DefaultSettleWindow is how long a started agent is given before its
// status is checked.
const DefaultSettleWindow = 20 * time.Second

// Engine is the container engine the supervisor drives.
type Engine interface {
	Pull(ctx context.Context, image string) error
	Create(ctx context.Context, spec agent.Spec) (string, error)
	ConnectNetwork(ctx context.Context, id, network string) error
	Start(ctx context.Context, id string) error
	Status(ctx context.Context, id string) (agent.Status, error)
	Stop(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
}

// SpecBuilder produces the start spec for the next container.
type SpecBuilder interface {
	ImageRef() string
	Build() (agent.Spec, error)
}

// Observer is notified of slot transitions and spinup results.
type Observer interface {
	SlotChanged(State)
	SpinupFinished(err error)
}

// State is the lifecycle state of the slot.
type State int

const (
	// Absent means no container is tracked.
	Absent State = iota
	// Starting means a container has been started and its health is not
	// yet known.
	Starting
	// Active means the tracked container reported active.
	Active
	// Failed means the tracked container did not reach active. The slot
	// keeps its identifier so it can be removed.
	Failed
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type slot struct {
	state State
	id    string
}

// Supervisor manages the agent container slot.
type Supervisor struct {
	log      logging.Logger
	engine   Engine
	builder  SpecBuilder
	observer Observer

	// SettleWindow is the fixed wait between start and the status check.
	SettleWindow time.Duration

	mu   sync.Mutex
	slot slot
}

// New returns a Supervisor with an empty slot.
func New(log logging.Logger, engine Engine, builder SpecBuilder, observer Observer) *Supervisor {
	return &Supervisor{
		log:          log,
		engine:       engine,
		builder:      builder,
		observer:     observer,
		SettleWindow: DefaultSettleWindow,
	}
}

// State reports the slot state and the tracked container identifier.
func (s *Supervisor) State() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slot.state, s.slot.id
}

func (s *Supervisor) set(state State, id string) {
	s.slot = slot{state: state, id: id}
	if s.observer != nil {
		s.observer.SlotChanged(state)
	}
}

// Spinup starts a container from the current configuration unless one is
// already tracked, in which case it returns immediately without checking
// that container's health.
func (s *Supervisor) Spinup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slot.state != Absent {
		s.log.WithField("ctr-id", s.slot.id).Debug("container already tracked, not spinning up")
		return nil
	}

	err := s.spinup(ctx)
	if s.observer != nil {
		s.observer.SpinupFinished(err)
	}
	return err
}

func (s *Supervisor) spinup(ctx context.Context) error {
	image := s.builder.ImageRef()
	log := s.log.WithField("image", image)
	log.Info("spinning up new container")

	if err := s.engine.Pull(ctx, image); err != nil {
		log.WithError(err).Error("failed to pull image")
		return errdefs.ExternalTool(errors.Wrap(err, "image pull failed"))
	}

	spec, err := s.builder.Build()
	if err != nil {
		return errors.WithMessage(err, "unable to build container spec")
	}

	id, err := s.engine.Create(ctx, spec)
	if err != nil {
		log.WithError(err).Error("failed to create container")
		return errdefs.ExternalTool(errors.Wrap(err, "container create failed"))
	}
	log = log.WithField("ctr-id", id)

	if spec.Network != "" {
		if err := s.engine.ConnectNetwork(ctx, id, spec.Network); err != nil {
			log.WithError(err).WithField("network", spec.Network).Error("failed to connect container to network")
			s.discard(ctx, log, id)
			return errdefs.ExternalTool(errors.Wrapf(err, "connecting to network %s failed", spec.Network))
		}
	}

	if err := s.engine.Start(ctx, id); err != nil {
		log.WithError(err).Error("failed to start container")
		s.discard(ctx, log, id)
		return errdefs.ExternalTool(errors.Wrap(err, "container start failed"))
	}
	// Recorded before health is known so a failed start can still be
	// removed through the slot.
	s.set(Starting, id)

	log.WithField("window", s.SettleWindow).Debug("waiting for container to settle")
	if err := settle(ctx, s.SettleWindow); err != nil {
		s.set(Failed, id)
		return errdefs.ExternalTool(errors.Wrap(err, "interrupted while settling"))
	}

	status, err := s.engine.Status(ctx, id)
	if err != nil {
		log.WithError(err).Error("failed to get status of container")
		s.set(Failed, id)
		return errdefs.ExternalTool(errors.Wrap(err, "failed to get status of container, container engine issue?"))
	}
	if status != agent.StatusActive {
		log.WithField("status", status).Error("container is not active")
		s.set(Failed, id)
		return errdefs.StartFailed(errors.Errorf("container %s is %s, config error?", id, status))
	}

	s.set(Active, id)
	log.Info("container is active")
	return nil
}

// discard removes a container that never made it into the slot.
func (s *Supervisor) discard(ctx context.Context, log logging.Logger, id string) {
	if err := s.engine.Remove(ctx, id); err != nil {
		log.WithError(err).Warn("failed to clean up container")
	}
}

// RemoveExisting stops and removes the tracked container, if any. The slot
// is empty afterwards even when stopping or removing fails.
func (s *Supervisor) RemoveExisting(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slot.state == Absent {
		return nil
	}
	id := s.slot.id
	s.set(Absent, "")

	log := s.log.WithField("ctr-id", id)
	log.Warn("removing existing container")
	if err := s.engine.Stop(ctx, id); err != nil {
		log.WithError(err).Error("failed to stop container")
		return errdefs.ExternalTool(errors.Wrap(err, "container stop failed"))
	}
	if err := s.engine.Remove(ctx, id); err != nil {
		log.WithError(err).Error("failed to remove container")
		return errdefs.ExternalTool(errors.Wrap(err, "container remove failed"))
	}
	log.Info("removed existing container")
	return nil
}

// settle waits out the window in one piece.
func settle(ctx context.Context, window time.Duration) error {
	if window <= 0 {
		return nil
	}
	timer := time.NewTimer(window)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
