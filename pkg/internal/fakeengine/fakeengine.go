// Package fakeengine is an in-memory container engine that records every
// call, for supervisor and coordinator tests.
package fakeengine

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/tangle-network/hyperlane-relayer-blueprint/pkg/agent"
)

// Call is one recorded engine call.
type Call struct {
	Method string
	ID     string
}

// Container is the fake's view of a created container.
type Container struct {
	Spec    agent.Spec
	Network string
	Started bool
	Stopped bool
}

// Engine implements the supervisor's engine interface in memory.
type Engine struct {
	mu sync.Mutex

	// Containers holds every container that has not been removed.
	Containers map[string]*Container
	// Errors injects a failure for the named method.
	Errors map[string]error
	// StatusFunc decides the health reported for a started container.
	// Containers report active when nil.
	StatusFunc func(agent.Spec) agent.Status

	calls []Call
	seq   int
}

// New returns an empty fake engine.
func New() *Engine {
	return &Engine{
		Containers: make(map[string]*Container),
		Errors:     make(map[string]error),
	}
}

// SetError makes the named method fail with err.
func (e *Engine) SetError(method string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Errors[method] = err
}

// FailWhen reports inactive for containers whose relay chains equal
// relayChains.
func (e *Engine) FailWhen(relayChains string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.StatusFunc = func(spec agent.Spec) agent.Status {
		if v, _ := spec.Getenv("HYP_RELAYCHAINS"); v == relayChains {
			return agent.StatusInactive
		}
		return agent.StatusActive
	}
}

// Calls returns a copy of the call log.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	calls := make([]Call, len(e.calls))
	copy(calls, e.calls)
	return calls
}

// Count returns how many times method was called.
func (e *Engine) Count(method string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, call := range e.calls {
		if call.Method == method {
			n++
		}
	}
	return n
}

// Container returns the live container with id, if any.
func (e *Engine) Container(id string) (*Container, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.Containers[id]
	return c, ok
}

func (e *Engine) record(method, id string) error {
	e.calls = append(e.calls, Call{Method: method, ID: id})
	return e.Errors[method]
}

func (e *Engine) lookup(id string) (*Container, error) {
	c, ok := e.Containers[id]
	if !ok {
		return nil, errors.Errorf("container %s: not found", id)
	}
	return c, nil
}

// Pull records a pull of image.
func (e *Engine) Pull(_ context.Context, image string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record("Pull", image)
}

// Create stores the spec under a new identifier.
func (e *Engine) Create(_ context.Context, spec agent.Spec) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("Create", spec.ID); err != nil {
		return "", err
	}
	e.seq++
	id := fmt.Sprintf("%s-%d", spec.ID, e.seq)
	e.Containers[id] = &Container{Spec: spec}
	return id, nil
}

// ConnectNetwork records the network the container joined.
func (e *Engine) ConnectNetwork(_ context.Context, id, network string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("ConnectNetwork", id); err != nil {
		return err
	}
	c, err := e.lookup(id)
	if err != nil {
		return err
	}
	c.Network = network
	return nil
}

// Start marks the container started.
func (e *Engine) Start(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("Start", id); err != nil {
		return err
	}
	c, err := e.lookup(id)
	if err != nil {
		return err
	}
	c.Started = true
	return nil
}

// Status reports StatusFunc's verdict for started containers.
func (e *Engine) Status(_ context.Context, id string) (agent.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("Status", id); err != nil {
		return "", err
	}
	c, err := e.lookup(id)
	if err != nil {
		return "", err
	}
	if !c.Started || c.Stopped {
		return agent.StatusInactive, nil
	}
	if e.StatusFunc != nil {
		return e.StatusFunc(c.Spec), nil
	}
	return agent.StatusActive, nil
}

// Stop marks the container stopped.
func (e *Engine) Stop(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("Stop", id); err != nil {
		return err
	}
	c, err := e.lookup(id)
	if err != nil {
		return err
	}
	c.Stopped = true
	return nil
}

// Remove forgets the container.
func (e *Engine) Remove(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("Remove", id); err != nil {
		return err
	}
	if _, err := e.lookup(id); err != nil {
		return err
	}
	delete(e.Containers, id)
	return nil
}
