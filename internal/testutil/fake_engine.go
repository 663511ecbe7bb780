// Package testutil provides in-memory fakes for ports.Engine and
// ports.Registry, grounded in the teacher's ports/adapters split where
// ports.ContainerService is satisfied by both a real Docker adapter and
// test doubles, and in thediveo-whalewatcher's mock-engine test harness.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mu-semtech/network-monitor/internal/core/domain"
	"github.com/mu-semtech/network-monitor/internal/core/ports"
)

// FakeEngine is an in-memory stand-in for ports.Engine.
type FakeEngine struct {
	mu         sync.Mutex
	containers map[string]*fakeContainer
	networks   map[string]map[string]bool // network -> set of attached container ids
	calls      []string

	// AttachNetworkErr, when set, is returned by every AttachNetwork call
	// (used to simulate the 403-already-attached and transient-failure
	// cases in tests).
	AttachNetworkErr error
	CreateErr        error
	StartErr         error
}

type fakeContainer struct {
	ports.ContainerHandle
	spec ports.ContainerSpec
}

// NewFakeEngine builds an empty FakeEngine.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		containers: make(map[string]*fakeContainer),
		networks:   make(map[string]map[string]bool),
	}
}

func (f *FakeEngine) record(call string) {
	f.calls = append(f.calls, call)
}

// Calls returns the ordered list of method names invoked, for assertions on
// call sequencing.
func (f *FakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *FakeEngine) List(ctx context.Context) ([]ports.ContainerHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("List")
	out := make([]ports.ContainerHandle, 0, len(f.containers))
	for _, c := range f.containers {
		out = append(out, c.ContainerHandle)
	}
	return out, nil
}

func (f *FakeEngine) Pull(ctx context.Context, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Pull")
	return nil
}

func (f *FakeEngine) Create(ctx context.Context, spec ports.ContainerSpec) (ports.ContainerHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Create")
	if f.CreateErr != nil {
		return ports.ContainerHandle{}, f.CreateErr
	}
	id := uuid.NewString()
	handle := ports.ContainerHandle{ID: id, Name: spec.Name, Status: "created"}
	f.containers[id] = &fakeContainer{ContainerHandle: handle, spec: spec}
	return handle, nil
}

func (f *FakeEngine) Start(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Start")
	if f.StartErr != nil {
		return f.StartErr
	}
	c, ok := f.containers[id]
	if !ok {
		return fmt.Errorf("start %s: %w", id, domain.ErrNotFound)
	}
	c.Status = "running"
	return nil
}

func (f *FakeEngine) Stop(ctx context.Context, id string, deadline time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Stop")
	c, ok := f.containers[id]
	if !ok {
		return fmt.Errorf("stop %s: %w", id, domain.ErrNotFound)
	}
	c.Status = "exited"
	return nil
}

func (f *FakeEngine) Remove(ctx context.Context, id string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Remove")
	if _, ok := f.containers[id]; !ok {
		return fmt.Errorf("remove %s: %w", id, domain.ErrNotFound)
	}
	delete(f.containers, id)
	for _, members := range f.networks {
		delete(members, id)
	}
	return nil
}

func (f *FakeEngine) AttachNetwork(ctx context.Context, containerID, network string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AttachNetwork")
	if f.AttachNetworkErr != nil {
		return f.AttachNetworkErr
	}
	members, ok := f.networks[network]
	if !ok {
		members = make(map[string]bool)
		f.networks[network] = members
	}
	members[containerID] = true
	return nil
}

func (f *FakeEngine) DetachNetwork(ctx context.Context, containerID, network string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DetachNetwork")
	if members, ok := f.networks[network]; ok {
		delete(members, containerID)
	}
	return nil
}

func (f *FakeEngine) Get(ctx context.Context, id string) (ports.ContainerHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Get")
	c, ok := f.containers[id]
	if !ok {
		return ports.ContainerHandle{}, fmt.Errorf("get %s: %w", id, domain.ErrNotFound)
	}
	return c.ContainerHandle, nil
}

// Has reports whether a container with id currently exists in the fake
// engine.
func (f *FakeEngine) Has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.containers[id]
	return ok
}

// AttachedTo reports whether containerID is a member of network.
func (f *FakeEngine) AttachedTo(network, containerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.networks[network][containerID]
}

// Kill simulates an external process killing a running container, as used
// by the crash-recovery scenario: the container vanishes from the engine
// without going through Stop/Remove.
func (f *FakeEngine) Kill(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, id)
}
