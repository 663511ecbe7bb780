package testutil

import (
	"context"
	"sync"

	"github.com/mu-semtech/network-monitor/internal/core/domain"
)

// FakeRegistry is an in-memory stand-in for ports.Registry.
type FakeRegistry struct {
	mu sync.Mutex

	ready      bool
	containers map[string]domain.Container // by uri
	monitors   map[string]domain.Monitor   // by uri
	labels     map[string]map[string]string // container id -> key -> value
}

// NewFakeRegistry builds a FakeRegistry that reports ready immediately.
func NewFakeRegistry() *FakeRegistry {
	return &FakeRegistry{
		ready:      true,
		containers: make(map[string]domain.Container),
		monitors:   make(map[string]domain.Monitor),
		labels:     make(map[string]map[string]string),
	}
}

// PutContainer inserts or replaces a Container projection, keyed by uri.
func (r *FakeRegistry) PutContainer(c domain.Container) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers[c.URI] = c
}

// RemoveContainer deletes a Container projection.
func (r *FakeRegistry) RemoveContainer(uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.containers, uri)
}

// SetLabel records a label for LabelValue lookups.
func (r *FakeRegistry) SetLabel(containerID, key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.labels[containerID]
	if !ok {
		m = make(map[string]string)
		r.labels[containerID] = m
	}
	m[key] = value
}

// SetReady controls the Ready() response.
func (r *FakeRegistry) SetReady(ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = ready
}

func (r *FakeRegistry) Ready(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready, nil
}

func (r *FakeRegistry) LoggedContainers(ctx context.Context) ([]domain.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Container
	for _, c := range r.containers {
		if c.Status == domain.StatusRunning && c.Project != "__monitor__" {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *FakeRegistry) ContainerByState(ctx context.Context, stateURI string) (*domain.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// stateURI convention in tests: "state:<container-uri>"
	uri := stateURI
	if len(uri) > 6 && uri[:6] == "state:" {
		uri = uri[6:]
	}
	c, ok := r.containers[uri]
	if !ok {
		return nil, nil
	}
	cc := c
	return &cc, nil
}

func (r *FakeRegistry) IsEligible(ctx context.Context, containerURI string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[containerURI]
	if !ok {
		return false, nil
	}
	return c.Project != "__monitor__", nil
}

func (r *FakeRegistry) LabelValue(ctx context.Context, containerID, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.labels[containerID][key], nil
}

func (r *FakeRegistry) FindAll(ctx context.Context, status domain.MonitorStatus) ([]domain.Monitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Monitor
	for _, m := range r.monitors {
		if status == "" || m.Status == status {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *FakeRegistry) FindByLoggedContainer(ctx context.Context, containerURI string) (*domain.Monitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.monitors {
		if m.DockerContainer == containerURI && m.Status == domain.MonitorRunning {
			mm := m
			return &mm, nil
		}
	}
	return nil, nil
}

func (r *FakeRegistry) FindByMonitorHost(ctx context.Context, containerID string) (*domain.Monitor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.monitors {
		if m.ID == containerID {
			mm := m
			return &mm, nil
		}
	}
	return nil, nil
}

func (r *FakeRegistry) GetLoggedContainer(ctx context.Context, monitor domain.Monitor) (*domain.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[monitor.DockerContainer]
	if !ok {
		return nil, nil
	}
	cc := c
	return &cc, nil
}

func (r *FakeRegistry) Save(ctx context.Context, monitor *domain.Monitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	monitor.Persisted = true
	r.monitors[monitor.URI] = *monitor
	return nil
}

func (r *FakeRegistry) Remove(ctx context.Context, monitor domain.Monitor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.monitors, monitor.URI)
	return nil
}

// MonitorCount returns the number of persisted monitor records, for test
// assertions.
func (r *FakeRegistry) MonitorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.monitors)
}

// MonitorFor returns the persisted monitor for a logged container uri
// regardless of status, or ok=false if none exists.
func (r *FakeRegistry) MonitorFor(containerURI string) (domain.Monitor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.monitors {
		if m.DockerContainer == containerURI {
			return m, true
		}
	}
	return domain.Monitor{}, false
}
