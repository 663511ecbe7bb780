package ports

import (
	"context"

	"github.com/mu-semtech/network-monitor/internal/core/domain"
)

// Registry is the persistence and query contract over the triple-pattern
// store: Monitor records are owned and mutated here; Container records are a
// read-only mirror of engine state the core only ever queries.
//
// The registry is strongly consistent per call (a query immediately
// following a write observes the write) but offers no transactions across
// calls; the transition engine's per-container serialization is what
// supplies effective atomicity.
type Registry interface {
	// Ready reports whether the registry can currently answer queries.
	Ready(ctx context.Context) (bool, error)

	// LoggedContainers runs the eligibility query: running containers that
	// match the operator-supplied filter fragment and do not themselves
	// carry the network-monitor label.
	LoggedContainers(ctx context.Context) ([]domain.Container, error)

	// ContainerByState resolves the container that docker:state back-
	// references stateURI, as needed by the delta handler.
	ContainerByState(ctx context.Context, stateURI string) (*domain.Container, error)

	// IsEligible re-evaluates the eligibility predicate for a single
	// container URI, for use on the delta path where only one container is
	// known rather than the whole eligible set.
	IsEligible(ctx context.Context, containerURI string) (bool, error)

	// LabelValue looks up the value of label key on the container identified
	// by its engine id, used to resolve COMPOSE_SERVICE/COMPOSE_PROJECT.
	LabelValue(ctx context.Context, containerID, key string) (string, error)

	// FindAll returns all Monitor records, optionally filtered by status.
	// An empty status returns every record regardless of status.
	FindAll(ctx context.Context, status domain.MonitorStatus) ([]domain.Monitor, error)

	// FindByLoggedContainer returns the unique running Monitor for a logged
	// container's uri, or nil if none exists.
	FindByLoggedContainer(ctx context.Context, containerURI string) (*domain.Monitor, error)

	// FindByMonitorHost returns the Monitor whose id equals the given
	// container id, used when a change event concerns the companion itself.
	FindByMonitorHost(ctx context.Context, containerID string) (*domain.Monitor, error)

	// GetLoggedContainer dereferences monitor.DockerContainer to a Container
	// projection.
	GetLoggedContainer(ctx context.Context, monitor domain.Monitor) (*domain.Container, error)

	// Save inserts monitor if it is not yet persisted, otherwise replaces
	// the existing record keyed by uri.
	Save(ctx context.Context, monitor *domain.Monitor) error

	// Remove deletes the Monitor record. Tolerant of "already removed".
	Remove(ctx context.Context, monitor domain.Monitor) error
}
