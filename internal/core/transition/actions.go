package transition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mu-semtech/network-monitor/internal/core/domain"
	"github.com/mu-semtech/network-monitor/internal/core/ports"
)

// stopDeadline is the engine deadline Stop is given during RemoveMonitor;
// the only step in the core with an intrinsic timeout of its own.
const stopDeadline = 3 * time.Second

// SpecBuilder builds the companion ContainerSpec for a logged container.
// internal/core/companion.Builder is the production implementation.
type SpecBuilder interface {
	Build(ctx context.Context, container domain.Container) ports.ContainerSpec
}

// Actions implements Runner with the three transitions the engine executes.
// It is the sole writer of Monitor records and companion containers.
type Actions struct {
	Engine   ports.Engine
	Registry ports.Registry
	Builder  SpecBuilder
	Network  string
	Log      *logrus.Entry
}

// Run dispatches item to the matching transition. It satisfies the Runner
// interface the transition Engine drains against.
func (a *Actions) Run(ctx context.Context, item WorkItem) error {
	switch item.Action {
	case ActionCreateMonitor:
		return a.CreateMonitor(ctx, item.Container)
	case ActionRemoveMonitor:
		if item.Monitor == nil {
			return fmt.Errorf("transition: RemoveMonitor requires a monitor")
		}
		return a.RemoveMonitor(ctx, item.Container, *item.Monitor)
	case ActionRestartMonitor:
		if item.Monitor == nil {
			return fmt.Errorf("transition: RestartMonitor requires a monitor")
		}
		return a.RestartMonitor(ctx, item.Container, *item.Monitor)
	default:
		return fmt.Errorf("transition: unknown action %v", item.Action)
	}
}

// CreateMonitor creates, starts, and attaches the companion container for
// container, then persists the running Monitor record. A reconciler race
// that already created a monitor for this container is benign: the
// precondition check aborts silently rather than double-creating.
func (a *Actions) CreateMonitor(ctx context.Context, container domain.Container) error {
	existing, err := a.Registry.FindByLoggedContainer(ctx, container.URI)
	if err != nil {
		return fmt.Errorf("create monitor %s: check existing: %w", container.Name, err)
	}
	if existing != nil {
		a.logf(container).Debug("create monitor: already exists, skipping (benign race)")
		return nil
	}

	spec := a.Builder.Build(ctx, container)
	handle, err := a.Engine.Create(ctx, spec)
	if err != nil {
		return fmt.Errorf("create monitor %s: create companion: %w", container.Name, err)
	}

	if err := a.startAndAttach(ctx, container, handle); err != nil {
		a.compensate(ctx, handle.ID, container.ID)
		return err
	}

	monitor := domain.NewMonitor(handle.ID, container.URI)
	monitor.Status = domain.MonitorRunning
	if err := a.Registry.Save(ctx, &monitor); err != nil {
		a.compensate(ctx, handle.ID, container.ID)
		return fmt.Errorf("create monitor %s: save record: %w", container.Name, err)
	}
	return nil
}

func (a *Actions) startAndAttach(ctx context.Context, container domain.Container, handle ports.ContainerHandle) error {
	if err := a.Engine.Start(ctx, handle.ID); err != nil {
		return fmt.Errorf("create monitor %s: start companion: %w", container.Name, err)
	}
	if err := a.Engine.AttachNetwork(ctx, container.ID, a.Network); err != nil && !errors.Is(err, domain.ErrAlreadyAttached) {
		return fmt.Errorf("create monitor %s: attach network: %w", container.Name, err)
	}
	return nil
}

// compensate runs the best-effort cleanup CreateMonitor performs when it
// fails after the companion has already been created: remove the companion
// and detach the network if it was attached.
func (a *Actions) compensate(ctx context.Context, companionID, loggedContainerID string) {
	if err := a.Engine.Remove(ctx, companionID, true); err != nil && !errors.Is(err, domain.ErrNotFound) {
		a.Log.WithError(err).WithField("companion", companionID).Warn("create monitor: compensation remove failed")
	}
	if err := a.Engine.DetachNetwork(ctx, loggedContainerID, a.Network); err != nil {
		a.Log.WithError(err).WithField("container", loggedContainerID).Debug("create monitor: compensation detach failed, ignoring")
	}
}

// RemoveMonitor stops and removes the companion container and deletes its
// Monitor record. It is idempotent: a companion already gone (404) still
// results in the record being deleted, never an error surfaced to the
// caller.
//
// monitor.ID is matched against the registry's current record when
// non-empty (the reconciler and shutdown drain always know the exact id).
// Callers that only know a removal is imminent but not yet which companion
// will have been created for it — the delta handler, composing two rapid
// events on the same container within one serialized slot — may pass an
// empty ID, and RemoveMonitor targets whatever record is currently on file.
func (a *Actions) RemoveMonitor(ctx context.Context, container domain.Container, monitor domain.Monitor) error {
	existing, err := a.Registry.FindByLoggedContainer(ctx, container.URI)
	if err != nil {
		return fmt.Errorf("remove monitor %s: check existing: %w", container.Name, err)
	}
	if existing == nil {
		a.logf(container).Debug("remove monitor: record already gone, skipping")
		return nil
	}
	if monitor.ID != "" && existing.ID != monitor.ID {
		a.logf(container).Debug("remove monitor: record no longer matches, skipping")
		return nil
	}
	target := *existing

	if err := a.Engine.Stop(ctx, target.ID, stopDeadline); err != nil {
		a.Log.WithError(err).WithField("monitor", target.ID).Debug("remove monitor: stop failed, ignoring")
	}

	removeErr := a.Engine.Remove(ctx, target.ID, true)
	if removeErr != nil && !errors.Is(removeErr, domain.ErrNotFound) {
		return fmt.Errorf("remove monitor %s: remove companion: %w", container.Name, removeErr)
	}

	if err := a.Registry.Remove(ctx, target); err != nil {
		return fmt.Errorf("remove monitor %s: delete record: %w", container.Name, err)
	}

	if err := a.Engine.DetachNetwork(ctx, container.ID, a.Network); err != nil {
		a.Log.WithError(err).WithField("container", container.Name).Debug("remove monitor: detach network failed, ignoring")
	}
	return nil
}

// RestartMonitor is RemoveMonitor followed by CreateMonitor on the same
// logged container, executed verbatim within one serialized slot so that
// CreateMonitor's network-attach step always runs on restart too.
func (a *Actions) RestartMonitor(ctx context.Context, container domain.Container, monitor domain.Monitor) error {
	if err := a.RemoveMonitor(ctx, container, monitor); err != nil {
		a.Log.WithError(err).WithField("container", container.Name).Warn("restart monitor: remove step failed, attempting create anyway")
	}
	return a.CreateMonitor(ctx, container)
}

func (a *Actions) logf(container domain.Container) *logrus.Entry {
	return a.Log.WithField("container", container.Name)
}
