// Package delta consumes the mu-semtech delta-notifier's change events and
// enqueues the single transition-engine action each status-change triple
// implies, as a low-latency complement to the reconciler's periodic sweep.
package delta

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/mu-semtech/network-monitor/internal/core/domain"
	"github.com/mu-semtech/network-monitor/internal/core/ports"
	"github.com/mu-semtech/network-monitor/internal/core/transition"
)

// statusPredicate is the only predicate the handler reacts to; every other
// insert in a delta batch is ignored.
const statusPredicate = "docker:status"

// Triple is one RDF statement as delivered by the delta-notifier.
type Triple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// Message is one element of the two-element delta payload array.
type Message struct {
	Inserts []Triple `json:"inserts"`
	Deletes []Triple `json:"deletes"`
}

// Handler processes POST /.mu/delta bodies. It is a read-only observer of
// the registry: all mutation happens via the transition engine it feeds.
type Handler struct {
	registry   ports.Registry
	transition *transition.Engine
	log        *logrus.Entry
	exiting    atomic.Bool
}

// New builds a Handler.
func New(registry ports.Registry, transitionEngine *transition.Engine, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{registry: registry, transition: transitionEngine, log: log}
}

// Shutdown makes the handler a no-op for any payload received afterward,
// per the lifecycle controller's shutdown sequence.
func (h *Handler) Shutdown() {
	h.exiting.Store(true)
}

// HandlePayload parses raw and enqueues the intents it implies. It never
// returns an error that should change the HTTP response: a malformed body
// is logged (with the raw body, per the brittleness of the two-element
// convention) and otherwise ignored so upstream doesn't retry-storm.
func (h *Handler) HandlePayload(ctx context.Context, raw []byte) {
	if h.exiting.Load() {
		return
	}

	inserts, err := parseInserts(raw)
	if err != nil {
		h.log.WithError(err).WithField("body", string(raw)).Warn("delta: malformed payload")
		return
	}

	cache := newBatchCache()
	seen := make(map[string]bool, len(inserts))
	for _, t := range inserts {
		if t.Predicate != statusPredicate {
			continue
		}
		key := t.Subject + "|" + t.Object
		if seen[key] {
			continue
		}
		seen[key] = true

		if err := h.handleStatusChange(ctx, cache, t.Subject, domain.ContainerStatus(t.Object)); err != nil {
			h.log.WithError(err).WithField("state", t.Subject).Warn("delta: failed to process status change")
		}
	}
}

// batchCache tracks, within a single HandlePayload call, the monitor
// existence this handler has already decided to bring about for a logged
// container uri. Two rapid events for the same container arriving in one
// batch must compose against each other's *intended* effect, not against
// the registry's stale snapshot — the enqueued actions haven't run yet, so
// a plain registry re-read would see neither of them.
type batchCache struct {
	exists map[string]bool
	ids    map[string]string
}

func newBatchCache() *batchCache {
	return &batchCache{exists: make(map[string]bool), ids: make(map[string]string)}
}

// parseInserts decodes the two-element payload and returns whichever
// element's inserts are non-empty, per the "exactly one of the two entries
// carries inserts" convention.
func parseInserts(raw []byte) ([]Triple, error) {
	var messages []Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("decode delta payload: %w", err)
	}
	for _, m := range messages {
		if len(m.Inserts) > 0 {
			return m.Inserts, nil
		}
	}
	return nil, nil
}

func (h *Handler) handleStatusChange(ctx context.Context, cache *batchCache, stateURI string, newStatus domain.ContainerStatus) error {
	container, err := h.registry.ContainerByState(ctx, stateURI)
	if err != nil {
		return fmt.Errorf("resolve container for state %s: %w", stateURI, err)
	}
	if container == nil {
		return nil
	}

	eligible, err := h.registry.IsEligible(ctx, container.URI)
	if err != nil {
		return fmt.Errorf("check eligibility of %s: %w", container.URI, err)
	}

	if eligible {
		return h.handleLoggedContainerStatus(ctx, cache, *container, newStatus)
	}
	return h.handleMonitorHostStatus(ctx, *container, newStatus)
}

func (h *Handler) handleLoggedContainerStatus(ctx context.Context, cache *batchCache, container domain.Container, newStatus domain.ContainerStatus) error {
	exists, id, err := cache.lookup(ctx, h.registry, container.URI)
	if err != nil {
		return fmt.Errorf("find monitor for %s: %w", container.URI, err)
	}

	switch {
	case newStatus.Alive() && !exists:
		h.transition.Enqueue(ctx, container.ID, transition.WorkItem{
			Action:    transition.ActionCreateMonitor,
			Container: container,
		})
		cache.set(container.URI, true, "")
	case !newStatus.Alive() && exists:
		h.transition.Enqueue(ctx, container.ID, transition.WorkItem{
			Action:    transition.ActionRemoveMonitor,
			Container: container,
			Monitor:   &domain.Monitor{ID: id, DockerContainer: container.URI},
		})
		cache.set(container.URI, false, "")
	}
	return nil
}

// lookup returns the batch's current belief about whether a monitor exists
// for containerURI, seeding it from the registry on first touch.
func (c *batchCache) lookup(ctx context.Context, registry ports.Registry, containerURI string) (bool, string, error) {
	if exists, ok := c.exists[containerURI]; ok {
		return exists, c.ids[containerURI], nil
	}
	m, err := registry.FindByLoggedContainer(ctx, containerURI)
	if err != nil {
		return false, "", err
	}
	if m == nil {
		c.set(containerURI, false, "")
		return false, "", nil
	}
	c.set(containerURI, true, m.ID)
	return true, m.ID, nil
}

func (c *batchCache) set(containerURI string, exists bool, id string) {
	c.exists[containerURI] = exists
	c.ids[containerURI] = id
}

// handleMonitorHostStatus handles the case where the container the event
// concerns is itself a monitor's companion, not a logged container.
func (h *Handler) handleMonitorHostStatus(ctx context.Context, container domain.Container, newStatus domain.ContainerStatus) error {
	if newStatus.Alive() {
		return nil
	}
	monitor, err := h.registry.FindByMonitorHost(ctx, container.ID)
	if err != nil {
		return fmt.Errorf("find monitor for host %s: %w", container.ID, err)
	}
	if monitor == nil {
		return nil
	}

	loggedContainer, err := h.registry.GetLoggedContainer(ctx, *monitor)
	if err != nil {
		return fmt.Errorf("resolve logged container for monitor %s: %w", monitor.ID, err)
	}
	if loggedContainer == nil {
		return nil
	}

	h.transition.Enqueue(ctx, loggedContainer.ID, transition.WorkItem{
		Action:    transition.ActionRestartMonitor,
		Container: *loggedContainer,
		Monitor:   monitor,
	})
	return nil
}
