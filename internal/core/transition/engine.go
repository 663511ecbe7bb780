// Package transition implements the per-container serialized action
// executor that is the sole mutator of Monitor records and the companion
// containers it spawns. Exactly one action is in flight per container id at
// any instant; actions on different container ids run with unbounded
// parallelism.
package transition

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mu-semtech/network-monitor/internal/core/domain"
)

// Action identifies which of the three transitions a queued WorkItem
// performs.
type Action int

const (
	ActionCreateMonitor Action = iota
	ActionRemoveMonitor
	ActionRestartMonitor
)

func (a Action) String() string {
	switch a {
	case ActionCreateMonitor:
		return "CreateMonitor"
	case ActionRemoveMonitor:
		return "RemoveMonitor"
	case ActionRestartMonitor:
		return "RestartMonitor"
	default:
		return "unknown"
	}
}

// WorkItem is one queued transition for a single logged container.
type WorkItem struct {
	Action    Action
	Container domain.Container
	Monitor   *domain.Monitor // nil for CreateMonitor
}

// Runner executes a WorkItem. Actions implements this for the three
// transitions; tests substitute a stub.
type Runner interface {
	Run(ctx context.Context, item WorkItem) error
}

// containerQueue is the FIFO work queue and drain state for one container
// id. It is a plain mutex-guarded slice rather than a channel so that
// Enqueue never blocks a caller, matching the "returns immediately" Enqueue
// contract the reconciler and delta handler depend on.
type containerQueue struct {
	mu         sync.Mutex
	items      []WorkItem
	processing bool
	done       chan struct{} // closed and replaced every time the queue fully drains
}

func newContainerQueue() *containerQueue {
	return &containerQueue{done: make(chan struct{})}
}

// Engine is the transition engine: a registry of per-container queues plus
// the Runner that actually performs CreateMonitor/RemoveMonitor/
// RestartMonitor.
type Engine struct {
	runner Runner
	log    *logrus.Entry

	mu     sync.Mutex
	queues map[string]*containerQueue
}

// New builds a transition Engine that dispatches queued work to runner.
func New(runner Runner, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		runner: runner,
		log:    log,
		queues: make(map[string]*containerQueue),
	}
}

func (e *Engine) queueFor(containerID string) *containerQueue {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queues[containerID]
	if !ok {
		q = newContainerQueue()
		e.queues[containerID] = q
	}
	return q
}

// Enqueue appends item to the queue for containerID. ctx is consulted only
// to reject an already-abandoned request without blocking; once accepted,
// the item runs to completion under a context the engine owns itself,
// never the caller's. A caller's context is typically scoped to something
// far shorter-lived than the action it triggers — an HTTP request, a
// single reconcile pass — and actions do not support mid-flight
// cancellation (§4.3/§5): cancelling one here would abandon a companion
// container half-created or half-removed with no one left to clean it up.
// If no action is currently in flight for this container, a drain
// goroutine is started; otherwise the item waits behind whatever is
// already queued. Enqueue never blocks on the action's completion.
func (e *Engine) Enqueue(ctx context.Context, containerID string, item WorkItem) {
	if ctx.Err() != nil {
		return
	}

	q := e.queueFor(containerID)

	q.mu.Lock()
	q.items = append(q.items, item)
	start := !q.processing
	if start {
		q.processing = true
	}
	q.mu.Unlock()

	if start {
		go e.drain(containerID, q)
	}
}

// drain pops and executes items for one container's queue until it is
// empty, then flips processing off and wakes any Wait callers. Every item
// runs under context.Background(), deliberately detached from whatever
// context was live at Enqueue time.
func (e *Engine) drain(containerID string, q *containerQueue) {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.processing = false
			done := q.done
			q.done = make(chan struct{})
			q.mu.Unlock()
			close(done)
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		if err := e.runner.Run(context.Background(), item); err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"container": containerID,
				"action":    item.Action.String(),
			}).Error("transition: action failed")
		}
	}
}

// Wait blocks until the queue for containerID is empty and no action is in
// flight for it, or until ctx is done. It returns immediately if the queue
// is already empty.
func (e *Engine) Wait(ctx context.Context, containerID string) error {
	q := e.queueFor(containerID)
	for {
		q.mu.Lock()
		if !q.processing && len(q.items) == 0 {
			q.mu.Unlock()
			return nil
		}
		done := q.done
		q.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
