// Package reconciler implements the periodic sweep that diffs the engine's
// live eligible containers against the registry's persisted Monitor records
// and enqueues the corrective transition-engine actions.
package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mu-semtech/network-monitor/internal/core/domain"
	"github.com/mu-semtech/network-monitor/internal/core/ports"
	"github.com/mu-semtech/network-monitor/internal/core/transition"
)

// Stats is the outcome of the most recently completed reconciler pass, read
// through Reconciler.Stats; the HTTP health/ready probes do not report it.
type Stats struct {
	Created   int
	Restarted int
	Removed   int
	RanAt     time.Time
}

// Reconciler runs Tick on a fixed period until its context is cancelled.
type Reconciler struct {
	engine     ports.Engine
	registry   ports.Registry
	transition *transition.Engine
	interval   time.Duration
	log        *logrus.Entry

	mu    sync.Mutex
	stats Stats
}

// New builds a Reconciler that sweeps every interval. engine is consulted
// directly to tell whether a monitor's companion is still alive: the
// registry's own mirror of companion container events lags behind an
// external kill by however long the docker-logger side takes to observe and
// publish it, which is too slow for a crash-recovery pass to rely on.
func New(engine ports.Engine, registry ports.Registry, transitionEngine *transition.Engine, interval time.Duration, log *logrus.Entry) *Reconciler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Reconciler{
		engine:     engine,
		registry:   registry,
		transition: transitionEngine,
		interval:   interval,
		log:        log,
	}
}

// Run starts the periodic sweep; it blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.log.WithError(err).Error("reconciler: pass failed")
			}
		}
	}
}

// Stats returns the outcome of the most recently completed pass.
func (r *Reconciler) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Tick runs a single reconciliation pass: it never blocks on the actions it
// enqueues, returning as soon as all corrective intents have been submitted
// to the transition engine.
func (r *Reconciler) Tick(ctx context.Context) error {
	monitors, err := r.registry.FindAll(ctx, domain.MonitorRunning)
	if err != nil {
		return err
	}
	containers, err := r.registry.LoggedContainers(ctx)
	if err != nil {
		return err
	}

	byContainer := make(map[string]domain.Monitor, len(monitors))
	for _, m := range monitors {
		byContainer[m.DockerContainer] = m
	}

	var created, restarted, removed int

	for _, c := range containers {
		m, ok := byContainer[c.URI]
		if !ok {
			r.transition.Enqueue(ctx, c.ID, transition.WorkItem{
				Action:    transition.ActionCreateMonitor,
				Container: c,
			})
			created++
			continue
		}
		delete(byContainer, c.URI)

		if r.companionAlive(ctx, m) {
			continue
		}
		mCopy := m
		r.transition.Enqueue(ctx, c.ID, transition.WorkItem{
			Action:    transition.ActionRestartMonitor,
			Container: c,
			Monitor:   &mCopy,
		})
		restarted++
	}

	for _, m := range byContainer {
		loggedContainer, err := r.registry.GetLoggedContainer(ctx, m)
		if err != nil {
			r.log.WithError(err).WithField("monitor", m.ID).Error("reconciler: resolve logged container failed")
			continue
		}
		mCopy := m
		if loggedContainer != nil {
			r.transition.Enqueue(ctx, loggedContainer.ID, transition.WorkItem{
				Action:    transition.ActionRemoveMonitor,
				Container: *loggedContainer,
				Monitor:   &mCopy,
			})
		} else {
			if err := r.registry.Remove(ctx, mCopy); err != nil {
				r.log.WithError(err).WithField("monitor", m.ID).Error("reconciler: remove orphaned record failed")
				continue
			}
		}
		removed++
	}

	r.mu.Lock()
	r.stats = Stats{Created: created, Restarted: restarted, Removed: removed, RanAt: timeNow()}
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"created":   created,
		"restarted": restarted,
		"removed":   removed,
	}).Debug("reconciler: pass complete")
	return nil
}

// companionAlive reports whether m's companion container is both present on
// the engine and in a running/created state — a killed-but-not-removed
// companion (docker kill, state "exited") is still listed by the engine and
// must be treated as crashed, not just an absent one. Any error other than
// ErrNotFound is treated as "can't tell, assume alive" so a transient
// engine hiccup doesn't trigger a storm of unnecessary restarts.
func (r *Reconciler) companionAlive(ctx context.Context, m domain.Monitor) bool {
	handle, err := r.engine.Get(ctx, m.ID)
	if err != nil {
		return !errors.Is(err, domain.ErrNotFound)
	}
	return domain.ContainerStatus(handle.Status).Alive()
}

// timeNow is a seam for deterministic tests.
var timeNow = time.Now
