// Package lifecycle bootstraps the process's dependencies, starts the
// reconciler and HTTP server, and drives graceful shutdown on SIGINT/SIGTERM.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/mu-semtech/network-monitor/internal/adapters/httpapi"
	"github.com/mu-semtech/network-monitor/internal/config"
	"github.com/mu-semtech/network-monitor/internal/core/delta"
	"github.com/mu-semtech/network-monitor/internal/core/domain"
	"github.com/mu-semtech/network-monitor/internal/core/ports"
	"github.com/mu-semtech/network-monitor/internal/core/reconciler"
	"github.com/mu-semtech/network-monitor/internal/core/transition"
)

// Controller owns process bootstrap, the reconciler's run loop, the HTTP
// server, and shutdown drain.
type Controller struct {
	Config       config.Config
	Engine       ports.Engine
	Registry     ports.Registry
	Transition   *transition.Engine
	Reconciler   *reconciler.Reconciler
	DeltaHandler *delta.Handler
	Server       *httpapi.Server
	Log          *logrus.Entry
}

// Run blocks until a shutdown signal arrives or the HTTP server dies, then
// drains running monitors and returns the process exit code.
func (c *Controller) Run(ctx context.Context) int {
	if err := c.awaitReadiness(ctx); err != nil {
		c.Log.WithError(err).Error("lifecycle: readiness failed")
		return 1
	}

	reconcileCtx, cancelReconcile := context.WithCancel(ctx)
	defer cancelReconcile()
	go c.Reconciler.Run(reconcileCtx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- c.Server.App.Listen(":" + c.Config.HTTPPort)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		c.Log.Info("lifecycle: received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			c.Log.WithError(err).Error("lifecycle: http server exited unexpectedly")
		}
	case <-ctx.Done():
	}

	return c.shutdown(reconcileCtx, cancelReconcile)
}

func (c *Controller) shutdown(reconcileCtx context.Context, cancelReconcile context.CancelFunc) int {
	c.Server.SetExiting(true)
	c.DeltaHandler.Shutdown()
	cancelReconcile()
	_ = c.Server.App.ShutdownWithTimeout(5 * time.Second)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Config.ShutdownDeadline())
	defer cancel()

	if err := c.drainAll(shutdownCtx); err != nil {
		c.Log.WithError(err).Error("lifecycle: shutdown drain did not complete in time")
		return 1
	}
	_ = reconcileCtx
	c.Log.Info("lifecycle: shutdown complete")
	return 0
}

// awaitReadiness waits for the registry to answer queries, then the engine
// to respond to List, then pulls the monitor image, retrying indefinitely
// with exponential back-off for the image pull and with a capped retry for
// the two readiness probes (bounded by ctx in practice).
func (c *Controller) awaitReadiness(ctx context.Context) error {
	if err := backoff.Retry(func() error {
		ready, err := c.Registry.Ready(ctx)
		if err != nil {
			return err
		}
		if !ready {
			return errors.New("registry not yet ready")
		}
		return nil
	}, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return fmt.Errorf("registry readiness: %w", err)
	}

	if err := backoff.Retry(func() error {
		_, err := c.Engine.List(ctx)
		return err
	}, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return fmt.Errorf("engine readiness: %w", err)
	}

	pullBackoff := backoff.NewExponentialBackOff()
	pullBackoff.InitialInterval = time.Second
	pullBackoff.Multiplier = 2
	pullBackoff.RandomizationFactor = 0
	pullBackoff.MaxElapsedTime = 0 // retry indefinitely, per the documented 1s/2s/4s/... pull retry
	pullBackoff.Reset()
	if err := backoff.Retry(func() error {
		return c.Engine.Pull(ctx, c.Config.MonitorImage)
	}, backoff.WithContext(pullBackoff, ctx)); err != nil {
		return fmt.Errorf("pull monitor image: %w", err)
	}

	c.Server.SetReady(true)
	return nil
}

// drainAll enqueues RemoveMonitor for every running Monitor and waits for
// all of them to settle before returning.
func (c *Controller) drainAll(ctx context.Context) error {
	monitors, err := c.Registry.FindAll(ctx, domain.MonitorRunning)
	if err != nil {
		return fmt.Errorf("list running monitors: %w", err)
	}

	ids := make([]string, 0, len(monitors))
	for _, m := range monitors {
		loggedContainer, err := c.Registry.GetLoggedContainer(ctx, m)
		if err != nil {
			c.Log.WithError(err).WithField("monitor", m.ID).Warn("shutdown: could not resolve logged container")
			continue
		}
		if loggedContainer == nil {
			c.Log.WithField("monitor", m.ID).Warn("shutdown: logged container gone, removing record directly")
			if err := c.Registry.Remove(ctx, m); err != nil {
				c.Log.WithError(err).WithField("monitor", m.ID).Error("shutdown: remove orphaned record failed")
			}
			continue
		}
		mCopy := m
		c.Transition.Enqueue(ctx, loggedContainer.ID, transition.WorkItem{
			Action:    transition.ActionRemoveMonitor,
			Container: *loggedContainer,
			Monitor:   &mCopy,
		})
		ids = append(ids, loggedContainer.ID)
	}

	for _, id := range ids {
		if err := c.Transition.Wait(ctx, id); err != nil {
			return fmt.Errorf("wait for drain of %s: %w", id, err)
		}
	}
	return nil
}
