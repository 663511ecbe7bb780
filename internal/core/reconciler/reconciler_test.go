package reconciler_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mu-semtech/network-monitor/internal/core/domain"
	"github.com/mu-semtech/network-monitor/internal/core/ports"
	"github.com/mu-semtech/network-monitor/internal/core/reconciler"
	"github.com/mu-semtech/network-monitor/internal/core/transition"
	"github.com/mu-semtech/network-monitor/internal/testutil"
)

type stubBuilder struct{}

func (stubBuilder) Build(ctx context.Context, container domain.Container) ports.ContainerSpec {
	return ports.ContainerSpec{Name: container.Name + "-monitor", Image: "monitor:latest"}
}

func newRig() (*testutil.FakeEngine, *testutil.FakeRegistry, *transition.Engine) {
	engine := testutil.NewFakeEngine()
	registry := testutil.NewFakeRegistry()
	log := logrus.NewEntry(logrus.New())
	actions := &transition.Actions{Engine: engine, Registry: registry, Builder: stubBuilder{}, Network: "logstash-net", Log: log}
	return engine, registry, transition.New(actions, log)
}

func waitAllQuiet(t *testing.T, te *transition.Engine, ids ...string) {
	for _, id := range ids {
		require.NoError(t, te.Wait(context.Background(), id))
	}
}

// S1: registry empty, engine has one eligible container. One pass creates a
// companion and a single running Monitor record.
func TestReconciler_S1_CreatesMonitorForNewContainer(t *testing.T) {
	engine, registry, te := newRig()
	log := logrus.NewEntry(logrus.New())

	c := domain.Container{URI: "u1", ID: "abc", Name: "svc", Image: "img", Status: domain.StatusRunning}
	registry.PutContainer(c)

	rec := reconciler.New(engine, registry, te, time.Hour, log)
	require.NoError(t, rec.Tick(context.Background()))
	waitAllQuiet(t, te, c.ID)

	m, ok := registry.MonitorFor(c.URI)
	require.True(t, ok)
	assert.Equal(t, domain.MonitorRunning, m.Status)
	assert.True(t, engine.Has(m.ID))
}

// Invariant 2: two consecutive passes with no external change enqueue
// nothing on the second.
func TestReconciler_ConvergesAfterOnePass(t *testing.T) {
	engine, registry, te := newRig()
	_ = engine
	log := logrus.NewEntry(logrus.New())

	c := domain.Container{URI: "u1", ID: "abc", Name: "svc", Image: "img", Status: domain.StatusRunning}
	registry.PutContainer(c)

	rec := reconciler.New(engine, registry, te, time.Hour, log)
	require.NoError(t, rec.Tick(context.Background()))
	waitAllQuiet(t, te, c.ID)

	require.NoError(t, rec.Tick(context.Background()))
	waitAllQuiet(t, te, c.ID)

	stats := rec.Stats()
	assert.Zero(t, stats.Created)
	assert.Zero(t, stats.Restarted)
	assert.Zero(t, stats.Removed)
}

// S2: crash recovery. After the companion is killed externally, the next
// pass restarts it and the registry converges back to a single running
// monitor with a new id.
func TestReconciler_S2_RestartsCrashedMonitor(t *testing.T) {
	engine, registry, te := newRig()
	log := logrus.NewEntry(logrus.New())

	c := domain.Container{URI: "u1", ID: "abc", Name: "svc", Image: "img", Status: domain.StatusRunning}
	registry.PutContainer(c)

	rec := reconciler.New(engine, registry, te, time.Hour, log)
	require.NoError(t, rec.Tick(context.Background()))
	waitAllQuiet(t, te, c.ID)

	oldMonitor, ok := registry.MonitorFor(c.URI)
	require.True(t, ok)
	engine.Kill(oldMonitor.ID)

	require.NoError(t, rec.Tick(context.Background()))
	waitAllQuiet(t, te, c.ID)

	newMonitor, ok := registry.MonitorFor(c.URI)
	require.True(t, ok)
	assert.NotEqual(t, oldMonitor.ID, newMonitor.ID)
	assert.Equal(t, domain.MonitorRunning, newMonitor.Status)
	assert.Equal(t, 1, registry.MonitorCount())
}

// Invariant 1: a container disappearing from the eligible set results in
// its monitor being removed, never duplicated.
func TestReconciler_RemovesMonitorForGoneContainer(t *testing.T) {
	engine, registry, te := newRig()
	log := logrus.NewEntry(logrus.New())

	c := domain.Container{URI: "u1", ID: "abc", Name: "svc", Image: "img", Status: domain.StatusRunning}
	registry.PutContainer(c)

	rec := reconciler.New(engine, registry, te, time.Hour, log)
	require.NoError(t, rec.Tick(context.Background()))
	waitAllQuiet(t, te, c.ID)

	m, ok := registry.MonitorFor(c.URI)
	require.True(t, ok)

	// Container stops being eligible (exits) but is still tracked.
	c.Status = domain.StatusExited
	registry.PutContainer(c)

	require.NoError(t, rec.Tick(context.Background()))
	waitAllQuiet(t, te, c.ID)

	assert.Equal(t, 0, registry.MonitorCount())
	assert.False(t, engine.Has(m.ID))
}

// When the logged container has vanished from the registry entirely (not
// just stopped), the orphaned monitor record is removed directly without
// going through the transition engine.
func TestReconciler_RemovesOrphanedRecordWithNoLoggedContainer(t *testing.T) {
	engine, registry, te := newRig()
	log := logrus.NewEntry(logrus.New())

	c := domain.Container{URI: "u1", ID: "abc", Name: "svc", Image: "img", Status: domain.StatusRunning}
	registry.PutContainer(c)

	rec := reconciler.New(engine, registry, te, time.Hour, log)
	require.NoError(t, rec.Tick(context.Background()))
	waitAllQuiet(t, te, c.ID)

	registry.RemoveContainer(c.URI)

	require.NoError(t, rec.Tick(context.Background()))
	waitAllQuiet(t, te, c.ID)

	assert.Equal(t, 0, registry.MonitorCount())
}
