package delta_test

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mu-semtech/network-monitor/internal/core/delta"
	"github.com/mu-semtech/network-monitor/internal/core/domain"
	"github.com/mu-semtech/network-monitor/internal/core/ports"
	"github.com/mu-semtech/network-monitor/internal/core/transition"
	"github.com/mu-semtech/network-monitor/internal/testutil"
)

type stubBuilder struct{}

func (stubBuilder) Build(ctx context.Context, container domain.Container) ports.ContainerSpec {
	return ports.ContainerSpec{Name: container.Name + "-monitor", Image: "monitor:latest"}
}

func newRig() (*testutil.FakeEngine, *testutil.FakeRegistry, *transition.Engine, *delta.Handler) {
	engine := testutil.NewFakeEngine()
	registry := testutil.NewFakeRegistry()
	log := logrus.NewEntry(logrus.New())
	actions := &transition.Actions{Engine: engine, Registry: registry, Builder: stubBuilder{}, Network: "logstash-net", Log: log}
	te := transition.New(actions, log)
	h := delta.New(registry, te, log)
	return engine, registry, te, h
}

// S3: a single exited-status delta for a logged container with a running
// monitor enqueues RemoveMonitor.
func TestHandler_S3_RemovesOnExit(t *testing.T) {
	engine, registry, te, h := newRig()

	c := domain.Container{URI: "u1", ID: "abc", Name: "svc", Image: "img", Status: domain.StatusRunning}
	registry.PutContainer(c)
	require.NoError(t, (&testCreateHelper{engine: engine, registry: registry}).create(c))

	body := []byte(`[
		{"inserts":[{"subject":"state:u1","predicate":"docker:status","object":"exited"}]},
		{"deletes":[]}
	]`)
	h.HandlePayload(context.Background(), body)
	require.NoError(t, te.Wait(context.Background(), c.ID))

	assert.Equal(t, 0, registry.MonitorCount())
}

// S4: two rapid deltas for the same container — created then exited —
// arriving before either processes must execute in that order and settle
// with no companion and no monitor record.
func TestHandler_S4_OrderedCreateThenRemove(t *testing.T) {
	_, registry, te, h := newRig()

	c := domain.Container{URI: "u1", ID: "abc", Name: "svc", Image: "img", Status: domain.StatusCreated}
	registry.PutContainer(c)

	body := []byte(`[
		{"inserts":[
			{"subject":"state:u1","predicate":"docker:status","object":"created"},
			{"subject":"state:u1","predicate":"docker:status","object":"exited"}
		]},
		{"deletes":[]}
	]`)
	h.HandlePayload(context.Background(), body)
	require.NoError(t, te.Wait(context.Background(), c.ID))

	assert.Equal(t, 0, registry.MonitorCount())
}

func TestHandler_CreatesOnNewRunningContainer(t *testing.T) {
	_, registry, te, h := newRig()

	c := domain.Container{URI: "u1", ID: "abc", Name: "svc", Image: "img", Status: domain.StatusRunning}
	registry.PutContainer(c)

	body := []byte(`[
		{"inserts":[{"subject":"state:u1","predicate":"docker:status","object":"running"}]},
		{"deletes":[]}
	]`)
	h.HandlePayload(context.Background(), body)
	require.NoError(t, te.Wait(context.Background(), c.ID))

	_, ok := registry.MonitorFor(c.URI)
	assert.True(t, ok)
}

func TestHandler_IgnoresNonStatusPredicates(t *testing.T) {
	_, registry, te, h := newRig()

	c := domain.Container{URI: "u1", ID: "abc", Name: "svc", Image: "img", Status: domain.StatusRunning}
	registry.PutContainer(c)

	body := []byte(`[
		{"inserts":[{"subject":"state:u1","predicate":"docker:name","object":"svc2"}]},
		{"deletes":[]}
	]`)
	h.HandlePayload(context.Background(), body)
	require.NoError(t, te.Wait(context.Background(), c.ID))

	_, ok := registry.MonitorFor(c.URI)
	assert.False(t, ok)
}

func TestHandler_DedupesIntraBatchEvents(t *testing.T) {
	_, registry, te, h := newRig()

	c := domain.Container{URI: "u1", ID: "abc", Name: "svc", Image: "img", Status: domain.StatusRunning}
	registry.PutContainer(c)

	body := []byte(`[
		{"inserts":[
			{"subject":"state:u1","predicate":"docker:status","object":"running"},
			{"subject":"state:u1","predicate":"docker:status","object":"running"}
		]},
		{"deletes":[]}
	]`)
	h.HandlePayload(context.Background(), body)
	require.NoError(t, te.Wait(context.Background(), c.ID))

	assert.Equal(t, 1, registry.MonitorCount())
}

func TestHandler_MalformedPayloadDoesNotPanic(t *testing.T) {
	_, _, _, h := newRig()
	assert.NotPanics(t, func() {
		h.HandlePayload(context.Background(), []byte(`not json`))
	})
}

func TestHandler_DropsEventsDuringShutdown(t *testing.T) {
	_, registry, te, h := newRig()
	h.Shutdown()

	c := domain.Container{URI: "u1", ID: "abc", Name: "svc", Image: "img", Status: domain.StatusRunning}
	registry.PutContainer(c)

	body := []byte(`[
		{"inserts":[{"subject":"state:u1","predicate":"docker:status","object":"running"}]},
		{"deletes":[]}
	]`)
	h.HandlePayload(context.Background(), body)
	require.NoError(t, te.Wait(context.Background(), c.ID))

	_, ok := registry.MonitorFor(c.URI)
	assert.False(t, ok)
}

// testCreateHelper seeds a running monitor the way CreateMonitor would, for
// tests that need pre-existing state before exercising the delta path.
type testCreateHelper struct {
	engine   *testutil.FakeEngine
	registry *testutil.FakeRegistry
}

func (h *testCreateHelper) create(c domain.Container) error {
	handle, err := h.engine.Create(context.Background(), ports.ContainerSpec{Name: c.Name + "-monitor", Image: "monitor:latest"})
	if err != nil {
		return err
	}
	if err := h.engine.Start(context.Background(), handle.ID); err != nil {
		return err
	}
	m := domain.NewMonitor(handle.ID, c.URI)
	m.Status = domain.MonitorRunning
	return h.registry.Save(context.Background(), &m)
}
