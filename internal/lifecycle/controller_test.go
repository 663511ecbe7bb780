package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mu-semtech/network-monitor/internal/adapters/httpapi"
	"github.com/mu-semtech/network-monitor/internal/config"
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

func newController(t *testing.T) (*Controller, *testutil.FakeEngine, *testutil.FakeRegistry) {
	engine := testutil.NewFakeEngine()
	registry := testutil.NewFakeRegistry()
	log := logrus.NewEntry(logrus.New())
	actions := &transition.Actions{Engine: engine, Registry: registry, Builder: stubBuilder{}, Network: "net", Log: log}
	te := transition.New(actions, log)
	h := delta.New(registry, te, log)
	server := httpapi.New(h, log)

	ctrl := &Controller{
		Config:       config.Config{ShutdownDeadlineS: 5},
		Engine:       engine,
		Registry:     registry,
		Transition:   te,
		DeltaHandler: h,
		Server:       server,
		Log:          log,
	}
	return ctrl, engine, registry
}

// Invariant 6: shutdown drains every running monitor, leaving no companion
// and no registry record behind.
func TestDrainAll_RemovesEveryRunningMonitor(t *testing.T) {
	ctrl, engine, registry := newController(t)

	c := domain.Container{URI: "http://example.org/containers/1", ID: "abc", Name: "svc", Image: "img", Status: domain.StatusRunning}
	registry.PutContainer(c)

	actions := &transition.Actions{Engine: engine, Registry: registry, Builder: stubBuilder{}, Network: "net", Log: ctrl.Log}
	require.NoError(t, actions.CreateMonitor(context.Background(), c))
	m, ok := registry.MonitorFor(c.URI)
	require.True(t, ok)
	require.True(t, engine.Has(m.ID))

	require.NoError(t, ctrl.drainAll(context.Background()))

	assert.Equal(t, 0, registry.MonitorCount())
	assert.False(t, engine.Has(m.ID))
}

// A monitor record whose logged container has vanished entirely is removed
// directly, without routing through the transition engine.
func TestDrainAll_RemovesOrphanedRecordDirectly(t *testing.T) {
	ctrl, _, registry := newController(t)

	orphan := domain.NewMonitor("dangling-companion", "http://example.org/containers/gone")
	orphan.Status = domain.MonitorRunning
	require.NoError(t, registry.Save(context.Background(), &orphan))

	require.NoError(t, ctrl.drainAll(context.Background()))
	assert.Equal(t, 0, registry.MonitorCount())
}

func TestAwaitReadiness_WaitsForRegistryAndEngineThenPullsImage(t *testing.T) {
	ctrl, _, registry := newController(t)
	ctrl.Config.MonitorImage = "network-monitor/packetbeat:latest"
	registry.SetReady(false)

	go func() {
		time.Sleep(10 * time.Millisecond)
		registry.SetReady(true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ctrl.awaitReadiness(ctx))
}
