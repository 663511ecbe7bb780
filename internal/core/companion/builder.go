// Package companion builds the ContainerSpec for a monitor's companion
// container from the logged container it will watch, per the companion
// container spec in SPEC_FULL.md §6: shared network namespace, packet-capture
// capabilities, and environment resolved in part from registry labels.
package companion

import (
	"context"
	"fmt"

	"github.com/mu-semtech/network-monitor/internal/core/domain"
	"github.com/mu-semtech/network-monitor/internal/core/ports"
)

// networkMonitorLabel is the label key the eligibility query excludes on,
// so a companion container is never itself mistaken for an eligible logged
// container.
const networkMonitorLabel = "mu.semte.ch.networkMonitor"

const (
	composeServiceLabel = "com.docker.compose.service"
	composeProjectLabel = "com.docker.compose.project"
)

// Builder constructs the ContainerSpec CreateMonitor passes to Engine.Create.
type Builder struct {
	Registry ports.Registry

	MonitorImage             string
	PacketbeatMaxMessageSize string
	PacketbeatListenPorts    string
}

// Build resolves COMPOSE_SERVICE/COMPOSE_PROJECT from the registry's label
// mirror and assembles the full companion spec for container.
func (b *Builder) Build(ctx context.Context, container domain.Container) ports.ContainerSpec {
	composeService, _ := b.Registry.LabelValue(ctx, container.ID, composeServiceLabel)
	composeProject, _ := b.Registry.LabelValue(ctx, container.ID, composeProjectLabel)

	env := []string{
		"LOGSTASH_URL=logstash:5044",
		"DOCKER_ID=" + container.ID,
		"DOCKER_NAME=" + container.Name,
		"DOCKER_IMAGE=" + container.Image,
		"COMPOSE_SERVICE=" + composeService,
		"COMPOSE_PROJECT=" + composeProject,
	}
	if b.PacketbeatMaxMessageSize != "" {
		env = append(env, "PACKETBEAT_MAX_MESSAGE_SIZE="+b.PacketbeatMaxMessageSize)
	}
	if b.PacketbeatListenPorts != "" {
		env = append(env, "PACKETBEAT_LISTEN_PORTS="+b.PacketbeatListenPorts)
	}

	return ports.ContainerSpec{
		Name:  fmt.Sprintf("%s-monitor", container.Name),
		Image: b.MonitorImage,
		Env:   env,
		Labels: map[string]string{
			networkMonitorLabel: container.URI,
		},
		NetworkMode: fmt.Sprintf("container:%s", container.ID),
		CapAdd:      []string{"NET_ADMIN", "NET_RAW"},
	}
}
