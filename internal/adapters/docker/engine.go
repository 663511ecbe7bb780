// Package docker adapts the Docker Engine API (github.com/docker/docker/client)
// to the ports.Engine contract, the same client family lighthouse-paas's own
// Docker adapter builds on.
package docker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	"github.com/mu-semtech/network-monitor/internal/core/domain"
	"github.com/mu-semtech/network-monitor/internal/core/ports"
)

// Adapter implements ports.Engine against a real Docker daemon.
type Adapter struct {
	cli *client.Client
}

// New creates a Docker client against socket (CAPTURE_DOCKER_SOCKET). An
// empty socket falls back to the environment-provided default, the same
// client.FromEnv behavior the teacher's adapter relies on.
func New(socket string) (*Adapter, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if socket != "" {
		opts = append(opts, client.WithHost(socket))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker: create client: %w", err)
	}
	return &Adapter{cli: cli}, nil
}

// List returns the currently running containers known to the engine, used
// only for readiness.
func (a *Adapter) List(ctx context.Context) ([]ports.ContainerHandle, error) {
	list, err := a.cli.ContainerList(ctx, dockertypes.ContainerListOptions{})
	if err != nil {
		return nil, wrapErr("list", err)
	}
	result := make([]ports.ContainerHandle, 0, len(list))
	for _, c := range list {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		result = append(result, ports.ContainerHandle{ID: c.ID, Name: name, Status: c.State})
	}
	return result, nil
}

// Pull blocks until image is present locally by draining the engine's
// progress stream before returning.
func (a *Adapter) Pull(ctx context.Context, image string) error {
	reader, err := a.cli.ImagePull(ctx, image, dockertypes.ImagePullOptions{})
	if err != nil {
		return wrapErr("pull", err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return wrapErr("pull: drain progress stream", err)
	}
	return nil
}

// Create makes a container from spec without starting it.
func (a *Adapter) Create(ctx context.Context, spec ports.ContainerSpec) (ports.ContainerHandle, error) {
	resp, err := a.cli.ContainerCreate(ctx,
		&container.Config{
			Image:     spec.Image,
			Env:       spec.Env,
			Labels:    spec.Labels,
			OpenStdin: false,
			Tty:       false,
		},
		&container.HostConfig{
			NetworkMode: container.NetworkMode(spec.NetworkMode),
			CapAdd:      spec.CapAdd,
		},
		nil, nil, spec.Name,
	)
	if err != nil {
		return ports.ContainerHandle{}, wrapErr("create", err)
	}
	return ports.ContainerHandle{ID: resp.ID, Name: spec.Name}, nil
}

// Start starts a previously created container.
func (a *Adapter) Start(ctx context.Context, id string) error {
	if err := a.cli.ContainerStart(ctx, id, dockertypes.ContainerStartOptions{}); err != nil {
		return wrapErr("start", err)
	}
	return nil
}

// Stop asks a running container to stop within deadline. Failures
// (including "already stopped") are the caller's to ignore.
func (a *Adapter) Stop(ctx context.Context, id string, deadline time.Duration) error {
	secs := int(deadline.Seconds())
	if err := a.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &secs}); err != nil {
		return wrapErr("stop", err)
	}
	return nil
}

// Remove deletes a container. ErrNotFound is a valid terminal state.
func (a *Adapter) Remove(ctx context.Context, id string, force bool) error {
	if err := a.cli.ContainerRemove(ctx, id, dockertypes.ContainerRemoveOptions{Force: force}); err != nil {
		return wrapErr("remove", err)
	}
	return nil
}

// AttachNetwork attaches containerID to networkName. ErrAlreadyAttached is
// a valid terminal state.
func (a *Adapter) AttachNetwork(ctx context.Context, containerID, networkName string) error {
	if err := a.cli.NetworkConnect(ctx, networkName, containerID, &network.EndpointSettings{}); err != nil {
		return wrapErr("attach network", err)
	}
	return nil
}

// DetachNetwork detaches containerID from networkName.
func (a *Adapter) DetachNetwork(ctx context.Context, containerID, networkName string) error {
	if err := a.cli.NetworkDisconnect(ctx, networkName, containerID, true); err != nil {
		return wrapErr("detach network", err)
	}
	return nil
}

// Get is a pure lookup of a container's current handle.
func (a *Adapter) Get(ctx context.Context, id string) (ports.ContainerHandle, error) {
	info, err := a.cli.ContainerInspect(ctx, id)
	if err != nil {
		return ports.ContainerHandle{}, wrapErr("get", err)
	}
	status := ""
	if info.State != nil {
		status = info.State.Status
	}
	return ports.ContainerHandle{ID: info.ID, Name: strings.TrimPrefix(info.Name, "/"), Status: status}, nil
}

// wrapErr normalizes Docker client errors into the core's distinguished
// error kinds via errdefs, falling back to a plain wrapped error for
// everything else (treated as a transient engine error by callers).
func wrapErr(op string, err error) error {
	switch {
	case errdefs.IsNotFound(err):
		return fmt.Errorf("docker: %s: %w", op, domain.ErrNotFound)
	case errdefs.IsForbidden(err):
		return fmt.Errorf("docker: %s: %w", op, domain.ErrAlreadyAttached)
	default:
		return fmt.Errorf("docker: %s: %w", op, err)
	}
}
