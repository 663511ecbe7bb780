package ports

import (
	"context"
	"time"
)

// ContainerSpec describes a companion container to be created by Engine.Create.
type ContainerSpec struct {
	Name        string
	Image       string
	Env         []string
	Labels      map[string]string
	NetworkMode string // e.g. "container:<id>"
	CapAdd      []string
}

// ContainerHandle is the engine's view of a container after Create or Get.
type ContainerHandle struct {
	ID     string
	Name   string
	Status string
}

// Engine is the narrow, synchronous-looking contract over the container
// engine that the core depends on. Every method is fallible; ErrNotFound and
// ErrAlreadyAttached from internal/core/domain are the error kinds the core
// distinguishes by identity, via errors.Is.
type Engine interface {
	// List returns the currently running containers known to the engine.
	// Used only for readiness.
	List(ctx context.Context) ([]ContainerHandle, error)

	// Pull blocks until image is present locally, draining the engine's
	// progress stream before returning.
	Pull(ctx context.Context, image string) error

	// Create makes a container from spec without starting it.
	Create(ctx context.Context, spec ContainerSpec) (ContainerHandle, error)

	// Start starts a previously created container.
	Start(ctx context.Context, id string) error

	// Stop asks a running container to stop within deadline. Errors
	// (including "already stopped") are the caller's to ignore.
	Stop(ctx context.Context, id string, deadline time.Duration) error

	// Remove deletes a container. ErrNotFound is a valid terminal state.
	Remove(ctx context.Context, id string, force bool) error

	// AttachNetwork attaches containerID to network. ErrAlreadyAttached is a
	// valid terminal state.
	AttachNetwork(ctx context.Context, containerID, network string) error

	// DetachNetwork detaches containerID from network.
	DetachNetwork(ctx context.Context, containerID, network string) error

	// Get is a pure lookup of a container's current handle; it does not
	// imply a fresh round-trip beyond what the engine itself performs.
	Get(ctx context.Context, id string) (ContainerHandle, error)
}
