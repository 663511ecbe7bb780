// Package config loads the service's environment-variable surface (listed
// in SPEC_FULL.md §6) into a single validated struct, the way lighthouse-paas's sibling
// services in this family read their own process configuration once at
// startup rather than scattering os.Getenv calls through the core.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"

	"github.com/mu-semtech/network-monitor/internal/core/domain"
)

// Config is the full set of environment knobs the lifecycle controller reads
// once at process start. A missing required field is a fatal configuration
// error (domain.ErrConfig), never a runtime error discovered mid-reconcile.
type Config struct {
	MonitorImage      string `env:"MONITOR_IMAGE,required"`
	SyncIntervalMS    int    `env:"CAPTURE_SYNC_INTERVAL" envDefault:"10000"`
	AppGraph          string `env:"APPLICATION_GRAPH,required"`
	ContainerFilter   string `env:"CAPTURE_CONTAINER_FILTER" envDefault:""`
	LogstashNetwork   string `env:"LOGSTASH_NETWORK,required"`
	DockerSocket      string `env:"CAPTURE_DOCKER_SOCKET" envDefault:"unix:///var/run/docker.sock"`
	SparqlEndpoint    string `env:"MU_SPARQL_ENDPOINT,required"`
	HTTPPort          string `env:"HTTP_PORT" envDefault:"80"`
	ShutdownDeadlineS int    `env:"SHUTDOWN_DEADLINE" envDefault:"10"`

	PacketbeatMaxMessageSize string `env:"PACKETBEAT_MAX_MESSAGE_SIZE" envDefault:""`
	PacketbeatListenPorts    string `env:"PACKETBEAT_LISTEN_PORTS" envDefault:""`
}

// SyncInterval is the reconciler period as a time.Duration, converted from
// the millisecond environment value.
func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMS) * time.Millisecond
}

// ShutdownDeadline is how long the lifecycle controller waits for the
// transition engine to drain before forcing a non-zero exit.
func (c Config) ShutdownDeadline() time.Duration {
	return time.Duration(c.ShutdownDeadlineS) * time.Second
}

// Load parses the process environment into a Config, wrapping any missing-
// or malformed-variable error with domain.ErrConfig so callers can treat it
// as the one fatal-at-startup error kind.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}
	if cfg.SyncIntervalMS <= 0 {
		return Config{}, fmt.Errorf("%w: CAPTURE_SYNC_INTERVAL must be positive", domain.ErrConfig)
	}
	return cfg, nil
}
