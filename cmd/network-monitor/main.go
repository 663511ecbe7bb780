package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/mu-semtech/network-monitor/internal/adapters/docker"
	"github.com/mu-semtech/network-monitor/internal/adapters/httpapi"
	"github.com/mu-semtech/network-monitor/internal/adapters/sparql"
	"github.com/mu-semtech/network-monitor/internal/config"
	"github.com/mu-semtech/network-monitor/internal/core/companion"
	"github.com/mu-semtech/network-monitor/internal/core/delta"
	"github.com/mu-semtech/network-monitor/internal/core/reconciler"
	"github.com/mu-semtech/network-monitor/internal/core/transition"
	"github.com/mu-semtech/network-monitor/internal/lifecycle"
)

func main() {
	log := logrus.New()
	if os.Getenv("LOG_FORMAT") == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration error")
	}

	engineAdapter, err := docker.New(cfg.DockerSocket)
	if err != nil {
		log.WithError(err).Fatal("failed to create docker engine adapter")
	}

	sparqlClient := sparql.NewClient(cfg.SparqlEndpoint)
	registryAdapter := sparql.New(sparqlClient, cfg.AppGraph, cfg.ContainerFilter)

	builder := &companion.Builder{
		Registry:                 registryAdapter,
		MonitorImage:             cfg.MonitorImage,
		PacketbeatMaxMessageSize: cfg.PacketbeatMaxMessageSize,
		PacketbeatListenPorts:    cfg.PacketbeatListenPorts,
	}

	actions := &transition.Actions{
		Engine:   engineAdapter,
		Registry: registryAdapter,
		Builder:  builder,
		Network:  cfg.LogstashNetwork,
		Log:      log.WithField("component", "transition"),
	}
	transitionEngine := transition.New(actions, log.WithField("component", "transition"))

	rec := reconciler.New(engineAdapter, registryAdapter, transitionEngine, cfg.SyncInterval(), log.WithField("component", "reconciler"))
	deltaHandler := delta.New(registryAdapter, transitionEngine, log.WithField("component", "delta"))
	server := httpapi.New(deltaHandler, log.WithField("component", "http"))

	ctrl := &lifecycle.Controller{
		Config:       cfg,
		Engine:       engineAdapter,
		Registry:     registryAdapter,
		Transition:   transitionEngine,
		Reconciler:   rec,
		DeltaHandler: deltaHandler,
		Server:       server,
		Log:          log.WithField("component", "lifecycle"),
	}

	os.Exit(ctrl.Run(context.Background()))
}
