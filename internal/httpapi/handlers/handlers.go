package handlers

import (
	"context"

	"videogenie/internal/avatar"
	"videogenie/internal/enrichment"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/ports"
	"videogenie/internal/status"
	"videogenie/internal/storage"
)

// Enricher is satisfied by *enrichment.Coordinator.
type Enricher interface {
	EnrichAndEnqueue(ctx context.Context, req enrichment.Request) (string, error)
}

// AvatarSubmitter is satisfied by *avatar.Service.
type AvatarSubmitter interface {
	Submit(ctx context.Context, req avatar.SubmitRequest) (avatar.SubmitResult, error)
}

// Pinger is a dependency the deep health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Enricher Enricher
	Avatars  AvatarSubmitter
	Status   *status.Service
	Store    ports.JobStore
	Gateway  *storage.Gateway
	Queue    Pinger
	Log      *logger.Logger

	Service  string
	Version  string
	Degraded bool
}

type Handler struct {
	enricher Enricher
	avatars  AvatarSubmitter
	status   *status.Service
	store    ports.JobStore
	gw       *storage.Gateway
	queue    Pinger
	log      *logger.Logger

	service  string
	version  string
	degraded bool
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		enricher: d.Enricher,
		avatars:  d.Avatars,
		status:   d.Status,
		store:    d.Store,
		gw:       d.Gateway,
		queue:    d.Queue,
		log:      log,
		service:  d.Service,
		version:  d.Version,
		degraded: d.Degraded,
	}
}
