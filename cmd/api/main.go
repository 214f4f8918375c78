package main

import (
	"context"
	"net/http"
	"time"

	"videogenie/internal/avatar"
	"videogenie/internal/bootstrap"
	"videogenie/internal/config"
	"videogenie/internal/enrichment"
	"videogenie/internal/httpapi"
	"videogenie/internal/httpapi/handlers"
	"videogenie/internal/metrics"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/pkg/shutdown"
	"videogenie/internal/queue"
	"videogenie/internal/skill"
	"videogenie/internal/status"
	"videogenie/internal/storage"
	"videogenie/internal/worker"
	"videogenie/internal/worker/processor"
	"videogenie/internal/worker/renderer"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("failed to load configuration", err)
	}

	log := logger.New(cfg.LoggerConfig())
	if err := cfg.Validate(config.RoleAPI); err != nil {
		log.LogFatal("invalid configuration", err)
	}

	log.Info("starting videogenie API",
		"version", version,
		"job_store", cfg.JobStore,
		"queue_backend", cfg.Queue.Backend,
	)

	ctx := context.Background()
	metrics.Register()

	// Initialize shutdown manager
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	infra, err := bootstrap.Open(ctx, cfg, log, shutdownMgr)
	if err != nil {
		log.LogFatal("failed to open backing services", err)
	}
	publisher := queue.NewRetryingPublisher(infra.Queue, cfg.Queue.PublishAttempts, log)

	skills, err := skill.New(cfg.Skill, log)
	if err != nil {
		log.LogFatal("failed to initialize skill invoker", err)
	}
	coordinator := enrichment.New(skill.Instrument(skills, log), infra.Store, publisher, log)

	// Initialize storage provider
	log.Info("initializing storage provider")
	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	gw := storage.NewGateway(sp)
	log.Info("storage provider initialized", "provider", sp.Provider())

	rend, err := renderer.New(cfg.Render, log)
	if err != nil {
		log.LogFatal("renderer unavailable", err)
	}

	proc := processor.New(processor.Deps{
		Store:            infra.Store,
		Gateway:          gw,
		Renderer:         rend,
		HTTP:             &http.Client{},
		Log:              log,
		WorkRoot:         cfg.Render.WorkRoot,
		RenderTimeout:    cfg.Render.Timeout,
		StaleAfter:       cfg.StaleRenderAfter(),
		DefaultQuality:   cfg.Render.DefaultQuality,
		DownloadTimeout:  cfg.Render.DownloadTimeout,
		DownloadAttempts: cfg.Render.DownloadAttempts,
		DownloadMaxBytes: cfg.Render.DownloadMaxBytes,
	})
	pool := worker.NewPool(proc, cfg.Avatar.Workers, cfg.Avatar.QueueDepth, log)
	shutdownMgr.Register("avatar-pool", pool.Shutdown)

	router := httpapi.NewRouter(httpapi.Deps{
		Handlers: handlers.Deps{
			Enricher: coordinator,
			Avatars:  avatar.NewService(infra.Store, pool, log),
			Status:   status.NewService(infra.Store, gw),
			Store:    infra.Store,
			Gateway:  gw,
			Queue:    infra.Queue,
			Service:  cfg.Service.Name,
			Version:  version,
			Degraded: rend.Degraded(),
		},
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Log:         log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Registered last so it stops first.
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening",
			"addr", server.Addr,
			"port", cfg.HTTP.Port,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	// Wait for shutdown signal
	shutdownMgr.Wait()
}
