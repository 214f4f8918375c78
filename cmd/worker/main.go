package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"videogenie/internal/bootstrap"
	"videogenie/internal/config"
	"videogenie/internal/httpkit"
	"videogenie/internal/metrics"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/pkg/shutdown"
	"videogenie/internal/ports"
	"videogenie/internal/storage"
	"videogenie/internal/worker"
	"videogenie/internal/worker/processor"
	"videogenie/internal/worker/renderer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("failed to load configuration", err)
	}

	log := logger.New(cfg.LoggerConfig())
	if err := cfg.Validate(config.RoleWorker); err != nil {
		log.LogFatal("invalid configuration", err)
	}

	log.Info("starting videogenie worker",
		"queue_backend", cfg.Queue.Backend,
		"queue", cfg.Queue.Name,
		"renderer", cfg.Render.Renderer,
	)

	ctx := context.Background()
	metrics.Register()

	// The render timeout bounds how long a draining worker may take.
	shutdownMgr := shutdown.NewManager(log, cfg.Render.Timeout+30*time.Second)

	infra, err := bootstrap.Open(ctx, cfg, log, shutdownMgr)
	if err != nil {
		log.LogFatal("failed to open backing services", err)
	}

	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	log.Info("storage provider initialized", "provider", sp.Provider())

	rend, err := renderer.New(cfg.Render, log)
	if err != nil {
		log.LogFatal("renderer unavailable", err)
	}
	log.Info("renderer ready", "renderer", rend.Name(), "degraded", rend.Degraded())

	proc := processor.New(processor.Deps{
		Store:            infra.Store,
		Gateway:          storage.NewGateway(sp),
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

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := worker.Run(shutdownMgr.Context(), worker.Deps{
			Queue:     infra.Queue,
			Processor: proc,
			Log:       log,
		})
		if err != nil {
			log.Error("worker stopped", "error", err.Error())
			go shutdownMgr.Shutdown()
		}
	}()
	shutdownMgr.Register("consumer", func(ctx context.Context) error {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	metricsSrv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.HTTP.MetricsPort,
		Handler:           opsRouter(rend),
		ReadHeaderTimeout: 10 * time.Second,
	}
	shutdownMgr.Register("metrics-server", metricsSrv.Shutdown)

	go func() {
		log.Info("metrics server listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", "error", err.Error())
		}
	}()

	shutdownMgr.Wait()
}

// opsRouter serves the worker's scrape and liveness endpoints.
func opsRouter(rend ports.Renderer) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpkit.WriteJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"renderer": rend.Name(),
			"degraded": rend.Degraded(),
		})
	})
	return r
}
