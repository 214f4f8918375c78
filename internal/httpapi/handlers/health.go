package handlers

import (
	"context"
	"net/http"
	"time"

	"videogenie/internal/httpkit"
)

const healthCheckTimeout = 5 * time.Second

// Health reports liveness. ?deep=true also probes the job store, the
// queue and the blob store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	health := map[string]any{
		"status":  "ok",
		"service": h.service,
		"version": h.version,
	}
	if h.degraded {
		health["status"] = "degraded"
		health["renderer"] = "degraded"
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for _, check := range checks {
			if check["status"] != "ok" {
				health["status"] = "degraded"
				log.Warn("health check degraded", "checks", checks)
				break
			}
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, health)
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	checks := map[string]map[string]any{
		"job_store": probe(ctx, h.store.Ping),
		"queue":     probe(ctx, h.queue.Ping),
		"storage": probe(ctx, func(ctx context.Context) error {
			_, err := h.gw.Exists(ctx, "health/probe")
			return err
		}),
	}
	checks["storage"]["provider"] = h.gw.Provider().Provider()
	return checks
}

func probe(ctx context.Context, ping func(context.Context) error) map[string]any {
	start := time.Now()
	result := map[string]any{"status": "ok"}

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := ping(checkCtx); err != nil {
		result["status"] = "error"
		result["error"] = err.Error()
	}
	result["latency_ms"] = time.Since(start).Milliseconds()
	return result
}
