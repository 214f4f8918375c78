// Package skill invokes the remote text skills that enrich a job before it
// is queued: rewriting the narration script and splitting it into slides.
package skill

import (
	"context"
	"encoding/json"
	"time"

	"videogenie/internal/config"
	"videogenie/internal/metrics"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/ports"
)

// New returns the invoker selected by cfg.Provider, wrapped with metrics
// and logging.
func New(cfg config.SkillConfig, log *logger.Logger) (ports.SkillInvoker, error) {
	var inv ports.SkillInvoker
	switch cfg.Provider {
	case "orchestrate":
		inv = NewOrchestrateClient(cfg.OrchAPI, cfg.OrchAPIKey, cfg.OrchTimeout)
	case "openai":
		inv = NewOpenAIInvoker(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OrchTimeout)
	default:
		return nil, errors.Validationf("unknown skill provider %q", cfg.Provider)
	}
	return Instrument(inv, log), nil
}

type instrumented struct {
	next ports.SkillInvoker
	log  *logger.Logger
}

// Instrument records skill_invocations_total and logs each call.
func Instrument(next ports.SkillInvoker, log *logger.Logger) ports.SkillInvoker {
	return &instrumented{next: next, log: log.WithComponent("skill")}
}

func (i *instrumented) Invoke(ctx context.Context, skill string, params map[string]any) (json.RawMessage, error) {
	start := time.Now()
	res, err := i.next.Invoke(ctx, skill, params)
	log := i.log.FromContext(ctx)
	if err != nil {
		metrics.SkillInvocations.WithLabelValues(skill, metrics.OutcomeError).Inc()
		log.Warn("skill failed",
			"skill", skill,
			"code", string(errors.GetCode(err)),
			"error", err.Error(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}
	metrics.SkillInvocations.WithLabelValues(skill, metrics.OutcomeOK).Inc()
	log.Debug("skill invoked", "skill", skill, "bytes", len(res), "duration_ms", time.Since(start).Milliseconds())
	return res, nil
}
