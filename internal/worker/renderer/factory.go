// Package renderer provides the render capabilities the worker can drive.
package renderer

import (
	"os"

	"videogenie/internal/config"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/ports"
)

// New picks the renderer named in cfg. When it is not usable, degraded mode
// falls back to the placeholder; otherwise the result is UNAVAILABLE.
func New(cfg config.RenderConfig, log *logger.Logger) (ports.Renderer, error) {
	log = log.WithComponent("renderer")

	r, reason := configured(cfg)
	if r != nil {
		log.Info("renderer ready", "renderer", r.Name())
		return r, nil
	}

	if !cfg.Degraded {
		return nil, errors.DependencyUnavailable("renderer").WithField("reason", reason)
	}
	log.Warn("renderer unavailable, running in degraded mode", "reason", reason)
	return NewPlaceholderRenderer(log), nil
}

func configured(cfg config.RenderConfig) (ports.Renderer, string) {
	switch cfg.Renderer {
	case "http":
		if cfg.HTTPBaseURL == "" {
			return nil, "RENDERER_HTTP_BASEURL not set"
		}
		return NewHTTPRenderer(cfg.HTTPBaseURL), ""
	case "cli":
		for _, p := range []string{cfg.Wav2LipScript, cfg.Wav2LipCkpt} {
			if p == "" {
				return nil, "wav2lip script or checkpoint not set"
			}
			if _, err := os.Stat(p); err != nil {
				return nil, "wav2lip file missing: " + p
			}
		}
		return NewCLIRenderer(cfg.Wav2LipPython, cfg.Wav2LipScript, cfg.Wav2LipCkpt), ""
	case "":
		return nil, "no renderer configured"
	default:
		return nil, "unknown renderer " + cfg.Renderer
	}
}
