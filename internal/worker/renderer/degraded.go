package renderer

import (
	"context"
	"fmt"
	"os"

	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/ports"
)

// PlaceholderRenderer writes a marker file instead of a video. It is only
// wired when degraded mode is switched on.
type PlaceholderRenderer struct {
	log *logger.Logger
}

func NewPlaceholderRenderer(log *logger.Logger) *PlaceholderRenderer {
	return &PlaceholderRenderer{log: log}
}

func (p *PlaceholderRenderer) Name() string   { return "placeholder" }
func (p *PlaceholderRenderer) Degraded() bool { return true }

func (p *PlaceholderRenderer) Render(ctx context.Context, req ports.RenderRequest) error {
	p.log.FromContext(ctx).Warn("degraded mode: writing placeholder video", "job_id", req.JobID)

	body := fmt.Sprintf("Placeholder video for job %s\n", req.JobID)
	if err := os.WriteFile(req.OutputPath, []byte(body), 0o644); err != nil {
		return errors.RenderFailed("write placeholder", err.Error())
	}
	return nil
}
