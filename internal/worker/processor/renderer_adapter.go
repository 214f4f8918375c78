package processor

import (
	"context"
	"time"

	"videogenie/internal/metrics"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/ports"
)

// RendererAdapter runs a renderer under the render deadline and maps every
// failure onto RENDER_FAILED.
type RendererAdapter struct {
	r       ports.Renderer
	timeout time.Duration
}

func NewRendererAdapter(r ports.Renderer, timeout time.Duration) *RendererAdapter {
	return &RendererAdapter{r: r, timeout: timeout}
}

func (ra *RendererAdapter) Render(ctx context.Context, req ports.RenderRequest) (time.Duration, error) {
	rctx, cancel := context.WithTimeout(ctx, ra.timeout)
	defer cancel()

	start := time.Now()
	err := ra.r.Render(rctx, req)
	took := time.Since(start)
	metrics.RenderDuration.Observe(took.Seconds())

	switch {
	case err == nil:
		return took, nil
	case ctx.Err() != nil:
		return took, errors.RenderFailed("render canceled", ctx.Err().Error())
	case rctx.Err() == context.DeadlineExceeded:
		return took, errors.RenderFailed("render deadline exceeded", ra.timeout.String())
	case errors.IsCode(err, errors.CodeRenderFailed):
		return took, err
	default:
		return took, errors.RenderFailed("render failed", err.Error())
	}
}
