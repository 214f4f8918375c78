package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	contracts "videogenie/internal/contracts/renderer/v0"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/ports"
)

const maxDiagnostic = 2000

// HTTPRenderer delegates to a render service sharing the worker's scratch
// volume. Its deadline comes from the caller's context.
type HTTPRenderer struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRenderer(baseURL string) *HTTPRenderer {
	return &HTTPRenderer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

func (c *HTTPRenderer) Name() string   { return "http" }
func (c *HTTPRenderer) Degraded() bool { return false }

func (c *HTTPRenderer) Render(ctx context.Context, req ports.RenderRequest) error {
	return c.post(ctx, "/render", toSpec(req))
}

func toSpec(req ports.RenderRequest) contracts.RendererSpec {
	return contracts.RendererSpec{
		JobID:      req.JobID,
		FacePath:   req.FacePath,
		AudioPath:  req.AudioPath,
		OutputPath: req.OutputPath,
		Script:     req.Script,
		Preset: contracts.Preset{
			Name:          req.Preset.Name,
			ResizeFactor:  req.Preset.ResizeFactor,
			LipSyncBatch:  req.Preset.LipSyncBatch,
			FaceDetBatch:  req.Preset.FaceDetBatch,
			DisableSmooth: req.Preset.DisableSmooth,
		},
	}
}

func (c *HTTPRenderer) post(ctx context.Context, path string, spec any) error {
	body, err := json.Marshal(spec)
	if err != nil {
		return errors.Wrap(err, "renderer.encode", "encode render spec")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "renderer.request", "build render request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.RenderFailed("renderer unreachable", err.Error())
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxDiagnostic))
		return errors.RenderFailed(fmt.Sprintf("renderer http %d", res.StatusCode), diagnostic(raw)).
			WithField("status", res.StatusCode)
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

// diagnostic prefers the structured error body and falls back to raw text.
func diagnostic(raw []byte) string {
	var e contracts.RendererError
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		if e.Detail != "" {
			return e.Error + ": " + e.Detail
		}
		return e.Error
	}
	return strings.TrimSpace(string(raw))
}
