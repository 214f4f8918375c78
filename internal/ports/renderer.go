package ports

import "context"

// RenderPreset is the fixed set of knobs a quality name maps to.
type RenderPreset struct {
	Name          string
	ResizeFactor  int
	LipSyncBatch  int
	FaceDetBatch  int
	DisableSmooth bool
}

type RenderRequest struct {
	JobID      string
	FacePath   string
	AudioPath  string
	OutputPath string
	Preset     RenderPreset
	Script     string
}

// Renderer turns a face image and a voice track into a video file at
// OutputPath. Failures are RENDER_FAILED.
type Renderer interface {
	Name() string
	Render(ctx context.Context, req RenderRequest) error
	Degraded() bool
}
