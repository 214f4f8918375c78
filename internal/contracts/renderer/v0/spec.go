package v0

// RendererSpec v0 is the request body of POST {base}/render.
// Paths point into the scratch directory the worker shares with the renderer;
// the renderer writes the finished video to output_path.
type RendererSpec struct {
	JobID      string `json:"job_id"`
	FacePath   string `json:"face_path"`
	AudioPath  string `json:"audio_path,omitempty"`
	OutputPath string `json:"output_path"`
	Script     string `json:"script,omitempty"`
	Preset     Preset `json:"preset"`
}

type Preset struct {
	Name          string `json:"name"`
	ResizeFactor  int    `json:"resize_factor"`
	LipSyncBatch  int    `json:"wav2lip_batch_size"`
	FaceDetBatch  int    `json:"face_det_batch_size"`
	DisableSmooth bool   `json:"nosmooth"`
}

// RendererError is the body a renderer returns with a non-2xx status.
type RendererError struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
