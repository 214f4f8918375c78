package renderer

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"time"

	"videogenie/internal/pkg/errors"
	"videogenie/internal/ports"
)

// waitDelay bounds how long Render waits for output pipes after the
// process group has been killed.
const waitDelay = 5 * time.Second

// CLIRenderer runs Wav2Lip's inference.py in a subprocess.
type CLIRenderer struct {
	python     string
	script     string
	checkpoint string
}

func NewCLIRenderer(python, script, checkpoint string) *CLIRenderer {
	if python == "" {
		python = "python"
	}
	return &CLIRenderer{python: python, script: script, checkpoint: checkpoint}
}

func (c *CLIRenderer) Name() string   { return "cli" }
func (c *CLIRenderer) Degraded() bool { return false }

// Args is the inference.py command line for req.
func (c *CLIRenderer) Args(req ports.RenderRequest) []string {
	args := []string{
		c.script,
		"--checkpoint_path", c.checkpoint,
		"--face", req.FacePath,
		"--audio", req.AudioPath,
		"--outfile", req.OutputPath,
		"--resize_factor", strconv.Itoa(req.Preset.ResizeFactor),
		"--wav2lip_batch_size", strconv.Itoa(req.Preset.LipSyncBatch),
		"--face_det_batch_size", strconv.Itoa(req.Preset.FaceDetBatch),
	}
	if req.Preset.DisableSmooth {
		args = append(args, "--nosmooth")
	}
	return args
}

func (c *CLIRenderer) Render(ctx context.Context, req ports.RenderRequest) error {
	if req.AudioPath == "" {
		return errors.RenderFailed("lip-sync renderer needs a voice track", "")
	}

	cmd := exec.CommandContext(ctx, c.python, c.Args(req)...)
	// inference.py shells out to ffmpeg; cancellation kills the whole group.
	killGroupOnCancel(cmd)
	cmd.WaitDelay = waitDelay
	var out tailBuffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.RenderFailed("wav2lip exited: "+err.Error(), out.String())
	}
	return nil
}

// tailBuffer keeps the last maxDiagnostic bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - maxDiagnostic; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string { return t.buf.String() }
