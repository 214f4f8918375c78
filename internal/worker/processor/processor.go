// Package processor runs one job through the render pipeline: claim the
// record, materialize inputs, render, upload, record the outcome.
package processor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"videogenie/internal/metrics"
	"videogenie/internal/models"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/ports"
	"videogenie/internal/storage"
)

const finishTimeout = 10 * time.Second

type Deps struct {
	Store    ports.JobStore
	Gateway  *storage.Gateway
	Renderer ports.Renderer
	HTTP     *http.Client
	Log      *logger.Logger

	WorkRoot         string
	RenderTimeout    time.Duration
	StaleAfter       time.Duration
	DefaultQuality   string
	DownloadTimeout  time.Duration
	DownloadAttempts int
	DownloadMaxBytes int64
}

type Processor struct {
	store          ports.JobStore
	log            *logger.Logger
	staleAfter     time.Duration
	defaultQuality string
	now            func() time.Time

	inputHandler    *InputHandler
	outputHandler   *OutputHandler
	rendererAdapter *RendererAdapter
	cleanup         *Cleanup
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	renderTimeout := d.RenderTimeout
	if renderTimeout <= 0 {
		renderTimeout = 15 * time.Minute
	}
	staleAfter := d.StaleAfter
	if staleAfter <= 0 {
		staleAfter = renderTimeout + time.Minute
	}

	return &Processor{
		store:          d.Store,
		log:            log,
		staleAfter:     staleAfter,
		defaultQuality: d.DefaultQuality,
		now:            time.Now,

		inputHandler:    NewInputHandler(d.Gateway, d.HTTP, d.DownloadTimeout, d.DownloadAttempts, d.DownloadMaxBytes, log),
		outputHandler:   NewOutputHandler(d.Gateway),
		rendererAdapter: NewRendererAdapter(d.Renderer, renderTimeout),
		cleanup:         NewCleanup(d.WorkRoot, log),
	}
}

// outcome is what a successful pipeline run leaves behind.
type outcome struct {
	artifactRef string
	render      time.Duration
}

// Process runs task to a terminal state. Jobs that are unknown, already
// finished, or owned by another worker are skipped and nil is returned.
// Otherwise the returned error is the job's failure, already recorded.
func (p *Processor) Process(ctx context.Context, task Task) error {
	ctx = logger.ContextWithJobID(ctx, task.JobID)
	log := p.log.FromContext(ctx)

	job, ok, err := p.claim(ctx, task)
	if err != nil || !ok {
		return err
	}

	defer p.cleanup.CleanupJob(job.ID)

	parsed, err := ParseJob(job, task.Message)
	if err != nil {
		return p.finish(ctx, job, outcome{}, err)
	}

	log.Info("starting render", "avatar_id", parsed.AvatarID, "quality", parsed.Quality, "voice", parsed.VoiceURL != "")
	out, err := p.execute(ctx, job.ID, parsed)
	return p.finish(ctx, job, out, err)
}

// claim moves the job into rendering. ok=false means the task is a no-op.
func (p *Processor) claim(ctx context.Context, task Task) (*models.Job, bool, error) {
	log := p.log.FromContext(ctx)

	job, err := p.store.Get(ctx, task.JobID)
	if errors.IsNotFound(err) {
		log.Warn("job not found, dropping message")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "processor.claim", "load job")
	}

	switch job.State {
	case models.StateCompleted, models.StateFailed:
		log.Info("job already finished, skipping", "state", string(job.State))
		return nil, false, nil

	case models.StateRendering:
		if job.StartedAt != nil && p.now().Sub(*job.StartedAt) < p.staleAfter {
			log.Info("job is rendering elsewhere, skipping", "started_at", job.StartedAt.Format(time.RFC3339))
			return nil, false, nil
		}
		log.Warn("resuming stale render", "stale_after", p.staleAfter.String())
		return job, true, nil

	case models.StateCreated:
		if _, err := p.store.Transition(ctx, job.ID, models.StateQueued, models.Detail{}); err != nil && !errors.IsInvalidTransition(err) {
			return nil, false, errors.Wrap(err, "processor.claim", "promote created job")
		}
	}

	claimed, err := p.store.Transition(ctx, job.ID, models.StateRendering, models.Detail{})
	if errors.IsInvalidTransition(err) {
		log.Info("job claimed by another worker, skipping", "error", err.Error())
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "processor.claim", "mark rendering")
	}
	return claimed, true, nil
}

func (p *Processor) execute(ctx context.Context, jobID string, parsed *ParsedJob) (out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.FromContext(ctx).Error("panic during render", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			err = errors.Internalf("render panicked: %v", r)
		}
	}()

	preset, err := LookupPreset(parsed.Quality, p.defaultQuality)
	if err != nil {
		return out, err
	}

	dir := p.cleanup.Dir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return out, errors.Wrapf(err, "processor.scratch", "create %s", dir)
	}

	facePath, err := p.inputHandler.Face(ctx, parsed.AvatarID, dir)
	if err != nil {
		return out, err
	}

	var audioPath string
	if parsed.VoiceURL != "" {
		if audioPath, err = p.inputHandler.Voice(ctx, parsed.VoiceURL, dir); err != nil {
			return out, err
		}
	}

	outputPath := filepath.Join(dir, "output.mp4")
	out.render, err = p.rendererAdapter.Render(ctx, ports.RenderRequest{
		JobID:      jobID,
		FacePath:   facePath,
		AudioPath:  audioPath,
		OutputPath: outputPath,
		Preset:     preset,
		Script:     parsed.Script,
	})
	if err != nil {
		return out, err
	}

	out.artifactRef, err = p.outputHandler.Upload(ctx, jobID, outputPath)
	return out, err
}

// finish records the terminal state. It runs even when ctx is already
// canceled, so a shutdown mid-render still leaves the job failed.
func (p *Processor) finish(ctx context.Context, job *models.Job, out outcome, cause error) error {
	log := p.log.FromContext(ctx)
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	to, detail := models.StateCompleted, models.Detail{ArtifactRef: out.artifactRef}
	if cause != nil {
		to, detail = models.StateFailed, models.Detail{Error: cause.Error()}
	}

	done, err := p.store.Transition(fctx, job.ID, to, detail)
	if errors.IsInvalidTransition(err) {
		log.Warn("terminal update rejected", "to", string(to), "error", err.Error())
		return cause
	}
	if err != nil {
		p.log.LogError(ctx, "could not record job outcome", err, "to", string(to))
		if cause != nil {
			return cause
		}
		return err
	}
	metrics.JobsFinished.WithLabelValues(string(to)).Inc()

	if cause != nil {
		log.WithError(cause).Error("job failed", "code", string(errors.GetCode(cause)))
		return cause
	}

	log.WithFields(map[string]any{
		"artifact_ref": out.artifactRef,
		"latency_ms":   done.UpdatedAt.Sub(job.CreatedAt).Milliseconds(),
		"render_ms":    out.render.Milliseconds(),
	}).Info("render_complete")
	return nil
}
