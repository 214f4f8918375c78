// Package enrichment turns a free-text request into a queued render job:
// the script is rewritten and split into slides by remote skills, the job
// record is written, and exactly one message is published for it.
package enrichment

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"videogenie/internal/metrics"
	"videogenie/internal/models"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/ports"
	"videogenie/internal/validation"
)

// DefaultAvatarID is used when a request names no avatar.
const DefaultAvatarID = "default"

type Request struct {
	Text     string `json:"text" validate:"required,minsolid=5,max=50000"`
	AvatarID string `json:"avatarId,omitempty" validate:"omitempty,avatarid"`
	VoiceURL string `json:"voiceUrl,omitempty" validate:"omitempty,http_url"`
	Quality  string `json:"quality,omitempty" validate:"omitempty,quality"`

	// Extra carries any other request members through to the queue message.
	Extra models.Extra `json:"-" validate:"-"`
}

type plainRequest Request

func (r *Request) UnmarshalJSON(b []byte) error {
	var p plainRequest
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	extra, err := models.SplitExtra(b, p)
	if err != nil {
		return err
	}
	p.Extra = extra
	*r = Request(p)
	return nil
}

func (r *Request) normalize() {
	r.Text = strings.TrimSpace(r.Text)
	r.AvatarID = strings.TrimSpace(r.AvatarID)
	r.VoiceURL = strings.TrimSpace(r.VoiceURL)
	r.Quality = strings.ToLower(strings.TrimSpace(r.Quality))
}

type Coordinator struct {
	skills ports.SkillInvoker
	store  ports.JobStore
	queue  ports.QueuePublisher
	log    *logger.Logger

	now   func() time.Time
	newID func() string
}

func New(skills ports.SkillInvoker, store ports.JobStore, queue ports.QueuePublisher, log *logger.Logger) *Coordinator {
	return &Coordinator{
		skills: skills,
		store:  store,
		queue:  queue,
		log:    log.WithComponent("enrichment"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// EnrichAndEnqueue validates req, runs both skills, then records and
// publishes the job. Nothing is written or published unless both skills
// succeed. When the publish fails the record is marked failed and the
// QUEUE_PUBLISH_ERROR is returned together with the job id.
func (c *Coordinator) EnrichAndEnqueue(ctx context.Context, req Request) (string, error) {
	req.normalize()
	if err := validation.Struct(req); err != nil {
		return "", err
	}
	if req.AvatarID == "" {
		req.AvatarID = DefaultAvatarID
	}
	log := c.log.FromContext(ctx)

	script, err := c.rewriteScript(ctx, req.Text)
	if err != nil {
		return "", err
	}
	slides, err := c.skills.Invoke(ctx, ports.SkillGenerateSlides, map[string]any{"text": script})
	if err != nil {
		return "", err
	}

	segments, total := Segments(script)
	payload := models.JobPayload{
		Text:             req.Text,
		AvatarID:         req.AvatarID,
		VoiceURL:         req.VoiceURL,
		Quality:          req.Quality,
		Script:           script,
		Slides:           slides,
		Segments:         segments,
		EstimatedSeconds: total,
		Extra:            req.Extra,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "enrichment.encode", "encode payload")
	}

	id := c.newID()
	now := c.now()
	log = log.WithJobID(id)

	if err := c.store.Create(ctx, models.NewJob(id, models.KindEnriched, raw, now)); err != nil {
		return "", err
	}
	if _, err := c.store.Transition(ctx, id, models.StateQueued, models.Detail{}); err != nil {
		c.markFailed(ctx, log, id, err)
		return id, err
	}

	if err := c.queue.Publish(ctx, payload.Message(id, now)); err != nil {
		c.markFailed(ctx, log, id, err)
		return id, err
	}

	metrics.JobsAdmitted.WithLabelValues(string(models.KindEnriched)).Inc()
	log.Info("job enqueued",
		"avatar_id", req.AvatarID,
		"segments", len(segments),
		"estimated_seconds", total,
	)
	return id, nil
}

// rewriteScript accepts the result as a JSON string or as an object with
// a "script" member.
func (c *Coordinator) rewriteScript(ctx context.Context, text string) (string, error) {
	res, err := c.skills.Invoke(ctx, ports.SkillRewriteScript, map[string]any{"text": text})
	if err != nil {
		return "", err
	}

	var script string
	if err := json.Unmarshal(res, &script); err != nil {
		var obj struct {
			Script string `json:"script"`
		}
		if err := json.Unmarshal(res, &obj); err != nil {
			return "", errors.MalformedResponse(ports.SkillRewriteScript, "script result is neither a string nor {script}")
		}
		script = obj.Script
	}
	script = strings.TrimSpace(script)
	if script == "" {
		return "", errors.MalformedResponse(ports.SkillRewriteScript, "script result is empty")
	}
	return script, nil
}

func (c *Coordinator) markFailed(ctx context.Context, log *logger.Logger, id string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if _, err := c.store.Transition(ctx, id, models.StateFailed, models.Detail{Error: cause.Error()}); err != nil {
		log.Error("could not record admission failure", "error", err.Error(), "cause", cause.Error())
		return
	}
	metrics.JobsFinished.WithLabelValues(string(models.StateFailed)).Inc()
	log.Warn("admission failed", "error", cause.Error())
}
