package processor

import (
	"strings"

	"videogenie/internal/models"
	"videogenie/internal/pkg/errors"
)

// DefaultAvatarID is rendered when neither the record nor the message names one.
const DefaultAvatarID = "default"

// Task is one unit of work: a queue delivery or a synchronous submission.
// Message is nil for submissions; the job record then carries everything.
type Task struct {
	JobID   string
	Message *models.JobMessage
}

func TaskFromMessage(m models.JobMessage) Task {
	return Task{JobID: m.JobID, Message: &m}
}

// ParsedJob is what the pipeline needs out of a job record.
type ParsedJob struct {
	AvatarID string
	VoiceURL string
	Quality  string
	Script   string
}

// ParseJob reads the stored payload; message fields fill whatever the
// payload leaves empty.
func ParseJob(job *models.Job, msg *models.JobMessage) (*ParsedJob, error) {
	p, err := models.DecodePayload(job.Payload)
	if err != nil {
		if msg == nil {
			return nil, errors.WrapWithCode(err, errors.CodeValidation, "processor.parse", "job payload is not valid JSON")
		}
		p = models.JobPayload{}
	}

	parsed := &ParsedJob{
		AvatarID: strings.TrimSpace(p.AvatarID),
		VoiceURL: strings.TrimSpace(p.VoiceURL),
		Quality:  strings.TrimSpace(p.Quality),
		Script:   p.Script,
	}
	if msg != nil {
		parsed.AvatarID = firstNonEmpty(parsed.AvatarID, strings.TrimSpace(msg.AvatarID))
		parsed.VoiceURL = firstNonEmpty(parsed.VoiceURL, strings.TrimSpace(msg.VoiceURL))
		parsed.Quality = firstNonEmpty(parsed.Quality, strings.TrimSpace(msg.Quality))
		parsed.Script = firstNonEmpty(parsed.Script, msg.Script)
	}
	if parsed.AvatarID == "" {
		parsed.AvatarID = DefaultAvatarID
	}
	return parsed, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
