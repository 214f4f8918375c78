package models

import (
	"encoding/json"
	"time"
)

// JobMessage is the queue payload handed from the coordinator to the worker.
// Decoders must ignore unknown fields.
type JobMessage struct {
	JobID            string          `json:"jobId"`
	Text             string          `json:"text,omitempty"`
	AvatarID         string          `json:"avatarId"`
	VoiceURL         string          `json:"voiceUrl"`
	Quality          string          `json:"quality,omitempty"`
	Script           string          `json:"script,omitempty"`
	Slides           json.RawMessage `json:"slides,omitempty"`
	EstimatedSeconds float64         `json:"estimatedSeconds,omitempty"`
	EnqueuedAt       time.Time       `json:"enqueuedAt"`
	Extra            Extra           `json:"-"`
}

type plainMessage JobMessage

func (m JobMessage) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(plainMessage(m))
	if err != nil {
		return nil, err
	}
	return MergeExtra(base, plainMessage{}, m.Extra)
}

func (m *JobMessage) UnmarshalJSON(b []byte) error {
	var p plainMessage
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	extra, err := SplitExtra(b, p)
	if err != nil {
		return err
	}
	p.Extra = extra
	*m = JobMessage(p)
	return nil
}

// Segment is one timed sentence of the rewritten script.
type Segment struct {
	Text    string  `json:"text"`
	StartS  float64 `json:"start"`
	Seconds float64 `json:"seconds"`
}

// JobPayload is what a job record stores as its payload.
type JobPayload struct {
	Text             string          `json:"text,omitempty"`
	AvatarID         string          `json:"avatarId"`
	VoiceURL         string          `json:"voiceUrl"`
	Quality          string          `json:"quality,omitempty"`
	Script           string          `json:"script,omitempty"`
	Slides           json.RawMessage `json:"slides,omitempty"`
	Segments         []Segment       `json:"segments,omitempty"`
	EstimatedSeconds float64         `json:"estimatedSeconds,omitempty"`
	Extra            Extra           `json:"-"`
}

type plainPayload JobPayload

func (p JobPayload) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(plainPayload(p))
	if err != nil {
		return nil, err
	}
	return MergeExtra(base, plainPayload{}, p.Extra)
}

func (p *JobPayload) UnmarshalJSON(b []byte) error {
	var pp plainPayload
	if err := json.Unmarshal(b, &pp); err != nil {
		return err
	}
	extra, err := SplitExtra(b, pp)
	if err != nil {
		return err
	}
	pp.Extra = extra
	*p = JobPayload(pp)
	return nil
}

// Message builds the queue message for this payload.
func (p JobPayload) Message(jobID string, now time.Time) JobMessage {
	return JobMessage{
		JobID:            jobID,
		Text:             p.Text,
		AvatarID:         p.AvatarID,
		VoiceURL:         p.VoiceURL,
		Quality:          p.Quality,
		Script:           p.Script,
		Slides:           p.Slides,
		EstimatedSeconds: p.EstimatedSeconds,
		EnqueuedAt:       now.UTC(),
		Extra:            p.Extra,
	}
}

// DecodePayload reads a stored job payload. An empty payload decodes to the zero value.
func DecodePayload(raw json.RawMessage) (JobPayload, error) {
	var p JobPayload
	if len(raw) == 0 {
		return p, nil
	}
	err := json.Unmarshal(raw, &p)
	return p, err
}
