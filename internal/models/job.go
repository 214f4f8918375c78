package models

import (
	"encoding/json"
	"time"

	"videogenie/internal/pkg/errors"
)

// MaxErrorLen bounds the failure reason persisted on a job.
const MaxErrorLen = 2000

type JobKind string

const (
	KindEnriched JobKind = "enriched"
	KindAvatar   JobKind = "avatar"
)

type JobState string

const (
	StateCreated   JobState = "created"
	StateQueued    JobState = "queued"
	StateRendering JobState = "rendering"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

var transitions = map[JobState][]JobState{
	StateCreated:   {StateQueued, StateFailed},
	StateQueued:    {StateRendering, StateFailed},
	StateRendering: {StateCompleted, StateFailed},
}

// Valid reports whether s is one of the five known states.
func (s JobState) Valid() bool {
	switch s {
	case StateCreated, StateQueued, StateRendering, StateCompleted, StateFailed:
		return true
	}
	return false
}

// Terminal reports whether no transition can leave s.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransition reports whether from -> to is an edge of the job state machine.
func CanTransition(from, to JobState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SourcesOf returns the states from which to can be entered.
func SourcesOf(to JobState) []JobState {
	var out []JobState
	for _, from := range []JobState{StateCreated, StateQueued, StateRendering} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

type Job struct {
	ID          string          `json:"id"`
	Kind        JobKind         `json:"kind"`
	State       JobState        `json:"state"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ArtifactRef string          `json:"artifact_ref,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Detail is what a transition records on the job.
type Detail struct {
	ArtifactRef string
	Error       string
}

// NewJob returns a job in the created state.
func NewJob(id string, kind JobKind, payload json.RawMessage, now time.Time) *Job {
	now = now.UTC()
	return &Job{
		ID:        id,
		Kind:      kind,
		State:     StateCreated,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Apply moves the job to state to. It is the only place the transition rules
// live; every store calls it (or mirrors it in a single conditional write).
func (j *Job) Apply(to JobState, d Detail, now time.Time) error {
	if !CanTransition(j.State, to) {
		return errors.InvalidTransition(j.ID, string(j.State), string(to))
	}

	if err := CheckDetail(to, d); err != nil {
		return err
	}

	now = now.UTC()
	j.State = to
	j.UpdatedAt = now

	switch to {
	case StateRendering:
		if j.StartedAt == nil {
			j.StartedAt = &now
		}
	case StateCompleted:
		j.ArtifactRef = d.ArtifactRef
		j.CompletedAt = &now
	case StateFailed:
		j.Error = TruncateError(d.Error)
		j.CompletedAt = &now
	}
	return nil
}

// CheckDetail validates what entering to must record.
func CheckDetail(to JobState, d Detail) error {
	switch to {
	case StateCompleted:
		if d.ArtifactRef == "" {
			return errors.ValidationField("artifact_ref", "completed job requires an artifact reference")
		}
	case StateFailed:
		if d.Error == "" {
			return errors.ValidationField("error", "failed job requires an error")
		}
	}
	return nil
}

// Clone returns a deep copy, so stores never hand out shared pointers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Payload != nil {
		c.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// TruncateError cuts s to MaxErrorLen bytes without splitting a UTF-8 sequence.
func TruncateError(s string) string {
	if len(s) <= MaxErrorLen {
		return s
	}
	cut := MaxErrorLen
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

// ListFilter narrows JobStore.List. Zero State means any state.
type ListFilter struct {
	State JobState
	Limit int
}
