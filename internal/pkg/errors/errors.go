// Package errors provides the coded error type used across the pipeline.
// Every failure class of the job lifecycle has its own Code, an HTTP status
// for synchronous callers, and a retry classification for the worker.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Code categorizes an error.
type Code string

const (
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodeAlreadyExists     Code = "ALREADY_EXISTS"
	CodeTimeout           Code = "TIMEOUT"
	CodeUnavailable       Code = "UNAVAILABLE"
	CodeResourceExhausted Code = "RESOURCE_EXHAUSTED"
	CodeConflict          Code = "CONFLICT"

	// Job lifecycle failures.
	CodeUpstreamSkill     Code = "UPSTREAM_SKILL_ERROR"
	CodeMalformedResponse Code = "MALFORMED_RESPONSE"
	CodeQueuePublish      Code = "QUEUE_PUBLISH_ERROR"
	CodeAssetNotFound     Code = "ASSET_NOT_FOUND"
	CodeDownloadTimeout   Code = "DOWNLOAD_TIMEOUT"
	CodeDownload          Code = "DOWNLOAD_ERROR"
	CodeRenderFailed      Code = "RENDER_FAILED"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeArtifactMissing   Code = "ARTIFACT_MISSING"
)

var httpStatus = map[Code]int{
	CodeValidation:        400,
	CodeNotFound:          404,
	CodeAssetNotFound:     404,
	CodeAlreadyExists:     409,
	CodeConflict:          409,
	CodeInvalidTransition: 409,
	CodeResourceExhausted: 429,
	CodeUpstreamSkill:     502,
	CodeMalformedResponse: 502,
	CodeDownload:          502,
	CodeUnavailable:       503,
	CodeQueuePublish:      503,
	CodeTimeout:           504,
	CodeDownloadTimeout:   504,
	CodeArtifactMissing:   500,
}

// Error is a coded error with operation context and a captured stack.
type Error struct {
	// Code is the error code for categorization.
	Code Code
	// Message is the human-readable error message.
	Message string
	// Op is the operation that failed (e.g., "jobs.transition").
	Op string
	// Err is the underlying error.
	Err error
	// Fields contains additional context fields.
	Fields map[string]any
	// Stack contains the stack trace at error creation.
	Stack []Frame
}

// Frame represents a single stack frame.
type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Code != "" {
		b.WriteString("[")
		b.WriteString(string(e.Code))
		b.WriteString("] ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithField adds a field to the error.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// WithFields adds multiple fields to the error.
func (e *Error) WithFields(fields map[string]any) *Error {
	for k, v := range fields {
		e.WithField(k, v)
	}
	return e
}

// HTTPStatus returns the HTTP status code a synchronous caller should see.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return 500
}

// StackTrace returns the stack trace as a formatted string.
func (e *Error) StackTrace() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	for _, f := range e.Stack {
		fmt.Fprintf(&b, "  %s:%d %s\n", f.File, f.Line, f.Function)
	}
	return b.String()
}

// New creates a new error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps err with operation context. A coded cause keeps its code.
func Wrap(err error, op string, message string) *Error {
	if err == nil {
		return nil
	}

	code := CodeInternal
	var fields map[string]any
	var e *Error
	if errors.As(err, &e) {
		code = e.Code
		fields = e.Fields
	}

	return &Error{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
		Fields:  fields,
		Stack:   captureStack(2),
	}
}

// Wrapf wraps an error with formatted message.
func Wrapf(err error, op string, format string, args ...any) *Error {
	return Wrap(err, op, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific code.
func WrapWithCode(err error, code Code, op string, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
		Stack:   captureStack(2),
	}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return Newf(CodeInternal, format, args...)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// ValidationField creates a validation error for a specific field.
func ValidationField(field string, message string) *Error {
	return New(CodeValidation, message).WithField("field", field)
}

// NotFound creates a not found error.
func NotFound(resource string, id string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s not found: %s", resource, id)).
		WithField("resource", resource).
		WithField("id", id)
}

// JobNotFound is returned by job stores for an unknown job id.
func JobNotFound(jobID string) *Error {
	return NotFound("job", jobID)
}

// AlreadyExists creates an already exists error.
func AlreadyExists(resource string, id string) *Error {
	return New(CodeAlreadyExists, fmt.Sprintf("%s already exists: %s", resource, id)).
		WithField("resource", resource).
		WithField("id", id)
}

// DuplicateJob is returned when a job id is created twice.
func DuplicateJob(jobID string) *Error {
	return AlreadyExists("job", jobID)
}

// InvalidTransition reports a rejected state machine edge.
func InvalidTransition(jobID, from, to string) *Error {
	return Newf(CodeInvalidTransition, "job %s cannot move from %s to %s", jobID, from, to).
		WithField("job_id", jobID).
		WithField("from", from).
		WithField("to", to)
}

// UpstreamSkill reports a failed skill invocation.
func UpstreamSkill(skill string, err error) *Error {
	e := WrapWithCode(err, CodeUpstreamSkill, "skill.invoke", "skill "+skill+" failed")
	if e == nil {
		e = New(CodeUpstreamSkill, "skill "+skill+" failed")
	}
	return e.WithField("skill", skill)
}

// MalformedResponse reports a skill response without a usable result.
func MalformedResponse(skill string, message string) *Error {
	return New(CodeMalformedResponse, message).WithField("skill", skill)
}

// QueuePublish reports a publish that was not acknowledged by the broker.
func QueuePublish(jobID string, attempts int, err error) *Error {
	return WrapWithCode(err, CodeQueuePublish, "queue.publish",
		fmt.Sprintf("publish failed after %d attempts", attempts)).
		WithField("job_id", jobID)
}

// AssetNotFound reports a missing input asset. It is never retried.
func AssetNotFound(kind, id string) *Error {
	return Newf(CodeAssetNotFound, "%s %s not found", kind, id).
		WithField("asset", kind).
		WithField("id", id)
}

// DownloadTimeout reports a remote fetch that exceeded its deadline.
func DownloadTimeout(url string, err error) *Error {
	return WrapWithCode(err, CodeDownloadTimeout, "download", "download timed out").
		WithField("url", url)
}

// Download reports a network or HTTP failure fetching a remote asset.
func Download(url string, status int, err error) *Error {
	msg := "download failed"
	if status > 0 {
		msg = fmt.Sprintf("download failed with http %d", status)
	}
	var e *Error
	if err != nil {
		e = WrapWithCode(err, CodeDownload, "download", msg)
	} else {
		e = New(CodeDownload, msg)
		e.Op = "download"
	}
	e.WithField("url", url)
	if status > 0 {
		e.WithField("status", status)
	}
	return e
}

// RenderFailed reports a capability failure. The diagnostic is kept verbatim.
func RenderFailed(message, diagnostic string) *Error {
	e := New(CodeRenderFailed, message)
	if diagnostic != "" {
		e.WithField("diagnostic", diagnostic)
	}
	return e
}

// ArtifactMissing reports a completed job whose video is gone from the
// blob store.
func ArtifactMissing(jobID, ref string, err error) *Error {
	return WrapWithCode(err, CodeArtifactMissing, "status.artifact",
		fmt.Sprintf("artifact of job %s is missing", jobID)).
		WithField("job_id", jobID).
		WithField("artifact_ref", ref)
}

// DependencyUnavailable reports a collaborator that is not configured or reachable.
func DependencyUnavailable(service string) *Error {
	return New(CodeUnavailable, fmt.Sprintf("dependency unavailable: %s", service)).
		WithField("service", service)
}

// ResourceExhausted reports a saturated local resource.
func ResourceExhausted(message string) *Error {
	return New(CodeResourceExhausted, message)
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// GetHTTPStatus extracts the HTTP status from an error.
func GetHTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return 500
}

// GetFields extracts fields from an error.
func GetFields(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) && e.Fields != nil {
		return e.Fields
	}
	return nil
}

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return IsCode(err, CodeValidation)
}

// IsInvalidTransition checks if an error is a rejected state transition.
func IsInvalidTransition(err error) bool {
	return IsCode(err, CodeInvalidTransition)
}

// IsRetryable reports whether the worker may retry the failed step.
// Only remote downloads are retried; an HTTP 4xx is final.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeDownloadTimeout:
		return true
	case CodeDownload:
		fields := GetFields(err)
		if _, ok := fields["limit_bytes"]; ok {
			return false
		}
		if s, ok := fields["status"].(int); ok && s >= 400 && s < 500 {
			return false
		}
		return true
	default:
		return false
	}
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	const maxDepth = 32
	var pcs [maxDepth]uintptr
	n := runtime.Callers(skip+1, pcs[:])

	frames := make([]Frame, 0, n)
	callersFrames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := callersFrames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			frames = append(frames, Frame{
				File:     frame.File,
				Line:     frame.Line,
				Function: frame.Function,
			})
		}
		if !more || len(frames) >= 10 {
			break
		}
	}

	return frames
}

// As is a convenience wrapper for errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is a convenience wrapper for errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
