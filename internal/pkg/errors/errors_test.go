package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(CodeValidation, "invalid input")

	if err.Code != CodeValidation {
		t.Errorf("expected code=%s, got %s", CodeValidation, err.Code)
	}
	if err.Message != "invalid input" {
		t.Errorf("expected message='invalid input', got %s", err.Message)
	}
	if len(err.Stack) == 0 {
		t.Error("expected stack trace to be captured")
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name:     "simple error",
			err:      New(CodeValidation, "invalid"),
			contains: []string{"VALIDATION_ERROR", "invalid"},
		},
		{
			name:     "error with op",
			err:      &Error{Code: CodeRenderFailed, Message: "exit status 1", Op: "render"},
			contains: []string{"render: ", "RENDER_FAILED", "exit status 1"},
		},
		{
			name:     "error with cause",
			err:      &Error{Code: CodeInternal, Message: "wrapper", Err: fmt.Errorf("disk full")},
			contains: []string{"wrapper", "disk full"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			str := tt.err.Error()
			for _, c := range tt.contains {
				if !strings.Contains(str, c) {
					t.Errorf("expected error string to contain %q, got: %s", c, str)
				}
			}
		})
	}
}

func TestWrap(t *testing.T) {
	original := fmt.Errorf("connection reset")
	wrapped := Wrap(original, "jobs.get", "load job")

	if wrapped.Code != CodeInternal {
		t.Errorf("expected code=%s, got %s", CodeInternal, wrapped.Code)
	}
	if errors.Unwrap(wrapped) != original {
		t.Error("Unwrap should return original error")
	}
	if Wrap(nil, "op", "message") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapPreservesCodeAndFields(t *testing.T) {
	original := AssetNotFound("avatar", "ghost")
	wrapped := Wrap(original, "processor", "resolve avatar")

	if wrapped.Code != CodeAssetNotFound {
		t.Errorf("expected code to be preserved as %s, got %s", CodeAssetNotFound, wrapped.Code)
	}
	if wrapped.Fields["id"] != "ghost" {
		t.Errorf("expected fields to be preserved, got %v", wrapped.Fields)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code   Code
		status int
	}{
		{CodeValidation, 400},
		{CodeNotFound, 404},
		{CodeAssetNotFound, 404},
		{CodeAlreadyExists, 409},
		{CodeInvalidTransition, 409},
		{CodeResourceExhausted, 429},
		{CodeInternal, 500},
		{CodeRenderFailed, 500},
		{CodeArtifactMissing, 500},
		{CodeUpstreamSkill, 502},
		{CodeMalformedResponse, 502},
		{CodeDownload, 502},
		{CodeUnavailable, 503},
		{CodeQueuePublish, 503},
		{CodeDownloadTimeout, 504},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "test")
			if err.HTTPStatus() != tt.status {
				t.Errorf("expected status=%d, got %d", tt.status, err.HTTPStatus())
			}
		})
	}
}

func TestTaxonomyConstructors(t *testing.T) {
	t.Run("JobNotFound", func(t *testing.T) {
		err := JobNotFound("j1")
		if !IsNotFound(err) || err.Fields["resource"] != "job" {
			t.Errorf("unexpected error: %v %v", err, err.Fields)
		}
	})

	t.Run("DuplicateJob", func(t *testing.T) {
		if GetCode(DuplicateJob("j1")) != CodeAlreadyExists {
			t.Error("expected ALREADY_EXISTS")
		}
	})

	t.Run("InvalidTransition", func(t *testing.T) {
		err := InvalidTransition("j1", "completed", "rendering")
		if !IsInvalidTransition(err) {
			t.Error("expected IsInvalidTransition")
		}
		if !strings.Contains(err.Error(), "completed") || !strings.Contains(err.Error(), "rendering") {
			t.Errorf("expected both states in message, got %s", err.Error())
		}
	})

	t.Run("UpstreamSkill without cause", func(t *testing.T) {
		err := UpstreamSkill("rewrite-script", nil)
		if err.Code != CodeUpstreamSkill || err.Fields["skill"] != "rewrite-script" {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("QueuePublish keeps cause", func(t *testing.T) {
		cause := fmt.Errorf("broker nack")
		err := QueuePublish("j1", 3, cause)
		if !errors.Is(err, cause) {
			t.Error("expected cause in chain")
		}
		if !strings.Contains(err.Error(), "3 attempts") {
			t.Errorf("expected attempt count in message, got %s", err.Error())
		}
	})

	t.Run("AssetNotFound names the asset", func(t *testing.T) {
		err := AssetNotFound("avatar", "ghost")
		if !strings.Contains(err.Error(), "ghost") {
			t.Errorf("expected avatar id in message, got %s", err.Error())
		}
	})

	t.Run("RenderFailed keeps diagnostic", func(t *testing.T) {
		err := RenderFailed("inference failed", "CUDA out of memory")
		if err.Fields["diagnostic"] != "CUDA out of memory" {
			t.Errorf("expected diagnostic, got %v", err.Fields)
		}
	})

	t.Run("DependencyUnavailable", func(t *testing.T) {
		err := DependencyUnavailable("renderer")
		if err.Code != CodeUnavailable || err.Fields["service"] != "renderer" {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"download timeout", DownloadTimeout("http://v", fmt.Errorf("deadline")), true},
		{"network error", Download("http://v", 0, fmt.Errorf("connection refused")), true},
		{"server error", Download("http://v", 503, nil), true},
		{"client error", Download("http://v", 404, nil), false},
		{"over size limit", Download("http://v", 0, fmt.Errorf("too big")).WithField("limit_bytes", int64(16)), false},
		{"asset missing", AssetNotFound("avatar", "a"), false},
		{"render failed", RenderFailed("boom", ""), false},
		{"plain error", fmt.Errorf("plain"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	if GetCode(fmt.Errorf("standard error")) != CodeInternal {
		t.Error("expected INTERNAL_ERROR for a standard error")
	}

	wrapped := fmt.Errorf("outer: %w", Wrap(New(CodeValidation, "invalid"), "handler", "wrapped"))
	if GetCode(wrapped) != CodeValidation {
		t.Errorf("expected code=%s, got %s", CodeValidation, GetCode(wrapped))
	}
}

func TestGetHTTPStatus(t *testing.T) {
	if GetHTTPStatus(New(CodeNotFound, "not found")) != 404 {
		t.Error("expected 404")
	}
	if GetHTTPStatus(fmt.Errorf("standard")) != 500 {
		t.Error("expected 500 for standard error")
	}
}

func TestGetFields(t *testing.T) {
	fields := GetFields(ValidationField("text", "too short"))
	if fields["field"] != "text" {
		t.Errorf("expected field='text', got %v", fields["field"])
	}
	if GetFields(fmt.Errorf("standard")) != nil {
		t.Error("expected nil fields for standard error")
	}
}

func TestStackTrace(t *testing.T) {
	stack := New(CodeInternal, "test error").StackTrace()
	if !strings.Contains(stack, ".go:") {
		t.Errorf("expected stack trace to contain file references, got: %s", stack)
	}
}

func TestErrorIs(t *testing.T) {
	err1 := New(CodeNotFound, "error 1")
	err2 := New(CodeNotFound, "error 2")
	err3 := New(CodeValidation, "error 3")

	if !errors.Is(err1, err2) {
		t.Error("expected errors with same code to match with Is")
	}
	if errors.Is(err1, err3) {
		t.Error("expected errors with different codes to not match")
	}
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("wrapped: %w", New(CodeNotFound, "not found"))

	var target *Error
	if !As(wrapped, &target) {
		t.Fatal("expected As to find Error in chain")
	}
	if target.Code != CodeNotFound {
		t.Errorf("expected code=%s, got %s", CodeNotFound, target.Code)
	}
}
