package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"videogenie/internal/httpkit"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
)

func newTestLogger(level string) (*logger.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logger.New(logger.Config{Level: level, Format: "json", Output: &buf}), &buf
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) httpkit.ErrorEnvelope {
	t.Helper()
	var env httpkit.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body=%s)", err, rec.Body.String())
	}
	return env
}

func TestRequestID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, _ := r.Context().Value(logger.RequestIDKey).(string); id == "" {
			t.Error("expected request ID in context")
		}
	}))

	t.Run("generates new request ID", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/jobs", nil))

		if got := rec.Header().Get(RequestIDHeader); len(got) != 32 {
			t.Errorf("expected 32 hex chars, got %q", got)
		}
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/jobs", nil)
		req.Header.Set(RequestIDHeader, "upstream-id")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get(RequestIDHeader); got != "upstream-id" {
			t.Errorf("expected upstream-id, got %s", got)
		}
	})
}

func TestLoggingLevels(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		expectedLevel string
	}{
		{"2xx logs info", 202, "INFO"},
		{"4xx logs warn", 404, "WARN"},
		{"5xx logs error", 503, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newTestLogger("info")
			handler := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/jobs", nil))

			out := buf.String()
			if !strings.Contains(out, tt.expectedLevel) || !strings.Contains(out, "duration_ms") {
				t.Errorf("expected %s access log, got: %s", tt.expectedLevel, out)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	log, buf := newTestLogger("info")
	handler := Recovery(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("renderer exploded")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/status/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("expected INTERNAL_ERROR, got %s", env.Error.Code)
	}
	if !strings.Contains(buf.String(), "renderer exploded") {
		t.Errorf("expected panic message in log, got: %s", buf.String())
	}
}

func TestTimeoutSetsDeadline(t *testing.T) {
	handler := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); !ok {
			t.Error("expected deadline on request context")
		}
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrapResponseWriter(rec)

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("hello world"))

	if rw.status != http.StatusAccepted {
		t.Errorf("expected first status to win, got %d", rw.status)
	}
	if rw.size != 11 {
		t.Errorf("expected size 11, got %d", rw.size)
	}
}

func TestWrapHandler(t *testing.T) {
	log, _ := newTestLogger("info")

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"job not found", errors.JobNotFound("j1"), 404, "NOT_FOUND", "job not found: j1"},
		{"validation", errors.ValidationField("text", "text too short"), 400, "VALIDATION_ERROR", "text too short"},
		{"queue publish", errors.QueuePublish("j1", 3, fmt.Errorf("nack")), 503, "QUEUE_PUBLISH_ERROR", "publish failed after 3 attempts"},
		{"plain error hides detail", fmt.Errorf("pq: password authentication failed"), 500, "INTERNAL_ERROR", "internal server error"},
		{"deadline", fmt.Errorf("store: %w", context.DeadlineExceeded), 504, "TIMEOUT", "request timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := WrapHandler(log, func(w http.ResponseWriter, r *http.Request) error {
				return tt.err
			})

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/jobs/j1", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			env := decodeEnvelope(t, rec)
			if env.Error.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, env.Error.Code)
			}
			if env.Error.Message != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, env.Error.Message)
			}
		})
	}

	t.Run("success passes through", func(t *testing.T) {
		handler := WrapHandler(log, func(w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
	})
}

func TestWriteErrorResponseDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorResponse(rec, errors.CodeAssetNotFound, "avatar ghost not found", map[string]any{"id": "ghost"})

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error.Details["id"] != "ghost" {
		t.Errorf("expected details.id=ghost, got %v", env.Error.Details)
	}
}

func TestGenerateRequestID(t *testing.T) {
	if generateRequestID() == generateRequestID() {
		t.Error("expected unique request IDs")
	}
}
