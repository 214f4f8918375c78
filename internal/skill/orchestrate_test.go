package skill

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"videogenie/internal/pkg/errors"
	"videogenie/internal/ports"
)

func TestOrchestrateInvoke(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"result":"Hello there. Welcome to the demo."}`))
	}))
	defer srv.Close()

	c := NewOrchestrateClient(srv.URL+"/api/", "k3y", time.Second)
	res, err := c.Invoke(context.Background(), ports.SkillRewriteScript, map[string]any{"text": "hello world"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if gotPath != "/api/skills/rewrite-script:invoke" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer k3y" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if gotBody["params"]["text"] != "hello world" {
		t.Errorf("expected params envelope, got %v", gotBody)
	}
	if string(res) != `"Hello there. Welcome to the demo."` {
		t.Errorf("unexpected result %s", res)
	}
}

func TestOrchestrateErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode errors.Code
	}{
		{"server error", 500, `{"error":"boom"}`, errors.CodeUpstreamSkill},
		{"unauthorized", 401, `denied`, errors.CodeUpstreamSkill},
		{"missing result", 200, `{"output":"x"}`, errors.CodeMalformedResponse},
		{"null result", 200, `{"result":null}`, errors.CodeMalformedResponse},
		{"not json", 200, `<html>`, errors.CodeMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOrchestrateClient(srv.URL, "k", time.Second).
				Invoke(context.Background(), ports.SkillGenerateSlides, map[string]any{"text": "x"})
			if !errors.IsCode(err, tt.wantCode) {
				t.Fatalf("expected %s, got %v", tt.wantCode, err)
			}
			if got := errors.GetFields(err)["skill"]; got != ports.SkillGenerateSlides {
				t.Errorf("expected skill field, got %v", got)
			}
		})
	}
}

func TestOrchestrateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewOrchestrateClient(srv.URL, "k", 50*time.Millisecond).
		Invoke(context.Background(), ports.SkillRewriteScript, map[string]any{"text": "x"})
	if !errors.IsCode(err, errors.CodeUpstreamSkill) {
		t.Fatalf("expected UPSTREAM_SKILL_ERROR, got %v", err)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(configFor("watsonx"), nil)
	if !errors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
