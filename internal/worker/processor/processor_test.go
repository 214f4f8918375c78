package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"videogenie/internal/adapters/storage/localfs"
	"videogenie/internal/models"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/ports"
	"videogenie/internal/repositories"
	"videogenie/internal/storage"
)

type fakeRenderer struct {
	calls atomic.Int32
	last  ports.RenderRequest
	fn    func(ctx context.Context, req ports.RenderRequest) error
}

func (f *fakeRenderer) Name() string   { return "fake" }
func (f *fakeRenderer) Degraded() bool { return false }

func (f *fakeRenderer) Render(ctx context.Context, req ports.RenderRequest) error {
	f.calls.Add(1)
	f.last = req
	if f.fn != nil {
		return f.fn(ctx, req)
	}
	return os.WriteFile(req.OutputPath, []byte("mp4"), 0o644)
}

type fixture struct {
	store    *repositories.MemoryJobStore
	gw       *storage.Gateway
	renderer *fakeRenderer
	workRoot string
	proc     *Processor
}

func newFixture(t *testing.T, mutate func(d *Deps)) *fixture {
	t.Helper()
	f := &fixture{
		store:    repositories.NewMemoryJobStore(),
		gw:       storage.NewGateway(localfs.New(t.TempDir())),
		renderer: &fakeRenderer{},
		workRoot: t.TempDir(),
	}
	for _, id := range []string{"default", "demo"} {
		key, _ := storage.AvatarKey(id)
		if err := f.gw.Put(context.Background(), key, bytes.NewReader([]byte("png")), 3, "image/png"); err != nil {
			t.Fatal(err)
		}
	}

	d := Deps{
		Store:            f.store,
		Gateway:          f.gw,
		Renderer:         f.renderer,
		Log:              logger.Discard(),
		WorkRoot:         f.workRoot,
		RenderTimeout:    5 * time.Second,
		DefaultQuality:   "fast",
		DownloadTimeout:  time.Second,
		DownloadAttempts: 3,
	}
	if mutate != nil {
		mutate(&d)
	}
	f.proc = New(d)
	f.proc.inputHandler.backoffBase = time.Millisecond
	return f
}

func (f *fixture) addJob(t *testing.T, id string, p models.JobPayload, states ...models.JobState) {
	t.Helper()
	raw, _ := json.Marshal(p)
	ctx := context.Background()
	if err := f.store.Create(ctx, models.NewJob(id, models.KindAvatar, raw, time.Now())); err != nil {
		t.Fatal(err)
	}
	for _, s := range states {
		if _, err := f.store.Transition(ctx, id, s, models.Detail{}); err != nil {
			t.Fatal(err)
		}
	}
}

func (f *fixture) job(t *testing.T, id string) *models.Job {
	t.Helper()
	j, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return j
}

func (f *fixture) assertScratchRemoved(t *testing.T, id string) {
	t.Helper()
	if _, err := os.Stat(f.proc.cleanup.Dir(id)); !os.IsNotExist(err) {
		t.Errorf("expected scratch dir of %s removed, stat err=%v", id, err)
	}
}

func voiceServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func serveWAV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "audio/wav")
	_, _ = w.Write([]byte("RIFF....WAVE"))
}

func TestProcessCompletes(t *testing.T) {
	srv, _ := voiceServer(t, serveWAV)
	f := newFixture(t, nil)
	f.addJob(t, "job-1", models.JobPayload{AvatarID: "demo", VoiceURL: srv.URL + "/v", Quality: "high"}, models.StateQueued)

	if err := f.proc.Process(context.Background(), Task{JobID: "job-1"}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	j := f.job(t, "job-1")
	if j.State != models.StateCompleted || j.ArtifactRef != "videos/job-1.mp4" {
		t.Fatalf("expected completed with artifact, got %s %q (%s)", j.State, j.ArtifactRef, j.Error)
	}
	if ok, _ := f.gw.Exists(context.Background(), "videos/job-1.mp4"); !ok {
		t.Error("expected artifact uploaded")
	}
	req := f.renderer.last
	if req.Preset.Name != "high" || !strings.HasSuffix(req.AudioPath, "voice.wav") || !strings.HasSuffix(req.FacePath, "face.png") {
		t.Errorf("unexpected render request %+v", req)
	}
	f.assertScratchRemoved(t, "job-1")
}

func TestProcessFromMessage(t *testing.T) {
	f := newFixture(t, nil)
	f.addJob(t, "job-1", models.JobPayload{}, models.StateQueued)

	task := TaskFromMessage(models.JobMessage{JobID: "job-1", AvatarID: "demo", Script: "Hi there."})
	if err := f.proc.Process(context.Background(), task); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if f.renderer.last.Script != "Hi there." || f.renderer.last.AudioPath != "" {
		t.Errorf("expected message fields, got %+v", f.renderer.last)
	}
	if f.renderer.last.Preset.Name != "fast" {
		t.Errorf("expected default preset, got %s", f.renderer.last.Preset.Name)
	}
}

func TestProcessPromotesCreatedJob(t *testing.T) {
	f := newFixture(t, nil)
	f.addJob(t, "job-1", models.JobPayload{AvatarID: "demo"})

	if err := f.proc.Process(context.Background(), Task{JobID: "job-1"}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if j := f.job(t, "job-1"); j.State != models.StateCompleted {
		t.Errorf("expected completed, got %s", j.State)
	}
}

func TestProcessMissingAvatar(t *testing.T) {
	f := newFixture(t, nil)
	f.addJob(t, "job-1", models.JobPayload{AvatarID: "ghost"}, models.StateQueued)

	err := f.proc.Process(context.Background(), Task{JobID: "job-1"})
	if !errors.IsCode(err, errors.CodeAssetNotFound) {
		t.Fatalf("expected asset not found, got %v", err)
	}
	j := f.job(t, "job-1")
	if j.State != models.StateFailed || !strings.Contains(j.Error, "ghost") {
		t.Errorf("expected failed naming the avatar, got %s %q", j.State, j.Error)
	}
	if f.renderer.calls.Load() != 0 {
		t.Error("expected no render")
	}
	f.assertScratchRemoved(t, "job-1")
}

func TestProcessSkips(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, f *fixture)
		jobID  string
		expect models.JobState
	}{
		{
			name:   "unknown job",
			setup:  func(t *testing.T, f *fixture) {},
			jobID:  "nope",
			expect: "",
		},
		{
			name: "completed job",
			setup: func(t *testing.T, f *fixture) {
				f.addJob(t, "job-1", models.JobPayload{AvatarID: "demo"}, models.StateQueued, models.StateRendering)
				if _, err := f.store.Transition(context.Background(), "job-1", models.StateCompleted, models.Detail{ArtifactRef: "videos/job-1.mp4"}); err != nil {
					t.Fatal(err)
				}
			},
			jobID:  "job-1",
			expect: models.StateCompleted,
		},
		{
			name: "fresh rendering job",
			setup: func(t *testing.T, f *fixture) {
				f.addJob(t, "job-1", models.JobPayload{AvatarID: "demo"}, models.StateQueued, models.StateRendering)
			},
			jobID:  "job-1",
			expect: models.StateRendering,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			tt.setup(t, f)

			if err := f.proc.Process(context.Background(), Task{JobID: tt.jobID}); err != nil {
				t.Fatalf("expected skip without error, got %v", err)
			}
			if f.renderer.calls.Load() != 0 {
				t.Error("expected no render")
			}
			if tt.expect != "" {
				if j := f.job(t, tt.jobID); j.State != tt.expect {
					t.Errorf("expected %s unchanged, got %s", tt.expect, j.State)
				}
			}
		})
	}
}

func TestProcessResumesStaleRender(t *testing.T) {
	f := newFixture(t, nil)
	f.addJob(t, "job-1", models.JobPayload{AvatarID: "demo"}, models.StateQueued, models.StateRendering)
	f.proc.now = func() time.Time { return time.Now().Add(time.Hour) }

	if err := f.proc.Process(context.Background(), Task{JobID: "job-1"}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if j := f.job(t, "job-1"); j.State != models.StateCompleted {
		t.Errorf("expected completed, got %s", j.State)
	}
}

func TestProcessVoiceDownload(t *testing.T) {
	tests := []struct {
		name     string
		handler  func(calls *atomic.Int32) http.HandlerFunc
		wantCode errors.Code
		wantHits int32
	}{
		{
			name: "404 is not retried",
			handler: func(*atomic.Int32) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }
			},
			wantCode: errors.CodeDownload,
			wantHits: 1,
		},
		{
			name: "503 exhausts attempts",
			handler: func(*atomic.Int32) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) }
			},
			wantCode: errors.CodeDownload,
			wantHits: 3,
		},
		{
			name: "recovers after transient failures",
			handler: func(calls *atomic.Int32) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					if calls.Add(1) < 3 {
						w.WriteHeader(http.StatusBadGateway)
						return
					}
					serveWAV(w, r)
				}
			},
			wantHits: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv, hits := voiceServer(t, tt.handler(&calls))
			f := newFixture(t, nil)
			f.addJob(t, "job-1", models.JobPayload{AvatarID: "demo", VoiceURL: srv.URL + "/voice.wav"}, models.StateQueued)

			err := f.proc.Process(context.Background(), Task{JobID: "job-1"})
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Process: %v", err)
				}
			} else if !errors.IsCode(err, tt.wantCode) {
				t.Fatalf("expected %s, got %v", tt.wantCode, err)
			}
			if hits.Load() != tt.wantHits {
				t.Errorf("expected %d requests, got %d", tt.wantHits, hits.Load())
			}
			f.assertScratchRemoved(t, "job-1")
		})
	}
}

func TestProcessVoiceTimeout(t *testing.T) {
	srv, hits := voiceServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	f := newFixture(t, func(d *Deps) {
		d.DownloadTimeout = 50 * time.Millisecond
		d.DownloadAttempts = 2
	})
	f.addJob(t, "job-1", models.JobPayload{AvatarID: "demo", VoiceURL: srv.URL}, models.StateQueued)

	err := f.proc.Process(context.Background(), Task{JobID: "job-1"})
	if !errors.IsCode(err, errors.CodeDownloadTimeout) {
		t.Fatalf("expected download timeout, got %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", hits.Load())
	}
	if j := f.job(t, "job-1"); !strings.Contains(j.Error, "DOWNLOAD_TIMEOUT") {
		t.Errorf("expected timeout reason, got %q", j.Error)
	}
}

func TestProcessVoiceTooLarge(t *testing.T) {
	srv, hits := voiceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(bytes.Repeat([]byte{'x'}, 64))
	})
	f := newFixture(t, func(d *Deps) { d.DownloadMaxBytes = 16 })
	f.addJob(t, "job-1", models.JobPayload{AvatarID: "demo", VoiceURL: srv.URL + "/voice.wav"}, models.StateQueued)

	err := f.proc.Process(context.Background(), Task{JobID: "job-1"})
	if !errors.IsCode(err, errors.CodeDownload) {
		t.Fatalf("expected download error, got %v", err)
	}
	if got := errors.GetFields(err)["limit_bytes"]; got != int64(16) {
		t.Errorf("expected limit_bytes 16, got %v", got)
	}
	if hits.Load() != 1 {
		t.Errorf("oversized body must not be retried, got %d requests", hits.Load())
	}
	if f.renderer.calls.Load() != 0 {
		t.Error("renderer must not run without a voice")
	}
	if j := f.job(t, "job-1"); j.State != models.StateFailed {
		t.Errorf("expected failed, got %s", j.State)
	}
	f.assertScratchRemoved(t, "job-1")
}

func TestProcessVoiceAtLimit(t *testing.T) {
	srv, _ := voiceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(bytes.Repeat([]byte{'x'}, 16))
	})
	f := newFixture(t, func(d *Deps) { d.DownloadMaxBytes = 16 })
	f.addJob(t, "job-1", models.JobPayload{AvatarID: "demo", VoiceURL: srv.URL + "/voice.wav"}, models.StateQueued)

	if err := f.proc.Process(context.Background(), Task{JobID: "job-1"}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if j := f.job(t, "job-1"); j.State != models.StateCompleted {
		t.Errorf("expected done, got %s", j.State)
	}
}

func TestProcessRenderFailures(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		fn      func(ctx context.Context, req ports.RenderRequest) error
		wantMsg string
	}{
		{
			name:    "deadline",
			timeout: 50 * time.Millisecond,
			fn: func(ctx context.Context, req ports.RenderRequest) error {
				<-ctx.Done()
				return ctx.Err()
			},
			wantMsg: "render deadline exceeded",
		},
		{
			name:    "empty output",
			fn:      func(ctx context.Context, req ports.RenderRequest) error { return os.WriteFile(req.OutputPath, nil, 0o644) },
			wantMsg: "empty output",
		},
		{
			name:    "no output",
			fn:      func(ctx context.Context, req ports.RenderRequest) error { return nil },
			wantMsg: "no output",
		},
		{
			name:    "capability error",
			fn:      func(ctx context.Context, req ports.RenderRequest) error { return errors.RenderFailed("wav2lip exited", "oom") },
			wantMsg: "wav2lip exited",
		},
		{
			name:    "panic",
			fn:      func(ctx context.Context, req ports.RenderRequest) error { panic("nil frame") },
			wantMsg: "render panicked: nil frame",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(d *Deps) {
				if tt.timeout > 0 {
					d.RenderTimeout = tt.timeout
				}
			})
			f.renderer.fn = tt.fn
			f.addJob(t, "job-1", models.JobPayload{AvatarID: "demo"}, models.StateQueued)

			if err := f.proc.Process(context.Background(), Task{JobID: "job-1"}); err == nil {
				t.Fatal("expected error")
			}
			j := f.job(t, "job-1")
			if j.State != models.StateFailed || !strings.Contains(j.Error, tt.wantMsg) {
				t.Errorf("expected failed with %q, got %s %q", tt.wantMsg, j.State, j.Error)
			}
			if ok, _ := f.gw.Exists(context.Background(), "videos/job-1.mp4"); ok {
				t.Error("expected no artifact")
			}
			f.assertScratchRemoved(t, "job-1")
		})
	}
}

func TestProcessCanceledMidRenderRecordsFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	f.renderer.fn = func(rctx context.Context, req ports.RenderRequest) error {
		cancel()
		<-rctx.Done()
		return rctx.Err()
	}
	f.addJob(t, "job-1", models.JobPayload{AvatarID: "demo"}, models.StateQueued)

	_ = f.proc.Process(ctx, Task{JobID: "job-1"})

	if j := f.job(t, "job-1"); j.State != models.StateFailed {
		t.Errorf("expected failed after cancel, got %s", j.State)
	}
}

func TestProcessUnknownQuality(t *testing.T) {
	f := newFixture(t, nil)
	f.addJob(t, "job-1", models.JobPayload{AvatarID: "demo", Quality: "ultra"}, models.StateQueued)

	if err := f.proc.Process(context.Background(), Task{JobID: "job-1"}); !errors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.renderer.calls.Load() != 0 {
		t.Error("expected no render")
	}
}

func TestParseJob(t *testing.T) {
	job := models.NewJob("j", models.KindEnriched, json.RawMessage(`{"avatarId":"anna","quality":"high"}`), time.Now())
	msg := &models.JobMessage{JobID: "j", AvatarID: "bob", VoiceURL: "http://v/a.mp3", Script: "s"}

	p, err := ParseJob(job, msg)
	if err != nil {
		t.Fatal(err)
	}
	if p.AvatarID != "anna" || p.VoiceURL != "http://v/a.mp3" || p.Quality != "high" || p.Script != "s" {
		t.Errorf("unexpected parse %+v", p)
	}

	p, _ = ParseJob(models.NewJob("j", models.KindAvatar, nil, time.Now()), nil)
	if p.AvatarID != DefaultAvatarID {
		t.Errorf("expected default avatar, got %s", p.AvatarID)
	}

	if _, err := ParseJob(models.NewJob("j", models.KindAvatar, json.RawMessage(`nope`), time.Now()), nil); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestVoiceExt(t *testing.T) {
	tests := []struct{ ct, url, want string }{
		{"audio/mpeg", "http://x/a", ".mp3"},
		{"audio/wav; charset=binary", "http://x/a", ".wav"},
		{"application/octet-stream", "http://x/a.flac?sig=1", ".flac"},
		{"", "http://x/a", ".wav"},
	}
	for _, tt := range tests {
		if got := voiceExt(tt.ct, tt.url); got != tt.want {
			t.Errorf("voiceExt(%q, %q) = %q, want %q", tt.ct, tt.url, got, tt.want)
		}
	}
}

func TestLookupPreset(t *testing.T) {
	p, err := LookupPreset("", "FAST")
	if err != nil || p.Name != "fast" || !p.DisableSmooth {
		t.Errorf("unexpected default preset %+v %v", p, err)
	}
	if _, err := LookupPreset("ultra", "fast"); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if strings.Join(PresetNames(), ",") != "fast,high" {
		t.Errorf("unexpected names %v", PresetNames())
	}
}
