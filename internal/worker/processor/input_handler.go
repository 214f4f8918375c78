package processor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"videogenie/internal/metrics"
	"videogenie/internal/pkg/backoff"
	"videogenie/internal/pkg/errors"
	"videogenie/internal/pkg/logger"
	"videogenie/internal/storage"
)

const (
	downloadBackoffBase = 500 * time.Millisecond
	downloadBackoffMax  = 5 * time.Second

	defaultVoiceMaxBytes int64 = 100 << 20
)

// InputHandler materializes a job's inputs into its scratch directory.
type InputHandler struct {
	gw       *storage.Gateway
	client   *http.Client
	timeout  time.Duration
	attempts int
	maxBytes int64
	log      *logger.Logger

	backoffBase time.Duration
}

func NewInputHandler(gw *storage.Gateway, client *http.Client, timeout time.Duration, attempts int, maxBytes int64, log *logger.Logger) *InputHandler {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if attempts < 1 {
		attempts = 1
	}
	if maxBytes <= 0 {
		maxBytes = defaultVoiceMaxBytes
	}
	return &InputHandler{
		gw:          gw,
		client:      client,
		timeout:     timeout,
		attempts:    attempts,
		maxBytes:    maxBytes,
		log:         log,
		backoffBase: downloadBackoffBase,
	}
}

// Face copies avatars/{avatarID}.png into dir.
func (ih *InputHandler) Face(ctx context.Context, avatarID, dir string) (string, error) {
	key, err := storage.AvatarKey(avatarID)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(dir, "face.png")
	if _, err := ih.gw.Download(ctx, key, dst); err != nil {
		if errors.IsNotFound(err) {
			return "", errors.AssetNotFound("avatar", avatarID)
		}
		return "", errors.Wrapf(err, "processor.face", "fetch avatar %s", avatarID)
	}
	return dst, nil
}

// Voice downloads rawURL into dir, retrying timeouts, transport errors and
// 5xx answers. A 4xx or a body over maxBytes is final.
func (ih *InputHandler) Voice(ctx context.Context, rawURL, dir string) (string, error) {
	log := ih.log.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= ih.attempts; attempt++ {
		path, err := ih.fetch(ctx, rawURL, dir)
		if err == nil {
			return path, nil
		}
		lastErr = err

		if ctx.Err() != nil || !errors.IsRetryable(err) || attempt == ih.attempts {
			break
		}

		metrics.VoiceDownloadRetries.Inc()
		wait := backoff.Jittered(ih.backoffBase, downloadBackoffMax, attempt)
		log.Warn("voice download failed, retrying",
			"attempt", attempt,
			"max_attempts", ih.attempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err.Error(),
		)
		if err := backoff.Sleep(ctx, wait); err != nil {
			break
		}
	}
	return "", lastErr
}

func (ih *InputHandler) fetch(ctx context.Context, rawURL, dir string) (string, error) {
	actx, cancel := context.WithTimeout(ctx, ih.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", errors.Download(rawURL, http.StatusBadRequest, err)
	}

	res, err := ih.client.Do(req)
	if err != nil {
		return "", ih.classify(ctx, actx, rawURL, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return "", errors.Download(rawURL, res.StatusCode, nil)
	}

	dst := filepath.Join(dir, "voice"+voiceExt(res.Header.Get("Content-Type"), rawURL))
	f, err := os.Create(dst)
	if err != nil {
		return "", errors.Wrapf(err, "processor.voice", "create %s", dst)
	}
	n, err := io.Copy(f, io.LimitReader(res.Body, ih.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", ih.classify(ctx, actx, rawURL, err)
	}
	if n > ih.maxBytes {
		return "", errors.Download(rawURL, 0, fmt.Errorf("body exceeds %d bytes", ih.maxBytes)).
			WithField("limit_bytes", ih.maxBytes)
	}
	if n == 0 {
		return "", errors.Download(rawURL, 0, fmt.Errorf("empty body"))
	}
	return dst, nil
}

// classify tells a per-attempt timeout apart from the caller giving up.
func (ih *InputHandler) classify(ctx, actx context.Context, rawURL string, err error) error {
	if ctx.Err() != nil {
		return errors.Download(rawURL, 0, ctx.Err())
	}
	if actx.Err() == context.DeadlineExceeded {
		return errors.DownloadTimeout(rawURL, err).WithField("timeout", ih.timeout.String())
	}
	return errors.Download(rawURL, 0, err)
}
