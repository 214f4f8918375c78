package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"videogenie/internal/pkg/errors"
	"videogenie/internal/ports"
)

// Gateway is the pipeline's view of the blob store: key conventions plus the
// file-oriented helpers the worker needs.
type Gateway struct {
	p Provider
}

func NewGateway(p Provider) *Gateway {
	return &Gateway{p: p}
}

func (g *Gateway) Provider() Provider { return g.p }

func (g *Gateway) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := g.p.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: contentType,
		Reader:      r,
		Size:        size,
	})
	if err != nil {
		return errors.Wrapf(err, "storage.put", "put %s", key)
	}
	return nil
}

// PutFile uploads a local file.
func (g *Gateway) PutFile(ctx context.Context, key, src, contentType string) (int64, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, errors.Wrapf(err, "storage.put_file", "open %s", src)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "storage.put_file", "stat %s", src)
	}
	if err := g.Put(ctx, key, f, st.Size(), contentType); err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// Get opens key for reading. Missing keys are NOT_FOUND.
func (g *Gateway) Get(ctx context.Context, key string) (io.ReadCloser, string, int64, error) {
	rc, ct, size, err := g.p.GetObject(ctx, key)
	if err != nil {
		if errors.Is(err, ports.ErrObjectNotFound) {
			return nil, "", 0, errors.NotFound("object", key)
		}
		return nil, "", 0, errors.Wrapf(err, "storage.get", "get %s", key)
	}
	return rc, ct, size, nil
}

func (g *Gateway) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.p.StatObject(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ports.ErrObjectNotFound) {
		return false, nil
	}
	return false, errors.Wrapf(err, "storage.exists", "stat %s", key)
}

// Delete removes key. Deleting a missing key is not an error.
func (g *Gateway) Delete(ctx context.Context, key string) error {
	if err := g.p.DeleteObject(ctx, key); err != nil && !errors.Is(err, ports.ErrObjectNotFound) {
		return errors.Wrapf(err, "storage.delete", "delete %s", key)
	}
	return nil
}

// Download copies key into the local file dst.
func (g *Gateway) Download(ctx context.Context, key, dst string) (int64, error) {
	rc, _, _, err := g.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, errors.Wrapf(err, "storage.download", "mkdir for %s", dst)
	}
	f, err := os.Create(dst)
	if err != nil {
		return 0, errors.Wrapf(err, "storage.download", "create %s", dst)
	}
	n, err := io.Copy(f, rc)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, errors.Wrapf(err, "storage.download", "copy %s", key)
	}
	return n, nil
}

// ListAvatars returns avatar ids, the stems of avatars/*.png.
func (g *Gateway) ListAvatars(ctx context.Context) ([]string, error) {
	objs, err := g.p.ListObjects(ctx, avatarPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "storage.list_avatars", "list avatars")
	}

	ids := make([]string, 0, len(objs))
	for _, o := range objs {
		name := strings.TrimPrefix(o.Key, avatarPrefix)
		if strings.Contains(name, "/") || path.Ext(name) != ".png" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".png"))
	}
	return ids, nil
}

// SignedURL returns a time-limited URL, or ok=false when the provider
// cannot presign.
func (g *Gateway) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	out, err := g.p.GetSignedURL(ctx, key, ttl)
	if errors.Is(err, ports.ErrSignedURLUnsupported) || (err == nil && out.URL == "") {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sign %s: %w", key, err)
	}
	return out.URL, true, nil
}
