package gdrive

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"videogenie/internal/ports"
)

const fileFields = "id, name, size, mimeType, modifiedTime"

// Client implements ports.StorageProvider on Google Drive. Object keys are
// stored as file names inside one folder, so "videos/<id>.mp4" is a single
// file named exactly that. Putting an existing key replaces its content.
type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object key is required")
	}

	var opts []googleapi.MediaOption
	if in.ContentType != "" {
		opts = append(opts, googleapi.ContentType(in.ContentType))
	}

	existing, err := c.find(ctx, in.ObjectKey)
	if err != nil && err != ports.ErrObjectNotFound {
		return ports.PutObjectOutput{}, err
	}

	var f *drive.File
	if existing != nil {
		f, err = c.srv.Files.Update(existing.Id, &drive.File{}).
			Media(in.Reader, opts...).
			SupportsAllDrives(true).
			Fields(fileFields).
			Context(ctx).
			Do()
	} else {
		meta := &drive.File{Name: in.ObjectKey}
		if c.folderID != "" {
			meta.Parents = []string{c.folderID}
		}
		f, err = c.srv.Files.Create(meta).
			Media(in.Reader, opts...).
			SupportsAllDrives(true).
			Fields(fileFields).
			Context(ctx).
			Do()
	}
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("gdrive upload %s: %w", in.ObjectKey, err)
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: f.Size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	f, err := c.find(ctx, objectKey)
	if err != nil {
		return nil, "", 0, err
	}

	resp, err := c.srv.Files.Get(f.Id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, "", 0, fmt.Errorf("gdrive download %s: %w", objectKey, err)
	}

	contentType = resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = f.MimeType
	}
	return resp.Body, contentType, resp.ContentLength, nil
}

func (c *Client) StatObject(ctx context.Context, objectKey string) (ports.ObjectInfo, error) {
	f, err := c.find(ctx, objectKey)
	if err != nil {
		return ports.ObjectInfo{}, err
	}
	return toInfo(f), nil
}

func (c *Client) ListObjects(ctx context.Context, prefix string) ([]ports.ObjectInfo, error) {
	q := c.scope()
	if prefix != "" {
		q += fmt.Sprintf(" and name contains '%s'", escape(prefix))
	}

	var out []ports.ObjectInfo
	call := c.srv.Files.List().
		Q(q).
		Fields(googleapi.Field("nextPageToken, files(" + fileFields + ")")).
		PageSize(200).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true)

	err := call.Pages(ctx, func(page *drive.FileList) error {
		for _, f := range page.Files {
			// "contains" matches word prefixes, so filter exactly here.
			if strings.HasPrefix(f.Name, prefix) {
				out = append(out, toInfo(f))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gdrive list %q: %w", prefix, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	f, err := c.find(ctx, objectKey)
	if err == ports.ErrObjectNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	return c.srv.Files.Delete(f.Id).SupportsAllDrives(true).Context(ctx).Do()
}

// GetSignedURL is unsupported; Drive links need the caller's OAuth session.
func (c *Client) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	return ports.SignedURLOutput{}, ports.ErrSignedURLUnsupported
}

func (c *Client) scope() string {
	q := "trashed = false"
	if c.folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escape(c.folderID))
	}
	return q
}

// find returns the newest file named objectKey.
func (c *Client) find(ctx context.Context, objectKey string) (*drive.File, error) {
	q := c.scope() + fmt.Sprintf(" and name = '%s'", escape(objectKey))

	list, err := c.srv.Files.List().
		Q(q).
		OrderBy("modifiedTime desc").
		Fields(googleapi.Field("files(" + fileFields + ")")).
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("gdrive lookup %s: %w", objectKey, err)
	}
	if len(list.Files) == 0 {
		return nil, ports.ErrObjectNotFound
	}
	return list.Files[0], nil
}

func toInfo(f *drive.File) ports.ObjectInfo {
	info := ports.ObjectInfo{Key: f.Name, Size: f.Size, ContentType: f.MimeType}
	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		info.ModifiedAt = t.UTC()
	}
	return info
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
