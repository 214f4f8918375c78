package processor

import (
	"context"
	"os"

	"videogenie/internal/pkg/errors"
	"videogenie/internal/storage"
)

type OutputHandler struct {
	gw *storage.Gateway
}

func NewOutputHandler(gw *storage.Gateway) *OutputHandler {
	return &OutputHandler{gw: gw}
}

// Upload publishes the rendered file as the job's artifact and returns its key.
// A missing or empty file means the renderer failed.
func (oh *OutputHandler) Upload(ctx context.Context, jobID, localPath string) (string, error) {
	st, err := os.Stat(localPath)
	if err != nil {
		return "", errors.RenderFailed("renderer produced no output", err.Error())
	}
	if st.Size() == 0 {
		return "", errors.RenderFailed("renderer produced an empty output", localPath)
	}

	key := storage.VideoKey(jobID)
	if _, err := oh.gw.PutFile(ctx, key, localPath, "video/mp4"); err != nil {
		return "", errors.Wrapf(err, "processor.upload", "upload %s", key)
	}
	return key, nil
}
