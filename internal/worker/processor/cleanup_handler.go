package processor

import (
	"os"
	"path/filepath"
	"strings"

	"videogenie/internal/pkg/logger"
)

// Cleanup owns the per-job scratch directories under the work root.
type Cleanup struct {
	root string
	log  *logger.Logger
}

func NewCleanup(root string, log *logger.Logger) *Cleanup {
	return &Cleanup{root: root, log: log}
}

// Dir is the scratch directory of jobID.
func (c *Cleanup) Dir(jobID string) string {
	return filepath.Join(c.root, jobID)
}

// CleanupJob removes the scratch directory of jobID. Ids that would escape
// the work root are ignored.
func (c *Cleanup) CleanupJob(jobID string) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || strings.Contains(jobID, "..") {
		return
	}
	if err := os.RemoveAll(c.Dir(jobID)); err != nil {
		c.log.Warn("scratch cleanup failed", "job_id", jobID, "error", err.Error())
	}
}
