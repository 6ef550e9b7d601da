package processor

import (
	"context"
	"os"

	"mediafactory/internal/pkg/logger"
)

type Cleanup struct {
	log *logger.Logger
}

func NewCleanup(log *logger.Logger) *Cleanup {
	if log == nil {
		log = logger.Discard()
	}
	return &Cleanup{log: log.WithComponent("cleanup")}
}

// CleanupJob removes the job directory and everything staged or rendered in
// it. Failures are logged only.
func (c *Cleanup) CleanupJob(ctx context.Context, dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		c.log.FromContext(ctx).Warn("failed to remove job directory", "dir", dir, "error", err.Error())
	}
}
