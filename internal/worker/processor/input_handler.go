package processor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"mediafactory/internal/pkg/errors"
	"mediafactory/internal/pkg/logger"
	"mediafactory/internal/ports"

	"golang.org/x/sync/errgroup"
)

// stagingConcurrency bounds parallel copies for one submission.
const stagingConcurrency = 4

// Input is an uploaded part to stage under a fixed file name.
type Input struct {
	Key  string
	Name string
	Part *ports.Part
}

// InputHandler copies uploaded parts into a per-job directory before the job
// is dispatched, so the request fails fast on I/O errors.
type InputHandler struct {
	stagingDir string
	log        *logger.Logger
}

func NewInputHandler(stagingDir string, log *logger.Logger) *InputHandler {
	if stagingDir == "" {
		stagingDir = os.TempDir()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &InputHandler{stagingDir: stagingDir, log: log.WithComponent("staging")}
}

// Stage creates the job directory and copies every input into it. It returns
// the directory and the staged path per input key. On failure nothing is
// left behind.
func (ih *InputHandler) Stage(ctx context.Context, jobID string, inputs []Input) (string, map[string]string, error) {
	if err := os.MkdirAll(ih.stagingDir, 0o755); err != nil {
		return "", nil, errors.Wrap(err, "processor.stage", "failed to create staging directory")
	}
	dir, err := os.MkdirTemp(ih.stagingDir, "media-factory-"+SanitizeFilename(jobID)+"-")
	if err != nil {
		return "", nil, errors.Wrap(err, "processor.stage", "failed to create job directory")
	}

	paths := make(map[string]string, len(inputs))
	for _, in := range inputs {
		paths[in.Key] = filepath.Join(dir, SanitizeFilename(in.Name))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(stagingConcurrency)
	for _, in := range inputs {
		in := in
		dst := paths[in.Key]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return copyPart(in.Part, dst)
		})
	}

	if err := g.Wait(); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			ih.log.FromContext(ctx).Warn("failed to remove staging directory", "dir", dir, "error", rmErr.Error())
		}
		return "", nil, errors.Wrap(err, "processor.stage", "failed to stage uploaded files")
	}

	ih.log.FromContext(ctx).Debug("inputs staged", "job_id", jobID, "count", len(inputs), "dir", dir)
	return dir, paths, nil
}

func copyPart(p *ports.Part, dst string) error {
	if p == nil || p.Open == nil {
		return fmt.Errorf("missing upload for %s", filepath.Base(dst))
	}
	src, err := p.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
