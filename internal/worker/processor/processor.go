package processor

import (
	"context"
	"path/filepath"
	"time"

	"mediafactory/internal/jobs"
	"mediafactory/internal/pkg/errors"
	"mediafactory/internal/pkg/logger"
	"mediafactory/internal/publish"
)

type Deps struct {
	Tracker        *jobs.Tracker
	Composition    CompositionRenderer
	Simple         SimpleRenderer
	Publisher      publish.Publisher
	// Destination names the publish target in status messages.
	Destination    string
	// PublishTimeout bounds each publisher call. Zero means
	// DefaultPublishTimeout.
	PublishTimeout time.Duration
	Log            *logger.Logger
}

// Processor runs one task through render, publish and cleanup.
type Processor struct {
	tracker     *jobs.Tracker
	destination string
	log         *logger.Logger

	rendererAdapter *RendererAdapter
	outputHandler   *OutputHandler
	cleanup         *Cleanup
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithComponent("processor")

	return &Processor{
		tracker:         d.Tracker,
		destination:     d.Destination,
		log:             log,
		rendererAdapter: NewRendererAdapter(d.Composition, d.Simple),
		outputHandler:   NewOutputHandler(d.Publisher, d.PublishTimeout, d.Log),
		cleanup:         NewCleanup(d.Log),
	}
}

// ProcessJob takes a queued task to COMPLETED or FAILED. The task's work
// directory is removed whatever the outcome.
func (p *Processor) ProcessJob(ctx context.Context, task Task) error {
	ctx = logger.ContextWithJobID(ctx, task.JobID)
	log := p.log.FromContext(ctx)
	defer p.cleanup.CleanupJob(ctx, task.WorkDir)

	if _, err := p.tracker.MarkProcessing(ctx, task.JobID, jobs.ProcessingMessage(task.Kind, p.destination)); err != nil {
		log.Error("failed to mark job as processing", "error", err.Error())
		return err
	}

	start := time.Now()
	out := filepath.Join(task.WorkDir, "output.mp4")

	log.Info("starting render", "kind", string(task.Kind))
	if err := p.rendererAdapter.Render(ctx, task, out); err != nil {
		return p.failJob(ctx, task.JobID, errors.Wrap(err, "processor.render", "render failed"))
	}
	log.Info("render completed", "duration_ms", time.Since(start).Milliseconds())

	res, err := p.outputHandler.Publish(ctx, PublishRequest{
		VideoPath:   out,
		Title:       task.Title,
		Description: task.Description,
		Options:     task.Options,
		Thumbnail:   task.Thumbnail,
	})
	if err != nil {
		return p.failJob(ctx, task.JobID, errors.Wrap(err, "processor.publish", "publish failed"))
	}

	if _, err := p.tracker.MarkCompleted(ctx, task.JobID, res); err != nil {
		log.Error("failed to mark job as completed", "error", err.Error())
		return err
	}
	log.Info("job completed",
		"video_id", res.VideoID,
		"warning", res.Warning != "",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// failJob logs the full cause and records only the generic message.
func (p *Processor) failJob(ctx context.Context, jobID string, cause error) error {
	args := []any{"code", string(errors.GetCode(cause))}
	var appErr *errors.Error
	if errors.As(cause, &appErr) {
		args = append(args, "op", appErr.Op)
		for k, v := range appErr.Fields {
			args = append(args, k, v)
		}
	}
	p.log.LogError(ctx, "job failed", cause, args...)

	if _, err := p.tracker.MarkFailed(ctx, jobID); err != nil {
		if errors.IsConflict(err) {
			// Another writer already took the job to a terminal state.
			p.log.FromContext(ctx).Warn("job not marked failed", "error", err.Error())
		} else {
			p.log.LogError(ctx, "failed to mark job as failed", err)
		}
	}
	return cause
}
