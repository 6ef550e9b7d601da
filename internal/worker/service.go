// Package worker accepts render-and-publish submissions, stages their
// inputs and dispatches them to the processing pool.
package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mediafactory/internal/composition"
	"mediafactory/internal/jobs"
	"mediafactory/internal/pkg/errors"
	"mediafactory/internal/pkg/logger"
	"mediafactory/internal/ports"
	"mediafactory/internal/publish"
	"mediafactory/internal/worker/processor"
	"mediafactory/internal/worker/queue"

	"github.com/google/uuid"
)

// Bounds of the simple path's duration, in seconds.
const (
	MinDurationSec = 1
	MaxDurationSec = 10 * 60 * 60
)

// Metadata is the publishing part shared by every submission.
type Metadata struct {
	Title       string
	Description string
	Options     publish.OptionsInput
	Thumbnail   *ports.Part
}

type SimpleRequest struct {
	Image       *ports.Part
	Audio       *ports.Part
	DurationSec int
	Metadata
}

type CompositionRequest struct {
	// Manifest is the JSON wire form.
	Manifest []byte
	// Assets are keyed by asset id.
	Assets map[string]*ports.Part
	Audio  *ports.Part
	Metadata
}

type Deps struct {
	Tracker    *jobs.Tracker
	Normalizer *composition.Normalizer
	Inputs     *processor.InputHandler
	Processor  *processor.Processor
	Pool       *queue.Pool
	Log        *logger.Logger
}

type Service struct {
	tracker    *jobs.Tracker
	normalizer *composition.Normalizer
	inputs     *processor.InputHandler
	processor  *processor.Processor
	pool       *queue.Pool
	cleanup    *processor.Cleanup
	log        *logger.Logger

	now   func() time.Time
	newID func() string
}

func NewService(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		tracker:    d.Tracker,
		normalizer: d.Normalizer,
		inputs:     d.Inputs,
		processor:  d.Processor,
		pool:       d.Pool,
		cleanup:    processor.NewCleanup(log),
		log:        log.WithComponent("jobs-service"),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// SubmitSimple validates a single image job, stages its files and queues it.
func (s *Service) SubmitSimple(ctx context.Context, req SimpleRequest) (*jobs.Job, error) {
	if req.Image.Empty() {
		return nil, errors.ValidationField("image", "Image file is required.")
	}
	if req.Audio.Empty() {
		return nil, errors.ValidationField("audio", "Audio file is required.")
	}
	if err := requireMediaType("image", req.Image, "image/"); err != nil {
		return nil, err
	}
	if err := requireMediaType("audio", req.Audio, "audio/"); err != nil {
		return nil, err
	}
	if err := publish.ValidateMetadata(req.Title, req.Description); err != nil {
		return nil, err
	}
	if req.DurationSec < MinDurationSec || req.DurationSec > MaxDurationSec {
		return nil, errors.ValidationField("duration",
			fmt.Sprintf("Duration must be between %d and %d seconds.", MinDurationSec, MaxDurationSec))
	}
	opts, err := s.publishOptions(req.Metadata)
	if err != nil {
		return nil, err
	}

	id := s.newID()
	inputs := []processor.Input{
		{Key: "image", Name: "image" + req.Image.Suffix(".jpg"), Part: req.Image},
		{Key: "audio", Name: "audio" + req.Audio.Suffix(".mp3"), Part: req.Audio},
	}
	inputs = appendThumbnail(inputs, req.Thumbnail)

	dir, paths, err := s.inputs.Stage(ctx, id, inputs)
	if err != nil {
		return nil, deadlineErr(ctx, "stage inputs", err)
	}

	task := processor.Task{
		JobID:       id,
		Kind:        jobs.KindSimple,
		WorkDir:     dir,
		Title:       req.Title,
		Description: req.Description,
		Options:     opts,
		Thumbnail:   stagedThumbnail(paths, req.Thumbnail),
		Simple: &processor.SimpleInput{
			ImagePath:   paths["image"],
			AudioPath:   paths["audio"],
			DurationSec: req.DurationSec,
		},
	}
	return s.dispatch(ctx, task)
}

// SubmitComposition validates the manifest against the uploaded assets,
// probing video assets synchronously, then stages and queues the job.
func (s *Service) SubmitComposition(ctx context.Context, req CompositionRequest) (*jobs.Job, error) {
	if req.Audio.Empty() {
		return nil, errors.ValidationField("audio", "Audio file is required.")
	}
	if err := requireMediaType("audio", req.Audio, "audio/"); err != nil {
		return nil, err
	}
	if err := publish.ValidateMetadata(req.Title, req.Description); err != nil {
		return nil, err
	}
	opts, err := s.publishOptions(req.Metadata)
	if err != nil {
		return nil, err
	}

	raw, err := composition.ParseManifest(req.Manifest)
	if err != nil {
		return nil, err
	}
	manifest, err := s.normalizer.Normalize(ctx, raw, req.Assets)
	if err != nil {
		return nil, deadlineErr(ctx, "probe assets", err)
	}

	id := s.newID()
	inputs := []processor.Input{
		{Key: "audio", Name: "audio" + req.Audio.Suffix(".mp3"), Part: req.Audio},
	}
	seen := make(map[string]bool)
	for _, scene := range manifest.Scenes {
		if seen[scene.AssetID] {
			continue
		}
		seen[scene.AssetID] = true
		part := req.Assets[scene.AssetID]
		inputs = append(inputs, processor.Input{
			Key:  assetKey(scene.AssetID),
			Name: fmt.Sprintf("asset-%d-%s%s", len(seen), processor.SanitizeFilename(scene.AssetID), part.Suffix(".mp4")),
			Part: part,
		})
	}
	inputs = appendThumbnail(inputs, req.Thumbnail)

	dir, paths, err := s.inputs.Stage(ctx, id, inputs)
	if err != nil {
		return nil, deadlineErr(ctx, "stage inputs", err)
	}

	assetPaths := make(map[string]string, len(seen))
	for assetID := range seen {
		assetPaths[assetID] = paths[assetKey(assetID)]
	}

	task := processor.Task{
		JobID:       id,
		Kind:        jobs.KindComposition,
		WorkDir:     dir,
		Title:       req.Title,
		Description: req.Description,
		Options:     opts,
		Thumbnail:   stagedThumbnail(paths, req.Thumbnail),
		Composition: &processor.CompositionInput{
			Manifest:   manifest,
			AssetPaths: assetPaths,
			AudioPath:  paths["audio"],
		},
	}
	return s.dispatch(ctx, task)
}

// Status returns the current state of a job.
func (s *Service) Status(ctx context.Context, id string) (*jobs.Job, error) {
	return s.tracker.Get(ctx, strings.TrimSpace(id))
}

func (s *Service) Check(ctx context.Context) error {
	return s.tracker.Check(ctx)
}

// dispatch registers the job and hands it to the pool. A job the pool
// cannot take is failed immediately and its files removed. Registration
// ignores the request deadline: once inputs are staged the caller either
// gets the job id or an error, never a job it cannot see.
func (s *Service) dispatch(ctx context.Context, task processor.Task) (*jobs.Job, error) {
	ctx = context.WithoutCancel(ctx)
	log := s.log.FromContext(ctx).WithJobID(task.JobID)

	job, err := s.tracker.Enqueue(ctx, task.JobID, task.Kind, task.Options)
	if err != nil {
		s.cleanup.CleanupJob(ctx, task.WorkDir)
		return nil, err
	}

	err = s.pool.Submit(func(ctx context.Context) {
		_ = s.processor.ProcessJob(ctx, task)
	})
	if err != nil {
		log.Warn("job could not be dispatched", "error", err.Error())
		if _, markErr := s.tracker.MarkFailed(ctx, task.JobID); markErr != nil {
			log.Error("failed to mark job as failed", "error", markErr.Error())
		}
		s.cleanup.CleanupJob(ctx, task.WorkDir)
		return nil, err
	}

	log.Info("job accepted",
		"kind", string(task.Kind),
		"privacy", string(task.Options.Privacy),
		"scheduled", task.Options.Scheduled(),
		"thumbnail", task.Thumbnail != nil,
	)
	return job, nil
}

// deadlineErr reports err as a timeout when the submission deadline passed.
func deadlineErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != context.DeadlineExceeded {
		return err
	}
	return errors.Timeout("submission "+op, err)
}

func (s *Service) publishOptions(m Metadata) (publish.Options, error) {
	opts, err := publish.NewOptions(m.Options, s.now())
	if err != nil {
		return publish.Options{}, err
	}
	if err := publish.ValidateThumbnail(m.Thumbnail); err != nil {
		return publish.Options{}, err
	}
	return opts, nil
}

func requireMediaType(field string, p *ports.Part, prefix string) error {
	if !strings.HasPrefix(p.MediaType(), prefix) {
		return errors.ValidationField(field, fmt.Sprintf("%s must have a %s* content type.", field, prefix))
	}
	return nil
}

func assetKey(id string) string { return "asset:" + id }

func appendThumbnail(inputs []processor.Input, thumb *ports.Part) []processor.Input {
	if thumb == nil {
		return inputs
	}
	return append(inputs, processor.Input{
		Key:  "thumbnail",
		Name: "thumbnail" + processor.ThumbnailSuffix(thumb.ContentType),
		Part: thumb,
	})
}

func stagedThumbnail(paths map[string]string, thumb *ports.Part) *publish.Thumbnail {
	if thumb == nil {
		return nil
	}
	return &publish.Thumbnail{Path: paths["thumbnail"], ContentType: thumb.MediaType()}
}
