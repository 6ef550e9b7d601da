package processor

import (
	"context"
	"time"

	"mediafactory/internal/pkg/errors"
	"mediafactory/internal/pkg/logger"
	"mediafactory/internal/publish"
)

// DefaultPublishTimeout bounds each publisher call when none is configured.
const DefaultPublishTimeout = 30 * time.Minute

// OutputHandler publishes a rendered video. Only the primary upload is
// fatal; thumbnail problems degrade to a warning on the result. Each
// publisher call runs under its own timeout.
type OutputHandler struct {
	publisher publish.Publisher
	timeout   time.Duration
	log       *logger.Logger
}

func NewOutputHandler(publisher publish.Publisher, timeout time.Duration, log *logger.Logger) *OutputHandler {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	if log == nil {
		log = logger.Discard()
	}
	return &OutputHandler{publisher: publisher, timeout: timeout, log: log.WithComponent("output")}
}

type PublishRequest struct {
	VideoPath   string
	Title       string
	Description string
	Options     publish.Options
	Thumbnail   *publish.Thumbnail
}

func (oh *OutputHandler) Publish(ctx context.Context, req PublishRequest) (publish.Result, error) {
	log := oh.log.FromContext(ctx)

	res, err := oh.upload(ctx, req)
	if err != nil {
		return publish.Result{}, err
	}
	log.Info("video published", "video_id", res.VideoID, "privacy", string(req.Options.Privacy), "scheduled", req.Options.Scheduled())

	if req.Thumbnail == nil {
		return res, nil
	}
	if err := oh.setThumbnail(ctx, res.VideoID, *req.Thumbnail); err != nil {
		log.Error("thumbnail upload failed", "video_id", res.VideoID, "error", err.Error())
		res.Warning = publish.JoinWarnings(res.Warning, publish.WarningThumbnailFailed)
	}
	return res, nil
}

func (oh *OutputHandler) upload(ctx context.Context, req PublishRequest) (publish.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, oh.timeout)
	defer cancel()

	res, err := oh.publisher.Upload(ctx, publish.Video{
		Path:        req.VideoPath,
		Title:       req.Title,
		Description: req.Description,
		Options:     req.Options,
	})
	if err != nil {
		return publish.Result{}, oh.timedOut(ctx, "publish upload", err)
	}
	return res, nil
}

func (oh *OutputHandler) setThumbnail(ctx context.Context, videoID string, thumb publish.Thumbnail) error {
	prepared, err := publish.PrepareThumbnail(thumb)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, oh.timeout)
	defer cancel()
	if err := oh.publisher.SetThumbnail(ctx, videoID, prepared); err != nil {
		return oh.timedOut(ctx, "publish thumbnail", err)
	}
	return nil
}

// timedOut replaces err with a timeout error once the call's deadline passed,
// whatever the publisher made of the cancelled request.
func (oh *OutputHandler) timedOut(ctx context.Context, op string, err error) error {
	if ctx.Err() != context.DeadlineExceeded {
		return err
	}
	return errors.Timeout(op, err).WithField("timeout", oh.timeout.String())
}
