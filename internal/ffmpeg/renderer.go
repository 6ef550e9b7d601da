package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"mediafactory/internal/composition"
	"mediafactory/internal/pkg/errors"
	"mediafactory/internal/pkg/logger"
)

// VersionTimeout bounds the start-up binary check.
const VersionTimeout = 10 * time.Second

// CompositionRenderer renders a RenderPlan in stages: one clip per scene,
// a combine pass, then the audio mux. Intermediate files live in a
// per-render work directory that is removed afterwards.
type CompositionRenderer struct {
	invoker Invoker
	tempDir string
	log     *logger.Logger
}

func NewCompositionRenderer(invoker Invoker, tempDir string, log *logger.Logger) *CompositionRenderer {
	if log == nil {
		log = logger.Discard()
	}
	return &CompositionRenderer{invoker: invoker, tempDir: tempDir, log: log.WithComponent("renderer")}
}

// Render writes the finished video to out. The first failing stage aborts
// the render with a render error carrying the stage name and tool output.
func (r *CompositionRenderer) Render(ctx context.Context, plan *composition.RenderPlan, out string) error {
	if plan == nil || len(plan.Scenes) == 0 {
		return errors.Validation("render plan must include at least one scene")
	}

	workDir, err := os.MkdirTemp(r.tempDir, "media-factory-composition-")
	if err != nil {
		return errors.Wrap(err, "renderer.workdir", "failed to create work directory")
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			r.log.Warn("failed to remove work directory", "path", workDir, "error", err)
		}
	}()

	log := r.log.FromContext(ctx)
	start := time.Now()

	clips := make([]string, 0, len(plan.Scenes))
	for _, s := range plan.Scenes {
		clip := filepath.Join(workDir, fmt.Sprintf("scene-%d.mp4", s.Index))
		stage := fmt.Sprintf("scene-%d", s.Index)
		if err := r.stage(ctx, stage, SceneArgs(s, plan.Width, plan.Height, clip)); err != nil {
			return err
		}
		clips = append(clips, clip)
	}

	visual := filepath.Join(workDir, "visual.mp4")
	switch {
	case len(clips) == 1:
		if err := copyFile(clips[0], visual); err != nil {
			return errors.Wrap(err, "renderer.combine", "failed to copy single scene clip")
		}
	case plan.HasCrossfade():
		if err := r.stage(ctx, "combine", CrossfadeArgs(clips, plan.Scenes, visual)); err != nil {
			return err
		}
	default:
		if err := r.stage(ctx, "combine", ConcatArgs(clips, visual)); err != nil {
			return err
		}
	}

	if err := r.stage(ctx, "mux", MuxArgs(plan.AudioPath, visual, out)); err != nil {
		return err
	}
	if _, err := os.Stat(out); err != nil {
		return errors.Render("mux", 0, "", err)
	}

	log.Info("composition rendered",
		"scenes", len(plan.Scenes),
		"total_duration_sec", plan.TotalDurationSec,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (r *CompositionRenderer) stage(ctx context.Context, stage string, args []string) error {
	if err := run(ctx, r.invoker, stage, args); err != nil {
		r.log.FromContext(ctx).WithStage(stage).WithError(err).Error("render stage failed",
			"output", errors.GetFields(err)[errors.FieldOutput])
		return err
	}
	return nil
}

// SimpleRenderer renders the single image plus looping audio video.
type SimpleRenderer struct {
	invoker Invoker
	log     *logger.Logger
}

func NewSimpleRenderer(invoker Invoker, log *logger.Logger) *SimpleRenderer {
	if log == nil {
		log = logger.Discard()
	}
	return &SimpleRenderer{invoker: invoker, log: log.WithComponent("renderer")}
}

func (r *SimpleRenderer) Render(ctx context.Context, image, audio string, durationSec int, out string) error {
	if err := run(ctx, r.invoker, "simple", SimpleArgs(image, audio, durationSec, out)); err != nil {
		r.log.FromContext(ctx).WithStage("simple").WithError(err).Error("render stage failed",
			"output", errors.GetFields(err)[errors.FieldOutput])
		return err
	}
	if _, err := os.Stat(out); err != nil {
		return errors.Render("simple", 0, "", err)
	}
	return nil
}

// CheckBinary verifies the tool answers -version.
func CheckBinary(ctx context.Context, invoker Invoker) error {
	res, err := invoker.Invoke(ctx, "version", []string{"-version"}, VersionTimeout)
	if err != nil {
		return errors.Wrap(err, "ffmpeg.version", "ffmpeg is not available")
	}
	if !res.OK() {
		return errors.Unavailable("ffmpeg").WithField(errors.FieldExitCode, res.ExitCode)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
