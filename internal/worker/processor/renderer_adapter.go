package processor

import (
	"context"
	"fmt"

	"mediafactory/internal/composition"
	"mediafactory/internal/jobs"
)

type CompositionRenderer interface {
	Render(ctx context.Context, plan *composition.RenderPlan, out string) error
}

type SimpleRenderer interface {
	Render(ctx context.Context, image, audio string, durationSec int, out string) error
}

// RendererAdapter dispatches a task to the renderer of its kind. The
// composition plan is compiled here, right before it is consumed.
type RendererAdapter struct {
	composition CompositionRenderer
	simple      SimpleRenderer
}

func NewRendererAdapter(c CompositionRenderer, s SimpleRenderer) *RendererAdapter {
	return &RendererAdapter{composition: c, simple: s}
}

func (ra *RendererAdapter) Render(ctx context.Context, task Task, out string) error {
	switch task.Kind {
	case jobs.KindSimple:
		if task.Simple == nil {
			return fmt.Errorf("simple job %s has no inputs", task.JobID)
		}
		in := task.Simple
		return ra.simple.Render(ctx, in.ImagePath, in.AudioPath, in.DurationSec, out)

	case jobs.KindComposition:
		if task.Composition == nil {
			return fmt.Errorf("composition job %s has no inputs", task.JobID)
		}
		in := task.Composition
		plan, err := composition.Compile(in.Manifest, in.AssetPaths, in.AudioPath)
		if err != nil {
			return err
		}
		return ra.composition.Render(ctx, plan, out)
	}
	return fmt.Errorf("unknown job kind %q", task.Kind)
}
