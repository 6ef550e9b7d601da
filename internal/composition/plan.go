package composition

import (
	"fmt"
	"strings"

	"mediafactory/internal/pkg/errors"
)

// RenderPlan is the execution form of a Manifest: concrete durations,
// offsets and file paths. It is built once per job and consumed once.
type RenderPlan struct {
	Preset           OutputPreset
	Width            int
	Height           int
	Scenes           []ScenePlan
	AudioPath        string
	TotalDurationSec float64
}

// ScenePlan is one scene ready to render. Transition is always a
// (kind, duration) pair with duration 0 for CUT.
type ScenePlan struct {
	Index        int
	AssetPath    string
	Type         SceneType
	DurationSec  float64
	ClipStartSec float64
	Motion       Motion
	Caption      *Caption
	Transition   Transition
	VisualEdit   VisualEdit
}

// HasCrossfade reports whether any scene blends into its predecessor.
func (p *RenderPlan) HasCrossfade() bool {
	for _, s := range p.Scenes {
		if s.Transition.IsCrossfade() {
			return true
		}
	}
	return false
}

// Compile maps a normalized manifest onto file paths. assetPaths is keyed by
// asset id. The total duration is recomputed from the scenes so a manifest
// that did not come out of the Normalizer still yields a consistent plan.
func Compile(m *Manifest, assetPaths map[string]string, audioPath string) (*RenderPlan, error) {
	if m == nil || len(m.Scenes) == 0 {
		return nil, errors.Validation("render plan requires at least one scene")
	}
	if strings.TrimSpace(audioPath) == "" {
		return nil, errors.Validation("render plan requires an audio track")
	}

	w, h := m.OutputPreset.Dimensions()
	plan := &RenderPlan{
		Preset:    m.OutputPreset,
		Width:     w,
		Height:    h,
		Scenes:    make([]ScenePlan, 0, len(m.Scenes)),
		AudioPath: audioPath,
	}

	for i, s := range m.Scenes {
		path, ok := assetPaths[s.AssetID]
		if !ok || strings.TrimSpace(path) == "" {
			return nil, errors.NotFound("asset", s.AssetID).
				WithField(errors.FieldPath, fmt.Sprintf("manifest.scenes[%d].assetId", i))
		}

		transition := Transition{Type: TransitionCut}
		if i > 0 && s.Transition.IsCrossfade() {
			transition = s.Transition
		}

		plan.Scenes = append(plan.Scenes, ScenePlan{
			Index:        i,
			AssetPath:    path,
			Type:         s.Type,
			DurationSec:  s.DurationSec,
			ClipStartSec: s.ClipStartSec,
			Motion:       s.Motion,
			Caption:      s.Caption,
			Transition:   transition,
			VisualEdit:   compileVisualEdit(s.VisualEdit),
		})
		plan.TotalDurationSec += s.DurationSec - transition.DurationSec
	}

	return plan, nil
}

func compileVisualEdit(e VisualEdit) VisualEdit {
	if e.Filter == "" {
		e.Filter = FilterNone
	}
	if e.ColorGrade == (ColorGrade{}) {
		e.ColorGrade = NeutralColorGrade
	}
	if e.Overlay != nil && e.Overlay.Opacity <= Epsilon {
		e.Overlay = nil
	}
	return e
}
