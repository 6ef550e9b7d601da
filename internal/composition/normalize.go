package composition

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"mediafactory/internal/pkg/errors"
	"mediafactory/internal/ports"
)

var hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// DurationProber measures the duration of a video stream in seconds.
type DurationProber interface {
	Duration(ctx context.Context, r io.Reader, suffix string) (float64, error)
}

// Normalizer validates raw manifests against their uploaded assets and
// resolves every optional field. Validation stops at the first violation.
type Normalizer struct {
	prober DurationProber
}

func NewNormalizer(prober DurationProber) *Normalizer {
	return &Normalizer{prober: prober}
}

// Normalize validates raw against assets (keyed by asset id) and returns the
// resolved manifest. Violations are validation errors carrying the dotted
// field path; a video asset that cannot be measured is a probe error.
func (n *Normalizer) Normalize(ctx context.Context, raw *RawManifest, assets map[string]*ports.Part) (*Manifest, error) {
	if raw == nil {
		return nil, errors.ValidationField("manifest", "manifest is required.")
	}
	if raw.OutputPreset == nil {
		return nil, errors.ValidationField("manifest.outputPreset", "manifest.outputPreset is required.")
	}
	if len(raw.Scenes) == 0 {
		return nil, errors.ValidationField("manifest.scenes", "manifest.scenes must contain at least one scene.")
	}
	if len(raw.Scenes) > MaxScenes {
		return nil, errors.ValidationField("manifest.scenes",
			fmt.Sprintf("manifest.scenes supports at most %d scenes.", MaxScenes))
	}

	out := &Manifest{
		OutputPreset: *raw.OutputPreset,
		Scenes:       make([]Scene, 0, len(raw.Scenes)),
	}

	previousDuration := 0.0
	total := 0.0
	for i, rs := range raw.Scenes {
		path := fmt.Sprintf("manifest.scenes[%d]", i)
		if rs == nil {
			return nil, errors.ValidationField(path, path+" must not be null.")
		}

		scene, err := n.scene(ctx, i, path, rs, assets, previousDuration)
		if err != nil {
			return nil, err
		}

		total += scene.DurationSec - scene.Transition.DurationSec
		previousDuration = scene.DurationSec
		out.Scenes = append(out.Scenes, scene)
	}

	if total > MaxTotalDurationSec+Epsilon {
		return nil, errors.ValidationField("manifest.scenes",
			fmt.Sprintf("Total timeline duration must be less than or equal to %.0f seconds.", MaxTotalDurationSec))
	}
	out.TotalDurationSec = total

	return out, nil
}

func (n *Normalizer) scene(ctx context.Context, index int, path string, rs *RawScene, assets map[string]*ports.Part, previousDuration float64) (Scene, error) {
	assetID := strings.TrimSpace(rs.AssetID)
	if assetID == "" {
		return Scene{}, errors.ValidationField(path+".assetId", path+".assetId is required.")
	}
	asset := assets[assetID]
	if asset.Empty() {
		return Scene{}, errors.ValidationField(path+".assetId",
			fmt.Sprintf("Missing required file part asset.%s for scene index %d.", assetID, index))
	}
	if rs.Type == nil {
		return Scene{}, errors.ValidationField(path+".type", path+".type is required.")
	}
	sceneType := *rs.Type

	if !strings.HasPrefix(asset.MediaType(), sceneType.MediaPrefix()) {
		return Scene{}, errors.ValidationField(path+".assetId",
			fmt.Sprintf("asset for %s with type %s must have content type %s*.", path, sceneType, sceneType.MediaPrefix()))
	}

	clipStart, err := nonNegativeOrDefault(rs.ClipStartSec, 0, path+".clipStartSec")
	if err != nil {
		return Scene{}, err
	}

	var duration float64
	switch sceneType {
	case SceneImage:
		duration, err = imageDuration(path, rs, clipStart)
		clipStart = 0
	case SceneVideo:
		duration, err = n.videoDuration(ctx, path, rs, asset, clipStart)
	}
	if err != nil {
		return Scene{}, err
	}

	// Motion only applies to stills; video scenes play their own footage.
	motion := MotionNone
	if rs.Motion != nil && sceneType == SceneImage {
		motion = *rs.Motion
	}

	caption, err := normalizeCaption(path+".caption", rs.Caption, duration)
	if err != nil {
		return Scene{}, err
	}

	transition, err := normalizeTransition(index, path+".transition", rs.Transition, previousDuration, duration)
	if err != nil {
		return Scene{}, err
	}

	edit, err := normalizeVisualEdit(path+".visualEdit", rs.VisualEdit)
	if err != nil {
		return Scene{}, err
	}

	return Scene{
		AssetID:      assetID,
		Type:         sceneType,
		DurationSec:  duration,
		ClipStartSec: clipStart,
		Motion:       motion,
		Caption:      caption,
		Transition:   transition,
		VisualEdit:   edit,
	}, nil
}

func imageDuration(path string, rs *RawScene, clipStart float64) (float64, error) {
	if rs.ClipDurationSec != nil {
		return 0, errors.ValidationField(path+".clipDurationSec", path+".clipDurationSec is not supported for IMAGE scenes.")
	}
	if clipStart > Epsilon {
		return 0, errors.ValidationField(path+".clipStartSec", path+".clipStartSec must be 0 for IMAGE scenes.")
	}
	if rs.DurationSec == nil {
		return 0, errors.ValidationField(path+".durationSec", path+".durationSec is required for IMAGE scenes.")
	}
	d := *rs.DurationSec
	if d < MinImageDurationSec || d > MaxImageDurationSec {
		return 0, errors.ValidationField(path+".durationSec",
			fmt.Sprintf("%s.durationSec must be between %g and %g seconds.", path, MinImageDurationSec, MaxImageDurationSec))
	}
	return d, nil
}

func (n *Normalizer) videoDuration(ctx context.Context, path string, rs *RawScene, asset *ports.Part, clipStart float64) (float64, error) {
	if rs.DurationSec != nil {
		return 0, errors.ValidationField(path+".durationSec", path+".durationSec is only supported for IMAGE scenes.")
	}

	if rs.ClipDurationSec != nil {
		d := *rs.ClipDurationSec
		if d <= Epsilon {
			return 0, errors.ValidationField(path+".clipDurationSec", path+".clipDurationSec must be greater than 0.")
		}
		return d, nil
	}

	source, err := n.probe(ctx, path, asset)
	if err != nil {
		return 0, err
	}
	remaining := source - clipStart
	if remaining <= Epsilon {
		return 0, errors.ValidationField(path+".clipStartSec", path+".clipStartSec exceeds the source video duration.")
	}
	return remaining, nil
}

func (n *Normalizer) probe(ctx context.Context, path string, asset *ports.Part) (float64, error) {
	if n.prober == nil {
		return 0, errors.Probe("no media prober configured", nil).WithField(errors.FieldPath, path)
	}

	rc, err := asset.Open()
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.CodeProbe, "composition.probe",
			"failed to read the video asset for "+path).WithField(errors.FieldPath, path)
	}
	defer rc.Close()

	d, err := n.prober.Duration(ctx, rc, asset.Suffix(".mp4"))
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.CodeProbe, "composition.probe",
			"failed to determine the video duration for "+path).WithField(errors.FieldPath, path)
	}
	return d, nil
}

func normalizeCaption(path string, rc *RawCaption, sceneDuration float64) (*Caption, error) {
	if rc == nil {
		return nil, nil
	}

	text := strings.TrimSpace(rc.Text)
	if text == "" {
		return nil, errors.ValidationField(path+".text", path+".text must not be blank.")
	}

	start, err := nonNegativeOrDefault(rc.StartOffsetSec, 0, path+".startOffsetSec")
	if err != nil {
		return nil, err
	}
	end := sceneDuration
	if rc.EndOffsetSec != nil {
		end = *rc.EndOffsetSec
	}

	if end <= start+Epsilon {
		return nil, errors.ValidationField(path+".endOffsetSec", path+".endOffsetSec must be greater than caption.startOffsetSec.")
	}
	if end > sceneDuration+Epsilon {
		return nil, errors.ValidationField(path+".endOffsetSec", path+".endOffsetSec must not exceed the scene duration.")
	}

	position := CaptionBottom
	if rc.Position != nil {
		position = *rc.Position
	}

	return &Caption{
		Text:           text,
		StartOffsetSec: start,
		EndOffsetSec:   end,
		Position:       position,
	}, nil
}

func normalizeTransition(index int, path string, rt *RawTransition, previousDuration, currentDuration float64) (Transition, error) {
	cut := Transition{Type: TransitionCut}

	requested := TransitionCut
	if rt != nil && rt.Type != nil {
		requested = *rt.Type
	}

	if index == 0 {
		if requested != TransitionCut {
			return Transition{}, errors.ValidationField(path+".type", "The first scene transition must be CUT.")
		}
		return cut, nil
	}
	if requested == TransitionCut {
		return cut, nil
	}

	durationPath := path + ".transitionDurationSec"
	if rt.DurationSec == nil {
		return Transition{}, errors.ValidationField(durationPath, durationPath+" is required for CROSSFADE transitions.")
	}
	d := *rt.DurationSec
	if d < MinCrossfadeSec || d > MaxCrossfadeSec {
		return Transition{}, errors.ValidationField(durationPath,
			fmt.Sprintf("%s must be between %g and %g seconds.", durationPath, MinCrossfadeSec, MaxCrossfadeSec))
	}
	if d >= previousDuration-Epsilon || d >= currentDuration-Epsilon {
		return Transition{}, errors.ValidationField(durationPath, durationPath+" must be smaller than adjacent scene durations.")
	}

	return Transition{Type: TransitionCrossfade, DurationSec: d}, nil
}

func normalizeVisualEdit(path string, re *RawVisualEdit) (VisualEdit, error) {
	edit := VisualEdit{Filter: FilterNone, ColorGrade: NeutralColorGrade}
	if re == nil {
		return edit, nil
	}

	if re.Filter != nil {
		edit.Filter = *re.Filter
	}

	if g := re.ColorGrade; g != nil {
		gp := path + ".colorGrade."
		var err error
		if edit.ColorGrade.Brightness, err = inRangeOrDefault(g.Brightness, 0, -1, 1, gp+"brightness"); err != nil {
			return VisualEdit{}, err
		}
		if edit.ColorGrade.Contrast, err = inRangeOrDefault(g.Contrast, 1, 0.2, 3, gp+"contrast"); err != nil {
			return VisualEdit{}, err
		}
		if edit.ColorGrade.Saturation, err = inRangeOrDefault(g.Saturation, 1, 0, 3, gp+"saturation"); err != nil {
			return VisualEdit{}, err
		}
	}

	overlay, err := normalizeOverlay(path+".overlay", re.Overlay)
	if err != nil {
		return VisualEdit{}, err
	}
	edit.Overlay = overlay

	return edit, nil
}

func normalizeOverlay(path string, ro *RawOverlay) (*Overlay, error) {
	if ro == nil {
		return nil, nil
	}

	colorPath := path + ".hexColor"
	color := strings.TrimSpace(ro.HexColor)
	if color == "" {
		return nil, errors.ValidationField(colorPath, colorPath+" is required when overlay is provided.")
	}
	if !hexColorPattern.MatchString(color) {
		return nil, errors.ValidationField(colorPath, colorPath+" must match #RRGGBB.")
	}

	opacity, err := inRangeOrDefault(ro.Opacity, DefaultOverlayOpacity, 0, 1, path+".opacity")
	if err != nil {
		return nil, err
	}
	if opacity <= Epsilon {
		return nil, nil
	}

	return &Overlay{HexColor: strings.ToUpper(color), Opacity: opacity}, nil
}

func nonNegativeOrDefault(v *float64, def float64, path string) (float64, error) {
	if v == nil {
		return def, nil
	}
	if *v < 0 {
		return 0, errors.ValidationField(path, path+" must be greater than or equal to 0.")
	}
	return *v, nil
}

func inRangeOrDefault(v *float64, def, lo, hi float64, path string) (float64, error) {
	if v == nil {
		return def, nil
	}
	if *v < lo || *v > hi {
		return 0, errors.ValidationField(path, fmt.Sprintf("%s must be between %g and %g.", path, lo, hi))
	}
	return *v, nil
}
