// Package composition holds the scene timeline model of a composed video:
// the raw manifest as submitted, the validator that resolves it into a
// normalized Manifest, and the compiler that turns a Manifest into a
// RenderPlan for the renderer.
package composition

import "strings"

// Limits applied while normalizing a manifest.
const (
	MaxScenes             = 50
	MinImageDurationSec   = 0.5
	MaxImageDurationSec   = 600.0
	MaxTotalDurationSec   = 36000.0
	MinCrossfadeSec       = 0.2
	MaxCrossfadeSec       = 2.0
	DefaultOverlayOpacity = 0.25

	// Epsilon is the tolerance of every floating point comparison.
	Epsilon = 1e-9
)

// OutputPreset is the frame size of the rendered video.
type OutputPreset string

const (
	PresetLandscape OutputPreset = "LANDSCAPE_16_9"
	PresetPortrait  OutputPreset = "PORTRAIT_9_16"
	PresetSquare    OutputPreset = "SQUARE_1_1"
)

// Dimensions returns the frame width and height of the preset.
func (p OutputPreset) Dimensions() (width, height int) {
	switch p {
	case PresetPortrait:
		return 1080, 1920
	case PresetSquare:
		return 1080, 1080
	default:
		return 1920, 1080
	}
}

type SceneType string

const (
	SceneImage SceneType = "IMAGE"
	SceneVideo SceneType = "VIDEO"
)

// MediaPrefix is the content type family an asset of this scene type must have.
func (t SceneType) MediaPrefix() string {
	if t == SceneVideo {
		return "video/"
	}
	return "image/"
}

type Motion string

const (
	MotionNone     Motion = "NONE"
	MotionZoomIn   Motion = "ZOOM_IN"
	MotionZoomOut  Motion = "ZOOM_OUT"
	MotionPanLeft  Motion = "PAN_LEFT"
	MotionPanRight Motion = "PAN_RIGHT"
)

type CaptionPosition string

const (
	CaptionTop    CaptionPosition = "TOP"
	CaptionCenter CaptionPosition = "CENTER"
	CaptionBottom CaptionPosition = "BOTTOM"
)

type TransitionType string

const (
	TransitionCut       TransitionType = "CUT"
	TransitionCrossfade TransitionType = "CROSSFADE"
)

type FilterPreset string

const (
	FilterNone      FilterPreset = "NONE"
	FilterGrayscale FilterPreset = "GRAYSCALE"
	FilterSepia     FilterPreset = "SEPIA"
	FilterCool      FilterPreset = "COOL"
	FilterWarm      FilterPreset = "WARM"
)

var (
	outputPresets    = []OutputPreset{PresetLandscape, PresetPortrait, PresetSquare}
	sceneTypes       = []SceneType{SceneImage, SceneVideo}
	motions          = []Motion{MotionNone, MotionZoomIn, MotionZoomOut, MotionPanLeft, MotionPanRight}
	captionPositions = []CaptionPosition{CaptionTop, CaptionCenter, CaptionBottom}
	transitionTypes  = []TransitionType{TransitionCut, TransitionCrossfade}
	filterPresets    = []FilterPreset{FilterNone, FilterGrayscale, FilterSepia, FilterCool, FilterWarm}
)

// parseEnum matches raw case-insensitively against the allowed values.
func parseEnum[T ~string](raw string, allowed []T) (T, bool) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	for _, a := range allowed {
		if string(a) == v {
			return a, true
		}
	}
	var zero T
	return zero, false
}

// ParseOutputPreset parses a preset name, ignoring case.
func ParseOutputPreset(raw string) (OutputPreset, bool) {
	return parseEnum(raw, outputPresets)
}

// Manifest is a validated scene timeline. Every optional field is resolved.
type Manifest struct {
	OutputPreset     OutputPreset `json:"outputPreset"`
	Scenes           []Scene      `json:"scenes"`
	TotalDurationSec float64      `json:"totalDurationSec"`
}

// Scene is one resolved timeline entry. DurationSec is explicit for image
// scenes and derived from the clip bounds for video scenes.
type Scene struct {
	AssetID      string     `json:"assetId"`
	Type         SceneType  `json:"type"`
	DurationSec  float64    `json:"durationSec"`
	ClipStartSec float64    `json:"clipStartSec"`
	Motion       Motion     `json:"motion"`
	Caption      *Caption   `json:"caption,omitempty"`
	Transition   Transition `json:"transition"`
	VisualEdit   VisualEdit `json:"visualEdit"`
}

// Caption offsets are relative to the start of the scene.
type Caption struct {
	Text           string          `json:"text"`
	StartOffsetSec float64         `json:"startOffsetSec"`
	EndOffsetSec   float64         `json:"endOffsetSec"`
	Position       CaptionPosition `json:"position"`
}

// Transition is the transition from the previous scene into this one.
// DurationSec is 0 for CUT.
type Transition struct {
	Type        TransitionType `json:"type"`
	DurationSec float64        `json:"durationSec"`
}

// IsCrossfade reports whether the transition blends into the previous scene.
func (t Transition) IsCrossfade() bool {
	return t.Type == TransitionCrossfade
}

type VisualEdit struct {
	Filter     FilterPreset `json:"filter"`
	ColorGrade ColorGrade   `json:"colorGrade"`
	Overlay    *Overlay     `json:"overlay,omitempty"`
}

type ColorGrade struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Saturation float64 `json:"saturation"`
}

// NeutralColorGrade leaves the picture untouched.
var NeutralColorGrade = ColorGrade{Brightness: 0, Contrast: 1, Saturation: 1}

// IsNeutral reports whether every component is within Epsilon of neutral.
func (g ColorGrade) IsNeutral() bool {
	return abs(g.Brightness) <= Epsilon &&
		abs(g.Contrast-1) <= Epsilon &&
		abs(g.Saturation-1) <= Epsilon
}

// Overlay is a full-frame colour wash. HexColor is "#RRGGBB" upper-case.
type Overlay struct {
	HexColor string  `json:"hexColor"`
	Opacity  float64 `json:"opacity"`
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
