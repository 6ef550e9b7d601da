package composition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"mediafactory/internal/pkg/errors"
)

// RawManifest is a manifest as submitted, before validation. Absent optional
// fields are nil so the normalizer can tell "missing" from "zero".
type RawManifest struct {
	OutputPreset *OutputPreset
	Scenes       []*RawScene
}

type RawScene struct {
	AssetID         string
	Type            *SceneType
	DurationSec     *float64
	ClipStartSec    *float64
	ClipDurationSec *float64
	Motion          *Motion
	Caption         *RawCaption
	Transition      *RawTransition
	VisualEdit      *RawVisualEdit
}

type RawCaption struct {
	Text           string
	StartOffsetSec *float64
	EndOffsetSec   *float64
	Position       *CaptionPosition
}

type RawTransition struct {
	Type        *TransitionType
	DurationSec *float64
}

type RawVisualEdit struct {
	Filter     *FilterPreset
	ColorGrade *RawColorGrade
	Overlay    *RawOverlay
}

type RawColorGrade struct {
	Brightness *float64
	Contrast   *float64
	Saturation *float64
}

type RawOverlay struct {
	HexColor string
	Opacity  *float64
}

// ParseManifest decodes the JSON wire form of a manifest. Enum values are
// matched case-insensitively; numbers may be JSON numbers or numeric strings.
// Malformed input fails with a validation error naming the field path.
func ParseManifest(data []byte) (*RawManifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.ValidationField("manifest", "manifest is required.")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.ValidationField("manifest", "manifest must be a valid JSON object.")
	}
	if raw == nil {
		return nil, errors.ValidationField("manifest", "manifest is required.")
	}

	m := &RawManifest{}

	var err error
	if m.OutputPreset, err = enumField(raw, "outputPreset", "manifest.outputPreset", outputPresets); err != nil {
		return nil, err
	}

	rawScenes, ok := raw["scenes"]
	if ok && rawScenes != nil {
		list, isList := rawScenes.([]any)
		if !isList {
			return nil, errors.ValidationField("manifest.scenes", "manifest.scenes must be an array.")
		}
		for i, item := range list {
			path := fmt.Sprintf("manifest.scenes[%d]", i)
			obj, isObj := item.(map[string]any)
			if !isObj {
				return nil, errors.ValidationField(path, path+" must be an object.")
			}
			scene, err := parseScene(obj, path)
			if err != nil {
				return nil, err
			}
			m.Scenes = append(m.Scenes, scene)
		}
	}

	return m, nil
}

func parseScene(obj map[string]any, path string) (*RawScene, error) {
	s := &RawScene{}
	var err error

	if s.AssetID, err = stringField(obj, "assetId", path+".assetId"); err != nil {
		return nil, err
	}
	if s.Type, err = enumField(obj, "type", path+".type", sceneTypes); err != nil {
		return nil, err
	}
	if s.DurationSec, err = numberField(obj, "durationSec", path+".durationSec"); err != nil {
		return nil, err
	}
	if s.ClipStartSec, err = numberField(obj, "clipStartSec", path+".clipStartSec"); err != nil {
		return nil, err
	}
	if s.ClipDurationSec, err = numberField(obj, "clipDurationSec", path+".clipDurationSec"); err != nil {
		return nil, err
	}
	if s.Motion, err = enumField(obj, "motion", path+".motion", motions); err != nil {
		return nil, err
	}

	if c, err := objectField(obj, "caption", path+".caption"); err != nil {
		return nil, err
	} else if c != nil {
		cp := path + ".caption"
		caption := &RawCaption{}
		if caption.Text, err = stringField(c, "text", cp+".text"); err != nil {
			return nil, err
		}
		if caption.StartOffsetSec, err = numberField(c, "startOffsetSec", cp+".startOffsetSec"); err != nil {
			return nil, err
		}
		if caption.EndOffsetSec, err = numberField(c, "endOffsetSec", cp+".endOffsetSec"); err != nil {
			return nil, err
		}
		if caption.Position, err = enumField(c, "position", cp+".position", captionPositions); err != nil {
			return nil, err
		}
		s.Caption = caption
	}

	if t, err := objectField(obj, "transition", path+".transition"); err != nil {
		return nil, err
	} else if t != nil {
		tp := path + ".transition"
		transition := &RawTransition{}
		if transition.Type, err = enumField(t, "type", tp+".type", transitionTypes); err != nil {
			return nil, err
		}
		if transition.DurationSec, err = numberField(t, "transitionDurationSec", tp+".transitionDurationSec"); err != nil {
			return nil, err
		}
		s.Transition = transition
	}

	if v, err := objectField(obj, "visualEdit", path+".visualEdit"); err != nil {
		return nil, err
	} else if v != nil {
		vp := path + ".visualEdit"
		edit := &RawVisualEdit{}
		if edit.Filter, err = enumField(v, "filter", vp+".filter", filterPresets); err != nil {
			return nil, err
		}

		if g, err := objectField(v, "colorGrade", vp+".colorGrade"); err != nil {
			return nil, err
		} else if g != nil {
			gp := vp + ".colorGrade"
			grade := &RawColorGrade{}
			if grade.Brightness, err = numberField(g, "brightness", gp+".brightness"); err != nil {
				return nil, err
			}
			if grade.Contrast, err = numberField(g, "contrast", gp+".contrast"); err != nil {
				return nil, err
			}
			if grade.Saturation, err = numberField(g, "saturation", gp+".saturation"); err != nil {
				return nil, err
			}
			edit.ColorGrade = grade
		}

		if o, err := objectField(v, "overlay", vp+".overlay"); err != nil {
			return nil, err
		} else if o != nil {
			op := vp + ".overlay"
			overlay := &RawOverlay{}
			if overlay.HexColor, err = stringField(o, "hexColor", op+".hexColor"); err != nil {
				return nil, err
			}
			if overlay.Opacity, err = numberField(o, "opacity", op+".opacity"); err != nil {
				return nil, err
			}
			edit.Overlay = overlay
		}
		s.VisualEdit = edit
	}

	return s, nil
}

func stringField(obj map[string]any, key, path string) (string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.ValidationField(path, path+" must be a string.")
	}
	return s, nil
}

func objectField(obj map[string]any, key, path string) (map[string]any, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.ValidationField(path, path+" must be an object.")
	}
	return m, nil
}

// numberField reads an optional number. Blank strings count as absent.
func numberField(obj map[string]any, key, path string) (*float64, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, nil
	}

	var (
		f   float64
		err error
	)
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		err = fmt.Errorf("unsupported type %T", v)
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, errors.ValidationField(path, path+" must be a finite number.")
	}
	return &f, nil
}

func enumField[T ~string](obj map[string]any, key, path string, allowed []T) (*T, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, errors.ValidationField(path, fmt.Sprintf("%s has an invalid value: %v", path, v))
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parsed, ok := parseEnum(s, allowed)
	if !ok {
		return nil, errors.ValidationField(path, fmt.Sprintf("%s has an invalid value: %s", path, s))
	}
	return &parsed, nil
}
