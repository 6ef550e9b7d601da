package ffmpeg

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"mediafactory/internal/composition"
)

const (
	// FrameRate of every rendered clip.
	FrameRate = 30

	// ZoomCeiling is the magnification reached at the end of a zoom.
	ZoomCeiling = 1.15

	panZoom = 1.08
)

// SceneFilter builds the -vf chain of one scene. Order is fixed: fit and
// letterbox, motion (image scenes only), colour preset, colour grade,
// overlay, caption.
func SceneFilter(s composition.ScenePlan, width, height int) string {
	filters := []string{scalePad(width, height)}

	if s.Type == composition.SceneImage && s.Motion != "" && s.Motion != composition.MotionNone {
		filters = append(filters, motionFilter(s.Motion, s.DurationSec, width, height))
	}

	if f := presetFilter(s.VisualEdit.Filter); f != "" {
		filters = append(filters, f)
	}
	if !s.VisualEdit.ColorGrade.IsNeutral() && s.VisualEdit.ColorGrade != (composition.ColorGrade{}) {
		filters = append(filters, gradeFilter(s.VisualEdit.ColorGrade))
	}
	if o := s.VisualEdit.Overlay; o != nil && o.Opacity > composition.Epsilon {
		filters = append(filters, overlayFilter(*o))
	}

	if s.Caption != nil {
		filters = append(filters, captionFilter(*s.Caption, width, height))
	}

	return strings.Join(filters, ",")
}

func scalePad(w, h int) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black,setsar=1", w, h, w, h)
}

// motionFilter ramps over the scene's frame count so a zoom reaches
// ZoomCeiling exactly as the scene ends.
func motionFilter(m composition.Motion, durationSec float64, w, h int) string {
	frames := math.Max(math.Round(durationSec*FrameRate), 1)
	tail := fmt.Sprintf(":d=1:fps=%d:s=%dx%d", FrameRate, w, h)
	center := "x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)'"
	step := strconv.FormatFloat((ZoomCeiling-1)/frames, 'f', 6, 64)
	n := strconv.FormatFloat(frames, 'f', 0, 64)
	ceiling := strconv.FormatFloat(ZoomCeiling, 'f', 2, 64)
	pz := strconv.FormatFloat(panZoom, 'f', 2, 64)

	switch m {
	case composition.MotionZoomIn:
		return "zoompan=z='min(1+on*" + step + "," + ceiling + ")':" + center + tail
	case composition.MotionZoomOut:
		return "zoompan=z='max(" + ceiling + "-on*" + step + ",1)':" + center + tail
	case composition.MotionPanLeft:
		return "zoompan=z='" + pz + "':x='(iw-iw/zoom)*max(1-on/" + n + ",0)':y='ih/2-(ih/zoom/2)'" + tail
	case composition.MotionPanRight:
		return "zoompan=z='" + pz + "':x='(iw-iw/zoom)*min(on/" + n + ",1)':y='ih/2-(ih/zoom/2)'" + tail
	}
	return ""
}

func presetFilter(f composition.FilterPreset) string {
	switch f {
	case composition.FilterGrayscale:
		return "hue=s=0"
	case composition.FilterSepia:
		return "colorchannelmixer=.393:.769:.189:.349:.686:.168:.272:.534:.131"
	case composition.FilterCool:
		return "colorbalance=rs=-0.05:gs=0.00:bs=0.08"
	case composition.FilterWarm:
		return "colorbalance=rs=0.08:gs=0.03:bs=-0.03"
	}
	return ""
}

func gradeFilter(g composition.ColorGrade) string {
	return "eq=brightness=" + decimal(g.Brightness) +
		":contrast=" + decimal(g.Contrast) +
		":saturation=" + decimal(g.Saturation)
}

func overlayFilter(o composition.Overlay) string {
	color := o.HexColor
	if strings.HasPrefix(color, "#") {
		color = "0x" + color[1:]
	}
	return "drawbox=x=0:y=0:w=iw:h=ih:color=" + color + "@" + decimal(o.Opacity) + ":t=fill"
}

func captionFilter(c composition.Caption, w, h int) string {
	return "drawtext=text='" + EscapeText(c.Text) + "'" +
		":fontcolor=white:fontsize=" + strconv.Itoa(max(w, h)/24) +
		":box=1:boxcolor=black@0.45:boxborderw=12" +
		":x=(w-text_w)/2:y=" + captionY(c.Position) +
		":enable='between(t," + seconds(c.StartOffsetSec) + "," + seconds(c.EndOffsetSec) + ")'"
}

func captionY(p composition.CaptionPosition) string {
	switch p {
	case composition.CaptionTop:
		return "h*0.08"
	case composition.CaptionCenter:
		return "(h-text_h)/2"
	default:
		return "h-text_h-h*0.08"
	}
}

var textEscaper = strings.NewReplacer(`\`, `\\`, `:`, `\:`, `'`, `\'`, `%`, `\%`)

// EscapeText escapes the characters drawtext treats as syntax.
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

// seconds formats a time value with millisecond precision.
func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func decimal(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
