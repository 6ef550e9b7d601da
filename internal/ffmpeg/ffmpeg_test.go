package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mediafactory/internal/composition"
	"mediafactory/internal/pkg/errors"
)

type call struct {
	stage   string
	args    []string
	timeout time.Duration
}

// fakeInvoker records every call and writes the last argument as an output
// file, the way ffmpeg would.
type fakeInvoker struct {
	mu       sync.Mutex
	calls    []call
	failAt   string
	exitCode int
	output   string
	err      error
}

func (f *fakeInvoker) Invoke(ctx context.Context, stage string, args []string, timeout time.Duration) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{stage: stage, args: args, timeout: timeout})
	f.mu.Unlock()

	if f.err != nil {
		return Result{ExitCode: -1}, f.err
	}
	if stage == f.failAt {
		return Result{ExitCode: f.exitCode, Output: f.output}, nil
	}
	if len(args) > 1 && stage != "probe" && stage != "version" {
		if err := os.WriteFile(args[len(args)-1], []byte(stage), 0o644); err != nil {
			return Result{}, err
		}
	}
	return Result{Output: f.output}, nil
}

func (f *fakeInvoker) stages() []string {
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.stage)
	}
	return out
}

func scene(i int, typ composition.SceneType, d float64, tr composition.Transition) composition.ScenePlan {
	return composition.ScenePlan{
		Index:       i,
		AssetPath:   fmt.Sprintf("/in/asset-%d", i),
		Type:        typ,
		DurationSec: d,
		Transition:  tr,
		Motion:      composition.MotionNone,
		VisualEdit:  composition.VisualEdit{Filter: composition.FilterNone, ColorGrade: composition.NeutralColorGrade},
	}
}

var cut = composition.Transition{Type: composition.TransitionCut}

func fade(d float64) composition.Transition {
	return composition.Transition{Type: composition.TransitionCrossfade, DurationSec: d}
}

func TestSceneFilterOrder(t *testing.T) {
	s := scene(0, composition.SceneImage, 3, cut)
	s.Motion = composition.MotionZoomIn
	s.VisualEdit = composition.VisualEdit{
		Filter:     composition.FilterSepia,
		ColorGrade: composition.ColorGrade{Brightness: 0.1, Contrast: 1.2, Saturation: 0.9},
		Overlay:    &composition.Overlay{HexColor: "#FF8800", Opacity: 0.3},
	}
	s.Caption = &composition.Caption{Text: "Hi", StartOffsetSec: 0.5, EndOffsetSec: 2, Position: composition.CaptionTop}

	f := SceneFilter(s, 1920, 1080)

	order := []string{"scale=1920:1080", "zoompan", "colorchannelmixer", "eq=", "drawbox", "drawtext"}
	last := -1
	for _, token := range order {
		idx := strings.Index(f, token)
		if idx < 0 {
			t.Fatalf("expected %q in filter %s", token, f)
		}
		if idx < last {
			t.Errorf("expected %q after previous filters in %s", token, f)
		}
		last = idx
	}

	for _, want := range []string{
		"pad=1920:1080:(ow-iw)/2:(oh-ih)/2:black,setsar=1",
		"eq=brightness=0.100:contrast=1.200:saturation=0.900",
		"color=0xFF8800@0.300:t=fill",
		"fontsize=80",
		"y=h*0.08",
		"enable='between(t,0.500,2.000)'",
	} {
		if !strings.Contains(f, want) {
			t.Errorf("expected filter to contain %q, got %s", want, f)
		}
	}
}

func TestSceneFilterOmissions(t *testing.T) {
	t.Run("neutral scene is scale and pad only", func(t *testing.T) {
		f := SceneFilter(scene(0, composition.SceneImage, 3, cut), 1080, 1080)
		if strings.Count(f, ",") != 2 || !strings.HasSuffix(f, "setsar=1") {
			t.Errorf("expected only scale/pad, got %s", f)
		}
	})

	t.Run("video scenes never get motion", func(t *testing.T) {
		s := scene(0, composition.SceneVideo, 3, cut)
		s.Motion = composition.MotionPanLeft
		if f := SceneFilter(s, 1920, 1080); strings.Contains(f, "zoompan") {
			t.Errorf("expected no zoompan for video, got %s", f)
		}
	})

	t.Run("transparent overlay is skipped", func(t *testing.T) {
		s := scene(0, composition.SceneImage, 3, cut)
		s.VisualEdit.Overlay = &composition.Overlay{HexColor: "#000000", Opacity: 0}
		if f := SceneFilter(s, 1920, 1080); strings.Contains(f, "drawbox") {
			t.Errorf("expected no drawbox, got %s", f)
		}
	})

	t.Run("no caption", func(t *testing.T) {
		if f := SceneFilter(scene(0, composition.SceneImage, 3, cut), 1920, 1080); strings.Contains(f, "drawtext") {
			t.Errorf("expected no drawtext, got %s", f)
		}
	})
}

func TestMotionFilter(t *testing.T) {
	tests := []struct {
		motion composition.Motion
		want   string
	}{
		{composition.MotionZoomIn, "z='min(1+on*0.001667,1.15)'"},
		{composition.MotionZoomOut, "z='max(1.15-on*0.001667,1)'"},
		{composition.MotionPanLeft, "x='(iw-iw/zoom)*max(1-on/90,0)'"},
		{composition.MotionPanRight, "x='(iw-iw/zoom)*min(on/90,1)'"},
	}
	for _, tt := range tests {
		t.Run(string(tt.motion), func(t *testing.T) {
			f := motionFilter(tt.motion, 3, 1080, 1920)
			if !strings.Contains(f, tt.want) {
				t.Errorf("expected %q in %s", tt.want, f)
			}
			if !strings.HasSuffix(f, ":d=1:fps=30:s=1080x1920") {
				t.Errorf("expected frame size suffix, got %s", f)
			}
		})
	}
}

func TestCaptionPositions(t *testing.T) {
	tests := []struct {
		pos  composition.CaptionPosition
		want string
	}{
		{composition.CaptionTop, "y=h*0.08:"},
		{composition.CaptionCenter, "y=(h-text_h)/2:"},
		{composition.CaptionBottom, "y=h-text_h-h*0.08:"},
	}
	for _, tt := range tests {
		c := composition.Caption{Text: "x", EndOffsetSec: 1, Position: tt.pos}
		if f := captionFilter(c, 1080, 1920); !strings.Contains(f, tt.want) {
			t.Errorf("%s: expected %q in %s", tt.pos, tt.want, f)
		}
	}
}

func TestEscapeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a:b", `a\:b`},
		{"it's", `it\'s`},
		{"100%", `100\%`},
		{`back\slash`, `back\\slash`},
		{`\:`, `\\\:`},
	}
	for _, tt := range tests {
		if got := EscapeText(tt.in); got != tt.want {
			t.Errorf("EscapeText(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestConcatGraph(t *testing.T) {
	want := "[0:v][1:v][2:v]concat=n=3:v=1:a=0[v]"
	if got := ConcatGraph(3); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestCrossfadeGraph(t *testing.T) {
	scenes := []composition.ScenePlan{
		scene(0, composition.SceneImage, 3, cut),
		scene(1, composition.SceneImage, 2, fade(0.5)),
	}

	graph, out := CrossfadeGraph(scenes)
	want := "[0:v][1:v]xfade=transition=fade:duration=0.500:offset=2.500[xf1]"
	if graph != want {
		t.Errorf("expected %s, got %s", want, graph)
	}
	if out != "[xf1]" {
		t.Errorf("expected output label [xf1], got %s", out)
	}
}

func TestCrossfadeOffsetsWithCutInsideChain(t *testing.T) {
	scenes := []composition.ScenePlan{
		scene(0, composition.SceneImage, 3, cut),
		scene(1, composition.SceneImage, 2, fade(0.5)),
		scene(2, composition.SceneImage, 4, cut),
	}

	offsets := CrossfadeOffsets(scenes)
	want := []float64{2.5, 4.5 - CutBlendSec}
	if len(offsets) != len(want) {
		t.Fatalf("expected %d offsets, got %d", len(want), len(offsets))
	}
	for i := range want {
		if diff := offsets[i] - want[i]; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("offset %d: expected %v, got %v", i, want[i], offsets[i])
		}
	}

	graph, out := CrossfadeGraph(scenes)
	if !strings.Contains(graph, "[xf1][2:v]xfade=transition=fade:duration=0.001:offset=4.499[xf2]") {
		t.Errorf("unexpected chain: %s", graph)
	}
	if out != "[xf2]" {
		t.Errorf("expected [xf2], got %s", out)
	}
}

func TestSceneArgs(t *testing.T) {
	img := scene(0, composition.SceneImage, 2.5, cut)
	args := strings.Join(SceneArgs(img, 1920, 1080, "/w/scene-0.mp4"), " ")
	if !strings.HasPrefix(args, "-y -loop 1 -i /in/asset-0 -t 2.500 -vf ") {
		t.Errorf("unexpected image args: %s", args)
	}
	if !strings.HasSuffix(args, "-r 30 -an -c:v libx264 -preset veryfast -crf 23 -pix_fmt yuv420p /w/scene-0.mp4") {
		t.Errorf("unexpected image args tail: %s", args)
	}

	vid := scene(1, composition.SceneVideo, 4, cut)
	vid.ClipStartSec = 1.25
	args = strings.Join(SceneArgs(vid, 1920, 1080, "/w/scene-1.mp4"), " ")
	if !strings.HasPrefix(args, "-y -ss 1.250 -t 4.000 -i /in/asset-1 -vf ") {
		t.Errorf("unexpected video args: %s", args)
	}
	if !strings.Contains(args, "-an -r 30 -c:v libx264") {
		t.Errorf("unexpected video args: %s", args)
	}
}

func TestMuxArgs(t *testing.T) {
	got := strings.Join(MuxArgs("a.mp3", "v.mp4", "out.mp4"), " ")
	want := "-y -stream_loop -1 -i a.mp3 -i v.mp4 -map 1:v:0 -map 0:a:0 -c:v copy -c:a aac -b:a 192k -shortest out.mp4"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestSimpleArgs(t *testing.T) {
	got := strings.Join(SimpleArgs("i.png", "a.mp3", 60, "out.mp4"), " ")
	for _, want := range []string{"-loop 1 -i i.png", "-stream_loop -1 -i a.mp3", "-t 60 -shortest out.mp4", "trunc(iw/2)*2"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %s", want, got)
		}
	}
}

func testPlan(scenes ...composition.ScenePlan) *composition.RenderPlan {
	total := 0.0
	for _, s := range scenes {
		total += s.DurationSec - s.Transition.DurationSec
	}
	return &composition.RenderPlan{
		Preset: composition.PresetLandscape, Width: 1920, Height: 1080,
		Scenes: scenes, AudioPath: "/in/audio.mp3", TotalDurationSec: total,
	}
}

func TestCompositionRendererStages(t *testing.T) {
	tests := []struct {
		name    string
		plan    *composition.RenderPlan
		stages  []string
		combine string
	}{
		{
			name:   "single scene copies clip",
			plan:   testPlan(scene(0, composition.SceneImage, 3, cut)),
			stages: []string{"scene-0", "mux"},
		},
		{
			name:    "cuts concat",
			plan:    testPlan(scene(0, composition.SceneImage, 3, cut), scene(1, composition.SceneVideo, 2, cut)),
			stages:  []string{"scene-0", "scene-1", "combine", "mux"},
			combine: "concat=n=2",
		},
		{
			name:    "crossfade uses xfade",
			plan:    testPlan(scene(0, composition.SceneImage, 3, cut), scene(1, composition.SceneImage, 2, fade(0.5))),
			stages:  []string{"scene-0", "scene-1", "combine", "mux"},
			combine: "xfade=transition=fade",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &fakeInvoker{}
			tmp := t.TempDir()
			out := filepath.Join(tmp, "out.mp4")

			r := NewCompositionRenderer(inv, tmp, nil)
			if err := r.Render(context.Background(), tt.plan, out); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got := strings.Join(inv.stages(), ","); got != strings.Join(tt.stages, ",") {
				t.Errorf("expected stages %v, got %s", tt.stages, got)
			}
			for _, c := range inv.calls {
				if c.timeout != StageTimeout {
					t.Errorf("expected stage timeout %v, got %v", StageTimeout, c.timeout)
				}
				if c.stage == "combine" && !strings.Contains(strings.Join(c.args, " "), tt.combine) {
					t.Errorf("expected combine graph with %q, got %v", tt.combine, c.args)
				}
			}
			if _, err := os.Stat(out); err != nil {
				t.Errorf("expected output file, got %v", err)
			}

			entries, _ := os.ReadDir(tmp)
			for _, e := range entries {
				if strings.HasPrefix(e.Name(), "media-factory-composition-") {
					t.Errorf("expected work directory to be removed, found %s", e.Name())
				}
			}
		})
	}
}

func TestCompositionRendererStageFailure(t *testing.T) {
	inv := &fakeInvoker{failAt: "scene-1", exitCode: 1, output: "Invalid data found"}
	tmp := t.TempDir()
	plan := testPlan(scene(0, composition.SceneImage, 3, cut), scene(1, composition.SceneVideo, 2, cut))

	err := NewCompositionRenderer(inv, tmp, nil).Render(context.Background(), plan, filepath.Join(tmp, "out.mp4"))
	if !errors.IsCode(err, errors.CodeRender) {
		t.Fatalf("expected render error, got %v", err)
	}
	fields := errors.GetFields(err)
	if fields[errors.FieldStage] != "scene-1" || fields[errors.FieldExitCode] != 1 {
		t.Errorf("unexpected fields: %v", fields)
	}
	if fields[errors.FieldOutput] != "Invalid data found" {
		t.Errorf("expected captured output, got %v", fields[errors.FieldOutput])
	}
	if len(inv.calls) != 2 {
		t.Errorf("expected render to stop after failing stage, got %d calls", len(inv.calls))
	}
}

func TestCompositionRendererInvokerError(t *testing.T) {
	inv := &fakeInvoker{err: errors.Timeout("ffmpeg scene-0", context.DeadlineExceeded)}
	tmp := t.TempDir()

	err := NewCompositionRenderer(inv, tmp, nil).Render(context.Background(), testPlan(scene(0, composition.SceneImage, 3, cut)), filepath.Join(tmp, "out.mp4"))
	if !errors.IsCode(err, errors.CodeRender) {
		t.Fatalf("expected render error, got %v", err)
	}
}

func TestSimpleRenderer(t *testing.T) {
	inv := &fakeInvoker{}
	out := filepath.Join(t.TempDir(), "out.mp4")

	if err := NewSimpleRenderer(inv, nil).Render(context.Background(), "i.png", "a.mp3", 10, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inv.calls) != 1 || inv.calls[0].stage != "simple" {
		t.Errorf("expected one simple stage, got %v", inv.stages())
	}

	inv = &fakeInvoker{failAt: "simple", exitCode: 183}
	err := NewSimpleRenderer(inv, nil).Render(context.Background(), "i.png", "a.mp3", 10, out+"2")
	if errors.GetFields(err)[errors.FieldExitCode] != 183 {
		t.Errorf("expected exit code 183, got %v", err)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   float64
		ok     bool
	}{
		{"hours minutes seconds", "  Duration: 01:02:03.50, start: 0.000000, bitrate: 128 kb/s", 3723.5, true},
		{"whole seconds", "Duration: 00:00:07, start", 7, true},
		{"missing", "Input #0, image2, from 'x.png'", 0, false},
		{"not available", "Duration: N/A, bitrate: N/A", 0, false},
		{"zero", "Duration: 00:00:00.00", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDuration(tt.output)
			if ok != tt.ok || got != tt.want {
				t.Errorf("expected (%v, %v), got (%v, %v)", tt.want, tt.ok, got, ok)
			}
		})
	}
}

func TestProberDuration(t *testing.T) {
	tmp := t.TempDir()
	inv := &fakeInvoker{failAt: "probe", exitCode: 1, output: "Duration: 00:00:12.50, start: 0.0"}

	d, err := NewProber(inv, tmp, nil).Duration(context.Background(), strings.NewReader("bytes"), ".mov")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 12.5 {
		t.Errorf("expected 12.5, got %v", d)
	}

	c := inv.calls[0]
	if c.timeout != ProbeTimeout {
		t.Errorf("expected probe timeout %v, got %v", ProbeTimeout, c.timeout)
	}
	if len(c.args) != 2 || c.args[0] != "-i" || !strings.HasSuffix(c.args[1], ".mov") {
		t.Errorf("unexpected probe args %v", c.args)
	}
	if !strings.HasPrefix(filepath.Base(c.args[1]), "media-factory-probe-") {
		t.Errorf("unexpected probe file name %s", c.args[1])
	}
	if _, err := os.Stat(c.args[1]); !os.IsNotExist(err) {
		t.Errorf("expected probe file to be removed, got %v", err)
	}
}

func TestProberFailures(t *testing.T) {
	tests := []struct {
		name string
		inv  *fakeInvoker
	}{
		{"no duration", &fakeInvoker{output: "garbage"}},
		{"timeout", &fakeInvoker{err: errors.Timeout("probe", context.DeadlineExceeded)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProber(tt.inv, t.TempDir(), nil).Duration(context.Background(), strings.NewReader("x"), ".mp4")
			if !errors.IsCode(err, errors.CodeProbe) {
				t.Errorf("expected probe error, got %v", err)
			}
		})
	}
}

func TestCheckBinary(t *testing.T) {
	if err := CheckBinary(context.Background(), &fakeInvoker{output: "ffmpeg version 6.1"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := CheckBinary(context.Background(), &fakeInvoker{failAt: "version", exitCode: 127}); err == nil {
		t.Error("expected error for failing binary")
	}
	inv := &fakeInvoker{}
	_ = CheckBinary(context.Background(), inv)
	if inv.calls[0].timeout != VersionTimeout || inv.calls[0].args[0] != "-version" {
		t.Errorf("unexpected version call %+v", inv.calls[0])
	}
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{max: 5}
	b.Write([]byte("abc"))
	b.Write([]byte("defgh"))
	if got := b.String(); got != "defgh" {
		t.Errorf("expected defgh, got %s", got)
	}
}

func TestExecInvoker(t *testing.T) {
	sh := NewExecInvoker("sh", nil)

	res, err := sh.Invoke(context.Background(), "exit", []string{"-c", "echo partial; echo oops >&2; exit 3"}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 3 || res.OK() {
		t.Errorf("expected exit code 3, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Output, "partial") || !strings.Contains(res.Output, "oops") {
		t.Errorf("expected merged output, got %q", res.Output)
	}

	_, err = sh.Invoke(context.Background(), "slow", []string{"-c", "sleep 5"}, 50*time.Millisecond)
	if !errors.IsCode(err, errors.CodeTimeout) {
		t.Errorf("expected timeout error, got %v", err)
	}

	_, err = NewExecInvoker("/nonexistent/ffmpeg", nil).Invoke(context.Background(), "version", []string{"-version"}, time.Second)
	if err == nil {
		t.Error("expected error for missing binary")
	}
}
