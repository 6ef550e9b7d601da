package ffmpeg

import (
	"strconv"

	"mediafactory/internal/composition"
)

// Argument builders. None of them include the binary; the Invoker adds it.

func encodeArgs() []string {
	return []string{"-c:v", "libx264", "-preset", "veryfast", "-crf", "23", "-pix_fmt", "yuv420p"}
}

// ImageSceneArgs loops a still for the scene duration.
func ImageSceneArgs(s composition.ScenePlan, width, height int, out string) []string {
	args := []string{
		"-y", "-loop", "1",
		"-i", s.AssetPath,
		"-t", seconds(s.DurationSec),
		"-vf", SceneFilter(s, width, height),
		"-r", strconv.Itoa(FrameRate),
		"-an",
	}
	args = append(args, encodeArgs()...)
	return append(args, out)
}

// VideoSceneArgs cuts [clipStart, clipStart+duration) out of the source.
func VideoSceneArgs(s composition.ScenePlan, width, height int, out string) []string {
	args := []string{
		"-y",
		"-ss", seconds(s.ClipStartSec),
		"-t", seconds(s.DurationSec),
		"-i", s.AssetPath,
		"-vf", SceneFilter(s, width, height),
		"-an",
		"-r", strconv.Itoa(FrameRate),
	}
	args = append(args, encodeArgs()...)
	return append(args, out)
}

// SceneArgs picks the builder for the scene type.
func SceneArgs(s composition.ScenePlan, width, height int, out string) []string {
	if s.Type == composition.SceneVideo {
		return VideoSceneArgs(s, width, height, out)
	}
	return ImageSceneArgs(s, width, height, out)
}

func inputArgs(clips []string) []string {
	args := []string{"-y"}
	for _, c := range clips {
		args = append(args, "-i", c)
	}
	return args
}

// ConcatArgs joins clips with hard cuts.
func ConcatArgs(clips []string, out string) []string {
	args := append(inputArgs(clips), "-filter_complex", ConcatGraph(len(clips)), "-map", "[v]")
	args = append(args, encodeArgs()...)
	return append(args, out)
}

// CrossfadeArgs joins clips through an xfade chain. scenes and clips are
// parallel.
func CrossfadeArgs(clips []string, scenes []composition.ScenePlan, out string) []string {
	graph, label := CrossfadeGraph(scenes)
	args := append(inputArgs(clips), "-filter_complex", graph, "-map", label)
	args = append(args, encodeArgs()...)
	return append(args, out)
}

// MuxArgs loops the audio under the visual track and stops at the shorter
// of the two. Video is copied, audio re-encoded.
func MuxArgs(audio, visual, out string) []string {
	return []string{
		"-y",
		"-stream_loop", "-1", "-i", audio,
		"-i", visual,
		"-map", "1:v:0", "-map", "0:a:0",
		"-c:v", "copy",
		"-c:a", "aac", "-b:a", "192k",
		"-shortest",
		out,
	}
}

// SimpleArgs renders a still over looping audio for durationSec seconds.
func SimpleArgs(image, audio string, durationSec int, out string) []string {
	args := []string{
		"-y",
		"-loop", "1", "-i", image,
		"-stream_loop", "-1", "-i", audio,
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
	}
	args = append(args, encodeArgs()...)
	return append(args,
		"-c:a", "aac", "-b:a", "192k",
		"-t", strconv.Itoa(durationSec),
		"-shortest",
		out,
	)
}
