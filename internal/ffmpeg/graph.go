package ffmpeg

import (
	"math"
	"strconv"
	"strings"

	"mediafactory/internal/composition"
)

// CutBlendSec stands in for a hard cut inside an xfade chain, which has no
// zero-length transition.
const CutBlendSec = 0.001

// ConcatGraph joins n clips end to end into the [v] label.
func ConcatGraph(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString("[" + strconv.Itoa(i) + ":v]")
	}
	b.WriteString("concat=n=" + strconv.Itoa(n) + ":v=1:a=0[v]")
	return b.String()
}

// CrossfadeOffsets returns the xfade offset of every scene after the
// first, in seconds from the start of the accumulated output.
func CrossfadeOffsets(scenes []composition.ScenePlan) []float64 {
	if len(scenes) < 2 {
		return nil
	}
	offsets := make([]float64, 0, len(scenes)-1)
	acc := scenes[0].DurationSec
	for _, s := range scenes[1:] {
		d := blendDuration(s)
		offsets = append(offsets, math.Max(acc-d, 0))
		acc += s.DurationSec - d
	}
	return offsets
}

// CrossfadeGraph chains xfade filters over every scene clip and returns the
// graph with the label of its final output.
func CrossfadeGraph(scenes []composition.ScenePlan) (graph, out string) {
	out = "[0:v]"
	parts := make([]string, 0, len(scenes))
	for i, offset := range CrossfadeOffsets(scenes) {
		idx := i + 1
		label := "[xf" + strconv.Itoa(idx) + "]"
		parts = append(parts, out+"["+strconv.Itoa(idx)+":v]"+
			"xfade=transition=fade:duration="+seconds(blendDuration(scenes[idx]))+
			":offset="+seconds(offset)+label)
		out = label
	}
	return strings.Join(parts, ";"), out
}

func blendDuration(s composition.ScenePlan) float64 {
	if s.Transition.IsCrossfade() {
		return s.Transition.DurationSec
	}
	return CutBlendSec
}
