package ffmpeg

import (
	"context"
	"io"
	"os"
	"regexp"
	"strconv"
	"time"

	"mediafactory/internal/pkg/errors"
	"mediafactory/internal/pkg/logger"
)

// ProbeTimeout bounds a single duration probe.
const ProbeTimeout = 15 * time.Second

var durationPattern = regexp.MustCompile(`Duration: (\d+):(\d+):(\d+(?:\.\d+)?)`)

// Prober measures media duration by reading the banner ffmpeg prints for
// `ffmpeg -i <file>`. The exit code is ignored: ffmpeg always fails that
// call because no output is given.
type Prober struct {
	invoker Invoker
	tempDir string
	log     *logger.Logger
}

func NewProber(invoker Invoker, tempDir string, log *logger.Logger) *Prober {
	if log == nil {
		log = logger.Discard()
	}
	return &Prober{invoker: invoker, tempDir: tempDir, log: log.WithComponent("probe")}
}

// Duration copies r into a temporary file named with suffix and probes it.
// The temporary file is always removed.
func (p *Prober) Duration(ctx context.Context, r io.Reader, suffix string) (float64, error) {
	f, err := os.CreateTemp(p.tempDir, "media-factory-probe-*"+suffix)
	if err != nil {
		return 0, errors.Probe("failed to stage media for probing", err)
	}
	path := f.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			p.log.Warn("failed to remove probe file", "path", path, "error", rmErr)
		}
	}()

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return 0, errors.Probe("failed to stage media for probing", err)
	}
	if err := f.Close(); err != nil {
		return 0, errors.Probe("failed to stage media for probing", err)
	}

	return p.File(ctx, path)
}

// File probes a file already on disk.
func (p *Prober) File(ctx context.Context, path string) (float64, error) {
	res, err := p.invoker.Invoke(ctx, "probe", []string{"-i", path}, ProbeTimeout)
	if err != nil {
		return 0, errors.Probe("media probe did not complete", err)
	}

	d, ok := ParseDuration(res.Output)
	if !ok {
		p.log.Warn("no duration in probe output", "path", path, "exit_code", res.ExitCode)
		return 0, errors.Probe("could not determine media duration", nil)
	}
	return d, nil
}

// ParseDuration extracts the "Duration: HH:MM:SS.ff" value from ffmpeg
// output. A zero or missing duration is reported as not found.
func ParseDuration(output string) (float64, bool) {
	m := durationPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	h, err1 := strconv.Atoi(m[1])
	mins, err2 := strconv.Atoi(m[2])
	sec, err3 := strconv.ParseFloat(m[3], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	d := float64(h)*3600 + float64(mins)*60 + sec
	if d <= 0 {
		return 0, false
	}
	return d, true
}
