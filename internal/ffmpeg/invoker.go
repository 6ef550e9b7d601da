// Package ffmpeg turns render plans into ffmpeg invocations: per-scene filter
// chains, the concat/xfade combine graph, the audio mux, the single-image
// path and duration probing. Every call goes through an Invoker so the
// process boundary can be faked in tests or moved to a remote renderer.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	apperrors "mediafactory/internal/pkg/errors"
	"mediafactory/internal/pkg/logger"
)

const (
	// StageTimeout bounds every render stage.
	StageTimeout = 10 * time.Minute

	maxCapturedOutput = 64 * 1024
)

// Result is what a finished tool run produced. Output is the merged
// stdout/stderr, keeping only the tail of very long runs.
type Result struct {
	ExitCode int
	Output   string
}

// OK reports a zero exit code.
func (r Result) OK() bool { return r.ExitCode == 0 }

// Invoker runs the media tool with args (binary excluded). It returns an
// error only when the tool could not be started or did not finish within
// timeout; a non-zero exit is reported through Result.
type Invoker interface {
	Invoke(ctx context.Context, stage string, args []string, timeout time.Duration) (Result, error)
}

// ExecInvoker runs a local ffmpeg binary.
type ExecInvoker struct {
	binary string
	log    *logger.Logger
}

func NewExecInvoker(binary string, log *logger.Logger) *ExecInvoker {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if log == nil {
		log = logger.Discard()
	}
	return &ExecInvoker{binary: binary, log: log.WithComponent("ffmpeg")}
}

// Binary returns the executable this invoker runs.
func (i *ExecInvoker) Binary() string { return i.binary }

func (i *ExecInvoker) Invoke(ctx context.Context, stage string, args []string, timeout time.Duration) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log := i.log.WithStage(stage)
	log.Debug("running ffmpeg", "args", strings.Join(args, " "))

	out := &tailBuffer{max: maxCapturedOutput}
	cmd := exec.CommandContext(ctx, i.binary, args...)
	cmd.Stdout = out
	cmd.Stderr = out

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return Result{ExitCode: -1, Output: out.String()},
				apperrors.WrapWithCode(ctxErr, apperrors.CodeTimeout, "ffmpeg."+stage, "ffmpeg timed out during stage: "+stage).
					WithField(apperrors.FieldStage, stage)
		}
		return Result{ExitCode: -1, Output: out.String()}, apperrors.Wrap(ctxErr, "ffmpeg."+stage, "ffmpeg cancelled during stage: "+stage)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		log.Debug("ffmpeg exited", "exit_code", exitErr.ExitCode(), "duration_ms", elapsed.Milliseconds())
		return Result{ExitCode: exitErr.ExitCode(), Output: out.String()}, nil
	}
	if err != nil {
		return Result{ExitCode: -1}, apperrors.Wrap(err, "ffmpeg."+stage, "failed to start "+i.binary)
	}

	log.Debug("ffmpeg finished", "duration_ms", elapsed.Milliseconds())
	return Result{Output: out.String()}, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string { return t.buf.String() }

// run invokes a stage and converts a failed run into a render error.
func run(ctx context.Context, inv Invoker, stage string, args []string) error {
	res, err := inv.Invoke(ctx, stage, args, StageTimeout)
	if err != nil {
		return apperrors.Render(stage, -1, res.Output, err)
	}
	if !res.OK() {
		return apperrors.Render(stage, res.ExitCode, res.Output, nil)
	}
	return nil
}
