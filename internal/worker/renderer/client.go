package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	v0 "mediafactory/internal/contracts/renderer/v0"
	"mediafactory/internal/ffmpeg"
	"mediafactory/internal/pkg/errors"
)

// HTTPInvoker runs tool invocations on a remote renderer. The remote side
// must see the same paths as this process (shared volume).
type HTTPInvoker struct {
	baseURL string
	client  *http.Client
}

var _ ffmpeg.Invoker = (*HTTPInvoker)(nil)

func NewHTTPInvoker(baseURL string) *HTTPInvoker {
	return &HTTPInvoker{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: ffmpeg.StageTimeout + time.Minute},
	}
}

func (c *HTTPInvoker) Invoke(ctx context.Context, stage string, args []string, timeout time.Duration) (ffmpeg.Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout+5*time.Second)
		defer cancel()
	}

	body, err := json.Marshal(v0.InvokeRequest{
		Stage:      stage,
		Args:       args,
		TimeoutSec: int(math.Ceil(timeout.Seconds())),
	})
	if err != nil {
		return ffmpeg.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v0/invoke", bytes.NewReader(body))
	if err != nil {
		return ffmpeg.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ffmpeg.Result{ExitCode: -1}, errors.WrapWithCode(err, errors.CodeTimeout, "renderer.invoke", "remote renderer timed out during stage: "+stage)
		}
		return ffmpeg.Result{ExitCode: -1}, errors.WrapWithCode(err, errors.CodeUnavailable, "renderer.invoke", "remote renderer unreachable")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return ffmpeg.Result{ExitCode: -1}, errors.Unavailable("renderer").
			WithField("http_status", res.StatusCode)
	}

	var out v0.InvokeResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return ffmpeg.Result{ExitCode: -1}, errors.Wrap(err, "renderer.invoke", "invalid renderer response")
	}
	if out.Error != "" {
		return ffmpeg.Result{ExitCode: -1, Output: out.Output}, errors.Wrap(fmt.Errorf("%s", out.Error), "renderer.invoke", "remote renderer failed during stage: "+stage)
	}

	return ffmpeg.Result{ExitCode: out.ExitCode, Output: out.Output}, nil
}
