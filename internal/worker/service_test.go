package worker

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"mediafactory/internal/composition"
	"mediafactory/internal/jobs"
	"mediafactory/internal/pkg/errors"
	"mediafactory/internal/pkg/logger"
	"mediafactory/internal/ports"
	"mediafactory/internal/publish"
	"mediafactory/internal/worker/processor"
	"mediafactory/internal/worker/queue"
)

type fakeProber struct {
	duration float64
	// stall makes every probe wait for its context to end.
	stall bool
}

func (f *fakeProber) Duration(ctx context.Context, r io.Reader, suffix string) (float64, error) {
	if f.stall {
		<-ctx.Done()
		return 0, errors.Probe("probe interrupted", ctx.Err())
	}
	return f.duration, nil
}

// deadlineStore refuses writes on an expired context, as the network
// backed stores do.
type deadlineStore struct {
	*jobs.MemoryStore
}

func (s deadlineStore) Create(ctx context.Context, job *jobs.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Create(ctx, job)
}

type fakeSimpleRenderer struct {
	mu    sync.Mutex
	image string
	err   error
}

func (f *fakeSimpleRenderer) Render(ctx context.Context, image, audio string, durationSec int, out string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := os.ReadFile(image)
	f.image = string(data)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(out, []byte("video"), 0o644)
}

type fakeCompositionRenderer struct {
	mu     sync.Mutex
	plan   *composition.RenderPlan
	assets []string
}

func (f *fakeCompositionRenderer) Render(ctx context.Context, plan *composition.RenderPlan, out string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plan = plan
	for _, s := range plan.Scenes {
		data, err := os.ReadFile(s.AssetPath)
		if err != nil {
			return err
		}
		f.assets = append(f.assets, string(data))
	}
	return os.WriteFile(out, []byte("video"), 0o644)
}

type fakePublisher struct {
	mu        sync.Mutex
	uploadErr error
	uploads   []publish.Video
}

func (f *fakePublisher) Upload(ctx context.Context, v publish.Video) (publish.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return publish.Result{}, f.uploadErr
	}
	f.uploads = append(f.uploads, v)
	return publish.Result{VideoID: "vid-1", URL: "https://example.test/vid-1"}, nil
}

func (f *fakePublisher) SetThumbnail(ctx context.Context, videoID string, thumb publish.Thumbnail) error {
	return nil
}

func (f *fakePublisher) Check(ctx context.Context) error { return nil }

type harness struct {
	svc         *Service
	store       *jobs.MemoryStore
	pool        *queue.Pool
	staging     string
	prober      *fakeProber
	simple      *fakeSimpleRenderer
	composition *fakeCompositionRenderer
	publisher   *fakePublisher
}

func newHarness(t *testing.T, queueSize int, start bool) *harness {
	t.Helper()
	log := logger.Discard()

	h := &harness{
		store:       jobs.NewMemoryStore(),
		staging:     t.TempDir(),
		prober:      &fakeProber{duration: 8},
		simple:      &fakeSimpleRenderer{},
		composition: &fakeCompositionRenderer{},
		publisher:   &fakePublisher{},
	}
	tracker := jobs.NewTracker(h.store, nil, log)
	h.pool = queue.NewPool(1, queueSize, log)
	if start {
		h.pool.Start(context.Background())
	}

	h.svc = NewService(Deps{
		Tracker:    tracker,
		Normalizer: composition.NewNormalizer(h.prober),
		Inputs:     processor.NewInputHandler(h.staging, log),
		Processor: processor.New(processor.Deps{
			Tracker:     tracker,
			Composition: h.composition,
			Simple:      h.simple,
			Publisher:   h.publisher,
			Destination: "YouTube",
			Log:         log,
		}),
		Pool: h.pool,
		Log:  log,
	})
	h.svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	h.svc.newID = func() string { return "job-1" }
	return h
}

// drain waits for every dispatched job to finish.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.pool.Stop(ctx); err != nil {
		t.Fatalf("pool did not drain: %v", err)
	}
}

func (h *harness) stagingEntries(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(h.staging)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func part(contentType, filename, content string) *ports.Part {
	return &ports.Part{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func simpleRequest() SimpleRequest {
	return SimpleRequest{
		Image:       part("image/png", "cover.png", "png-bytes"),
		Audio:       part("audio/mpeg", "track.mp3", "mp3-bytes"),
		DurationSec: 30,
		Metadata: Metadata{
			Title:       "Evening set",
			Description: "Recorded live",
			Options:     publish.OptionsInput{Privacy: "unlisted", Tags: []string{"live, set", "LIVE"}},
		},
	}
}

func TestSubmitSimpleCompletes(t *testing.T) {
	h := newHarness(t, 4, true)

	job, err := h.svc.SubmitSimple(context.Background(), simpleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID != "job-1" || job.State != jobs.StateQueued || job.Message != jobs.MessageQueued {
		t.Errorf("unexpected accepted job %+v", job)
	}
	if job.Privacy != publish.PrivacyUnlisted || len(job.Tags) != 2 {
		t.Errorf("unexpected options %+v", job.Options)
	}

	h.drain(t)

	got, err := h.svc.Status(context.Background(), " job-1 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.State != jobs.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", got.State, got.Message)
	}
	if got.VideoID != "vid-1" || got.VideoURL != "https://example.test/vid-1" {
		t.Errorf("unexpected result %+v", got)
	}
	if got.Message != jobs.MessageCompleted || got.Warning != "" {
		t.Errorf("unexpected message %q warning %q", got.Message, got.Warning)
	}
	if h.simple.image != "png-bytes" {
		t.Errorf("expected staged image content, got %q", h.simple.image)
	}
	if len(h.publisher.uploads) != 1 || h.publisher.uploads[0].Title != "Evening set" {
		t.Errorf("unexpected uploads %+v", h.publisher.uploads)
	}
	if n := h.stagingEntries(t); n != 0 {
		t.Errorf("expected work directory to be removed, found %d entries", n)
	}
}

func TestSubmitSimpleThumbnailFailureIsWarning(t *testing.T) {
	h := newHarness(t, 4, true)

	req := simpleRequest()
	req.Thumbnail = part("image/png", "thumb.png", "not an image")

	if _, err := h.svc.SubmitSimple(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.drain(t)

	got, err := h.svc.Status(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.State != jobs.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.State)
	}
	if got.Message != jobs.MessageCompletedWithWarnings {
		t.Errorf("expected %q, got %q", jobs.MessageCompletedWithWarnings, got.Message)
	}
	if got.Warning != publish.WarningThumbnailFailed {
		t.Errorf("expected %q, got %q", publish.WarningThumbnailFailed, got.Warning)
	}
}

func TestSubmitSimpleFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{"render", func(h *harness) { h.simple.err = stderrors.New("ffmpeg exited 1") }},
		{"upload", func(h *harness) { h.publisher.uploadErr = errors.Publish("upload", stderrors.New("quota")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 4, true)
			tt.setup(h)

			if _, err := h.svc.SubmitSimple(context.Background(), simpleRequest()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			h.drain(t)

			got, err := h.svc.Status(context.Background(), "job-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.State != jobs.StateFailed || got.Message != jobs.MessageFailed {
				t.Errorf("expected FAILED with generic message, got %s %q", got.State, got.Message)
			}
			if got.VideoID != "" {
				t.Errorf("expected no video id, got %q", got.VideoID)
			}
			if n := h.stagingEntries(t); n != 0 {
				t.Errorf("expected work directory to be removed, found %d entries", n)
			}
		})
	}
}

func TestSubmitSimpleValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *SimpleRequest)
		field   string
		message string
	}{
		{"missing image", func(r *SimpleRequest) { r.Image = nil }, "image", "Image file is required."},
		{"missing audio", func(r *SimpleRequest) { r.Audio = part("audio/mpeg", "a.mp3", "") }, "audio", "Audio file is required."},
		{"image first", func(r *SimpleRequest) { r.Image = nil; r.Audio = nil }, "image", "Image file is required."},
		{"image type", func(r *SimpleRequest) { r.Image = part("text/plain", "a.txt", "x") }, "image", "image must have a image/* content type."},
		{"audio type", func(r *SimpleRequest) { r.Audio = part("video/mp4", "a.mp4", "x") }, "audio", "audio must have a audio/* content type."},
		{"title", func(r *SimpleRequest) { r.Title = "  " }, "title", "Title is required."},
		{"zero duration", func(r *SimpleRequest) { r.DurationSec = 0 }, "duration", "Duration must be between 1 and 36000 seconds."},
		{"long duration", func(r *SimpleRequest) { r.DurationSec = 36001 }, "duration", "Duration must be between 1 and 36000 seconds."},
		{"privacy", func(r *SimpleRequest) { r.Options.Privacy = "friends" }, "privacyStatus", "privacyStatus must be one of PRIVATE, UNLISTED, PUBLIC."},
		{"thumbnail type", func(r *SimpleRequest) { r.Thumbnail = part("image/gif", "t.gif", "x") }, "thumbnail", "thumbnail must have content type image/jpeg or image/png."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 4, false)
			req := simpleRequest()
			tt.mutate(&req)

			_, err := h.svc.SubmitSimple(context.Background(), req)
			if !errors.IsCode(err, errors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got := errors.GetFields(err)[errors.FieldPath]; got != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, got)
			}
			var appErr *errors.Error
			if errors.As(err, &appErr) && appErr.Message != tt.message {
				t.Errorf("expected %q, got %q", tt.message, appErr.Message)
			}
			if h.store.Len() != 0 {
				t.Errorf("expected no job to be created, got %d", h.store.Len())
			}
			if n := h.stagingEntries(t); n != 0 {
				t.Errorf("expected nothing staged, found %d entries", n)
			}
		})
	}
}

func TestSubmitQueueFull(t *testing.T) {
	h := newHarness(t, 0, false)

	_, err := h.svc.SubmitSimple(context.Background(), simpleRequest())
	if !errors.IsCode(err, errors.CodeResourceExhaust) {
		t.Fatalf("expected resource exhausted error, got %v", err)
	}

	got, err := h.svc.Status(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.State != jobs.StateFailed {
		t.Errorf("expected FAILED, got %s", got.State)
	}
	if n := h.stagingEntries(t); n != 0 {
		t.Errorf("expected staged files to be removed, found %d entries", n)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	h := newHarness(t, 4, true)
	h.drain(t)

	_, err := h.svc.SubmitSimple(context.Background(), simpleRequest())
	if !errors.IsCode(err, errors.CodeUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

const compositionManifest = `{
	"outputPreset": "square_1_1",
	"scenes": [
		{"assetId": "intro", "type": "IMAGE", "durationSec": 2},
		{"assetId": " clip ", "type": "VIDEO", "transition": {"type": "CROSSFADE", "transitionDurationSec": 0.5}},
		{"assetId": "intro", "type": "IMAGE", "durationSec": 1.5}
	]
}`

func compositionRequest() CompositionRequest {
	return CompositionRequest{
		Manifest: []byte(compositionManifest),
		Assets: map[string]*ports.Part{
			"intro":  part("image/jpeg", "intro.jpg", "intro-bytes"),
			"clip":   part("video/mp4", "clip.mp4", "clip-bytes"),
			"unused": part("image/png", "unused.png", "unused-bytes"),
		},
		Audio: part("audio/wav", "bed.wav", "wav-bytes"),
		Metadata: Metadata{
			Title:       "Trailer",
			Description: "Season two",
		},
	}
}

func TestSubmitCompositionCompletes(t *testing.T) {
	h := newHarness(t, 4, true)

	job, err := h.svc.SubmitComposition(context.Background(), compositionRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Kind != jobs.KindComposition || job.Privacy != publish.PrivacyPrivate {
		t.Errorf("unexpected accepted job %+v", job)
	}
	h.drain(t)

	got, err := h.svc.Status(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.State != jobs.StateCompleted {
		t.Fatalf("expected COMPLETED, got %s (%s)", got.State, got.Message)
	}

	plan := h.composition.plan
	if plan == nil || len(plan.Scenes) != 3 {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if plan.Width != 1080 || plan.Height != 1080 {
		t.Errorf("expected 1080x1080, got %dx%d", plan.Width, plan.Height)
	}
	if plan.Scenes[1].DurationSec != 8 {
		t.Errorf("expected probed duration 8, got %v", plan.Scenes[1].DurationSec)
	}
	if !strings.HasSuffix(plan.AudioPath, ".wav") {
		t.Errorf("expected staged audio to keep its extension, got %s", plan.AudioPath)
	}
	want := []string{"intro-bytes", "clip-bytes", "intro-bytes"}
	for i, w := range want {
		if h.composition.assets[i] != w {
			t.Errorf("scene %d: expected %q, got %q", i, w, h.composition.assets[i])
		}
	}
	if plan.Scenes[0].AssetPath != plan.Scenes[2].AssetPath {
		t.Error("expected a reused asset to be staged once")
	}
}

func TestSubmitCompositionProbeDeadline(t *testing.T) {
	h := newHarness(t, 4, true)
	h.prober.stall = true

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.svc.SubmitComposition(ctx, compositionRequest())
	if !errors.IsCode(err, errors.CodeTimeout) {
		t.Fatalf("expected code %s, got %s (%v)", errors.CodeTimeout, errors.GetCode(err), err)
	}
	if n := h.store.Len(); n != 0 {
		t.Errorf("expected no job to be registered, got %d", n)
	}
	if n := h.stagingEntries(t); n != 0 {
		t.Errorf("expected nothing staged, found %d entries", n)
	}
	h.drain(t)
}

func TestDispatchIgnoresRequestDeadline(t *testing.T) {
	log := logger.Discard()
	store := deadlineStore{jobs.NewMemoryStore()}
	tracker := jobs.NewTracker(store, nil, log)
	pool := queue.NewPool(1, 4, log)
	pool.Start(context.Background())

	svc := NewService(Deps{
		Tracker: tracker,
		Processor: processor.New(processor.Deps{
			Tracker:   tracker,
			Simple:    &fakeSimpleRenderer{},
			Publisher: &fakePublisher{},
			Log:       log,
		}),
		Pool: pool,
		Log:  log,
	})

	workDir := t.TempDir()
	image := filepath.Join(workDir, "image.png")
	if err := os.WriteFile(image, []byte("png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	// The request deadline passed while the inputs were being staged.
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	job, err := svc.dispatch(ctx, processor.Task{
		JobID:   "job-late",
		Kind:    jobs.KindSimple,
		WorkDir: workDir,
		Title:   "t",
		Simple:  &processor.SimpleInput{ImagePath: image, DurationSec: 5},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ID != "job-late" {
		t.Errorf("expected job-late, got %s", job.ID)
	}

	stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := pool.Stop(stopCtx); err != nil {
		t.Fatalf("pool did not drain: %v", err)
	}
	got, err := tracker.Get(context.Background(), "job-late")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != jobs.StateCompleted {
		t.Errorf("expected COMPLETED, got %s (%s)", got.State, got.Message)
	}
}

func TestSubmitCompositionValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *CompositionRequest)
		field  string
	}{
		{"missing audio", func(r *CompositionRequest) { r.Audio = nil }, "audio"},
		{"audio type", func(r *CompositionRequest) { r.Audio = part("image/png", "a.png", "x") }, "audio"},
		{"audio before manifest", func(r *CompositionRequest) { r.Audio = nil; r.Manifest = nil }, "audio"},
		{"description", func(r *CompositionRequest) { r.Description = "" }, "description"},
		{"options before manifest", func(r *CompositionRequest) { r.Options.CategoryID = "abc"; r.Manifest = nil }, "categoryId"},
		{"missing manifest", func(r *CompositionRequest) { r.Manifest = nil }, "manifest"},
		{"missing asset", func(r *CompositionRequest) { delete(r.Assets, "clip") }, "manifest.scenes[1].assetId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 4, false)
			req := compositionRequest()
			tt.mutate(&req)

			_, err := h.svc.SubmitComposition(context.Background(), req)
			if !errors.IsCode(err, errors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got := errors.GetFields(err)[errors.FieldPath]; got != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, got)
			}
			if h.store.Len() != 0 {
				t.Errorf("expected no job to be created, got %d", h.store.Len())
			}
		})
	}
}

func TestStatusUnknownJob(t *testing.T) {
	h := newHarness(t, 1, false)

	_, err := h.svc.Status(context.Background(), "missing")
	if !errors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}
