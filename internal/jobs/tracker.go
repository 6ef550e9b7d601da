package jobs

import (
	"context"
	"time"

	"mediafactory/internal/pkg/logger"
	"mediafactory/internal/publish"
)

// Event describes one state change of a job.
type Event struct {
	JobID    string    `json:"jobId"`
	Kind     Kind      `json:"kind"`
	State    State     `json:"state"`
	Message  string    `json:"message"`
	VideoID  string    `json:"videoId,omitempty"`
	VideoURL string    `json:"videoUrl,omitempty"`
	Warning  string    `json:"warningMessage,omitempty"`
	At       time.Time `json:"at"`
}

func eventOf(j *Job) Event {
	return Event{
		JobID:    j.ID,
		Kind:     j.Kind,
		State:    j.State,
		Message:  j.Message,
		VideoID:  j.VideoID,
		VideoURL: j.VideoURL,
		Warning:  j.Warning,
		At:       j.UpdatedAt,
	}
}

// Notifier is told about every state change. Failures are logged and never
// affect the job.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }

// Tracker applies lifecycle transitions to a Store.
type Tracker struct {
	store    Store
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
}

func NewTracker(store Store, notifier Notifier, log *logger.Logger) *Tracker {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Tracker{
		store:    store,
		notifier: notifier,
		log:      log.WithComponent("jobs"),
		now:      time.Now,
	}
}

// Enqueue registers a new QUEUED job.
func (t *Tracker) Enqueue(ctx context.Context, id string, kind Kind, opts publish.Options) (*Job, error) {
	job := New(id, kind, opts, t.now())
	if err := t.store.Create(ctx, job); err != nil {
		return nil, err
	}
	t.notify(ctx, job)
	return job, nil
}

func (t *Tracker) MarkProcessing(ctx context.Context, id, message string) (*Job, error) {
	return t.apply(ctx, id, func(j *Job) error {
		return j.Transition(StateProcessing, message, t.now())
	})
}

// MarkCompleted records the published artifact. A non-empty warning marks
// the job as completed with degraded extras.
func (t *Tracker) MarkCompleted(ctx context.Context, id string, res publish.Result) (*Job, error) {
	message := MessageCompleted
	if res.Warning != "" {
		message = MessageCompletedWithWarnings
	}
	return t.apply(ctx, id, func(j *Job) error {
		if err := j.Transition(StateCompleted, message, t.now()); err != nil {
			return err
		}
		j.VideoID = res.VideoID
		j.VideoURL = res.URL
		j.Warning = res.Warning
		return nil
	})
}

// MarkFailed moves the job to FAILED with the generic operator message.
func (t *Tracker) MarkFailed(ctx context.Context, id string) (*Job, error) {
	return t.apply(ctx, id, func(j *Job) error {
		return j.Transition(StateFailed, MessageFailed, t.now())
	})
}

func (t *Tracker) Get(ctx context.Context, id string) (*Job, error) {
	return t.store.Get(ctx, id)
}

func (t *Tracker) Check(ctx context.Context) error {
	return t.store.Check(ctx)
}

func (t *Tracker) apply(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	job, err := t.store.Update(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	t.notify(ctx, job)
	return job, nil
}

func (t *Tracker) notify(ctx context.Context, job *Job) {
	log := t.log.FromContext(ctx).WithJobID(job.ID)
	log.Info("job state changed", "state", string(job.State), "kind", string(job.Kind))

	if err := t.notifier.Notify(ctx, eventOf(job)); err != nil {
		log.Warn("job event not delivered", "state", string(job.State), "error", err.Error())
	}
}
