// Package jobs tracks the lifecycle of render-and-publish jobs.
//
// A job moves QUEUED -> PROCESSING -> COMPLETED | FAILED. A job that could
// not be dispatched goes QUEUED -> FAILED. Every state change is applied
// through Store.Update, which is atomic per job id.
package jobs

import (
	"fmt"
	"time"

	"mediafactory/internal/pkg/errors"
	"mediafactory/internal/publish"
)

type State string

const (
	StateQueued     State = "QUEUED"
	StateProcessing State = "PROCESSING"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

var transitions = map[State][]State{
	StateQueued:     {StateProcessing, StateFailed},
	StateProcessing: {StateCompleted, StateFailed},
}

// CanTransition reports whether s may move to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Kind string

const (
	KindSimple      Kind = "SIMPLE"
	KindComposition Kind = "COMPOSITION"
)

// Status messages.
const (
	MessageQueued                = "Job queued."
	MessageCompleted             = "Video generated and uploaded successfully."
	MessageCompletedWithWarnings = "Video generated and uploaded with warnings."
	MessageFailed                = "Video processing failed. Check server logs."
)

// ProcessingMessage names what the worker is doing and where the result goes.
func ProcessingMessage(kind Kind, destination string) string {
	if kind == KindComposition {
		return fmt.Sprintf("Generating composition and uploading to %s.", destination)
	}
	return fmt.Sprintf("Generating video and uploading to %s.", destination)
}

// Job is the externally visible status of a submission.
type Job struct {
	ID        string    `json:"jobId"`
	Kind      Kind      `json:"kind"`
	State     State     `json:"state"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	publish.Options

	VideoID  string `json:"videoId,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
	Warning  string `json:"warningMessage,omitempty"`
}

// New returns a queued job.
func New(id string, kind Kind, opts publish.Options, now time.Time) *Job {
	now = now.UTC()
	return &Job{
		ID:        id,
		Kind:      kind,
		State:     StateQueued,
		Message:   MessageQueued,
		CreatedAt: now,
		UpdatedAt: now,
		Options:   opts,
	}
}

// Transition moves the job to next, rejecting backwards or repeated moves.
func (j *Job) Transition(next State, message string, now time.Time) error {
	if !j.State.CanTransition(next) {
		return errors.Conflict(fmt.Sprintf("job %s cannot move from %s to %s", j.ID, j.State, next)).
			WithField("job_id", j.ID).
			WithField("from", string(j.State)).
			WithField("to", string(next))
	}
	j.State = next
	j.Message = message
	j.UpdatedAt = now.UTC()
	return nil
}

// Clone returns a copy that shares nothing mutable with j.
func (j *Job) Clone() *Job {
	c := *j
	if j.Tags != nil {
		c.Tags = append([]string(nil), j.Tags...)
	}
	if j.PublishAt != nil {
		t := *j.PublishAt
		c.PublishAt = &t
	}
	return &c
}
