package handlers

import (
	"context"

	"mediafactory/internal/jobs"
	"mediafactory/internal/pkg/logger"
	"mediafactory/internal/worker"
)

// JobService is the submission side of the worker.
type JobService interface {
	SubmitSimple(ctx context.Context, req worker.SimpleRequest) (*jobs.Job, error)
	SubmitComposition(ctx context.Context, req worker.CompositionRequest) (*jobs.Job, error)
	Status(ctx context.Context, id string) (*jobs.Job, error)
}

// Checker is a dependency probed by the deep health check.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

type Deps struct {
	Jobs JobService
	// Checks are keyed by the name reported in the health response.
	Checks map[string]Checker
	// MaxUploadBytes bounds the size of a multipart request body.
	MaxUploadBytes int64
	Version        string
	Log            *logger.Logger
}

type Handler struct {
	jobs      JobService
	checks    map[string]Checker
	maxUpload int64
	version   string
	log       *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	maxUpload := d.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 512 << 20
	}
	version := d.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		jobs:      d.Jobs,
		checks:    d.Checks,
		maxUpload: maxUpload,
		version:   version,
		log:       log.WithComponent("http"),
	}
}

// Log is the logger handed to middleware.WrapHandler.
func (h *Handler) Log() *logger.Logger { return h.log }
