package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mediafactory/internal/httpapi/handlers"
	"mediafactory/internal/httpkit"
	"mediafactory/internal/pkg/logger"
	"mediafactory/internal/pkg/middleware"
)

type Deps struct {
	Handlers       handlers.Deps
	CORSOrigins    []string
	// RequestTimeout bounds status and health requests.
	RequestTimeout time.Duration
	// SubmitTimeout bounds the probe and staging work of a submission.
	// Zero leaves either unbounded.
	SubmitTimeout time.Duration
	Log            *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAgeSeconds:  600,
	}))

	h := handlers.New(d.Handlers)

	read := middleware.Timeout(d.RequestTimeout)

	r.With(read).Get("/health", h.Health)

	r.Route("/api/video", func(r chi.Router) {
		submit := r.With(middleware.Timeout(d.SubmitTimeout))
		submit.Post("/generate", middleware.WrapHandler(h.Log(), h.GenerateVideo))
		submit.Post("/compositions", middleware.WrapHandler(h.Log(), h.SubmitComposition))
		r.With(read).Get("/status/{jobId}", middleware.WrapHandler(h.Log(), h.JobStatus))
	})

	return r
}
