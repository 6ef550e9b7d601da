package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"mediafactory/internal/httpkit"
	"mediafactory/internal/jobs"
	"mediafactory/internal/pkg/errors"
	"mediafactory/internal/ports"
	"mediafactory/internal/publish"
	"mediafactory/internal/worker"
)

const (
	assetPartPrefix = "asset."
	// multipartMemory is how much of a form is held in memory before parts
	// spill to temporary files.
	multipartMemory = 32 << 20

	acceptedVideoMessage       = "Video job accepted. Poll /api/video/status/{jobId} for progress."
	acceptedCompositionMessage = "Composition job accepted. Poll /api/video/status/{jobId} for progress."
)

type acceptedResponse struct {
	JobID   string     `json:"jobId"`
	State   jobs.State `json:"state"`
	Message string     `json:"message"`
}

// GenerateVideo accepts a single image, an audio track and a duration.
func (h *Handler) GenerateVideo(w http.ResponseWriter, r *http.Request) error {
	form, err := h.parseForm(w, r)
	if err != nil {
		return err
	}
	defer form.RemoveAll()

	// An unparsable duration is reported by the service at its place in
	// the validation order.
	duration, _ := strconv.Atoi(strings.TrimSpace(formValue(form, "duration")))

	job, err := h.jobs.SubmitSimple(r.Context(), worker.SimpleRequest{
		Image:       filePart(form, "image"),
		Audio:       filePart(form, "audio"),
		DurationSec: duration,
		Metadata:    metadata(form),
	})
	if err != nil {
		return err
	}

	httpkit.WriteJSON(w, http.StatusAccepted, acceptedResponse{
		JobID:   job.ID,
		State:   job.State,
		Message: acceptedVideoMessage,
	})
	return nil
}

// SubmitComposition accepts a scene manifest with one asset.<id> part per
// referenced asset and a soundtrack.
func (h *Handler) SubmitComposition(w http.ResponseWriter, r *http.Request) error {
	form, err := h.parseForm(w, r)
	if err != nil {
		return err
	}
	defer form.RemoveAll()

	manifest, err := manifestBytes(form)
	if err != nil {
		return err
	}

	job, err := h.jobs.SubmitComposition(r.Context(), worker.CompositionRequest{
		Manifest: manifest,
		Assets:   assetParts(form),
		Audio:    filePart(form, "audio"),
		Metadata: metadata(form),
	})
	if err != nil {
		return err
	}

	httpkit.WriteJSON(w, http.StatusAccepted, acceptedResponse{
		JobID:   job.ID,
		State:   job.State,
		Message: acceptedCompositionMessage,
	})
	return nil
}

// JobStatus returns the job as stored.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) error {
	jobID := chi.URLParam(r, "jobId")

	job, err := h.jobs.Status(r.Context(), jobID)
	if errors.IsNotFound(err) {
		httpkit.WriteErr(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found for id: "+jobID, map[string]any{"jobId": jobID})
		return nil
	}
	if err != nil {
		return err
	}

	httpkit.WriteJSON(w, http.StatusOK, job)
	return nil
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errors.New(errors.CodeBadRequest, "request body is too large").
				WithField("limit_bytes", tooLarge.Limit)
		}
		return nil, errors.New(errors.CodeBadRequest, "invalid multipart form")
	}
	return r.MultipartForm, nil
}

func metadata(form *multipart.Form) worker.Metadata {
	return worker.Metadata{
		Title:       formValue(form, "title"),
		Description: formValue(form, "description"),
		Options: publish.OptionsInput{
			Privacy:    formValue(form, "privacyStatus"),
			Tags:       form.Value["tags"],
			CategoryID: formValue(form, "categoryId"),
			PublishAt:  formValue(form, "publishAt"),
		},
		Thumbnail: filePart(form, "thumbnail"),
	}
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// filePart returns nil when the part is absent.
func filePart(form *multipart.Form, key string) *ports.Part {
	if fh := form.File[key]; len(fh) > 0 {
		return toPart(key, fh[0])
	}
	return nil
}

func toPart(name string, fh *multipart.FileHeader) *ports.Part {
	return &ports.Part{
		Name:        name,
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// assetParts collects the asset.<id> file parts keyed by trimmed id.
func assetParts(form *multipart.Form) map[string]*ports.Part {
	assets := make(map[string]*ports.Part)
	for key, files := range form.File {
		if !strings.HasPrefix(key, assetPartPrefix) || len(files) == 0 {
			continue
		}
		id := strings.TrimSpace(strings.TrimPrefix(key, assetPartPrefix))
		if id == "" {
			continue
		}
		assets[id] = toPart(key, files[0])
	}
	return assets
}

// manifestBytes accepts the manifest as a text field or as a file part.
func manifestBytes(form *multipart.Form) ([]byte, error) {
	if v := formValue(form, "manifest"); v != "" {
		return []byte(v), nil
	}
	fh := form.File["manifest"]
	if len(fh) == 0 {
		return nil, nil
	}
	f, err := fh[0].Open()
	if err != nil {
		return nil, errors.Wrap(err, "handlers.manifest", "failed to read manifest part")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "handlers.manifest", "failed to read manifest part")
	}
	return data, nil
}
