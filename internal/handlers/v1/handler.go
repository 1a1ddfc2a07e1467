// Package v1 exposes the translation job API over HTTP.
package v1

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/doctrans/doctrans/internal/intake"
	"github.com/doctrans/doctrans/internal/service"
	"github.com/doctrans/doctrans/internal/store/model"
)

// Handler translates HTTP requests into JobService calls and service errors
// back into status codes.
type Handler struct {
	service *service.JobService

	// maxUploadBytes bounds the multipart body before anything is parsed.
	maxUploadBytes int64
}

func NewHandler(svc *service.JobService, maxUploadBytes int64) *Handler {
	return &Handler{service: svc, maxUploadBytes: maxUploadBytes}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/translations", h.CreateTranslation)
	r.Get("/translations", h.ListTranslations)
	r.Get("/translations/{id}", h.GetTranslation)
	r.Get("/translations/{id}/download", h.DownloadTranslation)
}

type jobReply struct {
	JobID            string     `json:"jobId"`
	Status           string     `json:"status"`
	Progress         int        `json:"progress"`
	SourceLanguage   string     `json:"sourceLanguage"`
	TargetLanguage   string     `json:"targetLanguage"`
	DocumentType     string     `json:"documentType"`
	OriginalFilename string     `json:"originalFilename"`
	ErrorDetail      *string    `json:"errorDetail,omitempty"`
	ResultHandle     *string    `json:"resultHandle,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

type pagination struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

type jobListReply struct {
	Items      []jobReply `json:"items"`
	Pagination pagination `json:"pagination"`
}

type errorReply struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func newJobReply(job *model.Job) jobReply {
	reply := jobReply{
		JobID:            job.ID.String(),
		Status:           string(job.Status),
		Progress:         job.Progress(),
		SourceLanguage:   job.SourceLanguage,
		TargetLanguage:   job.TargetLanguage,
		DocumentType:     job.DocumentType,
		OriginalFilename: job.OriginalFilename,
		ErrorDetail:      job.ErrorDetail,
		CreatedAt:        job.CreatedAt,
		CompletedAt:      job.CompletedAt,
	}
	if job.Status == model.JobStatusCompleted {
		handle := fmt.Sprintf("/api/v1/translations/%s/download", job.ID)
		reply.ResultHandle = &handle
	}
	return reply
}

// CreateTranslation accepts a multipart upload and records a pending job.
// Processing happens asynchronously; the reply carries the id to poll.
func (h *Handler) CreateTranslation(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		replyError(w, r, http.StatusBadRequest, errorReply{Error: "malformed multipart body", Field: "file"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		replyError(w, r, http.StatusBadRequest, errorReply{Error: "file is required", Field: "file"})
		return
	}
	defer file.Close()

	upload := intake.Upload{
		Filename:       header.Filename,
		Size:           header.Size,
		Content:        file,
		SourceLanguage: r.FormValue("sourceLanguage"),
		TargetLanguage: r.FormValue("targetLanguage"),
		DocumentType:   r.FormValue("documentType"),
	}

	job, err := h.service.CreateJob(r.Context(), upload)
	if err != nil {
		h.replyServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newJobReply(job))
}

func (h *Handler) GetTranslation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	job, err := h.service.GetJob(r.Context(), id)
	if err != nil {
		h.replyServiceError(w, r, err)
		return
	}
	render.JSON(w, r, newJobReply(job))
}

func (h *Handler) ListTranslations(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", service.DefaultListLimit)
	offset := queryInt(r, "offset", 0)

	status := model.JobStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		replyError(w, r, http.StatusBadRequest, errorReply{Error: "unknown status", Field: "status"})
		return
	}

	jobs, total, err := h.service.ListJobs(r.Context(), limit, offset, status)
	if err != nil {
		h.replyServiceError(w, r, err)
		return
	}

	items := make([]jobReply, 0, len(jobs))
	for i := range jobs {
		items = append(items, newJobReply(&jobs[i]))
	}
	render.JSON(w, r, jobListReply{
		Items:      items,
		Pagination: pagination{Limit: limit, Offset: offset, Total: total},
	})
}

// DownloadTranslation streams the translated file of a completed job.
func (h *Handler) DownloadTranslation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	result, size, job, err := h.service.GetJobResult(r.Context(), id)
	if err != nil {
		h.replyServiceError(w, r, err)
		return
	}
	defer result.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", *job.OutputFilename))
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, result); err != nil {
		// Headers are gone; all we can do is log the broken stream.
		zap.S().Named("handlers").Warnw("failed to stream translated file", "job_id", job.ID, "error", err)
	}
}

func (h *Handler) replyServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *intake.ValidationError
	switch {
	case errors.As(err, &verr):
		replyError(w, r, http.StatusBadRequest, errorReply{Error: verr.Reason, Field: verr.Field})
	case errors.Is(err, service.ErrJobNotFound):
		replyError(w, r, http.StatusNotFound, errorReply{Error: err.Error()})
	case errors.Is(err, service.ErrJobAccessForbidden):
		replyError(w, r, http.StatusForbidden, errorReply{Error: err.Error()})
	case errors.Is(err, service.ErrJobNotReady):
		replyError(w, r, http.StatusConflict, errorReply{Error: err.Error()})
	case errors.Is(err, service.ErrJobResultMissing):
		replyError(w, r, http.StatusInternalServerError, errorReply{Error: err.Error()})
	default:
		zap.S().Named("handlers").Errorw("request failed", "error", err)
		replyError(w, r, http.StatusInternalServerError, errorReply{Error: "internal server error"})
	}
}

func replyError(w http.ResponseWriter, r *http.Request, code int, body errorReply) {
	render.Status(r, code)
	render.JSON(w, r, body)
}

func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		replyError(w, r, http.StatusBadRequest, errorReply{Error: "invalid job id", Field: "id"})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return val
}
