package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
	"github.com/kirillkom/document-pipeline/internal/observability/metrics"
)

const (
	multipartMemory   = 32 << 20
	multipartOverhead = 1 << 20
)

type Options struct {
	// MaxUploadBytes bounds a single file; batch requests may carry MaxBatchFiles of them.
	MaxUploadBytes   int64
	MaxBatchFiles    int
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
	Logger           *slog.Logger
}

type Router struct {
	uploader  ports.DocumentUploader
	queue     ports.UploadQueue
	documents ports.DocumentReader
	opts      Options
	metrics   *metrics.HTTPServerMetrics
	logger    *slog.Logger
}

func NewRouter(uploader ports.DocumentUploader, queue ports.UploadQueue, documents ports.DocumentReader, opts Options) *Router {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	if opts.MaxBatchFiles <= 0 {
		opts.MaxBatchFiles = 20
	}
	if opts.BackpressureWait <= 0 {
		opts.BackpressureWait = 250 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		uploader:  uploader,
		queue:     queue,
		documents: documents,
		opts:      opts,
		logger:    logger,
	}
}

// WithMetrics instruments every route and exposes /metrics.
func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	mux.HandleFunc("POST /v1/uploads", rt.enqueueUploads)
	mux.HandleFunc("GET /v1/uploads", rt.listUploads)
	mux.HandleFunc("GET /v1/uploads/export.xlsx", rt.exportUploads)
	mux.HandleFunc("DELETE /v1/uploads/completed", rt.clearCompleted)
	mux.HandleFunc("GET /v1/uploads/{id}", rt.getUpload)
	mux.HandleFunc("POST /v1/uploads/{id}/retry", rt.retryUpload)
	mux.HandleFunc("POST /v1/uploads/{id}/cancel", rt.cancelUpload)

	var api http.Handler = mux
	api = backpressureMiddleware(api, rt.opts.MaxInFlight, rt.opts.BackpressureWait)
	api = rateLimitMiddleware(api, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)

	root := http.NewServeMux()
	root.Handle("/", api)
	root.HandleFunc("GET /healthz", rt.healthz)
	var handler http.Handler = root
	if rt.metrics != nil {
		root.Handle("GET /metrics", rt.metrics.Handler())
		handler = rt.metrics.Middleware("api", handler)
	}
	return requestIDMiddleware(accessLogMiddleware(rt.logger, handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, multipartError(err))
		return
	}
	opts, err := parseUploadOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, domain.NewError(domain.CodeValidationFailed, "http.upload", "multipart field 'file' is required", nil))
		return
	}
	file, err := readUploadFile(headers[0])
	if err != nil {
		writeError(w, err)
		return
	}

	result := rt.uploader.Upload(r.Context(), file, opts, nil)
	if !result.Succeeded() {
		setErrorHeaders(w, result.Error)
		writeJSON(w, statusForCode(result.Error.Code), result)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.documents.GetDocument(r.Context(), domain.StorageLocation(r.URL.Query().Get("location")), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	err := rt.documents.DeleteDocument(r.Context(), domain.StorageLocation(r.URL.Query().Get("location")), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) enqueueUploads(w http.ResponseWriter, r *http.Request) {
	limit := int64(rt.opts.MaxBatchFiles)*rt.opts.MaxUploadBytes + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, multipartError(err))
		return
	}
	opts, err := parseUploadOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}

	headers := append(r.MultipartForm.File["files"], r.MultipartForm.File["file"]...)
	if len(headers) == 0 {
		writeError(w, domain.NewError(domain.CodeValidationFailed, "http.enqueue", "at least one file is required", nil))
		return
	}
	if len(headers) > rt.opts.MaxBatchFiles {
		writeError(w, domain.NewError(domain.CodeValidationFailed, "http.enqueue",
			fmt.Sprintf("batch has %d files, limit is %d", len(headers), rt.opts.MaxBatchFiles), nil))
		return
	}
	files := make([]domain.UploadFile, 0, len(headers))
	for _, h := range headers {
		file, err := readUploadFile(h)
		if err != nil {
			writeError(w, err)
			return
		}
		files = append(files, file)
	}

	ids := rt.queue.Enqueue(files, opts)
	rt.logger.Info("uploads_enqueued", "request_id", requestIDFromContext(r.Context()), "count", len(ids))
	writeJSON(w, http.StatusAccepted, map[string]any{"ids": ids})
}

func (rt *Router) listUploads(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.queue.Snapshot())
}

func (rt *Router) getUpload(w http.ResponseWriter, r *http.Request) {
	item, ok := rt.queue.Item(r.PathValue("id"))
	if !ok {
		writeError(w, domain.NewError(domain.CodeNotFound, "http.upload_item", "queue item not found", nil))
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (rt *Router) retryUpload(w http.ResponseWriter, r *http.Request) {
	rt.transition(w, r.PathValue("id"), rt.queue.Retry, http.StatusAccepted)
}

func (rt *Router) cancelUpload(w http.ResponseWriter, r *http.Request) {
	rt.transition(w, r.PathValue("id"), rt.queue.Cancel, http.StatusOK)
}

func (rt *Router) transition(w http.ResponseWriter, id string, apply func(string) error, status int) {
	if err := apply(id); err != nil {
		writeError(w, err)
		return
	}
	item, _ := rt.queue.Item(id)
	writeJSON(w, status, item)
}

func (rt *Router) clearCompleted(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"removed": rt.queue.ClearCompleted()})
}

func (rt *Router) exportUploads(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="uploads.xlsx"`)
	if err := writeQueueWorkbook(w, rt.queue.Snapshot()); err != nil {
		rt.logger.Error("uploads_export_failed", "error", err)
	}
}

func parseUploadOptions(r *http.Request) (domain.UploadOptions, error) {
	const op = "http.upload_options"
	opts := domain.UploadOptions{
		Location: domain.StorageLocation(strings.TrimSpace(r.FormValue("location"))),
		Language: domain.Language(strings.TrimSpace(r.FormValue("language"))),
	}
	var err error
	if opts.LocalOnly, err = formBool(r, "local_only"); err != nil {
		return opts, domain.NewError(domain.CodeValidationFailed, op, "local_only must be a boolean", err)
	}
	if opts.ShareImage, err = formBool(r, "share_image"); err != nil {
		return opts, domain.NewError(domain.CodeValidationFailed, op, "share_image must be a boolean", err)
	}
	return opts, nil
}

func formBool(r *http.Request, key string) (bool, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func readUploadFile(h *multipart.FileHeader) (domain.UploadFile, error) {
	f, err := h.Open()
	if err != nil {
		return domain.UploadFile{}, domain.NewError(domain.CodeValidationFailed, "http.read_file", "file part cannot be read", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return domain.UploadFile{}, domain.NewError(domain.CodeValidationFailed, "http.read_file", "file part cannot be read", err)
	}
	return domain.UploadFile{
		Name:     h.Filename,
		MimeType: h.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

func multipartError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.NewError(domain.CodeFileTooLarge, "http.multipart",
			fmt.Sprintf("request exceeds %d bytes", tooLarge.Limit), err)
	}
	return domain.NewError(domain.CodeValidationFailed, "http.multipart", "multipart/form-data body is required", err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
