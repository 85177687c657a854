package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/trunov/csvimages/internal/config"
	"github.com/trunov/csvimages/internal/entities"
	use_case "github.com/trunov/csvimages/internal/use-case"
)

const (
	formField       = "file"
	csvContentType  = "text/csv"
	multipartMargin = 1 << 20 // room for multipart boundaries and part headers
)

type UseCase interface {
	UploadCSV(ctx context.Context, filename, contentType string, data []byte) (string, error)
	Status(ctx context.Context, requestID string) (entities.Job, error)
	Document(ctx context.Context, requestID string) (io.ReadCloser, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	useCase   UseCase
	cfg       *config.Config
	validator *validator.Validate
	pingers   []Pinger
}

func New(useCase UseCase, cfg *config.Config, pingers ...Pinger) *Handler {
	return &Handler{
		useCase:   useCase,
		cfg:       cfg,
		validator: validator.New(),
		pingers:   pingers,
	}
}

func (h *Handler) UploadCSV(w http.ResponseWriter, r *http.Request) {
	maxSize := h.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartMargin)

	if err := r.ParseMultipartForm(h.cfg.Upload.MaxMultipartMemoryMB << 20); err != nil {
		writeMultipartError(w, err, maxSize)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, fh, err := r.FormFile(formField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			writeJSONError(w, `missing file: form field key should be "file"`, http.StatusBadRequest)
		} else {
			writeJSONError(w, "an error occurred while uploading the file: "+err.Error(), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	if fh.Header.Get("Content-Type") != csvContentType {
		writeJSONError(w, "Only CSV files are allowed", http.StatusBadRequest)
		return
	}
	if fh.Size > maxSize {
		writeJSONError(w, fileTooLargeMessage(maxSize), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		writeJSONError(w, "an error occurred while reading the file: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > maxSize {
		writeJSONError(w, fileTooLargeMessage(maxSize), http.StatusBadRequest)
		return
	}
	if !isText(data) {
		writeJSONError(w, "Only CSV files are allowed", http.StatusBadRequest)
		return
	}

	requestID, err := h.useCase.UploadCSV(r.Context(), fh.Filename, csvContentType, data)
	if err != nil {
		var inErr *use_case.InputError
		if errors.As(err, &inErr) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Str("filename", fh.Filename).Msg("upload failed")
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, UploadResponse{Message: "File uploaded successfully!", RequestID: requestID}, http.StatusOK)
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}

	job, err := h.useCase.Status(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, entities.ErrJobNotFound) {
			writeJSONError(w, fmt.Sprintf("requestId: %s not found!", requestID), http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("request_id", requestID).Msg("status lookup failed")
		writeJSONError(w, "Exception occurred: "+err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, StatusResponse{RequestID: job.RequestID, Status: job.Status()}, http.StatusOK)
}

func (h *Handler) GetCSV(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.requestID(w, r)
	if !ok {
		return
	}
	key := entities.DocumentKey(requestID)

	body, err := h.useCase.Document(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, entities.ErrDocumentNotFound) {
			writeJSONError(w, fmt.Sprintf("File: %s not found", key), http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("request_id", requestID).Msg("document download failed")
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", csvContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+key)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		log.Warn().Err(err).Str("request_id", requestID).Msg("document stream interrupted")
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	for _, p := range h.pingers {
		if err := p.Ping(r.Context()); err != nil {
			writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// requestID extracts and checks the path id. Malformed ids can never exist,
// so they are answered with 404 without touching storage.
func (h *Handler) requestID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "requestId")
	if err := h.validator.Struct(requestIDParam{RequestID: id}); err != nil {
		writeJSONError(w, fmt.Sprintf("requestId: %s not found!", id), http.StatusNotFound)
		return "", false
	}
	return id, true
}
