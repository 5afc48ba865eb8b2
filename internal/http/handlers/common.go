package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/a2v/audio2video-back/internal/http/middleware"
	"github.com/a2v/audio2video-back/internal/service"
)

// API bundles the HTTP handlers around the jobs service.
type API struct {
	jobs                 *service.JobsService
	transcriberAvailable func() bool
	maxUploadBytes       int64
}

func NewAPI(jobs *service.JobsService, transcriberAvailable func() bool, maxUploadBytes int64) *API {
	if transcriberAvailable == nil {
		transcriberAvailable = func() bool { return true }
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 100 * 1024 * 1024
	}
	return &API{
		jobs:                 jobs,
		transcriberAvailable: transcriberAvailable,
		maxUploadBytes:       maxUploadBytes,
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

// writeSubmitError maps submission failures onto the documented status codes.
func writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrAudioRequired),
		errors.Is(err, service.ErrInvalidAudioType),
		errors.Is(err, service.ErrInvalidImageType):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, service.ErrUploadTooLarge):
		writeError(w, r, http.StatusRequestEntityTooLarge, "upload_too_large", err.Error())
	case errors.Is(err, service.ErrRendererUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "renderer_unavailable",
			"FFmpeg is not available. Please install FFmpeg.")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", "conversion setup failed")
	}
}

// spooledUpload is one multipart file part staged in a temp file so the size
// cap is enforced while the client is still sending.
type spooledUpload struct {
	Field    string
	Filename string
	TempPath string
}

func (u spooledUpload) Open() (*os.File, error) {
	return os.Open(u.TempPath)
}

func (u spooledUpload) Remove() {
	_ = os.Remove(u.TempPath)
}

func removeUploads(uploads []spooledUpload) {
	for _, upload := range uploads {
		upload.Remove()
	}
}

// spoolMultipart drains every file part of a multipart request into temp
// files, aborting the upload as soon as any single part exceeds maxBytes.
func spoolMultipart(r *http.Request, maxBytes int64) ([]spooledUpload, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: multipart form required", service.ErrAudioRequired)
	}

	uploads := make([]spooledUpload, 0, 2)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return uploads, nil
		}
		if err != nil {
			removeUploads(uploads)
			return nil, fmt.Errorf("read multipart form: %w", err)
		}
		if part.FileName() == "" {
			_ = part.Close()
			continue
		}

		upload, err := spoolPart(part, maxBytes)
		_ = part.Close()
		if err != nil {
			removeUploads(uploads)
			return nil, err
		}
		uploads = append(uploads, upload)
	}
}

func spoolPart(part *multipart.Part, maxBytes int64) (spooledUpload, error) {
	temp, err := os.CreateTemp("", "a2v-upload-*")
	if err != nil {
		return spooledUpload{}, fmt.Errorf("stage upload: %w", err)
	}

	written, err := io.Copy(temp, io.LimitReader(part, maxBytes+1))
	closeErr := temp.Close()
	if err != nil || closeErr != nil {
		_ = os.Remove(temp.Name())
		if err == nil {
			err = closeErr
		}
		return spooledUpload{}, fmt.Errorf("stage upload: %w", err)
	}
	if written > maxBytes {
		_ = os.Remove(temp.Name())
		return spooledUpload{}, service.ErrUploadTooLarge
	}

	return spooledUpload{
		Field:    part.FormName(),
		Filename: filepath.Base(part.FileName()),
		TempPath: temp.Name(),
	}, nil
}
