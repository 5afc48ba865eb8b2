package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/a2v/audio2video-back/internal/artifacts"
	"github.com/a2v/audio2video-back/internal/domain"
)

type batchStatusItem struct {
	JobID            string          `json:"job_id"`
	Filename         string          `json:"filename"`
	ResourceBaseName string          `json:"resource_base_name"`
	Status           domain.Progress `json:"status"`
}

type batchStatusResponse struct {
	BatchID string            `json:"batch_id"`
	Jobs    []batchStatusItem `json:"jobs"`
}

type jobListItem struct {
	JobID            string    `json:"job_id"`
	Filename         string    `json:"filename"`
	ResourceBaseName string    `json:"resource_base_name"`
	State            string    `json:"state"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ListJobs handles GET /api/jobs: the most recently accepted submissions,
// newest first. The optional limit query parameter defaults to 50.
func (api *API) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			writeError(w, r, http.StatusBadRequest, "invalid_request", "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	records, err := api.jobs.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to list jobs")
		return
	}

	items := make([]jobListItem, 0, len(records))
	for _, record := range records {
		items = append(items, jobListItem{
			JobID:            record.ID,
			Filename:         record.OriginalFilename,
			ResourceBaseName: record.ResourceBaseName,
			State:            string(record.State),
			Error:            record.ErrorMessage,
			CreatedAt:        record.CreatedAt,
			UpdatedAt:        record.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": items})
}

// JobStatus handles GET /api/jobs/{job_id}/status.
func (api *API) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	snapshot, ok := api.jobs.GetProgress(jobID)
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "job not found")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// BatchStatus handles GET /api/batch/{batch_id}/status.
func (api *API) BatchStatus(w http.ResponseWriter, r *http.Request) {
	batchID := r.PathValue("batch_id")
	statuses, ok := api.jobs.BatchStatus(batchID)
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "batch not found")
		return
	}

	jobs := make([]batchStatusItem, 0, len(statuses))
	for _, status := range statuses {
		jobs = append(jobs, batchStatusItem{
			JobID:            status.JobID,
			Filename:         status.Filename,
			ResourceBaseName: status.ResourceBaseName,
			Status:           status.Progress,
		})
	}
	writeJSON(w, http.StatusOK, batchStatusResponse{BatchID: batchID, Jobs: jobs})
}

// Video handles GET /api/jobs/{job_id}/video.
func (api *API) Video(w http.ResponseWriter, r *http.Request) {
	api.serveArtifact(w, r, artifacts.KindRenderedVideo, "video/mp4", ".mp4", "video not found")
}

// TranscriptJSON handles GET /api/jobs/{job_id}/transcript/json.
func (api *API) TranscriptJSON(w http.ResponseWriter, r *http.Request) {
	api.serveArtifact(w, r, artifacts.KindTranscriptJSON, "application/json", ".json", "transcript not found")
}

// TranscriptVTT handles GET /api/jobs/{job_id}/transcript/vtt.
func (api *API) TranscriptVTT(w http.ResponseWriter, r *http.Request) {
	api.serveArtifact(w, r, artifacts.KindSubtitlesVTT, "text/vtt", ".vtt", "subtitles not found")
}

// serveArtifact streams an artifact file if it exists. A job that is still
// running yields 404 here until the artifact is written; that is expected,
// not exceptional.
func (api *API) serveArtifact(
	w http.ResponseWriter,
	r *http.Request,
	kind artifacts.Kind,
	contentType string,
	extension string,
	notFoundMessage string,
) {
	jobID := r.PathValue("job_id")
	path, ok := api.jobs.ArtifactPath(jobID, kind)
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", notFoundMessage)
		return
	}

	downloadName := jobID + "_" + api.jobs.ResourceBaseName(jobID) + extension
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+downloadName+`"`)
	http.ServeFile(w, r, path)
}
