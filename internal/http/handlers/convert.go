package handlers

import (
	"net/http"
	"os"

	"github.com/a2v/audio2video-back/internal/service"
	"github.com/google/uuid"
)

type convertResponse struct {
	JobID             string `json:"job_id"`
	ResourceBaseName  string `json:"resource_base_name"`
	VideoURL          string `json:"video_url"`
	TranscriptJSONURL string `json:"transcript_json_url"`
	TranscriptVTTURL  string `json:"transcript_vtt_url"`
	Processing        string `json:"processing"`
}

type batchJobItem struct {
	JobID                 string `json:"job_id"`
	Filename              string `json:"filename"`
	ResourceBaseName      string `json:"resource_base_name"`
	Status                string `json:"status"`
	RenderedVideoURL      string `json:"rendered_video_url"`
	SubtitlesURL          string `json:"subtitles_url"`
	TranscriptSegmentsURL string `json:"transcript_segments_url"`
}

type batchConvertResponse struct {
	BatchID string         `json:"batch_id"`
	Jobs    []batchJobItem `json:"jobs"`
}

// Convert handles POST /api/convert: one audio file, optional background
// image. The response returns as soon as the job is queued.
func (api *API) Convert(w http.ResponseWriter, r *http.Request) {
	uploads, err := spoolMultipart(r, api.maxUploadBytes)
	if err != nil {
		writeSubmitError(w, r, err)
		return
	}
	defer removeUploads(uploads)

	var audio, image *spooledUpload
	for i := range uploads {
		switch uploads[i].Field {
		case "audio":
			audio = &uploads[i]
		case "image":
			image = &uploads[i]
		}
	}
	if audio == nil {
		writeSubmitError(w, r, service.ErrAudioRequired)
		return
	}

	input := service.SubmitInput{Filename: audio.Filename}

	audioFile, err := audio.Open()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to read upload")
		return
	}
	defer audioFile.Close()
	input.Audio = audioFile

	if image != nil {
		imageFile, err := image.Open()
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to read upload")
			return
		}
		defer imageFile.Close()
		input.Image = imageFile
		input.ImageFilename = image.Filename
	}

	job, err := api.jobs.Submit(r.Context(), input)
	if err != nil {
		writeSubmitError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, convertResponse{
		JobID:             job.ID,
		ResourceBaseName:  job.ResourceBaseName,
		VideoURL:          "/api/jobs/" + job.ID + "/video",
		TranscriptJSONURL: "/api/jobs/" + job.ID + "/transcript/json",
		TranscriptVTTURL:  "/api/jobs/" + job.ID + "/transcript/vtt",
		Processing:        "local-only",
	})
}

// BatchConvert handles POST /api/batch/convert: many audio files sharing one
// optional background image. A failing file is skipped; its siblings proceed.
func (api *API) BatchConvert(w http.ResponseWriter, r *http.Request) {
	uploads, err := spoolMultipart(r, api.maxUploadBytes)
	if err != nil {
		writeSubmitError(w, r, err)
		return
	}
	defer removeUploads(uploads)

	var audios []*spooledUpload
	var image *spooledUpload
	for i := range uploads {
		switch uploads[i].Field {
		case "audios", "audios[]":
			audios = append(audios, &uploads[i])
		case "image":
			image = &uploads[i]
		}
	}
	if len(audios) == 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "at least one audio file is required")
		return
	}
	if image != nil {
		if err := api.jobs.ValidateImageFilename(image.Filename); err != nil {
			writeSubmitError(w, r, err)
			return
		}
	}
	if !api.jobs.RendererAvailable() {
		writeSubmitError(w, r, service.ErrRendererUnavailable)
		return
	}

	batchID := uuid.NewString()
	jobs := make([]batchJobItem, 0, len(audios))

	for _, audio := range audios {
		input := service.SubmitInput{
			Filename: audio.Filename,
			BatchID:  batchID,
		}

		audioFile, err := audio.Open()
		if err != nil {
			continue
		}
		input.Audio = audioFile

		var imageFile *os.File
		if image != nil {
			if opened, err := image.Open(); err == nil {
				input.Image = opened
				input.ImageFilename = image.Filename
				imageFile = opened
			}
		}

		job, err := api.jobs.Submit(r.Context(), input)
		audioFile.Close()
		if imageFile != nil {
			imageFile.Close()
		}
		if err != nil {
			// Per-file isolation: one bad file does not abort siblings.
			continue
		}

		jobs = append(jobs, batchJobItem{
			JobID:                 job.ID,
			Filename:              audio.Filename,
			ResourceBaseName:      job.ResourceBaseName,
			Status:                "queued",
			RenderedVideoURL:      "/api/jobs/" + job.ID + "/video",
			SubtitlesURL:          "/api/jobs/" + job.ID + "/transcript/vtt",
			TranscriptSegmentsURL: "/api/jobs/" + job.ID + "/transcript/json",
		})
	}

	writeJSON(w, http.StatusCreated, batchConvertResponse{
		BatchID: batchID,
		Jobs:    jobs,
	})
}
