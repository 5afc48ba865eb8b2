package handlers

import "net/http"

func (api *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "healthy",
		"ffmpeg_available":  api.jobs.RendererAvailable(),
		"whisper_available": api.transcriberAvailable(),
	})
}

// Root is a small service banner kept for browser visits.
func (api *API) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Audio2Video API",
		"version": "1.0.0",
	})
}
