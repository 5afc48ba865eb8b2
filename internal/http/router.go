package httpserver

import (
	"log"
	"net/http"

	"github.com/a2v/audio2video-back/internal/http/handlers"
	"github.com/a2v/audio2video-back/internal/http/middleware"
)

type RouterDependencies struct {
	API            *handlers.API
	Logger         *log.Logger
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

func NewRouter(deps RouterDependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", deps.API.Root)
	mux.HandleFunc("GET /api/health", deps.API.Health)
	mux.HandleFunc("POST /api/convert", deps.API.Convert)
	mux.HandleFunc("POST /api/batch/convert", deps.API.BatchConvert)
	mux.HandleFunc("GET /api/jobs", deps.API.ListJobs)
	mux.HandleFunc("GET /api/jobs/{job_id}/status", deps.API.JobStatus)
	mux.HandleFunc("GET /api/jobs/{job_id}/video", deps.API.Video)
	mux.HandleFunc("GET /api/jobs/{job_id}/transcript/json", deps.API.TranscriptJSON)
	mux.HandleFunc("GET /api/jobs/{job_id}/transcript/vtt", deps.API.TranscriptVTT)
	mux.HandleFunc("GET /api/batch/{batch_id}/status", deps.API.BatchStatus)

	handler := http.Handler(mux)
	handler = middleware.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst)(handler)
	handler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: deps.CORSOrigins,
	})(handler)
	handler = middleware.Trace(deps.Logger)(handler)
	handler = middleware.RequestID(handler)

	return handler
}
