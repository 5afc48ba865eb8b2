package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/a2v/audio2video-back/internal/artifacts"
	"github.com/a2v/audio2video-back/internal/domain"
	"github.com/a2v/audio2video-back/internal/http/handlers"
	"github.com/a2v/audio2video-back/internal/progress"
	"github.com/a2v/audio2video-back/internal/queue"
	"github.com/a2v/audio2video-back/internal/repository"
	"github.com/a2v/audio2video-back/internal/service"
	"github.com/a2v/audio2video-back/internal/worker"

	httpserver "github.com/a2v/audio2video-back/internal/http"
)

type fakeTranscriber struct {
	err error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string) ([]domain.TranscriptSegment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.TranscriptSegment{
		{Start: 0, End: 2.5, Text: "Hello from the recording"},
		{Start: 2.5, End: 5, Text: "Second sentence"},
	}, nil
}

type fakeRenderer struct {
	available bool
	err       error
}

func (f *fakeRenderer) Render(_ context.Context, _, _, outputPath string, _ time.Duration) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outputPath, []byte("fake-mp4"), 0o644)
}

func (f *fakeRenderer) Available() bool { return f.available }

type integrationRuntime struct {
	server *httptest.Server
	cancel context.CancelFunc
}

type runtimeOptions struct {
	transcriber    *fakeTranscriber
	renderer       *fakeRenderer
	maxUploadBytes int64
}

func startIntegrationRuntime(t *testing.T, opts runtimeOptions) integrationRuntime {
	t.Helper()

	if opts.transcriber == nil {
		opts.transcriber = &fakeTranscriber{}
	}
	if opts.renderer == nil {
		opts.renderer = &fakeRenderer{available: true}
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)

	namer, err := artifacts.NewNamer(t.TempDir(), ".m4a")
	if err != nil {
		t.Fatalf("NewNamer: %v", err)
	}
	store := progress.NewStore()
	repo := repository.NewMemoryJobsRepository()
	localQueue := queue.NewLocalQueue(256, 3, logger)

	jobsService := service.NewJobsService(namer, store, repo, localQueue, opts.renderer, service.JobsServiceConfig{
		MaxUploadBytes: opts.maxUploadBytes,
	}, logger)

	processor := worker.NewProcessor(localQueue, store, namer, repo, opts.transcriber, opts.renderer, time.Minute, logger)
	go processor.Start(ctx)

	api := handlers.NewAPI(jobsService, func() bool { return true }, opts.maxUploadBytes)
	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	})

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return integrationRuntime{server: server, cancel: cancel}
}

func multipartBody(t *testing.T, files map[string][]fileSpec) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for field, specs := range files {
		for _, spec := range specs {
			part, err := writer.CreateFormFile(field, spec.name)
			if err != nil {
				t.Fatalf("create form file: %v", err)
			}
			if _, err := part.Write(spec.content); err != nil {
				t.Fatalf("write form file: %v", err)
			}
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

type fileSpec struct {
	name    string
	content []byte
}

func postMultipart(t *testing.T, url string, files map[string][]fileSpec) *http.Response {
	t.Helper()

	body, contentType := multipartBody(t, files)
	resp, err := http.Post(url, contentType, body)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func pollUntilTerminal(t *testing.T, baseURL, jobID string) domain.Progress {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/api/jobs/" + jobID + "/status")
		if err != nil {
			t.Fatalf("GET status: %v", err)
		}
		var snapshot domain.Progress
		decodeJSON(t, resp, &snapshot)
		if snapshot.State == domain.JobStateSucceeded || snapshot.State == domain.JobStateFailed {
			return snapshot
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state in time")
	return domain.Progress{}
}

func TestConvertWorkflow(t *testing.T) {
	runtime := startIntegrationRuntime(t, runtimeOptions{})

	resp := postMultipart(t, runtime.server.URL+"/api/convert", map[string][]fileSpec{
		"audio": {{name: "meeting.m4a", content: []byte("audio-bytes")}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var created struct {
		JobID             string `json:"job_id"`
		ResourceBaseName  string `json:"resource_base_name"`
		VideoURL          string `json:"video_url"`
		TranscriptJSONURL string `json:"transcript_json_url"`
		TranscriptVTTURL  string `json:"transcript_vtt_url"`
		Processing        string `json:"processing"`
	}
	decodeJSON(t, resp, &created)

	if created.JobID == "" {
		t.Fatal("expected job id in response")
	}
	if !strings.HasPrefix(created.ResourceBaseName, "meeting_") {
		t.Fatalf("unexpected resource base name %q", created.ResourceBaseName)
	}
	if created.Processing != "local-only" {
		t.Fatalf("unexpected processing marker %q", created.Processing)
	}

	final := pollUntilTerminal(t, runtime.server.URL, created.JobID)
	if final.State != domain.JobStateSucceeded {
		t.Fatalf("expected success, got %q (%q)", final.State, final.Message)
	}
	if final.Stage != domain.JobStageDone || final.Percent != 100 {
		t.Fatalf("expected done/100, got %q/%d", final.Stage, final.Percent)
	}

	for _, url := range []string{created.VideoURL, created.TranscriptJSONURL, created.TranscriptVTTURL} {
		artifactResp, err := http.Get(runtime.server.URL + url)
		if err != nil {
			t.Fatalf("GET %s: %v", url, err)
		}
		if artifactResp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", url, artifactResp.StatusCode)
		}
		disposition := artifactResp.Header.Get("Content-Disposition")
		if !strings.Contains(disposition, created.JobID+"_"+created.ResourceBaseName) {
			t.Fatalf("GET %s: unexpected disposition %q", url, disposition)
		}
		artifactResp.Body.Close()
	}

	vttResp, err := http.Get(runtime.server.URL + created.TranscriptVTTURL)
	if err != nil {
		t.Fatal(err)
	}
	vtt, _ := io.ReadAll(vttResp.Body)
	vttResp.Body.Close()
	if !strings.HasPrefix(string(vtt), "WEBVTT") {
		t.Fatalf("expected WebVTT document, got %q", vtt)
	}
	if !strings.Contains(string(vtt), "Hello from the recording") {
		t.Fatalf("expected cue text in document:\n%s", vtt)
	}
}

func TestConvertWithBackgroundImage(t *testing.T) {
	runtime := startIntegrationRuntime(t, runtimeOptions{})

	resp := postMultipart(t, runtime.server.URL+"/api/convert", map[string][]fileSpec{
		"audio": {{name: "talk.m4a", content: []byte("audio")}},
		"image": {{name: "cover.png", content: []byte("png")}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var created struct {
		JobID string `json:"job_id"`
	}
	decodeJSON(t, resp, &created)

	final := pollUntilTerminal(t, runtime.server.URL, created.JobID)
	if final.State != domain.JobStateSucceeded {
		t.Fatalf("expected success, got %q (%q)", final.State, final.Message)
	}
}

func TestBatchConvertWorkflow(t *testing.T) {
	runtime := startIntegrationRuntime(t, runtimeOptions{})

	resp := postMultipart(t, runtime.server.URL+"/api/batch/convert", map[string][]fileSpec{
		"audios": {
			{name: "first.m4a", content: []byte("one")},
			{name: "second.m4a", content: []byte("two")},
		},
		"image": {{name: "shared.jpg", content: []byte("jpg")}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var created struct {
		BatchID string `json:"batch_id"`
		Jobs    []struct {
			JobID    string `json:"job_id"`
			Filename string `json:"filename"`
			Status   string `json:"status"`
		} `json:"jobs"`
	}
	decodeJSON(t, resp, &created)

	if created.BatchID == "" {
		t.Fatal("expected batch id")
	}
	if len(created.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(created.Jobs))
	}
	if created.Jobs[0].Filename != "first.m4a" || created.Jobs[1].Filename != "second.m4a" {
		t.Fatalf("jobs out of submission order: %+v", created.Jobs)
	}

	for _, job := range created.Jobs {
		final := pollUntilTerminal(t, runtime.server.URL, job.JobID)
		if final.State != domain.JobStateSucceeded {
			t.Fatalf("job %s: expected success, got %q (%q)", job.JobID, final.State, final.Message)
		}
	}

	statusResp, err := http.Get(runtime.server.URL + "/api/batch/" + created.BatchID + "/status")
	if err != nil {
		t.Fatal(err)
	}
	if statusResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from batch status, got %d", statusResp.StatusCode)
	}
	var batchStatus struct {
		BatchID string `json:"batch_id"`
		Jobs    []struct {
			JobID  string          `json:"job_id"`
			Status domain.Progress `json:"status"`
		} `json:"jobs"`
	}
	decodeJSON(t, statusResp, &batchStatus)
	if len(batchStatus.Jobs) != 2 {
		t.Fatalf("expected 2 members in batch status, got %d", len(batchStatus.Jobs))
	}
}

func TestConvertValidationFailures(t *testing.T) {
	runtime := startIntegrationRuntime(t, runtimeOptions{})

	resp := postMultipart(t, runtime.server.URL+"/api/convert", map[string][]fileSpec{
		"audio": {{name: "song.wav", content: []byte("x")}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad audio type, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postMultipart(t, runtime.server.URL+"/api/convert", map[string][]fileSpec{
		"image": {{name: "only.png", content: []byte("x")}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing audio, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestConvertRejectsOversizedUpload(t *testing.T) {
	runtime := startIntegrationRuntime(t, runtimeOptions{maxUploadBytes: 32})

	resp := postMultipart(t, runtime.server.URL+"/api/convert", map[string][]fileSpec{
		"audio": {{name: "big.m4a", content: bytes.Repeat([]byte("a"), 64)}},
	})
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}

	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeJSON(t, resp, &payload)
	if payload.Error.Code != "upload_too_large" {
		t.Fatalf("unexpected error code %q", payload.Error.Code)
	}
}

func TestConvertUnavailableRenderer(t *testing.T) {
	runtime := startIntegrationRuntime(t, runtimeOptions{
		renderer: &fakeRenderer{available: false},
	})

	resp := postMultipart(t, runtime.server.URL+"/api/convert", map[string][]fileSpec{
		"audio": {{name: "meeting.m4a", content: []byte("x")}},
	})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}

	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeJSON(t, resp, &payload)
	if payload.Error.Code != "renderer_unavailable" {
		t.Fatalf("unexpected error code %q", payload.Error.Code)
	}
}

func TestFailedJobReportsTerminalError(t *testing.T) {
	runtime := startIntegrationRuntime(t, runtimeOptions{
		transcriber: &fakeTranscriber{err: errors.New("model missing")},
	})

	resp := postMultipart(t, runtime.server.URL+"/api/convert", map[string][]fileSpec{
		"audio": {{name: "meeting.m4a", content: []byte("x")}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 on submit, got %d", resp.StatusCode)
	}
	var created struct {
		JobID string `json:"job_id"`
	}
	decodeJSON(t, resp, &created)

	final := pollUntilTerminal(t, runtime.server.URL, created.JobID)
	if final.State != domain.JobStateFailed {
		t.Fatalf("expected failed state, got %q", final.State)
	}
	if !strings.HasPrefix(final.Message, "Processing failed: ") {
		t.Fatalf("unexpected failure message %q", final.Message)
	}
	if final.Percent != 0 {
		t.Fatalf("expected percent 0 after failure, got %d", final.Percent)
	}

	videoResp, err := http.Get(runtime.server.URL + "/api/jobs/" + created.JobID + "/video")
	if err != nil {
		t.Fatal(err)
	}
	videoResp.Body.Close()
	if videoResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for missing video, got %d", videoResp.StatusCode)
	}
}

func TestUnknownResources(t *testing.T) {
	runtime := startIntegrationRuntime(t, runtimeOptions{})

	urls := []string{
		"/api/jobs/20260101T000000_deadbeef/status",
		"/api/jobs/20260101T000000_deadbeef/video",
		"/api/jobs/20260101T000000_deadbeef/transcript/json",
		"/api/jobs/20260101T000000_deadbeef/transcript/vtt",
		"/api/batch/no-such-batch/status",
	}
	for _, url := range urls {
		resp, err := http.Get(runtime.server.URL + url)
		if err != nil {
			t.Fatalf("GET %s: %v", url, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("GET %s: expected 404, got %d", url, resp.StatusCode)
		}
	}
}

func TestListJobs(t *testing.T) {
	runtime := startIntegrationRuntime(t, runtimeOptions{})

	resp := postMultipart(t, runtime.server.URL+"/api/convert", map[string][]fileSpec{
		"audio": {{name: "listed.m4a", content: []byte("x")}},
	})
	var created struct {
		JobID string `json:"job_id"`
	}
	decodeJSON(t, resp, &created)

	listResp, err := http.Get(runtime.server.URL + "/api/jobs?limit=10")
	if err != nil {
		t.Fatal(err)
	}
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", listResp.StatusCode)
	}
	var listing struct {
		Jobs []struct {
			JobID    string `json:"job_id"`
			Filename string `json:"filename"`
		} `json:"jobs"`
	}
	decodeJSON(t, listResp, &listing)
	if len(listing.Jobs) != 1 || listing.Jobs[0].JobID != created.JobID {
		t.Fatalf("unexpected listing: %+v", listing.Jobs)
	}
	if listing.Jobs[0].Filename != "listed.m4a" {
		t.Fatalf("unexpected filename %q", listing.Jobs[0].Filename)
	}

	badResp, err := http.Get(runtime.server.URL + "/api/jobs?limit=0")
	if err != nil {
		t.Fatal(err)
	}
	badResp.Body.Close()
	if badResp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid limit, got %d", badResp.StatusCode)
	}
}

func TestHealthAndRoot(t *testing.T) {
	runtime := startIntegrationRuntime(t, runtimeOptions{})

	resp, err := http.Get(runtime.server.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	var health struct {
		Status           string `json:"status"`
		FFmpegAvailable  bool   `json:"ffmpeg_available"`
		WhisperAvailable bool   `json:"whisper_available"`
	}
	decodeJSON(t, resp, &health)
	if health.Status != "healthy" || !health.FFmpegAvailable || !health.WhisperAvailable {
		t.Fatalf("unexpected health payload: %+v", health)
	}

	rootResp, err := http.Get(runtime.server.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	var banner struct {
		Message string `json:"message"`
		Version string `json:"version"`
	}
	decodeJSON(t, rootResp, &banner)
	if banner.Message != "Audio2Video API" {
		t.Fatalf("unexpected banner %+v", banner)
	}
}
