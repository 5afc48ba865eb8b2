package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
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

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type pipelineResult struct {
	Submitted       int     `json:"submitted"`
	Completed       int     `json:"completed"`
	CompletionPct   float64 `json:"completion_pct"`
	MeanEndToEndMS  float64 `json:"mean_end_to_end_ms"`
	WorstEndToEndMS float64 `json:"worst_end_to_end_ms"`
}

type runResult struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Environment    string           `json:"environment"`
	Results        []scenarioResult `json:"results"`
	Pipeline       pipelineResult   `json:"pipeline"`
	SLOEvaluation  map[string]bool  `json:"slo_evaluation"`
}

type benchmarkEnv struct {
	server *httptest.Server
	cancel context.CancelFunc
}

// The benchmark exercises the HTTP surface and queue plumbing, not the real
// media binaries, so both external collaborators are replaced with fast fakes.
type instantTranscriber struct{}

func (instantTranscriber) Transcribe(_ context.Context, _ string) ([]domain.TranscriptSegment, error) {
	return []domain.TranscriptSegment{
		{Start: 0, End: 2, Text: "benchmark speech segment"},
	}, nil
}

type instantRenderer struct{}

func (instantRenderer) Render(_ context.Context, _, _, outputPath string, _ time.Duration) error {
	return os.WriteFile(outputPath, []byte("mp4"), 0o644)
}

func (instantRenderer) Available() bool { return true }

func main() {
	convertTotal := flag.Int("convert-total", 200, "total single conversion submissions")
	convertConcurrency := flag.Int("convert-concurrency", 16, "concurrency for conversion submissions")
	statusTotal := flag.Int("status-total", 400, "total status poll requests")
	statusConcurrency := flag.Int("status-concurrency", 32, "concurrency for status poll requests")
	batchTotal := flag.Int("batch-total", 60, "total batch submissions (3 files each)")
	batchConcurrency := flag.Int("batch-concurrency", 8, "concurrency for batch submissions")
	pipelineJobs := flag.Int("pipeline-jobs", 80, "jobs tracked end to end through the pipeline")
	outputPath := flag.String("output", "", "optional path to persist benchmark results JSON")
	flag.Parse()

	env, err := startBenchmarkEnvironment()
	if err != nil {
		log.Fatalf("failed to start local benchmark environment: %v", err)
	}
	defer env.cancel()
	defer env.server.Close()

	client := &http.Client{Timeout: 10 * time.Second}

	convertScenario := runScenario("convert_submit", *convertTotal, *convertConcurrency, func(index int) error {
		jobID, err := submitConversion(client, env.server.URL, fmt.Sprintf("bench_%d.m4a", index))
		if err != nil {
			return err
		}
		if jobID == "" {
			return fmt.Errorf("empty job id in response")
		}
		return nil
	})

	// Pre-submit a pool of jobs so status polling hits live records.
	statusPool := make([]string, 0, 32)
	for i := 0; i < 32; i++ {
		jobID, err := submitConversion(client, env.server.URL, fmt.Sprintf("pool_%d.m4a", i))
		if err != nil {
			log.Fatalf("failed to seed status pool: %v", err)
		}
		statusPool = append(statusPool, jobID)
	}

	statusScenario := runScenario("status_poll", *statusTotal, *statusConcurrency, func(index int) error {
		jobID := statusPool[index%len(statusPool)]
		return getExpecting(client, env.server.URL+"/api/jobs/"+jobID+"/status", http.StatusOK)
	})

	batchScenario := runScenario("batch_convert", *batchTotal, *batchConcurrency, func(index int) error {
		return submitBatch(client, env.server.URL, index)
	})

	pipeline := runPipelineScenario(client, env.server.URL, *pipelineJobs)

	results := []scenarioResult{convertScenario, statusScenario, batchScenario}
	slo := map[string]bool{
		"convert_submit_p95_le_500ms": convertScenario.P95MS <= 500,
		"status_poll_p95_le_100ms":    statusScenario.P95MS <= 100,
		"pipeline_completion_100pct":  pipeline.CompletionPct >= 100,
	}

	report := runResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Results:        results,
		Pipeline:       pipeline,
		SLOEvaluation:  slo,
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal benchmark report: %v", err)
	}

	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			log.Fatalf("failed to write output file: %v", err)
		}
	}

	_, _ = fmt.Fprintln(os.Stdout, string(encoded))
}

func startBenchmarkEnvironment() (*benchmarkEnv, error) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)

	dataDir, err := os.MkdirTemp("", "a2v-bench-*")
	if err != nil {
		cancel()
		return nil, err
	}

	namer, err := artifacts.NewNamer(dataDir, ".m4a")
	if err != nil {
		cancel()
		return nil, err
	}
	store := progress.NewStore()
	repo := repository.NewMemoryJobsRepository()
	localQueue := queue.NewLocalQueue(4096, 3, logger)

	renderer := instantRenderer{}
	jobsService := service.NewJobsService(namer, store, repo, localQueue, renderer, service.JobsServiceConfig{}, logger)

	processor := worker.NewProcessor(localQueue, store, namer, repo, instantTranscriber{}, renderer, time.Minute, logger)
	go processor.Start(ctx)

	api := handlers.NewAPI(jobsService, func() bool { return true }, 0)
	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	server := httptest.NewServer(router)
	return &benchmarkEnv{
		server: server,
		cancel: cancel,
	}, nil
}

func runScenario(
	name string,
	total int,
	concurrency int,
	requestFn func(index int) error,
) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{
					durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0,
				}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	errorsCount := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		errorsCount++
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	elapsedSeconds := time.Since(startedAt).Seconds()
	throughput := 0.0
	if elapsedSeconds > 0 {
		throughput = float64(total) / elapsedSeconds
	}

	return scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        errorsCount,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
}

// runPipelineScenario submits jobs and measures end-to-end latency from
// submission to the terminal progress state.
func runPipelineScenario(client *http.Client, baseURL string, total int) pipelineResult {
	if total <= 0 {
		return pipelineResult{}
	}

	type tracked struct {
		jobID     string
		startedAt time.Time
	}

	jobs := make([]tracked, 0, total)
	for i := 0; i < total; i++ {
		startedAt := time.Now()
		jobID, err := submitConversion(client, baseURL, fmt.Sprintf("pipeline_%d.m4a", i))
		if err != nil {
			continue
		}
		jobs = append(jobs, tracked{jobID: jobID, startedAt: startedAt})
	}

	completed := 0
	totalMS := 0.0
	worstMS := 0.0
	deadline := time.Now().Add(30 * time.Second)

	for _, job := range jobs {
		for time.Now().Before(deadline) {
			state, err := fetchJobState(client, baseURL, job.jobID)
			if err != nil {
				break
			}
			if state == domain.JobStateSucceeded || state == domain.JobStateFailed {
				elapsedMS := float64(time.Since(job.startedAt).Microseconds()) / 1000.0
				if state == domain.JobStateSucceeded {
					completed++
					totalMS += elapsedMS
					if elapsedMS > worstMS {
						worstMS = elapsedMS
					}
				}
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	result := pipelineResult{
		Submitted:       len(jobs),
		Completed:       completed,
		WorstEndToEndMS: round2(worstMS),
	}
	if len(jobs) > 0 {
		result.CompletionPct = round2(float64(completed) / float64(len(jobs)) * 100)
	}
	if completed > 0 {
		result.MeanEndToEndMS = round2(totalMS / float64(completed))
	}
	return result
}

func submitConversion(client *http.Client, baseURL, filename string) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write([]byte("benchmark audio payload")); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	response, err := client.Post(baseURL+"/api/convert", writer.FormDataContentType(), body)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return "", fmt.Errorf("unexpected status %d: %s", response.StatusCode, string(raw))
	}

	var created struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(response.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode convert response: %w", err)
	}
	return created.JobID, nil
}

func submitBatch(client *http.Client, baseURL string, index int) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for i := 0; i < 3; i++ {
		part, err := writer.CreateFormFile("audios", fmt.Sprintf("batch_%d_%d.m4a", index, i))
		if err != nil {
			return fmt.Errorf("create form file: %w", err)
		}
		if _, err := part.Write([]byte("benchmark audio payload")); err != nil {
			return fmt.Errorf("write form file: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	response, err := client.Post(baseURL+"/api/batch/convert", writer.FormDataContentType(), body)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", response.StatusCode, string(raw))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func fetchJobState(client *http.Client, baseURL, jobID string) (domain.JobState, error) {
	response, err := client.Get(baseURL + "/api/jobs/" + jobID + "/status")
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", response.StatusCode)
	}
	var snapshot domain.Progress
	if err := json.NewDecoder(response.Body).Decode(&snapshot); err != nil {
		return "", fmt.Errorf("decode status: %w", err)
	}
	return snapshot.State, nil
}

func getExpecting(client *http.Client, url string, expectedStatus int) error {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		raw, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(raw))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
