package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/a2v/audio2video-back/internal/artifacts"
	"github.com/a2v/audio2video-back/internal/domain"
	"github.com/a2v/audio2video-back/internal/progress"
	"github.com/a2v/audio2video-back/internal/queue"
	"github.com/a2v/audio2video-back/internal/render"
	"github.com/a2v/audio2video-back/internal/repository"
)

var (
	ErrAudioRequired       = errors.New("audio file is required")
	ErrInvalidAudioType    = errors.New("invalid audio file type")
	ErrInvalidImageType    = errors.New("invalid image file type")
	ErrUploadTooLarge      = errors.New("file size exceeds upload limit")
	ErrRendererUnavailable = errors.New("rendering engine is not available")
)

type JobsServiceConfig struct {
	MaxUploadBytes  int64
	AudioExtensions []string
	ImageExtensions []string
}

// JobsService validates uploads, allocates job identity, persists input
// files, and hands orchestration work to the queue. It returns before any
// pipeline work happens.
type JobsService struct {
	namer    *artifacts.Namer
	store    *progress.Store
	repo     repository.JobsRepository
	producer queue.Producer
	renderer render.Renderer
	logger   *log.Logger

	maxUploadBytes int64
	audioExts      map[string]bool
	imageExts      map[string]bool
}

func NewJobsService(
	namer *artifacts.Namer,
	store *progress.Store,
	repo repository.JobsRepository,
	producer queue.Producer,
	renderer render.Renderer,
	cfg JobsServiceConfig,
	logger *log.Logger,
) *JobsService {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 100 * 1024 * 1024
	}
	if len(cfg.AudioExtensions) == 0 {
		cfg.AudioExtensions = []string{".m4a"}
	}
	if len(cfg.ImageExtensions) == 0 {
		cfg.ImageExtensions = []string{".jpg", ".jpeg", ".png"}
	}
	return &JobsService{
		namer:          namer,
		store:          store,
		repo:           repo,
		producer:       producer,
		renderer:       renderer,
		logger:         logger,
		maxUploadBytes: cfg.MaxUploadBytes,
		audioExts:      extensionSet(cfg.AudioExtensions),
		imageExts:      extensionSet(cfg.ImageExtensions),
	}
}

// SubmitInput carries one upload. Image is optional; BatchID groups sibling
// jobs submitted in the same request.
type SubmitInput struct {
	Filename      string
	Audio         io.Reader
	ImageFilename string
	Image         io.Reader
	BatchID       string
}

// Submit accepts one audio upload: validates, allocates the job, streams
// inputs to the job directory, registers queued progress, and enqueues the
// orchestration message. The pipeline itself runs in the worker.
func (s *JobsService) Submit(ctx context.Context, input SubmitInput) (*domain.Job, error) {
	if err := s.ValidateAudioFilename(input.Filename); err != nil {
		return nil, err
	}
	if input.Image != nil {
		if err := s.ValidateImageFilename(input.ImageFilename); err != nil {
			return nil, err
		}
	}
	if !s.renderer.Available() {
		return nil, ErrRendererUnavailable
	}

	job, err := s.namer.Create(input.Filename)
	if err != nil {
		return nil, fmt.Errorf("allocate job: %w", err)
	}

	s.store.Create(job.ID, "Uploading files...")
	if input.BatchID != "" {
		s.store.AddToBatch(input.BatchID, job.ID)
	}

	audioPath := s.namer.Path(job.ID, artifacts.KindSourceAudio)
	if err := s.saveStream(input.Audio, audioPath); err != nil {
		return nil, err
	}

	imagePath := ""
	if input.Image != nil {
		imagePath = s.namer.Path(job.ID, artifacts.KindBackgroundImage)
		if err := s.saveStream(input.Image, imagePath); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	record := &repository.JobRecord{
		ID:               job.ID,
		BatchID:          input.BatchID,
		OriginalFilename: job.OriginalFilename,
		ResourceBaseName: job.ResourceBaseName,
		AudioExtension:   job.AudioExtension,
		State:            domain.JobStateQueued,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.CreateJob(ctx, record); err != nil && s.logger != nil {
		s.logger.Printf("job record create failed job_id=%s err=%v", job.ID, err)
	}

	message := domain.QueueMessage{
		JobID:       job.ID,
		AudioPath:   audioPath,
		ImagePath:   imagePath,
		Attempt:     0,
		RequestedAt: now,
	}
	if err := s.producer.Enqueue(ctx, message); err != nil {
		failure := err.Error()
		s.store.Apply(job.ID, progress.Update{
			State:   progress.State(domain.JobStateFailed),
			Stage:   progress.Stage(domain.JobStageError),
			Percent: progress.Percent(0),
			Message: progress.Message("Failed to schedule processing"),
			Error:   progress.Error(failure),
		})
		_ = s.repo.UpdateJobState(ctx, job.ID, domain.JobStateFailed, failure)
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	if s.logger != nil {
		s.logger.Printf("job accepted job_id=%s base=%s batch_id=%s", job.ID, job.ResourceBaseName, input.BatchID)
	}
	return job, nil
}

// ValidateAudioFilename checks presence and the extension allow-list.
func (s *JobsService) ValidateAudioFilename(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return ErrAudioRequired
	}
	if !s.audioExts[lowerExt(filename)] {
		return fmt.Errorf("%w: allowed types: %s", ErrInvalidAudioType, joinSorted(s.audioExts))
	}
	return nil
}

// ValidateImageFilename checks the image extension allow-list.
func (s *JobsService) ValidateImageFilename(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return nil
	}
	if !s.imageExts[lowerExt(filename)] {
		return fmt.Errorf("%w: allowed types: %s", ErrInvalidImageType, joinSorted(s.imageExts))
	}
	return nil
}

// RendererAvailable reports the rendering collaborator's availability.
func (s *JobsService) RendererAvailable() bool {
	return s.renderer.Available()
}

// GetProgress returns the live progress snapshot for a job.
func (s *JobsService) GetProgress(jobID string) (domain.Progress, bool) {
	return s.store.Get(jobID)
}

// BatchJobStatus pairs a batch member with its live progress.
type BatchJobStatus struct {
	JobID            string
	Filename         string
	ResourceBaseName string
	Progress         domain.Progress
}

// BatchStatus returns per-member progress for a batch, in submission order.
// The boolean is false when the batch id is unknown.
func (s *JobsService) BatchStatus(batchID string) ([]BatchJobStatus, bool) {
	jobIDs := s.store.BatchJobs(batchID)
	if len(jobIDs) == 0 {
		return nil, false
	}

	statuses := make([]BatchJobStatus, 0, len(jobIDs))
	for _, jobID := range jobIDs {
		snapshot, ok := s.store.Get(jobID)
		if !ok {
			continue
		}
		status := BatchJobStatus{
			JobID:            jobID,
			Filename:         jobID,
			ResourceBaseName: s.namer.ResourceBaseName(jobID),
			Progress:         snapshot,
		}
		if job, err := s.namer.Metadata(jobID); err == nil {
			status.Filename = job.OriginalFilename
		}
		statuses = append(statuses, status)
	}
	return statuses, true
}

// ArtifactPath resolves an artifact on disk, reporting whether it exists yet.
// Artifacts may appear before the job reaches its terminal state.
func (s *JobsService) ArtifactPath(jobID string, kind artifacts.Kind) (string, bool) {
	path := s.namer.Path(jobID, kind)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// ListRecent returns the most recently accepted job records, newest first.
func (s *JobsService) ListRecent(ctx context.Context, limit int) ([]repository.JobRecord, error) {
	return s.repo.ListRecent(ctx, limit)
}

// ResourceBaseName exposes the namer's base-name lookup for response shaping.
func (s *JobsService) ResourceBaseName(jobID string) string {
	return s.namer.ResourceBaseName(jobID)
}

// saveStream copies the upload to path, enforcing the byte cap during the
// copy. A partial file left by an oversized upload is removed.
func (s *JobsService) saveStream(reader io.Reader, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}

	written, err := io.Copy(file, io.LimitReader(reader, s.maxUploadBytes+1))
	closeErr := file.Close()
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("save upload: %w", err)
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return fmt.Errorf("save upload: %w", closeErr)
	}
	if written > s.maxUploadBytes {
		_ = os.Remove(path)
		return ErrUploadTooLarge
	}
	return nil
}

func extensionSet(extensions []string) map[string]bool {
	set := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		set[normalized] = true
	}
	return set
}

func lowerExt(filename string) string {
	index := strings.LastIndex(filename, ".")
	if index < 0 {
		return ""
	}
	return strings.ToLower(filename[index:])
}

func joinSorted(set map[string]bool) string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
