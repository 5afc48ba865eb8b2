package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/a2v/audio2video-back/internal/domain"
)

var ErrNotFound = errors.New("resource not found")

// JobRecord is the durable bookkeeping row for one submission. It is not
// authoritative for live progress (the in-memory progress store is); it
// records what was accepted and how it ended.
type JobRecord struct {
	ID               string
	BatchID          string
	OriginalFilename string
	ResourceBaseName string
	AudioExtension   string
	State            domain.JobState
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// JobsRepository abstracts job-record persistence.
type JobsRepository interface {
	CreateJob(ctx context.Context, record *JobRecord) error
	UpdateJobState(ctx context.Context, jobID string, state domain.JobState, errorMessage string) error
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)
	ListRecent(ctx context.Context, limit int) ([]JobRecord, error)
}

// MemoryJobsRepository stores job records in memory, used whenever Postgres
// is not configured.
type MemoryJobsRepository struct {
	mu   sync.RWMutex
	jobs map[string]*JobRecord
}

func NewMemoryJobsRepository() *MemoryJobsRepository {
	return &MemoryJobsRepository{
		jobs: make(map[string]*JobRecord),
	}
}

func (r *MemoryJobsRepository) CreateJob(_ context.Context, record *JobRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *record
	r.jobs[record.ID] = &clone
	return nil
}

func (r *MemoryJobsRepository) UpdateJobState(
	_ context.Context,
	jobID string,
	state domain.JobState,
	errorMessage string,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	record.State = state
	record.ErrorMessage = errorMessage
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryJobsRepository) GetJob(_ context.Context, jobID string) (*JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (r *MemoryJobsRepository) ListRecent(_ context.Context, limit int) ([]JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	records := make([]JobRecord, 0, len(r.jobs))
	for _, record := range r.jobs {
		records = append(records, *record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
