package progress

import (
	"sync"
	"time"

	"github.com/a2v/audio2video-back/internal/domain"
)

// Update carries a partial progress mutation; nil fields are left untouched.
type Update struct {
	State   *domain.JobState
	Stage   *domain.JobStage
	Percent *int
	Message *string
	Error   *string
}

// Store is the concurrency-safe in-memory progress tracker. One mutex guards
// both maps; nothing blocking runs while it is held, so update latency stays
// independent of pipeline work.
type Store struct {
	mu      sync.Mutex
	jobs    map[string]*domain.Progress
	batches map[string][]string
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		jobs:    make(map[string]*domain.Progress),
		batches: make(map[string][]string),
		now:     time.Now,
	}
}

// Create registers a fresh queued record. Callers guarantee fresh ids; a
// repeated id silently overwrites.
func (s *Store) Create(jobID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[jobID] = &domain.Progress{
		State:     domain.JobStateQueued,
		Stage:     domain.JobStageSaving,
		Percent:   0,
		Message:   message,
		UpdatedAt: s.now().UTC(),
	}
}

// Apply merges the provided fields into an existing record, clamping percent
// and refreshing the timestamp. Unknown ids are a no-op: the worker must be
// able to report failures unconditionally, so this never fails.
func (s *Store) Apply(jobID string, update Update) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.jobs[jobID]
	if !ok {
		return false
	}
	if update.State != nil {
		record.State = *update.State
	}
	if update.Stage != nil {
		record.Stage = *update.Stage
	}
	if update.Percent != nil {
		record.Percent = clampPercent(*update.Percent)
	}
	if update.Message != nil {
		record.Message = *update.Message
	}
	if update.Error != nil {
		record.Error = *update.Error
	}
	record.UpdatedAt = s.now().UTC()
	return true
}

// Get returns a snapshot of the record, or false when the id is unknown.
func (s *Store) Get(jobID string) (domain.Progress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.jobs[jobID]
	if !ok {
		return domain.Progress{}, false
	}
	return *record, true
}

// Exists reports whether a record is tracked for the id.
func (s *Store) Exists(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[jobID]
	return ok
}

// AddToBatch appends a job to a batch, creating the batch on first use.
// Repeated additions are idempotent and insertion order is preserved.
func (s *Store) AddToBatch(batchID, jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, member := range s.batches[batchID] {
		if member == jobID {
			return
		}
	}
	s.batches[batchID] = append(s.batches[batchID], jobID)
}

// BatchJobs returns the member job ids of a batch in insertion order. An
// unknown batch yields an empty slice.
func (s *Store) BatchJobs(batchID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.batches[batchID]
	copied := make([]string, len(members))
	copy(copied, members)
	return copied
}

func clampPercent(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

// Helpers for building partial updates without local temporaries.

func State(value domain.JobState) *domain.JobState { return &value }

func Stage(value domain.JobStage) *domain.JobStage { return &value }

func Percent(value int) *int { return &value }

func Message(value string) *string { return &value }

func Error(value string) *string { return &value }
