package progress

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/a2v/audio2video-back/internal/domain"
)

func TestCreateInitializesQueuedRecord(t *testing.T) {
	store := NewStore()
	store.Create("job-1", "Uploading files...")

	record, ok := store.Get("job-1")
	if !ok {
		t.Fatal("expected record after Create")
	}
	if record.State != domain.JobStateQueued {
		t.Fatalf("expected queued state, got %q", record.State)
	}
	if record.Stage != domain.JobStageSaving {
		t.Fatalf("expected saving stage, got %q", record.Stage)
	}
	if record.Percent != 0 {
		t.Fatalf("expected percent 0, got %d", record.Percent)
	}
	if record.Message != "Uploading files..." {
		t.Fatalf("unexpected message %q", record.Message)
	}
	if record.UpdatedAt.IsZero() {
		t.Fatal("expected UpdatedAt to be set")
	}
}

func TestApplyMergesOnlyProvidedFields(t *testing.T) {
	store := NewStore()
	store.Create("job-1", "initial")

	if !store.Apply("job-1", Update{
		State:   State(domain.JobStateRunning),
		Stage:   Stage(domain.JobStageTranscribing),
		Percent: Percent(10),
		Message: Message("Transcribing audio..."),
	}) {
		t.Fatal("Apply returned false for known id")
	}

	if !store.Apply("job-1", Update{Percent: Percent(50)}) {
		t.Fatal("Apply returned false for known id")
	}

	record, _ := store.Get("job-1")
	if record.Percent != 50 {
		t.Fatalf("expected percent 50, got %d", record.Percent)
	}
	if record.State != domain.JobStateRunning || record.Stage != domain.JobStageTranscribing {
		t.Fatalf("partial update clobbered other fields: %+v", record)
	}
	if record.Message != "Transcribing audio..." {
		t.Fatalf("partial update clobbered message: %q", record.Message)
	}
}

func TestApplyUnknownIDIsNoOp(t *testing.T) {
	store := NewStore()

	if store.Apply("ghost", Update{Percent: Percent(42)}) {
		t.Fatal("Apply should return false for unknown id")
	}
	if store.Exists("ghost") {
		t.Fatal("Apply must not create records")
	}
}

func TestApplyClampsPercent(t *testing.T) {
	store := NewStore()
	store.Create("job-1", "")

	store.Apply("job-1", Update{Percent: Percent(150)})
	if record, _ := store.Get("job-1"); record.Percent != 100 {
		t.Fatalf("expected clamp to 100, got %d", record.Percent)
	}

	store.Apply("job-1", Update{Percent: Percent(-5)})
	if record, _ := store.Get("job-1"); record.Percent != 0 {
		t.Fatalf("expected clamp to 0, got %d", record.Percent)
	}
}

func TestApplyRefreshesTimestamp(t *testing.T) {
	store := NewStore()
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	store.Create("job-1", "")
	current = current.Add(time.Second)
	store.Apply("job-1", Update{Percent: Percent(10)})

	record, _ := store.Get("job-1")
	if !record.UpdatedAt.Equal(current) {
		t.Fatalf("expected refreshed timestamp %v, got %v", current, record.UpdatedAt)
	}
}

func TestGetReturnsSnapshot(t *testing.T) {
	store := NewStore()
	store.Create("job-1", "original")

	record, _ := store.Get("job-1")
	record.Message = "mutated"

	again, _ := store.Get("job-1")
	if again.Message != "original" {
		t.Fatal("Get must return a copy, not a live pointer")
	}
}

func TestBatchMembershipOrderedAndIdempotent(t *testing.T) {
	store := NewStore()

	store.AddToBatch("batch-1", "job-a")
	store.AddToBatch("batch-1", "job-b")
	store.AddToBatch("batch-1", "job-a")

	members := store.BatchJobs("batch-1")
	if len(members) != 2 || members[0] != "job-a" || members[1] != "job-b" {
		t.Fatalf("unexpected batch members: %v", members)
	}

	if got := store.BatchJobs("missing"); len(got) != 0 {
		t.Fatalf("expected empty slice for unknown batch, got %v", got)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	store := NewStore()
	store.Create("job-1", "")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			store.Apply("job-1", Update{
				Percent: Percent(n * 2),
				Message: Message(fmt.Sprintf("step %d", n)),
			})
			store.AddToBatch("batch-1", fmt.Sprintf("job-%d", n))
			store.Get("job-1")
		}(i)
	}
	wg.Wait()

	record, ok := store.Get("job-1")
	if !ok {
		t.Fatal("record vanished under concurrency")
	}
	if record.Percent < 0 || record.Percent > 100 {
		t.Fatalf("percent escaped clamping: %d", record.Percent)
	}
	if got := len(store.BatchJobs("batch-1")); got != 50 {
		t.Fatalf("expected 50 batch members, got %d", got)
	}
}
