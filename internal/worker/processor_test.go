package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/a2v/audio2video-back/internal/artifacts"
	"github.com/a2v/audio2video-back/internal/domain"
	"github.com/a2v/audio2video-back/internal/progress"
	"github.com/a2v/audio2video-back/internal/repository"
)

type stubTranscriber struct {
	segments []domain.TranscriptSegment
	err      error
	calls    int
}

func (s *stubTranscriber) Transcribe(_ context.Context, _ string) ([]domain.TranscriptSegment, error) {
	s.calls++
	return s.segments, s.err
}

type stubRenderer struct {
	err   error
	calls int
}

func (s *stubRenderer) Render(_ context.Context, _, _, outputPath string, _ time.Duration) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(outputPath, []byte("mp4"), 0o644)
}

func (s *stubRenderer) Available() bool { return true }

func newTestProcessor(
	t *testing.T,
	transcriber *stubTranscriber,
	renderer *stubRenderer,
) (*Processor, *progress.Store, *artifacts.Namer, string) {
	t.Helper()

	namer, err := artifacts.NewNamer(t.TempDir(), ".m4a")
	if err != nil {
		t.Fatalf("NewNamer: %v", err)
	}
	job, err := namer.Create("talk.m4a")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	audioPath := namer.Path(job.ID, artifacts.KindSourceAudio)
	if err := os.WriteFile(audioPath, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := progress.NewStore()
	store.Create(job.ID, "Uploading files...")

	repo := repository.NewMemoryJobsRepository()

	processor := NewProcessor(nil, store, namer, repo, transcriber, renderer, time.Minute, nil)
	return processor, store, namer, job.ID
}

func TestProcessMessageHappyPath(t *testing.T) {
	transcriber := &stubTranscriber{segments: []domain.TranscriptSegment{
		{Start: 0, End: 2, Text: "hello"},
		{Start: 2, End: 4, Text: "world"},
	}}
	renderer := &stubRenderer{}
	processor, store, namer, jobID := newTestProcessor(t, transcriber, renderer)

	err := processor.processMessage(context.Background(), domain.QueueMessage{
		JobID:     jobID,
		AudioPath: namer.Path(jobID, artifacts.KindSourceAudio),
	})
	if err != nil {
		t.Fatalf("processMessage: %v", err)
	}

	record, _ := store.Get(jobID)
	if record.State != domain.JobStateSucceeded {
		t.Fatalf("expected succeeded, got %q (%q)", record.State, record.Message)
	}
	if record.Stage != domain.JobStageDone || record.Percent != 100 {
		t.Fatalf("expected done/100, got %q/%d", record.Stage, record.Percent)
	}

	raw, err := os.ReadFile(namer.Path(jobID, artifacts.KindTranscriptJSON))
	if err != nil {
		t.Fatalf("transcript not written: %v", err)
	}
	var transcript domain.Transcript
	if err := json.Unmarshal(raw, &transcript); err != nil {
		t.Fatalf("transcript not valid JSON: %v", err)
	}
	if transcript.Version != "1.0" || len(transcript.Segments) != 2 {
		t.Fatalf("unexpected transcript: %+v", transcript)
	}
	if transcript.Segments[0].ID != 1 || transcript.Segments[1].ID != 2 {
		t.Fatalf("expected renumbered segment ids: %+v", transcript.Segments)
	}

	vtt, err := os.ReadFile(namer.Path(jobID, artifacts.KindSubtitlesVTT))
	if err != nil {
		t.Fatalf("subtitles not written: %v", err)
	}
	if !strings.HasPrefix(string(vtt), "WEBVTT\n") {
		t.Fatalf("unexpected vtt contents: %q", vtt)
	}

	if _, err := os.Stat(namer.Path(jobID, artifacts.KindRenderedVideo)); err != nil {
		t.Fatalf("video not written: %v", err)
	}
	if renderer.calls != 1 {
		t.Fatalf("expected exactly one render call, got %d", renderer.calls)
	}
}

func TestProcessMessageTranscriptionFailure(t *testing.T) {
	transcriber := &stubTranscriber{err: errors.New("model missing")}
	renderer := &stubRenderer{}
	processor, store, namer, jobID := newTestProcessor(t, transcriber, renderer)

	err := processor.processMessage(context.Background(), domain.QueueMessage{
		JobID:     jobID,
		AudioPath: namer.Path(jobID, artifacts.KindSourceAudio),
	})
	if err != nil {
		t.Fatalf("pipeline failures must not surface as queue errors, got %v", err)
	}

	record, _ := store.Get(jobID)
	if record.State != domain.JobStateFailed || record.Stage != domain.JobStageError {
		t.Fatalf("expected failed/error, got %q/%q", record.State, record.Stage)
	}
	if record.Percent != 0 {
		t.Fatalf("expected percent reset to 0, got %d", record.Percent)
	}
	if record.Message != "Processing failed: model missing" {
		t.Fatalf("unexpected failure message %q", record.Message)
	}
	if record.Error != "model missing" {
		t.Fatalf("unexpected error field %q", record.Error)
	}
	if renderer.calls != 0 {
		t.Fatal("renderer must not run after transcription failure")
	}
}

func TestProcessMessageRenderFailureKeepsTranscripts(t *testing.T) {
	transcriber := &stubTranscriber{segments: []domain.TranscriptSegment{
		{Start: 0, End: 1, Text: "kept"},
	}}
	renderer := &stubRenderer{err: errors.New("encoder exploded")}
	processor, store, namer, jobID := newTestProcessor(t, transcriber, renderer)

	err := processor.processMessage(context.Background(), domain.QueueMessage{
		JobID:     jobID,
		AudioPath: namer.Path(jobID, artifacts.KindSourceAudio),
	})
	if err != nil {
		t.Fatalf("pipeline failures must not surface as queue errors, got %v", err)
	}

	record, _ := store.Get(jobID)
	if record.State != domain.JobStateFailed {
		t.Fatalf("expected failed state, got %q", record.State)
	}

	if _, err := os.Stat(namer.Path(jobID, artifacts.KindTranscriptJSON)); err != nil {
		t.Fatal("transcript written before the failure must remain")
	}
	if _, err := os.Stat(namer.Path(jobID, artifacts.KindSubtitlesVTT)); err != nil {
		t.Fatal("subtitles written before the failure must remain")
	}
	if _, err := os.Stat(namer.Path(jobID, artifacts.KindRenderedVideo)); err == nil {
		t.Fatal("no video should exist after a render failure")
	}
}

func TestProcessMessageEmptyTranscript(t *testing.T) {
	transcriber := &stubTranscriber{segments: nil}
	renderer := &stubRenderer{}
	processor, store, namer, jobID := newTestProcessor(t, transcriber, renderer)

	err := processor.processMessage(context.Background(), domain.QueueMessage{
		JobID:     jobID,
		AudioPath: namer.Path(jobID, artifacts.KindSourceAudio),
	})
	if err != nil {
		t.Fatalf("processMessage: %v", err)
	}

	record, _ := store.Get(jobID)
	if record.State != domain.JobStateSucceeded {
		t.Fatalf("silent audio should still succeed, got %q (%q)", record.State, record.Message)
	}

	raw, err := os.ReadFile(namer.Path(jobID, artifacts.KindTranscriptJSON))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"segments": []`) {
		t.Fatalf("expected empty segments array, got:\n%s", raw)
	}
}
