package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/a2v/audio2video-back/internal/artifacts"
	"github.com/a2v/audio2video-back/internal/domain"
	"github.com/a2v/audio2video-back/internal/progress"
	"github.com/a2v/audio2video-back/internal/quality"
	"github.com/a2v/audio2video-back/internal/queue"
	"github.com/a2v/audio2video-back/internal/render"
	"github.com/a2v/audio2video-back/internal/repository"
	"github.com/a2v/audio2video-back/internal/subtitle"
	"github.com/a2v/audio2video-back/internal/transcribe"
)

// Processor consumes queued jobs and drives each one through the pipeline:
// save handoff, transcription, transcript packaging, video rendering, done.
// Each job is processed end to end by exactly one run; every failure inside
// a run becomes a single terminal FAILED progress write and never escapes
// to the consume loop.
type Processor struct {
	consumer      queue.Consumer
	store         *progress.Store
	namer         *artifacts.Namer
	repo          repository.JobsRepository
	transcriber   transcribe.Transcriber
	renderer      render.Renderer
	renderTimeout time.Duration
	logger        *log.Logger
}

func NewProcessor(
	consumer queue.Consumer,
	store *progress.Store,
	namer *artifacts.Namer,
	repo repository.JobsRepository,
	transcriber transcribe.Transcriber,
	renderer render.Renderer,
	renderTimeout time.Duration,
	logger *log.Logger,
) *Processor {
	if renderTimeout <= 0 {
		renderTimeout = 10 * time.Minute
	}
	return &Processor{
		consumer:      consumer,
		store:         store,
		namer:         namer,
		repo:          repo,
		transcriber:   transcriber,
		renderer:      renderer,
		renderTimeout: renderTimeout,
		logger:        logger,
	}
}

func (p *Processor) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.processMessage)
		if err == nil || ctx.Err() != nil {
			return
		}
		if p.logger != nil {
			p.logger.Printf("worker consume loop error: %v", err)
		}

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// processMessage always returns nil: pipeline failures are terminal progress
// writes, not queue errors, so the transport never re-delivers a job.
func (p *Processor) processMessage(ctx context.Context, message domain.QueueMessage) error {
	jobID := message.JobID

	p.update(jobID, progress.Update{
		State:   progress.State(domain.JobStateRunning),
		Stage:   progress.Stage(domain.JobStageSaving),
		Percent: progress.Percent(5),
		Message: progress.Message("Files saved, starting transcription..."),
	})

	p.update(jobID, progress.Update{
		Stage:   progress.Stage(domain.JobStageTranscribing),
		Percent: progress.Percent(10),
		Message: progress.Message("Transcribing audio..."),
	})

	segments, err := p.transcriber.Transcribe(ctx, message.AudioPath)
	if err != nil {
		p.fail(ctx, jobID, err)
		return nil
	}
	segments = quality.NormalizeSegments(segments)

	p.update(jobID, progress.Update{
		Percent: progress.Percent(50),
		Message: progress.Message(fmt.Sprintf("Transcription complete: %d segments", len(segments))),
	})

	p.update(jobID, progress.Update{
		Stage:   progress.Stage(domain.JobStagePackaging),
		Percent: progress.Percent(55),
		Message: progress.Message("Generating transcript files..."),
	})

	if err := p.writeTranscript(jobID, segments); err != nil {
		p.fail(ctx, jobID, err)
		return nil
	}
	if err := subtitle.WriteVTT(segments, p.namer.Path(jobID, artifacts.KindSubtitlesVTT)); err != nil {
		p.fail(ctx, jobID, err)
		return nil
	}

	p.update(jobID, progress.Update{
		Percent: progress.Percent(60),
		Message: progress.Message("Transcript files generated"),
	})

	p.update(jobID, progress.Update{
		Stage:   progress.Stage(domain.JobStageRendering),
		Percent: progress.Percent(60),
		Message: progress.Message("Rendering video..."),
	})

	videoPath := p.namer.Path(jobID, artifacts.KindRenderedVideo)
	if err := p.renderer.Render(ctx, message.AudioPath, message.ImagePath, videoPath, p.renderTimeout); err != nil {
		p.fail(ctx, jobID, err)
		return nil
	}

	p.update(jobID, progress.Update{
		Percent: progress.Percent(95),
		Message: progress.Message("Video rendering complete"),
	})

	p.update(jobID, progress.Update{
		State:   progress.State(domain.JobStateSucceeded),
		Stage:   progress.Stage(domain.JobStageDone),
		Percent: progress.Percent(100),
		Message: progress.Message("Processing complete"),
	})
	_ = p.repo.UpdateJobState(ctx, jobID, domain.JobStateSucceeded, "")

	if p.logger != nil {
		p.logger.Printf("job completed job_id=%s segments=%d", jobID, len(segments))
	}
	return nil
}

func (p *Processor) writeTranscript(jobID string, segments []domain.TranscriptSegment) error {
	transcript := domain.Transcript{Version: "1.0", Segments: segments}
	encoded, err := json.MarshalIndent(transcript, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	path := p.namer.Path(jobID, artifacts.KindTranscriptJSON)
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

func (p *Processor) update(jobID string, update progress.Update) {
	p.store.Apply(jobID, update)
}

// fail writes the single terminal FAILED record. Artifacts already written
// (transcript before a rendering failure) stay in place: they are still
// individually valid.
func (p *Processor) fail(ctx context.Context, jobID string, cause error) {
	message := cause.Error()
	p.store.Apply(jobID, progress.Update{
		State:   progress.State(domain.JobStateFailed),
		Stage:   progress.Stage(domain.JobStageError),
		Percent: progress.Percent(0),
		Message: progress.Message("Processing failed: " + message),
		Error:   progress.Error(message),
	})
	_ = p.repo.UpdateJobState(ctx, jobID, domain.JobStateFailed, message)

	if p.logger != nil {
		p.logger.Printf("job failed job_id=%s err=%v", jobID, cause)
	}
}
