package transcribe

import (
	"context"
	"log"

	"github.com/a2v/audio2video-back/internal/cache"
	"github.com/a2v/audio2video-back/internal/domain"
)

// CachedTranscriber wraps another Transcriber with a content-addressed
// transcript cache. Hashing failures are not fatal: the audio is simply
// transcribed again.
type CachedTranscriber struct {
	inner    Transcriber
	cache    *cache.TranscriptCache
	language string
	logger   *log.Logger
}

func NewCachedTranscriber(
	inner Transcriber,
	transcriptCache *cache.TranscriptCache,
	language string,
	logger *log.Logger,
) *CachedTranscriber {
	return &CachedTranscriber{
		inner:    inner,
		cache:    transcriptCache,
		language: language,
		logger:   logger,
	}
}

func (t *CachedTranscriber) Transcribe(ctx context.Context, audioPath string) ([]domain.TranscriptSegment, error) {
	signature, err := cache.FileSignature(audioPath, t.language)
	if err != nil {
		if t.logger != nil {
			t.logger.Printf("transcript cache signature failed, transcribing directly: %v", err)
		}
		return t.inner.Transcribe(ctx, audioPath)
	}

	if segments, ok := t.cache.Get(signature); ok {
		if t.logger != nil {
			t.logger.Printf("transcript cache hit signature=%s segments=%d", signature[:12], len(segments))
		}
		return segments, nil
	}

	segments, err := t.inner.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	t.cache.Set(signature, segments)
	return segments, nil
}

func (t *CachedTranscriber) Available() bool {
	if reporter, ok := t.inner.(interface{ Available() bool }); ok {
		return reporter.Available()
	}
	return true
}
