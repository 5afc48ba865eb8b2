package transcribe

import (
	"context"

	"github.com/a2v/audio2video-back/internal/domain"
)

// Transcriber converts an audio file into ordered, timestamped segments.
// An empty result is valid: silence and speech-free audio proceed normally.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]domain.TranscriptSegment, error)
}
