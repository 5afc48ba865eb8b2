package quality

import (
	"sort"
	"strings"

	"github.com/a2v/audio2video-back/internal/domain"
)

// NormalizeSegments cleans up raw transcription output before it is
// packaged into transcript artifacts: whitespace is collapsed, empty
// segments are dropped, timestamps are clamped to be non-negative with
// end >= start, segments are ordered by start time, and IDs are
// renumbered sequentially from 1.
//
// The result is never nil so downstream encoders always emit an array.
func NormalizeSegments(segments []domain.TranscriptSegment) []domain.TranscriptSegment {
	output := make([]domain.TranscriptSegment, 0, len(segments))
	for _, segment := range segments {
		text := normalizeText(segment.Text)
		if text == "" {
			continue
		}

		start := segment.Start
		if start < 0 {
			start = 0
		}
		end := segment.End
		if end < start {
			end = start
		}

		output = append(output, domain.TranscriptSegment{
			Start: start,
			End:   end,
			Text:  text,
		})
	}

	sort.SliceStable(output, func(i, j int) bool {
		return output[i].Start < output[j].Start
	})
	for i := range output {
		output[i].ID = i + 1
	}
	return output
}

func normalizeText(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	parts := strings.Fields(trimmed)
	return strings.Join(parts, " ")
}
