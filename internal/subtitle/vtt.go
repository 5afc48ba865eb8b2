package subtitle

import (
	"fmt"
	"os"
	"strings"

	"github.com/a2v/audio2video-back/internal/domain"
)

var cueEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// FormatTimestamp renders seconds as the WebVTT HH:MM:SS.mmm form.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMillis := int64(seconds * 1000)
	hours := totalMillis / 3_600_000
	minutes := (totalMillis % 3_600_000) / 60_000
	secs := (totalMillis % 60_000) / 1000
	millis := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, secs, millis)
}

// GenerateVTT renders segments as a WebVTT document. An empty segment list
// still yields a valid file with just the header.
func GenerateVTT(segments []domain.TranscriptSegment) string {
	var builder strings.Builder
	builder.WriteString("WEBVTT\n\n")

	for i, segment := range segments {
		builder.WriteString(fmt.Sprintf("%d\n", i+1))
		builder.WriteString(FormatTimestamp(segment.Start))
		builder.WriteString(" --> ")
		builder.WriteString(FormatTimestamp(segment.End))
		builder.WriteByte('\n')
		builder.WriteString(cueEscaper.Replace(strings.TrimSpace(segment.Text)))
		builder.WriteString("\n\n")
	}
	return builder.String()
}

// WriteVTT writes the WebVTT document for segments to path.
func WriteVTT(segments []domain.TranscriptSegment, path string) error {
	if err := os.WriteFile(path, []byte(GenerateVTT(segments)), 0o644); err != nil {
		return fmt.Errorf("write subtitles: %w", err)
	}
	return nil
}
