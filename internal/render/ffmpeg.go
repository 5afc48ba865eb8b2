package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Renderer combines an audio file and an optional background image into a
// video file at outputPath within the given wall-clock timeout.
type Renderer interface {
	Render(ctx context.Context, audioPath, imagePath, outputPath string, timeout time.Duration) error
	Available() bool
}

type FFmpegRenderer struct {
	binPath string
}

func NewFFmpegRenderer(binPath string) *FFmpegRenderer {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	return &FFmpegRenderer{binPath: binPath}
}

// Available reports whether ffmpeg can be found on PATH. Checked eagerly at
// submission time so unavailability surfaces before any job is created.
func (r *FFmpegRenderer) Available() bool {
	_, err := exec.LookPath(r.binPath)
	return err == nil
}

// Render encodes a 1280x720 H.264/AAC video: the image (or a solid black
// background when none is given) looped for the duration of the audio.
// Exceeding the timeout is reported as an ordinary failure.
func (r *FFmpegRenderer) Render(ctx context.Context, audioPath, imagePath, outputPath string, timeout time.Duration) error {
	if !r.Available() {
		return errors.New("ffmpeg is not installed or not found in PATH")
	}
	if _, err := os.Stat(audioPath); err != nil {
		return fmt.Errorf("audio file not accessible: %w", err)
	}

	args := []string{"-y"}
	if imagePath != "" {
		if _, err := os.Stat(imagePath); err == nil {
			args = append(args, "-loop", "1", "-i", imagePath)
		} else {
			imagePath = ""
		}
	}
	if imagePath == "" {
		args = append(args, "-f", "lavfi", "-i", "color=c=black:s=1280x720:d=3600")
	}
	args = append(args,
		"-i", audioPath,
		"-c:v", "libx264",
		"-preset", "medium",
		"-c:a", "aac",
		"-b:a", "192k",
		"-pix_fmt", "yuv420p",
		"-vf", "scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2",
		"-af", "loudnorm=I=-16:TP=-1.5:LRA=11",
		"-shortest",
		"-movflags", "+faststart",
		outputPath,
	)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.binPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("ffmpeg execution timed out after %s", timeout)
	}
	if err != nil {
		return fmt.Errorf("ffmpeg execution failed: %s", lastLines(stderr.String()))
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return errors.New("ffmpeg completed but output file was not created")
	}
	if info.Size() == 0 {
		return errors.New("ffmpeg completed but output file is empty")
	}
	return nil
}

func lastLines(output string) string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return "unknown ffmpeg error"
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " | ")
}
