package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/a2v/audio2video-back/internal/domain"
)

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

type WhisperConfig struct {
	BinPath    string
	FFmpegPath string
	ModelPath  string
	Language   string
}

// WhisperTranscriber shells out to whisper.cpp. The binary and model are
// resolved once for the process lifetime: the first caller pays the check,
// later jobs reuse the resolved handle.
type WhisperTranscriber struct {
	cfg    WhisperConfig
	runner commandRunner

	initOnce    sync.Once
	initErr     error
	resolvedBin string
}

func NewWhisperTranscriber(cfg WhisperConfig) *WhisperTranscriber {
	if cfg.BinPath == "" {
		cfg.BinPath = "whisper-cli"
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	return &WhisperTranscriber{cfg: cfg, runner: &execRunner{}}
}

// Available reports whether the whisper binary can be found on PATH.
func (t *WhisperTranscriber) Available() bool {
	_, err := exec.LookPath(t.cfg.BinPath)
	return err == nil
}

func (t *WhisperTranscriber) ensureReady() error {
	t.initOnce.Do(func() {
		resolved, err := exec.LookPath(t.cfg.BinPath)
		if err != nil {
			t.initErr = fmt.Errorf("whisper binary not found: %w", err)
			return
		}
		if t.cfg.ModelPath != "" {
			if _, err := os.Stat(t.cfg.ModelPath); err != nil {
				t.initErr = fmt.Errorf("whisper model not accessible: %w", err)
				return
			}
		}
		t.resolvedBin = resolved
	})
	return t.initErr
}

// Transcribe preprocesses the audio to 16 kHz mono WAV and runs whisper.cpp
// with JSON output, returning 1-based sequential segments.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) ([]domain.TranscriptSegment, error) {
	if err := t.ensureReady(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio file not accessible: %w", err)
	}

	tempDir, err := os.MkdirTemp("", "a2v-transcribe-*")
	if err != nil {
		return nil, fmt.Errorf("create transcription workspace: %w", err)
	}
	defer os.RemoveAll(tempDir)

	wavPath := filepath.Join(tempDir, "preprocessed-16k-mono.wav")
	preprocessArgs := []string{
		"-y",
		"-i", audioPath,
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		wavPath,
	}
	if result, err := t.runner.Run(ctx, t.cfg.FFmpegPath, preprocessArgs...); err != nil {
		return nil, fmt.Errorf("audio preprocessing failed (exit=%d): %s", result.ExitCode, tail(result.Stderr))
	}

	outBase := filepath.Join(tempDir, "transcript")
	whisperArgs := []string{
		"-m", t.cfg.ModelPath,
		"-f", wavPath,
		"-l", t.cfg.Language,
		"-oj",
		"-of", outBase,
		"-np",
	}
	if result, err := t.runner.Run(ctx, t.resolvedBin, whisperArgs...); err != nil {
		return nil, fmt.Errorf("transcription failed (exit=%d): %s", result.ExitCode, tail(result.Stderr))
	}

	raw, err := os.ReadFile(outBase + ".json")
	if err != nil {
		return nil, fmt.Errorf("read transcription output: %w", err)
	}
	return parseWhisperOutput(raw)
}

// whisperOutput mirrors the whisper.cpp -oj document; offsets are milliseconds.
type whisperOutput struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func parseWhisperOutput(raw []byte) ([]domain.TranscriptSegment, error) {
	var output whisperOutput
	if err := json.Unmarshal(raw, &output); err != nil {
		return nil, fmt.Errorf("decode transcription output: %w", err)
	}

	segments := make([]domain.TranscriptSegment, 0, len(output.Transcription))
	for _, item := range output.Transcription {
		text := strings.TrimSpace(item.Text)
		if text == "" {
			continue
		}
		segments = append(segments, domain.TranscriptSegment{
			ID:    len(segments) + 1,
			Start: float64(item.Offsets.From) / 1000,
			End:   float64(item.Offsets.To) / 1000,
			Text:  text,
		})
	}
	return segments, nil
}

func tail(output string) string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return "no diagnostic output"
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " | ")
}
