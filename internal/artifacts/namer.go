package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/a2v/audio2video-back/internal/domain"
	"github.com/google/uuid"
)

// Kind identifies one artifact produced or consumed by a job.
type Kind string

const (
	KindSourceAudio     Kind = "source_audio"
	KindBackgroundImage Kind = "background_image"
	KindRenderedVideo   Kind = "rendered_video"
	KindTranscriptJSON  Kind = "transcript_json"
	KindSubtitlesVTT    Kind = "subtitles_vtt"
)

const (
	metadataFileName        = "job.json"
	backgroundImageFileName = "background_image.jpg"

	maxBaseNameLength = 60
	fallbackBaseName  = "audio"

	createAttempts = 5
)

// Namer allocates job identities and maps them to artifact paths on disk.
// Every job owns one directory named by its id; paths are pure functions of
// the metadata persisted at creation time.
type Namer struct {
	baseDir         string
	defaultAudioExt string
	now             func() time.Time
}

func NewNamer(baseDir, defaultAudioExt string) (*Namer, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("jobs base directory is required")
	}
	if defaultAudioExt == "" {
		defaultAudioExt = ".m4a"
	}
	if !strings.HasPrefix(defaultAudioExt, ".") {
		defaultAudioExt = "." + defaultAudioExt
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create jobs base directory: %w", err)
	}
	return &Namer{
		baseDir:         baseDir,
		defaultAudioExt: strings.ToLower(defaultAudioExt),
		now:             time.Now,
	}, nil
}

// Create allocates a fresh job id, its directory, and persisted metadata.
// The id is time-prefixed so directory listings sort chronologically; the
// random suffix is retried until a directory that did not previously exist
// is created.
func (n *Namer) Create(originalFilename string) (*domain.Job, error) {
	now := n.now().UTC()

	var jobDir, jobID string
	for attempt := 0; ; attempt++ {
		jobID = now.Format("20060102T150405") + "_" + uuid.NewString()[:8]
		jobDir = filepath.Join(n.baseDir, jobID)
		err := os.Mkdir(jobDir, 0o755)
		if err == nil {
			break
		}
		if errors.Is(err, fs.ErrExist) && attempt < createAttempts {
			continue
		}
		return nil, fmt.Errorf("create job directory: %w", err)
	}

	job := &domain.Job{
		ID:               jobID,
		OriginalFilename: originalFilename,
		ResourceBaseName: SanitizeBaseName(stem(originalFilename)) + "_" + now.Format("20060102_150405"),
		AudioExtension:   n.AudioExtension(originalFilename),
		CreatedAt:        now,
	}

	encoded, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode job metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(jobDir, metadataFileName), encoded, 0o644); err != nil {
		return nil, fmt.Errorf("write job metadata: %w", err)
	}
	return job, nil
}

// JobDir returns the directory owning all of one job's artifacts.
func (n *Namer) JobDir(jobID string) string {
	return filepath.Join(n.baseDir, jobID)
}

// Exists reports whether a job directory has been allocated for the id.
func (n *Namer) Exists(jobID string) bool {
	info, err := os.Stat(n.JobDir(jobID))
	return err == nil && info.IsDir()
}

// Metadata loads the persisted job metadata.
func (n *Namer) Metadata(jobID string) (*domain.Job, error) {
	raw, err := os.ReadFile(filepath.Join(n.JobDir(jobID), metadataFileName))
	if err != nil {
		return nil, fmt.Errorf("read job metadata: %w", err)
	}
	var job domain.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job metadata: %w", err)
	}
	return &job, nil
}

// ResourceBaseName returns the persisted base name, falling back to the job
// id itself when metadata is missing so path resolution never fails outright.
func (n *Namer) ResourceBaseName(jobID string) string {
	job, err := n.Metadata(jobID)
	if err != nil || strings.TrimSpace(job.ResourceBaseName) == "" {
		return jobID
	}
	return job.ResourceBaseName
}

// Path maps a job id and artifact kind to its on-disk location. The
// background image keeps a fixed name: it is shared, overwritable input
// rather than a timestamped output.
func (n *Namer) Path(jobID string, kind Kind) string {
	if kind == KindBackgroundImage {
		return filepath.Join(n.JobDir(jobID), backgroundImageFileName)
	}

	base := n.ResourceBaseName(jobID)
	ext := ""
	switch kind {
	case KindSourceAudio:
		ext = n.defaultAudioExt
		if job, err := n.Metadata(jobID); err == nil && job.AudioExtension != "" {
			ext = job.AudioExtension
		}
	case KindRenderedVideo:
		ext = ".mp4"
	case KindTranscriptJSON:
		ext = ".json"
	case KindSubtitlesVTT:
		ext = ".vtt"
	}
	return filepath.Join(n.JobDir(jobID), base+ext)
}

// AudioExtension normalizes the extension of an uploaded filename, applying
// the configured default when the name carries none.
func (n *Namer) AudioExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || ext == "." {
		return n.defaultAudioExt
	}
	return ext
}

// SanitizeBaseName reduces a filename stem to a bounded [A-Za-z0-9_-] string.
// Runs of any other characters collapse to a single underscore; an empty
// result falls back to a fixed literal.
func SanitizeBaseName(name string) string {
	var builder strings.Builder
	lastWasSeparator := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			builder.WriteRune(r)
			lastWasSeparator = false
		default:
			if !lastWasSeparator {
				builder.WriteByte('_')
			}
			lastWasSeparator = true
		}
	}

	sanitized := strings.Trim(builder.String(), "_-")
	if len(sanitized) > maxBaseNameLength {
		sanitized = strings.Trim(sanitized[:maxBaseNameLength], "_-")
	}
	if sanitized == "" {
		return fallbackBaseName
	}
	return sanitized
}

func stem(filename string) string {
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
