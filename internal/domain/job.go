package domain

import "time"

type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)

type JobStage string

const (
	JobStageSaving       JobStage = "saving"
	JobStageTranscribing JobStage = "transcribing"
	JobStagePackaging    JobStage = "packaging"
	JobStageRendering    JobStage = "rendering"
	JobStageDone         JobStage = "done"
	JobStageError        JobStage = "error"
)

// Job is the immutable metadata written once when a job is accepted.
// Artifact paths are derived from it, never recomputed ad hoc.
type Job struct {
	ID               string    `json:"job_id"`
	OriginalFilename string    `json:"original_filename"`
	ResourceBaseName string    `json:"resource_base_name"`
	AudioExtension   string    `json:"audio_extension"`
	CreatedAt        time.Time `json:"created_at"`
}

// Progress is the mutable status attached 1:1 to a job id.
type Progress struct {
	State     JobState  `json:"state"`
	Stage     JobStage  `json:"stage"`
	Percent   int       `json:"percent"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
}

// TranscriptSegment is one timestamped span of recognized speech.
type TranscriptSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the on-disk JSON artifact shape.
type Transcript struct {
	Version  string              `json:"version"`
	Segments []TranscriptSegment `json:"segments"`
}

// QueueMessage is the transport format sent to queue backends. Inputs are
// captured by value at submission time so the worker never touches request state.
type QueueMessage struct {
	JobID       string    `json:"job_id"`
	AudioPath   string    `json:"audio_path"`
	ImagePath   string    `json:"image_path,omitempty"`
	Attempt     int       `json:"attempt"`
	RequestedAt time.Time `json:"requested_at"`
}
