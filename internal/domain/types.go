package domain

// JobStatus tracks the lifecycle of the single transcode job.
type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// SessionState is the externally visible state of a capture session.
type SessionState string

const (
	SessionIdle      SessionState = "idle"
	SessionAcquiring SessionState = "acquiring"
	SessionRecording SessionState = "recording"
	SessionPaused    SessionState = "paused"
	SessionStopping  SessionState = "stopping"
	SessionFailed    SessionState = "failed"
)

// ExportFormat is a delivery format offered for a saved recording.
type ExportFormat string

const (
	FormatWebM ExportFormat = "webm"
	FormatMP4  ExportFormat = "mp4"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	IncludeMic         bool      `json:"includeMic"`
	IncludeSystemAudio bool      `json:"includeSystemAudio"`
	ActiveProfile      ProfileID `json:"activeProfile"`
	ExportDir          string    `json:"exportDir"`
	LogLevel           string    `json:"logLevel,omitempty"`
}

// Job stores the current transcode job identity, lifecycle status and progress.
type Job struct {
	ID         string       `json:"id"`
	ArtifactID string       `json:"artifactId,omitempty"`
	Format     ExportFormat `json:"format,omitempty"`
	Status     JobStatus    `json:"status"`
	Progress   float64      `json:"progress"`
}
