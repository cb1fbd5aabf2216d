package transcode

import (
	"errors"
	"fmt"

	"screencap/internal/domain"
)

var (
	// ErrEncoderUnavailable is returned when the encoder runtime cannot load.
	ErrEncoderUnavailable = errors.New("encoder unavailable")
	// ErrNoOutput is returned when the encoder exits cleanly without output.
	ErrNoOutput = errors.New("encoder produced no output")
	// ErrUnsupportedFormat is returned for targets the encoder does not produce.
	ErrUnsupportedFormat = errors.New("unsupported transcode format")
)

// Pipeline stages reported in Error.Stage.
const (
	StageLoad    = "loading"
	StageWrite   = "writing"
	StageEncode  = "encoding"
	StageRead    = "reading"
	StageCleanup = "cleanup"
)

// CommandLog captures one encoder invocation.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stderr   string   `json:"stderr"`
}

// Error is a stage-aware transcode failure. The original recording is always
// still usable; Fallback names the format to offer instead.
type Error struct {
	Stage      string              `json:"stage"`
	Message    string              `json:"message"`
	CommandLog CommandLog          `json:"commandLog"`
	Fallback   domain.ExportFormat `json:"fallback"`
	Err        error               `json:"-"`
}

// Error formats transcode failures for logs and UI.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
