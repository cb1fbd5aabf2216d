// Package transcode converts finished recordings to MP4 through an external
// encoder runtime, reporting normalized progress from its log stream.
package transcode

import (
	"context"
	"fmt"
	"strconv"

	"screencap/internal/domain"
)

// MimeMP4 is the content type of transcode output.
const MimeMP4 = "video/mp4"

// Request contains one conversion and its callbacks.
type Request struct {
	JobID      string
	Input      []byte
	Duration   float64 // seconds, as frozen at stop
	Export     domain.ExportSettings
	Extractor  ProgressExtractor
	OnProgress func(pct float64)
	OnLog      func(line string)
}

// Output is the converted recording.
type Output struct {
	Data     []byte
	MimeType string
	Log      CommandLog
}

// Pipeline runs the write, exec, read and cleanup steps against the runtime.
type Pipeline struct {
	runtime *LazyRuntime
}

// NewPipeline constructs a pipeline over a lazily loaded runtime.
func NewPipeline(runtime *LazyRuntime) *Pipeline {
	return &Pipeline{runtime: runtime}
}

// Run performs one conversion. Scratch entries are removed on success;
// failures clean up best-effort.
func (p *Pipeline) Run(ctx context.Context, req Request) (Output, error) {
	rt, err := p.runtime.Get(ctx)
	if err != nil {
		return Output{}, &Error{
			Stage:    StageLoad,
			Message:  "encoder runtime failed to initialize",
			Fallback: domain.FormatWebM,
			Err:      err,
		}
	}

	inputName, outputName := scratchNames(req.JobID)
	if err := rt.WriteFile(inputName, req.Input); err != nil {
		return Output{}, &Error{
			Stage:    StageWrite,
			Message:  fmt.Sprintf("cannot write scratch input: %s", inputName),
			Fallback: domain.FormatWebM,
			Err:      err,
		}
	}

	extractor := req.Extractor
	if extractor == nil {
		extractor = NewFrameTimeExtractor(req.Duration, req.Export.FPS)
	}
	args := BuildArgs(inputName, outputName, req.Export)
	log, runErr := rt.Exec(ctx, args, func(line string) {
		emitLog(req.OnLog, line)
		if pct, ok := extractor.Extract(line); ok {
			emitProgress(req.OnProgress, pct)
		}
	})
	if runErr != nil {
		_ = rt.DeleteFile(inputName)
		_ = rt.DeleteFile(outputName)
		return Output{}, &Error{
			Stage:      StageEncode,
			Message:    "ffmpeg mp4 conversion failed",
			CommandLog: log,
			Fallback:   domain.FormatWebM,
			Err:        runErr,
		}
	}

	data, err := rt.ReadFile(outputName)
	if err == nil && len(data) == 0 {
		err = ErrNoOutput
	}
	if err != nil {
		_ = rt.DeleteFile(inputName)
		_ = rt.DeleteFile(outputName)
		return Output{}, &Error{
			Stage:      StageRead,
			Message:    "ffmpeg completed but output is missing",
			CommandLog: log,
			Fallback:   domain.FormatWebM,
			Err:        err,
		}
	}

	if err := rt.DeleteFile(inputName); err != nil {
		return Output{}, cleanupError(inputName, log, err)
	}
	if err := rt.DeleteFile(outputName); err != nil {
		return Output{}, cleanupError(outputName, log, err)
	}

	return Output{Data: data, MimeType: MimeMP4, Log: log}, nil
}

func cleanupError(name string, log CommandLog, err error) error {
	return &Error{
		Stage:      StageCleanup,
		Message:    fmt.Sprintf("cannot delete scratch entry: %s", name),
		CommandLog: log,
		Fallback:   domain.FormatWebM,
		Err:        err,
	}
}

// BuildArgs builds the MP4 conversion args from export settings.
func BuildArgs(inputName, outputName string, export domain.ExportSettings) []string {
	return []string{
		"-i", inputName,
		"-vf", fmt.Sprintf("scale=%d:-2,fps=%d", export.ScaleWidth, export.FPS),
		"-c:v", "libx264",
		"-preset", export.Preset,
		"-crf", strconv.Itoa(export.CRF),
		"-c:a", "aac",
		"-b:a", export.AudioBitrate,
		"-movflags", "+faststart",
		"-stats",
		outputName,
	}
}

func scratchNames(jobID string) (string, string) {
	if jobID == "" {
		return "input.webm", "output.mp4"
	}
	return "input-" + jobID + ".webm", "output-" + jobID + ".mp4"
}

// emitProgress forwards progress when callback is configured.
func emitProgress(cb func(float64), pct float64) {
	if cb != nil {
		cb(pct)
	}
}

// emitLog forwards log lines when callback is configured.
func emitLog(cb func(string), line string) {
	if cb != nil {
		cb(line)
	}
}
