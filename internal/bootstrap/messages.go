package bootstrap

import (
	"errors"
	"fmt"

	"screencap/internal/artifact"
	"screencap/internal/capture"
	"screencap/internal/device"
	"screencap/internal/export"
	"screencap/internal/jobs"
	"screencap/internal/profile"
	"screencap/internal/transcode"
)

const webmFallback = "Download the WebM original instead."

// UserMessage turns an error into the text shown to the user. Nothing is
// retried on the user's behalf; the message says what they can do.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var acqErr *device.AcquisitionError
	var transitionErr *capture.TransitionError
	var transcodeErr *transcode.Error

	switch {
	case errors.As(err, &acqErr) && acqErr.Device != "display":
		return fmt.Sprintf("The %s is unavailable, recording continues without it.", acqErr.Device)
	case errors.Is(err, device.ErrPermissionDenied):
		return "Screen capture permission was denied. Allow screen recording and try again."
	case errors.Is(err, device.ErrNotSupported):
		return "Screen capture is not supported in this desktop session."
	case errors.Is(err, device.ErrUnavailable):
		return "No screen is available to record."
	case errors.As(err, &transitionErr) && transitionErr.Event == capture.EventStart:
		return "A recording is already in progress."
	case errors.Is(err, capture.ErrInvalidState):
		return "That action is not available right now."
	case errors.Is(err, capture.ErrEmptyRecording):
		return "The recording produced no video data. Please record again."
	case errors.Is(err, capture.ErrCancelled):
		return "Recording was cancelled."
	case errors.Is(err, jobs.ErrJobAlreadyRunning):
		return "Another conversion is running. Wait for it to finish."
	case errors.Is(err, transcode.ErrEncoderUnavailable):
		return "The MP4 converter could not be loaded. " + webmFallback
	case errors.As(err, &transcodeErr):
		return fmt.Sprintf("MP4 conversion failed while %s. %s", transcodeErr.Stage, webmFallback)
	case errors.Is(err, export.ErrExceedsMaxDuration):
		return "This recording is too long to convert with the current profile. " + webmFallback
	case errors.Is(err, export.ErrUnknownFormat):
		return "Choose WebM or MP4."
	case errors.Is(err, artifact.ErrNotFound):
		return "That recording no longer exists."
	case errors.Is(err, profile.ErrUnknownProfile):
		return "Unknown quality profile."
	case errors.Is(err, ErrNoPendingRecording):
		return "There is no finished recording waiting to be saved."
	default:
		return err.Error()
	}
}

// Hint returns a follow-up suggestion for err, or "".
func Hint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, transcode.ErrEncoderUnavailable),
		errors.Is(err, export.ErrExceedsMaxDuration):
		return "webm"
	}
	var transcodeErr *transcode.Error
	if errors.As(err, &transcodeErr) && transcodeErr.Fallback != "" {
		return string(transcodeErr.Fallback)
	}
	var acqErr *device.AcquisitionError
	if errors.As(err, &acqErr) && errors.Is(err, device.ErrPermissionDenied) {
		return "permissions"
	}
	return ""
}
