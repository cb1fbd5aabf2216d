package metrics

import (
	"errors"

	"screencap/internal/device"
	"screencap/internal/domain"
)

// Observer records app-level events into the collectors declared in
// metrics.go.
type Observer struct{}

// NewObserver creates an observer.
func NewObserver() *Observer {
	return &Observer{}
}

// SessionStarted counts a recording attempt.
func (o *Observer) SessionStarted() {
	SessionsStarted.Inc()
}

// SessionFinished records a successful recording and its duration.
func (o *Observer) SessionFinished(durationSeconds int) {
	SessionsFinished.WithLabelValues("succeeded").Inc()
	RecordedSeconds.Observe(float64(durationSeconds))
}

// SessionFailed records a failed attempt, attributing acquisition errors to
// their device.
func (o *Observer) SessionFailed(err error) {
	SessionsFinished.WithLabelValues("failed").Inc()
	o.AcquisitionFailed(err)
}

// SessionCancelled records a stop during acquisition.
func (o *Observer) SessionCancelled() {
	SessionsFinished.WithLabelValues("cancelled").Inc()
}

// AcquisitionFailed counts device failures, including degraded audio.
func (o *Observer) AcquisitionFailed(err error) {
	var acqErr *device.AcquisitionError
	if errors.As(err, &acqErr) {
		AcquisitionFailures.WithLabelValues(acqErr.Device).Inc()
	}
}

// JobUpdated tracks transcode progress and terminal status.
func (o *Observer) JobUpdated(job domain.Job, final bool) {
	if !final {
		TranscodeProgress.Set(job.Progress)
		return
	}
	TranscodeJobs.WithLabelValues(string(job.Status)).Inc()
	TranscodeProgress.Set(0)
}

// JobRejected counts a submission refused by the single-job guard.
func (o *Observer) JobRejected() {
	TranscodeRejected.Inc()
}

// Library sets the in-memory library gauges.
func (o *Observer) Library(count, bytes int) {
	ArtifactsStored.Set(float64(count))
	ArtifactBytes.Set(float64(bytes))
}
