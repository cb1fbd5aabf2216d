package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"screencap/internal/device"
	"screencap/internal/domain"
)

func TestObserverAcquisitionFailureByDevice(t *testing.T) {
	o := NewObserver()
	before := testutil.ToFloat64(AcquisitionFailures.WithLabelValues("microphone"))

	o.AcquisitionFailed(&device.AcquisitionError{Device: "microphone", Err: device.ErrPermissionDenied})
	o.AcquisitionFailed(errors.New("not an acquisition error"))

	if got := testutil.ToFloat64(AcquisitionFailures.WithLabelValues("microphone")); got != before+1 {
		t.Fatalf("microphone failures = %v, want %v", got, before+1)
	}
}

func TestObserverJobUpdates(t *testing.T) {
	o := NewObserver()
	before := testutil.ToFloat64(TranscodeJobs.WithLabelValues("succeeded"))

	o.JobUpdated(domain.Job{Status: domain.JobStatusRunning, Progress: 42}, false)
	if got := testutil.ToFloat64(TranscodeProgress); got != 42 {
		t.Fatalf("progress gauge = %v, want 42", got)
	}

	o.JobUpdated(domain.Job{Status: domain.JobStatusSucceeded, Progress: 100}, true)
	if got := testutil.ToFloat64(TranscodeProgress); got != 0 {
		t.Fatalf("progress gauge = %v, want 0 after finish", got)
	}
	if got := testutil.ToFloat64(TranscodeJobs.WithLabelValues("succeeded")); got != before+1 {
		t.Fatalf("succeeded jobs = %v, want %v", got, before+1)
	}
}

func TestObserverLibraryGauges(t *testing.T) {
	NewObserver().Library(3, 4096)
	if got := testutil.ToFloat64(ArtifactsStored); got != 3 {
		t.Fatalf("artifacts = %v, want 3", got)
	}
	if got := testutil.ToFloat64(ArtifactBytes); got != 4096 {
		t.Fatalf("bytes = %v, want 4096", got)
	}
}

func TestObserverSessionFinished(t *testing.T) {
	before := testutil.ToFloat64(SessionsFinished.WithLabelValues("succeeded"))
	NewObserver().SessionFinished(12)
	if got := testutil.ToFloat64(SessionsFinished.WithLabelValues("succeeded")); got != before+1 {
		t.Fatalf("finished = %v, want %v", got, before+1)
	}
}
