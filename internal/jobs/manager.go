package jobs

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"screencap/internal/domain"
)

// ErrJobAlreadyRunning is returned when starting a second active job.
var ErrJobAlreadyRunning = errors.New("job already running")

// ErrNoRunningJob is returned when updating a job that is not running.
var ErrNoRunningJob = errors.New("no running job")

// Manager tracks the single allowed active job, its status and progress.
type Manager struct {
	mu      sync.RWMutex
	slot    *Slot
	current domain.Job
}

// NewManager creates a manager in idle state.
func NewManager() *Manager {
	return &Manager{
		slot: NewSlot(),
		current: domain.Job{
			Status: domain.JobStatusIdle,
		},
	}
}

// Start takes the job slot and moves a new job to running.
func (m *Manager) Start(jobID, artifactID string, format domain.ExportFormat) error {
	if !m.slot.TryAcquire() {
		return ErrJobAlreadyRunning
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !isValidTransition(m.current.Status, domain.JobStatusRunning) {
		m.slot.Release()
		return fmt.Errorf("invalid transition: %s -> %s", m.current.Status, domain.JobStatusRunning)
	}
	m.current = domain.Job{
		ID:         jobID,
		ArtifactID: artifactID,
		Format:     format,
		Status:     domain.JobStatusRunning,
	}
	return nil
}

// Advance raises the running job's progress. Values are clamped to 0..100
// and lower values than the current one are ignored. It returns the
// published progress and whether it changed.
func (m *Manager) Advance(jobID string, pct float64) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID != jobID || m.current.Status != domain.JobStatusRunning {
		return m.current.Progress, false
	}
	pct = Clamp(pct)
	if pct <= m.current.Progress {
		return m.current.Progress, false
	}
	m.current.Progress = pct
	return pct, true
}

// Finish records the terminal status, resets progress to 0 and frees the
// slot. A successful job is reported at exactly 100 in the returned
// snapshot before the reset.
func (m *Manager) Finish(jobID string, status domain.JobStatus) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.ID != jobID || !isRunning(m.current.Status) {
		return m.current, ErrNoRunningJob
	}
	if !isValidTransition(m.current.Status, status) {
		return m.current, fmt.Errorf("invalid transition: %s -> %s", m.current.Status, status)
	}

	final := m.current
	final.Status = status
	if status == domain.JobStatusSucceeded {
		final.Progress = 100
	}

	m.current.Status = status
	m.current.Progress = 0
	m.slot.Release()
	return final, nil
}

// Current returns a snapshot of the current job.
func (m *Manager) Current() domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reset clears job metadata and returns manager to idle. A running job is
// left untouched.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if isRunning(m.current.Status) {
		return
	}
	m.current = domain.Job{Status: domain.JobStatusIdle}
}

// IsRunning reports whether a job currently holds the slot.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return isRunning(m.current.Status)
}

// Slot exposes the single-job lock for inspection.
func (m *Manager) Slot() *Slot {
	return m.slot
}

// Clamp bounds a percentage to 0..100.
func Clamp(pct float64) float64 {
	switch {
	case math.IsNaN(pct), pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}

// isRunning checks if a status represents active execution.
func isRunning(status domain.JobStatus) bool {
	return status == domain.JobStatusRunning
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusIdle:
		return to == domain.JobStatusRunning
	case domain.JobStatusRunning:
		return to == domain.JobStatusSucceeded || to == domain.JobStatusFailed
	case domain.JobStatusSucceeded, domain.JobStatusFailed:
		return to == domain.JobStatusRunning || to == domain.JobStatusIdle
	default:
		return false
	}
}
