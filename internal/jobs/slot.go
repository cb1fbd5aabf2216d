package jobs

// Slot is a capacity-1 semaphore guarding the single transcode job.
type Slot struct {
	ch chan struct{}
}

// NewSlot creates a free slot.
func NewSlot() *Slot {
	return &Slot{ch: make(chan struct{}, 1)}
}

// TryAcquire takes the slot without blocking. It reports false when the slot
// is already held.
func (s *Slot) TryAcquire() bool {
	select {
	case s.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the slot. Releasing a free slot is a no-op.
func (s *Slot) Release() {
	select {
	case <-s.ch:
	default:
	}
}

// Held reports whether the slot is currently taken.
func (s *Slot) Held() bool {
	return len(s.ch) == 1
}
