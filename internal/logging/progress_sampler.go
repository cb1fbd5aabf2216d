package logging

import "strings"

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when the job or the percentage bucket changes.
type ProgressSampler struct {
	bucketSize float64
	lastJob    string
	lastBucket int
}

// NewProgressSampler emits when the percent crosses bucket boundaries
// (default 10%) or the job changes.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress update should be logged.
func (s *ProgressSampler) ShouldLog(jobID string, percent float64) bool {
	if s == nil {
		return true
	}
	jobID = strings.TrimSpace(jobID)
	emit := false
	if jobID != s.lastJob {
		s.lastJob = jobID
		s.lastBucket = -1
		emit = true
	}
	if percent >= 0 {
		bucket := int(percent / s.bucketSize)
		if percent >= 100 {
			bucket = int(100 / s.bucketSize)
		}
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastJob = ""
	s.lastBucket = -1
}
