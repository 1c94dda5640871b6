package logging

import (
	"math"
	"strings"
	"sync"
)

const defaultProgressStep = 5

// ProgressSampler thins out progress logging. A phase is logged the first time
// it is seen, then again each time its percent reaches a new step. Safe for
// concurrent use.
type ProgressSampler struct {
	mu    sync.Mutex
	step  float64
	phase string
	mark  float64
	done  bool
}

// NewProgressSampler returns a sampler that logs every step percent.
// Non-positive steps use 5%.
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = defaultProgressStep
	}
	return &ProgressSampler{step: step, mark: -1}
}

// Allow reports whether the update should be logged. A nil sampler allows
// everything. Negative percents only count toward phase changes.
func (s *ProgressSampler) Allow(phase string, percent float64) bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	phase = strings.TrimSpace(phase)
	if phase != s.phase {
		s.phase = phase
		s.mark = -1
		s.done = false
		if percent < 0 {
			return true
		}
	}
	if percent < 0 || s.done {
		return false
	}
	if percent >= 100 {
		s.done = true
		s.mark = 100
		return true
	}
	mark := math.Floor(percent/s.step) * s.step
	if mark <= s.mark {
		return false
	}
	s.mark = mark
	return true
}

// Reset forgets the current phase so the next update is logged.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.phase, s.mark, s.done = "", -1, false
	s.mu.Unlock()
}
