package flow

import (
	"fmt"
	"sync"
)

// StepLimiter enforces a maximum number of model turns per generation.
type StepLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewStepLimiter creates a new limiter. If max <= 0, unlimited turns are allowed.
func NewStepLimiter(max int) *StepLimiter {
	return &StepLimiter{max: max}
}

// Increment increases the turn counter and returns an error if the limit is exceeded.
func (l *StepLimiter) Increment() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	if l.max > 0 && l.count > l.max {
		return fmt.Errorf("exceeded max steps: %d", l.max)
	}

	return nil
}

// Count returns the number of turns started.
func (l *StepLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Remaining returns how many turns are left, or -1 when unlimited.
func (l *StepLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max <= 0 {
		return -1
	}

	return l.max - l.count
}
