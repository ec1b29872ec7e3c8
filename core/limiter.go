package core

import (
	"errors"
	"fmt"
)

// ErrPlyLimitReached is returned by PlyLimiter.Record once a run has played
// its last allowed ply.
var ErrPlyLimitReached = errors.New("ply limit reached")

// PlyLimiter counts the plies of one automated run. It is not safe for
// concurrent use; the engine guards it with the match lock.
type PlyLimiter struct {
	max   int
	count int
}

// NewPlyLimiter creates a limiter allowing max plies per run. Zero means
// unlimited.
func NewPlyLimiter(max int) *PlyLimiter {
	return &PlyLimiter{max: max}
}

// Record counts an applied ply.
func (l *PlyLimiter) Record() error {
	l.count++
	if l.max > 0 && l.count >= l.max {
		return fmt.Errorf("%w: %d plies", ErrPlyLimitReached, l.max)
	}
	return nil
}

// Reset starts a new run.
func (l *PlyLimiter) Reset() { l.count = 0 }

// Count returns the plies played in the current run.
func (l *PlyLimiter) Count() int { return l.count }
