package executor

import (
	"golang.org/x/time/rate"
)

// StepRateLimiter is a token-bucket implementation of the step dispatch
// rate limit behind ctx.CanExecuteStep. It is deliberately single-process:
// the executor is cooperative and single-threaded per task, so no
// cluster-coordination layer is needed.
type StepRateLimiter struct {
	limiter *rate.Limiter
}

// NewStepRateLimiter constructs a limiter allowing burst immediate steps
// and refilling at stepsPerSecond thereafter.
func NewStepRateLimiter(stepsPerSecond float64, burst int) *StepRateLimiter {
	return &StepRateLimiter{limiter: rate.NewLimiter(rate.Limit(stepsPerSecond), burst)}
}

// Allow reports whether a step dispatch may proceed right now, consuming a
// token if so. A Context implementation's CanExecuteStep typically delegates
// directly to this.
func (s *StepRateLimiter) Allow() bool {
	return s.limiter.Allow()
}

// SetLimit adjusts the refill rate at runtime (e.g. when a supervising
// process throttles down under load).
func (s *StepRateLimiter) SetLimit(stepsPerSecond float64) {
	s.limiter.SetLimit(rate.Limit(stepsPerSecond))
}
