package executor

import (
	"math"
	"slices"
	"time"

	"luna/internal/planner"
)

type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Backoff is the delay after the given failed attempt (counted from 1):
// min(max, initial * multiplier^(attempt-1)).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if d > float64(p.MaxBackoff) || math.IsInf(d, 0) || math.IsNaN(d) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

type ExecutionPolicy struct {
	// RequireConfirmation lists actions that trigger an advisory policy
	// gate before they run.
	RequireConfirmation []planner.ActionType
	StepTimeout         time.Duration
	PlanTimeout         time.Duration
}

func DefaultExecutionPolicy() ExecutionPolicy {
	return ExecutionPolicy{
		RequireConfirmation: []planner.ActionType{planner.SystemControl},
		StepTimeout:         30 * time.Second,
		PlanTimeout:         300 * time.Second,
	}
}

func (p ExecutionPolicy) NeedsConfirmation(a planner.ActionType) bool {
	return slices.Contains(p.RequireConfirmation, a)
}
