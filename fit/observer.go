package fit

import "time"

// Observer receives fit lifecycle events. Implementations must be safe for
// use by sequential fits; calls arrive on the fitting goroutine.
type Observer interface {
	// AttemptFinished is called after every minimizer execution.
	AttemptFinished(strategy string, attempt int, res *Result)
	// BoundsAdjusted is called with the changes applied before a retry.
	BoundsAdjusted(strategy string, adjustments []Adjustment)
	// FitFinished is called once per strategy execution that produced a
	// result.
	FitFinished(strategy string, res *Result, elapsed time.Duration)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) AttemptFinished(string, int, *Result)       {}
func (NopObserver) BoundsAdjusted(string, []Adjustment)        {}
func (NopObserver) FitFinished(string, *Result, time.Duration) {}
