package timing

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/sarchlab/neurosim/sim"
)

// ErrRunning is returned when the configuration is touched while a run is in
// progress.
var ErrRunning = errors.New("timing: scheduler is running")

// ErrNotReinitialized is returned by Start when the schedule has not been
// reinitialized since the last configuration change.
var ErrNotReinitialized = errors.New("timing: scheduler must be reinitialized before starting")

// ErrNoClocks is returned when no clock has a period.
var ErrNoClocks = errors.New("timing: no clock is configured")

// ErrStopped is returned by Start when Stop interrupts a run.
var ErrStopped = errors.New("timing: run stopped")

// InvalidPeriodError reports a clock period that is not a positive finite
// number.
type InvalidPeriodError struct {
	Clock  int
	Period sim.VTime
}

func (e *InvalidPeriodError) Error() string {
	return fmt.Sprintf("timing: clock %d cannot have period %g", e.Clock, e.Period)
}

// UnknownClockError reports a clock index out of range, or a clock that is
// used before it has a period.
type UnknownClockError struct {
	Clock int
}

func (e *UnknownClockError) Error() string {
	return fmt.Sprintf("timing: clock %d is not configured", e.Clock)
}

// UnknownPhaseError reports a binding to a phase the matched object's class
// does not have.
type UnknownPhaseError struct {
	Phase string
	Class string
	Path  string
}

func (e *UnknownPhaseError) Error() string {
	return fmt.Sprintf("timing: %s (class %s) has no phase %q", e.Path, e.Class, e.Phase)
}

// IncompatiblePeriodError reports a clock whose period is not an integer
// multiple of the finest configured period.
type IncompatiblePeriodError struct {
	Clock  int
	Period sim.VTime
	Finest sim.VTime
}

func (e *IncompatiblePeriodError) Error() string {
	return fmt.Sprintf(
		"timing: period %g of clock %d is not a multiple of the finest period %g",
		e.Period, e.Clock, e.Finest)
}

// PhaseError reports a phase handler that failed. The run that hit it is
// halted and the tick in which it happened is rolled back.
type PhaseError struct {
	Path  string
	Time  sim.VTime
	Clock int
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("timing: %s phase of %s failed at t=%g on clock %d: %v",
		e.Phase, e.Path, e.Time, e.Clock, e.Err)
}

// Unwrap returns the handler error.
func (e *PhaseError) Unwrap() error {
	return e.Err
}
