package electronics

import (
	"fmt"
	"log"

	"github.com/sarchlab/neurosim/sim"
	"github.com/sarchlab/neurosim/sim/timing"
)

// ClampClockError reports a voltage clamp whose controller does not run on
// the finest clock.
type ClampClockError struct {
	Clamp  string
	Clock  int
	Period sim.VTime
	Finest sim.VTime
}

func (e *ClampClockError) Error() string {
	if e.Clock < 0 {
		return fmt.Sprintf("voltage clamp %s: controller is not scheduled", e.Clamp)
	}

	return fmt.Sprintf(
		"voltage clamp %s: controller runs on clock %d with period %g, "+
			"coarser than the finest period %g",
		e.Clamp, e.Clock, e.Period, e.Finest)
}

// ClockPolicy checks before each run that every voltage clamp controller is
// scheduled on the finest clock, where its gain was tuned. In strict mode a
// violation cancels the run; otherwise it is logged.
type ClockPolicy struct {
	Strict bool
	Logger *log.Logger
}

// ValidateRun implements timing.Validator.
func (p *ClockPolicy) ValidateRun(s *timing.Scheduler, plan timing.Plan) error {
	clamps, err := s.Tree().FindAll("/##", ClampCircuitClass.Name)
	if err != nil {
		return err
	}

	for _, obj := range clamps {
		c := obj.Behavior().(*ClampCircuit)
		if c.Mode() != VoltageClamp {
			continue
		}

		if problem := p.check(s, plan, c); problem != nil {
			if p.Strict {
				return problem
			}

			p.warn(problem)
		}
	}

	return nil
}

func (p *ClockPolicy) check(
	s *timing.Scheduler,
	plan timing.Plan,
	c *ClampCircuit,
) *ClampClockError {
	problem := &ClampClockError{Clamp: c.obj.Path(), Clock: -1, Finest: plan.Finest}

	for _, a := range s.Assignments(c.pid) {
		if a.Phase != "process" {
			continue
		}

		if plan.Strides[a.Clock] == 1 {
			return nil
		}

		problem.Clock = a.Clock
		problem.Period = plan.Period(a.Clock)
	}

	return problem
}

func (p *ClockPolicy) warn(problem error) {
	if p.Logger != nil {
		p.Logger.Printf("warning: %v", problem)
		return
	}

	log.Printf("warning: %v", problem)
}
