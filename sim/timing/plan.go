package timing

import (
	"math"

	"github.com/sarchlab/neurosim/sim"
)

// A Plan maps the configured clocks onto a single tick grid. Every tick
// advances simulated time by Finest, and a clock fires on ticks that are a
// multiple of its stride.
type Plan struct {
	Finest sim.VTime

	// Strides holds, per clock index, how many ticks pass between firings.
	// Clocks without a period have a stride of 0.
	Strides []uint64
}

func newPlan(clocks []*Clock) (Plan, error) {
	plan := Plan{Strides: make([]uint64, len(clocks))}

	for _, c := range clocks {
		if c.period <= 0 {
			continue
		}

		if plan.Finest == 0 || c.period < plan.Finest {
			plan.Finest = c.period
		}
	}

	if plan.Finest == 0 {
		return Plan{}, ErrNoClocks
	}

	for _, c := range clocks {
		if c.period <= 0 {
			continue
		}

		ratio := float64(c.period / plan.Finest)
		rounded := math.Round(ratio)

		if math.Abs(ratio-rounded) > alignmentTolerance(ratio) {
			return Plan{}, &IncompatiblePeriodError{
				Clock:  c.index,
				Period: c.period,
				Finest: plan.Finest,
			}
		}

		plan.Strides[c.index] = uint64(rounded)
	}

	return plan, nil
}

func alignmentTolerance(x float64) float64 {
	return 1e-9 * math.Max(1, math.Abs(x))
}

// Due tells if the clock fires on the given 1-based tick.
func (p Plan) Due(clock int, tick uint64) bool {
	stride := p.Strides[clock]
	return stride > 0 && tick%stride == 0
}

// DueClocks lists the clocks that fire on the given tick, in index order.
func (p Plan) DueClocks(tick uint64) []int {
	var due []int

	for i := range p.Strides {
		if p.Due(i, tick) {
			due = append(due, i)
		}
	}

	return due
}

// Ticks returns how many ticks cover a duration. Durations that are a whole
// number of ticks up to floating point noise are not rounded up.
func (p Plan) Ticks(duration sim.VTime) uint64 {
	ratio := float64(duration / p.Finest)
	rounded := math.Round(ratio)

	if math.Abs(ratio-rounded) <= alignmentTolerance(ratio) {
		return uint64(rounded)
	}

	return uint64(math.Ceil(ratio))
}

// Period returns the period of a clock as the plan sees it.
func (p Plan) Period(clock int) sim.VTime {
	return sim.VTime(p.Strides[clock]) * p.Finest
}
