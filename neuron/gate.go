package neuron

import (
	"math"

	"github.com/pkg/errors"
)

// Rate is a voltage dependent rate constant of the generic form
//
//	(A + B*V) / (C + exp((V + D) / F))
//
// which covers the sigmoid, exponential and linoid shapes of the
// Hodgkin-Huxley gates.
type Rate struct {
	A, B, C, D, F float64
}

// singularityDelta is the step used to step around 0/0 points of linoid
// rates.
const singularityDelta = 1e-4

// At evaluates the rate at membrane potential v (mV). Removable
// singularities are resolved by averaging the neighbours.
func (r Rate) At(v float64) float64 {
	if r.F == 0 {
		return r.A + r.B*v
	}

	den := r.C + math.Exp((v+r.D)/r.F)
	if math.Abs(den) < 1e-9 {
		return (r.At(v-singularityDelta) + r.At(v+singularityDelta)) / 2
	}

	return (r.A + r.B*v) / den
}

// Gate is a first order kinetic gate driven by an opening rate Alpha and a
// closing rate Beta.
type Gate struct {
	Alpha Rate
	Beta  Rate
}

// Steady returns the steady state open fraction and time constant at v.
func (g Gate) Steady(v float64) (inf, tau float64, err error) {
	a := g.Alpha.At(v)
	b := g.Beta.At(v)

	sum := a + b
	if !(sum > 0) {
		return 0, 0, errors.Errorf("gate rates sum to %g at %g mV", sum, v)
	}

	return a / sum, 1 / sum, nil
}

// Advance integrates the gate state x over dt with exponential Euler.
func (g Gate) Advance(x, v, dt float64) (float64, error) {
	inf, tau, err := g.Steady(v)
	if err != nil {
		return x, err
	}

	return inf + (x-inf)*math.Exp(-dt/tau), nil
}

// Classic squid axon gates, in mV and ms, with the resting potential at
// -65 mV.
var (
	SquidNaM = Gate{
		Alpha: Rate{A: -4, B: -0.1, C: -1, D: 40, F: -10},
		Beta:  Rate{A: 4, B: 0, C: 0, D: 65, F: 18},
	}
	SquidNaH = Gate{
		Alpha: Rate{A: 0.07, B: 0, C: 0, D: 65, F: 20},
		Beta:  Rate{A: 1, B: 0, C: 1, D: 35, F: -10},
	}
	SquidKN = Gate{
		Alpha: Rate{A: -0.55, B: -0.01, C: -1, D: 55, F: -10},
		Beta:  Rate{A: 0.125, B: 0, C: 0, D: 65, F: 80},
	}
)
