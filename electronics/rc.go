package electronics

import (
	"math"

	"github.com/pkg/errors"

	"github.com/sarchlab/neurosim/sim"
)

// Field layout of RCClass.
const (
	RCR sim.FieldIndex = iota
	RCC
	RCV0
	RCInject
	RCState
)

// RCClass is a first order low-pass filter. The input current through
// "injectIn" drives the capacitor voltage towards inject*R with the time
// constant R*C.
var RCClass = sim.DefineClass(sim.Class{
	Name: "RC",
	Doc:  "Resistor-capacitor low-pass filter.",
	Fields: []sim.FieldInfo{
		{Name: "R", Default: 1},
		{Name: "C", Default: 1},
		{Name: "V0", Doc: "state after reinit"},
		{Name: "inject"},
		{Name: "state", ReadOnly: true},
	},
	Ports: []sim.PortInfo{
		{Name: "output", Dir: sim.Src, Mode: sim.Push, Arity: 1},
		{
			Name: "injectIn", Dir: sim.Dest, Mode: sim.Push, Arity: 1,
			Input: func(o *sim.Object, values []float64) error {
				o.Set(RCInject, values[0])
				return nil
			},
		},
		{
			Name: "get_state", Dir: sim.Dest, Mode: sim.Pull, Arity: 1,
			Value: func(o *sim.Object) float64 { return o.Get(RCState) },
		},
	},
	Phases: []sim.Phase{
		{
			Name:     "process",
			Category: sim.ProcessPhase,
			Run:      rcProcess,
			Reinit:   rcReinit,
		},
	},
})

func rcReinit(o *sim.Object, _ *sim.ProcInfo) error {
	o.Set(RCState, o.Get(RCV0))
	return o.Send("output", o.Get(RCState))
}

func rcProcess(o *sim.Object, p *sim.ProcInfo) error {
	tau := o.Get(RCR) * o.Get(RCC)
	if tau <= 0 {
		return errors.Errorf("time constant must be positive, got %g", tau)
	}

	target := o.Get(RCInject) * o.Get(RCR)
	state := target + (o.Get(RCState)-target)*math.Exp(-float64(p.Dt)/tau)
	o.Set(RCState, state)

	return o.Send("output", state)
}
