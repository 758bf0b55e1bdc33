package electronics

import (
	"math"

	"github.com/pkg/errors"

	"github.com/sarchlab/neurosim/sim"
)

// Field layout of PIDControllerClass.
const (
	PIDGain sim.FieldIndex = iota
	PIDTauI
	PIDTauD
	PIDSaturation
	PIDCommand
	PIDSensed
	PIDOutput
	PIDError
	PIDIntegral
	PIDDerivative
	PIDPrevError
)

// PIDControllerClass drives its output to make the sensed value follow the
// command:
//
//	output = gain * (e + integral(e)/tauI + tauD * de/dt)
//
// A tauI of zero disables the integral term. While the output is saturated
// the integral does not grow.
var PIDControllerClass = sim.DefineClass(sim.Class{
	Name: "PIDController",
	Doc:  "Proportional-integral-derivative feedback controller.",
	Fields: []sim.FieldInfo{
		{Name: "gain", Default: 1},
		{Name: "tauI"},
		{Name: "tauD"},
		{Name: "saturation", Default: math.MaxFloat64},
		{Name: "command"},
		{Name: "sensed"},
		{Name: "output", ReadOnly: true},
		{Name: "error", ReadOnly: true},
		{Name: "integral", ReadOnly: true},
		{Name: "derivative", ReadOnly: true},
		{Name: "prevError", ReadOnly: true},
	},
	Ports: []sim.PortInfo{
		{Name: "output", Dir: sim.Src, Mode: sim.Push, Arity: 1},
		{
			Name: "commandIn", Dir: sim.Dest, Mode: sim.Push, Arity: 1,
			Input: func(o *sim.Object, values []float64) error {
				o.Set(PIDCommand, values[0])
				return nil
			},
		},
		{
			Name: "sensedIn", Dir: sim.Dest, Mode: sim.Push, Arity: 1,
			Input: func(o *sim.Object, values []float64) error {
				o.Set(PIDSensed, values[0])
				return nil
			},
		},
		{
			Name: "get_output", Dir: sim.Dest, Mode: sim.Pull, Arity: 1,
			Value: func(o *sim.Object) float64 { return o.Get(PIDOutput) },
		},
	},
	Phases: []sim.Phase{
		{
			Name:     "process",
			Category: sim.ProcessPhase,
			Run:      pidProcess,
			Reinit:   pidReinit,
		},
	},
})

func pidReinit(o *sim.Object, _ *sim.ProcInfo) error {
	for _, f := range []sim.FieldIndex{PIDOutput, PIDError, PIDIntegral, PIDDerivative, PIDPrevError} {
		o.Set(f, 0)
	}

	return nil
}

func pidProcess(o *sim.Object, p *sim.ProcInfo) error {
	dt := float64(p.Dt)
	if dt <= 0 {
		return errors.Errorf("non-positive time step %g", dt)
	}

	prev := o.Get(PIDError)
	e := o.Get(PIDCommand) - o.Get(PIDSensed)
	integral := o.Get(PIDIntegral) + 0.5*(e+prev)*dt
	derivative := (e - prev) / dt

	out := e + o.Get(PIDTauD)*derivative
	if tauI := o.Get(PIDTauI); tauI > 0 {
		out += integral / tauI
	}

	out *= o.Get(PIDGain)

	limit := math.Abs(o.Get(PIDSaturation))
	if math.Abs(out) > limit {
		out = saturate(out, limit)
		integral = o.Get(PIDIntegral)
	}

	o.Set(PIDPrevError, prev)
	o.Set(PIDError, e)
	o.Set(PIDIntegral, integral)
	o.Set(PIDDerivative, derivative)
	o.Set(PIDOutput, out)

	return o.Send("output", out)
}
