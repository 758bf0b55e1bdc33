package neuron

import (
	"math"

	"github.com/pkg/errors"

	"github.com/sarchlab/neurosim/sim"
)

// Field layout of CompartmentClass.
const (
	CompartmentVm sim.FieldIndex = iota
	CompartmentCm
	CompartmentEm
	CompartmentIm
	CompartmentInject
	CompartmentInitVm
	CompartmentRm
	CompartmentRa
	CompartmentDiameter
	CompartmentLength
)

// CompartmentClass is an isopotential patch of membrane. Currents from
// channels arrive through the "channel" port as (Gk, Ek) pairs and external
// currents through "injectMsg". Both are summed over a tick and consumed by
// the next process phase.
var CompartmentClass = sim.DefineClass(sim.Class{
	Name: "Compartment",
	Doc:  "Isopotential membrane patch integrated with exponential Euler.",
	Fields: []sim.FieldInfo{
		{Name: "Vm", Default: -65, Doc: "membrane potential (mV)"},
		{Name: "Cm", Default: 1, Doc: "membrane capacitance (uF)"},
		{Name: "Em", Default: -65, Doc: "leak reversal potential (mV)"},
		{Name: "Im", ReadOnly: true, Doc: "membrane current (uA)"},
		{Name: "inject", Doc: "constant injected current (uA)"},
		{Name: "initVm", Default: -65, Doc: "Vm after reinit (mV)"},
		{Name: "Rm", Default: 1, Doc: "membrane resistance (kOhm)"},
		{Name: "Ra", Default: 1, Doc: "axial resistance (kOhm)"},
		{Name: "diameter", Doc: "(um)"},
		{Name: "length", Doc: "(um)"},
	},
	Ports: []sim.PortInfo{
		{Name: "VmOut", Dir: sim.Src, Mode: sim.Push, Arity: 1},
		{
			Name: "get_Vm", Dir: sim.Dest, Mode: sim.Pull, Arity: 1,
			Value: func(o *sim.Object) float64 { return o.Get(CompartmentVm) },
		},
		{
			Name: "get_Im", Dir: sim.Dest, Mode: sim.Pull, Arity: 1,
			Value: func(o *sim.Object) float64 { return o.Get(CompartmentIm) },
		},
		{
			Name: "injectMsg", Dir: sim.Dest, Mode: sim.Push, Arity: 1,
			Input: compartmentInject,
		},
		{
			Name: "channel", Dir: sim.Dest, Mode: sim.Push, Arity: 2,
			Input: compartmentChannel,
		},
	},
	Phases: []sim.Phase{
		{Name: "init", Category: sim.InitPhase, Run: compartmentReinit},
		{
			Name:     "process",
			Category: sim.ProcessPhase,
			Run:      compartmentProcess,
			Reinit:   compartmentReinit,
		},
	},
	New: func(*sim.Object) any { return &compartment{} },
})

// compartment accumulates what arrives between two process phases.
type compartment struct {
	sumGk     float64
	sumGkEk   float64
	sumInject float64

	saved [3]float64
}

func (c *compartment) Commit() {
	c.saved = [3]float64{c.sumGk, c.sumGkEk, c.sumInject}
}

func (c *compartment) Discard() {
	c.sumGk, c.sumGkEk, c.sumInject = c.saved[0], c.saved[1], c.saved[2]
}

func (c *compartment) clear() {
	c.sumGk, c.sumGkEk, c.sumInject = 0, 0, 0
}

func compartmentInject(o *sim.Object, values []float64) error {
	o.Behavior().(*compartment).sumInject += values[0]
	return nil
}

func compartmentChannel(o *sim.Object, values []float64) error {
	c := o.Behavior().(*compartment)
	gk, ek := values[0], values[1]
	c.sumGk += gk
	c.sumGkEk += gk * ek

	return nil
}

func compartmentReinit(o *sim.Object, _ *sim.ProcInfo) error {
	o.Behavior().(*compartment).clear()
	o.Set(CompartmentVm, o.Get(CompartmentInitVm))
	o.Set(CompartmentIm, 0)

	return o.Send("VmOut", o.Get(CompartmentVm))
}

func compartmentProcess(o *sim.Object, p *sim.ProcInfo) error {
	c := o.Behavior().(*compartment)

	cm := o.Get(CompartmentCm)
	rm := o.Get(CompartmentRm)
	if cm <= 0 || rm <= 0 {
		return errors.Errorf("Cm and Rm must be positive, got Cm=%g Rm=%g", cm, rm)
	}

	a := o.Get(CompartmentEm)/rm + c.sumGkEk + o.Get(CompartmentInject) + c.sumInject
	b := 1/rm + c.sumGk

	vm := o.Get(CompartmentVm)
	decay := math.Exp(-b * float64(p.Dt) / cm)
	vm = vm*decay + a/b*(1-decay)

	if math.IsNaN(vm) || math.IsInf(vm, 0) {
		return errors.New("membrane potential diverged")
	}

	o.Set(CompartmentVm, vm)
	o.Set(CompartmentIm, (o.Get(CompartmentEm)-vm)/rm+c.sumGkEk-c.sumGk*vm)
	c.clear()

	return o.Send("VmOut", vm)
}
