package neuron

import (
	"math"

	"github.com/sarchlab/neurosim/sim"
)

// Field layout of HHChannelClass.
const (
	ChannelGbar sim.FieldIndex = iota
	ChannelEk
	ChannelGk
	ChannelIk
	ChannelX
	ChannelY
	ChannelXpower
	ChannelYpower
	ChannelVm
)

// HHChannelClass is a Hodgkin-Huxley style conductance with up to two gates.
// It reads the membrane potential from its "Vm" port and reports (Gk, Ek)
// through "channelOut" every time it runs.
var HHChannelClass = sim.DefineClass(sim.Class{
	Name: "HHChannel",
	Doc:  "Voltage gated conductance with X and Y gates.",
	Fields: []sim.FieldInfo{
		{Name: "Gbar", Doc: "peak conductance (mS)"},
		{Name: "Ek", Doc: "reversal potential (mV)"},
		{Name: "Gk", ReadOnly: true},
		{Name: "Ik", ReadOnly: true},
		{Name: "X", Doc: "state of the X gate"},
		{Name: "Y", Doc: "state of the Y gate"},
		{Name: "Xpower"},
		{Name: "Ypower"},
		{Name: "Vm", Default: -65},
	},
	Ports: []sim.PortInfo{
		{
			Name: "Vm", Dir: sim.Dest, Mode: sim.Push, Arity: 1,
			Input: func(o *sim.Object, values []float64) error {
				o.Set(ChannelVm, values[0])
				return nil
			},
		},
		{Name: "channelOut", Dir: sim.Src, Mode: sim.Push, Arity: 2},
		{
			Name: "get_Gk", Dir: sim.Dest, Mode: sim.Pull, Arity: 1,
			Value: func(o *sim.Object) float64 { return o.Get(ChannelGk) },
		},
		{
			Name: "get_Ik", Dir: sim.Dest, Mode: sim.Pull, Arity: 1,
			Value: func(o *sim.Object) float64 { return o.Get(ChannelIk) },
		},
	},
	Phases: []sim.Phase{
		{
			Name:     "process",
			Category: sim.ProcessPhase,
			Run:      channelProcess,
			Reinit:   channelReinit,
		},
	},
	New: func(*sim.Object) any { return &Channel{} },
})

// Channel holds the gate kinetics of an HHChannel object.
type Channel struct {
	X Gate
	Y Gate
}

// ChannelOf returns the kinetics of an HHChannel object.
func ChannelOf(o *sim.Object) (*Channel, bool) {
	c, ok := o.Behavior().(*Channel)
	return c, ok
}

func channelReinit(o *sim.Object, _ *sim.ProcInfo) error {
	ch := o.Behavior().(*Channel)
	vm := o.Get(ChannelVm)

	if o.Get(ChannelXpower) > 0 {
		inf, _, err := ch.X.Steady(vm)
		if err != nil {
			return err
		}

		o.Set(ChannelX, inf)
	}

	if o.Get(ChannelYpower) > 0 {
		inf, _, err := ch.Y.Steady(vm)
		if err != nil {
			return err
		}

		o.Set(ChannelY, inf)
	}

	return channelPublish(o, vm)
}

func channelProcess(o *sim.Object, p *sim.ProcInfo) error {
	ch := o.Behavior().(*Channel)
	vm := o.Get(ChannelVm)
	dt := float64(p.Dt)

	if o.Get(ChannelXpower) > 0 {
		x, err := ch.X.Advance(o.Get(ChannelX), vm, dt)
		if err != nil {
			return err
		}

		o.Set(ChannelX, x)
	}

	if o.Get(ChannelYpower) > 0 {
		y, err := ch.Y.Advance(o.Get(ChannelY), vm, dt)
		if err != nil {
			return err
		}

		o.Set(ChannelY, y)
	}

	return channelPublish(o, vm)
}

func channelPublish(o *sim.Object, vm float64) error {
	gk := o.Get(ChannelGbar)

	if xp := o.Get(ChannelXpower); xp > 0 {
		gk *= math.Pow(o.Get(ChannelX), xp)
	}

	if yp := o.Get(ChannelYpower); yp > 0 {
		gk *= math.Pow(o.Get(ChannelY), yp)
	}

	ek := o.Get(ChannelEk)
	o.Set(ChannelGk, gk)
	o.Set(ChannelIk, gk*(ek-vm))

	return o.Send("channelOut", gk, ek)
}
