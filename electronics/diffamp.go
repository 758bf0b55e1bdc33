package electronics

import (
	"math"

	"github.com/sarchlab/neurosim/sim"
)

// Field layout of DiffAmpClass.
const (
	DiffAmpGain sim.FieldIndex = iota
	DiffAmpSaturation
	DiffAmpOutput
	DiffAmpPlus
	DiffAmpMinus
)

// DiffAmpClass amplifies the difference between the sums of its plus and
// minus inputs, saturating at +/- saturation.
var DiffAmpClass = sim.DefineClass(sim.Class{
	Name: "DiffAmp",
	Doc:  "Saturating differential amplifier.",
	Fields: []sim.FieldInfo{
		{Name: "gain", Default: 1},
		{Name: "saturation", Default: math.MaxFloat64},
		{Name: "output", ReadOnly: true},
		{Name: "plus", ReadOnly: true},
		{Name: "minus", ReadOnly: true},
	},
	Ports: []sim.PortInfo{
		{Name: "output", Dir: sim.Src, Mode: sim.Push, Arity: 1},
		{
			Name: "plusIn", Dir: sim.Dest, Mode: sim.Push, Arity: 1,
			Input: func(o *sim.Object, values []float64) error {
				o.Set(DiffAmpPlus, o.Get(DiffAmpPlus)+values[0])
				return nil
			},
		},
		{
			Name: "minusIn", Dir: sim.Dest, Mode: sim.Push, Arity: 1,
			Input: func(o *sim.Object, values []float64) error {
				o.Set(DiffAmpMinus, o.Get(DiffAmpMinus)+values[0])
				return nil
			},
		},
		{
			Name: "get_output", Dir: sim.Dest, Mode: sim.Pull, Arity: 1,
			Value: func(o *sim.Object) float64 { return o.Get(DiffAmpOutput) },
		},
	},
	Phases: []sim.Phase{
		{
			Name:     "process",
			Category: sim.ProcessPhase,
			Run:      diffAmpProcess,
			Reinit:   diffAmpReinit,
		},
	},
})

func diffAmpReinit(o *sim.Object, _ *sim.ProcInfo) error {
	o.Set(DiffAmpOutput, 0)
	o.Set(DiffAmpPlus, 0)
	o.Set(DiffAmpMinus, 0)

	return nil
}

func diffAmpProcess(o *sim.Object, _ *sim.ProcInfo) error {
	out := o.Get(DiffAmpGain) * (o.Get(DiffAmpPlus) - o.Get(DiffAmpMinus))
	out = saturate(out, o.Get(DiffAmpSaturation))

	o.Set(DiffAmpOutput, out)
	o.Set(DiffAmpPlus, 0)
	o.Set(DiffAmpMinus, 0)

	return o.Send("output", out)
}

func saturate(v, limit float64) float64 {
	limit = math.Abs(limit)
	return math.Max(-limit, math.Min(limit, v))
}
