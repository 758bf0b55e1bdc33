package electronics

import (
	"math"

	"github.com/sarchlab/neurosim/sim"
)

// Field layout of PulseGenClass.
const (
	PulseBaseLevel sim.FieldIndex = iota
	PulseFirstLevel
	PulseFirstWidth
	PulseFirstDelay
	PulseSecondLevel
	PulseSecondWidth
	PulseSecondDelay
	PulseTrigMode
	PulseOutput
	PulseInput
)

// Trigger modes of a PulseGen.
const (
	FreeRun = iota
	ExtTrig
	ExtGate
)

// PulseGenClass generates a train of one or two rectangular pulses. The
// second pulse starts secondDelay after the start of the first one.
var PulseGenClass = sim.DefineClass(sim.Class{
	Name: "PulseGen",
	Doc:  "Rectangular pulse generator.",
	Fields: []sim.FieldInfo{
		{Name: "baseLevel"},
		{Name: "firstLevel"},
		{Name: "firstWidth"},
		{Name: "firstDelay"},
		{Name: "secondLevel"},
		{Name: "secondWidth"},
		{Name: "secondDelay", Default: 1e9},
		{Name: "trigMode", Doc: "0 free run, 1 external trigger, 2 external gate"},
		{Name: "output", ReadOnly: true},
		{Name: "input", ReadOnly: true},
	},
	Ports: []sim.PortInfo{
		{Name: "output", Dir: sim.Src, Mode: sim.Push, Arity: 1},
		{
			Name: "input", Dir: sim.Dest, Mode: sim.Push, Arity: 1,
			Input: func(o *sim.Object, values []float64) error {
				o.Set(PulseInput, values[0])
				return nil
			},
		},
		{
			Name: "get_output", Dir: sim.Dest, Mode: sim.Pull, Arity: 1,
			Value: func(o *sim.Object) float64 { return o.Get(PulseOutput) },
		},
	},
	Phases: []sim.Phase{
		{
			Name:     "process",
			Category: sim.ProcessPhase,
			Run:      pulseProcess,
			Reinit:   pulseReinit,
		},
	},
	New: func(*sim.Object) any { return &pulseGen{} },
})

type pulseGen struct {
	trigTime  float64
	prevInput float64

	saved [2]float64
}

func (p *pulseGen) Commit()  { p.saved = [2]float64{p.trigTime, p.prevInput} }
func (p *pulseGen) Discard() { p.trigTime, p.prevInput = p.saved[0], p.saved[1] }

func pulseReinit(o *sim.Object, _ *sim.ProcInfo) error {
	p := o.Behavior().(*pulseGen)
	p.trigTime = -1
	p.prevInput = 0
	o.Set(PulseInput, 0)
	o.Set(PulseOutput, o.Get(PulseBaseLevel))

	return o.Send("output", o.Get(PulseOutput))
}

func pulseProcess(o *sim.Object, proc *sim.ProcInfo) error {
	p := o.Behavior().(*pulseGen)
	now := float64(proc.Now)
	input := o.Get(PulseInput)

	var phase float64

	switch int(o.Get(PulseTrigMode)) {
	case ExtTrig:
		if input != 0 && p.prevInput == 0 {
			p.trigTime = now
		}

		phase = now - p.trigTime
		if p.trigTime < 0 {
			phase = -1
		}
	case ExtGate:
		if input == 0 {
			p.trigTime = -1
			phase = -1
		} else {
			if p.trigTime < 0 {
				p.trigTime = now
			}

			phase = pulsePhase(o, now-p.trigTime)
		}
	default:
		phase = pulsePhase(o, now)
	}

	p.prevInput = input

	out := pulseLevel(o, phase)
	o.Set(PulseOutput, out)

	return o.Send("output", out)
}

func pulsePeriod(o *sim.Object) float64 {
	first := o.Get(PulseFirstWidth)
	second := o.Get(PulseSecondDelay) + o.Get(PulseSecondWidth)

	return o.Get(PulseFirstDelay) + math.Max(first, second)
}

func pulsePhase(o *sim.Object, t float64) float64 {
	period := pulsePeriod(o)
	if period <= 0 {
		return -1
	}

	return math.Mod(t, period)
}

// pulseLevel is the output at a given time into the current period. A
// negative phase means the generator is idle.
func pulseLevel(o *sim.Object, phase float64) float64 {
	base := o.Get(PulseBaseLevel)
	if phase < 0 {
		return base
	}

	delay := o.Get(PulseFirstDelay)
	if phase < delay {
		return base
	}

	sincePulse := phase - delay
	if sincePulse < o.Get(PulseFirstWidth) {
		return o.Get(PulseFirstLevel)
	}

	secondStart := o.Get(PulseSecondDelay)
	if sincePulse >= secondStart && sincePulse < secondStart+o.Get(PulseSecondWidth) {
		return o.Get(PulseSecondLevel)
	}

	return base
}
