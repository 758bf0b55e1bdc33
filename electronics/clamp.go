package electronics

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/sarchlab/neurosim/sim"
)

// ClampMode selects which feedback path of a clamp circuit drives the target.
type ClampMode int

// All the clamp modes.
const (
	NoClamp ClampMode = iota
	VoltageClamp
	CurrentClamp
)

func (m ClampMode) String() string {
	switch m {
	case VoltageClamp:
		return "voltage"
	case CurrentClamp:
		return "current"
	}

	return "none"
}

// ParseClampMode reads "voltage"/"vclamp" or "current"/"iclamp".
func ParseClampMode(s string) (ClampMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "voltage", "vclamp", "v":
		return VoltageClamp, nil
	case "current", "iclamp", "i":
		return CurrentClamp, nil
	case "none", "":
		return NoClamp, nil
	}

	return NoClamp, errors.Errorf("unknown clamp mode %q", s)
}

// Field layout of ClampCircuitClass.
const (
	ClampCircuitMode sim.FieldIndex = iota
	ClampCircuitStepSize
)

// ClampCircuitClass is the container of a voltage and current clamp circuit.
// Its children do the work; the container only remembers the mode.
var ClampCircuitClass = sim.DefineClass(sim.Class{
	Name: "ClampCircuit",
	Doc:  "Voltage and current clamp built from a pulse generator, a filter, two amplifiers and a PID controller.",
	Fields: []sim.FieldInfo{
		{Name: "mode", ReadOnly: true, Doc: "0 none, 1 voltage, 2 current"},
		{Name: "stepSize", ReadOnly: true, Doc: "time step the PID gain was tuned for"},
	},
	New: func(o *sim.Object) any { return &ClampCircuit{obj: o} },
})

// PulseConfig describes the command waveform of a clamp. Levels are
// potentials (mV) in voltage clamp and currents (uA) in current clamp.
type PulseConfig struct {
	BaseLevel   float64
	FirstLevel  float64
	FirstDelay  float64
	FirstWidth  float64
	SecondLevel float64
	SecondDelay float64
	SecondWidth float64
}

// A ClampCircuit connects a command pulse generator to a compartment, either
// through a PID controller that holds the membrane potential at the command
// (voltage clamp), or through an amplifier that injects the command as a
// current (current clamp).
//
//	pulse -> lowpass -> vclamp -> pid.command, target.Vm -> pid.sensed
//	pid -> target.injectMsg
//	pulse -> iclamp -> target.injectMsg
//
// Each feedback path is linked into the target the first time its mode is
// selected. The amplifier gains decide which path is active.
type ClampCircuit struct {
	obj    *sim.Object
	target *sim.Object

	pulse, lowpass, vclamp, iclamp, pid *sim.Object

	voltageWired bool
	currentWired bool
}

// ClampOf returns the circuit behind a ClampCircuit object.
func ClampOf(o *sim.Object) (*ClampCircuit, bool) {
	c, ok := o.Behavior().(*ClampCircuit)
	return c, ok
}

// NewClampCircuit builds a clamp circuit at path that acts on target. The
// target must provide "VmOut" and "injectMsg" ports, as a Compartment does.
func NewClampCircuit(tree *sim.Tree, path string, target *sim.Object) (*ClampCircuit, error) {
	for _, port := range []string{"VmOut", "injectMsg"} {
		if _, ok := target.Class().Port(port); !ok {
			return nil, &sim.UnknownPortError{Class: target.Class().Name, Port: port}
		}
	}

	obj, err := tree.Create(ClampCircuitClass, path)
	if err != nil {
		return nil, err
	}

	c := obj.Behavior().(*ClampCircuit)
	c.target = target

	children := []struct {
		slot  **sim.Object
		class *sim.Class
		name  string
	}{
		{&c.pulse, PulseGenClass, "pulse"},
		{&c.lowpass, RCClass, "lowpass"},
		{&c.vclamp, DiffAmpClass, "vclamp"},
		{&c.iclamp, DiffAmpClass, "iclamp"},
		{&c.pid, PIDControllerClass, "pid"},
	}

	for _, child := range children {
		*child.slot, err = tree.CreateChild(child.class, obj, child.name)
		if err != nil {
			return nil, errors.Wrapf(err, "building clamp %s", path)
		}
	}

	c.lowpass.MustSetField("R", 1)
	c.lowpass.MustSetField("C", 0.03)
	c.vclamp.MustSetField("gain", 0)
	c.iclamp.MustSetField("gain", 0)
	c.pid.MustSetField("gain", 0)

	links := [][4]any{
		{c.pulse, "output", c.lowpass, "injectIn"},
		{c.lowpass, "output", c.vclamp, "plusIn"},
		{c.pulse, "output", c.iclamp, "plusIn"},
	}

	if err := connectAll(tree, links); err != nil {
		return nil, err
	}

	return c, nil
}

func connectAll(tree *sim.Tree, links [][4]any) error {
	for _, l := range links {
		_, err := tree.Connect(
			l[0].(*sim.Object), l[1].(string),
			l[2].(*sim.Object), l[3].(string))
		if err != nil {
			return err
		}
	}

	return nil
}

// Object returns the container object.
func (c *ClampCircuit) Object() *sim.Object { return c.obj }

// Target returns the clamped compartment.
func (c *ClampCircuit) Target() *sim.Object { return c.target }

// Pulse returns the command pulse generator.
func (c *ClampCircuit) Pulse() *sim.Object { return c.pulse }

// Lowpass returns the command filter.
func (c *ClampCircuit) Lowpass() *sim.Object { return c.lowpass }

// VClamp returns the voltage command amplifier.
func (c *ClampCircuit) VClamp() *sim.Object { return c.vclamp }

// IClamp returns the current command amplifier.
func (c *ClampCircuit) IClamp() *sim.Object { return c.iclamp }

// PID returns the feedback controller.
func (c *ClampCircuit) PID() *sim.Object { return c.pid }

// Mode returns the selected clamp mode.
func (c *ClampCircuit) Mode() ClampMode {
	return ClampMode(c.obj.Get(ClampCircuitMode))
}

// ConfigurePulses sets the command waveform.
func (c *ClampCircuit) ConfigurePulses(cfg PulseConfig) {
	p := c.pulse
	p.Set(PulseBaseLevel, cfg.BaseLevel)
	p.Set(PulseFirstLevel, cfg.FirstLevel)
	p.Set(PulseFirstDelay, cfg.FirstDelay)
	p.Set(PulseFirstWidth, cfg.FirstWidth)
	p.Set(PulseSecondLevel, cfg.SecondLevel)
	p.Set(PulseSecondDelay, cfg.SecondDelay)
	p.Set(PulseSecondWidth, cfg.SecondWidth)
}

// DoVoltageClamp makes the PID controller hold the target at the filtered
// command. The controller is tuned for a clock with period stepSize. The mode
// cannot change while the tree is locked by a run.
func (c *ClampCircuit) DoVoltageClamp(stepSize sim.VTime) error {
	if c.obj.Tree().Locked() {
		return sim.ErrTopologyLocked
	}

	if stepSize <= 0 {
		return errors.Errorf("clamp step size must be positive, got %g", stepSize)
	}

	if !c.voltageWired {
		err := connectAll(c.obj.Tree(), [][4]any{
			{c.vclamp, "output", c.pid, "commandIn"},
			{c.target, "VmOut", c.pid, "sensedIn"},
			{c.pid, "output", c.target, "injectMsg"},
		})
		if err != nil {
			return errors.Wrap(err, "wiring voltage clamp")
		}

		c.voltageWired = true
	}

	cm, err := c.target.GetField("Cm")
	if err != nil {
		return err
	}

	dt := float64(stepSize)
	base := c.pulse.Get(PulseBaseLevel)
	vm, _ := c.target.GetField("Vm")

	c.vclamp.MustSetField("gain", 1)
	c.iclamp.MustSetField("gain", 0)
	c.pid.MustSetField("gain", 0.5*cm/dt)
	c.pid.MustSetField("tauI", 10*dt)
	c.pid.MustSetField("tauD", dt/4)
	c.pid.MustSetField("command", base)
	c.pid.MustSetField("sensed", vm)
	c.lowpass.MustSetField("V0", base)

	c.obj.Set(ClampCircuitMode, float64(VoltageClamp))
	c.obj.Set(ClampCircuitStepSize, dt)

	return nil
}

// DoCurrentClamp makes the command pulse flow into the target as a current.
func (c *ClampCircuit) DoCurrentClamp() error {
	if c.obj.Tree().Locked() {
		return sim.ErrTopologyLocked
	}

	if !c.currentWired {
		_, err := c.obj.Tree().Connect(c.iclamp, "output", c.target, "injectMsg")
		if err != nil {
			return errors.Wrap(err, "wiring current clamp")
		}

		c.currentWired = true
	}

	c.vclamp.MustSetField("gain", 0)
	c.iclamp.MustSetField("gain", 1)
	c.pid.MustSetField("gain", 0)

	c.obj.Set(ClampCircuitMode, float64(CurrentClamp))

	return nil
}

func (c *ClampCircuit) String() string {
	return fmt.Sprintf("%s (%s clamp on %s)", c.obj.Path(), c.Mode(), c.target.Path())
}
