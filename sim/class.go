package sim

import (
	"fmt"
	"sort"
	"sync"
)

// FieldIndex addresses a slot in the field table of a class. Domain packages
// declare FieldIndex constants in the same order as the FieldInfo list so
// that hot paths never look fields up by name.
type FieldIndex int

// FieldInfo describes one named scalar field of a class.
type FieldInfo struct {
	Name     string
	Default  float64
	ReadOnly bool
	Doc      string
}

// PortDir tells whether a port sends or receives.
type PortDir int

// All the port directions.
const (
	Src PortDir = iota
	Dest
)

func (d PortDir) String() string {
	if d == Src {
		return "src"
	}

	return "dest"
}

// PortMode tells how values travel over the links attached to a port.
type PortMode int

// All the port modes.
const (
	// Push ports deliver values from the sender into the receiver at the
	// moment the sender calls Send.
	Push PortMode = iota

	// Pull ports let the requester read a value from the provider at the
	// start of the requester's phase.
	Pull
)

func (m PortMode) String() string {
	if m == Push {
		return "push"
	}

	return "pull"
}

// InputFunc receives values pushed into a destination port.
type InputFunc func(o *Object, values []float64) error

// ValueFunc answers a pull request arriving at a destination port.
type ValueFunc func(o *Object) float64

// PortInfo declares one message port of a class.
type PortInfo struct {
	Name  string
	Dir   PortDir
	Mode  PortMode
	Arity int
	Doc   string

	// Input handles pushes into a destination port with a non-zero arity.
	Input InputFunc

	// Value answers pulls on a destination port.
	Value ValueFunc

	// Phase is the phase a destination trigger port (arity 0) invokes.
	Phase string
}

// IsTrigger tells if the port carries no values and only fires a phase.
func (p *PortInfo) IsTrigger() bool {
	return p.Mode == Push && p.Arity == 0
}

// PhaseCategory separates phases that only prepare state from phases that
// advance it.
type PhaseCategory int

// All the phase categories.
const (
	// InitPhase phases run during reinitialization only.
	InitPhase PhaseCategory = iota

	// ProcessPhase phases run on every due tick. Their Reinit handler runs
	// during reinitialization.
	ProcessPhase
)

func (c PhaseCategory) String() string {
	if c == InitPhase {
		return "init"
	}

	return "process"
}

// ProcInfo carries the timing of the tick being computed to a phase handler.
type ProcInfo struct {
	// Now is the simulated time at the end of the tick.
	Now VTime

	// Dt is the period of the clock running the phase.
	Dt VTime

	Clock int
	Tick  uint64
}

// PhaseFunc is the body of a phase.
type PhaseFunc func(o *Object, p *ProcInfo) error

// Phase declares a named entry point that clocks can bind to.
type Phase struct {
	Name     string
	Category PhaseCategory
	Run      PhaseFunc
	Reinit   PhaseFunc
}

// ReinitFunc returns the handler that reinitialization uses for the phase.
func (p *Phase) ReinitFunc() PhaseFunc {
	if p.Category == InitPhase {
		return p.Run
	}

	return p.Reinit
}

// Class is the type descriptor of simulated objects.
type Class struct {
	Name   string
	Doc    string
	Fields []FieldInfo
	Ports  []PortInfo
	Phases []Phase

	// New creates the behavior that is attached to a fresh object. It may be
	// nil for classes that only hold fields.
	New func(o *Object) any

	fieldIndex map[string]FieldIndex
	portIndex  map[string]int
	phaseIndex map[string]int
}

var (
	classRegistryLock sync.Mutex
	classRegistry     = make(map[string]*Class)
)

// DefineClass validates a class, indexes its members, and registers it under
// its name. Invalid or duplicated class declarations panic, as they are
// programming errors.
func DefineClass(c Class) *Class {
	cls := &c
	cls.buildIndex()

	classRegistryLock.Lock()
	defer classRegistryLock.Unlock()

	if _, found := classRegistry[cls.Name]; found {
		panic(fmt.Sprintf("class %s is defined twice", cls.Name))
	}

	classRegistry[cls.Name] = cls

	return cls
}

func (c *Class) buildIndex() {
	if c.Name == "" {
		panic("class must have a name")
	}

	c.fieldIndex = make(map[string]FieldIndex, len(c.Fields))
	for i, f := range c.Fields {
		if _, dup := c.fieldIndex[f.Name]; dup {
			panic(fmt.Sprintf("class %s: field %s declared twice", c.Name, f.Name))
		}

		c.fieldIndex[f.Name] = FieldIndex(i)
	}

	c.portIndex = make(map[string]int, len(c.Ports))
	for i := range c.Ports {
		p := &c.Ports[i]
		c.mustBeValidPort(p)

		if _, dup := c.portIndex[p.Name]; dup {
			panic(fmt.Sprintf("class %s: port %s declared twice", c.Name, p.Name))
		}

		c.portIndex[p.Name] = i
	}

	c.phaseIndex = make(map[string]int, len(c.Phases))
	for i, ph := range c.Phases {
		if ph.Run == nil {
			panic(fmt.Sprintf("class %s: phase %s has no body", c.Name, ph.Name))
		}

		c.phaseIndex[ph.Name] = i
	}

	for _, p := range c.Ports {
		if p.Dir == Dest && p.IsTrigger() {
			if _, ok := c.phaseIndex[p.Phase]; !ok {
				panic(fmt.Sprintf("class %s: trigger port %s names unknown phase %q",
					c.Name, p.Name, p.Phase))
			}
		}
	}
}

func (c *Class) mustBeValidPort(p *PortInfo) {
	if p.Arity < 0 {
		panic(fmt.Sprintf("class %s: port %s has negative arity", c.Name, p.Name))
	}

	if p.Dir != Dest {
		return
	}

	switch {
	case p.Mode == Pull && p.Value == nil:
		panic(fmt.Sprintf("class %s: pull port %s has no value function", c.Name, p.Name))
	case p.Mode == Push && p.Arity > 0 && p.Input == nil:
		panic(fmt.Sprintf("class %s: push port %s has no input function", c.Name, p.Name))
	}
}

// LookupClass finds a defined class by name.
func LookupClass(name string) (*Class, bool) {
	classRegistryLock.Lock()
	defer classRegistryLock.Unlock()

	c, ok := classRegistry[name]

	return c, ok
}

// Classes lists all the defined classes sorted by name.
func Classes() []*Class {
	classRegistryLock.Lock()
	defer classRegistryLock.Unlock()

	list := make([]*Class, 0, len(classRegistry))
	for _, c := range classRegistry {
		list = append(list, c)
	}

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	return list
}

// FieldIndex looks up a field by name.
func (c *Class) FieldIndex(name string) (FieldIndex, bool) {
	i, ok := c.fieldIndex[name]
	return i, ok
}

// Port looks up a port by name.
func (c *Class) Port(name string) (*PortInfo, bool) {
	i, ok := c.portIndex[name]
	if !ok {
		return nil, false
	}

	return &c.Ports[i], true
}

// Phase looks up a phase by name.
func (c *Class) Phase(name string) (*Phase, bool) {
	i, ok := c.phaseIndex[name]
	if !ok {
		return nil, false
	}

	return &c.Phases[i], true
}

// HasPhase tells if objects of the class can be bound to the named phase.
func (c *Class) HasPhase(name string) bool {
	_, ok := c.phaseIndex[name]
	return ok
}

func (c *Class) portIdx(name string) (int, bool) {
	i, ok := c.portIndex[name]
	return i, ok
}

// NeutralClass is the class of the root object and of plain containers.
var NeutralClass = DefineClass(Class{
	Name: "Neutral",
	Doc:  "A container with no fields and no behavior.",
})
