package timing

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/sarchlab/neurosim/sim"
)

// A Clock fires its bindings every period of simulated time.
type Clock struct {
	index    int
	period   sim.VTime
	bindings []*binding

	// pullSet lists the objects whose pulls are resolved before any phase of
	// the clock runs on a tick. Filled in by Start.
	pullSet []*sim.Object
}

// binding is one useClock request: a phase run on the objects a selector
// matched when the binding was made.
type binding struct {
	phase    string
	selector sim.Selector
	objects  []*sim.Object
	members  *roaring.Bitmap

	// Filled in by Start, as the topology cannot change during a run.
	runnable []*sim.Object
}

func newBinding(phase string, sel sim.Selector, objects []*sim.Object) *binding {
	b := &binding{
		phase:    phase,
		selector: sel,
		members:  roaring.New(),
	}

	for _, o := range objects {
		if b.members.CheckedAdd(uint32(o.ID())) {
			b.objects = append(b.objects, o)
		}
	}

	return b
}

func (b *binding) contains(o *sim.Object) bool {
	return b.members.Contains(uint32(o.ID()))
}

// live returns the bound objects that have not been deleted since binding.
func (b *binding) live() []*sim.Object {
	list := make([]*sim.Object, 0, len(b.objects))

	for _, o := range b.objects {
		if !o.Deleted() {
			list = append(list, o)
		}
	}

	return list
}

// ClockInfo describes a clock's configuration.
type ClockInfo struct {
	Index    int
	Period   sim.VTime
	Bindings []BindingInfo
}

// Configured tells if the clock has a period.
func (c ClockInfo) Configured() bool {
	return c.Period > 0
}

// BindingInfo describes one phase binding of a clock.
type BindingInfo struct {
	Phase    string
	Selector string
	Paths    []string
}

func (c *Clock) info() ClockInfo {
	info := ClockInfo{
		Index:  c.index,
		Period: c.period,
	}

	for _, b := range c.bindings {
		bi := BindingInfo{
			Phase:    b.phase,
			Selector: b.selector.String(),
		}

		for _, o := range b.live() {
			bi.Paths = append(bi.Paths, o.Path())
		}

		info.Bindings = append(info.Bindings, bi)
	}

	return info
}

// Assignment names a clock and phase an object is bound to.
type Assignment struct {
	Clock int
	Phase string
}
