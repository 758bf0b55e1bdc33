package timing

import "github.com/sarchlab/neurosim/sim"

// HookPosBeforeTick triggers before the clocks due on a tick run.
var HookPosBeforeTick = &sim.HookPos{Name: "BeforeTick"}

// HookPosAfterTick triggers after a tick is committed.
var HookPosAfterTick = &sim.HookPos{Name: "AfterTick"}

// HookPosBeforePhase triggers before a bound phase runs on an object.
var HookPosBeforePhase = &sim.HookPos{Name: "BeforePhase"}

// HookPosAfterPhase triggers after a bound phase runs on an object.
var HookPosAfterPhase = &sim.HookPos{Name: "AfterPhase"}

// HookPosReinit triggers after a successful reinitialization.
var HookPosReinit = &sim.HookPos{Name: "Reinit"}

// TickInfo is the item of tick hooks.
type TickInfo struct {
	Tick uint64
	Now  sim.VTime
	Due  []int
}

// PhaseInfo is the item of phase hooks.
type PhaseInfo struct {
	Clock  int
	Phase  string
	Object *sim.Object
}
