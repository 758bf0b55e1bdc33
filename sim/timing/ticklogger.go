package timing

import (
	"log"

	"github.com/sarchlab/neurosim/sim"
)

// TickLogger is a hook that prints one line per tick, or one line per phase
// when Verbose is set.
type TickLogger struct {
	sim.LogHookBase

	Verbose bool
}

// NewTickLogger returns a new TickLogger which will write in to the logger
func NewTickLogger(logger *log.Logger) *TickLogger {
	h := new(TickLogger)
	h.Logger = logger

	return h
}

// Func writes the tick information into the logger
func (h *TickLogger) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case HookPosAfterTick:
		info, ok := ctx.Item.(TickInfo)
		if !ok {
			return
		}

		h.Printf("%.10f, tick %d, clocks %v", info.Now, info.Tick, info.Due)
	case HookPosBeforePhase:
		if !h.Verbose {
			return
		}

		info, ok := ctx.Item.(PhaseInfo)
		if !ok {
			return
		}

		h.Printf("%.10f, clock %d, %s -> %s",
			ctx.Now, info.Clock, info.Phase, info.Object.Path())
	}
}
