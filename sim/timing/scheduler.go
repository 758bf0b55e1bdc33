package timing

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring"
	"github.com/pkg/errors"

	"github.com/sarchlab/neurosim/sim"
)

// DefaultNumClocks is the number of clocks a scheduler gets unless told
// otherwise.
const DefaultNumClocks = 10

// State is the lifecycle state of a Scheduler.
type State int

// All the scheduler states.
const (
	Unconfigured State = iota
	Reinitialized
	Running
	Halted
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Reinitialized:
		return "reinitialized"
	case Running:
		return "running"
	case Halted:
		return "halted"
	}

	return "unknown"
}

// A Validator gets the last word before a run starts. Returning an error
// cancels the run without side effects.
type Validator interface {
	ValidateRun(s *Scheduler, plan Plan) error
}

// A Scheduler owns a fixed set of clocks, the bindings of phases to the
// objects of one tree, and the simulated time. It runs bound phases tick by
// tick on a single goroutine.
type Scheduler struct {
	sim.HookableBase

	tree   *sim.Tree
	clocks []*Clock

	stateLock sync.RWMutex
	state     State

	timeLock sync.RWMutex
	now      sim.VTime
	tick     uint64

	stopRequested atomic.Bool
	isPaused      bool
	isPausedLock  sync.Mutex
	pauseLock     sync.Mutex
	singleRunLock sync.Mutex

	validators []Validator

	reinitializing bool
	exec           *execution
}

type execution struct {
	info  sim.ProcInfo
	fired map[triggerKey]bool
}

type triggerKey struct {
	obj   *sim.Object
	phase string
}

// NewScheduler creates a scheduler with numClocks clocks over a tree.
func NewScheduler(tree *sim.Tree, numClocks int) *Scheduler {
	if numClocks <= 0 {
		numClocks = DefaultNumClocks
	}

	s := &Scheduler{tree: tree}
	for i := 0; i < numClocks; i++ {
		s.clocks = append(s.clocks, &Clock{index: i})
	}

	return s
}

// Tree returns the tree the scheduler runs.
func (s *Scheduler) Tree() *sim.Tree {
	return s.tree
}

// NumClocks returns how many clocks the scheduler has.
func (s *Scheduler) NumClocks() int {
	return len(s.clocks)
}

// AddValidator registers a check that runs before every Start.
func (s *Scheduler) AddValidator(v Validator) {
	s.validators = append(s.validators, v)
}

// State returns the lifecycle state.
func (s *Scheduler) State() State {
	s.stateLock.RLock()
	defer s.stateLock.RUnlock()

	return s.state
}

func (s *Scheduler) setState(state State) {
	s.stateLock.Lock()
	s.state = state
	s.stateLock.Unlock()
}

// markDirty forgets a previous reinitialization after a configuration change.
func (s *Scheduler) markDirty() {
	s.setState(Unconfigured)
}

// Now returns the simulated time reached by the last completed tick.
func (s *Scheduler) Now() sim.VTime {
	s.timeLock.RLock()
	defer s.timeLock.RUnlock()

	return s.now
}

// Tick returns the number of ticks completed since the last reinit.
func (s *Scheduler) Tick() uint64 {
	s.timeLock.RLock()
	defer s.timeLock.RUnlock()

	return s.tick
}

func (s *Scheduler) writeNow(now sim.VTime, tick uint64) {
	s.timeLock.Lock()
	s.now = now
	s.tick = tick
	s.timeLock.Unlock()
}

// SetClock sets the period of a clock. It does not touch the clock's
// bindings.
func (s *Scheduler) SetClock(index int, period sim.VTime) error {
	if s.State() == Running {
		return ErrRunning
	}

	if index < 0 || index >= len(s.clocks) {
		return &UnknownClockError{Clock: index}
	}

	p := float64(period)
	if !(p > 0) || math.IsInf(p, 0) {
		return &InvalidPeriodError{Clock: index, Period: period}
	}

	s.clocks[index].period = period
	s.markDirty()

	return nil
}

// UseClock binds a phase on a clock to every object a selector matches now.
// Objects created later are not picked up. Binding an object twice to the
// same phase on the same clock has no further effect.
func (s *Scheduler) UseClock(index int, selector string, phase string) error {
	if s.State() == Running {
		return ErrRunning
	}

	if index < 0 || index >= len(s.clocks) || s.clocks[index].period <= 0 {
		return &UnknownClockError{Clock: index}
	}

	sel, err := sim.ParseSelector(selector)
	if err != nil {
		return errors.Wrapf(err, "timing: bad selector %q", selector)
	}

	clock := s.clocks[index]

	var matched []*sim.Object
	for o := range s.tree.Select(sel) {
		if !o.Class().HasPhase(phase) {
			return &UnknownPhaseError{Phase: phase, Class: o.Class().Name, Path: o.Path()}
		}

		if clock.hasBinding(o, phase) {
			continue
		}

		matched = append(matched, o)
	}

	clock.bindings = append(clock.bindings, newBinding(phase, sel, matched))
	s.markDirty()

	return nil
}

func (c *Clock) hasBinding(o *sim.Object, phase string) bool {
	for _, b := range c.bindings {
		if b.phase == phase && b.contains(o) {
			return true
		}
	}

	return false
}

// Clock describes one clock.
func (s *Scheduler) Clock(index int) (ClockInfo, error) {
	if index < 0 || index >= len(s.clocks) {
		return ClockInfo{}, &UnknownClockError{Clock: index}
	}

	return s.clocks[index].info(), nil
}

// Clocks describes every clock that has a period, in index order.
func (s *Scheduler) Clocks() []ClockInfo {
	var list []ClockInfo

	for _, c := range s.clocks {
		if c.period > 0 {
			list = append(list, c.info())
		}
	}

	return list
}

// Plan computes the tick grid of the current configuration.
func (s *Scheduler) Plan() (Plan, error) {
	return newPlan(s.clocks)
}

// Assignments lists the clock and phase pairs an object is bound to.
func (s *Scheduler) Assignments(o *sim.Object) []Assignment {
	var list []Assignment

	for _, c := range s.clocks {
		for _, b := range c.bindings {
			if b.contains(o) && !o.Deleted() {
				list = append(list, Assignment{Clock: c.index, Phase: b.phase})
			}
		}
	}

	return list
}

// Reinit resets simulated time to zero and runs the reinitialization handler
// of every bound phase, clock by clock, objects in tree order within a clock.
// When a handler fails, every object goes back to the state of the last
// commit and the scheduler needs to be reinitialized again.
func (s *Scheduler) Reinit() error {
	if s.State() == Running {
		return ErrRunning
	}

	s.tree.SetDispatcher(s)
	s.writeNow(0, 0)

	s.reinitializing = true
	defer func() {
		s.reinitializing = false
		s.exec = nil
	}()

	order := s.treeOrder()

	for _, c := range s.clocks {
		if err := s.reinitClock(c, order); err != nil {
			s.tree.Discard()
			s.markDirty()

			return err
		}
	}

	s.tree.Commit()
	s.setState(Reinitialized)

	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    HookPosReinit,
		Item:   s.Clocks(),
	})

	return nil
}

func (s *Scheduler) treeOrder() map[*sim.Object]int {
	order := make(map[*sim.Object]int, s.tree.Len())

	for o := range s.tree.Walk() {
		order[o] = len(order)
	}

	return order
}

type boundPhase struct {
	obj   *sim.Object
	phase string
}

// reinitClock runs the reinitialization handlers bound to a clock. An object
// bound to several phases of the clock gets them in binding order.
func (s *Scheduler) reinitClock(c *Clock, order map[*sim.Object]int) error {
	var list []boundPhase

	for _, b := range c.bindings {
		for _, o := range b.live() {
			list = append(list, boundPhase{obj: o, phase: b.phase})
		}
	}

	sort.SliceStable(list, func(i, j int) bool {
		return order[list[i].obj] < order[list[j].obj]
	})

	s.exec = &execution{info: sim.ProcInfo{Dt: c.period, Clock: c.index}}

	for _, bp := range list {
		phase, _ := bp.obj.Class().Phase(bp.phase)

		fn := phase.ReinitFunc()
		if fn == nil {
			continue
		}

		if err := fn(bp.obj, &s.exec.info); err != nil {
			return s.phaseError(bp.obj, bp.phase, err)
		}
	}

	return nil
}

// Start advances simulated time by duration, rounded up to whole ticks. The
// scheduler must have been reinitialized, or be halted after a previous
// Start, in which case time continues from where it stopped. The context
// and Stop are checked between ticks.
func (s *Scheduler) Start(ctx context.Context, duration sim.VTime) error {
	s.singleRunLock.Lock()
	defer s.singleRunLock.Unlock()

	d := float64(duration)
	if !(d > 0) || math.IsInf(d, 0) {
		return errors.Errorf("timing: cannot run for %g", d)
	}

	switch s.State() {
	case Running:
		return ErrRunning
	case Unconfigured:
		return ErrNotReinitialized
	}

	plan, err := newPlan(s.clocks)
	if err != nil {
		return err
	}

	for _, v := range s.validators {
		if err := v.ValidateRun(s, plan); err != nil {
			return err
		}
	}

	s.prepare()
	ticks := plan.Ticks(duration)

	s.stopRequested.Store(false)
	s.setState(Running)
	s.tree.SetDispatcher(s)
	s.tree.Lock()

	defer func() {
		s.tree.Unlock()
		s.exec = nil
	}()

	for i := uint64(0); i < ticks; i++ {
		if err := s.interrupted(ctx); err != nil {
			s.setState(Halted)
			return err
		}

		s.pauseLock.Lock()
		err := s.runTick(plan)
		s.pauseLock.Unlock()

		if err != nil {
			s.tree.Discard()
			s.setState(Halted)

			return err
		}
	}

	s.setState(Halted)

	return nil
}

func (s *Scheduler) interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "timing: run cancelled")
	}

	if s.stopRequested.Load() {
		return ErrStopped
	}

	return nil
}

// prepare works out, per binding, which objects run each tick and, per clock,
// which objects need their pulls resolved first.
func (s *Scheduler) prepare() {
	for _, c := range s.clocks {
		c.pullSet = c.pullSet[:0]
		seen := roaring.New()

		var queue []*sim.Object

		for _, b := range c.bindings {
			b.runnable = b.runnable[:0]

			for _, o := range b.live() {
				phase, _ := o.Class().Phase(b.phase)
				if phase.Category != sim.ProcessPhase {
					continue
				}

				b.runnable = append(b.runnable, o)
				queue = append(queue, o)
			}
		}

		for len(queue) > 0 {
			o := queue[0]
			queue = queue[1:]

			if !seen.CheckedAdd(uint32(o.ID())) {
				continue
			}

			c.pullSet = append(c.pullSet, o)
			queue = append(queue, o.TriggerTargets()...)
		}
	}
}

func (s *Scheduler) runTick(plan Plan) error {
	tick := s.Tick() + 1
	now := sim.VTime(tick) * plan.Finest

	info := TickInfo{Tick: tick, Now: now, Due: plan.DueClocks(tick)}
	s.InvokeHook(sim.HookCtx{Domain: s, Pos: HookPosBeforeTick, Now: now, Item: info})

	for _, index := range info.Due {
		if err := s.runClock(s.clocks[index], tick, now); err != nil {
			return err
		}
	}

	s.tree.Commit()
	s.writeNow(now, tick)

	s.InvokeHook(sim.HookCtx{Domain: s, Pos: HookPosAfterTick, Now: now, Item: info})

	return nil
}

// runClock resolves every pull feeding the clock's process phases, then runs
// the bindings in registration order. No phase of the clock can change what
// another phase of the same clock pulls on this tick.
func (s *Scheduler) runClock(c *Clock, tick uint64, now sim.VTime) error {
	info := sim.ProcInfo{Now: now, Dt: c.period, Clock: c.index, Tick: tick}

	for _, o := range c.pullSet {
		o.ResolvePulls()
	}

	for _, b := range c.bindings {
		s.exec = &execution{info: info}

		if err := s.runBinding(c, b, now); err != nil {
			return err
		}
	}

	return nil
}

// runBinding runs the phase on the bound objects in tree order.
func (s *Scheduler) runBinding(c *Clock, b *binding, now sim.VTime) error {
	hooked := s.NumHooks() > 0

	for _, o := range b.runnable {
		phase, _ := o.Class().Phase(b.phase)
		item := PhaseInfo{Clock: c.index, Phase: b.phase, Object: o}

		if hooked {
			s.InvokeHook(sim.HookCtx{Domain: s, Pos: HookPosBeforePhase, Now: now, Item: item})
		}

		if err := phase.Run(o, &s.exec.info); err != nil {
			return s.phaseError(o, b.phase, err)
		}

		if hooked {
			s.InvokeHook(sim.HookCtx{Domain: s, Pos: HookPosAfterPhase, Now: now, Item: item})
		}
	}

	return nil
}

// Trigger runs a phase of an object on behalf of a trigger link. A target is
// run at most once per binding execution.
func (s *Scheduler) Trigger(dst *sim.Object, phaseName string) error {
	if s.exec == nil {
		return errors.Errorf("timing: %s triggered outside of a phase", dst.Path())
	}

	key := triggerKey{obj: dst, phase: phaseName}
	if s.exec.fired[key] {
		return nil
	}

	if s.exec.fired == nil {
		s.exec.fired = make(map[triggerKey]bool)
	}

	s.exec.fired[key] = true

	phase, ok := dst.Class().Phase(phaseName)
	if !ok {
		return &UnknownPhaseError{Phase: phaseName, Class: dst.Class().Name, Path: dst.Path()}
	}

	fn := phase.Run
	if s.reinitializing {
		fn = phase.ReinitFunc()
		if fn == nil {
			return nil
		}
	}

	if err := fn(dst, &s.exec.info); err != nil {
		return s.phaseError(dst, phaseName, err)
	}

	return nil
}

func (s *Scheduler) phaseError(o *sim.Object, phase string, err error) error {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return err
	}

	return &PhaseError{
		Path:  o.Path(),
		Time:  s.exec.info.Now,
		Clock: s.exec.info.Clock,
		Phase: phase,
		Err:   err,
	}
}

// Stop asks a running Start to return before the next tick. It also lifts a
// pause so that the request can be honored.
func (s *Scheduler) Stop() {
	s.stopRequested.Store(true)
	s.Continue()
}

// Pause holds a running Start between ticks.
func (s *Scheduler) Pause() {
	s.isPausedLock.Lock()
	defer s.isPausedLock.Unlock()

	if s.isPaused {
		return
	}

	s.pauseLock.Lock()
	s.isPaused = true
}

// Continue releases a Pause.
func (s *Scheduler) Continue() {
	s.isPausedLock.Lock()
	defer s.isPausedLock.Unlock()

	if !s.isPaused {
		return
	}

	s.pauseLock.Unlock()
	s.isPaused = false
}

// Paused tells if the scheduler is held by Pause.
func (s *Scheduler) Paused() bool {
	s.isPausedLock.Lock()
	defer s.isPausedLock.Unlock()

	return s.isPaused
}
