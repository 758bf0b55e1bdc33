package timing

import (
	"bytes"
	"context"
	"log"

	"github.com/pkg/errors"
	"go.uber.org/mock/gomock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/neurosim/sim"
)

var _ = Describe("Scheduler", func() {
	var (
		mockCtrl *gomock.Controller
		tree     *sim.Tree
		s        *Scheduler
		a, b     *sim.Object
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		eventLog = nil

		tree = sim.NewTree()
		tree.MustCreate(sim.NeutralClass, "/model")
		a = tree.MustCreate(counterClass, "/model/a")
		b = tree.MustCreate(counterClass, "/model/b")

		s = NewScheduler(tree, 0)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("when configuring", func() {
		It("should have the default number of clocks", func() {
			Expect(s.NumClocks()).To(Equal(DefaultNumClocks))
			Expect(s.State()).To(Equal(Unconfigured))
		})

		It("should report what was configured", func() {
			Expect(s.SetClock(0, 0.01)).To(Succeed())
			Expect(s.SetClock(3, 0.1)).To(Succeed())
			Expect(s.UseClock(3, "/model/#[TYPE=timingTestCounter]", "process")).
				To(Succeed())

			info, err := s.Clock(3)
			Expect(err).ToNot(HaveOccurred())
			Expect(info.Period).To(Equal(sim.VTime(0.1)))
			Expect(info.Bindings).To(HaveLen(1))
			Expect(info.Bindings[0].Phase).To(Equal("process"))
			Expect(info.Bindings[0].Paths).To(Equal([]string{"/model/a", "/model/b"}))

			Expect(s.Clocks()).To(HaveLen(2))
			Expect(s.Assignments(a)).To(Equal([]Assignment{{Clock: 3, Phase: "process"}}))
		})

		It("should reject invalid periods without changing anything", func() {
			Expect(s.SetClock(0, 0.01)).To(Succeed())

			err := s.SetClock(0, -1)

			var periodErr *InvalidPeriodError
			Expect(errors.As(err, &periodErr)).To(BeTrue())
			Expect(periodErr.Clock).To(Equal(0))

			info, _ := s.Clock(0)
			Expect(info.Period).To(Equal(sim.VTime(0.01)))
			Expect(s.SetClock(0, 0)).ToNot(Succeed())
		})

		It("should reject unknown clocks", func() {
			Expect(s.SetClock(DefaultNumClocks, 1)).
				To(BeAssignableToTypeOf(&UnknownClockError{}))
			Expect(s.UseClock(1, "/model/#", "process")).
				To(BeAssignableToTypeOf(&UnknownClockError{}))
		})

		It("should reject phases the objects do not have", func() {
			Expect(s.SetClock(0, 0.01)).To(Succeed())

			err := s.UseClock(0, "/model/#", "nonexistent")

			Expect(err).To(BeAssignableToTypeOf(&UnknownPhaseError{}))

			info, _ := s.Clock(0)
			Expect(info.Bindings).To(BeEmpty())
		})

		It("should accept selectors that match nothing", func() {
			Expect(s.SetClock(0, 0.01)).To(Succeed())
			Expect(s.UseClock(0, "/elsewhere/#", "anything")).To(Succeed())
		})

		It("should not bind the same object twice", func() {
			Expect(s.SetClock(0, 0.01)).To(Succeed())
			Expect(s.UseClock(0, "/model/a", "process")).To(Succeed())
			Expect(s.UseClock(0, "/model/#", "process")).To(Succeed())
			Expect(s.Reinit()).To(Succeed())

			Expect(s.Start(context.Background(), 0.01)).To(Succeed())

			Expect(eventLog).To(Equal([]string{"a", "b"}))
		})

		It("should go back to unconfigured on change", func() {
			Expect(s.SetClock(0, 0.01)).To(Succeed())
			Expect(s.Reinit()).To(Succeed())
			Expect(s.State()).To(Equal(Reinitialized))

			Expect(s.SetClock(1, 0.01)).To(Succeed())

			Expect(s.State()).To(Equal(Unconfigured))
			Expect(s.Start(context.Background(), 1)).To(MatchError(ErrNotReinitialized))
		})
	})

	Context("when running", func() {
		BeforeEach(func() {
			Expect(s.SetClock(0, 0.01)).To(Succeed())
			Expect(s.SetClock(3, 0.1)).To(Succeed())
			Expect(s.UseClock(0, "/model/a", "process")).To(Succeed())
			Expect(s.UseClock(3, "/model/b", "process")).To(Succeed())
		})

		It("should run a whole number of ticks", func() {
			Expect(s.Reinit()).To(Succeed())

			Expect(s.Start(context.Background(), 0.05)).To(Succeed())

			Expect(a.Get(counterCount)).To(Equal(5.0))
			Expect(s.Tick()).To(Equal(uint64(5)))
			Expect(float64(s.Now())).To(BeNumerically("~", 0.05, 1e-12))
			Expect(s.State()).To(Equal(Halted))
		})

		It("should round partial ticks up", func() {
			Expect(s.Reinit()).To(Succeed())

			Expect(s.Start(context.Background(), 0.055)).To(Succeed())

			Expect(a.Get(counterCount)).To(Equal(6.0))
		})

		It("should fire slower clocks every nth tick", func() {
			Expect(s.Reinit()).To(Succeed())

			Expect(s.Start(context.Background(), 1)).To(Succeed())

			Expect(a.Get(counterCount)).To(Equal(100.0))
			Expect(b.Get(counterCount)).To(Equal(10.0))

			times := counterOf(b).times
			Expect(float64(times[0])).To(BeNumerically("~", 0.1, 1e-12))
			Expect(float64(times[9])).To(BeNumerically("~", 1.0, 1e-12))
		})

		It("should continue from where it halted", func() {
			Expect(s.Reinit()).To(Succeed())
			Expect(s.Start(context.Background(), 0.5)).To(Succeed())

			Expect(s.Start(context.Background(), 0.5)).To(Succeed())

			Expect(a.Get(counterCount)).To(Equal(100.0))
			Expect(b.Get(counterCount)).To(Equal(10.0))
			Expect(float64(s.Now())).To(BeNumerically("~", 1.0, 1e-12))
		})

		It("should reinitialize idempotently", func() {
			Expect(s.Reinit()).To(Succeed())
			Expect(s.Start(context.Background(), 0.3)).To(Succeed())
			first := append([]sim.VTime(nil), counterOf(b).times...)

			Expect(s.Reinit()).To(Succeed())
			Expect(s.Reinit()).To(Succeed())
			Expect(s.Now()).To(Equal(sim.VTime(0)))
			Expect(a.Get(counterCount)).To(Equal(0.0))

			Expect(s.Start(context.Background(), 0.3)).To(Succeed())
			Expect(counterOf(b).times).To(Equal(first))
		})

		It("should run init phases during reinit only", func() {
			Expect(s.UseClock(0, "/model/b", "init")).To(Succeed())

			Expect(s.Reinit()).To(Succeed())
			Expect(b.Get(counterInits)).To(Equal(1.0))

			Expect(s.Start(context.Background(), 0.1)).To(Succeed())
			Expect(b.Get(counterInits)).To(Equal(1.0))
		})

		It("should reinitialize in tree order within a clock", func() {
			Expect(s.UseClock(3, "/model/b", "init")).To(Succeed())
			Expect(s.UseClock(3, "/model/a", "init")).To(Succeed())

			Expect(s.Reinit()).To(Succeed())

			Expect(eventLog).To(Equal([]string{"init a", "init b"}))
		})

		It("should refuse incompatible periods before touching anything", func() {
			Expect(s.SetClock(4, 0.025)).To(Succeed())
			Expect(s.Reinit()).To(Succeed())

			err := s.Start(context.Background(), 1)

			var periodErr *IncompatiblePeriodError
			Expect(errors.As(err, &periodErr)).To(BeTrue())
			Expect(periodErr.Clock).To(Equal(4))
			Expect(a.Get(counterCount)).To(Equal(0.0))
			Expect(s.Now()).To(Equal(sim.VTime(0)))
			Expect(s.State()).To(Equal(Reinitialized))
		})

		It("should refuse configuration changes while running", func() {
			var setErr, createErr error

			hook := sim.HookFunc(func(ctx sim.HookCtx) {
				if ctx.Pos != HookPosAfterTick || setErr != nil {
					return
				}

				setErr = s.SetClock(1, 0.5)
				_, createErr = tree.Create(counterClass, "/model/c")
			})
			s.AcceptHook(hook)
			Expect(s.Reinit()).To(Succeed())

			Expect(s.Start(context.Background(), 0.02)).To(Succeed())

			Expect(setErr).To(MatchError(ErrRunning))
			Expect(createErr).To(MatchError(sim.ErrTopologyLocked))
			Expect(tree.Locked()).To(BeFalse())
		})

		It("should invoke tick hooks", func() {
			hook := NewMockHook(mockCtrl)
			hook.EXPECT().
				Func(gomock.Any()).
				Do(func(ctx sim.HookCtx) {
					Expect(ctx.Domain).To(BeIdenticalTo(s))
				}).
				AnyTimes()
			s.AcceptHook(hook)
			Expect(s.Reinit()).To(Succeed())

			ticks := 0
			s.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
				if ctx.Pos == HookPosAfterTick {
					ticks++
					Expect(ctx.Item.(TickInfo).Tick).To(Equal(uint64(ticks)))
				}
			}))

			Expect(s.Start(context.Background(), 0.2)).To(Succeed())
			Expect(ticks).To(Equal(20))
		})

		It("should panic on duplicated hooks", func() {
			hook := NewMockHook(mockCtrl)
			s.AcceptHook(hook)

			Expect(func() { s.AcceptHook(hook) }).To(Panic())
		})

		It("should let validators cancel a run", func() {
			validator := NewMockValidator(mockCtrl)
			validator.EXPECT().
				ValidateRun(s, gomock.Any()).
				DoAndReturn(func(_ *Scheduler, plan Plan) error {
					Expect(plan.Strides[3]).To(Equal(uint64(10)))
					return errBoom
				})
			s.AddValidator(validator)
			Expect(s.Reinit()).To(Succeed())

			err := s.Start(context.Background(), 1)

			Expect(err).To(MatchError(errBoom))
			Expect(a.Get(counterCount)).To(Equal(0.0))
		})

		It("should stop on cancellation", func() {
			Expect(s.Reinit()).To(Succeed())
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			err := s.Start(ctx, 1)

			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(s.Tick()).To(Equal(uint64(0)))
			Expect(s.State()).To(Equal(Halted))
		})

		It("should stop on request between ticks", func() {
			s.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
				if ctx.Pos == HookPosAfterTick && ctx.Item.(TickInfo).Tick == 3 {
					s.Stop()
				}
			}))
			Expect(s.Reinit()).To(Succeed())

			err := s.Start(context.Background(), 1)

			Expect(err).To(MatchError(ErrStopped))
			Expect(s.Tick()).To(Equal(uint64(3)))

			Expect(s.Start(context.Background(), 0.02)).To(Succeed())
			Expect(s.Tick()).To(Equal(uint64(5)))
		})

		It("should hold ticks while paused", func() {
			Expect(s.Reinit()).To(Succeed())
			s.Pause()
			Expect(s.Paused()).To(BeTrue())

			done := make(chan error)
			go func() { done <- s.Start(context.Background(), 0.1) }()

			Consistently(s.Tick, "50ms").Should(Equal(uint64(0)))

			s.Continue()
			Eventually(done).Should(Receive(BeNil()))
			Expect(s.Tick()).To(Equal(uint64(10)))
		})

		It("should roll back the failing tick and halt", func() {
			a.MustSetField("failAt", 4)
			Expect(s.Reinit()).To(Succeed())

			err := s.Start(context.Background(), 1)

			var phaseErr *PhaseError
			Expect(errors.As(err, &phaseErr)).To(BeTrue())
			Expect(phaseErr.Path).To(Equal("/model/a"))
			Expect(phaseErr.Clock).To(Equal(0))
			Expect(phaseErr.Phase).To(Equal("process"))
			Expect(float64(phaseErr.Time)).To(BeNumerically("~", 0.04, 1e-12))
			Expect(errors.Is(err, errBoom)).To(BeTrue())

			Expect(s.State()).To(Equal(Halted))
			Expect(s.Tick()).To(Equal(uint64(3)))
			Expect(a.Get(counterCount)).To(Equal(3.0))
			Expect(counterOf(a).times).To(HaveLen(3))
		})

		It("should report reinit failures and stay unconfigured", func() {
			b.MustSetField("failAt", -1)

			err := s.Reinit()

			var phaseErr *PhaseError
			Expect(errors.As(err, &phaseErr)).To(BeTrue())
			Expect(phaseErr.Path).To(Equal("/model/b"))
			Expect(s.State()).To(Equal(Unconfigured))
		})
	})

	Context("when wiring objects", func() {
		var c, d *sim.Object

		BeforeEach(func() {
			c = tree.MustCreate(counterClass, "/c")
			d = tree.MustCreate(counterClass, "/d")
			Expect(s.SetClock(0, 1)).To(Succeed())
		})

		It("should resolve pulls before any phase of the binding runs", func() {
			tree.MustConnect(b, "ask", a, "get_value")
			Expect(s.UseClock(0, "/model/#", "process")).To(Succeed())
			Expect(s.Reinit()).To(Succeed())

			Expect(s.Start(context.Background(), 4)).To(Succeed())

			Expect(counterOf(b).pulls).To(Equal([]float64{0, 1, 2, 3}))
		})

		It("should resolve pulls before any binding of the clock runs", func() {
			tree.MustConnect(b, "ask", a, "get_value")
			Expect(s.UseClock(0, "/model/a", "process")).To(Succeed())
			Expect(s.UseClock(0, "/model/b", "process")).To(Succeed())
			Expect(s.Reinit()).To(Succeed())

			Expect(s.Start(context.Background(), 4)).To(Succeed())

			Expect(counterOf(b).pulls).To(Equal([]float64{0, 1, 2, 3}))
		})

		It("should run trigger targets once per binding execution", func() {
			tree.MustConnect(a, "fire", c, "kick")
			tree.MustConnect(b, "fire", c, "kick")
			tree.MustConnect(c, "ask", d, "get_value")
			d.MustSetField("value", 42)
			Expect(s.UseClock(0, "/model/#", "process")).To(Succeed())
			Expect(s.Reinit()).To(Succeed())

			Expect(s.Start(context.Background(), 3)).To(Succeed())

			Expect(c.Get(counterCount)).To(Equal(3.0))
			Expect(counterOf(c).pulls).To(Equal([]float64{42, 42, 42}))
			Expect(eventLog).To(Equal([]string{
				"a", "c", "b",
				"a", "c", "b",
				"a", "c", "b",
			}))
		})
	})
})

var _ = Describe("Plan", func() {
	It("should derive strides from the finest period", func() {
		clocks := []*Clock{
			{index: 0, period: 0.01},
			{index: 1},
			{index: 2, period: 0.1},
		}

		plan, err := newPlan(clocks)

		Expect(err).ToNot(HaveOccurred())
		Expect(plan.Finest).To(Equal(sim.VTime(0.01)))
		Expect(plan.Strides).To(Equal([]uint64{1, 0, 10}))
		Expect(plan.DueClocks(10)).To(Equal([]int{0, 2}))
		Expect(plan.DueClocks(11)).To(Equal([]int{0}))
		Expect(plan.Ticks(50)).To(Equal(uint64(5000)))
		Expect(float64(plan.Period(2))).To(BeNumerically("~", 0.1, 1e-15))
	})

	It("should fail without clocks", func() {
		_, err := newPlan([]*Clock{{index: 0}})

		Expect(err).To(MatchError(ErrNoClocks))
	})
})

var _ = Describe("TickLogger", func() {
	It("should log every tick", func() {
		buf := new(bytes.Buffer)
		tree := sim.NewTree()
		s := NewScheduler(tree, 1)
		s.AcceptHook(NewTickLogger(log.New(buf, "", 0)))
		Expect(s.SetClock(0, 0.5)).To(Succeed())
		Expect(s.Reinit()).To(Succeed())

		Expect(s.Start(context.Background(), 1)).To(Succeed())

		Expect(buf.String()).To(Equal(
			"0.5000000000, tick 1, clocks [0]\n" +
				"1.0000000000, tick 2, clocks [0]\n"))
	})
})
