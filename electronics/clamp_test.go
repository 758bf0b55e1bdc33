package electronics

import (
	"bytes"
	"context"
	"log"
	"math"

	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/neurosim/neuron"
	"github.com/sarchlab/neurosim/sim"
	"github.com/sarchlab/neurosim/sim/timing"
)

var _ = Describe("ClampCircuit", func() {
	var (
		tree  *sim.Tree
		comp  *sim.Object
		clamp *ClampCircuit
		s     *timing.Scheduler
	)

	BeforeEach(func() {
		tree = sim.NewTree()
		tree.MustCreate(sim.NeutralClass, "/model")
		comp = tree.MustCreate(neuron.CompartmentClass, "/model/comp")
		comp.MustSetField("Cm", 1)
		comp.MustSetField("Rm", 10)

		var err error
		clamp, err = NewClampCircuit(tree, "/model/electronics", comp)
		Expect(err).ToNot(HaveOccurred())

		s = timing.NewScheduler(tree, 0)
		Expect(s.SetClock(0, 0.01)).To(Succeed())
		Expect(s.SetClock(1, 0.01)).To(Succeed())
		Expect(s.UseClock(0, "/model/electronics/##", "process")).To(Succeed())
		Expect(s.UseClock(1, "/model/comp", "process")).To(Succeed())
	})

	It("should build its children", func() {
		children := clamp.Object().Children()

		Expect(children).To(HaveLen(5))
		Expect(clamp.Pulse().Class()).To(BeIdenticalTo(PulseGenClass))
		Expect(clamp.Lowpass().Class()).To(BeIdenticalTo(RCClass))
		Expect(clamp.PID().Class()).To(BeIdenticalTo(PIDControllerClass))
		Expect(clamp.Mode()).To(Equal(NoClamp))

		found, ok := ClampOf(clamp.Object())
		Expect(ok).To(BeTrue())
		Expect(found).To(BeIdenticalTo(clamp))
	})

	It("should refuse targets that cannot be clamped", func() {
		other := tree.MustCreate(neuron.TableClass, "/model/table")

		_, err := NewClampCircuit(tree, "/model/bad", other)

		Expect(err).To(BeAssignableToTypeOf(&sim.UnknownPortError{}))
	})

	It("should inject the command in current clamp", func() {
		clamp.ConfigurePulses(PulseConfig{
			FirstLevel:  1,
			FirstWidth:  1e9,
			SecondDelay: 1e9,
		})
		Expect(clamp.DoCurrentClamp()).To(Succeed())
		Expect(clamp.Mode()).To(Equal(CurrentClamp))
		Expect(s.Reinit()).To(Succeed())

		Expect(s.Start(context.Background(), 100)).To(Succeed())

		vm, _ := comp.GetField("Vm")
		Expect(vm).To(BeNumerically("~", -55, 1e-2))
	})

	It("should hold the potential in voltage clamp", func() {
		clamp.ConfigurePulses(PulseConfig{
			BaseLevel:   -30,
			SecondDelay: 1e9,
		})
		Expect(clamp.DoVoltageClamp(0.01)).To(Succeed())
		Expect(clamp.Mode()).To(Equal(VoltageClamp))
		Expect(s.Reinit()).To(Succeed())

		Expect(s.Start(context.Background(), 10)).To(Succeed())

		vm, _ := comp.GetField("Vm")
		Expect(math.Abs(vm + 30)).To(BeNumerically("<", 0.5))
	})

	It("should wire each path once", func() {
		Expect(clamp.DoVoltageClamp(0.01)).To(Succeed())
		Expect(clamp.DoCurrentClamp()).To(Succeed())
		Expect(clamp.DoVoltageClamp(0.01)).To(Succeed())

		Expect(tree.LinksTo(comp)).To(HaveLen(2))
		Expect(tree.LinksFrom(comp)).To(HaveLen(1))

		gain, _ := clamp.IClamp().GetField("gain")
		Expect(gain).To(Equal(0.0))
	})

	It("should keep its mode for the whole run", func() {
		Expect(clamp.DoCurrentClamp()).To(Succeed())
		Expect(clamp.DoVoltageClamp(0.01)).To(Succeed())

		var switchErrs []error
		s.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
			if ctx.Pos != timing.HookPosAfterTick || len(switchErrs) > 0 {
				return
			}

			switchErrs = append(switchErrs,
				clamp.DoCurrentClamp(), clamp.DoVoltageClamp(0.01))
		}))
		Expect(s.Reinit()).To(Succeed())

		Expect(s.Start(context.Background(), 0.05)).To(Succeed())

		Expect(switchErrs).To(HaveLen(2))
		Expect(switchErrs[0]).To(MatchError(sim.ErrTopologyLocked))
		Expect(switchErrs[1]).To(MatchError(sim.ErrTopologyLocked))
		Expect(clamp.Mode()).To(Equal(VoltageClamp))
		Expect(clamp.DoCurrentClamp()).To(Succeed())
	})

	It("should reject a non-positive step size", func() {
		Expect(clamp.DoVoltageClamp(0)).ToNot(Succeed())
	})

	Context("with a clock policy", func() {
		var buf *bytes.Buffer

		BeforeEach(func() {
			buf = new(bytes.Buffer)
			Expect(clamp.DoVoltageClamp(0.01)).To(Succeed())
		})

		It("should accept the controller on the finest clock", func() {
			s.AddValidator(&ClockPolicy{Strict: true})
			Expect(s.Reinit()).To(Succeed())

			Expect(s.Start(context.Background(), 0.1)).To(Succeed())
		})

		It("should refuse a slow controller in strict mode", func() {
			Expect(s.SetClock(0, 0.05)).To(Succeed())
			Expect(s.SetClock(2, 0.01)).To(Succeed())
			s.AddValidator(&ClockPolicy{Strict: true})
			Expect(s.Reinit()).To(Succeed())

			err := s.Start(context.Background(), 0.1)

			var clockErr *ClampClockError
			Expect(errors.As(err, &clockErr)).To(BeTrue())
			Expect(clockErr.Clock).To(Equal(0))
			Expect(s.Tick()).To(Equal(uint64(0)))
		})

		It("should only warn by default", func() {
			Expect(s.SetClock(0, 0.05)).To(Succeed())
			s.AddValidator(&ClockPolicy{Logger: log.New(buf, "", 0)})
			Expect(s.Reinit()).To(Succeed())

			Expect(s.Start(context.Background(), 0.1)).To(Succeed())

			Expect(buf.String()).To(ContainSubstring("/model/electronics"))
		})
	})
})

var _ = Describe("ParseClampMode", func() {
	It("should read mode names", func() {
		Expect(ParseClampMode("voltage")).To(Equal(VoltageClamp))
		Expect(ParseClampMode("IClamp")).To(Equal(CurrentClamp))
		Expect(VoltageClamp.String()).To(Equal("voltage"))

		_, err := ParseClampMode("both")
		Expect(err).To(HaveOccurred())
	})
})
