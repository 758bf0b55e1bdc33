package neuron

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Gate", func() {
	It("should give the classic resting state", func() {
		m, _, err := SquidNaM.Steady(-65)
		Expect(err).ToNot(HaveOccurred())
		Expect(m).To(BeNumerically("~", 0.0529, 1e-4))

		h, _, err := SquidNaH.Steady(-65)
		Expect(err).ToNot(HaveOccurred())
		Expect(h).To(BeNumerically("~", 0.5961, 1e-4))

		n, _, err := SquidKN.Steady(-65)
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(BeNumerically("~", 0.3177, 1e-4))
	})

	It("should step over removable singularities", func() {
		atSingularity := SquidNaM.Alpha.At(-40)
		nearby := SquidNaM.Alpha.At(-40.01)

		Expect(math.IsNaN(atSingularity)).To(BeFalse())
		Expect(atSingularity).To(BeNumerically("~", 1.0, 1e-3))
		Expect(atSingularity).To(BeNumerically("~", nearby, 1e-3))
	})

	It("should relax towards the steady state", func() {
		inf, tau, err := SquidKN.Steady(-20)
		Expect(err).ToNot(HaveOccurred())

		x, err := SquidKN.Advance(0, -20, tau)

		Expect(err).ToNot(HaveOccurred())
		Expect(x).To(BeNumerically("~", inf*(1-math.Exp(-1)), 1e-12))
	})

	It("should treat F=0 as a linear rate", func() {
		r := Rate{A: 1, B: 2}

		Expect(r.At(3)).To(Equal(7.0))
	})

	It("should reject rates that do not sum to a positive number", func() {
		g := Gate{Alpha: Rate{A: 0}, Beta: Rate{A: 0}}

		_, _, err := g.Steady(0)

		Expect(err).To(HaveOccurred())
	})
})
