package simulation

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log"
	"math"
	"net/http"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/mock/gomock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/neurosim/electronics"
	"github.com/sarchlab/neurosim/neuron"
	"github.com/sarchlab/neurosim/sim"
	"github.com/sarchlab/neurosim/sim/timing"
)

// buildProbeModel creates a passive compartment stepped on clock 0 and a
// table sampling its voltage on clock 3.
func buildProbeModel(s *Simulation) *neuron.Table {
	tree := s.Tree()
	tree.MustCreate(sim.NeutralClass, "/model")
	comp := tree.MustCreate(neuron.CompartmentClass, "/model/soma")
	tree.MustCreate(sim.NeutralClass, "/data")
	obj := tree.MustCreate(neuron.TableClass, "/data/Vm")
	tree.MustConnect(obj, "requestData", comp, "get_Vm")

	sched := s.Scheduler()
	Expect(sched.SetClock(0, 0.01)).To(Succeed())
	Expect(sched.SetClock(3, 0.1)).To(Succeed())
	Expect(sched.UseClock(0, "/model/##[TYPE=Compartment]", "init")).To(Succeed())
	Expect(sched.UseClock(0, "/model/##[TYPE=Compartment]", "process")).To(Succeed())
	Expect(sched.UseClock(3, "/data/##[TYPE=Table]", "process")).To(Succeed())

	table, _ := neuron.TableOf(obj)

	return table
}

var _ = Describe("Simulation", func() {
	var (
		mockCtrl   *gomock.Controller
		simulation *Simulation
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
	})

	AfterEach(func() {
		mockCtrl.Finish()

		if simulation != nil {
			simulation.Terminate()
			simulation = nil
		}
	})

	It("should build a scheduler over a fresh tree", func() {
		simulation = MakeBuilder().WithoutMonitoring().WithNumClocks(4).Build()

		Expect(simulation.ID()).ToNot(BeEmpty())
		Expect(simulation.Tree().Len()).To(Equal(1))
		Expect(simulation.Scheduler().NumClocks()).To(Equal(4))
		Expect(simulation.Scheduler().Tree()).To(BeIdenticalTo(simulation.Tree()))
		Expect(simulation.GetMonitor()).To(BeNil())
		Expect(simulation.GetDataRecorder()).To(BeNil())
	})

	It("should not set a monitor port without monitoring", func() {
		Expect(func() {
			MakeBuilder().WithoutMonitoring().WithMonitorPort(8080).Build()
		}).To(Panic())
	})

	It("should reject durations that are not positive", func() {
		simulation = MakeBuilder().WithoutMonitoring().Build()
		buildProbeModel(simulation)

		for _, d := range []float64{0, -1, math.NaN(), math.Inf(1)} {
			err := simulation.Run(context.Background(), sim.VTime(d))

			var durationErr *InvalidDurationError
			Expect(errors.As(err, &durationErr)).To(BeTrue())
		}

		Expect(simulation.Scheduler().State()).To(Equal(timing.Unconfigured))
	})

	It("should sample once per probe period", func() {
		simulation = MakeBuilder().WithoutMonitoring().Build()
		table := buildProbeModel(simulation)

		Expect(simulation.Run(context.Background(), 50)).To(Succeed())

		Expect(table.Len()).To(Equal(500))
		Expect(simulation.Scheduler().Now()).To(BeNumerically("~", 50, 1e-9))
	})

	It("should continue without reinitializing", func() {
		simulation = MakeBuilder().WithoutMonitoring().Build()
		table := buildProbeModel(simulation)

		Expect(simulation.Run(context.Background(), 1)).To(Succeed())
		Expect(simulation.Continue(context.Background(), 1)).To(Succeed())
		Expect(table.Len()).To(Equal(20))

		Expect(simulation.Run(context.Background(), 1)).To(Succeed())
		Expect(table.Len()).To(Equal(10))
	})

	It("should reject misaligned clocks before reinitializing", func() {
		simulation = MakeBuilder().WithoutMonitoring().Build()
		table := buildProbeModel(simulation)
		Expect(simulation.Run(context.Background(), 1)).To(Succeed())
		Expect(simulation.Scheduler().SetClock(4, 0.025)).To(Succeed())

		err := simulation.Run(context.Background(), 1)

		var periodErr *timing.IncompatiblePeriodError
		Expect(errors.As(err, &periodErr)).To(BeTrue())
		Expect(table.Len()).To(Equal(10))
		Expect(simulation.Scheduler().Now()).To(BeNumerically("~", 1, 1e-9))
	})

	It("should fail to continue before a run", func() {
		simulation = MakeBuilder().WithoutMonitoring().Build()
		buildProbeModel(simulation)

		err := simulation.Continue(context.Background(), 1)

		Expect(err).To(MatchError(timing.ErrNotReinitialized))
	})

	It("should let a validator veto the run", func() {
		simulation = MakeBuilder().WithoutMonitoring().Build()
		table := buildProbeModel(simulation)

		veto := fmt.Errorf("no")
		validator := NewMockValidator(mockCtrl)
		validator.EXPECT().
			ValidateRun(simulation.Scheduler(), gomock.Any()).
			Return(veto)
		simulation.Scheduler().AddValidator(validator)

		err := simulation.Run(context.Background(), 1)

		Expect(err).To(BeIdenticalTo(veto))
		Expect(table.Len()).To(Equal(0))
	})

	Context("with a voltage clamp on a slow clock", func() {
		var buf *bytes.Buffer

		setUpClamp := func(b Builder) {
			buf = new(bytes.Buffer)
			simulation = b.WithoutMonitoring().
				WithLogger(log.New(buf, "", 0)).
				Build()
			buildProbeModel(simulation)

			soma, _ := simulation.Tree().Lookup("/model/soma")
			clamp, err := electronics.NewClampCircuit(
				simulation.Tree(), "/model/electronics", soma)
			Expect(err).ToNot(HaveOccurred())
			Expect(clamp.DoVoltageClamp(0.01)).To(Succeed())

			sched := simulation.Scheduler()
			Expect(sched.SetClock(1, 0.02)).To(Succeed())
			Expect(sched.UseClock(1, "/model/electronics/##", "process")).
				To(Succeed())
		}

		It("should only warn by default", func() {
			setUpClamp(MakeBuilder())

			validator := NewMockValidator(mockCtrl)
			validator.EXPECT().
				ValidateRun(gomock.Any(), gomock.Any()).
				Return(fmt.Errorf("stop here"))
			simulation.Scheduler().AddValidator(validator)

			err := simulation.Run(context.Background(), 1)

			Expect(err).To(MatchError("stop here"))
			Expect(buf.String()).To(ContainSubstring(
				"warning: voltage clamp /model/electronics"))
		})

		It("should refuse to run in strict mode", func() {
			setUpClamp(MakeBuilder().WithStrictClampClock())

			err := simulation.Run(context.Background(), 1)

			var clockErr *electronics.ClampClockError
			Expect(errors.As(err, &clockErr)).To(BeTrue())
			Expect(clockErr.Clock).To(Equal(1))
			Expect(simulation.Scheduler().Tick()).To(Equal(uint64(0)))
		})
	})

	It("should log ticks", func() {
		buf := new(bytes.Buffer)
		simulation = MakeBuilder().
			WithoutMonitoring().
			WithLogger(log.New(buf, "", 0)).
			WithTickLogging(false).
			Build()
		buildProbeModel(simulation)

		Expect(simulation.Run(context.Background(), 0.02)).To(Succeed())

		Expect(buf.String()).To(Equal(
			"0.0100000000, tick 1, clocks [0]\n" +
				"0.0200000000, tick 2, clocks [0]\n"))
	})

	It("should record the run and the tables", func() {
		path := filepath.Join(GinkgoT().TempDir(), "run")
		simulation = MakeBuilder().
			WithoutMonitoring().
			WithDataRecording().
			WithOutputFileName(path).
			Build()
		table := buildProbeModel(simulation)

		Expect(simulation.Run(context.Background(), 1)).To(Succeed())
		simulation.RecordTables(table)
		simulation.Terminate()
		simulation = nil

		db, err := sql.Open("sqlite3", path+".sqlite3")
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		var samples int
		Expect(db.QueryRow("SELECT COUNT(*) FROM probe_samples").Scan(&samples)).
			To(Succeed())
		Expect(samples).To(Equal(10))

		var simulated string
		Expect(db.QueryRow(
			"SELECT Value FROM run_info WHERE Property='Simulated Time'").
			Scan(&simulated)).To(Succeed())
		Expect(simulated).To(Equal("1"))
	})

	It("should stream tables while running", func() {
		path := filepath.Join(GinkgoT().TempDir(), "stream")
		simulation = MakeBuilder().
			WithoutMonitoring().
			WithDataRecording().
			WithOutputFileName(path).
			Build()
		table := buildProbeModel(simulation)
		table.Object().MustSetField("useStreamer", 1)
		simulation.GetStreamer().Size = 4

		Expect(simulation.Run(context.Background(), 1)).To(Succeed())
		Expect(table.Len()).To(Equal(2))

		simulation.Terminate()
		simulation = nil

		db, err := sql.Open("sqlite3", path+".sqlite3")
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		var samples, last int
		Expect(db.QueryRow(
			"SELECT COUNT(*), MAX(Seq) FROM probe_samples WHERE Probe='data_Vm'").
			Scan(&samples, &last)).To(Succeed())
		Expect(samples).To(Equal(10))
		Expect(last).To(Equal(9))

		var summary int
		Expect(db.QueryRow(
			"SELECT Samples FROM probes WHERE Path='/data/Vm'").
			Scan(&summary)).To(Succeed())
		Expect(summary).To(Equal(10))
	})

	It("should serve the monitoring API", func() {
		simulation = MakeBuilder().Build()
		buildProbeModel(simulation)

		Expect(simulation.Run(context.Background(), 0.1)).To(Succeed())

		port := simulation.MonitorPort()
		Expect(port).To(BeNumerically(">", 0))

		rsp, err := http.Get(fmt.Sprintf("http://localhost:%d/api/now", port))
		Expect(err).ToNot(HaveOccurred())
		defer rsp.Body.Close()
		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
	})
})
