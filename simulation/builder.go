package simulation

import (
	"log"
	"os"

	"github.com/rs/xid"

	"github.com/sarchlab/neurosim/datarecording"
	"github.com/sarchlab/neurosim/electronics"
	"github.com/sarchlab/neurosim/monitoring"
	"github.com/sarchlab/neurosim/sim"
	"github.com/sarchlab/neurosim/sim/timing"
)

// Builder can be used to build a simulation.
type Builder struct {
	numClocks        int
	monitorOn        bool
	monitorPort      int
	recordingOn      bool
	outputFileName   string
	strictClampClock bool
	logger           *log.Logger
	tickLogging      bool
	verboseTicks     bool
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		numClocks: timing.DefaultNumClocks,
		monitorOn: true,
	}
}

// WithNumClocks sets how many clocks the scheduler owns.
func (b Builder) WithNumClocks(n int) Builder {
	b.numClocks = n
	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithDataRecording stores the run description and the recorded tables in
// an SQLite database.
func (b Builder) WithDataRecording() Builder {
	b.recordingOn = true
	return b
}

// WithOutputFileName sets the custom output file name for the data recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithStrictClampClock makes a run fail when a voltage clamp controller is
// not scheduled on the finest clock. By default this is only logged.
func (b Builder) WithStrictClampClock() Builder {
	b.strictClampClock = true
	return b
}

// WithLogger sets the logger for warnings and tick logs.
func (b Builder) WithLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// WithTickLogging prints every tick, or every phase if verbose is set, to
// the logger.
func (b Builder) WithTickLogging(verbose bool) Builder {
	b.tickLogging = true
	b.verboseTicks = verbose
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}

	if !b.recordingOn && b.outputFileName != "" {
		panic("output file name cannot be set when data recording is disabled")
	}
}

// Build builds the simulation.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{}
	s.id = xid.New().String()

	s.logger = b.logger
	if s.logger == nil {
		s.logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	s.tree = sim.NewTree()
	s.scheduler = timing.NewScheduler(s.tree, b.numClocks)
	s.scheduler.AddValidator(&electronics.ClockPolicy{
		Strict: b.strictClampClock,
		Logger: s.logger,
	})

	if b.tickLogging {
		tickLogger := timing.NewTickLogger(s.logger)
		tickLogger.Verbose = b.verboseTicks
		s.scheduler.AcceptHook(tickLogger)
	}

	if b.recordingOn {
		outputPath := b.outputFileName
		if outputPath == "" {
			outputPath = "neurosim_" + s.id
		}

		s.dataRecorder = datarecording.New(outputPath)
		s.runRecorder = datarecording.NewRunRecorder(s.dataRecorder)
		s.runRecorder.Start()
		s.runRecorder.Set("Run ID", s.id)

		s.streamer = datarecording.NewStreamer(s.dataRecorder, s.tree)
		s.scheduler.AcceptHook(s.streamer)
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}
		s.monitor.RegisterScheduler(s.scheduler)
		s.monitorPort = s.monitor.StartServer()

		s.progress = monitoring.NewTickProgress(nil)
		s.scheduler.AcceptHook(s.progress)
	}

	return s
}
