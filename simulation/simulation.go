// Package simulation puts an object tree, its scheduler and the optional
// recorder and monitor together and runs them.
package simulation

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/pkg/errors"

	"github.com/sarchlab/neurosim/datarecording"
	"github.com/sarchlab/neurosim/monitoring"
	"github.com/sarchlab/neurosim/neuron"
	"github.com/sarchlab/neurosim/sim"
	"github.com/sarchlab/neurosim/sim/timing"
)

// InvalidDurationError reports a run length that is not a positive, finite
// time.
type InvalidDurationError struct {
	Duration sim.VTime
}

func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("invalid run duration %g", float64(e.Duration))
}

// A Simulation provides the service requires to define and run a model.
type Simulation struct {
	id     string
	logger *log.Logger

	tree      *sim.Tree
	scheduler *timing.Scheduler

	dataRecorder datarecording.DataRecorder
	runRecorder  *datarecording.RunRecorder
	probeWriter  *datarecording.ProbeWriter
	streamer     *datarecording.Streamer

	monitor     *monitoring.Monitor
	monitorPort int
	progress    *monitoring.TickProgress
}

// ID returns the unique ID of the simulation run.
func (s *Simulation) ID() string {
	return s.id
}

// Tree returns the object tree of the model.
func (s *Simulation) Tree() *sim.Tree {
	return s.tree
}

// Scheduler returns the scheduler that advances the model.
func (s *Simulation) Scheduler() *timing.Scheduler {
	return s.scheduler
}

// Logger returns the logger used for warnings.
func (s *Simulation) Logger() *log.Logger {
	return s.logger
}

// GetDataRecorder returns the data recorder used in the simulation. It is nil
// unless data recording is enabled.
func (s *Simulation) GetDataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// GetMonitor returns the monitor used in the simulation. It is nil unless
// monitoring is enabled.
func (s *Simulation) GetMonitor() *monitoring.Monitor {
	return s.monitor
}

// MonitorPort returns the port of the monitoring server, or 0.
func (s *Simulation) MonitorPort() int {
	return s.monitorPort
}

// Run reinitializes the model and runs it for duration. A schedule whose
// clocks do not line up is rejected before the model is touched.
func (s *Simulation) Run(ctx context.Context, duration sim.VTime) error {
	if err := durationMustBeValid(duration); err != nil {
		return err
	}

	if _, err := s.scheduler.Plan(); err != nil {
		return err
	}

	if s.streamer != nil {
		s.streamer.Finish()
	}

	if err := s.scheduler.Reinit(); err != nil {
		return errors.Wrap(err, "reinit")
	}

	return s.start(ctx, duration)
}

// Continue runs the model for duration more, without reinitializing it.
func (s *Simulation) Continue(ctx context.Context, duration sim.VTime) error {
	if err := durationMustBeValid(duration); err != nil {
		return err
	}

	return s.start(ctx, duration)
}

func durationMustBeValid(duration sim.VTime) error {
	d := float64(duration)
	if !(d > 0) || math.IsInf(d, 0) {
		return &InvalidDurationError{Duration: duration}
	}

	return nil
}

func (s *Simulation) start(ctx context.Context, duration sim.VTime) error {
	if s.progress != nil {
		if plan, err := s.scheduler.Plan(); err == nil {
			bar := s.monitor.CreateProgressBar(
				fmt.Sprintf("run %g", float64(duration)), plan.Ticks(duration))
			s.progress.Bar = bar

			defer func() {
				s.monitor.CompleteProgressBar(bar)
				s.progress.Bar = nil
			}()
		}
	}

	return s.scheduler.Start(ctx, duration)
}

// RecordTables writes the samples of the tables into the data recorder. It
// does nothing if data recording is disabled.
func (s *Simulation) RecordTables(tables ...*neuron.Table) {
	if s.dataRecorder == nil {
		return
	}

	if s.probeWriter == nil {
		s.probeWriter = datarecording.NewProbeWriter(s.dataRecorder)
	}

	s.probeWriter.Write(tables...)
}

// GetStreamer returns the streamer feeding tables that have useStreamer set
// into the data recorder. It is nil unless data recording is enabled.
func (s *Simulation) GetStreamer() *datarecording.Streamer {
	return s.streamer
}

// Terminate terminates the simulation.
func (s *Simulation) Terminate() {
	if s.streamer != nil {
		s.streamer.Finish()
		s.streamer = nil
	}

	if s.runRecorder != nil {
		s.runRecorder.Set("Simulated Time", fmt.Sprintf("%g", float64(s.scheduler.Now())))
		s.runRecorder.End()
		s.runRecorder = nil
	}

	if s.dataRecorder != nil {
		if err := s.dataRecorder.Close(); err != nil {
			s.logger.Printf("closing data recorder: %v", err)
		}

		s.dataRecorder = nil
	}

	if s.monitor != nil {
		s.monitor.StopServer()
	}
}
