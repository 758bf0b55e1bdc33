package datarecording

import (
	"math"

	"github.com/sarchlab/neurosim/neuron"
	"github.com/sarchlab/neurosim/sim"
	"github.com/sarchlab/neurosim/sim/timing"
)

// Default drain conditions of a Streamer.
const (
	DefaultStreamSize               = 10000
	DefaultStreamInterval sim.VTime = 5
)

// A Streamer moves the samples of tables that have useStreamer set into a
// DataRecorder while a run goes on, so that long runs do not keep every
// sample in memory. A table is drained after a tick that leaves it holding
// at least Size samples, or that ends on a multiple of Interval. Drained
// samples are removed from the table.
//
// The streamer follows a scheduler as a hook. It picks up the streamed
// tables when the scheduler reinitializes.
type Streamer struct {
	Size     int
	Interval sim.VTime

	recorder DataRecorder
	tree     *sim.Tree
	streams  []*stream
}

type stream struct {
	table   *neuron.Table
	probe   string
	path    string
	dt      float64
	written int
}

// NewStreamer creates a streamer that writes the tables of tree into
// recorder.
func NewStreamer(recorder DataRecorder, tree *sim.Tree) *Streamer {
	return &Streamer{
		Size:     DefaultStreamSize,
		Interval: DefaultStreamInterval,
		recorder: recorder,
		tree:     tree,
	}
}

// Func picks up streamed tables on reinit and drains them after ticks.
func (s *Streamer) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case timing.HookPosReinit:
		s.attach()
	case timing.HookPosAfterTick:
		s.afterTick(ctx.Now)
	}
}

// Streams returns the paths of the tables being streamed.
func (s *Streamer) Streams() []string {
	paths := make([]string, 0, len(s.streams))
	for _, st := range s.streams {
		paths = append(paths, st.path)
	}

	return paths
}

func (s *Streamer) attach() {
	s.Finish()
	createProbeTables(s.recorder)

	for o := range s.tree.Walk() {
		t, ok := neuron.TableOf(o)
		if !ok || !t.Streamed() {
			continue
		}

		dt, _ := o.GetField("dt")
		s.streams = append(s.streams, &stream{
			table: t,
			probe: t.ColumnName(),
			path:  o.Path(),
			dt:    dt,
		})
	}
}

func (s *Streamer) afterTick(now sim.VTime) {
	onInterval := s.onInterval(now)
	drained := false

	for _, st := range s.streams {
		if onInterval || st.table.Len() >= s.Size {
			s.drain(st)
			drained = true
		}
	}

	if drained {
		s.recorder.Flush()
	}
}

func (s *Streamer) onInterval(now sim.VTime) bool {
	if s.Interval <= 0 || now <= 0 {
		return false
	}

	ratio := float64(now / s.Interval)

	return math.Abs(ratio-math.Round(ratio)) <= 1e-9*math.Max(1, ratio)
}

func (s *Streamer) drain(st *stream) {
	times, values := st.table.CollectData(true, true)

	for i, v := range values {
		s.recorder.InsertData(samplesTable, ProbeSample{
			Probe: st.probe,
			Seq:   st.written,
			Time:  times[i],
			Value: v,
		})
		st.written++
	}
}

// Finish drains every streamed table and records how many samples each one
// produced. The streamer forgets the tables until the next reinit.
func (s *Streamer) Finish() {
	if len(s.streams) == 0 {
		return
	}

	for _, st := range s.streams {
		s.drain(st)
		s.recorder.InsertData(probesTable, probeSummary{
			Probe:   st.probe,
			Path:    st.path,
			Samples: st.written,
			Dt:      st.dt,
		})
	}

	s.streams = nil
	s.recorder.Flush()
}
