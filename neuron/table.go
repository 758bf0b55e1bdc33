package neuron

import (
	"strings"

	"github.com/sarchlab/neurosim/sim"
)

// Field layout of TableClass.
const (
	TableThreshold sim.FieldIndex = iota
	TableUseSpikeMode
	TableDt
	TableSize
	TableUseStreamer
)

// TableClass records a time series. When its process phase runs it stores
// every value pulled through "requestData". Values pushed into "input" are
// stored as they arrive. With useSpikeMode set, a table stores the times at
// which the pulled value crosses threshold upwards instead of the values.
// With useStreamer set, a datarecording.Streamer moves the samples out of
// memory while the run goes on.
var TableClass = sim.DefineClass(sim.Class{
	Name: "Table",
	Doc:  "Time series recorder.",
	Fields: []sim.FieldInfo{
		{Name: "threshold"},
		{Name: "useSpikeMode"},
		{Name: "dt", ReadOnly: true, Doc: "period of the clock driving the table"},
		{Name: "size", ReadOnly: true},
		{Name: "useStreamer", Doc: "non-zero to stream samples to a recorder"},
	},
	Ports: []sim.PortInfo{
		{Name: "requestData", Dir: sim.Src, Mode: sim.Pull, Arity: 1},
		{
			Name: "input", Dir: sim.Dest, Mode: sim.Push, Arity: 1,
			Input: tableInput,
		},
		{
			Name: "spike", Dir: sim.Dest, Mode: sim.Push, Arity: 1,
			Input: tableSpike,
		},
	},
	Phases: []sim.Phase{
		{
			Name:     "process",
			Category: sim.ProcessPhase,
			Run:      tableProcess,
			Reinit:   tableReinit,
		},
	},
	New: func(o *sim.Object) any { return &Table{obj: o} },
})

// Table holds the samples of a Table object.
type Table struct {
	obj *sim.Object

	values   []float64
	times    []float64
	lastTime float64
	fired    bool
	column   string

	// lastN marks how many samples CollectData has handed out.
	lastN int

	savedLen   int
	savedFired bool
	savedLast  float64
}

// TableOf returns the samples of a Table object.
func TableOf(o *sim.Object) (*Table, bool) {
	t, ok := o.Behavior().(*Table)
	return t, ok
}

// Object returns the object the samples belong to.
func (t *Table) Object() *sim.Object {
	return t.obj
}

// Vector returns a copy of the recorded values.
func (t *Table) Vector() []float64 {
	return append([]float64(nil), t.values...)
}

// Times returns a copy of the time of every recorded value.
func (t *Table) Times() []float64 {
	return append([]float64(nil), t.times...)
}

// Len returns the number of samples.
func (t *Table) Len() int {
	return len(t.values)
}

// ColumnName returns the name used when the samples are exported. It
// defaults to the object's path with the separators replaced.
func (t *Table) ColumnName() string {
	if t.column != "" {
		return t.column
	}

	return strings.ReplaceAll(strings.TrimPrefix(t.obj.Path(), "/"), "/", "_")
}

// SetColumnName overrides the export name.
func (t *Table) SetColumnName(name string) {
	t.column = name
}

// CollectData returns the samples recorded since the previous call, paired
// with their times if withTime is set. With clear set, the returned samples
// are dropped from the table.
func (t *Table) CollectData(withTime, clear bool) (times, values []float64) {
	start := t.lastN
	if start > len(t.values) {
		start = 0
	}

	values = append([]float64(nil), t.values[start:]...)
	if withTime {
		times = append([]float64(nil), t.times[start:]...)
	}

	if clear {
		t.values = t.values[:0]
		t.times = t.times[:0]
		t.lastN = 0
		t.savedLen = 0
		t.obj.Set(TableSize, 0)
	} else {
		t.lastN = len(t.values)
	}

	return times, values
}

func (t *Table) Commit() {
	t.savedLen = len(t.values)
	t.savedFired = t.fired
	t.savedLast = t.lastTime
}

func (t *Table) Discard() {
	t.values = t.values[:t.savedLen]
	t.times = t.times[:t.savedLen]
	t.fired = t.savedFired
	t.lastTime = t.savedLast
	t.obj.Set(TableSize, float64(len(t.values)))
}

func (t *Table) record(time, value float64) {
	t.values = append(t.values, value)
	t.times = append(t.times, time)
	t.obj.Set(TableSize, float64(len(t.values)))
}

// spikeTest records the time of upward threshold crossings. The table must
// fall below threshold again before another spike counts.
func (t *Table) spikeTest(time, value float64) {
	threshold := t.obj.Get(TableThreshold)

	if value > threshold && !t.fired {
		t.record(time, time)
		t.fired = true
	} else if value < threshold {
		t.fired = false
	}
}

// Streamed tells if the table asked for its samples to be streamed.
func (t *Table) Streamed() bool {
	return t.obj.Get(TableUseStreamer) != 0
}

func (t *Table) spikeMode() bool {
	return t.obj.Get(TableUseSpikeMode) != 0
}

func tableInput(o *sim.Object, values []float64) error {
	t := o.Behavior().(*Table)
	t.record(t.lastTime, values[0])

	return nil
}

func tableSpike(o *sim.Object, values []float64) error {
	t := o.Behavior().(*Table)
	t.spikeTest(t.lastTime, values[0])

	return nil
}

func tableReinit(o *sim.Object, p *sim.ProcInfo) error {
	t := o.Behavior().(*Table)
	t.values = t.values[:0]
	t.times = t.times[:0]
	t.lastTime = 0
	t.lastN = 0
	t.fired = false

	o.Set(TableDt, float64(p.Dt))
	o.Set(TableSize, 0)

	return nil
}

func tableProcess(o *sim.Object, p *sim.ProcInfo) error {
	t := o.Behavior().(*Table)
	t.lastTime = float64(p.Now)

	for _, v := range o.Pulled("requestData") {
		if t.spikeMode() {
			t.spikeTest(t.lastTime, v)
		} else {
			t.record(t.lastTime, v)
		}
	}

	return nil
}
