package datarecording

import (
	"github.com/sarchlab/neurosim/neuron"
)

const (
	probesTable  = "probes"
	samplesTable = "probe_samples"
)

// ProbeSample is one row of the probe_samples table.
type ProbeSample struct {
	Probe string
	Seq   int
	Time  float64
	Value float64
}

// probeSummary is one row of the probes table.
type probeSummary struct {
	Probe   string
	Path    string
	Samples int
	Dt      float64
}

// ProbeWriter stores the content of recording tables into a DataRecorder.
type ProbeWriter struct {
	recorder DataRecorder
}

// NewProbeWriter creates a writer over a recorder.
func NewProbeWriter(recorder DataRecorder) *ProbeWriter {
	return &ProbeWriter{recorder: recorder}
}

func createProbeTables(recorder DataRecorder) {
	recorder.CreateTable(probesTable, probeSummary{})
	recorder.CreateTable(samplesTable, ProbeSample{})
}

// Write stores every sample of the tables and flushes.
func (w *ProbeWriter) Write(tables ...*neuron.Table) {
	createProbeTables(w.recorder)

	for _, t := range tables {
		name := t.ColumnName()
		times := t.Times()
		values := t.Vector()
		dt, _ := t.Object().GetField("dt")

		w.recorder.InsertData(probesTable, probeSummary{
			Probe:   name,
			Path:    t.Object().Path(),
			Samples: len(values),
			Dt:      dt,
		})

		for i, v := range values {
			w.recorder.InsertData(samplesTable, ProbeSample{
				Probe: name,
				Seq:   i,
				Time:  times[i],
				Value: v,
			})
		}
	}

	w.recorder.Flush()
}
