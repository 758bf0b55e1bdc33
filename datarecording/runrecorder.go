package datarecording

import (
	"os"
	"strings"
	"time"
)

// runProperty is one row of the run_info table.
type runProperty struct {
	Property string
	Value    string
}

const timeLayout = "2006-01-02 15:04:05.000000000"

// RunRecorder writes a key-value description of a run: when it started and
// ended, how it was invoked, and whatever the caller adds with Set.
type RunRecorder struct {
	tableName string
	recorder  DataRecorder
	entries   []runProperty
}

// NewRunRecorder creates the run_info table on the recorder.
func NewRunRecorder(recorder DataRecorder) *RunRecorder {
	r := &RunRecorder{
		tableName: "run_info",
		recorder:  recorder,
	}

	recorder.CreateTable(r.tableName, runProperty{})

	return r
}

// Start notes when and how the run was started.
func (r *RunRecorder) Start() {
	r.Set("Start Time", time.Now().Format(timeLayout))
	r.Set("Command", strings.Join(os.Args, " "))

	if wd, err := os.Getwd(); err == nil {
		r.Set("Working Directory", wd)
	}

	if ex, err := os.Executable(); err == nil {
		r.Set("Executable", ex)
	}
}

// Set adds a property.
func (r *RunRecorder) Set(property, value string) {
	r.entries = append(r.entries, runProperty{Property: property, Value: value})
}

// End writes every property along with the end time.
func (r *RunRecorder) End() {
	r.Set("End Time", time.Now().Format(timeLayout))

	for _, entry := range r.entries {
		r.recorder.InsertData(r.tableName, entry)
	}

	r.entries = nil

	r.recorder.Flush()
}
