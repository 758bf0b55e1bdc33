package datarecording

import (
	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"

	"github.com/sarchlab/neurosim/neuron"
)

// ToJSON renders the samples of a table as
//
//	{"name": ..., "path": ..., "data": [...], "time": [...]}
//
// The time array is only present when withTime is set.
func ToJSON(t *neuron.Table, withTime bool) string {
	doc := map[string]any{
		"name": t.ColumnName(),
		"path": t.Object().Path(),
		"data": floats(t.Vector()),
	}

	if withTime {
		doc["time"] = floats(t.Times())
	}

	return oj.JSON(doc, &ojg.Options{Sort: true})
}

func floats(values []float64) []any {
	list := make([]any, len(values))
	for i, v := range values {
		list[i] = v
	}

	return list
}
