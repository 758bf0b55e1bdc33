// Package config reads schedule files. A schedule file assigns periods to
// clocks, binds phases to objects and may describe the run:
//
//	variable "simdt" {
//	  default = 0.01
//	}
//
//	clock "0" {
//	  period = simdt
//	}
//
//	use "0" {
//	  objects = "/model/##[TYPE=Compartment]"
//	  phase   = "process"
//	}
//
//	run {
//	  duration = 50
//	}
//
// Variables may be overridden by the caller.
package config

import (
	"sort"
	"strconv"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"
	"github.com/zclconf/go-cty/cty"

	"github.com/sarchlab/neurosim/sim"
	"github.com/sarchlab/neurosim/sim/timing"
)

// Clock sets the period of one clock.
type Clock struct {
	Index  int
	Period float64
}

// Use binds a phase to the objects a selector matches.
type Use struct {
	Clock    int
	Selector string
	Phase    string
}

// Run describes how long to run and, optionally, in which clamp mode.
type Run struct {
	Duration float64
	Mode     string
}

// Schedule is the content of a schedule file.
type Schedule struct {
	Variables map[string]float64
	Clocks    []Clock
	Uses      []Use

	// Run is nil if the file has no run block.
	Run *Run
}

type variableBlock struct {
	Name    string  `hcl:"name,label"`
	Default float64 `hcl:"default"`
}

type variablesRoot struct {
	Variables []*variableBlock `hcl:"variable,block"`
	Remain    hcl.Body         `hcl:",remain"`
}

type clockBlock struct {
	Index  string  `hcl:"index,label"`
	Period float64 `hcl:"period"`
}

type useBlock struct {
	Clock   string `hcl:"clock,label"`
	Objects string `hcl:"objects"`
	Phase   string `hcl:"phase"`
}

type runBlock struct {
	Duration float64 `hcl:"duration"`
	Mode     string  `hcl:"mode,optional"`
}

type scheduleRoot struct {
	Clocks []*clockBlock `hcl:"clock,block"`
	Uses   []*useBlock   `hcl:"use,block"`
	Run    *runBlock     `hcl:"run,block"`
}

// Load reads a schedule file. Entries in vars override the defaults of the
// variables declared in the file.
func Load(filename string, vars map[string]float64) (*Schedule, error) {
	parser := hclparse.NewParser()

	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "failed to parse schedule file %s", filename)
	}

	return decode(file, filename, vars)
}

// Parse reads a schedule from memory. The filename is only used in error
// messages.
func Parse(src []byte, filename string, vars map[string]float64) (*Schedule, error) {
	parser := hclparse.NewParser()

	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "failed to parse schedule file %s", filename)
	}

	return decode(file, filename, vars)
}

func decode(file *hcl.File, filename string, vars map[string]float64) (*Schedule, error) {
	var vr variablesRoot

	diags := gohcl.DecodeBody(file.Body, nil, &vr)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "failed to decode variables in %s", filename)
	}

	s := &Schedule{Variables: make(map[string]float64)}
	for _, v := range vr.Variables {
		if _, dup := s.Variables[v.Name]; dup {
			return nil, errors.Errorf("%s: variable %q declared twice", filename, v.Name)
		}

		s.Variables[v.Name] = v.Default
	}

	for name, value := range vars {
		s.Variables[name] = value
	}

	var root scheduleRoot

	diags = gohcl.DecodeBody(vr.Remain, s.evalContext(), &root)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "failed to decode schedule file %s", filename)
	}

	if err := s.translate(&root); err != nil {
		return nil, errors.Wrapf(err, "invalid schedule file %s", filename)
	}

	return s, nil
}

func (s *Schedule) evalContext() *hcl.EvalContext {
	variables := make(map[string]cty.Value, len(s.Variables))
	for name, value := range s.Variables {
		variables[name] = cty.NumberFloatVal(value)
	}

	return &hcl.EvalContext{Variables: variables}
}

func (s *Schedule) translate(root *scheduleRoot) error {
	seen := make(map[int]bool)

	for _, c := range root.Clocks {
		index, err := clockIndex(c.Index)
		if err != nil {
			return err
		}

		if seen[index] {
			return errors.Errorf("clock %d is configured twice", index)
		}
		seen[index] = true

		s.Clocks = append(s.Clocks, Clock{Index: index, Period: c.Period})
	}

	sort.SliceStable(s.Clocks, func(i, j int) bool {
		return s.Clocks[i].Index < s.Clocks[j].Index
	})

	for _, u := range root.Uses {
		index, err := clockIndex(u.Clock)
		if err != nil {
			return err
		}

		s.Uses = append(s.Uses, Use{
			Clock:    index,
			Selector: u.Objects,
			Phase:    u.Phase,
		})
	}

	if root.Run != nil {
		s.Run = &Run{Duration: root.Run.Duration, Mode: root.Run.Mode}
	}

	return nil
}

func clockIndex(label string) (int, error) {
	index, err := strconv.Atoi(label)
	if err != nil || index < 0 {
		return 0, errors.Errorf("clock label %q is not a clock index", label)
	}

	return index, nil
}

// Apply configures a scheduler: every clock period first, then every use in
// file order.
func (s *Schedule) Apply(scheduler *timing.Scheduler) error {
	for _, c := range s.Clocks {
		if err := scheduler.SetClock(c.Index, sim.VTime(c.Period)); err != nil {
			return errors.Wrapf(err, "clock %d", c.Index)
		}
	}

	for _, u := range s.Uses {
		if err := scheduler.UseClock(u.Clock, u.Selector, u.Phase); err != nil {
			return errors.Wrapf(err, "use %d %s %s", u.Clock, u.Selector, u.Phase)
		}
	}

	return nil
}
