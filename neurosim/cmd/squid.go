package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/pkg/browser"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sarchlab/neurosim/config"
	"github.com/sarchlab/neurosim/electronics"
	"github.com/sarchlab/neurosim/examples/squid"
	"github.com/sarchlab/neurosim/sim"
	"github.com/sarchlab/neurosim/simulation"
)

type squidOptions struct {
	mode        string
	runtime     float64
	simDt       float64
	plotDt      float64
	out         string
	schedule    string
	db          string
	monitor     bool
	monitorPort int
	openMonitor bool
	verbose     bool
	strictClamp bool
}

var squidOpts squidOptions

var squidCmd = &cobra.Command{
	Use:   "squid",
	Short: "Run the squid axon demo under a voltage or current clamp.",
	Long: `Run the Hodgkin-Huxley squid axon demo. The axon is driven by a ` +
		`clamp circuit and its membrane potential and current are sampled ` +
		`every plot step. The samples are written as CSV files to --out ` +
		`and, with --db, to an SQLite database.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts := squidOpts
		opts.applyEnv(cmd)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return runSquid(ctx, cmd, opts)
	},
}

func init() {
	f := squidCmd.Flags()
	f.StringVar(&squidOpts.mode, "mode", "current", "clamp mode, voltage or current")
	f.Float64Var(&squidOpts.runtime, "runtime", squid.DefaultRunTime, "simulated time to run (ms)")
	f.Float64Var(&squidOpts.simDt, "simdt", squid.DefaultSimDt, "integration step (ms)")
	f.Float64Var(&squidOpts.plotDt, "plotdt", squid.DefaultPlotDt, "sampling step (ms)")
	f.StringVar(&squidOpts.out, "out", ".", "directory for the CSV files")
	f.StringVar(&squidOpts.schedule, "schedule", "", "schedule file to use instead of the built-in schedule")
	f.StringVar(&squidOpts.db, "db", "", "record the run into <db>.sqlite3")
	f.BoolVar(&squidOpts.monitor, "monitor", false, "serve the monitoring API while running")
	f.IntVar(&squidOpts.monitorPort, "monitor-port", 0, "port of the monitoring server")
	f.BoolVar(&squidOpts.openMonitor, "open-monitor", false, "open the monitor in a browser")
	f.BoolVar(&squidOpts.verbose, "verbose", false, "log every tick")
	f.BoolVar(&squidOpts.strictClamp, "strict-clamp-clock", false,
		"fail when the voltage clamp does not run on the finest clock")

	rootCmd.AddCommand(squidCmd)
}

// applyEnv fills the flags that were not given from NEUROSIM_* variables.
func (o *squidOptions) applyEnv(cmd *cobra.Command) {
	flags := cmd.Flags()

	if !flags.Changed("out") {
		o.out = envString("NEUROSIM_OUT", o.out)
	}

	if !flags.Changed("db") {
		o.db = envString("NEUROSIM_DB", o.db)
	}

	if !flags.Changed("monitor-port") {
		o.monitorPort = envInt("NEUROSIM_MONITOR_PORT", o.monitorPort)
	}

	if o.openMonitor || o.monitorPort != 0 {
		o.monitor = true
	}
}

func (o squidOptions) builder(w io.Writer) simulation.Builder {
	b := simulation.MakeBuilder().
		WithNumClocks(4).
		WithLogger(log.New(w, "", 0))

	if o.monitor {
		if o.monitorPort != 0 {
			b = b.WithMonitorPort(o.monitorPort)
		}
	} else {
		b = b.WithoutMonitoring()
	}

	if o.db != "" {
		b = b.WithDataRecording().WithOutputFileName(o.db)
	}

	if o.strictClamp {
		b = b.WithStrictClampClock()
	}

	if o.verbose {
		b = b.WithTickLogging(false)
	}

	return b
}

func runSquid(ctx context.Context, cmd *cobra.Command, o squidOptions) error {
	s := o.builder(cmd.ErrOrStderr()).Build()
	defer s.Terminate()

	demo, err := squid.NewDemo(s)
	if err != nil {
		return err
	}

	mode, runtime, err := scheduleSquid(cmd, demo, o)
	if err != nil {
		return err
	}

	if o.openMonitor {
		url := fmt.Sprintf("http://localhost:%d", s.MonitorPort())
		if err := browser.OpenURL(url); err != nil {
			s.Logger().Printf("warning: cannot open %s: %v", url, err)
		}
	}

	err = demo.Run(ctx, mode, sim.VTime(runtime))
	if err != nil {
		return errors.Wrap(err, "squid demo")
	}

	paths, err := demo.SaveData(o.out)
	if err != nil {
		return err
	}

	s.RecordTables(demo.Tables()...)

	fmt.Fprintf(cmd.OutOrStdout(),
		"%s clamp, %g ms, %d samples, %d spikes\n",
		mode, float64(s.Scheduler().Now()), demo.VmTable.Len(), demo.SpikeTable.Len())

	for _, p := range paths {
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", p)
	}

	return nil
}

// scheduleSquid configures the clocks, from the schedule file if one is
// given, and decides the clamp mode and the run time. Flags given on the
// command line take precedence over the run block of the file.
func scheduleSquid(
	cmd *cobra.Command,
	demo *squid.Demo,
	o squidOptions,
) (electronics.ClampMode, float64, error) {
	flags := cmd.Flags()
	modeName := o.mode
	runtime := o.runtime

	if o.schedule == "" {
		err := demo.Schedule(sim.VTime(o.simDt), sim.VTime(o.plotDt))
		if err != nil {
			return 0, 0, err
		}
	} else {
		vars := map[string]float64{}
		if flags.Changed("simdt") {
			vars["simdt"] = o.simDt
		}

		if flags.Changed("plotdt") {
			vars["plotdt"] = o.plotDt
		}

		schedule, err := config.Load(o.schedule, vars)
		if err != nil {
			return 0, 0, err
		}

		if err := demo.ApplySchedule(schedule); err != nil {
			return 0, 0, err
		}

		if schedule.Run != nil {
			if !flags.Changed("mode") && schedule.Run.Mode != "" {
				modeName = schedule.Run.Mode
			}

			if !flags.Changed("runtime") && schedule.Run.Duration != 0 {
				runtime = schedule.Run.Duration
			}
		}
	}

	mode, err := electronics.ParseClampMode(modeName)
	if err != nil {
		return 0, 0, err
	}

	return mode, runtime, nil
}
