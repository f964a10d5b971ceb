package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/san-kum/segway/internal/config"
	"github.com/san-kum/segway/internal/logging"
	"github.com/san-kum/segway/internal/viz"
)

var (
	dataDir    string
	configFile string
	verbose    bool

	// simulation
	seed       int64
	duration   float64
	plant      string
	integrator string
	kp         float64
	kd         float64
	numRuns    int
	watch      bool
	frameRate  int
	publish    bool

	// tuning
	kpRange string
	kdRange string
	metric  string
	workers int

	// sweeps
	sweepParam string
	sweepMin   float64
	sweepMax   float64
	sweepSteps int

	// runs
	svgOut  string
	format  string
	at      float64
	band    float64
	timeout string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "segway",
		Short: "self-balancing vehicle controller and simulation bench",
		RunE: func(cmd *cobra.Command, args []string) error {
			factory, closer, err := sessionFactory(cmd)
			if err != nil {
				return err
			}
			defer closer.Close()
			return viz.RunInteractive(config.ListPresets(), factory)
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".segway", "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "drive the vehicle on real hardware",
		Args:  cobra.NoArgs,
		RunE:  runHardware,
	}

	calibrateCmd := &cobra.Command{
		Use:   "calibrate",
		Short: "record the steering range with the two calibration buttons",
		Args:  cobra.NoArgs,
		RunE:  calibrateSteering,
	}
	calibrateCmd.Flags().StringVar(&timeout, "timeout", "2m", "give up after this long")

	simCmd := &cobra.Command{
		Use:   "sim [scenario|file.yaml]",
		Short: "simulate a scripted ride and store it",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulation,
	}
	addScenarioFlags(simCmd)
	simCmd.Flags().IntVar(&numRuns, "runs", 1, "repeat with consecutive seeds and summarize")
	simCmd.Flags().BoolVar(&watch, "watch", false, "draw frames while simulating")
	simCmd.Flags().IntVar(&frameRate, "fps", 30, "frame rate with --watch")
	simCmd.Flags().BoolVar(&publish, "publish", false, "publish telemetry to the configured broker")

	liveCmd := &cobra.Command{
		Use:   "live [scenario|file.yaml]",
		Short: "ride a scenario in the terminal, keyboard takes over",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addScenarioFlags(liveCmd)

	tuneCmd := &cobra.Command{
		Use:   "tune [scenario|file.yaml]",
		Short: "grid search controller gains on a scenario",
		Args:  cobra.ExactArgs(1),
		RunE:  tuneGains,
	}
	addScenarioFlags(tuneCmd)
	tuneCmd.Flags().StringVar(&kpRange, "kp-range", "3:8:6", "kp grid as lo:hi:n")
	tuneCmd.Flags().StringVar(&kdRange, "kd-range", "0.1:0.4:4", "kd grid as lo:hi:n")
	tuneCmd.Flags().StringVar(&metric, "metric", "tilt_rms", "metric to minimise")
	tuneCmd.Flags().IntVar(&workers, "workers", 0, "parallel runs, all CPUs when 0")

	batchCmd := &cobra.Command{
		Use:   "batch [plan.yaml]",
		Short: "run a plan of scenario steps",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [scenario|file.yaml]",
		Short: "ride a scenario across a range of one plant parameter",
		Args:  cobra.ExactArgs(1),
		RunE:  runSweep,
	}
	addScenarioFlags(sweepCmd)
	sweepCmd.Flags().StringVar(&sweepParam, "param", "rider_mass", "plant parameter to vary")
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 50, "first value")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 120, "last value")
	sweepCmd.Flags().IntVar(&sweepSteps, "steps", 8, "number of values")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list scenario presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot tilt, speed, duties and battery of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&svgOut, "svg", "", "also write the traces to this SVG file")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "settling and oscillation analysis of the tilt trace",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().Float64Var(&band, "band", 0.02, "settling band, rad")

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "tilt against tilt rate",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "write a run as json, csv, or an svg frame",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&format, "format", "json", "json, csv or svg")
	exportCmd.Flags().Float64Var(&at, "at", -1, "time of the svg frame, the last sample when negative")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "write or check a config file",
	}
	configCmd.AddCommand(
		&cobra.Command{
			Use:   "init [path]",
			Short: "write the default config",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := os.Stat(args[0]); err == nil {
					return fmt.Errorf("%s already exists", args[0])
				}
				return config.Save(args[0], config.DefaultConfig())
			},
		},
		&cobra.Command{
			Use:   "check [path]",
			Short: "load and validate a config file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s: ok, %.0f Hz, kp=%.2f kd=%.2f\n", args[0], cfg.Control.TickHz, cfg.Control.Kp, cfg.Control.Kd)
				return nil
			},
		},
	)

	rootCmd.AddCommand(runCmd, calibrateCmd, simCmd, liveCmd, tuneCmd, batchCmd, sweepCmd,
		presetsCmd, listCmd, plotCmd, analyzeCmd, phaseCmd, exportCmd, configCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addScenarioFlags(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&seed, "seed", 0, "noise seed, the scenario's when unset")
	cmd.Flags().Float64Var(&duration, "time", 0, "duration, the scenario's when unset")
	cmd.Flags().StringVar(&plant, "plant", "", "plant variant")
	cmd.Flags().StringVar(&integrator, "integrator", "", "integrator")
	cmd.Flags().Float64Var(&kp, "kp", config.DefaultKp, "proportional gain")
	cmd.Flags().Float64Var(&kd, "kd", config.DefaultKd, "derivative gain")
}

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(configFile)
}

// newLogger always honours a configured log file; stderr only with -v.
func newLogger(cfg *config.Config, prefix string) (*log.Logger, io.Closer) {
	var w io.Writer = io.Discard
	if verbose {
		w = os.Stderr
	}
	return logging.New(cfg.Log, w, prefix)
}
