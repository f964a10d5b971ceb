package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/segway/internal/config"
	"github.com/san-kum/segway/internal/control"
	"github.com/san-kum/segway/internal/experiment"
	"github.com/san-kum/segway/internal/logging"
	"github.com/san-kum/segway/internal/optim"
	"github.com/san-kum/segway/internal/sim"
	"github.com/san-kum/segway/internal/storage"
	"github.com/san-kum/segway/internal/telemetry"
	"github.com/san-kum/segway/internal/vehicle"
	"github.com/san-kum/segway/internal/viz"
)

// loadScenario accepts a preset name or a YAML file.
func loadScenario(arg string) (*config.Scenario, error) {
	if sc := config.GetPreset(arg); sc != nil {
		return sc, nil
	}
	if _, err := os.Stat(arg); err == nil {
		return config.LoadScenario(arg)
	}
	return nil, fmt.Errorf("unknown scenario %q (presets: %s)", arg, strings.Join(config.ListPresets(), ", "))
}

// vehicleConfig applies the gain flags on top of the config file.
func vehicleConfig(cmd *cobra.Command, cfg *config.Config) (vehicle.Config, error) {
	vc := cfg.Vehicle()
	if cmd.Flags().Changed("kp") {
		if err := vc.Control.SetParam(control.ParamKp, kp); err != nil {
			return vc, err
		}
	}
	if cmd.Flags().Changed("kd") {
		if err := vc.Control.SetParam(control.ParamKd, kd); err != nil {
			return vc, err
		}
	}
	return vc, vc.Validate()
}

// scenarioFor loads the scenario and applies the override flags.
func scenarioFor(cmd *cobra.Command, name string) (*config.Scenario, error) {
	sc, err := loadScenario(name)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("seed") {
		sc.Seed = seed
	}
	if cmd.Flags().Changed("time") {
		sc.Duration = duration
	}
	if cmd.Flags().Changed("plant") {
		sc.Plant = plant
	}
	if cmd.Flags().Changed("integrator") {
		sc.Integrator = integrator
	}
	return sc, sc.Validate()
}

func buildExperiment(cmd *cobra.Command, cfg *config.Config, name string, tel vehicle.Telemetry, logger *log.Logger) (*experiment.Experiment, error) {
	sc, err := scenarioFor(cmd, name)
	if err != nil {
		return nil, err
	}
	vc, err := vehicleConfig(cmd, cfg)
	if err != nil {
		return nil, err
	}
	return experiment.New(experiment.NewRegistry(), experiment.Config{
		Scenario:  sc,
		Vehicle:   vc,
		Telemetry: tel,
		Logger:    logger,
	})
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closer := newLogger(cfg, "segway: ")
	defer closer.Close()

	var tel vehicle.Telemetry
	if publish {
		m, err := dialTelemetry(cfg, logger)
		if err != nil {
			return err
		}
		defer m.Close()
		tel = m
	}

	exp, err := buildExperiment(cmd, cfg, args[0], tel, logger)
	if err != nil {
		return err
	}
	sc := exp.Scenario()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if numRuns > 1 {
		return runEnsemble(ctx, exp, sc)
	}

	if watch {
		r := viz.NewRenderer(sc.Name, os.Stdout, frameRate)
		exp.GetSimulator().AddObserver(r)
		r.Start()
		defer r.Stop()
	}

	fmt.Printf("simulating %s (%.1fs, seed %d)...\n", sc.Name, sc.Duration, sc.Seed)
	start := time.Now()
	result, err := exp.Run(ctx)
	if err != nil && !sim.Faulted(err) {
		return err
	}
	elapsed := time.Since(start)
	if err != nil {
		fmt.Printf("vehicle fault: %v\n", err)
	}

	st := storage.New(dataDir)
	vc := exp.GetSimulator().Options().Vehicle
	runID, serr := st.Save(storage.RunMetadata{
		Scenario:   sc.Name,
		Plant:      sc.Plant,
		Integrator: sc.Integrator,
		Duration:   sc.Duration,
		Kp:         float64(vc.Control.Kp),
		Kd:         float64(vc.Control.Kd),
	}, result)
	if serr != nil {
		return serr
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("ticks: %d\n", result.StepsTaken)
	if result.CutoffAt >= 0 {
		fmt.Printf("battery cutoff at %.2fs\n", result.CutoffAt)
	}
	if result.FellAt >= 0 {
		fmt.Printf("fell at %.2fs\n", result.FellAt)
	}
	printMetrics(result.Metrics)
	return err
}

func runEnsemble(ctx context.Context, exp *experiment.Experiment, sc *config.Scenario) error {
	fmt.Printf("simulating %s %d times from seed %d...\n", sc.Name, numRuns, sc.Seed)
	results, errs, err := sim.NewEnsemble(exp.GetSimulator(), numRuns, sc.Seed).Run(ctx, sc)
	if err != nil {
		return err
	}
	faults := 0
	for _, e := range errs {
		if e != nil {
			faults++
		}
	}

	var names []string
	for _, r := range results {
		if r == nil {
			continue
		}
		for name := range r.Metrics {
			names = append(names, name)
		}
		break
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tMEAN\tMIN\tMAX")
	for _, name := range names {
		s := sim.Summarize(results, name)
		fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.4f\n", name, s.Mean, s.Min, s.Max)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("faulted runs: %d/%d\n", faults, numRuns)
	return nil
}

func printMetrics(m map[string]float64) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, m[name])
	}
}

func dialTelemetry(cfg *config.Config, logger *log.Logger) (*telemetry.MQTT, error) {
	return telemetry.Dial(telemetry.Options{
		Broker:      cfg.Telemetry.Broker,
		ClientID:    cfg.Telemetry.ClientID,
		TopicPrefix: cfg.Telemetry.TopicPrefix,
		QueueSize:   cfg.Telemetry.QueueSize,
	}, logger)
}

// sessionFactory builds sessions for the terminal views, which own the
// screen, so logs only go to the configured file.
func sessionFactory(cmd *cobra.Command) (viz.SessionFactory, io.Closer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, closer := logging.New(cfg.Log, io.Discard, "segway: ")
	return func(name string) (*sim.Session, error) {
		exp, err := buildExperiment(cmd, cfg, name, nil, logger)
		if err != nil {
			return nil, err
		}
		return exp.Session()
	}, closer, nil
}

func runLive(cmd *cobra.Command, args []string) error {
	factory, closer, err := sessionFactory(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()
	if len(args) == 0 {
		return viz.RunInteractive(config.ListPresets(), factory)
	}

	name := args[0]
	m, err := viz.NewModel(name, func() (*sim.Session, error) { return factory(name) })
	if err != nil {
		return err
	}
	return viz.Run(m)
}

func tuneGains(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sc, err := scenarioFor(cmd, args[0])
	if err != nil {
		return err
	}
	vc, err := vehicleConfig(cmd, cfg)
	if err != nil {
		return err
	}
	kps, err := parseRange(kpRange)
	if err != nil {
		return fmt.Errorf("--kp-range: %w", err)
	}
	kds, err := parseRange(kdRange)
	if err != nil {
		return fmt.Errorf("--kd-range: %w", err)
	}

	var objective optim.Objective
	switch metric {
	case "upright", "active_fraction":
		objective = optim.Maximize(metric)
	default:
		objective = optim.MetricObjective(metric)
	}

	gs := optim.NewGridSearch([]string{control.ParamKp, control.ParamKd}, [][]float64{kps, kds})
	gs.Workers = workers

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("tuning %s on %s over %d points...\n", metric, sc.Name, len(kps)*len(kds))
	report, err := gs.Search(ctx, optim.VehicleBuilder(experiment.NewRegistry(), sc, vc), objective)
	if report == nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KP\tKD\tSCORE")
	for _, tr := range report.Trials {
		score := fmt.Sprintf("%.5f", tr.Score)
		if tr.Err != nil {
			score = "error: " + tr.Err.Error()
		}
		fmt.Fprintf(w, "%.3f\t%.3f\t%s\n", tr.Params[control.ParamKp], tr.Params[control.ParamKd], score)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}
	fmt.Printf("\nbest: kp=%.3f kd=%.3f (%s score %.5f)\n",
		report.Best[control.ParamKp], report.Best[control.ParamKd], metric, report.Score)
	return nil
}

// parseRange reads lo:hi:n, or a single value.
func parseRange(s string) ([]float64, error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		v, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, err
		}
		return []float64{v}, nil
	case 3:
		lo, err1 := strconv.ParseFloat(parts[0], 64)
		hi, err2 := strconv.ParseFloat(parts[1], 64)
		n, err3 := strconv.Atoi(parts[2])
		if err := errors.Join(err1, err2, err3); err != nil {
			return nil, err
		}
		if n < 1 {
			return nil, fmt.Errorf("need at least one point, got %d", n)
		}
		return optim.Linspace(lo, hi, n), nil
	}
	return nil, fmt.Errorf("want lo:hi:n, got %q", s)
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDURATION\tMOUNT\tDISMOUNT\tPUSHES\tBATTERY")
	for _, name := range config.ListPresets() {
		sc := config.GetPreset(name)
		dismount := "-"
		if sc.Dismount > sc.Mount {
			dismount = fmt.Sprintf("%.1fs", sc.Dismount)
		}
		fmt.Fprintf(w, "%s\t%.0fs\t%.1fs\t%s\t%d\t%.2fV -%.2fV/s\n",
			name, sc.Duration, sc.Mount, dismount, len(sc.Pushes), sc.Battery.Start, sc.Battery.Drain)
	}
	return w.Flush()
}
