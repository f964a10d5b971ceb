package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/segway/internal/automation"
	"github.com/san-kum/segway/internal/experiment"
	"github.com/san-kum/segway/internal/storage"
)

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	plan, err := automation.LoadPlan(args[0])
	if err != nil {
		return err
	}
	logger, closer := newLogger(cfg, "batch: ")
	defer closer.Close()

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runner := automation.NewRunner(experiment.NewRegistry(), cfg.Vehicle(), st, logger)
	runner.Resolve = loadScenario

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("plan %s: %d steps\n", plan.Name, len(plan.Steps))
	outcomes, err := runner.Run(ctx, plan)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tSCENARIO\tRUN\tUPRIGHT\tTILT RMS\tFAULT")
	for _, o := range outcomes {
		if o.Result == nil {
			continue
		}
		run, fault := "-", "-"
		if o.RunID != "" {
			run = o.RunID
		}
		if o.Err != nil {
			fault = o.Err.Error()
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%.3f\t%.4f\t%s\n",
			o.Step, o.Result.Scenario, run, o.Result.Metrics["upright"], o.Result.Metrics["tilt_rms"], fault)
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
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
	if sweepSteps < 1 {
		return fmt.Errorf("--steps must be at least 1, got %d", sweepSteps)
	}
	logger, closer := newLogger(cfg, "sweep: ")
	defer closer.Close()

	runner := automation.NewRunner(experiment.NewRegistry(), vc, nil, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("sweeping %s on %s from %g to %g...\n", sweepParam, sc.Name, sweepMin, sweepMax)
	results, err := runner.RunSweep(ctx, automation.Sweep{
		Scenario: sc,
		Param:    sweepParam,
		Min:      sweepMin,
		Max:      sweepMax,
		Steps:    sweepSteps,
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\tUPRIGHT\tTILT RMS\tFELL\tCUTOFF\n", sweepParam)
	for _, r := range results {
		fmt.Fprintf(w, "%.4f\t%.3f\t%.4f\t%s\t%s\n", r.Value, r.Upright, r.TiltRMS, seconds(r.FellAt), seconds(r.CutoffAt))
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	return err
}

func seconds(t float64) string {
	if t < 0 {
		return "-"
	}
	return fmt.Sprintf("%.2fs", t)
}
