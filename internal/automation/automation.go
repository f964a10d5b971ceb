// Package automation runs batches of rides: a plan of scenario steps read
// from YAML, and sweeps of one plant parameter.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/segway/internal/config"
	"github.com/san-kum/segway/internal/experiment"
	"github.com/san-kum/segway/internal/optim"
	"github.com/san-kum/segway/internal/sim"
	"github.com/san-kum/segway/internal/storage"
	"github.com/san-kum/segway/internal/vehicle"
)

// Plan is a scripted sequence of rides.
type Plan struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step names a preset or scenario file plus overrides. Zero values keep the
// scenario's own settings.
type Step struct {
	Scenario    string             `yaml:"scenario"`
	Seed        int64              `yaml:"seed"`
	Duration    float64            `yaml:"duration"`
	Control     map[string]float64 `yaml:"control"`      // e.g. kp, kd
	PlantParams map[string]float64 `yaml:"plant_params"` // e.g. rider_mass
	Save        bool               `yaml:"save"`
}

func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("%s: plan has no steps", path)
	}
	return &plan, nil
}

// Outcome is the result of one step. A vehicle fault is kept in Err with the
// partial result.
type Outcome struct {
	Step   int
	RunID  string
	Result *sim.Result
	Err    error
}

// Runner executes plans against a registry and a base vehicle setup.
type Runner struct {
	Registry *experiment.Registry
	Vehicle  vehicle.Config
	Store    *storage.Store // needed only for steps with save
	Logger   *log.Logger

	// Resolve turns a step's scenario name into a scenario, presets or
	// files by default.
	Resolve func(name string) (*config.Scenario, error)
}

func NewRunner(reg *experiment.Registry, vc vehicle.Config, store *storage.Store, logger *log.Logger) *Runner {
	return &Runner{Registry: reg, Vehicle: vc, Store: store, Logger: logger, Resolve: resolve}
}

func resolve(name string) (*config.Scenario, error) {
	if sc := config.GetPreset(name); sc != nil {
		return sc, nil
	}
	return config.LoadScenario(name)
}

// Run executes every step in order. Set-up errors and cancellation stop the
// plan; a faulted ride does not.
func (r *Runner) Run(ctx context.Context, plan *Plan) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(plan.Steps))
	for i, step := range plan.Steps {
		r.logf("plan %s: step %d/%d %s", plan.Name, i+1, len(plan.Steps), step.Scenario)

		exp, err := r.build(step)
		if err != nil {
			return outcomes, fmt.Errorf("step %d: %w", i+1, err)
		}
		result, err := exp.Run(ctx)
		if err != nil && !sim.Faulted(err) {
			return outcomes, fmt.Errorf("step %d: %w", i+1, err)
		}
		out := Outcome{Step: i + 1, Result: result, Err: err}

		if step.Save {
			if r.Store == nil {
				return outcomes, fmt.Errorf("step %d: no store to save to", i+1)
			}
			vc := exp.GetSimulator().Options().Vehicle
			sc := exp.Scenario()
			out.RunID, err = r.Store.Save(storage.RunMetadata{
				Scenario:   sc.Name,
				Plant:      sc.Plant,
				Integrator: sc.Integrator,
				Duration:   sc.Duration,
				Kp:         float64(vc.Control.Kp),
				Kd:         float64(vc.Control.Kd),
			}, result)
			if err != nil {
				return outcomes, fmt.Errorf("step %d save: %w", i+1, err)
			}
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func (r *Runner) build(step Step) (*experiment.Experiment, error) {
	sc, err := r.Resolve(step.Scenario)
	if err != nil {
		return nil, err
	}
	if step.Seed != 0 {
		sc.Seed = step.Seed
	}
	if step.Duration > 0 {
		sc.Duration = step.Duration
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	vc := r.Vehicle
	for _, name := range sortedKeys(step.Control) {
		if err := vc.Control.SetParam(name, step.Control[name]); err != nil {
			return nil, err
		}
	}
	if err := vc.Validate(); err != nil {
		return nil, err
	}
	return experiment.New(r.Registry, experiment.Config{
		Scenario:    sc,
		Vehicle:     vc,
		PlantParams: step.PlantParams,
		Logger:      r.Logger,
	})
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logger != nil {
		r.Logger.Printf(format, args...)
	}
}

// Sweep varies one plant parameter over a scenario.
type Sweep struct {
	Scenario *config.Scenario
	Param    string
	Min, Max float64
	Steps    int
}

// SweepResult summarises one point of a sweep.
type SweepResult struct {
	Value    float64
	Upright  float64
	TiltRMS  float64
	FellAt   float64
	CutoffAt float64
	Err      error
}

// RunSweep rides the scenario once per parameter value. Unknown parameters
// and out-of-bounds values fail the sweep before anything runs.
func (r *Runner) RunSweep(ctx context.Context, sw Sweep) ([]SweepResult, error) {
	if sw.Scenario == nil {
		return nil, errors.New("sweep: no scenario")
	}
	values := optim.Linspace(sw.Min, sw.Max, sw.Steps)

	exps := make([]*experiment.Experiment, len(values))
	for i, v := range values {
		exp, err := experiment.New(r.Registry, experiment.Config{
			Scenario:    sw.Scenario.Clone(),
			Vehicle:     r.Vehicle,
			PlantParams: map[string]float64{sw.Param: v},
			Logger:      r.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("sweep %s=%v: %w", sw.Param, v, err)
		}
		exps[i] = exp
	}

	results := make([]SweepResult, 0, len(values))
	for i, exp := range exps {
		res, err := exp.Run(ctx)
		if err != nil && !sim.Faulted(err) {
			return results, err
		}
		sr := SweepResult{Value: values[i], FellAt: -1, CutoffAt: -1, Err: err}
		if res != nil {
			sr.Upright = res.Metrics["upright"]
			sr.TiltRMS = res.Metrics["tilt_rms"]
			sr.FellAt, sr.CutoffAt = res.FellAt, res.CutoffAt
		}
		results = append(results, sr)
		r.logf("sweep %d/%d: %s=%.4f upright=%.3f", i+1, len(values), sw.Param, values[i], sr.Upright)
	}
	return results, nil
}

func sortedKeys(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
