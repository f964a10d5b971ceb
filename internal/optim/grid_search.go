// Package optim searches controller tunings against simulated scenarios.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/segway/internal/config"
	"github.com/san-kum/segway/internal/experiment"
	"github.com/san-kum/segway/internal/sim"
	"github.com/san-kum/segway/internal/vehicle"
)

// FallPenalty is added to the score of a run in which the vehicle fell.
const FallPenalty = 1000.0

// Objective scores a finished run; lower is better.
type Objective func(*sim.Result) float64

// MetricObjective minimizes the named metric. Runs that fell are penalized
// by how early they fell.
func MetricObjective(metric string) Objective {
	return func(r *sim.Result) float64 {
		v, ok := r.Metrics[metric]
		if !ok || math.IsNaN(v) {
			return math.Inf(1)
		}
		if r.FellAt >= 0 {
			end := r.Times[len(r.Times)-1]
			v += FallPenalty * (1 + end - r.FellAt)
		}
		return v
	}
}

// Maximize turns a metric that should grow, such as upright, into a score.
func Maximize(metric string) Objective {
	fallen := MetricObjective(metric)
	return func(r *sim.Result) float64 {
		if r.FellAt >= 0 {
			return fallen(r)
		}
		return -r.Metrics[metric]
	}
}

type Trial struct {
	Params map[string]float64
	Score  float64
	Err    error
}

type Report struct {
	Best   map[string]float64
	Score  float64
	Trials []Trial
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64

	// Workers bounds the concurrent runs, NumCPU when zero.
	Workers int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Search runs build for every point of the grid. Trials that fail to build
// or fault are kept in the report with their error; only cancellation aborts
// the search.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	objective Objective,
) (*Report, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, fmt.Errorf("optim: %d parameters but %d ranges", len(g.paramNames), len(g.ranges))
	}
	for i, r := range g.ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("optim: empty range for %s", g.paramNames[i])
		}
	}

	var points []map[string]float64
	g.enumerate(0, make(map[string]float64), &points)

	trials := make([]Trial, len(points))
	workers := g.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, params := range points {
		eg.Go(func() error {
			trials[i] = runTrial(ctx, params, buildExperiment, objective)
			if errors.Is(trials[i].Err, context.Canceled) || errors.Is(trials[i].Err, context.DeadlineExceeded) {
				return trials[i].Err
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Score: math.Inf(1), Trials: trials}
	for _, tr := range trials {
		if tr.Err == nil && tr.Score < report.Score {
			report.Score = tr.Score
			report.Best = tr.Params
		}
	}
	if report.Best == nil {
		return report, errors.New("optim: no trial succeeded")
	}
	return report, nil
}

func (g *GridSearch) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.enumerate(depth+1, newParams, out)
	}
}

func runTrial(
	ctx context.Context,
	params map[string]float64,
	build func(map[string]float64) (*experiment.Experiment, error),
	objective Objective,
) Trial {
	tr := Trial{Params: params, Score: math.Inf(1)}
	exp, err := build(params)
	if err != nil {
		tr.Err = err
		return tr
	}
	result, err := exp.Run(ctx)
	if err != nil {
		tr.Err = err
		return tr
	}
	tr.Score = objective(result)
	return tr
}

// VehicleBuilder returns a builder that applies the grid point to the
// controller parameters of base.
func VehicleBuilder(reg *experiment.Registry, sc *config.Scenario, base vehicle.Config) func(map[string]float64) (*experiment.Experiment, error) {
	return func(params map[string]float64) (*experiment.Experiment, error) {
		cfg := base
		names := make([]string, 0, len(params))
		for k := range params {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := cfg.Control.SetParam(name, params[name]); err != nil {
				return nil, err
			}
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return experiment.New(reg, experiment.Config{Scenario: sc.Clone(), Vehicle: cfg})
	}
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}
