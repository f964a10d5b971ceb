package sim

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/segway/internal/config"
)

// Ensemble repeats a scenario with consecutive seeds, in parallel.
type Ensemble struct {
	base      *Simulator
	numRuns   int
	seedStart int64
	workers   int
}

func NewEnsemble(s *Simulator, numRuns int, seedStart int64) *Ensemble {
	return &Ensemble{base: s, numRuns: numRuns, seedStart: seedStart, workers: runtime.NumCPU()}
}

// Run returns the results in seed order. A vehicle fault in one run is kept in
// that run's result and does not stop the others; cancellation does.
func (e *Ensemble) Run(ctx context.Context, sc *config.Scenario) ([]*Result, []error, error) {
	results := make([]*Result, e.numRuns)
	errs := make([]error, e.numRuns)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := 0; i < e.numRuns; i++ {
		g.Go(func() error {
			run := sc.Clone()
			run.Seed = e.seedStart + int64(i)

			sim := New(e.base.opts)
			sim.observers = e.base.observers

			res, err := sim.Run(ctx, run)
			results[i], errs[i] = res, err
			if err != nil && !Faulted(err) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return results, errs, nil
}

// Summary is the mean and spread of one metric across runs.
type Summary struct {
	Mean, Min, Max float64
}

func Summarize(results []*Result, metric string) Summary {
	var s Summary
	n := 0
	for _, r := range results {
		if r == nil {
			continue
		}
		v := r.Metrics[metric]
		if n == 0 || v < s.Min {
			s.Min = v
		}
		if n == 0 || v > s.Max {
			s.Max = v
		}
		s.Mean += v
		n++
	}
	if n > 0 {
		s.Mean /= float64(n)
	}
	return s
}
