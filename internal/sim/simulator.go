// Package sim runs the vehicle controller against a simulated plant. The
// controller code is the same that drives the hardware; only the
// collaborators are replaced.
package sim

import (
	"context"
	"errors"
	"log"

	"github.com/san-kum/segway/internal/config"
	"github.com/san-kum/segway/internal/dynamo"
	"github.com/san-kum/segway/internal/integrators"
	"github.com/san-kum/segway/internal/metrics"
	"github.com/san-kum/segway/internal/physics"
	"github.com/san-kum/segway/internal/telemetry"
	"github.com/san-kum/segway/internal/vehicle"
)

// DefaultSubsteps is the number of integrator steps per control tick.
const DefaultSubsteps = 2

type Options struct {
	Vehicle    vehicle.Config
	Plant      *physics.Segway
	Integrator func() dynamo.Integrator
	Substeps   int

	// Metrics returns fresh instances for every run.
	Metrics   func() []dynamo.Metric
	Telemetry vehicle.Telemetry
	Logger    *log.Logger
}

func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.Vehicle == (vehicle.Config{}) {
		o.Vehicle = vehicle.DefaultConfig()
	}
	if o.Plant == nil {
		o.Plant = physics.NewSegway()
	}
	if o.Integrator == nil {
		o.Integrator = func() dynamo.Integrator { return integrators.NewRK4() }
	}
	if o.Substeps <= 0 {
		o.Substeps = DefaultSubsteps
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Defaults
	}
	if o.Telemetry == nil {
		o.Telemetry = telemetry.Discard{}
	}
	return o
}

// Result is the per-tick record of one run.
type Result struct {
	Scenario string
	Seed     int64
	Dt       float64

	Times    []float64
	States   []dynamo.State
	Controls []dynamo.Control
	Active   []bool
	Battery  []float64

	// CutoffAt and FellAt are -1 when it did not happen.
	CutoffAt float64
	FellAt   float64

	Metrics    map[string]float64
	StepsTaken int
}

type Simulator struct {
	opts      Options
	observers []dynamo.Observer
}

func New(opts Options) *Simulator {
	return &Simulator{opts: opts.withDefaults()}
}

func (s *Simulator) Options() Options { return s.opts }

// AddObserver registers o for every sample of every later run. Observers are
// shared between concurrent runs.
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

// Run plays the scenario from the start. On a vehicle fault or a canceled ctx
// the partial result is returned with the error.
func (s *Simulator) Run(ctx context.Context, sc *config.Scenario) (*Result, error) {
	sess, err := NewSession(sc, s.opts)
	if err != nil {
		return nil, err
	}

	steps := int(sc.Duration/sess.Dt() + 0.5)
	result := &Result{
		Scenario: sc.Name,
		Seed:     sc.Seed,
		Dt:       sess.Dt(),
		Times:    make([]float64, 0, steps+1),
		States:   make([]dynamo.State, 0, steps+1),
		Controls: make([]dynamo.Control, 0, steps+1),
		Active:   make([]bool, 0, steps+1),
		Battery:  make([]float64, 0, steps+1),
		Metrics:  make(map[string]float64),
	}
	ms := s.opts.Metrics()
	for _, m := range ms {
		m.Reset()
	}

	first := dynamo.Sample{
		X:       sess.State(),
		U:       dynamo.Control{0, 0, 0},
		Battery: sc.Battery.Start,
	}
	result.record(first)

	var runErr error
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
		default:
		}
		if runErr != nil {
			break
		}

		sample, err := sess.Step()
		if err != nil {
			runErr = err
			break
		}
		result.record(sample)
		result.StepsTaken++

		for _, m := range ms {
			m.Observe(sample)
		}
		for _, o := range s.observers {
			o.OnStep(sample)
		}
	}

	result.CutoffAt = sess.CutoffAt()
	result.FellAt = sess.FellAt()
	for _, m := range ms {
		result.Metrics[m.Name()] = m.Value()
	}
	return result, runErr
}

func (r *Result) record(s dynamo.Sample) {
	r.Times = append(r.Times, s.T)
	r.States = append(r.States, s.X)
	r.Controls = append(r.Controls, s.U)
	r.Active = append(r.Active, s.Active)
	r.Battery = append(r.Battery, s.Battery)
}

// Series extracts one state component over the run.
func (r *Result) Series(index int) []float64 {
	out := make([]float64, len(r.States))
	for i, x := range r.States {
		if index < len(x) {
			out[i] = x[index]
		}
	}
	return out
}

// Faulted reports whether err came from the vehicle's fault path rather than
// cancellation.
func Faulted(err error) bool {
	var se *dynamo.SimulationError
	return errors.As(err, &se)
}
