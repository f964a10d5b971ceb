// Package experiment wires a scenario, a plant and an integrator into a
// simulator.
package experiment

import (
	"context"
	"fmt"
	"log"

	"github.com/san-kum/segway/internal/config"
	"github.com/san-kum/segway/internal/sim"
	"github.com/san-kum/segway/internal/vehicle"
)

type Config struct {
	Scenario *config.Scenario
	Vehicle  vehicle.Config

	// PlantParams override plant parameters by name, e.g. rider_mass.
	PlantParams map[string]float64
	Substeps    int
	Telemetry   vehicle.Telemetry
	Logger      *log.Logger
}

type Experiment struct {
	cfg       Config
	simulator *sim.Simulator
}

func New(reg *Registry, cfg Config) (*Experiment, error) {
	if cfg.Scenario == nil {
		return nil, fmt.Errorf("experiment: no scenario")
	}
	sc := cfg.Scenario

	plant, err := reg.GetPlant(sc.Plant)
	if err != nil {
		return nil, err
	}
	for _, name := range sortedKeys(cfg.PlantParams) {
		if err := plant.SetParam(name, cfg.PlantParams[name]); err != nil {
			return nil, err
		}
	}
	integrator, err := reg.IntegratorFactory(sc.Integrator)
	if err != nil {
		return nil, err
	}

	s := sim.New(sim.Options{
		Vehicle:    cfg.Vehicle,
		Plant:      plant,
		Integrator: integrator,
		Substeps:   cfg.Substeps,
		Telemetry:  cfg.Telemetry,
		Logger:     cfg.Logger,
	})
	return &Experiment{cfg: cfg, simulator: s}, nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	return e.simulator.Run(ctx, e.cfg.Scenario)
}

// Session starts a step-by-step run of the same setup.
func (e *Experiment) Session() (*sim.Session, error) {
	return sim.NewSession(e.cfg.Scenario, e.simulator.Options())
}

func (e *Experiment) Scenario() *config.Scenario { return e.cfg.Scenario }

// GetSimulator returns the underlying simulator for adding observers
func (e *Experiment) GetSimulator() *sim.Simulator {
	return e.simulator
}
