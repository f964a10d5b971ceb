package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/segway/internal/dynamo"
	"github.com/san-kum/segway/internal/integrators"
	"github.com/san-kum/segway/internal/physics"
)

// DefaultPlant is used when a scenario names none.
const DefaultPlant = "segway"

type Registry struct {
	plants      map[string]func() *physics.Segway
	integrators map[string]func() dynamo.Integrator
}

func NewRegistry() *Registry {
	r := &Registry{
		plants:      make(map[string]func() *physics.Segway),
		integrators: make(map[string]func() dynamo.Integrator),
	}

	r.plants["segway"] = physics.NewSegway
	r.plants["segway_light"] = func() *physics.Segway {
		p := physics.NewSegway()
		p.RiderMass = 40
		return p
	}
	r.plants["segway_heavy"] = func() *physics.Segway {
		p := physics.NewSegway()
		p.RiderMass = 110
		return p
	}

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }

	return r
}

func (r *Registry) GetPlant(name string) (*physics.Segway, error) {
	if name == "" {
		name = DefaultPlant
	}
	fn, ok := r.plants[name]
	if !ok {
		return nil, fmt.Errorf("unknown plant: %s", name)
	}
	return fn(), nil
}

// IntegratorFactory returns a constructor, since every run needs its own
// integrator.
func (r *Registry) IntegratorFactory(name string) (func() dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn, nil
}

func (r *Registry) ListPlants() []string {
	return sortedKeys(r.plants)
}

func (r *Registry) ListIntegrators() []string {
	return sortedKeys(r.integrators)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
