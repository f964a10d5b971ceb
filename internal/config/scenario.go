package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/segway/internal/fault"
)

// Step is one breakpoint of a piecewise constant input.
type Step struct {
	At    float64 `yaml:"at"`
	Value float64 `yaml:"value"`
}

// StepValue returns the value of the last step at or before t, 0 before the
// first one. steps must be ordered by At.
func StepValue(steps []Step, t float64) float64 {
	v := 0.0
	for _, s := range steps {
		if s.At > t {
			break
		}
		v = s.Value
	}
	return v
}

type BatteryProfile struct {
	Start float64 `yaml:"start"` // sense volts at t=0
	Drain float64 `yaml:"drain"` // volts per second
	Sag   float64 `yaml:"sag"`   // volts per unit of mean |duty|
}

// Scenario scripts a simulated ride.
type Scenario struct {
	Name        string         `yaml:"name"`
	Plant       string         `yaml:"plant"`
	Integrator  string         `yaml:"integrator"`
	Duration    float64        `yaml:"duration"`
	Seed        int64          `yaml:"seed"`
	InitTilt    float64        `yaml:"init_tilt"`
	SensorNoise float64        `yaml:"sensor_noise"`
	Mount       float64        `yaml:"mount"`
	Dismount    float64        `yaml:"dismount"`
	Steering    []Step         `yaml:"steering"` // command in [-1, 1]
	Speed       []Step         `yaml:"speed"`    // speed the rider leans for, m/s
	Pushes      []Step         `yaml:"pushes"`   // tilt rate kicks, rad/s
	Battery     BatteryProfile `yaml:"battery"`
}

// Riding reports whether the rider stands on the foot switch at t.
func (s *Scenario) Riding(t float64) bool {
	if t < s.Mount {
		return false
	}
	return s.Dismount <= s.Mount || t < s.Dismount
}

func (s *Scenario) Clone() *Scenario {
	c := *s
	c.Steering = append([]Step(nil), s.Steering...)
	c.Speed = append([]Step(nil), s.Speed...)
	c.Pushes = append([]Step(nil), s.Pushes...)
	return &c
}

func (s *Scenario) Validate() error {
	var errs []error
	if s.Duration <= 0 {
		errs = append(errs, fmt.Errorf("duration %v must be positive", s.Duration))
	}
	if s.SensorNoise < 0 {
		errs = append(errs, fmt.Errorf("sensor noise %v must not be negative", s.SensorNoise))
	}
	for name, steps := range map[string][]Step{"steering": s.Steering, "speed": s.Speed, "pushes": s.Pushes} {
		if !sort.SliceIsSorted(steps, func(i, j int) bool { return steps[i].At < steps[j].At }) {
			errs = append(errs, fmt.Errorf("%s steps out of order", name))
		}
	}
	if len(errs) > 0 {
		return fault.New("scenario "+s.Name, fault.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc := Presets["balance"].Clone()
	sc.Name = ""
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

var Presets = map[string]*Scenario{
	"balance": {
		Name: "balance", Integrator: "rk4", Duration: 20, Seed: 1,
		InitTilt: 0.05, SensorNoise: 0.01, Mount: 0.5,
		Battery: BatteryProfile{Start: 2.5, Sag: 0.05},
	},
	"ride": {
		Name: "ride", Integrator: "rk4", Duration: 30, Seed: 2,
		SensorNoise: 0.01, Mount: 0.5,
		Speed:    []Step{{At: 2, Value: 1.5}, {At: 10, Value: 3.2}, {At: 18, Value: -1}, {At: 24, Value: 0}},
		Steering: []Step{{At: 6, Value: 0.5}, {At: 9, Value: 0}, {At: 14, Value: -0.7}, {At: 16, Value: 0}},
		Battery:  BatteryProfile{Start: 2.5, Sag: 0.05},
	},
	"dismount": {
		Name: "dismount", Integrator: "rk4", Duration: 15, Seed: 3,
		SensorNoise: 0.01, Mount: 0.5, Dismount: 8,
		Speed:   []Step{{At: 2, Value: 1}},
		Battery: BatteryProfile{Start: 2.5, Sag: 0.05},
	},
	"low_battery": {
		Name: "low_battery", Integrator: "rk4", Duration: 10, Seed: 4,
		SensorNoise: 0.01, Mount: 0.5,
		Battery: BatteryProfile{Start: 2.4, Drain: 0.08, Sag: 0.05},
	},
	"recover": {
		Name: "recover", Integrator: "rk4", Duration: 20, Seed: 5,
		InitTilt: 0.15, SensorNoise: 0.01, Mount: 0.2,
		Pushes:  []Step{{At: 5, Value: 0.8}, {At: 12, Value: -0.8}},
		Battery: BatteryProfile{Start: 2.5, Sag: 0.05},
	},
}

// GetPreset returns a copy of the named scenario, or nil.
func GetPreset(name string) *Scenario {
	sc, ok := Presets[name]
	if !ok {
		return nil
	}
	return sc.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
