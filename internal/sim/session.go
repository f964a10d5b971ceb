package sim

import (
	"math"

	"github.com/san-kum/segway/internal/config"
	"github.com/san-kum/segway/internal/dynamo"
	"github.com/san-kum/segway/internal/fault"
	"github.com/san-kum/segway/internal/integrators"
	"github.com/san-kum/segway/internal/physics"
	"github.com/san-kum/segway/internal/vehicle"
)

// Manual replaces the scripted rider inputs, e.g. from a keyboard.
type Manual struct {
	Riding   bool
	Steering float64 // [-1, 1]
	Speed    float64 // m/s the rider leans for
}

// Session advances one vehicle and its plant tick by tick. The plant is held
// still until the rider first mounts.
type Session struct {
	sc    *config.Scenario
	opts  Options
	plant *physics.Segway
	integ dynamo.Integrator
	rider *physics.Rider
	bench *Bench
	veh   *vehicle.Vehicle
	hook  *fault.Cutoff

	x        dynamo.State
	lean     float64
	dt       float64
	k        int
	started  bool
	nextPush int
	effort   float64
	manual   *Manual

	cutoffAt float64
	fellAt   float64
}

// NewSession builds a fresh plant, bench and vehicle for one scenario.
func NewSession(sc *config.Scenario, opts Options) (*Session, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	plant := *opts.Plant
	bench := NewBench(sc.Seed, sc.SensorNoise)
	hook := fault.NewCutoff(opts.Logger, nil, bench.Left, bench.Right)

	io := bench.Collaborators()
	io.Telemetry = opts.Telemetry
	io.Hook = hook
	veh, err := vehicle.New(opts.Vehicle, io)
	if err != nil {
		return nil, err
	}

	s := &Session{
		sc:       sc,
		opts:     opts,
		plant:    &plant,
		integ:    opts.Integrator(),
		rider:    physics.NewRider(),
		bench:    bench,
		veh:      veh,
		hook:     hook,
		dt:       1 / float64(opts.Vehicle.Control.TickFrequency),
		cutoffAt: -1,
		fellAt:   -1,
	}
	s.x = plant.InitialState(sc.InitTilt)
	bench.x = s.x
	if err := veh.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

// Time is the simulated time at the start of the next tick.
func (s *Session) Time() float64 { return float64(s.k) * s.dt }

func (s *Session) Dt() float64 { return s.dt }

func (s *Session) Done() bool { return s.Time() >= s.sc.Duration-s.dt/2 }

func (s *Session) State() dynamo.State { return s.x.Clone() }

func (s *Session) Vehicle() *vehicle.Vehicle { return s.veh }

func (s *Session) Plant() *physics.Segway { return s.plant }

func (s *Session) Bench() *Bench { return s.bench }

// CutoffAt is the time the battery watchdog first tripped, or -1.
func (s *Session) CutoffAt() float64 { return s.cutoffAt }

// FellAt is the time the plant first hit the fall angle, or -1.
func (s *Session) FellAt() float64 { return s.fellAt }

// SetManual switches to keyboard inputs; nil returns to the script.
func (s *Session) SetManual(m *Manual) { s.manual = m }

func (s *Session) inputs(t float64) (riding bool, steering, speed float64) {
	if s.manual != nil {
		return s.manual.Riding, s.manual.Steering, s.manual.Speed
	}
	return s.sc.Riding(t), config.StepValue(s.sc.Steering, t), config.StepValue(s.sc.Speed, t)
}

// potVolts inverts the steering reader's mapping.
func (s *Session) potVolts(cmd float64) float32 {
	lo, hi := s.veh.Steering().Range()
	cmd = math.Max(-1, math.Min(1, cmd))
	return float32(float64(lo+hi)/2 + cmd*float64(hi-lo)/2)
}

func (s *Session) batteryVolts(t float64) float32 {
	p := s.sc.Battery
	return float32(math.Max(0, p.Start-p.Drain*t-p.Sag*s.effort))
}

// Step runs one vehicle tick and advances the plant by one tick period.
func (s *Session) Step() (dynamo.Sample, error) {
	t := s.Time()
	riding, steering, speed := s.inputs(t)

	s.bench.x = s.x
	s.bench.riding = riding
	s.bench.pot = s.potVolts(steering)
	s.bench.battery = s.batteryVolts(t)

	if err := s.veh.Tick(); err != nil {
		return dynamo.Sample{}, &dynamo.SimulationError{Step: s.k, Time: t, State: s.x.Clone(), Wrapped: err}
	}
	if s.cutoffAt < 0 && s.veh.Watchdog().Tripped() {
		s.cutoffAt = t
	}

	switch {
	case riding || !s.started:
		s.lean = s.rider.Update(s.dt, s.x, speed)
	default:
		s.rider.Reset()
		s.lean = 0
	}
	s.started = s.started || riding

	for s.nextPush < len(s.sc.Pushes) && s.sc.Pushes[s.nextPush].At <= t {
		s.x = s.x.Clone()
		s.x[physics.TiltRate] += s.sc.Pushes[s.nextPush].Value
		s.nextPush++
	}

	left, right := s.bench.Left.Duty(), s.bench.Right.Duty()
	u := dynamo.Control{left, right, s.lean}
	if s.started {
		s.x = integrators.Advance(s.integ, s.plant, s.x, u, t, s.dt, s.opts.Substeps)
		if !s.x.IsValid() {
			return dynamo.Sample{}, &dynamo.SimulationError{Step: s.k, Time: t, State: s.x.Clone(), Wrapped: dynamo.ErrInvalidState}
		}
	}
	s.effort = (math.Abs(left) + math.Abs(right)) / 2
	s.k++

	if s.fellAt < 0 && s.plant.Fallen(s.x) {
		s.fellAt = s.Time()
	}

	return dynamo.Sample{
		T:       s.Time(),
		X:       s.x.Clone(),
		U:       u,
		Active:  s.veh.State() == vehicle.Active,
		Battery: float64(s.bench.battery),
	}, nil
}
