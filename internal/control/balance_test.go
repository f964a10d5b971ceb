package control

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/san-kum/segway/internal/fault"
)

// tilt returns the accelerometer readings of a vehicle standing still at angle rad.
func tilt(angle float64) (float32, float32) {
	return float32(-math.Sin(angle)), float32(-math.Cos(angle))
}

func near(a, b, tol float32) bool {
	return math.Abs(float64(a-b)) <= float64(tol)
}

func TestEstimatorLevel(t *testing.T) {
	e := Estimator{TickFrequency: 100, FilterWeight: 0.98, LowPassWeight: 0.5}
	h, v := tilt(0)
	got := e.Update(Orientation{}, 0, h, v)
	if got.Angle != 0 || got.AngleRate != 0 {
		t.Errorf("expected level estimate, got %+v", got)
	}
}

func TestEstimatorBlend(t *testing.T) {
	e := Estimator{TickFrequency: 100, FilterWeight: 0.9, LowPassWeight: 0.25}
	h, v := tilt(0.1)
	prev := Orientation{Angle: 0.2, AngleRate: 1}

	got := e.Update(prev, 2, h, v)

	wantAngle := float32(0.9*(0.2+2.0/100) + 0.1*0.1)
	if !near(got.Angle, wantAngle, 1e-6) {
		t.Errorf("expected angle %v, got %v", wantAngle, got.Angle)
	}
	wantRate := float32(0.25*2 + 0.75*1)
	if !near(got.AngleRate, wantRate, 1e-6) {
		t.Errorf("expected rate %v, got %v", wantRate, got.AngleRate)
	}
}

func TestAccelAngle(t *testing.T) {
	tests := []struct {
		name   string
		h, v   float32
		expect float64
	}{
		{"upright", 0, -1, 0},
		{"forward", -1, 0, math.Pi / 2},
		{"backward", 1, 0, -math.Pi / 2},
		{"small", float32(-math.Sin(0.1)), float32(-math.Cos(0.1)), 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AccelAngle(tt.h, tt.v)
			if math.Abs(float64(got)-tt.expect) > 1e-6 {
				t.Errorf("expected %v, got %v", tt.expect, got)
			}
		})
	}
}

func TestDutyNeverExceedsCeiling(t *testing.T) {
	p := DefaultParams()
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 50; run++ {
		b := NewBalance(p)
		for i := 0; i < 200; i++ {
			steering := float32(rng.Float64()*2 - 1)
			rate := float32(rng.NormFloat64() * 20)
			h := float32(rng.Float64()*4 - 2)
			v := float32(rng.Float64()*4 - 2)
			b.Update(steering, rate, h, v)

			if l := b.LeftDuty(); l > p.DutyCeiling || l < -p.DutyCeiling {
				t.Fatalf("left duty %v exceeds ceiling %v", l, p.DutyCeiling)
			}
			if r := b.RightDuty(); r > p.DutyCeiling || r < -p.DutyCeiling {
				t.Fatalf("right duty %v exceeds ceiling %v", r, p.DutyCeiling)
			}
		}
	}
}

func TestLevelInputSettles(t *testing.T) {
	b := NewBalance(DefaultParams())

	h, v := tilt(0.2)
	for i := 0; i < 50; i++ {
		b.Update(0, 0, h, v)
	}
	if b.Orientation().Angle < 0.05 {
		t.Fatalf("expected tilted estimate, got %v", b.Orientation().Angle)
	}

	h, v = tilt(0)
	for i := 0; i < 1000; i++ {
		b.Update(0, 0, h, v)
	}

	s := b.Snapshot()
	if !near(s.Angle, 0, 1e-4) {
		t.Errorf("expected angle near 0, got %v", s.Angle)
	}
	if !near(s.Torque, 0, 1e-3) {
		t.Errorf("expected torque near 0, got %v", s.Torque)
	}
}

func TestLimiterIntegral(t *testing.T) {
	p := DefaultParams()
	p.MaxSpeed = 0.1
	b := NewBalance(p)

	angles := []float64{0.3, -0.3, 0.15, 0}
	for _, a := range angles {
		h, v := tilt(a)
		for i := 0; i < 200; i++ {
			before := b.Snapshot()
			b.Update(0, 0, h, v)
			after := b.Snapshot()

			if after.OverspeedIntegral < 0 || after.OverspeedIntegral > integralCap {
				t.Fatalf("integral %v outside [0, %v]", after.OverspeedIntegral, integralCap)
			}
			if before.DriveSpeed > p.MaxSpeed {
				if after.OverspeedIntegral < before.OverspeedIntegral {
					t.Fatalf("integral decreased while overspeeding: %v -> %v", before.OverspeedIntegral, after.OverspeedIntegral)
				}
			} else if after.OverspeedIntegral > before.OverspeedIntegral {
				t.Fatalf("integral increased below max speed: %v -> %v", before.OverspeedIntegral, after.OverspeedIntegral)
			}
		}
	}
}

func TestLimiterBias(t *testing.T) {
	p := DefaultParams()
	p.MaxSpeed = 0
	b := NewBalance(p)

	h, v := tilt(0.2)
	b.Update(0, 0, h, v)
	first := b.Snapshot()
	if first.DriveSpeed <= 0 {
		t.Fatalf("expected positive drive speed, got %v", first.DriveSpeed)
	}

	b.Update(0, 0, h, v)
	s := b.Snapshot()
	overspeed := min(float32(overspeedCap), first.DriveSpeed+overspeedStep)
	wantIntegral := overspeed / p.TickFrequency
	if !near(s.OverspeedIntegral, wantIntegral, 1e-6) {
		t.Errorf("expected integral %v, got %v", wantIntegral, s.OverspeedIntegral)
	}
	wantBias := biasFromOverrun*overspeed + biasFromIntegral*wantIntegral
	if !near(s.StableAngleBias, wantBias, 1e-6) {
		t.Errorf("expected bias %v, got %v", wantBias, s.StableAngleBias)
	}
}

func TestResetSpeedsKeepsLimiter(t *testing.T) {
	p := DefaultParams()
	p.MaxSpeed = 0
	b := NewBalance(p)

	h, v := tilt(0.2)
	for i := 0; i < 20; i++ {
		b.Update(0.5, 0, h, v)
	}
	before := b.Snapshot()
	if before.OverspeedIntegral <= 0 || before.StableAngleBias <= 0 {
		t.Fatalf("expected active limiter, got %+v", before)
	}

	b.ResetSpeeds()
	after := b.Snapshot()

	if after.DriveSpeed != 0 || after.RawLeft != 0 || after.RawRight != 0 {
		t.Errorf("expected speeds zeroed, got %+v", after)
	}
	if b.LeftDuty() != 0 || b.RightDuty() != 0 {
		t.Errorf("expected zero duties, got %v and %v", b.LeftDuty(), b.RightDuty())
	}
	if after.OverspeedIntegral != before.OverspeedIntegral {
		t.Errorf("expected integral %v kept, got %v", before.OverspeedIntegral, after.OverspeedIntegral)
	}
	if after.StableAngleBias != before.StableAngleBias {
		t.Errorf("expected bias %v kept, got %v", before.StableAngleBias, after.StableAngleBias)
	}
	if after.Orientation != before.Orientation {
		t.Errorf("expected orientation kept, got %+v", after.Orientation)
	}
}

func TestSteeringSymmetry(t *testing.T) {
	for _, angle := range []float64{0, 0.03, -0.03} {
		h, v := tilt(angle)

		ref := NewBalance(DefaultParams())
		ref.Update(0, 0, h, v)
		base := ref.Snapshot()
		if base.RawLeft != base.RawRight {
			t.Errorf("angle %v: expected equal duties without steering, got %v and %v", angle, base.RawLeft, base.RawRight)
		}
		if ref.LeftDuty() != ref.RightDuty() {
			t.Errorf("angle %v: expected equal clamped duties", angle)
		}

		prevLeft := base.RawLeft
		for _, steering := range []float32{0.25, 0.5, 1} {
			b := NewBalance(DefaultParams())
			b.Update(steering, 0, h, v)
			s := b.Snapshot()

			up := s.RawLeft - base.RawLeft
			down := base.RawRight - s.RawRight
			if up <= 0 {
				t.Errorf("steering %v: expected left to rise, got delta %v", steering, up)
			}
			if !near(up, down, 1e-6) {
				t.Errorf("steering %v: expected equal deltas, got %v and %v", steering, up, down)
			}
			if s.RawLeft <= prevLeft {
				t.Errorf("steering %v: expected left to grow with steering", steering)
			}
			prevLeft = s.RawLeft
		}
	}
}

func TestSteeringShrinksWithSpeed(t *testing.T) {
	slow := NewBalance(DefaultParams())
	fast := NewBalance(DefaultParams())

	h, v := tilt(0.2)
	for i := 0; i < 30; i++ {
		fast.Update(0, 0, h, v)
	}
	slow.Update(0, 0, 0, -1)

	slowBase, fastBase := slow.Snapshot(), fast.Snapshot()
	slow.Update(1, 0, 0, -1)
	fast.Update(1, 0, h, v)

	slowSplit := slow.Snapshot().RawLeft - slow.Snapshot().RawRight
	fastSplit := fast.Snapshot().RawLeft - fast.Snapshot().RawRight
	if fastBase.DriveSpeed <= slowBase.DriveSpeed {
		t.Fatalf("expected fast vehicle to move faster")
	}
	if fastSplit >= slowSplit {
		t.Errorf("expected smaller steering split at speed, got %v >= %v", fastSplit, slowSplit)
	}
}

func TestMaxSpeedAccessors(t *testing.T) {
	b := NewBalance(DefaultParams())
	if b.MaxSpeed() != 0.7 {
		t.Errorf("expected default max speed 0.7, got %v", b.MaxSpeed())
	}
	b.SetMaxSpeed(0.4)
	if b.MaxSpeed() != 0.4 {
		t.Errorf("expected max speed 0.4, got %v", b.MaxSpeed())
	}
	if got := b.GetParams()["MaxSpeed"]; !near(float32(got), 0.4, 1e-6) {
		t.Errorf("expected MaxSpeed param 0.4, got %v", got)
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Params)
		valid  bool
	}{
		{"default", func(p *Params) {}, true},
		{"zero tick", func(p *Params) { p.TickFrequency = 0 }, false},
		{"ceiling above one", func(p *Params) { p.DutyCeiling = 1.2 }, false},
		{"zero ceiling", func(p *Params) { p.DutyCeiling = 0 }, false},
		{"filter weight", func(p *Params) { p.FilterWeight = 1.5 }, false},
		{"low-pass weight", func(p *Params) { p.LowPassWeight = -0.1 }, false},
		{"negative max speed", func(p *Params) { p.MaxSpeed = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.modify(&p)
			err := p.Validate()
			if tt.valid && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.valid {
				if err == nil {
					t.Error("expected error")
				} else if !errors.Is(err, fault.ErrConfiguration) {
					t.Errorf("expected configuration error, got %v", err)
				}
			}
		})
	}
}

func TestParamsSetParam(t *testing.T) {
	p := DefaultParams()
	if err := p.SetParam(ParamKp, 6.5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.SetParam(ParamLowPassWeight, 0.25); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Kp != 6.5 || p.LowPassWeight != 0.25 {
		t.Errorf("expected kp 6.5 and weight 0.25, got %+v", p)
	}

	err := p.SetParam("ki", 1)
	if !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
