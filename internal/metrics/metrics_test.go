package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/segway/internal/dynamo"
)

func sample(tilt, v, left, right float64, active bool) dynamo.Sample {
	return dynamo.Sample{
		X:       dynamo.State{0, v, tilt, 0, 0, 0},
		U:       dynamo.Control{left, right, 0},
		Active:  active,
		Battery: 2.5 - tilt,
	}
}

func feed(m dynamo.Metric, samples ...dynamo.Sample) float64 {
	m.Reset()
	for _, s := range samples {
		m.Observe(s)
	}
	return m.Value()
}

func TestMetrics(t *testing.T) {
	run := []dynamo.Sample{
		sample(0.1, 0, 0, 0, false),
		sample(0.3, 1, 0.2, -0.4, true),
		sample(-0.4, -2, 0.6, 0.2, true),
		sample(1.2, 0.5, 0, 0, false),
	}

	tests := []struct {
		metric dynamo.Metric
		expect float64
	}{
		{NewTiltRMS(), math.Sqrt((0.09 + 0.16) / 2)},
		{NewUpright(DefaultUprightAngle), 1.0 / 3},
		{NewControlEffort(), (0.3 + 0.4) / 2},
		{NewActiveFraction(), 0.5},
		{NewMaxSpeed(), 2},
		{NewMinBattery(), 1.3},
	}
	for _, tt := range tests {
		t.Run(tt.metric.Name(), func(t *testing.T) {
			if got := feed(tt.metric, run...); math.Abs(got-tt.expect) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.expect, got)
			}
		})
	}
}

func TestMetricsEmpty(t *testing.T) {
	for _, m := range Defaults() {
		if v := feed(m); v != 0 {
			t.Errorf("%s: expected 0 without samples, got %v", m.Name(), v)
		}
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewControlEffort()
	m.Observe(sample(0, 0, 1, 1, true))
	m.Reset()
	m.Observe(sample(0, 0, 0.5, 0.5, true))
	if m.Value() != 0.5 {
		t.Errorf("expected 0.5 after reset, got %v", m.Value())
	}
}

func TestDefaultsUniqueNames(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range Defaults() {
		if seen[m.Name()] {
			t.Errorf("duplicate metric %s", m.Name())
		}
		seen[m.Name()] = true
	}
}
