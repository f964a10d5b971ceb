package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// Spectrum returns the one-sided amplitude spectrum of a trace sampled every
// dt seconds. The mean is removed and a Hann window applied first.
func Spectrum(series []float64, dt float64) (freqs, amplitude []float64) {
	n := len(series)
	if n < 2 || dt <= 0 {
		return nil, nil
	}

	x := make([]float64, n)
	mean := 0.0
	for _, v := range series {
		mean += v
	}
	mean /= float64(n)
	for i, v := range series {
		x[i] = v - mean
	}
	window.Apply(x, window.Hann)

	spec := fft.FFTReal(x)
	bins := n/2 + 1
	freqs = make([]float64, bins)
	amplitude = make([]float64, bins)
	for k := 0; k < bins; k++ {
		freqs[k] = float64(k) / (float64(n) * dt)
		amplitude[k] = 2 * cmplx.Abs(spec[k]) / float64(n)
	}
	return freqs, amplitude
}

// DominantFrequency returns the strongest non-DC component of the trace.
func DominantFrequency(series []float64, dt float64) (freq, amplitude float64) {
	freqs, amp := Spectrum(series, dt)
	for k := 1; k < len(amp); k++ {
		if amp[k] > amplitude {
			freq, amplitude = freqs[k], amp[k]
		}
	}
	return freq, amplitude
}

// Summary describes one trace of a run.
type Summary struct {
	Peak      float64
	RMS       float64
	Mean      float64
	SettledAt float64 // last time outside the band, -1 if never outside
	Frequency float64 // dominant frequency, Hz
}

// Summarize reports peak, RMS and the time after which the trace stays
// within ±band.
func Summarize(times, series []float64, band, dt float64) Summary {
	s := Summary{SettledAt: -1}
	if len(series) == 0 {
		return s
	}
	sq := 0.0
	for i, v := range series {
		s.Peak = math.Max(s.Peak, math.Abs(v))
		s.Mean += v
		sq += v * v
		if math.Abs(v) > band && i < len(times) {
			s.SettledAt = times[i]
		}
	}
	n := float64(len(series))
	s.Mean /= n
	s.RMS = math.Sqrt(sq / n)
	s.Frequency, _ = DominantFrequency(series, dt)
	return s
}
