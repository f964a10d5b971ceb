package vehicle

import "math"

// BatteryWatchdog counts consecutive low voltage ticks.
type BatteryWatchdog struct {
	Threshold float32
	Limit     uint32
	count     uint32
}

// Observe records one reading and reports whether the cutoff applies. The
// count keeps growing past Limit and saturates instead of wrapping.
func (w *BatteryWatchdog) Observe(voltage float32) bool {
	if voltage < w.Threshold {
		if w.count < math.MaxUint32 {
			w.count++
		}
	} else {
		w.count = 0
	}
	return w.Tripped()
}

// Trips reports whether observing voltage next would trip the cutoff.
func (w BatteryWatchdog) Trips(voltage float32) bool {
	return voltage < w.Threshold && uint64(w.count)+1 >= uint64(w.Limit)
}

func (w BatteryWatchdog) Tripped() bool { return w.count >= w.Limit }

func (w BatteryWatchdog) Count() uint32 { return w.count }
