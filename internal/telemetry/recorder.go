package telemetry

import (
	"sort"
	"sync"
)

// Recorder keeps the last value and a bounded history per sample name. It is
// safe to read from another goroutine while the loop publishes.
type Recorder struct {
	mu      sync.Mutex
	limit   int
	last    map[string]float32
	history map[string][]float32
}

// NewRecorder keeps at most limit values per name; limit <= 0 keeps only the
// last value.
func NewRecorder(limit int) *Recorder {
	return &Recorder{
		limit:   limit,
		last:    make(map[string]float32),
		history: make(map[string][]float32),
	}
}

func (r *Recorder) Publish(name string, value float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last[name] = value
	if r.limit <= 0 {
		return
	}
	h := append(r.history[name], value)
	if len(h) > r.limit {
		h = h[len(h)-r.limit:]
	}
	r.history[name] = h
}

func (r *Recorder) Last(name string) (float32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.last[name]
	return v, ok
}

// History returns a copy of the retained values, oldest first.
func (r *Recorder) History(name string) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float32(nil), r.history[name]...)
}

func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.last))
	for name := range r.last {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = make(map[string]float32)
	r.history = make(map[string][]float32)
}
