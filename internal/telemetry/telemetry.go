// Package telemetry carries vehicle samples away from the control loop.
// Every Publisher here returns immediately.
package telemetry

type Publisher interface {
	Publish(name string, value float32)
}

// Discard drops every sample.
type Discard struct{}

func (Discard) Publish(string, float32) {}

// Fanout forwards each sample to all of its publishers in order.
type Fanout []Publisher

func (f Fanout) Publish(name string, value float32) {
	for _, p := range f {
		p.Publish(name, value)
	}
}
