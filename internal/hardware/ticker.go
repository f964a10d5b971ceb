package hardware

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// TickHandler runs one control tick.
type TickHandler interface {
	Tick() error
}

// Ticker calls a handler at a fixed rate. A tick that takes longer than the
// interval is an overrun; the following ticks are not queued up.
type Ticker struct {
	Interval time.Duration
	Logger   *log.Logger

	ticks    atomic.Uint64
	overruns atomic.Uint64
}

func NewTicker(interval time.Duration, logger *log.Logger) *Ticker {
	return &Ticker{Interval: interval, Logger: logger}
}

// Run blocks until the handler fails or ctx is done. Cancellation is for
// process shutdown; the vehicle itself never stops the loop.
func (t *Ticker) Run(ctx context.Context, h TickHandler) error {
	tk := time.NewTicker(t.Interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tk.C:
		}

		start := time.Now()
		if err := h.Tick(); err != nil {
			return err
		}
		n := t.ticks.Add(1)
		if took := time.Since(start); took > t.Interval {
			over := t.overruns.Add(1)
			if t.Logger != nil && (over == 1 || over%100 == 0) {
				t.Logger.Printf("tick %d overran: %v > %v (%d overruns)", n, took, t.Interval, over)
			}
		}
	}
}

func (t *Ticker) Ticks() uint64    { return t.ticks.Load() }
func (t *Ticker) Overruns() uint64 { return t.overruns.Load() }
