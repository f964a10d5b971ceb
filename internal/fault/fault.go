// Package fault defines the error taxonomy shared by the vehicle core and its
// peripheral collaborators, and the single hook through which fatal faults
// leave the control loop.
package fault

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

// Fault kinds. Every error surfaced by the core wraps exactly one of these.
var (
	// ErrConfiguration indicates a peripheral or parameter that cannot be set up.
	ErrConfiguration = errors.New("fault: configuration error")

	// ErrCommunication indicates a sensor bus transaction that did not complete in time.
	ErrCommunication = errors.New("fault: communication error")

	// ErrRange indicates a command outside the range a collaborator accepts.
	ErrRange = errors.New("fault: value out of range")

	// ErrAxisConfiguration indicates an invalid inertial sensor axis assignment.
	ErrAxisConfiguration = errors.New("fault: invalid axis configuration")
)

// Error attaches the failing operation to a fault kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

// New returns an *Error for op of the given kind. err may be nil.
func New(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the underlying cause to errors.Is.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Hook receives every fatal fault raised during a control tick.
// Implementations must leave both motors de-energised before returning.
type Hook interface {
	Fatal(err error)
}

// HookFunc adapts a function to Hook.
type HookFunc func(err error)

func (f HookFunc) Fatal(err error) { f(err) }

// Stopper is the one capability the cutoff hook needs from a motor.
type Stopper interface {
	SetDuty(duty float32) error
}

// Cutoff is the default Hook. It zeroes every motor it was given, logs the
// fault and remembers the first one.
type Cutoff struct {
	motors []Stopper
	logger *log.Logger
	notify func(err error)

	mu    sync.Mutex
	first error
	count int
}

// NewCutoff returns a hook that stops motors on a fatal fault. notify, if not
// nil, is called after the motors were stopped.
func NewCutoff(logger *log.Logger, notify func(err error), motors ...Stopper) *Cutoff {
	if logger == nil {
		logger = log.Default()
	}
	return &Cutoff{motors: motors, logger: logger, notify: notify}
}

func (c *Cutoff) Fatal(err error) {
	for i, m := range c.motors {
		if m == nil {
			continue
		}
		if serr := m.SetDuty(0); serr != nil {
			c.logger.Printf("fault: motor %d stop failed: %v", i, serr)
		}
	}

	c.mu.Lock()
	c.count++
	if c.first == nil {
		c.first = err
	}
	c.mu.Unlock()

	c.logger.Printf("fault: %v (motors stopped)", err)
	if c.notify != nil {
		c.notify(err)
	}
}

// Err returns the first fault reported, or nil.
func (c *Cutoff) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.first
}

// Count returns how many faults were reported.
func (c *Cutoff) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
