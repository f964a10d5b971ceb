package fault

import (
	"bytes"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
)

type stubMotor struct {
	duty  float32
	calls int
	err   error
}

func (m *stubMotor) SetDuty(d float32) error {
	m.calls++
	m.duty = d
	return m.err
}

func TestErrorIs(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := New("imu read", ErrCommunication, cause)

	if !errors.Is(err, ErrCommunication) {
		t.Error("expected error to match ErrCommunication")
	}
	if !errors.Is(err, cause) {
		t.Error("expected error to match its cause")
	}
	if errors.Is(err, ErrRange) {
		t.Error("did not expect error to match ErrRange")
	}
	if !strings.Contains(err.Error(), "imu read") {
		t.Errorf("expected op in message, got %q", err.Error())
	}
}

func TestErrorWithoutCause(t *testing.T) {
	err := New("motor", ErrRange, nil)
	if !errors.Is(err, ErrRange) {
		t.Error("expected error to match ErrRange")
	}
	if got := err.Error(); got != "motor: fault: value out of range" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestCutoffStopsMotors(t *testing.T) {
	left := &stubMotor{duty: 0.5}
	right := &stubMotor{duty: -0.3, err: errors.New("stuck")}

	var buf bytes.Buffer
	var notified error
	c := NewCutoff(log.New(&buf, "", 0), func(err error) { notified = err }, left, right)

	first := errors.New("first")
	c.Fatal(first)
	c.Fatal(errors.New("second"))

	if left.duty != 0 || right.duty != 0 {
		t.Errorf("expected both motors at 0, got %v and %v", left.duty, right.duty)
	}
	if left.calls != 2 {
		t.Errorf("expected 2 stop calls, got %d", left.calls)
	}
	if c.Err() != first {
		t.Errorf("expected first fault retained, got %v", c.Err())
	}
	if c.Count() != 2 {
		t.Errorf("expected count 2, got %d", c.Count())
	}
	if notified == nil || notified.Error() != "second" {
		t.Errorf("expected notify with last fault, got %v", notified)
	}
	if !strings.Contains(buf.String(), "stop failed") {
		t.Error("expected stop failure to be logged")
	}
}

func TestHookFunc(t *testing.T) {
	var got error
	var h Hook = HookFunc(func(err error) { got = err })
	h.Fatal(ErrConfiguration)
	if got != ErrConfiguration {
		t.Errorf("expected ErrConfiguration, got %v", got)
	}
}
