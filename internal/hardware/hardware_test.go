package hardware

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"

	"github.com/san-kum/segway/internal/config"
	"github.com/san-kum/segway/internal/fault"
)

func mpuInit(addr uint16, who byte) []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: addr, W: []byte{regWhoAmI}, R: []byte{who}},
		{Addr: addr, W: []byte{regPowerMgmt1, 0x01}},
		{Addr: addr, W: []byte{regConfig, 0x00}},
		{Addr: addr, W: []byte{regSampleRateDiv, 0x00}},
		{Addr: addr, W: []byte{regGyroConfig, 0x00}},
		{Addr: addr, W: []byte{regAccelConfig, 0x00}},
	}
}

func TestMPU6050Read(t *testing.T) {
	ops := mpuInit(0x69, 0x68)
	ops = append(ops,
		i2ctest.IO{Addr: 0x69, W: []byte{regGyroY}, R: []byte{0x40, 0x00}},
		i2ctest.IO{Addr: 0x69, W: []byte{regAccelX}, R: []byte{0xc0, 0x00}},
		i2ctest.IO{Addr: 0x69, W: []byte{regAccelZ}, R: []byte{0x40, 0x00}},
	)
	bus := &i2ctest.Playback{Ops: ops, DontPanic: true}

	m, err := NewMPU6050(bus, MPU6050Opts{
		AddressBit:     true,
		WheelAxis:      "y",
		HorizontalAxis: "X",
		InvertRate:     true,
		Attempts:       1,
	})
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}

	rate, err := m.AngleRate()
	if err != nil || rate != -125 {
		t.Errorf("expected rate -125, got %v (%v)", rate, err)
	}
	hor, err := m.AccelHorizontal()
	if err != nil || hor != -1 {
		t.Errorf("expected horizontal -1, got %v (%v)", hor, err)
	}
	ver, err := m.AccelVertical()
	if err != nil || ver != 1 {
		t.Errorf("expected vertical 1, got %v (%v)", ver, err)
	}
	if err := bus.Close(); err != nil {
		t.Error(err)
	}
}

func TestMPU6050WhoAmI(t *testing.T) {
	tests := []struct {
		name string
		who  byte
		ok   bool
	}{
		{"mpu6050", 0x68, true},
		{"mpu6052c", 0x72, true},
		{"other", 0x00, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &i2ctest.Playback{Ops: mpuInit(0x68, tt.who), DontPanic: true}
			_, err := NewMPU6050(bus, MPU6050Opts{WheelAxis: "x", HorizontalAxis: "y", Attempts: 1})
			if tt.ok && err != nil {
				t.Errorf("expected success, got %v", err)
			}
			if !tt.ok && !errors.Is(err, fault.ErrCommunication) {
				t.Errorf("expected communication error, got %v", err)
			}
		})
	}
}

type flakyBus struct {
	i2c.Bus
	fails int
	calls int
}

func (f *flakyBus) Tx(addr uint16, w, r []byte) error {
	f.calls++
	if f.calls <= f.fails {
		return errors.New("nack")
	}
	return f.Bus.Tx(addr, w, r)
}

func TestMPU6050Retry(t *testing.T) {
	opts := MPU6050Opts{WheelAxis: "x", HorizontalAxis: "y", AttemptTimeout: time.Second}

	opts.Attempts = 3
	bus := &flakyBus{Bus: &i2ctest.Playback{Ops: mpuInit(0x68, 0x68), DontPanic: true}, fails: 2}
	if _, err := NewMPU6050(bus, opts); err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if bus.calls != 8 {
		t.Errorf("expected 8 transactions, got %d", bus.calls)
	}

	opts.Attempts = 2
	bus = &flakyBus{Bus: &i2ctest.Playback{Ops: mpuInit(0x68, 0x68), DontPanic: true}, fails: 2}
	_, err := NewMPU6050(bus, opts)
	if !errors.Is(err, fault.ErrCommunication) {
		t.Errorf("expected communication error, got %v", err)
	}
	if bus.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", bus.calls)
	}
}

func TestAxisRegisters(t *testing.T) {
	tests := []struct {
		wheel, hor string
		rate, h, v byte
		err        bool
	}{
		{"x", "y", regGyroX, regAccelY, regAccelZ, false},
		{"x", "z", regGyroX, regAccelZ, regAccelY, false},
		{"y", "x", regGyroY, regAccelX, regAccelZ, false},
		{"z", "x", regGyroZ, regAccelX, regAccelY, false},
		{"Z", "Y", regGyroZ, regAccelY, regAccelX, false},
		{"w", "x", 0, 0, 0, true},
		{"x", "q", 0, 0, 0, true},
		{"y", "y", 0, 0, 0, true},
	}
	for _, tt := range tests {
		rate, h, v, err := axisRegisters(tt.wheel, tt.hor)
		if tt.err {
			if !errors.Is(err, fault.ErrAxisConfiguration) {
				t.Errorf("%s/%s: expected axis error, got %v", tt.wheel, tt.hor, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s/%s: unexpected error %v", tt.wheel, tt.hor, err)
			continue
		}
		if rate != tt.rate || h != tt.h || v != tt.v {
			t.Errorf("%s/%s: expected %#x %#x %#x, got %#x %#x %#x", tt.wheel, tt.hor, tt.rate, tt.h, tt.v, rate, h, v)
		}
	}
}

func TestHBridge(t *testing.T) {
	fwd := &gpiotest.Pin{N: "fwd"}
	rev := &gpiotest.Pin{N: "rev"}
	h, err := NewHBridge(fwd, rev, 20*physic.KiloHertz, false)
	if err != nil {
		t.Fatal(err)
	}

	if err := h.SetDuty(0.5); err != nil {
		t.Fatal(err)
	}
	if fwd.D != gpio.DutyHalf || fwd.F != 20*physic.KiloHertz {
		t.Errorf("expected forward at half duty, got %v at %v", fwd.D, fwd.F)
	}
	if rev.L != gpio.Low {
		t.Error("expected reverse off")
	}

	if err := h.SetDuty(-1); err != nil {
		t.Fatal(err)
	}
	if rev.D != gpio.DutyMax {
		t.Errorf("expected reverse at full duty, got %v", rev.D)
	}

	fwd.L, rev.L = gpio.High, gpio.High
	if err := h.SetDuty(0.05); err != nil {
		t.Fatal(err)
	}
	if fwd.L != gpio.Low || rev.L != gpio.Low || h.Duty() != 0 {
		t.Errorf("expected dead band to switch off both pins, got %v %v", fwd.L, rev.L)
	}

	for _, d := range []float32{1.01, -2, float32(math.NaN())} {
		if err := h.SetDuty(d); !errors.Is(err, fault.ErrRange) {
			t.Errorf("duty %v: expected range error, got %v", d, err)
		}
	}
}

func TestHBridgeInvert(t *testing.T) {
	fwd := &gpiotest.Pin{N: "fwd"}
	rev := &gpiotest.Pin{N: "rev"}
	h, err := NewHBridge(fwd, rev, physic.KiloHertz, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.SetDuty(0.5); err != nil {
		t.Fatal(err)
	}
	if rev.D != gpio.DutyHalf || fwd.D != 0 {
		t.Errorf("expected reverse driven, got fwd %v rev %v", fwd.D, rev.D)
	}
	if h.Duty() != -0.5 {
		t.Errorf("expected applied duty -0.5, got %v", h.Duty())
	}
}

func TestSwitch(t *testing.T) {
	pin := &gpiotest.Pin{N: "foot"}
	s, err := NewSwitch(pin, gpio.PullUp, true)
	if err != nil {
		t.Fatal(err)
	}
	if pin.P != gpio.PullUp {
		t.Errorf("expected pull-up, got %v", pin.P)
	}
	if s.Read() {
		t.Error("expected released with the pull-up high")
	}
	pin.Out(gpio.Low)
	if !s.Read() {
		t.Error("expected pressed when pulled low")
	}

	high := &gpiotest.Pin{N: "btn"}
	s, _ = NewSwitch(high, gpio.PullDown, false)
	high.Out(gpio.High)
	if !s.Read() {
		t.Error("expected active-high switch pressed")
	}
}

func TestParsePull(t *testing.T) {
	tests := []struct {
		in     string
		expect gpio.Pull
		err    bool
	}{
		{"up", gpio.PullUp, false},
		{"Down", gpio.PullDown, false},
		{"", gpio.Float, false},
		{"sideways", gpio.PullNoChange, true},
	}
	for _, tt := range tests {
		got, err := ParsePull(tt.in)
		if (err != nil) != tt.err || got != tt.expect {
			t.Errorf("%q: expected %v (err %v), got %v (%v)", tt.in, tt.expect, tt.err, got, err)
		}
	}
}

type fakeADC struct {
	gpiotest.Pin
	v   physic.ElectricPotential
	err error
}

func (f *fakeADC) Range() (analog.Sample, analog.Sample) {
	return analog.Sample{}, analog.Sample{V: 4096 * physic.MilliVolt, Raw: 32767}
}

func (f *fakeADC) Read() (analog.Sample, error) {
	return analog.Sample{V: f.v}, f.err
}

func TestAnalogInput(t *testing.T) {
	adc := &fakeADC{Pin: gpiotest.Pin{N: "A1"}, v: 1500 * physic.MilliVolt}
	in := NewAnalogInput(adc, 10)
	u, err := in.ReadVoltage()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(u)-15) > 1e-5 {
		t.Errorf("expected 15 V, got %v", u)
	}

	adc.err = errors.New("bus gone")
	if _, err := in.ReadVoltage(); !errors.Is(err, fault.ErrCommunication) {
		t.Errorf("expected communication error, got %v", err)
	}
}

type countingHandler struct {
	n      atomic.Int32
	sleep  time.Duration
	failAt int32
}

func (c *countingHandler) Tick() error {
	n := c.n.Add(1)
	time.Sleep(c.sleep)
	if c.failAt > 0 && n >= c.failAt {
		return errors.New("halted")
	}
	return nil
}

func TestTickerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	h := &countingHandler{}
	tk := NewTicker(2*time.Millisecond, nil)
	if err := tk.Run(ctx, h); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if h.n.Load() == 0 || uint64(h.n.Load()) != tk.Ticks() {
		t.Errorf("expected ticks to be counted, got %d handler calls and %d ticks", h.n.Load(), tk.Ticks())
	}
}

func TestTickerStopsOnError(t *testing.T) {
	h := &countingHandler{failAt: 3}
	err := NewTicker(time.Millisecond, nil).Run(context.Background(), h)
	if err == nil || err.Error() != "halted" {
		t.Errorf("expected handler error, got %v", err)
	}
	if h.n.Load() != 3 {
		t.Errorf("expected 3 ticks, got %d", h.n.Load())
	}
}

func TestTickerOverrun(t *testing.T) {
	var buf bytes.Buffer
	h := &countingHandler{sleep: 3 * time.Millisecond, failAt: 4}
	tk := NewTicker(time.Millisecond, log.New(&buf, "", 0))
	tk.Run(context.Background(), h)

	if tk.Overruns() != 3 {
		t.Errorf("expected 3 overruns, got %d", tk.Overruns())
	}
	if !strings.Contains(buf.String(), "overran") {
		t.Errorf("expected overrun logged, got %q", buf.String())
	}
}

type fakeResolver struct {
	pins   map[string]*gpiotest.Pin
	imu    *i2ctest.Playback
	adcs   map[int]*fakeADC
	closed bool
}

func (f *fakeResolver) pin(name string) (gpio.PinIO, error) {
	p, ok := f.pins[name]
	if !ok {
		return nil, errors.New("no such pin")
	}
	return p, nil
}

func (f *fakeResolver) bus(string) (i2c.Bus, error) { return f.imu, nil }

func (f *fakeResolver) adc(_ i2c.Bus, _ config.ADCConfig, ch int) (analog.PinADC, error) {
	return f.adcs[ch], nil
}

func (f *fakeResolver) close() error {
	f.closed = true
	return nil
}

func newFakeResolver(cfg *config.Config) *fakeResolver {
	f := &fakeResolver{
		pins: map[string]*gpiotest.Pin{},
		imu:  &i2ctest.Playback{Ops: mpuInit(0x68, 0x68), DontPanic: true},
		adcs: map[int]*fakeADC{
			cfg.Steering.Channel: {Pin: gpiotest.Pin{N: "A0"}, v: 1650 * physic.MilliVolt},
			cfg.Battery.Channel:  {Pin: gpiotest.Pin{N: "A1"}, v: 2500 * physic.MilliVolt},
		},
	}
	for _, name := range []string{
		cfg.FootSwitch.Pin, cfg.Steering.MinButton.Pin, cfg.Steering.MaxButton.Pin,
		cfg.Motors.Left.Forward, cfg.Motors.Left.Reverse,
		cfg.Motors.Right.Forward, cfg.Motors.Right.Reverse, "GPIO22",
	} {
		f.pins[name] = &gpiotest.Pin{N: name}
	}
	return f
}

func TestBoardOpen(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Motors.Enable = "GPIO22"
	res := newFakeResolver(cfg)

	b, err := open(cfg, res, nil)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if res.pins["GPIO22"].L != gpio.High {
		t.Error("expected motor enable driven high")
	}
	if res.pins[cfg.FootSwitch.Pin].P != gpio.PullUp {
		t.Error("expected the foot switch pull-up applied")
	}

	c := b.Collaborators(nil, nil)
	if c.FootSwitch == nil || c.Sensor == nil || c.Left == nil || c.Right == nil || c.Steering == nil || c.Battery == nil {
		t.Fatalf("expected every collaborator, got %+v", c)
	}
	u, err := c.Battery.ReadVoltage()
	if err != nil || math.Abs(float64(u)-2.5) > 1e-5 {
		t.Errorf("expected battery 2.5 V, got %v (%v)", u, err)
	}
	if lo, hi, err := b.Buttons(); err != nil || lo == nil || hi == nil {
		t.Errorf("expected calibration buttons, got %v", err)
	}

	if err := c.Left.SetDuty(0.8); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if b.Left.Duty() != 0 || res.pins["GPIO22"].L != gpio.Low || !res.closed {
		t.Error("expected close to stop the motors and release the buses")
	}
}

func TestBoardOpenMissingPin(t *testing.T) {
	cfg := config.DefaultConfig()
	res := newFakeResolver(cfg)
	delete(res.pins, cfg.Motors.Right.Reverse)

	if _, err := open(cfg, res, nil); !errors.Is(err, fault.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
	if !res.closed {
		t.Error("expected resources released after a failed open")
	}
}

func TestBoardOpenBadAxes(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.IMU.HorizontalAxis = cfg.IMU.WheelAxis
	if _, err := open(cfg, newFakeResolver(cfg), nil); !errors.Is(err, fault.ErrAxisConfiguration) {
		t.Errorf("expected axis error, got %v", err)
	}
}
