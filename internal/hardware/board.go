package hardware

import (
	"errors"
	"fmt"
	"log"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/san-kum/segway/internal/config"
	"github.com/san-kum/segway/internal/fault"
	"github.com/san-kum/segway/internal/vehicle"
)

// Board is every peripheral of the vehicle, opened once at start-up.
type Board struct {
	FootSwitch *Switch
	MinButton  *Switch
	MaxButton  *Switch
	Steering   *AnalogInput
	Battery    *AnalogInput
	Sensor     *MPU6050
	Left       *HBridge
	Right      *HBridge

	enable gpio.PinOut
	res    resolver
	logger *log.Logger
}

// resolver turns names from the config into periph handles.
type resolver interface {
	pin(name string) (gpio.PinIO, error)
	bus(name string) (i2c.Bus, error)
	adc(bus i2c.Bus, cfg config.ADCConfig, channel int) (analog.PinADC, error)
	close() error
}

// Open initialises the host drivers and resolves every pin and bus named in
// cfg. Nothing is looked up by name after it returns.
func Open(cfg *config.Config, logger *log.Logger) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fault.New("periph host", fault.ErrConfiguration, err)
	}
	return open(cfg, &periph{buses: map[string]i2c.BusCloser{}}, logger)
}

type gpioRole struct {
	role string
	name string
	dst  *gpio.PinIO
}

func open(cfg *config.Config, res resolver, logger *log.Logger) (b *Board, err error) {
	b = &Board{res: res, logger: logger}
	defer func() {
		if err != nil {
			b.Close()
			b = nil
		}
	}()

	var foot, minBtn, maxBtn, leftF, leftR, rightF, rightR, enable gpio.PinIO
	table := []gpioRole{
		{"foot switch", cfg.FootSwitch.Pin, &foot},
		{"steering min button", cfg.Steering.MinButton.Pin, &minBtn},
		{"steering max button", cfg.Steering.MaxButton.Pin, &maxBtn},
		{"left forward", cfg.Motors.Left.Forward, &leftF},
		{"left reverse", cfg.Motors.Left.Reverse, &leftR},
		{"right forward", cfg.Motors.Right.Forward, &rightF},
		{"right reverse", cfg.Motors.Right.Reverse, &rightR},
		{"motor enable", cfg.Motors.Enable, &enable},
	}
	for _, r := range table {
		if r.name == "" {
			continue
		}
		p, err := res.pin(r.name)
		if err != nil {
			return b, fault.New(r.role, fault.ErrConfiguration, err)
		}
		*r.dst = p
	}
	if foot == nil || leftF == nil || leftR == nil || rightF == nil || rightR == nil {
		return b, fault.New("board", fault.ErrConfiguration, errors.New("foot switch and motor pins are required"))
	}

	freq := physic.Frequency(cfg.Motors.FrequencyHz) * physic.Hertz
	if b.Left, err = NewHBridge(leftF, leftR, freq, cfg.Motors.Left.Invert); err != nil {
		return b, err
	}
	if b.Right, err = NewHBridge(rightF, rightR, freq, cfg.Motors.Right.Invert); err != nil {
		return b, err
	}

	if b.FootSwitch, err = openSwitch(foot, cfg.FootSwitch); err != nil {
		return b, err
	}
	if minBtn != nil {
		if b.MinButton, err = openSwitch(minBtn, cfg.Steering.MinButton); err != nil {
			return b, err
		}
	}
	if maxBtn != nil {
		if b.MaxButton, err = openSwitch(maxBtn, cfg.Steering.MaxButton); err != nil {
			return b, err
		}
	}

	imuBus, err := res.bus(cfg.IMU.Bus)
	if err != nil {
		return b, fault.New("imu bus "+cfg.IMU.Bus, fault.ErrConfiguration, err)
	}
	b.Sensor, err = NewMPU6050(imuBus, MPU6050Opts{
		AddressBit:       cfg.IMU.AddressBit,
		WheelAxis:        cfg.IMU.WheelAxis,
		HorizontalAxis:   cfg.IMU.HorizontalAxis,
		InvertRate:       cfg.IMU.InvertRate,
		InvertHorizontal: cfg.IMU.InvertHorizontal,
		InvertVertical:   cfg.IMU.InvertVertical,
		Attempts:         cfg.IMU.Attempts,
		AttemptTimeout:   cfg.IMU.AttemptTimeout,
	})
	if err != nil {
		return b, err
	}

	adcBus, err := res.bus(cfg.ADC.Bus)
	if err != nil {
		return b, fault.New("adc bus "+cfg.ADC.Bus, fault.ErrConfiguration, err)
	}
	steer, err := res.adc(adcBus, cfg.ADC, cfg.Steering.Channel)
	if err != nil {
		return b, err
	}
	battery, err := res.adc(adcBus, cfg.ADC, cfg.Battery.Channel)
	if err != nil {
		return b, err
	}
	b.Steering = NewAnalogInput(steer, 1)
	b.Battery = NewAnalogInput(battery, cfg.ADC.Divider)

	if enable != nil {
		if err := enable.Out(gpio.High); err != nil {
			return b, fault.New("motor enable", fault.ErrConfiguration, err)
		}
		b.enable = enable
	}
	if logger != nil {
		logger.Printf("board ready: imu %v, motors %v/%v", b.Sensor, leftF, rightF)
	}
	return b, nil
}

func openSwitch(pin gpio.PinIO, cfg config.SwitchConfig) (*Switch, error) {
	pull, err := ParsePull(cfg.Pull)
	if err != nil {
		return nil, err
	}
	return NewSwitch(pin, pull, cfg.ActiveLow)
}

// Collaborators hands the peripherals to the vehicle core.
func (b *Board) Collaborators(tel vehicle.Telemetry, hook fault.Hook) vehicle.Collaborators {
	return vehicle.Collaborators{
		FootSwitch: b.FootSwitch,
		Steering:   b.Steering,
		Battery:    b.Battery,
		Sensor:     b.Sensor,
		Left:       b.Left,
		Right:      b.Right,
		Telemetry:  tel,
		Hook:       hook,
	}
}

// Buttons returns the steering calibration buttons, or an error when they are
// not wired.
func (b *Board) Buttons() (lo, hi vehicle.DigitalInput, err error) {
	if b.MinButton == nil || b.MaxButton == nil {
		return nil, nil, fault.New("board", fault.ErrConfiguration, errors.New("steering calibration buttons not configured"))
	}
	return b.MinButton, b.MaxButton, nil
}

// Close stops both motors, drops the enable line and releases the buses.
func (b *Board) Close() error {
	var errs []error
	for _, m := range []*HBridge{b.Left, b.Right} {
		if m != nil {
			errs = append(errs, m.Halt())
		}
	}
	if b.enable != nil {
		errs = append(errs, b.enable.Out(gpio.Low))
	}
	if b.res != nil {
		errs = append(errs, b.res.close())
	}
	return errors.Join(errs...)
}

// periph resolves names through the host registries.
type periph struct {
	buses map[string]i2c.BusCloser
	adcs  map[i2c.Bus]*ADS1115
}

func (p *periph) pin(name string) (gpio.PinIO, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("no gpio pin %q", name)
	}
	return pin, nil
}

func (p *periph) bus(name string) (i2c.Bus, error) {
	if b, ok := p.buses[name]; ok {
		return b, nil
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, err
	}
	p.buses[name] = b
	return b, nil
}

func (p *periph) adc(bus i2c.Bus, cfg config.ADCConfig, channel int) (analog.PinADC, error) {
	if p.adcs == nil {
		p.adcs = map[i2c.Bus]*ADS1115{}
	}
	dev, ok := p.adcs[bus]
	if !ok {
		var err error
		dev, err = NewADS1115(bus, ADS1115Opts{
			Address:    cfg.Address,
			FullScale:  cfg.FullScale,
			SampleRate: cfg.SampleRate,
		})
		if err != nil {
			return nil, err
		}
		p.adcs[bus] = dev
	}
	return dev.Channel(channel)
}

func (p *periph) close() error {
	var errs []error
	for _, dev := range p.adcs {
		errs = append(errs, dev.Halt())
	}
	for _, b := range p.buses {
		errs = append(errs, b.Close())
	}
	return errors.Join(errs...)
}
