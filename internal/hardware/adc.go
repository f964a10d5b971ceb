package hardware

import (
	"fmt"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"

	"github.com/san-kum/segway/internal/fault"
)

// AnalogInput adapts any periph ADC pin to the vehicle's voltage reader.
type AnalogInput struct {
	pin   analog.PinADC
	scale float32
}

// NewAnalogInput reads pin and multiplies the result by scale, e.g. the
// ratio of a battery sense divider.
func NewAnalogInput(pin analog.PinADC, scale float64) *AnalogInput {
	if scale == 0 {
		scale = 1
	}
	return &AnalogInput{pin: pin, scale: float32(scale)}
}

func (a *AnalogInput) ReadVoltage() (float32, error) {
	s, err := a.pin.Read()
	if err != nil {
		return 0, fault.New("adc "+a.pin.Name(), fault.ErrCommunication, err)
	}
	return float32(float64(s.V)/float64(physic.Volt)) * a.scale, nil
}

func (a *AnalogInput) String() string { return a.pin.String() }

// ADS1115Opts selects the converter and the conversion setup shared by all
// channels.
type ADS1115Opts struct {
	Address    uint16
	FullScale  float64 // volts
	SampleRate int     // samples per second
}

// ADS1115 hands out single-ended channels of one converter.
type ADS1115 struct {
	dev  *ads1x15.Dev
	opts ADS1115Opts
}

func NewADS1115(bus i2c.Bus, opts ADS1115Opts) (*ADS1115, error) {
	dev, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: opts.Address})
	if err != nil {
		return nil, fault.New("ads1115", fault.ErrConfiguration, err)
	}
	return &ADS1115{dev: dev, opts: opts}, nil
}

// Channel returns single-ended input ch, 0 to 3.
func (a *ADS1115) Channel(ch int) (analog.PinADC, error) {
	channels := [...]ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2, ads1x15.Channel3}
	if ch < 0 || ch >= len(channels) {
		return nil, fault.New("ads1115", fault.ErrConfiguration, fmt.Errorf("channel %d outside 0..3", ch))
	}
	pin, err := a.dev.PinForChannel(
		channels[ch],
		physic.ElectricPotential(a.opts.FullScale*float64(physic.Volt)),
		physic.Frequency(a.opts.SampleRate)*physic.Hertz,
		ads1x15.BestQuality,
	)
	if err != nil {
		return nil, fault.New(fmt.Sprintf("ads1115 channel %d", ch), fault.ErrConfiguration, err)
	}
	return pin, nil
}

func (a *ADS1115) Halt() error { return a.dev.Halt() }
