package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/segway/internal/control"
	"github.com/san-kum/segway/internal/fault"
	"github.com/san-kum/segway/internal/vehicle"
)

const (
	DefaultTickHz        = 100.0
	DefaultMaxSpeed      = 0.7
	DefaultDutyCeiling   = 0.95
	DefaultFilterWeight  = 0.98
	DefaultLowPassWeight = 0.5
	DefaultKp            = 5.0
	DefaultKd            = 0.2
	DefaultBatteryLow    = 2.1
	DefaultCutoffTicks   = 50
	DefaultSteeringMin   = 0.5
	DefaultSteeringMax   = 2.8
	DefaultPWMFrequency  = 20000
	DefaultI2CBus        = "1"
	DefaultADCAddress    = 0x48
	DefaultADCFullScale  = 4.096
	DefaultADCRate       = 860
	DefaultIMUAttempts   = 4
	DefaultIMUTimeout    = 250 * time.Microsecond
	DefaultBroker        = "tcp://localhost:1883"
	DefaultTopicPrefix   = "segway"
	DefaultQueueSize     = 256
)

// Axes of the inertial sensor.
const (
	AxisX = "x"
	AxisY = "y"
	AxisZ = "z"
)

type Config struct {
	Control    ControlConfig   `yaml:"control"`
	Battery    BatteryConfig   `yaml:"battery"`
	FootSwitch SwitchConfig    `yaml:"foot_switch"`
	Steering   SteeringConfig  `yaml:"steering"`
	IMU        IMUConfig       `yaml:"imu"`
	Motors     MotorsConfig    `yaml:"motors"`
	ADC        ADCConfig       `yaml:"adc"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	Log        LogConfig       `yaml:"log"`
}

type ControlConfig struct {
	TickHz        float64 `yaml:"tick_hz"`
	MaxSpeed      float64 `yaml:"max_speed"`
	DutyCeiling   float64 `yaml:"duty_ceiling"`
	FilterWeight  float64 `yaml:"filter_weight"`
	LowPassWeight float64 `yaml:"low_pass_weight"`
	Kp            float64 `yaml:"kp"`
	Kd            float64 `yaml:"kd"`
}

type BatteryConfig struct {
	LowVoltage  float64 `yaml:"low_voltage"`
	CutoffTicks uint32  `yaml:"cutoff_ticks"`
	Channel     int     `yaml:"channel"`
}

type SwitchConfig struct {
	Pin       string `yaml:"pin"`
	ActiveLow bool   `yaml:"active_low"`
	Pull      string `yaml:"pull"`
}

type SteeringConfig struct {
	Channel    int          `yaml:"channel"`
	MinVoltage float64      `yaml:"min_voltage"`
	MaxVoltage float64      `yaml:"max_voltage"`
	MinButton  SwitchConfig `yaml:"min_button"`
	MaxButton  SwitchConfig `yaml:"max_button"`
}

type IMUConfig struct {
	Bus              string        `yaml:"bus"`
	AddressBit       bool          `yaml:"address_bit"`
	WheelAxis        string        `yaml:"wheel_axis"`
	HorizontalAxis   string        `yaml:"horizontal_axis"`
	InvertRate       bool          `yaml:"invert_rate"`
	InvertHorizontal bool          `yaml:"invert_horizontal"`
	InvertVertical   bool          `yaml:"invert_vertical"`
	Attempts         int           `yaml:"attempts"`
	AttemptTimeout   time.Duration `yaml:"attempt_timeout"`
}

type MotorPins struct {
	Forward string `yaml:"forward"`
	Reverse string `yaml:"reverse"`
	Invert  bool   `yaml:"invert"`
}

type MotorsConfig struct {
	Left        MotorPins `yaml:"left"`
	Right       MotorPins `yaml:"right"`
	Enable      string    `yaml:"enable"`
	FrequencyHz int       `yaml:"frequency_hz"`
}

type ADCConfig struct {
	Bus        string  `yaml:"bus"`
	Address    uint16  `yaml:"address"`
	FullScale  float64 `yaml:"full_scale"`
	SampleRate int     `yaml:"sample_rate"`

	// Divider scales the battery sense reading, e.g. 10 for a 1:10 divider
	// when thresholds are given in pack volts. 1 keeps sense volts.
	Divider float64 `yaml:"divider"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QueueSize   int    `yaml:"queue_size"`
}

type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

func DefaultConfig() *Config {
	return &Config{
		Control: ControlConfig{
			TickHz:        DefaultTickHz,
			MaxSpeed:      DefaultMaxSpeed,
			DutyCeiling:   DefaultDutyCeiling,
			FilterWeight:  DefaultFilterWeight,
			LowPassWeight: DefaultLowPassWeight,
			Kp:            DefaultKp,
			Kd:            DefaultKd,
		},
		Battery: BatteryConfig{
			LowVoltage:  DefaultBatteryLow,
			CutoffTicks: DefaultCutoffTicks,
			Channel:     1,
		},
		FootSwitch: SwitchConfig{Pin: "GPIO17", ActiveLow: true, Pull: "up"},
		Steering: SteeringConfig{
			Channel:    0,
			MinVoltage: DefaultSteeringMin,
			MaxVoltage: DefaultSteeringMax,
			MinButton:  SwitchConfig{Pin: "GPIO5", ActiveLow: true, Pull: "up"},
			MaxButton:  SwitchConfig{Pin: "GPIO6", ActiveLow: true, Pull: "up"},
		},
		IMU: IMUConfig{
			Bus:            DefaultI2CBus,
			WheelAxis:      AxisY,
			HorizontalAxis: AxisX,
			Attempts:       DefaultIMUAttempts,
			AttemptTimeout: DefaultIMUTimeout,
		},
		Motors: MotorsConfig{
			Left:        MotorPins{Forward: "GPIO12", Reverse: "GPIO13"},
			Right:       MotorPins{Forward: "GPIO18", Reverse: "GPIO19"},
			FrequencyHz: DefaultPWMFrequency,
		},
		ADC: ADCConfig{
			Bus:        DefaultI2CBus,
			Address:    DefaultADCAddress,
			FullScale:  DefaultADCFullScale,
			SampleRate: DefaultADCRate,
			Divider:    1,
		},
		Telemetry: TelemetryConfig{
			Broker:      DefaultBroker,
			ClientID:    "segway",
			TopicPrefix: DefaultTopicPrefix,
			QueueSize:   DefaultQueueSize,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ControlParams converts the control section into controller parameters.
func (c *Config) ControlParams() control.Params {
	return control.Params{
		TickFrequency: float32(c.Control.TickHz),
		MaxSpeed:      float32(c.Control.MaxSpeed),
		DutyCeiling:   float32(c.Control.DutyCeiling),
		FilterWeight:  float32(c.Control.FilterWeight),
		LowPassWeight: float32(c.Control.LowPassWeight),
		Kp:            float32(c.Control.Kp),
		Kd:            float32(c.Control.Kd),
	}
}

// Vehicle returns the orchestrator configuration.
func (c *Config) Vehicle() vehicle.Config {
	return vehicle.Config{
		Control:     c.ControlParams(),
		BatteryLow:  float32(c.Battery.LowVoltage),
		CutoffTicks: c.Battery.CutoffTicks,
		SteeringMin: float32(c.Steering.MinVoltage),
		SteeringMax: float32(c.Steering.MaxVoltage),
	}
}

// TickInterval is the period of the control loop.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.Control.TickHz)
}

// Validate checks everything the controller core depends on. Pin names are
// checked when the hardware is opened.
func (c *Config) Validate() error {
	if err := c.Vehicle().Validate(); err != nil {
		return err
	}
	var errs []error
	if c.Steering.MaxVoltage == c.Steering.MinVoltage {
		errs = append(errs, errors.New("steering voltage range is empty"))
	}
	if !validAxis(c.IMU.WheelAxis) {
		errs = append(errs, fmt.Errorf("unknown wheel axis %q", c.IMU.WheelAxis))
	}
	if !validAxis(c.IMU.HorizontalAxis) {
		errs = append(errs, fmt.Errorf("unknown horizontal axis %q", c.IMU.HorizontalAxis))
	}
	if c.IMU.WheelAxis == c.IMU.HorizontalAxis {
		errs = append(errs, fmt.Errorf("horizontal axis %q equals wheel axis", c.IMU.HorizontalAxis))
	}
	if c.IMU.Attempts <= 0 {
		errs = append(errs, errors.New("imu attempts must be positive"))
	}
	if c.ADC.Divider <= 0 {
		errs = append(errs, errors.New("adc divider must be positive"))
	}
	if c.Telemetry.Enabled && c.Telemetry.Broker == "" {
		errs = append(errs, errors.New("telemetry enabled without broker"))
	}
	if len(errs) > 0 {
		return fault.New("config", fault.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

func validAxis(a string) bool {
	return a == AxisX || a == AxisY || a == AxisZ
}
