// Package hardware implements the vehicle collaborators on Linux boards
// through periph.io: the MPU-6050 inertial sensor, the ADS1115 converter,
// GPIO switches, H-bridge motor outputs and the tick timer.
package hardware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/i2c"

	"github.com/san-kum/segway/internal/fault"
)

// MPU-6050 registers.
const (
	regSampleRateDiv = 0x19
	regConfig        = 0x1a
	regGyroConfig    = 0x1b
	regAccelConfig   = 0x1c
	regAccelX        = 0x3b
	regAccelY        = 0x3d
	regAccelZ        = 0x3f
	regGyroX         = 0x43
	regGyroY         = 0x45
	regGyroZ         = 0x47
	regPowerMgmt1    = 0x6b
	regWhoAmI        = 0x75
)

const (
	mpuBaseAddress = 0x68
	mpu6052CWhoAmI = 0x72

	gyroRange  = 250 // deg/s
	accelRange = 2   // g
	fullScale  = 1 << 15
)

type MPU6050Opts struct {
	AddressBit       bool
	WheelAxis        string
	HorizontalAxis   string
	InvertRate       bool
	InvertHorizontal bool
	InvertVertical   bool

	// Every register access gives up after Attempts tries or
	// Attempts*AttemptTimeout, whichever comes first.
	Attempts       int
	AttemptTimeout time.Duration
}

// MPU6050 reads the wheel axis rate and the two accelerations in the plane
// perpendicular to it.
type MPU6050 struct {
	dev  i2c.Dev
	opts MPU6050Opts

	rateReg, horReg, verReg    byte
	rateSign, horSign, verSign float32

	buf [2]byte
}

func NewMPU6050(bus i2c.Bus, opts MPU6050Opts) (*MPU6050, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	m := &MPU6050{
		dev:      i2c.Dev{Bus: bus, Addr: mpuBaseAddress},
		opts:     opts,
		rateSign: sign(opts.InvertRate),
		horSign:  sign(opts.InvertHorizontal),
		verSign:  sign(opts.InvertVertical),
	}
	if opts.AddressBit {
		m.dev.Addr++
	}

	var err error
	m.rateReg, m.horReg, m.verReg, err = axisRegisters(opts.WheelAxis, opts.HorizontalAxis)
	if err != nil {
		return nil, err
	}

	var who [1]byte
	if err := m.tx([]byte{regWhoAmI}, who[:]); err != nil {
		return nil, err
	}
	// WHO_AM_I holds the address without the AD0 bit.
	if who[0] != mpuBaseAddress && who[0] != mpu6052CWhoAmI {
		return nil, fault.New("mpu6050", fault.ErrCommunication, fmt.Errorf("unexpected WHO_AM_I 0x%02x", who[0]))
	}

	setup := [][2]byte{
		{regPowerMgmt1, 0x01}, // PLL with X gyro reference
		{regConfig, 0x00},
		{regSampleRateDiv, 0x00},
		{regGyroConfig, 0x00},  // 250 deg/s
		{regAccelConfig, 0x00}, // 2 g
	}
	for _, w := range setup {
		if err := m.tx(w[:], nil); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AngleRate returns the rate about the wheel axis in deg/s.
func (m *MPU6050) AngleRate() (float32, error) {
	raw, err := m.read16(m.rateReg)
	if err != nil {
		return 0, err
	}
	return m.rateSign * float32(raw) * gyroRange / fullScale, nil
}

// AccelHorizontal returns the acceleration along the horizontal axis in g.
func (m *MPU6050) AccelHorizontal() (float32, error) {
	raw, err := m.read16(m.horReg)
	if err != nil {
		return 0, err
	}
	return m.horSign * float32(raw) * accelRange / fullScale, nil
}

// AccelVertical returns the acceleration along the vertical axis in g.
func (m *MPU6050) AccelVertical() (float32, error) {
	raw, err := m.read16(m.verReg)
	if err != nil {
		return 0, err
	}
	return m.verSign * float32(raw) * accelRange / fullScale, nil
}

func (m *MPU6050) String() string { return "mpu6050@" + m.dev.String() }

// read16 reads a big-endian register pair in one burst so both halves come
// from the same sample.
func (m *MPU6050) read16(reg byte) (int16, error) {
	if err := m.tx([]byte{reg}, m.buf[:]); err != nil {
		return 0, err
	}
	return int16(uint16(m.buf[0])<<8 | uint16(m.buf[1])), nil
}

func (m *MPU6050) tx(w, r []byte) error {
	deadline := time.Now().Add(time.Duration(m.opts.Attempts) * m.opts.AttemptTimeout)
	var err error
	for i := 0; i < m.opts.Attempts; i++ {
		if err = m.dev.Tx(w, r); err == nil {
			return nil
		}
		if m.opts.AttemptTimeout > 0 && time.Now().After(deadline) {
			break
		}
	}
	return fault.New(fmt.Sprintf("mpu6050 register 0x%02x", w[0]), fault.ErrCommunication, err)
}

// axisRegisters returns the gyro register of the wheel axis and the
// accelerometer registers of the horizontal and the remaining vertical axis.
func axisRegisters(wheel, horizontal string) (rate, hor, ver byte, err error) {
	gyro := map[string]byte{"x": regGyroX, "y": regGyroY, "z": regGyroZ}
	accel := map[string]byte{"x": regAccelX, "y": regAccelY, "z": regAccelZ}

	wheel, horizontal = strings.ToLower(wheel), strings.ToLower(horizontal)
	rate, ok := gyro[wheel]
	if !ok {
		return 0, 0, 0, fault.New("mpu6050", fault.ErrAxisConfiguration, fmt.Errorf("unknown wheel axis %q", wheel))
	}
	hor, ok = accel[horizontal]
	if !ok {
		return 0, 0, 0, fault.New("mpu6050", fault.ErrAxisConfiguration, fmt.Errorf("unknown horizontal axis %q", horizontal))
	}
	if wheel == horizontal {
		return 0, 0, 0, fault.New("mpu6050", fault.ErrAxisConfiguration, errors.New("horizontal axis equals wheel axis"))
	}
	for axis, reg := range accel {
		if axis != wheel && axis != horizontal {
			ver = reg
		}
	}
	return rate, hor, ver, nil
}

func sign(invert bool) float32 {
	if invert {
		return -1
	}
	return 1
}
