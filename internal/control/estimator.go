package control

import "math"

// Orientation is the filtered tilt of the vehicle about the wheel axis.
type Orientation struct {
	Angle     float32 // rad, 0 is upright, positive leans forward
	AngleRate float32 // rad/s
}

// Estimator fuses gyro and accelerometer samples into an Orientation.
type Estimator struct {
	TickFrequency float32
	FilterWeight  float32 // weight of the integrated gyro angle
	LowPassWeight float32 // weight of the newest rate sample
}

// AccelAngle returns the tilt seen by the accelerometer alone.
func AccelAngle(accelHorizontal, accelVertical float32) float32 {
	return float32(math.Atan2(float64(-accelHorizontal), float64(-accelVertical)))
}

// Update returns the estimate following prev for one tick worth of samples.
// rate is in rad/s, the accelerations in g.
func (e Estimator) Update(prev Orientation, rate, accelHorizontal, accelVertical float32) Orientation {
	fromAccel := AccelAngle(accelHorizontal, accelVertical)
	fromGyro := prev.Angle + rate/e.TickFrequency

	return Orientation{
		Angle:     complementary(fromGyro, fromAccel, e.FilterWeight),
		AngleRate: complementary(rate, prev.AngleRate, e.LowPassWeight),
	}
}

func complementary(a, b, w float32) float32 {
	return w*a + (1-w)*b
}
