package vehicle_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/segway/internal/fault"
	"github.com/san-kum/segway/internal/vehicle"
)

var _ = Describe("Vehicle", func() {
	var r *rig

	BeforeEach(func() {
		r = newRig()
	})

	Describe("start up", func() {
		It("is in standby with both motors stopped", func() {
			Expect(r.v.State()).To(Equal(vehicle.Standby))
			Expect(r.left.writes).To(Equal([]float32{0}))
			Expect(r.right.writes).To(Equal([]float32{0}))
		})

		It("rejects missing collaborators", func() {
			_, err := vehicle.New(vehicle.DefaultConfig(), vehicle.Collaborators{FootSwitch: r.foot})
			Expect(err).To(MatchError(fault.ErrConfiguration))
		})

		It("rejects an invalid configuration", func() {
			cfg := vehicle.DefaultConfig()
			cfg.CutoffTicks = 0
			_, err := vehicle.New(cfg, vehicle.Collaborators{})
			Expect(err).To(MatchError(fault.ErrConfiguration))
		})
	})

	Describe("foot switch", func() {
		It("stays in standby without a rider and leaves the sensor alone", func() {
			r.ticks(10)
			Expect(r.v.State()).To(Equal(vehicle.Standby))
			Expect(r.sensor.reads).To(BeZero())
			Expect(r.left.writes).To(HaveLen(1))
		})

		It("enters active on the first asserted tick without driving", func() {
			r.activate()
			Expect(r.sensor.reads).To(BeZero())
			Expect(r.left.writes).To(HaveLen(1))
		})

		It("drives and publishes telemetry while active", func() {
			r.activate()
			r.sensor.tilt(0.1)
			r.ticks(5)

			Expect(r.sensor.reads).To(Equal(5))
			Expect(r.left.duty).To(BeNumerically(">", 0))
			Expect(r.left.duty).To(BeNumerically("~", r.right.duty, 1e-5))
			for _, name := range []string{
				vehicle.SampleAngle, vehicle.SampleSteering, vehicle.SampleLeftDuty,
				vehicle.SampleRightDuty, vehicle.SampleBattery,
			} {
				Expect(r.tel.samples[name]).To(HaveLen(5), name)
			}
			Expect(r.tel.samples[vehicle.SampleBattery][4]).To(BeNumerically("~", goodBattery, 1e-6))
		})

		It("returns to standby with zero duty on the release tick", func() {
			r.activate()
			r.sensor.tilt(0.1)
			r.ticks(20)
			Expect(r.left.duty).NotTo(BeZero())

			r.foot.pressed = false
			r.ticks(1)

			Expect(r.v.State()).To(Equal(vehicle.Standby))
			Expect(r.left.duty).To(BeZero())
			Expect(r.right.duty).To(BeZero())
			Expect(r.v.Controller().Snapshot().DriveSpeed).To(BeZero())
		})

		It("freezes the angle while in standby", func() {
			r.activate()
			r.sensor.tilt(0.2)
			r.ticks(30)
			r.foot.pressed = false
			r.ticks(1)
			frozen := r.v.Controller().Orientation()

			r.sensor.tilt(-0.3)
			r.ticks(30)
			Expect(r.v.Controller().Orientation()).To(Equal(frozen))
		})

		It("keeps every duty within the ceiling", func() {
			r.activate()
			for _, angle := range []float64{0.5, -0.5, 1.2, -1.2} {
				r.sensor.tilt(angle)
				r.sensor.rate = float32(angle * 200)
				r.steer.volts = 3.3
				r.ticks(50)
				for _, m := range []*fakeMotor{r.left, r.right} {
					for _, d := range m.writes {
						Expect(d).To(BeNumerically("<=", 0.95))
						Expect(d).To(BeNumerically(">=", -0.95))
					}
				}
			}
		})

		It("splits the duties evenly around the steering command", func() {
			r.activate()
			r.steer.volts = 2.2
			r.ticks(1)
			s := r.v.Controller().Snapshot()
			mean := (s.RawLeft + s.RawRight) / 2
			Expect(r.left.duty - mean).To(BeNumerically("~", mean-r.right.duty, 1e-6))
			Expect(r.left.duty).To(BeNumerically(">", r.right.duty))
		})
	})

	Describe("battery watchdog", func() {
		BeforeEach(func() {
			r.activate()
			r.sensor.tilt(0.1)
			r.battery.volts = lowBattery
		})

		It("forces standby on the 50th consecutive low tick", func() {
			r.ticks(49)
			Expect(r.v.State()).To(Equal(vehicle.Active))
			Expect(r.v.Watchdog().Count()).To(Equal(uint32(49)))
			Expect(r.left.duty).NotTo(BeZero())

			r.ticks(1)
			Expect(r.v.State()).To(Equal(vehicle.Standby))
			Expect(r.left.duty).To(BeZero())
			Expect(r.right.duty).To(BeZero())
		})

		It("keeps counting and holds standby while the rider stays on", func() {
			r.ticks(60)
			Expect(r.v.State()).To(Equal(vehicle.Standby))
			Expect(r.v.Watchdog().Count()).To(Equal(uint32(60)))
			Expect(r.left.duty).To(BeZero())
		})

		It("resets the count on a single good reading", func() {
			r.ticks(49)
			r.battery.volts = goodBattery
			r.ticks(1)
			Expect(r.v.Watchdog().Count()).To(BeZero())
			Expect(r.v.State()).To(Equal(vehicle.Active))

			r.battery.volts = lowBattery
			r.ticks(49)
			Expect(r.v.State()).To(Equal(vehicle.Active))
		})

		It("drives again on the tick the battery recovers", func() {
			r.ticks(50)
			Expect(r.v.State()).To(Equal(vehicle.Standby))

			r.battery.volts = goodBattery
			r.ticks(1)
			Expect(r.v.State()).To(Equal(vehicle.Active))
			Expect(r.v.Watchdog().Count()).To(BeZero())
		})

		It("reads the battery once per tick and publishes the value it acted on", func() {
			reads := r.battery.reads
			r.ticks(3)
			Expect(r.battery.reads - reads).To(Equal(3))
			Expect(r.tel.samples[vehicle.SampleBattery]).To(HaveEach(BeNumerically("~", lowBattery, 1e-6)))
		})

		It("never drives when the cutoff coincides with mounting", func() {
			r.foot.pressed = false
			r.ticks(1)
			Expect(r.v.State()).To(Equal(vehicle.Standby))
			r.ticks(48)
			Expect(r.v.Watchdog().Count()).To(Equal(uint32(49)))
			writes := len(r.left.writes)

			r.foot.pressed = true
			r.ticks(1)
			Expect(r.v.State()).To(Equal(vehicle.Standby))
			Expect(r.v.Watchdog().Count()).To(Equal(uint32(50)))
			Expect(r.v.Watchdog().Tripped()).To(BeTrue())

			r.ticks(5)
			Expect(r.v.State()).To(Equal(vehicle.Standby))
			Expect(nonZero(r.left.writes[writes:])).To(BeFalse())
			Expect(nonZero(r.right.writes[writes:])).To(BeFalse())
		})
	})

	Describe("faults", func() {
		It("stops the motors and halts on a sensor failure", func() {
			r.activate()
			r.sensor.tilt(0.1)
			r.ticks(10)

			busErr := fault.New("mpu6050", fault.ErrCommunication, nil)
			r.sensor.err = busErr
			err := r.v.Tick()

			Expect(err).To(MatchError(fault.ErrCommunication))
			Expect(errors.Is(err, busErr)).To(BeTrue())
			Expect(r.hook.Count()).To(Equal(1))
			Expect(r.left.duty).To(BeZero())
			Expect(r.right.duty).To(BeZero())
			Expect(r.v.Halted()).To(BeTrue())

			reads := r.sensor.reads
			Expect(r.v.Tick()).To(MatchError(vehicle.ErrHalted))
			Expect(r.sensor.reads).To(Equal(reads))
			Expect(r.hook.Count()).To(Equal(1))
		})

		It("reports motor range errors", func() {
			r.activate()
			r.left.err = fault.New("motor", fault.ErrRange, nil)
			r.sensor.tilt(0.1)

			Expect(r.v.Tick()).To(MatchError(fault.ErrRange))
			Expect(r.hook.Count()).To(Equal(1))
			Expect(r.right.duty).To(BeZero())
		})

		It("reports battery read failures in standby", func() {
			r.battery.err = errors.New("adc gone")
			Expect(r.v.Tick()).To(HaveOccurred())
			Expect(r.hook.Err()).To(MatchError(ContainSubstring("read battery")))
		})
	})
})
