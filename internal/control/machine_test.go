package control_test

import (
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/crawlerctl/internal/actuation"
	"github.com/san-kum/crawlerctl/internal/control"
	"github.com/san-kum/crawlerctl/internal/hardware"
	"github.com/san-kum/crawlerctl/internal/safety"
	"github.com/san-kum/crawlerctl/internal/vehicle"
)

type fakeLink struct {
	client bool
	age    time.Duration
	in     vehicle.Input
	fresh  bool
}

func (l *fakeLink) HasClient() bool                    { return l.client }
func (l *fakeLink) TimeSinceLastPacket() time.Duration { return l.age }

func (l *fakeLink) TakeLatestInput() (vehicle.Input, bool) {
	isNew := l.fresh
	l.fresh = false
	return l.in, isNew
}

func (l *fakeLink) send(throttle, steering float64) {
	l.in = vehicle.Input{Throttle: throttle, Steering: steering}
	l.fresh = true
	l.age = 0
}

type staticTrims struct{ t vehicle.Trims }

func (s staticTrims) Trims() vehicle.Trims { return s.t }

var _ = Describe("Machine", func() {
	const tick = 10 * time.Millisecond

	var (
		link   *fakeLink
		rec    *hardware.Recorder
		trims  staticTrims
		m      *control.Machine
		now    time.Time
		states []string
	)

	build := func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		mapper := actuation.New(actuation.DefaultConfig(), trims, rec, logger)
		m = control.New(control.DefaultConfig(), link, safety.New(safety.DefaultConfig()), mapper, trims, logger)
		m.AddObserver(vehicle.ObserverFunc(func(s vehicle.Status) {
			states = append(states, s.State)
		}))
	}

	step := func(n int) {
		for i := 0; i < n; i++ {
			now = now.Add(tick)
			m.Tick(now)
		}
	}

	// stepUntil ticks until the machine reaches want or gives up after max ticks.
	stepUntil := func(want control.State, max int) {
		for i := 0; i < max && m.State() != want; i++ {
			step(1)
		}
		Expect(m.State()).To(Equal(want))
	}

	toActive := func() {
		link.client = true
		link.send(0, 0)
		stepUntil(control.ActiveControl, 400)
	}

	BeforeEach(func() {
		link = &fakeLink{}
		rec = hardware.NewRecorder()
		trims = staticTrims{}
		now = time.Unix(1700000000, 0)
		states = nil
		build()
		m.Tick(now)
	})

	Describe("startup", func() {
		It("moves from Boot to InitEsc on the first tick and forces neutral", func() {
			Expect(m.State()).To(Equal(control.InitEsc))
			Expect(rec.Outputs().Esc).To(Equal(actuation.DutyNeutral))
			Expect(rec.Outputs().Servo).To(Equal(actuation.DutyNeutral))
		})

		It("waits for ESC stabilisation even with a client connected", func() {
			link.client = true
			link.send(0, 0)
			step(198)
			Expect(m.State()).To(Equal(control.InitEsc))
			step(2)
			Expect(m.State()).To(Equal(control.IdleNoClient))
		})

		It("arms reverse when the first fresh sample is neutral", func() {
			toActive()
			Expect(m.ReverseArmed()).To(BeTrue())
		})

		It("stays connected while the client holds throttle", func() {
			link.client = true
			link.send(50, 0)
			stepUntil(control.ClientConnected, 400)
			step(20)
			Expect(m.State()).To(Equal(control.ClientConnected))
			Expect(rec.Outputs().Esc).To(Equal(actuation.DutyNeutral))
		})
	})

	Describe("tick pacing", func() {
		It("skips calls inside the interval", func() {
			before := m.Ticks()
			Expect(m.Tick(now.Add(5 * time.Millisecond))).To(BeFalse())
			Expect(m.Ticks()).To(Equal(before))
			Expect(m.Tick(now.Add(tick))).To(BeTrue())
			Expect(m.Ticks()).To(Equal(before + 1))
		})
	})

	Describe("reverse lockout", func() {
		BeforeEach(toActive)

		It("drives forward through the slew limiter", func() {
			link.send(100, 0)
			step(1)
			first := rec.Outputs().Esc
			Expect(first).To(BeNumerically(">", actuation.DutyNeutral))
			step(40)
			Expect(rec.Outputs().Esc).To(BeNumerically(">", first))
			Expect(m.ReverseArmed()).To(BeFalse())
		})

		It("brakes instead of reversing after forward", func() {
			link.send(50, 0)
			step(30)
			link.send(-50, 0)
			step(1)
			Expect(m.State()).To(Equal(control.Braking))
			Expect(rec.Outputs().Esc).To(BeNumerically(">=", actuation.DutyNeutral))
		})

		It("requires the neutral dwell before reverse is honoured", func() {
			link.send(50, 0)
			step(30)
			link.send(-50, 0)
			step(2)
			Expect(m.State()).To(Equal(control.Braking))

			link.send(0, 0)
			step(1)
			Expect(m.State()).To(Equal(control.WaitForNeutralDwell))
			Expect(rec.Outputs().Esc).To(Equal(actuation.DutyNeutral))

			link.send(-50, 0)
			step(10)
			Expect(m.State()).To(Equal(control.WaitForNeutralDwell))
			Expect(rec.Outputs().Esc).To(Equal(actuation.DutyNeutral))

			stepUntil(control.ActiveControl, 60)
			Expect(m.ReverseArmed()).To(BeTrue())
			step(1)
			Expect(rec.Outputs().Esc).To(BeNumerically("<", actuation.DutyNeutral))
		})

		It("returns to active control when forward is requested during the dwell", func() {
			link.send(50, 0)
			step(5)
			link.send(-50, 0)
			step(1)
			link.send(0, 0)
			step(1)
			Expect(m.State()).To(Equal(control.WaitForNeutralDwell))
			link.send(30, 0)
			step(1)
			Expect(m.State()).To(Equal(control.ActiveControl))
			Expect(m.ReverseArmed()).To(BeFalse())
		})

		It("passes through Braking and the dwell for every forward to reverse change", func() {
			link.send(60, 0)
			step(10)
			link.send(-60, 0)
			step(1)
			link.send(0, 0)
			stepUntil(control.ActiveControl, 80)
			Expect(states).To(ContainElements("braking", "wait_for_neutral_dwell"))
		})
	})

	Describe("watchdog", func() {
		BeforeEach(toActive)

		It("enters failsafe when samples go stale", func() {
			link.send(60, 20)
			step(10)
			link.age = 100 * time.Millisecond
			step(1)
			Expect(m.State()).To(Equal(control.Failsafe))
			Expect(rec.Outputs().Esc).To(Equal(actuation.DutyNeutral))
			Expect(rec.Outputs().Servo).To(Equal(actuation.DutyNeutral))
		})

		It("recovers straight to active control within the hard timeout", func() {
			link.age = time.Second
			step(1)
			Expect(m.State()).To(Equal(control.Failsafe))
			step(10)
			link.send(0, 0)
			step(1)
			Expect(m.State()).To(Equal(control.ActiveControl))
		})

		It("requires a neutral handshake after the hard timeout", func() {
			link.age = time.Second
			step(1)
			step(50)
			Expect(m.State()).To(Equal(control.Failsafe))
			link.send(40, 0)
			step(1)
			Expect(m.State()).To(Equal(control.ClientConnected))
			step(5)
			Expect(m.State()).To(Equal(control.ClientConnected))
			link.send(0, 0)
			step(1)
			Expect(m.State()).To(Equal(control.ActiveControl))
		})

		DescribeTable("fails safe from every driving state on the next tick",
			func(prepare func()) {
				prepare()
				link.age = 100 * time.Millisecond
				step(1)
				Expect(m.State()).To(Equal(control.Failsafe))
				Expect(m.ReverseArmed()).To(BeFalse())
				Expect(rec.Outputs().Esc).To(Equal(actuation.DutyNeutral))
				Expect(rec.Outputs().Servo).To(Equal(actuation.DutyNeutral))
			},
			Entry("from active control", func() {
				link.send(60, 20)
				step(10)
				Expect(rec.Outputs().Esc).To(BeNumerically(">", actuation.DutyNeutral))
			}),
			Entry("from braking", func() {
				link.send(50, 30)
				step(5)
				link.send(-50, 30)
				step(1)
				Expect(m.State()).To(Equal(control.Braking))
			}),
			Entry("from the neutral dwell", func() {
				link.send(50, 0)
				step(5)
				link.send(-50, 0)
				step(1)
				link.send(0, 0)
				step(1)
				Expect(m.State()).To(Equal(control.WaitForNeutralDwell))
			}),
		)

		It("holds failsafe with the ESC parked while samples stay stale past the hard timeout", func() {
			link.send(60, 20)
			step(10)
			link.age = time.Second
			step(1)
			Expect(m.State()).To(Equal(control.Failsafe))

			step(60)
			Expect(m.State()).To(Equal(control.Failsafe))
			Expect(rec.Outputs().Esc).To(Equal(actuation.DutyNeutral))
			Expect(rec.Outputs().Servo).To(Equal(actuation.DutyNeutral))
			Expect(states[len(states)-1]).To(Equal("failsafe"))
		})

		It("silences the horn", func() {
			link.in = vehicle.Input{Horn: true, Lights: true}
			link.fresh = true
			step(1)
			Expect(rec.Outputs().Horn).To(BeTrue())
			link.age = time.Second
			step(1)
			Expect(rec.Outputs().Horn).To(BeFalse())
			Expect(rec.Outputs().Lights).To(BeTrue())
		})
	})

	Describe("client loss", func() {
		BeforeEach(toActive)

		DescribeTable("wins over every other condition",
			func(prepare func()) {
				prepare()
				link.client = false
				link.age = time.Second
				step(1)
				Expect(m.State()).To(Equal(control.IdleNoClient))
				Expect(rec.Outputs().Esc).To(Equal(actuation.DutyNeutral))
			},
			Entry("from active control", func() {}),
			Entry("from braking", func() {
				link.send(50, 0)
				step(5)
				link.send(-50, 0)
				step(1)
				Expect(m.State()).To(Equal(control.Braking))
			}),
			Entry("from the neutral dwell", func() {
				link.send(50, 0)
				step(5)
				link.send(-50, 0)
				step(1)
				link.send(0, 0)
				step(1)
				Expect(m.State()).To(Equal(control.WaitForNeutralDwell))
			}),
			Entry("from failsafe", func() {
				link.age = time.Second
				step(1)
				Expect(m.State()).To(Equal(control.Failsafe))
			}),
		)
	})

	Describe("outputs", func() {
		It("adds steering trim before mapping", func() {
			trims = staticTrims{t: vehicle.Trims{Steering: 10}}
			build()
			m.Tick(now)
			toActive()
			step(1)
			Expect(rec.Outputs().Servo).To(BeNumerically(">", actuation.DutyNeutral))
		})

		It("does not rewrite identical duties", func() {
			toActive()
			step(5)
			esc, servo, _, _ := rec.Writes()
			step(50)
			esc2, servo2, _, _ := rec.Writes()
			Expect(esc2).To(Equal(esc))
			Expect(servo2).To(Equal(servo))
		})

		It("mirrors lights and horn from the raw sample", func() {
			toActive()
			link.in = vehicle.Input{Lights: true}
			link.fresh = true
			step(1)
			Expect(rec.Outputs().Lights).To(BeTrue())
			Expect(rec.Outputs().Horn).To(BeFalse())
		})

		It("reports status to observers", func() {
			var last vehicle.Status
			m.AddObserver(vehicle.ObserverFunc(func(s vehicle.Status) { last = s }))
			toActive()
			link.send(0, 0)
			step(1)
			Expect(last.State).To(Equal("active_control"))
			Expect(last.ReverseArmed).To(BeTrue())
			Expect(last.NewSample).To(BeTrue())
			Expect(last.EscDuty).To(Equal(actuation.DutyNeutral))
		})
	})
})

var _ = Describe("State", func() {
	It("round-trips through its name", func() {
		for _, s := range control.States() {
			got, err := control.ParseState(s.String())
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(s))
		}
	})

	It("rejects unknown names", func() {
		_, err := control.ParseState("cruise")
		Expect(err).To(MatchError(vehicle.ErrUnknownState))
	})
})
