package session_test

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/turbinectl/internal/actuator"
	"github.com/san-kum/turbinectl/internal/discon"
	"github.com/san-kum/turbinectl/internal/loader"
	"github.com/san-kum/turbinectl/internal/session"
	"github.com/san-kum/turbinectl/internal/swap"
)

func baseConfig() session.Config {
	return session.Config{
		Turbine:      "WT1",
		Mode:         session.Common,
		TimeStep:     0.1,
		StartTime:    -8,
		InitialPitch: []float64{0},
		Units:        session.SIUnits,
		Controller:   loader.Reference{Name: "builtin:test"},
	}
}

func stepAt(t float64) session.Step {
	return session.Step{
		NewTimeStep:       true,
		Time:              t,
		BladeCount:        3,
		BladePitch:        0.02,
		GeneratorSpeed:    120,
		RotorSpeed:        1.24,
		WindSpeed:         11.4,
		RotorAzimuth:      2.1,
		NacellePitchAccel: 0.03,
		TowerForeAftAccel: -0.4,
	}
}

var _ = Describe("Session", func() {
	var (
		ctrl *recordingController
		ld   *stubLoader
		cfg  session.Config
	)

	BeforeEach(func() {
		ctrl = &recordingController{}
		ld = &stubLoader{lib: ctrl}
		cfg = baseConfig()
	})

	open := func() *session.Session {
		s, err := session.Open(cfg, ld)
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	Describe("status sequencing", func() {
		It("sends 0, then 1 on every later step, then -1 once on close", func() {
			s := open()
			Expect(s.Phase()).To(Equal(session.Uninitialized))

			for _, t := range []float64{0.1, 0.2, 0.3, 0.4} {
				accepted, err := s.Update(stepAt(t))
				Expect(err).NotTo(HaveOccurred())
				Expect(accepted).To(BeTrue())
			}
			Expect(s.Phase()).To(Equal(session.Running))

			Expect(s.Close()).To(Succeed())
			Expect(s.Close()).To(Succeed())

			Expect(ctrl.statuses).To(Equal([]int{0, 1, 1, 1, -1}))
			Expect(ctrl.closed).To(Equal(1))
			Expect(s.Phase()).To(Equal(session.Finalized))
		})

		It("does not finalize a controller that was never called", func() {
			s := open()
			Expect(s.Close()).To(Succeed())
			Expect(ctrl.statuses).To(BeEmpty())
			Expect(ctrl.closed).To(Equal(1))
		})

		It("rejects updates after close", func() {
			s := open()
			Expect(s.Close()).To(Succeed())
			_, err := s.Update(stepAt(1))
			Expect(errors.Is(err, discon.ErrFinalized)).To(BeTrue())
		})
	})

	Describe("step guard", func() {
		It("calls the controller once per time instant", func() {
			ctrl.respond = func(rec *swap.Record) {
				rec.Set(swap.PitchDemand, 0.05*float64(len(ctrl.calls)))
				rec.Set(swap.TorqueDemand, 40000)
			}
			s := open()

			accepted, err := s.Update(stepAt(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(accepted).To(BeTrue())
			first := s.Outputs()

			accepted, err = s.Update(stepAt(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(accepted).To(BeFalse())

			Expect(s.Calls()).To(Equal(1))
			Expect(s.Outputs()).To(Equal(first))
		})

		It("ignores iterations within a step and steps back in time", func() {
			s := open()
			_, err := s.Update(stepAt(1))
			Expect(err).NotTo(HaveOccurred())

			iter := stepAt(1.1)
			iter.NewTimeStep = false
			Expect(s.Update(iter)).To(BeFalse())
			Expect(s.Update(stepAt(0.9))).To(BeFalse())
			Expect(s.Calls()).To(Equal(1))
		})
	})

	Describe("exchange record inputs", func() {
		It("fills every input slot in common mode", func() {
			cfg.Units = session.Units{Moment: 2, Velocity: 0.5}
			s := open()

			_, err := s.Update(stepAt(2))
			Expect(err).NotTo(HaveOccurred())

			expect := map[swap.Index]float64{
				swap.Status:                0,
				swap.Time:                  10,
				swap.CommunicationInterval: 0.1,
				swap.BladePitch1:           0.02,
				swap.BladePitch2:           0.02,
				swap.BladePitch3:           0.02,
				swap.GeneratorSpeed:        120,
				swap.RotorSpeed:            1.24,
				swap.WindSpeed:             22.8,
				swap.PitchControlType:      0,
				swap.MessageLength:         swap.StringLength,
				swap.InfileLength:          swap.StringLength,
				swap.OutnameLength:         swap.StringLength,
				swap.RotorAzimuth:          2.1,
				swap.BladeCount:            3,
				swap.NoddingAccel:          -0.03,
				swap.TowerForeAftAccel:     0.4,
				swap.MeasuredTorque:        0,
				swap.MeasuredPower:         0,
			}
			for idx, want := range expect {
				Expect(ctrl.last(idx)).To(BeNumerically("~", want, 1e-5), idx.String())
			}
		})

		It("reports the input file path length", func() {
			cfg.Infile = "/models/DISCON.IN"
			s := open()
			_, err := s.Update(stepAt(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(ctrl.last(swap.InfileLength)).To(Equal(float64(len("/models/DISCON.IN"))))
			Expect(s.Record().InfilePath()).To(Equal("/models/DISCON.IN"))
		})

		It("sends per-blade pitch in radians and root moments in N·m in individual mode", func() {
			cfg.Mode = session.Individual
			s := open()

			step := stepAt(1)
			step.Blades = bladeTable{
				pitch:  [3]float64{1, 2, 3},
				moment: [3]float64{5000, -6000, 7000},
			}
			_, err := s.Update(step)
			Expect(err).NotTo(HaveOccurred())

			Expect(ctrl.last(swap.BladePitch1)).To(BeNumerically("~", math.Pi/180, 1e-7))
			Expect(ctrl.last(swap.BladePitch2)).To(BeNumerically("~", 2*math.Pi/180, 1e-7))
			Expect(ctrl.last(swap.BladePitch3)).To(BeNumerically("~", 3*math.Pi/180, 1e-7))
			Expect(ctrl.last(swap.RootMoment1)).To(Equal(5e6))
			Expect(ctrl.last(swap.RootMoment2)).To(Equal(6e6))
			Expect(ctrl.last(swap.RootMoment3)).To(Equal(7e6))
			Expect(ctrl.last(swap.PitchControlType)).To(Equal(1.0))
		})

		It("requires blade measurements in individual mode", func() {
			cfg.Mode = session.Individual
			s := open()
			_, err := s.Update(stepAt(1))
			Expect(errors.Is(err, discon.ErrConfiguration)).To(BeTrue())
			Expect(s.Calls()).To(BeZero())
		})
	})

	Describe("torque conversion", func() {
		It("round-trips a host torque through the controller's units", func() {
			cfg.Units = session.Units{Moment: 2.5, Velocity: 1}
			ctrl.respond = func(rec *swap.Record) {
				rec.Set(swap.TorqueDemand, rec.Get(swap.MeasuredTorque))
			}
			s := open()
			_, err := s.Update(stepAt(1))
			Expect(err).NotTo(HaveOccurred())

			const hostTorque = -17.3
			s.SetOutputs(session.Outputs{Torque: hostTorque})

			step := stepAt(2)
			_, err = s.Update(step)
			Expect(err).NotTo(HaveOccurred())

			sent := ctrl.last(swap.MeasuredTorque)
			Expect(sent).To(BeNumerically("~", 17.3*1000/2.5, 1e-2))
			Expect(ctrl.last(swap.MeasuredPower)).To(BeNumerically("~", sent*step.GeneratorSpeed, 1))
			Expect(s.Torque()).To(BeNumerically("~", hostTorque, 1e-5))
		})

		It("starts from zero torque on the first call", func() {
			s := open()
			s.SetOutputs(session.Outputs{Torque: 99})
			_, err := s.Update(stepAt(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(ctrl.last(swap.MeasuredTorque)).To(BeZero())
		})
	})

	Describe("pitch outputs", func() {
		It("is a scalar in common mode", func() {
			ctrl.respond = func(rec *swap.Record) {
				rec.Set(swap.PitchDemand, 0.125)
				rec.Set(swap.PitchDemand1, 0.5)
			}
			s := open()
			Expect(s.Pitch()).To(Equal(session.CommonPitch{}))

			_, err := s.Update(stepAt(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Pitch()).To(Equal(session.CommonPitch{Angle: 0.125}))
		})

		It("is a triple in individual mode, zero before the first update", func() {
			cfg.Mode = session.Individual
			ctrl.respond = func(rec *swap.Record) {
				rec.Set(swap.PitchDemand1, 0.25)
				rec.Set(swap.PitchDemand2, 0.5)
				rec.Set(swap.PitchDemand3, 0.75)
			}
			s := open()
			Expect(s.Pitch()).To(Equal(session.IndividualPitch{}))

			step := stepAt(1)
			step.Blades = bladeTable{}
			_, err := s.Update(step)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Pitch()).To(Equal(session.IndividualPitch{Blades: [3]float64{0.25, 0.5, 0.75}}))

			s.Suppress()
			Expect(s.Pitch()).To(Equal(session.IndividualPitch{}))
		})

		It("passes the collective demand through the actuator filter", func() {
			cfg.Actuator = &session.ActuatorParams{Omega: 6, Gamma: 0.7}
			ctrl.respond = func(rec *swap.Record) { rec.Set(swap.PitchDemand, 0.25) }
			s := open()

			ref, err := actuator.New(6, 0.7, cfg.TimeStep)
			Expect(err).NotTo(HaveOccurred())

			for i := 1; i <= 5; i++ {
				_, err := s.Update(stepAt(float64(i) * cfg.TimeStep))
				Expect(err).NotTo(HaveOccurred())
				want := ref.Output(0.25)
				Expect(s.Pitch()).To(Equal(session.CommonPitch{Angle: want.X, Rate: want.XDot, Accel: want.XDDot}))
			}
			Expect(s.Pitch().(session.CommonPitch).Rate).NotTo(BeZero())
		})
	})

	Describe("controller failure", func() {
		It("faults the session and skips finalization", func() {
			ctrl.respond = func(rec *swap.Record) {
				if len(ctrl.calls) == 2 {
					rec.Fail = -1
					rec.SetMessage("overspeed trip")
				}
			}
			s := open()
			_, err := s.Update(stepAt(1))
			Expect(err).NotTo(HaveOccurred())

			_, err = s.Update(stepAt(2))
			Expect(errors.Is(err, discon.ErrInvocation)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("WT1"))
			Expect(err.Error()).To(ContainSubstring("overspeed trip"))
			Expect(s.Phase()).To(Equal(session.Faulted))

			_, err = s.Update(stepAt(3))
			Expect(errors.Is(err, discon.ErrFaulted)).To(BeTrue())

			Expect(s.Close()).To(Succeed())
			Expect(ctrl.statuses).To(Equal([]int{0, 1}))
			Expect(ctrl.closed).To(Equal(1))
		})
	})

	Describe("construction", func() {
		DescribeTable("rejects invalid configuration before loading",
			func(mutate func(*session.Config)) {
				mutate(&cfg)
				_, err := session.Open(cfg, ld)
				Expect(errors.Is(err, discon.ErrConfiguration)).To(BeTrue(), "%v", err)
				Expect(ld.loads).To(BeZero())
			},
			Entry("nonzero initial pitch", func(c *session.Config) { c.InitialPitch = []float64{0, 0.1, 0} }),
			Entry("variable time step", func(c *session.Config) { c.VariableStep = true }),
			Entry("zero time step", func(c *session.Config) { c.TimeStep = 0 }),
			Entry("zero unit factor", func(c *session.Config) { c.Units.Moment = 0 }),
			Entry("filter with individual pitch", func(c *session.Config) {
				c.Mode = session.Individual
				c.Actuator = &session.ActuatorParams{Omega: 1, Gamma: 0.5}
			}),
		)

		It("unloads the controller when the actuator is invalid", func() {
			cfg.Actuator = &session.ActuatorParams{Omega: 1, Gamma: 1.2}
			_, err := session.Open(cfg, ld)
			Expect(errors.Is(err, discon.ErrConfiguration)).To(BeTrue())
			Expect(errors.Is(err, actuator.ErrDampingRatio)).To(BeTrue())
			Expect(ctrl.closed).To(Equal(1))
		})

		It("names the turbine in load failures", func() {
			ld.err = &discon.ResourceError{Ref: "DISCON.so", Err: os.ErrNotExist}
			_, err := session.Open(cfg, ld)
			Expect(errors.Is(err, discon.ErrResource)).To(BeTrue())
			Expect(err.Error()).To(HavePrefix("WT1: "))
		})
	})

	Describe("debug capture", func() {
		It("writes a header and one line per call, finalization included", func() {
			dir, err := os.MkdirTemp("", "session-debug")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(os.RemoveAll, dir)

			cfg.DebugFile = filepath.Join(dir, "WT1_Debug.txt")
			s := open()
			for _, t := range []float64{1, 2, 3} {
				_, err := s.Update(stepAt(t))
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(s.Close()).To(Succeed())

			data, err := os.ReadFile(cfg.DebugFile)
			Expect(err).NotTo(HaveOccurred())
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			Expect(lines).To(HaveLen(5))
			Expect(lines[0]).To(HavePrefix("slot[1]        \tslot[2]"))
			Expect(strings.Split(lines[4], "\t")).To(HaveLen(swap.Size))
			Expect(lines[4]).To(HavePrefix("-1.00000000e+00\t"))
		})
	})
})

var _ = Describe("WarmUp", func() {
	It("holds demands at zero without calling the controller", func() {
		ctrl := &recordingController{respond: func(rec *swap.Record) {
			rec.Set(swap.PitchDemand, 0.1)
			rec.Set(swap.TorqueDemand, 30000)
		}}
		cfg := baseConfig()
		cfg.StartTime = 0
		s, err := session.Open(cfg, &stubLoader{lib: ctrl})
		Expect(err).NotTo(HaveOccurred())

		gate := session.WarmUp{Threshold: session.DefaultWarmUp}
		Expect(gate.Apply(s, stepAt(5))).To(Succeed())
		Expect(ctrl.calls).To(BeEmpty())
		Expect(s.Pitch()).To(Equal(session.CommonPitch{}))

		Expect(gate.Apply(s, stepAt(10.5))).To(Succeed())
		Expect(ctrl.statuses).To(Equal([]int{0}))
		Expect(s.Torque()).To(BeNumerically("~", -30, 1e-9))

		Expect(gate.Active(s, 10)).To(BeTrue())
		Expect(gate.Active(s, 10.01)).To(BeFalse())
	})
})

var _ = Describe("Registry", func() {
	var reg *session.Registry

	BeforeEach(func() {
		reg = session.NewRegistry()
	})

	It("opens one session per turbine", func() {
		ctrl := &recordingController{}
		opens := 0
		open := func() (*session.Session, error) {
			opens++
			return session.Open(baseConfig(), &stubLoader{lib: ctrl})
		}

		id := session.NewID()
		a, err := reg.Acquire(id, open)
		Expect(err).NotTo(HaveOccurred())
		b, err := reg.Acquire(id, open)
		Expect(err).NotTo(HaveOccurred())

		Expect(a).To(BeIdenticalTo(b))
		Expect(opens).To(Equal(1))
		Expect(reg.Len()).To(Equal(1))

		_, err = a.Update(stepAt(1))
		Expect(err).NotTo(HaveOccurred())

		Expect(reg.Release(id)).To(Succeed())
		Expect(reg.Len()).To(BeZero())
		Expect(ctrl.statuses).To(Equal([]int{0, -1}))
		Expect(reg.Release(id)).To(Succeed())
	})

	It("keeps nothing when opening fails", func() {
		_, err := reg.Acquire("WT9", func() (*session.Session, error) {
			return nil, errors.New("boom")
		})
		Expect(err).To(MatchError("boom"))
		_, ok := reg.Lookup("WT9")
		Expect(ok).To(BeFalse())
	})

	It("closes every session", func() {
		ctrls := []*recordingController{{}, {}, {}}
		for i, c := range ctrls {
			c := c
			_, err := reg.Acquire(session.ID(fmt.Sprintf("WT%d", i+1)), func() (*session.Session, error) {
				return session.Open(baseConfig(), &stubLoader{lib: c})
			})
			Expect(err).NotTo(HaveOccurred())
		}

		Expect(reg.Close()).To(Succeed())
		Expect(reg.Len()).To(BeZero())
		for _, c := range ctrls {
			Expect(c.closed).To(Equal(1))
		}
	})

	It("opens other turbines while one is still loading", func() {
		loading := make(chan struct{})
		unblock := make(chan struct{})
		slow := func() (*session.Session, error) {
			close(loading)
			<-unblock
			return session.Open(baseConfig(), &stubLoader{lib: &recordingController{}})
		}

		first := make(chan *session.Session, 1)
		go func() {
			defer GinkgoRecover()
			s, err := reg.Acquire("WT1", slow)
			Expect(err).NotTo(HaveOccurred())
			first <- s
		}()
		Eventually(loading).Should(BeClosed())

		other, err := reg.Acquire("WT2", func() (*session.Session, error) {
			return session.Open(baseConfig(), &stubLoader{lib: &recordingController{}})
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(other).NotTo(BeNil())
		_, ok := reg.Lookup("WT1")
		Expect(ok).To(BeFalse())

		waiter := make(chan *session.Session, 1)
		go func() {
			defer GinkgoRecover()
			s, err := reg.Acquire("WT1", func() (*session.Session, error) {
				return nil, errors.New("opened twice")
			})
			Expect(err).NotTo(HaveOccurred())
			waiter <- s
		}()

		close(unblock)
		var s *session.Session
		Eventually(first).Should(Receive(&s))
		Eventually(waiter).Should(Receive(BeIdenticalTo(s)))
		Expect(reg.Len()).To(Equal(2))
		Expect(reg.Close()).To(Succeed())
	})
})
