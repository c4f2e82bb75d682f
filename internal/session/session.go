package session

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/turbinectl/internal/actuator"
	"github.com/san-kum/turbinectl/internal/debuglog"
	"github.com/san-kum/turbinectl/internal/discon"
	"github.com/san-kum/turbinectl/internal/loader"
	"github.com/san-kum/turbinectl/internal/swap"
	"go.uber.org/zap"
)

const bladeCount = 3

// Phase is where a session is in its lifecycle.
type Phase int

const (
	Uninitialized Phase = iota
	Running
	Faulted
	Finalized
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Running:
		return "running"
	case Faulted:
		return "faulted"
	case Finalized:
		return "finalized"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// ActuatorParams enables the pitch actuator filter.
type ActuatorParams struct {
	Omega float64
	Gamma float64
}

// Config describes one turbine's controller session.
type Config struct {
	Turbine string
	Mode    Mode

	// TimeStep is the host's fixed step. VariableStep marks a host using
	// variable implicit time stepping, which is rejected.
	TimeStep     float64
	VariableStep bool
	// StartTime is the host's simulation start time; the controller sees
	// time relative to it.
	StartTime float64

	// InitialPitch must be all zeros.
	InitialPitch []float64
	Units        Units
	Actuator     *ActuatorParams

	Controller loader.Reference
	Infile     string
	// DebugFile enables per-call capture of the exchange record.
	DebugFile string
}

// Outputs are the demands most recently handed to the host. Pitch has one
// entry in Common mode and three in Individual mode, or none before the
// first successful update.
type Outputs struct {
	Pitch  []float64
	Rate   float64
	Accel  float64
	Torque float64
}

type Session struct {
	cfg    Config
	lib    loader.Library
	bridge *discon.Bridge
	filter *actuator.Filter
	log    *zap.Logger

	phase      Phase
	lastUpdate float64
	out        Outputs
	updates    int
}

type Option func(*Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = l }
}

// Open validates cfg, loads its controller and builds the session. Nothing
// is left loaded if any step fails.
func Open(cfg Config, ld loader.Loader, opts ...Option) (*Session, error) {
	cfg = withDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}

	lib, err := ld.Load(cfg.Controller)
	if err != nil {
		var re *discon.ResourceError
		if errors.As(err, &re) && re.Turbine == "" {
			re.Turbine = cfg.Turbine
		}
		return nil, err
	}
	return New(cfg, lib, opts...)
}

// New builds a session around an already loaded controller and takes
// ownership of it: lib is closed if New fails.
func New(cfg Config, lib loader.Library, opts ...Option) (*Session, error) {
	cfg = withDefaults(cfg)
	if err := validate(cfg); err != nil {
		lib.Close()
		return nil, err
	}

	s := &Session{
		cfg:        cfg,
		lib:        lib,
		log:        zap.NewNop(),
		lastUpdate: math.Inf(-1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("turbine", cfg.Turbine))

	if cfg.Actuator != nil {
		f, err := actuator.New(cfg.Actuator.Omega, cfg.Actuator.Gamma, cfg.TimeStep)
		if err != nil {
			lib.Close()
			return nil, &discon.ConfigurationError{Turbine: cfg.Turbine, Field: "actuator", Reason: "invalid filter", Err: err}
		}
		s.filter = f
	}

	var sink discon.Sink
	if cfg.DebugFile != "" {
		sink = debuglog.New(cfg.DebugFile)
	}
	s.bridge = discon.NewBridge(cfg.Turbine, swap.New(cfg.Infile), lib, sink)

	s.log.Info("controller session opened",
		zap.String("controller", cfg.Controller.Name),
		zap.Stringer("mode", cfg.Mode),
		zap.Float64("dt", cfg.TimeStep),
		zap.Bool("actuator", s.filter != nil),
		zap.String("debug_file", cfg.DebugFile),
	)
	return s, nil
}

func withDefaults(cfg Config) Config {
	if cfg.Turbine == "" {
		cfg.Turbine = "turbine"
	}
	return cfg
}

func validate(cfg Config) error {
	fail := func(field, reason string) error {
		return &discon.ConfigurationError{Turbine: cfg.Turbine, Field: field, Reason: reason}
	}

	for i, p := range cfg.InitialPitch {
		if p != 0 {
			return fail("initial_pitch", fmt.Sprintf("blade %d initial pitch must be zero, got %g", i+1, p))
		}
	}
	if cfg.VariableStep {
		return fail("time_step", "variable implicit time step is not supported")
	}
	if !(cfg.TimeStep > 0) || math.IsInf(cfg.TimeStep, 0) {
		return fail("time_step", fmt.Sprintf("must be positive, got %g", cfg.TimeStep))
	}
	if !(cfg.Units.Moment > 0) || !(cfg.Units.Velocity > 0) {
		return fail("units", "conversion factors must be positive")
	}
	switch cfg.Mode {
	case Common:
	case Individual:
		if cfg.Actuator != nil {
			return fail("actuator", "the actuator filter supports common pitch only")
		}
	default:
		return fail("pitch_mode", cfg.Mode.String())
	}
	return nil
}

func (s *Session) Turbine() string { return s.cfg.Turbine }

func (s *Session) Mode() Mode { return s.cfg.Mode }

func (s *Session) Phase() Phase { return s.phase }

func (s *Session) StartTime() float64 { return s.cfg.StartTime }

// Record exposes the exchange record for inspection.
func (s *Session) Record() *swap.Record { return s.bridge.Record() }

// Calls is the number of controller invocations so far.
func (s *Session) Calls() int { return s.bridge.Calls() }

// Update sends one host step to the controller. It reports whether the step
// was accepted; repeated or stale steps are ignored without error.
func (s *Session) Update(step Step) (bool, error) {
	switch s.phase {
	case Finalized:
		return false, fmt.Errorf("%s: %w", s.cfg.Turbine, discon.ErrFinalized)
	case Faulted:
		return false, fmt.Errorf("%s: %w", s.cfg.Turbine, discon.ErrFaulted)
	}

	if !step.NewTimeStep || !(step.Time > s.lastUpdate) {
		return false, nil
	}
	if s.cfg.Mode == Individual && step.Blades == nil {
		return false, &discon.ConfigurationError{
			Turbine: s.cfg.Turbine,
			Field:   "blades",
			Reason:  "individual pitch mode needs per-blade measurements",
		}
	}
	s.lastUpdate = step.Time

	rec := s.bridge.Record()
	var captureErr error
	if s.phase == Uninitialized {
		s.out.Torque = 0
		rec.Set(swap.InfileLength, float64(rec.InfileLen()))
		rec.Set(swap.OutnameLength, swap.StringLength)
		rec.Set(swap.Status, swap.StatusFirstCall)
		s.phase = Running
		captureErr = s.bridge.StartCapture()
		s.log.Debug("first controller call", zap.Float64("time", step.Time))
	} else {
		rec.Set(swap.Status, swap.StatusRunning)
	}

	s.fill(rec, step)

	if err := s.bridge.Invoke(); err != nil {
		if errors.Is(err, discon.ErrInvocation) {
			s.phase = Faulted
			s.log.Error("controller failed", zap.Error(err))
			return true, err
		}
		captureErr = errors.Join(captureErr, err)
	}

	s.read(rec)
	s.updates++
	return true, captureErr
}

func (s *Session) fill(rec *swap.Record, step Step) {
	rec.Set(swap.MessageLength, swap.StringLength)
	rec.Set(swap.BladeCount, float64(step.BladeCount))

	switch s.cfg.Mode {
	case Common:
		for _, idx := range swap.BladePitch {
			rec.Set(idx, step.BladePitch)
		}
	case Individual:
		for i := 0; i < bladeCount; i++ {
			rec.Set(swap.BladePitch[i], step.Blades.BladePitch(i+1)*math.Pi/180)
			rec.Set(swap.RootMoment[i], math.Abs(step.Blades.RootMoment(i+1)*1000))
		}
		rec.Set(swap.PitchControlType, swap.PitchIndividual)
	}

	rec.Set(swap.WindSpeed, step.WindSpeed/s.cfg.Units.Velocity)
	rec.Set(swap.RotorAzimuth, step.RotorAzimuth)
	rec.Set(swap.Time, step.Time-s.cfg.StartTime)
	rec.Set(swap.CommunicationInterval, s.cfg.TimeStep)
	rec.Set(swap.GeneratorSpeed, step.GeneratorSpeed)
	rec.Set(swap.RotorSpeed, step.RotorSpeed)

	torque := s.controllerTorque(s.out.Torque)
	rec.Set(swap.MeasuredTorque, torque)
	// shaft power, not corrected for generator efficiency
	rec.Set(swap.MeasuredPower, torque*step.GeneratorSpeed)

	rec.Set(swap.NoddingAccel, -step.NacellePitchAccel)
	rec.Set(swap.TowerForeAftAccel, -step.TowerForeAftAccel)
}

func (s *Session) read(rec *swap.Record) {
	switch {
	case s.filter != nil:
		st := s.filter.Output(rec.Get(swap.PitchDemand))
		s.out.Pitch = []float64{st.X}
		s.out.Rate, s.out.Accel = st.XDot, st.XDDot
	case s.cfg.Mode == Individual:
		s.out.Pitch = []float64{
			rec.Get(swap.PitchDemand1),
			rec.Get(swap.PitchDemand2),
			rec.Get(swap.PitchDemand3),
		}
		s.out.Rate, s.out.Accel = 0, 0
	default:
		s.out.Pitch = []float64{rec.Get(swap.PitchDemand)}
		s.out.Rate, s.out.Accel = 0, 0
	}
	s.out.Torque = s.hostTorque(rec.Get(swap.TorqueDemand))
}

// controllerTorque converts a host torque (host moment units, host sign) to
// the controller's generator torque in N·m.
func (s *Session) controllerTorque(host float64) float64 {
	return -host * 1000 / s.cfg.Units.Moment
}

// hostTorque is the inverse of controllerTorque.
func (s *Session) hostTorque(ctrl float64) float64 {
	return -ctrl / 1000 * s.cfg.Units.Moment
}

// Pitch returns the current pitch demand in the shape of the session's
// mode. In Individual mode a missing demand reads as zero on every blade.
func (s *Session) Pitch() Pitch {
	if s.cfg.Mode == Individual {
		var p IndividualPitch
		if len(s.out.Pitch) < bladeCount {
			// Zeros also hide a controller that stopped writing slots 42-44
			// after a successful update, so that case is logged.
			if s.updates > 0 {
				s.log.Debug("individual pitch demand unavailable, using zeros", zap.Int("have", len(s.out.Pitch)))
			}
			return p
		}
		copy(p.Blades[:], s.out.Pitch)
		return p
	}

	p := CommonPitch{Rate: s.out.Rate, Accel: s.out.Accel}
	if len(s.out.Pitch) > 0 {
		p.Angle = s.out.Pitch[0]
	}
	return p
}

// Torque returns the current generator torque demand in host units.
func (s *Session) Torque() float64 { return s.out.Torque }

func (s *Session) Outputs() Outputs {
	o := s.out
	o.Pitch = append([]float64(nil), s.out.Pitch...)
	return o
}

// SetOutputs overwrites the demands returned to the host until the next
// accepted update.
func (s *Session) SetOutputs(o Outputs) {
	s.out = o
	s.out.Pitch = append([]float64(nil), o.Pitch...)
}

// Suppress zeroes every demand without calling the controller.
func (s *Session) Suppress() {
	s.out = Outputs{}
}

// Close sends the final call, if the controller was ever started and has
// not failed, and unloads it. It is safe to call more than once.
func (s *Session) Close() error {
	if s.phase == Finalized {
		return nil
	}

	var errs []error
	if s.phase == Running {
		s.bridge.Record().Set(swap.Status, swap.StatusFinal)
		if err := s.bridge.Invoke(); err != nil {
			errs = append(errs, err)
		}
	}
	s.phase = Finalized

	if err := s.lib.Close(); err != nil {
		errs = append(errs, &discon.ResourceError{Turbine: s.cfg.Turbine, Ref: s.cfg.Controller.Name, Err: err})
	}

	s.log.Info("controller session closed", zap.Int("calls", s.bridge.Calls()))
	return errors.Join(errs...)
}
