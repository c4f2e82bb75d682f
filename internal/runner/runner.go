// Package runner drives a plant and its controller session through a run:
// observe, gate on warm-up, update the controller, apply its demands,
// integrate one step.
package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/san-kum/turbinectl/internal/config"
	"github.com/san-kum/turbinectl/internal/discon"
	"github.com/san-kum/turbinectl/internal/dynamo"
	"github.com/san-kum/turbinectl/internal/integrators"
	"github.com/san-kum/turbinectl/internal/loader"
	"github.com/san-kum/turbinectl/internal/metrics"
	"github.com/san-kum/turbinectl/internal/plant"
	"github.com/san-kum/turbinectl/internal/session"
	"github.com/san-kum/turbinectl/internal/storage"
	"go.uber.org/zap"
)

// Observer sees every recorded row.
type Observer interface {
	OnStep(t float64, row []float64)
}

type ObserverFunc func(t float64, row []float64)

func (f ObserverFunc) OnStep(t float64, row []float64) { f(t, row) }

type Runner struct {
	cfg     *config.Config
	turbine *plant.Turbine
	session *session.Session
	gate    session.WarmUp

	explicit dynamo.Integrator
	implicit *integrators.BackwardEuler

	dt      float64
	steps   int
	step    int
	metrics []dynamo.Metric
	result  *dynamo.Result

	loader    loader.Loader
	registry  *session.Registry
	id        session.ID
	observers []Observer
	log       *zap.Logger
	engaged   bool
	closed    bool
}

type Option func(*Runner)

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.log = l }
}

func WithLoader(ld loader.Loader) Option {
	return func(r *Runner) { r.loader = ld }
}

// WithRegistry obtains the session through reg under id and releases it
// there on Close.
func WithRegistry(reg *session.Registry, id session.ID) Option {
	return func(r *Runner) { r.registry, r.id = reg, id }
}

func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

// New builds the plant and opens the controller session for cfg.
func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	r := &Runner{
		cfg:    cfg,
		gate:   session.WarmUp{Threshold: cfg.WarmUp},
		loader: loader.Default(),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(zap.String("turbine", cfg.Name))

	sc, err := cfg.Session()
	if err != nil {
		return nil, err
	}
	r.dt = sc.TimeStep
	r.steps = dynamo.Config{Dt: r.dt, Duration: cfg.Duration}.Steps()

	turbine, err := plant.New(cfg.Plant, plant.NewWind(cfg.Wind), cfg.SessionUnits())
	if err != nil {
		return nil, &discon.ConfigurationError{Turbine: cfg.Name, Field: "plant", Reason: "invalid parameters", Err: err}
	}
	turbine.Reset(cfg.StartTime)
	r.turbine = turbine

	if cfg.Implicit() {
		r.implicit = integrators.NewBackwardEuler(cfg.Solver.Iterations, cfg.Solver.Tolerance)
	} else {
		r.explicit = integrators.NewRK4()
	}

	open := func() (*session.Session, error) {
		return session.Open(sc, r.loader, session.WithLogger(r.log))
	}
	if r.registry != nil {
		r.session, err = r.registry.Acquire(r.id, open)
	} else {
		r.session, err = open()
	}
	if err != nil {
		return nil, err
	}

	r.metrics = metrics.ForTurbine(cfg.Plant.RatedSpeed)
	r.result = dynamo.NewResult(plant.Channels(), r.steps+1)
	r.record()
	return r, nil
}

func (r *Runner) Session() *session.Session { return r.session }

func (r *Runner) Turbine() *plant.Turbine { return r.turbine }

func (r *Runner) Result() *dynamo.Result { return r.result }

func (r *Runner) TimeStep() float64 { return r.dt }

// Done reports whether every step of the run has been taken.
func (r *Runner) Done() bool { return r.step >= r.steps }

// Progress is the fraction of steps taken.
func (r *Runner) Progress() float64 {
	if r.steps == 0 {
		return 1
	}
	return float64(r.step) / float64(r.steps)
}

// Step advances the run by one host time step.
func (r *Runner) Step() error {
	if r.closed {
		return fmt.Errorf("%s: %w", r.cfg.Name, discon.ErrFinalized)
	}
	if r.Done() {
		return nil
	}

	var err error
	if r.implicit != nil {
		err = r.stepImplicit()
	} else {
		err = r.stepExplicit()
	}
	if err != nil {
		return &dynamo.SimulationError{Step: r.step, Time: r.turbine.Time(), Wrapped: err}
	}

	r.step++
	r.result.StepsTaken = r.step
	r.record()
	return nil
}

func (r *Runner) stepExplicit() error {
	if err := r.control(r.turbine.Observe(true)); err != nil {
		return err
	}
	return r.turbine.Advance(r.explicit, r.dt)
}

// stepImplicit lets the controller see every solver iteration; only the
// first of each step is a new time step, so the session ignores the rest.
func (r *Runner) stepImplicit() error {
	t := r.turbine.Time()
	var ctrlErr error
	x := r.implicit.StepIter(r.turbine, r.turbine.State(), t, r.dt, func(iter int, guess dynamo.State) dynamo.Control {
		if ctrlErr == nil {
			ctrlErr = r.control(r.turbine.ObserveAt(guess, t+r.dt, iter == 0))
		}
		return r.turbine.Control()
	})
	if ctrlErr != nil {
		return ctrlErr
	}
	return r.turbine.Set(x, t+r.dt)
}

// control runs one step through the warm-up gate and applies the demands.
// The rotor is held at speed while warming up. Only controller failures stop
// the run; debug capture problems are logged.
func (r *Runner) control(step session.Step) error {
	warming := r.gate.Active(r.session, step.Time)
	r.turbine.HoldSpeed(warming)
	if !r.engaged && !warming {
		r.engaged = true
		r.log.Debug("warm-up over, controller engaged", zap.Float64("time", step.Time))
	}
	if err := r.gate.Apply(r.session, step); err != nil {
		if errors.Is(err, discon.ErrInvocation) || errors.Is(err, discon.ErrFaulted) ||
			errors.Is(err, discon.ErrConfiguration) || errors.Is(err, discon.ErrFinalized) {
			return err
		}
		r.log.Warn("controller step", zap.Float64("time", step.Time), zap.Error(err))
	}
	r.turbine.Apply(r.session.Pitch(), r.session.Torque())
	return nil
}

func (r *Runner) record() {
	x, u, t := r.turbine.State(), r.turbine.Control(), r.turbine.Time()
	if r.step > 0 {
		for _, m := range r.metrics {
			m.Observe(x, u, t)
		}
	}
	row := r.turbine.Sample()
	r.result.Record(t, row)
	for _, o := range r.observers {
		o.OnStep(t, row)
	}
}

// Run takes every remaining step, then closes the session.
func (r *Runner) Run(ctx context.Context) (*dynamo.Result, error) {
	r.log.Info("run started",
		zap.Int("steps", r.steps),
		zap.Float64("dt", r.dt),
		zap.Bool("implicit", r.implicit != nil),
	)

	var runErr error
	for !r.Done() {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := r.Step(); err != nil {
			runErr = err
			break
		}
	}

	closeErr := r.Close()
	if runErr != nil {
		r.log.Error("run failed", zap.Error(runErr))
		return r.result, errors.Join(runErr, closeErr)
	}

	r.log.Info("run finished",
		zap.Int("controller_calls", r.result.ControllerCalls),
		zap.Any("metrics", r.result.Metrics),
	)
	return r.result, closeErr
}

// Close finalizes and unloads the controller and fills in the result's
// metrics. It is safe to call more than once.
func (r *Runner) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.registry != nil {
		err = r.registry.Release(r.id)
	} else {
		err = r.session.Close()
	}

	r.result.ControllerCalls = r.session.Calls()
	for _, m := range r.metrics {
		r.result.Metrics[m.Name()] = m.Value()
	}
	return err
}

// Metadata describes the run for storage.
func Metadata(cfg *config.Config) storage.RunMetadata {
	dt, _ := cfg.TimeStep()
	solver := config.SolverExplicit
	if cfg.Implicit() {
		solver = config.SolverImplicit
	}
	return storage.RunMetadata{
		Turbine:    cfg.Name,
		Controller: cfg.Controller.Library,
		PitchMode:  cfg.PitchMode,
		Solver:     solver,
		Dt:         dt,
		Duration:   cfg.Duration,
		StartTime:  cfg.StartTime,
		WindMean:   cfg.Wind.Mean,
		Seed:       cfg.Wind.Seed,
	}
}
