// Package actuator models the blade pitch actuator as a second-order low-pass
// filter between the controller's pitch demand and the pitch the structure
// actually sees.
package actuator

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNaturalFrequency = errors.New("actuator: natural frequency must be positive")
	ErrDampingRatio     = errors.New("actuator: damping ratio must lie in (0, 1)")
	ErrTimeStep         = errors.New("actuator: time step must be positive")
)

// State is the filtered pitch: position, rate and acceleration.
type State struct {
	X     float64
	XDot  float64
	XDDot float64
}

// Filter is the exact fixed-step discretisation of
//
//	x'' + 2γω x' + ω² x = ω² u
//
// with u interpolated linearly between samples. The time step is fixed at
// construction; the filter always starts from rest.
type Filter struct {
	omega float64
	gamma float64
	dt    float64

	f, g float64

	uPrev float64
	prev  State
}

func New(omega, gamma, dt float64) (*Filter, error) {
	if !(omega > 0) || math.IsInf(omega, 0) {
		return nil, fmt.Errorf("%w: got %g", ErrNaturalFrequency, omega)
	}
	if !(gamma > 0 && gamma < 1) {
		return nil, fmt.Errorf("%w: got %g", ErrDampingRatio, gamma)
	}
	if !(dt > 0) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("%w: got %g", ErrTimeStep, dt)
	}

	beta := math.Sqrt(1 - gamma*gamma)
	decay := math.Exp(-gamma * omega * dt)
	sin, cos := math.Sincos(beta * omega * dt)

	return &Filter{
		omega: omega,
		gamma: gamma,
		dt:    dt,
		g:     decay * sin / (beta * omega),
		f:     decay * (gamma*sin/beta + cos),
	}, nil
}

// Output advances the filter by one time step towards command u and returns
// the new state.
func (a *Filter) Output(u float64) State {
	f, g := a.f, a.g
	w2 := a.omega * a.omega
	g2w := 2 * a.gamma * a.omega
	x, xdot := a.prev.X, a.prev.XDot
	offset := x - a.uPrev
	udot := (u - a.uPrev) / a.dt

	next := State{
		X:     f*x + g*xdot + (2*a.gamma*(f-1)/a.omega+a.dt-g)*udot + (1-f)*a.uPrev,
		XDot:  -g*w2*offset + (f-g2w*g)*xdot + (1-f)*udot,
		XDDot: (g2w*g-f)*w2*offset + ((4*a.gamma*a.gamma-1)*w2*g-g2w*f)*xdot + w2*g*udot,
	}

	a.prev = next
	a.uPrev = u
	return next
}

func (a *Filter) State() State { return a.prev }

func (a *Filter) Coefficients() (f, g float64) { return a.f, a.g }

func (a *Filter) TimeStep() float64 { return a.dt }

// Reset puts the filter back at rest with a zero previous command.
func (a *Filter) Reset() {
	a.prev = State{}
	a.uPrev = 0
}

// StepResponse runs a fresh copy of the filter for n steps against a constant
// command and returns the visited states. The receiver is not modified.
func (a *Filter) StepResponse(command float64, n int) []State {
	probe := *a
	probe.Reset()
	out := make([]State, n)
	for i := range out {
		out[i] = probe.Output(command)
	}
	return out
}
