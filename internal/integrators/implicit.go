package integrators

import "github.com/san-kum/turbinectl/internal/dynamo"

// IterationHook is called before every fixed-point iteration with the
// iteration number and the current guess for the end-of-step state. It
// returns the control to use for that iteration.
type IterationHook func(iter int, guess dynamo.State) dynamo.Control

// BackwardEuler solves x₁ = x₀ + dt·f(x₁, u, t+dt) by fixed-point iteration,
// the way implicit structural codes re-evaluate loads several times within
// one time step.
type BackwardEuler struct {
	MaxIterations int
	Tolerance     float64

	iterations int
}

func NewBackwardEuler(maxIter int, tol float64) *BackwardEuler {
	if maxIter < 1 {
		maxIter = 1
	}
	return &BackwardEuler{MaxIterations: maxIter, Tolerance: tol}
}

func (b *BackwardEuler) Step(sys dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	return b.StepIter(sys, x, t, dt, func(int, dynamo.State) dynamo.Control { return u })
}

// StepIter is Step with the control supplied per iteration by hook.
func (b *BackwardEuler) StepIter(sys dynamo.System, x dynamo.State, t, dt float64, hook IterationHook) dynamo.State {
	guess := x.Clone()
	b.iterations = 0
	for iter := 0; iter < b.MaxIterations; iter++ {
		u := hook(iter, guess)
		next := x.AddScaled(sys.Derive(guess, u, t+dt), dt)
		b.iterations++

		converged := next.Sub(guess).Norm() <= b.Tolerance
		guess = next
		if converged {
			break
		}
	}
	return guess
}

// Iterations reports how many iterations the last step took.
func (b *BackwardEuler) Iterations() int { return b.iterations }
