package integrators

import "github.com/san-kum/turbinectl/internal/dynamo"

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(sys dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	return x.AddScaled(sys.Derive(x, u, t), dt)
}
