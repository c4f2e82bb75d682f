package integrators

import "github.com/san-kum/turbinectl/internal/dynamo"

type RK4 struct {
	k1, k2, k3, k4 dynamo.State
	scratch        dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make(dynamo.State, n)
		r.k2 = make(dynamo.State, n)
		r.k3 = make(dynamo.State, n)
		r.k4 = make(dynamo.State, n)
		r.scratch = make(dynamo.State, n)
	}
}

// Step advances x by dt with the control held constant.
func (r *RK4) Step(sys dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	n := len(x)
	r.ensureScratch(n)

	stage := func(dst dynamo.State, from dynamo.State, h, at float64) {
		for i := 0; i < n; i++ {
			r.scratch[i] = x[i] + h*from[i]
		}
		copy(dst, sys.Derive(r.scratch, u, at))
	}

	copy(r.k1, sys.Derive(x, u, t))
	stage(r.k2, r.k1, dt/2, t+dt/2)
	stage(r.k3, r.k2, dt/2, t+dt/2)
	stage(r.k4, r.k3, dt, t+dt)

	out := make(dynamo.State, n)
	dt6 := dt / 6
	for i := 0; i < n; i++ {
		out[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}
	return out
}
