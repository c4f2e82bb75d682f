package plant

import (
	"errors"

	"github.com/san-kum/turbinectl/internal/dynamo"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Linearization is the state matrix of the plant about an operating point.
type Linearization struct {
	A           *mat.Dense
	Eigenvalues []complex128
}

// Linearize differentiates the plant dynamics with respect to the state at
// (x, u, t) by central differences.
func (tb *Turbine) Linearize(x dynamo.State, u dynamo.Control, t float64) (*Linearization, error) {
	if err := dynamo.CheckDims(tb, x, u); err != nil {
		return nil, err
	}

	a := mat.NewDense(stateDim, stateDim, nil)
	fd.Jacobian(a, func(y, xs []float64) {
		copy(y, tb.Derive(xs, u, t))
	}, x, &fd.JacobianSettings{Formula: fd.Central})

	var eig mat.Eigen
	if !eig.Factorize(a, mat.EigenNone) {
		return nil, errors.New("plant: eigen decomposition did not converge")
	}
	return &Linearization{A: a, Eigenvalues: eig.Values(nil)}, nil
}

// Trim returns the current control with generator torque set to balance the
// aerodynamic torque at the current state, so that the rotor neither speeds
// up nor slows down.
func (tb *Turbine) Trim() dynamo.Control {
	u := tb.Control()
	u[GenTorque] = 0
	free := tb.evaluate(tb.x, u, tb.t)
	u[GenTorque] = free.aeroTorque / tb.p.GearboxRatio
	return u
}
