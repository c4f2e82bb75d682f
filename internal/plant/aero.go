package plant

import "math"

// PowerCoefficient is the analytic Cp(λ, β) surface commonly used for
// variable-speed turbines; β is in degrees and clamped at zero.
func PowerCoefficient(lambda, pitchDeg float64) float64 {
	if lambda <= 0 {
		return 0
	}
	pitchDeg = math.Max(pitchDeg, 0)
	inv := 1/(lambda+0.08*pitchDeg) - 0.035/(pitchDeg*pitchDeg*pitchDeg+1)
	cp := 0.5176*(116*inv-0.4*pitchDeg-5)*math.Exp(-21*inv) + 0.0068*lambda
	return math.Max(cp, 0)
}

const betzLimit = 16.0 / 27.0

// ThrustCoefficient derives Ct from Cp through momentum theory: the axial
// induction a in [0, 1/3] with 4a(1-a)² = Cp gives Ct = 4a(1-a).
func ThrustCoefficient(cp float64) float64 {
	if cp <= 0 {
		return 0
	}
	if cp >= betzLimit {
		return 8.0 / 9.0
	}
	lo, hi := 0.0, 1.0/3.0
	for i := 0; i < 50; i++ {
		mid := (lo + hi) / 2
		if 4*mid*(1-mid)*(1-mid) < cp {
			lo = mid
		} else {
			hi = mid
		}
	}
	a := (lo + hi) / 2
	return 4 * a * (1 - a)
}
