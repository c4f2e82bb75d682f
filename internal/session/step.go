package session

// Step is the host state for one call.
type Step struct {
	// NewTimeStep is false for repeated calls within one time step, such as
	// implicit solver iterations.
	NewTimeStep bool
	Time        float64

	BladeCount int
	// BladePitch is the measured collective pitch in radians.
	BladePitch     float64
	GeneratorSpeed float64
	RotorSpeed     float64
	// WindSpeed is the horizontal hub wind speed in host units.
	WindSpeed    float64
	RotorAzimuth float64
	// NacellePitchAccel is the angular acceleration about the nodding axis,
	// TowerForeAftAccel the linear fore-aft acceleration, both in the host's
	// sign convention.
	NacellePitchAccel float64
	TowerForeAftAccel float64

	// Blades is required in Individual mode.
	Blades BladeProbe
}

// BladeProbe reads per-blade measurements for blades 1 to 3.
type BladeProbe interface {
	// BladePitch returns the blade's pitch angle in degrees.
	BladePitch(blade int) float64
	// RootMoment returns the flapwise root bending moment in kN·m.
	RootMoment(blade int) float64
}

// Units converts between host units and the SI units the controller expects.
// Each factor is the number of host units per SI unit: kN·m for Moment, m/s
// for Velocity. Both are 1 for a host working in SI with kN·m moments.
type Units struct {
	Moment   float64
	Velocity float64
}

var SIUnits = Units{Moment: 1, Velocity: 1}
