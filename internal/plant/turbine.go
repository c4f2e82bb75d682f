package plant

import (
	"fmt"
	"math"

	"github.com/san-kum/turbinectl/internal/dynamo"
	"github.com/san-kum/turbinectl/internal/session"
)

// State layout.
const (
	RotorSpeed = iota
	Azimuth
	TowerDisp
	TowerVel
	stateDim
)

// Control layout: blade pitch in radians, then generator torque in N·m.
const (
	Pitch1 = iota
	Pitch2
	Pitch3
	GenTorque
	controlDim
)

const blades = 3

// Turbine integrates the plant and serves the measurements a controller
// session needs. Host quantities follow the session's conventions: torque in
// kN·m with reaction sign, scaled by the configured unit factors.
type Turbine struct {
	p     Params
	wind  *Wind
	units session.Units

	x    dynamo.State
	u    dynamo.Control
	t    float64
	hold bool

	last loads
}

type loads struct {
	wind       float64
	relWind    float64
	lambda     float64
	cp         float64
	aeroTorque float64
	thrust     float64
	rotorAccel float64
	towerAccel float64
	rootMoment [blades]float64
}

func New(p Params, wind *Wind, units session.Units) (*Turbine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if !(units.Moment > 0) || !(units.Velocity > 0) {
		return nil, fmt.Errorf("%w: unit factors must be positive", dynamo.ErrParameterBounds)
	}
	tb := &Turbine{p: p, wind: wind, units: units}
	tb.Reset(0)
	return tb, nil
}

// Reset puts the rotor at its initial speed with blades at zero pitch, no
// generator torque and the tower at its static deflection for the wind at
// time start.
func (tb *Turbine) Reset(start float64) {
	tb.t = start
	tb.u = make(dynamo.Control, controlDim)
	tb.x = dynamo.State{tb.p.InitialSpeed, 0, 0, 0}
	l := tb.evaluate(tb.x, tb.u, start)
	tb.x[TowerDisp] = l.thrust / tb.p.towerStiffness()
	tb.last = tb.evaluate(tb.x, tb.u, start)
}

func (tb *Turbine) Params() Params { return tb.p }

// HoldSpeed locks the rotor at its current speed while on, as during
// simulation build-up before the controller takes over.
func (tb *Turbine) HoldSpeed(on bool) { tb.hold = on }

func (tb *Turbine) StateDim() int   { return stateDim }
func (tb *Turbine) ControlDim() int { return controlDim }

func (tb *Turbine) Time() float64           { return tb.t }
func (tb *Turbine) State() dynamo.State     { return tb.x.Clone() }
func (tb *Turbine) Control() dynamo.Control { return append(dynamo.Control(nil), tb.u...) }

// Set moves the plant to state x at time t.
func (tb *Turbine) Set(x dynamo.State, t float64) error {
	if len(x) != stateDim {
		return fmt.Errorf("%w: state has %d components, want %d", dynamo.ErrDimensionMismatch, len(x), stateDim)
	}
	if !x.IsValid() {
		return fmt.Errorf("%w at t=%.4f", dynamo.ErrInvalidState, t)
	}
	tb.x = x.Clone()
	tb.t = t
	tb.last = tb.evaluate(tb.x, tb.u, t)
	return nil
}

// Advance integrates one step with the current control.
func (tb *Turbine) Advance(integ dynamo.Integrator, dt float64) error {
	return tb.Set(integ.Step(tb, tb.x, tb.u, tb.t, dt), tb.t+dt)
}

func (tb *Turbine) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	l := tb.evaluate(x, u, t)
	return dynamo.State{l.rotorAccel, x[RotorSpeed], x[TowerVel], l.towerAccel}
}

func (tb *Turbine) evaluate(x dynamo.State, u dynamo.Control, t float64) loads {
	p := tb.p
	var l loads

	l.wind = tb.wind.Speed(t)
	l.relWind = math.Max(l.wind-x[TowerVel], 0)
	omega := math.Max(x[RotorSpeed], 0)
	pitch := meanPitch(u)

	if l.relWind > 0 {
		l.lambda = omega * p.RotorRadius / l.relWind
	}
	l.cp = PowerCoefficient(l.lambda, pitch*180/math.Pi)

	q := 0.5 * p.AirDensity * p.sweptArea() * l.relWind * l.relWind
	if omega > 1e-3 {
		l.aeroTorque = q * l.relWind * l.cp / omega
	}
	l.thrust = q * ThrustCoefficient(l.cp)

	if !tb.hold {
		l.rotorAccel = (l.aeroTorque - p.GearboxRatio*u[GenTorque]) / p.RotorInertia
	}
	l.towerAccel = (l.thrust - p.towerDampingCoeff()*x[TowerVel] - p.towerStiffness()*x[TowerDisp]) / p.TowerMass

	// thrust acts at two thirds span, blades see the sheared wind at their
	// own height
	arm := 2 * p.RotorRadius / 3
	for i := 0; i < blades; i++ {
		psi := x[Azimuth] + 2*math.Pi*float64(i)/blades
		s := tb.wind.ShearFactor(p.HubHeight+arm*math.Cos(psi), p.HubHeight)
		l.rootMoment[i] = l.thrust/blades*arm*s*s - p.FlapPitchGain*(u[i]-pitch)
	}
	return l
}

func meanPitch(u dynamo.Control) float64 {
	return (u[Pitch1] + u[Pitch2] + u[Pitch3]) / blades
}

// Apply sets the actuator demands: pitch in radians, torque in host units.
func (tb *Turbine) Apply(pitch session.Pitch, torque float64) {
	switch p := pitch.(type) {
	case session.CommonPitch:
		for i := 0; i < blades; i++ {
			tb.u[i] = p.Angle
		}
	case session.IndividualPitch:
		copy(tb.u[:blades], p.Blades[:])
	}
	tb.u[GenTorque] = -torque * 1000 / tb.units.Moment
	tb.last = tb.evaluate(tb.x, tb.u, tb.t)
}

// Observe reports the current measurements.
func (tb *Turbine) Observe(newTimeStep bool) session.Step {
	return tb.ObserveAt(tb.x, tb.t, newTimeStep)
}

// ObserveAt reports the measurements the plant would give in state x at
// time t, as an implicit solver sees a trial state.
func (tb *Turbine) ObserveAt(x dynamo.State, t float64, newTimeStep bool) session.Step {
	tb.last = tb.evaluate(x, tb.u, t)
	return session.Step{
		NewTimeStep:       newTimeStep,
		Time:              t,
		BladeCount:        blades,
		BladePitch:        meanPitch(tb.u),
		GeneratorSpeed:    x[RotorSpeed] * tb.p.GearboxRatio,
		RotorSpeed:        x[RotorSpeed],
		WindSpeed:         tb.last.wind * tb.units.Velocity,
		RotorAzimuth:      math.Mod(x[Azimuth], 2*math.Pi),
		NacellePitchAccel: 1.5 * tb.last.towerAccel / tb.p.HubHeight,
		TowerForeAftAccel: tb.last.towerAccel,
		Blades:            tb,
	}
}

// BladePitch returns the blade's pitch in degrees.
func (tb *Turbine) BladePitch(blade int) float64 {
	return tb.u[blade-1] * 180 / math.Pi
}

// RootMoment returns the blade's flapwise root moment in host moment units.
func (tb *Turbine) RootMoment(blade int) float64 {
	return tb.last.rootMoment[blade-1] / 1000 * tb.units.Moment
}

var channels = []string{
	"wind_speed",
	"rotor_speed",
	"generator_speed",
	"pitch_1",
	"pitch_2",
	"pitch_3",
	"generator_torque",
	"power",
	"tower_displacement",
	"tower_accel",
	"root_moment_1",
	"root_moment_2",
	"root_moment_3",
}

// Channels names the values returned by Sample.
func Channels() []string { return append([]string(nil), channels...) }

// Sample returns the current channel values: SI with kN·m, kW and degrees.
func (tb *Turbine) Sample() []float64 {
	l := tb.last
	genSpeed := tb.x[RotorSpeed] * tb.p.GearboxRatio
	return []float64{
		l.wind,
		tb.x[RotorSpeed],
		genSpeed,
		tb.u[Pitch1] * 180 / math.Pi,
		tb.u[Pitch2] * 180 / math.Pi,
		tb.u[Pitch3] * 180 / math.Pi,
		tb.u[GenTorque] / 1000,
		tb.u[GenTorque] * genSpeed / 1000,
		tb.x[TowerDisp],
		l.towerAccel,
		l.rootMoment[0] / 1000,
		l.rootMoment[1] / 1000,
		l.rootMoment[2] / 1000,
	}
}
