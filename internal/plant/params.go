// Package plant is a reduced-order wind turbine for driving controller
// sessions without an external structural code: a rigid drivetrain, a
// single fore-aft tower mode and a Cp(λ, β) rotor, fed by a synthetic wind
// field.
package plant

import (
	"fmt"
	"math"

	"github.com/san-kum/turbinectl/internal/dynamo"
)

// Params describe the turbine. Defaults resemble a 5 MW, 126 m machine.
type Params struct {
	RotorRadius   float64 `yaml:"rotor_radius" toml:"rotor_radius"`
	HubHeight     float64 `yaml:"hub_height" toml:"hub_height"`
	AirDensity    float64 `yaml:"air_density" toml:"air_density"`
	RotorInertia  float64 `yaml:"rotor_inertia" toml:"rotor_inertia"`
	GearboxRatio  float64 `yaml:"gearbox_ratio" toml:"gearbox_ratio"`
	RatedSpeed    float64 `yaml:"rated_rotor_speed" toml:"rated_rotor_speed"`
	InitialSpeed  float64 `yaml:"initial_rotor_speed" toml:"initial_rotor_speed"`
	TowerMass     float64 `yaml:"tower_modal_mass" toml:"tower_modal_mass"`
	TowerFreq     float64 `yaml:"tower_frequency" toml:"tower_frequency"`
	TowerDamping  float64 `yaml:"tower_damping_ratio" toml:"tower_damping_ratio"`
	FlapPitchGain float64 `yaml:"flap_pitch_sensitivity" toml:"flap_pitch_sensitivity"`
}

func DefaultParams() Params {
	return Params{
		RotorRadius:   63,
		HubHeight:     90,
		AirDensity:    1.225,
		RotorInertia:  4.3784e7,
		GearboxRatio:  97,
		RatedSpeed:    1.2671,
		InitialSpeed:  1.2671,
		TowerMass:     4.4e5,
		TowerFreq:     0.32,
		TowerDamping:  0.01,
		FlapPitchGain: 2.5e6,
	}
}

func (p Params) Validate() error {
	check := func(name string, v float64) error {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be positive, got %g", dynamo.ErrParameterBounds, name, v)
		}
		return nil
	}
	for _, c := range []struct {
		name string
		v    float64
	}{
		{"rotor_radius", p.RotorRadius},
		{"hub_height", p.HubHeight},
		{"air_density", p.AirDensity},
		{"rotor_inertia", p.RotorInertia},
		{"gearbox_ratio", p.GearboxRatio},
		{"rated_rotor_speed", p.RatedSpeed},
		{"tower_modal_mass", p.TowerMass},
		{"tower_frequency", p.TowerFreq},
	} {
		if err := check(c.name, c.v); err != nil {
			return err
		}
	}
	if p.HubHeight <= p.RotorRadius {
		return fmt.Errorf("%w: hub_height must exceed rotor_radius", dynamo.ErrParameterBounds)
	}
	if p.TowerDamping < 0 || p.InitialSpeed < 0 || p.FlapPitchGain < 0 {
		return fmt.Errorf("%w: damping, initial speed and flap sensitivity must not be negative", dynamo.ErrParameterBounds)
	}
	return nil
}

func (p Params) sweptArea() float64 { return math.Pi * p.RotorRadius * p.RotorRadius }

func (p Params) towerStiffness() float64 {
	w := 2 * math.Pi * p.TowerFreq
	return p.TowerMass * w * w
}

func (p Params) towerDampingCoeff() float64 {
	return 2 * p.TowerDamping * math.Sqrt(p.towerStiffness()*p.TowerMass)
}
