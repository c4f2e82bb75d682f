package controllers

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Params configures the baseline controller. Values are SI on the generator
// side: rad/s, N·m, W, rad.
type Params struct {
	RatedGeneratorSpeed float64 `yaml:"rated_generator_speed"`
	RatedPower          float64 `yaml:"rated_power"`
	TorqueGain          float64 `yaml:"torque_gain"`
	MaxTorque           float64 `yaml:"max_torque"`
	MaxTorqueRate       float64 `yaml:"max_torque_rate"`
	SpeedFilterCorner   float64 `yaml:"speed_filter_corner"`

	PitchKp       float64 `yaml:"pitch_kp"`
	PitchKi       float64 `yaml:"pitch_ki"`
	PitchKnee     float64 `yaml:"pitch_gain_knee"`
	MinPitch      float64 `yaml:"min_pitch"`
	MaxPitch      float64 `yaml:"max_pitch"`
	MaxPitchRate  float64 `yaml:"max_pitch_rate"`
	AboveRatedPad float64 `yaml:"above_rated_pitch"`

	IPCGain      float64 `yaml:"ipc_gain"`
	MaxIPCOffset float64 `yaml:"max_ipc_offset"`
}

// DefaultParams are tuned for a 5 MW, 126 m rotor with a 97:1 gearbox.
func DefaultParams() Params {
	return Params{
		RatedGeneratorSpeed: 122.9096,
		RatedPower:          5.296610e6,
		TorqueGain:          2.332287,
		MaxTorque:           47402.91,
		MaxTorqueRate:       15000,
		SpeedFilterCorner:   1.570796,
		PitchKp:             0.01882681,
		PitchKi:             0.008068634,
		PitchKnee:           0.1099965,
		MinPitch:            0,
		MaxPitch:            1.570796,
		MaxPitchRate:        0.1396263,
		AboveRatedPad:       0.01745329,
		IPCGain:             2e-9,
		MaxIPCOffset:        0.0349066,
	}
}

// LoadParams reads a YAML parameter file over the defaults. An empty path
// returns the defaults.
func LoadParams(path string) (Params, error) {
	p := DefaultParams()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse %s: %w", path, err)
	}
	return p, p.Validate()
}

func (p Params) Validate() error {
	switch {
	case p.RatedGeneratorSpeed <= 0:
		return fmt.Errorf("rated_generator_speed must be positive")
	case p.RatedPower <= 0:
		return fmt.Errorf("rated_power must be positive")
	case p.MaxTorque <= 0:
		return fmt.Errorf("max_torque must be positive")
	case p.MaxPitch <= p.MinPitch:
		return fmt.Errorf("max_pitch must exceed min_pitch")
	case p.MaxPitchRate <= 0:
		return fmt.Errorf("max_pitch_rate must be positive")
	case p.PitchKi <= 0:
		return fmt.Errorf("pitch_ki must be positive")
	case p.PitchKnee <= 0:
		return fmt.Errorf("pitch_gain_knee must be positive")
	}
	return nil
}
