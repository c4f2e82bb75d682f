package config

import (
	"sort"

	"github.com/san-kum/turbinectl/internal/plant"
)

func preset(name string, edit func(c *Config)) *Config {
	c := DefaultConfig()
	c.Name = name
	edit(c)
	return c
}

var Presets = map[string]*Config{
	"rated": preset("rated", func(c *Config) {}),
	"below_rated": preset("below_rated", func(c *Config) {
		c.Wind = plant.WindParams{Mean: 8, Turbulence: 0.12, Shear: 0.2, Seed: 2}
	}),
	"above_rated": preset("above_rated", func(c *Config) {
		c.Wind = plant.WindParams{Mean: 18, Turbulence: 0.1, Shear: 0.2, Seed: 3}
		c.Duration = 180
	}),
	"gust": preset("gust", func(c *Config) {
		c.Wind = plant.WindParams{
			Mean: 14, Shear: 0.2, Seed: 4,
			GustTime: 40, GustAmplitude: 6, GustDuration: 10.5,
		}
		c.Duration = 80
	}),
	"ipc": preset("ipc", func(c *Config) {
		c.PitchMode = "individual"
		c.Wind = plant.WindParams{Mean: 16, Turbulence: 0.05, Shear: 0.3, Seed: 5}
	}),
	"actuator": preset("actuator", func(c *Config) {
		c.Actuator = &ActuatorConfig{Omega: 10, Gamma: 0.7}
		c.Wind = plant.WindParams{Mean: 15, Turbulence: 0.1, Shear: 0.2, Seed: 6}
	}),
	"implicit": preset("implicit", func(c *Config) {
		c.Solver.Kind = SolverImplicit
	}),
	"open_loop": preset("open_loop", func(c *Config) {
		c.Controller.Library = "builtin:none"
		c.Duration = 30
	}),
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	return p.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
