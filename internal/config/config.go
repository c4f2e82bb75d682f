package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/san-kum/turbinectl/internal/debuglog"
	"github.com/san-kum/turbinectl/internal/discon"
	"github.com/san-kum/turbinectl/internal/loader"
	"github.com/san-kum/turbinectl/internal/plant"
	"github.com/san-kum/turbinectl/internal/session"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDt         = 0.01
	DefaultImplicitDt = 0.02
	DefaultIterations = 5
	DefaultTolerance  = 1e-8
	DefaultDuration   = 120.0
	DefaultController = loader.BuiltinPrefix + "baseline"
)

const (
	SolverExplicit = "explicit"
	SolverImplicit = "implicit"
)

// Config describes one turbine run.
type Config struct {
	Name       string           `yaml:"name" toml:"name"`
	Controller ControllerConfig `yaml:"controller" toml:"controller"`
	PitchMode  string           `yaml:"pitch_mode" toml:"pitch_mode"`
	Solver     SolverConfig     `yaml:"solver" toml:"solver"`
	StartTime  float64          `yaml:"start_time" toml:"start_time"`
	Duration   float64          `yaml:"duration" toml:"duration"`
	// WarmUp holds demands at zero for this long after StartTime.
	WarmUp       float64         `yaml:"warm_up" toml:"warm_up"`
	InitialPitch []float64       `yaml:"initial_pitch" toml:"initial_pitch"`
	Units        UnitsConfig     `yaml:"units" toml:"units"`
	Actuator     *ActuatorConfig `yaml:"actuator,omitempty" toml:"actuator,omitempty"`
	// Debug writes <name>_Debug.txt next to the config file unless
	// DebugFile names another path.
	Debug     bool             `yaml:"debug" toml:"debug"`
	DebugFile string           `yaml:"debug_file,omitempty" toml:"debug_file,omitempty"`
	Plant     plant.Params     `yaml:"plant" toml:"plant"`
	Wind      plant.WindParams `yaml:"wind" toml:"wind"`

	path string
}

type ControllerConfig struct {
	// Library is "builtin:<name>" or a shared library path, relative paths
	// resolving against the config file's directory.
	Library   string `yaml:"library" toml:"library"`
	Infile    string `yaml:"infile,omitempty" toml:"infile,omitempty"`
	Shareable bool   `yaml:"shareable" toml:"shareable"`
}

type SolverConfig struct {
	Kind       string  `yaml:"kind" toml:"kind"`
	Dt         float64 `yaml:"dt" toml:"dt"`
	ImplicitDt float64 `yaml:"implicit_dt" toml:"implicit_dt"`
	Variable   bool    `yaml:"variable_step" toml:"variable_step"`
	Iterations int     `yaml:"iterations" toml:"iterations"`
	Tolerance  float64 `yaml:"tolerance" toml:"tolerance"`
}

// UnitsConfig are host units per SI unit.
type UnitsConfig struct {
	Moment   float64 `yaml:"moment" toml:"moment"`
	Velocity float64 `yaml:"velocity" toml:"velocity"`
}

type ActuatorConfig struct {
	Omega float64 `yaml:"omega" toml:"omega"`
	Gamma float64 `yaml:"gamma" toml:"gamma"`
}

func DefaultConfig() *Config {
	return &Config{
		Name:       "turbine",
		Controller: ControllerConfig{Library: DefaultController, Shareable: true},
		PitchMode:  session.Common.String(),
		Solver: SolverConfig{
			Kind:       SolverExplicit,
			Dt:         DefaultDt,
			ImplicitDt: DefaultImplicitDt,
			Iterations: DefaultIterations,
			Tolerance:  DefaultTolerance,
		},
		Duration:     DefaultDuration,
		WarmUp:       session.DefaultWarmUp,
		InitialPitch: []float64{0, 0, 0},
		Units:        UnitsConfig{Moment: 1, Velocity: 1},
		Plant:        plant.DefaultParams(),
		Wind:         plant.DefaultWind(),
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Load reads a YAML or TOML (by extension) config over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if isTOML(path) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.path = path
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Path is the file the config was loaded from, if any.
func (c *Config) Path() string { return c.path }

func (c *Config) dir() string {
	if c.path == "" {
		return ""
	}
	return filepath.Dir(c.path)
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.dir() == "" {
		return p
	}
	return filepath.Join(c.dir(), p)
}

func (c *Config) invalid(field, reason string) error {
	return &discon.ConfigurationError{Turbine: c.Name, Field: field, Reason: reason}
}

// TimeStep is the host step: the explicit step for the explicit solver, the
// constant implicit step for the implicit one. A variable implicit step is
// rejected.
func (c *Config) TimeStep() (float64, error) {
	var dt float64
	switch strings.ToLower(c.Solver.Kind) {
	case "", SolverExplicit:
		dt = c.Solver.Dt
	case SolverImplicit:
		if c.Solver.Variable {
			return 0, c.invalid("solver", "variable implicit time step is not supported")
		}
		dt = c.Solver.ImplicitDt
	default:
		return 0, c.invalid("solver", fmt.Sprintf("unknown solver kind %q", c.Solver.Kind))
	}
	if !(dt > 0) {
		return 0, c.invalid("solver", fmt.Sprintf("time step must be positive, got %g", dt))
	}
	return dt, nil
}

func (c *Config) Implicit() bool {
	return strings.EqualFold(c.Solver.Kind, SolverImplicit)
}

func (c *Config) Mode() (session.Mode, error) {
	m, err := session.ParseMode(c.PitchMode)
	if err != nil {
		return m, c.invalid("pitch_mode", err.Error())
	}
	return m, nil
}

func (c *Config) Validate() error {
	if _, err := c.TimeStep(); err != nil {
		return err
	}
	if _, err := c.Mode(); err != nil {
		return err
	}
	if c.Controller.Library == "" {
		return c.invalid("controller.library", "no controller given")
	}
	if !(c.Duration > 0) {
		return c.invalid("duration", fmt.Sprintf("must be positive, got %g", c.Duration))
	}
	if c.WarmUp < 0 {
		return c.invalid("warm_up", "must not be negative")
	}
	if c.Implicit() && c.Solver.Iterations < 1 {
		return c.invalid("solver.iterations", "implicit solver needs at least one iteration")
	}
	if err := c.Plant.Validate(); err != nil {
		return &discon.ConfigurationError{Turbine: c.Name, Field: "plant", Reason: "invalid parameters", Err: err}
	}
	if c.Wind.Mean < 0 || c.Wind.Turbulence < 0 {
		return c.invalid("wind", "mean and turbulence must not be negative")
	}
	return nil
}

// ControllerRef is the controller reference with paths resolved.
func (c *Config) ControllerRef() loader.Reference {
	return loader.Reference{
		Name:      c.Controller.Library,
		Dir:       c.dir(),
		Shareable: c.Controller.Shareable,
	}
}

// InfilePath is the controller input file resolved against the config
// directory, or "" when there is none.
func (c *Config) InfilePath() string {
	return c.resolve(c.Controller.Infile)
}

// DebugPath is where the exchange record is captured, or "" when capture is
// off. Without DebugFile the capture is named after the turbine, next to the
// config file, so turbines cloned from one file write separate captures.
func (c *Config) DebugPath() string {
	switch {
	case c.DebugFile != "":
		return c.resolve(c.DebugFile)
	case !c.Debug:
		return ""
	case c.path == "":
		return debuglog.PathFor(c.Name + ".yaml")
	case c.Name == "" || c.Name == stem(c.path):
		return debuglog.PathFor(c.path)
	default:
		return debuglog.PathFor(filepath.Join(c.dir(), c.Name+filepath.Ext(c.path)))
	}
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (c *Config) SessionUnits() session.Units {
	return session.Units{Moment: c.Units.Moment, Velocity: c.Units.Velocity}
}

// Session builds the controller session configuration.
func (c *Config) Session() (session.Config, error) {
	if err := c.Validate(); err != nil {
		return session.Config{}, err
	}
	dt, _ := c.TimeStep()
	mode, _ := c.Mode()

	sc := session.Config{
		Turbine:      c.Name,
		Mode:         mode,
		TimeStep:     dt,
		StartTime:    c.StartTime,
		InitialPitch: append([]float64(nil), c.InitialPitch...),
		Units:        c.SessionUnits(),
		Controller:   c.ControllerRef(),
		Infile:       c.InfilePath(),
		DebugFile:    c.DebugPath(),
	}
	if c.Actuator != nil {
		sc.Actuator = &session.ActuatorParams{Omega: c.Actuator.Omega, Gamma: c.Actuator.Gamma}
	}
	return sc, nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	cp.InitialPitch = append([]float64(nil), c.InitialPitch...)
	if c.Actuator != nil {
		a := *c.Actuator
		cp.Actuator = &a
	}
	return &cp
}
