package dynamo

import (
	"fmt"
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

// IsValid reports whether every component is finite.
func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// AddScaled returns s + k*d. d must be at least as long as s.
func (s State) AddScaled(d State, k float64) State {
	out := make(State, len(s))
	for i := range s {
		out[i] = s[i] + k*d[i]
	}
	return out
}

func (s State) Sub(other State) State {
	out := make(State, len(s))
	for i := range s {
		out[i] = s[i] - other[i]
	}
	return out
}

// Control is the actuator input held constant over one step.
type Control []float64

type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(sys System, x State, u Control, t, dt float64) State
}

type Metric interface {
	Name() string
	Observe(x State, u Control, t float64)
	Value() float64
	Reset()
}

// Config is the time base of a run.
type Config struct {
	Dt            float64
	Duration      float64
	StartTime     float64
	ValidateState bool
}

func DefaultConfig() Config {
	return Config{
		Dt:            0.01,
		Duration:      60.0,
		ValidateState: true,
	}
}

// Steps is the number of whole steps that fit in the run.
func (c Config) Steps() int {
	return int(math.Round(c.Duration / c.Dt))
}

func (c Config) Validate() error {
	if !(c.Dt > 0) {
		return fmt.Errorf("%w: dt must be positive, got %g", ErrParameterBounds, c.Dt)
	}
	if !(c.Duration > 0) {
		return fmt.Errorf("%w: duration must be positive, got %g", ErrParameterBounds, c.Duration)
	}
	return nil
}

// Result holds one row of channel values per recorded time.
type Result struct {
	Channels        []string
	Times           []float64
	Rows            [][]float64
	Metrics         map[string]float64
	StepsTaken      int
	ControllerCalls int
}

func NewResult(channels []string, capacity int) *Result {
	return &Result{
		Channels: append([]string(nil), channels...),
		Times:    make([]float64, 0, capacity),
		Rows:     make([][]float64, 0, capacity),
		Metrics:  make(map[string]float64),
	}
}

// Record appends a copy of row at time t.
func (r *Result) Record(t float64, row []float64) {
	r.Times = append(r.Times, t)
	r.Rows = append(r.Rows, append([]float64(nil), row...))
}

// Column returns the time series of the named channel.
func (r *Result) Column(name string) ([]float64, bool) {
	idx := -1
	for i, c := range r.Channels {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	out := make([]float64, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row[idx]
	}
	return out, true
}
