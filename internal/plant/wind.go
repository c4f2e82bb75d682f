package plant

import (
	"math"
	"math/rand"
)

// WindParams describe the hub-height wind.
type WindParams struct {
	Mean       float64 `yaml:"mean" toml:"mean"`
	Turbulence float64 `yaml:"turbulence_intensity" toml:"turbulence_intensity"`
	Shear      float64 `yaml:"shear_exponent" toml:"shear_exponent"`
	Seed       int64   `yaml:"seed" toml:"seed"`

	GustTime      float64 `yaml:"gust_time" toml:"gust_time"`
	GustAmplitude float64 `yaml:"gust_amplitude" toml:"gust_amplitude"`
	GustDuration  float64 `yaml:"gust_duration" toml:"gust_duration"`
}

func DefaultWind() WindParams {
	return WindParams{Mean: 11.4, Turbulence: 0.1, Shear: 0.2, Seed: 1}
}

const windComponents = 12

// Wind is a deterministic hub-height wind: a sum of sinusoids with a
// Kaimal-like spectral slope and seeded phases, plus an optional
// one-minus-cosine gust.
type Wind struct {
	p     WindParams
	freq  [windComponents]float64
	amp   [windComponents]float64
	phase [windComponents]float64
}

func NewWind(p WindParams) *Wind {
	w := &Wind{p: p}
	rng := rand.New(rand.NewSource(p.Seed))

	var power float64
	for k := range w.freq {
		// 0.01 Hz to 0.5 Hz, logarithmically spaced
		f := 0.01 * math.Pow(50, float64(k)/float64(windComponents-1))
		w.freq[k] = 2 * math.Pi * f
		w.amp[k] = math.Pow(f, -5.0/6.0)
		w.phase[k] = rng.Float64() * 2 * math.Pi
		power += w.amp[k] * w.amp[k] / 2
	}
	scale := p.Turbulence * p.Mean / math.Sqrt(power)
	for k := range w.amp {
		w.amp[k] *= scale
	}
	return w
}

func (w *Wind) Params() WindParams { return w.p }

// Speed is the hub-height wind speed at time t.
func (w *Wind) Speed(t float64) float64 {
	v := w.p.Mean
	for k := range w.freq {
		v += w.amp[k] * math.Sin(w.freq[k]*t+w.phase[k])
	}
	if d := w.p.GustDuration; d > 0 && t >= w.p.GustTime && t <= w.p.GustTime+d {
		v += w.p.GustAmplitude * (1 - math.Cos(2*math.Pi*(t-w.p.GustTime)/d)) / 2
	}
	return math.Max(v, 0)
}

// ShearFactor scales the hub wind to height z with the power law.
func (w *Wind) ShearFactor(z, hub float64) float64 {
	if z <= 0 {
		return 0
	}
	return math.Pow(z/hub, w.p.Shear)
}
