package analysis

import (
	"math"

	"github.com/mjibson/go-dsp/spectral"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/stat"
)

const minSegment = 64

// Spectrum is a one-sided power spectral density: Power[i] is the density at
// Freqs[i] in units² per Hz.
type Spectrum struct {
	Freqs []float64
	Power []float64
}

// PSD estimates the spectrum of x sampled every dt seconds, mean removed,
// averaging Hann-windowed segments of length segment with half overlap. A
// segment of 0 picks the largest power of two no longer than a quarter of x.
func PSD(x []float64, dt float64, segment int) Spectrum {
	if len(x) == 0 || !(dt > 0) {
		return Spectrum{}
	}
	if segment <= 0 {
		segment = defaultSegment(len(x))
	}

	mean := stat.Mean(x, nil)
	detrended := make([]float64, len(x))
	for i, v := range x {
		detrended[i] = v - mean
	}

	power, freqs := spectral.Pwelch(detrended, 1/dt, &spectral.PwelchOptions{
		NFFT:     segment,
		Noverlap: segment / 2,
		Window:   window.Hann,
	})
	return Spectrum{Freqs: freqs, Power: power}
}

func defaultSegment(n int) int {
	seg := minSegment
	for seg*2 <= n/4 {
		seg *= 2
	}
	return seg
}

// Resolution is the spacing between frequency bins.
func (s Spectrum) Resolution() float64 {
	if len(s.Freqs) < 2 {
		return 0
	}
	return s.Freqs[1] - s.Freqs[0]
}

// Peak returns the frequency and density of the strongest bin in [lo, hi].
func (s Spectrum) Peak(lo, hi float64) (freq, power float64) {
	power = math.Inf(-1)
	for i, f := range s.Freqs {
		if f < lo || f > hi {
			continue
		}
		if s.Power[i] > power {
			freq, power = f, s.Power[i]
		}
	}
	if math.IsInf(power, -1) {
		return 0, 0
	}
	return freq, power
}

// BandPower integrates the density over [lo, hi]; over the whole spectrum it
// approximates the variance of the signal.
func (s Spectrum) BandPower(lo, hi float64) float64 {
	df := s.Resolution()
	var sum float64
	for i, f := range s.Freqs {
		if f >= lo && f <= hi {
			sum += s.Power[i]
		}
	}
	return sum * df
}
