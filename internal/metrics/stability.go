package metrics

import (
	"math"

	"github.com/san-kum/turbinectl/internal/dynamo"
	"gonum.org/v1/gonum/stat"
)

// Regulation is the fraction of samples in which one state component stays
// within band of its target.
type Regulation struct {
	name    string
	index   int
	target  float64
	band    float64
	inside  int
	samples int
}

func NewRegulation(name string, index int, target, band float64) *Regulation {
	return &Regulation{name: name, index: index, target: target, band: band}
}

func (r *Regulation) Name() string {
	return r.name
}

func (r *Regulation) Observe(x dynamo.State, u dynamo.Control, t float64) {
	r.samples++
	if math.Abs(x[r.index]-r.target) <= r.band {
		r.inside++
	}
}

func (r *Regulation) Value() float64 {
	if r.samples == 0 {
		return 1.0
	}
	return float64(r.inside) / float64(r.samples)
}

func (r *Regulation) Reset() {
	r.inside = 0
	r.samples = 0
}

// Spread keeps one state component's history and reports either its
// standard deviation or, with a target, its RMS error about the target.
type Spread struct {
	name   string
	index  int
	target *float64
	values []float64
}

func NewStdDev(name string, index int) *Spread {
	return &Spread{name: name, index: index}
}

func NewRMSError(name string, index int, target float64) *Spread {
	return &Spread{name: name, index: index, target: &target}
}

func (s *Spread) Name() string { return s.name }

func (s *Spread) Observe(x dynamo.State, u dynamo.Control, t float64) {
	s.values = append(s.values, x[s.index])
}

func (s *Spread) Value() float64 {
	switch {
	case len(s.values) == 0:
		return 0
	case s.target != nil:
		sum := 0.0
		for _, v := range s.values {
			d := v - *s.target
			sum += d * d
		}
		return math.Sqrt(sum / float64(len(s.values)))
	case len(s.values) == 1:
		return 0
	default:
		return stat.StdDev(s.values, nil)
	}
}

func (s *Spread) Reset() { s.values = s.values[:0] }
