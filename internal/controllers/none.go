package controllers

import "github.com/san-kum/turbinectl/internal/swap"

// None holds every demand at zero: blades at fine pitch and no generator
// torque. It accepts every call.
type None struct{}

func NewNone() *None {
	return &None{}
}

func (n *None) Call(rec *swap.Record) {
	rec.Fail = 0
	if int(rec.Get(swap.Status)) == swap.StatusFinal {
		return
	}
	rec.Set(swap.PitchDemand, 0)
	for _, idx := range swap.PitchDemands {
		rec.Set(idx, 0)
	}
	rec.Set(swap.TorqueDemand, 0)
}
