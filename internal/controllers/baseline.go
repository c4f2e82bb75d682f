// Package controllers contains DISCON controllers implemented in Go, usable
// wherever an external controller library is expected.
package controllers

import (
	"fmt"
	"math"

	"github.com/san-kum/turbinectl/internal/swap"
)

// Baseline is a variable-speed, variable-pitch controller: quadratic torque
// below rated, constant power above, with a gain-scheduled PI pitch loop on
// filtered generator speed. With individual pitch enabled in the record it
// adds per-blade offsets against root moment imbalance.
//
// Parameters come from the record's input file on the first call.
type Baseline struct {
	params Params
	pi     speedPI

	speed     float64
	pitch     float64
	torque    float64
	lastTime  float64
	started   bool
	finalized bool
}

func NewBaseline() *Baseline {
	return &Baseline{}
}

func (b *Baseline) Call(rec *swap.Record) {
	rec.Fail = 0

	switch int(rec.Get(swap.Status)) {
	case swap.StatusFinal:
		b.finalized = true
		return
	case swap.StatusFirstCall:
		if err := b.start(rec); err != nil {
			rec.Fail = -1
			rec.SetMessage(err.Error())
			return
		}
	}

	if !b.started {
		rec.Fail = -1
		rec.SetMessage("baseline: called before initialisation")
		return
	}

	dt := rec.Get(swap.CommunicationInterval)
	if dt <= 0 {
		rec.Fail = -1
		rec.SetMessage(fmt.Sprintf("baseline: communication interval must be positive, got %g", dt))
		return
	}

	b.filterSpeed(rec.Get(swap.GeneratorSpeed), dt)
	b.updateTorque(dt)
	b.updatePitch(dt)

	rec.Set(swap.TorqueDemand, b.torque)
	rec.Set(swap.PitchDemand, b.pitch)

	offsets := [3]float64{}
	if int(rec.Get(swap.PitchControlType)) == swap.PitchIndividual {
		offsets = b.ipcOffsets(rec)
	}
	for i, idx := range swap.PitchDemands {
		rec.Set(idx, b.pitch+offsets[i])
	}
	b.lastTime = rec.Get(swap.Time)
}

func (b *Baseline) start(rec *swap.Record) error {
	params, err := LoadParams(rec.InfilePath())
	if err != nil {
		return fmt.Errorf("baseline: %w", err)
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("baseline: %w", err)
	}

	b.params = params
	b.pi = speedPI{
		Kp:     params.PitchKp,
		Ki:     params.PitchKi,
		Knee:   params.PitchKnee,
		Min:    params.MinPitch,
		Max:    params.MaxPitch,
		Target: params.RatedGeneratorSpeed,
	}
	b.speed = rec.Get(swap.GeneratorSpeed)
	b.pitch = math.Max(params.MinPitch, rec.Get(swap.BladePitch1))
	b.torque = rec.Get(swap.MeasuredTorque)
	b.pi.reset(b.pitch)
	b.started = true
	return nil
}

func (b *Baseline) filterSpeed(measured, dt float64) {
	alpha := math.Exp(-dt * b.params.SpeedFilterCorner)
	b.speed = alpha*b.speed + (1-alpha)*measured
}

func (b *Baseline) updateTorque(dt float64) {
	p := b.params
	var demand float64
	if b.speed >= p.RatedGeneratorSpeed || b.pitch >= p.MinPitch+p.AboveRatedPad {
		demand = p.RatedPower / math.Max(b.speed, 1e-3)
	} else {
		demand = p.TorqueGain * b.speed * b.speed
	}
	demand = math.Max(0, math.Min(p.MaxTorque, demand))

	step := p.MaxTorqueRate * dt
	b.torque += math.Max(-step, math.Min(step, demand-b.torque))
}

func (b *Baseline) updatePitch(dt float64) {
	demand := b.pi.compute(b.speed, b.pitch, dt)
	step := b.params.MaxPitchRate * dt
	b.pitch += math.Max(-step, math.Min(step, demand-b.pitch))
}

// ipcOffsets pitches each blade towards feather in proportion to how far its
// root moment sits above the rotor mean.
func (b *Baseline) ipcOffsets(rec *swap.Record) [3]float64 {
	var m [3]float64
	mean := 0.0
	for i, idx := range swap.RootMoment {
		m[i] = rec.Get(idx)
		mean += m[i] / 3
	}
	var out [3]float64
	limit := b.params.MaxIPCOffset
	for i := range m {
		out[i] = math.Max(-limit, math.Min(limit, b.params.IPCGain*(m[i]-mean)))
	}
	return out
}

// Finalized reports whether the final status call has been received.
func (b *Baseline) Finalized() bool { return b.finalized }
