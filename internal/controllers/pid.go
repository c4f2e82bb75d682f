package controllers

import "math"

// speedPI is the gain-scheduled PI loop from generator speed error to
// collective pitch. The integral holds pitch directly: it accumulates the
// scheduled increment and is clamped to the pitch limits, so a change in
// schedule never pulls back pitch that has already been accumulated.
type speedPI struct {
	Kp, Ki   float64
	Knee     float64
	Min, Max float64
	Target   float64
	integral float64
}

// gainSchedule scales the gains down as the blades pitch to feather, where
// aerodynamic sensitivity to pitch grows.
func (p *speedPI) gainSchedule(pitch float64) float64 {
	return 1 / (1 + pitch/p.Knee)
}

// reset starts the loop so that it holds pitch with zero speed error.
func (p *speedPI) reset(pitch float64) {
	p.integral = math.Max(p.Min, math.Min(p.Max, pitch))
}

func (p *speedPI) compute(speed, pitch, dt float64) float64 {
	gk := p.gainSchedule(pitch)
	err := speed - p.Target

	p.integral += gk * p.Ki * err * dt
	p.integral = math.Max(p.Min, math.Min(p.Max, p.integral))

	cmd := gk*p.Kp*err + p.integral
	return math.Max(p.Min, math.Min(p.Max, cmd))
}
