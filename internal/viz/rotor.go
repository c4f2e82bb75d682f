package viz

import "math"

// towerGain exaggerates tower top displacement, in dots per metre.
const towerGain = 25.0

// DrawRotor draws the turbine seen from upwind: the tower, the hub and three
// blades. Blade 1 points straight up at zero azimuth and the rotor turns
// clockwise. The hub shifts sideways with the tower top displacement.
func DrawRotor(c *Canvas, azimuth, towerDisp float64) {
	w, h := c.Dots()
	base := w / 2
	cx := base + int(math.Round(towerDisp*towerGain))
	cy := h * 2 / 5
	blade := int(float64(cy) * 0.9)

	c.Line(base, h-1, cx, cy)
	for i := 0; i < 3; i++ {
		a := azimuth + float64(i)*2*math.Pi/3
		tipX := cx + int(math.Round(float64(blade)*math.Sin(a)))
		tipY := cy - int(math.Round(float64(blade)*math.Cos(a)))
		c.Line(cx, cy, tipX, tipY)
	}
	c.Disc(cx, cy, 2)
}
