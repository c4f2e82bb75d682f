package metrics

import (
	"github.com/san-kum/turbinectl/internal/dynamo"
	"github.com/san-kum/turbinectl/internal/plant"
)

// ForTurbine returns the standard run metrics for a plant regulated to
// ratedRotorSpeed (rad/s).
func ForTurbine(ratedRotorSpeed float64) []dynamo.Metric {
	return []dynamo.Metric{
		NewTravel("pitch_travel", plant.Pitch1, plant.Pitch2, plant.Pitch3),
		NewControlEffort("torque_effort", plant.GenTorque),
		NewRegulation("speed_regulation", plant.RotorSpeed, ratedRotorSpeed, 0.05*ratedRotorSpeed),
		NewRMSError("speed_rms_error", plant.RotorSpeed, ratedRotorSpeed),
		NewStdDev("tower_std", plant.TowerDisp),
	}
}
