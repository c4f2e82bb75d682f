package session

import (
	"fmt"
	"strings"
)

// Mode selects whether the blades share one pitch demand.
type Mode int

const (
	Common Mode = iota
	Individual
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "common", "collective":
		return Common, nil
	case "individual", "ipc":
		return Individual, nil
	default:
		return Common, fmt.Errorf("unknown pitch control mode: %q", s)
	}
}

func (m Mode) String() string {
	switch m {
	case Common:
		return "common"
	case Individual:
		return "individual"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Pitch is the pitch demand handed back to the host. It is either a
// CommonPitch or an IndividualPitch, matching the session's Mode.
type Pitch interface {
	isPitch()
}

// CommonPitch is one angle for all blades, with the actuator's rate and
// acceleration when the actuator filter is in use.
type CommonPitch struct {
	Angle float64
	Rate  float64
	Accel float64
}

// IndividualPitch is one angle per blade. Rates are not modelled.
type IndividualPitch struct {
	Blades [3]float64
}

func (CommonPitch) isPitch()     {}
func (IndividualPitch) isPitch() {}
