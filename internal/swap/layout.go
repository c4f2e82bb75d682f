package swap

// Slot describes one named slot of the record.
type Slot struct {
	Index Index
	Name  string
	// Output marks slots the controller writes.
	Output bool
}

// Layout lists every slot this module reads or writes, in index order.
var Layout = []Slot{
	{Status, "status", false},
	{Time, "time", false},
	{CommunicationInterval, "communication interval", false},
	{BladePitch1, "blade 1 pitch", false},
	{MeasuredPower, "measured power", false},
	{GeneratorSpeed, "generator speed", false},
	{RotorSpeed, "rotor speed", false},
	{MeasuredTorque, "measured generator torque", false},
	{WindSpeed, "hub wind speed", false},
	{PitchControlType, "pitch control type", false},
	{RootMoment1, "blade 1 root out-of-plane moment", false},
	{RootMoment2, "blade 2 root out-of-plane moment", false},
	{RootMoment3, "blade 3 root out-of-plane moment", false},
	{BladePitch2, "blade 2 pitch", false},
	{BladePitch3, "blade 3 pitch", false},
	{PitchDemand1, "blade 1 pitch demand", true},
	{PitchDemand2, "blade 2 pitch demand", true},
	{PitchDemand3, "blade 3 pitch demand", true},
	{PitchDemand, "collective pitch demand", true},
	{TorqueDemand, "generator torque demand", true},
	{MessageLength, "message buffer length", false},
	{InfileLength, "infile path length", false},
	{OutnameLength, "outname buffer length", false},
	{TowerForeAftAccel, "tower top fore-aft acceleration", false},
	{RotorAzimuth, "rotor azimuth", false},
	{BladeCount, "number of blades", false},
	{NoddingAccel, "nacelle nodding acceleration", false},
}

// Describe returns the layout entry for i.
func Describe(i Index) (Slot, bool) {
	for _, s := range Layout {
		if s.Index == i {
			return s, true
		}
	}
	return Slot{}, false
}
