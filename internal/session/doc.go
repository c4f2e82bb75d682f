// Package session drives one turbine's DISCON controller through a
// simulation run.
//
// A [Session] is created once per turbine, fed one [Step] per host time step
// and closed when the run ends:
//
//	s, err := session.Open(cfg, loader.Default())
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	for ... {
//		if _, err := s.Update(step); err != nil {
//			return err
//		}
//		switch p := s.Pitch().(type) {
//		case session.CommonPitch:
//			...
//		case session.IndividualPitch:
//			...
//		}
//	}
//
// The first accepted step is sent with status 0, every later one with
// status 1, and Close sends the final status -1 call before unloading the
// controller. Steps that are not new or do not advance time are ignored so a
// host may call Update from every implicit-solver iteration.
//
// # Thread Safety
//
// A Session is NOT safe for concurrent use. Sessions for different turbines
// are independent; [Registry] is safe for concurrent use and may hand out
// sessions to goroutines that each own one turbine.
package session
