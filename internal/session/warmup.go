package session

// DefaultWarmUp is the time after simulation start during which demands are
// held at zero.
const DefaultWarmUp = 10.0

// WarmUp holds every demand at zero, without calling the controller, until
// Threshold seconds after the session's start time. It lets the host's
// initial transients settle before the controller sees them.
type WarmUp struct {
	Threshold float64
}

// Active reports whether t is still inside the warm-up window.
func (w WarmUp) Active(s *Session, t float64) bool {
	return t-s.StartTime() <= w.Threshold
}

// Apply updates s from step, or suppresses its outputs inside the window.
func (w WarmUp) Apply(s *Session, step Step) error {
	if w.Active(s, step.Time) {
		s.Suppress()
		return nil
	}
	_, err := s.Update(step)
	return err
}
