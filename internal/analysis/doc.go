// Package analysis looks at recorded channels in the frequency domain.
//
// [PSD] estimates a one-sided power spectral density with Welch's method;
// [Spectrum.Peak] and [Spectrum.BandPower] pick out the tower mode and the
// rotor harmonics:
//
//	s := analysis.PSD(towerDisp, dt, 0)
//	freq, _ := s.Peak(0.1, 1)
package analysis
