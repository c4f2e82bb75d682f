package controllers

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/turbinectl/internal/swap"
)

func newRecord(infile string, status int, genSpeed, dt float64) *swap.Record {
	rec := swap.New(infile)
	rec.Set(swap.Status, float64(status))
	rec.Set(swap.GeneratorSpeed, genSpeed)
	rec.Set(swap.CommunicationInterval, dt)
	return rec
}

func TestNone(t *testing.T) {
	rec := newRecord("", swap.StatusRunning, 100, 0.1)
	rec.Set(swap.PitchDemand, 0.3)
	rec.Set(swap.TorqueDemand, 1000)

	NewNone().Call(rec)

	if rec.Fail != 0 {
		t.Errorf("expected fail 0, got %d", rec.Fail)
	}
	if rec.Get(swap.PitchDemand) != 0 || rec.Get(swap.TorqueDemand) != 0 {
		t.Error("expected zero demands")
	}
}

func TestBaselineBelowRatedTracksQuadraticLaw(t *testing.T) {
	b := NewBaseline()
	p := DefaultParams()
	speed := 0.8 * p.RatedGeneratorSpeed

	rec := newRecord("", swap.StatusFirstCall, speed, 0.05)
	rec.Set(swap.MeasuredTorque, p.TorqueGain*speed*speed)
	b.Call(rec)
	if rec.Fail != 0 {
		t.Fatalf("first call failed: %s", rec.MessageText())
	}

	for i := 0; i < 200; i++ {
		rec.Set(swap.Status, swap.StatusRunning)
		b.Call(rec)
	}

	want := p.TorqueGain * speed * speed
	if got := rec.Get(swap.TorqueDemand); math.Abs(got-want) > 1e-2*want {
		t.Errorf("torque = %.1f, want ≈ %.1f", got, want)
	}
	if got := rec.Get(swap.PitchDemand); got != 0 {
		t.Errorf("pitch below rated = %g, want 0", got)
	}
}

func TestBaselinePitchesAboveRated(t *testing.T) {
	b := NewBaseline()
	p := DefaultParams()
	speed := 1.15 * p.RatedGeneratorSpeed

	rec := newRecord("", swap.StatusFirstCall, speed, 0.05)
	b.Call(rec)
	prev := rec.Get(swap.PitchDemand)
	for i := 0; i < 100; i++ {
		rec.Set(swap.Status, swap.StatusRunning)
		b.Call(rec)
		pitch := rec.Get(swap.PitchDemand)
		if pitch < prev-1e-6 {
			t.Fatalf("pitch decreased under persistent overspeed: %g -> %g", prev, pitch)
		}
		if rate := (pitch - prev) / 0.05; rate > p.MaxPitchRate*1.0001 {
			t.Fatalf("pitch rate %g exceeds limit %g", rate, p.MaxPitchRate)
		}
		prev = pitch
	}
	if prev <= 0 {
		t.Error("expected positive pitch above rated")
	}

	wantTorque := p.RatedPower / speed
	if got := rec.Get(swap.TorqueDemand); math.Abs(got-wantTorque) > 0.05*wantTorque {
		t.Errorf("torque above rated = %.1f, want ≈ %.1f", got, wantTorque)
	}
}

func TestBaselineIndividualOffsets(t *testing.T) {
	b := NewBaseline()
	rec := newRecord("", swap.StatusFirstCall, 100, 0.05)
	rec.Set(swap.PitchControlType, swap.PitchIndividual)
	rec.Set(swap.RootMoment1, 9e6)
	rec.Set(swap.RootMoment2, 6e6)
	rec.Set(swap.RootMoment3, 6e6)
	b.Call(rec)

	col := rec.Get(swap.PitchDemand)
	d1 := rec.Get(swap.PitchDemand1) - col
	d2 := rec.Get(swap.PitchDemand2) - col
	d3 := rec.Get(swap.PitchDemand3) - col
	if d1 <= 0 {
		t.Errorf("most loaded blade should pitch to feather, offset %g", d1)
	}
	if math.Abs(d2-d3) > 1e-6 || d2 >= 0 {
		t.Errorf("equally loaded blades should share a negative offset, got %g %g", d2, d3)
	}
}

func TestBaselineCollectiveBroadcast(t *testing.T) {
	b := NewBaseline()
	rec := newRecord("", swap.StatusFirstCall, 130, 0.05)
	rec.Set(swap.RootMoment1, 9e6)
	b.Call(rec)

	col := rec.Get(swap.PitchDemand)
	for _, idx := range swap.PitchDemands {
		if rec.Get(idx) != col {
			t.Errorf("%s = %g, want collective %g", idx, rec.Get(idx), col)
		}
	}
}

func TestBaselineReadsInputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.yaml")
	if err := os.WriteFile(path, []byte("rated_generator_speed: 50\nmax_torque: 1000\n"), 0644); err != nil {
		t.Fatal(err)
	}

	b := NewBaseline()
	rec := newRecord(path, swap.StatusFirstCall, 10, 0.1)
	b.Call(rec)
	if rec.Fail != 0 {
		t.Fatalf("unexpected failure: %s", rec.MessageText())
	}
	if b.params.RatedGeneratorSpeed != 50 || b.params.MaxTorque != 1000 {
		t.Errorf("params not loaded: %+v", b.params)
	}
	if b.params.PitchKp != DefaultParams().PitchKp {
		t.Error("unset params should keep defaults")
	}
}

func TestBaselineFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func() (*Baseline, *swap.Record)
	}{
		{"missing input file", func() (*Baseline, *swap.Record) {
			return NewBaseline(), newRecord(filepath.Join(t.TempDir(), "nope.yaml"), swap.StatusFirstCall, 100, 0.1)
		}},
		{"running before first call", func() (*Baseline, *swap.Record) {
			return NewBaseline(), newRecord("", swap.StatusRunning, 100, 0.1)
		}},
		{"zero time step", func() (*Baseline, *swap.Record) {
			return NewBaseline(), newRecord("", swap.StatusFirstCall, 100, 0)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, rec := tt.setup()
			b.Call(rec)
			if rec.Fail >= 0 {
				t.Errorf("expected negative fail, got %d", rec.Fail)
			}
			if rec.MessageText() == "" {
				t.Error("expected failure message")
			}
		})
	}
}

func TestBaselineFinalCall(t *testing.T) {
	b := NewBaseline()
	rec := newRecord("", swap.StatusFinal, 0, 0)
	b.Call(rec)
	if rec.Fail != 0 || !b.Finalized() {
		t.Error("final call should succeed and mark finalized")
	}
}

func TestSpeedPIClampsIntegral(t *testing.T) {
	pi := speedPI{Kp: 0.02, Ki: 0.008, Knee: 0.11, Min: 0, Max: 0.5, Target: 100}
	pi.reset(0)
	for i := 0; i < 10000; i++ {
		if cmd := pi.compute(200, 0.5, 0.1); cmd > 0.5 {
			t.Fatalf("command %g exceeds max", cmd)
		}
	}
	// after long saturation the loop must come off the limit as soon as the
	// error reverses sign, which requires a bounded integral
	if cmd := pi.compute(50, 0.5, 0.1); cmd >= 0.5 {
		t.Errorf("loop stuck at limit after windup, cmd = %g", cmd)
	}
}

func TestSpeedPIKeepsPitchWhileScheduleFalls(t *testing.T) {
	pi := speedPI{Kp: 0.02, Ki: 0.008, Knee: 0.11, Min: 0, Max: 1.5, Target: 100}
	pi.reset(0.3)
	if cmd := pi.compute(100, 0.3, 0.05); math.Abs(cmd-0.3) > 1e-12 {
		t.Fatalf("reset should hold pitch at zero error, cmd = %g", cmd)
	}

	// overspeed persists while the blades move to feather and the gain
	// schedule drops; the demand must not fall below what was accumulated
	prev := 0.3
	for i, pitch := range []float64{0.3, 0.45, 0.6, 0.9, 1.2} {
		cmd := pi.compute(105, pitch, 0.05)
		if cmd < prev {
			t.Fatalf("step %d: demand fell from %g to %g at pitch %g", i, prev, cmd, pitch)
		}
		prev = pi.integral
	}
}
