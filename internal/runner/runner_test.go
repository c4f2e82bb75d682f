package runner

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/san-kum/turbinectl/internal/config"
	"github.com/san-kum/turbinectl/internal/discon"
	"github.com/san-kum/turbinectl/internal/dynamo"
	"github.com/san-kum/turbinectl/internal/loader"
	"github.com/san-kum/turbinectl/internal/session"
	"github.com/san-kum/turbinectl/internal/swap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func preset(t *testing.T, name string, duration, warmUp float64) *config.Config {
	t.Helper()
	cfg := config.GetPreset(name)
	require.NotNil(t, cfg, name)
	cfg.Duration = duration
	cfg.WarmUp = warmUp
	return cfg
}

// countingLoader serves the stock built-ins plus "count", which holds
// demands at zero and counts its calls by status.
func countingLoader(first, running, final *atomic.Int32) *loader.Registry {
	reg := loader.NewRegistry()
	reg.Register("count", func() discon.Controller {
		return discon.ControllerFunc(func(rec *swap.Record) {
			switch int(rec.Get(swap.Status)) {
			case swap.StatusFirstCall:
				first.Add(1)
			case swap.StatusRunning:
				running.Add(1)
			case swap.StatusFinal:
				final.Add(1)
			}
		})
	})
	return reg
}

func finite(t *testing.T, res *dynamo.Result) {
	t.Helper()
	for i, row := range res.Rows {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("row %d channel %s is %v", i, res.Channels[j], v)
			}
		}
	}
}

func TestRunExplicitBaseline(t *testing.T) {
	cfg := preset(t, "rated", 30, 10)
	r, err := New(cfg)
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Rows, 3001)
	assert.Equal(t, 3000, res.StepsTaken)
	assert.InDelta(t, 30, res.Times[len(res.Times)-1], 1e-6)
	// one call per step after warm-up, plus the final call
	assert.InDelta(t, 2001, res.ControllerCalls, 2)
	finite(t, res)

	speed, ok := res.Column("rotor_speed")
	require.True(t, ok)
	rated := cfg.Plant.RatedSpeed
	for i, w := range speed[:1000] {
		require.Equal(t, rated, w, "rotor held during warm-up (row %d)", i)
	}
	last := speed[len(speed)-1]
	assert.InDelta(t, rated, last, 0.2*rated)

	for _, name := range []string{"pitch_travel", "torque_effort", "speed_regulation", "speed_rms_error", "tower_std"} {
		assert.Contains(t, res.Metrics, name)
	}
	assert.Greater(t, res.Metrics["torque_effort"], 0.0)
	assert.Equal(t, session.Finalized, r.Session().Phase())
}

func TestRunImplicitIgnoresIterations(t *testing.T) {
	var first, running, final atomic.Int32
	cfg := preset(t, "implicit", 20, 5)
	cfg.Controller.Library = "builtin:count"

	r, err := New(cfg, WithLoader(countingLoader(&first, &running, &final)))
	require.NoError(t, err)
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Rows, 1001)
	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(1), final.Load())
	// one call per step despite several solver iterations per step
	assert.InDelta(t, 749, running.Load(), 1)
	assert.Greater(t, r.implicit.Iterations(), 1)
	finite(t, res)
}

func TestRunIndividualPitch(t *testing.T) {
	cfg := preset(t, "ipc", 20, 5)
	r, err := New(cfg)
	require.NoError(t, err)
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	finite(t, res)

	p1, _ := res.Column("pitch_1")
	p2, _ := res.Column("pitch_2")
	last := len(p1) - 1
	assert.NotEqual(t, p1[last], p2[last], "blades pitch independently")
	assert.Equal(t, session.Individual, r.Session().Mode())
}

func TestRunActuatorFilter(t *testing.T) {
	cfg := preset(t, "actuator", 20, 5)
	r, err := New(cfg)
	require.NoError(t, err)
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	finite(t, res)
	assert.Greater(t, res.ControllerCalls, 0)
}

func TestRunControllerTrip(t *testing.T) {
	reg := loader.NewRegistry()
	reg.Register("trip", func() discon.Controller {
		return discon.ControllerFunc(func(rec *swap.Record) {
			if rec.Get(swap.Time) > 2 {
				rec.Fail = -1
				rec.SetMessage("pitch system fault")
			}
		})
	})

	cfg := preset(t, "open_loop", 10, 1)
	cfg.Controller.Library = "builtin:trip"
	r, err := New(cfg, WithLoader(reg))
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, discon.ErrInvocation))
	assert.Contains(t, err.Error(), "pitch system fault")

	var simErr *dynamo.SimulationError
	require.True(t, errors.As(err, &simErr))
	assert.InDelta(t, 2, simErr.Time, 0.02)
	assert.Less(t, len(res.Rows), 1001)
	assert.Equal(t, session.Finalized, r.Session().Phase())

	assert.True(t, errors.Is(r.Step(), discon.ErrFinalized))
}

func TestRunCanceled(t *testing.T) {
	var first, running, final atomic.Int32
	cfg := preset(t, "open_loop", 10, 1)
	cfg.Controller.Library = "builtin:count"
	r, err := New(cfg, WithLoader(countingLoader(&first, &running, &final)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, first.Load()+running.Load()+final.Load(), "controller never started, so never finalized")
}

func TestRunDebugCapture(t *testing.T) {
	cfg := preset(t, "rated", 2, 1)
	cfg.DebugFile = filepath.Join(t.TempDir(), "WT1_Debug.txt")

	r, err := New(cfg)
	require.NoError(t, err)
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(cfg.DebugFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, res.ControllerCalls+1)
	assert.True(t, strings.HasPrefix(lines[0], "slot[1]"))
}

func TestRunObserverAndProgress(t *testing.T) {
	var rows int
	cfg := preset(t, "open_loop", 1, 0.5)
	r, err := New(cfg, WithObserver(ObserverFunc(func(float64, []float64) { rows++ })))
	require.NoError(t, err)
	assert.Equal(t, 1, rows, "initial state is recorded")
	assert.Zero(t, r.Progress())

	require.NoError(t, r.Step())
	assert.InDelta(t, 0.01, r.Progress(), 1e-12)

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 101, rows)
	assert.True(t, r.Done())
	assert.NoError(t, r.Close())
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Solver = config.SolverConfig{Kind: config.SolverImplicit, ImplicitDt: 0.02, Variable: true, Iterations: 3}
	_, err := New(cfg)
	assert.True(t, errors.Is(err, discon.ErrConfiguration))

	cfg = config.DefaultConfig()
	cfg.InitialPitch = []float64{0.1, 0, 0}
	_, err = New(cfg)
	assert.True(t, errors.Is(err, discon.ErrConfiguration))

	cfg = config.DefaultConfig()
	cfg.Controller.Library = "builtin:missing"
	_, err = New(cfg)
	assert.True(t, errors.Is(err, discon.ErrResource))
	assert.True(t, errors.Is(err, loader.ErrUnknownController))
}

func TestBatch(t *testing.T) {
	bad := preset(t, "rated", 1, 0.5)
	bad.Controller.Library = "builtin:missing"

	jobs := []Job{
		{ID: "WT1", Config: preset(t, "rated", 5, 1)},
		{Config: preset(t, "below_rated", 5, 1)},
		{ID: "WT3", Config: bad},
		{ID: "WT1", Config: preset(t, "gust", 5, 1)},
	}
	out := Batch(context.Background(), jobs, 2)
	require.Len(t, out, 4)

	assert.Equal(t, session.ID("WT1"), out[0].ID)
	require.NoError(t, out[0].Err)
	assert.Len(t, out[0].Result.Rows, 501)

	assert.NotEmpty(t, out[1].ID)
	require.NoError(t, out[1].Err)

	assert.True(t, errors.Is(out[2].Err, discon.ErrResource))
	assert.Contains(t, out[2].Err.Error(), "WT3")

	assert.ErrorContains(t, out[3].Err, "duplicate")
}

func TestBatchDebugCapturePerTurbine(t *testing.T) {
	dir := t.TempDir()
	base := preset(t, "rated", 2, 1)
	base.Debug = true
	require.NoError(t, config.Save(filepath.Join(dir, "wt.yaml"), base))
	cfg, err := config.Load(filepath.Join(dir, "wt.yaml"))
	require.NoError(t, err)

	shared := cfg.Clone()
	shared.DebugFile = "shared.txt"

	jobs := []Job{
		{ID: "WT1", Config: cfg},
		{ID: "WT2", Config: cfg},
		{ID: "WT3", Config: shared},
		{ID: "WT4", Config: shared},
	}
	out := Batch(context.Background(), jobs, 4)

	files := []string{"WT1_Debug.txt", "WT2_Debug.txt", "shared.txt", "shared_WT4.txt"}
	for i, name := range files {
		require.NoError(t, out[i].Err, name)
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		headers := 0
		for _, line := range lines {
			if strings.HasPrefix(line, "slot[1]") {
				headers++
			}
		}
		assert.Equal(t, 1, headers, name)
		assert.Len(t, lines, out[i].Result.ControllerCalls+1, name)
	}
	assert.NoFileExists(t, filepath.Join(dir, "wt_Debug.txt"))
}

func TestRunWithRegistry(t *testing.T) {
	reg := session.NewRegistry()
	r, err := New(preset(t, "open_loop", 1, 0.5), WithRegistry(reg, "WT9"))
	require.NoError(t, err)

	s, ok := reg.Lookup("WT9")
	require.True(t, ok)
	assert.Same(t, r.Session(), s)

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, reg.Len())
}

func TestMetadata(t *testing.T) {
	cfg := config.GetPreset("implicit")
	meta := Metadata(cfg)
	assert.Equal(t, "implicit", meta.Turbine)
	assert.Equal(t, config.SolverImplicit, meta.Solver)
	assert.Equal(t, config.DefaultImplicitDt, meta.Dt)
	assert.Equal(t, cfg.Wind.Mean, meta.WindMean)
}
