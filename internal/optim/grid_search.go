// Package optim tunes controller parameters by running a turbine once per
// point of a parameter grid and ranking the runs by a metric.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/san-kum/turbinectl/internal/config"
	"github.com/san-kum/turbinectl/internal/controllers"
	"github.com/san-kum/turbinectl/internal/runner"
	"github.com/san-kum/turbinectl/internal/session"
	"gopkg.in/yaml.v3"
)

// GridSearch walks the cartesian product of baseline controller parameter
// ranges, keyed by their YAML names (e.g. "pitch_kp").
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, fmt.Errorf("optim: %d parameters with %d ranges", len(params), len(ranges))
	}
	known, err := paramMap(controllers.DefaultParams())
	if err != nil {
		return nil, err
	}
	for i, name := range params {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("optim: unknown controller parameter %q", name)
		}
		if len(ranges[i]) == 0 {
			return nil, fmt.Errorf("optim: empty range for %q", name)
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Points lists every grid point, the last parameter varying fastest.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.collect(0, map[string]float64{}, &out)
	return out
}

func (g *GridSearch) collect(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		point := make(map[string]float64, len(current))
		for k, v := range current {
			point[k] = v
		}
		*out = append(*out, point)
		return
	}
	for _, val := range g.ranges[depth] {
		current[g.paramNames[depth]] = val
		g.collect(depth+1, current, out)
	}
}

// Candidate is one evaluated grid point.
type Candidate struct {
	ID     session.ID
	Params map[string]float64
	Score  float64
	Err    error
}

// Search runs base once per grid point, concurrently through a batch, with
// the controller's input file replaced by the point's parameters written to
// dir. Candidates come back best (lowest metric) first, failures last.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, metric, dir string, workers int, opts ...runner.Option) ([]Candidate, error) {
	defaults, err := controllers.LoadParams(base.InfilePath())
	if err != nil {
		return nil, fmt.Errorf("optim: base parameters: %w", err)
	}

	points := g.Points()
	cands := make([]Candidate, len(points))
	jobs := make([]runner.Job, len(points))
	for i, point := range points {
		path := filepath.Join(dir, fmt.Sprintf("%s_tune_%03d.yaml", base.Name, i))
		if err := writeParams(path, defaults, point); err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}

		cfg := base.Clone()
		cfg.Controller.Infile = abs
		id := session.ID(fmt.Sprintf("%s-%03d", base.Name, i))
		jobs[i] = runner.Job{ID: id, Config: cfg}
		cands[i] = Candidate{ID: id, Params: point}
	}

	failed := 0
	for i, out := range runner.Batch(ctx, jobs, workers, opts...) {
		cands[i].Score, cands[i].Err = math.Inf(1), out.Err
		if out.Err == nil {
			v, ok := out.Result.Metrics[metric]
			if !ok {
				cands[i].Err = fmt.Errorf("optim: run has no metric %q", metric)
			} else {
				cands[i].Score = v
			}
		}
		if cands[i].Err != nil {
			failed++
		}
	}

	sort.SliceStable(cands, func(a, b int) bool {
		if (cands[a].Err == nil) != (cands[b].Err == nil) {
			return cands[a].Err == nil
		}
		return cands[a].Score < cands[b].Score
	})

	if failed == len(cands) {
		return cands, errors.New("optim: every grid point failed")
	}
	return cands, nil
}

func paramMap(p controllers.Params) (map[string]any, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, err
	}
	m := make(map[string]any)
	return m, yaml.Unmarshal(data, &m)
}

func writeParams(path string, base controllers.Params, point map[string]float64) error {
	m, err := paramMap(base)
	if err != nil {
		return err
	}
	for k, v := range point {
		m[k] = v
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
