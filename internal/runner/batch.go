package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/san-kum/turbinectl/internal/config"
	"github.com/san-kum/turbinectl/internal/dynamo"
	"github.com/san-kum/turbinectl/internal/session"
)

// Job is one turbine of a batch.
type Job struct {
	ID     session.ID
	Config *config.Config
}

type Outcome struct {
	ID     session.ID
	Result *dynamo.Result
	Err    error
}

// Batch runs every job on its own goroutine, at most workers at a time
// (GOMAXPROCS when workers < 1). Sessions live in one registry keyed by job
// ID, which also names the turbine; jobs without an ID get a fresh one and a
// repeated ID fails its job. Each job writes its own debug capture; jobs
// that would share one file get the job ID appended to its name. Outcomes
// are in job order.
func Batch(ctx context.Context, jobs []Job, workers int, opts ...Option) []Outcome {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	reg := session.NewRegistry()
	defer reg.Close()

	out := make([]Outcome, len(jobs))
	cfgs := make([]*config.Config, len(jobs))
	seen := make(map[session.ID]bool, len(jobs))
	captures := make(map[string]bool, len(jobs))
	for i, job := range jobs {
		id := job.ID
		if id == "" {
			id = session.NewID()
		}
		out[i].ID = id
		if seen[id] {
			out[i].Err = fmt.Errorf("turbine %s: duplicate job id", id)
			continue
		}
		seen[id] = true

		cfg := job.Config.Clone()
		cfg.Name = string(id)
		if path := cfg.DebugPath(); path != "" {
			if captures[path] {
				cfg.DebugFile = perTurbine(path, id)
			}
			captures[cfg.DebugPath()] = true
		}
		cfgs[i] = cfg
	}

	dynamo.ForEach(len(jobs), workers, func(i int) {
		if out[i].Err != nil {
			return
		}
		jobOpts := append(append([]Option(nil), opts...), WithRegistry(reg, out[i].ID))
		r, err := New(cfgs[i], jobOpts...)
		if err != nil {
			out[i].Err = err
			return
		}
		out[i].Result, out[i].Err = r.Run(ctx)
	})
	return out
}

// perTurbine inserts the job ID before the extension of a capture path.
func perTurbine(path string, id session.ID) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + string(id) + ext
}
