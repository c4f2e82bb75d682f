package session_test

import (
	"github.com/san-kum/turbinectl/internal/loader"
	"github.com/san-kum/turbinectl/internal/swap"
)

// recordingController remembers the status and slots of every call.
type recordingController struct {
	statuses []int
	calls    [][]float32
	respond  func(rec *swap.Record)
	closed   int
}

func (c *recordingController) Call(rec *swap.Record) {
	c.statuses = append(c.statuses, int(rec.Get(swap.Status)))
	c.calls = append(c.calls, rec.Values())
	if c.respond != nil {
		c.respond(rec)
	}
}

func (c *recordingController) Close() error {
	c.closed++
	return nil
}

func (c *recordingController) last(i swap.Index) float64 {
	return float64(c.calls[len(c.calls)-1][i-1])
}

type stubLoader struct {
	lib   loader.Library
	err   error
	loads int
}

func (l *stubLoader) Load(loader.Reference) (loader.Library, error) {
	l.loads++
	if l.err != nil {
		return nil, l.err
	}
	return l.lib, nil
}

// bladeTable serves per-blade measurements in degrees and kN·m.
type bladeTable struct {
	pitch  [3]float64
	moment [3]float64
}

func (b bladeTable) BladePitch(blade int) float64 { return b.pitch[blade-1] }
func (b bladeTable) RootMoment(blade int) float64 { return b.moment[blade-1] }
