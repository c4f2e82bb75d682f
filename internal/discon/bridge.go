package discon

import (
	"fmt"

	"github.com/san-kum/turbinectl/internal/swap"
)

// Controller is a DISCON entry point. It reads the record's input slots and
// buffers and writes its demands and fail flag back into the same record.
type Controller interface {
	Call(rec *swap.Record)
}

// ControllerFunc adapts a function to Controller.
type ControllerFunc func(rec *swap.Record)

func (f ControllerFunc) Call(rec *swap.Record) { f(rec) }

// Sink captures the record after every call.
type Sink interface {
	WriteHeader(slots int) error
	Append(values []float32) error
}

type Bridge struct {
	turbine string
	rec     *swap.Record
	ctrl    Controller
	sink    Sink
	calls   int
}

// NewBridge wires a controller to a record. sink may be nil.
func NewBridge(turbine string, rec *swap.Record, ctrl Controller, sink Sink) *Bridge {
	return &Bridge{turbine: turbine, rec: rec, ctrl: ctrl, sink: sink}
}

func (b *Bridge) Record() *swap.Record { return b.rec }

// Calls reports how many times the controller has been invoked.
func (b *Bridge) Calls() int { return b.calls }

// StartCapture writes the sink header, if there is a sink.
func (b *Bridge) StartCapture() error {
	if b.sink == nil {
		return nil
	}
	if err := b.sink.WriteHeader(swap.Size); err != nil {
		return fmt.Errorf("%s: debug capture: %w", b.turbine, err)
	}
	return nil
}

// Invoke calls the controller once. The sink sees the record whether or not
// the call succeeded. A negative fail flag takes precedence over sink errors.
func (b *Bridge) Invoke() error {
	b.rec.Fail = 0
	b.ctrl.Call(b.rec)
	b.calls++

	var sinkErr error
	if b.sink != nil {
		sinkErr = b.sink.Append(b.rec.Values())
	}

	if b.rec.Fail < 0 {
		return &InvocationError{
			Turbine: b.turbine,
			Status:  b.rec.Fail,
			Time:    b.rec.Get(swap.Time),
			Message: b.rec.MessageText(),
		}
	}
	if sinkErr != nil {
		return fmt.Errorf("%s: debug capture: %w", b.turbine, sinkErr)
	}
	return nil
}
