package metrics

import (
	"math"

	"github.com/san-kum/turbinectl/internal/dynamo"
)

// ControlEffort is the mean absolute value of the selected control inputs.
type ControlEffort struct {
	name    string
	inputs  []int
	sum     float64
	samples int
}

func NewControlEffort(name string, inputs ...int) *ControlEffort {
	return &ControlEffort{name: name, inputs: inputs}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(x dynamo.State, u dynamo.Control, t float64) {
	for _, i := range c.inputs {
		c.sum += math.Abs(u[i])
	}
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

// Travel is the total distance moved by the selected control inputs, the
// usual proxy for pitch bearing wear.
type Travel struct {
	name   string
	inputs []int
	prev   dynamo.Control
	total  float64
}

func NewTravel(name string, inputs ...int) *Travel {
	return &Travel{name: name, inputs: inputs}
}

func (m *Travel) Name() string { return m.name }

func (m *Travel) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if m.prev != nil {
		for _, i := range m.inputs {
			m.total += math.Abs(u[i] - m.prev[i])
		}
	}
	m.prev = append(m.prev[:0], u...)
}

func (m *Travel) Value() float64 { return m.total }

func (m *Travel) Reset() {
	m.prev = nil
	m.total = 0
}
