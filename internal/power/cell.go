package power

import "sync/atomic"

// Cell holds the process-wide power state. Any goroutine may Load it;
// only Monitor stores into it.
type Cell struct {
	v atomic.Int32
}

// NewCell returns a cell initialized to Off.
func NewCell() *Cell {
	return &Cell{}
}

// Load returns the current power state.
func (c *Cell) Load() State {
	return State(c.v.Load())
}

func (c *Cell) store(s State) {
	c.v.Store(int32(s))
}
