package power

import "time"

// Classifier turns LED samples into a power state.
type Classifier struct {
	state          State
	known          bool
	lastLit        bool
	lastTransition time.Time
	counts         Counts
}

// NewClassifier creates a classifier in the Off state. The start time is
// the reference for the elapsed time of the first edge.
func NewClassifier(start time.Time) *Classifier {
	return &Classifier{lastTransition: start}
}

// Process takes a new sample and returns the resulting transition, or nil
// when nothing worth reporting happened.
func (c *Classifier) Process(in Input) *Transition {
	if !c.known || in.Lit != c.lastLit {
		elapsed := in.Time.Sub(c.lastTransition)
		next := levelState(in.Lit)
		// The first sample has no previous edge to be spaced from.
		if c.known && elapsed >= SleepWindowMin && elapsed <= SleepWindowMax {
			next = Sleeping
		}

		tr := &Transition{
			Time:    in.Time,
			From:    c.state,
			To:      next,
			Lit:     in.Lit,
			Elapsed: elapsed,
			Edge:    true,
		}
		c.set(next, !c.known)
		c.known = true
		c.lastLit = in.Lit
		c.lastTransition = in.Time
		return tr
	}

	// Level unchanged. Sleeping holds only while heartbeat edges keep arriving.
	elapsed := in.Time.Sub(c.lastTransition)
	if c.state == Sleeping && elapsed <= SleepWindowMax {
		return nil
	}
	next := levelState(in.Lit)
	if next == c.state {
		return nil
	}

	tr := &Transition{
		Time:    in.Time,
		From:    c.state,
		To:      next,
		Lit:     in.Lit,
		Elapsed: elapsed,
	}
	c.set(next, false)
	return tr
}

// set records the new state. Entries are counted on change only, except
// for the very first classification.
func (c *Classifier) set(s State, first bool) {
	if s == c.state && !first {
		return
	}
	c.state = s
	switch s {
	case On:
		c.counts.On++
	case Off:
		c.counts.Off++
	case Sleeping:
		c.counts.Sleeping++
	}
}

// State returns the current classification.
func (c *Classifier) State() State {
	return c.state
}

// Counts returns the number of entries into each state.
func (c *Classifier) Counts() Counts {
	return c.counts
}

func levelState(lit bool) State {
	if lit {
		return On
	}
	return Off
}
