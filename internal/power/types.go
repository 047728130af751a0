// Package power infers the host's power state from the timing of its power LED.
// The classifier is pure logic: time is always injected via Input.Time.
package power

import "time"

// State is the inferred power state of the host.
type State int32

const (
	Off State = iota
	On
	Sleeping
)

// String returns the lowercase label used on the wire.
func (s State) String() string {
	switch s {
	case On:
		return "on"
	case Sleeping:
		return "sleeping"
	default:
		return "off"
	}
}

// Timing constants for the sleep heartbeat. The host blinks its LED while
// suspended; edges spaced inside the window are read as Sleeping.
const (
	PollInterval   = 100 * time.Millisecond
	SleepWindowMin = 500 * time.Millisecond
	SleepWindowMax = 750 * time.Millisecond
)

// Input is a single sample of the LED, already inverted from the raw pin.
type Input struct {
	Lit  bool
	Time time.Time
}

// Transition is the diagnostic record emitted for every LED edge and for
// every state change on the expiry path.
type Transition struct {
	Time    time.Time
	From    State
	To      State
	Lit     bool
	Elapsed time.Duration
	// Edge is false when the state changed without an LED edge
	// (the sleep heartbeat stopped arriving).
	Edge bool
}

// Changed reports whether the transition moved the power state.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Counts tracks how many times each state was entered since startup.
type Counts struct {
	On       int
	Off      int
	Sleeping int
}
