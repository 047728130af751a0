package gpio

import (
	"errors"
	"sync"
)

// FakePins is a test double with scripted LED samples and a settable button.
// Safe for concurrent use: tasks under test run on their own goroutines.
type FakePins struct {
	mu sync.Mutex

	// ledSamples is consumed one per LEDLit call; the last sample repeats.
	ledSamples []bool
	ledIndex   int

	pressed bool
	active  bool
	writes  []bool
	closed  bool

	ledErr    error
	buttonErr error
	writeErr  error
}

// NewFakePins creates FakePins with the given LED samples.
func NewFakePins(led ...bool) *FakePins {
	return &FakePins{ledSamples: led}
}

// LEDLit returns the next scripted LED sample.
func (f *FakePins) LEDLit() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ledErr != nil {
		return false, f.ledErr
	}
	if len(f.ledSamples) == 0 {
		return false, errors.New("no samples configured")
	}
	lit := f.ledSamples[f.ledIndex]
	if f.ledIndex < len(f.ledSamples)-1 {
		f.ledIndex++
	}
	return lit, nil
}

// ButtonPressed returns the level set by SetPressed.
func (f *FakePins) ButtonPressed() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.buttonErr != nil {
		return false, f.buttonErr
	}
	return f.pressed, nil
}

// SetButton records the write.
func (f *FakePins) SetButton(active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writeErr != nil {
		return f.writeErr
	}
	f.active = active
	f.writes = append(f.writes, active)
	return nil
}

// Close idles the output and marks the pins closed.
func (f *FakePins) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.active = false
	f.closed = true
	return nil
}

// SetLED replaces the scripted LED samples.
func (f *FakePins) SetLED(led ...bool) {
	f.mu.Lock()
	f.ledSamples = led
	f.ledIndex = 0
	f.mu.Unlock()
}

// SetPressed sets the local button level.
func (f *FakePins) SetPressed(pressed bool) {
	f.mu.Lock()
	f.pressed = pressed
	f.mu.Unlock()
}

// SetErrors makes subsequent reads and writes fail. Nil clears.
func (f *FakePins) SetErrors(led, button, write error) {
	f.mu.Lock()
	f.ledErr = led
	f.buttonErr = button
	f.writeErr = write
	f.mu.Unlock()
}

// Active reports the current logical level of the button output.
func (f *FakePins) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Writes returns a copy of every level written to the button output.
func (f *FakePins) Writes() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.writes...)
}

// Closed reports whether Close was called.
func (f *FakePins) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
