package pwm

import "sync"

// FakeChannel records every duty written. Safe for concurrent use.
type FakeChannel struct {
	mu     sync.Mutex
	duties []uint16
	closed bool
	err    error
}

// NewFakeChannel creates an empty recorder.
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{}
}

// SetDuty records duty unless an error is configured.
func (f *FakeChannel) SetDuty(duty uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.duties = append(f.duties, duty)
	return nil
}

// Close records a final zero duty and marks the channel closed.
func (f *FakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.duties = append(f.duties, 0)
	f.closed = true
	return nil
}

// SetError makes subsequent SetDuty calls fail. Nil clears.
func (f *FakeChannel) SetError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// Duties returns a copy of the recorded duties.
func (f *FakeChannel) Duties() []uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint16(nil), f.duties...)
}

// Last returns the most recent duty and whether any was written.
func (f *FakeChannel) Last() (uint16, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.duties) == 0 {
		return 0, false
	}
	return f.duties[len(f.duties)-1], true
}

// Closed reports whether Close was called.
func (f *FakeChannel) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
