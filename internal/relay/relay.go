// Package relay mirrors the local power button onto the host's power switch.
package relay

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	PollInterval  = 100 * time.Millisecond
	PulseDuration = 100 * time.Millisecond
)

// Button is the slice of the GPIO facade the relay needs.
type Button interface {
	ButtonPressed() (bool, error)
	SetButton(active bool) error
}

// Relay follows the local button level and can inject synthetic presses.
type Relay struct {
	mu      sync.Mutex
	button  Button
	pressed bool
	active  bool
}

// New creates a relay with the output inactive.
func New(button Button) *Relay {
	return &Relay{button: button}
}

// Run mirrors the local button on every tick until ctx is done.
func (r *Relay) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			r.step()
		}
	}
}

func (r *Relay) step() {
	r.mu.Lock()
	defer r.mu.Unlock()

	pressed, err := r.button.ButtonPressed()
	if err != nil {
		log.WithError(err).Debug("relay: button read failed")
		pressed = r.pressed
	}
	r.pressed = pressed

	if pressed == r.active {
		return
	}
	if err := r.button.SetButton(pressed); err != nil {
		log.WithError(err).Warn("relay: set output failed")
		return
	}
	r.active = pressed
	log.WithField("pressed", pressed).Debug("relay: output follows button")
}

// Pulse presses the host's power button for d. The release always runs,
// even if ctx is cancelled during the hold.
func (r *Relay) Pulse(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.button.SetButton(true); err != nil {
		return err
	}
	r.active = true

	t := time.NewTimer(d)
	select {
	case <-ctx.Done():
		t.Stop()
	case <-t.C:
	}

	if err := r.button.SetButton(false); err != nil {
		return err
	}
	r.active = false
	return ctx.Err()
}
