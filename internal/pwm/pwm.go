// Package pwm drives the status LED's brightness.
package pwm

import "periph.io/x/conn/v3/physic"

// Channel sets the duty cycle of a PWM output.
type Channel interface {
	// SetDuty sets the duty cycle, 0 (dark) to MaxDuty (full).
	SetDuty(duty uint16) error

	// Close de-energizes the output.
	Close() error
}

const (
	MaxDuty = 65535

	// Frequency is fixed; the fade only varies the duty.
	Frequency = 1 * physic.KiloHertz

	DefaultPin = "GPIO18"
)
