// Package gpio provides the digital side of the hardware facade.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Pins reads the front-panel inputs and drives the relayed button.
// All values are logical: the active-low inversion happens in the implementation.
type Pins interface {
	// LEDLit reports whether the host's power LED is lit.
	LEDLit() (bool, error)

	// ButtonPressed reports whether the local power button is held.
	ButtonPressed() (bool, error)

	// SetButton drives the host's power button line (true = pressed).
	SetButton(active bool) error

	// Close releases the output to idle and frees GPIO resources.
	Close() error
}

// Default pin offsets on gpiochip0 (BCM numbering).
const (
	DefaultChip         = "gpiochip0"
	DefaultPinLED       = 17 // power LED sense, active low
	DefaultPinButtonIn  = 27 // local button, active low
	DefaultPinButtonOut = 22 // relay to host power switch, active low
)

// Config selects the chip and line offsets.
type Config struct {
	Chip         string
	PinLED       int
	PinButtonIn  int
	PinButtonOut int
}

// DefaultConfig returns the stock wiring.
func DefaultConfig() Config {
	return Config{
		Chip:         DefaultChip,
		PinLED:       DefaultPinLED,
		PinButtonIn:  DefaultPinButtonIn,
		PinButtonOut: DefaultPinButtonOut,
	}
}
