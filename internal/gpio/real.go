//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Lines drives the front-panel pins through the Linux GPIO character device.
type Lines struct {
	chip      *gpiocdev.Chip
	led       *gpiocdev.Line
	buttonIn  *gpiocdev.Line
	buttonOut *gpiocdev.Line
}

// Open requests the three lines. The button output starts idle (raw high).
func Open(cfg Config) (*Lines, error) {
	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", cfg.Chip, err)
	}
	l := &Lines{chip: chip}

	// Both inputs are open-collector style sources; pull-up keeps them idle high.
	l.led, err = chip.RequestLine(cfg.PinLED, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("request LED pin %d: %w", cfg.PinLED, err)
	}

	l.buttonIn, err = chip.RequestLine(cfg.PinButtonIn, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("request button input pin %d: %w", cfg.PinButtonIn, err)
	}

	l.buttonOut, err = chip.RequestLine(cfg.PinButtonOut, gpiocdev.AsOutput(1))
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("request button output pin %d: %w", cfg.PinButtonOut, err)
	}

	return l, nil
}

// LEDLit inverts the raw level: raw 0 = lit.
func (l *Lines) LEDLit() (bool, error) {
	raw, err := l.led.Value()
	if err != nil {
		return false, fmt.Errorf("read LED pin: %w", err)
	}
	return raw == 0, nil
}

// ButtonPressed inverts the raw level: raw 0 = pressed.
func (l *Lines) ButtonPressed() (bool, error) {
	raw, err := l.buttonIn.Value()
	if err != nil {
		return false, fmt.Errorf("read button pin: %w", err)
	}
	return raw == 0, nil
}

// SetButton drives the output low while active.
func (l *Lines) SetButton(active bool) error {
	raw := 1
	if active {
		raw = 0
	}
	if err := l.buttonOut.SetValue(raw); err != nil {
		return fmt.Errorf("set button output: %w", err)
	}
	return nil
}

// Close forces the button output idle before releasing the lines.
// Safe to call more than once.
func (l *Lines) Close() error {
	var errs []error

	if l.buttonOut != nil {
		if err := l.buttonOut.SetValue(1); err != nil {
			errs = append(errs, fmt.Errorf("idle button output: %w", err))
		}
		if err := l.buttonOut.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button output: %w", err))
		}
		l.buttonOut = nil
	}
	if l.led != nil {
		if err := l.led.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close LED line: %w", err))
		}
		l.led = nil
	}
	if l.buttonIn != nil {
		if err := l.buttonIn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button input line: %w", err))
		}
		l.buttonIn = nil
	}
	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		l.chip = nil
	}

	return errors.Join(errs...)
}
