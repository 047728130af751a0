//go:build !linux

package gpio

import "errors"

// Lines is not available on non-Linux platforms.
type Lines struct{}

// Open returns an error on non-Linux platforms.
func Open(cfg Config) (*Lines, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

func (l *Lines) LEDLit() (bool, error)        { return false, errors.New("gpio: not supported") }
func (l *Lines) ButtonPressed() (bool, error) { return false, errors.New("gpio: not supported") }
func (l *Lines) SetButton(bool) error         { return errors.New("gpio: not supported") }
func (l *Lines) Close() error                 { return nil }
