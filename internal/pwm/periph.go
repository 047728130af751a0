package pwm

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphChannel drives a hardware PWM pin through periph.io.
type PeriphChannel struct {
	mu     sync.Mutex
	pin    gpio.PinIO
	closed bool
}

// Open initializes the periph host drivers and resolves the pin by name
// (e.g. "GPIO18"). The output starts dark.
func Open(name string) (*PeriphChannel, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("pwm pin %s not found", name)
	}
	c := &PeriphChannel{pin: p}
	if err := c.SetDuty(0); err != nil {
		return nil, err
	}
	return c, nil
}

// SetDuty maps the 16-bit duty onto periph's duty range.
func (c *PeriphChannel) SetDuty(duty uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("pwm %s: closed", c.pin.Name())
	}
	if err := c.pin.PWM(toDuty(duty), Frequency); err != nil {
		return fmt.Errorf("pwm %s: %w", c.pin.Name(), err)
	}
	return nil
}

// Close halts the PWM and parks the pin low. Safe to call more than once.
func (c *PeriphChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.pin.Halt(); err != nil {
		return fmt.Errorf("halt pwm %s: %w", c.pin.Name(), err)
	}
	if err := c.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("park pwm %s: %w", c.pin.Name(), err)
	}
	return nil
}

func toDuty(duty uint16) gpio.Duty {
	return gpio.Duty(uint64(duty) * uint64(gpio.DutyMax) / MaxDuty)
}
