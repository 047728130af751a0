// Package fade renders the power state onto the status LED.
//
// On and Off are flat brightness levels. Sleeping is shown as a slow
// breathing fade that aborts within one step when the state changes.
package fade

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/power-bridge/internal/power"
	"github.com/sweeney/power-bridge/internal/pwm"
)

const (
	SupervisoryInterval = 200 * time.Millisecond
	StepInterval        = 5 * time.Millisecond

	// Breathing range and increment. Each ramp is 752 steps of 5ms.
	BreathMin  = 1024
	BreathMax  = 49152
	BreathStep = 64
)

// StateReader is satisfied by *power.Cell.
type StateReader interface {
	Load() power.State
}

// Sleeper waits for d and reports whether to continue (false => cancelled).
type Sleeper func(ctx context.Context, d time.Duration) bool

// Animator drives a PWM channel from the shared power state.
type Animator struct {
	state StateReader
	out   pwm.Channel
	sleep Sleeper

	applied     uint16
	haveApplied bool
}

// New creates an animator using wall-clock sleeps.
func New(state StateReader, out pwm.Channel) *Animator {
	return &Animator{state: state, out: out, sleep: sleepCtx}
}

// Run renders the state until ctx is done.
func (a *Animator) Run(ctx context.Context) error {
	for {
		switch a.state.Load() {
		case power.Sleeping:
			if !a.breathe(ctx) {
				if ctx.Err() != nil {
					return nil
				}
				// State changed mid-ramp: render the new state right away.
				continue
			}
		case power.On:
			a.hold(pwm.MaxDuty)
		default:
			a.hold(0)
		}

		if !a.sleep(ctx, SupervisoryInterval) {
			return nil
		}
	}
}

// breathe runs one full up+down cycle. It returns false if the state left
// Sleeping or ctx was cancelled before the cycle completed.
func (a *Animator) breathe(ctx context.Context) bool {
	tick := func() bool { return a.sleep(ctx, StepInterval) }
	if !ramp(BreathMin, BreathMax, BreathStep, a.sleeping, tick, a.set) {
		return false
	}
	return ramp(BreathMax, BreathMin, -BreathStep, a.sleeping, tick, a.set)
}

func (a *Animator) sleeping() bool {
	return a.state.Load() == power.Sleeping
}

// ramp walks from 'from' toward 'to' (exclusive) in increments of step.
// Before every step it asks ok(); after every step it waits via tick.
func ramp(from, to, step int, ok func() bool, tick func() bool, set func(uint16)) bool {
	for duty := from; (step > 0 && duty < to) || (step < 0 && duty > to); duty += step {
		if !ok() {
			return false
		}
		set(uint16(duty))
		if !tick() {
			return false
		}
	}
	return true
}

// hold writes a flat duty, skipping the write if it is already applied.
func (a *Animator) hold(duty uint16) {
	if a.haveApplied && a.applied == duty {
		return
	}
	a.set(duty)
}

func (a *Animator) set(duty uint16) {
	if err := a.out.SetDuty(duty); err != nil {
		// Retried on the next cycle.
		a.haveApplied = false
		log.WithError(err).Warn("fade: set duty failed")
		return
	}
	a.applied = duty
	a.haveApplied = true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
