package fade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/power-bridge/internal/power"
	"github.com/sweeney/power-bridge/internal/pwm"
)

// fakeState is read and written only from the Run goroutine.
type fakeState struct {
	s power.State
}

func (f *fakeState) Load() power.State { return f.s }

// script drives the animator synchronously: onStep runs on every step
// sleep, onSuper on every supervisory sleep. Returning false stops Run.
type script struct {
	steps   int
	supers  int
	onStep  func(n int) bool
	onSuper func(n int) bool
}

func (s *script) sleep(_ context.Context, d time.Duration) bool {
	switch d {
	case StepInterval:
		s.steps++
		if s.onStep != nil {
			return s.onStep(s.steps)
		}
		return true
	case SupervisoryInterval:
		s.supers++
		if s.onSuper != nil {
			return s.onSuper(s.supers)
		}
		return false
	}
	return false
}

func newTestAnimator(st *fakeState, sc *script) (*Animator, *pwm.FakeChannel) {
	out := pwm.NewFakeChannel()
	a := New(st, out)
	a.sleep = sc.sleep
	return a, out
}

func TestOnHoldsFullBrightness(t *testing.T) {
	st := &fakeState{s: power.On}
	sc := &script{onSuper: func(n int) bool { return n < 5 }}
	a, out := newTestAnimator(st, sc)

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	duties := out.Duties()
	if len(duties) != 1 {
		t.Fatalf("flat state should be written once, got %v", duties)
	}
	if duties[0] != pwm.MaxDuty {
		t.Errorf("expected %d, got %d", pwm.MaxDuty, duties[0])
	}
	if sc.supers != 5 {
		t.Errorf("expected 5 supervisory cycles, got %d", sc.supers)
	}
}

func TestOffIsDark(t *testing.T) {
	st := &fakeState{s: power.Off}
	a, out := newTestAnimator(st, &script{})

	a.Run(context.Background())

	if last, ok := out.Last(); !ok || last != 0 {
		t.Errorf("expected duty 0, got %d (written=%v)", last, ok)
	}
}

func TestFlatStateSwitch(t *testing.T) {
	st := &fakeState{s: power.Off}
	sc := &script{onSuper: func(n int) bool {
		if n == 2 {
			st.s = power.On
		}
		return n < 4
	}}
	a, out := newTestAnimator(st, sc)

	a.Run(context.Background())

	duties := out.Duties()
	if len(duties) != 2 || duties[0] != 0 || duties[1] != pwm.MaxDuty {
		t.Errorf("expected [0 %d], got %v", pwm.MaxDuty, duties)
	}
}

func TestBreathingCycle(t *testing.T) {
	st := &fakeState{s: power.Sleeping}
	sc := &script{onSuper: func(n int) bool {
		// One uninterrupted cycle, then wake up.
		st.s = power.Off
		return n < 2
	}}
	a, out := newTestAnimator(st, sc)

	a.Run(context.Background())

	duties := out.Duties()
	rampLen := (BreathMax - BreathMin) / BreathStep
	if len(duties) != 2*rampLen+1 {
		t.Fatalf("expected %d duties, got %d", 2*rampLen+1, len(duties))
	}
	if sc.steps != 2*rampLen {
		t.Errorf("expected %d step sleeps, got %d", 2*rampLen, sc.steps)
	}

	up := duties[:rampLen]
	down := duties[rampLen : 2*rampLen]
	if up[0] != BreathMin {
		t.Errorf("ramp should start at %d, got %d", BreathMin, up[0])
	}
	if down[0] != BreathMax {
		t.Errorf("down ramp should start at %d, got %d", BreathMax, down[0])
	}
	for i := 1; i < len(up); i++ {
		if up[i] < up[i-1] {
			t.Fatalf("up ramp decreased at step %d: %d -> %d", i, up[i-1], up[i])
		}
	}
	for i := 1; i < len(down); i++ {
		if down[i] > down[i-1] {
			t.Fatalf("down ramp increased at step %d: %d -> %d", i, down[i-1], down[i])
		}
	}
	for i, d := range duties[:2*rampLen] {
		if d < BreathMin || d > BreathMax {
			t.Errorf("duty %d out of range at step %d", d, i)
		}
	}
	if duties[len(duties)-1] != 0 {
		t.Errorf("expected dark after waking to Off, got %d", duties[len(duties)-1])
	}
}

func TestBreathingAbortsWithinOneStep(t *testing.T) {
	st := &fakeState{s: power.Sleeping}
	sc := &script{
		onStep: func(n int) bool {
			if n == 10 {
				st.s = power.On
			}
			return true
		},
	}
	a, out := newTestAnimator(st, sc)

	a.Run(context.Background())

	duties := out.Duties()
	if len(duties) != 11 {
		t.Fatalf("expected 10 ramp steps then flat, got %d duties", len(duties))
	}
	for i := 0; i < 10; i++ {
		want := uint16(BreathMin + i*BreathStep)
		if duties[i] != want {
			t.Errorf("step %d: got %d, want %d", i, duties[i], want)
		}
	}
	if duties[10] != pwm.MaxDuty {
		t.Errorf("expected immediate switch to full brightness, got %d", duties[10])
	}
	if sc.steps != 10 {
		t.Errorf("no step should run after the change, got %d step sleeps", sc.steps)
	}
}

func TestBreathingAbortsOnDownRamp(t *testing.T) {
	rampLen := (BreathMax - BreathMin) / BreathStep
	st := &fakeState{s: power.Sleeping}
	sc := &script{
		onStep: func(n int) bool {
			if n == rampLen+3 {
				st.s = power.Off
			}
			return true
		},
	}
	a, out := newTestAnimator(st, sc)

	a.Run(context.Background())

	duties := out.Duties()
	if len(duties) != rampLen+3+1 {
		t.Fatalf("expected %d duties, got %d", rampLen+4, len(duties))
	}
	if duties[len(duties)-1] != 0 {
		t.Errorf("expected dark after abort, got %d", duties[len(duties)-1])
	}
}

func TestCancelDuringBreathing(t *testing.T) {
	st := &fakeState{s: power.Sleeping}
	ctx, cancel := context.WithCancel(context.Background())
	sc := &script{
		onStep: func(n int) bool {
			if n == 3 {
				cancel()
				return false
			}
			return true
		},
	}
	a, out := newTestAnimator(st, sc)

	if err := a.Run(ctx); err != nil {
		t.Errorf("Run returned error: %v", err)
	}
	if got := len(out.Duties()); got != 3 {
		t.Errorf("expected 3 duties before cancel, got %d", got)
	}
}

func TestSetDutyErrorRetried(t *testing.T) {
	st := &fakeState{s: power.On}
	sc := &script{}
	a, out := newTestAnimator(st, sc)
	out.SetError(errors.New("pwm busy"))
	sc.onSuper = func(n int) bool {
		if n == 1 {
			out.SetError(nil)
		}
		return n < 3
	}

	a.Run(context.Background())

	duties := out.Duties()
	if len(duties) != 1 || duties[0] != pwm.MaxDuty {
		t.Errorf("expected one successful write after retry, got %v", duties)
	}
}

func TestRunWithRealSleepStops(t *testing.T) {
	st := &fakeState{s: power.Off}
	out := pwm.NewFakeChannel()
	a := New(st, out)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context deadline")
	}
}
