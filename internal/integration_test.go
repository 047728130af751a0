package internal

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/power-bridge/internal/fade"
	"github.com/sweeney/power-bridge/internal/gpio"
	"github.com/sweeney/power-bridge/internal/mqtt"
	"github.com/sweeney/power-bridge/internal/power"
	"github.com/sweeney/power-bridge/internal/pwm"
	"github.com/sweeney/power-bridge/internal/relay"
	"github.com/sweeney/power-bridge/internal/status"
	"github.com/sweeney/power-bridge/internal/web"
)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Only the monitor goroutine calls it.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// levels returns n copies of lit.
func levels(lit bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = lit
	}
	return out
}

// rig wires the classifier, status tracker and MQTT fake the way the
// command does.
type rig struct {
	pins      *gpio.FakePins
	cell      *power.Cell
	monitor   *power.Monitor
	tracker   *status.Tracker
	publisher *mqtt.FakePublisher
}

func newRig(samples []bool) *rig {
	r := &rig{
		pins:      gpio.NewFakePins(samples...),
		cell:      power.NewCell(),
		publisher: mqtt.NewFakePublisher(),
	}
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.tracker = status.NewTracker(r.cell, start, status.Config{PollMs: 100})
	r.monitor = power.NewMonitor(r.pins, r.cell, fakeClock(start, power.PollInterval), func(tr power.Transition, counts power.Counts) {
		r.tracker.RecordTransition(tr, counts)
		if tr.Changed() {
			r.publisher.Publish(tr)
		}
	})
	return r
}

// poll feeds n ticks to the monitor and returns once all are processed.
func (r *rig) poll(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- r.monitor.Run(ctx, tick) }()

	for i := 0; i < n; i++ {
		tick <- time.Time{}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("monitor: %v", err)
	}
}

func get(t *testing.T, addr, path string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("GET " + path + " HTTP/1.1\r\nHost: bridge\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	data, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	resp := string(data)
	if i := strings.Index(resp, "\r\n\r\n"); i >= 0 {
		return resp[i+4:]
	}
	return ""
}

// sleepingBlink is a lit LED followed by two 600ms half-periods.
func sleepingBlink() []bool {
	var s []bool
	s = append(s, levels(true, 6)...)  // t=100..600ms: first edge -> on
	s = append(s, levels(false, 6)...) // t=700ms: 600ms since last edge -> sleeping
	s = append(s, levels(true, 1)...)  // t=1300ms: still sleeping
	return s
}

// TestIntegrationSleepingThenOn drives the LED through a sleep blink and a
// steady lit period, checking the state seen by /status and MQTT.
func TestIntegrationSleepingThenOn(t *testing.T) {
	samples := append(sleepingBlink(), levels(true, 10)...)
	r := newRig(samples)

	rel := relay.New(r.pins)
	srv, err := web.Listen("127.0.0.1:0", r.cell, rel, relay.PulseDuration)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)
	defer srv.Close()
	addr := srv.Addr().String()

	r.poll(t, 6)
	if got := get(t, addr, "/status"); got != `{"power": "on"}` {
		t.Errorf("after steady lit: got %s", got)
	}

	r.poll(t, 7)
	if got := get(t, addr, "/status"); got != `{"power": "sleeping"}` {
		t.Errorf("during blink: got %s", got)
	}

	// Lit since t=1300ms; sleeping expires once more than 750ms pass.
	r.poll(t, 7)
	if r.cell.Load() != power.Sleeping {
		t.Errorf("at t=2000ms: got %s, want sleeping", r.cell.Load())
	}
	r.poll(t, 1)
	if got := get(t, addr, "/status"); got != `{"power": "on"}` {
		t.Errorf("after expiry: got %s", got)
	}

	var tos []power.State
	for _, tr := range r.publisher.Transitions {
		tos = append(tos, tr.To)
	}
	want := []power.State{power.On, power.Sleeping, power.On}
	if len(tos) != len(want) {
		t.Fatalf("published %v, want %v", tos, want)
	}
	for i := range want {
		if tos[i] != want[i] {
			t.Errorf("transition %d: got %s, want %s", i, tos[i], want[i])
		}
	}
	if last := r.publisher.Transitions[2]; last.Edge {
		t.Error("expiry transition should not be an edge")
	}

	snap := r.tracker.Snapshot()
	if snap.Counts.On != 2 || snap.Counts.Sleeping != 1 {
		t.Errorf("counts: got %+v", snap.Counts)
	}

	var payload map[string]map[string]interface{}
	if err := json.Unmarshal(r.publisher.Payloads[1], &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["power"]["state"] != "sleeping" || payload["power"]["previous"] != "on" {
		t.Errorf("sleeping payload: got %v", payload["power"])
	}
}

// TestIntegrationToggle presses the host button through the HTTP endpoint.
func TestIntegrationToggle(t *testing.T) {
	pins := gpio.NewFakePins(false)
	rel := relay.New(pins)

	srv, err := web.Listen("127.0.0.1:0", power.NewCell(), rel, relay.PulseDuration)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)
	defer srv.Close()

	start := time.Now()
	if got := get(t, srv.Addr().String(), "/toggle"); got != `{"result": "power toggled"}` {
		t.Errorf("toggle body: got %s", got)
	}
	if elapsed := time.Since(start); elapsed < relay.PulseDuration {
		t.Errorf("response came after %v, before the pulse finished", elapsed)
	}

	writes := pins.Writes()
	if len(writes) != 2 || !writes[0] || writes[1] {
		t.Errorf("button writes: got %v, want [true false]", writes)
	}
	if pins.Active() {
		t.Error("button should be released after the pulse")
	}
}

// TestIntegrationRelayMirrorsButton holds the local button across relay ticks.
func TestIntegrationRelayMirrorsButton(t *testing.T) {
	pins := gpio.NewFakePins(false)
	rel := relay.New(pins)

	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- rel.Run(ctx, tick) }()

	pins.SetPressed(true)
	tick <- time.Time{}
	tick <- time.Time{}
	pins.SetPressed(false)
	tick <- time.Time{}
	tick <- time.Time{}
	cancel()
	<-done

	writes := pins.Writes()
	if len(writes) != 2 || !writes[0] || writes[1] {
		t.Errorf("button writes: got %v, want [true false]", writes)
	}
}

// TestIntegrationFadeFollowsState renders the classified state onto the PWM fake.
func TestIntegrationFadeFollowsState(t *testing.T) {
	samples := append(sleepingBlink(), levels(true, 10)...)
	r := newRig(samples)
	led := pwm.NewFakeChannel()
	animator := fade.New(r.cell, led)

	r.poll(t, 13)
	if r.cell.Load() != power.Sleeping {
		t.Fatalf("setup: got %s, want sleeping", r.cell.Load())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- animator.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	waitFor(t, func() bool { return len(led.Duties()) >= 10 })
	for i, d := range led.Duties()[:10] {
		if d < fade.BreathMin || d >= fade.BreathMax {
			t.Errorf("duty %d: %d outside breathing range", i, d)
		}
	}

	r.poll(t, 8)
	if r.cell.Load() != power.On {
		t.Fatalf("got %s, want on", r.cell.Load())
	}
	waitFor(t, func() bool {
		d, _ := led.Last()
		return d == pwm.MaxDuty
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
