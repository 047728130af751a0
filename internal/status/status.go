// Package status provides a thread-safe status tracker for the power-bridge daemon.
// It is read by the MQTT system events and the startup log.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/power-bridge/internal/power"
)

// NetworkInfo contains network state reported by the connectivity provider.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	Topic       string
	HTTPAddr    string
	PWMPin      string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Power          power.State
	Counts         power.Counts
	LastTransition time.Time
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Network        *NetworkInfo
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// PowerSource is satisfied by *power.Cell.
type PowerSource interface {
	Load() power.State
}

// Tracker holds mutable daemon state behind an RWMutex. The power state
// itself is read live from the cell.
type Tracker struct {
	mu     sync.RWMutex
	source PowerSource
	snap   Snapshot
	now    func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(source PowerSource, startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		source: source,
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// RecordTransition stores transition counts and the time of the last state change.
func (t *Tracker) RecordTransition(tr power.Transition, counts power.Counts) {
	t.mu.Lock()
	t.snap.Counts = counts
	if tr.Changed() {
		t.snap.LastTransition = tr.Time
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Power = t.source.Load()
	s.Now = t.now()
	return s
}
