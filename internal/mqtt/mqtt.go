// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/power-bridge/internal/power"
)

// DefaultTopic is the default topic prefix.
const DefaultTopic = "home/pc/power"

// StateTopic is the retained topic carrying power state changes.
func StateTopic(prefix string) string { return prefix + "/state" }

// SystemTopic is the topic for system lifecycle events.
func SystemTopic(prefix string) string { return prefix + "/system" }

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a power state change to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(tr power.Transition) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
}

// Payload represents the MQTT message payload for a state change.
type Payload struct {
	Power PowerPayload `json:"power"`
}

// PowerPayload contains the transition details.
type PowerPayload struct {
	Timestamp string `json:"timestamp"`
	State     string `json:"state"`
	Previous  string `json:"previous"`
	Lit       bool   `json:"lit"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Edge      bool   `json:"edge"`
}

// FormatPayload creates the JSON payload for a transition.
func FormatPayload(tr power.Transition) ([]byte, error) {
	payload := Payload{
		Power: PowerPayload{
			Timestamp: tr.Time.UTC().Format(time.RFC3339),
			State:     tr.To.String(),
			Previous:  tr.From.String(),
			Lit:       tr.Lit,
			ElapsedMs: tr.Elapsed.Milliseconds(),
			Edge:      tr.Edge,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is used for simple events (LWT, RECONNECTED) that don't
// carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Discard is a Publisher used when no broker is configured.
type Discard struct{}

func (Discard) Publish(power.Transition) error { return nil }
func (Discard) PublishSystem(SystemEvent) error { return nil }
func (Discard) Close() error                    { return nil }
func (Discard) IsConnected() bool               { return false }
