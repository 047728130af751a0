package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/power-bridge/internal/power"
)

const bufferCapacity = 100

// RealPublisher publishes to an actual MQTT broker. Messages published
// while disconnected are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	prefix string

	mu        sync.Mutex
	buf       *outbox
	replaying bool // a replay goroutine owns the outbox until it is empty
}

// NewRealPublisher starts connecting to the broker in the background and
// returns immediately; the connection is retried until Close.
func NewRealPublisher(broker, prefix string) *RealPublisher {
	p := &RealPublisher{
		prefix: prefix,
		buf:    newOutbox(bufferCapacity),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("power-bridge").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(SystemTopic(prefix), string(will), 1, false).
		SetOnConnectHandler(func(paho.Client) { p.flush() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.WithError(err).Warn("mqtt: connection lost")
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	return p
}

// Publish sends a power state change (retained, QoS 1).
func (p *RealPublisher) Publish(tr power.Transition) error {
	payload, err := FormatPayload(tr)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(bufferedMsg{topic: StateTopic(p.prefix), payload: payload, qos: 1, retained: true})
}

// PublishSystem sends a system lifecycle event (QoS 1).
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(bufferedMsg{topic: SystemTopic(p.prefix), payload: payload, qos: 1})
}

// send publishes directly only when connected and no replay is pending, so
// a fresh retained state can never be overtaken by a stale buffered one.
func (p *RealPublisher) send(msg bufferedMsg) error {
	p.mu.Lock()
	if p.replaying || !p.client.IsConnectionOpen() {
		p.buf.push(msg)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.publish(msg)
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// flush starts replaying buffered messages. Runs on paho's connect callback.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	pending := p.buf.len()
	start := !p.replaying
	p.replaying = true
	p.mu.Unlock()

	log.WithField("buffered", pending).Info("mqtt: connected")
	if start {
		// Waiting on a token inside paho's callback would block its router.
		go p.replay()
	}
}

// replay drains the outbox until it is empty, including messages queued
// while it runs. If the link drops mid-replay the unsent tail goes back to
// the front of the outbox for the next connect.
func (p *RealPublisher) replay() {
	for {
		p.mu.Lock()
		msgs := p.buf.drainAll()
		if len(msgs) == 0 {
			p.replaying = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		for i, m := range msgs {
			err := p.publish(m)
			if err == nil {
				continue
			}
			log.WithError(err).Warn("mqtt: replay failed")
			if !p.client.IsConnectionOpen() {
				p.mu.Lock()
				p.buf.restore(msgs[i:])
				p.replaying = false
				p.mu.Unlock()
				return
			}
		}
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second grace
	return nil
}
