// Command power-bridge mirrors a PC's front-panel power button and LED onto
// the network and shows the inferred power state on a fading status LED.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/power-bridge/internal/fade"
	"github.com/sweeney/power-bridge/internal/gpio"
	"github.com/sweeney/power-bridge/internal/lifecycle"
	"github.com/sweeney/power-bridge/internal/mqtt"
	"github.com/sweeney/power-bridge/internal/power"
	"github.com/sweeney/power-bridge/internal/pwm"
	"github.com/sweeney/power-bridge/internal/relay"
	"github.com/sweeney/power-bridge/internal/status"
	"github.com/sweeney/power-bridge/internal/web"
)

type options struct {
	gpio       gpio.Config
	pwmPin     string
	httpAddr   string
	broker     string
	topic      string
	heartbeat  time.Duration
	printState bool
}

func main() {
	var opts options
	flag.StringVar(&opts.gpio.Chip, "chip", gpio.DefaultChip, "GPIO character device")
	flag.IntVar(&opts.gpio.PinLED, "pin-led", gpio.DefaultPinLED, "line offset of the power LED input")
	flag.IntVar(&opts.gpio.PinButtonIn, "pin-button-in", gpio.DefaultPinButtonIn, "line offset of the local button input")
	flag.IntVar(&opts.gpio.PinButtonOut, "pin-button-out", gpio.DefaultPinButtonOut, "line offset of the host button output")
	flag.StringVar(&opts.pwmPin, "pwm-pin", pwm.DefaultPin, "PWM pin name for the status LED")
	flag.StringVar(&opts.httpAddr, "http", web.DefaultAddr, "control endpoint address")
	flag.StringVar(&opts.broker, "broker", "", "MQTT broker address (empty to disable)")
	flag.StringVar(&opts.topic, "topic", mqtt.DefaultTopic, "MQTT topic prefix")
	flag.DurationVar(&opts.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.BoolVar(&opts.printState, "print-state", false, "Print current input levels and exit")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")

	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("invalid -log-level: %v", err)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := run(opts); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(opts options) error {
	pins, err := gpio.Open(opts.gpio)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}

	if opts.printState {
		defer pins.Close()
		return printState(os.Stdout, pins)
	}

	led, err := pwm.Open(opts.pwmPin)
	if err != nil {
		pins.Close()
		return fmt.Errorf("init pwm: %w", err)
	}

	var publisher eventSink = mqtt.Discard{}
	if opts.broker != "" {
		publisher = mqtt.NewRealPublisher(opts.broker, opts.topic)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return serve(opts, hardware{pins: pins, led: led, publisher: publisher}, sigCh)
}

// eventSink is an MQTT publisher that can report its link state.
type eventSink interface {
	mqtt.Publisher
	mqtt.ConnectionStatus
}

// hardware bundles the opened facades so serve can run against fakes.
type hardware struct {
	pins      gpio.Pins
	led       pwm.Channel
	publisher eventSink
}

// serve wires the tasks, runs them until a signal or a task failure, and
// tears everything down. Ownership of hw passes to serve.
func serve(opts options, hw hardware, sig <-chan os.Signal) error {
	start := time.Now()
	cell := power.NewCell()

	tracker := status.NewTracker(cell, start, status.Config{
		PollMs:      power.PollInterval.Milliseconds(),
		HeartbeatMs: opts.heartbeat.Milliseconds(),
		Broker:      opts.broker,
		Topic:       opts.topic,
		HTTPAddr:    opts.httpAddr,
		PWMPin:      opts.pwmPin,
	})
	if info := networkInfo(); info != nil {
		tracker.SetNetwork(info)
	}

	rel := relay.New(hw.pins)
	group := lifecycle.New()

	// Teardown is registered before the bind so a bind failure still leaves
	// the hardware de-energized.
	var srv *web.Server
	group.OnShutdown("listener", func() error {
		if srv == nil {
			return nil
		}
		return srv.Close()
	})
	group.OnShutdown("pwm", func() error {
		if err := hw.led.SetDuty(0); err != nil {
			log.WithError(err).Debug("pwm: final duty write failed")
		}
		return hw.led.Close()
	})
	group.OnShutdown("button", func() error {
		return hw.pins.SetButton(false)
	})
	group.OnShutdown("gpio", hw.pins.Close)
	group.OnShutdown("mqtt", hw.publisher.Close)

	srv, err := web.Listen(opts.httpAddr, cell, rel, relay.PulseDuration)
	if err != nil {
		group.Shutdown()
		return fmt.Errorf("start http: %w", err)
	}

	publishSystem(hw.publisher, tracker, "STARTUP", "")

	hook := func(tr power.Transition, counts power.Counts) {
		tracker.RecordTransition(tr, counts)
		entry := log.WithFields(log.Fields{
			"from":       tr.From.String(),
			"to":         tr.To.String(),
			"lit":        tr.Lit,
			"elapsed_ms": tr.Elapsed.Milliseconds(),
			"edge":       tr.Edge,
		})
		if !tr.Changed() {
			entry.Debug("power: led edge")
			return
		}
		entry.Info("power: state changed")
		if err := hw.publisher.Publish(tr); err != nil {
			log.WithError(err).Warn("mqtt: publish failed")
		}
	}
	monitor := power.NewMonitor(hw.pins, cell, time.Now, hook)
	animator := fade.New(cell, hw.led)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reason := "ERROR"
	group.Go("signals", func(ctx context.Context) error {
		select {
		case s := <-sig:
			reason = signalName(s)
			log.WithField("signal", reason).Info("shutting down")
			cancel()
		case <-ctx.Done():
		}
		return nil
	})
	group.Go("classifier", func(ctx context.Context) error {
		ticker := time.NewTicker(power.PollInterval)
		defer ticker.Stop()
		return monitor.Run(ctx, ticker.C)
	})
	group.Go("relay", func(ctx context.Context) error {
		ticker := time.NewTicker(relay.PollInterval)
		defer ticker.Stop()
		return rel.Run(ctx, ticker.C)
	})
	group.Go("fade", animator.Run)
	group.Go("http", srv.Serve)
	if opts.heartbeat > 0 {
		group.Go("heartbeat", func(ctx context.Context) error {
			ticker := time.NewTicker(opts.heartbeat)
			defer ticker.Stop()
			return heartbeat(ctx, ticker.C, hw.publisher, tracker)
		})
	}

	log.WithFields(log.Fields{
		"http":      srv.Addr().String(),
		"ip":        localIP(tracker.Snapshot().Network),
		"broker":    opts.broker,
		"heartbeat": opts.heartbeat,
	}).Info("started")
	log.Debugf("status:\n%s", status.FormatJSON(tracker.Snapshot()))

	runErr := group.Run(ctx)

	publishSystem(hw.publisher, tracker, "SHUTDOWN", reason)
	if err := group.Shutdown(); err != nil {
		log.WithError(err).Warn("teardown finished with errors")
	}
	return runErr
}

// heartbeat publishes a status snapshot on every tick until ctx is done.
func heartbeat(ctx context.Context, tick <-chan time.Time, pub eventSink, tracker *status.Tracker) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			if info := networkInfo(); info != nil {
				tracker.SetNetwork(info)
			}
			snap := publishSystem(pub, tracker, "HEARTBEAT", "")
			log.WithFields(log.Fields{
				"power":    snap.Power.String(),
				"uptime":   snap.Uptime().Round(time.Second),
				"on":       snap.Counts.On,
				"off":      snap.Counts.Off,
				"sleeping": snap.Counts.Sleeping,
			}).Info("heartbeat")
		}
	}
}

// publishSystem refreshes the MQTT link state, snapshots the tracker and
// publishes a system event. Failures are logged only.
func publishSystem(pub eventSink, tracker *status.Tracker, event, reason string) status.Snapshot {
	tracker.SetMQTTConnected(pub.IsConnected())
	snap := tracker.Snapshot()
	err := pub.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.WithError(err).WithField("event", event).Warn("mqtt: system event publish failed")
	} else {
		log.WithField("event", event).Debug("mqtt: system event published")
	}
	return snap
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

func printState(w io.Writer, pins gpio.Pins) error {
	lit, err := pins.LEDLit()
	if err != nil {
		return fmt.Errorf("read led: %w", err)
	}
	pressed, err := pins.ButtonPressed()
	if err != nil {
		return fmt.Errorf("read button: %w", err)
	}
	fmt.Fprintf(w, "LED: %s, BUTTON: %s\n", onOff(lit), onOff(pressed))
	return nil
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// networkInfo prefers what pi-helper reports and otherwise falls back to the
// first non-loopback IPv4 address on the host.
func networkInfo() *status.NetworkInfo {
	if info := readNetworkInfo(); info != nil {
		return info
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	if ip := firstIPv4(addrs); ip != "" {
		return &status.NetworkInfo{IP: ip}
	}
	return nil
}

func firstIPv4(addrs []net.Addr) string {
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}

func localIP(info *status.NetworkInfo) string {
	if info == nil || info.IP == "" {
		return "unknown"
	}
	return info.IP
}
