//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"zigbee-ezsp-host/internal/coordinator"
	"zigbee-ezsp-host/internal/ezsp"
	"zigbee-ezsp-host/internal/store"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker           string
	Username         string
	Password         string
	TopicPrefix      string
	ClientID         string
	CountersInterval time.Duration
}

// Controller is the part of the coordinator the bridge drives.
type Controller interface {
	Context() context.Context
	Events() *ezsp.EventBus
	Info() coordinator.Info
	PermitJoin(ctx context.Context, duration uint8) error
	Counters(ctx context.Context) (map[string]uint64, error)
	Backup(ctx context.Context) (*store.NetworkBackup, error)
}

const requestTimeout = 10 * time.Second

// Bridge mirrors engine events to MQTT and accepts bridge requests.
//
// Topics under the prefix:
//
//	bridge/state              online/offline, retained, also the will
//	bridge/coordinator        coordinator state JSON, retained
//	bridge/request/<name>     permit_join, counters, backup, remove_discovery
//	bridge/response/<name>    {"status":"ok"|"error", ...}
//	events/<type>             every engine event as JSON
type Bridge struct {
	client pahomqtt.Client
	ctrl   Controller
	prefix string
	logger *slog.Logger
	unsub  func()

	countersInterval time.Duration
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup

	// Coordinator state accumulator published on bridge/coordinator.
	mu          sync.Mutex
	state       map[string]any
	permitTimer *time.Timer
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(ctrl Controller, cfg Config, logger *slog.Logger) (*Bridge, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "ezsp-host"
	}
	b := newBridge(ctrl, cfg, logger)

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(b.topic("bridge/state"), "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

func newBridge(ctrl Controller, cfg Config, logger *slog.Logger) *Bridge {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "ezsp"
	}
	if cfg.CountersInterval <= 0 {
		cfg.CountersInterval = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		ctrl:             ctrl,
		prefix:           strings.TrimSuffix(cfg.TopicPrefix, "/"),
		logger:           logger.With("component", "mqtt"),
		countersInterval: cfg.CountersInterval,
		ctx:              ctx,
		cancel:           cancel,
		state:            make(map[string]any),
	}
}

// Start subscribes to engine events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.syncInfo()
	b.unsub = b.ctrl.Events().OnAll(b.handleEvent)
	b.wg.Add(1)
	go b.publishCounters()
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	b.cancel()
	if b.unsub != nil {
		b.unsub()
	}
	b.wg.Wait()
	b.mu.Lock()
	if b.permitTimer != nil {
		b.permitTimer.Stop()
	}
	b.mu.Unlock()
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) topic(suffix string) string {
	return b.prefix + "/" + suffix
}

func (b *Bridge) onConnect() {
	b.publishBridgeState("online")
	for _, msg := range buildDiscovery(b.ctrl.Info(), b.prefix) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.publishState()
	b.client.Subscribe(b.topic("bridge/request/+"), 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		name := strings.TrimPrefix(msg.Topic(), b.topic("bridge/request/"))
		payload := msg.Payload()
		// Requests run engine commands; paho's router must not block on them.
		go b.handleRequest(name, payload)
	})
}

// handleEvent runs on the engine's receive goroutine. It only publishes.
func (b *Bridge) handleEvent(ev ezsp.Event) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		b.logger.Warn("marshal event", "type", ev.Type, "err", err)
		return
	}
	b.publish(b.topic("events/"+string(ev.Type)), payload, false)

	switch ev.Type {
	case coordinator.EventNetworkState:
		data, ok := ev.Data.(coordinator.NetworkStateEvent)
		if !ok {
			return
		}
		b.mu.Lock()
		b.state["network"] = data.State
		if data.State == coordinator.StateUp {
			b.state["channel"] = data.Channel
			b.state["pan_id"] = fmt.Sprintf("0x%04X", data.PanID)
		}
		b.mu.Unlock()
		b.publishState()
	case coordinator.EventPermitJoin:
		data, ok := ev.Data.(coordinator.PermitJoinEvent)
		if !ok {
			return
		}
		b.setPermitJoin(data.Duration)
	}
}

// setPermitJoin flags the network open and clears the flag once the
// duration runs out. 255 never expires.
func (b *Bridge) setPermitJoin(duration uint8) {
	b.mu.Lock()
	if b.permitTimer != nil {
		b.permitTimer.Stop()
		b.permitTimer = nil
	}
	b.state["permit_join"] = duration > 0
	if duration > 0 && duration < 0xFF {
		b.permitTimer = time.AfterFunc(time.Duration(duration)*time.Second, func() {
			b.mu.Lock()
			b.state["permit_join"] = false
			b.permitTimer = nil
			b.mu.Unlock()
			b.publishState()
		})
	}
	b.mu.Unlock()
	b.publishState()
}

func (b *Bridge) syncInfo() {
	info := b.ctrl.Info()
	b.mu.Lock()
	if info.Started {
		b.state["network"] = coordinator.StateUp
		b.state["channel"] = info.Channel
		b.state["pan_id"] = fmt.Sprintf("0x%04X", info.PanID)
	} else {
		b.state["network"] = coordinator.StateDown
	}
	b.state["permit_join"] = false
	if info.EUI64 != "" {
		b.state["eui64"] = info.EUI64
	}
	b.mu.Unlock()
}

func (b *Bridge) publishState() {
	b.mu.Lock()
	payload := mustJSON(b.state)
	b.mu.Unlock()
	b.publish(b.topic("bridge/coordinator"), payload, true)
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.topic("bridge/state"), []byte(state), true)
}

// publishCounters folds the counters into the coordinator state on every tick.
func (b *Bridge) publishCounters() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.countersInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.refreshCounters()
		}
	}
}

func (b *Bridge) refreshCounters() (map[string]uint64, error) {
	ctx, cancel := context.WithTimeout(b.ctrl.Context(), requestTimeout)
	defer cancel()
	values, err := b.ctrl.Counters(ctx)
	if err != nil {
		b.logger.Warn("read counters", "err", err)
	}
	if values == nil {
		return nil, err
	}
	b.mu.Lock()
	for _, name := range discoveredCounters {
		b.state[counterKey(name)] = values[name]
	}
	b.mu.Unlock()
	b.publishState()
	return values, err
}

type permitJoinRequest struct {
	Duration *int `json:"duration"`
}

// parseDuration accepts {"duration":N}, a bare number, or ON/OFF.
func parseDuration(payload []byte) (uint8, error) {
	text := strings.TrimSpace(string(payload))
	switch strings.ToUpper(text) {
	case "ON", "TRUE":
		return 254, nil
	case "OFF", "FALSE", "":
		return 0, nil
	}
	var n int
	if strings.HasPrefix(text, "{") {
		var req permitJoinRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return 0, fmt.Errorf("invalid request JSON: %w", err)
		}
		if req.Duration == nil {
			return 0, fmt.Errorf("missing duration")
		}
		n = *req.Duration
	} else {
		v, err := strconv.Atoi(text)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", text)
		}
		n = v
	}
	if n < 0 || n > 255 {
		return 0, fmt.Errorf("duration %d out of range 0-255", n)
	}
	return uint8(n), nil
}

func (b *Bridge) handleRequest(name string, payload []byte) {
	ctx, cancel := context.WithTimeout(b.ctrl.Context(), requestTimeout)
	defer cancel()

	resp := map[string]any{"status": "ok"}
	var err error
	switch name {
	case "permit_join":
		var duration uint8
		if duration, err = parseDuration(payload); err == nil {
			if err = b.ctrl.PermitJoin(ctx, duration); err == nil {
				resp["duration"] = duration
			}
		}
	case "counters":
		var values map[string]uint64
		if values, err = b.refreshCounters(); err == nil {
			resp["counters"] = values
		}
	case "remove_discovery":
		for _, msg := range buildRemoveDiscovery(b.ctrl.Info()) {
			b.publish(msg.Topic, msg.Payload, true)
		}
	case "backup":
		var backup *store.NetworkBackup
		if backup, err = b.ctrl.Backup(ctx); err == nil {
			resp["backup"] = backup
		}
	default:
		err = fmt.Errorf("unknown request %q", name)
	}

	if err != nil {
		b.logger.Warn("bridge request failed", "request", name, "err", err)
		resp = map[string]any{"status": "error", "error": err.Error()}
	}
	b.publish(b.topic("bridge/response/"+name), mustJSON(resp), false)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
