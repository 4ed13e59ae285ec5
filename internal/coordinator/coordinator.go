// Package coordinator runs the EZSP session of a Zigbee coordinator: it brings
// the NCP up, forms or resumes the network, keeps a backup of it and
// re-initialises everything when the engine asks for an NCP reset.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"zigbee-ezsp-host/internal/ash"
	"zigbee-ezsp-host/internal/ezsp"
	"zigbee-ezsp-host/internal/store"
)

// ErrNotStarted is returned by operations that need a running network.
var ErrNotStarted = errors.New("coordinator not started")

// Events emitted by the coordinator on the engine's event bus.
const (
	EventNetworkState ezsp.EventType = "network_state"
	EventPermitJoin   ezsp.EventType = "permit_join"
	EventNodeJoined   ezsp.EventType = "node_joined"
	EventNodeLeft     ezsp.EventType = "node_left"
)

// Network states carried by NetworkStateEvent.
const (
	StateUp        = "up"
	StateDown      = "down"
	StateResetting = "resetting"
)

// NetworkStateEvent is the payload of EventNetworkState.
type NetworkStateEvent struct {
	State   string `json:"state"`
	Channel uint8  `json:"channel,omitempty"`
	PanID   uint16 `json:"pan_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// PermitJoinEvent is the payload of EventPermitJoin.
type PermitJoinEvent struct {
	Duration uint8 `json:"duration"`
}

// NodeEvent is the payload of EventNodeJoined and EventNodeLeft.
type NodeEvent struct {
	EUI64  string `json:"eui64"`
	NodeID uint16 `json:"node_id"`
	Parent uint16 `json:"parent,omitempty"`
	Status string `json:"status,omitempty"`
}

// NetworkConfig is the network the coordinator forms when the NCP has none.
// Zero values are filled from the stored backup or generated at random.
type NetworkConfig struct {
	Channel       uint8
	PanID         uint16
	ExtendedPanID ezsp.ExtPanID
	TxPower       uint8
	NetworkKey    *ezsp.KeyData
}

// Config holds coordinator configuration.
type Config struct {
	// ProtocolVersion is the EZSP version asked for; zero means the latest.
	ProtocolVersion  uint8
	Network          NetworkConfig
	StackConfig      map[ezsp.ConfigID]uint16
	Policies         map[ezsp.PolicyID]ezsp.DecisionID
	Endpoints        []ezsp.Endpoint
	ManufacturerCode uint16

	NetworkUpTimeout time.Duration
	PollInterval     time.Duration
	CountersInterval time.Duration
	ResetBackoff     time.Duration
	MaxResetBackoff  time.Duration
}

func (c *Config) setDefaults() {
	if c.StackConfig == nil {
		c.StackConfig = DefaultStackConfig()
	}
	if c.Policies == nil {
		c.Policies = DefaultPolicies()
	}
	if c.Endpoints == nil {
		c.Endpoints = DefaultEndpoints()
	}
	if c.NetworkUpTimeout == 0 {
		c.NetworkUpTimeout = 10 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.CountersInterval == 0 {
		c.CountersInterval = time.Hour
	}
	if c.ResetBackoff == 0 {
		c.ResetBackoff = time.Second
	}
	if c.MaxResetBackoff == 0 {
		c.MaxResetBackoff = time.Minute
	}
}

// DefaultStackConfig returns the NCP table sizes applied before the network
// comes up.
func DefaultStackConfig() map[ezsp.ConfigID]uint16 {
	return map[ezsp.ConfigID]uint16{
		ezsp.ConfigAddressTableSize:            16,
		ezsp.ConfigTrustCenterAddressCacheSize: 2,
		ezsp.ConfigSupportedNetworks:           1,
		ezsp.ConfigStackProfile:                2,
		ezsp.ConfigSecurityLevel:               5,
		ezsp.ConfigBindingTableSize:            32,
		ezsp.ConfigKeyTableSize:                0,
		ezsp.ConfigMaxEndDeviceChildren:        32,
		ezsp.ConfigAPSUnicastMessageCount:      32,
		ezsp.ConfigBroadcastTableSize:          15,
		ezsp.ConfigNeighborTableSize:           26,
		ezsp.ConfigEndDevicePollTimeout:        8,
		ezsp.ConfigTransientKeyTimeoutS:        300,
		ezsp.ConfigRetryQueueSize:              16,
		ezsp.ConfigSourceRouteTableSize:        200,
		ezsp.ConfigMulticastTableSize:          16,
	}
}

// DefaultPolicies returns the trust center policies of a coordinator that
// hands out the current network key.
func DefaultPolicies() map[ezsp.PolicyID]ezsp.DecisionID {
	return map[ezsp.PolicyID]ezsp.DecisionID{
		ezsp.PolicyTrustCenter:               ezsp.DecisionID(ezsp.DecisionBitmaskAllowJoins | ezsp.DecisionBitmaskAllowUnsecuredRejoins),
		ezsp.PolicyTCKeyRequest:              ezsp.DecisionAllowTCKeyRequestsSendCurrentKey,
		ezsp.PolicyAppKeyRequest:             ezsp.DecisionDenyAppKeyRequests,
		ezsp.PolicyMessageContentsInCallback: ezsp.DecisionMessageTagOnlyInCallback,
		ezsp.PolicyBindingModification:       ezsp.DecisionCheckBindingModifications,
	}
}

// DefaultEndpoints returns the Home Automation and Green Power endpoints.
func DefaultEndpoints() []ezsp.Endpoint {
	return []ezsp.Endpoint{
		{
			ID:             1,
			ProfileID:      ezsp.HAProfileID,
			DeviceID:       0x0065,
			InputClusters:  []uint16{0x0000, 0x0003, 0x0006, 0x0008, 0x000A, 0x0019, 0x0300},
			OutputClusters: []uint16{0x0000, 0x0003, 0x0004, 0x0005, 0x0006, 0x0008, 0x0020, 0x0300, 0x0400, 0x0402, 0x0405, 0x0406, 0x0500, 0x0702, 0x0B01, 0x0B03, 0x0B04, 0x1000},
		},
		{
			ID:             ezsp.GreenPowerEndpoint,
			ProfileID:      ezsp.GreenPowerProfileID,
			DeviceID:       0x0066,
			InputClusters:  []uint16{0x0021},
			OutputClusters: []uint16{0x0021},
		},
	}
}

// LinkStats exposes the transport's counters.
type LinkStats interface {
	Counters() ash.Counters
}

// Info describes the running coordinator.
type Info struct {
	Started         bool          `json:"started"`
	ProtocolVersion uint8         `json:"protocol_version"`
	StackType       uint8         `json:"stack_type"`
	StackVersion    string        `json:"stack_version"`
	EUI64           string        `json:"eui64"`
	NodeID          uint16        `json:"node_id"`
	Channel         uint8         `json:"channel"`
	PanID           uint16        `json:"pan_id"`
	ExtendedPanID   ezsp.ExtPanID `json:"extended_pan_id"`
	Formed          bool          `json:"formed"`
	Resets          uint64        `json:"resets"`
}

// Coordinator manages the Zigbee network through an EZSP engine.
type Coordinator struct {
	engine *ezsp.Engine
	store  store.Store
	link   LinkStats
	logger *slog.Logger
	config Config

	mu      sync.RWMutex
	started bool
	info    Info

	resetCh chan ezsp.Status
	stackCh chan ezsp.SLStatus
	resets  atomic.Uint64
	zdoSeq  atomic.Uint32
	scanMu  sync.Mutex

	seenMu sync.Mutex
	seen   map[ezsp.EUI64]time.Time

	unsubscribe []func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates a coordinator driving engine. link may be nil.
func New(engine *ezsp.Engine, st store.Store, link LinkStats, cfg Config, logger *slog.Logger) *Coordinator {
	cfg.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		engine:  engine,
		store:   st,
		link:    link,
		logger:  logger.With("component", "coordinator"),
		config:  cfg,
		resetCh: make(chan ezsp.Status, 1),
		stackCh: make(chan ezsp.SLStatus, 8),
		seen:    make(map[ezsp.EUI64]time.Time),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.registerHandlers()
	return c
}

// Context returns the coordinator's context, which is cancelled on Stop().
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Engine returns the underlying EZSP engine.
func (c *Coordinator) Engine() *ezsp.Engine {
	return c.engine
}

// Events returns the engine's event bus, which also carries coordinator events.
func (c *Coordinator) Events() *ezsp.EventBus {
	return c.engine.Events()
}

// Store returns the store.
func (c *Coordinator) Store() store.Store {
	return c.store
}

// Start brings the NCP and the network up, then supervises the session
// until Stop: callback polling, counter snapshots and recovery from NCP resets.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.bringUp(ctx); err != nil {
		c.engine.Stop()
		return err
	}
	c.wg.Add(1)
	go c.supervise(c.ctx)
	return nil
}

// Stop ends supervision and takes the link down.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
	for _, unsub := range c.unsubscribe {
		unsub()
	}
	c.unsubscribe = nil
	c.setStarted(false)
	c.engine.Stop()
}

// Info returns a snapshot of the coordinator state.
func (c *Coordinator) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info := c.info
	info.Started = c.started
	info.Resets = c.resets.Load()
	return info
}

func (c *Coordinator) isStarted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

func (c *Coordinator) setStarted(v bool) {
	c.mu.Lock()
	c.started = v
	c.mu.Unlock()
}

func (c *Coordinator) emit(t ezsp.EventType, data interface{}) {
	c.engine.Events().Emit(ezsp.Event{Type: t, Data: data})
}

// registerHandlers wires engine events. Handlers run on the transport's
// receive goroutine and must not issue EZSP commands; anything that needs
// the NCP is handed to the supervisor through a channel.
func (c *Coordinator) registerHandlers() {
	bus := c.engine.Events()
	c.unsubscribe = append(c.unsubscribe,
		bus.On(ezsp.EventNCPNeedsReset, func(ev ezsp.Event) {
			data, _ := ev.Data.(ezsp.NCPNeedsResetEvent)
			select {
			case c.resetCh <- data.Status:
			default:
			}
		}),
		bus.On(ezsp.EventStackStatus, func(ev ezsp.Event) {
			data, _ := ev.Data.(ezsp.StackStatusEvent)
			select {
			case c.stackCh <- data.Status:
			default:
				c.logger.Warn("stack status dropped", "status", data.Status)
			}
			if data.Status == ezsp.SLNetworkDown && c.isStarted() {
				c.emit(EventNetworkState, NetworkStateEvent{State: StateDown, Reason: data.Status.String()})
			}
		}),
		bus.On(ezsp.EventTrustCenterJoin, func(ev ezsp.Event) {
			if data, ok := ev.Data.(ezsp.TrustCenterJoinEvent); ok {
				c.trustCenterJoin(data)
			}
		}),
		bus.On(ezsp.EventEndDeviceAnnounce, func(ev ezsp.Event) {
			if data, ok := ev.Data.(ezsp.EndDeviceAnnounceEvent); ok {
				c.deviceAnnounce(data)
			}
		}),
		bus.On(ezsp.EventIncomingMessage, func(ev ezsp.Event) {
			if data, ok := ev.Data.(ezsp.IncomingMessageEvent); ok {
				c.messageReceived(data)
			}
		}),
		bus.On(ezsp.EventIDConflict, func(ev ezsp.Event) {
			if data, ok := ev.Data.(ezsp.IDConflictEvent); ok {
				c.logger.Warn("node id conflict reported", "node", fmt.Sprintf("0x%04X", data.NodeID))
			}
		}),
	)
}

// bringUp runs the full initialisation sequence of a session.
func (c *Coordinator) bringUp(ctx context.Context) error {
	c.logger.Info("initializing NCP...")
	if err := c.engine.Start(ctx); err != nil {
		return err
	}

	version, err := c.engine.NegotiateVersion(ctx, c.config.ProtocolVersion)
	if err != nil {
		return err
	}

	if err := c.configure(ctx); err != nil {
		return err
	}

	eui, err := c.engine.GetEUI64(ctx)
	if err != nil {
		return fmt.Errorf("get eui64: %w", err)
	}

	formed, err := c.initNetwork(ctx)
	if err != nil {
		return err
	}

	nodeID, err := c.engine.GetNodeID(ctx)
	if err != nil {
		return fmt.Errorf("get node id: %w", err)
	}

	// Trust centers act as high-RAM concentrators so source routes are known.
	status, err := c.engine.SetConcentrator(ctx, true, ezsp.ConcentratorHighRAM, 5, 60, 3, 1, 0)
	if err != nil {
		return fmt.Errorf("set concentrator: %w", err)
	}
	if !status.OK() {
		return fmt.Errorf("set concentrator: status %s", status)
	}

	status, nodeType, params, err := c.engine.GetNetworkParameters(ctx)
	if err != nil {
		return fmt.Errorf("get network parameters: %w", err)
	}
	if !status.OK() {
		return fmt.Errorf("get network parameters: status %s", status)
	}

	c.mu.Lock()
	c.info = Info{
		ProtocolVersion: version.ProtocolVersion,
		StackType:       version.StackType,
		StackVersion:    version.StackVersionString(),
		EUI64:           eui.String(),
		NodeID:          nodeID,
		Channel:         params.RadioChannel,
		PanID:           params.PanID,
		ExtendedPanID:   params.ExtendedPanID,
		Formed:          formed,
	}
	c.started = true
	c.mu.Unlock()

	if err := c.store.SaveNCPInfo(&store.NCPInfo{
		ProtocolVersion:  version.ProtocolVersion,
		StackType:        version.StackType,
		StackVersion:     version.StackVersionString(),
		EUI64:            eui.String(),
		NodeID:           nodeID,
		ManufacturerCode: c.config.ManufacturerCode,
		UpdatedAt:        time.Now(),
	}); err != nil {
		c.logger.Error("save ncp info", "err", err)
	}
	if _, err := c.saveBackup(ctx, eui, nodeType, params); err != nil {
		c.logger.Error("save network backup", "err", err)
	}

	c.logger.Info("network up",
		"channel", params.RadioChannel,
		"panID", fmt.Sprintf("0x%04X", params.PanID),
		"extPanID", params.ExtendedPanID,
		"ieee", eui,
		"formed", formed)
	c.emit(EventNetworkState, NetworkStateEvent{State: StateUp, Channel: params.RadioChannel, PanID: params.PanID})
	return nil
}

// configure applies stack configuration, policies and endpoints. Table
// sizes must be set before anything allocates NCP memory.
func (c *Coordinator) configure(ctx context.Context) error {
	ids := make([]ezsp.ConfigID, 0, len(c.config.StackConfig))
	for id := range c.config.StackConfig {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		value := c.config.StackConfig[id]
		status, err := c.engine.SetConfigurationValue(ctx, id, value)
		if err != nil {
			return fmt.Errorf("set config 0x%02X: %w", uint8(id), err)
		}
		if !status.OK() {
			// Some values can only be lowered; the NCP keeps its own.
			c.logger.Warn("config value rejected", "id", fmt.Sprintf("0x%02X", uint8(id)), "value", value, "status", status)
		}
	}

	if c.config.ManufacturerCode != 0 {
		if err := c.engine.SetManufacturerCode(ctx, c.config.ManufacturerCode); err != nil {
			return fmt.Errorf("set manufacturer code: %w", err)
		}
	}

	var multicastIndex uint8
	for _, ep := range c.config.Endpoints {
		status, err := c.engine.AddEndpoint(ctx, ep)
		if err != nil {
			return fmt.Errorf("add endpoint %d: %w", ep.ID, err)
		}
		if !status.OK() {
			return fmt.Errorf("add endpoint %d: status %s", ep.ID, status)
		}
		for _, group := range ep.MulticastGroups {
			entry := ezsp.MulticastTableEntry{MulticastID: group, Endpoint: ep.ID}
			status, err := c.engine.SetMulticastTableEntry(ctx, multicastIndex, entry)
			if err != nil {
				return fmt.Errorf("set multicast entry %d: %w", multicastIndex, err)
			}
			if !status.OK() {
				return fmt.Errorf("set multicast entry %d: status %s", multicastIndex, status)
			}
			multicastIndex++
		}
	}

	policies := make([]ezsp.PolicyID, 0, len(c.config.Policies))
	for id := range c.config.Policies {
		policies = append(policies, id)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i] < policies[j] })
	for _, id := range policies {
		decision := c.config.Policies[id]
		status, err := c.engine.SetPolicy(ctx, id, decision)
		if err != nil {
			return fmt.Errorf("set policy 0x%02X: %w", uint8(id), err)
		}
		if !status.OK() {
			return fmt.Errorf("set policy 0x%02X to 0x%02X: status %s", uint8(id), uint8(decision), status)
		}
	}
	return nil
}
