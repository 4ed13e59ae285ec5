package ezsp

import (
	"log/slog"
	"sync"
)

// EventType names an event emitted by the engine.
type EventType string

// Event types
const (
	EventNCPNeedsReset             EventType = "ncp_needs_reset"
	EventStackStatus               EventType = "stack_status"
	EventMessageSent               EventType = "message_sent"
	EventMessageSentDeliveryFailed EventType = "message_sent_delivery_failed"
	EventZDOResponse               EventType = "zdo_response"
	EventEndDeviceAnnounce         EventType = "end_device_announce"
	EventIncomingMessage           EventType = "incoming_message"
	EventTouchlinkMessage          EventType = "touchlink_message"
	EventGreenPowerMessage         EventType = "greenpower_message"
	EventTrustCenterJoin           EventType = "trust_center_join"
	EventIDConflict                EventType = "id_conflict"
	EventNetworkFound              EventType = "network_found"
	EventEnergyScanResult          EventType = "energy_scan_result"
	EventScanComplete              EventType = "scan_complete"
	// EventCallback carries every decoded callback that no other event covers.
	EventCallback EventType = "callback"
)

// Event is one engine notification. Data holds the payload struct matching Type.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// EventBus provides pub/sub for engine events.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[EventType]map[uint64]EventHandler
	allHandlers map[uint64]EventHandler
	nextID      uint64
	logger      *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers:    make(map[EventType]map[uint64]EventHandler),
		allHandlers: make(map[uint64]EventHandler),
		logger:      logger,
	}
}

// On registers a handler for a specific event type.
// Returns an unsubscribe function.
func (eb *EventBus) On(eventType EventType, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	if eb.handlers[eventType] == nil {
		eb.handlers[eventType] = make(map[uint64]EventHandler)
	}
	eb.handlers[eventType][id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.handlers[eventType], id)
	}
}

// OnAll registers a handler that receives all events.
// Returns an unsubscribe function.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.allHandlers[id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.allHandlers, id)
	}
}

// Emit sends an event to all matching handlers.
// Handlers run synchronously on the caller's goroutine; a panicking handler is recovered.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.handlers[event.Type])+len(eb.allHandlers))
	for _, h := range eb.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range eb.allHandlers {
		handlers = append(handlers, h)
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}()
	}
}

// Payloads of the routed events. Raw callbacks are delivered as their
// Callback struct under EventCallback.

// NCPNeedsResetEvent carries the status that triggered the reset decision.
type NCPNeedsResetEvent struct {
	Status Status `json:"status"`
}

type StackStatusEvent struct {
	Status SLStatus `json:"status"`
}

type MessageSentEvent struct {
	Status      SLStatus            `json:"status"`
	Type        OutgoingMessageType `json:"type"`
	Destination uint16              `json:"destination"`
	ApsFrame    ApsFrame            `json:"aps_frame"`
	MessageTag  uint16              `json:"message_tag"`
}

type ZDOResponseEvent struct {
	ClusterID   uint16 `json:"cluster_id"`
	Sender      uint16 `json:"sender"`
	SenderEUI   EUI64  `json:"sender_eui64"`
	LinkQuality uint8  `json:"lqi"`
	Payload     []byte `json:"payload"`
}

type EndDeviceAnnounceEvent struct {
	Sequence     uint8  `json:"sequence"`
	NodeID       uint16 `json:"node_id"`
	EUI64        EUI64  `json:"eui64"`
	Capabilities uint8  `json:"capabilities"`
}

type IncomingMessageEvent struct {
	Type        IncomingMessageType `json:"type"`
	ApsFrame    ApsFrame            `json:"aps_frame"`
	Sender      uint16              `json:"sender"`
	SenderEUI   EUI64               `json:"sender_eui64"`
	LinkQuality uint8               `json:"lqi"`
	RSSI        int8                `json:"rssi"`
	Payload     []byte              `json:"payload"`
}

type TouchlinkMessageEvent struct {
	SourcePanID uint16 `json:"source_pan_id"`
	SourceEUI   EUI64  `json:"source_eui64"`
	GroupID     uint16 `json:"group_id,omitempty"`
	LinkQuality uint8  `json:"lqi"`
	Payload     []byte `json:"payload"`
}

type GreenPowerMessageEvent struct {
	SourceID          uint32 `json:"source_id"`
	CommandIdentifier uint8  `json:"command_identifier"`
	GpdCommandID      uint8  `json:"gpd_command_id"`
	FrameCounter      uint32 `json:"frame_counter"`
	GpdLink           uint8  `json:"gpd_link"`
	Payload           []byte `json:"payload"`
}

type TrustCenterJoinEvent struct {
	NewNodeID       uint16       `json:"new_node_id"`
	NewNodeEUI64    EUI64        `json:"new_node_eui64"`
	Status          DeviceUpdate `json:"status"`
	PolicyDecision  JoinDecision `json:"policy_decision"`
	ParentOfNewNode uint16       `json:"parent_of_new_node"`
}

type IDConflictEvent struct {
	NodeID uint16 `json:"node_id"`
}

type ScanCompleteEvent struct {
	Channel uint8    `json:"channel"`
	Status  SLStatus `json:"status"`
}
