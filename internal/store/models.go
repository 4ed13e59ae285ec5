package store

import "time"

// NCPInfo describes the co-processor found at the last start.
type NCPInfo struct {
	ProtocolVersion  uint8     `json:"protocol_version"`
	StackType        uint8     `json:"stack_type"`
	StackVersion     string    `json:"stack_version"`
	EUI64            string    `json:"eui64"`
	NodeID           uint16    `json:"node_id"`
	ManufacturerCode uint16    `json:"manufacturer_code,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NetworkBackup is enough to restore the coordinator's network on a blank
// co-processor. NetworkKey is hidden from API/JSON serialization via json:"-".
type NetworkBackup struct {
	NodeType          uint8     `json:"node_type"`
	Channel           uint8     `json:"channel"`
	Channels          uint32    `json:"channels"`
	PanID             uint16    `json:"pan_id"`
	ExtendedPanID     string    `json:"extended_pan_id"`
	RadioTxPower      uint8     `json:"radio_tx_power"`
	NwkUpdateID       uint8     `json:"nwk_update_id"`
	NetworkKey        string    `json:"-"`
	KeySequenceNumber uint8     `json:"key_sequence_number"`
	FrameCounter      uint32    `json:"frame_counter"`
	CoordinatorEUI64  string    `json:"coordinator_eui64"`
	SavedAt           time.Time `json:"saved_at"`
}

// networkBackupStorage is the on-disk form of NetworkBackup, keeping the key.
type networkBackupStorage struct {
	NodeType          uint8     `json:"node_type"`
	Channel           uint8     `json:"channel"`
	Channels          uint32    `json:"channels"`
	PanID             uint16    `json:"pan_id"`
	ExtendedPanID     string    `json:"extended_pan_id"`
	RadioTxPower      uint8     `json:"radio_tx_power"`
	NwkUpdateID       uint8     `json:"nwk_update_id"`
	NetworkKey        string    `json:"network_key,omitempty"`
	KeySequenceNumber uint8     `json:"key_sequence_number"`
	FrameCounter      uint32    `json:"frame_counter"`
	CoordinatorEUI64  string    `json:"coordinator_eui64"`
	SavedAt           time.Time `json:"saved_at"`
}

// Node is a device the coordinator has seen join or announce itself.
type Node struct {
	EUI64    string    `json:"eui64"`
	NodeID   uint16    `json:"node_id"`
	Parent   uint16    `json:"parent,omitempty"`
	Joined   time.Time `json:"joined"`
	LastSeen time.Time `json:"last_seen"`
	LQI      uint8     `json:"lqi,omitempty"`
	RSSI     int8      `json:"rssi,omitempty"`
	Left     bool      `json:"left,omitempty"`
}

// CountersSnapshot is a flattened copy of the engine, link and NCP counters.
type CountersSnapshot struct {
	TakenAt time.Time         `json:"taken_at"`
	Values  map[string]uint64 `json:"values"`
}
