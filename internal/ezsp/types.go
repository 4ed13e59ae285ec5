package ezsp

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// EUI64 is an IEEE address in wire (little-endian) byte order.
type EUI64 [8]byte

// String renders the address most significant byte first, e.g. 0x00124b0012345678.
func (e EUI64) String() string {
	var rev [8]byte
	for i := range e {
		rev[i] = e[7-i]
	}
	return "0x" + hex.EncodeToString(rev[:])
}

func (e EUI64) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

func (e *EUI64) UnmarshalText(text []byte) error {
	v, err := ParseEUI64(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// ParseEUI64 accepts the String form, with or without the 0x prefix.
func ParseEUI64(s string) (EUI64, error) {
	var e EUI64
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 8 {
		return e, fmt.Errorf("parse eui64 %q: invalid address", s)
	}
	for i := range e {
		e[i] = raw[7-i]
	}
	return e, nil
}

// ExtPanID is an extended PAN id in wire byte order.
type ExtPanID [8]byte

func (p ExtPanID) String() string { return hex.EncodeToString(p[:]) }

func (p ExtPanID) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *ExtPanID) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(string(text), "0x"))
	if err != nil || len(raw) != 8 {
		return fmt.Errorf("parse extended pan id %q: invalid value", text)
	}
	copy(p[:], raw)
	return nil
}

// KeyData is a 128-bit key.
type KeyData [KeySize]byte

func (k KeyData) MarshalText() ([]byte, error) { return []byte(hex.EncodeToString(k[:])), nil }

func (k *KeyData) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil || len(raw) != KeySize {
		return fmt.Errorf("parse key: invalid value")
	}
	copy(k[:], raw)
	return nil
}

// OutgoingMessageType selects the routing of an outbound data message.
type OutgoingMessageType uint8

const (
	OutgoingDirect             OutgoingMessageType = 0x00
	OutgoingViaAddressTable    OutgoingMessageType = 0x01
	OutgoingViaBinding         OutgoingMessageType = 0x02
	OutgoingMulticast          OutgoingMessageType = 0x03
	OutgoingMulticastWithAlias OutgoingMessageType = 0x04
	OutgoingBroadcastWithAlias OutgoingMessageType = 0x05
	OutgoingBroadcast          OutgoingMessageType = 0x06
)

func (t OutgoingMessageType) String() string {
	switch t {
	case OutgoingDirect:
		return "direct"
	case OutgoingViaAddressTable:
		return "via_address_table"
	case OutgoingViaBinding:
		return "via_binding"
	case OutgoingMulticast:
		return "multicast"
	case OutgoingMulticastWithAlias:
		return "multicast_with_alias"
	case OutgoingBroadcastWithAlias:
		return "broadcast_with_alias"
	case OutgoingBroadcast:
		return "broadcast"
	}
	return fmt.Sprintf("outgoing_0x%02X", uint8(t))
}

// IncomingMessageType is how an incoming message was addressed.
type IncomingMessageType uint8

const (
	IncomingUnicast IncomingMessageType = iota
	IncomingUnicastReply
	IncomingMulticast
	IncomingMulticastLoopback
	IncomingBroadcast
	IncomingBroadcastLoopback
)

// APS options.
const (
	APSOptionNone                  uint16 = 0x0000
	APSOptionUseAliasSequence      uint16 = 0x0002
	APSOptionDSAExtendedSecurity   uint16 = 0x0004
	APSOptionEnableRouteDiscovery  uint16 = 0x0100
	APSOptionEncryption            uint16 = 0x0020
	APSOptionRetry                 uint16 = 0x0040
	APSOptionEnableAddressDiscover uint16 = 0x1000
)

// NodeType is the role of a node on the network.
type NodeType uint8

const (
	NodeUnknown     NodeType = 0
	NodeCoordinator NodeType = 1
	NodeRouter      NodeType = 2
	NodeEndDevice   NodeType = 3
	NodeSleepyEnd   NodeType = 4
)

// NetworkStatus is returned by networkState.
type NetworkStatus uint8

const (
	NetworkNoNetwork      NetworkStatus = 0
	NetworkJoining        NetworkStatus = 1
	NetworkJoined         NetworkStatus = 2
	NetworkJoinedNoParent NetworkStatus = 3
	NetworkLeaving        NetworkStatus = 4
)

func (s NetworkStatus) String() string {
	switch s {
	case NetworkNoNetwork:
		return "no_network"
	case NetworkJoining:
		return "joining"
	case NetworkJoined:
		return "joined"
	case NetworkJoinedNoParent:
		return "joined_no_parent"
	case NetworkLeaving:
		return "leaving"
	}
	return fmt.Sprintf("network_0x%02X", uint8(s))
}

// DeviceUpdate is the trust center join status.
type DeviceUpdate uint8

const (
	DeviceSecuredRejoin   DeviceUpdate = 0
	DeviceUnsecuredJoin   DeviceUpdate = 1
	DeviceLeft            DeviceUpdate = 2
	DeviceUnsecuredRejoin DeviceUpdate = 3
)

func (d DeviceUpdate) String() string {
	switch d {
	case DeviceSecuredRejoin:
		return "secured_rejoin"
	case DeviceUnsecuredJoin:
		return "unsecured_join"
	case DeviceLeft:
		return "device_left"
	case DeviceUnsecuredRejoin:
		return "unsecured_rejoin"
	}
	return fmt.Sprintf("device_update_0x%02X", uint8(d))
}

// JoinDecision is the trust center's answer to a join.
type JoinDecision uint8

const (
	JoinUsePreconfiguredKey JoinDecision = iota
	JoinSendKeyInTheClear
	JoinDeny
	JoinNoAction
	JoinAllowRejoinsOnly
)

// GpApplicationID selects the Green Power addressing form.
type GpApplicationID uint8

const (
	GpApplicationSourceID GpApplicationID = 0x00
	GpApplicationIEEE     GpApplicationID = 0x02
)

// MacPassthroughType flags which raw MAC frames were passed up.
type MacPassthroughType uint8

const (
	MacPassthroughNone        MacPassthroughType = 0x00
	MacPassthroughSEInterpan  MacPassthroughType = 0x01
	MacPassthroughEmberNet    MacPassthroughType = 0x02
	MacPassthroughEmberNetSrc MacPassthroughType = 0x04
	MacPassthroughApplication MacPassthroughType = 0x08
	MacPassthroughCustom      MacPassthroughType = 0x10
	MacPassthroughInternalGP  MacPassthroughType = 0x40
	MacPassthroughInternalZLL MacPassthroughType = 0x80
)

// BindingType is the kind of a binding table entry.
type BindingType uint8

const (
	BindingUnused    BindingType = 0
	BindingUnicast   BindingType = 1
	BindingManyToOne BindingType = 2
	BindingMulticast BindingType = 3
)

// JoinMethod is used when joining a network.
type JoinMethod uint8

const (
	JoinMethodMACAssociation JoinMethod = 0
	JoinMethodNWKRejoin      JoinMethod = 1
	JoinMethodNWKRejoinKey   JoinMethod = 2
	JoinMethodNWKCommission  JoinMethod = 3
)

// NetworkParameters describes the network the NCP forms or joins.
type NetworkParameters struct {
	ExtendedPanID ExtPanID   `json:"extended_pan_id"`
	PanID         uint16     `json:"pan_id"`
	RadioTxPower  uint8      `json:"radio_tx_power"`
	RadioChannel  uint8      `json:"radio_channel"`
	JoinMethod    JoinMethod `json:"join_method"`
	NwkManagerID  uint16     `json:"nwk_manager_id"`
	NwkUpdateID   uint8      `json:"nwk_update_id"`
	Channels      uint32     `json:"channels"`
}

func (b *Buffer) ReadNetworkParameters() NetworkParameters {
	return NetworkParameters{
		ExtendedPanID: b.ReadExtPanID(),
		PanID:         b.ReadUint16(),
		RadioTxPower:  b.ReadUint8(),
		RadioChannel:  b.ReadUint8(),
		JoinMethod:    JoinMethod(b.ReadUint8()),
		NwkManagerID:  b.ReadUint16(),
		NwkUpdateID:   b.ReadUint8(),
		Channels:      b.ReadUint32(),
	}
}

func (b *Buffer) WriteNetworkParameters(v NetworkParameters) {
	b.WriteExtPanID(v.ExtendedPanID)
	b.WriteUint16(v.PanID)
	b.WriteUint8(v.RadioTxPower)
	b.WriteUint8(v.RadioChannel)
	b.WriteUint8(uint8(v.JoinMethod))
	b.WriteUint16(v.NwkManagerID)
	b.WriteUint8(v.NwkUpdateID)
	b.WriteUint32(v.Channels)
}

// ApsFrame is the APS header of a data message. Radius is not part of the
// encoded record; the router passes it as a separate command parameter.
type ApsFrame struct {
	ProfileID           uint16 `json:"profile_id"`
	ClusterID           uint16 `json:"cluster_id"`
	SourceEndpoint      uint8  `json:"source_endpoint"`
	DestinationEndpoint uint8  `json:"destination_endpoint"`
	Options             uint16 `json:"options"`
	GroupID             uint16 `json:"group_id"`
	Sequence            uint8  `json:"sequence"`
	Radius              uint8  `json:"radius,omitempty"`
}

func (b *Buffer) ReadApsFrame() ApsFrame {
	return ApsFrame{
		ProfileID:           b.ReadUint16(),
		ClusterID:           b.ReadUint16(),
		SourceEndpoint:      b.ReadUint8(),
		DestinationEndpoint: b.ReadUint8(),
		Options:             b.ReadUint16(),
		GroupID:             b.ReadUint16(),
		Sequence:            b.ReadUint8(),
	}
}

func (b *Buffer) WriteApsFrame(v ApsFrame) {
	b.WriteUint16(v.ProfileID)
	b.WriteUint16(v.ClusterID)
	b.WriteUint8(v.SourceEndpoint)
	b.WriteUint8(v.DestinationEndpoint)
	b.WriteUint16(v.Options)
	b.WriteUint16(v.GroupID)
	b.WriteUint8(v.Sequence)
}

// PacketInfo is the receive metadata bundled with incoming frames from
// protocol 0x0e onwards. Older layouts carry only the LQI and RSSI inline.
type PacketInfo struct {
	SenderShortID    uint16 `json:"sender_short_id"`
	SenderLongID     EUI64  `json:"sender_long_id"`
	BindingIndex     uint8  `json:"binding_index"`
	AddressIndex     uint8  `json:"address_index"`
	LastHopLQI       uint8  `json:"last_hop_lqi"`
	LastHopRSSI      int8   `json:"last_hop_rssi"`
	LastHopTimestamp uint32 `json:"last_hop_timestamp"`
}

func (b *Buffer) ReadPacketInfo() PacketInfo {
	return PacketInfo{
		SenderShortID:    b.ReadUint16(),
		SenderLongID:     b.ReadEUI64(),
		BindingIndex:     b.ReadUint8(),
		AddressIndex:     b.ReadUint8(),
		LastHopLQI:       b.ReadUint8(),
		LastHopRSSI:      b.ReadInt8(),
		LastHopTimestamp: b.ReadUint32(),
	}
}

func (b *Buffer) WritePacketInfo(v PacketInfo) {
	b.WriteUint16(v.SenderShortID)
	b.WriteEUI64(v.SenderLongID)
	b.WriteUint8(v.BindingIndex)
	b.WriteUint8(v.AddressIndex)
	b.WriteUint8(v.LastHopLQI)
	b.WriteInt8(v.LastHopRSSI)
	b.WriteUint32(v.LastHopTimestamp)
}

type BindingTableEntry struct {
	Type         BindingType `json:"type"`
	Local        uint8       `json:"local"`
	ClusterID    uint16      `json:"cluster_id"`
	Remote       uint8       `json:"remote"`
	Identifier   EUI64       `json:"identifier"`
	NetworkIndex uint8       `json:"network_index"`
}

func (b *Buffer) ReadBindingTableEntry() BindingTableEntry {
	return BindingTableEntry{
		Type:         BindingType(b.ReadUint8()),
		Local:        b.ReadUint8(),
		ClusterID:    b.ReadUint16(),
		Remote:       b.ReadUint8(),
		Identifier:   b.ReadEUI64(),
		NetworkIndex: b.ReadUint8(),
	}
}

func (b *Buffer) WriteBindingTableEntry(v BindingTableEntry) {
	b.WriteUint8(uint8(v.Type))
	b.WriteUint8(v.Local)
	b.WriteUint16(v.ClusterID)
	b.WriteUint8(v.Remote)
	b.WriteEUI64(v.Identifier)
	b.WriteUint8(v.NetworkIndex)
}

type MulticastTableEntry struct {
	MulticastID  uint16 `json:"multicast_id"`
	Endpoint     uint8  `json:"endpoint"`
	NetworkIndex uint8  `json:"network_index"`
}

// ReadMulticastTableEntry tolerates firmware that omits the trailing network index.
func (b *Buffer) ReadMulticastTableEntry() MulticastTableEntry {
	v := MulticastTableEntry{
		MulticastID: b.ReadUint16(),
		Endpoint:    b.ReadUint8(),
	}
	if b.Remaining() > 0 {
		v.NetworkIndex = b.ReadUint8()
	}
	return v
}

func (b *Buffer) WriteMulticastTableEntry(v MulticastTableEntry) {
	b.WriteUint16(v.MulticastID)
	b.WriteUint8(v.Endpoint)
	b.WriteUint8(v.NetworkIndex)
}

type NeighborTableEntry struct {
	ShortID    uint16 `json:"short_id"`
	AverageLQI uint8  `json:"average_lqi"`
	InCost     uint8  `json:"in_cost"`
	OutCost    uint8  `json:"out_cost"`
	Age        uint8  `json:"age"`
	LongID     EUI64  `json:"long_id"`
}

func (b *Buffer) ReadNeighborTableEntry() NeighborTableEntry {
	return NeighborTableEntry{
		ShortID:    b.ReadUint16(),
		AverageLQI: b.ReadUint8(),
		InCost:     b.ReadUint8(),
		OutCost:    b.ReadUint8(),
		Age:        b.ReadUint8(),
		LongID:     b.ReadEUI64(),
	}
}

type RouteTableEntry struct {
	Destination      uint16 `json:"destination"`
	NextHop          uint16 `json:"next_hop"`
	Status           uint8  `json:"status"`
	Age              uint8  `json:"age"`
	ConcentratorType uint8  `json:"concentrator_type"`
	RouteRecordState uint8  `json:"route_record_state"`
}

func (b *Buffer) ReadRouteTableEntry() RouteTableEntry {
	return RouteTableEntry{
		Destination:      b.ReadUint16(),
		NextHop:          b.ReadUint16(),
		Status:           b.ReadUint8(),
		Age:              b.ReadUint8(),
		ConcentratorType: b.ReadUint8(),
		RouteRecordState: b.ReadUint8(),
	}
}

// SecManKeyType identifies a key in the security manager.
type SecManKeyType uint8

const (
	SecManKeyNone           SecManKeyType = 0
	SecManKeyNetwork        SecManKeyType = 1
	SecManKeyTCLinkKey      SecManKeyType = 2
	SecManKeyTCLinkKeyTable SecManKeyType = 3
	SecManKeyAppLinkKey     SecManKeyType = 4
	SecManKeyZLLEncryption  SecManKeyType = 5
	SecManKeyZLLPreconfig   SecManKeyType = 6
	SecManKeyGreenPower     SecManKeyType = 7
	SecManKeyInternal       SecManKeyType = 8
)

// SecManContext addresses a key for export and import.
type SecManContext struct {
	CoreKeyType         SecManKeyType `json:"core_key_type"`
	KeyIndex            uint8         `json:"key_index"`
	DerivedType         uint16        `json:"derived_type"`
	EUI64               EUI64         `json:"eui64"`
	MultiNetworkIndex   uint8         `json:"multi_network_index"`
	Flags               uint8         `json:"flags"`
	PSAKeyAlgPermission uint32        `json:"psa_key_alg_permission"`
}

func (b *Buffer) ReadSecManContext() SecManContext {
	return SecManContext{
		CoreKeyType:         SecManKeyType(b.ReadUint8()),
		KeyIndex:            b.ReadUint8(),
		DerivedType:         b.ReadUint16(),
		EUI64:               b.ReadEUI64(),
		MultiNetworkIndex:   b.ReadUint8(),
		Flags:               b.ReadUint8(),
		PSAKeyAlgPermission: b.ReadUint32(),
	}
}

func (b *Buffer) WriteSecManContext(v SecManContext) {
	b.WriteUint8(uint8(v.CoreKeyType))
	b.WriteUint8(v.KeyIndex)
	b.WriteUint16(v.DerivedType)
	b.WriteEUI64(v.EUI64)
	b.WriteUint8(v.MultiNetworkIndex)
	b.WriteUint8(v.Flags)
	b.WriteUint32(v.PSAKeyAlgPermission)
}

type NetworkKeyInfo struct {
	NetworkKeySet          bool   `json:"network_key_set"`
	AlternateNetworkKeySet bool   `json:"alternate_network_key_set"`
	KeySequenceNumber      uint8  `json:"key_sequence_number"`
	AltKeySequenceNumber   uint8  `json:"alt_key_sequence_number"`
	FrameCounter           uint32 `json:"frame_counter"`
}

func (b *Buffer) ReadNetworkKeyInfo() NetworkKeyInfo {
	return NetworkKeyInfo{
		NetworkKeySet:          b.ReadBool(),
		AlternateNetworkKeySet: b.ReadBool(),
		KeySequenceNumber:      b.ReadUint8(),
		AltKeySequenceNumber:   b.ReadUint8(),
		FrameCounter:           b.ReadUint32(),
	}
}

type APSKeyMetadata struct {
	Bitmask              uint16 `json:"bitmask"`
	OutgoingFrameCounter uint32 `json:"outgoing_frame_counter"`
	IncomingFrameCounter uint32 `json:"incoming_frame_counter"`
	TTLSeconds           uint16 `json:"ttl_seconds"`
}

func (b *Buffer) ReadAPSKeyMetadata() APSKeyMetadata {
	return APSKeyMetadata{
		Bitmask:              b.ReadUint16(),
		OutgoingFrameCounter: b.ReadUint32(),
		IncomingFrameCounter: b.ReadUint32(),
		TTLSeconds:           b.ReadUint16(),
	}
}

// Initial security bitmask values.
const (
	SecurityTrustCenterGlobalLinkKey uint16 = 0x0004
	SecurityHavePreconfiguredKey     uint16 = 0x0100
	SecurityHaveNetworkKey           uint16 = 0x0200
	SecurityRequireEncryptedKey      uint16 = 0x0800
	SecurityTrustCenterUsesHashedKey uint16 = 0x0084
	SecurityNoFrameCounterReset      uint16 = 0x1000
)

type InitialSecurityState struct {
	Bitmask                  uint16  `json:"bitmask"`
	PreconfiguredKey         KeyData `json:"-"`
	NetworkKey               KeyData `json:"-"`
	NetworkKeySequenceNumber uint8   `json:"network_key_sequence_number"`
	PreconfiguredTCEUI64     EUI64   `json:"preconfigured_tc_eui64"`
}

func (b *Buffer) WriteInitialSecurityState(v InitialSecurityState) {
	b.WriteUint16(v.Bitmask)
	b.WriteKey(v.PreconfiguredKey)
	b.WriteKey(v.NetworkKey)
	b.WriteUint8(v.NetworkKeySequenceNumber)
	b.WriteEUI64(v.PreconfiguredTCEUI64)
}

type CurrentSecurityState struct {
	Bitmask           uint16 `json:"bitmask"`
	TrustCenterLongID EUI64  `json:"trust_center_long_id"`
}

func (b *Buffer) ReadCurrentSecurityState() CurrentSecurityState {
	return CurrentSecurityState{
		Bitmask:           b.ReadUint16(),
		TrustCenterLongID: b.ReadEUI64(),
	}
}

type ChildData struct {
	EUI64            EUI64    `json:"eui64"`
	Type             NodeType `json:"type"`
	ID               uint16   `json:"id"`
	Phy              uint8    `json:"phy"`
	Power            uint8    `json:"power"`
	Timeout          uint8    `json:"timeout"`
	RemainingTimeout uint32   `json:"remaining_timeout"`
}

func (b *Buffer) ReadChildData() ChildData {
	return ChildData{
		EUI64:            b.ReadEUI64(),
		Type:             NodeType(b.ReadUint8()),
		ID:               b.ReadUint16(),
		Phy:              b.ReadUint8(),
		Power:            b.ReadUint8(),
		Timeout:          b.ReadUint8(),
		RemainingTimeout: b.ReadUint32(),
	}
}

// ZigbeeNetwork is a beacon summary reported during an active scan.
type ZigbeeNetwork struct {
	Channel       uint8    `json:"channel"`
	PanID         uint16   `json:"pan_id"`
	ExtendedPanID ExtPanID `json:"extended_pan_id"`
	AllowingJoin  bool     `json:"allowing_join"`
	StackProfile  uint8    `json:"stack_profile"`
	NwkUpdateID   uint8    `json:"nwk_update_id"`
}

func (b *Buffer) ReadZigbeeNetwork() ZigbeeNetwork {
	return ZigbeeNetwork{
		Channel:       b.ReadUint8(),
		PanID:         b.ReadUint16(),
		ExtendedPanID: b.ReadExtPanID(),
		AllowingJoin:  b.ReadBool(),
		StackProfile:  b.ReadUint8(),
		NwkUpdateID:   b.ReadUint8(),
	}
}

func (b *Buffer) WriteZigbeeNetwork(v ZigbeeNetwork) {
	b.WriteUint8(v.Channel)
	b.WriteUint16(v.PanID)
	b.WriteExtPanID(v.ExtendedPanID)
	b.WriteBool(v.AllowingJoin)
	b.WriteUint8(v.StackProfile)
	b.WriteUint8(v.NwkUpdateID)
}

type ZllSecurityAlgorithm struct {
	TransactionID uint32 `json:"transaction_id"`
	ResponseID    uint32 `json:"response_id"`
	Bitmask       uint16 `json:"bitmask"`
}

type ZllNetwork struct {
	ZigbeeNetwork         ZigbeeNetwork        `json:"zigbee_network"`
	SecurityAlgorithm     ZllSecurityAlgorithm `json:"security_algorithm"`
	EUI64                 EUI64                `json:"eui64"`
	NodeID                uint16               `json:"node_id"`
	State                 uint16               `json:"state"`
	NodeType              NodeType             `json:"node_type"`
	NumberSubDevices      uint8                `json:"number_sub_devices"`
	TotalGroupIdentifiers uint8                `json:"total_group_identifiers"`
	RSSICorrection        uint8                `json:"rssi_correction"`
}

func (b *Buffer) ReadZllNetwork() ZllNetwork {
	return ZllNetwork{
		ZigbeeNetwork: b.ReadZigbeeNetwork(),
		SecurityAlgorithm: ZllSecurityAlgorithm{
			TransactionID: b.ReadUint32(),
			ResponseID:    b.ReadUint32(),
			Bitmask:       b.ReadUint16(),
		},
		EUI64:                 b.ReadEUI64(),
		NodeID:                b.ReadUint16(),
		State:                 b.ReadUint16(),
		NodeType:              NodeType(b.ReadUint8()),
		NumberSubDevices:      b.ReadUint8(),
		TotalGroupIdentifiers: b.ReadUint8(),
		RSSICorrection:        b.ReadUint8(),
	}
}

func (b *Buffer) WriteZllNetwork(v ZllNetwork) {
	b.WriteZigbeeNetwork(v.ZigbeeNetwork)
	b.WriteUint32(v.SecurityAlgorithm.TransactionID)
	b.WriteUint32(v.SecurityAlgorithm.ResponseID)
	b.WriteUint16(v.SecurityAlgorithm.Bitmask)
	b.WriteEUI64(v.EUI64)
	b.WriteUint16(v.NodeID)
	b.WriteUint16(v.State)
	b.WriteUint8(uint8(v.NodeType))
	b.WriteUint8(v.NumberSubDevices)
	b.WriteUint8(v.TotalGroupIdentifiers)
	b.WriteUint8(v.RSSICorrection)
}

type ZllDeviceInfoRecord struct {
	IEEEAddress  EUI64  `json:"ieee_address"`
	EndpointID   uint8  `json:"endpoint_id"`
	ProfileID    uint16 `json:"profile_id"`
	DeviceID     uint16 `json:"device_id"`
	Version      uint8  `json:"version"`
	GroupIDCount uint8  `json:"group_id_count"`
}

func (b *Buffer) ReadZllDeviceInfoRecord() ZllDeviceInfoRecord {
	return ZllDeviceInfoRecord{
		IEEEAddress:  b.ReadEUI64(),
		EndpointID:   b.ReadUint8(),
		ProfileID:    b.ReadUint16(),
		DeviceID:     b.ReadUint16(),
		Version:      b.ReadUint8(),
		GroupIDCount: b.ReadUint8(),
	}
}

type ZllAddressAssignment struct {
	NodeID         uint16 `json:"node_id"`
	FreeNodeIDMin  uint16 `json:"free_node_id_min"`
	FreeNodeIDMax  uint16 `json:"free_node_id_max"`
	GroupIDMin     uint16 `json:"group_id_min"`
	GroupIDMax     uint16 `json:"group_id_max"`
	FreeGroupIDMin uint16 `json:"free_group_id_min"`
	FreeGroupIDMax uint16 `json:"free_group_id_max"`
}

func (b *Buffer) ReadZllAddressAssignment() ZllAddressAssignment {
	return ZllAddressAssignment{
		NodeID:         b.ReadUint16(),
		FreeNodeIDMin:  b.ReadUint16(),
		FreeNodeIDMax:  b.ReadUint16(),
		GroupIDMin:     b.ReadUint16(),
		GroupIDMax:     b.ReadUint16(),
		FreeGroupIDMin: b.ReadUint16(),
		FreeGroupIDMax: b.ReadUint16(),
	}
}

// GpAddress identifies a Green Power device by source id or IEEE address.
type GpAddress struct {
	ApplicationID GpApplicationID `json:"application_id"`
	SourceID      uint32          `json:"source_id,omitempty"`
	IEEEAddress   EUI64           `json:"ieee_address"`
	Endpoint      uint8           `json:"endpoint"`
}

// ReadGpAddress reads the fixed 10-byte record. A source id is followed by a
// 4-byte filler so both forms occupy the same width. Any other application
// id fails the read without consuming the address.
func (b *Buffer) ReadGpAddress() GpAddress {
	v := GpAddress{ApplicationID: GpApplicationID(b.ReadUint8())}
	switch v.ApplicationID {
	case GpApplicationSourceID:
		v.SourceID = b.ReadUint32()
		b.ReadUint32()
	case GpApplicationIEEE:
		v.IEEEAddress = b.ReadEUI64()
	default:
		b.fail(fmt.Errorf("%w: gp application id 0x%02X", ErrInvalidField, uint8(v.ApplicationID)))
		return v
	}
	v.Endpoint = b.ReadUint8()
	return v
}

func (b *Buffer) WriteGpAddress(v GpAddress) {
	b.WriteUint8(uint8(v.ApplicationID))
	switch v.ApplicationID {
	case GpApplicationSourceID:
		b.WriteUint32(v.SourceID)
		b.WriteUint32(v.SourceID)
	default:
		b.WriteEUI64(v.IEEEAddress)
	}
	b.WriteUint8(v.Endpoint)
}

type PerDeviceDutyCycle struct {
	NodeID            uint16 `json:"node_id"`
	DutyCycleConsumed uint16 `json:"duty_cycle_consumed"`
}

// ReadPerDeviceDutyCycles reads a u8 count followed by that many records.
func (b *Buffer) ReadPerDeviceDutyCycles() []PerDeviceDutyCycle {
	n := int(b.ReadUint8())
	out := make([]PerDeviceDutyCycle, 0, n)
	for i := 0; i < n && b.Err() == nil; i++ {
		out = append(out, PerDeviceDutyCycle{NodeID: b.ReadUint16(), DutyCycleConsumed: b.ReadUint16()})
	}
	return out
}

// VersionInfo is the reply to the VERSION command.
type VersionInfo struct {
	ProtocolVersion uint8  `json:"protocol_version"`
	StackType       uint8  `json:"stack_type"`
	StackVersion    uint16 `json:"stack_version"`
}

// StackVersionString renders the packed stack version nibbles, e.g. 7.4.1.0.
func (v VersionInfo) StackVersionString() string {
	s := v.StackVersion
	return fmt.Sprintf("%d.%d.%d.%d", s>>12&0xF, s>>8&0xF, s>>4&0xF, s&0xF)
}
