package ezsp

// Callback is one decoded asynchronous NCP notification. The concrete type
// identifies the frame; switch on it to reach the payload.
type Callback interface {
	FrameID() FrameID
}

type StackStatusCallback struct {
	Status SLStatus `json:"status"`
}

type MessageSentCallback struct {
	Status             SLStatus            `json:"status"`
	Type               OutgoingMessageType `json:"type"`
	IndexOrDestination uint16              `json:"index_or_destination"`
	ApsFrame           ApsFrame            `json:"aps_frame"`
	MessageTag         uint16              `json:"message_tag"`
	Contents           []byte              `json:"contents"`
}

type IncomingMessageCallback struct {
	Type     IncomingMessageType `json:"type"`
	ApsFrame ApsFrame            `json:"aps_frame"`
	Packet   PacketInfo          `json:"packet_info"`
	Contents []byte              `json:"contents"`
}

type IncomingSenderEUI64Callback struct {
	SenderEUI64 EUI64 `json:"sender_eui64"`
}

type TrustCenterJoinCallback struct {
	NewNodeID       uint16       `json:"new_node_id"`
	NewNodeEUI64    EUI64        `json:"new_node_eui64"`
	Status          DeviceUpdate `json:"status"`
	PolicyDecision  JoinDecision `json:"policy_decision"`
	ParentOfNewNode uint16       `json:"parent_of_new_node"`
}

type MacFilterMatchCallback struct {
	FilterIndex     uint8              `json:"filter_index"`
	PassthroughType MacPassthroughType `json:"passthrough_type"`
	Packet          PacketInfo         `json:"packet_info"`
	Contents        []byte             `json:"contents"`
}

type MacPassthroughCallback struct {
	PassthroughType MacPassthroughType `json:"passthrough_type"`
	Packet          PacketInfo         `json:"packet_info"`
	Contents        []byte             `json:"contents"`
}

// GpepIncomingCallback is a Green Power data frame. Its status is the GP
// stack's own one-byte code and is not normalised.
type GpepIncomingCallback struct {
	Status             uint8     `json:"status"`
	GpdLink            uint8     `json:"gpd_link"`
	Sequence           uint8     `json:"sequence"`
	Address            GpAddress `json:"address"`
	SecurityLevel      uint8     `json:"security_level"`
	SecurityKeyType    uint8     `json:"security_key_type"`
	AutoCommissioning  bool      `json:"auto_commissioning"`
	BidirectionalInfo  uint8     `json:"bidirectional_info"`
	SecurityFrameCount uint32    `json:"security_frame_counter"`
	GpdCommandID       uint8     `json:"gpd_command_id"`
	MIC                uint32    `json:"mic"`
	ProxyTableIndex    uint8     `json:"proxy_table_index"`
	GpdCommandPayload  []byte    `json:"gpd_command_payload"`
}

type DGpSentCallback struct {
	Status     SLStatus `json:"status"`
	GpepHandle uint8    `json:"gpep_handle"`
}

type IDConflictCallback struct {
	NodeID uint16 `json:"node_id"`
}

type NetworkFoundCallback struct {
	Network     ZigbeeNetwork `json:"network"`
	LinkQuality uint8         `json:"lqi"`
	RSSI        int8          `json:"rssi"`
}

type EnergyScanResultCallback struct {
	Channel uint8 `json:"channel"`
	MaxRSSI int8  `json:"max_rssi"`
}

type ScanCompleteCallback struct {
	Channel uint8    `json:"channel"`
	Status  SLStatus `json:"status"`
}

type UnusedPanIDFoundCallback struct {
	PanID   uint16 `json:"pan_id"`
	Channel uint8  `json:"channel"`
}

type ChildJoinCallback struct {
	Index      uint8    `json:"index"`
	Joining    bool     `json:"joining"`
	ChildID    uint16   `json:"child_id"`
	ChildEUI64 EUI64    `json:"child_eui64"`
	ChildType  NodeType `json:"child_type"`
}

type DutyCycleCallback struct {
	ChannelPage  uint8                `json:"channel_page"`
	Channel      uint8                `json:"channel"`
	State        uint8                `json:"state"`
	TotalDevices uint8                `json:"total_devices"`
	Devices      []PerDeviceDutyCycle `json:"devices"`
}

type RemoteSetBindingCallback struct {
	Entry          BindingTableEntry `json:"entry"`
	Index          uint8             `json:"index"`
	PolicyDecision SLStatus          `json:"policy_decision"`
}

type RemoteDeleteBindingCallback struct {
	Index          uint8    `json:"index"`
	PolicyDecision SLStatus `json:"policy_decision"`
}

type PollCompleteCallback struct {
	Status SLStatus `json:"status"`
}

type PollCallback struct {
	ChildID          uint16 `json:"child_id"`
	TransmitExpected bool   `json:"transmit_expected"`
}

type IncomingRouteRecordCallback struct {
	Source      uint16   `json:"source"`
	SourceEUI64 EUI64    `json:"source_eui64"`
	LinkQuality uint8    `json:"lqi"`
	RSSI        int8     `json:"rssi"`
	Relays      []uint16 `json:"relays"`
}

type IncomingManyToOneRouteRequestCallback struct {
	Source uint16 `json:"source"`
	LongID EUI64  `json:"long_id"`
	Cost   uint8  `json:"cost"`
}

type IncomingRouteErrorCallback struct {
	Status SLStatus `json:"status"`
	Target uint16   `json:"target"`
}

type IncomingNetworkStatusCallback struct {
	ErrorCode uint8  `json:"error_code"`
	Target    uint16 `json:"target"`
}

type CounterRolloverCallback struct {
	Type CounterType `json:"type"`
}

type StackTokenChangedCallback struct {
	TokenAddress uint16 `json:"token_address"`
}

type TimerCallback struct {
	TimerID uint8 `json:"timer_id"`
}

type CustomFrameCallback struct {
	Payload []byte `json:"payload"`
}

type SwitchNetworkKeyCallback struct {
	SequenceNumber uint8 `json:"sequence_number"`
}

type ZigbeeKeyEstablishmentCallback struct {
	Partner EUI64 `json:"partner"`
	Status  uint8 `json:"status"`
}

type RawTransmitCompleteCallback struct {
	Status SLStatus `json:"status"`
}

type MfglibRxCallback struct {
	LinkQuality uint8  `json:"lqi"`
	RSSI        int8   `json:"rssi"`
	Packet      []byte `json:"packet"`
}

type IncomingBootloadCallback struct {
	LongID   EUI64      `json:"long_id"`
	Packet   PacketInfo `json:"packet_info"`
	Contents []byte     `json:"contents"`
}

type BootloadTransmitCompleteCallback struct {
	Status   SLStatus `json:"status"`
	Contents []byte   `json:"contents"`
}

type ZllNetworkFoundCallback struct {
	Network    ZllNetwork           `json:"network"`
	DeviceInfo *ZllDeviceInfoRecord `json:"device_info,omitempty"`
	Packet     PacketInfo           `json:"packet_info"`
}

type ZllScanCompleteCallback struct {
	Status SLStatus `json:"status"`
}

type ZllAddressAssignmentCallback struct {
	Assignment ZllAddressAssignment `json:"assignment"`
	Packet     PacketInfo           `json:"packet_info"`
}

type ZllTouchLinkTargetCallback struct {
	Network ZllNetwork `json:"network"`
}

type GenerateCbkeKeysCallback struct {
	ID                 FrameID  `json:"-"`
	Status             SLStatus `json:"status"`
	EphemeralPublicKey []byte   `json:"ephemeral_public_key"`
}

type CalculateSmacsCallback struct {
	ID            FrameID  `json:"-"`
	Status        SLStatus `json:"status"`
	InitiatorSmac []byte   `json:"initiator_smac"`
	ResponderSmac []byte   `json:"responder_smac"`
}

type DsaSignCallback struct {
	Status   SLStatus `json:"status"`
	Contents []byte   `json:"contents"`
}

type DsaVerifyCallback struct {
	Status SLStatus `json:"status"`
}

func (StackStatusCallback) FrameID() FrameID { return FrameStackStatusHandler }
func (MessageSentCallback) FrameID() FrameID { return FrameMessageSentHandler }
func (IncomingMessageCallback) FrameID() FrameID { return FrameIncomingMessageHandler }
func (IncomingSenderEUI64Callback) FrameID() FrameID { return FrameIncomingSenderEUI64Handler }
func (TrustCenterJoinCallback) FrameID() FrameID { return FrameTrustCenterJoinHandler }
func (MacFilterMatchCallback) FrameID() FrameID { return FrameMacFilterMatchMessageHandler }
func (MacPassthroughCallback) FrameID() FrameID { return FrameMacPassthroughHandler }
func (GpepIncomingCallback) FrameID() FrameID { return FrameGpepIncomingMessageHandler }
func (DGpSentCallback) FrameID() FrameID { return FrameDGpSentHandler }
func (IDConflictCallback) FrameID() FrameID { return FrameIDConflictHandler }
func (NetworkFoundCallback) FrameID() FrameID { return FrameNetworkFoundHandler }
func (EnergyScanResultCallback) FrameID() FrameID { return FrameEnergyScanResultHandler }
func (ScanCompleteCallback) FrameID() FrameID { return FrameScanCompleteHandler }
func (UnusedPanIDFoundCallback) FrameID() FrameID { return FrameUnusedPanIDFoundHandler }
func (ChildJoinCallback) FrameID() FrameID { return FrameChildJoinHandler }
func (DutyCycleCallback) FrameID() FrameID { return FrameDutyCycleHandler }
func (RemoteSetBindingCallback) FrameID() FrameID { return FrameRemoteSetBindingHandler }
func (RemoteDeleteBindingCallback) FrameID() FrameID { return FrameRemoteDeleteBindingHandler }
func (PollCompleteCallback) FrameID() FrameID { return FramePollCompleteHandler }
func (PollCallback) FrameID() FrameID { return FramePollHandler }
func (IncomingRouteRecordCallback) FrameID() FrameID { return FrameIncomingRouteRecordHandler }
func (IncomingManyToOneRouteRequestCallback) FrameID() FrameID { return FrameIncomingManyToOneHandler }
func (IncomingRouteErrorCallback) FrameID() FrameID { return FrameIncomingRouteErrorHandler }
func (IncomingNetworkStatusCallback) FrameID() FrameID { return FrameIncomingNetworkStatusHandler }
func (CounterRolloverCallback) FrameID() FrameID { return FrameCounterRollover }
func (StackTokenChangedCallback) FrameID() FrameID { return FrameStackTokenChanged }
func (TimerCallback) FrameID() FrameID { return FrameTimerHandler }
func (CustomFrameCallback) FrameID() FrameID { return FrameCustomFrameHandler }
func (SwitchNetworkKeyCallback) FrameID() FrameID { return FrameSwitchNetworkKeyHandler }
func (ZigbeeKeyEstablishmentCallback) FrameID() FrameID { return FrameZigbeeKeyEstablishment }
func (RawTransmitCompleteCallback) FrameID() FrameID { return FrameRawTransmitCompleteHandler }
func (MfglibRxCallback) FrameID() FrameID { return FrameMfglibRxHandler }
func (IncomingBootloadCallback) FrameID() FrameID { return FrameIncomingBootloadHandler }
func (BootloadTransmitCompleteCallback) FrameID() FrameID { return FrameBootloadTransmitComplete }
func (ZllNetworkFoundCallback) FrameID() FrameID { return FrameZllNetworkFoundHandler }
func (ZllScanCompleteCallback) FrameID() FrameID { return FrameZllScanCompleteHandler }
func (ZllAddressAssignmentCallback) FrameID() FrameID { return FrameZllAddressAssignmentHandler }
func (ZllTouchLinkTargetCallback) FrameID() FrameID { return FrameZllTouchLinkTargetHandler }
func (c GenerateCbkeKeysCallback) FrameID() FrameID { return c.ID }
func (c CalculateSmacsCallback) FrameID() FrameID { return c.ID }
func (DsaSignCallback) FrameID() FrameID { return FrameDsaSignHandler }
func (DsaVerifyCallback) FrameID() FrameID { return FrameDsaVerifyHandler }
