package ezsp

import "fmt"

// ConfigID identifies an NCP stack configuration value.
type ConfigID uint8

const (
	ConfigPacketBufferCount            ConfigID = 0x01
	ConfigNeighborTableSize            ConfigID = 0x02
	ConfigAPSUnicastMessageCount       ConfigID = 0x03
	ConfigBindingTableSize             ConfigID = 0x04
	ConfigAddressTableSize             ConfigID = 0x05
	ConfigMulticastTableSize           ConfigID = 0x06
	ConfigRouteTableSize               ConfigID = 0x07
	ConfigDiscoveryTableSize           ConfigID = 0x08
	ConfigStackProfile                 ConfigID = 0x0C
	ConfigSecurityLevel                ConfigID = 0x0D
	ConfigMaxHops                      ConfigID = 0x10
	ConfigMaxEndDeviceChildren         ConfigID = 0x11
	ConfigIndirectTransmissionTimeout  ConfigID = 0x12
	ConfigEndDevicePollTimeout         ConfigID = 0x13
	ConfigTxPowerMode                  ConfigID = 0x17
	ConfigDisableRelay                 ConfigID = 0x18
	ConfigTrustCenterAddressCacheSize  ConfigID = 0x19
	ConfigSourceRouteTableSize         ConfigID = 0x1A
	ConfigFragmentWindowSize           ConfigID = 0x1C
	ConfigFragmentDelayMs              ConfigID = 0x1D
	ConfigKeyTableSize                 ConfigID = 0x1E
	ConfigAPSAckTimeout                ConfigID = 0x1F
	ConfigBeaconJitterDuration         ConfigID = 0x20
	ConfigPanIDConflictReportThreshold ConfigID = 0x22
	ConfigRequestKeyTimeout            ConfigID = 0x24
	ConfigApplicationZDOFlags          ConfigID = 0x2A
	ConfigBroadcastTableSize           ConfigID = 0x2B
	ConfigMacFilterTableSize           ConfigID = 0x2C
	ConfigSupportedNetworks            ConfigID = 0x2D
	ConfigRetryQueueSize               ConfigID = 0x34
	ConfigTransientKeyTimeoutS         ConfigID = 0x36
)

// configNames maps the yaml keys accepted by the host configuration.
var configNames = map[string]ConfigID{
	"packet_buffer_count":              ConfigPacketBufferCount,
	"neighbor_table_size":              ConfigNeighborTableSize,
	"aps_unicast_message_count":        ConfigAPSUnicastMessageCount,
	"binding_table_size":               ConfigBindingTableSize,
	"address_table_size":               ConfigAddressTableSize,
	"multicast_table_size":             ConfigMulticastTableSize,
	"route_table_size":                 ConfigRouteTableSize,
	"discovery_table_size":             ConfigDiscoveryTableSize,
	"stack_profile":                    ConfigStackProfile,
	"security_level":                   ConfigSecurityLevel,
	"max_hops":                         ConfigMaxHops,
	"max_end_device_children":          ConfigMaxEndDeviceChildren,
	"indirect_transmission_timeout":    ConfigIndirectTransmissionTimeout,
	"end_device_poll_timeout":          ConfigEndDevicePollTimeout,
	"tx_power_mode":                    ConfigTxPowerMode,
	"trust_center_address_cache_size":  ConfigTrustCenterAddressCacheSize,
	"source_route_table_size":          ConfigSourceRouteTableSize,
	"key_table_size":                   ConfigKeyTableSize,
	"broadcast_table_size":             ConfigBroadcastTableSize,
	"supported_networks":               ConfigSupportedNetworks,
	"retry_queue_size":                 ConfigRetryQueueSize,
	"transient_key_timeout_s":          ConfigTransientKeyTimeoutS,
	"pan_id_conflict_report_threshold": ConfigPanIDConflictReportThreshold,
}

// ConfigIDByName resolves a configuration key such as "binding_table_size".
func ConfigIDByName(name string) (ConfigID, bool) {
	id, ok := configNames[name]
	return id, ok
}

// PolicyID identifies an NCP policy.
type PolicyID uint8

const (
	PolicyTrustCenter                PolicyID = 0x00
	PolicyBindingModification        PolicyID = 0x01
	PolicyUnicastReplies             PolicyID = 0x02
	PolicyPollHandler                PolicyID = 0x03
	PolicyMessageContentsInCallback  PolicyID = 0x04
	PolicyTCKeyRequest               PolicyID = 0x05
	PolicyAppKeyRequest              PolicyID = 0x06
	PolicyPacketValidateLibrary      PolicyID = 0x07
	PolicyZLL                        PolicyID = 0x08
	PolicyTCRejoinsUsingWellKnownKey PolicyID = 0x09
)

// DecisionID is the value a policy is set to.
type DecisionID uint8

const (
	DecisionDisallowBindingModification      DecisionID = 0x10
	DecisionAllowBindingModification         DecisionID = 0x11
	DecisionCheckBindingModifications        DecisionID = 0x12
	DecisionHostWillNotSupplyReply           DecisionID = 0x20
	DecisionHostWillSupplyReply              DecisionID = 0x21
	DecisionPollHandlerIgnore                DecisionID = 0x30
	DecisionPollHandlerCallback              DecisionID = 0x31
	DecisionMessageTagOnlyInCallback         DecisionID = 0x40
	DecisionMessageTagAndContentsInCallback  DecisionID = 0x41
	DecisionDenyTCKeyRequests                DecisionID = 0x50
	DecisionAllowTCKeyRequestsSendCurrentKey DecisionID = 0x51
	DecisionAllowTCKeyRequestsGenerateNewKey DecisionID = 0x52
	DecisionDenyAppKeyRequests               DecisionID = 0x60
	DecisionAllowAppKeyRequests              DecisionID = 0x61
	DecisionPacketValidateLibraryChecksOn    DecisionID = 0x62
	DecisionPacketValidateLibraryChecksOff   DecisionID = 0x63
)

var policyNames = map[string]PolicyID{
	"trust_center":                    PolicyTrustCenter,
	"binding_modification":            PolicyBindingModification,
	"unicast_replies":                 PolicyUnicastReplies,
	"poll_handler":                    PolicyPollHandler,
	"message_contents_in_callback":    PolicyMessageContentsInCallback,
	"tc_key_request":                  PolicyTCKeyRequest,
	"app_key_request":                 PolicyAppKeyRequest,
	"packet_validate_library":         PolicyPacketValidateLibrary,
	"zll":                             PolicyZLL,
	"tc_rejoins_using_well_known_key": PolicyTCRejoinsUsingWellKnownKey,
}

var decisionNames = map[string]DecisionID{
	"disallow_binding_modification":          DecisionDisallowBindingModification,
	"allow_binding_modification":             DecisionAllowBindingModification,
	"check_binding_modifications":            DecisionCheckBindingModifications,
	"host_will_not_supply_reply":             DecisionHostWillNotSupplyReply,
	"host_will_supply_reply":                 DecisionHostWillSupplyReply,
	"poll_handler_ignore":                    DecisionPollHandlerIgnore,
	"poll_handler_callback":                  DecisionPollHandlerCallback,
	"message_tag_only_in_callback":           DecisionMessageTagOnlyInCallback,
	"message_tag_and_contents_in_callback":   DecisionMessageTagAndContentsInCallback,
	"deny_tc_key_requests":                   DecisionDenyTCKeyRequests,
	"allow_tc_key_requests_send_current_key": DecisionAllowTCKeyRequestsSendCurrentKey,
	"allow_tc_key_requests_generate_new_key": DecisionAllowTCKeyRequestsGenerateNewKey,
	"deny_app_key_requests":                  DecisionDenyAppKeyRequests,
	"allow_app_key_requests":                 DecisionAllowAppKeyRequests,
	"packet_validate_library_checks_on":      DecisionPacketValidateLibraryChecksOn,
	"packet_validate_library_checks_off":     DecisionPacketValidateLibraryChecksOff,
}

// PolicyIDByName resolves a policy key such as "tc_key_request".
func PolicyIDByName(name string) (PolicyID, bool) {
	id, ok := policyNames[name]
	return id, ok
}

// DecisionIDByName resolves a decision such as "allow_tc_key_requests_send_current_key".
func DecisionIDByName(name string) (DecisionID, bool) {
	id, ok := decisionNames[name]
	return id, ok
}

// Trust center policy bitmask, passed as the decision of PolicyTrustCenter.
const (
	DecisionBitmaskDefault               uint8 = 0x00
	DecisionBitmaskAllowJoins            uint8 = 0x01
	DecisionBitmaskAllowUnsecuredRejoins uint8 = 0x02
	DecisionBitmaskSendKeyInClear        uint8 = 0x04
	DecisionBitmaskIgnoreUnsecuredRejoin uint8 = 0x08
	DecisionBitmaskJoinsUseInstallCode   uint8 = 0x10
	DecisionBitmaskDeferJoins            uint8 = 0x20
)

// ValueID identifies an NCP value read or written with getValue/setValue.
type ValueID uint8

const (
	ValueTokenStackNodeData          ValueID = 0x00
	ValueMacPassthroughFlags         ValueID = 0x01
	ValueFreeBuffers                 ValueID = 0x03
	ValueMaximumIncomingTransferSize ValueID = 0x05
	ValueMaximumOutgoingTransferSize ValueID = 0x06
	ValueStackTokenWriting           ValueID = 0x07
	ValueExtendedSecurityBitmask     ValueID = 0x0A
	ValueNodeShortID                 ValueID = 0x0B
	ValueEndpointFlags               ValueID = 0x0F
	ValueVersionInfo                 ValueID = 0x11
	ValueNextZigbeeSequenceNumber    ValueID = 0x14
	ValueCCAThreshold                ValueID = 0x15
	ValueNwkFrameCounter             ValueID = 0x23
	ValueAPSFrameCounter             ValueID = 0x24
	ValueEndDeviceKeepAliveSupport   ValueID = 0x3F
	ValueNwkOpenDuration             ValueID = 0x42
	ValueTransientDeviceTimeout      ValueID = 0x43
)

// ExtendedValueID identifies a value that takes a characteristics argument.
type ExtendedValueID uint8

const (
	ExtendedValueEndpointFlags       ExtendedValueID = 0x0000
	ExtendedValueLastLeaveReason     ExtendedValueID = 0x0001
	ExtendedValueSourceRouteOverhead ExtendedValueID = 0x0002
)

// Extended security bitmask bits.
const (
	ExtSecurityJoinerGlobalLinkKey       uint16 = 0x0010
	ExtSecurityNwkLeaveRequestNotAllowed uint16 = 0x0100
)

// Concentrator types for setConcentrator.
const (
	ConcentratorLowRAM  uint16 = 0xFFF8
	ConcentratorHighRAM uint16 = 0xFFF9
)

// SourceRouteDiscoveryMode controls many-to-one route request scheduling.
type SourceRouteDiscoveryMode uint8

const (
	SourceRouteDiscoveryOff        SourceRouteDiscoveryMode = 0
	SourceRouteDiscoveryOn         SourceRouteDiscoveryMode = 1
	SourceRouteDiscoveryReschedule SourceRouteDiscoveryMode = 2
)

// NetworkInitBitmask is passed to networkInit.
const (
	NetworkInitNoOptions               uint16 = 0x0000
	NetworkInitParentInfoInToken       uint16 = 0x0001
	NetworkInitEndDeviceRejoinOnReboot uint16 = 0x0002
)

// ScanType for startScan.
type ScanType uint8

const (
	ScanEnergy        ScanType = 0x00
	ScanActive        ScanType = 0x01
	ScanActiveRouters ScanType = 0x03
)

// AllChannelsMask covers 802.15.4 channels 11 to 26.
const AllChannelsMask uint32 = 0x07FFF800

// CounterType indexes the slice returned by readCounters.
type CounterType uint8

const (
	CounterMacRxBroadcast           CounterType = 0
	CounterMacTxBroadcast           CounterType = 1
	CounterMacRxUnicast             CounterType = 2
	CounterMacTxUnicastSuccess      CounterType = 3
	CounterMacTxUnicastRetry        CounterType = 4
	CounterMacTxUnicastFailed       CounterType = 5
	CounterAPSDataRxBroadcast       CounterType = 6
	CounterAPSDataTxBroadcast       CounterType = 7
	CounterAPSDataRxUnicast         CounterType = 8
	CounterAPSDataTxUnicastSuccess  CounterType = 9
	CounterAPSDataTxUnicastRetry    CounterType = 10
	CounterAPSDataTxUnicastFailed   CounterType = 11
	CounterRouteDiscoveryInitiated  CounterType = 12
	CounterNeighborAdded            CounterType = 13
	CounterNeighborRemoved          CounterType = 14
	CounterNeighborStale            CounterType = 15
	CounterJoinIndication           CounterType = 16
	CounterChildRemoved             CounterType = 17
	CounterASHOverflowError         CounterType = 18
	CounterASHFramingError          CounterType = 19
	CounterASHOverrunError          CounterType = 20
	CounterNwkFrameCounterFailure   CounterType = 21
	CounterAPSFrameCounterFailure   CounterType = 22
	CounterASHXoff                  CounterType = 23
	CounterAPSLinkKeyNotAuthorized  CounterType = 24
	CounterNwkDecryptionFailure     CounterType = 25
	CounterAPSDecryptionFailure     CounterType = 26
	CounterAllocatePacketBufferFail CounterType = 27
	CounterRelayedUnicast           CounterType = 28
	CounterPhyToMacQueueLimit       CounterType = 29
	CounterPacketValidateDropped    CounterType = 30
	CounterNwkRetryOverflow         CounterType = 31
	CounterPhyCCAFail               CounterType = 32
	CounterTypeCount                CounterType = 33
)

var counterNames = [CounterTypeCount]string{
	"mac_rx_broadcast",
	"mac_tx_broadcast",
	"mac_rx_unicast",
	"mac_tx_unicast_success",
	"mac_tx_unicast_retry",
	"mac_tx_unicast_failed",
	"aps_data_rx_broadcast",
	"aps_data_tx_broadcast",
	"aps_data_rx_unicast",
	"aps_data_tx_unicast_success",
	"aps_data_tx_unicast_retry",
	"aps_data_tx_unicast_failed",
	"route_discovery_initiated",
	"neighbor_added",
	"neighbor_removed",
	"neighbor_stale",
	"join_indication",
	"child_removed",
	"ash_overflow_error",
	"ash_framing_error",
	"ash_overrun_error",
	"nwk_frame_counter_failure",
	"aps_frame_counter_failure",
	"ash_xoff",
	"aps_link_key_not_authorized",
	"nwk_decryption_failure",
	"aps_decryption_failure",
	"allocate_packet_buffer_failure",
	"relayed_unicast",
	"phy_to_mac_queue_limit_reached",
	"packet_validate_library_dropped_count",
	"nwk_retry_overflow",
	"phy_cca_fail_count",
}

func (t CounterType) String() string {
	if t < CounterTypeCount {
		return counterNames[t]
	}
	return fmt.Sprintf("counter_%d", uint8(t))
}
