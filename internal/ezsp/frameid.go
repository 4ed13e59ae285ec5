package ezsp

import "fmt"

// FrameID is an EZSP command or callback identifier. Legacy frames carry only
// the low byte.
type FrameID uint16

// Configuration and utilities.
const (
	FrameVersion               FrameID = 0x0000
	FrameGetLibraryStatus      FrameID = 0x0001
	FrameAddEndpoint           FrameID = 0x0002
	FrameGetExtendedValue      FrameID = 0x0003
	FrameNop                   FrameID = 0x0005
	FrameCallback              FrameID = 0x0006
	FrameNoCallbacks           FrameID = 0x0007
	FrameStackTokenChanged     FrameID = 0x000D
	FrameTimerHandler          FrameID = 0x000F
	FrameSetConcentrator       FrameID = 0x0010
	FrameGetXncpInfo           FrameID = 0x0013
	FrameSetManufacturerCode   FrameID = 0x0015
	FrameCustomFrame           FrameID = 0x0047
	FrameGetRandomNumber       FrameID = 0x0049
	FrameGetConfigValue        FrameID = 0x0052
	FrameSetConfigValue        FrameID = 0x0053
	FrameCustomFrameHandler    FrameID = 0x0054
	FrameSetPolicy             FrameID = 0x0055
	FrameGetPolicy             FrameID = 0x0056
	FrameInvalidCommand        FrameID = 0x0058
	FrameReadAndClearCounters  FrameID = 0x0065
	FrameEcho                  FrameID = 0x0081
	FrameGetValue              FrameID = 0x00AA
	FrameSetValue              FrameID = 0x00AB
	FrameReadCounters          FrameID = 0x00F1
	FrameCounterRollover       FrameID = 0x00F2
	FrameGetTokenCount         FrameID = 0x0100
	FrameResetNode             FrameID = 0x0104
	FrameTokenFactoryReset     FrameID = 0x0077
	FrameGetEUI64              FrameID = 0x0026
	FrameGetNodeID             FrameID = 0x0027
	FrameSetRadioPower         FrameID = 0x0099
	FrameSetRadioChannel       FrameID = 0x009A
	FrameGetRadioChannel       FrameID = 0x00FF
	FrameMaximumPayloadLength  FrameID = 0x0033
	FrameSetSourceRouteDiscMod FrameID = 0x005A
)

// Networking.
const (
	FrameNetworkInit             FrameID = 0x0017
	FrameNetworkState            FrameID = 0x0018
	FrameStackStatusHandler      FrameID = 0x0019
	FrameStartScan               FrameID = 0x001A
	FrameNetworkFoundHandler     FrameID = 0x001B
	FrameScanCompleteHandler     FrameID = 0x001C
	FrameStopScan                FrameID = 0x001D
	FrameFormNetwork             FrameID = 0x001E
	FrameLeaveNetwork            FrameID = 0x0020
	FramePermitJoining           FrameID = 0x0022
	FrameChildJoinHandler        FrameID = 0x0023
	FrameGetNetworkParameters    FrameID = 0x0028
	FrameEnergyScanResultHandler FrameID = 0x0048
	FrameDutyCycleHandler        FrameID = 0x004D
	FrameGetNeighbor             FrameID = 0x0079
	FrameNeighborCount           FrameID = 0x007A
	FrameGetRouteTableEntry      FrameID = 0x007B
	FrameUnusedPanIDFoundHandler FrameID = 0x00D2
	FrameFindUnusedPanID         FrameID = 0x00D3
	// TODO: confirm against the EZSP 14 frame list once firmware exposing it is on the bench.
	FrameRemoveNeighbor FrameID = 0x0119
)

// Binding and messaging.
const (
	FrameRemoteSetBindingHandler      FrameID = 0x0031
	FrameRemoteDeleteBindingHandler   FrameID = 0x0032
	FrameSendUnicast                  FrameID = 0x0034
	FrameSendBroadcast                FrameID = 0x0036
	FrameProxyBroadcast               FrameID = 0x0037
	FrameSendMulticast                FrameID = 0x0038
	FrameSendReply                    FrameID = 0x0039
	FrameSendMulticastWithAlias       FrameID = 0x003A
	FrameMessageSentHandler           FrameID = 0x003F
	FrameSendManyToOneRouteRequest    FrameID = 0x0041
	FramePollCompleteHandler          FrameID = 0x0043
	FramePollHandler                  FrameID = 0x0044
	FrameIncomingMessageHandler       FrameID = 0x0045
	FrameMacFilterMatchMessageHandler FrameID = 0x0046
	FrameSendRawMessage               FrameID = 0x0096
	FrameIncomingRouteRecordHandler   FrameID = 0x0059
	FrameIncomingSenderEUI64Handler   FrameID = 0x0062
	FrameGetMulticastTableEntry       FrameID = 0x0063
	FrameSetMulticastTableEntry       FrameID = 0x0064
	FrameIDConflictHandler            FrameID = 0x007C
	FrameIncomingManyToOneHandler     FrameID = 0x007D
	FrameIncomingRouteErrorHandler    FrameID = 0x0080
	FrameMacPassthroughHandler        FrameID = 0x0097
	FrameRawTransmitCompleteHandler   FrameID = 0x0098
	FrameIncomingNetworkStatusHandler FrameID = 0x00C4
)

// Security.
const (
	FrameTrustCenterJoinHandler     FrameID = 0x0024
	FrameSetInitialSecurityState    FrameID = 0x0068
	FrameGetCurrentSecurityState    FrameID = 0x0069
	FrameSwitchNetworkKeyHandler    FrameID = 0x006E
	FrameBroadcastNextNetworkKey    FrameID = 0x0073
	FrameBroadcastNetworkKeySwitch  FrameID = 0x0074
	FrameZigbeeKeyEstablishment     FrameID = 0x009B
	FrameRemoveDevice               FrameID = 0x00A8
	FrameClearKeyTable              FrameID = 0x00B1
	FrameGetAPSKeyInfo              FrameID = 0x010C
	FrameExportKey                  FrameID = 0x0114
	FrameImportKey                  FrameID = 0x0115
	FrameGetNetworkKeyInfo          FrameID = 0x0116
	FrameGenerateCbkeKeysHandler    FrameID = 0x009E
	FrameCalculateSmacsHandler      FrameID = 0x00A0
	FrameDsaSignHandler             FrameID = 0x00A7
	FrameDsaVerifyHandler           FrameID = 0x0078
	FrameGenerateCbkeKeys283k1      FrameID = 0x00E9
	FrameCalculateSmacs283k1Handler FrameID = 0x00EB
)

// Manufacturing, bootloader, ZLL and Green Power.
const (
	FrameMfglibRxHandler             FrameID = 0x008E
	FrameIncomingBootloadHandler     FrameID = 0x0092
	FrameBootloadTransmitComplete    FrameID = 0x0093
	FrameZllNetworkFoundHandler      FrameID = 0x00B6
	FrameZllScanCompleteHandler      FrameID = 0x00B7
	FrameZllAddressAssignmentHandler FrameID = 0x00B8
	FrameZllTouchLinkTargetHandler   FrameID = 0x00BB
	FrameGpepIncomingMessageHandler  FrameID = 0x00C5
	FrameDGpSend                     FrameID = 0x00C6
	FrameDGpSentHandler              FrameID = 0x00C7
)

var frameNames = map[FrameID]string{
	FrameVersion:               "version",
	FrameGetLibraryStatus:      "getLibraryStatus",
	FrameAddEndpoint:           "addEndpoint",
	FrameGetExtendedValue:      "getExtendedValue",
	FrameNop:                   "nop",
	FrameCallback:              "callback",
	FrameNoCallbacks:           "noCallbacks",
	FrameStackTokenChanged:     "stackTokenChangedHandler",
	FrameTimerHandler:          "timerHandler",
	FrameSetConcentrator:       "setConcentrator",
	FrameGetXncpInfo:           "getXncpInfo",
	FrameSetManufacturerCode:   "setManufacturerCode",
	FrameCustomFrame:           "customFrame",
	FrameGetRandomNumber:       "getRandomNumber",
	FrameGetConfigValue:        "getConfigurationValue",
	FrameSetConfigValue:        "setConfigurationValue",
	FrameCustomFrameHandler:    "customFrameHandler",
	FrameSetPolicy:             "setPolicy",
	FrameGetPolicy:             "getPolicy",
	FrameInvalidCommand:        "invalidCommand",
	FrameReadAndClearCounters:  "readAndClearCounters",
	FrameEcho:                  "echo",
	FrameGetValue:              "getValue",
	FrameSetValue:              "setValue",
	FrameReadCounters:          "readCounters",
	FrameCounterRollover:       "counterRolloverHandler",
	FrameGetTokenCount:         "getTokenCount",
	FrameResetNode:             "resetNode",
	FrameTokenFactoryReset:     "tokenFactoryReset",
	FrameGetEUI64:              "getEui64",
	FrameGetNodeID:             "getNodeId",
	FrameSetRadioPower:         "setRadioPower",
	FrameSetRadioChannel:       "setRadioChannel",
	FrameGetRadioChannel:       "getRadioChannel",
	FrameMaximumPayloadLength:  "maximumPayloadLength",
	FrameSetSourceRouteDiscMod: "setSourceRouteDiscoveryMode",

	FrameNetworkInit:             "networkInit",
	FrameNetworkState:            "networkState",
	FrameStackStatusHandler:      "stackStatusHandler",
	FrameStartScan:               "startScan",
	FrameNetworkFoundHandler:     "networkFoundHandler",
	FrameScanCompleteHandler:     "scanCompleteHandler",
	FrameStopScan:                "stopScan",
	FrameFormNetwork:             "formNetwork",
	FrameLeaveNetwork:            "leaveNetwork",
	FramePermitJoining:           "permitJoining",
	FrameChildJoinHandler:        "childJoinHandler",
	FrameGetNetworkParameters:    "getNetworkParameters",
	FrameEnergyScanResultHandler: "energyScanResultHandler",
	FrameDutyCycleHandler:        "dutyCycleHandler",
	FrameGetNeighbor:             "getNeighbor",
	FrameNeighborCount:           "neighborCount",
	FrameGetRouteTableEntry:      "getRouteTableEntry",
	FrameUnusedPanIDFoundHandler: "unusedPanIdFoundHandler",
	FrameFindUnusedPanID:         "findUnusedPanId",
	FrameRemoveNeighbor:          "removeNeighbor",

	FrameRemoteSetBindingHandler:      "remoteSetBindingHandler",
	FrameRemoteDeleteBindingHandler:   "remoteDeleteBindingHandler",
	FrameSendUnicast:                  "sendUnicast",
	FrameSendBroadcast:                "sendBroadcast",
	FrameProxyBroadcast:               "proxyBroadcast",
	FrameSendMulticast:                "sendMulticast",
	FrameSendReply:                    "sendReply",
	FrameSendMulticastWithAlias:       "sendMulticastWithAlias",
	FrameMessageSentHandler:           "messageSentHandler",
	FrameSendManyToOneRouteRequest:    "sendManyToOneRouteRequest",
	FramePollCompleteHandler:          "pollCompleteHandler",
	FramePollHandler:                  "pollHandler",
	FrameIncomingMessageHandler:       "incomingMessageHandler",
	FrameMacFilterMatchMessageHandler: "macFilterMatchMessageHandler",
	FrameSendRawMessage:               "sendRawMessage",
	FrameIncomingRouteRecordHandler:   "incomingRouteRecordHandler",
	FrameIncomingSenderEUI64Handler:   "incomingSenderEui64Handler",
	FrameGetMulticastTableEntry:       "getMulticastTableEntry",
	FrameSetMulticastTableEntry:       "setMulticastTableEntry",
	FrameIDConflictHandler:            "idConflictHandler",
	FrameIncomingManyToOneHandler:     "incomingManyToOneRouteRequestHandler",
	FrameIncomingRouteErrorHandler:    "incomingRouteErrorHandler",
	FrameMacPassthroughHandler:        "macPassthroughMessageHandler",
	FrameRawTransmitCompleteHandler:   "rawTransmitCompleteHandler",
	FrameIncomingNetworkStatusHandler: "incomingNetworkStatusHandler",

	FrameTrustCenterJoinHandler:     "trustCenterJoinHandler",
	FrameSetInitialSecurityState:    "setInitialSecurityState",
	FrameGetCurrentSecurityState:    "getCurrentSecurityState",
	FrameSwitchNetworkKeyHandler:    "switchNetworkKeyHandler",
	FrameBroadcastNextNetworkKey:    "broadcastNextNetworkKey",
	FrameBroadcastNetworkKeySwitch:  "broadcastNetworkKeySwitch",
	FrameZigbeeKeyEstablishment:     "zigbeeKeyEstablishmentHandler",
	FrameRemoveDevice:               "removeDevice",
	FrameClearKeyTable:              "clearKeyTable",
	FrameGetAPSKeyInfo:              "getApsKeyInfo",
	FrameExportKey:                  "exportKey",
	FrameImportKey:                  "importKey",
	FrameGetNetworkKeyInfo:          "getNetworkKeyInfo",
	FrameGenerateCbkeKeysHandler:    "generateCbkeKeysHandler",
	FrameCalculateSmacsHandler:      "calculateSmacsHandler",
	FrameDsaSignHandler:             "dsaSignHandler",
	FrameDsaVerifyHandler:           "dsaVerifyHandler",
	FrameGenerateCbkeKeys283k1:      "generateCbkeKeysHandler283k1",
	FrameCalculateSmacs283k1Handler: "calculateSmacsHandler283k1",

	FrameMfglibRxHandler:             "mfglibRxHandler",
	FrameIncomingBootloadHandler:     "incomingBootloadMessageHandler",
	FrameBootloadTransmitComplete:    "bootloadTransmitCompleteHandler",
	FrameZllNetworkFoundHandler:      "zllNetworkFoundHandler",
	FrameZllScanCompleteHandler:      "zllScanCompleteHandler",
	FrameZllAddressAssignmentHandler: "zllAddressAssignmentHandler",
	FrameZllTouchLinkTargetHandler:   "zllTouchLinkTargetHandler",
	FrameGpepIncomingMessageHandler:  "gpepIncomingMessageHandler",
	FrameDGpSend:                     "dGpSend",
	FrameDGpSentHandler:              "dGpSentHandler",
}

func (id FrameID) String() string {
	if name, ok := frameNames[id]; ok {
		return name
	}
	return fmt.Sprintf("frame_0x%04X", uint16(id))
}
