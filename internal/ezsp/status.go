package ezsp

import "fmt"

// Status is the engine-level outcome of a command exchange or a transport
// operation. Every non-success Status is also an error.
type Status uint8

const (
	StatusSuccess                      Status = 0x00
	StatusHostFatalError               Status = 0x21
	StatusASHNCPFatalError             Status = 0x22
	StatusDataFrameTooLong             Status = 0x23
	StatusDataFrameTooShort            Status = 0x24
	StatusNoTxSpace                    Status = 0x25
	StatusNoRxSpace                    Status = 0x26
	StatusNoRxData                     Status = 0x27
	StatusNotConnected                 Status = 0x28
	StatusVersionNotSet                Status = 0x30
	StatusInvalidFrameID               Status = 0x31
	StatusWrongDirection               Status = 0x32
	StatusTruncated                    Status = 0x33
	StatusOverflow                     Status = 0x34
	StatusOutOfMemory                  Status = 0x35
	StatusInvalidValue                 Status = 0x36
	StatusInvalidID                    Status = 0x37
	StatusInvalidCall                  Status = 0x38
	StatusNoResponse                   Status = 0x39
	StatusCommandTooLong               Status = 0x40
	StatusQueueFull                    Status = 0x41
	StatusCommandFiltered              Status = 0x42
	StatusSecurityKeyAlreadySet        Status = 0x43
	StatusSecurityTypeInvalid          Status = 0x44
	StatusSecurityParametersInvalid    Status = 0x45
	StatusSecurityParametersAlreadySet Status = 0x46
	StatusSecurityKeyNotSet            Status = 0x47
	StatusSecurityParametersNotSet     Status = 0x48
	StatusUnsupportedControl           Status = 0x49
	StatusUnsecureFrame                Status = 0x4A
	StatusASHErrorVersion              Status = 0x50
	StatusASHErrorTimeouts             Status = 0x51
	StatusASHErrorResetFail            Status = 0x52
	StatusASHErrorNCPReset             Status = 0x53
	StatusErrorSerialInit              Status = 0x54
	StatusASHErrorNCPType              Status = 0x55
	StatusASHErrorResetMethod          Status = 0x56
	StatusASHErrorXonXoff              Status = 0x57
	StatusASHStarted                   Status = 0x70
	StatusASHConnected                 Status = 0x71
	StatusASHDisconnected              Status = 0x72
	StatusASHAckTimeout                Status = 0x73
	StatusASHCancelled                 Status = 0x74
	StatusASHOutOfSequence             Status = 0x75
	StatusASHBadCRC                    Status = 0x76
	StatusASHCommError                 Status = 0x77
	StatusASHBadAckNum                 Status = 0x78
	StatusASHTooShort                  Status = 0x79
	StatusASHTooLong                   Status = 0x7A
	StatusASHBadControl                Status = 0x7B
	StatusASHBadLength                 Status = 0x7C
	StatusASHAckReceived               Status = 0x7D
	StatusASHAckSent                   Status = 0x7E
	StatusASHNakReceived               Status = 0x7F
	StatusASHNakSent                   Status = 0x80
	StatusASHRstReceived               Status = 0x81
	StatusASHRstSent                   Status = 0x82
	StatusASHStatus                    Status = 0x83
	StatusASHTx                        Status = 0x84
	StatusASHRx                        Status = 0x85
	StatusCPCErrorInit                 Status = 0x86
	StatusNoError                      Status = 0xFF
)

var statusNames = map[Status]string{
	StatusSuccess:                      "SUCCESS",
	StatusHostFatalError:               "HOST_FATAL_ERROR",
	StatusASHNCPFatalError:             "ASH_NCP_FATAL_ERROR",
	StatusDataFrameTooLong:             "DATA_FRAME_TOO_LONG",
	StatusDataFrameTooShort:            "DATA_FRAME_TOO_SHORT",
	StatusNoTxSpace:                    "NO_TX_SPACE",
	StatusNoRxSpace:                    "NO_RX_SPACE",
	StatusNoRxData:                     "NO_RX_DATA",
	StatusNotConnected:                 "NOT_CONNECTED",
	StatusVersionNotSet:                "ERROR_VERSION_NOT_SET",
	StatusInvalidFrameID:               "ERROR_INVALID_FRAME_ID",
	StatusWrongDirection:               "ERROR_WRONG_DIRECTION",
	StatusTruncated:                    "ERROR_TRUNCATED",
	StatusOverflow:                     "ERROR_OVERFLOW",
	StatusOutOfMemory:                  "ERROR_OUT_OF_MEMORY",
	StatusInvalidValue:                 "ERROR_INVALID_VALUE",
	StatusInvalidID:                    "ERROR_INVALID_ID",
	StatusInvalidCall:                  "ERROR_INVALID_CALL",
	StatusNoResponse:                   "ERROR_NO_RESPONSE",
	StatusCommandTooLong:               "ERROR_COMMAND_TOO_LONG",
	StatusQueueFull:                    "ERROR_QUEUE_FULL",
	StatusCommandFiltered:              "ERROR_COMMAND_FILTERED",
	StatusSecurityKeyAlreadySet:        "ERROR_SECURITY_KEY_ALREADY_SET",
	StatusSecurityTypeInvalid:          "ERROR_SECURITY_TYPE_INVALID",
	StatusSecurityParametersInvalid:    "ERROR_SECURITY_PARAMETERS_INVALID",
	StatusSecurityParametersAlreadySet: "ERROR_SECURITY_PARAMETERS_ALREADY_SET",
	StatusSecurityKeyNotSet:            "ERROR_SECURITY_KEY_NOT_SET",
	StatusSecurityParametersNotSet:     "ERROR_SECURITY_PARAMETERS_NOT_SET",
	StatusUnsupportedControl:           "ERROR_UNSUPPORTED_CONTROL",
	StatusUnsecureFrame:                "ERROR_UNSECURE_FRAME",
	StatusASHErrorVersion:              "ASH_ERROR_VERSION",
	StatusASHErrorTimeouts:             "ASH_ERROR_TIMEOUTS",
	StatusASHErrorResetFail:            "ASH_ERROR_RESET_FAIL",
	StatusASHErrorNCPReset:             "ASH_ERROR_NCP_RESET",
	StatusErrorSerialInit:              "ERROR_SERIAL_INIT",
	StatusASHErrorNCPType:              "ASH_ERROR_NCP_TYPE",
	StatusASHErrorResetMethod:          "ASH_ERROR_RESET_METHOD",
	StatusASHErrorXonXoff:              "ASH_ERROR_XON_XOFF",
	StatusASHStarted:                   "ASH_STARTED",
	StatusASHConnected:                 "ASH_CONNECTED",
	StatusASHDisconnected:              "ASH_DISCONNECTED",
	StatusASHAckTimeout:                "ASH_ACK_TIMEOUT",
	StatusASHCancelled:                 "ASH_CANCELLED",
	StatusASHOutOfSequence:             "ASH_OUT_OF_SEQUENCE",
	StatusASHBadCRC:                    "ASH_BAD_CRC",
	StatusASHCommError:                 "ASH_COMM_ERROR",
	StatusASHBadAckNum:                 "ASH_BAD_ACKNUM",
	StatusASHTooShort:                  "ASH_TOO_SHORT",
	StatusASHTooLong:                   "ASH_TOO_LONG",
	StatusASHBadControl:                "ASH_BAD_CONTROL",
	StatusASHBadLength:                 "ASH_BAD_LENGTH",
	StatusASHAckReceived:               "ASH_ACK_RECEIVED",
	StatusASHAckSent:                   "ASH_ACK_SENT",
	StatusASHNakReceived:               "ASH_NAK_RECEIVED",
	StatusASHNakSent:                   "ASH_NAK_SENT",
	StatusASHRstReceived:               "ASH_RST_RECEIVED",
	StatusASHRstSent:                   "ASH_RST_SENT",
	StatusASHStatus:                    "ASH_STATUS",
	StatusASHTx:                        "ASH_TX",
	StatusASHRx:                        "ASH_RX",
	StatusCPCErrorInit:                 "CPC_ERROR_INIT",
	StatusNoError:                      "NO_ERROR",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("EZSP_STATUS_0x%02X", uint8(s))
}

func (s Status) Error() string {
	return "ezsp: " + s.String()
}

// Err returns nil for success and the status itself otherwise.
func (s Status) Err() error {
	if s == StatusSuccess {
		return nil
	}
	return s
}

// EmberStatus is the one-byte application status reported by protocol
// versions before 0x0e.
type EmberStatus uint8

const (
	EmberSuccess               EmberStatus = 0x00
	EmberErrFatal              EmberStatus = 0x01
	EmberBadArgument           EmberStatus = 0x02
	EmberNotFound              EmberStatus = 0x03
	EmberNoBuffers             EmberStatus = 0x18
	EmberMacNoAckReceived      EmberStatus = 0x40
	EmberMacIndirectTimeout    EmberStatus = 0x42
	EmberDeliveryFailed        EmberStatus = 0x66
	EmberInvalidCall           EmberStatus = 0x70
	EmberMaxMessageLimit       EmberStatus = 0x72
	EmberMessageTooLong        EmberStatus = 0x74
	EmberNetworkUp             EmberStatus = 0x90
	EmberNetworkDown           EmberStatus = 0x91
	EmberNotJoined             EmberStatus = 0x93
	EmberJoinFailed            EmberStatus = 0x94
	EmberNodeIDChanged         EmberStatus = 0x99
	EmberPanIDChanged          EmberStatus = 0x9A
	EmberChannelChanged        EmberStatus = 0x9B
	EmberNetworkOpened         EmberStatus = 0x9C
	EmberNetworkClosed         EmberStatus = 0x9D
	EmberNetworkBusy           EmberStatus = 0xA1
	EmberSourceRouteFailure    EmberStatus = 0xA9
	EmberManyToOneRouteFailure EmberStatus = 0xAA
	EmberNoBeacons             EmberStatus = 0xAB
	EmberIndexOutOfRange       EmberStatus = 0xB1
	EmberTableFull             EmberStatus = 0xB4
	EmberLibraryNotPresent     EmberStatus = 0xB5
)

// SLStatus is the 32-bit application status reported by protocol 0x0e and
// later. Legacy EmberStatus values are converted on read.
type SLStatus uint32

const (
	SLOK                       SLStatus = 0x0000
	SLFail                     SLStatus = 0x0001
	SLInvalidState             SLStatus = 0x0002
	SLNotReady                 SLStatus = 0x0003
	SLBusy                     SLStatus = 0x0004
	SLTimeout                  SLStatus = 0x0007
	SLNetworkUp                SLStatus = 0x0015
	SLNetworkDown              SLStatus = 0x0016
	SLNotJoined                SLStatus = 0x0017
	SLNoBeacons                SLStatus = 0x0018
	SLAllocationFailed         SLStatus = 0x0019
	SLFull                     SLStatus = 0x001C
	SLInvalidParameter         SLStatus = 0x0021
	SLInvalidIndex             SLStatus = 0x0027
	SLNotFound                 SLStatus = 0x002D
	SLMessageTooLong           SLStatus = 0x0038
	SLNotSupported             SLStatus = 0x000F
	SLMacNoAck                 SLStatus = 0x0040
	SLMacIndirectTimeout       SLStatus = 0x0042
	SLZigbeeDeliveryFailed     SLStatus = 0x0C02
	SLZigbeeMaxMessageLimit    SLStatus = 0x0C03
	SLZigbeeNodeIDChanged      SLStatus = 0x0C07
	SLZigbeeSourceRouteFailure SLStatus = 0x0C13
	SLZigbeeManyToOneFailure   SLStatus = 0x0C14
	SLZigbeePanIDChanged       SLStatus = 0x0C16
	SLZigbeeChannelChanged     SLStatus = 0x0C17
	SLZigbeeNetworkOpened      SLStatus = 0x0C18
	SLZigbeeNetworkClosed      SLStatus = 0x0C19
)

var slStatusNames = map[SLStatus]string{
	SLOK:                       "OK",
	SLFail:                     "FAIL",
	SLInvalidState:             "INVALID_STATE",
	SLNotReady:                 "NOT_READY",
	SLBusy:                     "BUSY",
	SLTimeout:                  "TIMEOUT",
	SLNetworkUp:                "NETWORK_UP",
	SLNetworkDown:              "NETWORK_DOWN",
	SLNotJoined:                "NOT_JOINED",
	SLNoBeacons:                "NO_BEACONS",
	SLAllocationFailed:         "ALLOCATION_FAILED",
	SLFull:                     "FULL",
	SLInvalidParameter:         "INVALID_PARAMETER",
	SLInvalidIndex:             "INVALID_INDEX",
	SLNotFound:                 "NOT_FOUND",
	SLMessageTooLong:           "MESSAGE_TOO_LONG",
	SLNotSupported:             "NOT_SUPPORTED",
	SLMacNoAck:                 "MAC_NO_ACK",
	SLMacIndirectTimeout:       "MAC_INDIRECT_TIMEOUT",
	SLZigbeeDeliveryFailed:     "ZIGBEE_DELIVERY_FAILED",
	SLZigbeeMaxMessageLimit:    "ZIGBEE_MAX_MESSAGE_LIMIT_REACHED",
	SLZigbeeNodeIDChanged:      "ZIGBEE_NODE_ID_CHANGED",
	SLZigbeeSourceRouteFailure: "ZIGBEE_SOURCE_ROUTE_FAILURE",
	SLZigbeeManyToOneFailure:   "ZIGBEE_MANY_TO_ONE_ROUTE_FAILURE",
	SLZigbeePanIDChanged:       "ZIGBEE_PAN_ID_CHANGED",
	SLZigbeeChannelChanged:     "ZIGBEE_CHANNEL_CHANGED",
	SLZigbeeNetworkOpened:      "ZIGBEE_NETWORK_OPENED",
	SLZigbeeNetworkClosed:      "ZIGBEE_NETWORK_CLOSED",
}

func (s SLStatus) String() string {
	if name, ok := slStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SL_STATUS_0x%04X", uint32(s))
}

// OK reports whether the status is success.
func (s SLStatus) OK() bool { return s == SLOK }

var emberToSL = map[EmberStatus]SLStatus{
	EmberSuccess:               SLOK,
	EmberErrFatal:              SLFail,
	EmberBadArgument:           SLInvalidParameter,
	EmberNotFound:              SLNotFound,
	EmberNoBuffers:             SLAllocationFailed,
	EmberMacNoAckReceived:      SLMacNoAck,
	EmberMacIndirectTimeout:    SLMacIndirectTimeout,
	EmberDeliveryFailed:        SLZigbeeDeliveryFailed,
	EmberInvalidCall:           SLInvalidState,
	EmberMaxMessageLimit:       SLZigbeeMaxMessageLimit,
	EmberMessageTooLong:        SLMessageTooLong,
	EmberNetworkUp:             SLNetworkUp,
	EmberNetworkDown:           SLNetworkDown,
	EmberNotJoined:             SLNotJoined,
	EmberJoinFailed:            SLFail,
	EmberNodeIDChanged:         SLZigbeeNodeIDChanged,
	EmberPanIDChanged:          SLZigbeePanIDChanged,
	EmberChannelChanged:        SLZigbeeChannelChanged,
	EmberNetworkOpened:         SLZigbeeNetworkOpened,
	EmberNetworkClosed:         SLZigbeeNetworkClosed,
	EmberNetworkBusy:           SLBusy,
	EmberSourceRouteFailure:    SLZigbeeSourceRouteFailure,
	EmberManyToOneRouteFailure: SLZigbeeManyToOneFailure,
	EmberNoBeacons:             SLNoBeacons,
	EmberIndexOutOfRange:       SLInvalidIndex,
	EmberTableFull:             SLFull,
	EmberLibraryNotPresent:     SLNotSupported,
}

// SL converts a legacy status. Codes without an equivalent become SLFail.
func (s EmberStatus) SL() SLStatus {
	if sl, ok := emberToSL[s]; ok {
		return sl
	}
	return SLFail
}
