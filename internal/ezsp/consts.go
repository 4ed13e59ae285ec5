package ezsp

// Protocol versions.
const (
	MinProtocolVersion    uint8 = 0x0d
	LatestProtocolVersion uint8 = 0x10
	// versionPacketInfo is the first version with SLStatus, 16-bit message
	// tags and bundled rx packet info.
	versionPacketInfo uint8 = 0x0e

	StackTypeMesh uint8 = 0x02
)

// Frame layout.
const (
	MaxFrameLength = 220

	sequenceIndex = 0

	legacyMinFrameLength  = 3
	legacyFrameControlIdx = 1
	legacyFrameIDIdx      = 2
	legacyParametersIdx   = 3

	extMinFrameLength    = 5
	extFrameControlLBIdx = 1
	extFrameControlHBIdx = 2
	extFrameIDLBIdx      = 3
	extFrameIDHBIdx      = 4
	extParametersIdx     = 5
)

// Frame control, low byte.
const (
	fcDirectionMask = 0x80
	fcCommand       = 0x00
	fcResponse      = 0x80

	fcNetworkIndexMask   = 0x60
	fcNetworkIndexOffset = 5

	fcSleepModeMask = 0x03

	fcOverflow  = 0x01
	fcTruncated = 0x02
	fcPendingCB = 0x04
	fcSyncCB    = 0x08
	fcAsyncCB   = 0x10
)

// Frame control, high byte (extended layout only).
const (
	fcExtSecurityMask      = 0x80
	fcExtPaddingMask       = 0x40
	fcExtFormatVersionMask = 0x03
	fcExtFormatVersion     = 0x01
	fcExtReservedMask      = 0x3C
)

// Key and certificate sizes.
const (
	KeySize              = 16
	PublicKeySize        = 22
	SmacSize             = 16
	PublicKey283k1Size   = 37
	CertificateSize      = 48
	Certificate283k1Size = 74
)

// Well-known addresses and endpoints.
const (
	CoordinatorAddress uint16 = 0x0000

	BroadcastSleepy        uint16 = 0xFFFF
	BroadcastRxOnWhenIdle  uint16 = 0xFFFD
	BroadcastRouters       uint16 = 0xFFFC
	NullNodeID             uint16 = 0xFFFF
	GreenPowerEndpoint     uint8  = 0xF2
	ZDOProfileID           uint16 = 0x0000
	HAProfileID            uint16 = 0x0104
	TouchlinkProfileID     uint16 = 0xC05E
	GreenPowerProfileID    uint16 = 0xA1E0
	TouchlinkClusterID     uint16 = 0x1000
	EndDeviceAnnounceID    uint16 = 0x0013
	zdoResponseClusterMask uint16 = 0x8000

	// DefaultMaxHops is the radius used when a caller does not thread one through.
	DefaultMaxHops uint8 = 12
)

// IsBroadcastAddress reports whether addr is one of the three broadcast
// addresses the NCP accepts as a broadcast destination.
func IsBroadcastAddress(addr uint16) bool {
	return addr == BroadcastSleepy || addr == BroadcastRxOnWhenIdle || addr == BroadcastRouters
}

// SleepMode is carried in the low bits of every command's frame control.
type SleepMode uint8

const (
	SleepIdle      SleepMode = 0x00
	SleepDeep      SleepMode = 0x01
	SleepPowerDown SleepMode = 0x02
)
