package ezsp

// Layout is the set of wire-format choices implied by the negotiated protocol
// version. It is resolved once, after the VERSION exchange, and consulted by
// the frame encoder, the callback decoder and the typed command wrappers.
type Layout struct {
	Version uint8
	// Extended selects the 5-byte header with a 16-bit frame id.
	Extended bool
	// WideStatus means application statuses are 32-bit SLStatus values
	// rather than 8-bit EmberStatus values.
	WideStatus bool
	// WideTag means message tags are 16-bit on the wire.
	WideTag bool
	// PacketInfo means receive metadata arrives as one PacketInfo record
	// instead of inline LQI/RSSI bytes.
	PacketInfo bool
	// TagMask bounds the outbound message tag counter.
	TagMask uint16
}

// legacyLayout applies until the protocol version is negotiated.
var legacyLayout = Layout{TagMask: 0x7F}

// LayoutFor derives the layout of a negotiated protocol version.
func LayoutFor(version uint8) Layout {
	l := Layout{
		Version:  version,
		Extended: true,
		TagMask:  0x7F,
	}
	if version >= versionPacketInfo {
		l.WideStatus = true
		l.WideTag = true
		l.PacketInfo = true
		l.TagMask = 0xFFFF
	}
	return l
}

func (l Layout) headerLength() int {
	if l.Extended {
		return extParametersIdx
	}
	return legacyParametersIdx
}

// readStatus reads an application status in the width of this layout.
func (l Layout) readStatus(b *Buffer) SLStatus {
	if l.WideStatus {
		return SLStatus(b.ReadUint32())
	}
	return EmberStatus(b.ReadUint8()).SL()
}

func (l Layout) readTag(b *Buffer) uint16 {
	if l.WideTag {
		return b.ReadUint16()
	}
	return uint16(b.ReadUint8())
}

// readLinkInfo reads the receive metadata that follows an incoming frame's
// fixed fields. Legacy layouts only carry the last hop LQI and RSSI.
func (l Layout) readLinkInfo(b *Buffer) PacketInfo {
	if l.PacketInfo {
		return b.ReadPacketInfo()
	}
	return PacketInfo{LastHopLQI: b.ReadUint8(), LastHopRSSI: b.ReadInt8()}
}

func (l Layout) writeTag(b *Buffer, tag uint16) {
	if l.WideTag {
		b.WriteUint16(tag)
		return
	}
	b.WriteUint8(uint8(tag))
}
