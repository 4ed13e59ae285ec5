package ezsp

import (
	"errors"
	"fmt"
)

var errUnknownCallback = errors.New("ezsp: unknown callback")

type decodeFunc func(b *Buffer, l Layout) Callback

// callbackDecoder holds the two layouts of one callback frame. The pair is
// resolved once per frame from the negotiated version.
type callbackDecoder struct {
	legacy  decodeFunc
	current decodeFunc
}

// anyVersion is for callbacks whose shape differs only in status and tag
// width, which the layout already accounts for.
func anyVersion(fn decodeFunc) callbackDecoder {
	return callbackDecoder{legacy: fn, current: fn}
}

func (d callbackDecoder) pick(l Layout) decodeFunc {
	if l.Version >= versionPacketInfo {
		return d.current
	}
	return d.legacy
}

// decodeCallback decodes the parameters of the callback frame loaded in b.
// The cursor must be at the parameter region.
func (e *Engine) decodeCallback(id FrameID, b *Buffer, l Layout) (Callback, error) {
	d, ok := e.decoders[id]
	if !ok {
		return nil, errUnknownCallback
	}
	cb := d.pick(l)(b, l)
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	if n := b.Remaining(); n > 0 {
		e.logger.Debug("ezsp callback trailing bytes", "frame", id, "bytes", n)
	}
	return cb, nil
}

func callbackDecoders() map[FrameID]callbackDecoder {
	return map[FrameID]callbackDecoder{
		FrameStackStatusHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return StackStatusCallback{Status: l.readStatus(b)}
		}),
		FrameMessageSentHandler: {
			legacy: func(b *Buffer, l Layout) Callback {
				var cb MessageSentCallback
				cb.Type = OutgoingMessageType(b.ReadUint8())
				cb.IndexOrDestination = b.ReadUint16()
				cb.ApsFrame = b.ReadApsFrame()
				cb.MessageTag = uint16(b.ReadUint8())
				cb.Status = EmberStatus(b.ReadUint8()).SL()
				cb.Contents = b.ReadPayload()
				return cb
			},
			current: func(b *Buffer, l Layout) Callback {
				var cb MessageSentCallback
				cb.Status = SLStatus(b.ReadUint32())
				cb.Type = OutgoingMessageType(b.ReadUint8())
				cb.IndexOrDestination = b.ReadUint16()
				cb.ApsFrame = b.ReadApsFrame()
				cb.MessageTag = b.ReadUint16()
				cb.Contents = b.ReadPayload()
				return cb
			},
		},
		FrameIncomingMessageHandler: {
			legacy: func(b *Buffer, l Layout) Callback {
				var cb IncomingMessageCallback
				cb.Type = IncomingMessageType(b.ReadUint8())
				cb.ApsFrame = b.ReadApsFrame()
				cb.Packet.LastHopLQI = b.ReadUint8()
				cb.Packet.LastHopRSSI = b.ReadInt8()
				cb.Packet.SenderShortID = b.ReadUint16()
				cb.Packet.BindingIndex = b.ReadUint8()
				cb.Packet.AddressIndex = b.ReadUint8()
				cb.Contents = b.ReadPayload()
				return cb
			},
			current: func(b *Buffer, l Layout) Callback {
				return IncomingMessageCallback{
					Type:     IncomingMessageType(b.ReadUint8()),
					ApsFrame: b.ReadApsFrame(),
					Packet:   b.ReadPacketInfo(),
					Contents: b.ReadPayload(),
				}
			},
		},
		FrameIncomingSenderEUI64Handler: anyVersion(func(b *Buffer, l Layout) Callback {
			return IncomingSenderEUI64Callback{SenderEUI64: b.ReadEUI64()}
		}),
		FrameTrustCenterJoinHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return TrustCenterJoinCallback{
				NewNodeID:       b.ReadUint16(),
				NewNodeEUI64:    b.ReadEUI64(),
				Status:          DeviceUpdate(b.ReadUint8()),
				PolicyDecision:  JoinDecision(b.ReadUint8()),
				ParentOfNewNode: b.ReadUint16(),
			}
		}),
		FrameMacFilterMatchMessageHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return MacFilterMatchCallback{
				FilterIndex:     b.ReadUint8(),
				PassthroughType: MacPassthroughType(b.ReadUint8()),
				Packet:          l.readLinkInfo(b),
				Contents:        b.ReadPayload(),
			}
		}),
		FrameMacPassthroughHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return MacPassthroughCallback{
				PassthroughType: MacPassthroughType(b.ReadUint8()),
				Packet:          l.readLinkInfo(b),
				Contents:        b.ReadPayload(),
			}
		}),
		FrameGpepIncomingMessageHandler: anyVersion(decodeGpepIncoming),
		FrameDGpSentHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return DGpSentCallback{Status: l.readStatus(b), GpepHandle: b.ReadUint8()}
		}),
		FrameIDConflictHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return IDConflictCallback{NodeID: b.ReadUint16()}
		}),
		FrameNetworkFoundHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return NetworkFoundCallback{
				Network:     b.ReadZigbeeNetwork(),
				LinkQuality: b.ReadUint8(),
				RSSI:        b.ReadInt8(),
			}
		}),
		FrameEnergyScanResultHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return EnergyScanResultCallback{Channel: b.ReadUint8(), MaxRSSI: b.ReadInt8()}
		}),
		FrameScanCompleteHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return ScanCompleteCallback{Channel: b.ReadUint8(), Status: l.readStatus(b)}
		}),
		FrameUnusedPanIDFoundHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return UnusedPanIDFoundCallback{PanID: b.ReadUint16(), Channel: b.ReadUint8()}
		}),
		FrameChildJoinHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return ChildJoinCallback{
				Index:      b.ReadUint8(),
				Joining:    b.ReadBool(),
				ChildID:    b.ReadUint16(),
				ChildEUI64: b.ReadEUI64(),
				ChildType:  NodeType(b.ReadUint8()),
			}
		}),
		FrameDutyCycleHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return DutyCycleCallback{
				ChannelPage:  b.ReadUint8(),
				Channel:      b.ReadUint8(),
				State:        b.ReadUint8(),
				TotalDevices: b.ReadUint8(),
				Devices:      b.ReadPerDeviceDutyCycles(),
			}
		}),
		FrameRemoteSetBindingHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return RemoteSetBindingCallback{
				Entry:          b.ReadBindingTableEntry(),
				Index:          b.ReadUint8(),
				PolicyDecision: l.readStatus(b),
			}
		}),
		FrameRemoteDeleteBindingHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return RemoteDeleteBindingCallback{Index: b.ReadUint8(), PolicyDecision: l.readStatus(b)}
		}),
		FramePollCompleteHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return PollCompleteCallback{Status: l.readStatus(b)}
		}),
		FramePollHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return PollCallback{ChildID: b.ReadUint16(), TransmitExpected: b.ReadBool()}
		}),
		FrameIncomingRouteRecordHandler: {
			legacy: func(b *Buffer, l Layout) Callback {
				cb := IncomingRouteRecordCallback{
					Source:      b.ReadUint16(),
					SourceEUI64: b.ReadEUI64(),
					LinkQuality: b.ReadUint8(),
					RSSI:        b.ReadInt8(),
				}
				cb.Relays = b.ReadUint16List(int(b.ReadUint8()))
				return cb
			},
			// v14 carries the sender and link quality in the packet info.
			current: func(b *Buffer, l Layout) Callback {
				info := b.ReadPacketInfo()
				return IncomingRouteRecordCallback{
					Source:      info.SenderShortID,
					SourceEUI64: info.SenderLongID,
					LinkQuality: info.LastHopLQI,
					RSSI:        info.LastHopRSSI,
					Relays:      b.ReadUint16List(int(b.ReadUint8())),
				}
			},
		},
		FrameIncomingManyToOneHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return IncomingManyToOneRouteRequestCallback{
				Source: b.ReadUint16(),
				LongID: b.ReadEUI64(),
				Cost:   b.ReadUint8(),
			}
		}),
		FrameIncomingRouteErrorHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return IncomingRouteErrorCallback{Status: l.readStatus(b), Target: b.ReadUint16()}
		}),
		FrameIncomingNetworkStatusHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return IncomingNetworkStatusCallback{ErrorCode: b.ReadUint8(), Target: b.ReadUint16()}
		}),
		FrameCounterRollover: anyVersion(func(b *Buffer, l Layout) Callback {
			return CounterRolloverCallback{Type: CounterType(b.ReadUint8())}
		}),
		FrameStackTokenChanged: anyVersion(func(b *Buffer, l Layout) Callback {
			return StackTokenChangedCallback{TokenAddress: b.ReadUint16()}
		}),
		FrameTimerHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return TimerCallback{TimerID: b.ReadUint8()}
		}),
		FrameCustomFrameHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return CustomFrameCallback{Payload: b.ReadPayload()}
		}),
		FrameSwitchNetworkKeyHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return SwitchNetworkKeyCallback{SequenceNumber: b.ReadUint8()}
		}),
		FrameZigbeeKeyEstablishment: anyVersion(func(b *Buffer, l Layout) Callback {
			return ZigbeeKeyEstablishmentCallback{Partner: b.ReadEUI64(), Status: b.ReadUint8()}
		}),
		FrameRawTransmitCompleteHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return RawTransmitCompleteCallback{Status: l.readStatus(b)}
		}),
		FrameMfglibRxHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return MfglibRxCallback{LinkQuality: b.ReadUint8(), RSSI: b.ReadInt8(), Packet: b.ReadPayload()}
		}),
		FrameIncomingBootloadHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return IncomingBootloadCallback{
				LongID:   b.ReadEUI64(),
				Packet:   l.readLinkInfo(b),
				Contents: b.ReadPayload(),
			}
		}),
		FrameBootloadTransmitComplete: anyVersion(func(b *Buffer, l Layout) Callback {
			return BootloadTransmitCompleteCallback{Status: l.readStatus(b), Contents: b.ReadPayload()}
		}),
		FrameZllNetworkFoundHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			cb := ZllNetworkFoundCallback{Network: b.ReadZllNetwork()}
			isNull := b.ReadBool()
			info := b.ReadZllDeviceInfoRecord()
			if !isNull {
				cb.DeviceInfo = &info
			}
			cb.Packet = l.readLinkInfo(b)
			return cb
		}),
		FrameZllScanCompleteHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return ZllScanCompleteCallback{Status: l.readStatus(b)}
		}),
		FrameZllAddressAssignmentHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return ZllAddressAssignmentCallback{
				Assignment: b.ReadZllAddressAssignment(),
				Packet:     l.readLinkInfo(b),
			}
		}),
		FrameZllTouchLinkTargetHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return ZllTouchLinkTargetCallback{Network: b.ReadZllNetwork()}
		}),
		FrameGenerateCbkeKeysHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return GenerateCbkeKeysCallback{
				ID:                 FrameGenerateCbkeKeysHandler,
				Status:             l.readStatus(b),
				EphemeralPublicKey: b.ReadBytes(PublicKeySize),
			}
		}),
		FrameGenerateCbkeKeys283k1: anyVersion(func(b *Buffer, l Layout) Callback {
			return GenerateCbkeKeysCallback{
				ID:                 FrameGenerateCbkeKeys283k1,
				Status:             l.readStatus(b),
				EphemeralPublicKey: b.ReadBytes(PublicKey283k1Size),
			}
		}),
		FrameCalculateSmacsHandler:      anyVersion(decodeSmacs(FrameCalculateSmacsHandler)),
		FrameCalculateSmacs283k1Handler: anyVersion(decodeSmacs(FrameCalculateSmacs283k1Handler)),
		FrameDsaSignHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return DsaSignCallback{Status: l.readStatus(b), Contents: b.ReadPayload()}
		}),
		FrameDsaVerifyHandler: anyVersion(func(b *Buffer, l Layout) Callback {
			return DsaVerifyCallback{Status: l.readStatus(b)}
		}),
	}
}

func decodeGpepIncoming(b *Buffer, l Layout) Callback {
	return GpepIncomingCallback{
		Status:             b.ReadUint8(),
		GpdLink:            b.ReadUint8(),
		Sequence:           b.ReadUint8(),
		Address:            b.ReadGpAddress(),
		SecurityLevel:      b.ReadUint8(),
		SecurityKeyType:    b.ReadUint8(),
		AutoCommissioning:  b.ReadBool(),
		BidirectionalInfo:  b.ReadUint8(),
		SecurityFrameCount: b.ReadUint32(),
		GpdCommandID:       b.ReadUint8(),
		MIC:                b.ReadUint32(),
		ProxyTableIndex:    b.ReadUint8(),
		GpdCommandPayload:  b.ReadPayload(),
	}
}

func decodeSmacs(id FrameID) decodeFunc {
	return func(b *Buffer, l Layout) Callback {
		return CalculateSmacsCallback{
			ID:            id,
			Status:        l.readStatus(b),
			InitiatorSmac: b.ReadBytes(SmacSize),
			ResponderSmac: b.ReadBytes(SmacSize),
		}
	}
}
