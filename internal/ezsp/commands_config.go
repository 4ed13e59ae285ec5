package ezsp

import "context"

// statusCommand runs a command whose reply is a single application status.
func (e *Engine) statusCommand(ctx context.Context, id FrameID, encode func(w *Buffer)) (SLStatus, error) {
	l := e.Layout()
	var status SLStatus
	err := e.command(ctx, id, encode, func(r *Buffer) {
		status = l.readStatus(r)
	})
	return status, err
}

// Version sends the VERSION command. Before negotiation it goes out in the
// legacy layout.
func (e *Engine) Version(ctx context.Context, desired uint8) (VersionInfo, error) {
	var v VersionInfo
	err := e.command(ctx, FrameVersion,
		func(w *Buffer) { w.WriteUint8(desired) },
		func(r *Buffer) {
			v.ProtocolVersion = r.ReadUint8()
			v.StackType = r.ReadUint8()
			v.StackVersion = r.ReadUint16()
		})
	return v, err
}

func (e *Engine) Nop(ctx context.Context) error {
	return e.command(ctx, FrameNop, nil, nil)
}

// Echo returns the data as reflected by the NCP.
func (e *Engine) Echo(ctx context.Context, data []byte) ([]byte, error) {
	var out []byte
	err := e.command(ctx, FrameEcho,
		func(w *Buffer) { w.WritePayload(data) },
		func(r *Buffer) { out = r.ReadPayload() })
	return out, err
}

// Callback asks the NCP to deliver its queued callbacks. The callbacks
// arrive through the event bus before Callback returns.
func (e *Engine) Callback(ctx context.Context) error {
	return e.command(ctx, FrameCallback, nil, nil)
}

func (e *Engine) GetConfigurationValue(ctx context.Context, id ConfigID) (SLStatus, uint16, error) {
	l := e.Layout()
	var (
		status SLStatus
		value  uint16
	)
	err := e.command(ctx, FrameGetConfigValue,
		func(w *Buffer) { w.WriteUint8(uint8(id)) },
		func(r *Buffer) {
			status = l.readStatus(r)
			value = r.ReadUint16()
		})
	return status, value, err
}

func (e *Engine) SetConfigurationValue(ctx context.Context, id ConfigID, value uint16) (SLStatus, error) {
	return e.statusCommand(ctx, FrameSetConfigValue, func(w *Buffer) {
		w.WriteUint8(uint8(id))
		w.WriteUint16(value)
	})
}

func (e *Engine) SetPolicy(ctx context.Context, id PolicyID, decision DecisionID) (SLStatus, error) {
	return e.statusCommand(ctx, FrameSetPolicy, func(w *Buffer) {
		w.WriteUint8(uint8(id))
		w.WriteUint8(uint8(decision))
	})
}

func (e *Engine) GetPolicy(ctx context.Context, id PolicyID) (SLStatus, DecisionID, error) {
	l := e.Layout()
	var (
		status   SLStatus
		decision DecisionID
	)
	err := e.command(ctx, FrameGetPolicy,
		func(w *Buffer) { w.WriteUint8(uint8(id)) },
		func(r *Buffer) {
			status = l.readStatus(r)
			decision = DecisionID(r.ReadUint8())
		})
	return status, decision, err
}

// maxValueLength bounds value replies; newer firmware takes it as a parameter.
const maxValueLength = 255

func (e *Engine) GetValue(ctx context.Context, id ValueID) (SLStatus, []byte, error) {
	l := e.Layout()
	var (
		status SLStatus
		value  []byte
	)
	err := e.command(ctx, FrameGetValue,
		func(w *Buffer) {
			w.WriteUint8(uint8(id))
			if l.WideStatus {
				w.WriteUint8(maxValueLength)
			}
		},
		func(r *Buffer) {
			status = l.readStatus(r)
			value = r.ReadPayload()
		})
	return status, value, err
}

func (e *Engine) SetValue(ctx context.Context, id ValueID, value []byte) (SLStatus, error) {
	return e.statusCommand(ctx, FrameSetValue, func(w *Buffer) {
		w.WriteUint8(uint8(id))
		w.WritePayload(value)
	})
}

func (e *Engine) GetExtendedValue(ctx context.Context, id ExtendedValueID, characteristics uint32) (SLStatus, []byte, error) {
	l := e.Layout()
	var (
		status SLStatus
		value  []byte
	)
	err := e.command(ctx, FrameGetExtendedValue,
		func(w *Buffer) {
			w.WriteUint8(uint8(id))
			w.WriteUint32(characteristics)
			if l.WideStatus {
				w.WriteUint8(maxValueLength)
			}
		},
		func(r *Buffer) {
			status = l.readStatus(r)
			value = r.ReadPayload()
		})
	return status, value, err
}

// Endpoint describes an application endpoint registered on the NCP.
type Endpoint struct {
	ID              uint8    `yaml:"id" json:"id"`
	ProfileID       uint16   `yaml:"profile_id" json:"profile_id"`
	DeviceID        uint16   `yaml:"device_id" json:"device_id"`
	AppFlags        uint8    `yaml:"app_flags" json:"app_flags"`
	InputClusters   []uint16 `yaml:"input_clusters" json:"input_clusters"`
	OutputClusters  []uint16 `yaml:"output_clusters" json:"output_clusters"`
	MulticastGroups []uint16 `yaml:"multicast_groups" json:"multicast_groups"`
}

func (e *Engine) AddEndpoint(ctx context.Context, ep Endpoint) (SLStatus, error) {
	return e.statusCommand(ctx, FrameAddEndpoint, func(w *Buffer) {
		w.WriteUint8(ep.ID)
		w.WriteUint16(ep.ProfileID)
		w.WriteUint16(ep.DeviceID)
		w.WriteUint8(ep.AppFlags)
		w.WriteUint8(uint8(len(ep.InputClusters)))
		w.WriteUint8(uint8(len(ep.OutputClusters)))
		w.WriteUint16List(ep.InputClusters)
		w.WriteUint16List(ep.OutputClusters)
	})
}

func (e *Engine) readCounters(ctx context.Context, id FrameID) ([]uint16, error) {
	var counters []uint16
	err := e.command(ctx, id, nil, func(r *Buffer) {
		counters = r.ReadUint16List(int(CounterTypeCount))
	})
	return counters, err
}

// ReadCounters returns the NCP counters indexed by CounterType.
func (e *Engine) ReadCounters(ctx context.Context) ([]uint16, error) {
	return e.readCounters(ctx, FrameReadCounters)
}

func (e *Engine) ReadAndClearCounters(ctx context.Context) ([]uint16, error) {
	return e.readCounters(ctx, FrameReadAndClearCounters)
}

func (e *Engine) SetManufacturerCode(ctx context.Context, code uint16) error {
	return e.command(ctx, FrameSetManufacturerCode, func(w *Buffer) { w.WriteUint16(code) }, nil)
}

func (e *Engine) GetEUI64(ctx context.Context) (EUI64, error) {
	var eui EUI64
	err := e.command(ctx, FrameGetEUI64, nil, func(r *Buffer) { eui = r.ReadEUI64() })
	return eui, err
}

func (e *Engine) GetNodeID(ctx context.Context) (uint16, error) {
	var id uint16
	err := e.command(ctx, FrameGetNodeID, nil, func(r *Buffer) { id = r.ReadUint16() })
	return id, err
}

func (e *Engine) GetLibraryStatus(ctx context.Context, libraryID uint8) (uint8, error) {
	var status uint8
	err := e.command(ctx, FrameGetLibraryStatus,
		func(w *Buffer) { w.WriteUint8(libraryID) },
		func(r *Buffer) { status = r.ReadUint8() })
	return status, err
}

// XncpInfo identifies vendor extensions on the NCP.
type XncpInfo struct {
	ManufacturerID uint16 `json:"manufacturer_id"`
	VersionNumber  uint16 `json:"version_number"`
}

func (e *Engine) GetXncpInfo(ctx context.Context) (SLStatus, XncpInfo, error) {
	l := e.Layout()
	var (
		status SLStatus
		info   XncpInfo
	)
	err := e.command(ctx, FrameGetXncpInfo, nil, func(r *Buffer) {
		status = l.readStatus(r)
		info.ManufacturerID = r.ReadUint16()
		info.VersionNumber = r.ReadUint16()
	})
	return status, info, err
}

func (e *Engine) CustomFrame(ctx context.Context, payload []byte) (SLStatus, []byte, error) {
	l := e.Layout()
	var (
		status SLStatus
		reply  []byte
	)
	err := e.command(ctx, FrameCustomFrame,
		func(w *Buffer) { w.WritePayload(payload) },
		func(r *Buffer) {
			status = l.readStatus(r)
			reply = r.ReadPayload()
		})
	return status, reply, err
}

func (e *Engine) GetRandomNumber(ctx context.Context) (SLStatus, uint16, error) {
	l := e.Layout()
	var (
		status SLStatus
		value  uint16
	)
	err := e.command(ctx, FrameGetRandomNumber, nil, func(r *Buffer) {
		status = l.readStatus(r)
		value = r.ReadUint16()
	})
	return status, value, err
}

func (e *Engine) SetConcentrator(ctx context.Context, on bool, concentratorType, minTime, maxTime uint16, routeErrorThreshold, deliveryFailureThreshold, maxHops uint8) (SLStatus, error) {
	return e.statusCommand(ctx, FrameSetConcentrator, func(w *Buffer) {
		w.WriteBool(on)
		w.WriteUint16(concentratorType)
		w.WriteUint16(minTime)
		w.WriteUint16(maxTime)
		w.WriteUint8(routeErrorThreshold)
		w.WriteUint8(deliveryFailureThreshold)
		w.WriteUint8(maxHops)
	})
}

// SetSourceRouteDiscoveryMode returns the milliseconds until the next
// many-to-one route request.
func (e *Engine) SetSourceRouteDiscoveryMode(ctx context.Context, mode SourceRouteDiscoveryMode) (uint32, error) {
	var remaining uint32
	err := e.command(ctx, FrameSetSourceRouteDiscMod,
		func(w *Buffer) { w.WriteUint8(uint8(mode)) },
		func(r *Buffer) { remaining = r.ReadUint32() })
	return remaining, err
}

func (e *Engine) MaximumPayloadLength(ctx context.Context) (uint8, error) {
	var n uint8
	err := e.command(ctx, FrameMaximumPayloadLength, nil, func(r *Buffer) { n = r.ReadUint8() })
	return n, err
}

func (e *Engine) GetTokenCount(ctx context.Context) (uint8, error) {
	var n uint8
	err := e.command(ctx, FrameGetTokenCount, nil, func(r *Buffer) { n = r.ReadUint8() })
	return n, err
}

// ResetNode reboots the NCP firmware. The link drops afterwards.
func (e *Engine) ResetNode(ctx context.Context) error {
	return e.command(ctx, FrameResetNode, nil, nil)
}

func (e *Engine) TokenFactoryReset(ctx context.Context, excludeOutgoingFC, excludeBootCounter bool) error {
	return e.command(ctx, FrameTokenFactoryReset, func(w *Buffer) {
		w.WriteBool(excludeOutgoingFC)
		w.WriteBool(excludeBootCounter)
	}, nil)
}

func (e *Engine) SetRadioPower(ctx context.Context, power int8) (SLStatus, error) {
	return e.statusCommand(ctx, FrameSetRadioPower, func(w *Buffer) { w.WriteInt8(power) })
}

func (e *Engine) SetRadioChannel(ctx context.Context, channel uint8) (SLStatus, error) {
	return e.statusCommand(ctx, FrameSetRadioChannel, func(w *Buffer) { w.WriteUint8(channel) })
}

func (e *Engine) GetRadioChannel(ctx context.Context) (uint8, error) {
	var ch uint8
	err := e.command(ctx, FrameGetRadioChannel, nil, func(r *Buffer) { ch = r.ReadUint8() })
	return ch, err
}
