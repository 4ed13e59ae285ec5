package ezsp

import "context"

func (e *Engine) NetworkInit(ctx context.Context, bitmask uint16) (SLStatus, error) {
	return e.statusCommand(ctx, FrameNetworkInit, func(w *Buffer) { w.WriteUint16(bitmask) })
}

func (e *Engine) NetworkState(ctx context.Context) (NetworkStatus, error) {
	var state NetworkStatus
	err := e.command(ctx, FrameNetworkState, nil, func(r *Buffer) { state = NetworkStatus(r.ReadUint8()) })
	return state, err
}

// StartScan starts an energy or active scan. Results arrive as
// EventEnergyScanResult or EventNetworkFound, then EventScanComplete.
func (e *Engine) StartScan(ctx context.Context, scanType ScanType, channelMask uint32, duration uint8) (SLStatus, error) {
	return e.statusCommand(ctx, FrameStartScan, func(w *Buffer) {
		w.WriteUint8(uint8(scanType))
		w.WriteUint32(channelMask)
		w.WriteUint8(duration)
	})
}

func (e *Engine) StopScan(ctx context.Context) (SLStatus, error) {
	return e.statusCommand(ctx, FrameStopScan, nil)
}

func (e *Engine) FindUnusedPanID(ctx context.Context, channelMask uint32, duration uint8) (SLStatus, error) {
	return e.statusCommand(ctx, FrameFindUnusedPanID, func(w *Buffer) {
		w.WriteUint32(channelMask)
		w.WriteUint8(duration)
	})
}

func (e *Engine) FormNetwork(ctx context.Context, params NetworkParameters) (SLStatus, error) {
	return e.statusCommand(ctx, FrameFormNetwork, func(w *Buffer) { w.WriteNetworkParameters(params) })
}

// LeaveNetwork takes the NCP off its network. Newer firmware accepts an
// options byte, sent as zero.
func (e *Engine) LeaveNetwork(ctx context.Context) (SLStatus, error) {
	l := e.Layout()
	return e.statusCommand(ctx, FrameLeaveNetwork, func(w *Buffer) {
		if l.WideStatus {
			w.WriteUint8(0)
		}
	})
}

// PermitJoining opens the network for duration seconds; 0 closes it and
// 0xFF opens it until closed.
func (e *Engine) PermitJoining(ctx context.Context, duration uint8) (SLStatus, error) {
	return e.statusCommand(ctx, FramePermitJoining, func(w *Buffer) { w.WriteUint8(duration) })
}

func (e *Engine) GetNetworkParameters(ctx context.Context) (SLStatus, NodeType, NetworkParameters, error) {
	l := e.Layout()
	var (
		status   SLStatus
		nodeType NodeType
		params   NetworkParameters
	)
	err := e.command(ctx, FrameGetNetworkParameters, nil, func(r *Buffer) {
		status = l.readStatus(r)
		nodeType = NodeType(r.ReadUint8())
		params = r.ReadNetworkParameters()
	})
	return status, nodeType, params, err
}

func (e *Engine) NeighborCount(ctx context.Context) (uint8, error) {
	var n uint8
	err := e.command(ctx, FrameNeighborCount, nil, func(r *Buffer) { n = r.ReadUint8() })
	return n, err
}

func (e *Engine) GetNeighbor(ctx context.Context, index uint8) (SLStatus, NeighborTableEntry, error) {
	l := e.Layout()
	var (
		status SLStatus
		entry  NeighborTableEntry
	)
	err := e.command(ctx, FrameGetNeighbor,
		func(w *Buffer) { w.WriteUint8(index) },
		func(r *Buffer) {
			status = l.readStatus(r)
			entry = r.ReadNeighborTableEntry()
		})
	return status, entry, err
}

func (e *Engine) GetRouteTableEntry(ctx context.Context, index uint8) (SLStatus, RouteTableEntry, error) {
	l := e.Layout()
	var (
		status SLStatus
		entry  RouteTableEntry
	)
	err := e.command(ctx, FrameGetRouteTableEntry,
		func(w *Buffer) { w.WriteUint8(index) },
		func(r *Buffer) {
			status = l.readStatus(r)
			entry = r.ReadRouteTableEntry()
		})
	return status, entry, err
}

// RemoveNeighbor drops a neighbor table entry. The NCP reply carries no
// status, so only the exchange itself can fail.
func (e *Engine) RemoveNeighbor(ctx context.Context, shortID uint16, longID EUI64) error {
	return e.command(ctx, FrameRemoveNeighbor, func(w *Buffer) {
		w.WriteUint16(shortID)
		w.WriteEUI64(longID)
	}, nil)
}

func (e *Engine) GetMulticastTableEntry(ctx context.Context, index uint8) (SLStatus, MulticastTableEntry, error) {
	l := e.Layout()
	var (
		status SLStatus
		entry  MulticastTableEntry
	)
	err := e.command(ctx, FrameGetMulticastTableEntry,
		func(w *Buffer) { w.WriteUint8(index) },
		func(r *Buffer) {
			status = l.readStatus(r)
			entry = r.ReadMulticastTableEntry()
		})
	return status, entry, err
}

func (e *Engine) SetMulticastTableEntry(ctx context.Context, index uint8, entry MulticastTableEntry) (SLStatus, error) {
	return e.statusCommand(ctx, FrameSetMulticastTableEntry, func(w *Buffer) {
		w.WriteUint8(index)
		w.WriteMulticastTableEntry(entry)
	})
}

func (e *Engine) SendManyToOneRouteRequest(ctx context.Context, concentratorType uint16, radius uint8) (SLStatus, error) {
	return e.statusCommand(ctx, FrameSendManyToOneRouteRequest, func(w *Buffer) {
		w.WriteUint16(concentratorType)
		w.WriteUint8(radius)
	})
}
