package ezsp

import "context"

func (e *Engine) SetInitialSecurityState(ctx context.Context, state InitialSecurityState) (SLStatus, error) {
	return e.statusCommand(ctx, FrameSetInitialSecurityState, func(w *Buffer) {
		w.WriteInitialSecurityState(state)
	})
}

func (e *Engine) GetCurrentSecurityState(ctx context.Context) (SLStatus, CurrentSecurityState, error) {
	l := e.Layout()
	var (
		status SLStatus
		state  CurrentSecurityState
	)
	err := e.command(ctx, FrameGetCurrentSecurityState, nil, func(r *Buffer) {
		status = l.readStatus(r)
		state = r.ReadCurrentSecurityState()
	})
	return status, state, err
}

func (e *Engine) GetNetworkKeyInfo(ctx context.Context) (SLStatus, NetworkKeyInfo, error) {
	var (
		status SLStatus
		info   NetworkKeyInfo
	)
	err := e.command(ctx, FrameGetNetworkKeyInfo, nil, func(r *Buffer) {
		status = SLStatus(r.ReadUint32())
		info = r.ReadNetworkKeyInfo()
	})
	return status, info, err
}

// ExportKey reads a key out of the security manager.
func (e *Engine) ExportKey(ctx context.Context, sc SecManContext) (KeyData, SLStatus, error) {
	var (
		key    KeyData
		status SLStatus
	)
	err := e.command(ctx, FrameExportKey,
		func(w *Buffer) { w.WriteSecManContext(sc) },
		func(r *Buffer) {
			key = r.ReadKey()
			status = SLStatus(r.ReadUint32())
		})
	return key, status, err
}

func (e *Engine) ImportKey(ctx context.Context, sc SecManContext, key KeyData) (SLStatus, error) {
	var status SLStatus
	err := e.command(ctx, FrameImportKey,
		func(w *Buffer) {
			w.WriteSecManContext(sc)
			w.WriteKey(key)
		},
		func(r *Buffer) { status = SLStatus(r.ReadUint32()) })
	return status, err
}

func (e *Engine) GetAPSKeyInfo(ctx context.Context, sc SecManContext) (APSKeyMetadata, SLStatus, error) {
	var (
		meta   APSKeyMetadata
		status SLStatus
	)
	err := e.command(ctx, FrameGetAPSKeyInfo,
		func(w *Buffer) { w.WriteSecManContext(sc) },
		func(r *Buffer) {
			meta = r.ReadAPSKeyMetadata()
			status = SLStatus(r.ReadUint32())
		})
	return meta, status, err
}

func (e *Engine) ClearKeyTable(ctx context.Context) (SLStatus, error) {
	return e.statusCommand(ctx, FrameClearKeyTable, nil)
}

func (e *Engine) BroadcastNextNetworkKey(ctx context.Context, key KeyData) (SLStatus, error) {
	return e.statusCommand(ctx, FrameBroadcastNextNetworkKey, func(w *Buffer) { w.WriteKey(key) })
}

func (e *Engine) BroadcastNetworkKeySwitch(ctx context.Context) (SLStatus, error) {
	return e.statusCommand(ctx, FrameBroadcastNetworkKeySwitch, nil)
}

// RemoveDevice asks target's parent to drop it from the network.
func (e *Engine) RemoveDevice(ctx context.Context, destShort uint16, destLong, targetLong EUI64) (SLStatus, error) {
	return e.statusCommand(ctx, FrameRemoveDevice, func(w *Buffer) {
		w.WriteUint16(destShort)
		w.WriteEUI64(destLong)
		w.WriteEUI64(targetLong)
	})
}
