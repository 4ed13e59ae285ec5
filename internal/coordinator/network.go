package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"zigbee-ezsp-host/internal/ezsp"
	"zigbee-ezsp-host/internal/store"
)

const (
	defaultChannel = 11

	// frameCounterLimit warns before the network key frame counter wraps.
	frameCounterLimit uint32 = 0xFEEEEEEE

	networkSettleDelay = 200 * time.Millisecond
)

// initNetwork resumes the network stored in the NCP when it matches the
// configuration, and forms one otherwise. It reports whether a network was formed.
func (c *Coordinator) initNetwork(ctx context.Context) (bool, error) {
	c.drainStackStatus()

	status, err := c.engine.NetworkInit(ctx, ezsp.NetworkInitParentInfoInToken|ezsp.NetworkInitEndDeviceRejoinOnReboot)
	if err != nil {
		return false, fmt.Errorf("network init: %w", err)
	}
	c.logger.Debug("network init", "status", status)

	switch status {
	case ezsp.SLOK:
		if err := c.waitStackStatus(ctx, ezsp.SLNetworkUp); err != nil {
			return false, fmt.Errorf("network init: %w", err)
		}
		match, err := c.networkMatches(ctx)
		if err != nil {
			return false, err
		}
		if match {
			c.logger.Info("resuming existing network")
			return false, nil
		}
		c.logger.Info("NCP network does not match config, leaving")
		if err := c.leave(ctx); err != nil {
			return false, err
		}
	case ezsp.SLNotJoined:
	default:
		return false, fmt.Errorf("network init: status %s", status)
	}

	if err := c.form(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// networkMatches compares the NCP's network with the configured one. Unset
// configuration fields match anything.
func (c *Coordinator) networkMatches(ctx context.Context) (bool, error) {
	status, nodeType, params, err := c.engine.GetNetworkParameters(ctx)
	if err != nil {
		return false, fmt.Errorf("get network parameters: %w", err)
	}
	if !status.OK() || nodeType != ezsp.NodeCoordinator {
		c.logger.Debug("NCP is not a coordinator", "status", status, "nodeType", nodeType)
		return false, nil
	}

	want := c.config.Network
	if want.PanID != 0 && want.PanID != params.PanID {
		return false, nil
	}
	if want.ExtendedPanID != (ezsp.ExtPanID{}) && want.ExtendedPanID != params.ExtendedPanID {
		return false, nil
	}
	if want.NetworkKey != nil {
		key, status, err := c.engine.ExportKey(ctx, ezsp.SecManContext{CoreKeyType: ezsp.SecManKeyNetwork})
		if err != nil {
			return false, fmt.Errorf("export network key: %w", err)
		}
		if !status.OK() {
			return false, fmt.Errorf("export network key: status %s", status)
		}
		if key != *want.NetworkKey {
			return false, nil
		}
	}
	return true, nil
}

func (c *Coordinator) leave(ctx context.Context) error {
	c.drainStackStatus()
	status, err := c.engine.LeaveNetwork(ctx)
	if err != nil {
		return fmt.Errorf("leave network: %w", err)
	}
	if !status.OK() {
		return fmt.Errorf("leave network: status %s", status)
	}
	if err := c.waitStackStatus(ctx, ezsp.SLNetworkDown); err != nil {
		return fmt.Errorf("leave network: %w", err)
	}
	select {
	case <-time.After(networkSettleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// formPlan is the network about to be formed and where it came from.
type formPlan struct {
	params      ezsp.NetworkParameters
	key         ezsp.KeyData
	keySequence uint8
	fromBackup  bool
}

// planNetwork restores the stored backup when it agrees with the
// configuration, and falls back to the configuration otherwise.
func (c *Coordinator) planNetwork() (formPlan, error) {
	want := c.config.Network
	backup, err := c.store.GetBackup()
	if err == nil {
		if plan, ok := c.backupPlan(backup); ok {
			if backup.FrameCounter > frameCounterLimit {
				c.logger.Warn("network key frame counter is reaching its limit, a new network key will be needed soon",
					"frameCounter", backup.FrameCounter)
			}
			return plan, nil
		}
		c.logger.Info("config does not match backup")
	} else {
		c.logger.Info("no valid backup found", "err", err)
	}

	plan := formPlan{
		params: ezsp.NetworkParameters{
			PanID:         want.PanID,
			ExtendedPanID: want.ExtendedPanID,
			RadioTxPower:  want.TxPower,
			RadioChannel:  want.Channel,
			JoinMethod:    ezsp.JoinMethodMACAssociation,
		},
	}
	if plan.params.RadioChannel == 0 {
		plan.params.RadioChannel = defaultChannel
	}
	if plan.params.PanID == 0 {
		if plan.params.PanID, err = randomPanID(); err != nil {
			return plan, err
		}
	}
	if plan.params.ExtendedPanID == (ezsp.ExtPanID{}) {
		if _, err := rand.Read(plan.params.ExtendedPanID[:]); err != nil {
			return plan, fmt.Errorf("generate extended pan id: %w", err)
		}
	}
	if want.NetworkKey != nil {
		plan.key = *want.NetworkKey
	} else if _, err := rand.Read(plan.key[:]); err != nil {
		return plan, fmt.Errorf("generate network key: %w", err)
	}
	plan.params.Channels = 1 << plan.params.RadioChannel
	return plan, nil
}

func (c *Coordinator) backupPlan(b *store.NetworkBackup) (formPlan, bool) {
	want := c.config.Network
	var plan formPlan

	raw, err := hex.DecodeString(b.NetworkKey)
	if err != nil || len(raw) != ezsp.KeySize {
		return plan, false
	}
	copy(plan.key[:], raw)

	var extPanID ezsp.ExtPanID
	if err := extPanID.UnmarshalText([]byte(b.ExtendedPanID)); err != nil {
		return plan, false
	}

	switch {
	case want.PanID != 0 && want.PanID != b.PanID:
		return plan, false
	case want.ExtendedPanID != (ezsp.ExtPanID{}) && want.ExtendedPanID != extPanID:
		return plan, false
	case want.Channel != 0 && want.Channel != b.Channel:
		return plan, false
	case want.NetworkKey != nil && *want.NetworkKey != plan.key:
		return plan, false
	}

	plan.params = ezsp.NetworkParameters{
		ExtendedPanID: extPanID,
		PanID:         b.PanID,
		RadioTxPower:  b.RadioTxPower,
		RadioChannel:  b.Channel,
		JoinMethod:    ezsp.JoinMethodMACAssociation,
		NwkUpdateID:   b.NwkUpdateID,
		Channels:      1 << b.Channel,
	}
	if want.TxPower != 0 {
		plan.params.RadioTxPower = want.TxPower
	}
	plan.keySequence = b.KeySequenceNumber
	plan.fromBackup = true
	return plan, true
}

// form sets up trust center security and forms the network.
func (c *Coordinator) form(ctx context.Context) error {
	plan, err := c.planNetwork()
	if err != nil {
		return err
	}
	if plan.fromBackup {
		c.logger.Info("forming from backup", "channel", plan.params.RadioChannel, "panID", fmt.Sprintf("0x%04X", plan.params.PanID))
	} else {
		c.logger.Info("forming from config", "channel", plan.params.RadioChannel, "panID", fmt.Sprintf("0x%04X", plan.params.PanID))
	}

	state := ezsp.InitialSecurityState{
		Bitmask: ezsp.SecurityTrustCenterGlobalLinkKey | ezsp.SecurityHavePreconfiguredKey |
			ezsp.SecurityHaveNetworkKey | ezsp.SecurityTrustCenterUsesHashedKey |
			ezsp.SecurityRequireEncryptedKey,
		NetworkKey:               plan.key,
		NetworkKeySequenceNumber: plan.keySequence,
	}
	if plan.fromBackup {
		state.Bitmask |= ezsp.SecurityNoFrameCounterReset
	}
	// The hashed trust center link key is random for every formation.
	if _, err := rand.Read(state.PreconfiguredKey[:]); err != nil {
		return fmt.Errorf("generate trust center link key: %w", err)
	}

	status, err := c.engine.SetInitialSecurityState(ctx, state)
	if err != nil {
		return fmt.Errorf("set initial security state: %w", err)
	}
	if !status.OK() {
		return fmt.Errorf("set initial security state: status %s", status)
	}

	var ext [2]byte
	binary.LittleEndian.PutUint16(ext[:], ezsp.ExtSecurityJoinerGlobalLinkKey|ezsp.ExtSecurityNwkLeaveRequestNotAllowed)
	status, err = c.engine.SetValue(ctx, ezsp.ValueExtendedSecurityBitmask, ext[:])
	if err != nil {
		return fmt.Errorf("set extended security bitmask: %w", err)
	}
	if !status.OK() {
		return fmt.Errorf("set extended security bitmask: status %s", status)
	}

	c.drainStackStatus()
	status, err = c.engine.FormNetwork(ctx, plan.params)
	if err != nil {
		return fmt.Errorf("form network: %w", err)
	}
	if !status.OK() {
		return fmt.Errorf("form network: status %s", status)
	}
	if err := c.waitStackStatus(ctx, ezsp.SLNetworkUp); err != nil {
		return fmt.Errorf("form network: %w", err)
	}
	return nil
}

// drainStackStatus discards stack statuses left over from earlier requests.
func (c *Coordinator) drainStackStatus() {
	for {
		select {
		case <-c.stackCh:
		default:
			return
		}
	}
}

// waitStackStatus blocks until the NCP reports want.
func (c *Coordinator) waitStackStatus(ctx context.Context, want ezsp.SLStatus) error {
	timer := time.NewTimer(c.config.NetworkUpTimeout)
	defer timer.Stop()
	for {
		select {
		case status := <-c.stackCh:
			if status == want {
				return nil
			}
			c.logger.Debug("waiting for stack status", "want", want, "got", status)
		case <-timer.C:
			return fmt.Errorf("timed out waiting for %s", want)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func randomPanID() (uint16, error) {
	var b [2]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, fmt.Errorf("generate pan id: %w", err)
		}
		// 0x0000 and 0xFFFF are not valid PAN ids.
		if id := binary.LittleEndian.Uint16(b[:]); id != 0 && id != 0xFFFF {
			return id, nil
		}
	}
}

// saveBackup reads the network parameters and key material from the NCP and
// persists them.
func (c *Coordinator) saveBackup(ctx context.Context, eui ezsp.EUI64, nodeType ezsp.NodeType, params ezsp.NetworkParameters) (*store.NetworkBackup, error) {
	status, keyInfo, err := c.engine.GetNetworkKeyInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get network key info: %w", err)
	}
	if !status.OK() {
		return nil, fmt.Errorf("get network key info: status %s", status)
	}
	key, status, err := c.engine.ExportKey(ctx, ezsp.SecManContext{CoreKeyType: ezsp.SecManKeyNetwork})
	if err != nil {
		return nil, fmt.Errorf("export network key: %w", err)
	}
	if !status.OK() {
		return nil, fmt.Errorf("export network key: status %s", status)
	}

	b := &store.NetworkBackup{
		NodeType:          uint8(nodeType),
		Channel:           params.RadioChannel,
		Channels:          params.Channels,
		PanID:             params.PanID,
		ExtendedPanID:     params.ExtendedPanID.String(),
		RadioTxPower:      params.RadioTxPower,
		NwkUpdateID:       params.NwkUpdateID,
		NetworkKey:        hex.EncodeToString(key[:]),
		KeySequenceNumber: keyInfo.KeySequenceNumber,
		FrameCounter:      keyInfo.FrameCounter,
		CoordinatorEUI64:  eui.String(),
		SavedAt:           time.Now(),
	}
	if err := c.store.SaveBackup(b); err != nil {
		return nil, fmt.Errorf("save backup: %w", err)
	}
	c.logger.Info("network backup saved", "frameCounter", keyInfo.FrameCounter, "keySeq", keyInfo.KeySequenceNumber)
	return b, nil
}

// Backup refreshes the stored network backup from the NCP and returns it.
func (c *Coordinator) Backup(ctx context.Context) (*store.NetworkBackup, error) {
	if !c.isStarted() {
		return nil, ErrNotStarted
	}
	eui, err := c.engine.GetEUI64(ctx)
	if err != nil {
		return nil, fmt.Errorf("get eui64: %w", err)
	}
	status, nodeType, params, err := c.engine.GetNetworkParameters(ctx)
	if err != nil {
		return nil, fmt.Errorf("get network parameters: %w", err)
	}
	if !status.OK() {
		return nil, fmt.Errorf("get network parameters: status %s", status)
	}
	return c.saveBackup(ctx, eui, nodeType, params)
}
