package coordinator

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"zigbee-ezsp-host/internal/ash"
	"zigbee-ezsp-host/internal/ezsp"
	"zigbee-ezsp-host/internal/store"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const (
	fakeProtocol     uint8  = 0x0e
	fakeStackVersion uint16 = 0x7410

	fcResponse  = 0x80
	fcPending   = 0x04
	fcSyncCB    = 0x08
	fcAsyncCB   = 0x10
	fcExtFormat = 0x01
)

var fakeEUI64 = ezsp.EUI64{0x78, 0x56, 0x34, 0x12, 0x00, 0x4B, 0x12, 0x00}

// fakeNCP is an ezsp.Transport that plays a protocol 0x0e co-processor.
type fakeNCP struct {
	mu        sync.Mutex
	recv      ezsp.Receiver
	rx        chan []byte
	done      chan struct{}
	connected bool
	starts    int

	joined       bool
	params       ezsp.NetworkParameters
	key          ezsp.KeyData
	keySeq       uint8
	frameCounter uint32

	calls       []ezsp.FrameID
	versions    []uint8
	configs     map[ezsp.ConfigID]uint16
	policies    map[ezsp.PolicyID]ezsp.DecisionID
	endpoints   []uint8
	security    uint16
	formed      []ezsp.NetworkParameters
	permitJoin  []uint8
	broadcasts  []sentData
	unicasts    []sentData
	queued      [][]byte
	pendingNext bool
	scanResults [][]byte
}

type sentData struct {
	destination uint16
	aps         ezsp.ApsFrame
	payload     []byte
}

func newFakeNCP() *fakeNCP {
	return &fakeNCP{
		configs:  make(map[ezsp.ConfigID]uint16),
		policies: make(map[ezsp.PolicyID]ezsp.DecisionID),
	}
}

// withNetwork makes the NCP hold a network in its tokens.
func (f *fakeNCP) withNetwork(panID uint16, channel uint8, key ezsp.KeyData) *fakeNCP {
	f.joined = true
	f.params = ezsp.NetworkParameters{
		ExtendedPanID: ezsp.ExtPanID{1, 2, 3, 4, 5, 6, 7, 8},
		PanID:         panID,
		RadioChannel:  channel,
		Channels:      1 << channel,
	}
	f.key = key
	return f
}

func (f *fakeNCP) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.connected = true
	f.rx = make(chan []byte, 64)
	f.done = make(chan struct{})
	go f.deliver(f.rx, f.done)
	return nil
}

func (f *fakeNCP) deliver(rx chan []byte, done chan struct{}) {
	defer close(done)
	for frame := range rx {
		f.recv.FrameReceived(frame)
	}
}

func (f *fakeNCP) Stop() {
	f.mu.Lock()
	rx, done := f.rx, f.done
	f.rx = nil
	f.connected = false
	f.mu.Unlock()
	if rx != nil {
		close(rx)
		<-done
	}
}

func (f *fakeNCP) ResetNCP(ctx context.Context) error { return nil }

func (f *fakeNCP) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeNCP) ResponseTimeout() time.Duration { return time.Second }

func (f *fakeNCP) SetReceiver(r ezsp.Receiver) { f.recv = r }

func (f *fakeNCP) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rx == nil {
		return ezsp.StatusNotConnected
	}

	seq := frame[0]
	// VERSION always travels in the legacy layout.
	if frame[2] == byte(ezsp.FrameVersion) && len(frame) == 4 {
		f.versions = append(f.versions, frame[3])
		f.rx <- []byte{seq, fcResponse, 0x00, fakeProtocol, ezsp.StackTypeMesh, byte(fakeStackVersion & 0xFF), byte(fakeStackVersion >> 8)}
		return nil
	}

	id := ezsp.FrameID(frame[3]) | ezsp.FrameID(frame[4])<<8
	f.calls = append(f.calls, id)
	req := ezsp.NewBuffer(256)
	if err := req.Load(frame[5:]); err != nil {
		return err
	}

	if id == ezsp.FrameCallback {
		if len(f.queued) == 0 {
			f.rx <- header(seq, fcResponse, ezsp.FrameNoCallbacks)
			return nil
		}
		cb := f.queued[0]
		f.queued = f.queued[1:]
		cb[0] = seq
		cb[1] = fcResponse | fcSyncCB
		if len(f.queued) > 0 {
			cb[1] |= fcPending
		}
		f.rx <- cb
		return nil
	}

	reply, callbacks := f.handle(id, req)
	fc := byte(fcResponse)
	if f.pendingNext {
		fc |= fcPending
		f.pendingNext = false
	}
	f.rx <- append(header(seq, fc, id), reply...)
	for _, cb := range callbacks {
		f.rx <- cb
	}
	return nil
}

func header(seq, fc byte, id ezsp.FrameID) []byte {
	return []byte{seq, fc, fcExtFormat, byte(id), byte(id >> 8)}
}

// callbackFrame builds an asynchronous callback frame.
func callbackFrame(id ezsp.FrameID, fill func(b *ezsp.Buffer)) []byte {
	b := ezsp.NewBuffer(256)
	if fill != nil {
		fill(b)
	}
	return append(header(0, fcResponse|fcAsyncCB, id), b.Bytes()...)
}

func stackStatus(status ezsp.SLStatus) []byte {
	return callbackFrame(ezsp.FrameStackStatusHandler, func(b *ezsp.Buffer) { b.WriteUint32(uint32(status)) })
}

func trustCenterJoin(nodeID uint16, eui ezsp.EUI64, update ezsp.DeviceUpdate) []byte {
	return callbackFrame(ezsp.FrameTrustCenterJoinHandler, func(b *ezsp.Buffer) {
		b.WriteUint16(nodeID)
		b.WriteEUI64(eui)
		b.WriteUint8(uint8(update))
		b.WriteUint8(uint8(ezsp.JoinUsePreconfiguredKey))
		b.WriteUint16(0x0000)
	})
}

func encode(fill func(b *ezsp.Buffer)) []byte {
	b := ezsp.NewBuffer(256)
	fill(b)
	return append([]byte(nil), b.Bytes()...)
}

func okStatus() []byte {
	return encode(func(b *ezsp.Buffer) { b.WriteUint32(uint32(ezsp.SLOK)) })
}

// handle runs one command against the fake state. Called with f.mu held.
func (f *fakeNCP) handle(id ezsp.FrameID, req *ezsp.Buffer) ([]byte, [][]byte) {
	switch id {
	case ezsp.FrameSetConfigValue:
		cfg := ezsp.ConfigID(req.ReadUint8())
		f.configs[cfg] = req.ReadUint16()

	case ezsp.FrameSetPolicy:
		policy := ezsp.PolicyID(req.ReadUint8())
		f.policies[policy] = ezsp.DecisionID(req.ReadUint8())

	case ezsp.FrameAddEndpoint:
		f.endpoints = append(f.endpoints, req.ReadUint8())

	case ezsp.FrameGetEUI64:
		return encode(func(b *ezsp.Buffer) { b.WriteEUI64(fakeEUI64) }), nil

	case ezsp.FrameGetNodeID:
		return encode(func(b *ezsp.Buffer) { b.WriteUint16(0x0000) }), nil

	case ezsp.FrameNetworkInit:
		if !f.joined {
			return encode(func(b *ezsp.Buffer) { b.WriteUint32(uint32(ezsp.SLNotJoined)) }), nil
		}
		return okStatus(), [][]byte{stackStatus(ezsp.SLNetworkUp)}

	case ezsp.FrameGetNetworkParameters:
		return encode(func(b *ezsp.Buffer) {
			b.WriteUint32(uint32(ezsp.SLOK))
			if f.joined {
				b.WriteUint8(uint8(ezsp.NodeCoordinator))
			} else {
				b.WriteUint8(uint8(ezsp.NodeUnknown))
			}
			b.WriteNetworkParameters(f.params)
		}), nil

	case ezsp.FrameLeaveNetwork:
		f.joined = false
		f.params = ezsp.NetworkParameters{}
		return okStatus(), [][]byte{stackStatus(ezsp.SLNetworkDown)}

	case ezsp.FrameSetInitialSecurityState:
		f.security = req.ReadUint16()
		req.ReadKey()
		f.key = req.ReadKey()
		f.keySeq = req.ReadUint8()

	case ezsp.FrameFormNetwork:
		params := req.ReadNetworkParameters()
		f.formed = append(f.formed, params)
		f.params = params
		f.joined = true
		return okStatus(), [][]byte{stackStatus(ezsp.SLNetworkUp)}

	case ezsp.FrameGetNetworkKeyInfo:
		return encode(func(b *ezsp.Buffer) {
			b.WriteUint32(uint32(ezsp.SLOK))
			b.WriteBool(true)
			b.WriteBool(false)
			b.WriteUint8(f.keySeq)
			b.WriteUint8(0)
			b.WriteUint32(f.frameCounter)
		}), nil

	case ezsp.FrameExportKey:
		return encode(func(b *ezsp.Buffer) {
			b.WriteKey(f.key)
			b.WriteUint32(uint32(ezsp.SLOK))
		}), nil

	case ezsp.FramePermitJoining:
		f.permitJoin = append(f.permitJoin, req.ReadUint8())

	case ezsp.FrameSendBroadcast:
		req.ReadUint16() // alias
		dst := req.ReadUint16()
		req.ReadUint8() // nwk sequence
		aps := req.ReadApsFrame()
		req.ReadUint8()  // radius
		req.ReadUint16() // tag
		f.broadcasts = append(f.broadcasts, sentData{destination: dst, aps: aps, payload: req.ReadPayload()})
		return encode(func(b *ezsp.Buffer) {
			b.WriteUint32(uint32(ezsp.SLOK))
			b.WriteUint8(1)
		}), nil

	case ezsp.FrameSendUnicast:
		req.ReadUint8() // type
		dst := req.ReadUint16()
		aps := req.ReadApsFrame()
		req.ReadUint16() // tag
		f.unicasts = append(f.unicasts, sentData{destination: dst, aps: aps, payload: req.ReadPayload()})
		return encode(func(b *ezsp.Buffer) {
			b.WriteUint32(uint32(ezsp.SLOK))
			b.WriteUint8(1)
		}), nil

	case ezsp.FrameStartScan:
		return okStatus(), f.scanResults

	case ezsp.FrameReadCounters:
		return encode(func(b *ezsp.Buffer) {
			for i := 0; i < int(ezsp.CounterTypeCount); i++ {
				b.WriteUint16(uint16(i))
			}
		}), nil

	case ezsp.FrameSetManufacturerCode:
		return nil, nil
	}
	return okStatus(), nil
}

// inject delivers an unsolicited frame.
func (f *fakeNCP) inject(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rx != nil {
		f.rx <- frame
	}
}

func (f *fakeNCP) called(id ezsp.FrameID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == id {
			n++
		}
	}
	return n
}

func (f *fakeNCP) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

type fakeLink struct{}

func (fakeLink) Counters() ash.Counters { return ash.Counters{TxData: 7, RxData: 5} }

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testKey = ezsp.KeyData{0x01, 0x03, 0x05, 0x07, 0x09, 0x0B, 0x0D, 0x0F, 0x00, 0x02, 0x04, 0x06, 0x08, 0x0A, 0x0C, 0x0D}

func testConfig() Config {
	key := testKey
	return Config{
		Network: NetworkConfig{
			Channel:    15,
			PanID:      0x1A62,
			NetworkKey: &key,
		},
		NetworkUpTimeout: time.Second,
		PollInterval:     10 * time.Millisecond,
		ResetBackoff:     10 * time.Millisecond,
		MaxResetBackoff:  20 * time.Millisecond,
	}
}

func newTestCoordinator(t *testing.T, f *fakeNCP, st store.Store, cfg Config) *Coordinator {
	t.Helper()
	engine := ezsp.New(f, ezsp.Config{}, newTestLogger())
	c := New(engine, st, fakeLink{}, cfg, newTestLogger())
	t.Cleanup(c.Stop)
	return c
}

func startTestCoordinator(t *testing.T, f *fakeNCP, st store.Store, cfg Config) *Coordinator {
	t.Helper()
	c := newTestCoordinator(t, f, st, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	return c
}

func collect(c *Coordinator, t ezsp.EventType) <-chan ezsp.Event {
	ch := make(chan ezsp.Event, 16)
	c.Events().On(t, func(ev ezsp.Event) { ch <- ev })
	return ch
}

func waitEvent(t *testing.T, ch <-chan ezsp.Event) ezsp.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return ezsp.Event{}
}

func TestStartFormsNetwork(t *testing.T) {
	f := newFakeNCP()
	st := newTestStore(t)
	c := newTestCoordinator(t, f, st, testConfig())
	states := collect(c, EventNetworkState)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if got := waitEvent(t, states).Data.(NetworkStateEvent); got.State != StateUp {
		t.Errorf("state: got %q, want %q", got.State, StateUp)
	}

	info := c.Info()
	if !info.Started || !info.Formed {
		t.Errorf("info: started=%v formed=%v, want both true", info.Started, info.Formed)
	}
	if info.ProtocolVersion != fakeProtocol {
		t.Errorf("protocol: got 0x%02X, want 0x%02X", info.ProtocolVersion, fakeProtocol)
	}
	if info.StackVersion != "7.4.1.0" {
		t.Errorf("stack version: got %q, want 7.4.1.0", info.StackVersion)
	}
	if info.Channel != 15 || info.PanID != 0x1A62 {
		t.Errorf("network: got channel %d pan 0x%04X, want 15 / 0x1A62", info.Channel, info.PanID)
	}

	f.mu.Lock()
	versions := append([]uint8(nil), f.versions...)
	formed := append([]ezsp.NetworkParameters(nil), f.formed...)
	security := f.security
	tcPolicy := f.policies[ezsp.PolicyTCKeyRequest]
	endpoints := append([]uint8(nil), f.endpoints...)
	tableSize := f.configs[ezsp.ConfigSourceRouteTableSize]
	f.mu.Unlock()

	// The NCP answers with an older version, so VERSION goes out twice.
	if len(versions) != 2 || versions[0] != ezsp.LatestProtocolVersion || versions[1] != fakeProtocol {
		t.Errorf("versions: got %X", versions)
	}
	if len(formed) != 1 {
		t.Fatalf("form count: got %d, want 1", len(formed))
	}
	if formed[0].RadioChannel != 15 || formed[0].Channels != 1<<15 {
		t.Errorf("formed channel: got %d mask 0x%08X", formed[0].RadioChannel, formed[0].Channels)
	}
	if security&ezsp.SecurityNoFrameCounterReset != 0 {
		t.Error("fresh formation must reset frame counters")
	}
	if security&ezsp.SecurityHaveNetworkKey == 0 {
		t.Error("network key flag not set")
	}
	if tcPolicy != ezsp.DecisionAllowTCKeyRequestsSendCurrentKey {
		t.Errorf("tc key policy: got 0x%02X", uint8(tcPolicy))
	}
	if len(endpoints) != 2 || endpoints[0] != 1 || endpoints[1] != ezsp.GreenPowerEndpoint {
		t.Errorf("endpoints: got %v", endpoints)
	}
	if tableSize != 200 {
		t.Errorf("source route table size: got %d, want 200", tableSize)
	}

	backup, err := st.GetBackup()
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if backup.NetworkKey != hex.EncodeToString(testKey[:]) {
		t.Errorf("backup key: got %s", backup.NetworkKey)
	}
	if backup.PanID != 0x1A62 || backup.Channel != 15 {
		t.Errorf("backup network: got pan 0x%04X channel %d", backup.PanID, backup.Channel)
	}
	if backup.CoordinatorEUI64 != fakeEUI64.String() {
		t.Errorf("backup eui64: got %s, want %s", backup.CoordinatorEUI64, fakeEUI64)
	}

	ncp, err := st.GetNCPInfo()
	if err != nil {
		t.Fatalf("ncp info: %v", err)
	}
	if ncp.ProtocolVersion != fakeProtocol || ncp.EUI64 != fakeEUI64.String() {
		t.Errorf("ncp info: got %+v", ncp)
	}
}

func TestStartResumesMatchingNetwork(t *testing.T) {
	f := newFakeNCP().withNetwork(0x1A62, 20, testKey)
	c := startTestCoordinator(t, f, newTestStore(t), testConfig())

	if n := f.called(ezsp.FrameFormNetwork); n != 0 {
		t.Errorf("form calls: got %d, want 0", n)
	}
	if n := f.called(ezsp.FrameLeaveNetwork); n != 0 {
		t.Errorf("leave calls: got %d, want 0", n)
	}
	info := c.Info()
	if info.Formed {
		t.Error("resumed network reported as formed")
	}
	if info.Channel != 20 {
		t.Errorf("channel: got %d, want 20", info.Channel)
	}
}

func TestStartLeavesMismatchedNetwork(t *testing.T) {
	tests := []struct {
		name  string
		panID uint16
		key   ezsp.KeyData
	}{
		{"other pan id", 0xBEEF, testKey},
		{"other network key", 0x1A62, ezsp.KeyData{0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeNCP().withNetwork(tt.panID, 20, tt.key)
			c := startTestCoordinator(t, f, newTestStore(t), testConfig())

			if n := f.called(ezsp.FrameLeaveNetwork); n != 1 {
				t.Errorf("leave calls: got %d, want 1", n)
			}
			if n := f.called(ezsp.FrameFormNetwork); n != 1 {
				t.Errorf("form calls: got %d, want 1", n)
			}
			if info := c.Info(); info.PanID != 0x1A62 || info.Channel != 15 {
				t.Errorf("network: got pan 0x%04X channel %d", info.PanID, info.Channel)
			}
		})
	}
}

func TestFormFromBackup(t *testing.T) {
	st := newTestStore(t)
	backupKey := "00112233445566778899aabbccddeeff"
	if err := st.SaveBackup(&store.NetworkBackup{
		Channel:           25,
		PanID:             0x4242,
		ExtendedPanID:     "dddddddddddddddd",
		NetworkKey:        backupKey,
		KeySequenceNumber: 3,
		FrameCounter:      1000,
	}); err != nil {
		t.Fatal(err)
	}

	f := newFakeNCP()
	cfg := testConfig()
	cfg.Network = NetworkConfig{}
	c := startTestCoordinator(t, f, st, cfg)

	f.mu.Lock()
	formed := f.formed
	security := f.security
	key := f.key
	keySeq := f.keySeq
	f.mu.Unlock()

	if len(formed) != 1 {
		t.Fatalf("form count: got %d, want 1", len(formed))
	}
	if formed[0].PanID != 0x4242 || formed[0].RadioChannel != 25 {
		t.Errorf("formed: got pan 0x%04X channel %d", formed[0].PanID, formed[0].RadioChannel)
	}
	if formed[0].ExtendedPanID.String() != "dddddddddddddddd" {
		t.Errorf("formed ext pan id: got %s", formed[0].ExtendedPanID)
	}
	if security&ezsp.SecurityNoFrameCounterReset == 0 {
		t.Error("restore must keep frame counters")
	}
	if hex.EncodeToString(key[:]) != backupKey || keySeq != 3 {
		t.Errorf("security: got key %x seq %d", key, keySeq)
	}
	if !c.Info().Formed {
		t.Error("formed = false, want true")
	}
}

func TestBackupMismatchFormsFromConfig(t *testing.T) {
	st := newTestStore(t)
	if err := st.SaveBackup(&store.NetworkBackup{
		Channel:       25,
		PanID:         0x4242,
		ExtendedPanID: "dddddddddddddddd",
		NetworkKey:    "00112233445566778899aabbccddeeff",
	}); err != nil {
		t.Fatal(err)
	}

	f := newFakeNCP()
	startTestCoordinator(t, f, st, testConfig())

	f.mu.Lock()
	formed := f.formed
	security := f.security
	f.mu.Unlock()
	if len(formed) != 1 || formed[0].PanID != 0x1A62 {
		t.Fatalf("formed: got %+v", formed)
	}
	if security&ezsp.SecurityNoFrameCounterReset != 0 {
		t.Error("config formation must reset frame counters")
	}
}

func TestNotStarted(t *testing.T) {
	c := newTestCoordinator(t, newFakeNCP(), newTestStore(t), testConfig())
	ctx := context.Background()

	if err := c.PermitJoin(ctx, 60); !errors.Is(err, ErrNotStarted) {
		t.Errorf("permit join: got %v, want ErrNotStarted", err)
	}
	if _, err := c.SendUnicast(ctx, 0x1234, ezsp.ApsFrame{}, nil); !errors.Is(err, ErrNotStarted) {
		t.Errorf("send unicast: got %v, want ErrNotStarted", err)
	}
	if _, err := c.EnergyScan(ctx, 0, 0); !errors.Is(err, ErrNotStarted) {
		t.Errorf("energy scan: got %v, want ErrNotStarted", err)
	}
	if _, err := c.Backup(ctx); !errors.Is(err, ErrNotStarted) {
		t.Errorf("backup: got %v, want ErrNotStarted", err)
	}
}

func TestPermitJoin(t *testing.T) {
	f := newFakeNCP()
	c := startTestCoordinator(t, f, newTestStore(t), testConfig())
	events := collect(c, EventPermitJoin)

	if err := c.PermitJoin(context.Background(), 60); err != nil {
		t.Fatalf("permit join: %v", err)
	}
	if got := waitEvent(t, events).Data.(PermitJoinEvent); got.Duration != 60 {
		t.Errorf("event duration: got %d, want 60", got.Duration)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.permitJoin) != 1 || f.permitJoin[0] != 60 {
		t.Errorf("permit joining: got %v", f.permitJoin)
	}
	if len(f.broadcasts) != 1 {
		t.Fatalf("broadcasts: got %d, want 1", len(f.broadcasts))
	}
	b := f.broadcasts[0]
	if b.destination != ezsp.BroadcastRouters {
		t.Errorf("destination: got 0x%04X, want 0x%04X", b.destination, ezsp.BroadcastRouters)
	}
	if b.aps.ProfileID != ezsp.ZDOProfileID || b.aps.ClusterID != 0x0036 {
		t.Errorf("aps: got profile 0x%04X cluster 0x%04X", b.aps.ProfileID, b.aps.ClusterID)
	}
	if len(b.payload) != 3 || b.payload[1] != 60 || b.payload[2] != 0x01 || b.payload[0] > 0x7F {
		t.Errorf("payload: got %X", b.payload)
	}
}

func TestSendUnicastDefaultsOptions(t *testing.T) {
	f := newFakeNCP()
	c := startTestCoordinator(t, f, newTestStore(t), testConfig())

	aps := ezsp.ApsFrame{ProfileID: ezsp.HAProfileID, ClusterID: 0x0006, SourceEndpoint: 1, DestinationEndpoint: 1}
	if _, err := c.SendUnicast(context.Background(), 0x1234, aps, []byte{0x01, 0x00, 0x01}); err != nil {
		t.Fatalf("send: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.unicasts) != 1 {
		t.Fatalf("unicasts: got %d, want 1", len(f.unicasts))
	}
	u := f.unicasts[0]
	if u.destination != 0x1234 {
		t.Errorf("destination: got 0x%04X", u.destination)
	}
	if u.aps.Options != defaultAPSOptions {
		t.Errorf("options: got 0x%04X, want 0x%04X", u.aps.Options, defaultAPSOptions)
	}
}

func TestSendBroadcastRejectsReservedAddresses(t *testing.T) {
	f := newFakeNCP()
	c := startTestCoordinator(t, f, newTestStore(t), testConfig())
	f.mu.Lock()
	before := len(f.broadcasts)
	f.mu.Unlock()

	aps := ezsp.ApsFrame{ProfileID: ezsp.HAProfileID, ClusterID: 0x0006, SourceEndpoint: 1, DestinationEndpoint: 0xFF}
	for _, dst := range []uint16{0xFFFE, 0xFFFB, 0xFFF8, 0x1234} {
		if _, err := c.SendBroadcast(context.Background(), dst, aps, nil); err == nil {
			t.Errorf("0x%04X: want error", dst)
		}
	}
	if _, err := c.SendBroadcast(context.Background(), ezsp.BroadcastRouters, aps, nil); err != nil {
		t.Fatalf("routers: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if got := len(f.broadcasts) - before; got != 1 {
		t.Fatalf("broadcasts: got %d, want 1", got)
	}
	if dst := f.broadcasts[len(f.broadcasts)-1].destination; dst != ezsp.BroadcastRouters {
		t.Errorf("destination: got 0x%04X, want 0x%04X", dst, ezsp.BroadcastRouters)
	}
}

func TestTrustCenterJoinRecordsNode(t *testing.T) {
	f := newFakeNCP()
	st := newTestStore(t)
	c := startTestCoordinator(t, f, st, testConfig())
	joined := collect(c, EventNodeJoined)
	left := collect(c, EventNodeLeft)

	eui := ezsp.EUI64{0x4C, 0x3B, 0x2A, 0x01, 0x00, 0x8D, 0x15, 0x00}
	f.inject(trustCenterJoin(0x5A5A, eui, ezsp.DeviceUnsecuredJoin))

	ev := waitEvent(t, joined).Data.(NodeEvent)
	if ev.NodeID != 0x5A5A || ev.EUI64 != eui.String() {
		t.Errorf("joined event: got %+v", ev)
	}
	n, err := st.GetNode(eui.String())
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	if n.NodeID != 0x5A5A || n.Left || n.Joined.IsZero() {
		t.Errorf("node: got %+v", n)
	}

	f.inject(trustCenterJoin(0x5A5A, eui, ezsp.DeviceLeft))
	waitEvent(t, left)
	n, err = st.GetNode(eui.String())
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	if !n.Left {
		t.Error("node not marked as left")
	}
}

func TestCallbackPolling(t *testing.T) {
	f := newFakeNCP()
	c := startTestCoordinator(t, f, newTestStore(t), testConfig())
	joined := collect(c, EventNodeJoined)

	eui := ezsp.EUI64{1, 2, 3, 4, 5, 6, 7, 8}
	f.mu.Lock()
	f.queued = append(f.queued, trustCenterJoin(0x0101, eui, ezsp.DeviceSecuredRejoin))
	f.pendingNext = true
	f.mu.Unlock()

	// Any reply now carries the pending flag; the supervisor polls it out.
	if _, err := c.Engine().GetNodeID(context.Background()); err != nil {
		t.Fatal(err)
	}

	ev := waitEvent(t, joined).Data.(NodeEvent)
	if ev.NodeID != 0x0101 {
		t.Errorf("node id: got 0x%04X, want 0x0101", ev.NodeID)
	}
	if n := f.called(ezsp.FrameCallback); n == 0 {
		t.Error("CALLBACK never sent")
	}
}

func TestEnergyScan(t *testing.T) {
	f := newFakeNCP()
	energy := func(channel uint8, rssi int8) []byte {
		return callbackFrame(ezsp.FrameEnergyScanResultHandler, func(b *ezsp.Buffer) {
			b.WriteUint8(channel)
			b.WriteInt8(rssi)
		})
	}
	f.scanResults = [][]byte{
		energy(15, -80),
		energy(11, -60),
		callbackFrame(ezsp.FrameScanCompleteHandler, func(b *ezsp.Buffer) {
			b.WriteUint8(12)
			b.WriteUint32(uint32(ezsp.SLStatus(0x0C)))
		}),
		callbackFrame(ezsp.FrameScanCompleteHandler, func(b *ezsp.Buffer) {
			b.WriteUint8(0)
			b.WriteUint32(uint32(ezsp.SLOK))
		}),
	}
	c := startTestCoordinator(t, f, newTestStore(t), testConfig())

	mask := uint32(1<<11 | 1<<12 | 1<<15)
	results, err := c.EnergyScan(context.Background(), mask, 1)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []EnergyResult{{Channel: 11, MaxRSSI: -60}, {Channel: 15, MaxRSSI: -80}}
	if len(results) != len(want) {
		t.Fatalf("results: got %v, want %v", results, want)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("result %d: got %+v, want %+v", i, results[i], want[i])
		}
	}
}

func TestScanTimeout(t *testing.T) {
	tests := []struct {
		mask     uint32
		duration uint8
		want     time.Duration
	}{
		{1 << 11, 0, 2*15360*time.Microsecond + 5*time.Second},
		{ezsp.AllChannelsMask, 3, 16*9*15360*time.Microsecond + 5*time.Second},
	}
	for _, tt := range tests {
		if got := scanTimeout(tt.mask, tt.duration); got != tt.want {
			t.Errorf("scanTimeout(0x%08X, %d): got %v, want %v", tt.mask, tt.duration, got, tt.want)
		}
	}
}

func TestResetReinitializes(t *testing.T) {
	f := newFakeNCP()
	c := startTestCoordinator(t, f, newTestStore(t), testConfig())
	states := collect(c, EventNetworkState)

	f.recv.TransportFailed(ezsp.StatusASHNCPFatalError)

	if got := waitEvent(t, states).Data.(NetworkStateEvent); got.State != StateResetting {
		t.Fatalf("state: got %q, want %q", got.State, StateResetting)
	}
	if got := waitEvent(t, states).Data.(NetworkStateEvent); got.State != StateUp {
		t.Fatalf("state: got %q, want %q", got.State, StateUp)
	}

	if n := f.startCount(); n != 2 {
		t.Errorf("transport starts: got %d, want 2", n)
	}
	info := c.Info()
	if !info.Started || info.Resets != 1 {
		t.Errorf("info: started=%v resets=%d", info.Started, info.Resets)
	}
	// The network survived in the NCP, so the second session resumes it.
	if n := f.called(ezsp.FrameFormNetwork); n != 1 {
		t.Errorf("form calls: got %d, want 1", n)
	}
}

func TestCounters(t *testing.T) {
	st := newTestStore(t)
	c := startTestCoordinator(t, newFakeNCP(), st, testConfig())

	values, err := c.Counters(context.Background())
	if err != nil {
		t.Fatalf("counters: %v", err)
	}
	if values["ash.tx_data"] != 7 || values["ash.rx_data"] != 5 {
		t.Errorf("link counters: got tx %d rx %d", values["ash.tx_data"], values["ash.rx_data"])
	}
	if v, ok := values["ncp.mac_tx_unicast_success"]; !ok || v != 3 {
		t.Errorf("ncp counter: got %d (present %v), want 3", v, ok)
	}
	if _, ok := values["ezsp.queue_full"]; !ok {
		t.Error("engine counters missing")
	}

	snap, err := st.GetCounters()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Values["ash.tx_data"] != 7 {
		t.Errorf("snapshot: got %v", snap.Values)
	}
}

func TestBackupRefresh(t *testing.T) {
	f := newFakeNCP()
	st := newTestStore(t)
	c := startTestCoordinator(t, f, st, testConfig())

	f.mu.Lock()
	f.frameCounter = 4242
	f.mu.Unlock()

	b, err := c.Backup(context.Background())
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	if b.FrameCounter != 4242 {
		t.Errorf("frame counter: got %d, want 4242", b.FrameCounter)
	}
	stored, err := st.GetBackup()
	if err != nil {
		t.Fatal(err)
	}
	if stored.FrameCounter != 4242 {
		t.Errorf("stored frame counter: got %d, want 4242", stored.FrameCounter)
	}
}
