package coordinator

import (
	"context"
	"fmt"
	"math/bits"
	"sort"
	"sync"
	"time"

	"zigbee-ezsp-host/internal/ezsp"
)

// DefaultScanDuration is the per-channel scan exponent: (2^n + 1) symbol
// periods of 15.36 ms.
const DefaultScanDuration uint8 = 3

// EnergyResult is the noise measured on one channel.
type EnergyResult struct {
	Channel uint8 `json:"channel"`
	MaxRSSI int8  `json:"max_rssi"`
}

// EnergyScan measures the noise on each channel in mask. A zero mask scans
// all channels.
func (c *Coordinator) EnergyScan(ctx context.Context, mask uint32, duration uint8) ([]EnergyResult, error) {
	var results []EnergyResult
	err := c.scan(ctx, ezsp.ScanEnergy, mask, duration, ezsp.EventEnergyScanResult, func(data interface{}) {
		if r, ok := data.(ezsp.EnergyScanResultCallback); ok {
			results = append(results, EnergyResult{Channel: r.Channel, MaxRSSI: r.MaxRSSI})
		}
	})
	sort.Slice(results, func(i, j int) bool { return results[i].Channel < results[j].Channel })
	return results, err
}

// ActiveScan lists the networks beaconing on the channels in mask.
func (c *Coordinator) ActiveScan(ctx context.Context, mask uint32, duration uint8) ([]ezsp.NetworkFoundCallback, error) {
	var found []ezsp.NetworkFoundCallback
	err := c.scan(ctx, ezsp.ScanActive, mask, duration, ezsp.EventNetworkFound, func(data interface{}) {
		if n, ok := data.(ezsp.NetworkFoundCallback); ok {
			found = append(found, n)
		}
	})
	return found, err
}

// scan runs one scan to completion. Results are collected by collect, which
// is called on the receive goroutine under a lock.
func (c *Coordinator) scan(ctx context.Context, scanType ezsp.ScanType, mask uint32, duration uint8, resultEvent ezsp.EventType, collect func(interface{})) error {
	if !c.isStarted() {
		return ErrNotStarted
	}
	if mask == 0 {
		mask = ezsp.AllChannelsMask
	}
	if duration == 0 {
		duration = DefaultScanDuration
	}

	c.scanMu.Lock()
	defer c.scanMu.Unlock()

	var mu sync.Mutex
	done := make(chan struct{})
	var once sync.Once

	bus := c.engine.Events()
	unsubResult := bus.On(resultEvent, func(ev ezsp.Event) {
		mu.Lock()
		collect(ev.Data)
		mu.Unlock()
	})
	unsubComplete := bus.On(ezsp.EventScanComplete, func(ev ezsp.Event) {
		data, _ := ev.Data.(ezsp.ScanCompleteEvent)
		if !data.Status.OK() {
			// Failures are reported per channel; the scan goes on.
			c.logger.Warn("scan failed on channel", "channel", data.Channel, "status", data.Status)
			return
		}
		once.Do(func() { close(done) })
	})
	defer unsubComplete()

	status, err := c.engine.StartScan(ctx, scanType, mask, duration)
	if err != nil {
		unsubResult()
		return fmt.Errorf("start scan: %w", err)
	}
	if !status.OK() {
		unsubResult()
		return fmt.Errorf("start scan: status %s", status)
	}

	timer := time.NewTimer(scanTimeout(mask, duration))
	defer timer.Stop()
	var scanErr error
	select {
	case <-done:
	case <-timer.C:
		c.stopScan()
		scanErr = fmt.Errorf("scan timed out")
	case <-ctx.Done():
		c.stopScan()
		scanErr = ctx.Err()
	}

	unsubResult()
	// Wait out a collect already in progress.
	mu.Lock()
	mu.Unlock()
	return scanErr
}

func (c *Coordinator) stopScan() {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	if _, err := c.engine.StopScan(ctx); err != nil {
		c.logger.Warn("stop scan", "err", err)
	}
}

// scanTimeout is the nominal scan time plus a margin.
func scanTimeout(mask uint32, duration uint8) time.Duration {
	perChannel := time.Duration((1<<duration)+1) * 15360 * time.Microsecond
	return time.Duration(bits.OnesCount32(mask))*perChannel + 5*time.Second
}
