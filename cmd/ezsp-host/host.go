package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zigbee-ezsp-host/internal/ash"
	"zigbee-ezsp-host/internal/coordinator"
	"zigbee-ezsp-host/internal/ezsp"
	"zigbee-ezsp-host/internal/store"
)

const startTimeout = time.Minute

// host is the serial link, engine, store and coordinator of one session.
type host struct {
	store *store.BoltStore
	coord *coordinator.Coordinator
}

// openHost opens the store and brings the NCP and its network up.
func openHost(ctx context.Context, cfg *Config, logger *slog.Logger) (*host, error) {
	ccfg, err := cfg.coordinatorConfig()
	if err != nil {
		return nil, err
	}

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	link := ash.New(ash.Config{
		Port:            cfg.Serial.Port,
		BaudRate:        cfg.Serial.Baud,
		ResponseTimeout: duration(cfg.EZSP.ResponseTimeout),
	}, logger)
	engine := ezsp.New(link, ezsp.Config{NetworkIndex: cfg.EZSP.NetworkIndex}, logger)
	coord := coordinator.New(engine, db, link, ccfg, logger)

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := coord.Start(startCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("start coordinator: %w", err)
	}
	return &host{store: db, coord: coord}, nil
}

// Close stops the coordinator, which takes the link down, then the store.
func (h *host) Close() {
	h.coord.Stop()
	if err := h.store.Close(); err != nil {
		slog.Default().Warn("close store", "err", err)
	}
}
