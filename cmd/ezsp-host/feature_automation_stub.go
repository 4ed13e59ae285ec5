//go:build no_automation

package main

import (
	"log/slog"

	"zigbee-ezsp-host/internal/coordinator"
	"zigbee-ezsp-host/internal/web"
)

type autoStopper struct{}

func (a *autoStopper) Stop() {}

func initAutomation(_ *coordinator.Coordinator, cfg *Config, logger *slog.Logger) (*autoStopper, []web.ServerOption) {
	if cfg.Automation.Enabled {
		logger.Warn("automation.enabled is set but this build has no Lua support")
	}
	return &autoStopper{}, nil
}
