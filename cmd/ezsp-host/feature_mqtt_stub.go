//go:build no_mqtt

package main

import (
	"log/slog"

	"zigbee-ezsp-host/internal/coordinator"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *coordinator.Coordinator, cfg *Config, logger *slog.Logger) *mqttStopper {
	if cfg.MQTT.Enabled {
		logger.Warn("mqtt.enabled is set but this build has no MQTT support")
	}
	return &mqttStopper{}
}
