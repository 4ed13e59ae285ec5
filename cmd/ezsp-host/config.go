package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"zigbee-ezsp-host/internal/coordinator"
	"zigbee-ezsp-host/internal/ezsp"
)

type Config struct {
	Serial struct {
		Port string `yaml:"port"`
		Baud int    `yaml:"baud"`
	} `yaml:"serial"`
	EZSP struct {
		// ProtocolVersion is the version asked for; zero means the latest.
		ProtocolVersion  uint8             `yaml:"protocol_version"`
		NetworkIndex     uint8             `yaml:"network_index"`
		ResponseTimeout  string            `yaml:"response_timeout"`
		ManufacturerCode uint16            `yaml:"manufacturer_code"`
		StackConfig      map[string]uint16 `yaml:"stack_config"`
		Policies         map[string]string `yaml:"policies"`
	} `yaml:"ezsp"`
	Network struct {
		Channel       uint8  `yaml:"channel"`
		PanID         uint16 `yaml:"pan_id"`
		ExtendedPanID string `yaml:"extended_pan_id"`
		TxPower       uint8  `yaml:"tx_power"`
		NetworkKey    string `yaml:"network_key"`
	} `yaml:"network"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled          bool   `yaml:"enabled"`
		Broker           string `yaml:"broker"`
		Username         string `yaml:"username"`
		Password         string `yaml:"password"`
		TopicPrefix      string `yaml:"topic_prefix"`
		ClientID         string `yaml:"client_id"`
		CountersInterval string `yaml:"counters_interval"`
	} `yaml:"mqtt"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Automation struct {
		Enabled       bool     `yaml:"enabled"`
		ScriptsDir    string   `yaml:"scripts_dir"`
		ExecAllowlist []string `yaml:"exec_allowlist"`
		ExecTimeout   string   `yaml:"exec_timeout"`
	} `yaml:"automation"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func (c *Config) validate() error {
	if c.Serial.Port == "" {
		return fmt.Errorf("serial.port is required")
	}
	if ch := c.Network.Channel; ch != 0 && (ch < 11 || ch > 26) {
		return fmt.Errorf("network.channel must be 11-26, got %d", ch)
	}
	if c.Network.PanID == 0xFFFF {
		return fmt.Errorf("network.pan_id must not be 0xFFFF")
	}
	if c.EZSP.ProtocolVersion != 0 && c.EZSP.ProtocolVersion < ezsp.MinProtocolVersion {
		return fmt.Errorf("ezsp.protocol_version must be at least %d", ezsp.MinProtocolVersion)
	}
	for name, d := range map[string]string{
		"ezsp.response_timeout":   c.EZSP.ResponseTimeout,
		"mqtt.counters_interval":  c.MQTT.CountersInterval,
		"automation.exec_timeout": c.Automation.ExecTimeout,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	_, err := c.coordinatorConfig()
	return err
}

// duration parses a validated duration string; empty means zero.
func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// coordinatorConfig translates the ezsp and network sections. Stack config
// and policy entries are named and overlay the coordinator defaults.
func (c *Config) coordinatorConfig() (coordinator.Config, error) {
	cc := coordinator.Config{
		ProtocolVersion:  c.EZSP.ProtocolVersion,
		ManufacturerCode: c.EZSP.ManufacturerCode,
		Network: coordinator.NetworkConfig{
			Channel: c.Network.Channel,
			PanID:   c.Network.PanID,
			TxPower: c.Network.TxPower,
		},
	}

	if c.Network.ExtendedPanID != "" {
		if err := cc.Network.ExtendedPanID.UnmarshalText([]byte(c.Network.ExtendedPanID)); err != nil {
			return cc, fmt.Errorf("network.extended_pan_id: %w", err)
		}
	}
	if c.Network.NetworkKey != "" {
		var key ezsp.KeyData
		if err := key.UnmarshalText([]byte(c.Network.NetworkKey)); err != nil {
			return cc, fmt.Errorf("network.network_key: %w", err)
		}
		cc.Network.NetworkKey = &key
	}

	if len(c.EZSP.StackConfig) > 0 {
		cc.StackConfig = coordinator.DefaultStackConfig()
		for name, v := range c.EZSP.StackConfig {
			id, ok := ezsp.ConfigIDByName(name)
			if !ok {
				return cc, fmt.Errorf("ezsp.stack_config: unknown key %q", name)
			}
			cc.StackConfig[id] = v
		}
	}

	if len(c.EZSP.Policies) > 0 {
		cc.Policies = coordinator.DefaultPolicies()
		for name, decision := range c.EZSP.Policies {
			id, ok := ezsp.PolicyIDByName(name)
			if !ok {
				return cc, fmt.Errorf("ezsp.policies: unknown policy %q", name)
			}
			d, ok := ezsp.DecisionIDByName(decision)
			if !ok {
				return cc, fmt.Errorf("ezsp.policies.%s: unknown decision %q", name, decision)
			}
			cc.Policies[id] = d
		}
	}
	return cc, nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 115200
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "ezsp-host.db"
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "ezsp"
	}
	if cfg.Automation.ScriptsDir == "" {
		cfg.Automation.ScriptsDir = "scripts"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
