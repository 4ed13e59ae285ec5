package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"zigbee-ezsp-host/internal/coordinator"
	"zigbee-ezsp-host/internal/ezsp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, "serial:\n  port: /dev/ttyUSB0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Serial.Baud != 115200 {
		t.Errorf("baud: got %d, want 115200", cfg.Serial.Baud)
	}
	if cfg.Store.Path != "ezsp-host.db" {
		t.Errorf("store path: got %q", cfg.Store.Path)
	}
	if cfg.Web.Listen != "127.0.0.1:8080" {
		t.Errorf("listen: got %q", cfg.Web.Listen)
	}
	if cfg.Automation.ScriptsDir != "scripts" {
		t.Errorf("scripts dir: got %q", cfg.Automation.ScriptsDir)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("want error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no port", "network:\n  channel: 15\n", "serial.port"},
		{"bad channel", "serial: {port: x}\nnetwork: {channel: 27}\n", "network.channel"},
		{"broadcast pan", "serial: {port: x}\nnetwork: {pan_id: 65535}\n", "network.pan_id"},
		{"old protocol", "serial: {port: x}\nezsp: {protocol_version: 8}\n", "protocol_version"},
		{"bad timeout", "serial: {port: x}\nezsp: {response_timeout: soon}\n", "ezsp.response_timeout"},
		{"bad ext pan", "serial: {port: x}\nnetwork: {extended_pan_id: \"12\"}\n", "extended_pan_id"},
		{"bad key", "serial: {port: x}\nnetwork: {network_key: zz}\n", "network_key"},
		{"unknown config", "serial: {port: x}\nezsp:\n  stack_config: {bogus: 1}\n", "bogus"},
		{"unknown policy", "serial: {port: x}\nezsp:\n  policies: {bogus: allow_joins}\n", "bogus"},
		{"mqtt without broker", "serial: {port: x}\nmqtt: {enabled: true}\n", "mqtt.broker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(writeConfig(t, tt.yaml))
			if err != nil {
				t.Fatal(err)
			}
			err = cfg.validate()
			if err == nil {
				t.Fatal("want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestCoordinatorConfig(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, `
serial:
  port: /dev/ttyACM0
network:
  channel: 20
  pan_id: 0x1a62
  extended_pan_id: "0xdddddddddddddddd"
  network_key: "01030507090b0d0f00020406080a0c0d"
ezsp:
  stack_config:
    binding_table_size: 64
`))
	if err != nil {
		t.Fatal(err)
	}
	cc, err := cfg.coordinatorConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cc.Network.Channel != 20 || cc.Network.PanID != 0x1A62 {
		t.Errorf("network: got %+v", cc.Network)
	}
	if cc.Network.ExtendedPanID != (ezsp.ExtPanID{0xdd, 0xdd, 0xdd, 0xdd, 0xdd, 0xdd, 0xdd, 0xdd}) {
		t.Errorf("extended pan id: got %s", cc.Network.ExtendedPanID)
	}
	if cc.Network.NetworkKey == nil || cc.Network.NetworkKey[0] != 0x01 || cc.Network.NetworkKey[15] != 0x0d {
		t.Errorf("network key: got %v", cc.Network.NetworkKey)
	}
	if got := cc.StackConfig[ezsp.ConfigBindingTableSize]; got != 64 {
		t.Errorf("binding table size: got %d, want 64", got)
	}
	// Unnamed entries keep their defaults.
	want := coordinator.DefaultStackConfig()[ezsp.ConfigAddressTableSize]
	if got := cc.StackConfig[ezsp.ConfigAddressTableSize]; got != want {
		t.Errorf("address table size: got %d, want %d", got, want)
	}
	if cc.Policies != nil {
		t.Error("policies should stay nil so the coordinator defaults apply")
	}
}

func TestChannelMask(t *testing.T) {
	tests := []struct {
		channels []uint
		want     uint32
		wantErr  bool
	}{
		{nil, 0, false},
		{[]uint{11}, 0x00000800, false},
		{[]uint{15, 20, 25}, 1<<15 | 1<<20 | 1<<25, false},
		{[]uint{10}, 0, true},
		{[]uint{27}, 0, true},
	}
	for _, tt := range tests {
		got, err := channelMask(tt.channels)
		if (err != nil) != tt.wantErr {
			t.Errorf("channelMask(%v): err = %v, wantErr %v", tt.channels, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("channelMask(%v): got 0x%08X, want 0x%08X", tt.channels, got, tt.want)
		}
	}
}
