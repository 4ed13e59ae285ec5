//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"

	"zigbee-ezsp-host/internal/coordinator"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/sensor/ezsp_00124b0012345678/channel/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	CommandTopic      string   `json:"command_topic,omitempty"`
	AvailabilityTopic string   `json:"availability_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	EntityCategory    string   `json:"entity_category,omitempty"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	StateOn           string   `json:"state_on,omitempty"`
	StateOff          string   `json:"state_off,omitempty"`
	Device            haDevice `json:"device"`
}

// discoveredCounters are the counters exposed as diagnostic sensors.
var discoveredCounters = []string{
	"ash.crc_errors",
	"ash.ncp_resets",
	"ash.ack_timeouts",
	"ezsp.queue_full",
	"ezsp.overflow",
	"coordinator.resets",
}

// counterKey turns a counter name into a state key: "ash.crc_errors" becomes
// "ash_crc_errors".
func counterKey(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

// counterTitle is the entity name of a counter sensor.
func counterTitle(name string) string {
	words := strings.Fields(strings.NewReplacer(".", " ", "_", " ").Replace(name))
	for i, w := range words {
		switch w {
		case "ash", "ezsp", "ncp", "crc":
			words[i] = strings.ToUpper(w)
		default:
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// coordinatorIdentifier returns the unique identifier for the HA device
// registry.
func coordinatorIdentifier(info coordinator.Info) string {
	if info.EUI64 == "" {
		return "ezsp_coordinator"
	}
	return "ezsp_" + strings.TrimPrefix(info.EUI64, "0x")
}

// buildDiscovery generates HA discovery messages for the coordinator: its
// network state, the permit join switch and diagnostic sensors.
func buildDiscovery(info coordinator.Info, prefix string) []discoveryMsg {
	avail := prefix + "/bridge/state"
	stateTopic := prefix + "/bridge/coordinator"
	nodeID := coordinatorIdentifier(info)

	haDev := haDevice{
		Identifiers:  []string{nodeID},
		Manufacturer: "Silicon Labs",
		Model:        "EZSP coordinator",
		Name:         "Zigbee Coordinator",
	}
	if info.StackVersion != "" {
		haDev.SWVersion = fmt.Sprintf("%s (EZSP 0x%02X)", info.StackVersion, info.ProtocolVersion)
	}

	msgs := []discoveryMsg{
		buildBinarySensor(nodeID, stateTopic, avail, haDev,
			"network", "Network", "connectivity",
			"{{ 'ON' if value_json.network == 'up' else 'OFF' }}"),
		buildSwitch(nodeID, stateTopic, avail, haDev, prefix),
		buildSensor(nodeID, stateTopic, avail, haDev,
			"channel", "Channel", "", "", "diagnostic",
			"{{ value_json.channel }}"),
		buildSensor(nodeID, stateTopic, avail, haDev,
			"pan_id", "PAN ID", "", "", "diagnostic",
			"{{ value_json.pan_id }}"),
	}

	for _, name := range discoveredCounters {
		key := counterKey(name)
		msg := buildSensor(nodeID, stateTopic, avail, haDev,
			key, counterTitle(name), "", "total_increasing", "diagnostic",
			"{{ value_json."+key+" }}")
		msgs = append(msgs, msg)
	}
	return msgs
}

func buildSensor(nodeID, stateTopic, avail string, haDev haDevice,
	objectID, suffix, unit, stateClass, category, valueTmpl string) discoveryMsg {

	topic := fmt.Sprintf("homeassistant/sensor/%s/%s/config", nodeID, objectID)
	payload := haDiscovery{
		Name:              haDev.Name + " " + suffix,
		UniqueID:          nodeID + "_" + objectID,
		StateTopic:        stateTopic,
		AvailabilityTopic: avail,
		ValueTemplate:     valueTmpl,
		UnitOfMeasurement: unit,
		StateClass:        stateClass,
		EntityCategory:    category,
		Device:            haDev,
	}
	return discoveryMsg{Topic: topic, Payload: mustJSON(payload)}
}

func buildBinarySensor(nodeID, stateTopic, avail string, haDev haDevice,
	objectID, suffix, deviceClass, valueTmpl string) discoveryMsg {

	topic := fmt.Sprintf("homeassistant/binary_sensor/%s/%s/config", nodeID, objectID)
	payload := haDiscovery{
		Name:              haDev.Name + " " + suffix,
		UniqueID:          nodeID + "_" + objectID,
		StateTopic:        stateTopic,
		AvailabilityTopic: avail,
		ValueTemplate:     valueTmpl,
		DeviceClass:       deviceClass,
		PayloadOn:         "ON",
		PayloadOff:        "OFF",
		Device:            haDev,
	}
	return discoveryMsg{Topic: topic, Payload: mustJSON(payload)}
}

// buildSwitch exposes permit join. Turning it on opens the network for the
// longest timed window.
func buildSwitch(nodeID, stateTopic, avail string, haDev haDevice, prefix string) discoveryMsg {
	topic := fmt.Sprintf("homeassistant/switch/%s/permit_join/config", nodeID)
	payload := haDiscovery{
		Name:              haDev.Name + " Permit Join",
		UniqueID:          nodeID + "_permit_join",
		StateTopic:        stateTopic,
		CommandTopic:      prefix + "/bridge/request/permit_join",
		AvailabilityTopic: avail,
		ValueTemplate:     "{{ 'ON' if value_json.permit_join else 'OFF' }}",
		PayloadOn:         `{"duration":254}`,
		PayloadOff:        `{"duration":0}`,
		StateOn:           "ON",
		StateOff:          "OFF",
		Device:            haDev,
	}
	return discoveryMsg{Topic: topic, Payload: mustJSON(payload)}
}

// buildRemoveDiscovery generates empty retained messages that remove the
// coordinator from HA.
func buildRemoveDiscovery(info coordinator.Info) []discoveryMsg {
	nodeID := coordinatorIdentifier(info)

	components := []struct{ comp, obj string }{
		{"binary_sensor", "network"},
		{"switch", "permit_join"},
		{"sensor", "channel"},
		{"sensor", "pan_id"},
	}
	for _, name := range discoveredCounters {
		components = append(components, struct{ comp, obj string }{"sensor", counterKey(name)})
	}

	var msgs []discoveryMsg
	for _, c := range components {
		msgs = append(msgs, discoveryMsg{
			Topic:   fmt.Sprintf("homeassistant/%s/%s/%s/config", c.comp, nodeID, c.obj),
			Payload: nil, // empty retained = delete
		})
	}
	return msgs
}
