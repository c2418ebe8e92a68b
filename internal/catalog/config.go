package catalog

import (
	"github.com/nerrad567/lora-alert/internal/infrastructure/config"
)

// FromConfig builds a Catalog from the tables section of the YAML config.
func FromConfig(tables config.TablesConfig) (*Catalog, error) {
	devices := make([]Device, 0, len(tables.Devices))
	for _, d := range tables.Devices {
		devices = append(devices, Device{ID: DeviceID(d.ID), Location: Location(d.Location)})
	}

	var rules []Rule
	for location, byType := range tables.Alerts {
		for msgType, resource := range byType {
			rules = append(rules, Rule{
				Location: Location(location),
				Type:     MessageType(msgType),
				Resource: resource,
			})
		}
	}

	return New(devices, rules)
}
