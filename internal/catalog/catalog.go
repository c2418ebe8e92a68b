package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// Catalog is the immutable pair of lookup tables.
type Catalog struct {
	locations map[DeviceID]Location
	resources map[ruleKey]string

	devices []Device
	rules   []Rule
}

// New builds a Catalog from device and rule rows.
//
// Rule message types are normalised to upper case. Duplicate device IDs
// or duplicate (location, type) pairs are rejected, as are rows with an
// empty location, type or resource.
func New(devices []Device, rules []Rule) (*Catalog, error) {
	c := &Catalog{
		locations: make(map[DeviceID]Location, len(devices)),
		resources: make(map[ruleKey]string, len(rules)),
		devices:   make([]Device, 0, len(devices)),
		rules:     make([]Rule, 0, len(rules)),
	}

	for _, d := range devices {
		if strings.TrimSpace(string(d.Location)) == "" {
			return nil, fmt.Errorf("%w: device %d has no location", ErrInvalidEntry, d.ID)
		}
		if _, exists := c.locations[d.ID]; exists {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateDevice, d.ID)
		}
		c.locations[d.ID] = d.Location
		c.devices = append(c.devices, d)
	}

	for _, r := range rules {
		r.Type = NormalizeType(string(r.Type))
		if r.Location == "" || r.Type == "" || r.Resource == "" {
			return nil, fmt.Errorf("%w: rule %q/%q -> %q", ErrInvalidEntry, r.Location, r.Type, r.Resource)
		}
		key := ruleKey{location: r.Location, msgType: r.Type}
		if _, exists := c.resources[key]; exists {
			return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateRule, r.Location, r.Type)
		}
		c.resources[key] = r.Resource
		c.rules = append(c.rules, r)
	}

	sort.Slice(c.devices, func(i, j int) bool { return c.devices[i].ID < c.devices[j].ID })
	sort.Slice(c.rules, func(i, j int) bool {
		if c.rules[i].Location != c.rules[j].Location {
			return c.rules[i].Location < c.rules[j].Location
		}
		return c.rules[i].Type < c.rules[j].Type
	})

	return c, nil
}

// Location resolves a device ID. ok is false when the device is unknown.
func (c *Catalog) Location(id DeviceID) (loc Location, ok bool) {
	loc, ok = c.locations[id]
	return loc, ok
}

// Resource resolves the sound resource for a location and message type.
// ok is false when no alert is configured for the pair.
func (c *Catalog) Resource(loc Location, msgType MessageType) (resource string, ok bool) {
	resource, ok = c.resources[ruleKey{location: loc, msgType: msgType}]
	return resource, ok
}

// Devices returns a copy of the device table ordered by ID.
func (c *Catalog) Devices() []Device {
	out := make([]Device, len(c.devices))
	copy(out, c.devices)
	return out
}

// Rules returns a copy of the alert table ordered by location then type.
func (c *Catalog) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Len returns the number of devices and rules.
func (c *Catalog) Len() (devices, rules int) {
	return len(c.devices), len(c.rules)
}
