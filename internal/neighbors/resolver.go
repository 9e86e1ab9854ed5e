package neighbors

import (
	"strings"

	"netsummary/internal/inventory"
	"netsummary/internal/models"
)

// Resolver maps discovery neighbors to inventory devices
type Resolver struct {
	bySerial map[string]models.Device
	byMAC    map[string]models.Device
	byName   map[string]models.Device
	byIP     map[string]models.Device
}

// NewResolver indexes devices by serial, MAC, name and LAN address
func NewResolver(devices []models.Device) *Resolver {
	r := &Resolver{
		bySerial: make(map[string]models.Device, len(devices)),
		byMAC:    make(map[string]models.Device, len(devices)),
		byName:   make(map[string]models.Device, len(devices)),
		byIP:     make(map[string]models.Device, len(devices)),
	}
	for _, d := range devices {
		if d.Serial != "" {
			r.bySerial[strings.ToUpper(d.Serial)] = d
		}
		if d.MAC != "" {
			r.byMAC[d.MAC] = d
		}
		if d.Name != "" {
			r.byName[strings.ToLower(d.Name)] = d
		}
		if d.LanIP != "" {
			r.byIP[d.LanIP] = d
		}
	}
	return r
}

// Device returns the inventory device with serial
func (r *Resolver) Device(serial string) (models.Device, bool) {
	d, ok := r.bySerial[strings.ToUpper(serial)]
	return d, ok
}

// Resolve finds the inventory device a neighbor refers to
func (r *Resolver) Resolve(n Neighbor) (models.Device, bool) {
	for _, mac := range []string{n.ChassisID, inventory.NormalizeMAC(n.DeviceID)} {
		if d, ok := r.byMAC[mac]; ok && mac != "" {
			return d, true
		}
	}

	for _, id := range []string{n.DeviceID, n.SystemName} {
		if d, ok := r.bySerial[strings.ToUpper(strings.TrimSpace(id))]; ok {
			return d, true
		}
	}

	if name := systemName(n.SystemName); name != "" {
		if d, ok := r.byName[name]; ok {
			return d, true
		}
	}

	if n.Address != "" {
		if d, ok := r.byIP[n.Address]; ok {
			return d, true
		}
	}
	return models.Device{}, false
}

// Identify returns the graph identifier of a neighbor: the inventory serial when it
// resolves, else its normalized MAC. An empty string means the neighbor cannot be
// identified.
func (r *Resolver) Identify(n Neighbor) (string, *models.Device) {
	if d, ok := r.Resolve(n); ok {
		if d.Serial != "" {
			return d.Serial, &d
		}
		return d.MAC, &d
	}
	for _, candidate := range []string{n.ChassisID, inventory.NormalizeMAC(n.DeviceID)} {
		if isMAC(candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

// systemName strips the vendor "Meraki MX68 - " style prefix and lower-cases the rest
func systemName(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, " - "); i >= 0 {
		s = s[i+3:]
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func isMAC(s string) bool {
	return len(s) == 17 && strings.Count(s, ":") == 5
}
