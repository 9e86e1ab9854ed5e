// Package inventory turns device inventory and status payloads into canonical
// device records and derives the device mix of a network.
package inventory

import (
	"sort"
	"strings"
	"time"

	"netsummary/internal/models"
	"netsummary/internal/payload"
)

// Classify infers the device class from its model prefix, falling back to the
// vendor product type
func Classify(model, productType string) models.DeviceClass {
	m := strings.ToUpper(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "MS"):
		return models.ClassSwitch
	case strings.HasPrefix(m, "MR"), strings.HasPrefix(m, "CW"):
		return models.ClassAccessPoint
	case strings.HasPrefix(m, "MX"):
		return models.ClassGateway
	case strings.HasPrefix(m, "Z"):
		return models.ClassTeleworkerGateway
	case strings.HasPrefix(m, "MG"):
		return models.ClassCellularGateway
	}

	switch strings.ToLower(strings.TrimSpace(productType)) {
	case "switch":
		return models.ClassSwitch
	case "wireless":
		return models.ClassAccessPoint
	case "appliance":
		return models.ClassGateway
	case "cellulargateway":
		return models.ClassCellularGateway
	}
	return models.ClassOther
}

// NormalizeStatus maps vendor status strings onto online, offline, warning or unknown
func NormalizeStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "online", "active", "up", "connected", "ready":
		return models.DeviceOnline
	case "offline", "down", "dormant", "disconnected", "not connected", "failed":
		return models.DeviceOffline
	case "alerting", "warning", "degraded":
		return models.DeviceWarning
	default:
		return models.DeviceUnknown
	}
}

// NormalizeMAC lower-cases a MAC address and rewrites it colon separated. Values
// that are not 12 hex digits are returned lower-cased and trimmed.
func NormalizeMAC(mac string) string {
	s := strings.ToLower(strings.TrimSpace(mac))
	hex := make([]byte, 0, 12)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f':
			hex = append(hex, c)
		case c == ':' || c == '-' || c == '.':
		default:
			return s
		}
	}
	if len(hex) != 12 {
		return s
	}
	var b strings.Builder
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.Write(hex[i : i+2])
	}
	return b.String()
}

// ParseNetwork extracts network identity. ok is false when no organization can be
// resolved from the payload.
func ParseNetwork(v interface{}) (models.NetworkInfo, bool) {
	m, isObj := payload.Object(v)
	if !isObj {
		return models.NetworkInfo{}, false
	}
	info := models.NetworkInfo{
		ID:             payload.String(m, "id", "networkId"),
		Name:           payload.String(m, "name"),
		OrganizationID: payload.String(m, "organizationId", "orgId"),
		TimeZone:       payload.String(m, "timeZone"),
	}
	return info, info.OrganizationID != ""
}

// ParseDevices decodes the network device inventory. Records without a serial or
// MAC are dropped.
func ParseDevices(v interface{}) []models.Device {
	records := payload.Records("devices", v, "devices", "items", "data")
	devices := make([]models.Device, 0, len(records))
	for _, r := range records {
		d := models.Device{
			Serial:      payload.String(r, "serial"),
			MAC:         NormalizeMAC(payload.String(r, "mac")),
			Model:       payload.String(r, "model"),
			Name:        payload.String(r, "name"),
			ProductType: payload.String(r, "productType"),
			LanIP:       payload.String(r, "lanIp"),
			NetworkID:   payload.String(r, "networkId"),
			Status:      models.DeviceUnknown,
		}
		if d.Serial == "" && d.MAC == "" {
			payload.Unrecognized("devices")
			continue
		}
		d.Class = Classify(d.Model, d.ProductType)
		devices = append(devices, d)
	}
	return devices
}

// Status is the live state of one device
type Status struct {
	Status         string
	LastReportedAt *time.Time
	LanIP          string
	PublicIP       string
}

// ParseStatuses decodes device statuses keyed by serial
func ParseStatuses(v interface{}) map[string]Status {
	out := make(map[string]Status)
	for _, r := range payload.Records("deviceStatuses", v, "statuses", "items", "data") {
		serial := payload.String(r, "serial")
		if serial == "" {
			continue
		}
		s := Status{
			Status:   NormalizeStatus(payload.String(r, "status")),
			LanIP:    payload.String(r, "lanIp"),
			PublicIP: payload.String(r, "publicIp"),
		}
		if ts, ok := payload.Time(r, "lastReportedAt"); ok {
			s.LastReportedAt = &ts
		}
		out[serial] = s
	}
	return out
}

// ApplyStatuses copies live status onto devices. Devices without a status stay
// unknown.
func ApplyStatuses(devices []models.Device, statuses map[string]Status) {
	for i := range devices {
		s, ok := statuses[devices[i].Serial]
		if !ok {
			continue
		}
		devices[i].Status = s.Status
		devices[i].LastReportedAt = s.LastReportedAt
		if devices[i].LanIP == "" {
			devices[i].LanIP = s.LanIP
		}
	}
}

// StatusMap indexes device status by serial and MAC
func StatusMap(devices []models.Device) map[string]string {
	out := make(map[string]string, len(devices)*2)
	for _, d := range devices {
		if d.Serial != "" {
			out[d.Serial] = d.Status
		}
		if d.MAC != "" {
			out[d.MAC] = d.Status
		}
	}
	return out
}

// OfClass returns the devices of any of the given classes, in inventory order
func OfClass(devices []models.Device, classes ...models.DeviceClass) []models.Device {
	var out []models.Device
	for _, d := range devices {
		for _, c := range classes {
			if d.Class == c {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// Gateways returns the gateway-like devices
func Gateways(devices []models.Device) []models.Device {
	var out []models.Device
	for _, d := range devices {
		if d.Class.IsGatewayLike() {
			out = append(out, d)
		}
	}
	return out
}

// Serials returns the sorted serials of devices
func Serials(devices []models.Device) []string {
	out := make([]string, 0, len(devices))
	for _, d := range devices {
		if d.Serial != "" {
			out = append(out, d.Serial)
		}
	}
	sort.Strings(out)
	return out
}

// Count returns the device mix
func Count(devices []models.Device) models.DeviceCounts {
	c := models.DeviceCounts{Total: len(devices)}
	for _, d := range devices {
		switch {
		case d.Class == models.ClassSwitch:
			c.Switches++
		case d.Class == models.ClassAccessPoint:
			c.AccessPoints++
		case d.Class.IsGatewayLike():
			c.Gateways++
		default:
			c.Other++
		}
	}
	return c
}

// Flavor tags the device mix: G for gateways, S for switches, AP for access points
func Flavor(c models.DeviceCounts) string {
	var b strings.Builder
	if c.Gateways > 0 {
		b.WriteString("G")
	}
	if c.Switches > 0 {
		b.WriteString("S")
	}
	if c.AccessPoints > 0 {
		b.WriteString("AP")
	}
	if b.Len() == 0 {
		return "EMPTY"
	}
	return b.String()
}
