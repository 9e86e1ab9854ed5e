package ports

import (
	"strings"

	"netsummary/internal/models"
	"netsummary/internal/payload"
)

// NormalizeUplinkStatus maps uplink states onto the port status vocabulary
func NormalizeUplinkStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active", "ready", "connected", "up":
		return models.StatusConnected
	case "failed", "not connected", "disconnected", "down":
		return models.StatusDisconnected
	case "connecting", "degraded":
		return models.StatusDegraded
	default:
		return models.StatusUnknown
	}
}

// ParseUplinks decodes uplink statuses for one device. Both the organization-wide
// form (devices each carrying an uplinks list) and a flat list of uplink records
// are accepted.
func ParseUplinks(serial string, v interface{}) []models.Uplink {
	var out []models.Uplink
	for _, r := range payload.Records("uplinkStatuses", v, "items", "data", "devices") {
		owner := payload.String(r, "serial")
		if owner != "" && owner != serial {
			continue
		}
		if inner, ok := r["uplinks"].([]interface{}); ok {
			for _, u := range payload.Records("uplinkStatuses", inner) {
				if up, ok := parseUplink(serial, u); ok {
					out = append(out, up)
				}
			}
			continue
		}
		if up, ok := parseUplink(serial, r); ok {
			out = append(out, up)
		}
	}
	return out
}

func parseUplink(serial string, r map[string]interface{}) (models.Uplink, bool) {
	iface := payload.String(r, "interface", "uplink", "name")
	if iface == "" {
		payload.Unrecognized("uplinkStatuses")
		return models.Uplink{}, false
	}
	raw := payload.String(r, "status")
	return models.Uplink{
		Serial:       serial,
		Interface:    iface,
		Status:       NormalizeUplinkStatus(raw),
		RawStatus:    raw,
		IP:           payload.String(r, "ip"),
		PublicIP:     payload.String(r, "publicIp"),
		Gateway:      payload.String(r, "gateway"),
		PrimaryDNS:   payload.String(r, "primaryDns"),
		SecondaryDNS: payload.String(r, "secondaryDns"),
		LossPercent:  payload.FloatPtr(r, "lossPercent"),
		LatencyMs:    payload.FloatPtr(r, "latencyMs"),
		JitterMs:     payload.FloatPtr(r, "jitterMs", "jitter"),
	}, true
}

// isWANKey reports whether a normalized interface key names a WAN uplink
func isWANKey(k string) bool {
	return strings.HasPrefix(k, "wan") || strings.HasPrefix(k, "internet") || strings.HasPrefix(k, "cellular")
}

// aliases lists the port keys an uplink interface may appear under
func aliases(k, model string) []string {
	out := []string{k}
	var n string
	switch {
	case strings.HasPrefix(k, "wan"):
		n = strings.TrimPrefix(k, "wan")
	case strings.HasPrefix(k, "internet"):
		n = strings.TrimPrefix(k, "internet")
	}
	if n == "" && isWANKey(k) && !strings.HasPrefix(k, "cellular") {
		n = "1"
	}
	if n != "" {
		out = append(out, "wan"+n, "internet"+n)
		if l, ok := layoutFor(model); ok {
			if i := int(n[0] - '1'); len(n) == 1 && i >= 0 && i < len(l.WAN) {
				out = append(out, key(l.WAN[i]))
			}
		}
	}
	return out
}

var genericWANKeys = []string{"wan", "wan1", "wan2"}

// AttachUplinks cross-links uplinks with gateway ports. An uplink matches a port by
// normalized key or alias; a WAN uplink with no direct match falls back to a generic
// wan/wan1/wan2 port; anything left over is appended as a synthetic WAN port. Uplink
// state fills the live status of ports that report none.
func AttachUplinks(ports []models.Port, uplinks []models.Uplink, model string) ([]models.Port, []models.Uplink) {
	linked := make(map[int]bool)
	outUplinks := make([]models.Uplink, len(uplinks))
	copy(outUplinks, uplinks)

	find := func(keys []string) int {
		for _, k := range keys {
			for i, p := range ports {
				if linked[i] {
					continue
				}
				if key(p.PortID) == k || (p.Name != "" && key(p.Name) == k) {
					return i
				}
			}
		}
		return -1
	}

	for ui := range outUplinks {
		u := &outUplinks[ui]
		k := key(u.Interface)

		idx := find(aliases(k, model))
		if idx < 0 && isWANKey(k) {
			idx = find(genericWANKeys)
		}

		if idx < 0 {
			ports = append(ports, models.Port{
				DeviceSerial: u.Serial,
				PortID:       u.Interface,
				Name:         u.Interface,
				Enabled:      true,
				Role:         models.RoleWAN,
				Status:       u.Status,
				Synthetic:    true,
			})
			idx = len(ports) - 1
		}

		p := &ports[idx]
		linked[idx] = true
		p.Uplink = u.Interface
		u.PortID = p.PortID
		if p.Status == "" || p.Status == models.StatusUnknown {
			p.Status = u.Status
		}
		p.HasCarrier = p.Status == models.StatusConnected
		if p.Role != models.RoleWAN && isWANKey(k) {
			p.Role = models.RoleWAN
		}
	}

	Sort(ports)
	return ports, outUplinks
}
