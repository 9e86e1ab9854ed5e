// Package ports merges port configuration, live port status and uplink records
// into one canonical port per physical port, and infers what each gateway port is
// cabled to when discovery data is missing.
package ports

import (
	"regexp"
	"sort"
	"strings"

	"netsummary/internal/models"
	"netsummary/internal/neighbors"
	"netsummary/internal/payload"
)

var (
	portPrefix   = regexp.MustCompile(`^(?:port|eth|ethernet|lan)\s*[-_ ]?\s*(\d+)$`)
	digits       = regexp.MustCompile(`^\d+$`)
	nonAlnum     = regexp.MustCompile(`[^a-z0-9]+`)
	wanName      = regexp.MustCompile(`\b(wan|internet)\s*\d*\b`)
	mgmtName     = regexp.MustCompile(`\b(mgmt|management)\b`)
	portListKeys = []string{"ports", "items", "data", "statuses"}
)

// NormalizeID canonicalizes a port identifier: "Port 5", "05" and "5" are the same port
func NormalizeID(id string) string {
	s := strings.ToLower(strings.TrimSpace(id))
	if m := portPrefix.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if digits.MatchString(s) {
		if t := strings.TrimLeft(s, "0"); t != "" {
			return t
		}
		return "0"
	}
	return s
}

// key reduces a label to lower-case alphanumerics for uplink matching
func key(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(s), "")
}

// NormalizeStatus maps vendor port states onto connected, disconnected, disabled
// or unknown
func NormalizeStatus(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "connected", "up", "active", "online", "ready":
		return models.StatusConnected
	case "disconnected", "down", "not connected", "offline", "failed":
		return models.StatusDisconnected
	case "disabled":
		return models.StatusDisabled
	default:
		return models.StatusUnknown
	}
}

func portID(r map[string]interface{}) string {
	return NormalizeID(payload.String(r, "portId", "number", "port", "id"))
}

// Merge builds one port per normalized port id of a device. Status records win for
// live fields (status, speed, enabled, duplex, usage, PoE); configuration supplies
// name, VLAN, comment and type and fills whatever status left out.
func Merge(serial, model string, configs, statuses interface{}) []models.Port {
	byID := make(map[string]*models.Port)
	var order []string
	seenEnabled := make(map[string]bool)

	get := func(id string) *models.Port {
		if p, ok := byID[id]; ok {
			return p
		}
		p := &models.Port{DeviceSerial: serial, PortID: id, Status: models.StatusUnknown}
		byID[id] = p
		order = append(order, id)
		return p
	}

	roles := make(map[string]string)

	for _, r := range payload.Records("portConfig", configs, portListKeys...) {
		id := portID(r)
		if id == "" {
			payload.Unrecognized("portConfig")
			continue
		}
		p := get(id)
		if name := payload.String(r, "name"); name != "" {
			p.Name = name
		}
		if v := payload.String(r, "vlan", "nativeVlan"); v != "" {
			p.VLAN = v
		}
		if c := payload.String(r, "comment", "tags"); c != "" {
			p.Comment = c
		}
		if t := payload.String(r, "type"); t != "" {
			p.Type = strings.ToLower(t)
		}
		if e, ok := payload.Bool(r, "enabled"); ok {
			p.Enabled = e
			seenEnabled[id] = true
		}
		if poe, ok := payload.Bool(r, "poeEnabled"); ok {
			p.PoEEnabled = poe
		}
		if role := explicitRole(r); role != "" {
			roles[id] = role
		}
	}

	for _, r := range payload.Records("portStatus", statuses, portListKeys...) {
		id := portID(r)
		if id == "" {
			payload.Unrecognized("portStatus")
			continue
		}
		p := get(id)

		enabled, hasEnabled := payload.Bool(r, "enabled")
		if hasEnabled {
			p.Enabled = enabled
			seenEnabled[id] = true
		}
		if s := payload.String(r, "status"); s != "" {
			p.Status = NormalizeStatus(s)
		}
		if raw, ok := payload.Field(r, "speed", "linkSpeed", "speedMbps"); ok {
			if mbps, label, ok := ParseSpeed(raw); ok {
				p.SpeedMbps, p.SpeedLabel = mbps, label
			}
		}
		if d := payload.String(r, "duplex"); d != "" {
			p.Duplex = strings.ToLower(d)
		}
		if traffic, ok := payload.Object(r["trafficInKbps"]); ok {
			down, _ := payload.Float(traffic, "recv", "down")
			up, _ := payload.Float(traffic, "sent", "up")
			p.Usage = &models.PortUsage{DownKbps: down, UpKbps: up}
		}
		if poe, ok := payload.Object(r["poe"]); ok {
			if alloc, ok := payload.Bool(poe, "isAllocated", "enabled"); ok {
				p.PoEEnabled = alloc
			}
		}
		if w, ok := payload.Float(r, "powerUsageInWh", "poeUsage"); ok {
			p.PoEUsageW = w
		}
		if p.Name == "" {
			p.Name = payload.String(r, "name")
		}
		if role := explicitRole(r); role != "" {
			roles[id] = role
		}
	}

	out := make([]models.Port, 0, len(order))
	for _, id := range order {
		p := byID[id]
		if !seenEnabled[id] {
			// a port reporting a link is evidently enabled
			p.Enabled = p.Status == models.StatusConnected
		}
		if !p.Enabled && p.Status == models.StatusUnknown && seenEnabled[id] {
			p.Status = models.StatusDisabled
		}
		p.HasCarrier = p.Status == models.StatusConnected
		p.Role = roles[id]
		if p.Role == "" {
			p.Role = inferRole(model, p.PortID, p.Name)
		}
		out = append(out, *p)
	}

	Sort(out)
	return out
}

// explicitRole reads a declared role or type
func explicitRole(r map[string]interface{}) string {
	for _, v := range []string{payload.String(r, "role"), payload.String(r, "type")} {
		switch strings.ToLower(v) {
		case "wan", "internet":
			return models.RoleWAN
		case "management", "mgmt":
			return models.RoleManagement
		}
	}
	return ""
}

// inferRole guesses a role from the port name, then the model WAN table
func inferRole(model, id, name string) string {
	for _, s := range []string{strings.ToLower(name), strings.ToLower(id)} {
		switch {
		case s == "":
		case wanName.MatchString(s):
			return models.RoleWAN
		case mgmtName.MatchString(s):
			return models.RoleManagement
		}
	}
	if isWANPort(model, id) {
		return models.RoleWAN
	}
	return models.RoleLAN
}

func roleRank(role string) int {
	switch role {
	case models.RoleWAN:
		return 0
	case models.RoleManagement:
		return 1
	case models.RoleLAN:
		return 2
	default:
		return 3
	}
}

// Sort orders ports by role (wan, management, lan, other), then by port number
func Sort(ports []models.Port) {
	sort.SliceStable(ports, func(i, j int) bool {
		ri, rj := roleRank(ports[i].Role), roleRank(ports[j].Role)
		if ri != rj {
			return ri < rj
		}
		return neighbors.PortLess(ports[i].PortID, ports[j].PortID)
	})
}
