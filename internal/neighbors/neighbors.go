// Package neighbors decodes per-device LLDP/CDP discovery snapshots and resolves
// reported neighbors back to inventory devices.
package neighbors

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"netsummary/internal/inventory"
	"netsummary/internal/payload"
)

// Discovery protocols
const (
	ProtocolLLDP = "lldp"
	ProtocolCDP  = "cdp"
)

// Neighbor is one device seen on a local port
type Neighbor struct {
	LocalPort  string `json:"localPort"`
	Protocol   string `json:"protocol"`
	SystemName string `json:"systemName,omitempty"`
	DeviceID   string `json:"deviceId,omitempty"`
	ChassisID  string `json:"chassisId,omitempty"`
	PortID     string `json:"portId,omitempty"`
	Address    string `json:"address,omitempty"`
}

// Snapshot is the discovery table of one device
type Snapshot struct {
	Serial    string     `json:"serial"`
	SourceMAC string     `json:"sourceMac,omitempty"`
	Neighbors []Neighbor `json:"neighbors"`
	FetchedAt time.Time  `json:"fetchedAt"`
}

// Parse decodes a discovery payload. Both the port-keyed object form and a flat list
// of port records are accepted; LLDP entries are listed before CDP entries of the
// same port.
func Parse(serial string, v interface{}, fetchedAt time.Time) Snapshot {
	snap := Snapshot{Serial: serial, FetchedAt: fetchedAt, Neighbors: []Neighbor{}}

	m, isObj := payload.Object(v)
	if isObj {
		snap.SourceMAC = inventory.NormalizeMAC(payload.String(m, "sourceMac"))
		if ports, ok := payload.Object(m["ports"]); ok {
			keys := make([]string, 0, len(ports))
			for k := range ports {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool { return PortLess(keys[i], keys[j]) })
			for _, k := range keys {
				entry, ok := payload.Object(ports[k])
				if !ok {
					payload.Unrecognized("lldpCdp")
					continue
				}
				snap.Neighbors = append(snap.Neighbors, parseEntry(k, entry)...)
			}
			return snap
		}
	}

	for _, r := range payload.Records("lldpCdp", v, "ports", "neighbors", "items", "data") {
		local := payload.String(r, "localPort", "port", "portId")
		if _, nested := r[ProtocolLLDP]; nested {
			snap.Neighbors = append(snap.Neighbors, parseEntry(local, r)...)
			continue
		}
		if _, nested := r[ProtocolCDP]; nested {
			snap.Neighbors = append(snap.Neighbors, parseEntry(local, r)...)
			continue
		}
		n := neighborFrom(local, payload.String(r, "protocol"), r)
		if n.identifiable() {
			snap.Neighbors = append(snap.Neighbors, n)
		}
	}
	return snap
}

func parseEntry(localPort string, entry map[string]interface{}) []Neighbor {
	var out []Neighbor
	for _, proto := range []string{ProtocolLLDP, ProtocolCDP} {
		rec, ok := payload.Object(entry[proto])
		if !ok {
			continue
		}
		local := localPort
		if local == "" {
			local = payload.String(rec, "sourcePort")
		}
		n := neighborFrom(local, proto, rec)
		if n.identifiable() {
			out = append(out, n)
		}
	}
	return out
}

func neighborFrom(localPort, protocol string, r map[string]interface{}) Neighbor {
	if protocol == "" {
		protocol = ProtocolLLDP
	}
	return Neighbor{
		LocalPort:  PortNumber(localPort),
		Protocol:   strings.ToLower(protocol),
		SystemName: payload.String(r, "systemName", "deviceName", "name"),
		DeviceID:   payload.String(r, "deviceId", "serial"),
		ChassisID:  inventory.NormalizeMAC(payload.String(r, "chassisId", "mac")),
		PortID:     payload.String(r, "portId", "remotePort"),
		Address:    payload.String(r, "managementAddress", "address", "ip"),
	}
}

func (n Neighbor) identifiable() bool {
	return n.SystemName != "" || n.DeviceID != "" || n.ChassisID != "" || n.Address != ""
}

var trailingDigits = regexp.MustCompile(`(\d+)\s*$`)

// PortNumber reduces labels such as "Port 5" or "GigabitEthernet1/0/5" to the
// trailing port number. Labels without one are returned trimmed.
func PortNumber(label string) string {
	s := strings.TrimSpace(label)
	if m := trailingDigits.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// PortLess orders port identifiers numerically when both are numbers and
// lexically otherwise
func PortLess(a, b string) bool {
	na, aok := atoi(a)
	nb, bok := atoi(b)
	switch {
	case aok && bok:
		if na != nb {
			return na < nb
		}
		return a < b
	case aok:
		return true
	case bok:
		return false
	default:
		return a < b
	}
}

func atoi(s string) (int, bool) {
	if s == "" || len(s) > 9 {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int(s[i]-'0')
	}
	return n, true
}
