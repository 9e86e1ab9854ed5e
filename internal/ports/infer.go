package ports

import (
	"fmt"
	"sort"
	"time"

	"netsummary/internal/models"
	"netsummary/internal/neighbors"
	"netsummary/internal/payload"
)

// Connectivity sources, most trusted first
const (
	SourceLLDP       = "lldp"
	SourceGAPRule    = "gap-rule"
	SourceModelTable = "model-table"
)

// Env is what the connectivity resolvers may look at
type Env struct {
	Gateway      models.Device
	Switches     []models.Device
	AccessPoints []models.Device
	Snapshots    map[string]neighbors.Snapshot
	Resolver     *neighbors.Resolver
}

// Match places a remote device on a gateway port
type Match struct {
	PortID     string
	Remote     models.Device
	RemotePort string
	Source     string
}

// Resolver is one connectivity inference tier
type Resolver struct {
	Name string
	// Overrides lets the tier replace earlier placements of the same remote device
	Overrides bool
	// OnlyIfFirstEmpty runs the tier only when the first tier matched nothing
	OnlyIfFirstEmpty bool
	Resolve          func(env Env) []Match
}

// Resolvers are the inference tiers in priority order
var Resolvers = []Resolver{
	{Name: SourceLLDP, Resolve: resolveLLDP},
	{Name: SourceGAPRule, Overrides: true, Resolve: resolveGAP},
	{Name: SourceModelTable, OnlyIfFirstEmpty: true, Resolve: resolveModelTable},
}

// resolveLLDP uses discovery snapshots of switches and access points that report
// the gateway as a neighbor
func resolveLLDP(env Env) []Match {
	if env.Resolver == nil {
		return nil
	}
	var out []Match
	for _, group := range [][]models.Device{env.Switches, env.AccessPoints} {
		for _, dev := range group {
			snap, ok := env.Snapshots[dev.Serial]
			if !ok {
				continue
			}
			for _, n := range snap.Neighbors {
				d, ok := env.Resolver.Resolve(n)
				if !ok || d.Serial != env.Gateway.Serial || n.PortID == "" {
					continue
				}
				out = append(out, Match{
					PortID:     NormalizeID(n.PortID),
					Remote:     dev,
					RemotePort: n.LocalPort,
					Source:     SourceLLDP,
				})
				break
			}
		}
	}
	return out
}

// resolveGAP covers gateway plus single access point sites: on teleworker and
// small-branch models the access point sits on a fixed port, whatever discovery says
func resolveGAP(env Env) []Match {
	if len(env.AccessPoints) != 1 || len(env.Switches) != 0 {
		return nil
	}
	port, ok := GAPPort(env.Gateway.Model)
	if !ok {
		return nil
	}
	return []Match{{PortID: port, Remote: env.AccessPoints[0], Source: SourceGAPRule}}
}

// resolveModelTable guesses the LAN uplink port of known models toward the first
// access point. It makes no guess once a switch is present.
func resolveModelTable(env Env) []Match {
	if len(env.Switches) > 0 || len(env.AccessPoints) == 0 {
		return nil
	}
	l, ok := layoutFor(env.Gateway.Model)
	if !ok || l.LANUplink == "" {
		return nil
	}
	return []Match{{PortID: l.LANUplink, Remote: env.AccessPoints[0], Source: SourceModelTable}}
}

// InferConnectivity runs the resolvers in order; the first placement of a port or a
// remote device wins unless a later tier overrides it. Matched ports are marked
// connected with their provenance. The returned map holds, per remote serial, the
// gateway port it was placed on, whether or not that port is in ports.
func InferConnectivity(ports []models.Port, env Env, resolvers []Resolver) ([]models.Port, map[string]models.Connection) {
	var placed []Match
	firstEmpty := false

	for i, r := range resolvers {
		if r.OnlyIfFirstEmpty && !firstEmpty {
			continue
		}
		matches := r.Resolve(env)
		if i == 0 {
			firstEmpty = len(matches) == 0
		}

		for _, m := range matches {
			if m.PortID == "" {
				continue
			}
			if r.Overrides {
				kept := placed[:0]
				for _, p := range placed {
					if p.Remote.Serial != m.Remote.Serial && p.PortID != m.PortID {
						kept = append(kept, p)
					}
				}
				placed = append(kept, m)
				continue
			}
			if conflicts(placed, m) {
				continue
			}
			placed = append(placed, m)
		}
	}

	remotes := make(map[string]models.Connection, len(placed))
	for _, m := range placed {
		conn := connection(m)
		for i := range ports {
			if NormalizeID(ports[i].PortID) != m.PortID {
				continue
			}
			ports[i].Status = models.StatusConnected
			ports[i].HasCarrier = true
			c := conn
			ports[i].ConnectedTo = &c
		}
		remotes[m.Remote.Serial] = models.Connection{
			DeviceName:   env.Gateway.DisplayName(),
			DeviceSerial: env.Gateway.Serial,
			Port:         m.PortID,
			Source:       m.Source,
			Tooltip:      conn.Tooltip,
		}
	}
	return ports, remotes
}

func conflicts(placed []Match, m Match) bool {
	for _, p := range placed {
		if p.PortID == m.PortID || p.Remote.Serial == m.Remote.Serial {
			return true
		}
	}
	return false
}

func connection(m Match) models.Connection {
	name := m.Remote.DisplayName()
	tip := name
	if m.RemotePort != "" {
		tip = fmt.Sprintf("%s port %s", name, m.RemotePort)
	}
	switch m.Source {
	case SourceLLDP:
		tip += " (lldp)"
	case SourceGAPRule:
		tip += " (gap-rule: single access point site)"
	case SourceModelTable:
		tip += " (model-table: best effort, unconfirmed)"
	}
	return models.Connection{
		DeviceName:   name,
		DeviceSerial: m.Remote.Serial,
		Port:         m.RemotePort,
		Source:       m.Source,
		Tooltip:      tip,
	}
}

// SwitchNeighbors fills connectedTo on switch ports from the port statuses' own
// discovery fields and the switch's discovery snapshot
func SwitchNeighbors(ports []models.Port, statuses interface{}, snap *neighbors.Snapshot, resolver *neighbors.Resolver) []models.Port {
	found := make(map[string]neighbors.Neighbor)

	if snap != nil {
		for _, n := range snap.Neighbors {
			id := NormalizeID(n.LocalPort)
			if _, ok := found[id]; !ok {
				found[id] = n
			}
		}
	}
	for id, n := range statusNeighbors(statuses) {
		// the live port status is fresher than a cached snapshot
		found[id] = n
	}

	ids := make([]string, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		n := found[id]
		for i := range ports {
			if NormalizeID(ports[i].PortID) != id {
				continue
			}
			remote := models.Device{Name: n.SystemName, MAC: n.ChassisID}
			if resolver != nil {
				if d, ok := resolver.Resolve(n); ok {
					remote = d
				}
			}
			if remote.DisplayName() == "" {
				remote.Name = n.DeviceID
			}
			c := connection(Match{PortID: id, Remote: remote, RemotePort: n.PortID, Source: SourceLLDP})
			ports[i].ConnectedTo = &c
		}
	}
	return ports
}

// statusNeighbors reads lldp/cdp objects embedded in switch port statuses
func statusNeighbors(statuses interface{}) map[string]neighbors.Neighbor {
	out := make(map[string]neighbors.Neighbor)
	for _, r := range payload.Records("portStatus", statuses, portListKeys...) {
		id := portID(r)
		if id == "" {
			continue
		}
		snap := neighbors.Parse("", map[string]interface{}{
			"ports": map[string]interface{}{id: r},
		}, time.Time{})
		if len(snap.Neighbors) > 0 {
			out[id] = snap.Neighbors[0]
		}
	}
	return out
}
