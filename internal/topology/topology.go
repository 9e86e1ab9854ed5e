// Package topology builds the node/edge graph of a network from the vendor
// link-layer topology, falling back to neighbor discovery snapshots when the
// authoritative payload is too thin.
package topology

import (
	"sort"
	"strings"

	"netsummary/internal/inventory"
	"netsummary/internal/metrics"
	"netsummary/internal/models"
	"netsummary/internal/neighbors"
	"netsummary/internal/payload"
)

// Link states
const (
	LinkActive   = "active"
	LinkDegraded = "degraded"
	LinkDown     = "down"
	LinkUnknown  = "unknown"
)

// Input holds everything the builder reads
type Input struct {
	LinkLayer interface{}
	Statuses  map[string]string // device status by serial and MAC
	Devices   []models.Device
	Snapshots map[string]neighbors.Snapshot // by reporting serial
}

// Result is a built graph with the source it came from
type Result struct {
	Topology models.Topology
	Source   string // primary, fallback, empty
}

// graph accumulates nodes and links in insertion order
type graph struct {
	nodes []models.TopologyNode
	index map[string]int
	links []models.TopologyLink
}

func newGraph() *graph {
	return &graph{index: make(map[string]int)}
}

func (g *graph) addNode(n models.TopologyNode) {
	if n.ID == "" {
		return
	}
	if i, ok := g.index[n.ID]; ok {
		// later sources only fill blanks
		cur := &g.nodes[i]
		if cur.Model == "" {
			cur.Model = n.Model
		}
		if cur.MAC == "" {
			cur.MAC = n.MAC
		}
		if cur.Serial == "" {
			cur.Serial = n.Serial
		}
		if cur.Class == models.ClassOther && n.Class != "" {
			cur.Class = n.Class
		}
		return
	}
	g.index[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
}

func (g *graph) has(id string) bool {
	_, ok := g.index[id]
	return ok
}

func (g *graph) node(id string) (models.TopologyNode, bool) {
	i, ok := g.index[id]
	if !ok {
		return models.TopologyNode{}, false
	}
	return g.nodes[i], true
}

func (g *graph) addLink(l models.TopologyLink) {
	if l.Source == "" || l.Target == "" || l.Source == l.Target {
		return
	}
	g.links = append(g.links, l)
}

func (g *graph) degree(id string) int {
	n := 0
	for _, l := range g.links {
		if l.Source == id || l.Target == id {
			n++
		}
	}
	return n
}

// Build produces the network graph
func Build(in Input) Result {
	resolver := neighbors.NewResolver(in.Devices)

	g := fromLinkLayer(in.LinkLayer, resolver)
	source := models.TopologyPrimary

	if len(g.nodes) <= 1 || len(g.links) == 0 {
		g = fromSnapshots(in.Snapshots, resolver)
		source = models.TopologyFallback
		if len(g.links) == 0 {
			metrics.TopologySources.WithLabelValues(models.TopologyEmpty).Inc()
			return Result{
				Topology: models.Topology{Nodes: []models.TopologyNode{}, Links: []models.TopologyLink{}},
				Source:   models.TopologyEmpty,
			}
		}
	}

	anchorGateways(g, in.Devices)
	g.links = dedupe(g.links)
	g.links = pruneGatewayLinks(g, in.Devices)

	for i := range g.nodes {
		g.nodes[i].Status = statusOf(in.Statuses, g.nodes[i])
	}
	for i := range g.links {
		g.links[i].Status = linkStatus(in.Statuses[g.links[i].Source], in.Statuses[g.links[i].Target])
	}

	metrics.TopologySources.WithLabelValues(source).Inc()
	return Result{Topology: models.Topology{Nodes: g.nodes, Links: g.links}, Source: source}
}

// nodeFor builds a node for an inventory device
func nodeFor(d models.Device) models.TopologyNode {
	id := d.Serial
	if id == "" {
		id = d.MAC
	}
	return models.TopologyNode{
		ID:     id,
		Label:  d.DisplayName(),
		Serial: d.Serial,
		MAC:    d.MAC,
		Model:  d.Model,
		Class:  d.Class,
	}
}

// fromLinkLayer converts the vendor link-layer payload. Nodes are keyed by serial,
// else MAC, else derived id.
func fromLinkLayer(v interface{}, resolver *neighbors.Resolver) *graph {
	g := newGraph()
	root, ok := payload.Object(v)
	if !ok {
		return g
	}

	derived := make(map[string]string)
	for _, n := range payload.Records("linkLayer", root["nodes"]) {
		node := primaryNode(n, resolver)
		if node.ID == "" {
			payload.Unrecognized("linkLayer")
			continue
		}
		if d := payload.String(n, "derivedId"); d != "" {
			derived[d] = node.ID
		}
		g.addNode(node)
	}

	for _, l := range payload.Records("linkLayer", root["links"]) {
		ends := payload.Records("linkLayer", l["ends"])
		if len(ends) != 2 {
			payload.Unrecognized("linkLayer")
			continue
		}
		a, aPort := endID(ends[0], derived, resolver)
		b, bPort := endID(ends[1], derived, resolver)
		if a == "" || b == "" {
			continue
		}
		for _, id := range []string{a, b} {
			if !g.has(id) {
				g.addNode(models.TopologyNode{ID: id, Label: id, Class: models.ClassOther})
			}
		}
		g.addLink(models.TopologyLink{
			Source:     a,
			Target:     b,
			Origin:     models.OriginPrimary,
			SourcePort: aPort,
			TargetPort: bPort,
		})
	}
	return g
}

func primaryNode(n map[string]interface{}, resolver *neighbors.Resolver) models.TopologyNode {
	dev, _ := payload.Object(n["device"])
	serial := payload.String(dev, "serial")
	if serial == "" {
		serial = payload.String(n, "serial")
	}
	if d, ok := resolver.Device(serial); ok {
		return nodeFor(d)
	}

	mac := inventory.NormalizeMAC(payload.String(n, "mac"))
	if serial == "" && mac != "" {
		if d, ok := resolver.Resolve(neighbors.Neighbor{ChassisID: mac}); ok {
			return nodeFor(d)
		}
	}

	id := serial
	if id == "" {
		id = mac
	}
	if id == "" {
		id = payload.String(n, "derivedId")
	}
	model := payload.String(dev, "model")
	label := payload.String(dev, "name")
	if label == "" {
		label = id
	}
	return models.TopologyNode{
		ID:     id,
		Label:  label,
		Serial: serial,
		MAC:    mac,
		Model:  model,
		Class:  inventory.Classify(model, payload.String(dev, "productType")),
	}
}

func endID(end map[string]interface{}, derived map[string]string, resolver *neighbors.Resolver) (string, string) {
	port := ""
	if disc, ok := payload.Object(end["discovered"]); ok {
		for _, proto := range []string{neighbors.ProtocolLLDP, neighbors.ProtocolCDP} {
			if rec, ok := payload.Object(disc[proto]); ok {
				if p := payload.String(rec, "portId"); p != "" {
					port = neighbors.PortNumber(p)
					break
				}
			}
		}
	}

	if node, ok := payload.Object(end["node"]); ok {
		if id, ok := derived[payload.String(node, "derivedId")]; ok {
			return id, port
		}
	}
	if dev, ok := payload.Object(end["device"]); ok {
		serial := payload.String(dev, "serial")
		if d, ok := resolver.Device(serial); ok {
			return d.Serial, port
		}
		if serial != "" {
			return serial, port
		}
	}
	if mac := inventory.NormalizeMAC(payload.String(end, "mac")); mac != "" {
		return mac, port
	}
	return "", port
}

// fromSnapshots rebuilds a graph from neighbor discovery. Unidentifiable neighbors
// are dropped.
func fromSnapshots(snaps map[string]neighbors.Snapshot, resolver *neighbors.Resolver) *graph {
	g := newGraph()

	serials := make([]string, 0, len(snaps))
	for s := range snaps {
		serials = append(serials, s)
	}
	sort.Strings(serials)

	for _, serial := range serials {
		snap := snaps[serial]
		if len(snap.Neighbors) == 0 {
			continue
		}
		src, ok := resolver.Device(serial)
		if !ok {
			src = models.Device{Serial: serial, MAC: snap.SourceMAC, Class: models.ClassOther}
		}
		srcNode := nodeFor(src)

		for _, n := range snap.Neighbors {
			id, dev := resolver.Identify(n)
			if id == "" || id == srcNode.ID {
				continue
			}
			g.addNode(srcNode)
			if dev != nil {
				g.addNode(nodeFor(*dev))
			} else {
				label := n.SystemName
				if label == "" {
					label = id
				}
				g.addNode(models.TopologyNode{ID: id, Label: label, MAC: id, Class: models.ClassOther})
			}
			g.addLink(models.TopologyLink{
				Source:     srcNode.ID,
				Target:     id,
				Origin:     models.OriginNeighbor,
				SourcePort: n.LocalPort,
				TargetPort: neighbors.PortNumber(n.PortID),
			})
		}
	}
	return g
}

// anchorGateways inserts every gateway-like device and links isolated ones to the
// best anchor: the first inventory switch in the graph, else the first node typed
// as a switch, else the first node.
func anchorGateways(g *graph, devices []models.Device) {
	if len(g.nodes) == 0 {
		return
	}

	for _, gw := range inventory.Gateways(devices) {
		node := nodeFor(gw)
		if !g.has(node.ID) {
			node.Synthetic = true
			g.addNode(node)
		}
		if g.degree(node.ID) > 0 {
			continue
		}
		if target := anchorTarget(g, devices, node.ID); target != "" {
			g.addLink(models.TopologyLink{Source: node.ID, Target: target, Origin: models.OriginAnchor})
		}
	}
}

func anchorTarget(g *graph, devices []models.Device, exclude string) string {
	for _, d := range inventory.OfClass(devices, models.ClassSwitch) {
		if d.Serial != exclude && g.has(d.Serial) {
			return d.Serial
		}
	}
	for _, n := range g.nodes {
		if n.ID != exclude && n.Class == models.ClassSwitch {
			return n.ID
		}
	}
	for _, n := range g.nodes {
		if n.ID != exclude {
			return n.ID
		}
	}
	return ""
}

// dedupe keeps the first edge of every unordered node pair
func dedupe(links []models.TopologyLink) []models.TopologyLink {
	seen := make(map[string]bool, len(links))
	out := make([]models.TopologyLink, 0, len(links))
	for _, l := range links {
		key := pairKey(l.Source, l.Target)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	return out
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// pruneGatewayLinks leaves each gateway-like node with a single edge, preferring
// one whose far end is a discovered switch. An edge that is the only edge of
// another gateway-like node is never dropped.
func pruneGatewayLinks(g *graph, devices []models.Device) []models.TopologyLink {
	switches := make(map[string]bool)
	for _, d := range inventory.OfClass(devices, models.ClassSwitch) {
		switches[d.Serial] = true
		if d.MAC != "" {
			switches[d.MAC] = true
		}
	}

	links := g.links
	for _, n := range g.nodes {
		if !n.Class.IsGatewayLike() {
			continue
		}

		var mine []int
		for i, l := range links {
			if l.Source == n.ID || l.Target == n.ID {
				mine = append(mine, i)
			}
		}
		if len(mine) <= 1 {
			continue
		}

		keep := mine[0]
		for _, i := range mine {
			other := links[i].Target
			if other == n.ID {
				other = links[i].Source
			}
			if on, ok := g.node(other); switches[other] || (ok && on.Class == models.ClassSwitch) {
				keep = i
				break
			}
		}

		pruned := make([]models.TopologyLink, 0, len(links))
		for i, l := range links {
			if i != keep && (l.Source == n.ID || l.Target == n.ID) && !soleGatewayEdge(g, links, l, n.ID) {
				continue
			}
			pruned = append(pruned, l)
		}
		links = pruned
	}
	return links
}

// soleGatewayEdge reports whether l is the only edge left to a gateway-like node
// on its far side from id
func soleGatewayEdge(g *graph, links []models.TopologyLink, l models.TopologyLink, id string) bool {
	other := l.Target
	if other == id {
		other = l.Source
	}
	on, ok := g.node(other)
	if !ok || !on.Class.IsGatewayLike() {
		return false
	}
	for _, x := range links {
		if x != l && (x.Source == other || x.Target == other) {
			return false
		}
	}
	return true
}

func statusOf(statuses map[string]string, n models.TopologyNode) string {
	for _, key := range []string{n.Serial, n.ID, n.MAC} {
		if s, ok := statuses[key]; ok && key != "" {
			return s
		}
	}
	return models.DeviceUnknown
}

// linkStatus derives an edge state from its endpoint states
func linkStatus(a, b string) string {
	a, b = strings.ToLower(a), strings.ToLower(b)
	switch {
	case a == models.DeviceOnline && b == models.DeviceOnline:
		return LinkActive
	case a == models.DeviceOffline || b == models.DeviceOffline:
		return LinkDown
	case a == models.DeviceWarning || b == models.DeviceWarning:
		return LinkDegraded
	default:
		return LinkUnknown
	}
}
