// internal/topology/topology_test.go
package topology

import (
	"testing"

	"netsummary/internal/models"
	"netsummary/internal/neighbors"
)

func inventoryFixture() []models.Device {
	return []models.Device{
		{Serial: "Q2MX-0001", MAC: "aa:bb:cc:00:00:01", Name: "edge", Model: "MX68", Class: models.ClassGateway, Status: models.DeviceOnline},
		{Serial: "Q2MS-0001", MAC: "aa:bb:cc:00:00:10", Name: "core", Model: "MS120-8", Class: models.ClassSwitch, Status: models.DeviceOnline},
		{Serial: "Q2MR-0001", MAC: "aa:bb:cc:00:00:02", Name: "lobby-ap", Model: "MR36", Class: models.ClassAccessPoint, Status: models.DeviceOffline},
	}
}

func statusFixture() map[string]string {
	return map[string]string{
		"Q2MX-0001": models.DeviceOnline,
		"Q2MS-0001": models.DeviceOnline,
		"Q2MR-0001": models.DeviceOffline,
	}
}

func node(serial, derived string) map[string]interface{} {
	return map[string]interface{}{
		"derivedId": derived,
		"device":    map[string]interface{}{"serial": serial},
	}
}

func link(a, b string) map[string]interface{} {
	return map[string]interface{}{
		"ends": []interface{}{
			map[string]interface{}{"node": map[string]interface{}{"derivedId": a}},
			map[string]interface{}{"node": map[string]interface{}{"derivedId": b}},
		},
	}
}

// assertNoDuplicatePairs checks that no two nodes share more than one edge
func assertNoDuplicatePairs(t *testing.T, top models.Topology) {
	t.Helper()
	seen := map[string]bool{}
	for _, l := range top.Links {
		key := pairKey(l.Source, l.Target)
		if seen[key] {
			t.Errorf("Duplicate edge between %s and %s", l.Source, l.Target)
		}
		seen[key] = true
	}
}

func hasNode(top models.Topology, id string) bool {
	for _, n := range top.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// TestPrimaryTopology tests that a rich link-layer payload is accepted as is
func TestPrimaryTopology(t *testing.T) {
	ll := map[string]interface{}{
		"nodes": []interface{}{node("Q2MX-0001", "1"), node("Q2MS-0001", "2"), node("Q2MR-0001", "3")},
		"links": []interface{}{link("1", "2"), link("2", "3")},
	}

	res := Build(Input{LinkLayer: ll, Statuses: statusFixture(), Devices: inventoryFixture()})

	if res.Source != models.TopologyPrimary {
		t.Fatalf("Expected primary source, got %s", res.Source)
	}
	if len(res.Topology.Nodes) != 3 || len(res.Topology.Links) != 2 {
		t.Errorf("Expected 3 nodes and 2 links, got %d/%d", len(res.Topology.Nodes), len(res.Topology.Links))
	}

	for _, l := range res.Topology.Links {
		switch {
		case l.Source == "Q2MX-0001" && l.Target == "Q2MS-0001":
			if l.Status != LinkActive {
				t.Errorf("Expected online pair to be active, got %s", l.Status)
			}
		case l.Source == "Q2MS-0001" && l.Target == "Q2MR-0001":
			if l.Status != LinkDown {
				t.Errorf("Expected link to offline AP to be down, got %s", l.Status)
			}
		default:
			t.Errorf("Unexpected link %+v", l)
		}
	}
}

// TestFallbackTopology tests reconstruction from neighbor discovery
func TestFallbackTopology(t *testing.T) {
	snaps := map[string]neighbors.Snapshot{
		"Q2MS-0001": {
			Serial: "Q2MS-0001",
			Neighbors: []neighbors.Neighbor{
				{LocalPort: "1", Protocol: "lldp", SystemName: "Meraki MX68 - edge", PortID: "Port 3"},
				{LocalPort: "5", Protocol: "cdp", DeviceID: "aabbcc000002"},
				{LocalPort: "8", Protocol: "lldp", SystemName: "printer"},
			},
		},
	}

	// a single-node primary payload is not enough
	ll := map[string]interface{}{"nodes": []interface{}{node("Q2MX-0001", "1")}, "links": []interface{}{}}

	res := Build(Input{LinkLayer: ll, Statuses: statusFixture(), Devices: inventoryFixture(), Snapshots: snaps})

	if res.Source != models.TopologyFallback {
		t.Fatalf("Expected fallback source, got %s", res.Source)
	}
	if len(res.Topology.Links) != 2 {
		t.Fatalf("Expected 2 links, got %d: %+v", len(res.Topology.Links), res.Topology.Links)
	}
	if hasNode(res.Topology, "printer") {
		t.Errorf("Expected unidentifiable neighbor to be dropped")
	}

	l := res.Topology.Links[0]
	if l.Origin != models.OriginNeighbor || l.SourcePort != "1" || l.TargetPort != "3" {
		t.Errorf("Unexpected neighbor link %+v", l)
	}
	assertNoDuplicatePairs(t, res.Topology)
}

// TestEmptyTopology tests that no data yields an empty graph
func TestEmptyTopology(t *testing.T) {
	res := Build(Input{Devices: inventoryFixture(), Statuses: statusFixture()})

	if res.Source != models.TopologyEmpty {
		t.Errorf("Expected empty source, got %s", res.Source)
	}
	if res.Topology.Nodes == nil || res.Topology.Links == nil {
		t.Errorf("Expected non-nil empty slices")
	}
	if len(res.Topology.Nodes) != 0 || len(res.Topology.Links) != 0 {
		t.Errorf("Expected empty graph, got %+v", res.Topology)
	}

	res = Build(Input{LinkLayer: "garbage", Snapshots: map[string]neighbors.Snapshot{"X": {Serial: "X"}}})
	if res.Source != models.TopologyEmpty {
		t.Errorf("Expected empty source for junk input, got %s", res.Source)
	}
}

// TestAnchorGateway tests synthetic anchor insertion for an isolated gateway
func TestAnchorGateway(t *testing.T) {
	snaps := map[string]neighbors.Snapshot{
		"Q2MS-0001": {
			Serial:    "Q2MS-0001",
			Neighbors: []neighbors.Neighbor{{LocalPort: "5", DeviceID: "aabbcc000002"}},
		},
	}

	res := Build(Input{Statuses: statusFixture(), Devices: inventoryFixture(), Snapshots: snaps})

	if !hasNode(res.Topology, "Q2MX-0001") {
		t.Fatalf("Expected gateway node to be inserted")
	}

	var anchor *models.TopologyLink
	for i, l := range res.Topology.Links {
		if l.Origin == models.OriginAnchor {
			anchor = &res.Topology.Links[i]
		}
	}
	if anchor == nil {
		t.Fatalf("Expected an anchor link, got %+v", res.Topology.Links)
	}
	if anchor.Source != "Q2MX-0001" || anchor.Target != "Q2MS-0001" {
		t.Errorf("Expected gateway anchored to the switch, got %+v", anchor)
	}

	for _, n := range res.Topology.Nodes {
		if n.ID == "Q2MX-0001" && !n.Synthetic {
			t.Errorf("Expected inserted gateway to be marked synthetic")
		}
	}
}

// TestAnchorWithoutSwitch tests anchoring to the first node when no switch exists
func TestAnchorWithoutSwitch(t *testing.T) {
	devices := []models.Device{
		{Serial: "Q2Z3-0001", Model: "Z3", Class: models.ClassTeleworkerGateway},
		{Serial: "Q2MR-0001", MAC: "aa:bb:cc:00:00:02", Model: "MR36", Class: models.ClassAccessPoint},
	}
	snaps := map[string]neighbors.Snapshot{
		"Q2MR-0001": {Serial: "Q2MR-0001", Neighbors: []neighbors.Neighbor{{ChassisID: "de:ad:be:ef:00:01"}}},
	}

	res := Build(Input{Devices: devices, Snapshots: snaps, Statuses: map[string]string{}})

	found := false
	for _, l := range res.Topology.Links {
		if l.Origin == models.OriginAnchor && l.Source == "Q2Z3-0001" && l.Target == "Q2MR-0001" {
			found = true
		}
		if l.Status != LinkUnknown {
			t.Errorf("Expected unknown status without status data, got %s", l.Status)
		}
	}
	if !found {
		t.Errorf("Expected teleworker gateway anchored to first node, got %+v", res.Topology.Links)
	}
}

// TestDeduplicateGatewayEdges tests pair deduplication and single-edge gateways
func TestDeduplicateGatewayEdges(t *testing.T) {
	ll := map[string]interface{}{
		"nodes": []interface{}{node("Q2MX-0001", "1"), node("Q2MS-0001", "2"), node("Q2MR-0001", "3")},
		"links": []interface{}{
			link("1", "3"), // gateway to AP reported first
			link("1", "2"),
			link("2", "1"), // reverse duplicate
			link("2", "3"),
			link("3", "2"),
		},
	}

	res := Build(Input{LinkLayer: ll, Statuses: statusFixture(), Devices: inventoryFixture()})
	assertNoDuplicatePairs(t, res.Topology)

	gatewayEdges := 0
	for _, l := range res.Topology.Links {
		if l.Source == "Q2MX-0001" || l.Target == "Q2MX-0001" {
			gatewayEdges++
			other := l.Target
			if other == "Q2MX-0001" {
				other = l.Source
			}
			if other != "Q2MS-0001" {
				t.Errorf("Expected gateway to keep its switch edge, kept edge to %s", other)
			}
		}
	}
	if gatewayEdges != 1 {
		t.Errorf("Expected exactly one gateway edge, got %d", gatewayEdges)
	}
	if len(res.Topology.Links) != 2 {
		t.Errorf("Expected 2 links after pruning, got %d", len(res.Topology.Links))
	}
}

// TestTwoGatewaysKeepNeighborEdges tests that pruning never orphans a second gateway
func TestTwoGatewaysKeepNeighborEdges(t *testing.T) {
	devices := []models.Device{
		{Serial: "Q2MX-0001", MAC: "aa:bb:cc:00:00:01", Model: "MX68", Class: models.ClassGateway},
		{Serial: "Q2MX-0002", MAC: "aa:bb:cc:00:00:03", Model: "MX68", Class: models.ClassGateway},
		{Serial: "Q2MS-0001", MAC: "aa:bb:cc:00:00:10", Model: "MS120-8", Class: models.ClassSwitch},
	}
	snaps := map[string]neighbors.Snapshot{
		"Q2MX-0001": {
			Serial: "Q2MX-0001",
			Neighbors: []neighbors.Neighbor{
				{LocalPort: "3", DeviceID: "aabbcc000010"},
				{LocalPort: "4", DeviceID: "aabbcc000003"},
			},
		},
	}

	res := Build(Input{Devices: devices, Snapshots: snaps, Statuses: map[string]string{}})
	if res.Source != models.TopologyFallback {
		t.Fatalf("Expected fallback topology, got %s", res.Source)
	}
	assertNoDuplicatePairs(t, res.Topology)

	degree := map[string]int{}
	for _, l := range res.Topology.Links {
		degree[l.Source]++
		degree[l.Target]++
	}
	for _, gw := range []string{"Q2MX-0001", "Q2MX-0002"} {
		if !hasNode(res.Topology, gw) {
			t.Errorf("Expected gateway %s in the graph", gw)
		}
		if degree[gw] == 0 {
			t.Errorf("Expected gateway %s to keep an edge, got %+v", gw, res.Topology.Links)
		}
	}
	if degree["Q2MS-0001"] != 1 {
		t.Errorf("Expected switch edge to survive, got %+v", res.Topology.Links)
	}

	for _, l := range res.Topology.Links {
		if l.Origin == models.OriginAnchor {
			t.Errorf("Expected neighbor edges only, got anchor %+v", l)
		}
	}
}

// TestLinkStatus tests endpoint state combination
func TestLinkStatus(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{models.DeviceOnline, models.DeviceOnline, LinkActive},
		{models.DeviceOnline, models.DeviceOffline, LinkDown},
		{models.DeviceWarning, models.DeviceOnline, LinkDegraded},
		{models.DeviceOnline, "", LinkUnknown},
	}
	for _, tt := range tests {
		if got := linkStatus(tt.a, tt.b); got != tt.want {
			t.Errorf("linkStatus(%q, %q) = %s, expected %s", tt.a, tt.b, got, tt.want)
		}
	}
}
