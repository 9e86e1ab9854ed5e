package summary

import (
	"sort"
	"time"

	"netsummary/internal/inventory"
	"netsummary/internal/models"
	"netsummary/internal/neighbors"
	"netsummary/internal/payload"
	"netsummary/internal/ports"
	"netsummary/internal/timeseries"
	"netsummary/internal/topology"
	"netsummary/internal/wireless"
)

// maxSecurityEvents bounds the events carried in an appliance block
const maxSecurityEvents = 50

// assemble builds the summary from the inventory and the optional payloads
func (s *Service) assemble(network models.NetworkInfo, devices []models.Device, raw *rawData, opts models.QueryOptions) *models.Summary {
	now := s.now().UTC()
	start := now.Add(-opts.Window())

	switches := inventory.OfClass(devices, models.ClassSwitch)
	aps := inventory.OfClass(devices, models.ClassAccessPoint)
	gateways := inventory.Gateways(devices)
	resolver := neighbors.NewResolver(devices)

	snapshots := raw.snapshots
	if snapshots == nil {
		snapshots = map[string]neighbors.Snapshot{}
	}

	topo := topology.Build(topology.Input{
		LinkLayer: raw.linkLayer,
		Statuses:  inventory.StatusMap(devices),
		Devices:   devices,
		Snapshots: snapshots,
	})

	// where each access point is cabled, from switch discovery and gateway inference
	connected := make(map[string]models.Connection)

	switchBlocks := make([]models.SwitchDetail, 0, len(switches))
	for _, sw := range switches {
		sp, ok := raw.switchPorts[sw.Serial]
		if !ok {
			switchBlocks = append(switchBlocks, models.SwitchDetail{Device: sw, Ports: []models.Port{}})
			continue
		}
		var snap *neighbors.Snapshot
		if sn, ok := snapshots[sw.Serial]; ok {
			snap = &sn
		}
		swPorts := ports.Merge(sw.Serial, sw.Model, sp.Config, sp.Status)
		swPorts = ports.SwitchNeighbors(swPorts, sp.Status, snap, resolver)

		block := models.SwitchDetail{Device: sw, Ports: swPorts, PortCount: len(swPorts)}
		for _, p := range swPorts {
			if p.Status == models.StatusConnected {
				block.ActivePorts++
			}
			if p.ConnectedTo != nil && p.ConnectedTo.DeviceSerial != "" {
				if d, ok := resolver.Device(p.ConnectedTo.DeviceSerial); ok && d.Class == models.ClassAccessPoint {
					connected[d.Serial] = models.Connection{
						DeviceName:   sw.DisplayName(),
						DeviceSerial: sw.Serial,
						Port:         p.PortID,
						Source:       p.ConnectedTo.Source,
						Tooltip:      p.ConnectedTo.Tooltip,
					}
				}
			}
		}
		switchBlocks = append(switchBlocks, block)
	}

	lossLeaves, _ := timeseries.Flatten("lossAndLatency", raw.lossLatency)
	usageLeaves, _ := timeseries.Flatten("usageHistory", raw.usage)

	applianceBlocks := make([]models.ApplianceDetail, 0, len(gateways))
	for i, gw := range gateways {
		gwPorts := ports.Merge(gw.Serial, gw.Model, raw.appliancePorts, raw.portStatuses[gw.Serial])
		uplinks := ports.ParseUplinks(gw.Serial, raw.uplinks)
		gwPorts, uplinks = ports.AttachUplinks(gwPorts, uplinks, gw.Model)

		gwPorts, remotes := ports.InferConnectivity(gwPorts, ports.Env{
			Gateway:      gw,
			Switches:     switches,
			AccessPoints: aps,
			Snapshots:    snapshots,
			Resolver:     resolver,
		}, ports.Resolvers)
		for serial, conn := range remotes {
			if _, ok := connected[serial]; !ok || conn.Source == ports.SourceGAPRule {
				connected[serial] = conn
			}
		}

		// network-scoped usage has no serial and belongs to the primary gateway
		series := timeseries.Build(timeseries.Input{
			Loss:          leavesOf(lossLeaves, gw.Serial, false),
			Usage:         leavesOf(usageLeaves, gw.Serial, i == 0),
			Live:          uplinks,
			Start:         start,
			Now:           now,
			DefaultSerial: gw.Serial,
		})

		block := models.ApplianceDetail{
			Device:       gw,
			Uplinks:      uplinks,
			Ports:        gwPorts,
			UplinkSeries: series,
			Performance:  raw.performance[gw.Serial],
		}
		if i == 0 && raw.security != nil {
			block.Security = securitySummary(raw.security)
		}
		if block.Uplinks == nil {
			block.Uplinks = []models.Uplink{}
		}
		applianceBlocks = append(applianceBlocks, block)
	}

	block := wireless.Compose(wireless.Input{
		AccessPoints: aps,
		Aggregates:   raw.signalByDevice,
		History:      raw.signalHistory,
		Clients:      raw.signalByClient,
		Network:      raw.signalNetwork,
		Failures:     raw.failures,
		Connected:    connected,
		Start:        start,
		End:          now,
	})

	counts := inventory.Count(devices)
	warnings := raw.warnings
	if warnings == nil {
		warnings = []string{}
	}

	if devices == nil {
		devices = []models.Device{}
	}

	return &models.Summary{
		Network:        network,
		Devices:        devices,
		Topology:       topo.Topology,
		TopologySource: topo.Source,
		Switches:       switchBlocks,
		Appliances:     applianceBlocks,
		Wireless:       block,
		Meta: models.SummaryMeta{
			Counts:     counts,
			Flavor:     inventory.Flavor(counts),
			Timespan:   opts.UplinkTimespan,
			Resolution: opts.UplinkResolution,
			Warnings:   warnings,
		},
	}
}

// leavesOf keeps the leaves reported for serial, plus those without a serial when
// unowned is set
func leavesOf(leaves []timeseries.Leaf, serial string, unowned bool) []timeseries.Leaf {
	var out []timeseries.Leaf
	for _, l := range leaves {
		if l.Serial == serial || (unowned && l.Serial == "") {
			out = append(out, l)
		}
	}
	return out
}

// securitySummary reduces security events to a count and the latest events
func securitySummary(v interface{}) map[string]interface{} {
	records := payload.Records("securityEvents", v, "events", "items", "data")
	sort.SliceStable(records, func(i, j int) bool {
		ti, _ := payload.Time(records[i], "ts", "occurredAt", "timestamp")
		tj, _ := payload.Time(records[j], "ts", "occurredAt", "timestamp")
		return ti.After(tj)
	})

	latest := make([]map[string]interface{}, 0, maxSecurityEvents)
	for i, r := range records {
		if i >= maxSecurityEvents {
			break
		}
		latest = append(latest, r)
	}

	var last *time.Time
	if len(records) > 0 {
		if ts, ok := payload.Time(records[0], "ts", "occurredAt", "timestamp"); ok {
			last = &ts
		}
	}

	return map[string]interface{}{
		"eventCount":  len(records),
		"events":      latest,
		"lastEventAt": last,
	}
}
