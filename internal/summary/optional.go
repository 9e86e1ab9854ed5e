package summary

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"netsummary/internal/cache"
	"netsummary/internal/fetch"
	"netsummary/internal/inventory"
	"netsummary/internal/models"
	"netsummary/internal/neighbors"
	"netsummary/internal/upstream"
)

// Optional task names
const (
	taskLinkLayer        = "linkLayer"
	taskSwitchPorts      = "switchPorts"
	taskNeighbors        = "neighborDiscovery"
	taskAppliancePorts   = "appliancePorts"
	taskPortStatuses     = "appliancePortStatuses"
	taskUplinks          = "uplinkStatuses"
	taskLossLatency      = "lossAndLatency"
	taskUsage            = "usageHistory"
	taskSecurity         = "securityEvents"
	taskPerformance      = "appliancePerformance"
	taskSignalByDevice   = "signalByDevice"
	taskSignalHistory    = "signalHistory"
	taskSignalByClient   = "signalByClient"
	taskSignalNetwork    = "signalNetwork"
	taskFailedConnection = "failedConnections"
)

// switchPorts is the configuration and live status of one switch's ports
type switchPorts struct {
	Config interface{}
	Status interface{}
}

// batched is the outcome of a per-device batch
type batched[T any] struct {
	ok     map[string]T
	failed map[string]error
}

// rawData holds every optional payload of one request. Absent entries mean the
// fetch was not relevant or failed.
type rawData struct {
	linkLayer      interface{}
	switchPorts    map[string]switchPorts
	snapshots      map[string]neighbors.Snapshot
	appliancePorts interface{}
	portStatuses   map[string]interface{}
	uplinks        interface{}
	lossLatency    interface{}
	usage          interface{}
	security       interface{}
	performance    map[string]interface{}
	signalByDevice interface{}
	signalHistory  map[string]interface{}
	signalByClient interface{}
	signalNetwork  interface{}
	failures       interface{}

	warnings []string
}

func (r *rawData) warn(format string, args ...interface{}) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

func neighborKey(networkID, serial string) string {
	return networkID + ":" + serial
}

// optional runs the fetches relevant to the device mix and settles them all
func (s *Service) optional(ctx context.Context, network models.NetworkInfo, devices []models.Device, opts models.QueryOptions) *rawData {
	switches := inventory.OfClass(devices, models.ClassSwitch)
	aps := inventory.OfClass(devices, models.ClassAccessPoint)
	gateways := inventory.Gateways(devices)
	window := upstream.Window{Timespan: opts.UplinkTimespan, Resolution: opts.UplinkResolution}
	netID, orgID := network.ID, network.OrganizationID

	call := func(label string, fn fetch.Call) fetch.Task[interface{}] {
		return func(ctx context.Context) (interface{}, error) {
			return s.retrier.Do(ctx, label, fn)
		}
	}

	tasks := map[string]fetch.Task[interface{}]{
		taskLinkLayer: call(upstream.ResLinkLayer, func(ctx context.Context) (interface{}, error) {
			return s.client.GetLinkLayerTopology(ctx, netID)
		}),
	}

	if len(switches) > 0 {
		tasks[taskSwitchPorts] = func(ctx context.Context) (interface{}, error) {
			ok, failed := fetch.Batch(ctx, taskSwitchPorts, inventory.Serials(switches), s.concurrency, s.fetchSwitchPorts)
			return batched[switchPorts]{ok: ok, failed: failed}, nil
		}
	}

	if len(switches)+len(aps) > 0 {
		discoverable := inventory.Serials(append(append([]models.Device{}, switches...), aps...))
		tasks[taskNeighbors] = func(ctx context.Context) (interface{}, error) {
			return s.loadNeighbors(ctx, netID, discoverable, opts.ForceRefresh), nil
		}
	}

	if len(gateways) > 0 {
		gwSerials := inventory.Serials(gateways)

		tasks[taskAppliancePorts] = func(ctx context.Context) (interface{}, error) {
			return s.cached(ctx, cache.Appliance, netID+":ports", upstream.ResAppliancePorts, func(ctx context.Context) (interface{}, error) {
				return s.client.GetAppliancePorts(ctx, netID)
			})
		}
		tasks[taskPortStatuses] = func(ctx context.Context) (interface{}, error) {
			ok, failed := fetch.Batch(ctx, taskPortStatuses, gwSerials, s.concurrency, func(ctx context.Context, serial string) (interface{}, error) {
				return s.retrier.Do(ctx, upstream.ResAppliancePortStatus, func(ctx context.Context) (interface{}, error) {
					return s.client.GetAppliancePortStatuses(ctx, serial)
				})
			})
			return batched[interface{}]{ok: ok, failed: failed}, nil
		}
		tasks[taskUplinks] = func(ctx context.Context) (interface{}, error) {
			return s.cached(ctx, cache.Appliance, netID+":uplinks", upstream.ResUplinkStatuses, func(ctx context.Context) (interface{}, error) {
				return s.client.GetUplinkStatuses(ctx, orgID, netID)
			})
		}
		tasks[taskLossLatency] = call(upstream.ResLossAndLatency, func(ctx context.Context) (interface{}, error) {
			return s.client.GetUplinksLossAndLatency(ctx, orgID, window)
		})
		tasks[taskUsage] = call(upstream.ResUsageHistory, func(ctx context.Context) (interface{}, error) {
			return s.client.GetUplinksUsageHistory(ctx, netID, window)
		})
		tasks[taskSecurity] = func(ctx context.Context) (interface{}, error) {
			// networks without a security license answer with an error; that is not
			// worth a warning
			v, _ := s.retrier.Optional(ctx, upstream.ResSecurityEvents, func(ctx context.Context) (interface{}, error) {
				return s.client.GetSecurityEvents(ctx, netID, window)
			})
			return v, nil
		}
		tasks[taskPerformance] = func(ctx context.Context) (interface{}, error) {
			ok, failed := fetch.Batch(ctx, taskPerformance, gwSerials, s.concurrency, func(ctx context.Context, serial string) (interface{}, error) {
				return s.retrier.Do(ctx, upstream.ResAppliancePerformance, func(ctx context.Context) (interface{}, error) {
					return s.client.GetAppliancePerformance(ctx, serial)
				})
			})
			return batched[interface{}]{ok: ok, failed: failed}, nil
		}
	}

	if len(aps) > 0 {
		apSerials := inventory.Serials(aps)

		tasks[taskSignalByDevice] = call(upstream.ResSignalByDevice, func(ctx context.Context) (interface{}, error) {
			return s.client.GetSignalQualityByDevice(ctx, netID, window)
		})
		tasks[taskSignalHistory] = func(ctx context.Context) (interface{}, error) {
			ok, failed := fetch.Batch(ctx, taskSignalHistory, apSerials, s.concurrency, func(ctx context.Context, serial string) (interface{}, error) {
				return s.retrier.Do(ctx, upstream.ResSignalHistory, func(ctx context.Context) (interface{}, error) {
					return s.client.GetSignalQualityHistory(ctx, netID, serial, window)
				})
			})
			return batched[interface{}]{ok: ok, failed: failed}, nil
		}
		tasks[taskSignalByClient] = call(upstream.ResSignalByClient, func(ctx context.Context) (interface{}, error) {
			return s.client.GetSignalQualityByClient(ctx, netID, window)
		})
		tasks[taskSignalNetwork] = call(upstream.ResSignalNetwork, func(ctx context.Context) (interface{}, error) {
			return s.client.GetNetworkSignalQuality(ctx, netID, window)
		})
		tasks[taskFailedConnection] = call(upstream.ResFailedConnections, func(ctx context.Context) (interface{}, error) {
			return s.client.GetFailedConnections(ctx, netID, window)
		})
	}

	results := fetch.Settle(ctx, tasks)
	return s.collect(results)
}

// collect sorts settled results into rawData, turning failures into warnings
func (s *Service) collect(results map[string]fetch.Result[interface{}]) *rawData {
	raw := &rawData{}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := results[name]
		if !r.OK() {
			raw.warn("%s unavailable: %v", name, r.Err)
			continue
		}

		switch name {
		case taskLinkLayer:
			raw.linkLayer = r.Value
		case taskSwitchPorts:
			b := r.Value.(batched[switchPorts])
			raw.switchPorts = b.ok
			warnBatch(raw, name, b.failed)
		case taskNeighbors:
			b := r.Value.(batched[neighbors.Snapshot])
			raw.snapshots = b.ok
			warnBatch(raw, name, b.failed)
		case taskAppliancePorts:
			raw.appliancePorts = r.Value
		case taskPortStatuses:
			b := r.Value.(batched[interface{}])
			raw.portStatuses = b.ok
			warnBatch(raw, name, b.failed)
		case taskUplinks:
			raw.uplinks = r.Value
		case taskLossLatency:
			raw.lossLatency = r.Value
		case taskUsage:
			raw.usage = r.Value
		case taskSecurity:
			raw.security = r.Value
		case taskPerformance:
			b := r.Value.(batched[interface{}])
			raw.performance = b.ok
			warnBatch(raw, name, b.failed)
		case taskSignalByDevice:
			raw.signalByDevice = r.Value
		case taskSignalHistory:
			b := r.Value.(batched[interface{}])
			raw.signalHistory = b.ok
			warnBatch(raw, name, b.failed)
		case taskSignalByClient:
			raw.signalByClient = r.Value
		case taskSignalNetwork:
			raw.signalNetwork = r.Value
		case taskFailedConnection:
			raw.failures = r.Value
		}
	}
	return raw
}

func warnBatch(raw *rawData, name string, failed map[string]error) {
	if len(failed) == 0 {
		return
	}
	serials := make([]string, 0, len(failed))
	for serial := range failed {
		serials = append(serials, serial)
	}
	sort.Strings(serials)
	raw.warn("%s failed for %d device(s): %s", name, len(failed), strings.Join(serials, ", "))
}

// fetchSwitchPorts fetches the port configuration and statuses of one switch
func (s *Service) fetchSwitchPorts(ctx context.Context, serial string) (switchPorts, error) {
	cfg, err := s.cached(ctx, cache.Ports, serial+":config", upstream.ResSwitchPorts, func(ctx context.Context) (interface{}, error) {
		return s.client.GetSwitchPorts(ctx, serial)
	})
	if err != nil {
		return switchPorts{}, err
	}
	status, err := s.cached(ctx, cache.Ports, serial+":status", upstream.ResSwitchPortStatuses, func(ctx context.Context) (interface{}, error) {
		return s.client.GetSwitchPortStatuses(ctx, serial)
	})
	if err != nil {
		return switchPorts{}, err
	}
	return switchPorts{Config: cfg, Status: status}, nil
}

// loadNeighbors returns the discovery snapshots of serials from the memory cache,
// then the snapshot store, then upstream in batches. forceRefresh skips both
// cache tiers. Fresh snapshots are written back to both.
func (s *Service) loadNeighbors(ctx context.Context, networkID string, serials []string, forceRefresh bool) batched[neighbors.Snapshot] {
	out := batched[neighbors.Snapshot]{ok: make(map[string]neighbors.Snapshot, len(serials))}
	missing := serials

	if !forceRefresh {
		missing = nil
		for _, serial := range serials {
			if v, ok := s.cache.Get(cache.NeighborDiscovery, neighborKey(networkID, serial)); ok {
				if snap, ok := v.(neighbors.Snapshot); ok {
					out.ok[serial] = snap
					continue
				}
			}
			missing = append(missing, serial)
		}

		if len(missing) > 0 && s.store != nil {
			stored, err := s.store.GetNeighborSnapshots(networkID, s.now().Add(-s.neighborTTL))
			if err != nil {
				s.logger.Warn().Err(err).Str("network", networkID).Msg("Failed to read stored neighbor snapshots")
			}
			still := missing[:0:0]
			for _, serial := range missing {
				if snap, ok := stored[serial]; ok {
					out.ok[serial] = snap
					s.cache.Set(cache.NeighborDiscovery, neighborKey(networkID, serial), snap)
					continue
				}
				still = append(still, serial)
			}
			missing = still
		}
	}

	if len(missing) == 0 {
		return out
	}

	fresh, failed := fetch.Batch(ctx, upstream.ResLLDPCDP, missing, s.concurrency, func(ctx context.Context, serial string) (neighbors.Snapshot, error) {
		v, err := s.retrier.Do(ctx, upstream.ResLLDPCDP, func(ctx context.Context) (interface{}, error) {
			return s.client.GetDeviceLLDPCDP(ctx, serial)
		})
		if err != nil {
			return neighbors.Snapshot{}, err
		}
		return neighbors.Parse(serial, v, s.now().UTC()), nil
	})
	out.failed = failed

	toStore := make([]neighbors.Snapshot, 0, len(fresh))
	for _, serial := range missing {
		snap, ok := fresh[serial]
		if !ok {
			continue
		}
		out.ok[serial] = snap
		s.cache.Set(cache.NeighborDiscovery, neighborKey(networkID, serial), snap)
		toStore = append(toStore, snap)
	}

	if s.store != nil && len(toStore) > 0 {
		if err := s.store.SaveNeighborSnapshots(networkID, toStore); err != nil {
			s.logger.Warn().Err(err).Str("network", networkID).Msg("Failed to store neighbor snapshots")
		}
	}
	return out
}
