// Package upstream defines the contract of the vendor network-management API and an
// HTTP implementation of it.
//
// Every method returns the decoded JSON document unchanged. Shapes vary by endpoint
// and firmware, so interpretation is left to the normalizers.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Resource names, used for errors, metrics and logs
const (
	ResNetwork              = "network"
	ResDevices              = "devices"
	ResDeviceStatuses       = "deviceStatuses"
	ResLinkLayer            = "linkLayerTopology"
	ResLLDPCDP              = "lldpCdp"
	ResSwitchPorts          = "switchPorts"
	ResSwitchPortStatuses   = "switchPortStatuses"
	ResAppliancePorts       = "appliancePorts"
	ResAppliancePortStatus  = "appliancePortStatuses"
	ResUplinkStatuses       = "uplinkStatuses"
	ResLossAndLatency       = "uplinksLossAndLatency"
	ResUsageHistory         = "uplinksUsageHistory"
	ResSecurityEvents       = "securityEvents"
	ResAppliancePerformance = "appliancePerformance"
	ResSignalByDevice       = "wirelessSignalByDevice"
	ResSignalHistory        = "wirelessSignalHistory"
	ResSignalByClient       = "wirelessSignalByClient"
	ResSignalNetwork        = "wirelessSignalNetwork"
	ResFailedConnections    = "wirelessFailedConnections"
)

// Window is the time range of a history query, in seconds
type Window struct {
	Timespan   int
	Resolution int
}

// Client is one call per upstream resource
type Client interface {
	GetNetwork(ctx context.Context, networkID string) (interface{}, error)
	GetNetworkDevices(ctx context.Context, networkID string) (interface{}, error)
	GetDeviceStatuses(ctx context.Context, orgID, networkID string) (interface{}, error)
	GetLinkLayerTopology(ctx context.Context, networkID string) (interface{}, error)
	GetDeviceLLDPCDP(ctx context.Context, serial string) (interface{}, error)

	GetSwitchPorts(ctx context.Context, serial string) (interface{}, error)
	GetSwitchPortStatuses(ctx context.Context, serial string) (interface{}, error)

	GetAppliancePorts(ctx context.Context, networkID string) (interface{}, error)
	GetAppliancePortStatuses(ctx context.Context, serial string) (interface{}, error)
	GetUplinkStatuses(ctx context.Context, orgID, networkID string) (interface{}, error)
	GetUplinksLossAndLatency(ctx context.Context, orgID string, w Window) (interface{}, error)
	GetUplinksUsageHistory(ctx context.Context, networkID string, w Window) (interface{}, error)
	GetSecurityEvents(ctx context.Context, networkID string, w Window) (interface{}, error)
	GetAppliancePerformance(ctx context.Context, serial string) (interface{}, error)

	GetSignalQualityByDevice(ctx context.Context, networkID string, w Window) (interface{}, error)
	GetSignalQualityHistory(ctx context.Context, networkID, serial string, w Window) (interface{}, error)
	GetSignalQualityByClient(ctx context.Context, networkID string, w Window) (interface{}, error)
	GetNetworkSignalQuality(ctx context.Context, networkID string, w Window) (interface{}, error)
	GetFailedConnections(ctx context.Context, networkID string, w Window) (interface{}, error)
}

// APIError is a non-2xx response from the vendor API
type APIError struct {
	Resource   string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Resource, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: status %d", e.Resource, e.StatusCode)
}

// IsRateLimited reports whether err is a 429 response
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429
}

// RetryAfter returns the server-supplied wait hint carried by err, if any
func RetryAfter(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// IsNotFound reports whether err is a 404 response
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
