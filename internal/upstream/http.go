package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"netsummary/internal/metrics"
)

// maxErrorBody bounds how much of an error response is kept
const maxErrorBody = 2048

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// HTTPClient implements Client against the vendor REST API. Calls are paced by a
// token bucket and guarded by a circuit breaker.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[interface{}]
	name    string
	logger  zerolog.Logger
}

// NewHTTPClient creates a new HTTP client for the vendor API
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 8
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	cbName := "vendor-api"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	c := &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		name:    cbName,
		logger:  log.With().Str("component", "upstream").Logger(),
	}

	c.cb = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= 0.6 {
				c.logger.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", ratio*100).Msg("Opening circuit")
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info().Str("from", stateToString(from)).Str("to", stateToString(to)).Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
		// client errors, rate limits included, say nothing about upstream health
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode < 500
			}
			return err == nil
		},
	})

	return c
}

// get performs a paced, breaker-guarded GET and decodes the JSON body
func (c *HTTPClient) get(ctx context.Context, resource, path string, query url.Values) (interface{}, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limiter: %w", resource, err)
	}

	start := time.Now()
	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.do(ctx, resource, path, query)
	})
	metrics.UpstreamDuration.WithLabelValues(resource).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.UpstreamRequests.WithLabelValues(resource, "success").Inc()
		return result, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.UpstreamRequests.WithLabelValues(resource, "rejected").Inc()
		c.logger.Warn().Err(err).Str("resource", resource).Msg("Request rejected by circuit breaker")
		return nil, fmt.Errorf("%s: %w", resource, err)
	case IsRateLimited(err):
		metrics.UpstreamRequests.WithLabelValues(resource, "rate_limited").Inc()
		return nil, err
	default:
		metrics.UpstreamRequests.WithLabelValues(resource, "error").Inc()
		return nil, err
	}
}

func (c *HTTPClient) do(ctx context.Context, resource, path string, query url.Values) (interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", resource, err)
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			Resource:   resource,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	var out interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: decode response: %w", resource, err)
	}
	return out, nil
}

// parseRetryAfter accepts delta-seconds and HTTP-date forms
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func windowQuery(w Window) url.Values {
	q := url.Values{}
	if w.Timespan > 0 {
		q.Set("timespan", strconv.Itoa(w.Timespan))
	}
	if w.Resolution > 0 {
		q.Set("resolution", strconv.Itoa(w.Resolution))
	}
	return q
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// GetNetwork fetches the network record, including its organization
func (c *HTTPClient) GetNetwork(ctx context.Context, networkID string) (interface{}, error) {
	return c.get(ctx, ResNetwork, "/networks/"+url.PathEscape(networkID), nil)
}

// GetNetworkDevices lists the devices claimed into a network
func (c *HTTPClient) GetNetworkDevices(ctx context.Context, networkID string) (interface{}, error) {
	return c.get(ctx, ResDevices, "/networks/"+url.PathEscape(networkID)+"/devices", nil)
}

// GetDeviceStatuses lists reachability for the devices of one network, queried at organization scope
func (c *HTTPClient) GetDeviceStatuses(ctx context.Context, orgID, networkID string) (interface{}, error) {
	q := url.Values{}
	q.Add("networkIds[]", networkID)
	return c.get(ctx, ResDeviceStatuses, "/organizations/"+url.PathEscape(orgID)+"/devices/statuses", q)
}

// GetLinkLayerTopology fetches the vendor's link-layer topology graph
func (c *HTTPClient) GetLinkLayerTopology(ctx context.Context, networkID string) (interface{}, error) {
	return c.get(ctx, ResLinkLayer, "/networks/"+url.PathEscape(networkID)+"/topology/linkLayer", nil)
}

// GetDeviceLLDPCDP fetches the LLDP and CDP neighbors seen by a device
func (c *HTTPClient) GetDeviceLLDPCDP(ctx context.Context, serial string) (interface{}, error) {
	return c.get(ctx, ResLLDPCDP, "/devices/"+url.PathEscape(serial)+"/lldpCdp", nil)
}

// GetSwitchPorts lists the port configuration of a switch
func (c *HTTPClient) GetSwitchPorts(ctx context.Context, serial string) (interface{}, error) {
	return c.get(ctx, ResSwitchPorts, "/devices/"+url.PathEscape(serial)+"/switch/ports", nil)
}

// GetSwitchPortStatuses lists live port state of a switch
func (c *HTTPClient) GetSwitchPortStatuses(ctx context.Context, serial string) (interface{}, error) {
	return c.get(ctx, ResSwitchPortStatuses, "/devices/"+url.PathEscape(serial)+"/switch/ports/statuses", nil)
}

// GetAppliancePorts lists the LAN port configuration of the network's appliance
func (c *HTTPClient) GetAppliancePorts(ctx context.Context, networkID string) (interface{}, error) {
	return c.get(ctx, ResAppliancePorts, "/networks/"+url.PathEscape(networkID)+"/appliance/ports", nil)
}

// GetAppliancePortStatuses lists live port state of an appliance
func (c *HTTPClient) GetAppliancePortStatuses(ctx context.Context, serial string) (interface{}, error) {
	return c.get(ctx, ResAppliancePortStatus, "/devices/"+url.PathEscape(serial)+"/appliance/ports/statuses", nil)
}

// GetUplinkStatuses lists WAN uplink state for the appliances of one network
func (c *HTTPClient) GetUplinkStatuses(ctx context.Context, orgID, networkID string) (interface{}, error) {
	q := url.Values{}
	q.Add("networkIds[]", networkID)
	return c.get(ctx, ResUplinkStatuses, "/organizations/"+url.PathEscape(orgID)+"/appliance/uplink/statuses", q)
}

// GetUplinksLossAndLatency fetches loss and latency history for every uplink in the organization
func (c *HTTPClient) GetUplinksLossAndLatency(ctx context.Context, orgID string, w Window) (interface{}, error) {
	q := url.Values{}
	if w.Timespan > 0 {
		q.Set("timespan", strconv.Itoa(w.Timespan))
	}
	return c.get(ctx, ResLossAndLatency, "/organizations/"+url.PathEscape(orgID)+"/devices/uplinksLossAndLatency", q)
}

// GetUplinksUsageHistory fetches sent and received history per uplink
func (c *HTTPClient) GetUplinksUsageHistory(ctx context.Context, networkID string, w Window) (interface{}, error) {
	return c.get(ctx, ResUsageHistory, "/networks/"+url.PathEscape(networkID)+"/appliance/uplinks/usageHistory", windowQuery(w))
}

// GetSecurityEvents lists intrusion and malware events seen by the appliance
func (c *HTTPClient) GetSecurityEvents(ctx context.Context, networkID string, w Window) (interface{}, error) {
	q := url.Values{}
	if w.Timespan > 0 {
		q.Set("timespan", strconv.Itoa(w.Timespan))
	}
	return c.get(ctx, ResSecurityEvents, "/networks/"+url.PathEscape(networkID)+"/appliance/security/events", q)
}

// GetAppliancePerformance fetches the appliance performance score
func (c *HTTPClient) GetAppliancePerformance(ctx context.Context, serial string) (interface{}, error) {
	return c.get(ctx, ResAppliancePerformance, "/devices/"+url.PathEscape(serial)+"/appliance/performance", nil)
}

// GetSignalQualityByDevice fetches aggregate signal quality per access point
func (c *HTTPClient) GetSignalQualityByDevice(ctx context.Context, networkID string, w Window) (interface{}, error) {
	return c.get(ctx, ResSignalByDevice, "/networks/"+url.PathEscape(networkID)+"/wireless/devices/signalQuality", windowQuery(w))
}

// GetSignalQualityHistory fetches signal quality history for one access point
func (c *HTTPClient) GetSignalQualityHistory(ctx context.Context, networkID, serial string, w Window) (interface{}, error) {
	q := windowQuery(w)
	q.Set("deviceSerial", serial)
	return c.get(ctx, ResSignalHistory, "/networks/"+url.PathEscape(networkID)+"/wireless/signalQualityHistory", q)
}

// GetSignalQualityByClient fetches aggregate signal quality per wireless client
func (c *HTTPClient) GetSignalQualityByClient(ctx context.Context, networkID string, w Window) (interface{}, error) {
	return c.get(ctx, ResSignalByClient, "/networks/"+url.PathEscape(networkID)+"/wireless/clients/signalQuality", windowQuery(w))
}

// GetNetworkSignalQuality fetches network-wide signal quality
func (c *HTTPClient) GetNetworkSignalQuality(ctx context.Context, networkID string, w Window) (interface{}, error) {
	return c.get(ctx, ResSignalNetwork, "/networks/"+url.PathEscape(networkID)+"/wireless/signalQuality", windowQuery(w))
}

// GetFailedConnections lists failed wireless client connections
func (c *HTTPClient) GetFailedConnections(ctx context.Context, networkID string, w Window) (interface{}, error) {
	q := url.Values{}
	if w.Timespan > 0 {
		q.Set("timespan", strconv.Itoa(w.Timespan))
	}
	return c.get(ctx, ResFailedConnections, "/networks/"+url.PathEscape(networkID)+"/wireless/failedConnections", q)
}
