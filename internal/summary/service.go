// Package summary orchestrates the upstream fetches of one network and assembles
// the reconciled network summary.
//
// A request resolves the network, runs the mandatory inventory and status fetches,
// then runs the optional fetches relevant to the device mix concurrently. Any
// optional fetch may fail: its part of the summary is left out and a warning is
// recorded. Only the mandatory fetches and the network lookup can fail a request.
package summary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"netsummary/internal/cache"
	"netsummary/internal/fetch"
	"netsummary/internal/inventory"
	"netsummary/internal/metrics"
	"netsummary/internal/models"
	"netsummary/internal/neighbors"
	"netsummary/internal/upstream"
)

// Run statuses
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusError     = "error"
)

// Store persists neighbor snapshots and run history
type Store interface {
	GetNeighborSnapshots(networkID string, notBefore time.Time) (map[string]neighbors.Snapshot, error)
	SaveNeighborSnapshots(networkID string, snaps []neighbors.Snapshot) error
	DeleteNeighborSnapshots(networkID string) (int, error)
	RecordRun(run *models.SummaryRun) (int64, error)
}

// RunStats describes the current or last summary request
type RunStats struct {
	RequestID   string    `json:"requestId"`
	NetworkID   string    `json:"networkId"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Status      string    `json:"status"`
	DeviceCount int       `json:"deviceCount"`
	Warnings    int       `json:"warnings"`
	Error       string    `json:"error,omitempty"`
}

// Service builds network summaries
type Service struct {
	client      upstream.Client
	cache       cache.Store
	retrier     *fetch.Retrier
	store       Store
	concurrency int
	neighborTTL time.Duration
	now         func() time.Time
	newID       func() string
	logger      zerolog.Logger

	statsLock sync.Mutex
	inFlight  int
	lastRun   RunStats

	stopChan chan struct{}
	stopOnce sync.Once
}

// Option configures a Service
type Option func(*Service)

// WithStore enables the snapshot tier and run history
func WithStore(store Store) Option {
	return func(s *Service) { s.store = store }
}

// WithConcurrency sets the batch wave size
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithNeighborTTL sets how old a stored neighbor snapshot may be
func WithNeighborTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.neighborTTL = ttl
		}
	}
}

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRequestIDs replaces the request id generator
func WithRequestIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// New creates a summary service
func New(client upstream.Client, store cache.Store, retrier *fetch.Retrier, opts ...Option) *Service {
	s := &Service{
		client:      client,
		cache:       store,
		retrier:     retrier,
		concurrency: 5,
		neighborTTL: cache.DefaultTTLs[cache.NeighborDiscovery],
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      log.With().Str("component", "summary").Logger(),
		lastRun:     RunStats{Status: "idle"},
		stopChan:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetStatus returns the current or last run and the number of requests in flight
func (s *Service) GetStatus() (RunStats, int) {
	s.statsLock.Lock()
	defer s.statsLock.Unlock()
	return s.lastRun, s.inFlight
}

// GetSummary builds the summary of a network. A returned error is always a *Error.
func (s *Service) GetSummary(ctx context.Context, networkID string, opts models.QueryOptions) (*models.Summary, error) {
	opts = opts.Normalize()
	started := s.now()
	requestID := s.newID()

	logger := s.logger.With().Str("network", networkID).Str("request_id", requestID).Logger()
	logger.Info().
		Int("timespan", opts.UplinkTimespan).
		Int("resolution", opts.UplinkResolution).
		Bool("force_refresh", opts.ForceRefresh).
		Msg("Building network summary")

	s.statsLock.Lock()
	s.inFlight++
	s.lastRun = RunStats{RequestID: requestID, NetworkID: networkID, StartTime: started, Status: "running"}
	s.statsLock.Unlock()

	summary, err := s.build(ctx, networkID, requestID, opts, started)

	run := &models.SummaryRun{
		NetworkID:  networkID,
		RequestID:  requestID,
		Timestamp:  started,
		DurationMs: s.now().Sub(started).Milliseconds(),
		Status:     StatusCompleted,
	}
	if err != nil {
		run.Status = StatusError
		run.ErrorMessage = err.Error()
		logger.Error().Err(err).Msg("Summary failed")
	} else {
		run.DeviceCount = len(summary.Devices)
		run.TopologySource = summary.TopologySource
		run.Flavor = summary.Meta.Flavor
		run.Warnings = len(summary.Meta.Warnings)
		if run.Warnings > 0 {
			run.Status = StatusPartial
		}
		logger.Info().
			Int("devices", run.DeviceCount).
			Str("flavor", run.Flavor).
			Str("topology", run.TopologySource).
			Int("warnings", run.Warnings).
			Int64("elapsed_ms", run.DurationMs).
			Msg("Summary completed")
	}

	s.recordRun(run)

	metrics.SummaryRequests.WithLabelValues(run.Status).Inc()
	metrics.SummaryDuration.Observe(s.now().Sub(started).Seconds())

	s.statsLock.Lock()
	s.inFlight--
	s.lastRun = RunStats{
		RequestID:   requestID,
		NetworkID:   networkID,
		StartTime:   started,
		EndTime:     s.now(),
		Status:      run.Status,
		DeviceCount: run.DeviceCount,
		Warnings:    run.Warnings,
		Error:       run.ErrorMessage,
	}
	s.statsLock.Unlock()

	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *Service) recordRun(run *models.SummaryRun) {
	if s.store == nil {
		return
	}
	if _, err := s.store.RecordRun(run); err != nil {
		s.logger.Warn().Err(err).Str("request_id", run.RequestID).Msg("Failed to record summary run")
	}
}

// cached returns the cached value of category/key, or fetches it with retries and
// caches the result
func (s *Service) cached(ctx context.Context, category, key, label string, fn fetch.Call) (interface{}, error) {
	if v, ok := s.cache.Get(category, key); ok {
		return v, nil
	}
	v, err := s.retrier.Do(ctx, label, fn)
	if err != nil {
		return nil, err
	}
	s.cache.Set(category, key, v)
	return v, nil
}

// resolveNetwork maps the network to its organization
func (s *Service) resolveNetwork(ctx context.Context, networkID string) (models.NetworkInfo, error) {
	v, err := s.cached(ctx, cache.Networks, networkID, upstream.ResNetwork, func(ctx context.Context) (interface{}, error) {
		return s.client.GetNetwork(ctx, networkID)
	})
	if err != nil {
		if upstream.IsNotFound(err) {
			return models.NetworkInfo{}, unresolved(networkID, err)
		}
		return models.NetworkInfo{}, &Error{
			Kind:    KindUpstream,
			Message: fmt.Sprintf("network %s could not be resolved", networkID),
			Cause:   fmt.Errorf("%w: %w", ErrUnresolvedNetwork, err),
		}
	}

	info, ok := inventory.ParseNetwork(v)
	if !ok {
		s.cache.Evict(cache.Networks, networkID)
		return models.NetworkInfo{}, unresolved(networkID, nil)
	}
	if info.ID == "" {
		info.ID = networkID
	}
	return info, nil
}

// mandatory fetches the inventory and device statuses concurrently. Either failing
// fails the request.
func (s *Service) mandatory(ctx context.Context, network models.NetworkInfo) ([]models.Device, error) {
	results := fetch.Settle(ctx, map[string]fetch.Task[interface{}]{
		upstream.ResDevices: func(ctx context.Context) (interface{}, error) {
			return s.cached(ctx, cache.Devices, network.ID, upstream.ResDevices, func(ctx context.Context) (interface{}, error) {
				return s.client.GetNetworkDevices(ctx, network.ID)
			})
		},
		upstream.ResDeviceStatuses: func(ctx context.Context) (interface{}, error) {
			return s.retrier.Do(ctx, upstream.ResDeviceStatuses, func(ctx context.Context) (interface{}, error) {
				return s.client.GetDeviceStatuses(ctx, network.OrganizationID, network.ID)
			})
		},
	})

	for _, name := range []string{upstream.ResDevices, upstream.ResDeviceStatuses} {
		if r := results[name]; !r.OK() {
			return nil, upstreamFailure(name, r.Err)
		}
	}

	devices := inventory.ParseDevices(results[upstream.ResDevices].Value)
	inventory.ApplyStatuses(devices, inventory.ParseStatuses(results[upstream.ResDeviceStatuses].Value))
	return devices, nil
}

// build runs one summary request
func (s *Service) build(ctx context.Context, networkID, requestID string, opts models.QueryOptions, started time.Time) (*models.Summary, error) {
	network, err := s.resolveNetwork(ctx, networkID)
	if err != nil {
		return nil, err
	}

	devices, err := s.mandatory(ctx, network)
	if err != nil {
		return nil, err
	}

	raw := s.optional(ctx, network, devices, opts)
	summary := s.assemble(network, devices, raw, opts)

	summary.Meta.RequestID = requestID
	summary.Meta.GeneratedAt = s.now().UTC()
	summary.Meta.ElapsedMs = s.now().Sub(started).Milliseconds()
	return summary, nil
}

// ResetNeighbors drops the cached and stored neighbor snapshots of a network
func (s *Service) ResetNeighbors(networkID string) (int, error) {
	if v, ok := s.cache.Get(cache.Devices, networkID); ok {
		for _, d := range inventory.ParseDevices(v) {
			s.cache.Evict(cache.NeighborDiscovery, neighborKey(networkID, d.Serial))
		}
	}
	if s.store == nil {
		return 0, nil
	}
	n, err := s.store.DeleteNeighborSnapshots(networkID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stored snapshots: %w", err)
	}
	s.logger.Info().Str("network", networkID).Int("deleted", n).Msg("Neighbor snapshots reset")
	return n, nil
}

// AsError returns err as a *Error, wrapping foreign errors as upstream failures
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindUpstream, Message: "summary failed", Cause: err}
}
