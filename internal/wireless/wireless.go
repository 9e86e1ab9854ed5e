// Package wireless composes per access point signal summaries from signal history,
// per-client samples, device aggregates and connection failure events.
package wireless

import (
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"netsummary/internal/models"
	"netsummary/internal/payload"
	"netsummary/internal/timeseries"
)

const (
	// MicroDropThreshold is the signal quality at or below which a sample is low
	MicroDropThreshold = 20.0
	// FailureBucketSize is the width of failure history buckets
	FailureBucketSize = 300 * time.Second
)

// Signal sources, in fallback order
const (
	SourceHistory   = "history"
	SourceClients   = "clients"
	SourceAggregate = "aggregate"
	SourceNone      = "none"
)

var degradedStatus = regexp.MustCompile(`(?i)degrad|poor|weak|bad|fail|offline|disconnect|down`)

// Input is the raw wireless data of one network
type Input struct {
	AccessPoints []models.Device
	// Aggregates holds per-device signal aggregates
	Aggregates interface{}
	// History maps an access point serial to its history payload
	History  map[string]interface{}
	Clients  interface{}
	Network  interface{}
	Failures interface{}
	// Connected maps an access point serial to where it is cabled
	Connected map[string]models.Connection
	Start     time.Time
	End       time.Time
}

// Compose builds the wireless block. Each access point takes its samples from its
// own history, else from client samples reported against it, else from its device
// aggregate.
func Compose(in Input) models.WirelessBlock {
	logger := log.With().Str("component", "wireless").Logger()

	aggregates := BySerial(in.Aggregates)
	clients := BySerial(in.Clients)
	failures := failureEvents(in.Failures)

	block := models.WirelessBlock{AccessPoints: make([]models.AccessPointSignal, 0, len(in.AccessPoints))}

	for _, ap := range in.AccessPoints {
		sig := models.AccessPointSignal{
			Serial:         ap.Serial,
			Name:           ap.DisplayName(),
			Model:          ap.Model,
			Status:         ap.Status,
			Source:         SourceNone,
			Samples:        []models.SignalSample{},
			FailureHistory: []models.FailureBucket{},
		}

		history := Samples(in.History[ap.Serial])
		perClient := Samples(clients[ap.Serial])
		switch {
		case hasQuality(history):
			sig.Samples, sig.Source = history, SourceHistory
		case hasQuality(perClient):
			sig.Samples, sig.Source = perClient, SourceClients
		default:
			if s, ok := aggregateSample(aggregates[ap.Serial], in.End); ok {
				sig.Samples, sig.Source = []models.SignalSample{s}, SourceAggregate
			}
		}

		sig.Stats = Stats(sig.Samples)
		sig.MicroDrops, sig.MicroDropSeconds = MicroDrops(sig.Samples)

		events := failures[ap.Serial]
		sig.FailureHistory = timeseries.Buckets(events, in.Start, in.End, FailureBucketSize)
		for _, b := range sig.FailureHistory {
			sig.FailureCount += b.Count
		}
		block.FailureCount += sig.FailureCount

		if conn, ok := in.Connected[ap.Serial]; ok {
			sig.ConnectedPort = conn.Port
			sig.ConnectedVia = conn.Source
		}

		logger.Debug().
			Str("serial", ap.Serial).
			Str("source", sig.Source).
			Int("samples", sig.Stats.SampleCount).
			Int("micro_drops", sig.MicroDrops).
			Msg("Composed access point signal")

		block.AccessPoints = append(block.AccessPoints, sig)
	}

	if samples := Samples(in.Network); hasQuality(samples) {
		stats := Stats(samples)
		block.NetworkAggregate = &stats
	} else if s, ok := aggregateSample(in.Network, in.End); ok {
		stats := Stats([]models.SignalSample{s})
		block.NetworkAggregate = &stats
	}

	return block
}

func hasQuality(samples []models.SignalSample) bool {
	for _, s := range samples {
		if s.Quality != nil {
			return true
		}
	}
	return false
}

// Stats computes average, median, min, max and latest over samples with a quality
func Stats(samples []models.SignalSample) models.SignalStats {
	var values []float64
	var latest *float64
	for _, s := range samples {
		if s.Quality == nil {
			continue
		}
		values = append(values, *s.Quality)
		q := *s.Quality
		latest = &q
	}
	stats := models.SignalStats{SampleCount: len(values), Latest: latest}
	if len(values) == 0 {
		return stats
	}

	sum, lo, hi := 0.0, math.Inf(1), math.Inf(-1)
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	avg := sum / float64(len(values))

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	stats.Average, stats.Median, stats.Min, stats.Max = &avg, &median, &lo, &hi
	return stats
}

// isLow reports whether a sample counts toward a micro-drop
func isLow(s models.SignalSample) bool {
	if s.Quality != nil && *s.Quality <= MicroDropThreshold {
		return true
	}
	return s.Status != "" && degradedStatus.MatchString(s.Status)
}

// MicroDrops counts contiguous runs of low samples in time-ordered samples. The
// duration sums the gap from every low sample to the sample after it.
func MicroDrops(samples []models.SignalSample) (int, float64) {
	drops, seconds := 0, 0.0
	inRun := false
	for i, s := range samples {
		if !isLow(s) {
			inRun = false
			continue
		}
		if !inRun {
			drops++
			inRun = true
		}
		if i+1 < len(samples) {
			seconds += samples[i+1].Timestamp.Sub(s.Timestamp).Seconds()
		}
	}
	return drops, seconds
}

// failureEvents groups failed connection timestamps by access point serial
func failureEvents(v interface{}) map[string][]time.Time {
	out := make(map[string][]time.Time)
	collect(v, 0, func(r map[string]interface{}) {
		serial := payload.String(r, serialKeys...)
		ts, ok := payload.Time(r, timeKeys...)
		if serial == "" || !ok {
			payload.Unrecognized("failedConnections")
			return
		}
		out[serial] = append(out[serial], ts)
	})
	return out
}
