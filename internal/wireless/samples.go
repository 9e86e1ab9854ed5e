package wireless

import (
	"sort"
	"time"

	"netsummary/internal/models"
	"netsummary/internal/payload"
)

// Field precedence for history samples
var (
	timeKeys    = []string{"startTs", "ts", "timestamp", "time", "endTs"}
	qualityKeys = []string{"signalQuality", "quality", "score", "snr", "rssi"}
	clientKeys  = []string{"clientCount", "clients", "numClients"}
	snrKeys     = []string{"snr"}
	statusKeys  = []string{"status", "state"}
	listKeys    = []string{"history", "data", "items", "samples", "series", "values"}
	serialKeys  = []string{"serial", "apSerial", "deviceSerial"}
)

// Samples normalizes a signal history payload into samples ordered by time.
// Records without a timestamp are dropped.
func Samples(v interface{}) []models.SignalSample {
	out := []models.SignalSample{}
	collect(v, 0, func(r map[string]interface{}) {
		ts, ok := payload.Time(r, timeKeys...)
		if !ok {
			payload.Unrecognized("signalHistory")
			return
		}
		s := models.SignalSample{
			Timestamp: ts,
			Quality:   payload.FloatPtr(r, qualityKeys...),
			SNR:       payload.FloatPtr(r, snrKeys...),
			Status:    payload.String(r, statusKeys...),
		}
		if n, ok := clientCount(r); ok {
			s.ClientCount = &n
		}
		out = append(out, s)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// collect calls fn for every record reachable through list wrappers
func collect(v interface{}, depth int, fn func(map[string]interface{})) {
	if depth > payload.MaxDepth {
		payload.Unrecognized("signalHistory")
		return
	}
	switch t := v.(type) {
	case []interface{}:
		for _, item := range t {
			collect(item, depth+1, fn)
		}
	case map[string]interface{}:
		for _, k := range listKeys {
			if inner, ok := t[k].([]interface{}); ok {
				collect(inner, depth+1, fn)
				return
			}
		}
		fn(t)
	case nil:
	default:
		payload.Unrecognized("signalHistory")
	}
}

func clientCount(r map[string]interface{}) (int, bool) {
	for _, k := range clientKeys {
		switch v := r[k].(type) {
		case []interface{}:
			return len(v), true
		default:
			if f, ok := payload.ToFloat(v); ok {
				return int(f), true
			}
		}
	}
	return 0, false
}

// BySerial splits a payload covering several access points into per-serial
// payloads. A list is grouped by each record's serial field; an object that is not
// itself a record is read as a map keyed by serial.
func BySerial(v interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	var group func(v interface{}, depth int)
	group = func(v interface{}, depth int) {
		if depth > payload.MaxDepth {
			return
		}
		switch t := v.(type) {
		case []interface{}:
			for _, item := range t {
				r, ok := item.(map[string]interface{})
				if !ok {
					payload.Unrecognized("signalBySerial")
					continue
				}
				serial := payload.String(r, serialKeys...)
				if serial == "" {
					payload.Unrecognized("signalBySerial")
					continue
				}
				list, _ := out[serial].([]interface{})
				out[serial] = append(list, r)
			}
		case map[string]interface{}:
			for _, k := range listKeys {
				if inner, ok := t[k].([]interface{}); ok {
					group(inner, depth+1)
					return
				}
			}
			if payload.String(t, serialKeys...) != "" {
				group([]interface{}{t}, depth+1)
				return
			}
			for serial, inner := range t {
				out[serial] = inner
			}
		}
	}
	group(v, 0)
	return out
}

// aggregateSample reads a per-device or network aggregate record as one sample at ts
func aggregateSample(v interface{}, ts time.Time) (models.SignalSample, bool) {
	var rec map[string]interface{}
	collect(v, 0, func(r map[string]interface{}) {
		if rec == nil {
			rec = r
		}
	})
	if rec == nil {
		return models.SignalSample{}, false
	}
	q := payload.FloatPtr(rec, append([]string{"averageSignalQuality", "average"}, qualityKeys...)...)
	if q == nil {
		return models.SignalSample{}, false
	}
	s := models.SignalSample{Timestamp: ts, Quality: q, SNR: payload.FloatPtr(rec, snrKeys...)}
	if at, ok := payload.Time(rec, timeKeys...); ok {
		s.Timestamp = at
	}
	if n, ok := clientCount(rec); ok {
		s.ClientCount = &n
	}
	return s, true
}
