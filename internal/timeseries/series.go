package timeseries

import (
	"sort"
	"time"

	"netsummary/internal/models"
	"netsummary/internal/payload"
	"netsummary/internal/ports"
)

// Loss thresholds, in percent
const (
	LossDisconnected = 100.0
	LossDegraded     = 10.0
)

// Input is everything Build needs for the uplink series of one request
type Input struct {
	Loss  []Leaf
	Usage []Leaf
	// Live uplink snapshots; every live uplink gets a series
	Live  []models.Uplink
	Start time.Time
	Now   time.Time
	// DefaultSerial is used for leaves that carry no serial, as network-scoped usage
	// history does
	DefaultSerial string
}

type pointKey struct {
	serial string
	iface  string
	ts     int64
}

type seriesKey struct {
	serial string
	iface  string
}

// Build merges loss and usage leaves by (serial, interface, timestamp) into one point
// each and returns one ordered series per interface. Points after Now are dropped.
// Every series is padded so its first point is at or before Start and its last
// point is at Now.
func Build(in Input) []models.Series {
	points := make(map[pointKey]*models.Point)
	bySeries := make(map[seriesKey][]*models.Point)
	labels := make(map[seriesKey]string)

	point := func(l Leaf) *models.Point {
		if l.Timestamp.After(in.Now) {
			return nil
		}
		serial := l.Serial
		if serial == "" {
			serial = in.DefaultSerial
		}
		sk := seriesKey{serial: serial, iface: interfaceKey(l.Interface)}
		pk := pointKey{serial: sk.serial, iface: sk.iface, ts: l.Timestamp.UnixNano()}
		if p, ok := points[pk]; ok {
			return p
		}
		p := &models.Point{Timestamp: l.Timestamp}
		points[pk] = p
		bySeries[sk] = append(bySeries[sk], p)
		if _, ok := labels[sk]; !ok {
			labels[sk] = l.Interface
		}
		return p
	}

	for _, l := range in.Loss {
		p := point(l)
		if p == nil {
			continue
		}
		if v := payload.FloatPtr(l.Fields, "lossPercent", "loss"); v != nil {
			p.LossPercent = v
		}
		if v := payload.FloatPtr(l.Fields, "latencyMs", "latency"); v != nil {
			p.LatencyMs = v
		}
		if v := payload.FloatPtr(l.Fields, "jitterMs", "jitter"); v != nil {
			p.JitterMs = v
		}
		if s := payload.String(l.Fields, "status"); s != "" {
			p.Status = ports.NormalizeUplinkStatus(s)
		}
	}
	for _, l := range in.Usage {
		p := point(l)
		if p == nil {
			continue
		}
		if v := payload.FloatPtr(l.Fields, "sentKbps", "sent"); v != nil {
			p.SentKbps = v
		}
		if v := payload.FloatPtr(l.Fields, "receivedKbps", "received", "recv"); v != nil {
			p.ReceivedKbps = v
		}
		if s := payload.String(l.Fields, "status"); s != "" && p.Status == "" {
			p.Status = ports.NormalizeUplinkStatus(s)
		}
	}

	live := make(map[seriesKey]models.Uplink, len(in.Live))
	for _, u := range in.Live {
		sk := seriesKey{serial: u.Serial, iface: interfaceKey(u.Interface)}
		live[sk] = u
		if _, ok := bySeries[sk]; !ok {
			bySeries[sk] = nil
		}
		if _, ok := labels[sk]; !ok {
			labels[sk] = u.Interface
		}
	}

	out := make([]models.Series, 0, len(bySeries))
	for sk, ps := range bySeries {
		pts := make([]models.Point, 0, len(ps)+2)
		for _, p := range ps {
			if p.Status == "" {
				p.Status = statusFromLoss(p.LossPercent)
			}
			pts = append(pts, *p)
		}
		sort.Slice(pts, func(i, j int) bool { return pts[i].Timestamp.Before(pts[j].Timestamp) })

		// outages close on observed samples, never on the padding
		outages := Outages(pts)

		liveStatus := ""
		if u, ok := live[sk]; ok {
			liveStatus = u.Status
		}
		pts = cover(pts, in.Start, in.Now, liveStatus)

		s := models.Series{
			Key:       sk.serial + ":" + labels[sk],
			Serial:    sk.serial,
			Interface: labels[sk],
			Points:    pts,
			Outages:   outages,
		}
		s.OutageCount = len(s.Outages)
		for _, o := range s.Outages {
			s.OutageSeconds += o.DurationSeconds
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// statusFromLoss derives a point status when the record carries none
func statusFromLoss(loss *float64) string {
	switch {
	case loss == nil:
		return models.StatusUnknown
	case *loss >= LossDisconnected:
		return models.StatusDisconnected
	case *loss >= LossDegraded:
		return models.StatusDegraded
	default:
		return models.StatusConnected
	}
}

// cover pads sorted points to span start..now. An empty series becomes two points
// carrying the live status.
func cover(pts []models.Point, start, now time.Time, liveStatus string) []models.Point {
	if len(pts) == 0 {
		status := liveStatus
		if status == "" {
			status = models.StatusUnknown
		}
		return []models.Point{
			{Timestamp: start, Status: status, Synthetic: true},
			{Timestamp: now, Status: status, Synthetic: true},
		}
	}

	if pts[0].Timestamp.After(start) {
		pts = append([]models.Point{{Timestamp: start, Status: pts[0].Status, Synthetic: true}}, pts...)
	}

	last := pts[len(pts)-1]
	if last.Timestamp.Before(now) {
		status := liveStatus
		if status == "" {
			status = last.Status
		}
		pts = append(pts, models.Point{Timestamp: now, Status: status, Synthetic: true})
	}
	return pts
}

// Outages turns each contiguous run of disconnected points into one outage that ends
// at the first point after the run. A run still open at the end of the series
// closes at its last timestamp.
func Outages(pts []models.Point) []models.Outage {
	out := []models.Outage{}
	var start time.Time
	open := false

	closeAt := func(end time.Time) {
		out = append(out, models.Outage{
			Start:           start,
			End:             end,
			DurationSeconds: end.Sub(start).Seconds(),
		})
		open = false
	}

	for _, p := range pts {
		down := p.Status == models.StatusDisconnected
		switch {
		case down && !open:
			start, open = p.Timestamp, true
		case !down && open:
			closeAt(p.Timestamp)
		}
	}
	if open {
		closeAt(pts[len(pts)-1].Timestamp)
	}
	return out
}

// Buckets counts events into fixed intervals from start to end. Events outside the
// window are ignored.
func Buckets(events []time.Time, start, end time.Time, size time.Duration) []models.FailureBucket {
	if size <= 0 || !end.After(start) {
		return []models.FailureBucket{}
	}
	n := int((end.Sub(start) + size - 1) / size)
	out := make([]models.FailureBucket, n)
	for i := range out {
		out[i].Start = start.Add(time.Duration(i) * size)
	}
	for _, ts := range events {
		if ts.Before(start) || ts.After(end) {
			continue
		}
		i := int(ts.Sub(start) / size)
		if i >= n {
			i = n - 1
		}
		out[i].Count++
	}
	return out
}
