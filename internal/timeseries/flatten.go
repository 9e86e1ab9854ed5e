// Package timeseries flattens loss, latency and usage history payloads into leaf
// records and builds per-interface series that always cover the requested window.
package timeseries

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"netsummary/internal/payload"
)

// wrapperKeys are the fields a history payload may nest its records under
var wrapperKeys = []string{"timeSeries", "series", "byInterface", "uplinks", "items", "data", "values", "results", "history"}

var (
	nonAlnum      = regexp.MustCompile(`[^a-z0-9]+`)
	serialKeys    = []string{"serial", "deviceSerial"}
	interfaceKeys = []string{"uplink", "interface", "iface"}
	timeKeys      = []string{"ts", "timestamp", "startTs", "startTime", "time"}
)

// Leaf is one sample with the serial, interface and timestamp it inherited from the
// records enclosing it
type Leaf struct {
	Serial    string
	Interface string
	Timestamp time.Time
	Fields    map[string]interface{}
}

type scope struct {
	serial string
	iface  string
	ts     time.Time
}

func (s scope) with(r map[string]interface{}) scope {
	if v := payload.String(r, serialKeys...); v != "" {
		s.serial = v
	}
	if v := payload.String(r, interfaceKeys...); v != "" {
		s.iface = v
	}
	if ts, ok := payload.Time(r, timeKeys...); ok {
		s.ts = ts
	}
	return s
}

// Flatten walks v up to payload.MaxDepth levels deep and returns its leaf records,
// plus the number of elements that matched no known shape. Those are also counted
// under family.
func Flatten(family string, v interface{}) ([]Leaf, int) {
	f := &flattener{family: family}
	f.walk(v, scope{}, 0)
	return f.leaves, f.unrecognized
}

type flattener struct {
	family       string
	leaves       []Leaf
	unrecognized int
}

func (f *flattener) miss() {
	f.unrecognized++
	payload.Unrecognized(f.family)
}

func (f *flattener) walk(v interface{}, sc scope, depth int) {
	if depth > payload.MaxDepth {
		f.miss()
		return
	}
	switch t := v.(type) {
	case nil:
	case []interface{}:
		for _, item := range t {
			f.walk(item, sc, depth+1)
		}
	case map[string]interface{}:
		sc = sc.with(t)
		descended := false
		for _, k := range wrapperKeys {
			inner, ok := t[k]
			if !ok || inner == nil {
				continue
			}
			switch w := inner.(type) {
			case []interface{}:
				descended = true
				f.walk(w, sc, depth+1)
			case map[string]interface{}:
				descended = true
				if k == "byInterface" {
					f.byInterface(w, sc, depth+1)
				} else {
					f.walk(w, sc, depth+1)
				}
			}
		}
		if descended {
			return
		}
		if sc.ts.IsZero() || sc.iface == "" {
			f.miss()
			return
		}
		f.leaves = append(f.leaves, Leaf{Serial: sc.serial, Interface: sc.iface, Timestamp: sc.ts, Fields: t})
	default:
		f.miss()
	}
}

// byInterface descends an object keyed by interface name
func (f *flattener) byInterface(m map[string]interface{}, sc scope, depth int) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		inner := sc
		inner.iface = k
		f.walk(m[k], inner, depth)
	}
}

// interfaceKey makes interface labels from different resources comparable, so
// "WAN 1", "wan-1" and "wan1" name the same uplink
func interfaceKey(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(s), "")
}
