package ports

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var speedPattern = regexp.MustCompile(`^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-zA-Z/]*)`)

// ParseSpeed converts a negotiated speed to Mbps. Numbers are taken as Mbps and
// labelled "<n> Mbps"; strings carry a unit suffix (gb, kb, else mb) and keep their
// trimmed text as the label.
func ParseSpeed(v interface{}) (float64, string, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
			return 0, "", false
		}
		return t, formatMbps(t) + " Mbps", true
	case int:
		return float64(t), strconv.Itoa(t) + " Mbps", true
	case string:
		label := strings.TrimSpace(t)
		m := speedPattern.FindStringSubmatch(label)
		if m == nil {
			return 0, "", false
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, "", false
		}
		unit := strings.ToLower(m[2])
		switch {
		case strings.HasPrefix(unit, "gb"), unit == "g":
			n *= 1000
		case strings.HasPrefix(unit, "kb"), unit == "k":
			n *= 0.001
		}
		if unit == "" {
			label = formatMbps(n) + " Mbps"
		}
		return n, label, true
	}
	return 0, "", false
}

func formatMbps(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
