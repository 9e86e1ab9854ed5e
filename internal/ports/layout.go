package ports

import (
	"regexp"
	"strings"
)

// layout is the static port plan of a gateway model. LANUplink is a guess of the
// LAN port a downstream device is usually cabled to; it is never confirmed by the
// device and is reported as best effort.
type layout struct {
	WAN       []string
	LANUplink string
}

var modelLayouts = map[string]layout{
	"MX64":  {WAN: []string{"1"}, LANUplink: "3"},
	"MX65":  {WAN: []string{"1", "2"}, LANUplink: "3"},
	"MX67":  {WAN: []string{"1"}, LANUplink: "3"},
	"MX68":  {WAN: []string{"1", "2"}, LANUplink: "3"},
	"MX75":  {WAN: []string{"1", "2"}, LANUplink: "3"},
	"MX84":  {WAN: []string{"1", "2"}, LANUplink: "3"},
	"MX85":  {WAN: []string{"1", "2"}, LANUplink: "3"},
	"MX95":  {WAN: []string{"1", "2"}, LANUplink: "3"},
	"MX100": {WAN: []string{"1", "2"}, LANUplink: "3"},
	"MX105": {WAN: []string{"1", "2"}, LANUplink: "3"},
	"MX250": {WAN: []string{"1", "2"}, LANUplink: "3"},
	"Z3":    {WAN: []string{"wan1"}, LANUplink: "1"},
	"Z4":    {WAN: []string{"wan1"}, LANUplink: "1"},
}

// gapPort is where the single access point of a gateway+AP site is cabled
const gapPort = "5"

var (
	modelSuffix  = regexp.MustCompile(`[A-Z]+$`)
	smallBranch  = regexp.MustCompile(`^MX6\d`)
	teleworkerRe = regexp.MustCompile(`^Z\d`)
)

// baseModel strips hardware revision and variant suffixes ("MX68CW-HW" -> "MX68")
func baseModel(model string) string {
	m := strings.ToUpper(strings.TrimSpace(model))
	if i := strings.IndexByte(m, '-'); i > 0 {
		m = m[:i]
	}
	if _, ok := modelLayouts[m]; ok {
		return m
	}
	return modelSuffix.ReplaceAllString(m, "")
}

func layoutFor(model string) (layout, bool) {
	l, ok := modelLayouts[baseModel(model)]
	return l, ok
}

// isWANPort reports whether the model table lists id as a WAN port
func isWANPort(model, id string) bool {
	l, ok := layoutFor(model)
	if !ok {
		return false
	}
	for _, w := range l.WAN {
		if w == id {
			return true
		}
	}
	return false
}

// GAPPort returns the fixed access point port of teleworker and small-branch models
func GAPPort(model string) (string, bool) {
	m := baseModel(model)
	if teleworkerRe.MatchString(m) || smallBranch.MatchString(m) {
		return gapPort, true
	}
	return "", false
}
