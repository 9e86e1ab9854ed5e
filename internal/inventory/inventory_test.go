// internal/inventory/inventory_test.go
package inventory

import (
	"testing"

	"netsummary/internal/models"
)

// TestClassify tests model prefix and product type classification
func TestClassify(t *testing.T) {
	tests := []struct {
		model       string
		productType string
		want        models.DeviceClass
	}{
		{"MS120-8", "", models.ClassSwitch},
		{"MR46", "", models.ClassAccessPoint},
		{"CW9166I", "", models.ClassAccessPoint},
		{"MX68", "", models.ClassGateway},
		{"Z3", "", models.ClassTeleworkerGateway},
		{"MG21", "", models.ClassCellularGateway},
		{"", "switch", models.ClassSwitch},
		{"unknown", "wireless", models.ClassAccessPoint},
		{"MV12", "camera", models.ClassOther},
	}

	for _, tt := range tests {
		if got := Classify(tt.model, tt.productType); got != tt.want {
			t.Errorf("Classify(%q, %q) = %s, expected %s", tt.model, tt.productType, got, tt.want)
		}
	}
}

// TestNormalizeStatus tests vendor status mapping
func TestNormalizeStatus(t *testing.T) {
	tests := map[string]string{
		"online":    models.DeviceOnline,
		"Offline":   models.DeviceOffline,
		"dormant":   models.DeviceOffline,
		"alerting":  models.DeviceWarning,
		"":          models.DeviceUnknown,
		"rebooting": models.DeviceUnknown,
	}
	for in, want := range tests {
		if got := NormalizeStatus(in); got != want {
			t.Errorf("NormalizeStatus(%q) = %s, expected %s", in, got, want)
		}
	}
}

// TestNormalizeMAC tests MAC canonicalization
func TestNormalizeMAC(t *testing.T) {
	tests := map[string]string{
		"AA:BB:CC:DD:EE:FF": "aa:bb:cc:dd:ee:ff",
		"aabb.ccdd.eeff":    "aa:bb:cc:dd:ee:ff",
		"AA-BB-CC-DD-EE-FF": "aa:bb:cc:dd:ee:ff",
		"Port 5":            "port 5",
		"":                  "",
	}
	for in, want := range tests {
		if got := NormalizeMAC(in); got != want {
			t.Errorf("NormalizeMAC(%q) = %q, expected %q", in, got, want)
		}
	}
}

// TestParseDevicesAndStatuses tests inventory decoding and status application
func TestParseDevicesAndStatuses(t *testing.T) {
	raw := []interface{}{
		map[string]interface{}{"serial": "Q2MX-0001", "model": "MX68", "name": "edge", "mac": "AA:BB:CC:00:00:01"},
		map[string]interface{}{"serial": "Q2MR-0001", "model": "MR36", "mac": "aa:bb:cc:00:00:02"},
		map[string]interface{}{"name": "ghost"},
		"junk",
	}
	devices := ParseDevices(raw)
	if len(devices) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(devices))
	}
	if devices[0].Class != models.ClassGateway || devices[0].MAC != "aa:bb:cc:00:00:01" {
		t.Errorf("Unexpected gateway record: %+v", devices[0])
	}

	statuses := ParseStatuses(map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"serial": "Q2MX-0001", "status": "online", "lastReportedAt": "2024-05-01T12:00:00Z"},
		},
	})
	ApplyStatuses(devices, statuses)

	if devices[0].Status != models.DeviceOnline {
		t.Errorf("Expected gateway online, got %s", devices[0].Status)
	}
	if devices[0].LastReportedAt == nil {
		t.Errorf("Expected lastReportedAt to be set")
	}
	if devices[1].Status != models.DeviceUnknown {
		t.Errorf("Expected AP without status to be unknown, got %s", devices[1].Status)
	}

	sm := StatusMap(devices)
	if sm["aa:bb:cc:00:00:01"] != models.DeviceOnline || sm["Q2MX-0001"] != models.DeviceOnline {
		t.Errorf("Expected status map keyed by serial and MAC, got %v", sm)
	}
}

// TestParseNetwork tests organization resolution
func TestParseNetwork(t *testing.T) {
	info, ok := ParseNetwork(map[string]interface{}{"id": "N_1", "name": "HQ", "organizationId": "O_1"})
	if !ok || info.OrganizationID != "O_1" || info.Name != "HQ" {
		t.Errorf("Unexpected network info: %+v (%v)", info, ok)
	}
	if _, ok := ParseNetwork(map[string]interface{}{"id": "N_1"}); ok {
		t.Errorf("Expected network without organization to be unresolved")
	}
	if _, ok := ParseNetwork(nil); ok {
		t.Errorf("Expected nil payload to be unresolved")
	}
}

// TestFlavor tests device mix tags
func TestFlavor(t *testing.T) {
	tests := []struct {
		counts models.DeviceCounts
		want   string
	}{
		{models.DeviceCounts{Gateways: 1, AccessPoints: 1}, "GAP"},
		{models.DeviceCounts{Gateways: 1, Switches: 2, AccessPoints: 3}, "GSAP"},
		{models.DeviceCounts{Gateways: 1, Switches: 1}, "GS"},
		{models.DeviceCounts{Gateways: 1}, "G"},
		{models.DeviceCounts{Switches: 1, AccessPoints: 1}, "SAP"},
		{models.DeviceCounts{Switches: 1}, "S"},
		{models.DeviceCounts{AccessPoints: 4}, "AP"},
		{models.DeviceCounts{Other: 2}, "EMPTY"},
	}
	for _, tt := range tests {
		if got := Flavor(tt.counts); got != tt.want {
			t.Errorf("Flavor(%+v) = %s, expected %s", tt.counts, got, tt.want)
		}
	}
}

// TestCount tests device mix counting
func TestCount(t *testing.T) {
	devices := []models.Device{
		{Class: models.ClassGateway},
		{Class: models.ClassTeleworkerGateway},
		{Class: models.ClassSwitch},
		{Class: models.ClassAccessPoint},
		{Class: models.ClassOther},
	}
	c := Count(devices)
	if c.Total != 5 || c.Gateways != 2 || c.Switches != 1 || c.AccessPoints != 1 || c.Other != 1 {
		t.Errorf("Unexpected counts: %+v", c)
	}
	if len(Gateways(devices)) != 2 {
		t.Errorf("Expected 2 gateway-like devices")
	}
	if len(OfClass(devices, models.ClassSwitch, models.ClassAccessPoint)) != 2 {
		t.Errorf("Expected 2 switches and access points")
	}
}
