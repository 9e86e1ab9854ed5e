// internal/models/models_test.go
package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// TestQueryOptionsNormalize tests defaults and clamping of query options
func TestQueryOptionsNormalize(t *testing.T) {
	tests := []struct {
		name       string
		in         QueryOptions
		timespan   int
		resolution int
	}{
		{"defaults", QueryOptions{}, DefaultTimespan, DefaultResolution},
		{"below minimum", QueryOptions{UplinkTimespan: 10, UplinkResolution: 5}, MinTimespan, MinResolution},
		{"above maximum", QueryOptions{UplinkTimespan: 10_000_000, UplinkResolution: 99_999}, MaxTimespan, MaxResolution},
		{"in range", QueryOptions{UplinkTimespan: 3600, UplinkResolution: 600}, 3600, 600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			if got.UplinkTimespan != tt.timespan {
				t.Errorf("Expected timespan %d, got %d", tt.timespan, got.UplinkTimespan)
			}
			if got.UplinkResolution != tt.resolution {
				t.Errorf("Expected resolution %d, got %d", tt.resolution, got.UplinkResolution)
			}
		})
	}

	opts := QueryOptions{UplinkTimespan: 600, ForceRefresh: true}.Normalize()
	if !opts.ForceRefresh {
		t.Errorf("Expected ForceRefresh to be preserved")
	}
	if opts.Window() != 10*time.Minute {
		t.Errorf("Expected window of 10m, got %v", opts.Window())
	}
}

// TestDeviceClassGatewayLike tests gateway classification
func TestDeviceClassGatewayLike(t *testing.T) {
	for _, c := range []DeviceClass{ClassGateway, ClassTeleworkerGateway, ClassCellularGateway} {
		if !c.IsGatewayLike() {
			t.Errorf("Expected %s to be gateway-like", c)
		}
	}
	for _, c := range []DeviceClass{ClassSwitch, ClassAccessPoint, ClassOther} {
		if c.IsGatewayLike() {
			t.Errorf("Expected %s not to be gateway-like", c)
		}
	}
}

// TestDeviceDisplayName tests the name fallback chain
func TestDeviceDisplayName(t *testing.T) {
	if name := (Device{Name: "core", Serial: "Q2-1"}).DisplayName(); name != "core" {
		t.Errorf("Expected name, got %s", name)
	}
	if name := (Device{Serial: "Q2-1", MAC: "aa"}).DisplayName(); name != "Q2-1" {
		t.Errorf("Expected serial, got %s", name)
	}
	if name := (Device{MAC: "aa:bb"}).DisplayName(); name != "aa:bb" {
		t.Errorf("Expected MAC, got %s", name)
	}
}

// TestEmptyTopologyJSON tests that an empty topology encodes as empty arrays
func TestEmptyTopologyJSON(t *testing.T) {
	top := Topology{Nodes: []TopologyNode{}, Links: []TopologyLink{}}

	data, err := json.Marshal(top)
	if err != nil {
		t.Fatalf("Failed to marshal topology: %v", err)
	}
	if string(data) != `{"nodes":[],"links":[]}` {
		t.Errorf("Unexpected topology JSON: %s", data)
	}
}

// TestPortConnectionJSON tests that inferred connectivity keeps its provenance
func TestPortConnectionJSON(t *testing.T) {
	port := Port{
		DeviceSerial: "Q2MX-0001",
		PortID:       "5",
		Role:         RoleLAN,
		Status:       StatusConnected,
		HasCarrier:   true,
		ConnectedTo: &Connection{
			DeviceName: "lobby-ap",
			Source:     "gap-rule",
			Tooltip:    "lobby-ap (gap-rule)",
		},
	}

	data, err := json.Marshal(port)
	if err != nil {
		t.Fatalf("Failed to marshal port: %v", err)
	}
	if !strings.Contains(string(data), `"source":"gap-rule"`) {
		t.Errorf("Expected connection source in JSON, got %s", data)
	}
	if strings.Contains(string(data), `"usage"`) {
		t.Errorf("Expected usage to be omitted, got %s", data)
	}
}
