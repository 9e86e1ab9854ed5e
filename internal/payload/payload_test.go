package payload

import (
	"testing"
	"time"
)

func TestList(t *testing.T) {
	arr := []interface{}{map[string]interface{}{"a": 1.0}}

	if got := List(arr, "items"); len(got) != 1 {
		t.Errorf("Expected slice to pass through, got %d items", len(got))
	}

	wrapped := map[string]interface{}{"data": "nope", "items": arr}
	if got := List(wrapped, "data", "items"); len(got) != 1 {
		t.Errorf("Expected items field to be used, got %d items", len(got))
	}

	single := map[string]interface{}{"serial": "Q2-1"}
	got := List(single, "items")
	if len(got) != 1 {
		t.Fatalf("Expected single record, got %d", len(got))
	}
	if m, _ := Object(got[0]); m["serial"] != "Q2-1" {
		t.Errorf("Expected object itself to be the record, got %v", got[0])
	}

	if got := List(nil); got != nil {
		t.Errorf("Expected nil for nil input, got %v", got)
	}
	if got := List("text"); got != nil {
		t.Errorf("Expected nil for scalar input, got %v", got)
	}
}

func TestRecordsDropsScalars(t *testing.T) {
	v := []interface{}{map[string]interface{}{"a": 1.0}, "junk", 3.0}
	got := Records("test", v)
	if len(got) != 1 {
		t.Errorf("Expected 1 record, got %d", len(got))
	}
}

func TestScalarAccessors(t *testing.T) {
	m := map[string]interface{}{
		"name":    "  sw-1 ",
		"number":  3.0,
		"speed":   "100.5",
		"enabled": "true",
		"poe":     false,
		"empty":   "",
	}

	if s := String(m, "empty", "name"); s != "sw-1" {
		t.Errorf("Expected trimmed name, got %q", s)
	}
	if s := String(m, "number"); s != "3" {
		t.Errorf("Expected formatted number, got %q", s)
	}
	if f, ok := Float(m, "missing", "speed"); !ok || f != 100.5 {
		t.Errorf("Expected 100.5, got %v (%v)", f, ok)
	}
	if _, ok := Float(m, "name"); ok {
		t.Errorf("Expected non-numeric string to be absent")
	}
	if b, ok := Bool(m, "enabled"); !ok || !b {
		t.Errorf("Expected enabled true")
	}
	if b, ok := Bool(m, "poe"); !ok || b {
		t.Errorf("Expected poe false")
	}
	if p := FloatPtr(m, "missing"); p != nil {
		t.Errorf("Expected nil pointer for missing field")
	}
}

func TestToTime(t *testing.T) {
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	cases := []interface{}{
		"2024-05-01T12:00:00Z",
		"2024-05-01T14:00:00+02:00",
		float64(want.Unix()),
		float64(want.UnixMilli()),
		"1714564800",
	}
	for _, c := range cases {
		got, ok := ToTime(c)
		if !ok {
			t.Errorf("Expected %v to parse", c)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("Expected %v for %v, got %v", want, c, got)
		}
	}

	if _, ok := ToTime("yesterday"); ok {
		t.Errorf("Expected free text not to parse")
	}
}
