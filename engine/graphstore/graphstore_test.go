package graphstore

import "testing"

func TestSanitizeRelType(t *testing.T) {
	tests := []struct{ input, want string }{
		{"has_day", "HAS_DAY"},
		{"includes", "INCLUDES"},
		{"near", "NEAR"},
		{"", "REL"},
		{"part-of", "PART_OF"},
		{"ALREADY_UPPER", "ALREADY_UPPER"},
		{"a1b2", "A1B2"},
		{"---", "REL"},
	}
	for _, tt := range tests {
		if got := sanitizeRelType(tt.input); got != tt.want {
			t.Errorf("sanitizeRelType(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestPrefixedPropsRoundTrip(t *testing.T) {
	props := prefixedProps(map[string]string{"color": "blue", "tier": "premium"})
	if props["prop_color"] != "blue" || props["prop_tier"] != "premium" {
		t.Fatalf("unexpected prefixed props: %v", props)
	}
}

func TestStrProp(t *testing.T) {
	props := map[string]any{"a": "hello", "b": 42, "c": nil}
	if strProp(props, "a") != "hello" {
		t.Fatal("expected hello")
	}
	if strProp(props, "b") != "" {
		t.Fatal("expected empty string for non-string prop")
	}
	if strProp(props, "missing") != "" {
		t.Fatal("expected empty string for missing key")
	}
}

func TestEvidenceJSONRoundTrip(t *testing.T) {
	edge := Edge{
		RelType: "has_day",
		Source:  "itinerary-1",
		Target:  "dayplan-1",
		Evidence: []EvidenceItem{
			{VideoURL: "https://youtu.be/abc", StartSec: 12.5, EndSec: 40, ChunkIdx: 2},
		},
	}
	if edge.Evidence[0].VideoURL == "" {
		t.Fatal("expected non-empty evidence video url")
	}
}
