package playercount

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestExtractMetrics_FlatEra(t *testing.T) {
	raw := map[string]interface{}{
		"timestamp":       "2024-01-01T12:00:00Z",
		"annihilation_us": float64(120),
		"annihilation_eu": float64(80),
		"motd":            "welcome",
	}

	metrics := ExtractMetrics(raw)

	if len(metrics) != 2 {
		t.Fatalf("Expected 2 metrics, got %d: %v", len(metrics), metrics)
	}
	if metrics["annihilation_us"] != 120 {
		t.Errorf("Expected annihilation_us=120, got %v", metrics["annihilation_us"])
	}
	if _, ok := metrics["motd"]; ok {
		t.Error("Non-numeric field should not become a metric")
	}
	if _, ok := metrics["timestamp"]; ok {
		t.Error("timestamp must never become a metric")
	}
}

func TestExtractMetrics_NestedCountsEra(t *testing.T) {
	raw := map[string]interface{}{
		"timestamp": "2024-06-01T12:00:00Z",
		"counts": map[string]interface{}{
			"annihilation": float64(200),
			"lobby":        float64(35),
			"label":        "ignored",
		},
	}

	metrics := ExtractMetrics(raw)

	if len(metrics) != 2 {
		t.Fatalf("Expected 2 metrics, got %d: %v", len(metrics), metrics)
	}
	if metrics["annihilation"] != 200 {
		t.Errorf("Expected annihilation=200, got %v", metrics["annihilation"])
	}
	if metrics["lobby"] != 35 {
		t.Errorf("Expected lobby=35, got %v", metrics["lobby"])
	}
}

func TestExtractMetrics_MixedEras(t *testing.T) {
	// One schema must never rule out the other.
	raw := map[string]interface{}{
		"timestamp": "2024-06-01T12:00:00Z",
		"total":     float64(250),
		"counts": map[string]interface{}{
			"annihilation": float64(200),
		},
	}

	metrics := ExtractMetrics(raw)

	if metrics["total"] != 250 || metrics["annihilation"] != 200 {
		t.Errorf("Expected both flat and nested metrics, got %v", metrics)
	}
}

func TestExtractMetrics_CountFallback(t *testing.T) {
	raw := map[string]interface{}{
		"timestamp": "2024-01-01T12:00:00Z",
		"count":     float64(42),
		"name":      "only-string-fields-otherwise",
	}

	metrics := ExtractMetrics(raw)

	// count is itself numeric, so the flat pass already picks it up
	if len(metrics) != 1 || metrics["count"] != 42 {
		t.Errorf("Expected only count=42, got %v", metrics)
	}
}

func TestParseLine_Valid(t *testing.T) {
	line := []byte(`{"timestamp":"2024-01-15T10:30:00.000Z","annihilation":150}`)

	sample, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if sample.DayKey() != DayKey(sample.Timestamp) {
		t.Error("DayKey mismatch")
	}
	if sample.Metrics["annihilation"] != 150 {
		t.Errorf("Expected annihilation=150, got %v", sample.Metrics)
	}
}

func TestParseLine_Malformed(t *testing.T) {
	cases := []string{
		`not json at all`,
		`{"annihilation":150}`,
		`{"timestamp":"yesterday","annihilation":150}`,
		`{"timestamp":12345,"annihilation":150}`,
	}
	for _, c := range cases {
		if _, err := ParseLine([]byte(c)); err == nil {
			t.Errorf("Expected error for line %q", c)
		}
	}
}

func TestSampleMarshal_RoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	sample := Sample{
		Timestamp: ts,
		Metrics:   map[string]float64{"annihilation": 150, "lobby": 12},
	}

	data, err := json.Marshal(sample)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	// timestamp comes first, metric keys sorted
	if !strings.HasPrefix(string(data), `{"timestamp":`) {
		t.Errorf("Expected timestamp first, got %s", data)
	}
	if strings.Index(string(data), `"annihilation"`) > strings.Index(string(data), `"lobby"`) {
		t.Errorf("Expected sorted metric keys, got %s", data)
	}

	parsed, err := ParseLine(data)
	if err != nil {
		t.Fatalf("ParseLine failed on own output: %v", err)
	}
	if !parsed.Timestamp.Equal(ts) {
		t.Errorf("Timestamp round trip mismatch: %v != %v", parsed.Timestamp, ts)
	}
	if parsed.Metrics["annihilation"] != 150 || parsed.Metrics["lobby"] != 12 {
		t.Errorf("Metric round trip mismatch: %v", parsed.Metrics)
	}
}
