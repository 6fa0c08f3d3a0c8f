package asr

import (
	"encoding/json"
	"strings"
	"testing"
)

// The JSON layout is a contract with deployed clients; key names and
// presence rules must not drift.

func TestTranscriptUpdate_WireFormat(t *testing.T) {
	u := TranscriptUpdate{
		Text:      "hello world",
		WordsInfo: []WordInfo{{Word: "hello", Start: 0.1, End: 0.5, Conf: 0.98}},
		IsFinal:   true,
		Elapsed:   "01:05",
	}
	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	got := string(data)
	for _, key := range []string{`"text"`, `"words_info"`, `"word"`, `"start"`, `"end"`, `"conf"`, `"is_final"`, `"elapsed"`, `"partial"`} {
		if !strings.Contains(got, key) {
			t.Errorf("Expected key %s in %s", key, got)
		}
	}
	if strings.Contains(got, `"processing"`) {
		t.Errorf("Expected processing omitted when unset, got %s", got)
	}

	u.Processing = boolPtr(false)
	data, _ = json.Marshal(u)
	if !strings.Contains(string(data), `"processing":false`) {
		t.Errorf("Expected explicit processing=false serialized, got %s", string(data))
	}
}

func TestMetricsUpdate_WireFormat(t *testing.T) {
	m := NewMetricsUpdate()
	m.CPUAvg = 12.5
	m.MemoryAvg = 30
	m.PeakMemory = 42

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	got := string(data)

	if !strings.Contains(got, `"type":"metrics"`) {
		t.Errorf("Expected metrics type tag, got %s", got)
	}
	for _, key := range []string{`"cpu_avg"`, `"memory_avg"`, `"peak_memory"`} {
		if !strings.Contains(got, key) {
			t.Errorf("Expected key %s in %s", key, got)
		}
	}
	// No audio processed: amplitude fields absent, expired absent when false
	for _, key := range []string{`"avg_amplitude"`, `"peak_amplitude"`, `"expired"`} {
		if strings.Contains(got, key) {
			t.Errorf("Expected %s omitted, got %s", key, got)
		}
	}

	// A silent session still reports amplitude, as zero
	zero := 0.0
	m.AvgAmplitude = &zero
	m.PeakAmplitude = &zero
	m.Expired = true
	data, _ = json.Marshal(m)
	got = string(data)
	if !strings.Contains(got, `"avg_amplitude":0`) || !strings.Contains(got, `"peak_amplitude":0`) {
		t.Errorf("Expected zero amplitudes serialized, got %s", got)
	}
	if !strings.Contains(got, `"expired":true`) {
		t.Errorf("Expected expired flag serialized, got %s", got)
	}
}

func TestUpdate_TransienceClassification(t *testing.T) {
	if (TranscriptUpdate{IsFinal: true}).Transient() {
		t.Error("Final transcript must not be transient")
	}
	if !(TranscriptUpdate{IsFinal: false}).Transient() {
		t.Error("Partial transcript must be transient")
	}
	if NewMetricsUpdate().Transient() {
		t.Error("Metrics update must not be transient")
	}
}
