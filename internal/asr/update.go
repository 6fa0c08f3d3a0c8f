package asr

import (
	"fmt"
	"time"
)

// Update is an immutable, JSON-serializable message delivered to the client:
// either a TranscriptUpdate or a MetricsUpdate. Transient updates may be
// dropped on queue overflow; final transcripts and metrics may not.
type Update interface {
	// Transient reports whether the update is a disposable UI hint
	Transient() bool
}

// WordInfo carries word-level timing and confidence from the recognizer
type WordInfo struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Conf  float64 `json:"conf"`
}

// TranscriptUpdate is a partial or final transcription result.
// The JSON layout is part of the wire contract with streaming clients.
type TranscriptUpdate struct {
	Text       string     `json:"text"`
	WordsInfo  []WordInfo `json:"words_info"`
	IsFinal    bool       `json:"is_final"`
	Elapsed    string     `json:"elapsed"`
	Partial    string     `json:"partial"`
	Processing *bool      `json:"processing,omitempty"`
}

func (u TranscriptUpdate) Transient() bool { return !u.IsFinal }

// MetricsUpdate is the terminal per-session report of resource and audio
// quality statistics. Expired marks housekeeper eviction.
type MetricsUpdate struct {
	Type          string   `json:"type"`
	CPUAvg        float64  `json:"cpu_avg"`
	MemoryAvg     float64  `json:"memory_avg"`
	PeakMemory    float64  `json:"peak_memory"`
	AvgAmplitude  *float64 `json:"avg_amplitude,omitempty"`
	PeakAmplitude *float64 `json:"peak_amplitude,omitempty"`
	Expired       bool     `json:"expired,omitempty"`
}

func (u MetricsUpdate) Transient() bool { return false }

// NewMetricsUpdate builds a MetricsUpdate with the fixed type tag
func NewMetricsUpdate() MetricsUpdate {
	return MetricsUpdate{Type: "metrics"}
}

// FormatElapsed renders a duration as MM:SS for transcript updates
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// boolPtr is used for the optional processing flag
func boolPtr(b bool) *bool { return &b }
