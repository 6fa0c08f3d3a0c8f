package asr

import (
	"time"

	"github.com/ambientscribe/asr-gateway/internal/audio"
	"github.com/ambientscribe/asr-gateway/internal/observability"
	"github.com/rs/zerolog"
)

// WindowConfig tunes the windowed inference handler. A shorter interval lowers
// perceived latency but spends more compute; a longer window improves context
// at the cost of per-tick inference time.
type WindowConfig struct {
	SampleRate    int
	Interval      time.Duration // minimum time between inference runs
	WindowSeconds int           // retained audio after each run
}

// WindowHandler buffers audio and runs full-buffer inference at most once per
// interval, replacing the running transcript with each successful result.
// Between ticks it emits lightweight waiting updates so the client sees
// liveness without inference cost.
type WindowHandler struct {
	rec    BatchRecognizer
	queue  *UpdateQueue
	clock  Clock
	logger zerolog.Logger
	cfg    WindowConfig

	start      time.Time
	lastTick   time.Time
	buf        []byte
	transcript string
}

// NewWindowHandler wraps a batch recognizer in the handler contract
func NewWindowHandler(rec BatchRecognizer, q *UpdateQueue, clock Clock, logger zerolog.Logger, cfg WindowConfig) *WindowHandler {
	now := clock()
	return &WindowHandler{
		rec:      rec,
		queue:    q,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
		start:    now,
		lastTick: now,
	}
}

// Accept buffers the chunk and runs inference when the interval has elapsed
func (h *WindowHandler) Accept(chunk []byte) {
	h.buf = append(h.buf, chunk...)
	now := h.clock()
	elapsed := FormatElapsed(now.Sub(h.start))

	if now.Sub(h.lastTick) < h.cfg.Interval {
		// Liveness hint only, no inference between ticks
		waiting := ""
		if h.transcript != "" {
			waiting = "..."
		}
		h.queue.Push(TranscriptUpdate{
			Text:       h.transcript,
			WordsInfo:  []WordInfo{},
			IsFinal:    false,
			Elapsed:    elapsed,
			Partial:    waiting,
			Processing: boolPtr(false),
		})
		return
	}
	h.lastTick = now

	h.queue.Push(TranscriptUpdate{
		Text:       h.transcript,
		WordsInfo:  []WordInfo{},
		IsFinal:    false,
		Elapsed:    elapsed,
		Partial:    "Processing audio...",
		Processing: boolPtr(true),
	})

	samples, err := audio.ToFloat32(h.buf)
	if err == nil {
		var text string
		started := h.clock()
		text, err = h.rec.Transcribe(samples, h.cfg.SampleRate)
		observability.ObserveRecognitionLatency(EngineLocalWindow, h.clock().Sub(started))
		if err == nil && text != "" {
			// Full-window inference re-reads everything retained, so the
			// result replaces the running transcript instead of appending
			h.transcript = text
			h.queue.Push(TranscriptUpdate{
				Text:       h.transcript,
				WordsInfo:  []WordInfo{},
				IsFinal:    true,
				Elapsed:    elapsed,
				Partial:    "",
				Processing: boolPtr(false),
			})
		}
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Windowed inference error")
		observability.RecordError("recognizer_error", EngineLocalWindow)
		h.queue.Push(TranscriptUpdate{
			Text:       h.transcript,
			WordsInfo:  []WordInfo{},
			IsFinal:    false,
			Elapsed:    elapsed,
			Partial:    "Inference error: " + truncateError(err),
			Processing: boolPtr(false),
		})
	}

	h.trim()
}

// trim caps the buffer at the configured sliding window
func (h *WindowHandler) trim() {
	maxBytes := h.cfg.WindowSeconds * h.cfg.SampleRate * 2
	if maxBytes > 0 && len(h.buf) > maxBytes {
		h.buf = append(h.buf[:0:0], h.buf[len(h.buf)-maxBytes:]...)
	}
}

// BufferedBytes returns the current audio buffer size
func (h *WindowHandler) BufferedBytes() int {
	return len(h.buf)
}

// Close releases the underlying recognizer
func (h *WindowHandler) Close() error {
	h.buf = nil
	return h.rec.Close()
}
