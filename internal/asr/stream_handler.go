package asr

import (
	"strings"
	"time"

	"github.com/ambientscribe/asr-gateway/internal/observability"
	"github.com/rs/zerolog"
)

// StreamHandler drives an utterance-based recognizer. The recognizer decides
// internally whether a chunk completes an utterance; finalized text is appended
// to the running transcript with duplicate suppression, in-progress hypotheses
// are surfaced as partial updates.
type StreamHandler struct {
	rec    StreamRecognizer
	queue  *UpdateQueue
	clock  Clock
	logger zerolog.Logger

	start       time.Time
	transcripts []string
	lastFinal   string
}

// NewStreamHandler wraps a streaming recognizer in the handler contract
func NewStreamHandler(rec StreamRecognizer, q *UpdateQueue, clock Clock, logger zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		rec:    rec,
		queue:  q,
		clock:  clock,
		logger: logger,
		start:  clock(),
	}
}

// Accept feeds one PCM chunk into the recognizer
func (h *StreamHandler) Accept(chunk []byte) {
	elapsed := FormatElapsed(h.clock().Sub(h.start))

	started := h.clock()
	finalized, err := h.rec.AcceptWaveform(chunk)
	observability.ObserveRecognitionLatency(EngineLocalStream, h.clock().Sub(started))
	if err != nil {
		h.pushError(err, elapsed)
		return
	}

	if finalized {
		res, err := h.rec.Result()
		if err != nil {
			h.pushError(err, elapsed)
			return
		}
		text := strings.TrimSpace(res.Text)
		if text == "" || text == h.lastFinal {
			// The recognizer repeats finals at utterance boundaries; suppress
			return
		}
		h.lastFinal = text
		h.transcripts = append(h.transcripts, text)
		h.queue.Push(TranscriptUpdate{
			Text:      strings.Join(h.transcripts, " "),
			WordsInfo: res.Words,
			IsFinal:   true,
			Elapsed:   elapsed,
			Partial:   "",
		})
		return
	}

	partial, err := h.rec.PartialResult()
	if err != nil {
		h.pushError(err, elapsed)
		return
	}
	if partial = strings.TrimSpace(partial); partial != "" {
		h.queue.Push(TranscriptUpdate{
			Text:      strings.Join(h.transcripts, " "),
			WordsInfo: []WordInfo{},
			IsFinal:   false,
			Elapsed:   elapsed,
			Partial:   partial,
		})
	}
}

// pushError converts a recognizer failure into a non-fatal status update
func (h *StreamHandler) pushError(err error, elapsed string) {
	h.logger.Error().Err(err).Msg("Streaming recognizer error")
	observability.RecordError("recognizer_error", EngineLocalStream)
	h.queue.Push(TranscriptUpdate{
		Text:      strings.Join(h.transcripts, " "),
		WordsInfo: []WordInfo{},
		IsFinal:   false,
		Elapsed:   elapsed,
		Partial:   "Recognizer error: " + truncateError(err),
	})
}

// Close releases the underlying recognizer
func (h *StreamHandler) Close() error {
	return h.rec.Close()
}
