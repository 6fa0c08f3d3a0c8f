package asr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ambientscribe/asr-gateway/internal/audio"
	"github.com/ambientscribe/asr-gateway/internal/observability"
	"github.com/ambientscribe/asr-gateway/internal/resilience"
	"github.com/rs/zerolog"
)

const remoteRecognitionPath = "/speech/recognition/conversation/cognitiveservices/v1"

// RemoteConfig tunes the remote REST handler. Buffering up to ChunkSeconds
// amortizes per-request overhead; MinInterval keeps latency bounded when the
// buffer fills slowly.
type RemoteConfig struct {
	SampleRate   int
	ChunkSeconds int           // dispatch once this much audio is buffered
	MinInterval  time.Duration // or once this long has passed since the last call
	Client       *http.Client
	Breaker      *resilience.CircuitBreaker
}

// remoteResponse is the recognition service's reply envelope
type remoteResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
}

// RemoteHandler buffers PCM and ships it to an HTTP recognition endpoint as an
// in-memory WAV payload. Failures are swallowed at this boundary: the session
// keeps running and the client sees a status message at worst.
type RemoteHandler struct {
	opts   RemoteHTTPOptions
	cfg    RemoteConfig
	queue  *UpdateQueue
	clock  Clock
	logger zerolog.Logger

	start        time.Time
	lastDispatch time.Time
	buf          []byte
	transcript   string
}

// NewRemoteHandler creates a handler for the remote REST engine
func NewRemoteHandler(opts RemoteHTTPOptions, q *UpdateQueue, clock Clock, logger zerolog.Logger, cfg RemoteConfig) *RemoteHandler {
	now := clock()
	return &RemoteHandler{
		opts:         opts,
		cfg:          cfg,
		queue:        q,
		clock:        clock,
		logger:       logger,
		start:        now,
		lastDispatch: now,
	}
}

// Accept buffers the chunk and dispatches when either threshold is crossed
func (h *RemoteHandler) Accept(chunk []byte) {
	h.buf = append(h.buf, chunk...)
	now := h.clock()
	elapsed := FormatElapsed(now.Sub(h.start))

	thresholdBytes := h.cfg.SampleRate * h.cfg.ChunkSeconds * 2
	overThreshold := len(h.buf) >= thresholdBytes
	if !overThreshold && now.Sub(h.lastDispatch) < h.cfg.MinInterval {
		return
	}
	h.lastDispatch = now

	h.queue.Push(TranscriptUpdate{
		Text:       h.transcript,
		WordsInfo:  []WordInfo{},
		IsFinal:    false,
		Elapsed:    elapsed,
		Partial:    "Processing audio...",
		Processing: boolPtr(true),
	})

	payload := h.buf
	started := h.clock()
	text, err := h.dispatch(payload)
	observability.ObserveRecognitionLatency(EngineRemoteHTTP, h.clock().Sub(started))
	if err != nil {
		h.logger.Error().Err(err).Msg("Remote recognition error")
		observability.RecordError("remote_error", EngineRemoteHTTP)
		h.queue.Push(TranscriptUpdate{
			Text:       h.transcript,
			WordsInfo:  []WordInfo{},
			IsFinal:    false,
			Elapsed:    elapsed,
			Partial:    "Remote error: " + truncateError(err),
			Processing: boolPtr(false),
		})
	} else if text != "" {
		h.transcript = strings.TrimSpace(h.transcript + " " + text)
		h.queue.Push(TranscriptUpdate{
			Text:       h.transcript,
			WordsInfo:  []WordInfo{},
			IsFinal:    true,
			Elapsed:    elapsed,
			Partial:    "",
			Processing: boolPtr(false),
		})
	}

	// Sliding-window retention: past the duration threshold keep only the
	// unsent excess, otherwise the whole buffer has been dispatched
	if overThreshold {
		excess := len(h.buf) - thresholdBytes
		h.buf = append(h.buf[:0:0], h.buf[len(h.buf)-excess:]...)
	} else {
		h.buf = nil
	}
}

// dispatch performs the blocking recognition call. A non-success HTTP status
// is logged and yields no text; transport-level failures are returned so the
// caller can surface a status update.
func (h *RemoteHandler) dispatch(pcm []byte) (string, error) {
	wavData, err := audio.EncodeWAV(pcm, h.cfg.SampleRate, 1)
	if err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}

	var text string
	err = h.cfg.Breaker.Call(func() error {
		reqURL := h.opts.Endpoint + remoteRecognitionPath + "?language=" + url.QueryEscape(h.opts.Language)
		req, err := http.NewRequest(http.MethodPost, reqURL, bytes.NewReader(wavData))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("api-key", h.opts.APIKey)
		req.Header.Set("Content-Type", "audio/wav")

		resp, err := h.cfg.Client.Do(req)
		if err != nil {
			return fmt.Errorf("recognition request failed: %w", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode != http.StatusOK {
			// The session continues; the next window gets another chance
			h.logger.Error().
				Int("status", resp.StatusCode).
				Str("body", string(body)).
				Msg("Recognition service returned non-OK status")
			return nil
		}

		var parsed remoteResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("decode recognition response: %w", err)
		}
		if parsed.RecognitionStatus == "Success" {
			text = strings.TrimSpace(parsed.DisplayText)
		}
		return nil
	})
	observability.UpdateCircuitBreakerState(EngineRemoteHTTP, int(h.cfg.Breaker.GetState()))
	return text, err
}

// BufferedBytes returns the current audio buffer size
func (h *RemoteHandler) BufferedBytes() int {
	return len(h.buf)
}

// Close discards buffered audio; there is no remote session to tear down
func (h *RemoteHandler) Close() error {
	h.buf = nil
	return nil
}
