package asr

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/ambientscribe/asr-gateway/internal/observability"
)

// deepgramCallback implements the SDK's LiveMessageCallback interface,
// embedding the default handler and overriding only what we need
type deepgramCallback struct {
	*websocketv1api.DefaultCallbackHandler
	onMessage func(*msginterfaces.MessageResponse)
	onError   func(*msginterfaces.ErrorResponse) error
}

func (c *deepgramCallback) Message(msg *msginterfaces.MessageResponse) error {
	c.onMessage(msg)
	return nil
}

func (c *deepgramCallback) Error(errResp *msginterfaces.ErrorResponse) error {
	if c.onError != nil {
		return c.onError(errResp)
	}
	return c.DefaultCallbackHandler.Error(errResp)
}

// DeepgramHandler streams PCM to Deepgram's live transcription API. Unlike the
// pull-style engines, results arrive on the SDK's callback goroutine, so they
// are ordered relative to the service's responses rather than to individual
// chunk submissions.
type DeepgramHandler struct {
	client *listenClient.WSCallback
	queue  *UpdateQueue
	clock  Clock
	logger zerolog.Logger
	cancel context.CancelFunc

	start time.Time

	// Shared between the transport goroutine (Accept) and the SDK callback
	// goroutine (handleMessage)
	mu          sync.RWMutex
	transcripts []string
	lastFinal   string
}

// transcript returns the joined running transcript
func (h *DeepgramHandler) transcript() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return strings.Join(h.transcripts, " ")
}

// appendFinal records a final utterance, suppressing repeats of the previous
// one, and returns the joined transcript. ok is false for a duplicate.
func (h *DeepgramHandler) appendFinal(text string) (joined string, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if text == h.lastFinal {
		return "", false
	}
	h.lastFinal = text
	h.transcripts = append(h.transcripts, text)
	return strings.Join(h.transcripts, " "), true
}

// NewDeepgramHandler opens a live transcription connection for one session
func NewDeepgramHandler(opts RemoteStreamOptions, q *UpdateQueue, clock Clock, logger zerolog.Logger, sampleRate int) (*DeepgramHandler, error) {
	ctx, cancel := context.WithCancel(context.Background())

	h := &DeepgramHandler{
		queue:  q,
		clock:  clock,
		logger: logger,
		cancel: cancel,
		start:  clock(),
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          opts.Model,
		Language:       opts.Language,
		Punctuate:      true,
		InterimResults: true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     sampleRate,
	}

	callback := &deepgramCallback{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		onMessage:              h.handleMessage,
		onError: func(errResp *msginterfaces.ErrorResponse) error {
			h.logger.Error().
				Str("description", errResp.Description).
				Msg("Deepgram stream error")
			observability.RecordError("stream_error", EngineRemoteStream)
			h.queue.Push(TranscriptUpdate{
				Text:      h.transcript(),
				WordsInfo: []WordInfo{},
				IsFinal:   false,
				Elapsed:   FormatElapsed(h.clock().Sub(h.start)),
				Partial:   "Stream error: " + errResp.Description,
			})
			return nil
		},
	}

	client, err := listenClient.NewWSUsingCallback(ctx, opts.APIKey, nil, tOptions, callback)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create deepgram client: %w", err)
	}
	h.client = client
	return h, nil
}

// handleMessage converts one SDK result into a transcript update
func (h *DeepgramHandler) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return
	}

	alt := msg.Channel.Alternatives[0]
	text := strings.TrimSpace(alt.Transcript)
	if text == "" {
		return
	}

	elapsed := FormatElapsed(h.clock().Sub(h.start))

	if msg.IsFinal {
		// The service repeats finals across result windows; suppress duplicates
		joined, ok := h.appendFinal(text)
		if !ok {
			return
		}

		words := make([]WordInfo, 0, len(alt.Words))
		for _, w := range alt.Words {
			words = append(words, WordInfo{
				Word:  w.Word,
				Start: w.Start,
				End:   w.End,
				Conf:  w.Confidence,
			})
		}
		h.queue.Push(TranscriptUpdate{
			Text:      joined,
			WordsInfo: words,
			IsFinal:   true,
			Elapsed:   elapsed,
			Partial:   "",
		})
		return
	}

	h.queue.Push(TranscriptUpdate{
		Text:      h.transcript(),
		WordsInfo: []WordInfo{},
		IsFinal:   false,
		Elapsed:   elapsed,
		Partial:   text,
	})
}

// Accept forwards the chunk to the live connection
func (h *DeepgramHandler) Accept(chunk []byte) {
	if _, err := h.client.Write(chunk); err != nil {
		h.logger.Error().Err(err).Msg("Failed to send audio to Deepgram")
		observability.RecordError("send_error", EngineRemoteStream)
		h.queue.Push(TranscriptUpdate{
			Text:      h.transcript(),
			WordsInfo: []WordInfo{},
			IsFinal:   false,
			Elapsed:   FormatElapsed(h.clock().Sub(h.start)),
			Partial:   "Stream error: " + truncateError(err),
		})
	}
}

// Close finishes the live connection and cancels the callback context
func (h *DeepgramHandler) Close() error {
	h.client.Finish()
	h.cancel()
	return nil
}
