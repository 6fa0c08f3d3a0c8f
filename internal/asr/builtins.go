package asr

import (
	"net/http"
	"time"

	"github.com/ambientscribe/asr-gateway/internal/resilience"
	"github.com/rs/zerolog"
)

// Runtime carries the shared services the built-in engine constructors need.
// Everything session-scoped (queue, recognizer) is created per Create call;
// everything here is process-wide.
type Runtime struct {
	Logger     zerolog.Logger
	Clock      Clock
	SampleRate int

	Vosk    *VoskEngine
	Whisper *WhisperEngine

	WindowInterval time.Duration
	WindowSeconds  int

	HTTPClient          *http.Client
	RemoteChunkSeconds  int
	RemoteMinInterval   time.Duration
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration

	DeepgramModel    string
	DeepgramLanguage string
}

// RegisterBuiltins wires the four built-in engines into the factory
func RegisterBuiltins(f *Factory, rt Runtime) error {
	if rt.Clock == nil {
		rt.Clock = time.Now
	}
	if rt.HTTPClient == nil {
		rt.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}

	if err := f.Register(EngineLocalStream, func(raw map[string]string, q *UpdateQueue) (Handler, error) {
		opts, err := ParseLocalStreamOptions(raw)
		if err != nil {
			return nil, err
		}
		rec, err := rt.Vosk.NewRecognizer(opts)
		if err != nil {
			return nil, err
		}
		return NewStreamHandler(rec, q, rt.Clock, rt.Logger), nil
	}); err != nil {
		return err
	}

	if err := f.Register(EngineLocalWindow, func(raw map[string]string, q *UpdateQueue) (Handler, error) {
		opts, err := ParseLocalWindowOptions(raw)
		if err != nil {
			return nil, err
		}
		rec, err := rt.Whisper.NewRecognizer(opts)
		if err != nil {
			return nil, err
		}
		return NewWindowHandler(rec, q, rt.Clock, rt.Logger, WindowConfig{
			SampleRate:    rt.SampleRate,
			Interval:      rt.WindowInterval,
			WindowSeconds: rt.WindowSeconds,
		}), nil
	}); err != nil {
		return err
	}

	if err := f.Register(EngineRemoteHTTP, func(raw map[string]string, q *UpdateQueue) (Handler, error) {
		opts, err := ParseRemoteHTTPOptions(raw)
		if err != nil {
			return nil, err
		}
		return NewRemoteHandler(opts, q, rt.Clock, rt.Logger, RemoteConfig{
			SampleRate:   rt.SampleRate,
			ChunkSeconds: rt.RemoteChunkSeconds,
			MinInterval:  rt.RemoteMinInterval,
			Client:       rt.HTTPClient,
			Breaker:      resilience.NewCircuitBreaker(EngineRemoteHTTP, rt.BreakerMaxFailures, rt.BreakerResetTimeout),
		}), nil
	}); err != nil {
		return err
	}

	return f.Register(EngineRemoteStream, func(raw map[string]string, q *UpdateQueue) (Handler, error) {
		opts, err := ParseRemoteStreamOptions(raw, rt.DeepgramModel, rt.DeepgramLanguage)
		if err != nil {
			return nil, err
		}
		return NewDeepgramHandler(opts, q, rt.Clock, rt.Logger, rt.SampleRate)
	})
}
