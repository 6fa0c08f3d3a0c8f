package asr

import "time"

// Engine keys accepted by the factory
const (
	EngineLocalStream  = "local_stream"
	EngineLocalWindow  = "local_window"
	EngineRemoteHTTP   = "remote_http"
	EngineRemoteStream = "remote_stream"
)

// Clock supplies wall-clock time; injectable for tests
type Clock func() time.Time

// Handler converts raw PCM chunks into updates on the queue supplied at
// construction. A handler is owned by exactly one session and is only ever
// called from that session's transport loop; implementations need no locking
// of their own state. Accept may block for the duration of local inference or
// a remote round trip. Transient recognition failures are converted into
// status updates rather than surfaced.
type Handler interface {
	Accept(chunk []byte)
	Close() error
}

// FinalResult is a completed utterance from a streaming recognizer
type FinalResult struct {
	Text  string
	Words []WordInfo
}

// StreamRecognizer is a stateful recognizer that decides internally when a
// chunk completes an utterance (Vosk-style). Implementations own any native
// recognizer object and release it in Close.
type StreamRecognizer interface {
	// AcceptWaveform feeds a chunk and reports whether it finalized an utterance
	AcceptWaveform(chunk []byte) (bool, error)

	// Result returns the finalized utterance with word timings
	Result() (FinalResult, error)

	// PartialResult returns the current in-progress hypothesis
	PartialResult() (string, error)

	Close() error
}

// BatchRecognizer runs full-buffer inference over a window of audio
// (Whisper-style). Samples are normalized float32 mono PCM.
type BatchRecognizer interface {
	Transcribe(samples []float32, sampleRate int) (string, error)
	Close() error
}
