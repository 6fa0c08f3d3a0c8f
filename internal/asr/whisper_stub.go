//go:build !whisper

package asr

import (
	"fmt"

	"github.com/rs/zerolog"
)

// WhisperEngine stub used when the cgo whisper.cpp bindings are not compiled in
type WhisperEngine struct{}

// NewWhisperEngine creates a stub engine runtime
func NewWhisperEngine(modelDir string, maxModels int, logger zerolog.Logger) (*WhisperEngine, error) {
	return &WhisperEngine{}, nil
}

// NewRecognizer always fails in the stub build
func (e *WhisperEngine) NewRecognizer(opts LocalWindowOptions) (BatchRecognizer, error) {
	return nil, fmt.Errorf("whisper support disabled (build with -tags whisper to enable)")
}

// Close is a no-op in the stub build
func (e *WhisperEngine) Close() {}
