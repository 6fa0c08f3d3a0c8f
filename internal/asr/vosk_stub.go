//go:build !vosk

package asr

import (
	"fmt"

	"github.com/rs/zerolog"
)

// VoskEngine stub used when the cgo Vosk bindings are not compiled in
type VoskEngine struct{}

// NewVoskEngine creates a stub engine runtime
func NewVoskEngine(modelDir string, maxModels, sampleRate int, logger zerolog.Logger) (*VoskEngine, error) {
	return &VoskEngine{}, nil
}

// NewRecognizer always fails in the stub build
func (e *VoskEngine) NewRecognizer(opts LocalStreamOptions) (StreamRecognizer, error) {
	return nil, fmt.Errorf("vosk support disabled (build with -tags vosk to enable)")
}

// Unload is a no-op in the stub build
func (e *VoskEngine) Unload(model string) {}

// Close is a no-op in the stub build
func (e *VoskEngine) Close() {}
