//go:build whisper

package asr

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ambientscribe/asr-gateway/internal/modelcache"
	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog"
)

// WhisperEngine owns the process-wide cache of loaded Whisper models and
// mints per-session batch recognizers against them.
type WhisperEngine struct {
	models   *modelcache.Cache[whisper.Model]
	modelDir string
	logger   zerolog.Logger
}

// NewWhisperEngine creates the engine runtime with a bounded model cache
func NewWhisperEngine(modelDir string, maxModels int, logger zerolog.Logger) (*WhisperEngine, error) {
	cache, err := modelcache.New(maxModels,
		func(path string) (whisper.Model, error) {
			logger.Info().Str("path", path).Msg("Loading Whisper model")
			return whisper.New(path)
		},
		func(path string, model whisper.Model) {
			logger.Info().Str("path", path).Msg("Releasing Whisper model")
			_ = model.Close()
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create whisper model cache: %w", err)
	}

	return &WhisperEngine{models: cache, modelDir: modelDir, logger: logger}, nil
}

// NewRecognizer builds a session-scoped recognizer for the requested model size
func (e *WhisperEngine) NewRecognizer(opts LocalWindowOptions) (BatchRecognizer, error) {
	path := filepath.Join(e.modelDir, fmt.Sprintf("ggml-%s.bin", opts.ModelSize))
	if _, err := os.Stat(path); err != nil {
		return nil, &ConfigError{Engine: EngineLocalWindow, Reason: fmt.Sprintf("model size %q not found", opts.ModelSize)}
	}

	model, err := e.models.Get(path)
	if err != nil {
		return nil, &ConfigError{Engine: EngineLocalWindow, Reason: err.Error()}
	}
	return &whisperRecognizer{model: model, language: opts.Language}, nil
}

// Close releases every cached model
func (e *WhisperEngine) Close() {
	e.models.Purge()
}

type whisperRecognizer struct {
	model    whisper.Model
	language string
}

func (r *whisperRecognizer) Transcribe(samples []float32, sampleRate int) (string, error) {
	ctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create whisper context: %w", err)
	}
	if r.language != "" {
		if err := ctx.SetLanguage(r.language); err != nil {
			return "", fmt.Errorf("set whisper language: %w", err)
		}
	}

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper inference: %w", err)
	}

	var transcript strings.Builder
	for {
		segment, err := ctx.NextSegment()
		if err != nil {
			break
		}
		transcript.WriteString(segment.Text)
	}
	return strings.TrimSpace(transcript.String()), nil
}

// Close is a no-op; the model is owned by the engine cache
func (r *whisperRecognizer) Close() error {
	return nil
}
