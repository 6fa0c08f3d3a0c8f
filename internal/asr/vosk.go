//go:build vosk

package asr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	vosk "github.com/alphacep/vosk-api/go"
	"github.com/ambientscribe/asr-gateway/internal/modelcache"
	"github.com/rs/zerolog"
)

// VoskEngine owns the process-wide cache of loaded Vosk models and mints
// per-session recognizers against them.
type VoskEngine struct {
	models     *modelcache.Cache[*vosk.VoskModel]
	modelDir   string
	sampleRate float64
	logger     zerolog.Logger
}

// NewVoskEngine creates the engine runtime with a bounded model cache
func NewVoskEngine(modelDir string, maxModels, sampleRate int, logger zerolog.Logger) (*VoskEngine, error) {
	cache, err := modelcache.New(maxModels,
		func(path string) (*vosk.VoskModel, error) {
			logger.Info().Str("path", path).Msg("Loading Vosk model")
			return vosk.NewModel(path)
		},
		func(path string, model *vosk.VoskModel) {
			logger.Info().Str("path", path).Msg("Releasing Vosk model")
			model.Free()
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create vosk model cache: %w", err)
	}

	return &VoskEngine{
		models:     cache,
		modelDir:   modelDir,
		sampleRate: float64(sampleRate),
		logger:     logger,
	}, nil
}

// NewRecognizer builds a session-scoped recognizer for the requested model
func (e *VoskEngine) NewRecognizer(opts LocalStreamOptions) (StreamRecognizer, error) {
	path := opts.Model
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.modelDir, path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &ConfigError{Engine: EngineLocalStream, Reason: fmt.Sprintf("model %q not found", opts.Model)}
	}

	model, err := e.models.Get(path)
	if err != nil {
		return nil, &ConfigError{Engine: EngineLocalStream, Reason: err.Error()}
	}

	rec, err := vosk.NewRecognizer(model, e.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("create vosk recognizer: %w", err)
	}
	rec.SetWords(1)
	return &voskRecognizer{rec: rec}, nil
}

// Unload evicts one model from the cache
func (e *VoskEngine) Unload(model string) {
	path := model
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.modelDir, path)
	}
	e.models.Unload(path)
}

// Close releases every cached model
func (e *VoskEngine) Close() {
	e.models.Purge()
}

type voskRecognizer struct {
	rec *vosk.VoskRecognizer
}

type voskResult struct {
	Text   string     `json:"text"`
	Result []WordInfo `json:"result"`
}

type voskPartial struct {
	Partial string `json:"partial"`
}

func (r *voskRecognizer) AcceptWaveform(chunk []byte) (bool, error) {
	return r.rec.AcceptWaveform(chunk) != 0, nil
}

func (r *voskRecognizer) Result() (FinalResult, error) {
	var parsed voskResult
	if err := json.Unmarshal([]byte(r.rec.Result()), &parsed); err != nil {
		return FinalResult{}, fmt.Errorf("decode vosk result: %w", err)
	}
	words := parsed.Result
	if parsed.Text == "" {
		words = nil
	}
	return FinalResult{Text: parsed.Text, Words: words}, nil
}

func (r *voskRecognizer) PartialResult() (string, error) {
	var parsed voskPartial
	if err := json.Unmarshal([]byte(r.rec.PartialResult()), &parsed); err != nil {
		return "", fmt.Errorf("decode vosk partial: %w", err)
	}
	return parsed.Partial, nil
}

func (r *voskRecognizer) Close() error {
	r.rec.Free()
	return nil
}
