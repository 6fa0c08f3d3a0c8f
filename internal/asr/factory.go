package asr

import (
	"fmt"
	"strings"
	"sync"
)

// Constructor builds a handler for one engine from raw session options.
// Constructors parse the options into their typed struct before touching any
// recognizer resources, so configuration failures never leak native handles.
type Constructor func(opts map[string]string, q *UpdateQueue) (Handler, error)

// Factory maps engine keys to handler constructors. New engines can be
// registered at runtime; registering an existing key fails closed.
type Factory struct {
	mu      sync.RWMutex
	engines map[string]Constructor
}

// NewFactory creates an empty handler factory
func NewFactory() *Factory {
	return &Factory{engines: make(map[string]Constructor)}
}

// Register adds an engine constructor under key
func (f *Factory) Register(key string, ctor Constructor) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return fmt.Errorf("engine key must not be empty")
	}
	if ctor == nil {
		return fmt.Errorf("constructor for engine %q must not be nil", key)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.engines[key]; exists {
		return fmt.Errorf("engine %q already registered", key)
	}
	f.engines[key] = ctor
	return nil
}

// Create instantiates a handler for the requested engine
func (f *Factory) Create(key string, opts map[string]string, q *UpdateQueue) (Handler, error) {
	f.mu.RLock()
	ctor, ok := f.engines[strings.ToLower(strings.TrimSpace(key))]
	f.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, key)
	}
	return ctor(opts, q)
}

// Known reports whether an engine key is registered
func (f *Factory) Known(key string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.engines[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// Engines returns the registered engine keys
func (f *Factory) Engines() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	keys := make([]string, 0, len(f.engines))
	for k := range f.engines {
		keys = append(keys, k)
	}
	return keys
}

// LocalStreamOptions configures the streaming (Vosk) engine
type LocalStreamOptions struct {
	Model string // model name or path, resolved under the configured model dir
}

// LocalWindowOptions configures the windowed (Whisper) engine
type LocalWindowOptions struct {
	ModelSize string // tiny, base, small, ...
	Language  string
}

// RemoteHTTPOptions configures the remote REST engine
type RemoteHTTPOptions struct {
	APIKey   string
	Endpoint string
	Language string
}

// RemoteStreamOptions configures the Deepgram streaming engine
type RemoteStreamOptions struct {
	APIKey   string
	Model    string
	Language string
}

// ParseLocalStreamOptions validates raw options for the streaming engine
func ParseLocalStreamOptions(raw map[string]string) (LocalStreamOptions, error) {
	model := strings.TrimSpace(raw["model"])
	if model == "" {
		return LocalStreamOptions{}, &ConfigError{Engine: EngineLocalStream, Reason: "model is required"}
	}
	return LocalStreamOptions{Model: model}, nil
}

// ParseLocalWindowOptions validates raw options for the windowed engine
func ParseLocalWindowOptions(raw map[string]string) (LocalWindowOptions, error) {
	size := strings.TrimSpace(raw["model_size"])
	if size == "" {
		return LocalWindowOptions{}, &ConfigError{Engine: EngineLocalWindow, Reason: "model_size is required"}
	}
	lang := strings.TrimSpace(raw["language"])
	if lang == "" {
		lang = "en"
	}
	return LocalWindowOptions{ModelSize: size, Language: lang}, nil
}

// ParseRemoteHTTPOptions validates raw options for the remote REST engine
func ParseRemoteHTTPOptions(raw map[string]string) (RemoteHTTPOptions, error) {
	apiKey := strings.TrimSpace(raw["api_key"])
	if apiKey == "" {
		return RemoteHTTPOptions{}, &ConfigError{Engine: EngineRemoteHTTP, Reason: "api_key is required"}
	}
	endpoint := strings.TrimSpace(raw["endpoint"])
	if endpoint == "" {
		return RemoteHTTPOptions{}, &ConfigError{Engine: EngineRemoteHTTP, Reason: "endpoint is required"}
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return RemoteHTTPOptions{}, &ConfigError{Engine: EngineRemoteHTTP, Reason: "endpoint must be an http(s) URL"}
	}
	lang := strings.TrimSpace(raw["language"])
	if lang == "" {
		lang = "en-US"
	}
	return RemoteHTTPOptions{APIKey: apiKey, Endpoint: strings.TrimRight(endpoint, "/"), Language: lang}, nil
}

// ParseRemoteStreamOptions validates raw options for the Deepgram engine
func ParseRemoteStreamOptions(raw map[string]string, defaultModel, defaultLanguage string) (RemoteStreamOptions, error) {
	apiKey := strings.TrimSpace(raw["api_key"])
	if apiKey == "" {
		return RemoteStreamOptions{}, &ConfigError{Engine: EngineRemoteStream, Reason: "api_key is required"}
	}
	model := strings.TrimSpace(raw["model"])
	if model == "" {
		model = defaultModel
	}
	lang := strings.TrimSpace(raw["language"])
	if lang == "" {
		lang = defaultLanguage
	}
	return RemoteStreamOptions{APIKey: apiKey, Model: model, Language: lang}, nil
}
