package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the ASR gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Audio format expected on the wire: raw 16-bit little-endian mono PCM
	SampleRate int `envconfig:"SAMPLE_RATE" default:"16000"`

	// Session management
	QueueCapacity     int `envconfig:"QUEUE_CAPACITY" default:"256"`    // Pending updates per session
	InactivityTimeout int `envconfig:"INACTIVITY_TIMEOUT" default:"60"` // Seconds before idle eviction
	SweepInterval     int `envconfig:"SWEEP_INTERVAL" default:"10"`     // Seconds between housekeeper runs

	// Vosk streaming engine
	VoskModelDir  string `envconfig:"VOSK_MODEL_DIR" default:"./models/vosk"`
	VoskMaxModels int    `envconfig:"VOSK_MAX_MODELS" default:"4"` // Cached models before eviction

	// Whisper windowed engine
	WhisperModelDir  string `envconfig:"WHISPER_MODEL_DIR" default:"./models/whisper"`
	WhisperMaxModels int    `envconfig:"WHISPER_MAX_MODELS" default:"2"`
	WindowInterval   int    `envconfig:"WINDOW_INTERVAL" default:"3"` // Seconds between inference ticks
	WindowSeconds    int    `envconfig:"WINDOW_SECONDS" default:"10"` // Sliding window of retained audio

	// Remote HTTP engine
	RemoteChunkSeconds int `envconfig:"REMOTE_CHUNK_SECONDS" default:"45"` // Buffered audio per dispatch
	RemoteMinInterval  int `envconfig:"REMOTE_MIN_INTERVAL" default:"3"`   // Seconds between dispatches
	RemoteTimeout      int `envconfig:"REMOTE_TIMEOUT" default:"60"`       // HTTP client timeout in seconds

	// Deepgram streaming engine defaults (api key always arrives via session options)
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// Resilience configuration for remote recognizers
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("SAMPLE_RATE must be positive, got %d", cfg.SampleRate)
	}
	if cfg.QueueCapacity <= 0 {
		return nil, fmt.Errorf("QUEUE_CAPACITY must be positive, got %d", cfg.QueueCapacity)
	}

	return &cfg, nil
}

// InactivityTimeoutDuration returns the idle eviction threshold as a Duration
func (c *Config) InactivityTimeoutDuration() time.Duration {
	return time.Duration(c.InactivityTimeout) * time.Second
}

// SweepIntervalDuration returns the housekeeper interval as a Duration
func (c *Config) SweepIntervalDuration() time.Duration {
	return time.Duration(c.SweepInterval) * time.Second
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
