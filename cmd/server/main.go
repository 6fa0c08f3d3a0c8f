package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ambientscribe/asr-gateway/internal/asr"
	"github.com/ambientscribe/asr-gateway/internal/config"
	"github.com/ambientscribe/asr-gateway/internal/observability"
	"github.com/ambientscribe/asr-gateway/internal/session"
	"github.com/ambientscribe/asr-gateway/internal/transport"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Int("sample_rate", cfg.SampleRate).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("ASR Gateway Service starting")

	// Local engine runtimes with process-wide model caches
	voskEngine, err := asr.NewVoskEngine(cfg.VoskModelDir, cfg.VoskMaxModels, cfg.SampleRate, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize streaming engine runtime")
	}
	defer voskEngine.Close()

	whisperEngine, err := asr.NewWhisperEngine(cfg.WhisperModelDir, cfg.WhisperMaxModels, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize windowed engine runtime")
	}
	defer whisperEngine.Close()

	// Engine factory with the built-in engines registered
	factory := asr.NewFactory()
	err = asr.RegisterBuiltins(factory, asr.Runtime{
		Logger:     logger,
		SampleRate: cfg.SampleRate,

		Vosk:    voskEngine,
		Whisper: whisperEngine,

		WindowInterval: time.Duration(cfg.WindowInterval) * time.Second,
		WindowSeconds:  cfg.WindowSeconds,

		HTTPClient:          &http.Client{Timeout: time.Duration(cfg.RemoteTimeout) * time.Second},
		RemoteChunkSeconds:  cfg.RemoteChunkSeconds,
		RemoteMinInterval:   time.Duration(cfg.RemoteMinInterval) * time.Second,
		BreakerMaxFailures:  cfg.CircuitBreakerMaxFailures,
		BreakerResetTimeout: time.Duration(cfg.CircuitBreakerResetTimeout) * time.Second,

		DeepgramModel:    cfg.DeepgramModel,
		DeepgramLanguage: cfg.DeepgramLanguage,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to register engines")
	}
	logger.Info().Strs("engines", factory.Engines()).Msg("Engines registered")

	// Session manager with the idle-session housekeeper
	manager := session.NewManager(factory, session.Config{
		QueueCapacity:     cfg.QueueCapacity,
		InactivityTimeout: cfg.InactivityTimeoutDuration(),
		SweepInterval:     cfg.SweepIntervalDuration(),
	}, logger, nil)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	manager.Run(sweepCtx)

	// Create HTTP server
	mux := http.NewServeMux()

	// Streaming WebSocket endpoint
	mux.HandleFunc("/ws/stream", transport.HandleStream(manager, logger))

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness: the factory must hold the built-in engines
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"engines": func(ctx context.Context) (bool, error) {
			if len(factory.Engines()) == 0 {
				return false, fmt.Errorf("no engines registered")
			}
			return true, nil
		},
	}))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts. No write timeout: streaming sessions
	// hold their connection open for the duration of a recording.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		ReadTimeout: 0,
		IdleTimeout: 120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws/stream", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the housekeeper and finalize whatever sessions remain
	stopSweep()
	manager.Wait()
	manager.Close()

	logger.Info().Msg("Server exited gracefully")
}
