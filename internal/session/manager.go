// Package session multiplexes concurrent transcription sessions over a shared
// engine factory. The manager owns session lifecycle: creation, chunk routing,
// update delivery, and eviction of sessions the client walked away from.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ambientscribe/asr-gateway/internal/asr"
	"github.com/ambientscribe/asr-gateway/internal/audio"
	"github.com/ambientscribe/asr-gateway/internal/monitor"
	"github.com/ambientscribe/asr-gateway/internal/observability"
)

// Config tunes the session manager
type Config struct {
	QueueCapacity     int
	InactivityTimeout time.Duration
	SweepInterval     time.Duration
}

// session is the per-client state the manager tracks. The manager mutex guards
// the bookkeeping fields; handler calls happen outside the lock because they
// may block on inference or network round trips.
type session struct {
	id      string
	engine  string
	handler asr.Handler
	queue   *asr.UpdateQueue
	sampler *monitor.Sampler
	logger  zerolog.Logger

	// handlerMu serializes Accept and Close on the handler. The transport
	// goroutine and the housekeeper can race to finalize a session whose
	// chunk is still in flight; closing a cgo recognizer under a running
	// Accept would free native memory in use.
	handlerMu sync.Mutex
	ended     bool

	created      time.Time
	lastActivity time.Time

	// audio quality accumulators, normalized to [0,1]
	rmsSum   float64
	rmsCount int
	peakAmp  float64
}

// accept routes one chunk into the handler unless the session has been
// finalized. It reports whether the chunk was delivered.
func (s *session) accept(chunk []byte) bool {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	if s.ended {
		return false
	}
	s.handler.Accept(chunk)
	return true
}

// closeHandler shuts the handler down exactly once, waiting out any chunk
// still inside accept
func (s *session) closeHandler() error {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	if s.ended {
		return nil
	}
	s.ended = true
	return s.handler.Close()
}

// Manager owns all live sessions. All exported methods are safe for
// concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session

	factory *asr.Factory
	logger  zerolog.Logger
	clock   asr.Clock
	cfg     Config

	wg sync.WaitGroup
}

// NewManager creates a manager over the given engine factory. The clock is
// injectable for tests; pass nil for wall-clock time.
func NewManager(factory *asr.Factory, cfg Config, logger zerolog.Logger, clock asr.Clock) *Manager {
	if clock == nil {
		clock = time.Now
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = 60 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Second
	}
	return &Manager{
		sessions: make(map[string]*session),
		factory:  factory,
		logger:   logger,
		clock:    clock,
		cfg:      cfg,
	}
}

// StartSession creates a session for the requested engine and returns its id.
// The engine key is validated before any recognizer resources are touched.
func (m *Manager) StartSession(engine string, options map[string]string) (string, error) {
	if !m.factory.Known(engine) {
		m.logger.Warn().Str("engine", engine).Msg("Rejected session for unknown engine")
		return "", asr.ErrUnknownEngine
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	logger := observability.WithSession(id, engine)
	queue := asr.NewUpdateQueue(m.cfg.QueueCapacity, logger)

	handler, err := m.factory.Create(engine, options, queue)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to construct engine handler")
		return "", err
	}

	now := m.clock()
	s := &session{
		id:           id,
		engine:       engine,
		handler:      handler,
		queue:        queue,
		sampler:      monitor.NewSampler(logger),
		logger:       logger,
		created:      now,
		lastActivity: now,
	}

	m.mu.Lock()
	m.sessions[id] = s
	active := len(m.sessions)
	m.mu.Unlock()

	observability.RecordSessionStart(engine)
	logger.Info().Int("active_sessions", active).Msg("Session started")
	return id, nil
}

// ProcessChunk routes one PCM chunk into the session's engine handler. The
// call is synchronous and may block while the handler runs inference or a
// remote round trip.
func (m *Manager) ProcessChunk(id string, chunk []byte) error {
	rms, peak := audio.ChunkStats(chunk)

	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		s.lastActivity = m.clock()
		if len(chunk) >= 2 && len(chunk)%2 == 0 {
			s.rmsSum += rms
			s.rmsCount++
			if peak > s.peakAmp {
				s.peakAmp = peak
			}
		}
	}
	m.mu.Unlock()

	if !ok {
		return asr.ErrUnknownSession
	}

	s.sampler.Sample()
	observability.RecordChunk(s.engine, len(chunk))
	if !s.accept(chunk) {
		// Finalized between the map lookup and the handler call
		return asr.ErrUnknownSession
	}
	return nil
}

// GetUpdates drains the session's pending updates without blocking
func (m *Manager) GetUpdates(id string) ([]asr.Update, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()

	if !ok {
		return nil, asr.ErrUnknownSession
	}
	return s.queue.Drain(), nil
}

// EndSession finalizes and removes a session, returning the last queue drain
// (terminal metrics included) so the caller can flush it to the client.
// Ending an unknown or already-ended session is a no-op.
func (m *Manager) EndSession(id string) []asr.Update {
	s := m.remove(id)
	if s == nil {
		return nil
	}
	m.finalize(s, false)
	return s.queue.Drain()
}

// remove detaches a session from the map, making EndSession idempotent even
// when the housekeeper and the transport race to finalize
func (m *Manager) remove(id string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	return s
}

// finalize closes the handler and enqueues the terminal metrics update
func (m *Manager) finalize(s *session, expired bool) {
	if err := s.closeHandler(); err != nil {
		s.logger.Error().Err(err).Msg("Engine handler close failed")
	}

	res := s.sampler.Results()
	metrics := asr.NewMetricsUpdate()
	metrics.CPUAvg = res.CPUAvg
	metrics.MemoryAvg = res.MemoryAvg
	metrics.PeakMemory = res.PeakMemory
	metrics.Expired = expired
	if s.rmsCount > 0 {
		avg := s.rmsSum / float64(s.rmsCount)
		peak := s.peakAmp
		metrics.AvgAmplitude = &avg
		metrics.PeakAmplitude = &peak
	}
	if !s.queue.Push(metrics) {
		s.logger.Warn().Msg("Dropped terminal metrics update, queue full")
	}

	observability.RecordSessionEnd(expired)
	s.logger.Info().
		Bool("expired", expired).
		Dur("duration", m.clock().Sub(s.created)).
		Msg("Session ended")
}

// Run sweeps for idle sessions until the context is cancelled. Call it in its
// own goroutine; Wait blocks until the sweep loop has exited.
func (m *Manager) Run(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

// Wait blocks until the housekeeper goroutine has stopped
func (m *Manager) Wait() {
	m.wg.Wait()
}

// sweep evicts sessions idle past the inactivity timeout
func (m *Manager) sweep() {
	cutoff := m.clock().Add(-m.cfg.InactivityTimeout)

	m.mu.Lock()
	var idle []*session
	for id, s := range m.sessions {
		if s.lastActivity.Before(cutoff) {
			delete(m.sessions, id)
			idle = append(idle, s)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.expire(s)
	}
}

// expire finalizes one idle session, isolating panics so a misbehaving engine
// cannot stop the sweep
func (m *Manager) expire(s *session) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Panic finalizing expired session")
			observability.RecordError("finalize_panic", "session")
		}
	}()
	s.logger.Warn().Msg("Session expired after inactivity")
	m.finalize(s, true)
}

// ActiveSessions returns the number of live sessions
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close ends every remaining session. Used on shutdown after the housekeeper
// context is cancelled.
func (m *Manager) Close() {
	m.mu.Lock()
	remaining := make([]*session, 0, len(m.sessions))
	for id, s := range m.sessions {
		delete(m.sessions, id)
		remaining = append(remaining, s)
	}
	m.mu.Unlock()

	for _, s := range remaining {
		m.finalize(s, false)
	}
}
