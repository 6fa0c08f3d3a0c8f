package session

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ambientscribe/asr-gateway/internal/asr"
)

// fakeHandler records chunks and echoes a scripted update per Accept
type fakeHandler struct {
	queue      *asr.UpdateQueue
	chunks     int
	closed     int
	closePanic bool
	update     *asr.TranscriptUpdate
}

func (h *fakeHandler) Accept(chunk []byte) {
	h.chunks++
	if h.update != nil {
		h.queue.Push(*h.update)
	}
}

func (h *fakeHandler) Close() error {
	if h.closePanic {
		panic("recognizer teardown blew up")
	}
	h.closed++
	return nil
}

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// newTestManager registers a single fake engine and returns the handlers it
// hands out so tests can inspect them
func newTestManager(t *testing.T, clock *fakeClock) (*Manager, *[]*fakeHandler) {
	t.Helper()

	handlers := &[]*fakeHandler{}
	factory := asr.NewFactory()
	err := factory.Register("fake", func(opts map[string]string, q *asr.UpdateQueue) (asr.Handler, error) {
		h := &fakeHandler{queue: q}
		if opts["fail"] == "yes" {
			return nil, &asr.ConfigError{Engine: "fake", Reason: "told to fail"}
		}
		*handlers = append(*handlers, h)
		return h, nil
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	m := NewManager(factory, Config{
		QueueCapacity:     16,
		InactivityTimeout: 60 * time.Second,
		SweepInterval:     10 * time.Second,
	}, zerolog.Nop(), clock.Now)
	return m, handlers
}

func pcmChunk(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func sineChunk(n int, amplitude float64) []byte {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*float64(i)/float64(n)))
	}
	return pcmChunk(samples)
}

func TestStartSession_IDFormat(t *testing.T) {
	m, _ := newTestManager(t, newFakeClock())
	defer m.Close()

	id1, err := m.StartSession("fake", nil)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	id2, _ := m.StartSession("fake", nil)

	if !regexp.MustCompile(`^[0-9a-f]{32}$`).MatchString(id1) {
		t.Errorf("Expected 32 hex char id, got %q", id1)
	}
	if id1 == id2 {
		t.Error("Expected distinct session ids")
	}
	if m.ActiveSessions() != 2 {
		t.Errorf("Expected 2 active sessions, got %d", m.ActiveSessions())
	}
}

func TestStartSession_UnknownEngineCreatesNothing(t *testing.T) {
	m, handlers := newTestManager(t, newFakeClock())
	defer m.Close()

	_, err := m.StartSession("nope", nil)
	if !errors.Is(err, asr.ErrUnknownEngine) {
		t.Errorf("Expected ErrUnknownEngine, got %v", err)
	}
	if m.ActiveSessions() != 0 {
		t.Errorf("Expected no sessions, got %d", m.ActiveSessions())
	}
	if len(*handlers) != 0 {
		t.Error("Expected no handler constructed for unknown engine")
	}
}

func TestStartSession_ConstructorFailurePropagates(t *testing.T) {
	m, _ := newTestManager(t, newFakeClock())
	defer m.Close()

	_, err := m.StartSession("fake", map[string]string{"fail": "yes"})
	if !asr.IsConfigError(err) {
		t.Errorf("Expected ConfigError, got %v", err)
	}
	if m.ActiveSessions() != 0 {
		t.Errorf("Expected no sessions after failed start, got %d", m.ActiveSessions())
	}
}

func TestProcessChunk_UnknownSession(t *testing.T) {
	m, _ := newTestManager(t, newFakeClock())
	defer m.Close()

	if err := m.ProcessChunk("deadbeef", make([]byte, 320)); !errors.Is(err, asr.ErrUnknownSession) {
		t.Errorf("Expected ErrUnknownSession, got %v", err)
	}
	if _, err := m.GetUpdates("deadbeef"); !errors.Is(err, asr.ErrUnknownSession) {
		t.Errorf("Expected ErrUnknownSession from GetUpdates, got %v", err)
	}
}

func TestGetUpdates_DrainsFIFOAndIsolatesSessions(t *testing.T) {
	m, handlers := newTestManager(t, newFakeClock())
	defer m.Close()

	id1, _ := m.StartSession("fake", nil)
	id2, _ := m.StartSession("fake", nil)

	(*handlers)[0].update = &asr.TranscriptUpdate{Text: "one", IsFinal: true}
	(*handlers)[1].update = &asr.TranscriptUpdate{Text: "two", IsFinal: true}

	m.ProcessChunk(id1, make([]byte, 320))
	(*handlers)[0].update = &asr.TranscriptUpdate{Text: "one more", IsFinal: true}
	m.ProcessChunk(id1, make([]byte, 320))
	m.ProcessChunk(id2, make([]byte, 320))

	got1, err := m.GetUpdates(id1)
	if err != nil {
		t.Fatalf("GetUpdates failed: %v", err)
	}
	if len(got1) != 2 {
		t.Fatalf("Expected 2 updates for first session, got %d", len(got1))
	}
	if got1[0].(asr.TranscriptUpdate).Text != "one" || got1[1].(asr.TranscriptUpdate).Text != "one more" {
		t.Errorf("Expected FIFO order, got %q then %q",
			got1[0].(asr.TranscriptUpdate).Text, got1[1].(asr.TranscriptUpdate).Text)
	}

	got2, _ := m.GetUpdates(id2)
	if len(got2) != 1 || got2[0].(asr.TranscriptUpdate).Text != "two" {
		t.Errorf("Expected isolated session updates, got %+v", got2)
	}

	// A second drain finds nothing
	if again, _ := m.GetUpdates(id1); len(again) != 0 {
		t.Errorf("Expected empty drain, got %d updates", len(again))
	}
}

func TestEndSession_TerminalMetricsAndIdempotence(t *testing.T) {
	m, handlers := newTestManager(t, newFakeClock())

	id, _ := m.StartSession("fake", nil)
	m.ProcessChunk(id, sineChunk(1600, 1.0))

	final := m.EndSession(id)
	if len(final) == 0 {
		t.Fatal("Expected terminal updates from EndSession")
	}
	metrics, ok := final[len(final)-1].(asr.MetricsUpdate)
	if !ok {
		t.Fatalf("Expected last update to be metrics, got %T", final[len(final)-1])
	}
	if metrics.Type != "metrics" {
		t.Errorf("Expected type tag 'metrics', got %q", metrics.Type)
	}
	if metrics.Expired {
		t.Error("Expected expired=false on explicit end")
	}
	if metrics.PeakAmplitude == nil || math.Abs(*metrics.PeakAmplitude-1.0) > 0.01 {
		t.Errorf("Expected full-scale peak amplitude near 1.0, got %v", metrics.PeakAmplitude)
	}
	if (*handlers)[0].closed != 1 {
		t.Errorf("Expected handler closed once, got %d", (*handlers)[0].closed)
	}

	// Ending again is a quiet no-op
	if again := m.EndSession(id); again != nil {
		t.Errorf("Expected nil from repeated EndSession, got %d updates", len(again))
	}
	if (*handlers)[0].closed != 1 {
		t.Error("Expected handler not closed twice")
	}
	if m.ActiveSessions() != 0 {
		t.Errorf("Expected no sessions left, got %d", m.ActiveSessions())
	}
}

func TestEndSession_SilenceAmplitudeIsZero(t *testing.T) {
	m, _ := newTestManager(t, newFakeClock())

	id, _ := m.StartSession("fake", nil)
	for i := 0; i < 5; i++ {
		m.ProcessChunk(id, make([]byte, 3200))
	}

	final := m.EndSession(id)
	metrics := final[len(final)-1].(asr.MetricsUpdate)
	if metrics.AvgAmplitude == nil || *metrics.AvgAmplitude != 0 {
		t.Errorf("Expected zero average amplitude for silence, got %v", metrics.AvgAmplitude)
	}
	if metrics.PeakAmplitude == nil || *metrics.PeakAmplitude != 0 {
		t.Errorf("Expected zero peak amplitude for silence, got %v", metrics.PeakAmplitude)
	}
}

func TestEndSession_NoAudioOmitsAmplitude(t *testing.T) {
	m, _ := newTestManager(t, newFakeClock())

	id, _ := m.StartSession("fake", nil)
	final := m.EndSession(id)

	metrics := final[len(final)-1].(asr.MetricsUpdate)
	if metrics.AvgAmplitude != nil || metrics.PeakAmplitude != nil {
		t.Error("Expected amplitude omitted when no audio was processed")
	}
}

func TestSweep_EvictsIdleSessionsWithExpiredMetrics(t *testing.T) {
	clock := newFakeClock()
	m, _ := newTestManager(t, clock)

	idleID, _ := m.StartSession("fake", nil)
	busyID, _ := m.StartSession("fake", nil)

	m.mu.Lock()
	idleQueue := m.sessions[idleID].queue
	m.mu.Unlock()

	clock.Advance(45 * time.Second)
	m.ProcessChunk(busyID, make([]byte, 320))
	clock.Advance(30 * time.Second) // idle session now 75s stale, busy one 30s

	m.sweep()

	if m.ActiveSessions() != 1 {
		t.Fatalf("Expected 1 session after sweep, got %d", m.ActiveSessions())
	}
	if _, err := m.GetUpdates(busyID); err != nil {
		t.Errorf("Expected active session to survive the sweep: %v", err)
	}
	if err := m.ProcessChunk(idleID, make([]byte, 320)); !errors.Is(err, asr.ErrUnknownSession) {
		t.Errorf("Expected evicted session unknown, got %v", err)
	}

	updates := idleQueue.Drain()
	if len(updates) == 0 {
		t.Fatal("Expected terminal metrics in evicted session queue")
	}
	metrics, ok := updates[len(updates)-1].(asr.MetricsUpdate)
	if !ok || !metrics.Expired {
		t.Errorf("Expected expired metrics update, got %+v", updates[len(updates)-1])
	}
}

func TestSweep_PanicInOneFinalizeDoesNotStopOthers(t *testing.T) {
	clock := newFakeClock()
	m, handlers := newTestManager(t, clock)

	m.StartSession("fake", nil)
	m.StartSession("fake", nil)
	(*handlers)[0].closePanic = true

	clock.Advance(2 * time.Minute)
	m.sweep()

	if m.ActiveSessions() != 0 {
		t.Errorf("Expected all idle sessions evicted despite panic, got %d", m.ActiveSessions())
	}
	if (*handlers)[1].closed != 1 {
		t.Error("Expected second session finalized after first panicked")
	}
}

// slowHandler blocks inside Accept until released, mutating unguarded state
// on both sides of the block so the race detector sees any concurrent Close
type slowHandler struct {
	entered chan struct{}
	release chan struct{}
	state   int
	closed  int
}

func (h *slowHandler) Accept(chunk []byte) {
	h.state++
	h.entered <- struct{}{}
	<-h.release
	h.state++
}

func (h *slowHandler) Close() error {
	h.state++
	h.closed++
	return nil
}

func TestSweep_WaitsForInFlightChunk(t *testing.T) {
	clock := newFakeClock()
	handler := &slowHandler{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	factory := asr.NewFactory()
	factory.Register("slow", func(opts map[string]string, q *asr.UpdateQueue) (asr.Handler, error) {
		return handler, nil
	})
	m := NewManager(factory, Config{InactivityTimeout: 60 * time.Second}, zerolog.Nop(), clock.Now)

	id, err := m.StartSession("slow", nil)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	chunkDone := make(chan struct{})
	go func() {
		m.ProcessChunk(id, make([]byte, 320))
		close(chunkDone)
	}()
	<-handler.entered

	// The chunk is blocked inside Accept longer than the inactivity timeout
	clock.Advance(2 * time.Minute)

	sweepDone := make(chan struct{})
	go func() {
		m.sweep()
		close(sweepDone)
	}()

	// Eviction has removed the session but must not close the handler yet
	select {
	case <-sweepDone:
		t.Fatal("Sweep finalized the session while a chunk was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(handler.release)
	<-chunkDone
	<-sweepDone

	if handler.closed != 1 {
		t.Errorf("Expected handler closed once after chunk returned, got %d", handler.closed)
	}
	if err := m.ProcessChunk(id, make([]byte, 320)); !errors.Is(err, asr.ErrUnknownSession) {
		t.Errorf("Expected evicted session unknown, got %v", err)
	}
}

func TestEndSession_RejectsChunkAfterFinalize(t *testing.T) {
	m, handlers := newTestManager(t, newFakeClock())

	id, _ := m.StartSession("fake", nil)
	m.EndSession(id)

	if err := m.ProcessChunk(id, make([]byte, 320)); !errors.Is(err, asr.ErrUnknownSession) {
		t.Errorf("Expected ErrUnknownSession after end, got %v", err)
	}
	if (*handlers)[0].chunks != 0 {
		t.Errorf("Expected no chunks delivered after finalize, got %d", (*handlers)[0].chunks)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	factory := asr.NewFactory()
	m := NewManager(factory, Config{SweepInterval: 5 * time.Millisecond}, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	m.Run(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Housekeeper did not stop on context cancel")
	}
}

func TestClose_FinalizesRemainingSessions(t *testing.T) {
	m, handlers := newTestManager(t, newFakeClock())

	m.StartSession("fake", nil)
	m.StartSession("fake", nil)
	m.Close()

	if m.ActiveSessions() != 0 {
		t.Errorf("Expected no sessions after Close, got %d", m.ActiveSessions())
	}
	for i, h := range *handlers {
		if h.closed != 1 {
			t.Errorf("Expected handler %d closed, got %d", i, h.closed)
		}
	}
}
