// Package monitor samples process resource usage over the life of a session.
package monitor

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"
)

const bytesPerMB = 1024 * 1024

// processReader abstracts the gopsutil process handle for tests
type processReader interface {
	CPUPercent() (float64, error)
	MemoryRSS() (uint64, error)
}

type gopsutilReader struct {
	proc *process.Process
}

func (r gopsutilReader) CPUPercent() (float64, error) {
	return r.proc.CPUPercent()
}

func (r gopsutilReader) MemoryRSS() (uint64, error) {
	info, err := r.proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}

// Results summarizes a sampling run. Memory figures are megabytes of RSS
// growth over the baseline captured at construction.
type Results struct {
	CPUAvg     float64
	MemoryAvg  float64
	PeakMemory float64
}

// Sampler accumulates CPU and memory readings for one session. Sampling is
// best effort: a failed read is logged at debug and skipped, never surfaced
// to the session.
type Sampler struct {
	mu     sync.Mutex
	reader processReader
	logger zerolog.Logger

	baselineRSS uint64
	cpuSum      float64
	cpuCount    int
	memSum      float64
	memCount    int
	memPeak     float64
}

// NewSampler creates a sampler bound to the current process. The first RSS
// reading becomes the baseline so per-session figures reflect growth, not
// the whole process footprint.
func NewSampler(logger zerolog.Logger) *Sampler {
	s := &Sampler{logger: logger}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Debug().Err(err).Msg("Resource sampling unavailable")
		return s
	}
	s.reader = gopsutilReader{proc: proc}

	if rss, err := s.reader.MemoryRSS(); err == nil {
		s.baselineRSS = rss
	}
	// Prime the CPU counter; the first CPUPercent call always reports zero
	s.reader.CPUPercent()
	return s
}

// newSamplerWithReader is the test seam
func newSamplerWithReader(r processReader, logger zerolog.Logger) *Sampler {
	s := &Sampler{reader: r, logger: logger}
	if rss, err := r.MemoryRSS(); err == nil {
		s.baselineRSS = rss
	}
	return s
}

// Sample records one CPU and memory reading
func (s *Sampler) Sample() {
	if s.reader == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cpu, err := s.reader.CPUPercent(); err == nil {
		s.cpuSum += cpu
		s.cpuCount++
	} else {
		s.logger.Debug().Err(err).Msg("CPU sample failed")
	}

	rss, err := s.reader.MemoryRSS()
	if err != nil {
		s.logger.Debug().Err(err).Msg("Memory sample failed")
		return
	}
	var growth float64
	if rss > s.baselineRSS {
		growth = float64(rss-s.baselineRSS) / bytesPerMB
	}
	s.memSum += growth
	s.memCount++
	if growth > s.memPeak {
		s.memPeak = growth
	}
}

// Results returns the averages and peak over all samples so far. With no
// samples taken every figure is zero.
func (s *Sampler) Results() Results {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r Results
	if s.cpuCount > 0 {
		r.CPUAvg = s.cpuSum / float64(s.cpuCount)
	}
	if s.memCount > 0 {
		r.MemoryAvg = s.memSum / float64(s.memCount)
	}
	r.PeakMemory = s.memPeak
	return r
}
