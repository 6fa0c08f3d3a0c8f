package audio

import (
	"fmt"
	"math"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const maxSampleValue = 32768.0

// DecodePCM16 converts raw bytes to 16-bit signed samples (little-endian)
func DecodePCM16(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples), got %d bytes", len(data))
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples, nil
}

// ToFloat32 converts raw 16-bit PCM bytes to normalized float32 samples in [-1, 1]
func ToFloat32(data []byte) ([]float32, error) {
	samples, err := DecodePCM16(data)
	if err != nil {
		return nil, err
	}

	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / maxSampleValue
	}
	return out, nil
}

// ChunkStats returns the normalized RMS loudness and peak sample amplitude of a
// raw 16-bit PCM chunk. Both values are in [0, 1]. Odd-length or empty chunks
// yield zeros rather than an error; quality sampling must never disrupt a session.
func ChunkStats(data []byte) (rms, peak float64) {
	samples, err := DecodePCM16(data)
	if err != nil || len(samples) == 0 {
		return 0, 0
	}

	var sumSquares float64
	var maxAbs float64
	for _, s := range samples {
		v := float64(s)
		sumSquares += v * v
		if a := math.Abs(v); a > maxAbs {
			maxAbs = a
		}
	}

	rms = math.Sqrt(sumSquares/float64(len(samples))) / maxSampleValue
	peak = maxAbs / maxSampleValue
	return rms, peak
}

// writeSeekBuffer is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch the RIFF header after the data chunk is written.
type writeSeekBuffer struct {
	buf []byte
	pos int
}

func (w *writeSeekBuffer) Write(p []byte) (int, error) {
	if need := w.pos + len(p); need > len(w.buf) {
		grown := make([]byte, need)
		copy(grown, w.buf)
		w.buf = grown
	}
	copy(w.buf[w.pos:], p)
	w.pos += len(p)
	return len(p), nil
}

func (w *writeSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case 0:
		next = int(offset)
	case 1:
		next = w.pos + int(offset)
	case 2:
		next = len(w.buf) + int(offset)
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative seek position %d", next)
	}
	w.pos = next
	return int64(next), nil
}

// EncodeWAV wraps raw 16-bit mono PCM in an in-memory WAV container
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	samples, err := DecodePCM16(pcm)
	if err != nil {
		return nil, err
	}

	buffer := &gaudio.IntBuffer{
		Format: &gaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   make([]int, len(samples)),
	}
	for i, s := range samples {
		buffer.Data[i] = int(s)
	}

	out := &writeSeekBuffer{}
	enc := wav.NewEncoder(out, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return out.buf, nil
}
