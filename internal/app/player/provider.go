package player

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// FrameDuration is the playback length of one frame.
	FrameDuration = 20 * time.Millisecond
	// DefaultSampleRate is the transcoder output rate unless configured otherwise.
	DefaultSampleRate = 48000
	// BytesPerSampleFrame is one stereo s16be sample frame.
	BytesPerSampleFrame = 4
	// FrameSize is one 20ms frame at DefaultSampleRate.
	FrameSize = DefaultSampleRate / 50 * BytesPerSampleFrame
)

// FrameSizeFor returns the size of one 20ms frame at the given sample rate.
func FrameSizeFor(sampleRate int) int {
	return sampleRate * int(FrameDuration/time.Millisecond) / 1000 * BytesPerSampleFrame
}

// Provider pulls fixed-size frames from the attached decoder.
// One provider serves a tenant for its whole lifetime; the frame counter is cumulative.
type Provider struct {
	mu        sync.Mutex
	decoder   io.Reader
	frameSize int
	buf       []byte
	ready     bool
	ended     bool
	err       error

	frames atomic.Int64
	gain   atomic.Uint64 // math.Float64bits
}

// NewProvider creates a provider with unity gain. A sampleRate <= 0 uses DefaultSampleRate.
func NewProvider(sampleRate int) *Provider {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	size := FrameSizeFor(sampleRate)
	p := &Provider{frameSize: size, buf: make([]byte, size)}
	p.SetGain(1)
	return p
}

// Attach swaps the decoder and discards any buffered frame.
func (p *Provider) Attach(decoder io.Reader) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.decoder = decoder
	p.ready = false
	p.ended = false
	p.err = nil
}

// Provide makes a frame available, reading one from the decoder when none is buffered.
// It blocks while the decoder blocks. It returns false once the decoder is exhausted;
// Err then reports why.
func (p *Provider) Provide() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ready {
		return true
	}
	if p.ended || p.decoder == nil {
		return false
	}

	n, err := io.ReadFull(p.decoder, p.buf)
	switch {
	case err == nil:
		p.ready = true
	case err == io.ErrUnexpectedEOF:
		// Trailing partial frame: pad with silence and end after it.
		clear(p.buf[n:])
		p.ready = true
		p.ended = true
	case err == io.EOF:
		p.ended = true
	default:
		if n > 0 {
			clear(p.buf[n:])
			p.ready = true
		}
		p.ended = true
		p.err = err
	}
	return p.ready
}

// Err returns the error that ended the decoder, or nil after a clean end of stream.
func (p *Provider) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Frame consumes the buffered frame with gain applied. It returns nil when no frame is buffered.
func (p *Provider) Frame() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		return nil
	}
	p.ready = false

	frame := make([]byte, p.frameSize)
	copy(frame, p.buf)
	applyGain(frame, p.Gain())
	p.frames.Add(1)
	return frame
}

// Frames returns the number of frames consumed so far.
func (p *Provider) Frames() int64 {
	return p.frames.Load()
}

// SampleFrames returns the number of sample frames consumed so far.
func (p *Provider) SampleFrames() int64 {
	return p.Frames() * int64(p.frameSize/BytesPerSampleFrame)
}

// ElapsedMs returns the played time derived from the frame counter.
func (p *Provider) ElapsedMs() int64 {
	return p.Frames() * FrameDuration.Milliseconds()
}

// SetGain sets the linear gain applied to consumed frames.
func (p *Provider) SetGain(g float64) {
	p.gain.Store(math.Float64bits(g))
}

// Gain returns the linear gain.
func (p *Provider) Gain() float64 {
	return math.Float64frombits(p.gain.Load())
}

// applyGain scales big-endian 16-bit samples in place, clipping at the sample limits.
func applyGain(frame []byte, gain float64) {
	if gain == 1 {
		return
	}
	for i := 0; i+1 < len(frame); i += 2 {
		s := float64(int16(binary.BigEndian.Uint16(frame[i:])))
		v := math.Round(s * gain)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.BigEndian.PutUint16(frame[i:], uint16(int16(v)))
	}
}
