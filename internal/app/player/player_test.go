package player

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/ourtube/internal/domain/track"
)

// byteStream serves fixed data then EOF.
type byteStream struct {
	*bytes.Reader
	closed bool
}

func (s *byteStream) Close() error {
	s.closed = true
	return nil
}

// blockingStream blocks reads until closed.
type blockingStream struct {
	done chan struct{}
	once sync.Once
}

func newBlockingStream() *blockingStream {
	return &blockingStream{done: make(chan struct{})}
}

func (s *blockingStream) Read([]byte) (int, error) {
	<-s.done
	return 0, io.ErrClosedPipe
}

func (s *blockingStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *blockingStream) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// failingStream returns an error after serving data.
type failingStream struct {
	data []byte
	err  error
}

func (s *failingStream) Read(p []byte) (int, error) {
	if len(s.data) == 0 {
		return 0, s.err
	}
	n := copy(p, s.data)
	s.data = s.data[n:]
	return n, nil
}

func (s *failingStream) Close() error { return nil }

func queued(id string) *track.QueuedTrack {
	return &track.QueuedTrack{
		EntryID:   "entry-" + id,
		Track:     track.Track{ID: id, Name: id, Locator: "https://youtu.be/" + id, Duration: time.Second},
		Submitter: track.Submitter{ID: "alice"},
	}
}

func sourceOf(streams map[string]io.ReadCloser) Source {
	return func(locator string, _ time.Duration) io.ReadCloser {
		return streams[locator]
	}
}

func nextEvent(t *testing.T, p *Player) Event {
	t.Helper()
	select {
	case e, ok := <-p.Events():
		require.True(t, ok, "event channel closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for player event")
		return Event{}
	}
}

func testConfig() Config {
	return Config{FrameInterval: time.Millisecond, DefaultVolume: 100}
}

func TestPlayer_PlaysTrackToEnd(t *testing.T) {
	data := bytes.Repeat([]byte{0x01, 0x02}, FrameSize*3/2)
	stream := &byteStream{Reader: bytes.NewReader(data)}
	var out bytes.Buffer
	sink := NewWriterSink(&out)

	p := New("guild-1", sourceOf(map[string]io.ReadCloser{"https://youtu.be/a": stream}), sink, testConfig())
	defer p.Close()

	qt := queued("a")
	require.True(t, p.StartTrack(qt, false))
	assert.Equal(t, StatePlaying, p.State())

	started := nextEvent(t, p)
	assert.Equal(t, EventTrackStarted, started.Type)
	assert.Same(t, qt, started.Track)

	ended := nextEvent(t, p)
	assert.Equal(t, EventTrackEnded, ended.Type)
	assert.Equal(t, EndFinished, ended.Reason)
	assert.NoError(t, ended.Err)

	assert.Equal(t, data, out.Bytes())
	assert.Equal(t, int64(60), p.ElapsedMs())
	assert.True(t, stream.closed)
	assert.Equal(t, StateIdle, p.State())
}

func TestPlayer_EventsSurviveSlowReader(t *testing.T) {
	streams := map[string]io.ReadCloser{
		"https://youtu.be/a": &byteStream{Reader: bytes.NewReader(make([]byte, FrameSize))},
		"https://youtu.be/b": &byteStream{Reader: bytes.NewReader(make([]byte, FrameSize))},
	}
	cfg := testConfig()
	cfg.EventBuffer = 1
	p := New("g", sourceOf(streams), DiscardSink{}, cfg)
	defer p.Close()

	require.True(t, p.StartTrack(queued("a"), false))
	require.Eventually(t, func() bool { return p.State() == StateIdle }, 2*time.Second, time.Millisecond)
	require.True(t, p.StartTrack(queued("b"), false))
	require.Eventually(t, func() bool { return p.State() == StateIdle }, 2*time.Second, time.Millisecond)

	var got []string
	for i := 0; i < 4; i++ {
		e := nextEvent(t, p)
		got = append(got, e.Type.String()+":"+e.Track.Track.ID)
	}
	assert.Equal(t, []string{"track_started:a", "track_ended:a", "track_started:b", "track_ended:b"}, got)
}

// sizedStream announces its decoded length.
type sizedStream struct {
	*blockingStream
	frames int64
}

func (s sizedStream) ExpectedFrames() int64 { return s.frames }

func TestPlayer_Position(t *testing.T) {
	stream := sizedStream{blockingStream: newBlockingStream(), frames: 48000}
	p := New("g", sourceOf(map[string]io.ReadCloser{"https://youtu.be/a": stream}), DiscardSink{}, testConfig())
	defer p.Close()

	played, expected := p.Position()
	assert.Zero(t, played)
	assert.Zero(t, expected)

	require.True(t, p.StartTrack(queued("a"), false))
	played, expected = p.Position()
	assert.Zero(t, played)
	assert.Equal(t, int64(48000), expected)
}

func TestPlayer_StartTrackWhileBusy(t *testing.T) {
	a := newBlockingStream()
	b := newBlockingStream()
	p := New("g", sourceOf(map[string]io.ReadCloser{
		"https://youtu.be/a": a,
		"https://youtu.be/b": b,
	}), DiscardSink{}, testConfig())
	defer p.Close()

	qa, qb := queued("a"), queued("b")
	require.True(t, p.StartTrack(qa, false))
	nextEvent(t, p)

	assert.False(t, p.StartTrack(qb, false), "busy player refuses without interrupt")
	current, ok := p.Current()
	require.True(t, ok)
	assert.Same(t, qa, current)

	require.True(t, p.StartTrack(qb, true))
	replaced := nextEvent(t, p)
	assert.Equal(t, EventTrackEnded, replaced.Type)
	assert.Equal(t, EndReplaced, replaced.Reason)
	assert.Same(t, qa, replaced.Track)
	assert.True(t, a.isClosed())

	started := nextEvent(t, p)
	assert.Equal(t, EventTrackStarted, started.Type)
	assert.Same(t, qb, started.Track)
}

func TestPlayer_LoadFailure(t *testing.T) {
	boom := errors.New("pipeline fetch failed (exit 2)")
	stream := &failingStream{data: make([]byte, FrameSize), err: boom}
	p := New("g", sourceOf(map[string]io.ReadCloser{"https://youtu.be/a": stream}), DiscardSink{}, testConfig())
	defer p.Close()

	require.True(t, p.StartTrack(queued("a"), false))
	nextEvent(t, p)

	ended := nextEvent(t, p)
	assert.Equal(t, EndLoadFailed, ended.Reason)
	assert.ErrorIs(t, ended.Err, boom)
	assert.True(t, ended.Reason.MayStartNext())
}

func TestPlayer_Stop(t *testing.T) {
	stream := newBlockingStream()
	p := New("g", sourceOf(map[string]io.ReadCloser{"https://youtu.be/a": stream}), DiscardSink{}, testConfig())
	defer p.Close()

	p.Stop() // idle: nothing to report

	require.True(t, p.StartTrack(queued("a"), false))
	nextEvent(t, p)

	p.Stop()
	ended := nextEvent(t, p)
	assert.Equal(t, EndStopped, ended.Reason)
	assert.True(t, stream.isClosed())

	_, ok := p.Current()
	assert.False(t, ok)
}

func TestPlayer_Close(t *testing.T) {
	stream := newBlockingStream()
	p := New("g", sourceOf(map[string]io.ReadCloser{"https://youtu.be/a": stream}), DiscardSink{}, testConfig())

	require.True(t, p.StartTrack(queued("a"), false))
	nextEvent(t, p)

	p.Close()
	ended := nextEvent(t, p)
	assert.Equal(t, EndCleanup, ended.Reason)
	assert.False(t, ended.Reason.MayStartNext())

	_, ok := <-p.Events()
	assert.False(t, ok, "event channel is closed")
	assert.False(t, p.StartTrack(queued("b"), false))
	assert.Equal(t, StateClosed, p.State())

	assert.NotPanics(t, p.Close)
}

func TestPlayer_Volume(t *testing.T) {
	p := New("g", sourceOf(nil), DiscardSink{}, Config{FrameInterval: time.Millisecond, DefaultVolume: 30})
	defer p.Close()

	assert.Equal(t, 30.0, p.Volume())
	assert.InDelta(t, 0.3, p.provider.Gain(), 1e-9)

	p.SetVolume(80)
	assert.Equal(t, 80.0, p.Volume())
	assert.InDelta(t, 0.8, p.provider.Gain(), 1e-9)
}

func TestEndReason_MayStartNext(t *testing.T) {
	tests := []struct {
		reason EndReason
		want   bool
	}{
		{EndFinished, true},
		{EndLoadFailed, true},
		{EndStopped, false},
		{EndReplaced, false},
		{EndCleanup, false},
	}
	for _, tt := range tests {
		t.Run(tt.reason.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.reason.MayStartNext())
		})
	}
}

func sampleFrame(v int16) []byte {
	frame := make([]byte, FrameSize)
	for i := 0; i < FrameSize; i += 2 {
		binary.BigEndian.PutUint16(frame[i:], uint16(v))
	}
	return frame
}

func TestProvider_Gain(t *testing.T) {
	tests := []struct {
		name   string
		sample int16
		gain   float64
		want   int16
	}{
		{name: "unity", sample: 1000, gain: 1, want: 1000},
		{name: "half", sample: 1000, gain: 0.5, want: 500},
		{name: "negative", sample: -1000, gain: 0.3, want: -300},
		{name: "mute", sample: 1000, gain: 0, want: 0},
		{name: "clip high", sample: 30000, gain: 2, want: 32767},
		{name: "clip low", sample: -30000, gain: 2, want: -32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProvider(DefaultSampleRate)
			p.SetGain(tt.gain)
			p.Attach(bytes.NewReader(sampleFrame(tt.sample)))

			require.True(t, p.Provide())
			frame := p.Frame()
			require.Len(t, frame, FrameSize)
			assert.Equal(t, tt.want, int16(binary.BigEndian.Uint16(frame[0:])))
			assert.Equal(t, tt.want, int16(binary.BigEndian.Uint16(frame[FrameSize-2:])))
		})
	}
}

func TestProvider_PartialFrameIsPadded(t *testing.T) {
	p := NewProvider(DefaultSampleRate)
	p.Attach(bytes.NewReader([]byte{0x7f, 0x00, 0x01}))

	require.True(t, p.Provide())
	frame := p.Frame()
	require.Len(t, frame, FrameSize)
	assert.Equal(t, []byte{0x7f, 0x00, 0x01, 0x00}, frame[:4])

	assert.False(t, p.Provide())
	assert.NoError(t, p.Err())
}

func TestProvider_CounterIsCumulative(t *testing.T) {
	p := NewProvider(DefaultSampleRate)
	assert.False(t, p.Provide(), "no decoder attached")
	assert.Nil(t, p.Frame())

	p.Attach(bytes.NewReader(make([]byte, FrameSize*2)))
	for p.Provide() {
		p.Frame()
	}
	p.Attach(bytes.NewReader(make([]byte, FrameSize)))
	for p.Provide() {
		p.Frame()
	}

	assert.Equal(t, int64(3), p.Frames())
	assert.Equal(t, int64(60), p.ElapsedMs())
}

func TestFrameSizeFor(t *testing.T) {
	tests := []struct {
		rate int
		want int
	}{
		{rate: 8000, want: 640},
		{rate: 16000, want: 1280},
		{rate: 24000, want: 1920},
		{rate: 44100, want: 3528},
		{rate: 48000, want: FrameSize},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FrameSizeFor(tt.rate), "rate %d", tt.rate)
	}
}

func TestProvider_FramesFollowSampleRate(t *testing.T) {
	p := NewProvider(44100)
	p.Attach(bytes.NewReader(make([]byte, 3528*2)))

	for p.Provide() {
		require.Len(t, p.Frame(), 3528)
	}
	assert.Equal(t, int64(2), p.Frames())
	assert.Equal(t, int64(1764), p.SampleFrames())
	assert.Equal(t, int64(40), p.ElapsedMs())
}

func TestProvider_ProvideKeepsBufferedFrame(t *testing.T) {
	p := NewProvider(DefaultSampleRate)
	p.Attach(bytes.NewReader(make([]byte, FrameSize*2)))

	require.True(t, p.Provide())
	require.True(t, p.Provide(), "second provide reuses the buffered frame")
	p.Frame()
	assert.Equal(t, int64(1), p.Frames())
}
