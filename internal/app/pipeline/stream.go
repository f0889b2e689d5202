package pipeline

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// Stream is a lazily activated pipeline session.
type Stream struct {
	p        *Pipeline
	locator  string
	duration time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	session *Session
	err     error
	closed  bool
}

// ExpectedFrames returns ceil(durationMs * sampleRate / 1000).
// It is informational; the stream still ends at EOF.
func (st *Stream) ExpectedFrames() int64 {
	ms := st.duration.Milliseconds()
	rate := int64(st.p.cfg.SampleRate)
	return (ms*rate + 999) / 1000
}

// started reports whether the subprocesses have been spawned.
func (st *Stream) started() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session != nil
}

// Read spawns the session on first use and reads decoded audio from it.
func (st *Stream) Read(p []byte) (int, error) {
	sess, err := st.activate()
	if err != nil {
		return 0, err
	}
	return sess.Read(p)
}

func (st *Stream) activate() (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return nil, ErrClosed
	}
	if st.session != nil || st.err != nil {
		return st.session, st.err
	}

	sess, err := st.p.start(st.ctx, st.locator)
	if err != nil {
		if st.ctx.Err() != nil {
			return nil, ErrClosed
		}
		zlog.Error().Str("locator", st.locator).Msgf("pipeline: failed to start session: %v", err)
		st.err = err
		return nil, err
	}
	st.session = sess
	return sess, nil
}

// Close stops the session if one was started. Close before the first Read spawns nothing.
func (st *Stream) Close() error {
	st.cancel()

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return nil
	}
	st.closed = true
	if st.session != nil {
		return st.session.Close()
	}
	return nil
}
