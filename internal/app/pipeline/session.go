package pipeline

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ourtube/internal/infra/metrics"
)

const stderrLimit = 8 * 1024

// exitResult holds the single classification of one subprocess.
type exitResult struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newExitResult() *exitResult {
	return &exitResult{done: make(chan struct{})}
}

func (r *exitResult) set(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Session is one running fetch → transcode chain.
// Reads return decoded s16be PCM from the transcoder.
type Session struct {
	cfg     Config
	locator string

	fetch     *exec.Cmd
	transcode *exec.Cmd

	fetchOut *os.File // read end of the fetcher's stdout
	transIn  *os.File // write end of the transcoder's stdin
	out      *os.File // read end of the transcoder's stdout

	fetchExit *exitResult
	transExit *exitResult

	mu       sync.Mutex
	watchdog *time.Timer

	closed    atomic.Bool
	stalled   atomic.Bool
	cutOff    atomic.Bool // transcoder stopped reading; the fetcher is cut off
	closeOnce sync.Once
	done      chan struct{}
	release   func()
}

// startSession spawns both subprocesses and the goroutines that serve them.
func startSession(cfg Config, locator string, release func()) (*Session, error) {
	var files []*os.File
	closeFiles := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	pipe := func() (*os.File, *os.File, error) {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, nil, errors.Wrap(err, "create pipe")
		}
		files = append(files, r, w)
		return r, w, nil
	}

	fetchR, fetchW, err := pipe()
	if err != nil {
		closeFiles()
		return nil, err
	}
	transR, transW, err := pipe()
	if err != nil {
		closeFiles()
		return nil, err
	}
	outR, outW, err := pipe()
	if err != nil {
		closeFiles()
		return nil, err
	}

	fetch := exec.Command(cfg.Fetcher, cfg.fetchArgs(locator)...)
	fetch.Stdout = fetchW
	fetchStderr, err := fetch.StderrPipe()
	if err != nil {
		closeFiles()
		return nil, &PipelineError{Stage: StageFetch, ExitCode: -1, Cause: err}
	}

	transcode := exec.Command(cfg.Transcoder, cfg.transcodeArgs()...)
	transcode.Stdin = transR
	transcode.Stdout = outW
	transStderr, err := transcode.StderrPipe()
	if err != nil {
		closeFiles()
		return nil, &PipelineError{Stage: StageTranscode, ExitCode: -1, Cause: err}
	}

	if err := transcode.Start(); err != nil {
		closeFiles()
		return nil, &PipelineError{Stage: StageTranscode, ExitCode: -1, Cause: err}
	}
	if err := fetch.Start(); err != nil {
		closeFiles()
		_ = transcode.Process.Kill()
		_ = transcode.Wait()
		return nil, &PipelineError{Stage: StageFetch, ExitCode: -1, Cause: err}
	}

	// The children own these ends now.
	_ = fetchW.Close()
	_ = transR.Close()
	_ = outW.Close()

	s := &Session{
		cfg:       cfg,
		locator:   locator,
		fetch:     fetch,
		transcode: transcode,
		fetchOut:  fetchR,
		transIn:   transW,
		out:       outR,
		fetchExit: newExitResult(),
		transExit: newExitResult(),
		done:      make(chan struct{}),
		release:   release,
	}
	metrics.PipelineSessions.Inc()

	zlog.Debug().Msgf("pipeline: session started: locator=%s fetch_pid=%d transcode_pid=%d",
		locator, fetch.Process.Pid, transcode.Process.Pid)

	go s.copyLoop()
	go s.check(StageFetch, fetch, fetchStderr, s.fetchExit)
	go s.check(StageTranscode, transcode, transStderr, s.transExit)
	go s.reap()

	return s, nil
}

// Read returns transcoded audio. At end of stream it waits until both
// subprocesses are classified and returns io.EOF or the PipelineError.
func (s *Session) Read(p []byte) (int, error) {
	n, err := s.out.Read(p)
	if err == nil {
		return n, nil
	}
	if s.closed.Load() {
		return n, ErrClosed
	}
	if err != io.EOF {
		return n, errors.Wrap(err, "read transcoder output")
	}

	<-s.Done()
	if s.fetchExit.err != nil {
		return n, s.fetchExit.err
	}
	if s.transExit.err != nil {
		return n, s.transExit.err
	}
	return n, io.EOF
}

// Close kills both subprocesses. Exits caused by Close are classified as ok.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.stopWatchdog()
		_ = s.fetch.Process.Kill()
		_ = s.transcode.Process.Kill()
		_ = s.fetchOut.Close()
		_ = s.transIn.Close()
		_ = s.out.Close()
	})
	return nil
}

// Done is closed once both subprocesses have been classified.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// copyLoop forwards fetcher output to the transcoder. Whatever ends it, both
// pipe ends are closed so neither process can block on the other.
func (s *Session) copyLoop() {
	defer func() {
		s.stopWatchdog()
		_ = s.transIn.Close()
		_ = s.fetchOut.Close()
	}()

	buf := make([]byte, s.cfg.ChunkSize)
	s.armWatchdog()
	for {
		n, err := s.fetchOut.Read(buf)
		if n > 0 {
			if _, werr := s.transIn.Write(buf[:n]); werr != nil {
				if !s.closed.Load() && !s.stalled.Load() {
					s.cutOff.Store(true)
					zlog.Debug().Msgf("pipeline: transcoder stdin closed, stopping fetch: locator=%s err=%v", s.locator, werr)
				}
				return
			}
			s.armWatchdog()
		}
		if err != nil {
			if err != io.EOF && !s.closed.Load() && !s.stalled.Load() {
				zlog.Debug().Msgf("pipeline: fetch read failed: locator=%s err=%v", s.locator, err)
			}
			return
		}
	}
}

func (s *Session) armWatchdog() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	if s.closed.Load() || s.stalled.Load() {
		return
	}
	s.watchdog = time.AfterFunc(s.cfg.StallTimeout, s.onStall)
}

func (s *Session) stopWatchdog() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
}

func (s *Session) onStall() {
	if s.closed.Load() || !s.stalled.CompareAndSwap(false, true) {
		return
	}
	zlog.Warn().Str("locator", s.locator).Msgf("pipeline: no data for %v, closing fetch stream", s.cfg.StallTimeout)
	metrics.PipelineStalls.Inc()

	_ = s.fetchOut.Close()
	_ = s.transIn.Close()
	_ = s.fetch.Process.Kill()
}

// check drains stderr, waits for the process and classifies its exit.
func (s *Session) check(stage Stage, cmd *exec.Cmd, stderr io.Reader, result *exitResult) {
	capture := &stderrCapture{limit: stderrLimit}
	_, _ = io.Copy(capture, stderr)
	_ = cmd.Wait()

	code := exitCode(cmd.ProcessState)
	err := s.classify(stage, code, capture.String())
	if err != nil {
		metrics.PipelineExits.WithLabelValues(string(stage), "error").Inc()
		zlog.Error().
			Str("stage", string(stage)).
			Int("exit_code", code).
			Str("locator", s.locator).
			Msgf("pipeline: %v: %s", err, capture.String())
	} else {
		metrics.PipelineExits.WithLabelValues(string(stage), "ok").Inc()
		zlog.Debug().Msgf("pipeline: %s exited: code=%d locator=%s", stage, code, s.locator)
	}
	result.set(err)
}

func (s *Session) classify(stage Stage, code int, stderr string) error {
	if s.closed.Load() {
		return nil
	}
	if stage == StageFetch && s.stalled.Load() {
		return &PipelineError{Stage: stage, ExitCode: code, Stderr: stderr, Cause: ErrStallTimeout}
	}
	if stage == StageFetch && s.cutOff.Load() {
		// Broken pipe after the transcoder went away; the transcoder's exit decides.
		return nil
	}
	if s.cfg.accepted(stage, code) {
		return nil
	}
	return &PipelineError{Stage: stage, ExitCode: code, Stderr: stderr, Cause: ErrUnexpectedExit}
}

// reap releases the session slot once both subprocesses are gone.
func (s *Session) reap() {
	<-s.fetchExit.done
	<-s.transExit.done
	_ = s.fetchOut.Close()
	close(s.done)
	metrics.PipelineSessions.Dec()
	if s.release != nil {
		s.release()
	}
}

// exitCode maps signal deaths to 128+signal like a shell does.
func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

// stderrCapture keeps the first limit bytes written to it.
type stderrCapture struct {
	buf   bytes.Buffer
	limit int
}

func (c *stderrCapture) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *stderrCapture) String() string {
	return string(bytes.TrimSpace(c.buf.Bytes()))
}
