// Package pipeline turns a source locator into a decoded PCM byte stream by
// chaining an external fetcher and an external transcoder.
package pipeline

import (
	"context"
	"os/exec"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Pipeline creates streams and bounds how many sessions run at once.
type Pipeline struct {
	cfg Config
	sem *semaphore.Weighted
}

// New creates a pipeline. Zero config fields take their defaults.
func New(cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(cfg.MaxSessions)),
	}
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Open returns a lazy stream for the locator. Nothing is spawned until the first Read.
func (p *Pipeline) Open(locator string, duration time.Duration) *Stream {
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{
		p:        p,
		locator:  locator,
		duration: duration,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// CheckBinaries verifies that the fetcher and transcoder are on PATH.
func (p *Pipeline) CheckBinaries() error {
	var errs error
	for _, bin := range []string{p.cfg.Fetcher, p.cfg.Transcoder} {
		path, err := exec.LookPath(bin)
		if err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "binary %q", bin))
			continue
		}
		zlog.Debug().Msgf("pipeline: found %s at %s", bin, path)
	}
	return errs
}

func (p *Pipeline) start(ctx context.Context, locator string) (*Session, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "wait for pipeline slot")
	}
	sess, err := startSession(p.cfg, locator, func() { p.sem.Release(1) })
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	return sess, nil
}
