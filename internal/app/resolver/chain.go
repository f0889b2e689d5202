package resolver

import (
	"context"
	"strings"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ourtube/internal/domain/track"
	"github.com/osa030/ourtube/internal/infra/metrics"
)

// Chain tries its resolvers in order. Only resolvers supporting the
// locator are asked; the first success wins.
type Chain struct {
	resolvers []Resolver
}

// NewChain creates a new resolver chain.
func NewChain(resolvers ...Resolver) *Chain {
	return &Chain{resolvers: resolvers}
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return "resolver_chain"
}

// Supports reports whether any resolver of the chain supports the locator.
func (c *Chain) Supports(locator string) bool {
	for _, r := range c.resolvers {
		if r.Supports(locator) {
			return true
		}
	}
	return false
}

// Resolve resolves the locator with the first supporting resolver that succeeds.
// Failures are returned as *ResolutionError.
func (c *Chain) Resolve(ctx context.Context, locator string) (*track.Track, error) {
	locator = strings.TrimSpace(locator)

	var lastErr *ResolutionError
	for i, r := range c.resolvers {
		if !r.Supports(locator) {
			continue
		}
		zlog.Debug().Msgf("resolver: trying %s (%d/%d) for %s", r.Name(), i+1, len(c.resolvers), locator)

		t, err := r.Resolve(ctx, locator)
		if err != nil {
			metrics.ResolverLookups.WithLabelValues(r.Name(), "error").Inc()
			zlog.Warn().Msgf("resolver: %s failed, trying next: %v", r.Name(), err)
			lastErr = &ResolutionError{Locator: locator, Resolver: r.Name(), Cause: err}
			if ctx.Err() != nil {
				break
			}
			continue
		}
		metrics.ResolverLookups.WithLabelValues(r.Name(), "ok").Inc()
		return t, nil
	}

	if lastErr == nil {
		return nil, &ResolutionError{Locator: locator, Cause: ErrUnsupportedLocator}
	}
	return nil, lastErr
}
