package filter

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ourtube/internal/domain/track"
)

// QueueLimitConfig represents the configuration for QueueLimitFilter.
type QueueLimitConfig struct {
	MaxPending int `yaml:"max_pending" mapstructure:"max_pending" default:"5" validate:"gte=1"`
}

// QueueLimitFilter caps how many tracks a submitter may have waiting.
type QueueLimitFilter struct {
	config *QueueLimitConfig
}

func (f *QueueLimitFilter) Name() string {
	return "queue_limit_filter"
}

func (f *QueueLimitFilter) Description() string {
	return "Checks if the submitter already has too many tracks waiting to be played"
}

func (f *QueueLimitFilter) ReturnCodes() []string {
	return []string{CodeQueueLimitExceeded}
}

func (f *QueueLimitFilter) ValidateConfig(settings map[string]any) error {
	var config QueueLimitConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.config = &config
	zlog.Info().Msgf("filter: queue limit config: %+v", config)
	return nil
}

func (f *QueueLimitFilter) Check(ctx context.Context, req Request, t track.Track) Result {
	limit := 1
	if f.config != nil {
		limit = f.config.MaxPending
	}
	if req.Queue.PendingFor(req.SubmitterID) >= limit {
		return Reject(CodeQueueLimitExceeded)
	}
	return Accept()
}

func init() {
	Register("queue_limit_filter", func() Filter {
		return &QueueLimitFilter{}
	})
}
