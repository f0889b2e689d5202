package filter

import (
	"context"

	"github.com/osa030/ourtube/internal/domain/track"
)

// PresenceFilter rejects submitters who are not in the tenant's selected channel.
// Their tracks would not be selected until they join.
type PresenceFilter struct{}

func (f *PresenceFilter) Name() string {
	return "presence_filter"
}

func (f *PresenceFilter) Description() string {
	return "Checks if the submitter is connected to the tenant's playback channel"
}

func (f *PresenceFilter) ReturnCodes() []string {
	return []string{CodeNotInChannel}
}

func (f *PresenceFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *PresenceFilter) Check(ctx context.Context, req Request, t track.Track) Result {
	if !req.Present {
		return Reject(CodeNotInChannel)
	}
	return Accept()
}

func init() {
	Register("presence_filter", func() Filter {
		return &PresenceFilter{}
	})
}
