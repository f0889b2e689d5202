package resolver

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/ourtube/internal/domain/track"
	"github.com/osa030/ourtube/internal/infra/youtube"
)

// VideoAPI is the subset of the YouTube client used by resolvers.
type VideoAPI interface {
	GetVideo(ctx context.Context, videoID string) (*track.Track, error)
	SearchVideo(ctx context.Context, query string) (string, error)
}

// YouTube resolves YouTube URLs and video IDs.
type YouTube struct {
	api VideoAPI
}

// NewYouTube creates a YouTube resolver.
func NewYouTube(api VideoAPI) *YouTube {
	return &YouTube{api: api}
}

func (y *YouTube) Name() string {
	return "youtube"
}

func (y *YouTube) Supports(locator string) bool {
	_, ok := youtube.ExtractVideoID(locator)
	return ok
}

func (y *YouTube) Resolve(ctx context.Context, locator string) (*track.Track, error) {
	id, ok := youtube.ExtractVideoID(locator)
	if !ok {
		return nil, ErrUnsupportedLocator
	}
	t, err := y.api.GetVideo(ctx, id)
	if err != nil {
		if errors.Is(err, youtube.ErrVideoNotFound) {
			return nil, errors.Mark(err, ErrTrackNotFound)
		}
		return nil, err
	}
	if t.Duration <= 0 {
		// live streams report P0D and never end
		return nil, errors.Newf("video %s has no fixed duration", id)
	}
	return t, nil
}

// Search resolves free text (anything that is not a URL) through YouTube search.
type Search struct {
	api VideoAPI
}

// NewSearch creates a search resolver.
func NewSearch(api VideoAPI) *Search {
	return &Search{api: api}
}

func (s *Search) Name() string {
	return "youtube_search"
}

func (s *Search) Supports(locator string) bool {
	locator = strings.TrimSpace(locator)
	return locator != "" && !strings.Contains(locator, "://") && !strings.HasPrefix(locator, "spotify:")
}

func (s *Search) Resolve(ctx context.Context, locator string) (*track.Track, error) {
	id, err := s.api.SearchVideo(ctx, strings.TrimSpace(locator))
	if err != nil {
		if errors.Is(err, youtube.ErrVideoNotFound) {
			return nil, errors.Mark(err, ErrTrackNotFound)
		}
		return nil, err
	}
	return NewYouTube(s.api).Resolve(ctx, id)
}
