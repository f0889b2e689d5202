package resolver

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/ourtube/internal/domain/track"
	"github.com/osa030/ourtube/internal/infra/spotify"
	"github.com/osa030/ourtube/internal/infra/youtube"
)

// TrackAPI is the subset of the Spotify client used by the resolver.
type TrackAPI interface {
	GetTrack(ctx context.Context, trackID string) (*track.Track, error)
}

// Spotify resolves Spotify track links. Spotify audio cannot be fetched, so
// the track is matched to a YouTube video which becomes the locator.
type Spotify struct {
	tracks TrackAPI
	videos VideoAPI
}

// NewSpotify creates a Spotify resolver.
func NewSpotify(tracks TrackAPI, videos VideoAPI) *Spotify {
	return &Spotify{tracks: tracks, videos: videos}
}

func (s *Spotify) Name() string {
	return "spotify"
}

func (s *Spotify) Supports(locator string) bool {
	return spotify.IsTrackLocator(locator)
}

func (s *Spotify) Resolve(ctx context.Context, locator string) (*track.Track, error) {
	meta, err := s.tracks.GetTrack(ctx, locator)
	if err != nil {
		return nil, err
	}

	query := meta.Name
	if len(meta.Artists) > 0 {
		query = strings.Join(meta.Artists, " ") + " " + meta.Name
	}
	videoID, err := s.videos.SearchVideo(ctx, query)
	if err != nil {
		if errors.Is(err, youtube.ErrVideoNotFound) {
			return nil, errors.Mark(errors.Wrapf(err, "no playable match for %s", meta.ID), ErrTrackNotFound)
		}
		return nil, err
	}
	video, err := s.videos.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	// Spotify metadata, YouTube audio
	t := *meta
	t.ID = video.ID
	t.Locator = video.Locator
	if video.Duration > 0 {
		t.Duration = video.Duration
	}
	if t.Thumbnail.URL == "" {
		t.Thumbnail = video.Thumbnail
	}
	return &t, nil
}
