// Package youtube provides a client for the YouTube Data API.
package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osa030/ourtube/internal/domain/track"
)

// ErrVideoNotFound is returned when the API knows no video with the given ID.
var ErrVideoNotFound = errors.New("video not found")

const defaultRequestsPerMinute = 60

// Client is a YouTube Data API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Config represents YouTube client configuration.
type Config struct {
	APIKey            string
	RequestsPerMinute int
}

type thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// videosResponse represents the response from videos.list.
type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string               `json:"title"`
			ChannelTitle string               `json:"channelTitle"`
			Thumbnails   map[string]thumbnail `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// searchResponse represents the response from search.list.
type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

// apiError represents an error response from the YouTube Data API.
type apiError struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// New creates a new YouTube client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("youtube API key is required")
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = defaultRequestsPerMinute
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    "https://www.googleapis.com/youtube/v3",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), max(1, rpm/10)),
	}, nil
}

// GetVideo retrieves video metadata by ID.
// Reference: https://developers.google.com/youtube/v3/docs/videos/list
func (c *Client) GetVideo(ctx context.Context, videoID string) (*track.Track, error) {
	if videoID == "" {
		return nil, errors.New("video ID is required")
	}

	params := url.Values{}
	params.Set("part", "snippet,contentDetails")
	params.Set("id", videoID)

	var response videosResponse
	if err := c.get(ctx, "videos", params, &response); err != nil {
		return nil, err
	}
	if len(response.Items) == 0 {
		return nil, errors.Wrapf(ErrVideoNotFound, "id %s", videoID)
	}

	item := response.Items[0]
	duration, err := ParseDuration(item.ContentDetails.Duration)
	if err != nil {
		return nil, errors.Wrapf(err, "video %s", videoID)
	}

	t := &track.Track{
		ID:        item.ID,
		Name:      item.Snippet.Title,
		Thumbnail: bestThumbnail(item.Snippet.Thumbnails),
		Duration:  duration,
		Locator:   WatchURL(item.ID),
	}
	if item.Snippet.ChannelTitle != "" {
		t.Artists = []string{strings.TrimSuffix(item.Snippet.ChannelTitle, " - Topic")}
	}
	return t, nil
}

// SearchVideo returns the ID of the best matching video for a free-text query.
// Reference: https://developers.google.com/youtube/v3/docs/search/list
func (c *Client) SearchVideo(ctx context.Context, query string) (string, error) {
	if query == "" {
		return "", errors.New("search query is required")
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("maxResults", "1")
	params.Set("q", query)

	var response searchResponse
	if err := c.get(ctx, "search", params, &response); err != nil {
		return "", err
	}
	if len(response.Items) == 0 || response.Items[0].ID.VideoID == "" {
		return "", errors.Wrapf(ErrVideoNotFound, "query %q", query)
	}
	return response.Items[0].ID.VideoID, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter")
	}

	params.Set("key", c.apiKey)
	reqURL := c.baseURL + "/" + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	// Check for YouTube API errors
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != nil {
		return errors.Errorf("youtube API error %d: %s", apiErr.Error.Code, apiErr.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("youtube API status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	zlog.Debug().Msgf("youtube: %s %s ok", endpoint, params.Get("id")+params.Get("q"))
	return nil
}

func bestThumbnail(thumbs map[string]thumbnail) track.Thumbnail {
	for _, key := range []string{"maxres", "high", "medium", "default"} {
		if th, ok := thumbs[key]; ok && th.URL != "" {
			return track.Thumbnail{URL: th.URL, Width: th.Width, Height: th.Height}
		}
	}
	return track.Thumbnail{}
}

// WatchURL returns the watch URL for a video, the locator handed to the fetcher.
func WatchURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}

var (
	videoIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	durationPattern = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)
)

// ExtractVideoID extracts the video ID from a YouTube URL or a bare ID.
func ExtractVideoID(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if videoIDPattern.MatchString(input) {
		return input, true
	}

	u, err := url.Parse(input)
	if err != nil || u.Host == "" {
		return "", false
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"):
			id = strings.TrimPrefix(u.Path, "/shorts/")
		case strings.HasPrefix(u.Path, "/embed/"):
			id = strings.TrimPrefix(u.Path, "/embed/")
		case strings.HasPrefix(u.Path, "/live/"):
			id = strings.TrimPrefix(u.Path, "/live/")
		}
	default:
		return "", false
	}

	id = strings.TrimRight(id, "/")
	if !videoIDPattern.MatchString(id) {
		return "", false
	}
	return id, true
}

// ParseDuration parses an ISO 8601 duration as used by contentDetails.duration (e.g. "PT4M13S").
func ParseDuration(s string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil || s == "P" || strings.HasSuffix(s, "T") {
		return 0, errors.Newf("invalid duration %q", s)
	}

	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, errors.Wrapf(err, "invalid duration %q", s)
		}
		d += time.Duration(n) * unit
	}
	return d, nil
}
