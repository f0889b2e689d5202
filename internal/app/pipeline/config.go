package pipeline

import (
	"slices"
	"strconv"
	"time"
)

// Config holds subprocess settings.
type Config struct {
	Fetcher           string
	Transcoder        string
	SampleRate        int
	StallTimeout      time.Duration
	ChunkSize         int
	MaxSessions       int
	FetcherOKCodes    []int
	TranscoderOKCodes []int
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		Fetcher:           "ytdl",
		Transcoder:        "ffmpeg",
		SampleRate:        48000,
		StallTimeout:      30 * time.Second,
		ChunkSize:         128 * 1024,
		MaxSessions:       16,
		FetcherOKCodes:    []int{0, 1},
		TranscoderOKCodes: []int{0, 141},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Fetcher == "" {
		c.Fetcher = d.Fetcher
	}
	if c.Transcoder == "" {
		c.Transcoder = d.Transcoder
	}
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = d.StallTimeout
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = d.MaxSessions
	}
	if len(c.FetcherOKCodes) == 0 {
		c.FetcherOKCodes = d.FetcherOKCodes
	}
	if len(c.TranscoderOKCodes) == 0 {
		c.TranscoderOKCodes = d.TranscoderOKCodes
	}
	return c
}

func (c Config) fetchArgs(locator string) []string {
	return []string{locator, "--filter", "audio"}
}

func (c Config) transcodeArgs() []string {
	return []string{
		"-i", "pipe:0",
		"-ar", strconv.Itoa(c.SampleRate),
		"-ac", "2",
		"-acodec", "pcm_s16be",
		"-f", "s16be",
		"pipe:1",
	}
}

func (c Config) accepted(stage Stage, code int) bool {
	if stage == StageFetch {
		return slices.Contains(c.FetcherOKCodes, code)
	}
	return slices.Contains(c.TranscoderOKCodes, code)
}
