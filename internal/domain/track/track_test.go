package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueuedTrack_Before(t *testing.T) {
	base := time.Unix(1700000000, 0)

	tests := []struct {
		name     string
		a        QueuedTrack
		b        QueuedTrack
		expected bool
	}{
		{
			name:     "earlier queue time wins",
			a:        QueuedTrack{Submitter: Submitter{ID: "b"}, QueueTime: base},
			b:        QueuedTrack{Submitter: Submitter{ID: "a"}, QueueTime: base.Add(time.Nanosecond)},
			expected: true,
		},
		{
			name:     "later queue time loses",
			a:        QueuedTrack{Submitter: Submitter{ID: "a"}, QueueTime: base.Add(time.Second)},
			b:        QueuedTrack{Submitter: Submitter{ID: "b"}, QueueTime: base},
			expected: false,
		},
		{
			name:     "tie broken by submitter id",
			a:        QueuedTrack{Submitter: Submitter{ID: "alice"}, QueueTime: base},
			b:        QueuedTrack{Submitter: Submitter{ID: "bob"}, QueueTime: base},
			expected: true,
		},
		{
			name:     "tie broken by submitter id reversed",
			a:        QueuedTrack{Submitter: Submitter{ID: "bob"}, QueueTime: base},
			b:        QueuedTrack{Submitter: Submitter{ID: "alice"}, QueueTime: base},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.a.Before(&tt.b))
		})
	}
}

func TestTrack_DurationMs(t *testing.T) {
	tr := Track{ID: "dQw4w9WgXcQ", Duration: 3*time.Minute + 33*time.Second + 250*time.Millisecond}
	assert.Equal(t, int64(213250), tr.DurationMs())
}
