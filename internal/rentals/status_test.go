package rentals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusDraft, StatusPending, true},
		{StatusDraft, StatusConfirmed, true},
		{StatusPending, StatusConfirmed, true},
		{StatusConfirmed, StatusActive, true},
		{StatusActive, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusActive, StatusCancelled, true},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusConfirmed, StatusPending, false},
		{StatusPending, StatusCompleted, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestWindowOverlaps(t *testing.T) {
	day := func(d, h int) time.Time { return time.Date(2025, 3, d, h, 0, 0, 0, time.UTC) }

	a := Window{Start: day(1, 10), End: day(3, 10)}
	assert.True(t, a.Overlaps(Window{Start: day(2, 0), End: day(4, 0)}))
	assert.True(t, a.Overlaps(Window{Start: day(1, 11), End: day(1, 12)}))
	// touching intervals do not overlap
	assert.False(t, a.Overlaps(Window{Start: day(3, 10), End: day(5, 0)}))
	assert.False(t, a.Overlaps(Window{Start: day(1, 0), End: day(1, 10)}))
}
