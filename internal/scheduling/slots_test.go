package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-management-server/internal/models"
)

func TestOverlapsHalfOpen(t *testing.T) {
	base := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)

	// Identical intervals overlap.
	assert.True(t, Overlaps(base, 30*time.Minute, base, 30*time.Minute))

	// Partial overlap, both orders.
	assert.True(t, Overlaps(base, 30*time.Minute, base.Add(15*time.Minute), 30*time.Minute))
	assert.True(t, Overlaps(base.Add(15*time.Minute), 30*time.Minute, base, 30*time.Minute))

	// Containment.
	assert.True(t, Overlaps(base, 60*time.Minute, base.Add(15*time.Minute), 15*time.Minute))

	// Back-to-back 09:00-09:30 and 09:30-10:00 do not overlap.
	assert.False(t, Overlaps(base, 30*time.Minute, base.Add(30*time.Minute), 30*time.Minute))
	assert.False(t, Overlaps(base.Add(30*time.Minute), 30*time.Minute, base, 30*time.Minute))

	// Disjoint.
	assert.False(t, Overlaps(base, 30*time.Minute, base.Add(2*time.Hour), 30*time.Minute))
}

func TestSlotTimesEmptyDay(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	slots := SlotTimes(day, 30, nil)
	require.Len(t, slots, 16)
	assert.Equal(t, time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC), slots[0])
	assert.Equal(t, time.Date(2024, 6, 10, 16, 30, 0, 0, time.UTC), slots[len(slots)-1])
}

func TestSlotTimesHourLong(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

	slots := SlotTimes(day, 60, nil)
	require.Len(t, slots, 8)
	assert.Equal(t, time.Date(2024, 6, 10, 16, 0, 0, 0, time.UTC), slots[len(slots)-1])
}

func TestSlotTimesSkipsBusyIntervals(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	busy := []models.Appointment{
		{StartTime: time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC), DurationMinutes: 30},
		// An hour-long visit blocks two half-hour slots.
		{StartTime: time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC), DurationMinutes: 60},
	}

	slots := SlotTimes(day, 30, busy)
	require.Len(t, slots, 13)
	for _, slot := range slots {
		assert.NotEqual(t, time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC), slot)
		assert.NotEqual(t, time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC), slot)
		assert.NotEqual(t, time.Date(2024, 6, 10, 14, 30, 0, 0, time.UTC), slot)
	}
}

func TestSlotTimesFullyBooked(t *testing.T) {
	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	busy := []models.Appointment{
		{StartTime: time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC), DurationMinutes: 480},
	}
	assert.Empty(t, SlotTimes(day, 30, busy))
}
