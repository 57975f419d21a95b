package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationFallsBack(t *testing.T) {
	warsaw, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)

	assert.Equal(t, warsaw, Location("", warsaw))
	assert.Equal(t, warsaw, Location("Not/AZone", warsaw))
	assert.Equal(t, time.UTC, Location("Not/AZone", nil))

	loc := Location("Europe/Warsaw", time.UTC)
	assert.Equal(t, "Europe/Warsaw", loc.String())
}

func TestToDisplayConvertsInstant(t *testing.T) {
	stored := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	displayed := ToDisplay(stored, "Europe/Warsaw", time.UTC)
	assert.Equal(t, 14, displayed.Hour()) // CEST is UTC+2 in June
	assert.True(t, displayed.Equal(stored))

	// Unknown zone keeps the fallback rendering.
	assert.Equal(t, 12, ToDisplay(stored, "Not/AZone", time.UTC).Hour())
}

func TestNowInZone(t *testing.T) {
	now := time.Date(2024, 6, 10, 23, 30, 0, 0, time.UTC)
	local := NowInZone(now, "Asia/Tokyo", time.UTC)
	assert.Equal(t, 8, local.Hour()) // next morning JST
	assert.Equal(t, 11, local.Day())
}
