package utils

import (
	"time"
)

// Location resolves an IANA timezone name, falling back to the provided
// default when the name is empty or unknown. It never returns an error; an
// invalid zone fails closed to the fallback.
func Location(zone string, fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	if zone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return fallback
	}
	return loc
}

// ToDisplay converts a stored UTC instant into the user's display timezone.
// Persisted timestamps carry no zone; conversion happens only at presentation
// boundaries.
func ToDisplay(t time.Time, zone string, fallback *time.Location) time.Time {
	return t.In(Location(zone, fallback))
}

// NowInZone returns the given instant expressed in the user's display
// timezone. Callers pass clock.Now() so the result stays testable.
func NowInZone(now time.Time, zone string, fallback *time.Location) time.Time {
	return now.In(Location(zone, fallback))
}
