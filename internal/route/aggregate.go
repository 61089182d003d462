package route

import (
	"fmt"
	"math"
)

// MetersPerMile converts meters to statute miles.
const MetersPerMile = 1609.34

// Totals is the sum of a route's legs, raw and formatted for display.
type Totals struct {
	TotalDistanceMeters  float64 `json:"totalDistanceMeters"`
	TotalDurationSeconds int     `json:"totalDurationSeconds"`
	FormattedDistance    string  `json:"formattedDistance"`
	FormattedDuration    string  `json:"formattedDuration"`
}

// Aggregate sums legs in order. Durations use traffic values when
// trafficConsidered is set and the leg has one. Distances are not rounded
// before formatting.
func Aggregate(legs []Leg, trafficConsidered bool) Totals {
	var distance float64
	var duration int
	for _, l := range legs {
		distance += l.DistanceMeters
		duration += l.EffectiveDurationSeconds(trafficConsidered)
	}

	return Totals{
		TotalDistanceMeters:  distance,
		TotalDurationSeconds: duration,
		FormattedDistance:    FormatDistance(distance),
		FormattedDuration:    FormatDuration(duration),
	}
}

// FormatDistance renders meters as miles with one decimal, e.g. "10.0 miles".
func FormatDistance(meters float64) string {
	return fmt.Sprintf("%.1f miles", meters/MetersPerMile)
}

// FormatDuration renders seconds rounded to whole minutes, e.g. "5 min" or
// "1 hr 30 min".
func FormatDuration(seconds int) string {
	minutes := int(math.Round(float64(seconds) / 60))
	if minutes >= 60 {
		return fmt.Sprintf("%d hr %d min", minutes/60, minutes%60)
	}
	return fmt.Sprintf("%d min", minutes)
}
