package score

import "leadengine/internal/core/places"

// Thresholds are the quality-filter gates configured per job.
type Thresholds struct {
	MinRating  float64
	MinReviews int
	MinPhotos  int
}

// Passes is the quality gate applied before a venue becomes a lead. When the
// filter is disabled every venue passes. All three thresholds must hold; a
// venue with no rating at all fails the rating check regardless of MinRating.
func Passes(v places.Venue, t Thresholds, enabled bool) bool {
	if !enabled {
		return true
	}
	if v.Rating == 0 || v.Rating < t.MinRating {
		return false
	}
	if v.ReviewCount < t.MinReviews {
		return false
	}
	if v.PhotoCount < t.MinPhotos {
		return false
	}
	return true
}
