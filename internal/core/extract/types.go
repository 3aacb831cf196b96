package extract

import (
	"errors"
	"fmt"

	"leadengine/internal/platform/store"
)

var (
	// ErrNotRunning rejects a cancel on a job that is not running.
	ErrNotRunning = errors.New("job is not running")
	// ErrNotRestartable rejects a restart on a job that is not failed or cancelled.
	ErrNotRestartable = errors.New("only failed or cancelled jobs can be restarted")
	// ErrInvalidConfig wraps job-config validation failures so the API layer
	// can tell a bad request from an internal error.
	ErrInvalidConfig = errors.New("invalid job config")
)

const (
	MinRadiusMeters = 100
	MaxRadiusMeters = 50000

	defaultRadius     = 5000
	defaultMinRating  = 4.0
	defaultMinReviews = 10
	defaultMinPhotos  = 3
)

// CreateJobRequest is the job config as submitted by the caller. Thresholds
// left at zero fall back to the documented defaults.
type CreateJobRequest struct {
	Name              string   `json:"name"`
	CenterLat         float64  `json:"center_lat"`
	CenterLng         float64  `json:"center_lng"`
	CenterAddress     string   `json:"center_address"`
	Categories        []string `json:"categories"`
	Radius            int      `json:"radius"`
	MinRating         float64  `json:"min_rating"`
	MinReviews        int      `json:"min_reviews"`
	MinPhotos         int      `json:"min_photos"`
	UseQualityFilters bool     `json:"use_quality_filters"`
	SortBy            string   `json:"sort_by"`
}

func (r *CreateJobRequest) validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.CenterLat < -90 || r.CenterLat > 90 {
		return fmt.Errorf("center_lat %v out of range", r.CenterLat)
	}
	if r.CenterLng < -180 || r.CenterLng > 180 {
		return fmt.Errorf("center_lng %v out of range", r.CenterLng)
	}
	if r.Radius == 0 {
		r.Radius = defaultRadius
	}
	if r.Radius < MinRadiusMeters || r.Radius > MaxRadiusMeters {
		return fmt.Errorf("radius must be between %d and %d meters", MinRadiusMeters, MaxRadiusMeters)
	}
	if r.MinRating == 0 {
		r.MinRating = defaultMinRating
	}
	if r.MinReviews == 0 {
		r.MinReviews = defaultMinReviews
	}
	if r.MinPhotos == 0 {
		r.MinPhotos = defaultMinPhotos
	}
	switch r.SortBy {
	case "":
		r.SortBy = store.SortByScore
	case store.SortByScore, store.SortByDistance:
	default:
		return fmt.Errorf("sort_by must be %q or %q", store.SortByScore, store.SortByDistance)
	}
	return nil
}

// TaskPayload is the asynq task body for one extraction run.
type TaskPayload struct {
	JobID   string `json:"job_id"`
	OwnerID string `json:"owner_id"`
}
