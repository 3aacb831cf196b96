package store

import "time"

// Job status values. A job is created queued, picked up by a worker as
// running, and ends in exactly one terminal state. Restart is the only legal
// way out of a terminal state and re-enters at queued.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

const (
	SortByScore    = "score"
	SortByDistance = "distance"
)

// Job is one extraction request and its run state. Config fields are
// immutable after creation and reused verbatim on restart.
type Job struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	Name              string   `json:"name"`
	CenterLat         float64  `json:"center_lat"`
	CenterLng         float64  `json:"center_lng"`
	CenterAddress     string   `json:"center_address,omitempty"`
	Categories        []string `json:"categories"`
	Radius            int      `json:"radius"`
	MinRating         float64  `json:"min_rating"`
	MinReviews        int      `json:"min_reviews"`
	MinPhotos         int      `json:"min_photos"`
	UseQualityFilters bool     `json:"use_quality_filters"`
	SortBy            string   `json:"sort_by"`

	Status          string     `json:"status"`
	Progress        int        `json:"progress"`
	TotalBusinesses int        `json:"total_businesses"`
	LeadsFound      int        `json:"leads_found"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the job can be restarted.
func (j *Job) Terminal() bool {
	return j.Status == StatusFailed || j.Status == StatusCancelled
}

// Lead is one scored venue surfaced by a run. Written once after scoring,
// never updated.
type Lead struct {
	ID             int64    `json:"id"`
	JobID          string   `json:"job_id"`
	PlaceID        string   `json:"place_id"`
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	Address        string   `json:"address"`
	Phone          string   `json:"phone,omitempty"`
	Rating         float64  `json:"rating"`
	ReviewCount    int      `json:"review_count"`
	PhotoCount     int      `json:"photo_count"`
	Website        string   `json:"website,omitempty"`
	SocialURL      string   `json:"social_url,omitempty"`
	MapsURL        string   `json:"maps_url"`
	BusinessStatus string   `json:"business_status"`
	HasHours       bool     `json:"has_hours"`
	HasPhone       bool     `json:"has_phone"`
	Lat            float64  `json:"lat"`
	Lng            float64  `json:"lng"`
	DistanceKm     float64  `json:"distance_km"`
	DistanceMiles  float64  `json:"distance_miles"`
	LeadScore      int      `json:"lead_score"`
	Position       int      `json:"-"`
}
