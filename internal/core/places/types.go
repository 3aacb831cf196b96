package places

// Venue is one raw record surfaced by the directory API, flattened to the
// attributes the pipeline cares about.
type Venue struct {
	PlaceID        string
	Name           string
	Category       string
	Address        string
	Phone          string
	Website        string
	SocialURL      string
	MapsURL        string
	Rating         float64 // 0 means absent; the API never returns a sub-1.0 rating
	ReviewCount    int
	PhotoCount     int
	Lat            float64
	Lng            float64
	BusinessStatus string
	HasHours       bool
}

// Operational reports whether the directory confirmed the venue as open for
// business.
func (v Venue) Operational() bool { return v.BusinessStatus == "OPERATIONAL" }

// HasPhone reports whether the venue published a phone number.
func (v Venue) HasPhone() bool { return v.Phone != "" }

// HasAddress reports whether the venue has a physical address on file.
func (v Venue) HasAddress() bool { return v.Address != "" }

// Wire types for the places:searchNearby endpoint.

type searchRequest struct {
	LocationRestriction *locationRestriction `json:"locationRestriction,omitempty"`
	IncludedTypes       []string             `json:"includedTypes,omitempty"`
	PageToken           string               `json:"pageToken,omitempty"`
}

type locationRestriction struct {
	Circle circle `json:"circle"`
}

type circle struct {
	Center latLng  `json:"center"`
	Radius float64 `json:"radius"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type searchResponse struct {
	Places        []place `json:"places"`
	NextPageToken string  `json:"nextPageToken"`
}

type place struct {
	ID                  string        `json:"id"`
	DisplayName         localizedText `json:"displayName"`
	FormattedAddress    string        `json:"formattedAddress"`
	NationalPhoneNumber string        `json:"nationalPhoneNumber"`
	WebsiteURI          string        `json:"websiteUri"`
	Rating              float64       `json:"rating"`
	UserRatingCount     int           `json:"userRatingCount"`
	Photos              []photo       `json:"photos"`
	Location            latLng        `json:"location"`
	BusinessStatus      string        `json:"businessStatus"`
	PrimaryType         string        `json:"primaryType"`
	Types               []string      `json:"types"`
	RegularOpeningHours *openingHours `json:"regularOpeningHours"`
}

type localizedText struct {
	Text string `json:"text"`
}

type photo struct {
	Name string `json:"name"`
}

type openingHours struct {
	OpenNow            bool     `json:"openNow"`
	WeekdayDescription []string `json:"weekdayDescriptions"`
}
