package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadengine/internal/core/plan"
	"leadengine/internal/logger"
)

// fieldMask keeps the response down to the attributes the pipeline consumes.
const fieldMask = "places.id,places.displayName,places.formattedAddress," +
	"places.rating,places.userRatingCount,places.websiteUri,places.photos," +
	"places.location,places.businessStatus,places.types,places.primaryType," +
	"places.regularOpeningHours,places.nationalPhoneNumber"

// socialDomains are hosts that count as a social profile, not a website.
var socialDomains = []string{
	"facebook.com", "instagram.com", "twitter.com", "x.com", "tiktok.com",
	"linkedin.com", "yelp.com", "yelp.ie", "goo.gl", "maps.google",
}

type Config struct {
	BaseURL     string
	APIKey      string
	PageCap     int           // hard cap on pages per sub-query
	PageDelay   time.Duration // settle delay the API requires before a page-token fetch
	MaxAttempts int           // per-page attempt ceiling for transient failures
	BackoffBase time.Duration
	Timeout     time.Duration // wall-clock bound per page fetch
}

type Client struct {
	http *http.Client
	cfg  Config
	log  *logger.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.PageCap <= 0 {
		cfg.PageCap = 5
	}
	if cfg.PageDelay < 0 {
		cfg.PageDelay = 0
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		cfg:  cfg,
		log:  logger.New("Places"),
	}
}

// APIError is a non-2xx response from the directory API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("places api: status %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether the error class is worth retrying: rate limits
// and server-side failures. Bad credentials and malformed requests are not.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsFatal reports whether err should abort the whole job rather than be
// retried. Transport errors and timeouts are transient; they only become
// job-fatal once the retry ceiling is exhausted, at which point the harvester
// wraps them so this returns true.
func IsFatal(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.Transient()
	}
	return errors.Is(err, errRetriesExhausted)
}

var errRetriesExhausted = errors.New("retry ceiling exhausted")

// SearchNearby harvests one sub-query: it walks the API's cursor pagination
// up to the page cap, yielding each raw venue record. yield returning false
// stops the harvest early. Cancellation is observed between page fetches via
// ctx; an in-flight page is allowed to finish.
func (c *Client) SearchNearby(ctx context.Context, q plan.SubQuery, yield func(Venue) bool) error {
	pageToken := ""
	for page := 0; page < c.cfg.PageCap; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if page > 0 {
			// The API rejects a page token used before the cursor settles.
			if err := sleepCtx(ctx, c.cfg.PageDelay); err != nil {
				return err
			}
		}

		resp, err := c.fetchPage(ctx, q, pageToken)
		if err != nil {
			return err
		}

		c.log.LogDebugf("sub-query %q page %d: %d records", q.Category, page+1, len(resp.Places))
		for _, p := range resp.Places {
			if !yield(c.toVenue(p, q.Category)) {
				return nil
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return nil
		}
	}
	return nil
}

// fetchPage performs one page request with bounded exponential backoff on
// transient failures. Fatal API errors are returned immediately.
func (c *Client) fetchPage(ctx context.Context, q plan.SubQuery, pageToken string) (*searchResponse, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.BackoffBase << (attempt - 1)
			c.log.LogWarnf("transient failure for %q (attempt %d/%d), backing off %s: %v",
				q.Category, attempt, c.cfg.MaxAttempts, backoff, lastErr)
			if err := sleepCtx(ctx, backoff); err != nil {
				return nil, err
			}
		}

		resp, err := c.doRequest(ctx, q, pageToken)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Transient() {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", errRetriesExhausted, c.cfg.MaxAttempts, lastErr)
}

func (c *Client) doRequest(ctx context.Context, q plan.SubQuery, pageToken string) (*searchResponse, error) {
	var body searchRequest
	if pageToken != "" {
		body.PageToken = pageToken
	} else {
		body.LocationRestriction = &locationRestriction{
			Circle: circle{
				Center: latLng{Latitude: q.Lat, Longitude: q.Lng},
				Radius: float64(q.Radius),
			},
		}
		if q.Category != "" {
			body.IncludedTypes = []string{q.Category}
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/places:searchNearby", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.cfg.APIKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("page fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &sr, nil
}

func (c *Client) toVenue(p place, category string) Venue {
	website, social := splitWebsite(p.WebsiteURI)

	cat := category
	if cat == "" {
		cat = p.PrimaryType
		if cat == "" && len(p.Types) > 0 {
			cat = p.Types[0]
		}
	}

	mapsURL := ""
	if p.ID != "" {
		mapsURL = "https://www.google.com/maps/place/?q=place_id:" + p.ID
	}

	v := Venue{
		PlaceID:        p.ID,
		Name:           p.DisplayName.Text,
		Category:       cat,
		Address:        p.FormattedAddress,
		Phone:          p.NationalPhoneNumber,
		Website:        website,
		SocialURL:      social,
		MapsURL:        mapsURL,
		Rating:         p.Rating,
		ReviewCount:    p.UserRatingCount,
		PhotoCount:     len(p.Photos),
		Lat:            p.Location.Latitude,
		Lng:            p.Location.Longitude,
		BusinessStatus: p.BusinessStatus,
	}
	if p.RegularOpeningHours != nil {
		v.HasHours = p.RegularOpeningHours.OpenNow || len(p.RegularOpeningHours.WeekdayDescription) > 0
	}
	return v
}

// splitWebsite separates a real website from a social profile link.
func splitWebsite(uri string) (website, social string) {
	if uri == "" {
		return "", ""
	}
	lower := strings.ToLower(uri)
	for _, d := range socialDomains {
		if strings.Contains(lower, d) {
			return "", uri
		}
	}
	return uri, ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
