package plan

import "strings"

// SubQuery is one independently harvestable slice of a job: same center and
// radius, one category (empty = all categories).
type SubQuery struct {
	Lat      float64
	Lng      float64
	Radius   int
	Category string
}

// Plan decomposes a center+radius+category request into sub-queries. The
// directory API caps results per query well below what a dense area contains,
// so multi-category jobs get one sub-query per category. An empty category
// set means "all categories", never "no results".
//
// Unknown category names are normalized (lowercase, trimmed, trailing "s"
// stripped as a singular fallback) and dropped when still unknown; a request
// whose categories are all invalid plans to an empty harvest, which completes
// the job with zero leads rather than failing it.
func Plan(lat, lng float64, radius int, categories []string) []SubQuery {
	if len(categories) == 0 {
		return []SubQuery{{Lat: lat, Lng: lng, Radius: radius}}
	}

	out := make([]SubQuery, 0, len(categories))
	seen := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		t, ok := NormalizeCategory(c)
		if !ok {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, SubQuery{Lat: lat, Lng: lng, Radius: radius, Category: t})
	}
	return out
}

// NormalizeCategory lowercases and trims a category name and falls back to
// the singular form when the plural is not a known type.
func NormalizeCategory(c string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(c))
	if t == "" {
		return "", false
	}
	if IsValidCategory(t) {
		return t, true
	}
	if strings.HasSuffix(t, "s") {
		singular := strings.TrimSuffix(t, "s")
		if IsValidCategory(singular) {
			return singular, true
		}
	}
	return "", false
}
