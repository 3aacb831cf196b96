package score

import (
	"strings"

	"leadengine/internal/core/places"
)

// Point table. The penalty can pull a score down but never below zero.
const (
	ratingExcellent = 4.5
	ratingGood      = 4.0
	ratingFair      = 3.5

	reviewsHigh   = 50
	reviewsMedium = 10
	reviewsLow    = 1

	photosMany = 10
	photosSome = 3

	operationalBonus = 5
	hasHoursBonus    = 10
	hasPhoneBonus    = 10
	hasAddressBonus  = 10

	negativeKeywordPenalty = 50
)

// DefaultNegativeKeywords flags large chains and institutions whose listings
// are not sellable leads. Matching is a case-insensitive substring check
// against the raw venue name; no diacritic normalization.
var DefaultNegativeKeywords = []string{
	"starbucks",
	"mcdonald",
	"burger king",
	"subway",
	"kfc",
	"domino",
	"pizza hut",
	"taco bell",
	"wendy's",
	"dunkin",
	"chipotle",
	"walmart",
	"costco",
	"target",
	"aldi",
	"lidl",
	"tesco",
	"carrefour",
	"7-eleven",
	"walgreens",
	"cvs",
	"ikea",
	"h&m",
	"zara",
	"best buy",
	"home depot",
	"marriott",
	"hilton",
	"holiday inn",
	"shell",
	"chevron",
	"exxon",
	"bp ",
	"hospital",
	"university",
	"city hall",
	"post office",
	"police",
	"fire department",
	"public library",
	"embassy",
	"ministry",
}

// Score maps venue attributes to an integer lead score. Deterministic, no
// side effects.
func Score(v places.Venue, negatives []string) int {
	score := 0

	switch {
	case v.Rating >= ratingExcellent:
		score += 30
	case v.Rating >= ratingGood:
		score += 20
	case v.Rating >= ratingFair:
		score += 10
	}

	switch {
	case v.ReviewCount >= reviewsHigh:
		score += 30
	case v.ReviewCount >= reviewsMedium:
		score += 20
	case v.ReviewCount >= reviewsLow:
		score += 10
	}

	switch {
	case v.PhotoCount >= photosMany:
		score += 20
	case v.PhotoCount >= photosSome:
		score += 10
	}

	if v.Operational() {
		score += operationalBonus
	}
	if v.HasHours {
		score += hasHoursBonus
	}
	if v.HasPhone() {
		score += hasPhoneBonus
	}
	if v.HasAddress() {
		score += hasAddressBonus
	}

	if MatchesNegativeKeyword(v.Name, negatives) {
		score -= negativeKeywordPenalty
	}

	if score < 0 {
		return 0
	}
	return score
}

// MatchesNegativeKeyword reports whether the venue name contains any entry of
// the keyword list, case-insensitive.
func MatchesNegativeKeyword(name string, negatives []string) bool {
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	for _, kw := range negatives {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
