package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanEmptyCategoriesMeansAll(t *testing.T) {
	got := Plan(53.35, -6.26, 5000, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "", got[0].Category)
	assert.Equal(t, 5000, got[0].Radius)
	assert.Equal(t, 53.35, got[0].Lat)
	assert.Equal(t, -6.26, got[0].Lng)
}

func TestPlanOneSubQueryPerCategory(t *testing.T) {
	got := Plan(53.35, -6.26, 2500, []string{"restaurant", "plumber", "electrician"})
	require.Len(t, got, 3)
	for i, want := range []string{"restaurant", "plumber", "electrician"} {
		assert.Equal(t, want, got[i].Category)
		assert.Equal(t, 2500, got[i].Radius)
	}
}

func TestPlanDropsUnknownCategories(t *testing.T) {
	got := Plan(53.35, -6.26, 5000, []string{"restaurant", "flying_saucer_repair"})
	require.Len(t, got, 1)
	assert.Equal(t, "restaurant", got[0].Category)
}

func TestPlanAllInvalidYieldsEmptyPlan(t *testing.T) {
	// A non-empty but fully invalid category set harvests nothing; it is
	// not treated as "all categories".
	got := Plan(53.35, -6.26, 5000, []string{"nonsense", "more_nonsense"})
	assert.Empty(t, got)
}

func TestPlanDeduplicatesCategories(t *testing.T) {
	got := Plan(53.35, -6.26, 5000, []string{"cafe", "Cafe", "  cafe "})
	assert.Len(t, got, 1)
}

func TestNormalizeCategory(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"restaurant", "restaurant", true},
		{"  Restaurant ", "restaurant", true},
		{"restaurants", "restaurant", true}, // singular fallback
		{"plumbers", "plumber", true},
		{"gibberish", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeCategory(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}
