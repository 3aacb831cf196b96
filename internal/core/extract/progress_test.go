package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerNeverRegresses(t *testing.T) {
	tr := newTracker(2, 100)

	for i := 0; i < 100; i++ {
		tr.record()
	}
	assert.Equal(t, 45, tr.percent()) // 100 of 200 estimated

	// First sub-query finishes well under estimate. The denominator shrinks
	// but the reported percent must not jump backwards later, so the raw
	// recomputation can only move it forward.
	tr.complete(0, 40)
	first := tr.percent()
	assert.GreaterOrEqual(t, first, 45)

	tr.record()
	assert.GreaterOrEqual(t, tr.percent(), first)
}

func TestTrackerEstimateCollapseRaisesPercent(t *testing.T) {
	tr := newTracker(2, 100)
	for i := 0; i < 60; i++ {
		tr.record()
	}
	before := tr.percent()

	// 60 actual for sub-query 0: denominator drops from 200 to 160.
	tr.complete(0, 60)
	assert.Greater(t, tr.percent(), before)
}

func TestTrackerCapsAtHarvestCeiling(t *testing.T) {
	tr := newTracker(1, 10)
	for i := 0; i < 50; i++ {
		tr.record()
	}
	assert.Equal(t, harvestCeiling, tr.percent())
}

func TestTrackerZeroTotalReportsCeiling(t *testing.T) {
	tr := newTracker(1, 100)
	tr.complete(0, 0)
	assert.Equal(t, harvestCeiling, tr.percent())
}

func TestTrackerSeenCount(t *testing.T) {
	tr := newTracker(3, 100)
	assert.Equal(t, 0, tr.seenCount())
	tr.record()
	tr.record()
	assert.Equal(t, 2, tr.seenCount())
}

func TestTrackerCompleteIgnoresOutOfRange(t *testing.T) {
	tr := newTracker(1, 100)
	tr.complete(5, 10)
	tr.complete(-1, 10)
	assert.Equal(t, 0, tr.percent())
}
