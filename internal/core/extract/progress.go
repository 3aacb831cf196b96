package extract

import "sync"

// harvestCeiling is the percent band the harvest phase maps into; the
// remainder is claimed by persistence and the terminal completed write.
const harvestCeiling = 90

// tracker turns raw-record counts into a monotonic percent estimate. Each
// pending sub-query contributes a fixed estimate to the denominator; once a
// sub-query finishes, its estimate collapses to its actual yield. The
// reported percent only ever moves forward, even when an estimate shrinks.
type tracker struct {
	mu        sync.Mutex
	estimates []int
	seen      int
	best      int
}

func newTracker(subQueries, perQueryEstimate int) *tracker {
	t := &tracker{estimates: make([]int, subQueries)}
	for i := range t.estimates {
		t.estimates[i] = perQueryEstimate
	}
	return t
}

// record counts one raw venue record and returns the running total.
func (t *tracker) record() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen++
	return t.seen
}

func (t *tracker) seenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seen
}

// complete refines the estimate for a finished sub-query with its actual yield.
func (t *tracker) complete(i, actual int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= 0 && i < len(t.estimates) {
		t.estimates[i] = actual
	}
}

// percent returns the harvest-phase progress in [0, harvestCeiling].
func (t *tracker) percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := 0
	for _, e := range t.estimates {
		total += e
	}
	p := harvestCeiling
	if total > 0 {
		p = t.seen * harvestCeiling / total
		if p > harvestCeiling {
			p = harvestCeiling
		}
	}
	if p < t.best {
		return t.best
	}
	t.best = p
	return p
}
