package extract

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadengine/internal/config"
	"leadengine/internal/core/places"
	"leadengine/internal/core/plan"
	"leadengine/internal/core/score"
	"leadengine/internal/platform/store"
	"leadengine/internal/platform/tasks"
)

type fakeFlags struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newFakeFlags() *fakeFlags { return &fakeFlags{keys: map[string]bool{}} }

func (f *fakeFlags) SetFlag(ctx context.Context, key string, ttlSeconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key] = true
	return nil
}

func (f *fakeFlags) HasFlag(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[key], nil
}

func (f *fakeFlags) ClearFlag(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
	return nil
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (q *fakeQueue) Enqueue(task *asynq.Task, queue string, maxRetries int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

type fakeHarvester struct {
	fn func(ctx context.Context, q plan.SubQuery, yield func(places.Venue) bool) error
}

func (h *fakeHarvester) SearchNearby(ctx context.Context, q plan.SubQuery, yield func(places.Venue) bool) error {
	return h.fn(ctx, q, yield)
}

func venue(placeID, name string, rating float64, reviews, photos int) places.Venue {
	return places.Venue{
		PlaceID:        placeID,
		Name:           name,
		Category:       "cafe",
		Address:        "1 Main St",
		Phone:          "+35312345678",
		Rating:         rating,
		ReviewCount:    reviews,
		PhotoCount:     photos,
		Website:        "https://example.com",
		MapsURL:        "https://www.google.com/maps/place/?q=place_id:" + placeID,
		BusinessStatus: "OPERATIONAL",
		HasHours:       true,
		Lat:            53.35,
		Lng:            -6.26,
	}
}

func newTestService(t *testing.T, h Harvester, cfg config.Config) (*Service, *store.Store, *fakeQueue, *fakeFlags) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "extract.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	flags := newFakeFlags()
	queue := &fakeQueue{}
	svc := NewService(st, flags, queue, h, cfg, nil)
	return svc, st, queue, flags
}

func baseConfig() config.Config {
	return config.Config{PlacesAPIKey: "test-key", HarvestConcurrency: 2}
}

func createQueuedJob(t *testing.T, svc *Service, categories []string) *store.Job {
	t.Helper()
	job, err := svc.Create(context.Background(), "owner-1", CreateJobRequest{
		Name:              "test extraction",
		CenterLat:         53.3498,
		CenterLng:         -6.2603,
		Categories:        categories,
		Radius:            5000,
		MinRating:         4.0,
		MinReviews:        10,
		MinPhotos:         3,
		UseQualityFilters: true,
	})
	require.NoError(t, err)
	return job
}

func extractTask(t *testing.T, jobID string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(TaskPayload{JobID: jobID, OwnerID: "owner-1"})
	require.NoError(t, err)
	return asynq.NewTask(tasks.TaskTypeExtract, payload)
}

func TestCreateAppliesDefaultsAndEnqueues(t *testing.T) {
	svc, st, queue, _ := newTestService(t, &fakeHarvester{}, baseConfig())

	job, err := svc.Create(context.Background(), "owner-1", CreateJobRequest{
		Name:      "defaults",
		CenterLat: 53.3498,
		CenterLng: -6.2603,
	})
	require.NoError(t, err)

	assert.Equal(t, defaultRadius, job.Radius)
	assert.Equal(t, defaultMinRating, job.MinRating)
	assert.Equal(t, defaultMinReviews, job.MinReviews)
	assert.Equal(t, defaultMinPhotos, job.MinPhotos)
	assert.Equal(t, store.SortByScore, job.SortBy)
	assert.Equal(t, store.StatusQueued, job.Status)
	assert.Equal(t, 1, queue.count())

	stored, err := st.GetJob(context.Background(), job.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusQueued, stored.Status)
}

func TestCreateRejectsInvalidConfig(t *testing.T) {
	svc, _, queue, _ := newTestService(t, &fakeHarvester{}, baseConfig())
	ctx := context.Background()

	_, err := svc.Create(ctx, "owner-1", CreateJobRequest{CenterLat: 53, CenterLng: -6})
	assert.ErrorIs(t, err, ErrInvalidConfig) // missing name

	_, err = svc.Create(ctx, "owner-1", CreateJobRequest{Name: "x", CenterLat: 91, CenterLng: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = svc.Create(ctx, "owner-1", CreateJobRequest{Name: "x", CenterLat: 53, CenterLng: -6, Radius: 50})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = svc.Create(ctx, "owner-1", CreateJobRequest{Name: "x", CenterLat: 53, CenterLng: -6, SortBy: "alphabetical"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	assert.Equal(t, 0, queue.count())
}

func TestHandleExtractTaskHappyPath(t *testing.T) {
	// "shared" appears in both sub-queries and must surface exactly once.
	// "thin" fails the review threshold; "unrated" has no rating at all.
	byCategory := map[string][]places.Venue{
		"cafe": {
			venue("shared", "Corner Cafe", 4.6, 120, 8),
			venue("solo-cafe", "Quiet Beans", 4.2, 30, 4),
			venue("thin", "New Spot", 4.8, 3, 2),
		},
		"restaurant": {
			venue("shared", "Corner Cafe", 4.6, 120, 8),
			venue("solo-rest", "Old Mill", 4.9, 400, 20),
			venue("unrated", "Mystery Diner", 0, 0, 0),
		},
	}
	h := &fakeHarvester{fn: func(ctx context.Context, q plan.SubQuery, yield func(places.Venue) bool) error {
		for _, v := range byCategory[q.Category] {
			if !yield(v) {
				return nil
			}
		}
		return nil
	}}
	svc, st, _, _ := newTestService(t, h, baseConfig())
	job := createQueuedJob(t, svc, []string{"cafe", "restaurant"})

	require.NoError(t, svc.HandleExtractTask(context.Background(), extractTask(t, job.ID)))

	got, err := st.GetJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 6, got.TotalBusinesses)
	assert.Equal(t, 3, got.LeadsFound)
	require.NotNil(t, got.CompletedAt)

	leads, err := st.ListLeads(context.Background(), job.ID, -1, 0)
	require.NoError(t, err)
	require.Len(t, leads, 3)

	ids := make(map[string]int)
	for _, l := range leads {
		ids[l.PlaceID]++
	}
	assert.Equal(t, map[string]int{"shared": 1, "solo-cafe": 1, "solo-rest": 1}, ids)

	// Stored in score-descending order with scores from the shared table.
	for i := 1; i < len(leads); i++ {
		assert.GreaterOrEqual(t, leads[i-1].LeadScore, leads[i].LeadScore)
	}
	for _, l := range leads {
		want := score.Score(venue(l.PlaceID, l.Name, l.Rating, l.ReviewCount, l.PhotoCount), score.DefaultNegativeKeywords)
		assert.Equal(t, want, l.LeadScore, "score for %s", l.PlaceID)
	}
}

func TestHandleExtractTaskFatalErrorKeepsPartialLeads(t *testing.T) {
	h := &fakeHarvester{fn: func(ctx context.Context, q plan.SubQuery, yield func(places.Venue) bool) error {
		yield(venue("ok-1", "Survivor", 4.5, 50, 6))
		return &places.APIError{StatusCode: 401, Message: "invalid key"}
	}}
	svc, st, _, _ := newTestService(t, h, baseConfig())
	job := createQueuedJob(t, svc, []string{"cafe"})

	require.NoError(t, svc.HandleExtractTask(context.Background(), extractTask(t, job.ID)))

	got, err := st.GetJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "status 401")
	assert.Equal(t, 1, got.LeadsFound)

	leads, err := st.ListLeads(context.Background(), job.ID, -1, 0)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "ok-1", leads[0].PlaceID)
}

func TestHandleExtractTaskMissingAPIKey(t *testing.T) {
	cfg := baseConfig()
	cfg.PlacesAPIKey = ""
	svc, st, _, _ := newTestService(t, &fakeHarvester{}, cfg)
	job := createQueuedJob(t, svc, []string{"cafe"})

	require.NoError(t, svc.HandleExtractTask(context.Background(), extractTask(t, job.ID)))

	got, err := st.GetJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "PLACES_API_KEY")
}

func TestHandleExtractTaskSkipsNonQueuedJob(t *testing.T) {
	svc, st, _, _ := newTestService(t, &fakeHarvester{}, baseConfig())
	job := createQueuedJob(t, svc, []string{"cafe"})
	require.NoError(t, st.MarkRunning(context.Background(), job.ID))
	require.NoError(t, st.MarkCompleted(context.Background(), job.ID, 0))

	require.NoError(t, svc.HandleExtractTask(context.Background(), extractTask(t, job.ID)))

	got, err := st.GetJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, got.Status)
}

func TestHandleExtractTaskUnknownJobIsDropped(t *testing.T) {
	svc, _, _, _ := newTestService(t, &fakeHarvester{}, baseConfig())
	assert.NoError(t, svc.HandleExtractTask(context.Background(), extractTask(t, "missing")))
}

func TestHandleExtractTaskCooperativeCancel(t *testing.T) {
	svc, st, _, flags := newTestService(t, &fakeHarvester{}, baseConfig())
	job := createQueuedJob(t, svc, []string{"cafe"})

	svc.harvester = &fakeHarvester{fn: func(ctx context.Context, q plan.SubQuery, yield func(places.Venue) bool) error {
		yield(venue("before-cancel", "First Through", 4.5, 50, 6))
		// Simulate the caller hitting cancel mid-harvest, then block like an
		// in-flight fetch until the run context is torn down.
		if err := flags.SetFlag(ctx, cancelKey(job.ID), 0); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return errors.New("run context never cancelled")
		}
	}}

	require.NoError(t, svc.HandleExtractTask(context.Background(), extractTask(t, job.ID)))

	got, err := st.GetJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCancelled, got.Status)
	assert.Equal(t, 1, got.LeadsFound)

	leads, err := st.ListLeads(context.Background(), job.ID, -1, 0)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "before-cancel", leads[0].PlaceID)

	// The cancel flag is cleared once the terminal status is written.
	set, err := flags.HasFlag(context.Background(), cancelKey(job.ID))
	require.NoError(t, err)
	assert.False(t, set)
}

func TestHandleExtractTaskWorkerShutdownMidRun(t *testing.T) {
	svc, st, _, _ := newTestService(t, &fakeHarvester{}, baseConfig())
	job := createQueuedJob(t, svc, []string{"cafe"})

	taskCtx, stopWorker := context.WithCancel(context.Background())
	svc.harvester = &fakeHarvester{fn: func(ctx context.Context, q plan.SubQuery, yield func(places.Venue) bool) error {
		yield(venue("survivor", "Still Here", 4.5, 50, 6))
		// The worker is torn down mid-harvest; the run context dies with it.
		stopWorker()
		<-ctx.Done()
		return ctx.Err()
	}}

	require.NoError(t, svc.HandleExtractTask(taskCtx, extractTask(t, job.ID)))

	// Interruption is not a user cancel: the job must land in a terminal
	// state with its partial leads kept, never stay running.
	got, err := st.GetJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "interrupted")
	assert.Equal(t, 1, got.LeadsFound)

	leads, err := st.ListLeads(context.Background(), job.ID, -1, 0)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "survivor", leads[0].PlaceID)

	// And the job is recoverable through the normal restart path.
	require.NoError(t, svc.Restart(context.Background(), job.ID, "owner-1"))
	got, err = st.GetJobByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusQueued, got.Status)
}

func TestCancelRejectsNonRunningJob(t *testing.T) {
	svc, st, _, flags := newTestService(t, &fakeHarvester{}, baseConfig())
	job := createQueuedJob(t, svc, []string{"cafe"})
	ctx := context.Background()

	assert.ErrorIs(t, svc.Cancel(ctx, job.ID, "owner-1"), ErrNotRunning)

	require.NoError(t, st.MarkRunning(ctx, job.ID))
	require.NoError(t, svc.Cancel(ctx, job.ID, "owner-1"))
	set, err := flags.HasFlag(ctx, cancelKey(job.ID))
	require.NoError(t, err)
	assert.True(t, set)
}

func TestRestartResetsAndReenqueues(t *testing.T) {
	svc, st, queue, flags := newTestService(t, &fakeHarvester{}, baseConfig())
	job := createQueuedJob(t, svc, []string{"cafe"})
	ctx := context.Background()
	require.NoError(t, st.MarkRunning(ctx, job.ID))
	require.NoError(t, st.InsertLeads(ctx, job.ID, []store.Lead{{PlaceID: "stale", Name: "Stale"}}))
	require.NoError(t, st.MarkFailed(ctx, job.ID, "boom", 1))
	require.NoError(t, flags.SetFlag(ctx, cancelKey(job.ID), 0))
	enqueued := queue.count()

	require.NoError(t, svc.Restart(ctx, job.ID, "owner-1"))

	got, err := st.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusQueued, got.Status)
	assert.Equal(t, 0, got.Progress)
	assert.Empty(t, got.ErrorMessage)
	assert.Equal(t, job.Categories, got.Categories)

	n, err := st.CountLeads(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Equal(t, enqueued+1, queue.count())

	set, err := flags.HasFlag(ctx, cancelKey(job.ID))
	require.NoError(t, err)
	assert.False(t, set)
}

func TestRestartRejectsNonTerminalJob(t *testing.T) {
	svc, st, _, _ := newTestService(t, &fakeHarvester{}, baseConfig())
	job := createQueuedJob(t, svc, []string{"cafe"})
	ctx := context.Background()

	assert.ErrorIs(t, svc.Restart(ctx, job.ID, "owner-1"), ErrNotRestartable)

	require.NoError(t, st.MarkRunning(ctx, job.ID))
	require.NoError(t, st.MarkCompleted(ctx, job.ID, 0))
	assert.ErrorIs(t, svc.Restart(ctx, job.ID, "owner-1"), ErrNotRestartable)
}

func TestLeadsPagination(t *testing.T) {
	svc, st, _, _ := newTestService(t, &fakeHarvester{}, baseConfig())
	job := createQueuedJob(t, svc, []string{"cafe"})
	ctx := context.Background()
	require.NoError(t, st.InsertLeads(ctx, job.ID, []store.Lead{
		{PlaceID: "a", Name: "A"}, {PlaceID: "b", Name: "B"}, {PlaceID: "c", Name: "C"},
	}))

	page, total, err := svc.Leads(ctx, job.ID, "owner-1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "a", page[0].PlaceID)

	_, _, err = svc.Leads(ctx, job.ID, "other-owner", 2, 0)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSortLeadsByDistance(t *testing.T) {
	leads := []store.Lead{
		{PlaceID: "far", DistanceKm: 4.2, LeadScore: 150},
		{PlaceID: "near", DistanceKm: 0.3, LeadScore: 40},
		{PlaceID: "mid", DistanceKm: 1.1, LeadScore: 90},
	}
	sortLeads(leads, store.SortByDistance)
	assert.Equal(t, "near", leads[0].PlaceID)
	assert.Equal(t, "mid", leads[1].PlaceID)
	assert.Equal(t, "far", leads[2].PlaceID)
}
