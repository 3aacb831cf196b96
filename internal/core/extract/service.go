package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"leadengine/internal/config"
	"leadengine/internal/core/dedup"
	"leadengine/internal/core/geo"
	"leadengine/internal/core/places"
	"leadengine/internal/core/plan"
	"leadengine/internal/core/score"
	"leadengine/internal/logger"
	"leadengine/internal/platform/store"
	"leadengine/internal/platform/tasks"
)

// perQueryEstimate seeds the progress denominator for a sub-query that has
// not finished yet: the page cap times the API's page size.
const perQueryEstimate = 100

// cancelPollInterval is how often the run watches for the cancel flag.
// Cancellation is cooperative; the worker observes it between page fetches.
const cancelPollInterval = 500 * time.Millisecond

// Harvester executes one sub-query against the places directory, streaming
// raw venue records through yield.
type Harvester interface {
	SearchNearby(ctx context.Context, q plan.SubQuery, yield func(places.Venue) bool) error
}

// Flags is the shared cancel-signal surface, redis-backed in production.
type Flags interface {
	SetFlag(ctx context.Context, key string, ttlSeconds int) error
	HasFlag(ctx context.Context, key string) (bool, error)
	ClearFlag(ctx context.Context, key string) error
}

// Enqueuer hands extraction tasks to the worker queue.
type Enqueuer interface {
	Enqueue(task *asynq.Task, queue string, maxRetries int) error
}

type Service struct {
	store     *store.Store
	flags     Flags
	queue     Enqueuer
	harvester Harvester
	cfg       config.Config
	negatives []string
	log       *logger.Logger
}

func NewService(st *store.Store, flags Flags, queue Enqueuer, h Harvester, cfg config.Config, negatives []string) *Service {
	if len(negatives) == 0 {
		negatives = score.DefaultNegativeKeywords
	}
	return &Service{
		store:     st,
		flags:     flags,
		queue:     queue,
		harvester: h,
		cfg:       cfg,
		negatives: negatives,
		log:       logger.New("Extract"),
	}
}

func cancelKey(jobID string) string { return "extract:cancel:" + jobID }

// Create validates the config, persists the job as queued and enqueues the
// extraction task.
func (s *Service) Create(ctx context.Context, ownerID string, req CreateJobRequest) (*store.Job, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	now := time.Now().UTC()
	job := &store.Job{
		ID:                uuid.New().String(),
		OwnerID:           ownerID,
		Name:              req.Name,
		CenterLat:         req.CenterLat,
		CenterLng:         req.CenterLng,
		CenterAddress:     req.CenterAddress,
		Categories:        req.Categories,
		Radius:            req.Radius,
		MinRating:         req.MinRating,
		MinReviews:        req.MinReviews,
		MinPhotos:         req.MinPhotos,
		UseQualityFilters: req.UseQualityFilters,
		SortBy:            req.SortBy,
		Status:            store.StatusQueued,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if err := s.enqueue(job.ID, ownerID); err != nil {
		return nil, fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	s.log.LogInfof("created job %s (%d categories, radius %dm)", job.ID, len(req.Categories), req.Radius)
	return job, nil
}

func (s *Service) enqueue(jobID, ownerID string) error {
	payload, err := json.Marshal(TaskPayload{JobID: jobID, OwnerID: ownerID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(tasks.TaskTypeExtract, payload)
	return s.queue.Enqueue(task, "default", s.cfg.TaskMaxRetries)
}

func (s *Service) Get(ctx context.Context, jobID, ownerID string) (*store.Job, error) {
	return s.store.GetJob(ctx, jobID, ownerID)
}

func (s *Service) List(ctx context.Context, ownerID string, limit, offset int) ([]*store.Job, error) {
	return s.store.ListJobs(ctx, ownerID, limit, offset)
}

// Cancel requests cooperative cancellation of a running job. The worker
// observes the flag between page fetches and between sub-queries.
func (s *Service) Cancel(ctx context.Context, jobID, ownerID string) error {
	job, err := s.store.GetJob(ctx, jobID, ownerID)
	if err != nil {
		return err
	}
	if job.Status != store.StatusRunning {
		return ErrNotRunning
	}
	return s.flags.SetFlag(ctx, cancelKey(jobID), 3600)
}

// Restart re-enqueues a failed or cancelled job with its original config.
// Prior leads are discarded, progress and error reset.
func (s *Service) Restart(ctx context.Context, jobID, ownerID string) error {
	job, err := s.store.GetJob(ctx, jobID, ownerID)
	if err != nil {
		return err
	}
	if !job.Terminal() {
		return ErrNotRestartable
	}
	if err := s.flags.ClearFlag(ctx, cancelKey(jobID)); err != nil {
		s.log.LogWarnf("clear cancel flag for %s: %v", jobID, err)
	}
	if err := s.store.ResetForRestart(ctx, jobID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrNotRestartable
		}
		return err
	}
	s.log.LogInfof("restarting job %s", jobID)
	return s.enqueue(jobID, ownerID)
}

// Delete removes a job and its leads, cancelling first when running.
func (s *Service) Delete(ctx context.Context, jobID, ownerID string) error {
	job, err := s.store.GetJob(ctx, jobID, ownerID)
	if err != nil {
		return err
	}
	if job.Status == store.StatusRunning {
		if err := s.flags.SetFlag(ctx, cancelKey(jobID), 3600); err != nil {
			s.log.LogWarnf("set cancel flag before delete of %s: %v", jobID, err)
		}
	}
	return s.store.DeleteJob(ctx, jobID, ownerID)
}

// Leads returns one page of persisted leads plus the total count. It serves
// whatever exists at call time, including partial results of a failed or
// cancelled run.
func (s *Service) Leads(ctx context.Context, jobID, ownerID string, limit, offset int) ([]store.Lead, int, error) {
	if _, err := s.store.GetJob(ctx, jobID, ownerID); err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountLeads(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}
	leads, err := s.store.ListLeads(ctx, jobID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

// AllLeads returns the full persisted lead set in stored order, for export.
func (s *Service) AllLeads(ctx context.Context, jobID, ownerID string) ([]store.Lead, error) {
	if _, err := s.store.GetJob(ctx, jobID, ownerID); err != nil {
		return nil, err
	}
	// LIMIT -1 is sqlite for unbounded.
	return s.store.ListLeads(ctx, jobID, -1, 0)
}

// HandleExtractTask is the asynq handler driving one run through the
// Planner -> Harvester -> Dedup -> Filter -> Scorer pipeline. It is the only
// place that writes terminal job status.
func (s *Service) HandleExtractTask(ctx context.Context, task *asynq.Task) error {
	var p TaskPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode extract payload: %w", err)
	}

	job, err := s.store.GetJobByID(ctx, p.JobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.log.LogWarnf("job %s gone before run, skipping", p.JobID)
			return nil
		}
		return err
	}
	if job.Status != store.StatusQueued {
		s.log.LogWarnf("job %s in state %s, not queued, skipping duplicate delivery", job.ID, job.Status)
		return nil
	}

	if s.cfg.PlacesAPIKey == "" {
		s.failJob(ctx, job.ID, "no API key available: configure PLACES_API_KEY", 0)
		return nil
	}

	if err := s.flags.ClearFlag(ctx, cancelKey(job.ID)); err != nil {
		s.log.LogWarnf("clear stale cancel flag for %s: %v", job.ID, err)
	}
	if err := s.store.MarkRunning(ctx, job.ID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil
		}
		return err
	}
	s.log.LogInfof("job %s running", job.ID)

	leads, seen, cancelled, runErr := s.runPipeline(ctx, job)

	// Terminal writes run on a fresh context: the task context dies when the
	// worker shuts down mid-run, and losing these writes would strand the job
	// in running with its leads discarded.
	persistCtx := context.Background()

	// A dead task context without a cancel flag means the worker was torn
	// down under us, not that the user asked to stop.
	interrupted := !cancelled && ctx.Err() != nil

	// Partial results are always preserved: leads gathered before a failure,
	// cancellation or shutdown are persisted with the terminal status.
	if err := s.store.InsertLeads(persistCtx, job.ID, leads); err != nil {
		s.log.LogError(fmt.Sprintf("persist leads for job %s", job.ID), err)
		s.failJob(persistCtx, job.ID, fmt.Sprintf("persist leads: %v", err), 0)
		return nil
	}
	if err := s.store.UpdateProgress(persistCtx, job.ID, harvestCeiling, seen); err != nil {
		s.log.LogWarnf("final progress update for %s: %v", job.ID, err)
	}

	switch {
	case cancelled:
		if err := s.store.MarkCancelled(persistCtx, job.ID, len(leads)); err != nil {
			s.log.LogError(fmt.Sprintf("mark job %s cancelled", job.ID), err)
		}
		s.log.LogInfof("job %s cancelled after %d records, %d leads kept", job.ID, seen, len(leads))
	case interrupted:
		// Failed rather than left running so restart stays legal.
		s.failJob(persistCtx, job.ID, "run interrupted: worker shut down mid-harvest", len(leads))
		s.log.LogWarnf("job %s interrupted by shutdown after %d records, %d leads kept", job.ID, seen, len(leads))
	case runErr != nil:
		s.failJob(persistCtx, job.ID, runErr.Error(), len(leads))
		s.log.LogError(fmt.Sprintf("job %s failed after %d records", job.ID, seen), runErr)
	default:
		if err := s.store.MarkCompleted(persistCtx, job.ID, len(leads)); err != nil {
			s.log.LogError(fmt.Sprintf("mark job %s completed", job.ID), err)
		}
		s.log.LogInfof("job %s completed: %d seen, %d leads", job.ID, seen, len(leads))
	}

	if err := s.flags.ClearFlag(persistCtx, cancelKey(job.ID)); err != nil {
		s.log.LogWarnf("clear cancel flag for %s: %v", job.ID, err)
	}
	return nil
}

func (s *Service) failJob(ctx context.Context, jobID, message string, leadsFound int) {
	if err := s.store.MarkFailed(ctx, jobID, message, leadsFound); err != nil {
		s.log.LogError(fmt.Sprintf("mark job %s failed", jobID), err)
	}
}

// runPipeline executes all sub-queries with a bounded worker pool, sharing
// one dedup set and one progress tracker across the run.
func (s *Service) runPipeline(ctx context.Context, job *store.Job) (leads []store.Lead, seen int, cancelled bool, runErr error) {
	subQueries := plan.Plan(job.CenterLat, job.CenterLng, job.Radius, job.Categories)
	if len(subQueries) == 0 {
		s.log.LogWarnf("job %s planned zero valid sub-queries", job.ID)
		return nil, 0, false, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var cancelRequested atomic.Bool
	go s.watchCancel(runCtx, job.ID, func() {
		cancelRequested.Store(true)
		cancel()
	})

	tr := newTracker(len(subQueries), perQueryEstimate)
	dd := dedup.New()
	thresholds := score.Thresholds{
		MinRating:  job.MinRating,
		MinReviews: job.MinReviews,
		MinPhotos:  job.MinPhotos,
	}

	concurrency := s.cfg.HarvestConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	var mu sync.Mutex
	var fatalErr error
	var wg sync.WaitGroup

	for i, q := range subQueries {
		wg.Add(1)
		go func(i int, q plan.SubQuery) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-runCtx.Done():
				return
			}
			defer func() { <-sem }()

			count := 0
			err := s.harvester.SearchNearby(runCtx, q, func(v places.Venue) bool {
				count++
				total := tr.record()
				if total%20 == 0 {
					if err := s.store.UpdateProgress(ctx, job.ID, tr.percent(), total); err != nil {
						s.log.LogWarnf("progress update for %s: %v", job.ID, err)
					}
				}
				if !dd.Accept(v.PlaceID) {
					return true
				}
				if !score.Passes(v, thresholds, job.UseQualityFilters) {
					return true
				}
				lead := s.buildLead(job, v)
				mu.Lock()
				leads = append(leads, lead)
				mu.Unlock()
				return true
			})

			tr.complete(i, count)
			if err := s.store.UpdateProgress(ctx, job.ID, tr.percent(), tr.seenCount()); err != nil {
				s.log.LogWarnf("progress update for %s: %v", job.ID, err)
			}

			if err != nil && !errors.Is(err, context.Canceled) {
				mu.Lock()
				if fatalErr == nil {
					fatalErr = fmt.Errorf("sub-query %q: %w", q.Category, err)
				}
				mu.Unlock()
				cancel()
			}
		}(i, q)
	}
	wg.Wait()

	sortLeads(leads, job.SortBy)

	if cancelRequested.Load() {
		return leads, tr.seenCount(), true, nil
	}
	return leads, tr.seenCount(), false, fatalErr
}

// watchCancel polls the shared cancel flag until the run ends.
func (s *Service) watchCancel(ctx context.Context, jobID string, onCancel func()) {
	ticker := time.NewTicker(cancelPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			set, err := s.flags.HasFlag(ctx, cancelKey(jobID))
			if err != nil {
				s.log.LogWarnf("poll cancel flag for %s: %v", jobID, err)
				continue
			}
			if set {
				s.log.LogInfof("cancellation requested for job %s", jobID)
				onCancel()
				return
			}
		}
	}
}

func (s *Service) buildLead(job *store.Job, v places.Venue) store.Lead {
	km := geo.DistanceKm(job.CenterLat, job.CenterLng, v.Lat, v.Lng)
	return store.Lead{
		JobID:          job.ID,
		PlaceID:        v.PlaceID,
		Name:           v.Name,
		Category:       v.Category,
		Address:        v.Address,
		Phone:          v.Phone,
		Rating:         v.Rating,
		ReviewCount:    v.ReviewCount,
		PhotoCount:     v.PhotoCount,
		Website:        v.Website,
		SocialURL:      v.SocialURL,
		MapsURL:        v.MapsURL,
		BusinessStatus: v.BusinessStatus,
		HasHours:       v.HasHours,
		HasPhone:       v.HasPhone(),
		Lat:            v.Lat,
		Lng:            v.Lng,
		DistanceKm:     geo.Round2(km),
		DistanceMiles:  geo.Round2(geo.MilesFromKm(km)),
		LeadScore:      score.Score(v, s.negatives),
	}
}

// sortLeads orders by score descending (stable, so equal scores keep
// insertion order) or by distance ascending.
func sortLeads(leads []store.Lead, sortBy string) {
	switch sortBy {
	case store.SortByDistance:
		sort.SliceStable(leads, func(i, j int) bool {
			return leads[i].DistanceKm < leads[j].DistanceKm
		})
	default:
		sort.SliceStable(leads, func(i, j int) bool {
			return leads[i].LeadScore > leads[j].LeadScore
		})
	}
}
