package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"leadengine/internal/logger"
)

var (
	ErrNotFound = errors.New("job not found")
	// ErrConflict is returned when a conditional status transition matched no
	// row, i.e. the job was not in the expected state.
	ErrConflict = errors.New("job not in expected state")
)

type Store struct {
	db  *sql.DB
	log *logger.Logger
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, log: logger.New("Store")}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued',
		center_lat REAL NOT NULL,
		center_lng REAL NOT NULL,
		center_address TEXT,
		categories TEXT,
		radius INTEGER NOT NULL DEFAULT 5000,
		min_rating REAL NOT NULL DEFAULT 4.0,
		min_reviews INTEGER NOT NULL DEFAULT 10,
		min_photos INTEGER NOT NULL DEFAULT 3,
		use_quality_filters INTEGER NOT NULL DEFAULT 0,
		sort_by TEXT NOT NULL DEFAULT 'score',
		progress INTEGER NOT NULL DEFAULT 0,
		total_businesses INTEGER NOT NULL DEFAULT 0,
		leads_found INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_owner ON jobs(owner_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);

	CREATE TABLE IF NOT EXISTS leads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		place_id TEXT NOT NULL,
		name TEXT NOT NULL,
		category TEXT,
		address TEXT,
		phone TEXT,
		rating REAL NOT NULL DEFAULT 0,
		review_count INTEGER NOT NULL DEFAULT 0,
		photo_count INTEGER NOT NULL DEFAULT 0,
		website TEXT,
		social_url TEXT,
		maps_url TEXT,
		business_status TEXT,
		has_hours INTEGER NOT NULL DEFAULT 0,
		has_phone INTEGER NOT NULL DEFAULT 0,
		lat REAL NOT NULL DEFAULT 0,
		lng REAL NOT NULL DEFAULT 0,
		distance_km REAL NOT NULL DEFAULT 0,
		distance_miles REAL NOT NULL DEFAULT 0,
		lead_score INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (job_id) REFERENCES jobs(id) ON DELETE CASCADE,
		UNIQUE (job_id, place_id)
	);

	CREATE INDEX IF NOT EXISTS idx_leads_job ON leads(job_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) CreateJob(ctx context.Context, j *Job) error {
	cats, err := json.Marshal(j.Categories)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, owner_id, name, status, center_lat, center_lng, center_address,
			categories, radius, min_rating, min_reviews, min_photos, use_quality_filters,
			sort_by, progress, total_businesses, leads_found, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, ?, ?)
	`, j.ID, j.OwnerID, j.Name, j.Status, j.CenterLat, j.CenterLng, nullString(j.CenterAddress),
		string(cats), j.Radius, j.MinRating, j.MinReviews, j.MinPhotos, boolInt(j.UseQualityFilters),
		j.SortBy, j.CreatedAt, j.UpdatedAt)
	return err
}

const jobColumns = `id, owner_id, name, status, center_lat, center_lng, center_address,
	categories, radius, min_rating, min_reviews, min_photos, use_quality_filters, sort_by,
	progress, total_businesses, leads_found, error_message, created_at, updated_at, completed_at`

func (s *Store) scanJob(row interface{ Scan(...interface{}) error }) (*Job, error) {
	var j Job
	var addr, cats, errMsg sql.NullString
	var quality int
	var completedAt sql.NullTime
	err := row.Scan(&j.ID, &j.OwnerID, &j.Name, &j.Status, &j.CenterLat, &j.CenterLng, &addr,
		&cats, &j.Radius, &j.MinRating, &j.MinReviews, &j.MinPhotos, &quality, &j.SortBy,
		&j.Progress, &j.TotalBusinesses, &j.LeadsFound, &errMsg, &j.CreatedAt, &j.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	j.CenterAddress = addr.String
	j.ErrorMessage = errMsg.String
	j.UseQualityFilters = quality != 0
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	if cats.Valid && cats.String != "" {
		if err := json.Unmarshal([]byte(cats.String), &j.Categories); err != nil {
			return nil, fmt.Errorf("decode categories for job %s: %w", j.ID, err)
		}
	}
	return &j, nil
}

// GetJob looks up a job scoped to its owner.
func (s *Store) GetJob(ctx context.Context, id, ownerID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ? AND owner_id = ?`, id, ownerID)
	return s.scanJob(row)
}

// GetJobByID looks up a job without owner scoping, for the worker side.
func (s *Store) GetJobByID(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return s.scanJob(row)
}

func (s *Store) ListJobs(ctx context.Context, ownerID string, limit, offset int) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE owner_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*Job{}
	for rows.Next() {
		j, err := s.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// MarkRunning transitions queued -> running. Returns ErrConflict if the job
// was not queued, which keeps a duplicate task delivery from re-running a
// finished job.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	return s.transition(ctx, `
		UPDATE jobs SET status = ?, error_message = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		StatusRunning, time.Now().UTC(), id, StatusQueued)
}

// UpdateProgress bumps the seen counter and progress while running. Progress
// is clamped non-decreasing in SQL so concurrent sub-query reporters can never
// move it backward.
func (s *Store) UpdateProgress(ctx context.Context, id string, progress, totalSeen int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET progress = max(progress, ?), total_businesses = max(total_businesses, ?), updated_at = ?
		WHERE id = ? AND status = ?`,
		progress, totalSeen, time.Now().UTC(), id, StatusRunning)
	return err
}

func (s *Store) MarkCompleted(ctx context.Context, id string, leadsFound int) error {
	now := time.Now().UTC()
	return s.transition(ctx, `
		UPDATE jobs SET status = ?, progress = 100, leads_found = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		StatusCompleted, leadsFound, now, now, id, StatusRunning)
}

func (s *Store) MarkFailed(ctx context.Context, id, message string, leadsFound int) error {
	return s.transition(ctx, `
		UPDATE jobs SET status = ?, error_message = ?, leads_found = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		StatusFailed, message, leadsFound, time.Now().UTC(), id, StatusQueued, StatusRunning)
}

func (s *Store) MarkCancelled(ctx context.Context, id string, leadsFound int) error {
	return s.transition(ctx, `
		UPDATE jobs SET status = ?, leads_found = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		StatusCancelled, leadsFound, time.Now().UTC(), id, StatusRunning)
}

// ResetForRestart re-enters a terminal job at queued with the original config:
// progress and counters to zero, error cleared, prior leads discarded.
func (s *Store) ResetForRestart(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, progress = 0, total_businesses = 0, leads_found = 0,
			error_message = NULL, completed_at = NULL, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		StatusQueued, time.Now().UTC(), id, StatusFailed, StatusCancelled)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM leads WHERE job_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) DeleteJob(ctx context.Context, id, ownerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM leads WHERE job_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertLeads appends scored leads in one transaction. Position preserves the
// sorted order chosen at persistence time.
func (s *Store) InsertLeads(ctx context.Context, jobID string, leads []Lead) error {
	if len(leads) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO leads (job_id, place_id, name, category, address, phone, rating,
			review_count, photo_count, website, social_url, maps_url, business_status,
			has_hours, has_phone, lat, lng, distance_km, distance_miles, lead_score, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, l := range leads {
		_, err := stmt.ExecContext(ctx, jobID, l.PlaceID, l.Name, l.Category, l.Address,
			nullString(l.Phone), l.Rating, l.ReviewCount, l.PhotoCount, nullString(l.Website),
			nullString(l.SocialURL), l.MapsURL, l.BusinessStatus, boolInt(l.HasHours),
			boolInt(l.HasPhone), l.Lat, l.Lng, l.DistanceKm, l.DistanceMiles, l.LeadScore, i)
		if err != nil {
			return fmt.Errorf("insert lead %s for job %s: %w", l.PlaceID, jobID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListLeads(ctx context.Context, jobID string, limit, offset int) ([]Lead, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, place_id, name, category, address, phone, rating, review_count,
			photo_count, website, social_url, maps_url, business_status, has_hours, has_phone,
			lat, lng, distance_km, distance_miles, lead_score, position
		FROM leads WHERE job_id = ? ORDER BY position LIMIT ? OFFSET ?`,
		jobID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []Lead{}
	for rows.Next() {
		var l Lead
		var category, address, phone, website, social, mapsURL, status sql.NullString
		var hasHours, hasPhone int
		err := rows.Scan(&l.ID, &l.JobID, &l.PlaceID, &l.Name, &category, &address, &phone,
			&l.Rating, &l.ReviewCount, &l.PhotoCount, &website, &social, &mapsURL, &status,
			&hasHours, &hasPhone, &l.Lat, &l.Lng, &l.DistanceKm, &l.DistanceMiles,
			&l.LeadScore, &l.Position)
		if err != nil {
			return nil, err
		}
		l.Category = category.String
		l.Address = address.String
		l.Phone = phone.String
		l.Website = website.String
		l.SocialURL = social.String
		l.MapsURL = mapsURL.String
		l.BusinessStatus = status.String
		l.HasHours = hasHours != 0
		l.HasPhone = hasPhone != 0
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

func (s *Store) CountLeads(ctx context.Context, jobID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads WHERE job_id = ?`, jobID).Scan(&n)
	return n, err
}

func (s *Store) transition(ctx context.Context, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
