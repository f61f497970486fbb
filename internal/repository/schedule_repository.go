package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postdeck/postdeck/internal/models"
)

const jobSelectList = `id, post_id, status, run_at, locked_at, worker_id, attempts, created_at, updated_at`

type ScheduleRepository interface {
	GetByID(ctx context.Context, id int64) (*models.ScheduleJob, error)
	ClaimBatch(ctx context.Context, workerID string, limit int) ([]*models.ClaimedJob, error)
	CountDuePending(ctx context.Context) (int, error)
	ReleaseAllLockedBy(ctx context.Context, workerID string) (int64, error)
	ReleaseStuck(ctx context.Context, olderThan time.Duration) (int64, error)
	FailStalePending(ctx context.Context, olderThan time.Duration, message string) (int64, error)
	Requeue(ctx context.Context, jobID int64, attempts int) error
	MarkPublished(ctx context.Context, jobID int64) error
	MarkFailed(ctx context.Context, jobID int64, attempts int) error
	Stats(ctx context.Context) (*models.QueueStats, error)
}

type scheduleRepository struct {
	db *sql.DB
}

func NewScheduleRepository(db *sql.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

func (r *scheduleRepository) GetByID(ctx context.Context, id int64) (*models.ScheduleJob, error) {
	query := `SELECT ` + jobSelectList + ` FROM schedule WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	job, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return job, nil
}

// ClaimBatch atomically flips up to limit due pending rows to processing,
// marking them with this worker's id. FOR UPDATE SKIP LOCKED closes the
// read-then-claim race between concurrent workers.
func (r *scheduleRepository) ClaimBatch(ctx context.Context, workerID string, limit int) ([]*models.ClaimedJob, error) {
	query := `
		UPDATE schedule
		SET status = $1, locked_at = NOW(), worker_id = $2, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM schedule
			WHERE status = $3 AND run_at <= NOW()
			ORDER BY run_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobSelectList + `
	`

	rows, err := r.db.QueryContext(ctx, query, models.JobStatusProcessing, workerID, models.JobStatusPending, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.ScheduleJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err = rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	claimed := make([]*models.ClaimedJob, 0, len(jobs))
	for _, job := range jobs {
		cj, err := r.hydrate(ctx, job)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		claimed = append(claimed, cj)
	}

	return claimed, nil
}

func (r *scheduleRepository) hydrate(ctx context.Context, job *models.ScheduleJob) (*models.ClaimedJob, error) {
	query := `
		SELECT p.id, p.platform, p.post_type, p.caption, p.first_comment, p.tagged_people,
			p.media_set_id, p.account_id, p.status, p.external_post_id, p.error_message,
			p.attempts, p.published_at, p.created_at, p.updated_at,
			a.id, a.platform, a.account_id, a.account_name, a.account_username,
			a.credential_ref, a.account_status
		FROM posts p
		LEFT JOIN social_accounts a ON a.id = p.account_id
		WHERE p.id = $1
	`

	var post models.Post
	// external_post_id and error_message stay NULL until an outcome is
	// recorded, which is every row at claim time.
	var externalPostID, errorMessage sql.NullString
	var accID sql.NullInt64
	var accPlatform, accExternalID, accName, accUsername, accStatus sql.NullString
	var accCredentialRef sql.NullInt64

	err := r.db.QueryRowContext(ctx, query, job.PostID).Scan(
		&post.ID, &post.Platform, &post.PostType, &post.Caption, &post.FirstComment, &post.TaggedPeople,
		&post.MediaSetID, &post.AccountID, &post.Status, &externalPostID, &errorMessage,
		&post.Attempts, &post.PublishedAt, &post.CreatedAt, &post.UpdatedAt,
		&accID, &accPlatform, &accExternalID, &accName, &accUsername,
		&accCredentialRef, &accStatus,
	)
	if err != nil {
		return nil, err
	}
	post.ExternalPostID = externalPostID.String
	post.ErrorMessage = errorMessage.String

	cj := &models.ClaimedJob{Job: *job, Post: post}
	if accID.Valid {
		acc := &models.SocialAccount{
			ID:              accID.Int64,
			Platform:        accPlatform.String,
			AccountID:       accExternalID.String,
			AccountName:     accName.String,
			AccountUsername: accUsername.String,
			AccountStatus:   accStatus.String,
		}
		if accCredentialRef.Valid {
			ref := accCredentialRef.Int64
			acc.CredentialRef = &ref
		}
		cj.Account = acc
	}

	return cj, nil
}

func (r *scheduleRepository) CountDuePending(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM schedule WHERE status = $1 AND run_at <= NOW()`

	var count int
	err := r.db.QueryRowContext(ctx, query, models.JobStatusPending).Scan(&count)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return count, nil
}

// ReleaseAllLockedBy resets every processing job held by workerID back to
// pending. Safe to call repeatedly; the second call matches no rows.
func (r *scheduleRepository) ReleaseAllLockedBy(ctx context.Context, workerID string) (int64, error) {
	query := `
		UPDATE schedule
		SET status = $1, locked_at = NULL, worker_id = NULL, updated_at = NOW()
		WHERE status = $2 AND worker_id = $3
	`

	result, err := r.db.ExecContext(ctx, query, models.JobStatusPending, models.JobStatusProcessing, workerID)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return result.RowsAffected()
}

// ReleaseStuck resets processing jobs whose lock is older than olderThan,
// regardless of owner. Covers workers that died and never restarted.
func (r *scheduleRepository) ReleaseStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE schedule
		SET status = $1, locked_at = NULL, worker_id = NULL, updated_at = NOW()
		WHERE status = $2 AND locked_at < $3
	`

	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := r.db.ExecContext(ctx, query, models.JobStatusPending, models.JobStatusProcessing, cutoff)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return result.RowsAffected()
}

// FailStalePending marks pending jobs that missed their run time by more
// than olderThan as failed. They are never dispatched to a platform.
func (r *scheduleRepository) FailStalePending(ctx context.Context, olderThan time.Duration, message string) (int64, error) {
	query := `
		WITH missed AS (
			UPDATE schedule
			SET status = $1, updated_at = NOW()
			WHERE status = $2 AND run_at < $3
			RETURNING post_id
		)
		UPDATE posts
		SET status = $4, error_message = $5, updated_at = NOW()
		WHERE id IN (SELECT post_id FROM missed)
	`

	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := r.db.ExecContext(ctx, query, models.JobStatusFailed, models.JobStatusPending, cutoff,
		models.PostStatusFailed, message)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return result.RowsAffected()
}

// Requeue releases a failed attempt back to pending so a later cycle can
// reclaim it, persisting the attempt count.
func (r *scheduleRepository) Requeue(ctx context.Context, jobID int64, attempts int) error {
	query := `
		UPDATE schedule
		SET status = $1, locked_at = NULL, worker_id = NULL, attempts = $2, updated_at = NOW()
		WHERE id = $3
	`

	_, err := r.db.ExecContext(ctx, query, models.JobStatusPending, attempts, jobID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduleRepository) MarkPublished(ctx context.Context, jobID int64) error {
	query := `
		UPDATE schedule
		SET status = $1, locked_at = NULL, worker_id = NULL, updated_at = NOW()
		WHERE id = $2
	`

	_, err := r.db.ExecContext(ctx, query, models.JobStatusPublished, jobID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduleRepository) MarkFailed(ctx context.Context, jobID int64, attempts int) error {
	query := `
		UPDATE schedule
		SET status = $1, locked_at = NULL, worker_id = NULL, attempts = $2, updated_at = NOW()
		WHERE id = $3
	`

	_, err := r.db.ExecContext(ctx, query, models.JobStatusFailed, attempts, jobID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduleRepository) Stats(ctx context.Context) (*models.QueueStats, error) {
	query := `SELECT status, COUNT(*) FROM schedule GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var stats models.QueueStats
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		switch status {
		case models.JobStatusPending:
			stats.Pending = count
		case models.JobStatusProcessing:
			stats.Processing = count
		case models.JobStatusPublished:
			stats.Published = count
		case models.JobStatusFailed:
			stats.Failed = count
		case models.JobStatusCancelled:
			stats.Cancelled = count
		}
	}
	if err = rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.ScheduleJob, error) {
	var job models.ScheduleJob
	var lockedAt sql.NullTime
	var workerID sql.NullString

	err := row.Scan(&job.ID, &job.PostID, &job.Status, &job.RunAt, &lockedAt, &workerID,
		&job.Attempts, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if lockedAt.Valid {
		t := lockedAt.Time
		job.LockedAt = &t
	}
	if workerID.Valid {
		w := workerID.String
		job.WorkerID = &w
	}

	return &job, nil
}
