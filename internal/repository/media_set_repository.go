package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/postdeck/postdeck/internal/models"
)

type MediaSetRepository interface {
	GetByID(ctx context.Context, id int64) (*models.MediaSet, error)
	DecrementRef(ctx context.Context, id int64) (int, error)
	Remove(ctx context.Context, id int64) error
}

type mediaSetRepository struct {
	db *sql.DB
}

func NewMediaSetRepository(db *sql.DB) MediaSetRepository {
	return &mediaSetRepository{db: db}
}

func (r *mediaSetRepository) GetByID(ctx context.Context, id int64) (*models.MediaSet, error) {
	query := `SELECT id, urls, ref_count, created_at FROM media_sets WHERE id = $1`

	var ms models.MediaSet
	err := r.db.QueryRowContext(ctx, query, id).Scan(&ms.ID, &ms.URLs, &ms.RefCount, &ms.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &ms, nil
}

// DecrementRef atomically decrements the reference count and returns the new
// value. The count never goes below zero.
func (r *mediaSetRepository) DecrementRef(ctx context.Context, id int64) (int, error) {
	query := `
		UPDATE media_sets
		SET ref_count = GREATEST(ref_count - 1, 0)
		WHERE id = $1
		RETURNING ref_count
	`

	var refCount int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&refCount)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return refCount, nil
}

func (r *mediaSetRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM media_sets WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
