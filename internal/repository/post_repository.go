package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postdeck/postdeck/internal/models"
)

type PostRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	UpdateStatus(ctx context.Context, status string, postID int64) error
	MarkPublished(ctx context.Context, postID int64, externalID string, publishedAt time.Time) error
	MarkFailed(ctx context.Context, postID int64, message string, attempts int) error
	AttachMediaChildren(ctx context.Context, postID int64, children []models.MediaChild) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `
		SELECT id, platform, post_type, caption, first_comment, tagged_people, media_set_id,
			account_id, status, external_post_id, error_message, attempts, published_at,
			created_at, updated_at
		FROM posts WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)

	var post models.Post
	var externalPostID, errorMessage sql.NullString
	err := row.Scan(&post.ID, &post.Platform, &post.PostType, &post.Caption, &post.FirstComment,
		&post.TaggedPeople, &post.MediaSetID, &post.AccountID, &post.Status, &externalPostID,
		&errorMessage, &post.Attempts, &post.PublishedAt, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	post.ExternalPostID = externalPostID.String
	post.ErrorMessage = errorMessage.String

	return &post, nil
}

func (r *postRepository) UpdateStatus(ctx context.Context, status string, postID int64) error {
	query := `
		UPDATE posts
		SET status = $1, updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, status, time.Now(), postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) MarkPublished(ctx context.Context, postID int64, externalID string, publishedAt time.Time) error {
	query := `
		UPDATE posts
		SET status = $1, external_post_id = $2, published_at = $3, error_message = '', updated_at = NOW()
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusPublished, externalID, publishedAt, postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) MarkFailed(ctx context.Context, postID int64, message string, attempts int) error {
	query := `
		UPDATE posts
		SET status = $1, error_message = $2, attempts = $3, updated_at = NOW()
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusFailed, message, attempts, postID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// AttachMediaChildren replaces the stored platform-side media items for a post.
func (r *postRepository) AttachMediaChildren(ctx context.Context, postID int64, children []models.MediaChild) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	deleteQuery := `DELETE FROM media_children WHERE post_id = $1`
	if _, err = tx.ExecContext(ctx, deleteQuery, postID); err != nil {
		slog.Info(err.Error())
		return err
	}

	insertQuery := `
		INSERT INTO media_children (post_id, external_id, media_url, permalink, display_order)
		VALUES ($1, $2, $3, $4, $5)
	`
	for i, child := range children {
		if _, err = tx.ExecContext(ctx, insertQuery, postID, child.ExternalID, child.MediaURL, child.Permalink, i); err != nil {
			slog.Info(err.Error())
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}
