package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postdeck/postdeck/internal/models"
)

func TestPostRepository_GetByID_NeverPublished(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)

	now := time.Now()
	// A post that has never reached an outcome carries NULL
	// external_post_id, error_message and published_at.
	mock.ExpectQuery(`SELECT id, platform, post_type`).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "platform", "post_type", "caption", "first_comment",
			"tagged_people", "media_set_id", "account_id", "status", "external_post_id", "error_message",
			"attempts", "published_at", "created_at", "updated_at"}).
			AddRow(int64(100), "instagram", "feed", "caption", "", "{}",
				int64(1), int64(11), models.PostStatusPending, nil, nil,
				0, nil, now, now))

	post, err := repo.GetByID(context.Background(), 100)
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Empty(t, post.ExternalPostID)
	assert.Empty(t, post.ErrorMessage)
	assert.Nil(t, post.PublishedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)

	mock.ExpectQuery(`SELECT id, platform, post_type`).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "platform", "post_type", "caption", "first_comment",
			"tagged_people", "media_set_id", "account_id", "status", "external_post_id", "error_message",
			"attempts", "published_at", "created_at", "updated_at"}))

	post, err := repo.GetByID(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, post)

	require.NoError(t, mock.ExpectationsWereMet())
}
