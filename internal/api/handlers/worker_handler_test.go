package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/postdeck/postdeck/configs"
	"github.com/postdeck/postdeck/internal/models"
	"github.com/postdeck/postdeck/internal/repository"
	"github.com/postdeck/postdeck/internal/worker"
)

func newTestApp(t *testing.T) (*fiber.App, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sr := repository.NewScheduleRepository(db)
	pr := repository.NewPostRepository(db)
	controller := worker.NewController("worker-test", sr, nil, config.Worker{ConcurrencyLimit: 1})

	app := fiber.New()
	handler := NewWorkerHandler(controller, sr, pr)
	app.Get("/health", handler.Health)
	app.Get("/worker/jobs/:id", handler.Job)

	return app, mock
}

func TestWorkerHandlerHealth(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "worker-test", body["worker_id"])
}

func TestWorkerHandlerJob(t *testing.T) {
	app, mock := newTestApp(t)

	now := time.Now()
	mock.ExpectQuery(`SELECT id, post_id, status`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "post_id", "status", "run_at", "locked_at", "worker_id", "attempts", "created_at", "updated_at"}).
			AddRow(int64(1), int64(100), models.JobStatusPending, now, nil, nil, 0, now, now))
	mock.ExpectQuery(`SELECT id, platform, post_type`).
		WithArgs(int64(100)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "platform", "post_type", "caption", "first_comment", "tagged_people",
			"media_set_id", "account_id", "status", "external_post_id", "error_message", "attempts",
			"published_at", "created_at", "updated_at"}).
			AddRow(int64(100), "instagram", "feed", "hi", "", "{}",
				nil, nil, models.PostStatusPending, nil, nil, 0,
				nil, now, now))

	resp, err := app.Test(httptest.NewRequest("GET", "/worker/jobs/1", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Job  models.ScheduleJob `json:"job"`
		Post models.Post        `json:"post"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(1), body.Job.ID)
	assert.Equal(t, int64(100), body.Post.ID)
	assert.Empty(t, body.Post.ExternalPostID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerHandlerJobNotFound(t *testing.T) {
	app, mock := newTestApp(t)

	mock.ExpectQuery(`SELECT id, post_id, status`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "post_id", "status", "run_at", "locked_at", "worker_id", "attempts", "created_at", "updated_at"}))

	resp, err := app.Test(httptest.NewRequest("GET", "/worker/jobs/42", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkerHandlerJobBadID(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/worker/jobs/abc", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
