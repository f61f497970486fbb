// Package notify delivers post outcome notifications. Outcomes are queued as
// asynq tasks so a slow or failing notification channel never blocks the
// publish pipeline.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/postdeck/postdeck/internal/models"
)

const TaskTypeNotify = "notify:post"

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type Payload struct {
	PostID     int64  `json:"post_id"`
	Platform   string `json:"platform"`
	PostType   string `json:"post_type"`
	Outcome    string `json:"outcome"`
	ExternalID string `json:"external_id,omitempty"`
	Details    string `json:"details,omitempty"`
	NotifiedAt string `json:"notified_at"`
}

type Dispatcher interface {
	Notify(ctx context.Context, post *models.Post, outcome, details string) error
}

// QueueDispatcher enqueues notification tasks for the asynq server running
// in the same process.
type QueueDispatcher struct {
	client *asynq.Client
}

func NewQueueDispatcher(client *asynq.Client) *QueueDispatcher {
	return &QueueDispatcher{client: client}
}

func (d *QueueDispatcher) Notify(ctx context.Context, post *models.Post, outcome, details string) error {
	payload := Payload{
		PostID:     post.ID,
		Platform:   post.Platform,
		PostType:   post.PostType,
		Outcome:    outcome,
		ExternalID: post.ExternalPostID,
		Details:    details,
		NotifiedAt: time.Now().UTC().Format(time.RFC3339),
	}

	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeNotify, taskPayload)
	if _, err = d.client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		return err
	}

	log.Printf("Notification queued for post %d (%s)", post.ID, outcome)
	return nil
}
