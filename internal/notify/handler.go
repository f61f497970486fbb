package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
)

// Handler consumes queued notification tasks and forwards them to the
// configured webhook. With no webhook configured it logs and drops them.
type Handler struct {
	webhookURL string
	client     *http.Client
}

func NewHandler(webhookURL string) *Handler {
	return &Handler{
		webhookURL: webhookURL,
		client:     http.DefaultClient,
	}
}

func (h *Handler) HandleNotifyTask(ctx context.Context, task *asynq.Task) error {
	var payload Payload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	if h.webhookURL == "" {
		log.Printf("Post %d %s on %s: %s", payload.PostID, payload.Outcome, payload.Platform, payload.Details)
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", h.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code from webhook: %d (%s)", resp.StatusCode, respBody)
	}

	return nil
}
