package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/postdeck/postdeck/internal/models"
)

const instagramGraphURL = "https://graph.instagram.com/v21.0"

// InstagramPublisher publishes through the Instagram Graph API. Every post is
// a two-step flow: create a media container, then publish it.
type InstagramPublisher struct {
	baseURL string
	client  *http.Client
}

func NewInstagramPublisher() *InstagramPublisher {
	return &InstagramPublisher{
		baseURL: instagramGraphURL,
		client:  http.DefaultClient,
	}
}

func (p *InstagramPublisher) Publish(ctx context.Context, creds Credentials, req PublishRequest) (*PublishResult, error) {
	if len(req.MediaURLs) == 0 {
		return nil, fmt.Errorf("instagram: no media to publish")
	}

	switch req.PostType {
	case models.PostTypeFeed:
		return p.publishSingle(ctx, creds, req, "")
	case models.PostTypeReel:
		return p.publishSingle(ctx, creds, req, "REELS")
	case models.PostTypeStory:
		return p.publishSingle(ctx, creds, req, "STORIES")
	case models.PostTypeCarousel:
		return p.publishCarousel(ctx, creds, req)
	case models.PostTypeFeedStory:
		result, err := p.publishSingle(ctx, creds, req, "")
		if err != nil {
			return nil, err
		}
		// The story leg shares the feed media; its own failure fails the job
		// so a retry can complete both.
		if _, err := p.publishSingle(ctx, creds, req, "STORIES"); err != nil {
			return nil, fmt.Errorf("instagram: story leg: %w", err)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("instagram: unsupported post type %q", req.PostType)
	}
}

func (p *InstagramPublisher) publishSingle(ctx context.Context, creds Credentials, req PublishRequest, mediaType string) (*PublishResult, error) {
	payload := map[string]interface{}{
		"image_url":    req.MediaURLs[0],
		"caption":      req.Caption,
		"access_token": creds.AccessToken,
	}
	if mediaType != "" {
		payload["media_type"] = mediaType
	}
	if mediaType == "" && len(req.TaggedPeople) > 0 {
		payload["user_tags"] = userTags(req.TaggedPeople)
	}

	containerID, err := p.createContainer(ctx, creds.AccountID, payload)
	if err != nil {
		return nil, err
	}

	mediaID, err := p.publishContainer(ctx, creds, containerID)
	if err != nil {
		return nil, err
	}

	return &PublishResult{ExternalID: mediaID}, nil
}

func (p *InstagramPublisher) publishCarousel(ctx context.Context, creds Credentials, req PublishRequest) (*PublishResult, error) {
	childIDs := make([]string, 0, len(req.MediaURLs))
	for _, mediaURL := range req.MediaURLs {
		payload := map[string]interface{}{
			"image_url":        mediaURL,
			"is_carousel_item": true,
			"access_token":     creds.AccessToken,
		}
		childID, err := p.createContainer(ctx, creds.AccountID, payload)
		if err != nil {
			return nil, fmt.Errorf("carousel item: %w", err)
		}
		childIDs = append(childIDs, childID)
	}

	payload := map[string]interface{}{
		"media_type":   "CAROUSEL",
		"children":     childIDs,
		"caption":      req.Caption,
		"access_token": creds.AccessToken,
	}
	if len(req.TaggedPeople) > 0 {
		payload["user_tags"] = userTags(req.TaggedPeople)
	}

	containerID, err := p.createContainer(ctx, creds.AccountID, payload)
	if err != nil {
		return nil, err
	}

	mediaID, err := p.publishContainer(ctx, creds, containerID)
	if err != nil {
		return nil, err
	}

	return &PublishResult{ExternalID: mediaID}, nil
}

func (p *InstagramPublisher) createContainer(ctx context.Context, accountID string, payload map[string]interface{}) (string, error) {
	url := fmt.Sprintf("%s/%s/media", p.baseURL, accountID)

	result, err := p.postJSON(ctx, url, payload)
	if err != nil {
		return "", fmt.Errorf("create media container: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("no container ID returned from Instagram")
	}

	return result.ID, nil
}

func (p *InstagramPublisher) publishContainer(ctx context.Context, creds Credentials, containerID string) (string, error) {
	url := fmt.Sprintf("%s/%s/media_publish", p.baseURL, creds.AccountID)
	payload := map[string]interface{}{
		"creation_id":  containerID,
		"access_token": creds.AccessToken,
	}

	result, err := p.postJSON(ctx, url, payload)
	if err != nil {
		return "", fmt.Errorf("publish media container: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("no media ID returned from Instagram")
	}

	return result.ID, nil
}

func (p *InstagramPublisher) FetchChildren(ctx context.Context, token, externalID string) ([]models.MediaChild, error) {
	url := fmt.Sprintf("%s/%s/children?fields=id,media_url,permalink&access_token=%s", p.baseURL, externalID, token)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code from Instagram: %d (%s)", resp.StatusCode, body)
	}

	var result struct {
		Data []struct {
			ID        string `json:"id"`
			MediaURL  string `json:"media_url"`
			Permalink string `json:"permalink"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}

	children := make([]models.MediaChild, 0, len(result.Data))
	for i, item := range result.Data {
		children = append(children, models.MediaChild{
			ExternalID:   item.ID,
			MediaURL:     item.MediaURL,
			Permalink:    item.Permalink,
			DisplayOrder: i,
		})
	}

	return children, nil
}

func (p *InstagramPublisher) AddComment(ctx context.Context, token, externalID, text string) error {
	url := fmt.Sprintf("%s/%s/comments", p.baseURL, externalID)
	payload := map[string]interface{}{
		"message":      text,
		"access_token": token,
	}

	if _, err := p.postJSON(ctx, url, payload); err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	return nil
}

type graphResult struct {
	ID string `json:"id"`
}

func (p *InstagramPublisher) postJSON(ctx context.Context, url string, payload map[string]interface{}) (*graphResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from Instagram: %d (%s)", resp.StatusCode, respBody)
	}

	var result graphResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}

	return &result, nil
}

func userTags(usernames []string) []map[string]string {
	tags := make([]map[string]string, 0, len(usernames))
	for _, username := range usernames {
		tags = append(tags, map[string]string{"username": username})
	}
	return tags
}
