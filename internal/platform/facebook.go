package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/postdeck/postdeck/internal/models"
)

const facebookGraphURL = "https://graph.facebook.com/v21.0"

// FacebookPublisher publishes to a Facebook page via the Graph API.
type FacebookPublisher struct {
	baseURL string
	client  *http.Client
}

func NewFacebookPublisher() *FacebookPublisher {
	return &FacebookPublisher{
		baseURL: facebookGraphURL,
		client:  http.DefaultClient,
	}
}

func (p *FacebookPublisher) Publish(ctx context.Context, creds Credentials, req PublishRequest) (*PublishResult, error) {
	switch req.PostType {
	case models.PostTypeFeed, models.PostTypeCarousel:
		return p.publishFeed(ctx, creds, req)
	case models.PostTypeStory:
		return p.publishStory(ctx, creds, req)
	case models.PostTypeReel:
		return p.publishVideo(ctx, creds, req)
	case models.PostTypeFeedStory:
		result, err := p.publishFeed(ctx, creds, req)
		if err != nil {
			return nil, err
		}
		if _, err := p.publishStory(ctx, creds, req); err != nil {
			return nil, fmt.Errorf("facebook: story leg: %w", err)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("facebook: unsupported post type %q", req.PostType)
	}
}

// publishFeed uploads each image unpublished, then creates one feed post
// attaching them all. A single image still goes through the same flow.
func (p *FacebookPublisher) publishFeed(ctx context.Context, creds Credentials, req PublishRequest) (*PublishResult, error) {
	if len(req.MediaURLs) == 0 {
		return p.publishTextOnly(ctx, creds, req)
	}

	photoIDs := make([]string, 0, len(req.MediaURLs))
	for _, mediaURL := range req.MediaURLs {
		payload := map[string]interface{}{
			"url":          mediaURL,
			"published":    false,
			"access_token": creds.AccessToken,
		}
		result, err := p.postJSON(ctx, fmt.Sprintf("%s/%s/photos", p.baseURL, creds.AccountID), payload)
		if err != nil {
			return nil, fmt.Errorf("upload photo: %w", err)
		}
		photoIDs = append(photoIDs, result.ID)
	}

	attached := make([]map[string]string, 0, len(photoIDs))
	for _, id := range photoIDs {
		attached = append(attached, map[string]string{"media_fbid": id})
	}

	payload := map[string]interface{}{
		"message":        messageWithTags(req.Caption, req.TaggedPeople),
		"attached_media": attached,
		"access_token":   creds.AccessToken,
	}
	result, err := p.postJSON(ctx, fmt.Sprintf("%s/%s/feed", p.baseURL, creds.AccountID), payload)
	if err != nil {
		return nil, fmt.Errorf("create feed post: %w", err)
	}
	if result.ID == "" {
		return nil, fmt.Errorf("no post ID returned from Facebook")
	}

	return &PublishResult{ExternalID: result.ID}, nil
}

func (p *FacebookPublisher) publishTextOnly(ctx context.Context, creds Credentials, req PublishRequest) (*PublishResult, error) {
	payload := map[string]interface{}{
		"message":      messageWithTags(req.Caption, req.TaggedPeople),
		"access_token": creds.AccessToken,
	}
	result, err := p.postJSON(ctx, fmt.Sprintf("%s/%s/feed", p.baseURL, creds.AccountID), payload)
	if err != nil {
		return nil, fmt.Errorf("create feed post: %w", err)
	}
	return &PublishResult{ExternalID: result.ID}, nil
}

func (p *FacebookPublisher) publishStory(ctx context.Context, creds Credentials, req PublishRequest) (*PublishResult, error) {
	if len(req.MediaURLs) == 0 {
		return nil, fmt.Errorf("facebook: story requires media")
	}

	uploadPayload := map[string]interface{}{
		"url":          req.MediaURLs[0],
		"published":    false,
		"access_token": creds.AccessToken,
	}
	uploaded, err := p.postJSON(ctx, fmt.Sprintf("%s/%s/photos", p.baseURL, creds.AccountID), uploadPayload)
	if err != nil {
		return nil, fmt.Errorf("upload story photo: %w", err)
	}

	payload := map[string]interface{}{
		"photo_id":     uploaded.ID,
		"access_token": creds.AccessToken,
	}
	result, err := p.postJSON(ctx, fmt.Sprintf("%s/%s/photo_stories", p.baseURL, creds.AccountID), payload)
	if err != nil {
		return nil, fmt.Errorf("create photo story: %w", err)
	}

	return &PublishResult{ExternalID: result.ID}, nil
}

func (p *FacebookPublisher) publishVideo(ctx context.Context, creds Credentials, req PublishRequest) (*PublishResult, error) {
	if len(req.MediaURLs) == 0 {
		return nil, fmt.Errorf("facebook: video post requires media")
	}

	payload := map[string]interface{}{
		"file_url":     req.MediaURLs[0],
		"description":  req.Caption,
		"access_token": creds.AccessToken,
	}
	result, err := p.postJSON(ctx, fmt.Sprintf("%s/%s/videos", p.baseURL, creds.AccountID), payload)
	if err != nil {
		return nil, fmt.Errorf("create video post: %w", err)
	}
	if result.ID == "" {
		return nil, fmt.Errorf("no video ID returned from Facebook")
	}

	return &PublishResult{ExternalID: result.ID}, nil
}

func (p *FacebookPublisher) FetchChildren(ctx context.Context, token, externalID string) ([]models.MediaChild, error) {
	url := fmt.Sprintf("%s/%s/attachments?fields=media,subattachments,url&access_token=%s", p.baseURL, externalID, token)

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
		return nil, fmt.Errorf("unexpected status code from Facebook: %d (%s)", resp.StatusCode, body)
	}

	var result struct {
		Data []struct {
			URL   string `json:"url"`
			Media struct {
				Image struct {
					Src string `json:"src"`
				} `json:"image"`
			} `json:"media"`
			Subattachments struct {
				Data []struct {
					Target struct {
						ID string `json:"id"`
					} `json:"target"`
					URL   string `json:"url"`
					Media struct {
						Image struct {
							Src string `json:"src"`
						} `json:"image"`
					} `json:"media"`
				} `json:"data"`
			} `json:"subattachments"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}

	var children []models.MediaChild
	for _, att := range result.Data {
		if len(att.Subattachments.Data) > 0 {
			for _, sub := range att.Subattachments.Data {
				children = append(children, models.MediaChild{
					ExternalID:   sub.Target.ID,
					MediaURL:     sub.Media.Image.Src,
					Permalink:    sub.URL,
					DisplayOrder: len(children),
				})
			}
			continue
		}
		children = append(children, models.MediaChild{
			ExternalID:   externalID,
			MediaURL:     att.Media.Image.Src,
			Permalink:    att.URL,
			DisplayOrder: len(children),
		})
	}

	return children, nil
}

func (p *FacebookPublisher) AddComment(ctx context.Context, token, externalID, text string) error {
	payload := map[string]interface{}{
		"message":      text,
		"access_token": token,
	}
	if _, err := p.postJSON(ctx, fmt.Sprintf("%s/%s/comments", p.baseURL, externalID), payload); err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	return nil
}

func (p *FacebookPublisher) postJSON(ctx context.Context, url string, payload map[string]interface{}) (*graphResult, error) {
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
		return nil, fmt.Errorf("unexpected status code from Facebook: %d (%s)", resp.StatusCode, respBody)
	}

	var result graphResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}

	return &result, nil
}

func messageWithTags(caption string, tagged []string) string {
	if len(tagged) == 0 {
		return caption
	}
	mentions := make([]string, 0, len(tagged))
	for _, username := range tagged {
		mentions = append(mentions, "@"+username)
	}
	return strings.TrimSpace(caption + "\n\n" + strings.Join(mentions, " "))
}
