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

const linkedinAPIURL = "https://api.linkedin.com/v2"

// LinkedinPublisher publishes UGC posts on behalf of a member or
// organization. Images must be re-uploaded to LinkedIn's asset store first;
// the adapter downloads each media URL and streams it up.
type LinkedinPublisher struct {
	baseURL string
	client  *http.Client
}

func NewLinkedinPublisher() *LinkedinPublisher {
	return &LinkedinPublisher{
		baseURL: linkedinAPIURL,
		client:  http.DefaultClient,
	}
}

func (p *LinkedinPublisher) Publish(ctx context.Context, creds Credentials, req PublishRequest) (*PublishResult, error) {
	author := "urn:li:person:" + creds.AccountID

	switch req.PostType {
	case models.PostTypeFeed, models.PostTypeCarousel:
		return p.publishFeed(ctx, creds, author, req)
	case models.PostTypeArticle:
		return p.publishArticle(ctx, creds, author, req)
	default:
		return nil, fmt.Errorf("linkedin: unsupported post type %q", req.PostType)
	}
}

func (p *LinkedinPublisher) publishFeed(ctx context.Context, creds Credentials, author string, req PublishRequest) (*PublishResult, error) {
	media := make([]map[string]interface{}, 0, len(req.MediaURLs))
	for _, mediaURL := range req.MediaURLs {
		asset, err := p.uploadAsset(ctx, creds, author, mediaURL)
		if err != nil {
			return nil, err
		}
		media = append(media, map[string]interface{}{
			"status": "READY",
			"media":  asset,
		})
	}

	category := "NONE"
	if len(media) > 0 {
		category = "IMAGE"
	}

	payload := map[string]interface{}{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": map[string]interface{}{
				"shareCommentary":    map[string]string{"text": req.Caption},
				"shareMediaCategory": category,
				"media":              media,
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	return p.createPost(ctx, creds, payload)
}

func (p *LinkedinPublisher) publishArticle(ctx context.Context, creds Credentials, author string, req PublishRequest) (*PublishResult, error) {
	if len(req.MediaURLs) == 0 {
		return nil, fmt.Errorf("linkedin: article post requires a URL")
	}

	payload := map[string]interface{}{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": map[string]interface{}{
				"shareCommentary":    map[string]string{"text": req.Caption},
				"shareMediaCategory": "ARTICLE",
				"media": []map[string]interface{}{
					{
						"status":      "READY",
						"originalUrl": req.MediaURLs[0],
					},
				},
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	return p.createPost(ctx, creds, payload)
}

func (p *LinkedinPublisher) createPost(ctx context.Context, creds Credentials, payload map[string]interface{}) (*PublishResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/ugcPosts", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from LinkedIn: %d (%s)", resp.StatusCode, respBody)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("error parsing response: %w", err)
	}
	if result.ID == "" {
		return nil, fmt.Errorf("no post ID returned from LinkedIn")
	}

	return &PublishResult{ExternalID: result.ID}, nil
}

// uploadAsset registers an upload slot, downloads the source media and PUTs
// it to the returned upload URL, returning the asset URN.
func (p *LinkedinPublisher) uploadAsset(ctx context.Context, creds Credentials, author, mediaURL string) (string, error) {
	registerPayload := map[string]interface{}{
		"registerUploadRequest": map[string]interface{}{
			"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			"owner":   author,
			"serviceRelationships": []map[string]string{
				{
					"relationshipType": "OWNER",
					"identifier":       "urn:li:userGeneratedContent",
				},
			},
		},
	}

	body, err := json.Marshal(registerPayload)
	if err != nil {
		return "", fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/assets?action=registerUpload", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("register upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status code from LinkedIn: %d (%s)", resp.StatusCode, respBody)
	}

	var registered struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism struct {
				Request struct {
					UploadURL string `json:"uploadUrl"`
				} `json:"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&registered); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if registered.Value.Asset == "" || registered.Value.UploadMechanism.Request.UploadURL == "" {
		return "", fmt.Errorf("incomplete register upload response from LinkedIn")
	}

	data, err := p.download(ctx, mediaURL)
	if err != nil {
		return "", err
	}

	uploadReq, err := http.NewRequestWithContext(ctx, "PUT", registered.Value.UploadMechanism.Request.UploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	uploadReq.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	uploadResp, err := p.client.Do(uploadReq)
	if err != nil {
		return "", fmt.Errorf("upload asset: %w", err)
	}
	defer uploadResp.Body.Close()

	if uploadResp.StatusCode != http.StatusCreated && uploadResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code uploading asset: %d", uploadResp.StatusCode)
	}

	return registered.Value.Asset, nil
}

func (p *LinkedinPublisher) download(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code downloading media: %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// FetchChildren is not supported by the LinkedIn API surface we use; callers
// fall back to the originally uploaded URLs.
func (p *LinkedinPublisher) FetchChildren(ctx context.Context, token, externalID string) ([]models.MediaChild, error) {
	return nil, fmt.Errorf("linkedin: child media fetch not supported")
}
