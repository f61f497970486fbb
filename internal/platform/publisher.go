// Package platform contains the per-network publish adapters. Each adapter
// turns an already-resolved post (token, media URLs, caption) into calls
// against that network's graph/REST API and reports back an external post id.
package platform

import (
	"context"
	"fmt"

	"github.com/postdeck/postdeck/internal/models"
)

// Credentials is everything an adapter needs to act on behalf of an account.
type Credentials struct {
	AccessToken string
	AccountID   string
}

type PublishRequest struct {
	PostType     string
	Caption      string
	MediaURLs    []string
	TaggedPeople []string
}

type PublishResult struct {
	ExternalID string
}

type Publisher interface {
	Publish(ctx context.Context, creds Credentials, req PublishRequest) (*PublishResult, error)
	FetchChildren(ctx context.Context, token, externalID string) ([]models.MediaChild, error)
}

// Commenter is implemented by publishers that support attaching a comment
// after publish. Comment failures never affect the publish outcome.
type Commenter interface {
	AddComment(ctx context.Context, token, externalID, text string) error
}

type Registry struct {
	publishers map[string]Publisher
}

func NewRegistry() *Registry {
	return &Registry{publishers: make(map[string]Publisher)}
}

func (r *Registry) Register(name string, p Publisher) {
	r.publishers[name] = p
}

func (r *Registry) Get(name string) (Publisher, error) {
	p, ok := r.publishers[name]
	if !ok {
		return nil, fmt.Errorf("no publisher registered for platform %q", name)
	}
	return p, nil
}

func (r *Registry) Platforms() []string {
	names := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		names = append(names, name)
	}
	return names
}
