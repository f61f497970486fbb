package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postdeck/postdeck/internal/models"
)

func testInstagramPublisher(server *httptest.Server) *InstagramPublisher {
	return &InstagramPublisher{baseURL: server.URL, client: server.Client()}
}

func TestInstagramPublishFeed(t *testing.T) {
	var mu sync.Mutex
	var containerPayload map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ig-acc-1/media":
			mu.Lock()
			require.NoError(t, json.NewDecoder(r.Body).Decode(&containerPayload))
			mu.Unlock()
			fmt.Fprint(w, `{"id":"container_1"}`)
		case "/ig-acc-1/media_publish":
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "container_1", payload["creation_id"])
			fmt.Fprint(w, `{"id":"ig_123"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	pub := testInstagramPublisher(server)
	result, err := pub.Publish(context.Background(), Credentials{AccessToken: "tok", AccountID: "ig-acc-1"}, PublishRequest{
		PostType:  models.PostTypeFeed,
		Caption:   "hello",
		MediaURLs: []string{"https://cdn.test/a.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ig_123", result.ExternalID)

	assert.Equal(t, "https://cdn.test/a.jpg", containerPayload["image_url"])
	assert.Equal(t, "hello", containerPayload["caption"])
	assert.Equal(t, "tok", containerPayload["access_token"])
}

func TestInstagramPublishCarousel(t *testing.T) {
	var mu sync.Mutex
	containers := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ig-acc-1/media":
			mu.Lock()
			containers++
			id := containers
			mu.Unlock()
			fmt.Fprintf(w, `{"id":"container_%d"}`, id)
		case "/ig-acc-1/media_publish":
			fmt.Fprint(w, `{"id":"ig_carousel"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	pub := testInstagramPublisher(server)
	result, err := pub.Publish(context.Background(), Credentials{AccessToken: "tok", AccountID: "ig-acc-1"}, PublishRequest{
		PostType:  models.PostTypeCarousel,
		Caption:   "three pics",
		MediaURLs: []string{"https://cdn.test/a.jpg", "https://cdn.test/b.jpg", "https://cdn.test/c.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ig_carousel", result.ExternalID)

	// Three item containers plus the carousel container itself.
	assert.Equal(t, 4, containers)
}

func TestInstagramPublishStorySetsMediaType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ig-acc-1/media":
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "STORIES", payload["media_type"])
			fmt.Fprint(w, `{"id":"container_1"}`)
		case "/ig-acc-1/media_publish":
			fmt.Fprint(w, `{"id":"ig_story"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	pub := testInstagramPublisher(server)
	result, err := pub.Publish(context.Background(), Credentials{AccessToken: "tok", AccountID: "ig-acc-1"}, PublishRequest{
		PostType:  models.PostTypeStory,
		MediaURLs: []string{"https://cdn.test/a.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ig_story", result.ExternalID)
}

func TestInstagramPublishErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"invalid token"}}`)
	}))
	defer server.Close()

	pub := testInstagramPublisher(server)
	_, err := pub.Publish(context.Background(), Credentials{AccessToken: "bad", AccountID: "ig-acc-1"}, PublishRequest{
		PostType:  models.PostTypeFeed,
		MediaURLs: []string{"https://cdn.test/a.jpg"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code")
}

func TestInstagramPublishUnsupportedType(t *testing.T) {
	pub := NewInstagramPublisher()
	_, err := pub.Publish(context.Background(), Credentials{}, PublishRequest{
		PostType:  models.PostTypeArticle,
		MediaURLs: []string{"https://cdn.test/a.jpg"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported post type")
}

func TestInstagramFetchChildren(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ig_123/children", r.URL.Path)
		fmt.Fprint(w, `{"data":[
			{"id":"c1","media_url":"https://ig.test/1.jpg","permalink":"https://instagram.com/p/1"},
			{"id":"c2","media_url":"https://ig.test/2.jpg","permalink":"https://instagram.com/p/2"}
		]}`)
	}))
	defer server.Close()

	pub := testInstagramPublisher(server)
	children, err := pub.FetchChildren(context.Background(), "tok", "ig_123")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "c1", children[0].ExternalID)
	assert.Equal(t, "https://ig.test/2.jpg", children[1].MediaURL)
	assert.Equal(t, 1, children[1].DisplayOrder)
}

func TestInstagramAddComment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ig_123/comments", r.URL.Path)
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "first!", payload["message"])
		fmt.Fprint(w, `{"id":"comment_1"}`)
	}))
	defer server.Close()

	pub := testInstagramPublisher(server)
	require.NoError(t, pub.AddComment(context.Background(), "tok", "ig_123", "first!"))
}
