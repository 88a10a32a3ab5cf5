package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digest_bot/internal/model"
)

func TestBlueskyPostsKeepsTagged(t *testing.T) {
	feed := loadFixture(t, "../../testdata/bsky_author_feed.json")

	var gotPath, gotActor string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotActor = r.URL.Query().Get("actor")
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	b := NewBluesky(srv.Client(), srv.URL+"/", "alice.bsky.social", "")
	got, err := b.Posts(context.Background())
	require.NoError(t, err)

	require.Equal(t, "/xrpc/app.bsky.feed.getAuthorFeed", gotPath)
	require.Equal(t, "alice.bsky.social", gotActor)

	want := []model.RemoteItem{
		{
			Kind:      model.KindPost,
			ID:        "bafyreiaaa",
			Title:     "MergeTrain: 2025-11-05",
			Body:      "Today's merge train #bevymergetrain",
			Author:    "alice.bsky.social",
			CreatedAt: time.Date(2025, 11, 5, 8, 12, 0, 0, time.UTC),
			Permalink: "https://bsky.app/profile/alice.bsky.social/post/3m4qp6zgvzc2j",
			Extras: model.Extras{
				Tags: []string{"bevymergetrain"},
				Ref:  "at://did:plc:fjg6pzaigjmfpsfnbyp6m5oc/app.bsky.feed.post/3m4qp6zgvzc2j",
			},
		},
		{
			Kind:      model.KindPost,
			ID:        "bafyreiccc",
			Title:     "MergeTrain: 2025-11-04",
			Body:      "Yesterday's train #BevyMergeTrain #gamedev",
			Author:    "alice.bsky.social",
			CreatedAt: time.Date(2025, 11, 4, 7, 55, 0, 0, time.UTC),
			Permalink: "https://bsky.app/profile/alice.bsky.social/post/3m4qp6zgvzc2l",
			Extras: model.Extras{
				Tags: []string{"BevyMergeTrain", "gamedev"},
				Ref:  "at://did:plc:fjg6pzaigjmfpsfnbyp6m5oc/app.bsky.feed.post/3m4qp6zgvzc2l",
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Posts mismatch (-want +got):\n%s", diff)
	}
}

func TestBlueskyWithThread(t *testing.T) {
	const thread = `{"thread":{"post":{"record":{"text":"root"}},"replies":[]}}`

	var gotURI string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/xrpc/app.bsky.feed.getPostThread", r.URL.Path)
		gotURI = r.URL.Query().Get("uri")
		_, _ = w.Write([]byte(thread))
	}))
	defer srv.Close()

	b := NewBluesky(srv.Client(), srv.URL, "alice.bsky.social", "")
	item := model.RemoteItem{ID: "bafyreiaaa", Body: "short", Extras: model.Extras{Ref: "at://did:plc:x/app.bsky.feed.post/1"}}

	got, err := b.WithThread(context.Background(), item)
	require.NoError(t, err)
	require.Equal(t, "at://did:plc:x/app.bsky.feed.post/1", gotURI)
	require.Equal(t, thread, got.Body)
	require.JSONEq(t, thread, string(got.Extras.Thread))
	require.Equal(t, "short", item.Body, "input item must not be modified")
}

func TestBlueskyErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusBadGateway, body: "bad gateway"},
		{name: "invalid json", status: http.StatusOK, body: "{not json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBluesky(&mockTransport{statusCode: tt.status, body: tt.body}, "", "alice", "")

			_, err := b.Posts(context.Background())
			require.Error(t, err)

			_, err = b.Thread(context.Background(), "at://x")
			require.Error(t, err)
		})
	}
}
