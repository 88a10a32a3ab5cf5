package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"digest_bot/internal/model"
)

const (
	// DefaultBskyAPI is the public Bluesky AppView.
	DefaultBskyAPI = "https://public.api.bsky.app"
	// DefaultBskyTag marks merge-train posts.
	DefaultBskyTag = "bevymergetrain"

	tagFeature      = "app.bsky.richtext.facet#tag"
	bskyFeedLimit   = 50
	bskyThreadDepth = 10
)

// Bluesky reads hashtag-tagged posts of one actor from the public AppView.
type Bluesky struct {
	client  HTTPClient
	baseURL string
	actor   string
	tag     string
}

// NewBluesky creates a Bluesky reader for actor's posts carrying tag.
func NewBluesky(client HTTPClient, baseURL, actor, tag string) *Bluesky {
	if baseURL == "" {
		baseURL = DefaultBskyAPI
	}
	if tag == "" {
		tag = DefaultBskyTag
	}
	return &Bluesky{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		actor:   actor,
		tag:     tag,
	}
}

type authorFeed struct {
	Feed []struct {
		Post bskyPost `json:"post"`
	} `json:"feed"`
}

type bskyPost struct {
	URI    string `json:"uri"`
	CID    string `json:"cid"`
	Author struct {
		Handle string `json:"handle"`
	} `json:"author"`
	Record struct {
		Text      string `json:"text"`
		CreatedAt string `json:"createdAt"`
		Facets    []struct {
			Features []struct {
				Type string `json:"$type"`
				Tag  string `json:"tag"`
			} `json:"features"`
		} `json:"facets"`
	} `json:"record"`
}

// Posts returns the first page of the actor's feed, keeping only posts tagged with the configured hashtag.
func (b *Bluesky) Posts(ctx context.Context) ([]model.RemoteItem, error) {
	q := url.Values{}
	q.Set("actor", b.actor)
	q.Set("limit", strconv.Itoa(bskyFeedLimit))

	body, err := get(ctx, b.client, b.baseURL+"/xrpc/app.bsky.feed.getAuthorFeed?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("get author feed: %w", err)
	}

	var feed authorFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("decode author feed: %w", err)
	}

	var items []model.RemoteItem
	for _, entry := range feed.Feed {
		tags := entry.Post.tags()
		if !containsFold(tags, b.tag) {
			continue
		}
		items = append(items, entry.Post.item(tags))
	}
	return items, nil
}

// Thread fetches the reply thread of the post at an AT URI as raw JSON.
func (b *Bluesky) Thread(ctx context.Context, uri string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("uri", uri)
	q.Set("depth", strconv.Itoa(bskyThreadDepth))

	body, err := get(ctx, b.client, b.baseURL+"/xrpc/app.bsky.feed.getPostThread?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("get post thread: %w", err)
	}
	if !json.Valid(body) {
		return nil, errors.New("decode post thread: invalid json")
	}
	return json.RawMessage(body), nil
}

// WithThread returns a copy of item whose body is the post's reply thread.
func (b *Bluesky) WithThread(ctx context.Context, item model.RemoteItem) (model.RemoteItem, error) {
	thread, err := b.Thread(ctx, item.Extras.Ref)
	if err != nil {
		return item, err
	}
	item.Extras.Thread = thread
	item.Body = string(thread)
	return item, nil
}

func (p bskyPost) tags() []string {
	var tags []string
	for _, facet := range p.Record.Facets {
		for _, f := range facet.Features {
			if f.Type == tagFeature && f.Tag != "" {
				tags = append(tags, f.Tag)
			}
		}
	}
	return tags
}

func (p bskyPost) item(tags []string) model.RemoteItem {
	date := p.Record.CreatedAt
	if len(date) >= 10 {
		date = date[:10]
	}
	created, _ := time.Parse(time.RFC3339, p.Record.CreatedAt)

	return model.RemoteItem{
		Kind:      model.KindPost,
		ID:        p.CID,
		Title:     "MergeTrain: " + date,
		Body:      p.Record.Text,
		Author:    p.Author.Handle,
		CreatedAt: created.UTC(),
		Permalink: postURL(p.Author.Handle, p.URI),
		Extras:    model.Extras{Tags: tags, Ref: p.URI},
	}
}

// postURL maps at://did/app.bsky.feed.post/rkey to its bsky.app web address.
func postURL(handle, atURI string) string {
	i := strings.LastIndex(atURI, "/")
	if handle == "" || i < 0 {
		return atURI
	}
	return "https://bsky.app/profile/" + handle + "/post/" + atURI[i+1:]
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
