package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"digest_bot/internal/model"
)

const (
	userAgent   = "DigestBot/1.0"
	maxBodySize = 5 * 1024 * 1024
	maxEntryLen = 2000
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Feed reads entries of an RSS or Atom feed.
type Feed struct {
	client HTTPClient
	url    string
}

// NewFeed creates a Feed reader for url.
func NewFeed(client HTTPClient, url string) *Feed {
	return &Feed{client: client, url: url}
}

// Fetch downloads and parses the feed.
func (f *Feed) Fetch(ctx context.Context) (*gofeed.Feed, error) {
	body, err := get(ctx, f.client, f.url)
	if err != nil {
		return nil, err
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// Entries returns the feed entries published after since, in feed order.
// Entries without any date are kept and left to deduplication.
func (f *Feed) Entries(ctx context.Context, since time.Time) ([]model.RemoteItem, error) {
	feed, err := f.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	var items []model.RemoteItem
	for _, entry := range feed.Items {
		published := entryTime(entry)
		if !published.IsZero() && !published.After(since) {
			continue
		}
		items = append(items, feedItem(entry, published))
	}
	return items, nil
}

// ItemGUID returns the GUID for a feed entry.
// If the entry has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

func feedItem(entry *gofeed.Item, published time.Time) model.RemoteItem {
	content := entry.Description
	if content == "" {
		content = entry.Content
	}

	var author string
	if len(entry.Authors) > 0 && entry.Authors[0] != nil {
		author = entry.Authors[0].Name
	}

	return model.RemoteItem{
		Kind:      model.KindFeedEntry,
		ID:        ItemGUID(entry),
		Title:     entry.Title,
		Body:      truncate(HTMLText(content), maxEntryLen),
		Author:    author,
		CreatedAt: published.UTC(),
		Permalink: entry.Link,
		Extras:    model.Extras{Tags: entry.Categories},
	}
}

func entryTime(entry *gofeed.Item) time.Time {
	switch {
	case entry.PublishedParsed != nil:
		return *entry.PublishedParsed
	case entry.UpdatedParsed != nil:
		return *entry.UpdatedParsed
	default:
		return time.Time{}
	}
}

// HTMLText reduces an HTML fragment to its visible text with collapsed whitespace.
// Input that does not parse is returned as is.
func HTMLText(fragment string) string {
	if !strings.ContainsRune(fragment, '<') {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func get(ctx context.Context, client HTTPClient, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
