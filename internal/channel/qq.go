// Package channel talks to the QQ guild open platform: sub-channel listing and creation, and thread posts.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"digest_bot/internal/model"
)

// API roots of the QQ bot platform.
const (
	ProductionURL = "https://api.sgroup.qq.com"
	SandboxURL    = "https://sandbox.api.sgroup.qq.com"
)

// AuthScheme is the Authorization scheme QQ expects in front of an app access token.
const AuthScheme = "QQBot"

// Forum sub-channel settings used when creating destinations.
const (
	channelTypeForum     = 10007
	subTypeDiscussion    = 2
	privateTypePublic    = 0
	defaultPosition      = 10
	speakPermissionAll   = 1
	threadFormatMarkdown = 3
)

const maxResponseSize = 1 << 20

// ErrUnauthorized is wrapped when the platform rejects the access token.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx reply from the platform.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("qq api: status %d", e.Status)
	}
	return fmt.Sprintf("qq api: status %d: code %d: %s", e.Status, e.Code, e.Message)
}

// SubChannel is a channel inside a guild.
type SubChannel struct {
	ID       string `json:"id"`
	GuildID  string `json:"guild_id"`
	Name     string `json:"name"`
	Type     int    `json:"type"`
	SubType  int    `json:"sub_type"`
	Position int    `json:"position"`
	ParentID string `json:"parent_id"`
	OwnerID  string `json:"owner_id"`
}

type createChannelRequest struct {
	Name            string   `json:"name"`
	Type            int      `json:"type"`
	SubType         int      `json:"sub_type"`
	Position        int      `json:"position"`
	ParentID        string   `json:"parent_id"`
	PrivateType     int      `json:"private_type"`
	PrivateUserIDs  []string `json:"private_user_ids"`
	SpeakPermission int      `json:"speak_permission"`
	ApplicationID   string   `json:"application_id"`
}

type threadRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Format  int    `json:"format"`
}

type threadResponse struct {
	TaskID     string `json:"task_id"`
	CreateTime string `json:"create_time"`
}

// Client is a QQ guild API client. Authentication is carried by the HTTP client's transport.
type Client struct {
	http           *http.Client
	baseURL        string
	limiter        *rate.Limiter
	onUnauthorized func()
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit replaces the default request pacing.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(limit, burst) }
}

// WithUnauthorizedHook registers fn to run when the platform answers 401,
// typically to drop a cached token.
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// NewHTTPClient returns an HTTP client that authenticates every request from ts.
func NewHTTPClient(ts oauth2.TokenSource, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   http.DefaultTransport,
		},
	}
}

// BaseURL picks the sandbox or production API root.
func BaseURL(sandbox bool) string {
	if sandbox {
		return SandboxURL
	}
	return ProductionURL
}

// NewClient creates a Client for baseURL.
func NewClient(httpClient *http.Client, baseURL string, opts ...Option) *Client {
	c := &Client{
		http:    httpClient,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListChannels returns every sub-channel of a guild.
func (c *Client) ListChannels(ctx context.Context, guildID string) ([]SubChannel, error) {
	var channels []SubChannel
	if err := c.do(ctx, http.MethodGet, "/guilds/"+guildID+"/channels", nil, &channels); err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}

// CreateChannel creates a public forum sub-channel named name.
func (c *Client) CreateChannel(ctx context.Context, guildID, name string) (SubChannel, error) {
	req := createChannelRequest{
		Name:            name,
		Type:            channelTypeForum,
		SubType:         subTypeDiscussion,
		Position:        defaultPosition,
		PrivateType:     privateTypePublic,
		PrivateUserIDs:  []string{},
		SpeakPermission: speakPermissionAll,
	}

	var created SubChannel
	if err := c.do(ctx, http.MethodPost, "/guilds/"+guildID+"/channels", req, &created); err != nil {
		return SubChannel{}, fmt.Errorf("create channel %q: %w", name, err)
	}
	return created, nil
}

// Post publishes a markdown thread in a forum channel. It is not retried.
func (c *Client) Post(ctx context.Context, channelID, title, body string) (model.Receipt, error) {
	req := threadRequest{Title: title, Content: body, Format: threadFormatMarkdown}

	var resp threadResponse
	if err := c.do(ctx, http.MethodPut, "/channels/"+channelID+"/threads", req, &resp); err != nil {
		return model.Receipt{}, fmt.Errorf("post thread: %w", err)
	}
	return model.Receipt{DestinationID: channelID, MessageID: resp.TaskID}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http %s: %w", strings.ToLower(method), err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		if resp.StatusCode == http.StatusUnauthorized {
			if c.onUnauthorized != nil {
				c.onUnauthorized()
			}
			return fmt.Errorf("%w: %w", ErrUnauthorized, apiErr)
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
