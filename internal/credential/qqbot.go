package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultQQTokenURL is the QQ bot platform's app access token endpoint.
const DefaultQQTokenURL = "https://bots.qq.com/app/getAppAccessToken"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// QQBotProvider issues app access tokens for a QQ bot.
type QQBotProvider struct {
	client   HTTPClient
	tokenURL string
	appID    string
	secret   string
}

// NewQQBotProvider creates a provider for the given bot credentials.
func NewQQBotProvider(client HTTPClient, tokenURL, appID, secret string) *QQBotProvider {
	if tokenURL == "" {
		tokenURL = DefaultQQTokenURL
	}
	return &QQBotProvider{client: client, tokenURL: tokenURL, appID: appID, secret: secret}
}

// Key identifies the cached token; one token per bot application.
func (p *QQBotProvider) Key() string {
	return "qq_bot_access_token:" + p.appID
}

// Issue calls the token endpoint.
func (p *QQBotProvider) Issue(ctx context.Context) (Grant, error) {
	payload, err := json.Marshal(map[string]string{
		"appId":        p.appID,
		"clientSecret": p.secret,
	})
	if err != nil {
		return Grant{}, fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, bytes.NewReader(payload))
	if err != nil {
		return Grant{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Grant{}, fmt.Errorf("http post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return Grant{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Grant{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// expires_in arrives as a JSON string; tolerate a bare number too.
	var data struct {
		AccessToken string          `json:"access_token"`
		ExpiresIn   json.RawMessage `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return Grant{}, fmt.Errorf("decode token response: %w", err)
	}

	return Grant{
		AccessToken: data.AccessToken,
		ExpiresIn:   strings.Trim(string(data.ExpiresIn), `"`),
	}, nil
}
