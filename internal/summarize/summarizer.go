package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"digest_bot/internal/model"
)

// ErrSummarization is wrapped by every summarization failure.
var ErrSummarization = errors.New("summarization failed")

// Distinct failure kinds. Each wraps ErrSummarization.
var (
	ErrRequest   = fmt.Errorf("%w: request failed", ErrSummarization)
	ErrNoChoices = fmt.Errorf("%w: no choices returned", ErrSummarization)
	ErrNoMessage = fmt.Errorf("%w: first choice has no message", ErrSummarization)
	ErrEmptyText = fmt.Errorf("%w: empty message text", ErrSummarization)
)

// DefaultCombineBelow is the payload size under which all items share one user turn.
const DefaultCombineBelow = 16 * 1024

// Prompt is the fixed instruction leading every request of a source.
type Prompt struct {
	// Role of the instruction turn, RoleSystem or RoleAssistant.
	Role string `yaml:"role"`
	Text string `yaml:"text"`
}

// Completer sends one chat completion request.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Summarizer builds requests from items and extracts the first usable answer.
type Summarizer struct {
	client       Completer
	maxTokens    int
	combineBelow int
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithMaxTokens caps the generated length. Zero leaves the service default.
func WithMaxTokens(n int) Option {
	return func(s *Summarizer) { s.maxTokens = n }
}

// WithCombineBelow sets the payload size under which items are sent as one user turn.
func WithCombineBelow(n int) Option {
	return func(s *Summarizer) { s.combineBelow = n }
}

// New creates a Summarizer on top of client.
func New(client Completer, opts ...Option) *Summarizer {
	s := &Summarizer{client: client, combineBelow: DefaultCombineBelow}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize asks for a digest of items under prompt. It never retries and never splits the batch.
func (s *Summarizer) Summarize(ctx context.Context, items []model.RemoteItem, prompt Prompt) (string, error) {
	if len(items) == 0 {
		return "", fmt.Errorf("%w: no items", ErrSummarization)
	}

	resp, err := s.client.Complete(ctx, Request{
		Messages:  s.messages(items, prompt),
		MaxTokens: s.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRequest, err)
	}
	return FirstText(resp)
}

// FirstText extracts the text of the first choice.
func FirstText(resp Response) (string, error) {
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	msg := resp.Choices[0].Message
	if msg == nil {
		return "", ErrNoMessage
	}
	if strings.TrimSpace(msg.Content) == "" {
		return "", ErrEmptyText
	}
	return msg.Content, nil
}

func (s *Summarizer) messages(items []model.RemoteItem, prompt Prompt) []Message {
	role := prompt.Role
	if role == "" {
		role = RoleSystem
	}
	msgs := []Message{{Role: role, Content: prompt.Text}}

	turns := make([]string, len(items))
	size := 0
	for i, item := range items {
		turns[i] = Describe(item)
		size += len(turns[i])
	}

	if size < s.combineBelow {
		return append(msgs, Message{Role: RoleUser, Content: strings.Join(turns, "\n")})
	}
	for _, turn := range turns {
		msgs = append(msgs, Message{Role: RoleUser, Content: turn})
	}
	return msgs
}

// Describe renders one item as a user turn.
func Describe(item model.RemoteItem) string {
	if item.Kind == model.KindPost && len(item.Extras.Thread) > 0 {
		return string(item.Extras.Thread)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "编号: %s, 标题: %s", item.ID, item.Title)
	if item.Body != "" {
		fmt.Fprintf(&b, ", 内容: %q", item.Body)
	}
	fmt.Fprintf(&b, ", 发布者名称: %s", item.Author)
	if !item.CreatedAt.IsZero() {
		fmt.Fprintf(&b, ", 时间UTC: %s", item.CreatedAt.UTC().Format(time.RFC3339))
	}
	if item.State != "" {
		fmt.Fprintf(&b, ", 状态: %s", item.State)
	}
	if len(item.Extras.Files) > 0 {
		fmt.Fprintf(&b, ", 文件更改列表: %s", strings.Join(item.Extras.Files, ", "))
	}
	if len(item.Extras.Tags) > 0 {
		fmt.Fprintf(&b, ", 标签: %s", strings.Join(item.Extras.Tags, ", "))
	}
	fmt.Fprintf(&b, ", 原文链接: %s", item.Permalink)
	return b.String()
}
