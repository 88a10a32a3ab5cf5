// Package distribute routes digests to the messaging platform named by a destination reference.
package distribute

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"digest_bot/internal/model"
)

// Platforms.
const (
	PlatformQQ       = "qq"
	PlatformTelegram = "telegram"
)

// ErrUnknownPlatform is returned for a reference whose platform has no poster.
var ErrUnknownPlatform = errors.New("unknown platform")

// Poster publishes one titled message to a destination of its platform.
type Poster interface {
	Post(ctx context.Context, destinationID, title, body string) (model.Receipt, error)
}

// Router dispatches posts by destination reference.
type Router struct {
	posters map[string]Poster
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{posters: make(map[string]Poster)}
}

// Register sets the poster of platform.
func (r *Router) Register(platform string, p Poster) {
	r.posters[platform] = p
}

// Has reports whether platform has a poster.
func (r *Router) Has(platform string) bool {
	_, ok := r.posters[platform]
	return ok
}

// ParseRef splits a reference of the form "<platform>:<id>". A reference without a
// known platform prefix is a QQ channel id.
func ParseRef(ref string) (platform, id string) {
	ref = strings.TrimSpace(ref)
	if p, rest, ok := strings.Cut(ref, ":"); ok {
		switch p {
		case PlatformQQ, PlatformTelegram:
			return p, rest
		}
	}
	return PlatformQQ, ref
}

// Post publishes to the destination named by ref.
func (r *Router) Post(ctx context.Context, ref, title, body string) (model.Receipt, error) {
	platform, id := ParseRef(ref)
	if id == "" {
		return model.Receipt{}, fmt.Errorf("empty destination in %q", ref)
	}
	p, ok := r.posters[platform]
	if !ok {
		return model.Receipt{}, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	receipt, err := p.Post(ctx, id, title, body)
	if err != nil {
		return model.Receipt{}, fmt.Errorf("post to %s: %w", platform, err)
	}
	return receipt, nil
}
