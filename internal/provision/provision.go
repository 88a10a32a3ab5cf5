// Package provision maps group keys to forum sub-channels, creating them when missing.
package provision

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/text/width"

	"digest_bot/internal/channel"
	"digest_bot/internal/model"
)

// Suffix is appended to a group key, as far as the name budget allows.
const Suffix = "里程碑"

// NameBudget is the display width a sub-channel name may occupy, in wide-character units.
const NameBudget = 5

// ComputeName returns the display name of the destination for groupKey.
// Wide and fullwidth characters count one unit, everything else half a unit.
// The key is kept whole; only the suffix is shortened to fit.
func ComputeName(groupKey string) string {
	var w float64
	for _, r := range groupKey {
		w += runeWidth(r)
	}
	used := int(math.Ceil(w))
	remaining := max(0, NameBudget-used)

	suffix := []rune(Suffix)
	remaining = min(remaining, len(suffix))
	return groupKey + string(suffix[:remaining])
}

func runeWidth(r rune) float64 {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 1
	default:
		return 0.5
	}
}

// Channels is the part of the guild API the provisioner needs.
type Channels interface {
	ListChannels(ctx context.Context, guildID string) ([]channel.SubChannel, error)
	CreateChannel(ctx context.Context, guildID, name string) (channel.SubChannel, error)
}

// Provisioner resolves group keys to destinations inside one guild.
// The guild's channel list is fetched once and reused until Reset.
type Provisioner struct {
	channels Channels
	guildID  string
	logger   *slog.Logger

	mu     sync.Mutex
	byName map[string]model.Destination
}

// New creates a Provisioner for guildID.
func New(channels Channels, guildID string, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		channels: channels,
		guildID:  guildID,
		logger:   logger,
	}
}

// Reset drops the cached channel list so the next lookup lists the guild again.
func (p *Provisioner) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byName = nil
}

// ResolveOrCreate returns the destination named ComputeName(groupKey), creating it if absent.
func (p *Provisioner) ResolveOrCreate(ctx context.Context, groupKey string) (model.Destination, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := ComputeName(groupKey)

	if p.byName == nil {
		if err := p.load(ctx); err != nil {
			return model.Destination{}, err
		}
	}
	if dest, ok := p.byName[name]; ok {
		return dest, nil
	}

	created, err := p.channels.CreateChannel(ctx, p.guildID, name)
	if err != nil {
		return model.Destination{}, fmt.Errorf("create destination %q: %w", name, err)
	}
	if created.ID == "" {
		return model.Destination{}, fmt.Errorf("create destination %q: empty channel id", name)
	}

	dest := model.Destination{ID: created.ID, Name: name}
	p.byName[name] = dest
	p.logger.Info("destination created", "group", groupKey, "name", name, "channel_id", dest.ID)
	return dest, nil
}

func (p *Provisioner) load(ctx context.Context) error {
	list, err := p.channels.ListChannels(ctx, p.guildID)
	if err != nil {
		return fmt.Errorf("list destinations: %w", err)
	}

	byName := make(map[string]model.Destination, len(list))
	for _, ch := range list {
		// First match wins when names repeat.
		if _, ok := byName[ch.Name]; !ok {
			byName[ch.Name] = model.Destination{ID: ch.ID, Name: ch.Name}
		}
	}
	p.byName = byName
	return nil
}
