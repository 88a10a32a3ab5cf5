// Package fetcher reads remote items from source APIs and normalizes them into model.RemoteItem.
package fetcher

import (
	"context"
	"errors"
	"fmt"

	"digest_bot/internal/model"
)

// MaxPages bounds a single paging walk so a misbehaving source cannot loop forever.
const MaxPages = 1000

// ErrTooManyPages is returned when a source keeps returning full pages past MaxPages.
var ErrTooManyPages = errors.New("too many pages")

// PageFunc fetches one page of items. Page indexes start at 0.
type PageFunc func(ctx context.Context, page int) ([]model.RemoteItem, error)

// Pages requests pages 0, 1, 2... from fetch and hands each one to fn in source order.
// It stops after the first page holding fewer than pageSize items.
// A fetch error stops paging immediately; pages already handed to fn stay handed.
func Pages(ctx context.Context, fetch PageFunc, pageSize int, fn func(page int, items []model.RemoteItem) error) error {
	if pageSize <= 0 {
		return fmt.Errorf("invalid page size %d", pageSize)
	}

	for page := 0; page < MaxPages; page++ {
		items, err := fetch(ctx, page)
		if err != nil {
			return fmt.Errorf("fetch page %d: %w", page, err)
		}
		if err := fn(page, items); err != nil {
			return err
		}
		if len(items) < pageSize {
			return nil
		}
	}
	return ErrTooManyPages
}

// Collect walks every page and returns all items in source order.
func Collect(ctx context.Context, fetch PageFunc, pageSize int) ([]model.RemoteItem, error) {
	var all []model.RemoteItem
	err := Pages(ctx, fetch, pageSize, func(_ int, items []model.RemoteItem) error {
		all = append(all, items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}
