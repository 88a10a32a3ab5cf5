// Package filter implements the item matching engine applied after fetching.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"digest_bot/internal/model"
)

// Match checks whether an item passes the given set of filters.
// If no filters are provided, the item always passes.
// Include filters use OR logic (at least one must match).
// Exclude filters use AND logic (none must match).
func Match(item model.RemoteItem, filters []model.Filter) bool {
	if len(filters) == 0 {
		return true
	}

	hasIncludes := false
	anyIncludeMatched := false

	for _, f := range filters {
		switch f.Kind {
		case model.FilterInclude, model.FilterIncludeRe:
			hasIncludes = true
			if matchesFilter(item, f) {
				anyIncludeMatched = true
			}
		case model.FilterExclude, model.FilterExcludeRe:
			if matchesFilter(item, f) {
				return false
			}
		}
	}

	if hasIncludes && !anyIncludeMatched {
		return false
	}
	return true
}

// Apply returns the items that pass filters, preserving order.
func Apply(items []model.RemoteItem, filters []model.Filter) []model.RemoteItem {
	if len(filters) == 0 {
		return items
	}
	var matched []model.RemoteItem
	for _, item := range items {
		if Match(item, filters) {
			matched = append(matched, item)
		}
	}
	return matched
}

func matchesFilter(item model.RemoteItem, f model.Filter) bool {
	if f.Scope == model.ScopeTags {
		return matchesTags(item.Extras.Tags, f)
	}
	text := textForScope(item, f.Scope)
	switch f.Kind {
	case model.FilterInclude, model.FilterExclude:
		return strings.Contains(text, strings.ToLower(f.Value))
	case model.FilterIncludeRe, model.FilterExcludeRe:
		re, err := regexp.Compile("(?i)" + f.Value)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	}
	return false
}

// matchesTags compares whole tags, so "bevy" does not match "bevymergetrain".
func matchesTags(tags []string, f model.Filter) bool {
	var re *regexp.Regexp
	if f.Kind == model.FilterIncludeRe || f.Kind == model.FilterExcludeRe {
		var err error
		re, err = regexp.Compile("(?i)^(?:" + f.Value + ")$")
		if err != nil {
			return false
		}
	}
	for _, tag := range tags {
		if re != nil {
			if re.MatchString(tag) {
				return true
			}
			continue
		}
		if strings.EqualFold(tag, f.Value) {
			return true
		}
	}
	return false
}

func textForScope(item model.RemoteItem, scope model.FilterScope) string {
	switch scope {
	case model.ScopeTitle:
		return strings.ToLower(item.Title)
	case model.ScopeContent:
		return strings.ToLower(item.Body)
	default:
		return strings.ToLower(item.Title + " " + item.Body)
	}
}

// Validate checks that a rule has a known kind and scope and, for regex kinds, compiles.
func Validate(f model.Filter) error {
	switch f.Kind {
	case model.FilterInclude, model.FilterExclude:
	case model.FilterIncludeRe, model.FilterExcludeRe:
		if _, err := regexp.Compile("(?i)" + f.Value); err != nil {
			return fmt.Errorf("invalid regex: %w", err)
		}
	default:
		return fmt.Errorf("unknown filter kind %q", f.Kind)
	}
	switch f.Scope {
	case model.ScopeTitle, model.ScopeContent, model.ScopeAll, model.ScopeTags, "":
	default:
		return fmt.Errorf("unknown filter scope %q", f.Scope)
	}
	if f.Value == "" {
		return fmt.Errorf("empty filter value")
	}
	return nil
}
