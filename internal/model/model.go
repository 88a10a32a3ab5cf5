// Package model defines the domain types used across the application.
package model

import (
	"encoding/json"
	"time"
)

// Kind identifies which source shape produced a RemoteItem.
type Kind string

// Supported item kinds.
const (
	KindIssue          Kind = "issue"
	KindPullRequest    Kind = "pull_request"
	KindCommit         Kind = "commit"
	KindMilestoneIssue Kind = "milestone_issue"
	KindPost           Kind = "post"
	KindFeedEntry      Kind = "feed_entry"
)

// RemoteItem is the normalized unit of work fetched from a source.
// It is never mutated by the pipeline once fetched.
type RemoteItem struct {
	Kind      Kind
	ID        string
	Title     string
	Body      string
	Author    string
	CreatedAt time.Time
	State     string
	Permalink string
	Extras    Extras
}

// Extras carries source-specific payload that only some kinds populate.
type Extras struct {
	// Files lists changed file names of a commit.
	Files []string
	// Tags lists hashtag facets of a social post or categories of a feed entry.
	Tags []string
	// Ref is a source-native reference used to fetch more of the item, such as an AT URI.
	Ref string
	// Thread holds the raw reply thread of a social post.
	Thread json.RawMessage
}

// Group is a partitioning key (a milestone) under which items and a destination are scoped.
type Group struct {
	Key    string
	Number int
}

// DedupRecord states that an item (optionally within a group) has been delivered.
type DedupRecord struct {
	Source      string
	ItemID      string
	Group       string
	Title       string
	DeliveredAt time.Time
}

// Destination is a named delivery channel on the messaging platform.
type Destination struct {
	ID   string
	Name string
}

// Receipt is returned by a successful post.
type Receipt struct {
	DestinationID string
	MessageID     string
}

// FilterKind defines the type of filter rule.
type FilterKind string

// Supported filter kinds.
const (
	FilterInclude   FilterKind = "include"
	FilterExclude   FilterKind = "exclude"
	FilterIncludeRe FilterKind = "include_re"
	FilterExcludeRe FilterKind = "exclude_re"
)

// FilterScope defines which part of an item a filter matches against.
type FilterScope string

// Supported filter scopes.
const (
	ScopeTitle   FilterScope = "title"
	ScopeContent FilterScope = "content"
	ScopeAll     FilterScope = "all"
	ScopeTags    FilterScope = "tags"
)

// Filter represents a single filtering rule attached to a source.
type Filter struct {
	Kind  FilterKind  `yaml:"kind"`
	Scope FilterScope `yaml:"scope"`
	Value string      `yaml:"value"`
}

// RunOutcome is the terminal state of one orchestrator run.
type RunOutcome string

// Run outcomes.
const (
	OutcomeDone    RunOutcome = "done"
	OutcomeAborted RunOutcome = "aborted"
)

// Run records a single orchestrator execution for one source.
type Run struct {
	ID         string
	Source     string
	StartedAt  time.Time
	EndedAt    time.Time
	Outcome    RunOutcome
	Error      string
	Fetched    int
	Summarized int
	Posted     int
	Failed     int
}

// Orphan is a previously delivered item that no longer appears in its group's live listing.
type Orphan struct {
	Source     string
	Group      string
	ItemID     string
	DetectedAt time.Time
}
