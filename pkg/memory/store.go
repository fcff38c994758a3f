// LIDCO - multi-agent coding assistant
// License: MIT
//
// Copyright (c) 2026 LIDCO contributors

// Package memory persists reusable knowledge across sessions: decisions,
// patterns and solutions the agents learned, plus an optional hand-written
// MEMORY.md overlay.
package memory

import (
	"context"
	"time"
)

const (
	CategoryGeneral  = "general"
	CategoryPattern  = "pattern"
	CategoryDecision = "decision"
	CategorySolution = "solution"

	DefaultMaxEntries  = 500
	DefaultSearchLimit = 20
	DefaultMaxLines    = 200
)

// Entry is one remembered fact.
type Entry struct {
	Key       string
	Content   string
	Category  string
	Tags      []string
	CreatedAt time.Time
	Source    string // who created it, e.g. "agent:coder" or "clarification"
}

// HasTag reports whether the entry carries any of tags.
func (e Entry) HasTag(tags ...string) bool {
	for _, want := range tags {
		for _, t := range e.Tags {
			if t == want {
				return true
			}
		}
	}
	return false
}

// SearchOptions narrows a Search. Zero values mean no filter; Limit 0
// means DefaultSearchLimit.
type SearchOptions struct {
	Category string
	Tags     []string
	Limit    int
}

// Store is the persistent memory surface used by the workflow and the CLI.
// Entries come back oldest first.
type Store interface {
	// Add inserts or replaces the entry with the same key. An empty
	// category becomes CategoryGeneral and a zero CreatedAt becomes now.
	Add(ctx context.Context, e Entry) (Entry, error)

	// Get returns the entry and false when the key is unknown.
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Search does a case-insensitive substring match on key and content.
	Search(ctx context.Context, query string, opts SearchOptions) ([]Entry, error)

	// Remove deletes the entry and reports whether it existed.
	Remove(ctx context.Context, key string) (bool, error)

	// List returns every entry, or only one category when category is set.
	List(ctx context.Context, category string) ([]Entry, error)

	// BuildContextString renders the memory for a system prompt, capped
	// at maxLines lines.
	BuildContextString(ctx context.Context, maxLines int) (string, error)

	Close() error
}
