package search

import (
	"context"

	"spaces/api/internal/store"
)

// Result is a single entity hit.
type Result struct {
	SpaceID  string `json:"spaceId"`
	ResultID string `json:"id"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
}

// Query describes a search request. SpaceIDs bounds the search to spaces the
// caller may view; an empty list matches nothing.
type Query struct {
	Text     string
	SpaceIDs []string
	Limit    int
}

// Index is a full-text entity index.
type Index interface {
	Healthy() bool
	Search(q Query) ([]Result, int, error)
	IndexEntities(records []Record) error
	DeleteEntities(ids []string) error
}

// Fallback answers searches straight from the store.
type Fallback interface {
	SearchEntities(ctx context.Context, spaceIDs []string, query string, limit int) ([]store.Entity, error)
}

// Record is the data we index for an entity.
type Record struct {
	ID      string `json:"id"`
	SpaceID string `json:"spaceId"`
	DocID   string `json:"docId"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Note    string `json:"note"`
}

// RecordOf flattens an entity with its display overrides applied.
func RecordOf(e store.Entity) Record {
	return Record{
		ID:      e.ID,
		SpaceID: e.SpaceID,
		DocID:   e.DocID,
		URL:     e.URL,
		Title:   stringOr(e.DisplayTitle, e.Title),
		Snippet: stringOr(e.DisplaySnippet, e.Snippet),
		Note:    e.Note,
	}
}

func stringOr(override *string, fallback string) string {
	if override != nil {
		return *override
	}
	return fallback
}
