package search

import (
	"context"
	"log"
	"sync"
)

// Service tries the index first and falls back to the store.
type Service struct {
	index    Index
	fallback Fallback
	pending  sync.WaitGroup
}

// NewService creates a search service. index may be nil if Meilisearch is not configured.
func NewService(index Index, fallback Fallback) *Service {
	return &Service{index: index, fallback: fallback}
}

func (s *Service) indexReady() bool {
	return s.index != nil && s.index.Healthy()
}

// Backend names what answers queries right now: "index" when Meilisearch is
// healthy, otherwise "store".
func (s *Service) Backend() string {
	if s.indexReady() {
		return "index"
	}
	return "store"
}

func (s *Service) Search(ctx context.Context, q Query) ([]Result, error) {
	if len(q.SpaceIDs) == 0 {
		return []Result{}, nil
	}
	if s.indexReady() {
		results, _, err := s.index.Search(q)
		if err == nil {
			return nonNil(results), nil
		}
		log.Printf("search: meilisearch error, falling back to store: %v", err)
	}

	entities, err := s.fallback.SearchEntities(ctx, q.SpaceIDs, q.Text, q.Limit)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(entities))
	for _, e := range entities {
		rec := RecordOf(e)
		results = append(results, Result{
			SpaceID:  rec.SpaceID,
			ResultID: rec.ID,
			URL:      rec.URL,
			Title:    rec.Title,
			Snippet:  rec.Snippet,
		})
	}
	return results, nil
}

// IndexEntity indexes an entity (fire-and-forget).
func (s *Service) IndexEntity(rec Record) {
	s.async("index entity "+rec.ID, func() error { return s.index.IndexEntities([]Record{rec}) })
}

// DeleteEntities removes entities from the index (fire-and-forget).
func (s *Service) DeleteEntities(ids []string) {
	if len(ids) == 0 {
		return
	}
	s.async("delete entities", func() error { return s.index.DeleteEntities(ids) })
}

// Reindex pushes every record to the index. Called at startup.
func (s *Service) Reindex(records []Record) {
	if !s.indexReady() || len(records) == 0 {
		return
	}
	if err := s.index.IndexEntities(records); err != nil {
		log.Printf("search: reindex entities: %v", err)
	}
}

// Wait blocks until queued index writes finish.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) async(what string, fn func() error) {
	if !s.indexReady() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := fn(); err != nil {
			log.Printf("search: %s: %v", what, err)
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
