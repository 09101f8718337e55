package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	entityIndex    = "spaces_entities"
	defaultLimit   = 20
	healthInterval = 10 * time.Second
)

var errIndexDown = errors.New("search: meilisearch unhealthy")

// Meili is the Meilisearch-backed entity index. It probes the server in the
// background and reconfigures the index whenever the server comes back.
type Meili struct {
	client    meili.ServiceManager
	healthy   atomic.Bool
	stop      chan struct{}
	closeOnce sync.Once
}

func NewMeili(url, apiKey string) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		stop:   make(chan struct{}),
	}
	if m.probe() {
		log.Printf("search: meilisearch ready at %s", url)
	} else {
		log.Printf("search: meilisearch unavailable at %s, using store fallback", url)
	}
	go m.watch()
	return m
}

// probe refreshes the health flag and configures the index on a transition
// to healthy.
func (m *Meili) probe() bool {
	_, err := m.client.Health()
	up := err == nil
	if was := m.healthy.Swap(up); up && !was {
		m.configure()
	}
	return up
}

func (m *Meili) configure() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: entityIndex, PrimaryKey: "id"}); err != nil {
		log.Printf("search: create index %s: %v", entityIndex, err)
	}
	index := m.client.Index(entityIndex)
	filterable := []interface{}{"spaceId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: filterable attributes: %v", err)
	}
	searchable := []string{"title", "snippet", "note", "url"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: searchable attributes: %v", err)
	}
}

func (m *Meili) watch() {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.probe()
		}
	}
}

func (m *Meili) Close() {
	m.closeOnce.Do(func() { close(m.stop) })
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.Healthy() {
		return nil, 0, errIndexDown
	}
	if len(q.SpaceIDs) == 0 {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	resp, err := m.client.Index(entityIndex).Search(q.Text, &meili.SearchRequest{
		Limit:                 int64(limit),
		Filter:                spaceFilter(q.SpaceIDs),
		AttributesToHighlight: []string{"title", "snippet"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("search: meilisearch query: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, resultOf(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func spaceFilter(spaceIDs []string) string {
	quoted := make([]string, len(spaceIDs))
	for i, id := range spaceIDs {
		quoted[i] = strconv.Quote(id)
	}
	return "spaceId IN [" + strings.Join(quoted, ", ") + "]"
}

// resultOf prefers the highlighted title and snippet when Meilisearch
// returned them.
func resultOf(hit meili.Hit) Result {
	var doc Record
	var formatted struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	}
	for key, raw := range hit {
		switch key {
		case "_formatted":
			_ = json.Unmarshal(raw, &formatted)
		case "id":
			_ = json.Unmarshal(raw, &doc.ID)
		case "spaceId":
			_ = json.Unmarshal(raw, &doc.SpaceID)
		case "url":
			_ = json.Unmarshal(raw, &doc.URL)
		case "title":
			_ = json.Unmarshal(raw, &doc.Title)
		case "snippet":
			_ = json.Unmarshal(raw, &doc.Snippet)
		}
	}
	return Result{
		ResultID: doc.ID,
		SpaceID:  doc.SpaceID,
		URL:      doc.URL,
		Title:    highlighted(formatted.Title, doc.Title),
		Snippet:  highlighted(formatted.Snippet, doc.Snippet),
	}
}

func highlighted(formatted, plain string) string {
	if strings.TrimSpace(formatted) != "" {
		return formatted
	}
	return plain
}

func (m *Meili) IndexEntities(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(entityIndex).AddDocuments(records, nil)
	return err
}

func (m *Meili) DeleteEntities(ids []string) error {
	index := m.client.Index(entityIndex)
	for _, id := range ids {
		if _, err := index.DeleteDocument(id, nil); err != nil {
			return fmt.Errorf("search: delete %s: %w", id, err)
		}
	}
	return nil
}
