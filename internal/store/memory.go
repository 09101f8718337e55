package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"spaces/api/internal/optional"
	"spaces/api/internal/util"
)

// MemoryStore keeps everything in process. It backs tests and deployments
// without DATABASE_URL, and mirrors PostgresStore's semantics.
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	users    map[string]User
	byEmail  map[string]string
	spaces   map[string]Space
	grants   map[string][]Grant
	comments map[string][]Comment
	entities map[string][]Entity
	visits   map[string]map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      func() time.Time { return time.Now().UTC() },
		users:    map[string]User{},
		byEmail:  map[string]string{},
		spaces:   map[string]Space{},
		grants:   map[string][]Grant{},
		comments: map[string][]Comment{},
		entities: map[string][]Entity{},
		visits:   map[string]map[string]time.Time{},
	}
}

// WithClock replaces the time source, for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) EnsureUser(_ context.Context, email, displayName string) (User, error) {
	email = normalizeEmail(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byEmail[email]; ok {
		user := s.users[id]
		if displayName != "" {
			user.DisplayName = displayName
			s.users[id] = user
		}
		return user, nil
	}
	user := User{ID: util.NewID("usr"), Email: email, DisplayName: displayName, CreatedAt: s.now()}
	s.users[user.ID] = user
	s.byEmail[email] = user.ID
	return user, nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, userID string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (s *MemoryStore) FindUsersByEmail(_ context.Context, emails []string) (map[string]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]User{}
	for _, email := range emails {
		email = normalizeEmail(email)
		if id, ok := s.byEmail[email]; ok {
			out[email] = s.users[id]
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertSpace(_ context.Context, item Space) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.spaces[item.ID]; ok {
		return ErrConflict
	}
	if item.IsDefault {
		for _, existing := range s.spaces {
			if existing.OwnerID == item.OwnerID && existing.IsDefault {
				return ErrConflict
			}
		}
	}
	now := s.now()
	if item.DefaultType == "" {
		item.DefaultType = "Unspecified"
	}
	item.CreatedAt, item.UpdatedAt = now, now
	item.ResultCount, item.Views, item.PublicACL = 0, 0, false
	s.spaces[item.ID] = item
	s.grants[item.ID] = []Grant{{SpaceID: item.ID, UserID: item.OwnerID, Level: LevelOwner, GrantedBy: item.OwnerID, CreatedAt: now, UpdatedAt: now}}
	return nil
}

func (s *MemoryStore) GetSpace(_ context.Context, spaceID string) (Space, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.spaces[spaceID]
	if !ok {
		return Space{}, ErrNotFound
	}
	return item, nil
}

func (s *MemoryStore) GetDefaultSpace(_ context.Context, ownerID string) (Space, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.spaces {
		if item.OwnerID == ownerID && item.IsDefault {
			return item, nil
		}
	}
	return Space{}, ErrNotFound
}

func (s *MemoryStore) ListSpacesForUser(_ context.Context, userID, kind string) ([]Space, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Space, 0)
	if kind == ListVisited {
		type visited struct {
			space Space
			at    time.Time
		}
		var found []visited
		for spaceID, byUser := range s.visits {
			at, ok := byUser[userID]
			if !ok {
				continue
			}
			item, ok := s.spaces[spaceID]
			if !ok || !item.PublicACL || s.grantIndex(spaceID, userID) >= 0 {
				continue
			}
			found = append(found, visited{space: item, at: at})
		}
		sort.Slice(found, func(i, j int) bool { return found[i].at.After(found[j].at) })
		for _, v := range found {
			items = append(items, v.space)
		}
		return items, nil
	}

	for spaceID, grants := range s.grants {
		for _, g := range grants {
			if g.UserID != userID {
				continue
			}
			if kind == ListInvited && g.Level == LevelOwner {
				continue
			}
			items = append(items, s.spaces[spaceID])
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if kind != ListInvited && items[i].IsDefault != items[j].IsDefault {
			return items[i].IsDefault
		}
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *MemoryStore) UpdateSpace(_ context.Context, spaceID string, patch SpacePatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.spaces[spaceID]
	if !ok {
		return false, nil
	}
	if patch.Name.Provided() {
		item.Name = patch.Name.Or("")
	}
	if patch.Description.Provided() {
		item.Description = patch.Description.Or("")
	}
	item.UpdatedAt = s.now()
	s.spaces[spaceID] = item
	return true, nil
}

func (s *MemoryStore) DeleteSpace(_ context.Context, spaceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.spaces[spaceID]
	if !ok || item.IsDefault {
		return false, nil
	}
	delete(s.spaces, spaceID)
	delete(s.grants, spaceID)
	delete(s.comments, spaceID)
	delete(s.entities, spaceID)
	delete(s.visits, spaceID)
	return true, nil
}

func (s *MemoryStore) SetPublicACL(_ context.Context, spaceID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.spaces[spaceID]
	if !ok {
		return ErrNotFound
	}
	item.PublicACL = enabled
	item.UpdatedAt = s.now()
	s.spaces[spaceID] = item
	return nil
}

func (s *MemoryStore) RecordVisit(_ context.Context, spaceID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.spaces[spaceID]
	if !ok {
		return ErrNotFound
	}
	item.Views++
	s.spaces[spaceID] = item
	if userID == "" {
		return nil
	}
	if s.visits[spaceID] == nil {
		s.visits[spaceID] = map[string]time.Time{}
	}
	s.visits[spaceID][userID] = s.now()
	return nil
}

// grantIndex expects s.mu to be held.
func (s *MemoryStore) grantIndex(spaceID, userID string) int {
	for i, g := range s.grants[spaceID] {
		if g.UserID == userID {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) withProfile(g Grant) Grant {
	user := s.users[g.UserID]
	g.DisplayName, g.Email, g.PictureURL = user.DisplayName, user.Email, user.PictureURL
	return g
}

func (s *MemoryStore) ListGrants(_ context.Context, spaceID string) ([]Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Grant, 0, len(s.grants[spaceID]))
	for _, g := range s.grants[spaceID] {
		items = append(items, s.withProfile(g))
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Level == LevelOwner && items[j].Level != LevelOwner
	})
	return items, nil
}

func (s *MemoryStore) GetGrant(_ context.Context, spaceID, userID string) (Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.grantIndex(spaceID, userID)
	if idx < 0 {
		return Grant{}, ErrNotFound
	}
	return s.withProfile(s.grants[spaceID][idx]), nil
}

func (s *MemoryStore) UpsertGrant(ctx context.Context, grant Grant) error {
	return s.UpsertGrants(ctx, []Grant{grant})
}

// UpsertGrants applies the whole batch or, when any space is missing,
// nothing.
func (s *MemoryStore) UpsertGrants(_ context.Context, grants []Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, grant := range grants {
		if _, ok := s.spaces[grant.SpaceID]; !ok {
			return ErrNotFound
		}
	}
	now := s.now()
	for _, grant := range grants {
		idx := s.grantIndex(grant.SpaceID, grant.UserID)
		if idx >= 0 {
			existing := s.grants[grant.SpaceID][idx]
			if existing.Level != LevelOwner {
				existing.Level = grant.Level
				existing.GrantedBy = grant.GrantedBy
				existing.UpdatedAt = now
				s.grants[grant.SpaceID][idx] = existing
			}
		} else {
			grant.CreatedAt, grant.UpdatedAt = now, now
			s.grants[grant.SpaceID] = append(s.grants[grant.SpaceID], grant)
		}
		item := s.spaces[grant.SpaceID]
		item.UpdatedAt = now
		s.spaces[grant.SpaceID] = item
	}
	return nil
}

func (s *MemoryStore) DeleteGrant(_ context.Context, spaceID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.grantIndex(spaceID, userID)
	if idx < 0 || s.grants[spaceID][idx].Level == LevelOwner {
		return false, nil
	}
	grants := s.grants[spaceID]
	s.grants[spaceID] = append(grants[:idx:idx], grants[idx+1:]...)
	return true, nil
}

func (s *MemoryStore) withAuthor(c Comment) Comment {
	user := s.users[c.AuthorID]
	c.AuthorName, c.AuthorEmail, c.AuthorPicture = user.DisplayName, user.Email, user.PictureURL
	return c
}

func (s *MemoryStore) InsertComment(_ context.Context, comment Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.spaces[comment.SpaceID]
	if !ok {
		return ErrNotFound
	}
	now := s.now()
	comment.CreatedAt, comment.UpdatedAt = now, now
	s.comments[comment.SpaceID] = append(s.comments[comment.SpaceID], comment)
	item.UpdatedAt = now
	s.spaces[comment.SpaceID] = item
	return nil
}

func (s *MemoryStore) GetComment(_ context.Context, spaceID, commentID string) (Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.comments[spaceID] {
		if c.ID == commentID {
			return s.withAuthor(c), nil
		}
	}
	return Comment{}, ErrNotFound
}

func (s *MemoryStore) ListComments(_ context.Context, spaceID string) ([]Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Comment, 0, len(s.comments[spaceID]))
	for _, c := range s.comments[spaceID] {
		items = append(items, s.withAuthor(c))
	}
	return items, nil
}

func (s *MemoryStore) UpdateComment(_ context.Context, spaceID, commentID, body string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.comments[spaceID] {
		if c.ID == commentID {
			c.Body = body
			c.UpdatedAt = s.now()
			s.comments[spaceID][i] = c
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) DeleteComment(_ context.Context, spaceID, commentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comments := s.comments[spaceID]
	for i, c := range comments {
		if c.ID == commentID {
			s.comments[spaceID] = append(comments[:i:i], comments[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) withCreator(e Entity) Entity {
	user := s.users[e.CreatedBy]
	e.CreatorName, e.CreatorEmail, e.CreatorPicture = user.DisplayName, user.Email, user.PictureURL
	return e
}

func (s *MemoryStore) InsertEntity(_ context.Context, entity Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.spaces[entity.SpaceID]
	if !ok {
		return ErrNotFound
	}
	now := s.now()
	entity.CreatedAt, entity.UpdatedAt = now, now
	if entity.ResultType == "" {
		entity.ResultType = "web"
	}
	if entity.SnapshotKind == "" {
		entity.SnapshotKind = "Unspecified"
	}
	s.entities[entity.SpaceID] = append(s.entities[entity.SpaceID], entity)
	item.ResultCount++
	item.UpdatedAt = now
	s.spaces[entity.SpaceID] = item
	return nil
}

// findEntity expects s.mu to be held.
func (s *MemoryStore) findEntity(resultID string) (string, int) {
	for spaceID, entities := range s.entities {
		for i, e := range entities {
			if e.ID == resultID {
				return spaceID, i
			}
		}
	}
	return "", -1
}

func (s *MemoryStore) GetEntity(_ context.Context, resultID string) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spaceID, idx := s.findEntity(resultID)
	if idx < 0 {
		return Entity{}, ErrNotFound
	}
	return s.withCreator(s.entities[spaceID][idx]), nil
}

// ListEntities returns the newest entity first.
func (s *MemoryStore) ListEntities(_ context.Context, spaceID string) ([]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entities := s.entities[spaceID]
	items := make([]Entity, 0, len(entities))
	for i := len(entities) - 1; i >= 0; i-- {
		items = append(items, s.withCreator(entities[i]))
	}
	return items, nil
}

func (s *MemoryStore) AllEntities(_ context.Context) ([]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]Entity, 0)
	for _, entities := range s.entities {
		for _, e := range entities {
			items = append(items, s.withCreator(e))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *MemoryStore) DeleteEntities(_ context.Context, spaceID string, resultIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := dedupe(resultIDs)
	doomed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		doomed[id] = struct{}{}
	}

	entities := s.entities[spaceID]
	kept := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if _, ok := doomed[e.ID]; ok {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(entities) - len(kept)
	if removed != len(ids) {
		return 0, ErrNotFound
	}
	s.entities[spaceID] = kept
	item := s.spaces[spaceID]
	item.ResultCount = max(item.ResultCount-removed, 0)
	item.UpdatedAt = s.now()
	s.spaces[spaceID] = item
	return removed, nil
}

func (s *MemoryStore) UpdateEntityDisplay(_ context.Context, spaceID, resultID string, patch DisplayPatch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entities[spaceID] {
		if e.ID != resultID {
			continue
		}
		applyDisplay(&e.DisplayTitle, patch.Title)
		applyDisplay(&e.DisplaySnippet, patch.Snippet)
		applyDisplay(&e.DisplayThumbnail, patch.Thumbnail)
		e.UpdatedAt = s.now()
		s.entities[spaceID][i] = e
		return true, nil
	}
	return false, nil
}

func applyDisplay(dst **string, field optional.Field[string]) {
	if !field.Provided() {
		return
	}
	if v, ok := field.Get(); ok {
		*dst = &v
		return
	}
	*dst = nil
}

func (s *MemoryStore) AttachSnapshot(_ context.Context, resultID string, att SnapshotAttachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	spaceID, idx := s.findEntity(resultID)
	if idx < 0 {
		return ErrNotFound
	}
	e := s.entities[spaceID][idx]
	e.ContentURL, e.ContentType = att.ContentURL, att.ContentType
	if att.Thumbnail != "" {
		e.Thumbnail = att.Thumbnail
	}
	e.ContentWidth, e.ContentHeight = att.Width, att.Height
	e.SnapshotPending, e.SnapshotError = false, ""
	e.UpdatedAt = s.now()
	s.entities[spaceID][idx] = e
	return nil
}

func (s *MemoryStore) FailSnapshot(_ context.Context, resultID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	spaceID, idx := s.findEntity(resultID)
	if idx < 0 {
		return nil
	}
	e := s.entities[spaceID][idx]
	e.SnapshotPending, e.SnapshotError = false, reason
	s.entities[spaceID][idx] = e
	return nil
}

func (s *MemoryStore) SearchEntities(_ context.Context, spaceIDs []string, query string, limit int) ([]Entity, error) {
	if limit <= 0 {
		limit = 20
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return []Entity{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		entity Entity
		score  int
	}
	hits := make([]hit, 0)
	for _, spaceID := range spaceIDs {
		for _, e := range s.entities[spaceID] {
			if score := entityScore(e, terms); score > 0 {
				hits = append(hits, hit{entity: s.withCreator(e), score: score})
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if !hits[i].entity.UpdatedAt.Equal(hits[j].entity.UpdatedAt) {
			return hits[i].entity.UpdatedAt.After(hits[j].entity.UpdatedAt)
		}
		return hits[i].entity.ID < hits[j].entity.ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	items := make([]Entity, len(hits))
	for i, h := range hits {
		items[i] = h.entity
	}
	return items, nil
}

// entityScore weights title over snippet over note and URL, matching the
// fts column weights. Every term must match somewhere or the score is zero.
func entityScore(e Entity, terms []string) int {
	title, snippet := e.Title, e.Snippet
	if e.DisplayTitle != nil {
		title = *e.DisplayTitle
	}
	if e.DisplaySnippet != nil {
		snippet = *e.DisplaySnippet
	}
	fields := []struct {
		text   string
		weight int
	}{
		{strings.ToLower(title), 8},
		{strings.ToLower(snippet), 4},
		{strings.ToLower(e.Note), 2},
		{strings.ToLower(e.URL), 1},
	}
	total := 0
	for _, term := range terms {
		best := 0
		for _, f := range fields {
			if f.weight > best && strings.Contains(f.text, term) {
				best = f.weight
			}
		}
		if best == 0 {
			return 0
		}
		total += best
	}
	return total
}
