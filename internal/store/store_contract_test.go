package store

import (
	"context"
	"errors"
	"testing"

	"spaces/api/internal/optional"
	"spaces/api/internal/util"
)

// contractStore is the surface both implementations must agree on.
type contractStore interface {
	EnsureUser(ctx context.Context, email, displayName string) (User, error)
	FindUsersByEmail(ctx context.Context, emails []string) (map[string]User, error)
	InsertSpace(ctx context.Context, item Space) error
	GetSpace(ctx context.Context, spaceID string) (Space, error)
	GetDefaultSpace(ctx context.Context, ownerID string) (Space, error)
	ListSpacesForUser(ctx context.Context, userID, kind string) ([]Space, error)
	UpdateSpace(ctx context.Context, spaceID string, patch SpacePatch) (bool, error)
	DeleteSpace(ctx context.Context, spaceID string) (bool, error)
	SetPublicACL(ctx context.Context, spaceID string, enabled bool) error
	RecordVisit(ctx context.Context, spaceID, userID string) error
	ListGrants(ctx context.Context, spaceID string) ([]Grant, error)
	UpsertGrant(ctx context.Context, grant Grant) error
	UpsertGrants(ctx context.Context, grants []Grant) error
	DeleteGrant(ctx context.Context, spaceID, userID string) (bool, error)
	InsertComment(ctx context.Context, comment Comment) error
	ListComments(ctx context.Context, spaceID string) ([]Comment, error)
	InsertEntity(ctx context.Context, entity Entity) error
	GetEntity(ctx context.Context, resultID string) (Entity, error)
	AllEntities(ctx context.Context) ([]Entity, error)
	DeleteEntities(ctx context.Context, spaceID string, resultIDs []string) (int, error)
	UpdateEntityDisplay(ctx context.Context, spaceID, resultID string, patch DisplayPatch) (bool, error)
	AttachSnapshot(ctx context.Context, resultID string, att SnapshotAttachment) error
	SearchEntities(ctx context.Context, spaceIDs []string, query string, limit int) ([]Entity, error)
}

var (
	_ contractStore = (*MemoryStore)(nil)
	_ contractStore = (*PostgresStore)(nil)
)

func TestMemoryStoreContract(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestPostgresStoreContract(t *testing.T) {
	db, ctx := openTestDB(t)
	if err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	exerciseStore(t, NewPostgresStore(db))
}

func exerciseStore(t *testing.T, st contractStore) {
	t.Helper()
	ctx := context.Background()

	ann, err := st.EnsureUser(ctx, "Ann@Example.com", "Ann")
	if err != nil {
		t.Fatalf("EnsureUser ann: %v", err)
	}
	bob, err := st.EnsureUser(ctx, "bob@example.com", "Bob")
	if err != nil {
		t.Fatalf("EnsureUser bob: %v", err)
	}
	again, err := st.EnsureUser(ctx, "ann@example.com", "")
	if err != nil || again.ID != ann.ID || again.DisplayName != "Ann" {
		t.Fatalf("EnsureUser should be idempotent by email: %+v, %v", again, err)
	}

	found, err := st.FindUsersByEmail(ctx, []string{"BOB@example.com", "nobody@example.com"})
	if err != nil {
		t.Fatalf("FindUsersByEmail: %v", err)
	}
	if len(found) != 1 || found["bob@example.com"].ID != bob.ID {
		t.Fatalf("unexpected lookup %+v", found)
	}

	def := Space{ID: util.NewID("sp"), OwnerID: ann.ID, Name: "Saved for later", IsDefault: true, DefaultType: "SavedForLater"}
	if err := st.InsertSpace(ctx, def); err != nil {
		t.Fatalf("InsertSpace default: %v", err)
	}
	dup := Space{ID: util.NewID("sp"), OwnerID: ann.ID, Name: "Another", IsDefault: true, DefaultType: "SavedForLater"}
	if err := st.InsertSpace(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("second default space should conflict, got %v", err)
	}
	if got, err := st.GetDefaultSpace(ctx, ann.ID); err != nil || got.ID != def.ID {
		t.Fatalf("GetDefaultSpace = %+v, %v", got, err)
	}
	if deleted, err := st.DeleteSpace(ctx, def.ID); err != nil || deleted {
		t.Fatalf("default space must not be deletable: %v, %v", deleted, err)
	}

	sp := Space{ID: util.NewID("sp"), OwnerID: ann.ID, Name: "Reading List"}
	if err := st.InsertSpace(ctx, sp); err != nil {
		t.Fatalf("InsertSpace: %v", err)
	}
	if _, err := st.GetSpace(ctx, "sp_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing space should be ErrNotFound, got %v", err)
	}

	if ok, err := st.UpdateSpace(ctx, sp.ID, SpacePatch{Description: optional.Of("links")}); err != nil || !ok {
		t.Fatalf("UpdateSpace: %v, %v", ok, err)
	}
	if ok, err := st.UpdateSpace(ctx, sp.ID, SpacePatch{Description: optional.Null[string]()}); err != nil || !ok {
		t.Fatalf("UpdateSpace clear: %v, %v", ok, err)
	}
	got, err := st.GetSpace(ctx, sp.ID)
	if err != nil || got.Name != "Reading List" || got.Description != "" {
		t.Fatalf("after patch: %+v, %v", got, err)
	}

	if err := st.UpsertGrant(ctx, Grant{SpaceID: sp.ID, UserID: bob.ID, Level: LevelEdit, GrantedBy: ann.ID}); err != nil {
		t.Fatalf("UpsertGrant: %v", err)
	}
	if err := st.UpsertGrant(ctx, Grant{SpaceID: sp.ID, UserID: ann.ID, Level: LevelView, GrantedBy: bob.ID}); err != nil {
		t.Fatalf("UpsertGrant owner: %v", err)
	}
	grants, err := st.ListGrants(ctx, sp.ID)
	if err != nil || len(grants) != 2 {
		t.Fatalf("ListGrants = %+v, %v", grants, err)
	}
	if grants[0].UserID != ann.ID || grants[0].Level != LevelOwner {
		t.Fatalf("owner grant should be first and unchanged: %+v", grants[0])
	}
	if grants[1].Email != "bob@example.com" {
		t.Fatalf("grant should carry profile: %+v", grants[1])
	}

	batch := []Grant{
		{SpaceID: sp.ID, UserID: bob.ID, Level: LevelView, GrantedBy: ann.ID},
		{SpaceID: "sp_missing", UserID: bob.ID, Level: LevelView, GrantedBy: ann.ID},
	}
	if err := st.UpsertGrants(ctx, batch); !errors.Is(err, ErrNotFound) {
		t.Fatalf("batch with a missing space should be ErrNotFound, got %v", err)
	}
	if grants, _ = st.ListGrants(ctx, sp.ID); len(grants) != 2 || grants[1].Level != LevelEdit {
		t.Fatalf("failed batch must not write any grant: %+v", grants)
	}

	invited, err := st.ListSpacesForUser(ctx, bob.ID, ListInvited)
	if err != nil || len(invited) != 1 || invited[0].ID != sp.ID {
		t.Fatalf("invited = %+v, %v", invited, err)
	}
	all, err := st.ListSpacesForUser(ctx, ann.ID, ListAll)
	if err != nil || len(all) != 2 || !all[0].IsDefault {
		t.Fatalf("all = %+v, %v", all, err)
	}

	if err := st.InsertComment(ctx, Comment{ID: "cmt_1", SpaceID: sp.ID, AuthorID: bob.ID, Body: "nice find"}); err != nil {
		t.Fatalf("InsertComment: %v", err)
	}
	if err := st.InsertComment(ctx, Comment{ID: "cmt_2", SpaceID: sp.ID, AuthorID: ann.ID, Body: "thanks"}); err != nil {
		t.Fatalf("InsertComment: %v", err)
	}

	if ok, err := st.DeleteGrant(ctx, sp.ID, bob.ID); err != nil || !ok {
		t.Fatalf("DeleteGrant: %v, %v", ok, err)
	}
	if ok, err := st.DeleteGrant(ctx, sp.ID, bob.ID); err != nil || ok {
		t.Fatalf("second DeleteGrant should report nothing removed: %v, %v", ok, err)
	}
	if ok, err := st.DeleteGrant(ctx, sp.ID, ann.ID); err != nil || ok {
		t.Fatalf("owner grant must not be deletable: %v, %v", ok, err)
	}
	comments, err := st.ListComments(ctx, sp.ID)
	if err != nil || len(comments) != 2 || comments[0].ID != "cmt_1" || comments[0].AuthorEmail != "bob@example.com" {
		t.Fatalf("comments should survive revocation in order: %+v, %v", comments, err)
	}

	for _, seed := range []struct{ id, title, note string }{
		{"res_1", "Tram timetable", ""},
		{"res_2", "Bike map", "the tram route is faster"},
	} {
		entity := Entity{ID: seed.id, DocID: "doc_" + seed.id, SpaceID: sp.ID, URL: "https://x.com/" + seed.id, Title: seed.title, Note: seed.note, CreatedBy: ann.ID, SnapshotPending: true}
		if err := st.InsertEntity(ctx, entity); err != nil {
			t.Fatalf("InsertEntity: %v", err)
		}
	}
	if n, err := st.DeleteEntities(ctx, sp.ID, []string{"res_1", "res_missing"}); !errors.Is(err, ErrNotFound) || n != 0 {
		t.Fatalf("partial batch delete must fail as a whole: %d, %v", n, err)
	}
	if _, err := st.GetEntity(ctx, "res_1"); err != nil {
		t.Fatalf("res_1 should survive failed batch: %v", err)
	}

	if ok, err := st.UpdateEntityDisplay(ctx, sp.ID, "res_2", DisplayPatch{Title: optional.Of("Better title")}); err != nil || !ok {
		t.Fatalf("UpdateEntityDisplay: %v, %v", ok, err)
	}
	if err := st.AttachSnapshot(ctx, "res_2", SnapshotAttachment{ContentURL: "https://blobs/res_2.png", ContentType: "image/png", Thumbnail: "https://blobs/res_2_thumb.png", Width: 800, Height: 600}); err != nil {
		t.Fatalf("AttachSnapshot: %v", err)
	}
	e2, err := st.GetEntity(ctx, "res_2")
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if e2.Title != "Bike map" || e2.DisplayTitle == nil || *e2.DisplayTitle != "Better title" {
		t.Fatalf("display override should not touch saved title: %+v", e2)
	}
	if e2.SnapshotPending || e2.ContentURL == "" || e2.ContentWidth != 800 {
		t.Fatalf("snapshot not attached: %+v", e2)
	}
	if ok, err := st.UpdateEntityDisplay(ctx, sp.ID, "res_2", DisplayPatch{Title: optional.Null[string]()}); err != nil || !ok {
		t.Fatalf("UpdateEntityDisplay clear: %v, %v", ok, err)
	}
	if e2, _ = st.GetEntity(ctx, "res_2"); e2.DisplayTitle != nil {
		t.Fatalf("null should clear the override: %+v", e2.DisplayTitle)
	}

	hits, err := st.SearchEntities(ctx, []string{sp.ID}, "timetable", 10)
	if err != nil || len(hits) != 1 || hits[0].ID != "res_1" {
		t.Fatalf("SearchEntities(timetable) = %+v, %v", hits, err)
	}
	hits, err = st.SearchEntities(ctx, []string{sp.ID}, "tram", 10)
	if err != nil || len(hits) != 2 || hits[0].ID != "res_1" || hits[1].ID != "res_2" {
		t.Fatalf("a title match should rank above a note match: %+v, %v", hits, err)
	}
	if hits, err = st.SearchEntities(ctx, []string{sp.ID}, "tram bike", 10); err != nil || len(hits) != 1 || hits[0].ID != "res_2" {
		t.Fatalf("every term must match: %+v, %v", hits, err)
	}
	if hits, err = st.SearchEntities(ctx, []string{sp.ID}, "   ", 10); err != nil || len(hits) != 0 {
		t.Fatalf("blank query should match nothing: %+v, %v", hits, err)
	}

	if n, err := st.DeleteEntities(ctx, sp.ID, []string{"res_1", "res_2", "res_1"}); err != nil || n != 2 {
		t.Fatalf("DeleteEntities = %d, %v", n, err)
	}
	if got, _ := st.GetSpace(ctx, sp.ID); got.ResultCount != 0 {
		t.Fatalf("result count should drop to 0, got %d", got.ResultCount)
	}

	if err := st.SetPublicACL(ctx, sp.ID, true); err != nil {
		t.Fatalf("SetPublicACL: %v", err)
	}
	if err := st.RecordVisit(ctx, sp.ID, bob.ID); err != nil {
		t.Fatalf("RecordVisit: %v", err)
	}
	visited, err := st.ListSpacesForUser(ctx, bob.ID, ListVisited)
	if err != nil || len(visited) != 1 || visited[0].Views != 1 {
		t.Fatalf("visited = %+v, %v", visited, err)
	}

	if ok, err := st.DeleteSpace(ctx, sp.ID); err != nil || !ok {
		t.Fatalf("DeleteSpace: %v, %v", ok, err)
	}
	if _, err := st.GetSpace(ctx, sp.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted space should be gone, got %v", err)
	}
}
