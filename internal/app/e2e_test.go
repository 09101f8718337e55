package app

import (
	"context"
	"testing"

	"spaces/api/internal/acl"
	"spaces/api/internal/ops"
	"spaces/api/internal/optional"
	"spaces/api/internal/transport"
)

func newClient(server *HTTPServer, token string) *ops.Client {
	return ops.NewClient(transport.NewInProcess(server.Handler(), transport.WithToken(token)), ops.DefaultConfig())
}

func TestSharingScenarioThroughClient(t *testing.T) {
	ctx := context.Background()
	notifier := &recordingNotifier{}
	svc := newTestService(newFakeStore(), notifier)
	server := NewHTTPServer(svc, "*")

	owner := login(t, svc, "owner@example.com")
	friend := login(t, svc, "friend@example.com")
	ownerClient := newClient(server, owner.Token)
	friendClient := newClient(server, friend.Token)
	anonClient := newClient(server, "")

	spaceID, err := ownerClient.CreateSpace(ctx, "Weekend")
	if err != nil {
		t.Fatalf("CreateSpace() error = %v", err)
	}
	resultID, err := ownerClient.AddToSpace(ctx, ops.AddToSpaceInput{SpaceID: spaceID, URL: "https://example.com/hike", Title: "Hike"})
	if err != nil {
		t.Fatalf("AddToSpace() error = %v", err)
	}
	if _, err := ownerClient.UpdateSpace(ctx, ops.UpdateSpaceInput{ID: spaceID, Description: optional.Of("plans")}); err != nil {
		t.Fatalf("UpdateSpace() error = %v", err)
	}

	// The link is off, so the client refuses before calling the server.
	_, err = ownerClient.ShareSpacePublicLink(ctx, ops.ShareSpacePublicLinkInput{SpaceID: spaceID, Emails: []string{"pal@example.com"}})
	if ops.KindOf(err) != ops.KindPrecondition {
		t.Fatalf("expected precondition failure, got %v", err)
	}

	if _, err := anonClient.FetchSpace(ctx, spaceID); ops.KindOf(err) != ops.KindNotFound {
		t.Fatalf("expected anonymous fetch of private space to be not found, got %v", err)
	}

	if ok, err := ownerClient.SetPublicVisibility(ctx, spaceID, true); err != nil || !ok {
		t.Fatalf("SetPublicVisibility(true) = %v, %v", ok, err)
	}
	cached, ok := ownerClient.Cached(spaceID)
	if !ok || !cached.HasPublicACL() {
		t.Fatalf("expected the cached copy to show the public link")
	}

	shared, err := ownerClient.ShareSpacePublicLink(ctx, ops.ShareSpacePublicLinkInput{SpaceID: spaceID, Emails: []string{"pal@example.com"}})
	if err != nil {
		t.Fatalf("ShareSpacePublicLink() error = %v", err)
	}
	if shared.NumShared != 1 || shared.Partial() {
		t.Fatalf("unexpected share result %+v", shared)
	}

	public, err := anonClient.FetchSpace(ctx, spaceID)
	if err != nil {
		t.Fatalf("anonymous FetchSpace() error = %v", err)
	}
	if public.CallerLevel() != acl.LevelPublicView || public.EntityByID(resultID) == nil {
		t.Fatalf("expected a public view with the saved entity, got level %s", public.CallerLevel())
	}

	solo, err := ownerClient.AddSpaceSoloACLs(ctx, ops.AddSpaceSoloACLsInput{
		SpaceID:   spaceID,
		ShareWith: []ops.EmailACL{{Email: "friend@example.com", Level: acl.LevelComment}, {Email: "ghost@example.com", Level: acl.LevelView}},
	})
	if err != nil {
		t.Fatalf("AddSpaceSoloACLs() error = %v", err)
	}
	if solo.ChangedACLCount != 1 || len(solo.NonNeevanEmails) != 1 {
		t.Fatalf("unexpected solo result %+v", solo)
	}

	commentID, err := friendClient.AddSpaceComment(ctx, spaceID, "count me in")
	if err != nil {
		t.Fatalf("friend AddSpaceComment() error = %v", err)
	}
	_, err = friendClient.AddToSpace(ctx, ops.AddToSpaceInput{SpaceID: spaceID, URL: "https://example.com/camp", Title: "Camp"})
	if ops.KindOf(err) != ops.KindPermissionDenied {
		t.Fatalf("expected commenter write to be denied, got %v", err)
	}

	if ok, err := ownerClient.DeleteUserSpaceACL(ctx, ops.DeleteUserSpaceACLInput{SpaceID: spaceID, UserID: friend.UserID}); err != nil || !ok {
		t.Fatalf("DeleteUserSpaceACL() = %v, %v", ok, err)
	}
	if ok, err := ownerClient.DeleteUserSpaceACL(ctx, ops.DeleteUserSpaceACLInput{SpaceID: spaceID, UserID: friend.UserID}); err != nil || !ok {
		t.Fatalf("repeated DeleteUserSpaceACL() = %v, %v", ok, err)
	}

	// With the grant gone the friend falls back to the public link.
	_, err = friendClient.UpdateSpaceComment(ctx, ops.UpdateSpaceCommentInput{SpaceID: spaceID, CommentID: commentID, Text: "still in"})
	if ops.KindOf(err) != ops.KindPermissionDenied {
		t.Fatalf("expected public viewer edit to be denied, got %v", err)
	}

	if ok, err := ownerClient.SetPublicVisibility(ctx, spaceID, false); err != nil || !ok {
		t.Fatalf("SetPublicVisibility(false) = %v, %v", ok, err)
	}
	if _, err := friendClient.FetchSpace(ctx, spaceID); ops.KindOf(err) != ops.KindNotFound {
		t.Fatalf("expected the space to disappear for the friend, got %v", err)
	}

	if ok, err := ownerClient.DeleteSpace(ctx, spaceID); err != nil || !ok {
		t.Fatalf("DeleteSpace() = %v, %v", ok, err)
	}
}

func TestRevokedMemberCommentSurvives(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore(), nil)
	server := NewHTTPServer(svc, "*")
	ann := login(t, svc, "ann@example.com")
	bob := login(t, svc, "bob@example.com")
	annClient := newClient(server, ann.Token)
	bobClient := newClient(server, bob.Token)

	spaceID, err := annClient.CreateSpace(ctx, "Reading List")
	if err != nil {
		t.Fatalf("CreateSpace() error = %v", err)
	}
	if ok, err := annClient.UpdateUserSpaceACL(ctx, ops.UpdateUserSpaceACLInput{SpaceID: spaceID, UserID: bob.UserID, Level: acl.LevelComment}); err != nil || !ok {
		t.Fatalf("UpdateUserSpaceACL() = %v, %v", ok, err)
	}
	commentID, err := bobClient.AddSpaceComment(ctx, spaceID, "nice find")
	if err != nil {
		t.Fatalf("AddSpaceComment() error = %v", err)
	}
	contacts, err := annClient.SuggestContacts(ctx, ops.SuggestContactsInput{Query: "bob"})
	if err != nil || len(contacts.ContactSuggestions) != 1 || contacts.ContactSuggestions[0].Profile.Email != "bob@example.com" {
		t.Fatalf("SuggestContacts() before revoke = %+v, %v", contacts, err)
	}
	if ok, err := annClient.DeleteUserSpaceACL(ctx, ops.DeleteUserSpaceACLInput{SpaceID: spaceID, UserID: bob.UserID}); err != nil || !ok {
		t.Fatalf("DeleteUserSpaceACL() = %v, %v", ok, err)
	}
	if contacts, err = annClient.SuggestContacts(ctx, ops.SuggestContactsInput{Query: "bob"}); err != nil || len(contacts.ContactSuggestions) != 0 {
		t.Fatalf("SuggestContacts() after revoke = %+v, %v", contacts, err)
	}

	got, err := annClient.FetchSpace(ctx, spaceID)
	if err != nil {
		t.Fatalf("FetchSpace() error = %v", err)
	}
	if got.LevelFor(bob.UserID) != acl.LevelNone {
		t.Fatalf("bob should be gone from the ACL, got %+v", got.ACL)
	}
	comment := got.CommentByID(commentID)
	if comment == nil || comment.Text != "nice find" || comment.AuthorUserID != bob.UserID {
		t.Fatalf("bob's comment should survive the revoke, got %+v", got.Comments)
	}
	if _, err := bobClient.FetchSpace(ctx, spaceID); ops.KindOf(err) != ops.KindNotFound {
		t.Fatalf("expected bob to lose access, got %v", err)
	}
}

func TestClientRefusesDefaultSpaceDelete(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newFakeStore(), nil)
	server := NewHTTPServer(svc, "*")
	owner := login(t, svc, "owner@example.com")
	client := newClient(server, owner.Token)

	listed, err := client.ListSpaces(ctx, ops.ListSpacesInput{})
	if err != nil {
		t.Fatalf("ListSpaces() error = %v", err)
	}
	if len(listed.Spaces) != 1 || !listed.Spaces[0].IsDefaultSpace {
		t.Fatalf("expected only the default space, got %+v", listed.Spaces)
	}
	_, err = client.DeleteSpace(ctx, listed.Spaces[0].ID)
	if ops.KindOf(err) != ops.KindPrecondition {
		t.Fatalf("expected precondition failure, got %v", err)
	}
}
