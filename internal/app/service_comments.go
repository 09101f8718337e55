package app

import (
	"context"
	"fmt"

	"spaces/api/internal/acl"
	"spaces/api/internal/ops"
	"spaces/api/internal/store"
	"spaces/api/internal/util"
)

func (s *Service) AddSpaceComment(ctx context.Context, session Session, in ops.AddSpaceCommentInput) (string, error) {
	if err := requireUser(session); err != nil {
		return "", err
	}
	if _, err := s.authorize(ctx, session, in.SpaceID, acl.ActionComment); err != nil {
		return "", err
	}
	comment := store.Comment{
		ID:       util.NewID("cmt"),
		SpaceID:  in.SpaceID,
		AuthorID: session.UserID,
		Body:     in.Text,
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return "", fmt.Errorf("insert comment: %w", err)
	}
	return comment.ID, nil
}

// editableComment loads a comment the caller may change: authors with
// comment access edit their own, editors edit anyone's.
func (s *Service) editableComment(ctx context.Context, session Session, spaceID, commentID string) (store.Comment, error) {
	if err := requireUser(session); err != nil {
		return store.Comment{}, err
	}
	a, err := s.authorize(ctx, session, spaceID, acl.ActionRead)
	if err != nil {
		return store.Comment{}, err
	}
	comment, err := s.store.GetComment(ctx, spaceID, commentID)
	if err != nil {
		return store.Comment{}, notFoundIfMissing(err, "comment")
	}
	if comment.AuthorID == session.UserID && acl.Can(a.level, acl.ActionComment) {
		return comment, nil
	}
	if acl.Can(a.level, acl.ActionWrite) {
		return comment, nil
	}
	return store.Comment{}, forbidden("only the author or an editor can change this comment")
}

func (s *Service) UpdateSpaceComment(ctx context.Context, session Session, in ops.UpdateSpaceCommentInput) (bool, error) {
	if _, err := s.editableComment(ctx, session, in.SpaceID, in.CommentID); err != nil {
		return false, err
	}
	updated, err := s.store.UpdateComment(ctx, in.SpaceID, in.CommentID, in.Text)
	if err != nil {
		return false, fmt.Errorf("update comment: %w", err)
	}
	if !updated {
		return false, notFound("comment")
	}
	return true, nil
}

func (s *Service) DeleteSpaceComment(ctx context.Context, session Session, in ops.DeleteSpaceCommentInput) (bool, error) {
	if _, err := s.editableComment(ctx, session, in.SpaceID, in.CommentID); err != nil {
		return false, err
	}
	deleted, err := s.store.DeleteComment(ctx, in.SpaceID, in.CommentID)
	if err != nil {
		return false, fmt.Errorf("delete comment: %w", err)
	}
	if !deleted {
		return false, notFound("comment")
	}
	return true, nil
}
