package app

import (
	"context"
	"errors"
	"fmt"

	"spaces/api/internal/acl"
	"spaces/api/internal/store"
)

// access is what a caller holds on one space.
type access struct {
	space store.Space
	// named is the caller's own grant, LevelNone without one.
	named acl.Level
	level acl.Level
}

func (a access) isOwner(userID string) bool {
	return a.space.OwnerID == userID
}

func (s *Service) resolve(ctx context.Context, session Session, spaceID string) (access, error) {
	sp, err := s.store.GetSpace(ctx, spaceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return access{}, notFound("space")
		}
		return access{}, fmt.Errorf("get space: %w", err)
	}

	named := acl.LevelNone
	if !session.Anonymous() {
		grant, err := s.store.GetGrant(ctx, spaceID, session.UserID)
		switch {
		case err == nil:
			named = acl.Parse(grant.Level)
		case !errors.Is(err, store.ErrNotFound):
			return access{}, fmt.Errorf("get grant: %w", err)
		}
	}
	return access{space: sp, named: named, level: acl.Effective(named, sp.PublicACL)}, nil
}

// authorize resolves the caller and checks action. A caller with no access
// at all gets NOT_FOUND so private spaces are not disclosed.
func (s *Service) authorize(ctx context.Context, session Session, spaceID string, action acl.Action) (access, error) {
	a, err := s.resolve(ctx, session, spaceID)
	if err != nil {
		return access{}, err
	}
	if a.level == acl.LevelNone || !acl.Can(a.level, acl.ActionRead) {
		return access{}, notFound("space")
	}
	if !acl.Can(a.level, action) {
		return access{}, forbidden(fmt.Sprintf("%s access cannot %s this space", a.level, action))
	}
	return a, nil
}

func requireUser(session Session) error {
	if session.Anonymous() {
		return unauthorized()
	}
	return nil
}

func notFoundIfMissing(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound(what)
	}
	return err
}
