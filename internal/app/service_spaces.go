package app

import (
	"context"
	"fmt"
	"strings"

	"spaces/api/internal/acl"
	"spaces/api/internal/ops"
	"spaces/api/internal/optional"
	"spaces/api/internal/search"
	"spaces/api/internal/space"
	"spaces/api/internal/store"
	"spaces/api/internal/util"
)

func (s *Service) ListSpaces(ctx context.Context, session Session, in ops.ListSpacesInput) (ops.ListSpacesResult, error) {
	if err := requireUser(session); err != nil {
		return ops.ListSpacesResult{}, err
	}
	if _, err := s.EnsureDefaultSpace(ctx, session.UserID); err != nil {
		return ops.ListSpacesResult{}, err
	}

	kind := in.Kind
	if kind == "" {
		kind = space.ListAll
	}
	items, err := s.store.ListSpacesForUser(ctx, session.UserID, string(kind))
	if err != nil {
		return ops.ListSpacesResult{}, fmt.Errorf("list spaces: %w", err)
	}

	result := ops.ListSpacesResult{
		RequestID: requestIDFrom(ctx),
		Spaces:    make([]space.Metadata, 0, len(items)),
	}
	for _, sp := range items {
		grants, err := s.store.ListGrants(ctx, sp.ID)
		if err != nil {
			return ops.ListSpacesResult{}, fmt.Errorf("list grants: %w", err)
		}
		comments, err := s.store.ListComments(ctx, sp.ID)
		if err != nil {
			return ops.ListSpacesResult{}, fmt.Errorf("list comments: %w", err)
		}
		result.Spaces = append(result.Spaces, metadataOf(sp, grants, session.UserID, len(comments)))
	}
	return result, nil
}

// FetchSpace returns the aggregate and counts the view. Signed-in callers
// without a named grant are remembered for the Visited list.
func (s *Service) FetchSpace(ctx context.Context, session Session, in ops.FetchSpaceInput) (ops.FetchSpaceResult, error) {
	a, err := s.authorize(ctx, session, in.ID, acl.ActionRead)
	if err != nil {
		return ops.FetchSpaceResult{}, err
	}
	if err := s.store.RecordVisit(ctx, in.ID, session.UserID); err != nil {
		return ops.FetchSpaceResult{}, fmt.Errorf("record visit: %w", err)
	}
	a.space.Views++

	aggregate, err := s.aggregate(ctx, a.space, session.UserID)
	if err != nil {
		return ops.FetchSpaceResult{}, err
	}
	return ops.FetchSpaceResult{RequestID: requestIDFrom(ctx), Spaces: []space.Space{aggregate}}, nil
}

func (s *Service) FetchSpaceEntityImages(ctx context.Context, session Session, in ops.FetchSpaceEntityImagesInput) (ops.EntityImagesResult, error) {
	spaceID := in.SpaceID
	var entities []store.Entity
	if in.ResultID != "" {
		entity, err := s.store.GetEntity(ctx, in.ResultID)
		if err != nil {
			return ops.EntityImagesResult{}, notFoundIfMissing(err, "result")
		}
		if spaceID != "" && entity.SpaceID != spaceID {
			return ops.EntityImagesResult{}, notFound("result")
		}
		spaceID = entity.SpaceID
		entities = []store.Entity{entity}
	}
	if _, err := s.authorize(ctx, session, spaceID, acl.ActionRead); err != nil {
		return ops.EntityImagesResult{}, err
	}
	if entities == nil {
		listed, err := s.store.ListEntities(ctx, spaceID)
		if err != nil {
			return ops.EntityImagesResult{}, fmt.Errorf("list entities: %w", err)
		}
		entities = listed
	}

	result := ops.EntityImagesResult{Images: []space.Image{}}
	for _, e := range entities {
		thumbnail := overrideOr(e.DisplayThumbnail, e.Thumbnail)
		switch {
		case strings.HasPrefix(e.ContentType, "image/") && e.ContentURL != "":
			result.Images = append(result.Images, space.Image{ImageURL: e.ContentURL, Thumbnail: thumbnail})
		case thumbnail != "":
			result.Images = append(result.Images, space.Image{ImageURL: thumbnail, Thumbnail: thumbnail})
		}
	}
	return result, nil
}

func (s *Service) SearchSpaceEntities(ctx context.Context, session Session, in ops.SearchSpaceEntitiesInput) (ops.SearchResult, error) {
	if err := requireUser(session); err != nil {
		return ops.SearchResult{}, err
	}

	var spaceIDs []string
	if in.SpaceID != "" {
		if _, err := s.authorize(ctx, session, in.SpaceID, acl.ActionRead); err != nil {
			return ops.SearchResult{}, err
		}
		spaceIDs = []string{in.SpaceID}
	} else {
		items, err := s.store.ListSpacesForUser(ctx, session.UserID, store.ListAll)
		if err != nil {
			return ops.SearchResult{}, fmt.Errorf("list spaces: %w", err)
		}
		for _, sp := range items {
			spaceIDs = append(spaceIDs, sp.ID)
		}
	}

	results, err := s.search.Search(ctx, search.Query{Text: in.Query, SpaceIDs: spaceIDs, Limit: in.Limit})
	if err != nil {
		return ops.SearchResult{}, fmt.Errorf("search: %w", err)
	}
	out := ops.SearchResult{Hits: make([]ops.SearchHit, 0, len(results))}
	for _, r := range results {
		out.Hits = append(out.Hits, ops.SearchHit{
			SpaceID:  r.SpaceID,
			ResultID: r.ResultID,
			URL:      r.URL,
			Title:    r.Title,
			Snippet:  r.Snippet,
		})
	}
	return out, nil
}

func (s *Service) CreateSpace(ctx context.Context, session Session, in ops.CreateSpaceInput) (string, error) {
	if err := requireUser(session); err != nil {
		return "", err
	}
	item := store.Space{
		ID:          util.NewID("sp"),
		OwnerID:     session.UserID,
		Name:        strings.TrimSpace(in.Name),
		DefaultType: string(space.DefaultUnspecified),
	}
	if err := s.store.InsertSpace(ctx, item); err != nil {
		return "", fmt.Errorf("insert space: %w", err)
	}
	return item.ID, nil
}

func (s *Service) DeleteSpace(ctx context.Context, session Session, in ops.DeleteSpaceInput) (bool, error) {
	a, err := s.authorize(ctx, session, in.ID, acl.ActionDelete)
	if err != nil {
		return false, err
	}
	if a.space.IsDefault {
		return false, preconditionFailed("the default space cannot be deleted")
	}

	entities, err := s.store.ListEntities(ctx, in.ID)
	if err != nil {
		return false, fmt.Errorf("list entities: %w", err)
	}
	deleted, err := s.store.DeleteSpace(ctx, in.ID)
	if err != nil {
		return false, fmt.Errorf("delete space: %w", err)
	}
	if !deleted {
		return false, notFound("space")
	}

	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}
	s.search.DeleteEntities(ids)
	return true, nil
}

func (s *Service) UpdateSpace(ctx context.Context, session Session, in ops.UpdateSpaceInput) (bool, error) {
	if _, err := s.authorize(ctx, session, in.ID, acl.ActionWrite); err != nil {
		return false, err
	}
	patch := store.SpacePatch{Name: in.Name, Description: in.Description}
	if name, ok := in.Name.Get(); ok {
		patch.Name = optional.Of(strings.TrimSpace(name))
	}
	updated, err := s.store.UpdateSpace(ctx, in.ID, patch)
	if err != nil {
		return false, fmt.Errorf("update space: %w", err)
	}
	if !updated {
		return false, notFound("space")
	}
	return true, nil
}
