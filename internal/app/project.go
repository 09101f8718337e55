package app

import (
	"context"
	"fmt"

	"spaces/api/internal/acl"
	"spaces/api/internal/space"
	"spaces/api/internal/store"
)

func profileOf(name, email, picture string) space.Profile {
	return space.Profile{DisplayName: name, Email: email, PictureURL: picture}
}

// aclEntries lists named grants owner first, then the public entry when the
// space has an active public link.
func aclEntries(sp store.Space, grants []store.Grant) []space.ACL {
	entries := make([]space.ACL, 0, len(grants)+1)
	for _, g := range grants {
		entries = append(entries, space.ACL{
			UserID:  g.UserID,
			Profile: profileOf(g.DisplayName, g.Email, g.PictureURL),
			Level:   acl.Parse(g.Level),
		})
	}
	if sp.PublicACL {
		entries = append(entries, space.ACL{UserID: space.PublicPrincipal, Level: acl.LevelPublicView})
	}
	return entries
}

func metadataOf(sp store.Space, grants []store.Grant, callerID string, commentCount int) space.Metadata {
	meta := space.Metadata{
		ID:               sp.ID,
		Name:             sp.Name,
		Description:      sp.Description,
		CreatedAt:        sp.CreatedAt,
		LastModifiedAt:   sp.UpdatedAt,
		ACL:              aclEntries(sp, grants),
		PublicACLHint:    sp.PublicACL,
		Thumbnail:        sp.Thumbnail,
		ResultCount:      sp.ResultCount,
		IsDefaultSpace:   sp.IsDefault,
		DefaultSpaceType: space.DefaultType(sp.DefaultType),
		CommentCount:     commentCount,
	}
	if sp.ThumbnailWidth > 0 && sp.ThumbnailHeight > 0 {
		meta.ThumbnailSize = &space.Dimensions{Width: sp.ThumbnailWidth, Height: sp.ThumbnailHeight}
	}
	if callerID != "" {
		for _, g := range grants {
			if g.UserID == callerID {
				meta.UserACL = &space.UserACL{UserID: g.UserID, Level: acl.Parse(g.Level)}
				break
			}
		}
	}
	return meta
}

func commentOf(c store.Comment) space.Comment {
	return space.Comment{
		ID:             c.ID,
		AuthorUserID:   c.AuthorID,
		Profile:        profileOf(c.AuthorName, c.AuthorEmail, c.AuthorPicture),
		CreatedAt:      c.CreatedAt,
		LastModifiedAt: c.UpdatedAt,
		Text:           c.Body,
	}
}

func entityOf(e store.Entity) space.Entity {
	out := space.Entity{
		ResultID:        e.ID,
		DocID:           e.DocID,
		URL:             e.URL,
		Title:           nonEmpty(overrideOr(e.DisplayTitle, e.Title)),
		Snippet:         nonEmpty(overrideOr(e.DisplaySnippet, e.Snippet)),
		ResultType:      e.ResultType,
		ContentType:     nonEmpty(e.ContentType),
		ContentURL:      nonEmpty(e.ContentURL),
		Thumbnail:       nonEmpty(overrideOr(e.DisplayThumbnail, e.Thumbnail)),
		CreatedBy:       profileOf(e.CreatorName, e.CreatorEmail, e.CreatorPicture),
		SnapshotPending: e.SnapshotPending,
	}
	if e.ContentWidth > 0 && e.ContentHeight > 0 {
		out.ContentDimensions = &space.Dimensions{Width: e.ContentWidth, Height: e.ContentHeight}
	}
	return out
}

func overrideOr(override *string, saved string) string {
	if override != nil {
		return *override
	}
	return saved
}

func nonEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func followerCount(grants []store.Grant) int {
	n := 0
	for _, g := range grants {
		if g.Level != store.LevelOwner {
			n++
		}
	}
	return n
}

// aggregate loads everything FetchSpace returns for sp. A space without its
// own thumbnail shows the newest entity thumbnail.
func (s *Service) aggregate(ctx context.Context, sp store.Space, callerID string) (space.Space, error) {
	grants, err := s.store.ListGrants(ctx, sp.ID)
	if err != nil {
		return space.Space{}, fmt.Errorf("list grants: %w", err)
	}
	comments, err := s.store.ListComments(ctx, sp.ID)
	if err != nil {
		return space.Space{}, fmt.Errorf("list comments: %w", err)
	}
	entities, err := s.store.ListEntities(ctx, sp.ID)
	if err != nil {
		return space.Space{}, fmt.Errorf("list entities: %w", err)
	}

	out := space.Space{
		Metadata: metadataOf(sp, grants, callerID, len(comments)),
		Comments: make([]space.Comment, 0, len(comments)),
		Entities: make([]space.Entity, 0, len(entities)),
		Stats:    space.Stats{Followers: followerCount(grants), Views: sp.Views},
	}
	for _, c := range comments {
		out.Comments = append(out.Comments, commentOf(c))
	}
	for _, e := range entities {
		out.Entities = append(out.Entities, entityOf(e))
	}
	if out.Thumbnail == "" {
		for _, e := range out.Entities {
			if e.Thumbnail != nil {
				out.Thumbnail = *e.Thumbnail
				out.ThumbnailSize = e.ContentDimensions
				break
			}
		}
	}
	return out, nil
}
