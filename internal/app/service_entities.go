package app

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"unicode/utf8"

	"spaces/api/internal/acl"
	"spaces/api/internal/ops"
	"spaces/api/internal/search"
	"spaces/api/internal/snapshot"
	"spaces/api/internal/space"
	"spaces/api/internal/store"
	"spaces/api/internal/util"
)

const maxInlineSnippet = 1000

// docIDFor identifies the saved document independently of the space it was
// saved to.
func docIDFor(rawURL string) string {
	sum := sha1.Sum([]byte(strings.TrimSpace(rawURL)))
	return hex.EncodeToString(sum[:])
}

// AddToSpace saves an item. Inline content and client snapshots are stored
// before the row is written; server-side capture runs after it, out of band.
func (s *Service) AddToSpace(ctx context.Context, session Session, in ops.AddToSpaceInput) (string, error) {
	if _, err := s.authorize(ctx, session, in.SpaceID, acl.ActionWrite); err != nil {
		return "", err
	}

	entity := store.Entity{
		ID:            util.NewID("res"),
		DocID:         docIDFor(in.URL),
		SpaceID:       in.SpaceID,
		URL:           strings.TrimSpace(in.URL),
		Title:         strings.TrimSpace(in.Title),
		ResultType:    "web",
		Note:          in.Comment,
		SnapshotKind:  string(space.SnapshotUnspecified),
		SnapshotError: in.SnapshotClientError,
		CreatedBy:     session.UserID,
	}

	if err := s.attachContent(ctx, &entity, in); err != nil {
		return "", err
	}

	var job *snapshot.Job
	if snap := in.Snapshot; snap != nil {
		if snap.SnapshotKind != "" {
			entity.SnapshotKind = string(snap.SnapshotKind)
		}
		switch {
		case snap.SnapshotBase64 != "":
			if err := s.attachClientSnapshot(ctx, &entity, snap); err != nil {
				return "", err
			}
		case snap.HTMLSnapshot != "" && s.captureEnabled():
			job = &snapshot.Job{ResultID: entity.ID, SpaceID: entity.SpaceID, URL: entity.URL, HTML: snap.HTMLSnapshot}
		case snap.HTMLSnapshot != "":
			dropSnapshot(&entity, errCaptureDisabled)
		}
	}
	if job == nil && in.SnapshotExpected && !in.Snapshot.HasContent() && s.captureEnabled() {
		job = &snapshot.Job{ResultID: entity.ID, SpaceID: entity.SpaceID, URL: entity.URL}
	}
	entity.SnapshotPending = job != nil

	if err := s.store.InsertEntity(ctx, entity); err != nil {
		return "", notFoundIfMissing(err, "space")
	}
	s.search.IndexEntity(search.RecordOf(entity))

	if job != nil {
		if err := s.snapshots.Schedule(*job); err != nil {
			log.Printf("snapshot: schedule %s: %v", entity.ID, err)
			if failErr := s.store.FailSnapshot(ctx, entity.ID, err.Error()); failErr != nil {
				log.Printf("snapshot: mark %s failed: %v", entity.ID, failErr)
			}
		}
	}
	return entity.ID, nil
}

func (s *Service) captureEnabled() bool {
	return s.snapshots != nil && s.snapshots.Enabled()
}

// attachContent handles items saved with their own payload, such as an image
// or a text selection.
func (s *Service) attachContent(ctx context.Context, entity *store.Entity, in ops.AddToSpaceInput) error {
	if in.Data == "" {
		return nil
	}
	contentType := firstNonEmpty(in.ContentType, in.MediaType)
	if !in.IsBase64 {
		entity.ResultType = "text"
		entity.ContentType = firstNonEmpty(contentType, "text/plain")
		entity.Snippet = truncateRunes(in.Data, maxInlineSnippet)
		return nil
	}

	if s.snapshots == nil {
		return validationError("binary content is not accepted by this server")
	}
	data, dataType, err := snapshot.DecodeBase64(in.Data)
	if err != nil {
		return validationError(err.Error())
	}
	att, err := s.snapshots.Store(ctx, entity.ID, firstNonEmpty(contentType, dataType), data)
	if err != nil {
		return fmt.Errorf("store content: %w", err)
	}
	if strings.HasPrefix(att.ContentType, "image/") {
		entity.ResultType = "image"
	}
	applyAttachment(entity, att)
	return nil
}

const (
	errCaptureDisabled = "snapshot capture is disabled"
	errStorageDisabled = "snapshot storage is not configured"
)

// dropSnapshot records why a snapshot the client sent was not kept. A client
// side error already on the entity takes precedence.
func dropSnapshot(entity *store.Entity, reason string) {
	log.Printf("snapshot: dropped snapshot for %s: %s", entity.ID, reason)
	if entity.SnapshotError == "" {
		entity.SnapshotError = reason
	}
}

func (s *Service) attachClientSnapshot(ctx context.Context, entity *store.Entity, snap *ops.SnapshotInput) error {
	if s.snapshots == nil {
		dropSnapshot(entity, errStorageDisabled)
		return nil
	}
	data, dataType, err := snapshot.DecodeBase64(snap.SnapshotBase64)
	if err != nil {
		return validationError(err.Error())
	}
	att, err := s.snapshots.Store(ctx, entity.ID, firstNonEmpty(snap.SnapshotContentType, dataType), data)
	if err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	if entity.ContentURL != "" {
		// Saved content wins; the snapshot only supplies the thumbnail.
		entity.Thumbnail = att.Thumbnail
		return nil
	}
	applyAttachment(entity, att)
	return nil
}

func applyAttachment(entity *store.Entity, att store.SnapshotAttachment) {
	entity.ContentURL = att.ContentURL
	entity.ContentType = att.ContentType
	entity.Thumbnail = att.Thumbnail
	entity.ContentWidth = att.Width
	entity.ContentHeight = att.Height
}

// BatchDeleteSpaceResult removes every listed result or none of them.
func (s *Service) BatchDeleteSpaceResult(ctx context.Context, session Session, in ops.BatchDeleteSpaceResultInput) (bool, error) {
	if _, err := s.authorize(ctx, session, in.SpaceID, acl.ActionWrite); err != nil {
		return false, err
	}
	if _, err := s.store.DeleteEntities(ctx, in.SpaceID, in.ResultIDs); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, domainError(http.StatusNotFound, ops.CodeNotFound, "one or more results are not in this space", map[string]any{"resultIDs": in.ResultIDs})
		}
		return false, fmt.Errorf("delete entities: %w", err)
	}
	s.search.DeleteEntities(in.ResultIDs)
	return true, nil
}

func (s *Service) UpdateSpaceResult(ctx context.Context, session Session, in ops.UpdateSpaceResultInput) (bool, error) {
	if _, err := s.authorize(ctx, session, in.SpaceID, acl.ActionWrite); err != nil {
		return false, err
	}
	updated, err := s.store.UpdateEntityDisplay(ctx, in.SpaceID, in.ResultID, store.DisplayPatch{
		Title:     in.Title,
		Snippet:   in.Snippet,
		Thumbnail: in.Thumbnail,
	})
	if err != nil {
		return false, fmt.Errorf("update entity: %w", err)
	}
	if !updated {
		return false, notFound("result")
	}
	if entity, err := s.store.GetEntity(ctx, in.ResultID); err == nil {
		s.search.IndexEntity(search.RecordOf(entity))
	}
	return true, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	return string([]rune(value)[:limit])
}
