package ops

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"spaces/api/internal/acl"
	"spaces/api/internal/optional"
	"spaces/api/internal/space"
)

const (
	maxNameLength    = 200
	maxCommentLength = 10000
	maxBatchSize     = 500
)

// Input is implemented by every operation input. Validate runs on both sides
// of the wire: the client uses it to avoid a round trip and the server never
// trusts that it ran.
type Input interface {
	Validate() error
}

// variableMapper is implemented by inputs whose encoding is not a plain
// struct, such as those carrying tri-state fields.
type variableMapper interface {
	Variables() map[string]any
}

// VariablesOf returns what goes on the wire for in.
func VariablesOf(in Input) any {
	if in == nil {
		return map[string]any{}
	}
	if m, ok := in.(variableMapper); ok {
		return m.Variables()
	}
	return in
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func validName(value string) error {
	if err := required("name", value); err != nil {
		return err
	}
	if utf8.RuneCountInString(value) > maxNameLength {
		return fmt.Errorf("name must be at most %d characters", maxNameLength)
	}
	return nil
}

func validCommentText(value string) error {
	if err := required("comment", value); err != nil {
		return err
	}
	if utf8.RuneCountInString(value) > maxCommentLength {
		return fmt.Errorf("comment must be at most %d characters", maxCommentLength)
	}
	return nil
}

// validGrantLevel rejects levels that can never be handed to a named user.
func validGrantLevel(level acl.Level) error {
	if !level.Named() || level == acl.LevelOwner {
		return fmt.Errorf("acl must be one of Edit, Comment, View (got %q)", level)
	}
	return nil
}

type ListSpacesInput struct {
	Kind space.ListKind `json:"kind,omitempty"`
}

func (in ListSpacesInput) Validate() error {
	if in.Kind != "" && !in.Kind.Valid() {
		return fmt.Errorf("kind must be one of All, Visited, Invited (got %q)", in.Kind)
	}
	return nil
}

type FetchSpaceInput struct {
	ID string `json:"id"`
}

func (in FetchSpaceInput) Validate() error { return required("id", in.ID) }

type FetchSpaceEntityImagesInput struct {
	SpaceID  string `json:"spaceID,omitempty"`
	ResultID string `json:"resultID,omitempty"`
}

func (in FetchSpaceEntityImagesInput) Validate() error {
	if strings.TrimSpace(in.SpaceID) == "" && strings.TrimSpace(in.ResultID) == "" {
		return errors.New("spaceID or resultID is required")
	}
	return nil
}

type SearchSpaceEntitiesInput struct {
	Query   string `json:"query"`
	SpaceID string `json:"spaceID,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

func (in SearchSpaceEntitiesInput) Validate() error {
	if err := required("query", in.Query); err != nil {
		return err
	}
	if in.Limit < 0 || in.Limit > 100 {
		return errors.New("limit must be between 0 and 100")
	}
	return nil
}

// SuggestContactsInput matches Query against the names and addresses of
// people the caller already shares a space with.
type SuggestContactsInput struct {
	Query string `json:"q"`
	Limit int    `json:"limit,omitempty"`
}

func (in SuggestContactsInput) Validate() error {
	if err := required("q", in.Query); err != nil {
		return err
	}
	if in.Limit < 0 || in.Limit > 50 {
		return errors.New("limit must be between 0 and 50")
	}
	return nil
}

type CreateSpaceInput struct {
	Name string `json:"name"`
}

func (in CreateSpaceInput) Validate() error { return validName(in.Name) }

type DeleteSpaceInput struct {
	ID string `json:"id"`
}

func (in DeleteSpaceInput) Validate() error { return required("id", in.ID) }

// UpdateSpaceInput leaves absent fields untouched and clears null ones.
type UpdateSpaceInput struct {
	ID          string                `json:"id"`
	Name        optional.Field[string] `json:"name,omitzero"`
	Description optional.Field[string] `json:"description,omitzero"`
}

func (in UpdateSpaceInput) Validate() error {
	if err := required("id", in.ID); err != nil {
		return err
	}
	if !in.Name.Provided() && !in.Description.Provided() {
		return errors.New("at least one of name, description is required")
	}
	if in.Name.IsNull() {
		return errors.New("name cannot be cleared")
	}
	if name, ok := in.Name.Get(); ok {
		return validName(name)
	}
	return nil
}

func (in UpdateSpaceInput) Variables() map[string]any {
	vars := map[string]any{"id": in.ID}
	optional.Put(vars, "name", in.Name)
	optional.Put(vars, "description", in.Description)
	return vars
}

type SnapshotInput struct {
	SnapshotBase64      string             `json:"snapshotBase64,omitempty"`
	SnapshotContentType string             `json:"snapshotContentType,omitempty"`
	HTMLSnapshot        string             `json:"htmlSnapshot,omitempty"`
	SnapshotBrowser     string             `json:"snapshotBrowser,omitempty"`
	SnapshotKind        space.SnapshotKind `json:"snapshotKind,omitempty"`
}

// HasContent reports whether the client sent snapshot bytes itself.
func (s *SnapshotInput) HasContent() bool {
	return s != nil && (s.SnapshotBase64 != "" || s.HTMLSnapshot != "")
}

type AddToSpaceInput struct {
	SpaceID             string         `json:"spaceID"`
	URL                 string         `json:"url"`
	Title               string         `json:"title"`
	Comment             string         `json:"comment,omitempty"`
	Data                string         `json:"data,omitempty"`
	MediaType           string         `json:"mediaType,omitempty"`
	ContentType         string         `json:"contentType,omitempty"`
	IsBase64            bool           `json:"isBase64,omitempty"`
	Snapshot            *SnapshotInput `json:"snapshot,omitempty"`
	SnapshotExpected    bool           `json:"snapshotExpected,omitempty"`
	SnapshotClientError string         `json:"snapshotClientError,omitempty"`
}

func (in AddToSpaceInput) Validate() error {
	if err := required("spaceID", in.SpaceID); err != nil {
		return err
	}
	if err := required("url", in.URL); err != nil {
		return err
	}
	u, err := url.Parse(strings.TrimSpace(in.URL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("url must be an absolute http(s) URL (got %q)", in.URL)
	}
	if in.Comment != "" && utf8.RuneCountInString(in.Comment) > maxCommentLength {
		return fmt.Errorf("comment must be at most %d characters", maxCommentLength)
	}
	return nil
}

type BatchDeleteSpaceResultInput struct {
	SpaceID   string   `json:"spaceID"`
	ResultIDs []string `json:"resultIDs"`
}

func (in BatchDeleteSpaceResultInput) Validate() error {
	if err := required("spaceID", in.SpaceID); err != nil {
		return err
	}
	if len(in.ResultIDs) == 0 {
		return errors.New("resultIDs must not be empty")
	}
	if len(in.ResultIDs) > maxBatchSize {
		return fmt.Errorf("at most %d resultIDs per call", maxBatchSize)
	}
	for _, id := range in.ResultIDs {
		if strings.TrimSpace(id) == "" {
			return errors.New("resultIDs must not contain empty ids")
		}
	}
	return nil
}

// UpdateSpaceResultInput overrides entity display fields. Absent fields are
// left alone; null restores the saved value.
type UpdateSpaceResultInput struct {
	SpaceID   string                 `json:"spaceID"`
	ResultID  string                 `json:"resultID"`
	Title     optional.Field[string] `json:"title,omitzero"`
	Snippet   optional.Field[string] `json:"snippet,omitzero"`
	Thumbnail optional.Field[string] `json:"thumbnail,omitzero"`
}

func (in UpdateSpaceResultInput) Validate() error {
	if err := required("spaceID", in.SpaceID); err != nil {
		return err
	}
	if err := required("resultID", in.ResultID); err != nil {
		return err
	}
	if !in.Title.Provided() && !in.Snippet.Provided() && !in.Thumbnail.Provided() {
		return errors.New("at least one of title, snippet, thumbnail is required")
	}
	return nil
}

func (in UpdateSpaceResultInput) Variables() map[string]any {
	vars := map[string]any{"spaceID": in.SpaceID, "resultID": in.ResultID}
	optional.Put(vars, "title", in.Title)
	optional.Put(vars, "snippet", in.Snippet)
	optional.Put(vars, "thumbnail", in.Thumbnail)
	return vars
}

type AddSpaceCommentInput struct {
	SpaceID string `json:"spaceID"`
	Text    string `json:"comment"`
}

func (in AddSpaceCommentInput) Validate() error {
	if err := required("spaceID", in.SpaceID); err != nil {
		return err
	}
	return validCommentText(in.Text)
}

type UpdateSpaceCommentInput struct {
	SpaceID   string `json:"spaceID"`
	CommentID string `json:"commentID"`
	Text      string `json:"comment"`
}

func (in UpdateSpaceCommentInput) Validate() error {
	if err := required("spaceID", in.SpaceID); err != nil {
		return err
	}
	if err := required("commentID", in.CommentID); err != nil {
		return err
	}
	return validCommentText(in.Text)
}

type DeleteSpaceCommentInput struct {
	SpaceID   string `json:"spaceID"`
	CommentID string `json:"commentID"`
}

func (in DeleteSpaceCommentInput) Validate() error {
	if err := required("spaceID", in.SpaceID); err != nil {
		return err
	}
	return required("commentID", in.CommentID)
}

type UpdateUserSpaceACLInput struct {
	SpaceID string    `json:"id"`
	UserID  string    `json:"userID"`
	Level   acl.Level `json:"acl"`
}

func (in UpdateUserSpaceACLInput) Validate() error {
	if err := required("id", in.SpaceID); err != nil {
		return err
	}
	if err := required("userID", in.UserID); err != nil {
		return err
	}
	return validGrantLevel(in.Level)
}

type DeleteUserSpaceACLInput struct {
	SpaceID string `json:"id"`
	UserID  string `json:"userID"`
}

func (in DeleteUserSpaceACLInput) Validate() error {
	if err := required("id", in.SpaceID); err != nil {
		return err
	}
	return required("userID", in.UserID)
}

type EmailACL struct {
	Email string    `json:"email"`
	Level acl.Level `json:"acl"`
}

type AddSpaceSoloACLsInput struct {
	SpaceID   string     `json:"id"`
	ShareWith []EmailACL `json:"shareWith"`
	Note      string     `json:"note,omitempty"`
}

func (in AddSpaceSoloACLsInput) Validate() error {
	if err := required("id", in.SpaceID); err != nil {
		return err
	}
	if len(in.ShareWith) == 0 {
		return errors.New("shareWith must not be empty")
	}
	if len(in.ShareWith) > maxBatchSize {
		return fmt.Errorf("at most %d invitations per call", maxBatchSize)
	}
	for _, entry := range in.ShareWith {
		if err := required("email", entry.Email); err != nil {
			return err
		}
		if err := validGrantLevel(entry.Level); err != nil {
			return err
		}
	}
	return nil
}

type AddSpacePublicACLInput struct {
	SpaceID string `json:"id"`
}

func (in AddSpacePublicACLInput) Validate() error { return required("id", in.SpaceID) }

type DeleteSpacePublicACLInput struct {
	SpaceID string `json:"id"`
}

func (in DeleteSpacePublicACLInput) Validate() error { return required("id", in.SpaceID) }

type ShareSpacePublicLinkInput struct {
	SpaceID string   `json:"id"`
	Emails  []string `json:"emails"`
	Note    string   `json:"note,omitempty"`
}

func (in ShareSpacePublicLinkInput) Validate() error {
	if err := required("id", in.SpaceID); err != nil {
		return err
	}
	if len(in.Emails) == 0 {
		return errors.New("emails must not be empty")
	}
	if len(in.Emails) > maxBatchSize {
		return fmt.Errorf("at most %d emails per call", maxBatchSize)
	}
	return nil
}
