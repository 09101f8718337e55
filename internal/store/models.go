package store

import (
	"database/sql"
	"errors"
	"time"

	"spaces/api/internal/optional"
)

// ErrNotFound is returned by every lookup that matches no row, in both store
// implementations.
var ErrNotFound = sql.ErrNoRows

// ErrConflict is returned when an insert collides with a uniqueness rule,
// such as a second default space for the same owner.
var ErrConflict = errors.New("store: conflict")

// Level names stored in space_acls.level.
const (
	LevelOwner   = "Owner"
	LevelEdit    = "Edit"
	LevelComment = "Comment"
	LevelView    = "View"
)

// List kinds accepted by ListSpacesForUser.
const (
	ListAll     = "All"
	ListInvited = "Invited"
	ListVisited = "Visited"
)

type User struct {
	ID          string
	DisplayName string
	Email       string
	PictureURL  string
	CreatedAt   time.Time
}

type Space struct {
	ID              string
	OwnerID         string
	Name            string
	Description     string
	PublicACL       bool
	Thumbnail       string
	ThumbnailWidth  int
	ThumbnailHeight int
	ResultCount     int
	IsDefault       bool
	DefaultType     string
	Views           int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Grant is a named user's access to a space, joined with the user's profile.
type Grant struct {
	SpaceID     string
	UserID      string
	Level       string
	GrantedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DisplayName string
	Email       string
	PictureURL  string
}

type Comment struct {
	ID            string
	SpaceID       string
	AuthorID      string
	Body          string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	AuthorName    string
	AuthorEmail   string
	AuthorPicture string
}

// Entity is a saved item. The Display* fields are cosmetic overrides; nil
// means the saved value is shown.
type Entity struct {
	ID               string
	DocID            string
	SpaceID          string
	URL              string
	Title            string
	Snippet          string
	ResultType       string
	ContentType      string
	ContentURL       string
	ContentWidth     int
	ContentHeight    int
	Thumbnail        string
	DisplayTitle     *string
	DisplaySnippet   *string
	DisplayThumbnail *string
	Note             string
	SnapshotPending  bool
	SnapshotKind     string
	SnapshotError    string
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CreatorName      string
	CreatorEmail     string
	CreatorPicture   string
}

type SpacePatch struct {
	Name        optional.Field[string]
	Description optional.Field[string]
}

type DisplayPatch struct {
	Title     optional.Field[string]
	Snippet   optional.Field[string]
	Thumbnail optional.Field[string]
}

type SnapshotAttachment struct {
	ContentURL  string
	ContentType string
	Thumbnail   string
	Width       int
	Height      int
}
