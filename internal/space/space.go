// Package space is the client-side model of a Space: its metadata, access
// list, comments and saved entities, plus the derived views (share state,
// delete eligibility) computed from them.
package space

import (
	"slices"
	"time"

	"spaces/api/internal/acl"
)

// PublicPrincipal is the user ID carried by the ACL entry that represents
// an active public link.
const PublicPrincipal = "public"

type ListKind string

const (
	ListAll     ListKind = "All"
	ListVisited ListKind = "Visited"
	ListInvited ListKind = "Invited"
)

func (k ListKind) Valid() bool {
	return k == ListAll || k == ListVisited || k == ListInvited
}

type DefaultType string

const (
	DefaultUnspecified   DefaultType = "Unspecified"
	DefaultSavedForLater DefaultType = "SavedForLater"
)

type SnapshotKind string

const (
	SnapshotUnspecified SnapshotKind = "Unspecified"
	SnapshotHTML2Canvas SnapshotKind = "Html2Canvas"
	SnapshotTabCapture  SnapshotKind = "TabCapture"
)

type Profile struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	PictureURL  string `json:"pictureURL,omitempty"`
}

type ACL struct {
	UserID  string    `json:"userID"`
	Profile Profile   `json:"profile"`
	Level   acl.Level `json:"acl"`
}

type UserACL struct {
	UserID string    `json:"userID"`
	Level  acl.Level `json:"acl"`
}

type Dimensions struct {
	Height int `json:"height"`
	Width  int `json:"width"`
}

type Comment struct {
	ID             string    `json:"id"`
	AuthorUserID   string    `json:"userid"`
	Profile        Profile   `json:"profile"`
	CreatedAt      time.Time `json:"createdTs"`
	LastModifiedAt time.Time `json:"lastModifiedTs"`
	Text           string    `json:"comment"`
}

type Entity struct {
	ResultID          string      `json:"resultID"`
	DocID             string      `json:"docID"`
	URL               string      `json:"url"`
	Title             *string     `json:"title,omitempty"`
	Snippet           *string     `json:"snippet,omitempty"`
	ResultType        string      `json:"resultType,omitempty"`
	ContentType       *string     `json:"contentType,omitempty"`
	ContentURL        *string     `json:"contentURL,omitempty"`
	ContentDimensions *Dimensions `json:"contentDimensions,omitempty"`
	Thumbnail         *string     `json:"thumbnail,omitempty"`
	CreatedBy         Profile     `json:"createdBy"`
	SnapshotPending   bool        `json:"snapshotPending,omitempty"`
}

type Image struct {
	ImageURL  string `json:"imageURL"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

type Stats struct {
	Followers int `json:"followers"`
	Views     int `json:"views"`
}

// Metadata is what ListSpaces returns for each space.
type Metadata struct {
	ID               string      `json:"id"`
	Name             string      `json:"name,omitempty"`
	Description      string      `json:"description,omitempty"`
	CreatedAt        time.Time   `json:"createdTs"`
	LastModifiedAt   time.Time   `json:"lastModifiedTs"`
	ACL              []ACL       `json:"acl"`
	UserACL          *UserACL    `json:"userACL,omitempty"`
	PublicACLHint    bool        `json:"hasPublicACL"`
	Thumbnail        string      `json:"thumbnail,omitempty"`
	ThumbnailSize    *Dimensions `json:"thumbnailSize,omitempty"`
	ResultCount      int         `json:"resultCount"`
	IsDefaultSpace   bool        `json:"isDefaultSpace"`
	DefaultSpaceType DefaultType `json:"defaultSpaceType,omitempty"`
	CommentCount     int         `json:"commentCount"`
}

// Space is the full aggregate returned by FetchSpace.
type Space struct {
	Metadata
	Comments []Comment `json:"comments"`
	Entities []Entity  `json:"entities"`
	Stats    Stats     `json:"stats"`
}

// HasPublicACL is derived from the ACL entries; PublicACLHint, which the
// server sends alongside them, is informational only.
func (m Metadata) HasPublicACL() bool {
	for _, e := range m.ACL {
		if e.Level == acl.LevelPublicView {
			return true
		}
	}
	return false
}

// NamedACLs returns the entries that belong to specific users.
func (m Metadata) NamedACLs() []ACL {
	out := make([]ACL, 0, len(m.ACL))
	for _, e := range m.ACL {
		if e.Level == acl.LevelPublicView || e.UserID == PublicPrincipal {
			continue
		}
		out = append(out, e)
	}
	return out
}

// LevelFor resolves userID's effective level, falling back to the public
// link when there is no named grant.
func (m Metadata) LevelFor(userID string) acl.Level {
	named := acl.LevelNone
	if userID != "" {
		for _, e := range m.NamedACLs() {
			if e.UserID == userID {
				named = e.Level
				break
			}
		}
	}
	return acl.Effective(named, m.HasPublicACL())
}

func (m Metadata) CallerLevel() acl.Level {
	if m.UserACL == nil {
		return acl.Effective(acl.LevelNone, m.HasPublicACL())
	}
	return acl.Effective(m.UserACL.Level, m.HasPublicACL())
}

// CanDelete is never true for a default space, whatever the caller's level.
func (m Metadata) CanDelete() bool {
	if m.IsDefaultSpace {
		return false
	}
	return acl.Can(m.CallerLevel(), acl.ActionDelete)
}

func (m Metadata) ShareState() ShareState {
	return ShareStateOf(len(m.NamedACLs()) > 1, m.HasPublicACL())
}

// ApplyPublicACL brings the entries in line with an authoritative public link
// result from the server.
func (m *Metadata) ApplyPublicACL(enabled bool) {
	m.PublicACLHint = enabled
	kept := m.ACL[:0]
	for _, e := range m.ACL {
		if e.Level == acl.LevelPublicView {
			continue
		}
		kept = append(kept, e)
	}
	m.ACL = kept
	if enabled {
		m.ACL = append(m.ACL, ACL{UserID: PublicPrincipal, Level: acl.LevelPublicView})
	}
}

// RemoveGrant drops userID's entry and refreshes UserACL if it was the caller.
func (m *Metadata) RemoveGrant(userID string) {
	kept := m.ACL[:0]
	for _, e := range m.ACL {
		if e.UserID == userID && e.Level != acl.LevelPublicView {
			continue
		}
		kept = append(kept, e)
	}
	m.ACL = kept
	if m.UserACL != nil && m.UserACL.UserID == userID {
		m.UserACL = nil
	}
}

// CommentByID returns nil when the comment is not present.
func (s *Space) CommentByID(id string) *Comment {
	for i := range s.Comments {
		if s.Comments[i].ID == id {
			return &s.Comments[i]
		}
	}
	return nil
}

func (s *Space) EntityByID(resultID string) *Entity {
	for i := range s.Entities {
		if s.Entities[i].ResultID == resultID {
			return &s.Entities[i]
		}
	}
	return nil
}

// Clone returns a copy that shares no slices or pointers with s.
func (s *Space) Clone() *Space {
	cp := *s
	cp.ACL = slices.Clone(s.ACL)
	cp.UserACL = clonePtr(s.UserACL)
	cp.ThumbnailSize = clonePtr(s.ThumbnailSize)
	cp.Comments = slices.Clone(s.Comments)
	cp.Entities = slices.Clone(s.Entities)
	for i := range cp.Entities {
		e := &cp.Entities[i]
		e.Title = clonePtr(e.Title)
		e.Snippet = clonePtr(e.Snippet)
		e.ContentType = clonePtr(e.ContentType)
		e.ContentURL = clonePtr(e.ContentURL)
		e.ContentDimensions = clonePtr(e.ContentDimensions)
		e.Thumbnail = clonePtr(e.Thumbnail)
	}
	return &cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
