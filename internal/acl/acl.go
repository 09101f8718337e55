package acl

import "strings"

// Level is a caller's access level on a space. Values outside the known set
// are kept verbatim so newer servers can introduce levels without breaking
// decoding; such levels grant nothing.
type Level string

type Action string

const (
	LevelNone       Level = ""
	LevelOwner      Level = "Owner"
	LevelEdit       Level = "Edit"
	LevelComment    Level = "Comment"
	LevelView       Level = "View"
	LevelPublicView Level = "PublicView"
)

const (
	ActionRead    Action = "read"
	ActionComment Action = "comment"
	ActionWrite   Action = "write"
	ActionShare   Action = "share"
	ActionDelete  Action = "delete"
)

// Parse accepts any casing of the known levels and keeps unknown values as-is.
func Parse(raw string) Level {
	for _, l := range []Level{LevelOwner, LevelEdit, LevelComment, LevelView, LevelPublicView} {
		if strings.EqualFold(raw, string(l)) {
			return l
		}
	}
	return Level(raw)
}

func (l Level) Known() bool {
	switch l {
	case LevelOwner, LevelEdit, LevelComment, LevelView, LevelPublicView:
		return true
	default:
		return false
	}
}

// Named reports whether l can be held by a specific user.
func (l Level) Named() bool {
	switch l {
	case LevelOwner, LevelEdit, LevelComment, LevelView:
		return true
	default:
		return false
	}
}

// View and PublicView share a rank: both only allow reading.
func (l Level) rank() int {
	switch l {
	case LevelOwner:
		return 4
	case LevelEdit:
		return 3
	case LevelComment:
		return 2
	case LevelView, LevelPublicView:
		return 1
	default:
		return 0
	}
}

// Compare orders levels by the access they grant. Unknown levels sort lowest.
func Compare(a, b Level) int {
	return a.rank() - b.rank()
}

func (l Level) AtLeast(min Level) bool {
	if !l.Known() {
		return false
	}
	return l.rank() >= min.rank()
}

func Can(level Level, action Action) bool {
	switch level {
	case LevelOwner:
		return true
	case LevelEdit:
		return action == ActionRead || action == ActionComment || action == ActionWrite || action == ActionShare
	case LevelComment:
		return action == ActionRead || action == ActionComment
	case LevelView, LevelPublicView:
		return action == ActionRead
	default:
		return false
	}
}

// Effective resolves what a caller can do: a named grant always wins over the
// public link, and the public link only applies when there is no named grant.
func Effective(named Level, hasPublic bool) Level {
	if named.Named() {
		return named
	}
	if hasPublic {
		return LevelPublicView
	}
	return LevelNone
}

// Grantable reports whether a holder of granter may hand target to another user.
func Grantable(granter, target Level) bool {
	if !Can(granter, ActionShare) {
		return false
	}
	if !target.Named() || target == LevelOwner {
		return false
	}
	return target.rank() <= granter.rank()
}
