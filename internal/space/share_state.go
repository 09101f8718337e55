package space

type ShareState string

const (
	SharePrivate         ShareState = "private"
	ShareWithUsers       ShareState = "shared_with_users"
	SharePublic          ShareState = "public"
	ShareWithUsersPublic ShareState = "shared_with_users_and_public"
)

// ShareStateOf derives the sharing presentation from whether anyone besides
// the owner holds a grant and whether the public link is on.
func ShareStateOf(hasNamedGrantees, hasPublic bool) ShareState {
	switch {
	case hasNamedGrantees && hasPublic:
		return ShareWithUsersPublic
	case hasPublic:
		return SharePublic
	case hasNamedGrantees:
		return ShareWithUsers
	default:
		return SharePrivate
	}
}
