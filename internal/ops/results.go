package ops

import "spaces/api/internal/space"

type ListSpacesResult struct {
	RequestID string           `json:"requestID"`
	Spaces    []space.Metadata `json:"spaces"`
}

// FetchSpaceResult carries at most one space; the list shape is kept for
// wire compatibility.
type FetchSpaceResult struct {
	RequestID string        `json:"requestID"`
	Spaces    []space.Space `json:"spaces"`
}

type EntityImagesResult struct {
	Images []space.Image `json:"images"`
}

type SearchHit struct {
	SpaceID  string `json:"spaceID"`
	ResultID string `json:"resultID"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
}

type SearchResult struct {
	Hits []SearchHit `json:"hits"`
}

// SoloACLsResult is a partial success: unresolvable emails are listed and
// no-op grants are counted nowhere.
type SoloACLsResult struct {
	NonNeevanEmails []string `json:"nonNeevanEmails"`
	ChangedACLCount int      `json:"changedACLCount"`
}

type ShareLinkResult struct {
	Failures  []string `json:"failures"`
	NumShared int      `json:"numShared"`
}

func (r SoloACLsResult) Partial() bool { return len(r.NonNeevanEmails) > 0 }

func (r ShareLinkResult) Partial() bool { return len(r.Failures) > 0 }

type ContactSuggestion struct {
	Profile space.Profile `json:"profile"`
}

type SuggestContactsResult struct {
	Query              string              `json:"query"`
	RequestID          string              `json:"requestID"`
	ContactSuggestions []ContactSuggestion `json:"contactSuggestions"`
}
