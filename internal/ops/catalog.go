// Package ops is the operation catalog of the Spaces service: the typed
// inputs each operation takes, the results it returns, the error taxonomy
// callers branch on, and a client that executes operations over a Transport.
package ops

import "sort"

type Name string

const (
	OpListSpaces             Name = "ListSpaces"
	OpFetchSpace             Name = "FetchSpace"
	OpFetchSpaceEntityImages Name = "FetchSpaceEntityImages"
	OpSearchSpaceEntities    Name = "SearchSpaceEntities"
	OpCreateSpace            Name = "CreateSpace"
	OpDeleteSpace            Name = "DeleteSpace"
	OpUpdateSpace            Name = "UpdateSpace"
	OpAddToSpace             Name = "AddToSpace"
	OpBatchDeleteSpaceResult Name = "BatchDeleteSpaceResult"
	OpUpdateSpaceResult      Name = "UpdateSpaceResult"
	OpAddSpaceComment        Name = "AddSpaceComment"
	OpUpdateSpaceComment     Name = "UpdateSpaceComment"
	OpDeleteSpaceComment     Name = "DeleteSpaceComment"
	OpUpdateUserSpaceACL     Name = "UpdateUserSpaceACL"
	OpDeleteUserSpaceACL     Name = "DeleteUserSpaceACL"
	OpAddSpaceSoloACLs       Name = "AddSpaceSoloACLs"
	OpAddSpacePublicACL      Name = "AddSpacePublicACL"
	OpDeleteSpacePublicACL   Name = "DeleteSpacePublicACL"
	OpShareSpacePublicLink   Name = "ShareSpacePublicLink"
	OpSuggestContacts        Name = "SuggestContacts"
)

// Descriptor describes how an operation may be executed. Idempotent operations
// can be retried after an ambiguous failure; the rest carry an idempotency key
// that the server deduplicates on.
type Descriptor struct {
	Name       Name
	Mutation   bool
	Idempotent bool
	// Public operations may be called without a bearer token.
	Public bool
}

var catalog = map[Name]Descriptor{
	OpListSpaces:             {Name: OpListSpaces, Idempotent: true},
	OpFetchSpace:             {Name: OpFetchSpace, Idempotent: true, Public: true},
	OpFetchSpaceEntityImages: {Name: OpFetchSpaceEntityImages, Idempotent: true, Public: true},
	OpSearchSpaceEntities:    {Name: OpSearchSpaceEntities, Idempotent: true},
	OpCreateSpace:            {Name: OpCreateSpace, Mutation: true},
	OpDeleteSpace:            {Name: OpDeleteSpace, Mutation: true},
	OpUpdateSpace:            {Name: OpUpdateSpace, Mutation: true, Idempotent: true},
	OpAddToSpace:             {Name: OpAddToSpace, Mutation: true},
	OpBatchDeleteSpaceResult: {Name: OpBatchDeleteSpaceResult, Mutation: true, Idempotent: true},
	OpUpdateSpaceResult:      {Name: OpUpdateSpaceResult, Mutation: true, Idempotent: true},
	OpAddSpaceComment:        {Name: OpAddSpaceComment, Mutation: true},
	OpUpdateSpaceComment:     {Name: OpUpdateSpaceComment, Mutation: true, Idempotent: true},
	OpDeleteSpaceComment:     {Name: OpDeleteSpaceComment, Mutation: true},
	OpUpdateUserSpaceACL:     {Name: OpUpdateUserSpaceACL, Mutation: true, Idempotent: true},
	OpDeleteUserSpaceACL:     {Name: OpDeleteUserSpaceACL, Mutation: true, Idempotent: true},
	OpAddSpaceSoloACLs:       {Name: OpAddSpaceSoloACLs, Mutation: true},
	OpAddSpacePublicACL:      {Name: OpAddSpacePublicACL, Mutation: true, Idempotent: true},
	OpDeleteSpacePublicACL:   {Name: OpDeleteSpacePublicACL, Mutation: true, Idempotent: true},
	OpShareSpacePublicLink:   {Name: OpShareSpacePublicLink, Mutation: true},
	OpSuggestContacts:        {Name: OpSuggestContacts, Idempotent: true},
}

func Lookup(name Name) (Descriptor, bool) {
	desc, ok := catalog[name]
	return desc, ok
}

// Catalog lists every operation sorted by name.
func Catalog() []Descriptor {
	out := make([]Descriptor, 0, len(catalog))
	for _, desc := range catalog {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
