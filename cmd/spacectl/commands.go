package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"spaces/api/internal/acl"
	"spaces/api/internal/ops"
	"spaces/api/internal/optional"
	"spaces/api/internal/space"
)

type command struct {
	usage   string
	minArgs int
	run     func(ctx context.Context, e *env, args []string) (any, error)
}

var commands = map[string]command{
	"login":     {usage: "<email> [--name NAME]", minArgs: 1, run: runLogin},
	"ops":       {usage: "", run: runCatalog},
	"list":      {usage: "[--kind All|Visited|Invited]", run: runList},
	"fetch":     {usage: "<space-id>", minArgs: 1, run: runFetch},
	"images":    {usage: "<space-id>", minArgs: 1, run: runImages},
	"search":    {usage: "<query> [--space ID] [--limit N]", minArgs: 1, run: runSearch},
	"contacts":  {usage: "<query> [--limit N]", minArgs: 1, run: runContacts},
	"create":    {usage: "<name>", minArgs: 1, run: runCreate},
	"rename":    {usage: "<space-id> <name>", minArgs: 2, run: runRename},
	"delete":    {usage: "<space-id>", minArgs: 1, run: runDelete},
	"add":       {usage: "<space-id> <url> [--title TITLE] [--note TEXT]", minArgs: 2, run: runAdd},
	"remove":    {usage: "<space-id> <result-id>...", minArgs: 2, run: runRemove},
	"comment":   {usage: "<space-id> <text>", minArgs: 2, run: runComment},
	"grant":     {usage: "<space-id> <user-id> <Edit|Comment|View>", minArgs: 3, run: runGrant},
	"revoke":    {usage: "<space-id> <user-id>", minArgs: 2, run: runRevoke},
	"invite":    {usage: "<space-id> <email=Level>... [--note TEXT]", minArgs: 2, run: runInvite},
	"public":    {usage: "<space-id> on|off", minArgs: 2, run: runPublic},
	"send-link": {usage: "<space-id> <email>... [--note TEXT]", minArgs: 2, run: runSendLink},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// runLogin talks to the session endpoint directly; it is not a catalog
// operation.
func runLogin(ctx context.Context, e *env, args []string) (any, error) {
	body, err := json.Marshal(map[string]string{"email": args[0], "name": e.opts.name})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(e.opts.server, "/")+"/api/session/login", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("login: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login: %s: %v", resp.Status, out["error"])
	}
	return out, nil
}

func runCatalog(context.Context, *env, []string) (any, error) {
	return ops.Catalog(), nil
}

func runList(ctx context.Context, e *env, _ []string) (any, error) {
	return e.client.ListSpaces(ctx, ops.ListSpacesInput{Kind: space.ListKind(e.opts.kind)})
}

func runFetch(ctx context.Context, e *env, args []string) (any, error) {
	return e.client.FetchSpace(ctx, args[0])
}

func runImages(ctx context.Context, e *env, args []string) (any, error) {
	return e.client.FetchSpaceEntityImages(ctx, ops.FetchSpaceEntityImagesInput{SpaceID: args[0]})
}

func runSearch(ctx context.Context, e *env, args []string) (any, error) {
	return e.client.SearchSpaceEntities(ctx, ops.SearchSpaceEntitiesInput{
		Query:   strings.Join(args, " "),
		SpaceID: e.opts.space,
		Limit:   e.opts.limit,
	})
}

func runContacts(ctx context.Context, e *env, args []string) (any, error) {
	return e.client.SuggestContacts(ctx, ops.SuggestContactsInput{
		Query: strings.Join(args, " "),
		Limit: e.opts.limit,
	})
}

func runCreate(ctx context.Context, e *env, args []string) (any, error) {
	id, err := e.client.CreateSpace(ctx, strings.Join(args, " "))
	if err != nil {
		return nil, err
	}
	return map[string]string{"id": id}, nil
}

func runRename(ctx context.Context, e *env, args []string) (any, error) {
	return e.client.UpdateSpace(ctx, ops.UpdateSpaceInput{ID: args[0], Name: optional.Of(strings.Join(args[1:], " "))})
}

func runDelete(ctx context.Context, e *env, args []string) (any, error) {
	return e.client.DeleteSpace(ctx, args[0])
}

func runAdd(ctx context.Context, e *env, args []string) (any, error) {
	id, err := e.client.AddToSpace(ctx, ops.AddToSpaceInput{
		SpaceID:          args[0],
		URL:              args[1],
		Title:            e.opts.title,
		Comment:          e.opts.note,
		SnapshotExpected: true,
	})
	if err != nil {
		return nil, err
	}
	return map[string]string{"resultID": id}, nil
}

func runRemove(ctx context.Context, e *env, args []string) (any, error) {
	return e.client.BatchDeleteSpaceResult(ctx, ops.BatchDeleteSpaceResultInput{SpaceID: args[0], ResultIDs: args[1:]})
}

func runComment(ctx context.Context, e *env, args []string) (any, error) {
	id, err := e.client.AddSpaceComment(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return nil, err
	}
	return map[string]string{"commentID": id}, nil
}

func runGrant(ctx context.Context, e *env, args []string) (any, error) {
	return e.client.UpdateUserSpaceACL(ctx, ops.UpdateUserSpaceACLInput{SpaceID: args[0], UserID: args[1], Level: acl.Parse(args[2])})
}

func runRevoke(ctx context.Context, e *env, args []string) (any, error) {
	return e.client.DeleteUserSpaceACL(ctx, ops.DeleteUserSpaceACLInput{SpaceID: args[0], UserID: args[1]})
}

func runInvite(ctx context.Context, e *env, args []string) (any, error) {
	entries := make([]ops.EmailACL, 0, len(args)-1)
	for _, raw := range args[1:] {
		entry, err := parseInvite(raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return e.client.AddSpaceSoloACLs(ctx, ops.AddSpaceSoloACLsInput{SpaceID: args[0], ShareWith: entries, Note: e.opts.note})
}

// parseInvite reads "email=Level". The level defaults to View.
func parseInvite(raw string) (ops.EmailACL, error) {
	addr, level, found := strings.Cut(raw, "=")
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ops.EmailACL{}, fmt.Errorf("invalid invite %q: missing email", raw)
	}
	if !found {
		return ops.EmailACL{Email: addr, Level: acl.LevelView}, nil
	}
	parsed := acl.Parse(strings.TrimSpace(level))
	if !parsed.Named() || parsed == acl.LevelOwner {
		return ops.EmailACL{}, fmt.Errorf("invalid invite %q: level must be Edit, Comment or View", raw)
	}
	return ops.EmailACL{Email: addr, Level: parsed}, nil
}

func runPublic(ctx context.Context, e *env, args []string) (any, error) {
	var enabled bool
	switch strings.ToLower(args[1]) {
	case "on", "true", "enable":
		enabled = true
	case "off", "false", "disable":
	default:
		return nil, fmt.Errorf("public: expected on or off, got %q", args[1])
	}
	return e.client.SetPublicVisibility(ctx, args[0], enabled)
}

func runSendLink(ctx context.Context, e *env, args []string) (any, error) {
	return e.client.ShareSpacePublicLink(ctx, ops.ShareSpacePublicLinkInput{SpaceID: args[0], Emails: args[1:], Note: e.opts.note})
}
