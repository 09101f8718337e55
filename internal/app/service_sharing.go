package app

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"sort"
	"strings"

	"spaces/api/internal/acl"
	"spaces/api/internal/email"
	"spaces/api/internal/ops"
	"spaces/api/internal/space"
	"spaces/api/internal/store"
)

// =============================================================================
// Named grants
// =============================================================================

func (s *Service) UpdateUserSpaceACL(ctx context.Context, session Session, in ops.UpdateUserSpaceACLInput) (bool, error) {
	if err := requireUser(session); err != nil {
		return false, err
	}
	a, err := s.authorize(ctx, session, in.SpaceID, acl.ActionShare)
	if err != nil {
		return false, err
	}
	if a.isOwner(in.UserID) {
		return false, forbidden("the owner's access cannot be changed")
	}
	if !acl.Grantable(a.level, in.Level) {
		return false, forbidden(fmt.Sprintf("%s access cannot grant %s", a.level, in.Level))
	}
	if _, err := s.store.GetUserByID(ctx, in.UserID); err != nil {
		return false, notFoundIfMissing(err, "user")
	}
	if err := s.store.UpsertGrant(ctx, store.Grant{
		SpaceID:   in.SpaceID,
		UserID:    in.UserID,
		Level:     string(in.Level),
		GrantedBy: session.UserID,
	}); err != nil {
		return false, fmt.Errorf("upsert grant: %w", err)
	}
	return true, nil
}

// DeleteUserSpaceACL revokes a grant. Revoking a grant that does not exist
// succeeds, so retries are safe.
func (s *Service) DeleteUserSpaceACL(ctx context.Context, session Session, in ops.DeleteUserSpaceACLInput) (bool, error) {
	if err := requireUser(session); err != nil {
		return false, err
	}
	a, err := s.resolve(ctx, session, in.SpaceID)
	if err != nil {
		return false, err
	}
	if a.isOwner(in.UserID) {
		return false, forbidden("the owner's access cannot be revoked")
	}
	if in.UserID == session.UserID {
		if !a.named.Named() {
			return true, nil
		}
	} else {
		if a.level == acl.LevelNone {
			return false, notFound("space")
		}
		if !acl.Can(a.level, acl.ActionShare) {
			return false, forbidden(fmt.Sprintf("%s access cannot revoke other users", a.level))
		}
	}
	if _, err := s.store.DeleteGrant(ctx, in.SpaceID, in.UserID); err != nil {
		return false, fmt.Errorf("delete grant: %w", err)
	}
	return true, nil
}

// AddSpaceSoloACLs grants access by email. Unknown addresses are reported
// back; grants that would not raise the user's level are skipped and not
// counted. The grants are written as one batch so a failed call leaves the
// space unchanged.
func (s *Service) AddSpaceSoloACLs(ctx context.Context, session Session, in ops.AddSpaceSoloACLsInput) (ops.SoloACLsResult, error) {
	if err := requireUser(session); err != nil {
		return ops.SoloACLsResult{}, err
	}
	a, err := s.authorize(ctx, session, in.SpaceID, acl.ActionShare)
	if err != nil {
		return ops.SoloACLsResult{}, err
	}
	for _, entry := range in.ShareWith {
		if !acl.Grantable(a.level, entry.Level) {
			return ops.SoloACLsResult{}, forbidden(fmt.Sprintf("%s access cannot grant %s", a.level, entry.Level))
		}
	}

	requests := dedupeByEmail(in.ShareWith)
	emails := make([]string, 0, len(requests))
	for _, entry := range requests {
		emails = append(emails, entry.Email)
	}
	users, err := s.store.FindUsersByEmail(ctx, emails)
	if err != nil {
		return ops.SoloACLsResult{}, fmt.Errorf("find users: %w", err)
	}
	grants, err := s.store.ListGrants(ctx, in.SpaceID)
	if err != nil {
		return ops.SoloACLsResult{}, fmt.Errorf("list grants: %w", err)
	}
	current := make(map[string]acl.Level, len(grants))
	for _, g := range grants {
		current[g.UserID] = acl.Parse(g.Level)
	}

	result := ops.SoloACLsResult{NonNeevanEmails: []string{}}
	var changes []store.Grant
	invitees := map[string]string{}
	for _, entry := range requests {
		user, ok := users[strings.ToLower(entry.Email)]
		if !ok {
			result.NonNeevanEmails = append(result.NonNeevanEmails, entry.Email)
			continue
		}
		if a.isOwner(user.ID) {
			continue
		}
		if existing, ok := current[user.ID]; ok && acl.Compare(existing, entry.Level) >= 0 {
			continue
		}
		current[user.ID] = entry.Level
		invitees[user.ID] = user.Email
		changes = append(changes, store.Grant{
			SpaceID:   in.SpaceID,
			UserID:    user.ID,
			Level:     string(entry.Level),
			GrantedBy: session.UserID,
		})
	}
	if err := s.store.UpsertGrants(ctx, changes); err != nil {
		return ops.SoloACLsResult{}, fmt.Errorf("upsert grants: %w", err)
	}
	result.ChangedACLCount = len(changes)

	for _, g := range changes {
		to := invitees[g.UserID]
		if err := s.notify.SendSpaceInvite(to, email.InviteData{
			InviterName: session.UserName,
			SpaceName:   a.space.Name,
			Level:       g.Level,
			Note:        in.Note,
			SpaceURL:    s.spaceLink(in.SpaceID),
		}); err != nil {
			log.Printf("email: invite %s to %s: %v", to, in.SpaceID, err)
		}
	}
	return result, nil
}

// dedupeByEmail keeps the first entry for each address.
func dedupeByEmail(entries []ops.EmailACL) []ops.EmailACL {
	seen := make(map[string]struct{}, len(entries))
	out := make([]ops.EmailACL, 0, len(entries))
	for _, entry := range entries {
		entry.Email = strings.TrimSpace(entry.Email)
		key := strings.ToLower(entry.Email)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, entry)
	}
	return out
}

const defaultContactLimit = 10

// SuggestContacts completes a share dialog. Candidates are the people on the
// caller's spaces whose address or a word of whose name starts with the
// query; a complete address also finds any registered user.
func (s *Service) SuggestContacts(ctx context.Context, session Session, in ops.SuggestContactsInput) (ops.SuggestContactsResult, error) {
	if err := requireUser(session); err != nil {
		return ops.SuggestContactsResult{}, err
	}
	query := strings.ToLower(strings.TrimSpace(in.Query))
	limit := in.Limit
	if limit <= 0 {
		limit = defaultContactLimit
	}

	spaces, err := s.store.ListSpacesForUser(ctx, session.UserID, store.ListAll)
	if err != nil {
		return ops.SuggestContactsResult{}, fmt.Errorf("list spaces: %w", err)
	}
	found := map[string]space.Profile{}
	for _, sp := range spaces {
		grants, err := s.store.ListGrants(ctx, sp.ID)
		if err != nil {
			return ops.SuggestContactsResult{}, fmt.Errorf("list grants: %w", err)
		}
		for _, g := range grants {
			if g.UserID == session.UserID || !contactMatches(query, g.Email, g.DisplayName) {
				continue
			}
			found[g.UserID] = space.Profile{DisplayName: g.DisplayName, Email: g.Email, PictureURL: g.PictureURL}
		}
	}
	if addr, err := mail.ParseAddress(query); err == nil {
		users, err := s.store.FindUsersByEmail(ctx, []string{addr.Address})
		if err != nil {
			return ops.SuggestContactsResult{}, fmt.Errorf("find users: %w", err)
		}
		for _, u := range users {
			if u.ID != session.UserID {
				found[u.ID] = space.Profile{DisplayName: u.DisplayName, Email: u.Email, PictureURL: u.PictureURL}
			}
		}
	}

	profiles := make([]space.Profile, 0, len(found))
	for _, p := range found {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].DisplayName != profiles[j].DisplayName {
			return profiles[i].DisplayName < profiles[j].DisplayName
		}
		return profiles[i].Email < profiles[j].Email
	})
	if len(profiles) > limit {
		profiles = profiles[:limit]
	}

	out := ops.SuggestContactsResult{
		Query:              in.Query,
		RequestID:          requestIDFrom(ctx),
		ContactSuggestions: make([]ops.ContactSuggestion, 0, len(profiles)),
	}
	for _, p := range profiles {
		out.ContactSuggestions = append(out.ContactSuggestions, ops.ContactSuggestion{Profile: p})
	}
	return out, nil
}

func contactMatches(query, emailAddr, name string) bool {
	if strings.HasPrefix(strings.ToLower(emailAddr), query) {
		return true
	}
	name = strings.ToLower(name)
	if strings.HasPrefix(name, query) {
		return true
	}
	for _, word := range strings.Fields(name) {
		if strings.HasPrefix(word, query) {
			return true
		}
	}
	return false
}

// =============================================================================
// Public link
// =============================================================================

func (s *Service) AddSpacePublicACL(ctx context.Context, session Session, in ops.AddSpacePublicACLInput) (bool, error) {
	return s.setPublicACL(ctx, session, in.SpaceID, true)
}

func (s *Service) DeleteSpacePublicACL(ctx context.Context, session Session, in ops.DeleteSpacePublicACLInput) (bool, error) {
	return s.setPublicACL(ctx, session, in.SpaceID, false)
}

func (s *Service) setPublicACL(ctx context.Context, session Session, spaceID string, enabled bool) (bool, error) {
	if err := requireUser(session); err != nil {
		return false, err
	}
	a, err := s.authorize(ctx, session, spaceID, acl.ActionShare)
	if err != nil {
		return false, err
	}
	if a.space.PublicACL == enabled {
		return true, nil
	}
	if err := s.store.SetPublicACL(ctx, spaceID, enabled); err != nil {
		return false, notFoundIfMissing(err, "space")
	}
	return true, nil
}

// ShareSpacePublicLink emails the existing public link. It never grants
// access; the link must already be on.
func (s *Service) ShareSpacePublicLink(ctx context.Context, session Session, in ops.ShareSpacePublicLinkInput) (ops.ShareLinkResult, error) {
	if err := requireUser(session); err != nil {
		return ops.ShareLinkResult{}, err
	}
	a, err := s.authorize(ctx, session, in.SpaceID, acl.ActionRead)
	if err != nil {
		return ops.ShareLinkResult{}, err
	}
	if !a.named.Named() {
		return ops.ShareLinkResult{}, forbidden("only members of the space can share its link")
	}
	if !a.space.PublicACL {
		return ops.ShareLinkResult{}, preconditionFailed("the space has no public link")
	}

	result := ops.ShareLinkResult{Failures: []string{}}
	for _, raw := range in.Emails {
		addr, err := mail.ParseAddress(strings.TrimSpace(raw))
		if err != nil {
			result.Failures = append(result.Failures, raw)
			continue
		}
		if err := s.notify.SendPublicLink(addr.Address, email.PublicLinkData{
			SenderName: session.UserName,
			SpaceName:  a.space.Name,
			Note:       in.Note,
			LinkURL:    s.spaceLink(in.SpaceID),
		}); err != nil {
			log.Printf("email: public link %s to %s: %v", in.SpaceID, addr.Address, err)
			result.Failures = append(result.Failures, raw)
			continue
		}
		result.NumShared++
	}
	return result, nil
}
