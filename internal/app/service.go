package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"spaces/api/internal/auth"
	"spaces/api/internal/config"
	"spaces/api/internal/email"
	"spaces/api/internal/idempotency"
	"spaces/api/internal/search"
	"spaces/api/internal/snapshot"
	"spaces/api/internal/space"
	"spaces/api/internal/store"
	"spaces/api/internal/util"
)

// Session is the caller behind a request. The zero value is an anonymous
// caller, who can only reach spaces through their public link.
type Session struct {
	Token     string
	UserID    string
	UserName  string
	Email     string
	JTI       string
	ExpiresAt time.Time
}

func (s Session) Anonymous() bool {
	return s.UserID == ""
}

// Store is the persistence the service needs. store.PostgresStore and
// store.MemoryStore implement it.
type Store interface {
	Ping(context.Context) error
	EnsureUser(context.Context, string, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	FindUsersByEmail(context.Context, []string) (map[string]store.User, error)

	InsertSpace(context.Context, store.Space) error
	GetSpace(context.Context, string) (store.Space, error)
	GetDefaultSpace(context.Context, string) (store.Space, error)
	ListSpacesForUser(context.Context, string, string) ([]store.Space, error)
	UpdateSpace(context.Context, string, store.SpacePatch) (bool, error)
	DeleteSpace(context.Context, string) (bool, error)
	SetPublicACL(context.Context, string, bool) error
	RecordVisit(context.Context, string, string) error

	ListGrants(context.Context, string) ([]store.Grant, error)
	GetGrant(context.Context, string, string) (store.Grant, error)
	UpsertGrant(context.Context, store.Grant) error
	UpsertGrants(context.Context, []store.Grant) error
	DeleteGrant(context.Context, string, string) (bool, error)

	InsertComment(context.Context, store.Comment) error
	GetComment(context.Context, string, string) (store.Comment, error)
	ListComments(context.Context, string) ([]store.Comment, error)
	UpdateComment(context.Context, string, string, string) (bool, error)
	DeleteComment(context.Context, string, string) (bool, error)

	InsertEntity(context.Context, store.Entity) error
	GetEntity(context.Context, string) (store.Entity, error)
	ListEntities(context.Context, string) ([]store.Entity, error)
	AllEntities(context.Context) ([]store.Entity, error)
	DeleteEntities(context.Context, string, []string) (int, error)
	UpdateEntityDisplay(context.Context, string, string, store.DisplayPatch) (bool, error)
	AttachSnapshot(context.Context, string, store.SnapshotAttachment) error
	FailSnapshot(context.Context, string, string) error
	SearchEntities(context.Context, []string, string, int) ([]store.Entity, error)
}

// notifier delivers sharing emails. *email.Service satisfies it.
type notifier interface {
	SendSpaceInvite(to string, data email.InviteData) error
	SendPublicLink(to string, data email.PublicLinkData) error
}

type snapshotter interface {
	Enabled() bool
	Schedule(job snapshot.Job) error
	Store(ctx context.Context, resultID, contentType string, data []byte) (store.SnapshotAttachment, error)
}

// Deps are the optional collaborators of a Service. Nil members fall back to
// in-process implementations.
type Deps struct {
	Search      *search.Service
	Notifier    notifier
	Snapshots   snapshotter
	Idempotency idempotency.Store
}

type Service struct {
	cfg       config.Config
	store     Store
	search    *search.Service
	notify    notifier
	snapshots snapshotter
	idem      idempotency.Store
	tokens    *auth.Signer
}

func New(cfg config.Config, dataStore Store, deps Deps) *Service {
	svc := &Service{
		cfg:       cfg,
		store:     dataStore,
		search:    deps.Search,
		notify:    deps.Notifier,
		snapshots: deps.Snapshots,
		idem:      deps.Idempotency,
		tokens:    auth.NewSigner(cfg.JWTSecret, cfg.AccessTTL),
	}
	if svc.search == nil {
		svc.search = search.NewService(nil, dataStore)
	}
	if svc.notify == nil {
		svc.notify = logNotifier{}
	}
	if svc.idem == nil {
		svc.idem = idempotency.NewMemoryStore()
	}
	if svc.cfg.IdempotencyTTL <= 0 {
		svc.cfg.IdempotencyTTL = 24 * time.Hour
	}
	return svc
}

// Login signs a user in by email, creating the user and their default space
// on first sight. Identity proofing happens upstream of this service.
func (s *Service) Login(ctx context.Context, emailAddr, name string) (Session, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(emailAddr))
	if err != nil {
		return Session{}, validationError("a valid email is required")
	}
	displayName := strings.TrimSpace(name)
	if displayName == "" {
		displayName = strings.Split(addr.Address, "@")[0]
	}

	user, err := s.store.EnsureUser(ctx, addr.Address, displayName)
	if err != nil {
		return Session{}, err
	}
	if _, err := s.EnsureDefaultSpace(ctx, user.ID); err != nil {
		return Session{}, err
	}
	return s.issueSession(user)
}

func (s *Service) issueSession(user store.User) (Session, error) {
	token, claims, err := s.tokens.Issue(user.ID, user.Email, user.DisplayName)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		JTI:       claims.ID,
		ExpiresAt: claims.Expiry(),
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		JTI:       claims.ID,
		ExpiresAt: claims.Expiry(),
	}, nil
}

// EnsureDefaultSpace returns the user's SavedForLater space, creating it on
// first use.
func (s *Service) EnsureDefaultSpace(ctx context.Context, userID string) (store.Space, error) {
	existing, err := s.store.GetDefaultSpace(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Space{}, fmt.Errorf("get default space: %w", err)
	}

	item := store.Space{
		ID:          util.NewID("sp"),
		OwnerID:     userID,
		Name:        "Saved for Later",
		IsDefault:   true,
		DefaultType: string(space.DefaultSavedForLater),
	}
	if err := s.store.InsertSpace(ctx, item); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost a race with a concurrent request for the same user.
			return s.store.GetDefaultSpace(ctx, userID)
		}
		return store.Space{}, fmt.Errorf("create default space: %w", err)
	}
	log.Printf("spaces: created default space %s for %s", item.ID, userID)
	return s.store.GetSpace(ctx, item.ID)
}

// ReindexSearch pushes every saved entity to the search index.
func (s *Service) ReindexSearch(ctx context.Context) error {
	entities, err := s.store.AllEntities(ctx)
	if err != nil {
		return fmt.Errorf("list entities: %w", err)
	}
	records := make([]search.Record, 0, len(entities))
	for _, e := range entities {
		records = append(records, search.RecordOf(e))
	}
	s.search.Reindex(records)
	log.Printf("search: reindexed %d entities", len(records))
	return nil
}

func (s *Service) spaceLink(spaceID string) string {
	return s.cfg.PublicBaseURL + "/spaces/" + spaceID
}

type logNotifier struct{}

func (logNotifier) SendSpaceInvite(to string, data email.InviteData) error {
	log.Printf("email: not configured, skipping invite to %s for space %q", to, data.SpaceName)
	return nil
}

func (logNotifier) SendPublicLink(to string, data email.PublicLinkData) error {
	log.Printf("email: not configured, skipping public link to %s for space %q", to, data.SpaceName)
	return nil
}
