package ops

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"spaces/api/internal/space"
)

type Config struct {
	// Timeout bounds each attempt unless the caller's context expires sooner.
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

func DefaultConfig() Config {
	return Config{Timeout: 10 * time.Second, MaxAttempts: 3, Backoff: 200 * time.Millisecond}
}

// Event is emitted once per call, after the final attempt.
type Event struct {
	Operation Name
	Attempts  int
	Duration  time.Duration
	Kind      Kind
	Error     string
}

// EventSink receives call telemetry. It is called synchronously and must not
// block.
type EventSink func(Event)

func LogSink(ev Event) {
	if ev.Kind == "" {
		log.Printf("ops: op=%s attempts=%d duration=%s ok", ev.Operation, ev.Attempts, ev.Duration)
		return
	}
	log.Printf("ops: op=%s attempts=%d duration=%s kind=%s err=%s", ev.Operation, ev.Attempts, ev.Duration, ev.Kind, ev.Error)
}

type Client struct {
	transport Transport
	cfg       Config
	events    EventSink
	newKey    func() string
	sleep     func(context.Context, time.Duration) error
	cache     *spaceCache
}

type Option func(*Client)

func WithEventSink(sink EventSink) Option {
	return func(c *Client) { c.events = sink }
}

func WithKeyGenerator(fn func() string) Option {
	return func(c *Client) { c.newKey = fn }
}

func withSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

func NewClient(transport Transport, cfg Config, opts ...Option) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	c := &Client{
		transport: transport,
		cfg:       cfg,
		newKey:    func() string { return uuid.NewString() },
		sleep:     sleepContext,
		cache:     newSpaceCache(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Call executes any catalog operation. The typed methods below are thin
// wrappers over it.
func (c *Client) Call(ctx context.Context, name Name, in Input, out any) error {
	desc, ok := Lookup(name)
	if !ok {
		return &Error{Kind: KindValidation, Operation: name, Message: "unknown operation"}
	}
	if in != nil {
		if err := in.Validate(); err != nil {
			return validationError(name, err.Error())
		}
	}

	req := Request{Operation: name, Variables: VariablesOf(in)}
	if desc.Mutation && !desc.Idempotent {
		req.IdempotencyKey = c.newKey()
	}

	started := time.Now()
	attempts := 0
	var err error
	for {
		attempts++
		err = c.attempt(ctx, req, out)
		if err == nil || attempts >= c.cfg.MaxAttempts || !c.shouldRetry(ctx, desc, req, err) {
			break
		}
		if waitErr := c.sleep(ctx, c.backoff(attempts)); waitErr != nil {
			break
		}
	}

	if c.events != nil {
		ev := Event{Operation: name, Attempts: attempts, Duration: time.Since(started)}
		if err != nil {
			ev.Kind = KindOf(err)
			ev.Error = err.Error()
		}
		c.events(ev)
	}
	return err
}

func (c *Client) attempt(ctx context.Context, req Request, out any) error {
	callCtx := ctx
	if c.cfg.Timeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > c.cfg.Timeout {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}
	}
	return classify(req.Operation, c.transport.Do(callCtx, req, out))
}

// shouldRetry never retries once the caller gave up. A request that never
// reached the server is always safe to resend; an ambiguous one only when the
// operation is idempotent or deduplicated by key.
func (c *Client) shouldRetry(ctx context.Context, desc Descriptor, req Request, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch KindOf(err) {
	case KindTransient:
		return true
	case KindUnknownOutcome:
		return desc.Idempotent || req.IdempotencyKey != ""
	default:
		return false
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.cfg.Backoff * time.Duration(1<<(attempt-1))
}

func classify(op Name, err error) error {
	if err == nil {
		return nil
	}
	var opErr *Error
	if errors.As(err, &opErr) {
		if opErr.Operation == "" {
			opErr.Operation = op
		}
		return opErr
	}
	var wire *WireError
	if errors.As(err, &wire) {
		return &Error{Kind: KindForCode(wire.Code), Operation: op, Code: wire.Code, Message: wire.Message, Err: wire}
	}
	var delivery *DeliveryError
	if errors.As(err, &delivery) {
		kind := KindTransient
		if delivery.Written {
			kind = KindUnknownOutcome
		}
		return &Error{Kind: kind, Operation: op, Err: delivery}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindUnknownOutcome, Operation: op, Err: err}
	}
	return &Error{Kind: KindInternal, Operation: op, Err: err}
}

func emptyResult(op Name) error {
	return &Error{Kind: KindInternal, Operation: op, Message: "server returned no result"}
}

func (c *Client) ListSpaces(ctx context.Context, in ListSpacesInput) (ListSpacesResult, error) {
	var out ListSpacesResult
	err := c.Call(ctx, OpListSpaces, in, &out)
	return out, err
}

// FetchSpace returns the aggregate and remembers it for precondition checks.
func (c *Client) FetchSpace(ctx context.Context, id string) (*space.Space, error) {
	var out FetchSpaceResult
	if err := c.Call(ctx, OpFetchSpace, FetchSpaceInput{ID: id}, &out); err != nil {
		return nil, err
	}
	if len(out.Spaces) == 0 {
		return nil, &Error{Kind: KindNotFound, Operation: OpFetchSpace, Code: CodeNotFound, Message: "space not found"}
	}
	sp := out.Spaces[0]
	c.cache.put(&sp)
	return &sp, nil
}

func (c *Client) FetchSpaceEntityImages(ctx context.Context, in FetchSpaceEntityImagesInput) (EntityImagesResult, error) {
	var out EntityImagesResult
	err := c.Call(ctx, OpFetchSpaceEntityImages, in, &out)
	return out, err
}

func (c *Client) SearchSpaceEntities(ctx context.Context, in SearchSpaceEntitiesInput) (SearchResult, error) {
	var out SearchResult
	err := c.Call(ctx, OpSearchSpaceEntities, in, &out)
	return out, err
}

func (c *Client) SuggestContacts(ctx context.Context, in SuggestContactsInput) (SuggestContactsResult, error) {
	var out SuggestContactsResult
	err := c.Call(ctx, OpSuggestContacts, in, &out)
	return out, err
}

func (c *Client) CreateSpace(ctx context.Context, name string) (string, error) {
	var id *string
	if err := c.Call(ctx, OpCreateSpace, CreateSpaceInput{Name: name}, &id); err != nil {
		return "", err
	}
	if id == nil || *id == "" {
		return "", emptyResult(OpCreateSpace)
	}
	return *id, nil
}

// DeleteSpace refuses spaces the caller may not delete, default spaces in
// particular, before contacting the server.
func (c *Client) DeleteSpace(ctx context.Context, id string) (bool, error) {
	sp, err := c.cachedOrFetch(ctx, id)
	if err != nil {
		return false, err
	}
	if sp.IsDefaultSpace {
		return false, preconditionError(OpDeleteSpace, "the default space cannot be deleted")
	}
	if !sp.CanDelete() {
		return false, &Error{Kind: KindPermissionDenied, Operation: OpDeleteSpace, Code: CodeForbidden, Message: "only the owner can delete a space"}
	}
	ok, err := c.callBool(ctx, OpDeleteSpace, DeleteSpaceInput{ID: id})
	c.cache.invalidate(id)
	return ok, err
}

func (c *Client) UpdateSpace(ctx context.Context, in UpdateSpaceInput) (bool, error) {
	defer c.cache.invalidate(in.ID)
	return c.callBool(ctx, OpUpdateSpace, in)
}

func (c *Client) AddToSpace(ctx context.Context, in AddToSpaceInput) (string, error) {
	defer c.cache.invalidate(in.SpaceID)
	var id *string
	if err := c.Call(ctx, OpAddToSpace, in, &id); err != nil {
		return "", err
	}
	if id == nil || *id == "" {
		return "", emptyResult(OpAddToSpace)
	}
	return *id, nil
}

func (c *Client) BatchDeleteSpaceResult(ctx context.Context, in BatchDeleteSpaceResultInput) (bool, error) {
	defer c.cache.invalidate(in.SpaceID)
	return c.callBool(ctx, OpBatchDeleteSpaceResult, in)
}

func (c *Client) UpdateSpaceResult(ctx context.Context, in UpdateSpaceResultInput) (bool, error) {
	defer c.cache.invalidate(in.SpaceID)
	return c.callBool(ctx, OpUpdateSpaceResult, in)
}

// AddSpaceComment treats a missing comment id as a failure.
func (c *Client) AddSpaceComment(ctx context.Context, spaceID, text string) (string, error) {
	defer c.cache.invalidate(spaceID)
	var id *string
	if err := c.Call(ctx, OpAddSpaceComment, AddSpaceCommentInput{SpaceID: spaceID, Text: text}, &id); err != nil {
		return "", err
	}
	if id == nil || *id == "" {
		return "", emptyResult(OpAddSpaceComment)
	}
	return *id, nil
}

func (c *Client) UpdateSpaceComment(ctx context.Context, in UpdateSpaceCommentInput) (bool, error) {
	defer c.cache.invalidate(in.SpaceID)
	return c.callBool(ctx, OpUpdateSpaceComment, in)
}

func (c *Client) DeleteSpaceComment(ctx context.Context, in DeleteSpaceCommentInput) (bool, error) {
	defer c.cache.invalidate(in.SpaceID)
	return c.callBool(ctx, OpDeleteSpaceComment, in)
}

func (c *Client) UpdateUserSpaceACL(ctx context.Context, in UpdateUserSpaceACLInput) (bool, error) {
	defer c.cache.invalidate(in.SpaceID)
	return c.callBool(ctx, OpUpdateUserSpaceACL, in)
}

func (c *Client) DeleteUserSpaceACL(ctx context.Context, in DeleteUserSpaceACLInput) (bool, error) {
	defer c.cache.invalidate(in.SpaceID)
	return c.callBool(ctx, OpDeleteUserSpaceACL, in)
}

func (c *Client) AddSpaceSoloACLs(ctx context.Context, in AddSpaceSoloACLsInput) (SoloACLsResult, error) {
	defer c.cache.invalidate(in.SpaceID)
	var out SoloACLsResult
	err := c.Call(ctx, OpAddSpaceSoloACLs, in, &out)
	return out, err
}

// SetPublicVisibility toggles the public link. The returned state comes from
// the server and is applied to the cached space as-is.
func (c *Client) SetPublicVisibility(ctx context.Context, spaceID string, enabled bool) (bool, error) {
	var (
		ok  bool
		err error
	)
	if enabled {
		ok, err = c.callBool(ctx, OpAddSpacePublicACL, AddSpacePublicACLInput{SpaceID: spaceID})
	} else {
		ok, err = c.callBool(ctx, OpDeleteSpacePublicACL, DeleteSpacePublicACLInput{SpaceID: spaceID})
	}
	if err != nil {
		c.cache.invalidate(spaceID)
		return false, err
	}
	if ok {
		c.cache.applyPublicACL(spaceID, enabled)
	} else {
		c.cache.invalidate(spaceID)
	}
	return ok, nil
}

// ShareSpacePublicLink requires the public link to be on, as last seen by
// this client. The space is fetched first when it is not cached.
func (c *Client) ShareSpacePublicLink(ctx context.Context, in ShareSpacePublicLinkInput) (ShareLinkResult, error) {
	if err := in.Validate(); err != nil {
		return ShareLinkResult{}, validationError(OpShareSpacePublicLink, err.Error())
	}
	sp, err := c.cachedOrFetch(ctx, in.SpaceID)
	if err != nil {
		return ShareLinkResult{}, err
	}
	if !sp.HasPublicACL() {
		return ShareLinkResult{}, preconditionError(OpShareSpacePublicLink, "the space has no public link")
	}
	var out ShareLinkResult
	err = c.Call(ctx, OpShareSpacePublicLink, in, &out)
	return out, err
}

// Cached returns the last fetched copy of a space, if it is still valid.
func (c *Client) Cached(id string) (*space.Space, bool) {
	return c.cache.get(id)
}

func (c *Client) Invalidate(id string) {
	c.cache.invalidate(id)
}

func (c *Client) cachedOrFetch(ctx context.Context, id string) (*space.Space, error) {
	if sp, ok := c.cache.get(id); ok {
		return sp, nil
	}
	return c.FetchSpace(ctx, id)
}

func (c *Client) callBool(ctx context.Context, name Name, in Input) (bool, error) {
	var ok *bool
	if err := c.Call(ctx, name, in, &ok); err != nil {
		return false, err
	}
	if ok == nil {
		return false, emptyResult(name)
	}
	return *ok, nil
}
