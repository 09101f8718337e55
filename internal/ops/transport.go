package ops

import "context"

// Request is one operation invocation as handed to a Transport.
type Request struct {
	Operation Name
	Variables any
	// IdempotencyKey is set for non-idempotent operations and reused across
	// retries of the same call.
	IdempotencyKey string
}

// Transport executes a request and decodes the operation's data into out.
// Server-reported failures are returned as *WireError and failures below the
// envelope as *DeliveryError.
type Transport interface {
	Do(ctx context.Context, req Request, out any) error
}
