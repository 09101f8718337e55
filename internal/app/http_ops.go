package app

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"spaces/api/internal/codec"
	"spaces/api/internal/idempotency"
	"spaces/api/internal/ops"
)

// maxOperationBody bounds a request envelope; AddToSpace may carry an image.
const maxOperationBody = 32 << 20

type opHandler func(ctx context.Context, session Session, variables codec.Raw, cdc codec.Codec) (any, error)

type opResponse struct {
	Data      codec.Raw `json:"data"`
	RequestID string    `json:"requestId,omitempty"`
}

// bind decodes and validates the variables before calling fn. Validation is
// repeated here because clients are not trusted to have run it.
func bind[In ops.Input, Out any](fn func(context.Context, Session, In) (Out, error)) opHandler {
	return func(ctx context.Context, session Session, variables codec.Raw, cdc codec.Codec) (any, error) {
		var in In
		if len(variables) > 0 && !variables.IsNull() {
			if err := cdc.Unmarshal(variables, &in); err != nil {
				return nil, domainError(http.StatusBadRequest, ops.CodeInvalidBody, "invalid variables", nil)
			}
		}
		if err := in.Validate(); err != nil {
			return nil, validationError(err.Error())
		}
		return fn(ctx, session, in)
	}
}

func (s *HTTPServer) operationTable() map[ops.Name]opHandler {
	svc := s.service
	return map[ops.Name]opHandler{
		ops.OpListSpaces:             bind(svc.ListSpaces),
		ops.OpFetchSpace:             bind(svc.FetchSpace),
		ops.OpFetchSpaceEntityImages: bind(svc.FetchSpaceEntityImages),
		ops.OpSearchSpaceEntities:    bind(svc.SearchSpaceEntities),
		ops.OpCreateSpace:            bind(svc.CreateSpace),
		ops.OpDeleteSpace:            bind(svc.DeleteSpace),
		ops.OpUpdateSpace:            bind(svc.UpdateSpace),
		ops.OpAddToSpace:             bind(svc.AddToSpace),
		ops.OpBatchDeleteSpaceResult: bind(svc.BatchDeleteSpaceResult),
		ops.OpUpdateSpaceResult:      bind(svc.UpdateSpaceResult),
		ops.OpAddSpaceComment:        bind(svc.AddSpaceComment),
		ops.OpUpdateSpaceComment:     bind(svc.UpdateSpaceComment),
		ops.OpDeleteSpaceComment:     bind(svc.DeleteSpaceComment),
		ops.OpUpdateUserSpaceACL:     bind(svc.UpdateUserSpaceACL),
		ops.OpDeleteUserSpaceACL:     bind(svc.DeleteUserSpaceACL),
		ops.OpAddSpaceSoloACLs:       bind(svc.AddSpaceSoloACLs),
		ops.OpAddSpacePublicACL:      bind(svc.AddSpacePublicACL),
		ops.OpDeleteSpacePublicACL:   bind(svc.DeleteSpacePublicACL),
		ops.OpShareSpacePublicLink:   bind(svc.ShareSpacePublicLink),
		ops.OpSuggestContacts:        bind(svc.SuggestContacts),
	}
}

func (s *HTTPServer) handleOperation(w http.ResponseWriter, r *http.Request, name ops.Name) {
	cdc := codec.ForContentType(r.Header.Get("Content-Type"))
	respCodec := codec.ForContentType(r.Header.Get("Accept"))
	if r.Header.Get("Accept") == "" {
		respCodec = cdc
	}

	desc, ok := ops.Lookup(name)
	handler := s.operations[name]
	if !ok || handler == nil {
		writeOpError(w, respCodec, notFound("operation "+string(name)))
		return
	}

	session, err := s.optionalSession(r)
	if err != nil {
		writeOpError(w, respCodec, err)
		return
	}
	if session.Anonymous() && !desc.Public {
		writeOpError(w, respCodec, unauthorized())
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxOperationBody))
	if err != nil {
		writeOpError(w, respCodec, domainError(http.StatusRequestEntityTooLarge, ops.CodeInvalidBody, "request body too large", nil))
		return
	}
	var envelope struct {
		Variables codec.Raw `json:"variables"`
	}
	if len(body) > 0 {
		if err := cdc.Unmarshal(body, &envelope); err != nil {
			writeOpError(w, respCodec, domainError(http.StatusBadRequest, ops.CodeInvalidBody, "invalid request envelope", nil))
			return
		}
	}

	run := func() ([]byte, error) {
		result, err := handler(r.Context(), session, envelope.Variables, cdc)
		if err != nil {
			return nil, err
		}
		data, err := respCodec.Marshal(result)
		if err != nil {
			return nil, err
		}
		return respCodec.Marshal(opResponse{Data: data, RequestID: requestIDFrom(r.Context())})
	}

	clientKey := r.Header.Get("Idempotency-Key")
	if clientKey == "" || !desc.Mutation || desc.Idempotent {
		payload, err := run()
		if err != nil {
			writeOpError(w, respCodec, err)
			return
		}
		writeOpPayload(w, respCodec.ContentType(), payload)
		return
	}
	s.runOnce(w, r, respCodec, idempotency.Key(session.UserID, string(name), clientKey), run)
}

// runOnce executes a non-idempotent operation at most once per key and
// replays the stored response to retries.
func (s *HTTPServer) runOnce(w http.ResponseWriter, r *http.Request, cdc codec.Codec, key string, run func() ([]byte, error)) {
	ctx := r.Context()
	ttl := s.service.cfg.IdempotencyTTL
	existing, reserved, err := s.service.idem.Reserve(ctx, key, ttl)
	if err != nil {
		log.Printf("idempotency: reserve %s: %v", key, err)
		writeOpError(w, cdc, domainError(http.StatusServiceUnavailable, ops.CodeUnavailable, "idempotency store unavailable", nil))
		return
	}
	if !reserved {
		if existing.State == idempotency.StateDone {
			writeOpPayload(w, existing.ContentType, existing.Payload)
			return
		}
		writeOpError(w, cdc, domainError(http.StatusConflict, ops.CodeInProgress, "a request with this idempotency key is in progress", nil))
		return
	}

	payload, err := run()
	if err != nil {
		// Releasing lets the client retry a request that had no effect.
		if releaseErr := s.service.idem.Release(context.WithoutCancel(ctx), key); releaseErr != nil {
			log.Printf("idempotency: release %s: %v", key, releaseErr)
		}
		writeOpError(w, cdc, err)
		return
	}
	rec := idempotency.Record{State: idempotency.StateDone, ContentType: cdc.ContentType(), Payload: payload}
	if err := s.service.idem.Complete(context.WithoutCancel(ctx), key, rec, ttl); err != nil {
		log.Printf("idempotency: complete %s: %v", key, err)
	}
	writeOpPayload(w, cdc.ContentType(), payload)
}

func writeOpPayload(w http.ResponseWriter, contentType string, payload []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func writeOpError(w http.ResponseWriter, cdc codec.Codec, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		var domainErr *DomainError
		if !errors.As(err, &domainErr) {
			log.Printf("ops: %v", err)
		}
	}
	payload, marshalErr := cdc.Marshal(ops.WireError{Code: code, Message: message, Details: details})
	if marshalErr != nil {
		writeError(w, status, code, message, nil)
		return
	}
	w.Header().Set("Content-Type", cdc.ContentType())
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
