// Package transport carries operation requests to a Spaces server over HTTP.
// The envelope is {"variables": ...} in and {"data": ...} or the error body
// out, in JSON or CBOR.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync/atomic"
	"time"

	"spaces/api/internal/codec"
	"spaces/api/internal/ops"
)

const maxResponseBytes = 16 << 20

type requestEnvelope struct {
	Variables any `json:"variables"`
}

type responseEnvelope struct {
	Data      codec.Raw `json:"data"`
	RequestID string    `json:"requestId,omitempty"`
}

type HTTP struct {
	baseURL string
	client  *http.Client
	codec   codec.Codec
	token   string
}

type Option func(*HTTP)

func WithCodec(c codec.Codec) Option {
	return func(t *HTTP) { t.codec = c }
}

func WithToken(token string) Option {
	return func(t *HTTP) { t.token = token }
}

func WithHTTPClient(client *http.Client) Option {
	return func(t *HTTP) { t.client = client }
}

func NewHTTP(baseURL string, opts ...Option) *HTTP {
	t := &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		codec:   codec.JSON,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetToken replaces the bearer token used for subsequent requests.
func (t *HTTP) SetToken(token string) { t.token = token }

func (t *HTTP) Do(ctx context.Context, req ops.Request, out any) error {
	body, err := t.codec.Marshal(requestEnvelope{Variables: req.Variables})
	if err != nil {
		return fmt.Errorf("encode %s: %w", req.Operation, err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, t.baseURL+"/api/ops/"+string(req.Operation), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", req.Operation, err)
	}
	var written atomic.Bool
	trace := &httptrace.ClientTrace{
		WroteRequest: func(httptrace.WroteRequestInfo) { written.Store(true) },
	}
	httpReq = httpReq.WithContext(httptrace.WithClientTrace(ctx, trace))
	httpReq.Header.Set("Content-Type", t.codec.ContentType())
	httpReq.Header.Set("Accept", t.codec.ContentType())
	if t.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.token)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return &ops.DeliveryError{Written: written.Load(), Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &ops.DeliveryError{Written: true, Err: err}
	}
	respCodec := codec.ForContentType(resp.Header.Get("Content-Type"))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		wire := &ops.WireError{Status: resp.StatusCode}
		if err := respCodec.Unmarshal(payload, wire); err != nil || wire.Code == "" {
			wire.Code = codeForStatus(resp.StatusCode)
			wire.Message = strings.TrimSpace(string(payload))
		}
		wire.Status = resp.StatusCode
		return wire
	}

	var env responseEnvelope
	if err := respCodec.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("decode %s response: %w", req.Operation, err)
	}
	if out == nil || env.Data.IsNull() {
		return nil
	}
	if err := respCodec.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", req.Operation, err)
	}
	return nil
}

// codeForStatus covers error bodies that did not come from the service
// itself, such as a proxy's 502 page.
func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ops.CodeValidation
	case http.StatusUnauthorized:
		return ops.CodeUnauthorized
	case http.StatusForbidden:
		return ops.CodeForbidden
	case http.StatusNotFound:
		return ops.CodeNotFound
	case http.StatusPreconditionFailed:
		return ops.CodePrecondition
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return ops.CodeUnavailable
	default:
		return ops.CodeServerError
	}
}
