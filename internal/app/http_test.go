package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"spaces/api/internal/codec"
	"spaces/api/internal/idempotency"
	"spaces/api/internal/ops"
	"spaces/api/internal/store"
)

type opEnvelope struct {
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"requestId"`
}

func callOp(t *testing.T, server *HTTPServer, token, name, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/ops/"+name, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ops.WireError {
	t.Helper()
	var wire ops.WireError
	if err := json.Unmarshal(rr.Body.Bytes(), &wire); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return wire
}

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore(), nil), "*")
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a request id header")
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS header, got %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		redisDown  bool
		wantStatus int
		wantReady  bool
		wantFailed string
	}{
		{name: "store reachable", wantStatus: http.StatusOK, wantReady: true},
		{name: "store down", pingErr: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable, wantFailed: "database"},
		{name: "redis down", redisDown: true, wantStatus: http.StatusServiceUnavailable, wantFailed: "idempotency"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fs := newFakeStore()
			fs.pingFn = func(context.Context) error { return tc.pingErr }
			deps := Deps{}
			if tc.redisDown {
				mr := miniredis.RunT(t)
				client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { _ = client.Close() })
				mr.Close()
				deps.Idempotency = idempotency.NewRedisStoreWithClient(client)
			}
			server := NewHTTPServer(New(testConfig(), fs, deps), "*")

			req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
			rr := httptest.NewRecorder()
			server.Handler().ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			var report Readiness
			if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
				t.Fatalf("decode ready body: %v", err)
			}
			if report.OK != tc.wantReady {
				t.Fatalf("expected ok=%v, got %v", tc.wantReady, report.OK)
			}
			if tc.wantFailed != "" && report.Checks[tc.wantFailed].Status != "error" {
				t.Fatalf("expected %s check to fail, got %+v", tc.wantFailed, report.Checks)
			}
			if report.Checks["search"].Status != "store" || report.Checks["snapshots"].Status != "disabled" {
				t.Fatalf("unexpected optional checks %+v", report.Checks)
			}
		})
	}
}

func TestSessionLoginAndLookup(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore(), nil), "*")

	req := httptest.NewRequest(http.MethodPost, "/api/session/login", bytes.NewBufferString(`{"email":"avery@example.com","name":"  Avery  "}`))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var login struct {
		Token    string `json:"token"`
		UserName string `json:"userName"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.Token == "" || login.UserName != "Avery" {
		t.Fatalf("unexpected login response %+v", login)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if !strings.Contains(rr.Body.String(), `"authenticated":true`) {
		t.Fatalf("expected authenticated session, got %s", rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/session/login", bytes.NewBufferString(`{"email":"nope"}`))
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a bad email, got %d", rr.Code)
	}
}

func TestOperationAuthAndRouting(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)
	server := NewHTTPServer(svc, "*")

	rr := callOp(t, server, "", "ListSpaces", `{"variables":{}}`, nil)
	if rr.Code != http.StatusUnauthorized || decodeError(t, rr).Code != ops.CodeUnauthorized {
		t.Fatalf("expected 401 for anonymous ListSpaces, got %d %s", rr.Code, rr.Body.String())
	}

	rr = callOp(t, server, "garbage", "FetchSpace", `{"variables":{"id":"sp_x"}}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token on a public op, got %d", rr.Code)
	}

	rr = callOp(t, server, "", "FetchSpace", `{"variables":{"id":"sp_missing"}}`, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a missing space, got %d", rr.Code)
	}

	session := login(t, svc, "owner@example.com")
	rr = callOp(t, server, session.Token, "LaunchRockets", `{}`, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown operation, got %d", rr.Code)
	}

	rr = callOp(t, server, session.Token, "CreateSpace", `{"variables":{"name":"  "}}`, nil)
	if rr.Code != http.StatusUnprocessableEntity || decodeError(t, rr).Code != ops.CodeValidation {
		t.Fatalf("expected validation error, got %d %s", rr.Code, rr.Body.String())
	}

	rr = callOp(t, server, session.Token, "CreateSpace", `{"variables":`, nil)
	if rr.Code != http.StatusBadRequest || decodeError(t, rr).Code != ops.CodeInvalidBody {
		t.Fatalf("expected invalid body, got %d %s", rr.Code, rr.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/ops", nil)
	rr = httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "ShareSpacePublicLink") {
		t.Fatalf("expected catalog listing, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestIdempotencyKeyReplaysCreateSpace(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs, nil)
	server := NewHTTPServer(svc, "*")
	session := login(t, svc, "owner@example.com")
	headers := map[string]string{"Idempotency-Key": "key-1"}

	first := callOp(t, server, session.Token, "CreateSpace", `{"variables":{"name":"Trips"}}`, headers)
	second := callOp(t, server, session.Token, "CreateSpace", `{"variables":{"name":"Trips"}}`, headers)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("expected 200 twice, got %d and %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected replayed response, got %s and %s", first.Body.String(), second.Body.String())
	}

	spaces, err := fs.ListSpacesForUser(context.Background(), session.UserID, store.ListAll)
	if err != nil {
		t.Fatalf("ListSpacesForUser() error = %v", err)
	}
	if len(spaces) != 2 {
		t.Fatalf("expected default plus one created space, got %d", len(spaces))
	}

	third := callOp(t, server, session.Token, "CreateSpace", `{"variables":{"name":"Trips"}}`, map[string]string{"Idempotency-Key": "key-2"})
	if third.Body.String() == first.Body.String() {
		t.Fatalf("a new key must create a new space")
	}
}

func TestIdempotencyKeyInProgress(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)
	server := NewHTTPServer(svc, "*")
	session := login(t, svc, "owner@example.com")

	key := idempotency.Key(session.UserID, string(ops.OpCreateSpace), "busy")
	if _, reserved, err := svc.idem.Reserve(context.Background(), key, time.Minute); err != nil || !reserved {
		t.Fatalf("Reserve() = %v, %v", reserved, err)
	}

	rr := callOp(t, server, session.Token, "CreateSpace", `{"variables":{"name":"Trips"}}`, map[string]string{"Idempotency-Key": "busy"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if code := decodeError(t, rr).Code; code != ops.CodeInProgress || ops.KindForCode(code) != ops.KindTransient {
		t.Fatalf("expected a retryable in-progress code, got %s", code)
	}
}

func TestIdempotencyKeyReleasedOnError(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)
	server := NewHTTPServer(svc, "*")
	session := login(t, svc, "owner@example.com")
	headers := map[string]string{"Idempotency-Key": "retry-me"}

	rr := callOp(t, server, session.Token, "AddSpaceComment", `{"variables":{"spaceID":"sp_missing","comment":"hi"}}`, headers)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	id := createSpace(t, svc, session, "Later")
	rr = callOp(t, server, session.Token, "AddSpaceComment", `{"variables":{"spaceID":"`+id+`","comment":"hi"}}`, headers)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected the key to be reusable after a failure, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestOperationOverCBOR(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)
	server := NewHTTPServer(svc, "*")
	session := login(t, svc, "owner@example.com")

	body, err := codec.MarshalCBOR(map[string]any{"variables": map[string]any{"name": "Binary"}})
	if err != nil {
		t.Fatalf("MarshalCBOR() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/ops/CreateSpace", bytes.NewReader(body))
	req.Header.Set("Content-Type", codec.ContentTypeCBOR)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != codec.ContentTypeCBOR {
		t.Fatalf("expected CBOR response, got %q", ct)
	}
	var env struct {
		Data codec.Raw `json:"data"`
	}
	if err := codec.UnmarshalCBOR(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var id string
	if err := codec.UnmarshalCBOR(env.Data, &id); err != nil {
		t.Fatalf("decode id: %v", err)
	}
	if !strings.HasPrefix(id, "sp") {
		t.Fatalf("unexpected space id %q", id)
	}
}

func TestOperationResponseCarriesRequestID(t *testing.T) {
	svc := newTestService(newFakeStore(), nil)
	server := NewHTTPServer(svc, "*")
	session := login(t, svc, "owner@example.com")

	rr := callOp(t, server, session.Token, "ListSpaces", `{"variables":{"kind":"All"}}`, map[string]string{"X-Request-ID": "req-42"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	var env opEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.RequestID != "req-42" {
		t.Fatalf("expected request id echoed, got %q", env.RequestID)
	}
	var result ops.ListSpacesResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.RequestID != "req-42" || len(result.Spaces) != 1 || !result.Spaces[0].IsDefaultSpace {
		t.Fatalf("unexpected result %+v", result)
	}
}
