package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"spaces/api/internal/auth"
	"spaces/api/internal/ops"
	"spaces/api/internal/store"
)

const (
	maxBodyBytes = 4 << 20
	readyTimeout = 5 * time.Second
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	operations map[ops.Name]opHandler
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	s := &HTTPServer{service: service, corsOrigin: corsOrigin}
	s.operations = s.operationTable()
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	read := r.Method == http.MethodGet || r.Method == http.MethodHead
	switch {
	case read && r.URL.Path == "/api/health":
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	case read && r.URL.Path == "/api/ready":
		s.handleReady(w, r)
		return
	case r.Method == http.MethodGet && r.URL.Path == "/api/session":
		s.handleSession(w, r)
		return
	case r.Method == http.MethodPost && r.URL.Path == "/api/session/login":
		s.handleLogin(w, r)
		return
	}

	rest, ok := strings.CutPrefix(strings.TrimRight(r.URL.Path, "/"), "/api/ops")
	if !ok {
		writeError(w, http.StatusNotFound, ops.CodeNotFound, "Not found", nil)
		return
	}
	name := strings.TrimPrefix(rest, "/")
	switch {
	case name == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"operations": ops.Catalog()})
	case name != "" && !strings.Contains(name, "/") && r.Method == http.MethodPost:
		s.handleOperation(w, r, ops.Name(name))
	case strings.Contains(name, "/") || (rest != "" && !strings.HasPrefix(rest, "/")):
		writeError(w, http.StatusNotFound, ops.CodeNotFound, "Not found", nil)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	report := s.service.Readiness(ctx)
	status := http.StatusOK
	if !report.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

type sessionView struct {
	Authenticated bool   `json:"authenticated"`
	UserName      string `json:"userName,omitempty"`
	UserID        string `json:"userId,omitempty"`
	Email         string `json:"email,omitempty"`
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	view := sessionView{}
	if token := bearerToken(r); token != "" {
		if session, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			view = sessionView{Authenticated: true, UserName: session.UserName, UserID: session.UserID, Email: session.Email}
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, ops.CodeInvalidBody, err.Error(), nil)
		return
	}
	session, err := s.service.Login(r.Context(), body.Email, body.Name)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Token     string    `json:"token"`
		UserName  string    `json:"userName"`
		UserID    string    `json:"userId"`
		Email     string    `json:"email"`
		ExpiresAt time.Time `json:"expiresAt"`
	}{session.Token, session.UserName, session.UserID, session.Email, session.ExpiresAt})
}

// optionalSession resolves the bearer token if one was sent. A bad token is
// an error even on operations that allow anonymous callers.
func (s *HTTPServer) optionalSession(r *http.Request) (Session, error) {
	token := bearerToken(r)
	if token == "" {
		return Session{}, nil
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
		return Session{}, unauthorized()
	}
	return session, err
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		header := rec.Header()
		header.Set("Access-Control-Allow-Origin", s.corsOrigin)
		header.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-Request-ID, Idempotency-Key")
		header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		header.Set("Cache-Control", "no-store")
		header.Set("Content-Type", "application/json")
		header.Set("X-Request-ID", requestID)

		started := time.Now()
		next.ServeHTTP(rec, r)

		op, _ := strings.CutPrefix(r.URL.Path, "/api/ops/")
		if op == r.URL.Path {
			op = ""
		}
		log.Printf(`{"request_id":%q,"method":%q,"path":%q,"operation":%q,"status":%d,"duration_ms":%d}`,
			requestID, r.Method, r.URL.Path, op, rec.status, time.Since(started).Milliseconds())
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ops.WireError{Code: code, Message: message, Details: details})
}

// decodeBody reads a JSON body of bounded size. An empty body leaves target
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(target)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("body exceeds %d bytes", tooLarge.Limit)
	}
	return fmt.Errorf("invalid JSON body")
}

func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(strings.TrimSpace(r.Header.Get("Authorization")), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	switch {
	case errors.As(err, &domainErr):
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ops.CodeNotFound, "Not found", nil
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, ops.CodeConflict, "Conflict", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, ops.CodeUnauthorized, "Unauthorized", nil
	default:
		return http.StatusInternalServerError, ops.CodeServerError, "Server error", nil
	}
}
