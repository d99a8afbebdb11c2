// Package fakeapi serves an in-memory version of the task API. It backs
// the kawahmock binary and the tests of every package that talks HTTP.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Prefix is the API version path every route is mounted under.
const Prefix = "/v1"

type account struct {
	ID       string
	Name     string
	Email    string
	Password string
	Role     string
}

type record struct {
	ID          string
	Title       string
	Description string
	Status      string
	Owner       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Server is the fake API. The zero value is not usable; call New.
type Server struct {
	mu       sync.Mutex
	accounts map[string]*account // by email
	access   map[string]string   // access token -> account ID
	refresh  map[string]string   // refresh token -> account ID
	tasks    map[string][]*record
	hits     map[string]int

	legacy    bool
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
	log       logrus.FieldLogger
	mux       *http.ServeMux
}

type Option func(*Server)

// WithLegacyFields makes task records use the old "id"/"name" field names.
func WithLegacyFields(enabled bool) Option {
	return func(s *Server) { s.legacy = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Server) { s.log = log }
}

func New(opts ...Option) *Server {
	s := &Server{
		accounts:  make(map[string]*account),
		access:    make(map[string]string),
		refresh:   make(map[string]string),
		tasks:     make(map[string][]*record),
		hits:      make(map[string]int),
		secret:    []byte("kawah-mock-secret"),
		accessTTL: 30 * time.Minute,
		now:       time.Now,
		log:       logrus.StandardLogger(),
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("POST /auth/register", s.handleRegister)
	s.handle("POST /auth/login", s.handleLogin)
	s.handle("POST /auth/logout", s.handleLogout)

	s.handle("GET /tasks", s.authed(s.handleTaskList))
	s.handle("POST /tasks", s.authed(s.handleTaskCreate))
	s.handle("GET /tasks/{id}", s.authed(s.handleTaskGet))
	s.handle("PATCH /tasks/{id}", s.authed(s.handleTaskUpdate))
	s.handle("DELETE /tasks/{id}", s.authed(s.handleTaskDelete))
}

func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	method, path, _ := strings.Cut(pattern, " ")
	s.mux.HandleFunc(method+" "+Prefix+path, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[pattern]++
		s.mu.Unlock()
		fn(w, r)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.log.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Debug("mock request")
	s.mux.ServeHTTP(w, r)
}

// Hits reports how many times a route pattern such as "POST /tasks" was hit.
func (s *Server) Hits(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[pattern]
}

// SeedUser registers an account directly.
func (s *Server) SeedUser(name, email, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addAccount(name, email, password)
}

// RevokeSessions invalidates every issued token, as if they all expired.
func (s *Server) RevokeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = make(map[string]string)
	s.refresh = make(map[string]string)
}

// TaskCount returns the number of tasks stored for the account with email.
func (s *Server) TaskCount(email string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(email)]
	if !ok {
		return 0
	}
	return len(s.tasks[acc.ID])
}

func (s *Server) addAccount(name, email, password string) *account {
	acc := &account{
		ID:       uuid.NewString(),
		Name:     name,
		Email:    strings.ToLower(email),
		Password: password,
		Role:     "user",
	}
	s.accounts[acc.Email] = acc
	return acc
}

func (s *Server) issueTokens(acc *account) (map[string]any, error) {
	now := s.now()
	accessExp := now.Add(s.accessTTL)
	refreshExp := now.Add(30 * 24 * time.Hour)

	claims := jwt.RegisteredClaims{
		Subject:   acc.ID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(accessExp),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	refresh := uuid.NewString()
	s.access[access] = acc.ID
	s.refresh[refresh] = acc.ID

	return map[string]any{
		"access":  map[string]any{"token": access, "expires": accessExp.UTC()},
		"refresh": map[string]any{"token": refresh, "expires": refreshExp.UTC()},
	}, nil
}

func userJSON(acc *account) map[string]any {
	return map[string]any{
		"id":              acc.ID,
		"name":            acc.Name,
		"email":           acc.Email,
		"role":            acc.Role,
		"isEmailVerified": false,
	}
}

func (s *Server) taskJSON(t *record) map[string]any {
	out := map[string]any{
		"status":    t.Status,
		"user":      t.Owner,
		"createdAt": t.CreatedAt.UTC(),
		"updatedAt": t.UpdatedAt.UTC(),
	}
	if t.Description != "" {
		out["description"] = t.Description
	}
	if s.legacy {
		out["id"] = t.ID
		out["name"] = t.Title
	} else {
		out["_id"] = t.ID
		out["title"] = t.Title
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"code": status, "message": msg})
}
