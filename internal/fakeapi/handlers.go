package fakeapi

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type ctxKey struct{}

// maxLimit caps the page size a list request may ask for.
const maxLimit = 100

var validStatus = map[string]bool{"pending": true, "in-progress": true, "completed": true}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if body.Name == "" || body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "name, email and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[strings.ToLower(body.Email)]; exists {
		writeError(w, http.StatusConflict, "Email already taken")
		return
	}
	acc := s.addAccount(body.Name, body.Email, body.Password)
	tokens, err := s.issueTokens(acc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": userJSON(acc), "tokens": tokens})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[strings.ToLower(body.Email)]
	if !ok || acc.Password != body.Password {
		writeError(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	tokens, err := s.issueTokens(acc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userJSON(acc), "tokens": tokens})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	accountID, ok := s.refresh[body.RefreshToken]
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	delete(s.refresh, body.RefreshToken)
	for token, id := range s.access {
		if id == accountID {
			delete(s.access, token)
		}
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// authed resolves the bearer token to an account ID or answers 401.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		accountID, ok := s.access[token]
		s.mu.Unlock()
		if token == "" || !ok {
			writeError(w, http.StatusUnauthorized, "Please authenticate")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, accountID)))
	}
}

func owner(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	title := strings.ToLower(strings.TrimSpace(q.Get("title")))
	status := q.Get("status")
	page := queryInt(q.Get("page"), 1)
	limit := min(queryInt(q.Get("limit"), 10), maxLimit)

	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*record
	for _, t := range s.tasks[owner(r)] {
		if title != "" && !strings.Contains(strings.ToLower(t.Title), title) {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		matched = append(matched, t)
	}

	total := len(matched)
	// Pages past the end are empty; the bound keeps (page-1)*limit from
	// overflowing.
	start, end := total, total
	if page-1 <= total/limit {
		start = (page - 1) * limit
		end = min(start+limit, total)
		start = min(start, total)
	}
	results := make([]map[string]any, 0, end-start)
	for _, t := range matched[start:end] {
		results = append(results, s.taskJSON(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results":      results,
		"page":         page,
		"limit":        limit,
		"totalPages":   int(math.Ceil(float64(total) / float64(limit))),
		"totalResults": total,
	})
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Status      string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		writeError(w, http.StatusBadRequest, `"title" is required`)
		return
	}
	if body.Status == "" {
		body.Status = "pending"
	}
	if !validStatus[body.Status] {
		writeError(w, http.StatusBadRequest, `"status" must be one of [pending, in-progress, completed]`)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	t := &record{
		ID:          uuid.NewString(),
		Title:       body.Title,
		Description: body.Description,
		Status:      body.Status,
		Owner:       owner(r),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.tasks[t.Owner] = append(s.tasks[t.Owner], t)
	writeJSON(w, http.StatusCreated, s.taskJSON(t))
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, t := s.find(owner(r), r.PathValue("id"))
	if t == nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, s.taskJSON(t))
}

func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	var updates map[string]any
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, t := s.find(owner(r), r.PathValue("id"))
	if t == nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	title, hasTitle := updates["title"].(string)
	if hasTitle && strings.TrimSpace(title) == "" {
		writeError(w, http.StatusBadRequest, `"title" is not allowed to be empty`)
		return
	}
	status, hasStatus := updates["status"].(string)
	if hasStatus && !validStatus[status] {
		writeError(w, http.StatusBadRequest, `"status" must be one of [pending, in-progress, completed]`)
		return
	}
	description, hasDescription := updates["description"].(string)

	if hasTitle {
		t.Title = title
	}
	if hasDescription {
		t.Description = description
	}
	if hasStatus {
		t.Status = status
	}
	t.UpdatedAt = s.now()
	writeJSON(w, http.StatusOK, s.taskJSON(t))
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ownerID := owner(r)
	idx, t := s.find(ownerID, r.PathValue("id"))
	if t == nil {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	list := s.tasks[ownerID]
	s.tasks[ownerID] = append(list[:idx], list[idx+1:]...)
	writeJSON(w, http.StatusNoContent, nil)
}

// find must be called with s.mu held.
func (s *Server) find(ownerID, id string) (int, *record) {
	for i, t := range s.tasks[ownerID] {
		if t.ID == id {
			return i, t
		}
	}
	return -1, nil
}

func queryInt(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
