package fakeapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	log, _ := test.NewNullLogger()
	return New(append([]Option{WithLogger(log)}, opts...)...)
}

func call(t *testing.T, s *Server, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, Prefix+path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func loginToken(t *testing.T, s *Server) (access, refresh string) {
	t.Helper()
	s.SeedUser("Ada", "Ada@Example.com", "secret")
	rec, body := call(t, s, http.MethodPost, "/auth/login", "", `{"email":"ada@example.com","password":"secret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	tokens := body["tokens"].(map[string]any)
	access = tokens["access"].(map[string]any)["token"].(string)
	refresh = tokens["refresh"].(map[string]any)["token"].(string)
	return access, refresh
}

func TestRegisterAndDuplicate(t *testing.T) {
	s := newTestServer(t)

	rec, body := call(t, s, http.MethodPost, "/auth/register", "", `{"name":"Ada","email":"ada@example.com","password":"x"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ada@example.com", body["user"].(map[string]any)["email"])

	rec, body = call(t, s, http.MethodPost, "/auth/register", "", `{"name":"Ada","email":"ADA@example.com","password":"x"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Email already taken", body["message"])
}

func TestLoginIssuesSignedAccessToken(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestServer(t, WithClock(func() time.Time { return now }))
	access, refresh := loginToken(t, s)
	assert.NotEmpty(t, refresh)

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(access, &claims, func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithTimeFunc(func() time.Time { return now }))
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, 0)

	rec, body := call(t, s, http.MethodPost, "/auth/login", "", `{"email":"ada@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Incorrect email or password", body["message"])
}

func TestTasksRequireBearer(t *testing.T) {
	s := newTestServer(t)

	rec, body := call(t, s, http.MethodGet, "/tasks", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Please authenticate", body["message"])

	rec, _ = call(t, s, http.MethodGet, "/tasks", "forged", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestServer(t)
	access, _ := loginToken(t, s)

	rec, body := call(t, s, http.MethodPost, "/tasks", access, `{"description":"no title"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `"title" is required`, body["message"])

	rec, body = call(t, s, http.MethodPost, "/tasks", access, `{"title":"Write"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := body["_id"].(string)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, 1, s.TaskCount("ada@example.com"))

	rec, body = call(t, s, http.MethodPatch, "/tasks/"+id, access, `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "Write", body["title"])

	rec, _ = call(t, s, http.MethodPatch, "/tasks/"+id, access, `{"status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = call(t, s, http.MethodGet, "/tasks?status=completed&page=1&limit=5", access, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["totalResults"])
	assert.EqualValues(t, 1, body["totalPages"])

	rec, _ = call(t, s, http.MethodDelete, "/tasks/"+id, access, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec, body = call(t, s, http.MethodDelete, "/tasks/"+id, access, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Task not found", body["message"])

	assert.Equal(t, 2, s.Hits("DELETE /tasks/{id}"))
}

func TestLegacyFieldNames(t *testing.T) {
	s := newTestServer(t, WithLegacyFields(true))
	access, _ := loginToken(t, s)

	_, body := call(t, s, http.MethodPost, "/tasks", access, `{"title":"Old"}`)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "Old", body["name"])
	assert.NotContains(t, body, "_id")
	assert.NotContains(t, body, "title")
}

func TestLogoutRevokesTokens(t *testing.T) {
	s := newTestServer(t)
	access, refresh := loginToken(t, s)

	rec, _ := call(t, s, http.MethodPost, "/auth/logout", "", `{"refreshToken":"`+refresh+`"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = call(t, s, http.MethodGet, "/tasks", access, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = call(t, s, http.MethodPost, "/auth/logout", "", `{"refreshToken":"`+refresh+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRejectedPatchLeavesTaskUnchanged(t *testing.T) {
	s := newTestServer(t)
	access, _ := loginToken(t, s)

	_, body := call(t, s, http.MethodPost, "/tasks", access, `{"title":"Keep me","description":"as is"}`)
	id := body["_id"].(string)

	for _, patch := range []string{
		`{"title":"mutated","description":"changed","status":"bogus"}`,
		`{"title":"  ","status":"completed"}`,
	} {
		rec, _ := call(t, s, http.MethodPatch, "/tasks/"+id, access, patch)
		assert.Equal(t, http.StatusBadRequest, rec.Code, patch)
	}

	rec, body := call(t, s, http.MethodGet, "/tasks/"+id, access, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Keep me", body["title"])
	assert.Equal(t, "as is", body["description"])
	assert.Equal(t, "pending", body["status"])
}

func TestListPageBounds(t *testing.T) {
	s := newTestServer(t)
	access, _ := loginToken(t, s)
	for _, title := range []string{"a", "b", "c"} {
		call(t, s, http.MethodPost, "/tasks", access, `{"title":"`+title+`"}`)
	}

	tests := []struct {
		query     string
		wantCount int
		wantLimit int
	}{
		{query: "page=1&limit=2", wantCount: 2, wantLimit: 2},
		{query: "page=2&limit=2", wantCount: 1, wantLimit: 2},
		{query: "page=3&limit=2", wantCount: 0, wantLimit: 2},
		{query: "page=9223372036854775807&limit=10", wantCount: 0, wantLimit: 10},
		{query: "page=4611686018427387904&limit=100", wantCount: 0, wantLimit: 100},
		{query: "page=1&limit=100000", wantCount: 3, wantLimit: maxLimit},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec, body := call(t, s, http.MethodGet, "/tasks?"+tt.query, access, "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Len(t, body["results"], tt.wantCount)
			assert.EqualValues(t, tt.wantLimit, body["limit"])
			assert.EqualValues(t, 3, body["totalResults"])
		})
	}
}
