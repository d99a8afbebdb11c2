package service

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kawah-task/internal/apiclient"
	"kawah-task/internal/fakeapi"
	"kawah-task/internal/model"
	"kawah-task/internal/repository"
)

// memStore is an in-memory repository.CredentialStore.
type memStore struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]map[string]string)}
}

func (m *memStore) Get(_ context.Context, profile, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[profile][key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, profile string, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[profile] == nil {
		m.data[profile] = make(map[string]string)
	}
	for k, v := range values {
		m.data[profile][k] = v
	}
	return nil
}

func (m *memStore) Delete(_ context.Context, profile string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data[profile], k)
	}
	return nil
}

func (m *memStore) keys(profile string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data[profile])
}

type harness struct {
	api     *fakeapi.Server
	store   *memStore
	vault   *repository.CredentialVault
	client  *apiclient.Client
	session *SessionService
	tasks   *TaskService
	log     *test.Hook
}

func newHarness(t *testing.T, opts ...fakeapi.Option) *harness {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	api := fakeapi.New(append([]fakeapi.Option{fakeapi.WithLogger(log)}, opts...)...)
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	store := newMemStore()
	vault := repository.NewCredentialVault(store, "chat:1")
	client, err := apiclient.New(apiclient.Config{BaseURL: srv.URL + fakeapi.Prefix}, vault, apiclient.WithLogger(log))
	require.NoError(t, err)

	return &harness{
		api:     api,
		store:   store,
		vault:   vault,
		client:  client,
		session: NewSessionService(client, vault, log),
		tasks:   NewTaskService(client, log),
		log:     hook,
	}
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	h.api.SeedUser("Ada", "ada@example.com", "secret")
	_, err := h.session.Login(context.Background(), "ada@example.com", "secret")
	require.NoError(t, err)
}

func TestLoginPersistsBothTokens(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	access, err := h.vault.AccessToken(ctx)
	require.NoError(t, err)
	refresh, err := h.vault.RefreshToken(ctx)
	require.NoError(t, err)
	user, err := h.vault.User(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)
	require.NotNil(t, user)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, StateAuthenticated, h.session.State())
	assert.False(t, h.session.Loading())
	assert.Empty(t, h.session.Err())

	exp, err := h.session.ExpiresAt(ctx)
	require.NoError(t, err)
	assert.False(t, exp.IsZero())
}

func TestLoginFailureKeepsStoreEmpty(t *testing.T) {
	h := newHarness(t)
	h.api.SeedUser("Ada", "ada@example.com", "secret")

	_, err := h.session.Login(context.Background(), "ada@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apiclient.ErrUnauthorized))
	assert.Equal(t, "Incorrect email or password", h.session.Err())
	assert.Equal(t, StateAnonymous, h.session.State())
	assert.Equal(t, 0, h.store.keys("chat:1"))
}

func TestLoginValidatesBeforeNetwork(t *testing.T) {
	h := newHarness(t)

	_, err := h.session.Login(context.Background(), "not-an-email", "")
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "Email")
	assert.Contains(t, verr.Fields, "Password")
	assert.Equal(t, 0, h.api.Hits("POST /auth/login"))
	assert.Equal(t, StateAnonymous, h.session.State())
}

func TestRegisterDoesNotStartSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.session.Register(ctx, "Ada", "ada@example.com", "secret"))
	assert.Equal(t, StateAnonymous, h.session.State())
	assert.Equal(t, 0, h.store.keys("chat:1"))

	err := h.session.Register(ctx, "Ada", "ada@example.com", "secret")
	require.Error(t, err)
	assert.Equal(t, "Email already taken", h.session.Err())
	assert.Equal(t, "Email already taken", apiclient.ServerMessage(err))
	assert.Equal(t, StateAnonymous, h.session.State())
}

func TestRegisterWhileLoggedInKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()
	access, err := h.vault.AccessToken(ctx)
	require.NoError(t, err)

	require.NoError(t, h.session.Register(ctx, "Bob", "bob@example.com", "pw"))
	assert.Equal(t, StateAuthenticated, h.session.State())
	require.NotNil(t, h.session.User())
	assert.Equal(t, "ada@example.com", h.session.User().Email)

	stillAccess, err := h.vault.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, access, stillAccess)

	// A rejected registration does not end the session either.
	require.Error(t, h.session.Register(ctx, "Bob", "bob@example.com", "pw"))
	assert.Equal(t, StateAuthenticated, h.session.State())
	assert.Equal(t, "Email already taken", h.session.Err())
}

func TestLogoutClearsEvenWhenServerFails(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	// The server forgets the refresh token, so logout answers 404.
	h.api.RevokeSessions()

	err := h.session.Logout(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apiclient.ErrNotFound))
	assert.Equal(t, StateAnonymous, h.session.State())
	assert.Nil(t, h.session.User())
	assert.Equal(t, 0, h.store.keys("chat:1"))
}

func TestLogoutWithoutRefreshTokenSkipsServer(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.session.Logout(context.Background()))
	assert.Equal(t, 0, h.api.Hits("POST /auth/logout"))
	assert.Equal(t, StateAnonymous, h.session.State())
}

func TestRestore(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	restored := NewSessionService(h.client, h.vault, logrus.New())
	require.NoError(t, restored.Restore(ctx))
	assert.Equal(t, StateAuthenticated, restored.State())
	require.NotNil(t, restored.User())
	assert.Equal(t, "Ada", restored.User().Name)
	assert.Equal(t, 1, h.api.Hits("POST /auth/login"))
}

func TestRestoreDropsMalformedProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Set(ctx, "chat:1", map[string]string{
		repository.KeyToken: "t",
		repository.KeyUser:  "{not json",
	}))

	require.NoError(t, h.session.Restore(ctx))
	assert.Equal(t, StateAnonymous, h.session.State())
	_, ok, _ := h.store.Get(ctx, "chat:1", repository.KeyUser)
	assert.False(t, ok)
}

func TestUnauthorizedClearsAllKeysAndRedirects(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	var redirected int
	h.client.OnUnauthorized(func(context.Context) { redirected++ })
	h.api.RevokeSessions()

	_, err := h.tasks.List(ctx, model.TaskFilter{}, 1, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apiclient.ErrUnauthorized))
	assert.Equal(t, 1, redirected)
	assert.Equal(t, 0, h.store.keys("chat:1"))
	assert.Equal(t, StateAnonymous, h.session.State())
	assert.Nil(t, h.session.User())
	assert.Equal(t, msgSessionExpired, h.tasks.Err())
}
