package repository

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"kawah-task/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	log, _ := test.NewNullLogger()
	db, err := NewDB(filepath.Join(t.TempDir(), "nested", "test.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestCredentialRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(newTestDB(t))

	_, ok, err := repo.Get(ctx, "42", KeyToken)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, "42", map[string]string{KeyToken: "a1", KeyRefreshToken: "r1"}))
	require.NoError(t, repo.Set(ctx, "42", map[string]string{KeyToken: "a2"}))

	value, ok, err := repo.Get(ctx, "42", KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a2", value)

	// Profiles are isolated.
	_, ok, err = repo.Get(ctx, "43", KeyToken)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Delete(ctx, "42", KeyToken, KeyRefreshToken))
	_, ok, err = repo.Get(ctx, "42", KeyRefreshToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCredentialVault(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(newTestDB(t))
	vault := NewCredentialVault(repo, "7")

	user, err := vault.User(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)

	tokens := model.Tokens{
		Access:  model.Token{Token: "access-1"},
		Refresh: model.Token{Token: "refresh-1"},
	}
	require.NoError(t, vault.Save(ctx, tokens, model.User{ID: "u1", Name: "Jane", Email: "jane@x.com"}))

	access, err := vault.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-1", access)
	refresh, err := vault.RefreshToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", refresh)

	user, err = vault.User(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Jane", user.Name)

	require.NoError(t, vault.Clear(ctx))
	access, err = vault.AccessToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, access)
	user, err = vault.User(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestCredentialVaultMalformedUser(t *testing.T) {
	ctx := context.Background()
	repo := NewCredentialRepository(newTestDB(t))
	require.NoError(t, repo.Set(ctx, "9", map[string]string{KeyUser: "{not json"}))

	vault := NewCredentialVault(repo, "9")
	_, err := vault.User(ctx)
	assert.True(t, errors.Is(err, ErrMalformedProfile))

	require.NoError(t, vault.DropUser(ctx))
	user, err := vault.User(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestChatRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))

	chat, err := repo.UpsertFromTelegram(ctx, 100, "Jane", "jane")
	require.NoError(t, err)
	assert.True(t, chat.DigestEnabled)

	_, err = repo.UpsertFromTelegram(ctx, 100, "Janet", "janet")
	require.NoError(t, err)
	_, err = repo.UpsertFromTelegram(ctx, 200, "Bob", "")
	require.NoError(t, err)

	found, err := repo.FindByTelegramID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "Janet", found.FirstName)

	require.NoError(t, repo.SetDigest(ctx, 200, false))
	subs, err := repo.ListDigestSubscribers(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(100), subs[0].TelegramID)

	assert.ErrorIs(t, repo.SetDigest(ctx, 999, true), gorm.ErrRecordNotFound)
}

func TestRedisCredentialRepository(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at localhost:6379: %v", err)
	}
	defer client.Close()

	repo := NewRedisCredentialRepository(client, "kawah:test:")
	defer client.Del(context.Background(), "kawah:test:p1")

	require.NoError(t, repo.Set(ctx, "p1", map[string]string{KeyToken: "t", KeyUser: `{"id":"u"}`}))
	value, ok, err := repo.Get(ctx, "p1", KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "t", value)

	vault := NewCredentialVault(repo, "p1")
	user, err := vault.User(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u", user.ID)

	require.NoError(t, vault.Clear(ctx))
	_, ok, err = repo.Get(ctx, "p1", KeyToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithPragmas(t *testing.T) {
	dsn := withPragmas("data/kawah.db")
	assert.True(t, strings.HasPrefix(dsn, "data/kawah.db?"))
	assert.Contains(t, dsn, "_busy_timeout=5000")
	assert.Contains(t, dsn, "_journal_mode=WAL")

	dsn = withPragmas("file:kawah.db?_journal_mode=DELETE")
	assert.Contains(t, dsn, "_journal_mode=DELETE")
	assert.NotContains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "&_busy_timeout=5000")

	assert.True(t, isMemoryDSN("file::memory:?cache=shared"))
	assert.False(t, isMemoryDSN("kawah.db"))
}
