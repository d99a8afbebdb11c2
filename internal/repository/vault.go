package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"kawah-task/internal/model"
)

// Persisted credential keys. They match the local-storage keys the web
// front-end used, so exported profiles stay interchangeable.
const (
	KeyToken        = "token"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

// ErrMalformedProfile is returned when the persisted user cannot be decoded.
var ErrMalformedProfile = errors.New("malformed persisted user profile")

// CredentialVault is the session context object for one profile: every read
// and write of persisted credentials for that session goes through it.
type CredentialVault struct {
	store   CredentialStore
	profile string
}

func NewCredentialVault(store CredentialStore, profile string) *CredentialVault {
	return &CredentialVault{store: store, profile: profile}
}

// AccessToken returns the persisted access token, or "" when there is none.
func (v *CredentialVault) AccessToken(ctx context.Context) (string, error) {
	token, _, err := v.store.Get(ctx, v.profile, KeyToken)
	return token, err
}

// RefreshToken returns the persisted refresh token, or "" when there is none.
func (v *CredentialVault) RefreshToken(ctx context.Context) (string, error) {
	token, _, err := v.store.Get(ctx, v.profile, KeyRefreshToken)
	return token, err
}

// User decodes the persisted profile. It returns (nil, nil) when nothing is
// stored and ErrMalformedProfile when the stored value is not a user.
func (v *CredentialVault) User(ctx context.Context) (*model.User, error) {
	raw, ok, err := v.store.Get(ctx, v.profile, KeyUser)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var user model.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProfile, err)
	}
	return &user, nil
}

// Save persists a freshly issued session.
func (v *CredentialVault) Save(ctx context.Context, tokens model.Tokens, user model.User) error {
	encoded, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	return v.store.Set(ctx, v.profile, map[string]string{
		KeyToken:        tokens.Access.Token,
		KeyRefreshToken: tokens.Refresh.Token,
		KeyUser:         string(encoded),
	})
}

// DropUser removes only the cached profile.
func (v *CredentialVault) DropUser(ctx context.Context) error {
	return v.store.Delete(ctx, v.profile, KeyUser)
}

// Clear removes every persisted credential of the profile.
func (v *CredentialVault) Clear(ctx context.Context) error {
	return v.store.Delete(ctx, v.profile, KeyToken, KeyRefreshToken, KeyUser)
}
