package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kawah-task/internal/model"
)

// CredentialStore persists string values per profile. It plays the role a
// browser's local storage plays for a single-page app.
type CredentialStore interface {
	Get(ctx context.Context, profile, key string) (string, bool, error)
	Set(ctx context.Context, profile string, values map[string]string) error
	Delete(ctx context.Context, profile string, keys ...string) error
}

// CredentialRepository is the SQLite-backed CredentialStore.
type CredentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) Get(ctx context.Context, profile, key string) (string, bool, error) {
	var cred model.Credential
	err := r.db.WithContext(ctx).Where("profile = ? AND name = ?", profile, key).First(&cred).Error
	switch {
	case err == nil:
		return cred.Value, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("find credential %s: %w", key, err)
	}
}

// Set upserts all values in one transaction so a profile is never left
// half-written.
func (r *CredentialRepository) Set(ctx context.Context, profile string, values map[string]string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			cred := model.Credential{Profile: profile, Name: key, Value: value}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "profile"}, {Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&cred).Error
			if err != nil {
				return fmt.Errorf("save credential %s: %w", key, err)
			}
		}
		return nil
	})
}

func (r *CredentialRepository) Delete(ctx context.Context, profile string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("profile = ? AND name IN ?", profile, keys).
		Delete(&model.Credential{}).Error; err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}
