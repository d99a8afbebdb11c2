package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"kawah-task/internal/model"
)

// ChatRepository tracks the Telegram chats the bot has talked to.
type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// UpsertFromTelegram finds or creates a chat and refreshes its display info.
func (r *ChatRepository) UpsertFromTelegram(ctx context.Context, telegramID int64, firstName, username string) (*model.Chat, error) {
	var chat model.Chat
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", telegramID).First(&chat).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"first_name": firstName,
			"username":   username,
		}
		if err := db.Model(&chat).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update chat: %w", err)
		}
		return &chat, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		chat = model.Chat{
			TelegramID:    telegramID,
			FirstName:     firstName,
			Username:      username,
			DigestEnabled: true,
		}
		if err := db.Create(&chat).Error; err != nil {
			return nil, fmt.Errorf("create chat: %w", err)
		}
		return &chat, nil
	default:
		return nil, fmt.Errorf("find chat: %w", err)
	}
}

func (r *ChatRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.Chat, error) {
	var chat model.Chat
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&chat).Error; err != nil {
		return nil, err
	}
	return &chat, nil
}

// SetDigest toggles the periodic digest for a chat.
func (r *ChatRepository) SetDigest(ctx context.Context, telegramID int64, enabled bool) error {
	res := r.db.WithContext(ctx).Model(&model.Chat{}).
		Where("telegram_id = ?", telegramID).
		Update("digest_enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("set digest: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListDigestSubscribers returns chats that want the periodic digest.
func (r *ChatRepository) ListDigestSubscribers(ctx context.Context) ([]model.Chat, error) {
	var chats []model.Chat
	if err := r.db.WithContext(ctx).Where("digest_enabled = ?", true).
		Order("telegram_id ASC").Find(&chats).Error; err != nil {
		return nil, err
	}
	return chats, nil
}
