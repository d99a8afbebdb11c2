package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"kawah-task/internal/apiclient"
	"kawah-task/internal/service"
)

func (b *Bot) handleDigest(ctx context.Context, msg *tgbotapi.Message) error {
	if b.deps.Chats == nil {
		return b.sendText(msg.Chat.ID, "Digests are not available.")
	}
	arg := strings.ToLower(strings.TrimSpace(msg.CommandArguments()))
	var enabled bool
	switch arg {
	case "on":
		enabled = true
	case "off":
		enabled = false
	case "", "now":
		s, ok, err := b.requireAuth(ctx, msg.Chat.ID)
		if !ok {
			return err
		}
		return b.sendDigest(ctx, msg.Chat.ID, s, time.Now())
	default:
		return b.sendText(msg.Chat.ID, "Use /digest on, /digest off or /digest now.")
	}

	if _, err := b.deps.Chats.UpsertFromTelegram(ctx, msg.Chat.ID, msg.From.FirstName, msg.From.UserName); err != nil {
		return err
	}
	if err := b.deps.Chats.SetDigest(ctx, msg.Chat.ID, enabled); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(msg.Chat.ID, "Send /start first.")
		}
		return err
	}
	if enabled {
		return b.sendText(msg.Chat.ID, "🔔 Digest enabled.")
	}
	return b.sendText(msg.Chat.ID, "🔕 Digest disabled.")
}

// SendDigests sends the open-task summary to every subscribed chat that is
// logged in.
func (b *Bot) SendDigests(ctx context.Context) error {
	if b.deps.Chats == nil {
		return nil
	}
	chats, err := b.deps.Chats.ListDigestSubscribers(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, chat := range chats {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		log := b.log.WithField("chat", chat.TelegramID)
		s, err := b.sessionFor(ctx, chat.TelegramID)
		if err != nil {
			log.WithError(err).Warn("digest session")
			continue
		}
		if !s.auth.Authenticated() {
			continue
		}
		if err := b.sendDigest(ctx, chat.TelegramID, s, now); err != nil {
			log.WithError(err).Warn("send digest")
		}
	}
	return nil
}

// sendDigest lists through its own data layer so the chat's board is left
// as it was.
func (b *Bot) sendDigest(ctx context.Context, chatID int64, s *chatSession, now time.Time) error {
	lister := service.NewTaskService(s.client, b.log.WithField("chat", chatID))
	text, err := b.deps.Digest.Summary(ctx, lister, s.auth.User(), now)
	if err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			return nil
		}
		return b.sendText(chatID, "⚠️ "+escape(lister.Err()))
	}
	return b.sendText(chatID, text)
}
