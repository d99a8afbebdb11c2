package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kawah-task/internal/model"
)

func (b *Bot) startSignup(ctx context.Context, msg *tgbotapi.Message) error {
	s, err := b.sessionFor(ctx, msg.Chat.ID)
	if err != nil {
		return err
	}
	if s.auth.Authenticated() {
		return b.sendText(msg.Chat.ID, "You are already logged in. /logout first to create another account.")
	}
	b.setConversation(msg.Chat.ID, &conversationState{stage: stageSignupName})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 Creating an account.\n<b>Step 1:</b> what is your name?", cancelKeyboard())
}

func (b *Bot) startLogin(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.sessionFor(ctx, msg.Chat.ID); err != nil {
		return err
	}
	b.setConversation(msg.Chat.ID, &conversationState{stage: stageLoginEmail})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🔑 Logging in.\nWhat is your email?", cancelKeyboard())
}

func (b *Bot) handleSignupStep(ctx context.Context, msg *tgbotapi.Message, state *conversationState) error {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch state.stage {
	case stageSignupName:
		state.signup.Name = text
		state.stage = stageSignupEmail
		return b.sendWithReplyMarkup(chatID, "<b>Step 2:</b> your email address?", cancelKeyboard())
	case stageSignupEmail:
		state.signup.Email = text
		state.stage = stageSignupPassword
		return b.sendWithReplyMarkup(chatID, "<b>Step 3:</b> choose a password. I will delete your message right away.", cancelKeyboard())
	case stageSignupPassword:
		b.deleteMessage(chatID, msg.MessageID)
		state.signup.Password = msg.Text
		state.stage = stageSignupConfirm
		return b.sendWithReplyMarkup(chatID, "<b>Step 4:</b> type the password again.", cancelKeyboard())
	case stageSignupConfirm:
		b.deleteMessage(chatID, msg.MessageID)
		state.signup.ConfirmPassword = msg.Text
		b.clearConversation(chatID)
		return b.finishSignup(ctx, chatID, state.signup)
	}
	return nil
}

func (b *Bot) finishSignup(ctx context.Context, chatID int64, form model.SignupForm) error {
	if err := model.Validate(form); err != nil {
		return b.sendText(chatID, "⚠️ "+escape(err.Error())+"\nStart again with /signup.")
	}
	s, err := b.sessionFor(ctx, chatID)
	if err != nil {
		return err
	}
	reg := form.Registration()
	if err := s.auth.Register(ctx, reg.Name, reg.Email, reg.Password); err != nil {
		b.log.WithError(err).WithField("chat", chatID).Info("signup failed")
		return b.sendText(chatID, "⚠️ "+escape(s.auth.Err()))
	}
	return b.sendText(chatID, fmt.Sprintf("✅ Account for <b>%s</b> created. Now /login.", escape(reg.Email)))
}

func (b *Bot) handleLoginStep(ctx context.Context, msg *tgbotapi.Message, state *conversationState) error {
	chatID := msg.Chat.ID
	switch state.stage {
	case stageLoginEmail:
		state.email = strings.TrimSpace(msg.Text)
		state.stage = stageLoginPassword
		return b.sendWithReplyMarkup(chatID, "Your password? I will delete your message right away.", cancelKeyboard())
	case stageLoginPassword:
		b.deleteMessage(chatID, msg.MessageID)
		b.clearConversation(chatID)
		return b.finishLogin(ctx, chatID, state.email, msg.Text)
	}
	return nil
}

func (b *Bot) finishLogin(ctx context.Context, chatID int64, email, password string) error {
	s, err := b.sessionFor(ctx, chatID)
	if err != nil {
		return err
	}
	user, err := s.auth.Login(ctx, email, password)
	if err != nil {
		b.log.WithError(err).WithField("chat", chatID).Info("login failed")
		return b.sendText(chatID, "⚠️ "+escape(s.auth.Err())+"\nTry /login again.")
	}
	s.tasks.Reset()
	s.setView(model.TaskFilter{}, 1)
	return b.sendText(chatID, fmt.Sprintf("✅ Welcome, <b>%s</b>! Your board: /tasks", escape(displayName(user))))
}

func (b *Bot) handleLogout(ctx context.Context, msg *tgbotapi.Message) error {
	s, err := b.sessionFor(ctx, msg.Chat.ID)
	if err != nil {
		return err
	}
	if !s.auth.Authenticated() {
		return b.sendText(msg.Chat.ID, "You are not logged in.")
	}
	err = s.auth.Logout(ctx)
	s.tasks.Reset()
	s.setView(model.TaskFilter{}, 1)
	if err != nil {
		return b.sendText(msg.Chat.ID, "👋 Logged out here. The server reported: "+escape(s.auth.Err()))
	}
	return b.sendText(msg.Chat.ID, "👋 Logged out.")
}

func (b *Bot) handleWhoAmI(ctx context.Context, msg *tgbotapi.Message) error {
	s, err := b.sessionFor(ctx, msg.Chat.ID)
	if err != nil {
		return err
	}
	user := s.auth.User()
	if user == nil {
		return b.sendText(msg.Chat.ID, "You are not logged in. Use /login or /signup.")
	}

	var sb strings.Builder
	sb.WriteString("👤 <b>Account</b>\n")
	sb.WriteString(fmt.Sprintf("• <b>Name:</b> %s\n", escape(user.Name)))
	sb.WriteString(fmt.Sprintf("• <b>Email:</b> %s\n", escape(user.Email)))
	if user.Role != "" {
		sb.WriteString(fmt.Sprintf("• <b>Role:</b> %s\n", escape(user.Role)))
	}
	expires, err := s.auth.ExpiresAt(ctx)
	switch {
	case err != nil:
		b.log.WithError(err).Warn("read token expiry")
	case expires.IsZero():
	case expires.Before(time.Now()):
		sb.WriteString("• <b>Session:</b> expired, the next request will ask you to log in\n")
	default:
		sb.WriteString(fmt.Sprintf("• <b>Session until:</b> %s\n", expires.Local().Format("2006-01-02 15:04")))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(sb.String()))
}

func displayName(user *model.User) string {
	if user == nil {
		return ""
	}
	if name := strings.TrimSpace(user.Name); name != "" {
		return name
	}
	return user.Email
}
