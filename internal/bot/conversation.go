package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kawah-task/internal/model"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageSignupName
	stageSignupEmail
	stageSignupPassword
	stageSignupConfirm
	stageLoginEmail
	stageLoginPassword
	stageTaskTitle
	stageTaskDescription
	stageTaskStatus
	stageEditTitle
	stageEditDescription
	stageEditStatus
)

// conversationState is one wizard in progress. Only the fields of the
// running wizard are used.
type conversationState struct {
	stage  conversationStage
	signup model.SignupForm
	email  string
	draft  model.TaskDraft
	taskID string
	patch  model.TaskPatch
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.Chat.ID)
	if state == nil {
		return nil
	}

	switch state.stage {
	case stageSignupName, stageSignupEmail, stageSignupPassword, stageSignupConfirm:
		return b.handleSignupStep(ctx, msg, state)
	case stageLoginEmail, stageLoginPassword:
		return b.handleLoginStep(ctx, msg, state)
	case stageTaskTitle, stageTaskDescription, stageTaskStatus:
		return b.handleNewTaskStep(ctx, msg, state)
	case stageEditTitle, stageEditDescription, stageEditStatus:
		return b.handleEditStep(ctx, msg, state)
	default:
		b.clearConversation(msg.Chat.ID)
		return b.sendText(msg.Chat.ID, "Input reset. Start again from /help.")
	}
}
