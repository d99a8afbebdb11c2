package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"kawah-task/internal/model"
	"kawah-task/internal/service"
)

const (
	cbFilterPrefix  = "filter:"
	cbPagePrefix    = "page:"
	cbDonePrefix    = "done:"
	cbDeletePrefix  = "delete:"
	cbConfirmPrefix = "confirm:"
	cbCancelPrefix  = "cancel:"

	filterAll = "all"
)

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	s, ok, err := b.requireAuth(ctx, msg.Chat.ID)
	if !ok {
		return err
	}

	var filter model.TaskFilter
	if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" && arg != filterAll {
		status, valid := model.ParseStatus(arg)
		if !valid {
			return b.sendText(msg.Chat.ID, "Unknown status. Use pending, in-progress or completed.")
		}
		filter.Status = status
	}
	s.setView(filter, 1)
	return b.sendBoard(ctx, msg.Chat.ID, s)
}

func (b *Bot) handleFind(ctx context.Context, msg *tgbotapi.Message) error {
	query := strings.TrimSpace(msg.CommandArguments())
	if query == "" {
		return b.sendText(msg.Chat.ID, "What should I look for? Example: /find report")
	}
	s, ok, err := b.requireAuth(ctx, msg.Chat.ID)
	if !ok {
		return err
	}
	s.setView(model.TaskFilter{Title: query}, 1)
	return b.sendBoard(ctx, msg.Chat.ID, s)
}

// sendBoard lists the chat's current view and renders it with filter and
// pagination buttons.
func (b *Bot) sendBoard(ctx context.Context, chatID int64, s *chatSession) error {
	filter, page := s.view()
	result, err := s.tasks.List(ctx, filter, page, service.DefaultPageSize)
	if err != nil {
		return b.reportTaskError(chatID, s, err)
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Tasks</b>")
	if filter.Status != "" {
		builder.WriteString(" · " + escape(filter.Status.Label()))
	}
	if filter.Title != "" {
		builder.WriteString(fmt.Sprintf(" · “%s”", escape(filter.Title)))
	}
	builder.WriteByte('\n')

	if len(result.Results) == 0 {
		builder.WriteString("\nNothing here. Add a task with /newtask.")
	} else {
		builder.WriteString(fmt.Sprintf("Page %d of %d · %d total\n\n", result.Page, max(result.TotalPages, 1), result.TotalResults))
		for _, task := range result.Results {
			builder.WriteString(formatTask(task))
		}
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = boardKeyboard(result, filter)
	_, err = b.api.Send(msg)
	return err
}

func (b *Bot) handleShowTask(ctx context.Context, msg *tgbotapi.Message) error {
	id, ok := taskIDArg(msg)
	if !ok {
		return b.sendText(msg.Chat.ID, "Give me a task ID: /task 64f1c2...")
	}
	s, ok, err := b.requireAuth(ctx, msg.Chat.ID)
	if !ok {
		return err
	}
	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		return b.reportTaskError(msg.Chat.ID, s, err)
	}
	return b.sendWithReplyMarkup(msg.Chat.ID, formatTaskDetails(*task), taskKeyboard(*task))
}

func (b *Bot) startNewTask(ctx context.Context, msg *tgbotapi.Message) error {
	if _, ok, err := b.requireAuth(ctx, msg.Chat.ID); !ok {
		return err
	}
	b.setConversation(msg.Chat.ID, &conversationState{stage: stageTaskTitle})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> what is it called?", cancelKeyboard())
}

func (b *Bot) handleNewTaskStep(ctx context.Context, msg *tgbotapi.Message, state *conversationState) error {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch state.stage {
	case stageTaskTitle:
		if text == "" {
			return b.sendWithReplyMarkup(chatID, "The title cannot be empty. What is the task called?", cancelKeyboard())
		}
		state.draft.Title = text
		state.stage = stageTaskDescription
		return b.sendWithReplyMarkup(chatID, "✏️ A short description (or skip).", skipKeyboard())
	case stageTaskDescription:
		if !isSkipInput(text) {
			state.draft.Description = text
		}
		state.stage = stageTaskStatus
		return b.sendWithReplyMarkup(chatID, "📌 Status? Skip for pending.", statusKeyboard())
	case stageTaskStatus:
		if !isSkipInput(text) {
			status, ok := model.ParseStatus(text)
			if !ok {
				return b.sendWithReplyMarkup(chatID, "Pick one of the statuses below.", statusKeyboard())
			}
			state.draft.Status = status
		}
		b.clearConversation(chatID)
		return b.finishNewTask(ctx, chatID, state.draft)
	}
	return nil
}

func (b *Bot) finishNewTask(ctx context.Context, chatID int64, draft model.TaskDraft) error {
	s, ok, err := b.requireAuth(ctx, chatID)
	if !ok {
		return err
	}
	task, err := s.tasks.Create(ctx, draft)
	if err != nil {
		return b.reportTaskError(chatID, s, err)
	}
	b.log.WithFields(logrus.Fields{"chat": chatID, "task": task.ID}).Info("task created from chat")
	if err := b.sendText(chatID, "✅ <b>Task saved</b>\n"+formatTaskDetails(*task)); err != nil {
		return err
	}
	return b.sendBoard(ctx, chatID, s)
}

func (b *Bot) startEditTask(ctx context.Context, msg *tgbotapi.Message) error {
	id, ok := taskIDArg(msg)
	if !ok {
		return b.sendText(msg.Chat.ID, "Give me a task ID: /edit 64f1c2...")
	}
	s, ok, err := b.requireAuth(ctx, msg.Chat.ID)
	if !ok {
		return err
	}
	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		return b.reportTaskError(msg.Chat.ID, s, err)
	}

	b.setConversation(msg.Chat.ID, &conversationState{stage: stageEditTitle, taskID: task.ID})
	text := fmt.Sprintf("✏️ Editing <b>%s</b>.\n<b>Step 1:</b> new title (or skip).", escape(task.Title))
	return b.sendWithReplyMarkup(msg.Chat.ID, text, skipKeyboard())
}

func (b *Bot) handleEditStep(ctx context.Context, msg *tgbotapi.Message, state *conversationState) error {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	switch state.stage {
	case stageEditTitle:
		if !isSkipInput(text) && text != "" {
			state.patch.Title = &text
		}
		state.stage = stageEditDescription
		return b.sendWithReplyMarkup(chatID, "<b>Step 2:</b> new description (or skip).", skipKeyboard())
	case stageEditDescription:
		if !isSkipInput(text) {
			state.patch.Description = &text
		}
		state.stage = stageEditStatus
		return b.sendWithReplyMarkup(chatID, "<b>Step 3:</b> new status (or skip).", statusKeyboard())
	case stageEditStatus:
		if !isSkipInput(text) {
			status, ok := model.ParseStatus(text)
			if !ok {
				return b.sendWithReplyMarkup(chatID, "Pick one of the statuses below.", statusKeyboard())
			}
			state.patch.Status = &status
		}
		b.clearConversation(chatID)
		if state.patch.Empty() {
			return b.sendText(chatID, "Nothing changed.")
		}
		return b.applyPatch(ctx, chatID, state.taskID, state.patch, "✅ Task updated.")
	}
	return nil
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	id, ok := taskIDArg(msg)
	if !ok {
		return b.sendText(msg.Chat.ID, "Give me a task ID: /done 64f1c2...")
	}
	return b.completeTask(ctx, msg.Chat.ID, id)
}

func (b *Bot) completeTask(ctx context.Context, chatID int64, id string) error {
	status := model.StatusCompleted
	return b.applyPatch(ctx, chatID, id, model.TaskPatch{Status: &status}, "✅ Done!")
}

func (b *Bot) applyPatch(ctx context.Context, chatID int64, id string, patch model.TaskPatch, okText string) error {
	s, ok, err := b.requireAuth(ctx, chatID)
	if !ok {
		return err
	}
	task, err := s.tasks.Update(ctx, id, patch)
	if err != nil {
		return b.reportTaskError(chatID, s, err)
	}
	if err := b.sendText(chatID, okText+"\n"+formatTaskDetails(*task)); err != nil {
		return err
	}
	return b.sendBoard(ctx, chatID, s)
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	id, ok := taskIDArg(msg)
	if !ok {
		return b.sendText(msg.Chat.ID, "Give me a task ID: /delete 64f1c2...")
	}
	return b.askDeleteConfirmation(ctx, msg.Chat.ID, id)
}

func (b *Bot) askDeleteConfirmation(ctx context.Context, chatID int64, id string) error {
	s, ok, err := b.requireAuth(ctx, chatID)
	if !ok {
		return err
	}
	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		return b.reportTaskError(chatID, s, err)
	}
	text := fmt.Sprintf("Delete “%s”?", escape(task.Title))
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard(task.ID))
}

func (b *Bot) deleteTask(ctx context.Context, chatID int64, id string) error {
	s, ok, err := b.requireAuth(ctx, chatID)
	if !ok {
		return err
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return b.reportTaskError(chatID, s, err)
	}
	if err := b.sendText(chatID, "🗑 Task deleted."); err != nil {
		return err
	}
	return b.sendBoard(ctx, chatID, s)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data
	b.log.WithFields(logrus.Fields{"chat": chatID, "data": data}).Info("callback")
	b.ackCallback(cb.ID, "")

	switch {
	case strings.HasPrefix(data, cbFilterPrefix):
		s, ok, err := b.requireAuth(ctx, chatID)
		if !ok {
			return err
		}
		var filter model.TaskFilter
		if raw := strings.TrimPrefix(data, cbFilterPrefix); raw != filterAll {
			status, valid := model.ParseStatus(raw)
			if !valid {
				return nil
			}
			filter.Status = status
		}
		current, _ := s.view()
		filter.Title = current.Title
		s.setView(filter, 1)
		return b.sendBoard(ctx, chatID, s)
	case strings.HasPrefix(data, cbPagePrefix):
		s, ok, err := b.requireAuth(ctx, chatID)
		if !ok {
			return err
		}
		page, err := strconv.Atoi(strings.TrimPrefix(data, cbPagePrefix))
		if err != nil {
			return nil
		}
		filter, _ := s.view()
		s.setView(filter, page)
		return b.sendBoard(ctx, chatID, s)
	case strings.HasPrefix(data, cbDonePrefix):
		return b.completeTask(ctx, chatID, strings.TrimPrefix(data, cbDonePrefix))
	case strings.HasPrefix(data, cbDeletePrefix):
		return b.askDeleteConfirmation(ctx, chatID, strings.TrimPrefix(data, cbDeletePrefix))
	case strings.HasPrefix(data, cbConfirmPrefix):
		return b.deleteTask(ctx, chatID, strings.TrimPrefix(data, cbConfirmPrefix))
	case strings.HasPrefix(data, cbCancelPrefix):
		return b.sendText(chatID, "↩️ Kept.")
	default:
		return nil
	}
}

func taskIDArg(msg *tgbotapi.Message) (string, bool) {
	id := strings.TrimSpace(msg.CommandArguments())
	if id == "" || strings.ContainsAny(id, " /") {
		return "", false
	}
	return id, true
}
