package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kawah-task/internal/model"
)

const (
	btnSkip          = "⏭️ Skip"
	btnCancelDialog  = "⏪ Cancel input"
	menuLabelNewTask = "➕ New task"
	menuLabelTasks   = "📋 Tasks"
	menuLabelAccount = "👤 Account"
	menuLabelHelp    = "ℹ️ Help"
)

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelNewTask),
			tgbotapi.NewKeyboardButton(menuLabelTasks),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelAccount),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func statusKeyboard() tgbotapi.ReplyKeyboardMarkup {
	row := make([]tgbotapi.KeyboardButton, 0, len(model.Statuses))
	for _, s := range model.Statuses {
		row = append(row, tgbotapi.NewKeyboardButton(s.Label()))
	}
	kb := tgbotapi.NewReplyKeyboard(
		row,
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

// boardKeyboard has one row per task, then the status filters, then paging.
func boardKeyboard(page *model.TaskPage, filter model.TaskFilter) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, task := range page.Results {
		var row []tgbotapi.InlineKeyboardButton
		if task.Status != model.StatusCompleted {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData("✅ "+shortTitle(task.Title, 24), cbDonePrefix+task.ID))
		} else {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData("☑️ "+shortTitle(task.Title, 24), cbDonePrefix+task.ID))
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("🗑", cbDeletePrefix+task.ID))
		rows = append(rows, row)
	}

	filters := []tgbotapi.InlineKeyboardButton{filterButton("All", filterAll, filter.Status == "")}
	for _, s := range model.Statuses {
		filters = append(filters, filterButton(s.Label(), string(s), filter.Status == s))
	}
	rows = append(rows, filters)

	var paging []tgbotapi.InlineKeyboardButton
	if page.Page > 1 {
		paging = append(paging, tgbotapi.NewInlineKeyboardButtonData("◀️ Prev", fmt.Sprintf("%s%d", cbPagePrefix, page.Page-1)))
	}
	if page.Page < page.TotalPages {
		paging = append(paging, tgbotapi.NewInlineKeyboardButtonData("Next ▶️", fmt.Sprintf("%s%d", cbPagePrefix, page.Page+1)))
	}
	if len(paging) > 0 {
		rows = append(rows, paging)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func filterButton(label, value string, active bool) tgbotapi.InlineKeyboardButton {
	if active {
		label = "• " + label
	}
	return tgbotapi.NewInlineKeyboardButtonData(label, cbFilterPrefix+value)
}

func taskKeyboard(task model.Task) tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	if task.Status != model.StatusCompleted {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("✅ Done", cbDonePrefix+task.ID))
	}
	row = append(row, tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", cbDeletePrefix+task.ID))
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func confirmKeyboard(taskID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Delete", cbConfirmPrefix+taskID),
			tgbotapi.NewInlineKeyboardButtonData("↩️ Keep", cbCancelPrefix+taskID),
		),
	)
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "skip"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "cancel"
}
