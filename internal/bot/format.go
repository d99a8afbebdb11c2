package bot

import (
	"fmt"
	"html"
	"strings"

	"kawah-task/internal/model"
)

func statusIcon(status model.TaskStatus) string {
	switch status {
	case model.StatusInProgress:
		return "🔥"
	case model.StatusCompleted:
		return "✅"
	default:
		return "🕒"
	}
}

func formatTask(task model.Task) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%s</b>\n", statusIcon(task.Status), escape(task.Title)))
	b.WriteString(fmt.Sprintf("   <code>%s</code> · %s\n", escape(task.ID), escape(task.Status.Label())))
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("   📝 %s\n", escape(shortTitle(task.Description, 80))))
	}
	b.WriteByte('\n')
	return b.String()
}

func formatTaskDetails(task model.Task) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%s</b>\n", statusIcon(task.Status), escape(task.Title)))
	b.WriteString(fmt.Sprintf("• <b>ID:</b> <code>%s</code>\n", escape(task.ID)))
	b.WriteString(fmt.Sprintf("• <b>Status:</b> %s\n", escape(task.Status.Label())))
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("• <b>Description:</b> %s\n", escape(task.Description)))
	}
	if !task.CreatedAt.IsZero() {
		b.WriteString(fmt.Sprintf("• <b>Created:</b> %s\n", task.CreatedAt.Local().Format("2006-01-02 15:04")))
	}
	if !task.UpdatedAt.IsZero() && !task.UpdatedAt.Equal(task.CreatedAt) {
		b.WriteString(fmt.Sprintf("• <b>Updated:</b> %s\n", task.UpdatedAt.Local().Format("2006-01-02 15:04")))
	}
	return strings.TrimSpace(b.String())
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func escape(s string) string {
	return html.EscapeString(s)
}
