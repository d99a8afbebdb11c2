package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"kawah-task/internal/model"
)

// digestPageSize caps how many tasks of each status a digest lists.
const digestPageSize = 20

// TaskLister is anything that can fetch a filtered page of tasks.
type TaskLister interface {
	List(ctx context.Context, filter model.TaskFilter, page, pageSize int) (*model.TaskPage, error)
}

// DigestService builds the periodic open-task summary.
type DigestService struct{}

func NewDigestService() *DigestService {
	return &DigestService{}
}

// Summary renders an HTML message listing in-progress tasks, then pending
// ones, then how many are completed.
func (s *DigestService) Summary(ctx context.Context, tasks TaskLister, user *model.User, now time.Time) (string, error) {
	inProgress, err := tasks.List(ctx, model.TaskFilter{Status: model.StatusInProgress}, 1, digestPageSize)
	if err != nil {
		return "", fmt.Errorf("digest in-progress tasks: %w", err)
	}
	pending, err := tasks.List(ctx, model.TaskFilter{Status: model.StatusPending}, 1, digestPageSize)
	if err != nil {
		return "", fmt.Errorf("digest pending tasks: %w", err)
	}
	completed, err := tasks.List(ctx, model.TaskFilter{Status: model.StatusCompleted}, 1, 1)
	if err != nil {
		return "", fmt.Errorf("digest completed tasks: %w", err)
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Task digest</b>\n")
	if user != nil && strings.TrimSpace(user.Name) != "" {
		builder.WriteString(fmt.Sprintf("👤 %s\n", html.EscapeString(user.Name)))
	}
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("2006-01-02 15:04")))

	writeSection(&builder, "🔥 <b>In progress</b>", inProgress, "nothing in progress")
	builder.WriteByte('\n')
	writeSection(&builder, "🕒 <b>Pending</b>", pending, "no pending tasks")

	builder.WriteString(fmt.Sprintf("\n✅ Completed: %d", completed.TotalResults))
	return strings.TrimSpace(builder.String()), nil
}

func writeSection(b *strings.Builder, heading string, page *model.TaskPage, empty string) {
	b.WriteString(heading)
	if page.TotalResults > len(page.Results) {
		b.WriteString(fmt.Sprintf(" (%d of %d)", len(page.Results), page.TotalResults))
	}
	b.WriteByte('\n')
	if len(page.Results) == 0 {
		b.WriteString("— " + empty + "\n")
		return
	}
	for _, task := range page.Results {
		b.WriteString(formatDigestTask(task))
	}
}

func formatDigestTask(task model.Task) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("• %s <code>%s</code>", html.EscapeString(strings.TrimSpace(task.Title)), html.EscapeString(task.ID)))
	if desc := strings.TrimSpace(task.Description); desc != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(truncate(desc, 120))))
	}
	sb.WriteByte('\n')
	return sb.String()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
