package model

import (
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a task on the server.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in-progress"
	StatusCompleted  TaskStatus = "completed"
)

// Statuses lists every status in board order.
var Statuses = []TaskStatus{StatusPending, StatusInProgress, StatusCompleted}

// ParseStatus accepts the wire value and a few human spellings.
func ParseStatus(raw string) (TaskStatus, bool) {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.NewReplacer("_", "-", " ", "-").Replace(value)
	switch value {
	case "pending", "todo":
		return StatusPending, true
	case "in-progress", "inprogress", "progress", "doing":
		return StatusInProgress, true
	case "completed", "complete", "done":
		return StatusCompleted, true
	default:
		return "", false
	}
}

// Label is the human-readable status name.
func (s TaskStatus) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "In Progress"
	case StatusCompleted:
		return "Completed"
	default:
		return string(s)
	}
}

// Task is the canonical task shape every client component works with.
// ID, Owner and the timestamps are assigned by the server.
type Task struct {
	ID          string     `json:"_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	Owner       string     `json:"user"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TaskDraft is the client-side form for a new task. It may be empty until
// it is validated for submission.
type TaskDraft struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description,omitempty" validate:"max=2000"`
	Status      TaskStatus `json:"status" validate:"taskstatus"`
}

// TaskPatch carries the fields of a partial update. Nil fields are not sent.
type TaskPatch struct {
	Title       *string     `json:"title,omitempty" validate:"omitnil,min=1,max=200"`
	Description *string     `json:"description,omitempty" validate:"omitnil,max=2000"`
	Status      *TaskStatus `json:"status,omitempty" validate:"omitnil,taskstatus"`
}

// Empty reports whether the patch would change nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil
}

// TaskFilter narrows a list request. Empty fields mean "any".
type TaskFilter struct {
	Title  string
	Status TaskStatus
}

// TaskPage is one page of a list response, already normalized.
type TaskPage struct {
	Results      []Task
	TotalResults int
	Limit        int
	TotalPages   int
	Page         int
}
