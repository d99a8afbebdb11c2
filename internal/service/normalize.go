package service

import (
	"encoding/json"
	"time"

	"kawah-task/internal/model"
)

// rawTask is a task record exactly as the API sends it. Older API versions
// used "id" and "name" where current ones use "_id" and "title".
type rawTask struct {
	ID          string           `json:"_id"`
	LegacyID    string           `json:"id"`
	Title       string           `json:"title"`
	LegacyName  string           `json:"name"`
	Description string           `json:"description"`
	Status      model.TaskStatus `json:"status"`
	User        json.RawMessage  `json:"user"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

type rawTaskPage struct {
	Results      []rawTask `json:"results"`
	TotalResults int       `json:"totalResults"`
	Limit        int       `json:"limit"`
	TotalPages   int       `json:"totalPages"`
	Page         int       `json:"page"`
}

// normalizeTask is the only place that knows about the legacy field names.
// Every inbound record passes through it before reaching client state.
func normalizeTask(raw rawTask) model.Task {
	return model.Task{
		ID:          firstNonEmpty(raw.ID, raw.LegacyID),
		Title:       firstNonEmpty(raw.Title, raw.LegacyName),
		Description: raw.Description,
		Status:      raw.Status,
		Owner:       ownerRef(raw.User),
		CreatedAt:   raw.CreatedAt,
		UpdatedAt:   raw.UpdatedAt,
	}
}

func normalizePage(raw rawTaskPage) *model.TaskPage {
	page := &model.TaskPage{
		Results:      make([]model.Task, 0, len(raw.Results)),
		TotalResults: raw.TotalResults,
		Limit:        raw.Limit,
		TotalPages:   raw.TotalPages,
		Page:         raw.Page,
	}
	for _, r := range raw.Results {
		page.Results = append(page.Results, normalizeTask(r))
	}
	return page
}

// ownerRef accepts either a plain ID or a populated user object.
func ownerRef(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID       string `json:"_id"`
		LegacyID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return firstNonEmpty(obj.ID, obj.LegacyID)
	}
	return ""
}

// firstNonEmpty falls back only on "". A whitespace-only value is still a
// value and is kept as sent.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
