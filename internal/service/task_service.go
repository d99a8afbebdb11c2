package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"kawah-task/internal/apiclient"
	"kawah-task/internal/model"
)

// DefaultPageSize is used when a list call does not ask for a page size.
const DefaultPageSize = 10

const (
	msgListFailed     = "Failed to fetch tasks."
	msgGetFailed      = "Failed to fetch task details."
	msgCreateFailed   = "Failed to add task."
	msgUpdateFailed   = "Failed to update task."
	msgDeleteFailed   = "Failed to delete task."
	msgTaskNotFound   = "Task not found."
	msgSessionExpired = "Session expired. Please log in again."
)

// API is the subset of apiclient.Client the services call.
type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Patch(ctx context.Context, path string, body, out any) error
	Delete(ctx context.Context, path string) error
}

// TaskService is the task data-access layer of one session. The server is
// the source of truth; the service keeps a mirror of the last listed page
// and reconciles it after every mutation.
type TaskService struct {
	api API
	log logrus.FieldLogger

	mu         sync.Mutex
	tasks      []model.Task
	total      int
	page       int
	limit      int
	totalPages int
	inflight   int
	errMsg     string
	listSeq    uint64
}

func NewTaskService(api API, log logrus.FieldLogger) *TaskService {
	return &TaskService{
		api:   api,
		log:   log,
		page:  1,
		limit: DefaultPageSize,
	}
}

// List fetches one page of tasks matching filter and replaces the mirror
// with it. Empty filter fields are not sent. Only the most recently issued
// List call may overwrite the mirror; an older one that resolves late still
// returns its page to its caller.
func (s *TaskService) List(ctx context.Context, filter model.TaskFilter, page, pageSize int) (*model.TaskPage, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	query := url.Values{}
	if title := strings.TrimSpace(filter.Title); title != "" {
		query.Set("title", title)
	}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(pageSize))

	s.mu.Lock()
	s.listSeq++
	seq := s.listSeq
	s.inflight++
	s.errMsg = ""
	s.mu.Unlock()

	var raw rawTaskPage
	err := s.api.Get(ctx, "/tasks", query, &raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	latest := seq == s.listSeq

	if err != nil {
		s.errMsg = taskErrorMessage(err, msgListFailed)
		if latest && !errors.Is(err, apiclient.ErrUnauthorized) {
			s.tasks = nil
			s.total, s.totalPages = 0, 0
			s.page, s.limit = page, pageSize
		}
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	result := normalizePage(raw)
	if !latest {
		s.log.WithField("page", page).Debug("discarding stale task list response")
		return result, nil
	}
	s.tasks = append([]model.Task(nil), result.Results...)
	s.total = result.TotalResults
	s.page = result.Page
	s.limit = result.Limit
	s.totalPages = result.TotalPages
	return result, nil
}

// Get fetches a single task. The mirror is not touched.
func (s *TaskService) Get(ctx context.Context, id string) (*model.Task, error) {
	s.start()
	var raw rawTask
	err := s.api.Get(ctx, taskPath(id), nil, &raw)
	if err != nil {
		s.finish(taskErrorMessage(err, msgGetFailed))
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	s.finish("")
	task := normalizeTask(raw)
	return &task, nil
}

// Create validates the draft, submits it and appends the created task to the
// mirror. A draft without a status is created as pending.
func (s *TaskService) Create(ctx context.Context, draft model.TaskDraft) (*model.Task, error) {
	draft.Title = strings.TrimSpace(draft.Title)
	draft.Description = strings.TrimSpace(draft.Description)
	if draft.Status == "" {
		draft.Status = model.StatusPending
	}
	if err := model.Validate(draft); err != nil {
		s.setErr(err.Error())
		return nil, err
	}

	s.start()
	var raw rawTask
	if err := s.api.Post(ctx, "/tasks", draft, &raw); err != nil {
		s.finish(taskErrorMessage(err, msgCreateFailed))
		return nil, fmt.Errorf("create task: %w", err)
	}
	task := normalizeTask(raw)

	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.total++
	s.inflight--
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"task": task.ID, "status": task.Status}).Info("task created")
	return &task, nil
}

// Update applies a partial change and swaps the mirror entry with the
// server's answer. An unknown ID fails with apiclient.ErrNotFound and leaves
// the mirror as it was.
func (s *TaskService) Update(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	if patch.Empty() {
		err := &model.ValidationError{Fields: map[string]string{"Patch": "nothing to update"}}
		s.setErr(err.Error())
		return nil, err
	}
	if err := model.Validate(patch); err != nil {
		s.setErr(err.Error())
		return nil, err
	}

	s.start()
	var raw rawTask
	if err := s.api.Patch(ctx, taskPath(id), patch, &raw); err != nil {
		s.finish(taskErrorMessage(err, msgUpdateFailed))
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	task := normalizeTask(raw)

	s.mu.Lock()
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			s.tasks[i] = task
		}
	}
	s.inflight--
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"task": id, "status": task.Status}).Info("task updated")
	return &task, nil
}

// Delete removes the task remotely, then from the mirror.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	s.start()
	if err := s.api.Delete(ctx, taskPath(id)); err != nil {
		s.finish(taskErrorMessage(err, msgDeleteFailed))
		return fmt.Errorf("delete task %s: %w", id, err)
	}

	s.mu.Lock()
	kept := s.tasks[:0]
	removed := 0
	for _, t := range s.tasks {
		if t.ID == id {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	s.tasks = kept
	s.total -= removed
	if s.total < 0 {
		s.total = 0
	}
	s.inflight--
	s.mu.Unlock()

	s.log.WithField("task", id).Info("task deleted")
	return nil
}

// Tasks returns a copy of the mirror.
func (s *TaskService) Tasks() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Task(nil), s.tasks...)
}

func (s *TaskService) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *TaskService) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *TaskService) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

func (s *TaskService) TotalPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalPages
}

func (s *TaskService) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// Err is the user-facing message of the last failure, or "".
func (s *TaskService) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Reset drops the mirror, e.g. after the session ended.
func (s *TaskService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = nil
	s.total, s.totalPages = 0, 0
	s.page, s.limit = 1, DefaultPageSize
	s.errMsg = ""
}

func (s *TaskService) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight++
	s.errMsg = ""
}

func (s *TaskService) finish(errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	s.errMsg = errMsg
}

func (s *TaskService) setErr(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = msg
}

func taskPath(id string) string {
	return "/tasks/" + url.PathEscape(id)
}

// taskErrorMessage turns a failure into the text shown next to the board.
func taskErrorMessage(err error, fallback string) string {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, apiclient.ErrUnauthorized):
		return msgSessionExpired
	case errors.Is(err, apiclient.ErrNotFound):
		return msgTaskNotFound
	}
	if msg := apiclient.ServerMessage(err); msg != "" {
		return msg
	}
	return fallback
}
