package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban/api/internal/access"
	"kanban/api/internal/ordering"
	"kanban/api/internal/search"
	"kanban/api/internal/store"
	"kanban/api/internal/util"
)

const defaultPriority = "medium"

var allowedPriorities = map[string]struct{}{
	"low":    {},
	"medium": {},
	"high":   {},
	"urgent": {},
}

// optionalString tells an absent JSON field apart from an explicit null.
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

type TaskInput struct {
	Title       string   `json:"title"`
	Description *string  `json:"description"`
	Priority    string   `json:"priority"`
	DueDate     *string  `json:"dueDate"`
	Tags        []string `json:"tags"`
	AssigneeID  *string  `json:"assigneeId"`
}

// TaskPatchInput updates a task. dueDate and assigneeId accept null to
// clear the stored value.
type TaskPatchInput struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Priority    *string        `json:"priority"`
	DueDate     optionalString `json:"dueDate"`
	Tags        *[]string      `json:"tags"`
	AssigneeID  optionalString `json:"assigneeId"`
}

type MoveTaskInput struct {
	ColumnID string `json:"columnId"`
	Order    *int   `json:"order"`
}

// TaskOrder is one entry of a task reorder request.
type TaskOrder struct {
	ID       string `json:"id"`
	Order    *int   `json:"order"`
	ColumnID string `json:"columnId"`
}

func (s *Service) ListTasks(ctx context.Context, actorID, columnID string) ([]TaskView, error) {
	if _, err := s.guard.Authorize(ctx, actorID, access.ResourceColumn, columnID); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasksByColumn(ctx, columnID)
	if err != nil {
		return nil, err
	}
	return taskViews(tasks), nil
}

// CreateTask appends a task to the end of a column.
func (s *Service) CreateTask(ctx context.Context, actorID, columnID string, input TaskInput) (TaskView, error) {
	grant, err := s.guard.Authorize(ctx, actorID, access.ResourceColumn, columnID)
	if err != nil {
		return TaskView{}, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return TaskView{}, validationError("title is required")
	}
	priority := strings.ToLower(firstNonBlank(input.Priority, defaultPriority))
	if _, ok := allowedPriorities[priority]; !ok {
		return TaskView{}, validationError("priority must be one of low, medium, high, urgent")
	}
	var dueDate *time.Time
	if input.DueDate != nil && strings.TrimSpace(*input.DueDate) != "" {
		parsed, err := parseDueDate(*input.DueDate)
		if err != nil {
			return TaskView{}, err
		}
		dueDate = &parsed
	}
	assigneeID := input.AssigneeID
	if assigneeID != nil && strings.TrimSpace(*assigneeID) == "" {
		assigneeID = nil
	}
	if assigneeID != nil {
		if err := s.requireMember(ctx, grant.Scope.WorkspaceID, *assigneeID); err != nil {
			return TaskView{}, err
		}
	}

	order, err := s.engine.Append(ctx, ordering.KindTask, columnID)
	if err != nil {
		return TaskView{}, err
	}
	task, err := s.store.CreateTask(ctx, store.Task{
		ID:          util.NewID("task"),
		ColumnID:    columnID,
		Title:       title,
		Description: input.Description,
		Priority:    priority,
		DueDate:     dueDate,
		Tags:        cleanTags(input.Tags),
		AssigneeID:  assigneeID,
		Order:       order,
	})
	if err != nil {
		return TaskView{}, err
	}

	s.boards.Evict(ctx, grant.Scope.SpaceID)
	s.search.IndexTask(task.ID)
	s.log.WithFields(log.Fields{"task_id": task.ID, "column_id": columnID, "order": order}).Info("task created")
	return taskView(task), nil
}

func (s *Service) UpdateTask(ctx context.Context, actorID, taskID string, input TaskPatchInput) (TaskView, error) {
	grant, err := s.guard.Authorize(ctx, actorID, access.ResourceTask, taskID)
	if err != nil {
		return TaskView{}, err
	}

	patch := store.TaskPatch{Description: input.Description}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return TaskView{}, validationError("title must not be empty")
		}
		patch.Title = &title
	}
	if input.Priority != nil {
		priority := strings.ToLower(strings.TrimSpace(*input.Priority))
		if _, ok := allowedPriorities[priority]; !ok {
			return TaskView{}, validationError("priority must be one of low, medium, high, urgent")
		}
		patch.Priority = &priority
	}
	if input.DueDate.Set {
		if input.DueDate.Value == nil || strings.TrimSpace(*input.DueDate.Value) == "" {
			patch.ClearDueDate = true
		} else {
			parsed, err := parseDueDate(*input.DueDate.Value)
			if err != nil {
				return TaskView{}, err
			}
			patch.DueDate = &parsed
		}
	}
	if input.Tags != nil {
		tags := cleanTags(*input.Tags)
		patch.Tags = &tags
	}
	if input.AssigneeID.Set {
		if input.AssigneeID.Value == nil || strings.TrimSpace(*input.AssigneeID.Value) == "" {
			patch.ClearAssignee = true
		} else {
			if err := s.requireMember(ctx, grant.Scope.WorkspaceID, *input.AssigneeID.Value); err != nil {
				return TaskView{}, err
			}
			patch.AssigneeID = input.AssigneeID.Value
		}
	}

	task, err := s.store.UpdateTask(ctx, taskID, patch)
	if err != nil {
		return TaskView{}, err
	}
	s.boards.Evict(ctx, grant.Scope.SpaceID)
	s.search.IndexTask(taskID)
	return taskView(task), nil
}

// MoveTask places a task at index order of the target column. Both the
// task's current column and the target column must be accessible to the
// actor; neither collection changes otherwise.
func (s *Service) MoveTask(ctx context.Context, actorID, taskID string, input MoveTaskInput) (TaskView, error) {
	if strings.TrimSpace(input.ColumnID) == "" {
		return TaskView{}, validationError("columnId is required")
	}
	if input.Order == nil {
		return TaskView{}, validationError("order is required")
	}

	source, err := s.guard.Authorize(ctx, actorID, access.ResourceTask, taskID)
	if err != nil {
		return TaskView{}, err
	}
	dest, err := s.guard.Authorize(ctx, actorID, access.ResourceColumn, input.ColumnID)
	if err != nil {
		return TaskView{}, err
	}

	if _, err := s.engine.MoveItem(ctx, ordering.KindTask, taskID, source.Scope.ColumnID, input.ColumnID, *input.Order); err != nil {
		return TaskView{}, err
	}
	s.boards.Evict(ctx, source.Scope.SpaceID, dest.Scope.SpaceID)
	s.search.IndexTask(taskID)

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return TaskView{}, err
	}
	return taskView(task), nil
}

// ReorderTasks writes the given column and order values verbatim, all or
// nothing. Every current column of the listed tasks and every target column
// is authorized before anything is written.
func (s *Service) ReorderTasks(ctx context.Context, actorID string, items []TaskOrder) error {
	if len(items) == 0 {
		return validationError("tasks must not be empty")
	}
	updates := make([]ordering.Update, 0, len(items))
	ids := make([]string, 0, len(items))
	columnIDs := make([]string, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.ColumnID) == "" {
			return validationError("every task needs a columnId")
		}
		if item.Order == nil {
			return validationError("every task needs an integer order")
		}
		updates = append(updates, ordering.Update{ID: item.ID, ParentID: item.ColumnID, Order: *item.Order})
		ids = append(ids, item.ID)
		columnIDs = append(columnIDs, item.ColumnID)
	}
	if err := ordering.ValidateBatch(updates); err != nil {
		return err
	}

	current, err := s.guard.AuthorizeAll(ctx, actorID, access.ResourceTask, ids)
	if err != nil {
		return err
	}
	targets, err := s.guard.AuthorizeAll(ctx, actorID, access.ResourceColumn, columnIDs)
	if err != nil {
		return err
	}

	if err := s.engine.ReorderBatch(ctx, ordering.KindTask, updates); err != nil {
		return err
	}

	spaces := make([]string, 0, len(current)+len(targets))
	for _, grant := range append(current, targets...) {
		spaces = append(spaces, grant.Scope.SpaceID)
	}
	s.boards.Evict(ctx, spaces...)
	for _, id := range ids {
		s.search.IndexTask(id)
	}
	return nil
}

func (s *Service) DeleteTask(ctx context.Context, actorID, taskID string) error {
	grant, err := s.guard.Authorize(ctx, actorID, access.ResourceTask, taskID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return err
	}
	s.boards.Evict(ctx, grant.Scope.SpaceID)
	s.search.DeleteTasks(taskID)
	return nil
}

// SearchTasks finds tasks by title or description within one workspace,
// optionally narrowed to a space of that workspace.
func (s *Service) SearchTasks(ctx context.Context, actorID, workspaceID string, q search.Query) (search.Response, error) {
	if _, err := s.guard.Authorize(ctx, actorID, access.ResourceWorkspace, workspaceID); err != nil {
		return search.Response{}, err
	}
	if q.SpaceID != "" {
		grant, err := s.guard.Authorize(ctx, actorID, access.ResourceSpace, q.SpaceID)
		if err != nil {
			return search.Response{}, err
		}
		if grant.Scope.WorkspaceID != workspaceID {
			return search.Response{}, notFoundError("space not found")
		}
	}
	q.WorkspaceID = workspaceID
	return s.search.Search(ctx, q), nil
}

// ReindexSearch pushes every task to the search index.
func (s *Service) ReindexSearch(ctx context.Context) {
	s.search.ReindexAll(ctx)
}

func (s *Service) requireMember(ctx context.Context, workspaceID, userID string) error {
	if _, err := s.store.MemberRole(ctx, workspaceID, userID); err != nil {
		if isNoRows(err) {
			return validationError("assignee must be a member of the workspace")
		}
		return err
	}
	return nil
}

func parseDueDate(value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, validationError("dueDate must be an RFC 3339 timestamp")
	}
	return parsed.UTC(), nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
