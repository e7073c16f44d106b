package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"kanban/api/internal/access"
	"kanban/api/internal/ordering"
	"kanban/api/internal/rbac"
	"kanban/api/internal/store"
	"kanban/api/internal/util"
)

const (
	defaultWorkspaceIcon  = "📁"
	defaultWorkspaceColor = "#3b82f6"
	defaultSpaceIcon      = "📂"
	defaultSpaceColor     = "#6366f1"
	defaultColumnColor    = "#6b7280"
)

var defaultColumns = []struct {
	name  string
	color string
}{
	{"To Do", "#6b7280"},
	{"In Progress", "#3b82f6"},
	{"Review", "#f59e0b"},
	{"Done", "#10b981"},
}

type WorkspaceInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Icon        string  `json:"icon"`
	Color       string  `json:"color"`
}

type WorkspacePatchInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
	Color       *string `json:"color"`
}

type AddMemberInput struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type SpaceInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Icon        string  `json:"icon"`
	Color       string  `json:"color"`
}

type SpacePatchInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
	Color       *string `json:"color"`
	Order       *int    `json:"order"`
}

type ColumnInput struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type ColumnPatchInput struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
	Order *int    `json:"order"`
}

// ColumnOrder is one entry of a column reorder request.
type ColumnOrder struct {
	ID    string `json:"id"`
	Order *int   `json:"order"`
}

func (s *Service) ListWorkspaces(ctx context.Context, actorID string) ([]WorkspaceView, error) {
	workspaces, err := s.store.ListWorkspacesForUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	views := make([]WorkspaceView, 0, len(workspaces))
	for _, ws := range workspaces {
		view, err := s.workspaceDetail(ctx, ws)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) GetWorkspace(ctx context.Context, actorID, workspaceID string) (WorkspaceView, error) {
	if _, err := s.guard.Authorize(ctx, actorID, access.ResourceWorkspace, workspaceID); err != nil {
		return WorkspaceView{}, err
	}
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		return WorkspaceView{}, err
	}
	return s.workspaceDetail(ctx, ws)
}

func (s *Service) workspaceDetail(ctx context.Context, ws store.Workspace) (WorkspaceView, error) {
	members, err := s.store.ListMembers(ctx, ws.ID)
	if err != nil {
		return WorkspaceView{}, err
	}
	spaces, err := s.store.ListSpaces(ctx, ws.ID)
	if err != nil {
		return WorkspaceView{}, err
	}
	return workspaceView(ws, members, spaces), nil
}

// CreateWorkspace creates a workspace with the actor as its owner.
func (s *Service) CreateWorkspace(ctx context.Context, actorID string, input WorkspaceInput) (WorkspaceView, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return WorkspaceView{}, validationError("name is required")
	}
	ws, err := s.store.CreateWorkspace(ctx, store.Workspace{
		ID:          util.NewID("ws"),
		Name:        name,
		Description: input.Description,
		Icon:        firstNonBlank(input.Icon, defaultWorkspaceIcon),
		Color:       firstNonBlank(input.Color, defaultWorkspaceColor),
	}, actorID)
	if err != nil {
		return WorkspaceView{}, err
	}
	s.log.WithFields(log.Fields{"workspace_id": ws.ID, "actor_id": actorID}).Info("workspace created")
	return s.workspaceDetail(ctx, ws)
}

func (s *Service) UpdateWorkspace(ctx context.Context, actorID, workspaceID string, input WorkspacePatchInput) (WorkspaceView, error) {
	if _, err := s.guard.Authorize(ctx, actorID, access.ResourceWorkspace, workspaceID, rbac.Elevated...); err != nil {
		return WorkspaceView{}, err
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return WorkspaceView{}, validationError("name must not be empty")
	}
	ws, err := s.store.UpdateWorkspace(ctx, workspaceID, store.WorkspacePatch{
		Name:        trimmed(input.Name),
		Description: input.Description,
		Icon:        input.Icon,
		Color:       input.Color,
	})
	if err != nil {
		return WorkspaceView{}, err
	}
	return s.workspaceDetail(ctx, ws)
}

// DeleteWorkspace removes a workspace and everything under it. Owner only.
func (s *Service) DeleteWorkspace(ctx context.Context, actorID, workspaceID string) error {
	if _, err := s.guard.Authorize(ctx, actorID, access.ResourceWorkspace, workspaceID, rbac.OwnerOnly...); err != nil {
		return err
	}
	spaces, err := s.store.ListSpaces(ctx, workspaceID)
	if err != nil {
		return err
	}
	docs, err := s.store.ListTaskDocuments(ctx, workspaceID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteWorkspace(ctx, workspaceID); err != nil {
		return err
	}

	spaceIDs := make([]string, 0, len(spaces))
	for _, sp := range spaces {
		spaceIDs = append(spaceIDs, sp.ID)
	}
	s.boards.Evict(ctx, spaceIDs...)
	s.search.DeleteTasks(documentIDs(docs)...)
	s.log.WithFields(log.Fields{"workspace_id": workspaceID, "actor_id": actorID}).Info("workspace deleted")
	return nil
}

// AddMember adds an existing user, found by email, to the workspace.
func (s *Service) AddMember(ctx context.Context, actorID, workspaceID string, input AddMemberInput) (MemberView, error) {
	if _, err := s.guard.Authorize(ctx, actorID, access.ResourceWorkspace, workspaceID, rbac.Elevated...); err != nil {
		return MemberView{}, err
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return MemberView{}, validationError("email is required")
	}
	role := rbac.RoleMember
	if strings.TrimSpace(input.Role) != "" {
		normalized, ok := rbac.Normalize(strings.ToLower(strings.TrimSpace(input.Role)))
		if !ok || !rbac.Assignable(normalized) {
			return MemberView{}, validationError("role must be admin or member")
		}
		role = normalized
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if isNoRows(err) {
			return MemberView{}, notFoundError("User not found")
		}
		return MemberView{}, err
	}
	if err := s.store.AddMember(ctx, workspaceID, user.ID, string(role)); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return MemberView{}, domainError(http.StatusConflict, "CONFLICT", "User already a member", nil)
		}
		return MemberView{}, err
	}

	members, err := s.store.ListMembers(ctx, workspaceID)
	if err != nil {
		return MemberView{}, err
	}
	for _, m := range members {
		if m.UserID == user.ID {
			return memberView(m), nil
		}
	}
	return MemberView{}, notFoundError("member not found")
}

// ListSpaces returns the workspace's spaces with their columns and tasks.
func (s *Service) ListSpaces(ctx context.Context, actorID, workspaceID string) ([]BoardSpace, error) {
	if _, err := s.guard.Authorize(ctx, actorID, access.ResourceWorkspace, workspaceID); err != nil {
		return nil, err
	}
	spaces, err := s.store.ListSpaces(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	out := make([]BoardSpace, 0, len(spaces))
	for _, sp := range spaces {
		board, err := s.loadBoard(ctx, sp.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, BoardSpace{SpaceView: spaceView(sp), Columns: board})
	}
	return out, nil
}

// CreateSpace appends a space to the workspace, seeded with the default
// columns.
func (s *Service) CreateSpace(ctx context.Context, actorID, workspaceID string, input SpaceInput) (BoardSpace, error) {
	if _, err := s.guard.Authorize(ctx, actorID, access.ResourceWorkspace, workspaceID); err != nil {
		return BoardSpace{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return BoardSpace{}, validationError("name is required")
	}
	order, err := s.engine.Append(ctx, ordering.KindSpace, workspaceID)
	if err != nil {
		return BoardSpace{}, err
	}

	spaceID := util.NewID("sp")
	columns := make([]store.Column, 0, len(defaultColumns))
	for i, def := range defaultColumns {
		columns = append(columns, store.Column{
			ID:      util.NewID("col"),
			SpaceID: spaceID,
			Name:    def.name,
			Color:   def.color,
			Order:   i,
		})
	}
	sp, err := s.store.CreateSpace(ctx, store.Space{
		ID:          spaceID,
		WorkspaceID: workspaceID,
		Name:        name,
		Description: input.Description,
		Icon:        firstNonBlank(input.Icon, defaultSpaceIcon),
		Color:       firstNonBlank(input.Color, defaultSpaceColor),
		Order:       order,
	}, columns)
	if err != nil {
		return BoardSpace{}, err
	}

	board, err := s.loadBoard(ctx, sp.ID)
	if err != nil {
		return BoardSpace{}, err
	}
	s.log.WithFields(log.Fields{"space_id": sp.ID, "workspace_id": workspaceID, "order": order}).Info("space created")
	return BoardSpace{SpaceView: spaceView(sp), Columns: board}, nil
}

// UpdateSpace edits space attributes. A new order goes through the ordering
// engine as a single-item reorder.
func (s *Service) UpdateSpace(ctx context.Context, actorID, spaceID string, input SpacePatchInput) (SpaceView, error) {
	grant, err := s.guard.Authorize(ctx, actorID, access.ResourceSpace, spaceID)
	if err != nil {
		return SpaceView{}, err
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return SpaceView{}, validationError("name must not be empty")
	}
	if input.Order != nil {
		if err := s.engine.ReorderBatch(ctx, ordering.KindSpace, []ordering.Update{{
			ID: spaceID, ParentID: grant.Scope.WorkspaceID, Order: *input.Order,
		}}); err != nil {
			return SpaceView{}, err
		}
	}
	sp, err := s.store.UpdateSpace(ctx, spaceID, store.SpacePatch{
		Name:        trimmed(input.Name),
		Description: input.Description,
		Icon:        input.Icon,
		Color:       input.Color,
	})
	if err != nil {
		return SpaceView{}, err
	}
	return spaceView(sp), nil
}

func (s *Service) DeleteSpace(ctx context.Context, actorID, spaceID string) error {
	if _, err := s.guard.Authorize(ctx, actorID, access.ResourceSpace, spaceID, rbac.Elevated...); err != nil {
		return err
	}
	tasks, err := s.store.ListTasksBySpace(ctx, spaceID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSpace(ctx, spaceID); err != nil {
		return err
	}
	s.boards.Evict(ctx, spaceID)
	s.search.DeleteTasks(taskIDs(tasks)...)
	return nil
}

// Board returns the columns of a space with their tasks, read through the
// board cache.
func (s *Service) Board(ctx context.Context, actorID, spaceID string) ([]BoardColumn, error) {
	if _, err := s.guard.Authorize(ctx, actorID, access.ResourceSpace, spaceID); err != nil {
		return nil, err
	}
	return s.loadBoard(ctx, spaceID)
}

func (s *Service) loadBoard(ctx context.Context, spaceID string) ([]BoardColumn, error) {
	return s.boards.Get(ctx, spaceID, func(ctx context.Context) ([]BoardColumn, error) {
		cols, err := s.store.ListColumns(ctx, spaceID)
		if err != nil {
			return nil, err
		}
		tasks, err := s.store.ListTasksBySpace(ctx, spaceID)
		if err != nil {
			return nil, err
		}
		return groupBoard(cols, tasks), nil
	})
}

func (s *Service) CreateColumn(ctx context.Context, actorID, spaceID string, input ColumnInput) (ColumnView, error) {
	if _, err := s.guard.Authorize(ctx, actorID, access.ResourceSpace, spaceID); err != nil {
		return ColumnView{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return ColumnView{}, validationError("name is required")
	}
	order, err := s.engine.Append(ctx, ordering.KindColumn, spaceID)
	if err != nil {
		return ColumnView{}, err
	}
	col, err := s.store.CreateColumn(ctx, store.Column{
		ID:      util.NewID("col"),
		SpaceID: spaceID,
		Name:    name,
		Color:   firstNonBlank(input.Color, defaultColumnColor),
		Order:   order,
	})
	if err != nil {
		return ColumnView{}, err
	}
	s.boards.Evict(ctx, spaceID)
	return columnView(col), nil
}

func (s *Service) UpdateColumn(ctx context.Context, actorID, columnID string, input ColumnPatchInput) (ColumnView, error) {
	grant, err := s.guard.Authorize(ctx, actorID, access.ResourceColumn, columnID)
	if err != nil {
		return ColumnView{}, err
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return ColumnView{}, validationError("name must not be empty")
	}
	if input.Order != nil {
		if err := s.engine.ReorderBatch(ctx, ordering.KindColumn, []ordering.Update{{
			ID: columnID, ParentID: grant.Scope.SpaceID, Order: *input.Order,
		}}); err != nil {
			return ColumnView{}, err
		}
	}
	col, err := s.store.UpdateColumn(ctx, columnID, store.ColumnPatch{Name: trimmed(input.Name), Color: input.Color})
	if err != nil {
		return ColumnView{}, err
	}
	s.boards.Evict(ctx, grant.Scope.SpaceID)
	return columnView(col), nil
}

// DeleteColumn removes a column and its tasks. Owner or admin only.
func (s *Service) DeleteColumn(ctx context.Context, actorID, columnID string) error {
	grant, err := s.guard.Authorize(ctx, actorID, access.ResourceColumn, columnID, rbac.Elevated...)
	if err != nil {
		return err
	}
	tasks, err := s.store.ListTasksByColumn(ctx, columnID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteColumn(ctx, columnID); err != nil {
		return err
	}
	s.boards.Evict(ctx, grant.Scope.SpaceID)
	s.search.DeleteTasks(taskIDs(tasks)...)
	return nil
}

// ReorderColumns writes the given order values for columns of one space in a
// single transaction and returns the space's columns in their new order. A
// column that does not belong to the space fails the whole batch.
func (s *Service) ReorderColumns(ctx context.Context, actorID, spaceID string, items []ColumnOrder) ([]ColumnView, error) {
	if _, err := s.guard.Authorize(ctx, actorID, access.ResourceSpace, spaceID); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, validationError("columns must not be empty")
	}
	updates := make([]ordering.Update, 0, len(items))
	for _, item := range items {
		if item.Order == nil {
			return nil, validationError("every column needs an integer order")
		}
		updates = append(updates, ordering.Update{ID: item.ID, ParentID: spaceID, Order: *item.Order})
	}
	if err := s.engine.ReorderBatch(ctx, ordering.KindColumn, updates); err != nil {
		return nil, err
	}
	s.boards.Evict(ctx, spaceID)

	cols, err := s.store.ListColumns(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	return columnViews(cols), nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	t := strings.TrimSpace(*value)
	return &t
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func taskIDs(tasks []store.Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}

func documentIDs(docs []store.TaskDocument) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}
