package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"kanban/api/internal/access"
	"kanban/api/internal/ordering"
)

// MemoryStore keeps the whole board in process. It serves local runs without
// Postgres and the service tests. One mutex serializes every call, and
// WithinTx snapshots state so a failing transaction leaves nothing behind.
type MemoryStore struct {
	mu  sync.Mutex
	st  memState
	now func() time.Time
}

type memSession struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

type memState struct {
	users      map[string]User
	sessions   map[string]memSession
	revoked    map[string]time.Time
	workspaces map[string]Workspace
	members    map[string]map[string]Member
	spaces     map[string]Space
	columns    map[string]Column
	tasks      map[string]Task
}

func newMemState() memState {
	return memState{
		users:      map[string]User{},
		sessions:   map[string]memSession{},
		revoked:    map[string]time.Time{},
		workspaces: map[string]Workspace{},
		members:    map[string]map[string]Member{},
		spaces:     map[string]Space{},
		columns:    map[string]Column{},
		tasks:      map[string]Task{},
	}
}

func (st memState) clone() memState {
	out := newMemState()
	for k, v := range st.users {
		out.users[k] = v
	}
	for k, v := range st.sessions {
		out.sessions[k] = v
	}
	for k, v := range st.revoked {
		out.revoked[k] = v
	}
	for k, v := range st.workspaces {
		out.workspaces[k] = v
	}
	for ws, byUser := range st.members {
		out.members[ws] = make(map[string]Member, len(byUser))
		for k, v := range byUser {
			out.members[ws][k] = v
		}
	}
	for k, v := range st.spaces {
		out.spaces[k] = v
	}
	for k, v := range st.columns {
		out.columns[k] = v
	}
	for k, v := range st.tasks {
		out.tasks[k] = v
	}
	return out
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: newMemState(), now: time.Now}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) CreateUser(_ context.Context, user User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	for _, existing := range s.st.users {
		if existing.Email == user.Email {
			return User{}, fmt.Errorf("insert user: %w: users_email_key", ErrConflict)
		}
	}
	now := s.now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	s.st.users[user.ID] = user
	return user, nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, userID string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.st.users[userID]
	if !ok {
		return User{}, sql.ErrNoRows
	}
	return user, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(email)
	for _, user := range s.st.users {
		if user.Email == email {
			return user, nil
		}
	}
	return User{}, sql.ErrNoRows
}

func (s *MemoryStore) UpdateUser(_ context.Context, userID string, patch UserPatch) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.st.users[userID]
	if !ok {
		return User{}, sql.ErrNoRows
	}
	if patch.Name != nil {
		user.Name = *patch.Name
	}
	if patch.Avatar != nil {
		user.Avatar = patch.Avatar
	}
	user.UpdatedAt = s.now().UTC()
	s.st.users[userID] = user
	return user, nil
}

func (s *MemoryStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.sessions[tokenHash] = memSession{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.st.sessions[tokenHash]; ok {
		session.revoked = true
		s.st.sessions[tokenHash] = session
	}
	return nil
}

// ConsumeRefreshSession revokes a live refresh session and returns its
// owner. Only the first of several concurrent callers succeeds.
func (s *MemoryStore) ConsumeRefreshSession(_ context.Context, tokenHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.st.sessions[tokenHash]
	if !ok || session.revoked || !session.expiresAt.After(s.now()) {
		return "", sql.ErrNoRows
	}
	session.revoked = true
	s.st.sessions[tokenHash] = session
	return session.userID, nil
}

func (s *MemoryStore) RevokeAccessToken(_ context.Context, jti string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.revoked[jti] = exp
	return nil
}

func (s *MemoryStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.st.revoked[jti]
	return ok, nil
}

func (s *MemoryStore) ListWorkspacesForUser(_ context.Context, userID string) ([]Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Workspace, 0)
	for wsID, byUser := range s.st.members {
		if _, ok := byUser[userID]; ok {
			items = append(items, s.st.workspaces[wsID])
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *MemoryStore) GetWorkspace(_ context.Context, workspaceID string) (Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.st.workspaces[workspaceID]
	if !ok {
		return Workspace{}, sql.ErrNoRows
	}
	return ws, nil
}

func (s *MemoryStore) CreateWorkspace(_ context.Context, ws Workspace, ownerID string) (Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.users[ownerID]; !ok {
		return Workspace{}, fmt.Errorf("insert owner membership: %w", sql.ErrNoRows)
	}
	now := s.now().UTC()
	ws.CreatedAt, ws.UpdatedAt = now, now
	s.st.workspaces[ws.ID] = ws
	s.st.members[ws.ID] = map[string]Member{
		ownerID: {WorkspaceID: ws.ID, UserID: ownerID, Role: "owner", JoinedAt: now},
	}
	return ws, nil
}

func (s *MemoryStore) UpdateWorkspace(_ context.Context, workspaceID string, patch WorkspacePatch) (Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.st.workspaces[workspaceID]
	if !ok {
		return Workspace{}, sql.ErrNoRows
	}
	if patch.Name != nil {
		ws.Name = *patch.Name
	}
	if patch.Description != nil {
		ws.Description = patch.Description
	}
	if patch.Icon != nil {
		ws.Icon = *patch.Icon
	}
	if patch.Color != nil {
		ws.Color = *patch.Color
	}
	ws.UpdatedAt = s.now().UTC()
	s.st.workspaces[workspaceID] = ws
	return ws, nil
}

func (s *MemoryStore) DeleteWorkspace(_ context.Context, workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.workspaces[workspaceID]; !ok {
		return sql.ErrNoRows
	}
	for id, sp := range s.st.spaces {
		if sp.WorkspaceID == workspaceID {
			s.deleteSpaceLocked(id)
		}
	}
	delete(s.st.members, workspaceID)
	delete(s.st.workspaces, workspaceID)
	return nil
}

func (s *MemoryStore) ListMembers(_ context.Context, workspaceID string) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Member, 0, len(s.st.members[workspaceID]))
	for _, m := range s.st.members[workspaceID] {
		m.User = s.summaryLocked(m.UserID)
		items = append(items, m)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].JoinedAt.Equal(items[j].JoinedAt) {
			return items[i].JoinedAt.Before(items[j].JoinedAt)
		}
		return items[i].UserID < items[j].UserID
	})
	return items, nil
}

func (s *MemoryStore) AddMember(_ context.Context, workspaceID, userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.st.members[workspaceID]
	if !ok {
		return fmt.Errorf("add member: %w", sql.ErrNoRows)
	}
	if _, ok := s.st.users[userID]; !ok {
		return fmt.Errorf("add member: %w", sql.ErrNoRows)
	}
	if _, exists := byUser[userID]; exists {
		return fmt.Errorf("add member: %w: workspace_members_pkey", ErrConflict)
	}
	byUser[userID] = Member{WorkspaceID: workspaceID, UserID: userID, Role: role, JoinedAt: s.now().UTC()}
	return nil
}

func (s *MemoryStore) ListSpaces(_ context.Context, workspaceID string) ([]Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Space, 0)
	for _, sp := range s.st.spaces {
		if sp.WorkspaceID == workspaceID {
			items = append(items, sp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return lessOrder(items[i].Order, items[i].ID, items[j].Order, items[j].ID) })
	return items, nil
}

func (s *MemoryStore) GetSpace(_ context.Context, spaceID string) (Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.st.spaces[spaceID]
	if !ok {
		return Space{}, sql.ErrNoRows
	}
	return sp, nil
}

func (s *MemoryStore) CreateSpace(_ context.Context, sp Space, columns []Column) (Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.workspaces[sp.WorkspaceID]; !ok {
		return Space{}, fmt.Errorf("insert space: %w", sql.ErrNoRows)
	}
	now := s.now().UTC()
	sp.CreatedAt, sp.UpdatedAt = now, now
	s.st.spaces[sp.ID] = sp
	for _, col := range columns {
		col.SpaceID = sp.ID
		col.CreatedAt, col.UpdatedAt = now, now
		s.st.columns[col.ID] = col
	}
	return sp, nil
}

func (s *MemoryStore) UpdateSpace(_ context.Context, spaceID string, patch SpacePatch) (Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.st.spaces[spaceID]
	if !ok {
		return Space{}, sql.ErrNoRows
	}
	if patch.Name != nil {
		sp.Name = *patch.Name
	}
	if patch.Description != nil {
		sp.Description = patch.Description
	}
	if patch.Icon != nil {
		sp.Icon = *patch.Icon
	}
	if patch.Color != nil {
		sp.Color = *patch.Color
	}
	sp.UpdatedAt = s.now().UTC()
	s.st.spaces[spaceID] = sp
	return sp, nil
}

func (s *MemoryStore) DeleteSpace(_ context.Context, spaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.spaces[spaceID]; !ok {
		return sql.ErrNoRows
	}
	s.deleteSpaceLocked(spaceID)
	return nil
}

func (s *MemoryStore) deleteSpaceLocked(spaceID string) {
	for id, col := range s.st.columns {
		if col.SpaceID == spaceID {
			s.deleteColumnLocked(id)
		}
	}
	delete(s.st.spaces, spaceID)
}

func (s *MemoryStore) ListColumns(_ context.Context, spaceID string) ([]Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Column, 0)
	for _, col := range s.st.columns {
		if col.SpaceID == spaceID {
			items = append(items, col)
		}
	}
	sort.Slice(items, func(i, j int) bool { return lessOrder(items[i].Order, items[i].ID, items[j].Order, items[j].ID) })
	return items, nil
}

func (s *MemoryStore) GetColumn(_ context.Context, columnID string) (Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.st.columns[columnID]
	if !ok {
		return Column{}, sql.ErrNoRows
	}
	return col, nil
}

func (s *MemoryStore) CreateColumn(_ context.Context, col Column) (Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.spaces[col.SpaceID]; !ok {
		return Column{}, fmt.Errorf("insert column: %w", sql.ErrNoRows)
	}
	now := s.now().UTC()
	col.CreatedAt, col.UpdatedAt = now, now
	s.st.columns[col.ID] = col
	return col, nil
}

func (s *MemoryStore) UpdateColumn(_ context.Context, columnID string, patch ColumnPatch) (Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.st.columns[columnID]
	if !ok {
		return Column{}, sql.ErrNoRows
	}
	if patch.Name != nil {
		col.Name = *patch.Name
	}
	if patch.Color != nil {
		col.Color = *patch.Color
	}
	col.UpdatedAt = s.now().UTC()
	s.st.columns[columnID] = col
	return col, nil
}

func (s *MemoryStore) DeleteColumn(_ context.Context, columnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.columns[columnID]; !ok {
		return sql.ErrNoRows
	}
	s.deleteColumnLocked(columnID)
	return nil
}

func (s *MemoryStore) deleteColumnLocked(columnID string) {
	for id, task := range s.st.tasks {
		if task.ColumnID == columnID {
			delete(s.st.tasks, id)
		}
	}
	delete(s.st.columns, columnID)
}

func (s *MemoryStore) ListTasksByColumn(_ context.Context, columnID string) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Task, 0)
	for _, task := range s.st.tasks {
		if task.ColumnID == columnID {
			items = append(items, s.withAssigneeLocked(task))
		}
	}
	sort.Slice(items, func(i, j int) bool { return lessOrder(items[i].Order, items[i].ID, items[j].Order, items[j].ID) })
	return items, nil
}

func (s *MemoryStore) ListTasksBySpace(_ context.Context, spaceID string) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]Task, 0)
	for _, task := range s.st.tasks {
		if col, ok := s.st.columns[task.ColumnID]; ok && col.SpaceID == spaceID {
			items = append(items, s.withAssigneeLocked(task))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		ci, cj := s.st.columns[items[i].ColumnID], s.st.columns[items[j].ColumnID]
		if ci.ID != cj.ID {
			return lessOrder(ci.Order, ci.ID, cj.Order, cj.ID)
		}
		return lessOrder(items[i].Order, items[i].ID, items[j].Order, items[j].ID)
	})
	return items, nil
}

func (s *MemoryStore) GetTask(_ context.Context, taskID string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.st.tasks[taskID]
	if !ok {
		return Task{}, sql.ErrNoRows
	}
	return s.withAssigneeLocked(task), nil
}

func (s *MemoryStore) CreateTask(_ context.Context, task Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.columns[task.ColumnID]; !ok {
		return Task{}, fmt.Errorf("insert task: %w", sql.ErrNoRows)
	}
	if task.AssigneeID != nil {
		if _, ok := s.st.users[*task.AssigneeID]; !ok {
			return Task{}, fmt.Errorf("insert task: %w: tasks_assignee_id_fkey", sql.ErrNoRows)
		}
	}
	if task.Tags == nil {
		task.Tags = []string{}
	}
	now := s.now().UTC()
	task.CreatedAt, task.UpdatedAt = now, now
	task.Assignee = nil
	s.st.tasks[task.ID] = task
	return s.withAssigneeLocked(task), nil
}

func (s *MemoryStore) UpdateTask(_ context.Context, taskID string, patch TaskPatch) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.st.tasks[taskID]
	if !ok {
		return Task{}, sql.ErrNoRows
	}
	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Description != nil {
		task.Description = patch.Description
	}
	if patch.Priority != nil {
		task.Priority = *patch.Priority
	}
	if patch.ClearDueDate {
		task.DueDate = nil
	} else if patch.DueDate != nil {
		task.DueDate = patch.DueDate
	}
	if patch.Tags != nil {
		task.Tags = append([]string{}, (*patch.Tags)...)
	}
	if patch.ClearAssignee {
		task.AssigneeID = nil
	} else if patch.AssigneeID != nil {
		if _, ok := s.st.users[*patch.AssigneeID]; !ok {
			return Task{}, fmt.Errorf("update task: %w: tasks_assignee_id_fkey", sql.ErrNoRows)
		}
		task.AssigneeID = patch.AssigneeID
	}
	task.UpdatedAt = s.now().UTC()
	s.st.tasks[taskID] = task
	return s.withAssigneeLocked(task), nil
}

func (s *MemoryStore) DeleteTask(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.tasks[taskID]; !ok {
		return sql.ErrNoRows
	}
	delete(s.st.tasks, taskID)
	return nil
}

func (s *MemoryStore) ListTaskDocuments(_ context.Context, workspaceID string) ([]TaskDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]TaskDocument, 0)
	for _, task := range s.st.tasks {
		doc, ok := s.documentLocked(task)
		if !ok || (workspaceID != "" && doc.WorkspaceID != workspaceID) {
			continue
		}
		items = append(items, doc)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *MemoryStore) GetTaskDocument(_ context.Context, taskID string) (TaskDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.st.tasks[taskID]
	if !ok {
		return TaskDocument{}, sql.ErrNoRows
	}
	doc, ok := s.documentLocked(task)
	if !ok {
		return TaskDocument{}, sql.ErrNoRows
	}
	return doc, nil
}

// SearchTasks matches query case-insensitively against title and
// description within one workspace.
func (s *MemoryStore) SearchTasks(ctx context.Context, workspaceID, query string, limit int) ([]TaskDocument, error) {
	docs, err := s.ListTaskDocuments(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	out := make([]TaskDocument, 0)
	for _, doc := range docs {
		if needle != "" && !strings.Contains(strings.ToLower(doc.Title), needle) && !strings.Contains(strings.ToLower(doc.Description), needle) {
			continue
		}
		out = append(out, doc)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) documentLocked(task Task) (TaskDocument, bool) {
	col, ok := s.st.columns[task.ColumnID]
	if !ok {
		return TaskDocument{}, false
	}
	sp, ok := s.st.spaces[col.SpaceID]
	if !ok {
		return TaskDocument{}, false
	}
	description := ""
	if task.Description != nil {
		description = *task.Description
	}
	return TaskDocument{
		ID:          task.ID,
		WorkspaceID: sp.WorkspaceID,
		SpaceID:     sp.ID,
		ColumnID:    col.ID,
		Title:       task.Title,
		Description: description,
		Priority:    task.Priority,
		Tags:        append([]string{}, task.Tags...),
		UpdatedAt:   task.UpdatedAt,
	}, true
}

func (s *MemoryStore) summaryLocked(userID string) UserSummary {
	user := s.st.users[userID]
	return UserSummary{ID: user.ID, Name: user.Name, Email: user.Email, Avatar: user.Avatar}
}

func (s *MemoryStore) withAssigneeLocked(task Task) Task {
	task.Assignee = nil
	if task.AssigneeID != nil {
		if _, ok := s.st.users[*task.AssigneeID]; ok {
			summary := s.summaryLocked(*task.AssigneeID)
			task.Assignee = &summary
		}
	}
	task.Tags = append([]string{}, task.Tags...)
	return task
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ordering.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(ctx, memOrderingTx{s: s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) CountSiblings(_ context.Context, kind ordering.Kind, parentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.itemsLocked(kind)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, item := range items {
		if item.ParentID == parentID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) itemsLocked(kind ordering.Kind) ([]ordering.Item, error) {
	var items []ordering.Item
	switch kind {
	case ordering.KindTask:
		for _, t := range s.st.tasks {
			items = append(items, ordering.Item{ID: t.ID, ParentID: t.ColumnID, Order: t.Order})
		}
	case ordering.KindColumn:
		for _, c := range s.st.columns {
			items = append(items, ordering.Item{ID: c.ID, ParentID: c.SpaceID, Order: c.Order})
		}
	case ordering.KindSpace:
		for _, sp := range s.st.spaces {
			items = append(items, ordering.Item{ID: sp.ID, ParentID: sp.WorkspaceID, Order: sp.Order})
		}
	default:
		return nil, fmt.Errorf("unknown ordering kind %q", kind)
	}
	return items, nil
}

func (s *MemoryStore) parentExistsLocked(kind ordering.Kind, parentID string) bool {
	switch kind {
	case ordering.KindTask:
		_, ok := s.st.columns[parentID]
		return ok
	case ordering.KindColumn:
		_, ok := s.st.spaces[parentID]
		return ok
	case ordering.KindSpace:
		_, ok := s.st.workspaces[parentID]
		return ok
	default:
		return false
	}
}

// memOrderingTx runs with MemoryStore.mu already held by WithinTx.
type memOrderingTx struct {
	s *MemoryStore
}

func (m memOrderingTx) LockItem(_ context.Context, kind ordering.Kind, id string) (ordering.Item, error) {
	items, err := m.s.itemsLocked(kind)
	if err != nil {
		return ordering.Item{}, err
	}
	for _, item := range items {
		if item.ID == id {
			return item, nil
		}
	}
	return ordering.Item{}, ordering.ErrNotFound
}

func (m memOrderingTx) LockSiblings(_ context.Context, kind ordering.Kind, parentID string) ([]ordering.Item, error) {
	if !m.s.parentExistsLocked(kind, parentID) {
		return nil, ordering.ErrNotFound
	}
	items, err := m.s.itemsLocked(kind)
	if err != nil {
		return nil, err
	}
	out := make([]ordering.Item, 0)
	for _, item := range items {
		if item.ParentID == parentID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessOrder(out[i].Order, out[i].ID, out[j].Order, out[j].ID) })
	return out, nil
}

func (m memOrderingTx) ApplyUpdates(_ context.Context, kind ordering.Kind, updates []ordering.Update) error {
	st := &m.s.st
	now := m.s.now().UTC()
	for _, u := range updates {
		switch kind {
		case ordering.KindTask:
			task, ok := st.tasks[u.ID]
			if !ok {
				return fmt.Errorf("%w: %s", ordering.ErrNotFound, u.ID)
			}
			if _, ok := st.columns[u.ParentID]; !ok {
				return fmt.Errorf("%w: parent %s", ordering.ErrNotFound, u.ParentID)
			}
			task.ColumnID, task.Order, task.UpdatedAt = u.ParentID, u.Order, now
			st.tasks[u.ID] = task
		case ordering.KindColumn:
			col, ok := st.columns[u.ID]
			if !ok || col.SpaceID != u.ParentID {
				return fmt.Errorf("%w: %s", ordering.ErrNotFound, u.ID)
			}
			col.Order, col.UpdatedAt = u.Order, now
			st.columns[u.ID] = col
		case ordering.KindSpace:
			sp, ok := st.spaces[u.ID]
			if !ok || sp.WorkspaceID != u.ParentID {
				return fmt.Errorf("%w: %s", ordering.ErrNotFound, u.ID)
			}
			sp.Order, sp.UpdatedAt = u.Order, now
			st.spaces[u.ID] = sp
		default:
			return fmt.Errorf("unknown ordering kind %q", kind)
		}
	}
	return nil
}

func (s *MemoryStore) ResolveScope(_ context.Context, resource access.Resource, id string) (access.Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch resource {
	case access.ResourceWorkspace:
		if _, ok := s.st.workspaces[id]; !ok {
			return access.Scope{}, sql.ErrNoRows
		}
		return access.Scope{WorkspaceID: id}, nil
	case access.ResourceSpace:
		sp, ok := s.st.spaces[id]
		if !ok {
			return access.Scope{}, sql.ErrNoRows
		}
		return access.Scope{WorkspaceID: sp.WorkspaceID, SpaceID: sp.ID}, nil
	case access.ResourceColumn:
		col, ok := s.st.columns[id]
		if !ok {
			return access.Scope{}, sql.ErrNoRows
		}
		sp, ok := s.st.spaces[col.SpaceID]
		if !ok {
			return access.Scope{}, sql.ErrNoRows
		}
		return access.Scope{WorkspaceID: sp.WorkspaceID, SpaceID: sp.ID, ColumnID: col.ID}, nil
	case access.ResourceTask:
		task, ok := s.st.tasks[id]
		if !ok {
			return access.Scope{}, sql.ErrNoRows
		}
		col, ok := s.st.columns[task.ColumnID]
		if !ok {
			return access.Scope{}, sql.ErrNoRows
		}
		sp, ok := s.st.spaces[col.SpaceID]
		if !ok {
			return access.Scope{}, sql.ErrNoRows
		}
		return access.Scope{WorkspaceID: sp.WorkspaceID, SpaceID: sp.ID, ColumnID: col.ID}, nil
	default:
		return access.Scope{}, fmt.Errorf("unknown resource %q", resource)
	}
}

func (s *MemoryStore) MemberRole(_ context.Context, workspaceID, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.st.members[workspaceID][userID]
	if !ok {
		return "", sql.ErrNoRows
	}
	return m.Role, nil
}

func lessOrder(orderA int, idA string, orderB int, idB string) bool {
	if orderA != orderB {
		return orderA < orderB
	}
	return idA < idB
}
