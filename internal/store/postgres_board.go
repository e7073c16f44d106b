package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const workspaceColumns = `id, name, description, icon, color, created_at, updated_at`

func scanWorkspace(row interface{ Scan(...any) error }) (Workspace, error) {
	var ws Workspace
	err := row.Scan(&ws.ID, &ws.Name, &ws.Description, &ws.Icon, &ws.Color, &ws.CreatedAt, &ws.UpdatedAt)
	return ws, err
}

func (s *PostgresStore) ListWorkspacesForUser(ctx context.Context, userID string) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.description, w.icon, w.color, w.created_at, w.updated_at
		FROM workspaces w
		JOIN workspace_members m ON m.workspace_id = w.id
		WHERE m.user_id = $1
		ORDER BY w.created_at ASC, w.id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	items := make([]Workspace, 0)
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		items = append(items, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspaces: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID string) (Workspace, error) {
	return scanWorkspace(s.db.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE id=$1`, workspaceID))
}

// CreateWorkspace inserts the workspace and makes ownerID its owner in one
// transaction.
func (s *PostgresStore) CreateWorkspace(ctx context.Context, ws Workspace, ownerID string) (Workspace, error) {
	var created Workspace
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = scanWorkspace(tx.QueryRowContext(ctx, `
			INSERT INTO workspaces (id, name, description, icon, color)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+workspaceColumns,
			ws.ID, ws.Name, ws.Description, ws.Icon, ws.Color))
		if err != nil {
			return fmt.Errorf("insert workspace: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO workspace_members (workspace_id, user_id, role)
			VALUES ($1, $2, 'owner')
		`, created.ID, ownerID); err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return Workspace{}, err
	}
	return created, nil
}

func (s *PostgresStore) UpdateWorkspace(ctx context.Context, workspaceID string, patch WorkspacePatch) (Workspace, error) {
	return scanWorkspace(s.db.QueryRowContext(ctx, `
		UPDATE workspaces
		SET name=COALESCE($2, name),
			description=COALESCE($3, description),
			icon=COALESCE($4, icon),
			color=COALESCE($5, color),
			updated_at=NOW()
		WHERE id=$1
		RETURNING `+workspaceColumns,
		workspaceID, patch.Name, patch.Description, patch.Icon, patch.Color))
}

func (s *PostgresStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	return execOne(ctx, s.db, `DELETE FROM workspaces WHERE id=$1`, workspaceID)
}

func (s *PostgresStore) ListMembers(ctx context.Context, workspaceID string) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.workspace_id, m.user_id, m.role, m.joined_at, u.name, u.email, u.avatar
		FROM workspace_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id = $1
		ORDER BY m.joined_at ASC, m.user_id ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]Member, 0)
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.WorkspaceID, &m.UserID, &m.Role, &m.JoinedAt, &m.User.Name, &m.User.Email, &m.User.Avatar); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.User.ID = m.UserID
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return items, nil
}

// AddMember fails with ErrConflict when the user already belongs to the
// workspace.
func (s *PostgresStore) AddMember(ctx context.Context, workspaceID, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role)
		VALUES ($1, $2, $3)
	`, workspaceID, userID, role)
	if err != nil {
		return fmt.Errorf("add member: %w", translate(err))
	}
	return nil
}

const spaceColumns = `id, workspace_id, name, description, icon, color, sort_order, created_at, updated_at`

func scanSpace(row interface{ Scan(...any) error }) (Space, error) {
	var sp Space
	err := row.Scan(&sp.ID, &sp.WorkspaceID, &sp.Name, &sp.Description, &sp.Icon, &sp.Color, &sp.Order, &sp.CreatedAt, &sp.UpdatedAt)
	return sp, err
}

func (s *PostgresStore) ListSpaces(ctx context.Context, workspaceID string) ([]Space, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+spaceColumns+`
		FROM spaces
		WHERE workspace_id = $1
		ORDER BY sort_order ASC, id ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	defer rows.Close()

	items := make([]Space, 0)
	for rows.Next() {
		sp, err := scanSpace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan space: %w", err)
		}
		items = append(items, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spaces: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetSpace(ctx context.Context, spaceID string) (Space, error) {
	return scanSpace(s.db.QueryRowContext(ctx, `SELECT `+spaceColumns+` FROM spaces WHERE id=$1`, spaceID))
}

// CreateSpace inserts the space together with its initial columns.
func (s *PostgresStore) CreateSpace(ctx context.Context, sp Space, columns []Column) (Space, error) {
	var created Space
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = scanSpace(tx.QueryRowContext(ctx, `
			INSERT INTO spaces (id, workspace_id, name, description, icon, color, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING `+spaceColumns,
			sp.ID, sp.WorkspaceID, sp.Name, sp.Description, sp.Icon, sp.Color, sp.Order))
		if err != nil {
			return fmt.Errorf("insert space: %w", err)
		}
		for _, col := range columns {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO columns (id, space_id, name, color, sort_order)
				VALUES ($1, $2, $3, $4, $5)
			`, col.ID, created.ID, col.Name, col.Color, col.Order); err != nil {
				return fmt.Errorf("insert default column %s: %w", col.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return Space{}, err
	}
	return created, nil
}

func (s *PostgresStore) UpdateSpace(ctx context.Context, spaceID string, patch SpacePatch) (Space, error) {
	return scanSpace(s.db.QueryRowContext(ctx, `
		UPDATE spaces
		SET name=COALESCE($2, name),
			description=COALESCE($3, description),
			icon=COALESCE($4, icon),
			color=COALESCE($5, color),
			updated_at=NOW()
		WHERE id=$1
		RETURNING `+spaceColumns,
		spaceID, patch.Name, patch.Description, patch.Icon, patch.Color))
}

func (s *PostgresStore) DeleteSpace(ctx context.Context, spaceID string) error {
	return execOne(ctx, s.db, `DELETE FROM spaces WHERE id=$1`, spaceID)
}

const columnColumns = `id, space_id, name, color, sort_order, created_at, updated_at`

func scanColumn(row interface{ Scan(...any) error }) (Column, error) {
	var col Column
	err := row.Scan(&col.ID, &col.SpaceID, &col.Name, &col.Color, &col.Order, &col.CreatedAt, &col.UpdatedAt)
	return col, err
}

func (s *PostgresStore) ListColumns(ctx context.Context, spaceID string) ([]Column, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+columnColumns+`
		FROM columns
		WHERE space_id = $1
		ORDER BY sort_order ASC, id ASC
	`, spaceID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	items := make([]Column, 0)
	for rows.Next() {
		col, err := scanColumn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		items = append(items, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetColumn(ctx context.Context, columnID string) (Column, error) {
	return scanColumn(s.db.QueryRowContext(ctx, `SELECT `+columnColumns+` FROM columns WHERE id=$1`, columnID))
}

func (s *PostgresStore) CreateColumn(ctx context.Context, col Column) (Column, error) {
	created, err := scanColumn(s.db.QueryRowContext(ctx, `
		INSERT INTO columns (id, space_id, name, color, sort_order)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+columnColumns,
		col.ID, col.SpaceID, col.Name, col.Color, col.Order))
	if err != nil {
		return Column{}, fmt.Errorf("insert column: %w", translate(err))
	}
	return created, nil
}

func (s *PostgresStore) UpdateColumn(ctx context.Context, columnID string, patch ColumnPatch) (Column, error) {
	return scanColumn(s.db.QueryRowContext(ctx, `
		UPDATE columns
		SET name=COALESCE($2, name), color=COALESCE($3, color), updated_at=NOW()
		WHERE id=$1
		RETURNING `+columnColumns,
		columnID, patch.Name, patch.Color))
}

func (s *PostgresStore) DeleteColumn(ctx context.Context, columnID string) error {
	return execOne(ctx, s.db, `DELETE FROM columns WHERE id=$1`, columnID)
}

const taskSelect = `
	SELECT t.id, t.column_id, t.title, t.description, t.priority, t.due_date, t.tags,
		t.assignee_id, u.name, u.email, u.avatar, t.sort_order, t.created_at, t.updated_at
	FROM tasks t
	LEFT JOIN users u ON u.id = t.assignee_id
`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var (
		task          Task
		tagsRaw       []byte
		assigneeName  sql.NullString
		assigneeEmail sql.NullString
		assigneeAv    *string
	)
	err := row.Scan(&task.ID, &task.ColumnID, &task.Title, &task.Description, &task.Priority, &task.DueDate, &tagsRaw,
		&task.AssigneeID, &assigneeName, &assigneeEmail, &assigneeAv, &task.Order, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return Task{}, err
	}
	task.Tags = make([]string, 0)
	if len(tagsRaw) > 0 {
		if err := json.Unmarshal(tagsRaw, &task.Tags); err != nil {
			return Task{}, fmt.Errorf("decode task tags: %w", err)
		}
	}
	if task.AssigneeID != nil && assigneeName.Valid {
		task.Assignee = &UserSummary{ID: *task.AssigneeID, Name: assigneeName.String, Email: assigneeEmail.String, Avatar: assigneeAv}
	}
	return task, nil
}

func (s *PostgresStore) queryTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListTasksByColumn(ctx context.Context, columnID string) ([]Task, error) {
	return s.queryTasks(ctx, taskSelect+` WHERE t.column_id = $1 ORDER BY t.sort_order ASC, t.id ASC`, columnID)
}

// ListTasksBySpace returns every task of the space ordered by column then
// position, for assembling a board.
func (s *PostgresStore) ListTasksBySpace(ctx context.Context, spaceID string) ([]Task, error) {
	return s.queryTasks(ctx, taskSelect+`
		JOIN columns c ON c.id = t.column_id
		WHERE c.space_id = $1
		ORDER BY c.sort_order ASC, c.id ASC, t.sort_order ASC, t.id ASC
	`, spaceID)
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	return scanTask(s.db.QueryRowContext(ctx, taskSelect+` WHERE t.id = $1`, taskID))
}

func (s *PostgresStore) CreateTask(ctx context.Context, task Task) (Task, error) {
	tags, err := encodeTags(task.Tags)
	if err != nil {
		return Task{}, err
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, column_id, title, description, priority, due_date, tags, assignee_id, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9)
	`, task.ID, task.ColumnID, task.Title, task.Description, task.Priority, task.DueDate, tags, task.AssigneeID, task.Order); err != nil {
		return Task{}, fmt.Errorf("insert task: %w", translate(err))
	}
	return s.GetTask(ctx, task.ID)
}

func (s *PostgresStore) UpdateTask(ctx context.Context, taskID string, patch TaskPatch) (Task, error) {
	var tags *string
	if patch.Tags != nil {
		encoded, err := encodeTags(*patch.Tags)
		if err != nil {
			return Task{}, err
		}
		tags = &encoded
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title=COALESCE($2, title),
			description=COALESCE($3, description),
			priority=COALESCE($4, priority),
			due_date=CASE WHEN $5 THEN NULL ELSE COALESCE($6, due_date) END,
			tags=COALESCE($7::jsonb, tags),
			assignee_id=CASE WHEN $8 THEN NULL ELSE COALESCE($9, assignee_id) END,
			updated_at=NOW()
		WHERE id=$1
	`, taskID, patch.Title, patch.Description, patch.Priority, patch.ClearDueDate, patch.DueDate, tags, patch.ClearAssignee, patch.AssigneeID)
	if err != nil {
		return Task{}, fmt.Errorf("update task: %w", translate(err))
	}
	if err := requireOne(result); err != nil {
		return Task{}, err
	}
	return s.GetTask(ctx, taskID)
}

func (s *PostgresStore) DeleteTask(ctx context.Context, taskID string) error {
	return execOne(ctx, s.db, `DELETE FROM tasks WHERE id=$1`, taskID)
}

// ListTaskDocuments returns the searchable projection of every task, or of
// one workspace when workspaceID is set.
func (s *PostgresStore) ListTaskDocuments(ctx context.Context, workspaceID string) ([]TaskDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, sp.workspace_id, sp.id, t.column_id, t.title, COALESCE(t.description, ''), t.priority, t.tags, t.updated_at
		FROM tasks t
		JOIN columns c ON c.id = t.column_id
		JOIN spaces sp ON sp.id = c.space_id
		WHERE $1 = '' OR sp.workspace_id = $1
		ORDER BY t.id ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list task documents: %w", err)
	}
	defer rows.Close()

	items := make([]TaskDocument, 0)
	for rows.Next() {
		var (
			doc     TaskDocument
			tagsRaw []byte
		)
		if err := rows.Scan(&doc.ID, &doc.WorkspaceID, &doc.SpaceID, &doc.ColumnID, &doc.Title, &doc.Description, &doc.Priority, &tagsRaw, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task document: %w", err)
		}
		if err := json.Unmarshal(tagsRaw, &doc.Tags); err != nil {
			return nil, fmt.Errorf("decode task tags: %w", err)
		}
		items = append(items, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetTaskDocument(ctx context.Context, taskID string) (TaskDocument, error) {
	var (
		doc     TaskDocument
		tagsRaw []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT t.id, sp.workspace_id, sp.id, t.column_id, t.title, COALESCE(t.description, ''), t.priority, t.tags, t.updated_at
		FROM tasks t
		JOIN columns c ON c.id = t.column_id
		JOIN spaces sp ON sp.id = c.space_id
		WHERE t.id = $1
	`, taskID).Scan(&doc.ID, &doc.WorkspaceID, &doc.SpaceID, &doc.ColumnID, &doc.Title, &doc.Description, &doc.Priority, &tagsRaw, &doc.UpdatedAt)
	if err != nil {
		return TaskDocument{}, err
	}
	if err := json.Unmarshal(tagsRaw, &doc.Tags); err != nil {
		return TaskDocument{}, fmt.Errorf("decode task tags: %w", err)
	}
	return doc, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode task tags: %w", err)
	}
	return string(encoded), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execOne runs a single-row statement and reports sql.ErrNoRows when it
// touched nothing.
func execOne(ctx context.Context, db execer, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err)
	}
	return requireOne(result)
}

func requireOne(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
