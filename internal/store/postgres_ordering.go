package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kanban/api/internal/access"
	"kanban/api/internal/ordering"
)

// orderedTable names the table, parent column and parent table behind an
// ordering kind. Values are constants, never user input.
type orderedTable struct {
	table       string
	parentCol   string
	parentTable string
}

func tableFor(kind ordering.Kind) (orderedTable, error) {
	switch kind {
	case ordering.KindTask:
		return orderedTable{table: "tasks", parentCol: "column_id", parentTable: "columns"}, nil
	case ordering.KindColumn:
		return orderedTable{table: "columns", parentCol: "space_id", parentTable: "spaces"}, nil
	case ordering.KindSpace:
		return orderedTable{table: "spaces", parentCol: "workspace_id", parentTable: "workspaces"}, nil
	default:
		return orderedTable{}, fmt.Errorf("unknown ordering kind %q", kind)
	}
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ordering.Tx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, &pgOrderingTx{tx: tx})
	})
}

func (s *PostgresStore) CountSiblings(ctx context.Context, kind ordering.Kind, parentID string) (int, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s=$1`, t.table, t.parentCol)
	if err := s.db.QueryRowContext(ctx, query, parentID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", t.table, err)
	}
	return count, nil
}

type pgOrderingTx struct {
	tx *sql.Tx
}

func (p *pgOrderingTx) LockItem(ctx context.Context, kind ordering.Kind, id string) (ordering.Item, error) {
	t, err := tableFor(kind)
	if err != nil {
		return ordering.Item{}, err
	}
	var item ordering.Item
	query := fmt.Sprintf(`SELECT id, %s, sort_order FROM %s WHERE id=$1 FOR UPDATE`, t.parentCol, t.table)
	err = p.tx.QueryRowContext(ctx, query, id).Scan(&item.ID, &item.ParentID, &item.Order)
	if errors.Is(err, sql.ErrNoRows) {
		return ordering.Item{}, ordering.ErrNotFound
	}
	if err != nil {
		return ordering.Item{}, fmt.Errorf("lock %s: %w", t.table, err)
	}
	return item, nil
}

// LockSiblings takes a lock on the parent row first so moves into an empty
// collection still serialize, then locks the sibling rows themselves.
func (p *pgOrderingTx) LockSiblings(ctx context.Context, kind ordering.Kind, parentID string) ([]ordering.Item, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	var lockedParent string
	parentQuery := fmt.Sprintf(`SELECT id FROM %s WHERE id=$1 FOR NO KEY UPDATE`, t.parentTable)
	err = p.tx.QueryRowContext(ctx, parentQuery, parentID).Scan(&lockedParent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ordering.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", t.parentTable, err)
	}

	query := fmt.Sprintf(`
		SELECT id, %s, sort_order
		FROM %s
		WHERE %s=$1
		ORDER BY sort_order ASC, id ASC
		FOR UPDATE
	`, t.parentCol, t.table, t.parentCol)
	rows, err := p.tx.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("lock %s siblings: %w", t.table, err)
	}
	defer rows.Close()

	items := make([]ordering.Item, 0)
	for rows.Next() {
		var item ordering.Item
		if err := rows.Scan(&item.ID, &item.ParentID, &item.Order); err != nil {
			return nil, fmt.Errorf("scan %s sibling: %w", t.table, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s siblings: %w", t.table, err)
	}
	return items, nil
}

func (p *pgOrderingTx) ApplyUpdates(ctx context.Context, kind ordering.Kind, updates []ordering.Update) error {
	t, err := tableFor(kind)
	if err != nil {
		return err
	}

	var query string
	if kind.Reparentable() {
		query = fmt.Sprintf(`UPDATE %s SET %s=$3, sort_order=$2, updated_at=NOW() WHERE id=$1`, t.table, t.parentCol)
	} else {
		query = fmt.Sprintf(`UPDATE %s SET sort_order=$2, updated_at=NOW() WHERE id=$1 AND %s=$3`, t.table, t.parentCol)
	}

	for _, update := range updates {
		result, err := p.tx.ExecContext(ctx, query, update.ID, update.Order, update.ParentID)
		if err != nil {
			if errors.Is(translate(err), sql.ErrNoRows) {
				return fmt.Errorf("%w: parent %s", ordering.ErrNotFound, update.ParentID)
			}
			return fmt.Errorf("update %s %s: %w", t.table, update.ID, err)
		}
		if err := requireOne(result); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", ordering.ErrNotFound, update.ID)
			}
			return err
		}
	}
	return nil
}

// ResolveScope walks a resource up to its workspace.
func (s *PostgresStore) ResolveScope(ctx context.Context, resource access.Resource, id string) (access.Scope, error) {
	var (
		scope access.Scope
		err   error
	)
	switch resource {
	case access.ResourceWorkspace:
		err = s.db.QueryRowContext(ctx, `SELECT id FROM workspaces WHERE id=$1`, id).Scan(&scope.WorkspaceID)
	case access.ResourceSpace:
		scope.SpaceID = id
		err = s.db.QueryRowContext(ctx, `SELECT workspace_id FROM spaces WHERE id=$1`, id).Scan(&scope.WorkspaceID)
	case access.ResourceColumn:
		scope.ColumnID = id
		err = s.db.QueryRowContext(ctx, `
			SELECT sp.workspace_id, sp.id
			FROM columns c
			JOIN spaces sp ON sp.id = c.space_id
			WHERE c.id=$1
		`, id).Scan(&scope.WorkspaceID, &scope.SpaceID)
	case access.ResourceTask:
		err = s.db.QueryRowContext(ctx, `
			SELECT sp.workspace_id, sp.id, c.id
			FROM tasks t
			JOIN columns c ON c.id = t.column_id
			JOIN spaces sp ON sp.id = c.space_id
			WHERE t.id=$1
		`, id).Scan(&scope.WorkspaceID, &scope.SpaceID, &scope.ColumnID)
	default:
		return access.Scope{}, fmt.Errorf("unknown resource %q", resource)
	}
	if err != nil {
		return access.Scope{}, err
	}
	return scope, nil
}

func (s *PostgresStore) MemberRole(ctx context.Context, workspaceID, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM workspace_members WHERE workspace_id=$1 AND user_id=$2`, workspaceID, userID).Scan(&role)
	if err != nil {
		return "", err
	}
	return role, nil
}
