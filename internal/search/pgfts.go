package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgFTS implements Searcher with PostgreSQL full-text search plus a
// substring match on the title, so short prefixes still hit.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}

	args := []any{text, q.WorkspaceID, containsPattern(text)}
	where := `sp.workspace_id = $2 AND (
		to_tsvector('simple', t.title || ' ' || coalesce(t.description, '')) @@ plainto_tsquery('simple', $1)
		OR t.title ILIKE $3 ESCAPE '\'
	)`
	if q.SpaceID != "" {
		args = append(args, q.SpaceID)
		where += fmt.Sprintf(" AND sp.id = $%d", len(args))
	}

	var total int
	countQuery := `
		SELECT COUNT(*)
		FROM tasks t
		JOIN columns c ON c.id = t.column_id
		JOIN spaces sp ON sp.id = c.space_id
		WHERE ` + where
	if err := p.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	args = append(args, q.limit(), q.offset())
	query := fmt.Sprintf(`
		SELECT t.id, t.title,
			ts_headline('simple', coalesce(t.description, ''), plainto_tsquery('simple', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			sp.workspace_id, sp.id, t.column_id, t.priority, t.tags
		FROM tasks t
		JOIN columns c ON c.id = t.column_id
		JOIN spaces sp ON sp.id = c.space_id
		WHERE %s
		ORDER BY ts_rank(to_tsvector('simple', t.title || ' ' || coalesce(t.description, '')), plainto_tsquery('simple', $1)) DESC, t.updated_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var (
			r       Result
			tagsRaw []byte
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.WorkspaceID, &r.SpaceID, &r.ColumnID, &r.Priority, &tagsRaw); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Tags = []string{}
		_ = json.Unmarshal(tagsRaw, &r.Tags)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgfts iterate: %w", err)
	}
	return results, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching text literally anywhere
// in the column.
func containsPattern(text string) string {
	return "%" + likeEscaper.Replace(text) + "%"
}
