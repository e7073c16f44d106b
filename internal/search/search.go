package search

import "context"

// Result is a single task hit returned to the caller.
type Result struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Snippet     string   `json:"snippet"`
	WorkspaceID string   `json:"workspaceId"`
	SpaceID     string   `json:"spaceId"`
	ColumnID    string   `json:"columnId"`
	Priority    string   `json:"priority"`
	Tags        []string `json:"tags"`
}

// Query describes a search request. WorkspaceID is mandatory; results never
// cross tenants.
type Query struct {
	Text        string
	WorkspaceID string
	SpaceID     string
	Limit       int
	Offset      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a task search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
}

// TaskRecord is the data we index for a task.
type TaskRecord struct {
	ID          string   `json:"id"`
	WorkspaceID string   `json:"workspaceId"`
	SpaceID     string   `json:"spaceId"`
	ColumnID    string   `json:"columnId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	Tags        []string `json:"tags"`
	UpdatedAt   int64    `json:"updatedAt"`
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 20
	}
	if q.Limit > 100 {
		return 100
	}
	return q.Limit
}

func (q Query) offset() int {
	if q.Offset < 0 {
		return 0
	}
	return q.Offset
}
