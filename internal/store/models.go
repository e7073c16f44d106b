package store

import "time"

type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Avatar       *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserSummary is the public face of a user embedded in members and tasks.
type UserSummary struct {
	ID     string
	Name   string
	Email  string
	Avatar *string
}

type Workspace struct {
	ID          string
	Name        string
	Description *string
	Icon        string
	Color       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Member struct {
	WorkspaceID string
	UserID      string
	Role        string
	JoinedAt    time.Time
	User        UserSummary
}

type Space struct {
	ID          string
	WorkspaceID string
	Name        string
	Description *string
	Icon        string
	Color       string
	Order       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Column struct {
	ID        string
	SpaceID   string
	Name      string
	Color     string
	Order     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Task struct {
	ID          string
	ColumnID    string
	Title       string
	Description *string
	Priority    string
	DueDate     *time.Time
	Tags        []string
	AssigneeID  *string
	Assignee    *UserSummary
	Order       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Patch types carry only the fields a caller wants to change. A nil pointer
// leaves the stored value alone.

type UserPatch struct {
	Name   *string
	Avatar *string
}

type WorkspacePatch struct {
	Name        *string
	Description *string
	Icon        *string
	Color       *string
}

type SpacePatch struct {
	Name        *string
	Description *string
	Icon        *string
	Color       *string
}

type ColumnPatch struct {
	Name  *string
	Color *string
}

type TaskPatch struct {
	Title         *string
	Description   *string
	Priority      *string
	DueDate       *time.Time
	ClearDueDate  bool
	Tags          *[]string
	AssigneeID    *string
	ClearAssignee bool
}

// TaskDocument is the searchable projection of a task.
type TaskDocument struct {
	ID          string
	WorkspaceID string
	SpaceID     string
	ColumnID    string
	Title       string
	Description string
	Priority    string
	Tags        []string
	UpdatedAt   time.Time
}
