package app

import (
	"time"

	"kanban/api/internal/store"
)

type UserView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Avatar    *string   `json:"avatar"`
	CreatedAt time.Time `json:"createdAt"`
}

type UserSummaryView struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Avatar *string `json:"avatar"`
}

type MemberView struct {
	WorkspaceID string          `json:"workspaceId"`
	UserID      string          `json:"userId"`
	Role        string          `json:"role"`
	JoinedAt    time.Time       `json:"joinedAt"`
	User        UserSummaryView `json:"user"`
}

type WorkspaceView struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description *string      `json:"description"`
	Icon        string       `json:"icon"`
	Color       string       `json:"color"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Members     []MemberView `json:"members"`
	Spaces      []SpaceView  `json:"spaces"`
}

type SpaceView struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Icon        string    `json:"icon"`
	Color       string    `json:"color"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type ColumnView struct {
	ID        string    `json:"id"`
	SpaceID   string    `json:"spaceId"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type AssigneeView struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Avatar *string `json:"avatar"`
}

type TaskView struct {
	ID          string        `json:"id"`
	ColumnID    string        `json:"columnId"`
	Title       string        `json:"title"`
	Description *string       `json:"description"`
	Priority    string        `json:"priority"`
	DueDate     *time.Time    `json:"dueDate"`
	Tags        []string      `json:"tags"`
	AssigneeID  *string       `json:"assigneeId"`
	Assignee    *AssigneeView `json:"assignee"`
	Order       int           `json:"order"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// BoardColumn is a column with its tasks in display order. It is the unit the
// board cache stores per space.
type BoardColumn struct {
	ColumnView
	Tasks []TaskView `json:"tasks"`
}

type BoardSpace struct {
	SpaceView
	Columns []BoardColumn `json:"columns"`
}

func userView(u store.User) UserView {
	return UserView{ID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar, CreatedAt: u.CreatedAt}
}

func memberView(m store.Member) MemberView {
	return MemberView{
		WorkspaceID: m.WorkspaceID,
		UserID:      m.UserID,
		Role:        m.Role,
		JoinedAt:    m.JoinedAt,
		User: UserSummaryView{
			ID:     m.User.ID,
			Name:   m.User.Name,
			Email:  m.User.Email,
			Avatar: m.User.Avatar,
		},
	}
}

func workspaceView(ws store.Workspace, members []store.Member, spaces []store.Space) WorkspaceView {
	view := WorkspaceView{
		ID:          ws.ID,
		Name:        ws.Name,
		Description: ws.Description,
		Icon:        ws.Icon,
		Color:       ws.Color,
		CreatedAt:   ws.CreatedAt,
		UpdatedAt:   ws.UpdatedAt,
		Members:     make([]MemberView, 0, len(members)),
		Spaces:      make([]SpaceView, 0, len(spaces)),
	}
	for _, m := range members {
		view.Members = append(view.Members, memberView(m))
	}
	for _, sp := range spaces {
		view.Spaces = append(view.Spaces, spaceView(sp))
	}
	return view
}

func spaceView(sp store.Space) SpaceView {
	return SpaceView{
		ID:          sp.ID,
		WorkspaceID: sp.WorkspaceID,
		Name:        sp.Name,
		Description: sp.Description,
		Icon:        sp.Icon,
		Color:       sp.Color,
		Order:       sp.Order,
		CreatedAt:   sp.CreatedAt,
		UpdatedAt:   sp.UpdatedAt,
	}
}

func columnView(col store.Column) ColumnView {
	return ColumnView{
		ID:        col.ID,
		SpaceID:   col.SpaceID,
		Name:      col.Name,
		Color:     col.Color,
		Order:     col.Order,
		CreatedAt: col.CreatedAt,
		UpdatedAt: col.UpdatedAt,
	}
}

func columnViews(cols []store.Column) []ColumnView {
	views := make([]ColumnView, 0, len(cols))
	for _, col := range cols {
		views = append(views, columnView(col))
	}
	return views
}

func taskView(t store.Task) TaskView {
	view := TaskView{
		ID:          t.ID,
		ColumnID:    t.ColumnID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		DueDate:     t.DueDate,
		Tags:        t.Tags,
		AssigneeID:  t.AssigneeID,
		Order:       t.Order,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if view.Tags == nil {
		view.Tags = []string{}
	}
	if t.Assignee != nil {
		view.Assignee = &AssigneeView{ID: t.Assignee.ID, Name: t.Assignee.Name, Avatar: t.Assignee.Avatar}
	}
	return view
}

func taskViews(tasks []store.Task) []TaskView {
	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, taskView(t))
	}
	return views
}

// groupBoard nests tasks under their columns. Both inputs arrive sorted by
// order, and the output keeps that order.
func groupBoard(cols []store.Column, tasks []store.Task) []BoardColumn {
	byColumn := make(map[string][]TaskView, len(cols))
	for _, t := range tasks {
		byColumn[t.ColumnID] = append(byColumn[t.ColumnID], taskView(t))
	}
	board := make([]BoardColumn, 0, len(cols))
	for _, col := range cols {
		tasks := byColumn[col.ID]
		if tasks == nil {
			tasks = []TaskView{}
		}
		board = append(board, BoardColumn{ColumnView: columnView(col), Tasks: tasks})
	}
	return board
}
