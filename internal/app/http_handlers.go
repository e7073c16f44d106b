package app

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"kanban/api/internal/search"
)

func (s *HTTPServer) handleRegister(c echo.Context) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	result, err := s.service.Register(c.Request().Context(), body.Email, body.Password, body.Name)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, result)
}

func (s *HTTPServer) handleLogin(c echo.Context) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	result, err := s.service.Login(c.Request().Context(), body.Email, body.Password)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, result)
}

func (s *HTTPServer) handleRefresh(c echo.Context) error {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	pair, err := s.service.Refresh(c.Request().Context(), body.RefreshToken)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, pair)
}

func (s *HTTPServer) handleLogout(c echo.Context) error {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	if err := s.service.Logout(c.Request().Context(), sessionFrom(c), body.RefreshToken); err != nil {
		return err
	}
	return respondMessage(c, http.StatusOK, "Logged out")
}

func (s *HTTPServer) handleMe(c echo.Context) error {
	user, err := s.service.Me(c.Request().Context(), actor(c))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, user)
}

func (s *HTTPServer) handleUpdateMe(c echo.Context) error {
	var body UpdateMeInput
	if err := bind(c, &body); err != nil {
		return err
	}
	user, err := s.service.UpdateMe(c.Request().Context(), actor(c), body)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, user)
}

func (s *HTTPServer) handleListWorkspaces(c echo.Context) error {
	workspaces, err := s.service.ListWorkspaces(c.Request().Context(), actor(c))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, workspaces)
}

func (s *HTTPServer) handleCreateWorkspace(c echo.Context) error {
	var body WorkspaceInput
	if err := bind(c, &body); err != nil {
		return err
	}
	ws, err := s.service.CreateWorkspace(c.Request().Context(), actor(c), body)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, ws)
}

func (s *HTTPServer) handleGetWorkspace(c echo.Context) error {
	ws, err := s.service.GetWorkspace(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, ws)
}

func (s *HTTPServer) handleUpdateWorkspace(c echo.Context) error {
	var body WorkspacePatchInput
	if err := bind(c, &body); err != nil {
		return err
	}
	ws, err := s.service.UpdateWorkspace(c.Request().Context(), actor(c), c.Param("id"), body)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, ws)
}

func (s *HTTPServer) handleDeleteWorkspace(c echo.Context) error {
	if err := s.service.DeleteWorkspace(c.Request().Context(), actor(c), c.Param("id")); err != nil {
		return err
	}
	return respondMessage(c, http.StatusOK, "Workspace deleted")
}

func (s *HTTPServer) handleAddMember(c echo.Context) error {
	var body AddMemberInput
	if err := bind(c, &body); err != nil {
		return err
	}
	member, err := s.service.AddMember(c.Request().Context(), actor(c), c.Param("id"), body)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, member)
}

func (s *HTTPServer) handleListSpaces(c echo.Context) error {
	spaces, err := s.service.ListSpaces(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, spaces)
}

func (s *HTTPServer) handleCreateSpace(c echo.Context) error {
	var body SpaceInput
	if err := bind(c, &body); err != nil {
		return err
	}
	space, err := s.service.CreateSpace(c.Request().Context(), actor(c), c.Param("id"), body)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, space)
}

func (s *HTTPServer) handleSearchTasks(c echo.Context) error {
	q := search.Query{
		Text:    c.QueryParam("q"),
		SpaceID: strings.TrimSpace(c.QueryParam("spaceId")),
	}
	var err error
	if q.Limit, err = queryInt(c, "limit"); err != nil {
		return err
	}
	if q.Offset, err = queryInt(c, "offset"); err != nil {
		return err
	}
	resp, err := s.service.SearchTasks(c.Request().Context(), actor(c), c.Param("id"), q)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, resp)
}

func (s *HTTPServer) handleUpdateSpace(c echo.Context) error {
	var body SpacePatchInput
	if err := bind(c, &body); err != nil {
		return err
	}
	space, err := s.service.UpdateSpace(c.Request().Context(), actor(c), c.Param("id"), body)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, space)
}

func (s *HTTPServer) handleDeleteSpace(c echo.Context) error {
	if err := s.service.DeleteSpace(c.Request().Context(), actor(c), c.Param("id")); err != nil {
		return err
	}
	return respondMessage(c, http.StatusOK, "Space deleted")
}

func (s *HTTPServer) handleBoard(c echo.Context) error {
	board, err := s.service.Board(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, board)
}

func (s *HTTPServer) handleCreateColumn(c echo.Context) error {
	var body ColumnInput
	if err := bind(c, &body); err != nil {
		return err
	}
	col, err := s.service.CreateColumn(c.Request().Context(), actor(c), c.Param("id"), body)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, col)
}

func (s *HTTPServer) handleReorderColumns(c echo.Context) error {
	var body struct {
		Columns []ColumnOrder `json:"columns"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	cols, err := s.service.ReorderColumns(c.Request().Context(), actor(c), c.Param("id"), body.Columns)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, cols)
}

func (s *HTTPServer) handleUpdateColumn(c echo.Context) error {
	var body ColumnPatchInput
	if err := bind(c, &body); err != nil {
		return err
	}
	col, err := s.service.UpdateColumn(c.Request().Context(), actor(c), c.Param("id"), body)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, col)
}

func (s *HTTPServer) handleDeleteColumn(c echo.Context) error {
	if err := s.service.DeleteColumn(c.Request().Context(), actor(c), c.Param("id")); err != nil {
		return err
	}
	return respondMessage(c, http.StatusOK, "Column deleted")
}

func (s *HTTPServer) handleListTasks(c echo.Context) error {
	tasks, err := s.service.ListTasks(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, tasks)
}

func (s *HTTPServer) handleCreateTask(c echo.Context) error {
	var body TaskInput
	if err := bind(c, &body); err != nil {
		return err
	}
	task, err := s.service.CreateTask(c.Request().Context(), actor(c), c.Param("id"), body)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, task)
}

func (s *HTTPServer) handleReorderTasks(c echo.Context) error {
	var body struct {
		Tasks []TaskOrder `json:"tasks"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	if err := s.service.ReorderTasks(c.Request().Context(), actor(c), body.Tasks); err != nil {
		return err
	}
	return respondMessage(c, http.StatusOK, "Tasks reordered")
}

func (s *HTTPServer) handleUpdateTask(c echo.Context) error {
	var body TaskPatchInput
	if err := bind(c, &body); err != nil {
		return err
	}
	task, err := s.service.UpdateTask(c.Request().Context(), actor(c), c.Param("id"), body)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, task)
}

func (s *HTTPServer) handleMoveTask(c echo.Context) error {
	var body MoveTaskInput
	if err := bind(c, &body); err != nil {
		return err
	}
	task, err := s.service.MoveTask(c.Request().Context(), actor(c), c.Param("id"), body)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, task)
}

func (s *HTTPServer) handleDeleteTask(c echo.Context) error {
	if err := s.service.DeleteTask(c.Request().Context(), actor(c), c.Param("id")); err != nil {
		return err
	}
	return respondMessage(c, http.StatusOK, "Task deleted")
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, validationError(name + " must be a non-negative integer")
	}
	return value, nil
}
