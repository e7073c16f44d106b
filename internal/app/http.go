package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"kanban/api/internal/access"
	"kanban/api/internal/auth"
	"kanban/api/internal/authpw"
	"kanban/api/internal/ordering"
	"kanban/api/internal/store"
)

const sessionKey = "session"

type HTTPServer struct {
	service    *Service
	corsOrigin string
	log        log.FieldLogger
	echo       *echo.Echo
}

func NewHTTPServer(service *Service, corsOrigin string, logger log.FieldLogger) *HTTPServer {
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &HTTPServer{service: service, corsOrigin: corsOrigin, log: logger}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.RequestID())
	e.Use(s.accessLog)
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{corsOrigin},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderXRequestID},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
	}))
	s.echo = e
	s.register(e)
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

func (s *HTTPServer) register(e *echo.Echo) {
	e.GET("/health", s.handleHealth)
	e.GET("/api/health", s.handleHealth)
	e.GET("/api/ready", s.handleReady)

	api := e.Group("/api")
	api.POST("/auth/register", s.handleRegister)
	api.POST("/auth/login", s.handleLogin)
	api.POST("/auth/refresh", s.handleRefresh)

	authed := api.Group("", s.requireSession)
	authed.POST("/auth/logout", s.handleLogout)
	authed.GET("/users/me", s.handleMe)
	authed.PATCH("/users/me", s.handleUpdateMe)

	authed.GET("/workspaces", s.handleListWorkspaces)
	authed.POST("/workspaces", s.handleCreateWorkspace)
	authed.GET("/workspaces/:id", s.handleGetWorkspace)
	authed.PATCH("/workspaces/:id", s.handleUpdateWorkspace)
	authed.DELETE("/workspaces/:id", s.handleDeleteWorkspace)
	authed.POST("/workspaces/:id/members", s.handleAddMember)
	authed.GET("/workspaces/:id/spaces", s.handleListSpaces)
	authed.POST("/workspaces/:id/spaces", s.handleCreateSpace)
	authed.GET("/workspaces/:id/tasks/search", s.handleSearchTasks)

	authed.PATCH("/spaces/:id", s.handleUpdateSpace)
	authed.DELETE("/spaces/:id", s.handleDeleteSpace)
	authed.GET("/spaces/:id/columns", s.handleBoard)
	authed.POST("/spaces/:id/columns", s.handleCreateColumn)
	authed.PATCH("/spaces/:id/columns/reorder", s.handleReorderColumns)

	authed.PATCH("/columns/:id", s.handleUpdateColumn)
	authed.DELETE("/columns/:id", s.handleDeleteColumn)
	authed.GET("/columns/:id/tasks", s.handleListTasks)
	authed.POST("/columns/:id/tasks", s.handleCreateTask)

	authed.PATCH("/tasks/reorder", s.handleReorderTasks)
	authed.PATCH("/tasks/:id", s.handleUpdateTask)
	authed.PATCH("/tasks/:id/move", s.handleMoveTask)
	authed.DELETE("/tasks/:id", s.handleDeleteTask)
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Success: true, Data: data})
}

func respondMessage(c echo.Context, status int, message string) error {
	return c.JSON(status, envelope{Success: true, Message: message})
}

func bind(c echo.Context, target any) error {
	if err := c.Bind(target); err != nil {
		return validationError("invalid JSON body")
	}
	return nil
}

func (s *HTTPServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "status": "ok", "timestamp": time.Now().UTC()})
}

func (s *HTTPServer) handleReady(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	if configured, err := s.service.PingSessions(ctx); configured {
		checks["redis"] = map[string]any{"status": "ok"}
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["redis"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}
	return c.JSON(statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c.Request())
		if token == "" {
			return auth.ErrInvalidToken
		}
		session, err := s.service.SessionFromToken(c.Request().Context(), token)
		if err != nil {
			return err
		}
		c.Set(sessionKey, session)
		return next(c)
	}
}

func sessionFrom(c echo.Context) Session {
	session, _ := c.Get(sessionKey).(Session)
	return session
}

func actor(c echo.Context) string {
	return sessionFrom(c).UserID
}

func (s *HTTPServer) accessLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		started := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}
		req := c.Request()
		res := c.Response()
		s.log.WithFields(log.Fields{
			"request_id":  res.Header().Get(echo.HeaderXRequestID),
			"method":      req.Method,
			"path":        req.URL.Path,
			"status":      res.Status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("request")
		return nil
	}
}

func (s *HTTPServer) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithFields(log.Fields{
			"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			"path":       c.Request().URL.Path,
		}).Error("request failed")
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, envelope{Success: false, Message: message, Code: code, Details: details})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get(echo.HeaderAuthorization))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		message := http.StatusText(httpErr.Code)
		if m, ok := httpErr.Message.(string); ok && m != "" {
			message = m
		}
		return httpErr.Code, codeForStatus(httpErr.Code), message, nil
	}

	switch {
	case errors.Is(err, ordering.ErrInvalidOrder),
		errors.Is(err, ordering.ErrEmptyBatch),
		errors.Is(err, ordering.ErrInvalidBatch),
		errors.Is(err, ordering.ErrNotReparentable),
		errors.Is(err, authpw.ErrInvalidInput):
		return http.StatusBadRequest, "VALIDATION_ERROR", strings.TrimPrefix(err.Error(), "ordering: "), nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_TAKEN", "Email already registered", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, access.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
	case errors.Is(err, access.ErrNotFound), errors.Is(err, ordering.ErrNotFound), errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, ordering.ErrParentMismatch):
		return http.StatusConflict, "CONFLICT", "Task is no longer in the expected column", nil
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "CONFLICT", "Conflict", nil
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "VALIDATION_ERROR"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusConflict:
		return "CONFLICT"
	}
	if status >= http.StatusInternalServerError {
		return "INTERNAL_ERROR"
	}
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}
