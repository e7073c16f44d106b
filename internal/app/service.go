package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban/api/internal/access"
	"kanban/api/internal/auth"
	"kanban/api/internal/authpw"
	"kanban/api/internal/cache"
	"kanban/api/internal/config"
	"kanban/api/internal/ordering"
	"kanban/api/internal/search"
	"kanban/api/internal/store"
	"kanban/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User         UserView `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type dataStore interface {
	ordering.Gateway
	access.Resolver
	authpw.UserStore

	GetUserByID(context.Context, string) (store.User, error)
	UpdateUser(context.Context, string, store.UserPatch) (store.User, error)
	SaveRefreshSession(context.Context, string, string, time.Time) error
	ConsumeRefreshSession(context.Context, string) (string, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	ListWorkspacesForUser(context.Context, string) ([]store.Workspace, error)
	GetWorkspace(context.Context, string) (store.Workspace, error)
	CreateWorkspace(context.Context, store.Workspace, string) (store.Workspace, error)
	UpdateWorkspace(context.Context, string, store.WorkspacePatch) (store.Workspace, error)
	DeleteWorkspace(context.Context, string) error
	ListMembers(context.Context, string) ([]store.Member, error)
	AddMember(context.Context, string, string, string) error

	ListSpaces(context.Context, string) ([]store.Space, error)
	GetSpace(context.Context, string) (store.Space, error)
	CreateSpace(context.Context, store.Space, []store.Column) (store.Space, error)
	UpdateSpace(context.Context, string, store.SpacePatch) (store.Space, error)
	DeleteSpace(context.Context, string) error

	ListColumns(context.Context, string) ([]store.Column, error)
	GetColumn(context.Context, string) (store.Column, error)
	CreateColumn(context.Context, store.Column) (store.Column, error)
	UpdateColumn(context.Context, string, store.ColumnPatch) (store.Column, error)
	DeleteColumn(context.Context, string) error

	ListTasksByColumn(context.Context, string) ([]store.Task, error)
	ListTasksBySpace(context.Context, string) ([]store.Task, error)
	GetTask(context.Context, string) (store.Task, error)
	CreateTask(context.Context, store.Task) (store.Task, error)
	UpdateTask(context.Context, string, store.TaskPatch) (store.Task, error)
	DeleteTask(context.Context, string) error
	ListTaskDocuments(context.Context, string) ([]store.TaskDocument, error)
	GetTaskDocument(context.Context, string) (store.TaskDocument, error)

	Ping(ctx context.Context) error
}

// sessionStore holds refresh sessions. The data store serves by default;
// Redis takes over when configured.
type sessionStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	ConsumeRefreshSession(context.Context, string) (string, error)
	RevokeRefreshSession(context.Context, string) error
}

// Dependencies are the optional backends of a Service. Zero values fall back
// to the data store for sessions, an uncached board read and database search.
type Dependencies struct {
	Sessions sessionStore
	Boards   *cache.Board[[]BoardColumn]
	Search   *search.Service
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	engine    *ordering.Engine
	guard     *access.Guard
	passwords *authpw.Service
	boards    *cache.Board[[]BoardColumn]
	search    *search.Service
	log       log.FieldLogger
	now       func() time.Time
	// external is set when sessions live outside the data store.
	external pinger
}

type pinger interface {
	Ping(ctx context.Context) error
}

func New(cfg config.Config, data dataStore, deps Dependencies, logger log.FieldLogger) *Service {
	if logger == nil {
		logger = log.StandardLogger()
	}
	svc := &Service{
		cfg:       cfg,
		store:     data,
		sessions:  deps.Sessions,
		engine:    ordering.NewEngine(data, logger),
		guard:     access.NewGuard(data),
		passwords: authpw.NewService(data),
		boards:    deps.Boards,
		search:    deps.Search,
		log:       logger,
		now:       time.Now,
	}
	if svc.sessions == nil {
		svc.sessions = data
	} else if p, ok := svc.sessions.(pinger); ok {
		svc.external = p
	}
	if svc.boards == nil {
		svc.boards = cache.NewBoard[[]BoardColumn](nil, 0, logger)
	}
	if svc.search == nil {
		var fallback search.Searcher
		if matcher, ok := data.(interface {
			SearchTasks(ctx context.Context, workspaceID, query string, limit int) ([]store.TaskDocument, error)
		}); ok {
			fallback = search.NewStoreSearcher(matcher)
		}
		svc.search = search.NewService(nil, fallback, data, logger)
	}
	return svc
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingSessions checks the external session backend. configured is false
// when sessions live in the data store.
func (s *Service) PingSessions(ctx context.Context) (configured bool, err error) {
	if s.external == nil {
		return false, nil
	}
	return true, s.external.Ping(ctx)
}

func (s *Service) Register(ctx context.Context, email, password, name string) (AuthResult, error) {
	user, err := s.passwords.Register(ctx, authpw.RegisterRequest{Email: email, Password: password, Name: name})
	if err != nil {
		return AuthResult{}, err
	}
	session, err := s.issueSession(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}
	s.log.WithField("user_id", user.ID).Info("user registered")
	return AuthResult{User: userView(user), AccessToken: session.Token, RefreshToken: session.RefreshToken}, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (AuthResult, error) {
	user, err := s.passwords.Login(ctx, email, password)
	if err != nil {
		return AuthResult{}, err
	}
	session, err := s.issueSession(ctx, user)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: userView(user), AccessToken: session.Token, RefreshToken: session.RefreshToken}, nil
}

// Refresh rotates a refresh token: the presented one is consumed and a new
// pair is issued. Concurrent refreshes with one token yield one pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return TokenPair{}, validationError("refreshToken is required")
	}
	userID, err := s.sessions.ConsumeRefreshSession(ctx, auth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TokenPair{}, auth.ErrInvalidToken
		}
		return TokenPair{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TokenPair{}, auth.ErrInvalidToken
		}
		return TokenPair{}, err
	}
	session, err := s.issueSession(ctx, user)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: session.Token, RefreshToken: session.RefreshToken}, nil
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	jti := util.NewID("jti")

	token, claims, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.Name, jti, now, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, err
	}

	refresh, err := auth.NewOpaqueToken()
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.Name,
		JTI:          jti,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.Name,
		JTI:       claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			return fmt.Errorf("revoke access token: %w", err)
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			return fmt.Errorf("revoke refresh session: %w", err)
		}
	}
	return nil
}

func (s *Service) Me(ctx context.Context, actorID string) (UserView, error) {
	user, err := s.store.GetUserByID(ctx, actorID)
	if err != nil {
		return UserView{}, err
	}
	return userView(user), nil
}

type UpdateMeInput struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
}

func (s *Service) UpdateMe(ctx context.Context, actorID string, input UpdateMeInput) (UserView, error) {
	patch := store.UserPatch{Avatar: input.Avatar}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return UserView{}, validationError("name must not be empty")
		}
		patch.Name = &name
	}
	user, err := s.store.UpdateUser(ctx, actorID, patch)
	if err != nil {
		return UserView{}, err
	}
	return userView(user), nil
}
