// Package access resolves whether an actor may operate on a workspace, space,
// column or task by walking the containment chain up to the workspace
// membership.
package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"kanban/api/internal/rbac"
)

type Resource string

const (
	ResourceWorkspace Resource = "workspace"
	ResourceSpace     Resource = "space"
	ResourceColumn    Resource = "column"
	ResourceTask      Resource = "task"
)

var (
	ErrNotFound  = errors.New("access: resource not found")
	ErrForbidden = errors.New("access: forbidden")
)

// Scope is the containment chain of a resource. Fields below the resource's
// own level are empty.
type Scope struct {
	WorkspaceID string
	SpaceID     string
	ColumnID    string
}

// Resolver is implemented by the store. Both methods return sql.ErrNoRows
// (possibly wrapped) when the row does not exist.
type Resolver interface {
	ResolveScope(ctx context.Context, resource Resource, id string) (Scope, error)
	MemberRole(ctx context.Context, workspaceID, userID string) (string, error)
}

type Grant struct {
	ActorID string
	Role    rbac.Role
	Scope   Scope
}

type Guard struct {
	resolver Resolver
}

func NewGuard(resolver Resolver) *Guard {
	return &Guard{resolver: resolver}
}

// Authorize confirms actorID is a member of the workspace owning the
// resource and, when required is given, holds one of those roles.
func (g *Guard) Authorize(ctx context.Context, actorID string, resource Resource, id string, required ...rbac.Role) (Grant, error) {
	if actorID == "" {
		return Grant{}, ErrForbidden
	}
	scope, err := g.resolver.ResolveScope(ctx, resource, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Grant{}, fmt.Errorf("%w: %s %s", ErrNotFound, resource, id)
		}
		return Grant{}, fmt.Errorf("resolve %s scope: %w", resource, err)
	}

	rawRole, err := g.resolver.MemberRole(ctx, scope.WorkspaceID, actorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Grant{}, ErrForbidden
		}
		return Grant{}, fmt.Errorf("read membership: %w", err)
	}
	role, ok := rbac.Normalize(rawRole)
	if !ok || !rbac.Satisfies(role, required...) {
		return Grant{}, ErrForbidden
	}

	return Grant{ActorID: actorID, Role: role, Scope: scope}, nil
}

// AuthorizeAll authorizes every distinct id once, in ascending id order, and
// stops at the first failure.
func (g *Guard) AuthorizeAll(ctx context.Context, actorID string, resource Resource, ids []string, required ...rbac.Role) ([]Grant, error) {
	unique := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	sorted := make([]string, 0, len(unique))
	for id := range unique {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	grants := make([]Grant, 0, len(sorted))
	for _, id := range sorted {
		grant, err := g.Authorize(ctx, actorID, resource, id, required...)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, nil
}
