package auth

import (
	"sync"

	"github.com/turtacn/keyshape/pkg/errors"
)

// Permission is a fine-grained API capability.
type Permission string

const (
	PermShapeCompute Permission = "shape:compute"
	PermLibraryRead  Permission = "library:read"
	PermLibraryWrite Permission = "library:write"
)

// Role is a token role.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCurator Role = "curator"
	RoleAnalyst Role = "analyst"
	RoleViewer  Role = "viewer"
)

// RolePermissionMapping maps roles to permissions.
type RolePermissionMapping map[Role][]Permission

func DefaultRolePermissionMapping() RolePermissionMapping {
	return RolePermissionMapping{
		RoleAdmin:   {PermShapeCompute, PermLibraryRead, PermLibraryWrite},
		RoleCurator: {PermShapeCompute, PermLibraryRead, PermLibraryWrite},
		RoleAnalyst: {PermShapeCompute, PermLibraryRead},
		RoleViewer:  {PermLibraryRead},
	}
}

// Enforcer answers permission checks for a set of roles.
type Enforcer struct {
	mu      sync.RWMutex
	mapping RolePermissionMapping
}

// NewEnforcer uses DefaultRolePermissionMapping when mapping is nil.
func NewEnforcer(mapping RolePermissionMapping) *Enforcer {
	if mapping == nil {
		mapping = DefaultRolePermissionMapping()
	}
	return &Enforcer{mapping: mapping}
}

func (e *Enforcer) UpdateMapping(mapping RolePermissionMapping) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mapping = mapping
}

func (e *Enforcer) HasPermission(roles []string, p Permission) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range roles {
		for _, granted := range e.mapping[Role(r)] {
			if granted == p {
				return true
			}
		}
	}
	return false
}

// Enforce returns a forbidden error naming the first missing permission.
func (e *Enforcer) Enforce(claims *Claims, perms ...Permission) error {
	if claims == nil {
		return errors.New(errors.ErrCodeUnauthorized, "authentication required")
	}
	for _, p := range perms {
		if !e.HasPermission(claims.Roles, p) {
			return errors.New(errors.ErrCodeForbidden, "permission denied").WithDetail("permission=" + string(p))
		}
	}
	return nil
}
