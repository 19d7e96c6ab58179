// Package actor carries the identity an authorization collaborator resolved for a
// request. The engine only stamps it onto rows; it never decides access.
package actor

import (
	"errors"
	"strings"
)

type Role string

const (
	RoleInnovator          Role = "INNOVATOR"
	RoleAssessment         Role = "ASSESSMENT"
	RoleAccessor           Role = "ACCESSOR"
	RoleQualifyingAccessor Role = "QUALIFYING_ACCESSOR"
	RoleAdmin              Role = "ADMIN"
	RoleUnknown            Role = ""
)

var (
	ErrMissingUser = errors.New("actor user id is required")
	ErrMissingRole = errors.New("actor role id is required")
	ErrMissingUnit = errors.New("accessor roles must carry an organisation unit")
)

// Context is the {requestUserId, roleId, organisationUnitId} triple.
type Context struct {
	UserID             string
	RoleID             string
	Role               Role
	OrganisationUnitID string
}

func Normalize(role string) Role {
	switch Role(strings.ToUpper(strings.TrimSpace(role))) {
	case RoleInnovator:
		return RoleInnovator
	case RoleAssessment:
		return RoleAssessment
	case RoleAccessor:
		return RoleAccessor
	case RoleQualifyingAccessor:
		return RoleQualifyingAccessor
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUnknown
	}
}

// IsUnitScoped reports whether the role acts on behalf of an organisation unit.
func IsUnitScoped(role Role) bool {
	return role == RoleAccessor || role == RoleQualifyingAccessor
}

func (c Context) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return ErrMissingUser
	}
	if strings.TrimSpace(c.RoleID) == "" {
		return ErrMissingRole
	}
	if IsUnitScoped(c.Role) && strings.TrimSpace(c.OrganisationUnitID) == "" {
		return ErrMissingUnit
	}
	return nil
}
