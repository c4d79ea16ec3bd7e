package auth

import (
	"context"
	"fmt"
	"strings"
)

const (
	RoleAdmin     = "admin"
	RolePowerUser = "power_user"
	RoleViewer    = "viewer"
)

type Identity struct {
	UserID string
	Role   string
}

// CanWrite reports whether the identity may confirm write operations.
func (i Identity) CanWrite() bool {
	return i.Role == RoleAdmin || i.Role == RolePowerUser
}

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RolePowerUser, RoleViewer:
		return true
	default:
		return false
	}
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses a comma-separated key:user:role spec.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	entries := strings.Split(spec, ",")
	for _, entry := range entries {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:user:role", entry)
		}
		key := strings.TrimSpace(parts[0])
		userID := strings.TrimSpace(parts[1])
		role := strings.TrimSpace(parts[2])
		if key == "" || userID == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/user", entry)
		}
		if !ValidRole(role) {
			return nil, fmt.Errorf("invalid static key entry %q: unknown role %q", entry, role)
		}
		validator.keys[key] = Identity{UserID: userID, Role: role}
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}
