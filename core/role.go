package core

import (
	"fmt"
	"strings"
)

// Role is the capacity under which a wallet authenticates
type Role string

const (
	// RoleBuilder authenticates a builder by wallet address alone
	RoleBuilder Role = "BUILDER"

	// RoleOnboardingUser authenticates a wallet that has no account yet
	RoleOnboardingUser Role = "ONBOARDING_USER"

	// RoleAccountOwner authenticates the owner of an account
	RoleAccountOwner Role = "ACCOUNT_OWNER"

	// RoleAccountManager authenticates a manager of an account
	RoleAccountManager Role = "ACCOUNT_MANAGER"
)

// ParseRole parses a role name, case-insensitively
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleBuilder, RoleOnboardingUser, RoleAccountOwner, RoleAccountManager:
		return r, nil
	default:
		return "", fmt.Errorf("unsupported authentication role %q: %w", s, ErrValidation)
	}
}

// Valid reports whether r is exactly one of the known roles
func (r Role) Valid() bool {
	return r.requestKey() != ""
}

// requestKey is the key under which a role's challenge request travels on the wire
func (r Role) requestKey() string {
	switch r {
	case RoleBuilder:
		return "builder"
	case RoleOnboardingUser:
		return "onboardingUser"
	case RoleAccountOwner:
		return "accountOwner"
	case RoleAccountManager:
		return "accountManager"
	default:
		return ""
	}
}
