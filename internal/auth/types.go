package auth

import (
	"crypto/subtle"
	"errors"
	"regexp"
)

// Role is the kind of client a token was issued to.
type Role string

// Roles.
const (
	RolePanel   Role = "panel"
	RoleService Role = "service"
)

// ValidRoles lists every role a token may carry.
var ValidRoles = []Role{RolePanel, RoleService}

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// clientIDPattern restricts client ids to URL- and log-safe characters.
var clientIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidClientID reports whether id may be used as a token subject.
func IsValidClientID(id string) bool {
	return clientIDPattern.MatchString(id)
}

// VerifyEnrolmentKey compares a presented enrolment key with the
// configured one in constant time. An empty configured key never matches.
func VerifyEnrolmentKey(presented, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEnrolmentDisabled  = errors.New("enrolment is disabled")
	ErrInvalidClientID    = errors.New("invalid client id")
	ErrInvalidRole        = errors.New("invalid role")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient permissions")
)
