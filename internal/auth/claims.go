package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// defaultTTLMinutes is one lab shift.
const defaultTTLMinutes = 720

// Claims extends JWT standard claims with the client's role and lab.
type Claims struct {
	jwt.RegisteredClaims
	Role  Role   `json:"role"`
	LabID string `json:"lab,omitempty"`
}

// IssueToken creates a signed JWT for a dashboard or service client.
//
// Parameters:
//   - clientID: becomes the subject, e.g. "panel-bench-3"
//   - role: RolePanel or RoleService
//   - labID: lab installation the token is valid for
//   - secret: HMAC signing key
//   - ttlMinutes: lifetime; non-positive uses one shift (12h)
func IssueToken(clientID string, role Role, labID, secret string, ttlMinutes int) (string, error) {
	if !IsValidClientID(clientID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidClientID, clientID)
	}
	if !IsValidRole(role) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if ttlMinutes <= 0 {
		ttlMinutes = defaultTTLMinutes
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlMinutes) * time.Minute)),
			ID:        uuid.NewString(),
		},
		Role:  role,
		LabID: labID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates and parses a token, returning its claims.
// It checks the signature, expiry, and required fields.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	if !IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}

	return claims, nil
}
