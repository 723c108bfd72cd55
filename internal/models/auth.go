package models

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims is the payload of a platform access token. The subject has the
// form "f:<realm>:<userId>".
type JWTClaims struct {
	jwt.RegisteredClaims
}

// UserID extracts the user id from the last ":" separated segment of the subject.
func (c *JWTClaims) UserID() string {
	if c == nil {
		return ""
	}
	sub := strings.TrimSpace(c.Subject)
	if idx := strings.LastIndex(sub, ":"); idx >= 0 {
		return sub[idx+1:]
	}
	return sub
}
