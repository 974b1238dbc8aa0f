// Package token extracts claims from the auth token the bridge delivers in
// the authenticated event's additional info.
//
// The bridge has already established the session server-side; the client
// only needs the claims for display (who is signed in, when the session
// ends), so the token is parsed without signature verification. Nothing in
// this package grants access.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the claims carried by a bridge-issued session token.
type Claims struct {
	Subject     string
	SessionID   string
	SessionType string
	Issuer      string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Extra       map[string]any
}

// Extract parses tokenString and returns its claims. The signature is not
// checked; see the package comment.
func Extract(tokenString string) (*Claims, error) {
	parser := jwt.NewParser()

	tok, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("authflow/token: %w", err)
	}

	mapClaims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("authflow/token: unexpected claims type %T", tok.Claims)
	}

	return mapToClaims(mapClaims), nil
}

// mapToClaims converts jwt.MapClaims to Claims.
func mapToClaims(m jwt.MapClaims) *Claims {
	c := &Claims{
		Extra: make(map[string]any),
	}

	if v, ok := m["sub"].(string); ok {
		c.Subject = v
	}
	if v, ok := m["sid"].(string); ok {
		c.SessionID = v
	}
	if v, ok := m["session_type"].(string); ok {
		c.SessionType = v
	}
	if v, ok := m["iss"].(string); ok {
		c.Issuer = v
	}
	if v, ok := m["exp"].(float64); ok {
		c.ExpiresAt = time.Unix(int64(v), 0)
	}
	if v, ok := m["iat"].(float64); ok {
		c.IssuedAt = time.Unix(int64(v), 0)
	}

	// Non-standard claims go to Extra
	standard := map[string]bool{
		"sub": true, "sid": true, "session_type": true,
		"iss": true, "exp": true, "iat": true,
		"aud": true, "nbf": true, "jti": true,
	}
	for k, v := range m {
		if !standard[k] {
			c.Extra[k] = v
		}
	}

	return c
}
