package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/layer-3/lens-onboard/core"
)

// SessionHandle is an authenticated context. It is required by session queries and
// profile mutations and never changes once created; a refresh yields a new handle.
type SessionHandle struct {
	tokens  core.AuthenticationTokens
	address string
	role    core.Role
	app     string
}

// NewSessionHandle wraps tokens issued for address under role and app
func NewSessionHandle(tokens core.AuthenticationTokens, address string, role core.Role, app string) *SessionHandle {
	return &SessionHandle{
		tokens:  tokens,
		address: address,
		role:    role,
		app:     app,
	}
}

func (h *SessionHandle) Address() string                   { return h.address }
func (h *SessionHandle) Role() core.Role                   { return h.role }
func (h *SessionHandle) App() string                       { return h.app }
func (h *SessionHandle) Tokens() core.AuthenticationTokens { return h.tokens }

func (h *SessionHandle) accessToken() string {
	if h == nil {
		return ""
	}
	return h.tokens.AccessToken
}

// IdentityClaims are the claims read from an id token
type IdentityClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
	App  string `json:"app,omitempty"`
}

// handleFromTokens rebuilds a handle from the unverified id token claims
func handleFromTokens(tokens core.AuthenticationTokens) *SessionHandle {
	var claims IdentityClaims
	if tokens.IDToken != "" {
		_, _, _ = jwt.NewParser().ParseUnverified(tokens.IDToken, &claims)
	}
	return NewSessionHandle(tokens, claims.Subject, core.Role(claims.Role), claims.App)
}

// accessExpired reports whether the access token's exp claim is before now plus leeway.
// Tokens that are not JWTs or carry no exp are left for the remote to judge.
func accessExpired(accessToken string, now time.Time, leeway time.Duration) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Add(leeway).Before(claims.ExpiresAt.Time)
}
