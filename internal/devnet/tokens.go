package devnet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/layer-3/lens-onboard/core"
)

const AudienceAccess = "session:access"
const AudienceRefresh = "session:refresh"
const AudienceIdentity = "session:id"

var errInvalidToken = errors.New("invalid token")

// AccessClaims combines standard claims with session-specific ones
type AccessClaims struct {
	jwt.RegisteredClaims
	AuthenticationID string `json:"sid"`
	Role             string `json:"role"`
	App              string `json:"app,omitempty"`
	Account          string `json:"act,omitempty"`
}

// RefreshClaims carry the session the refresh token rotates
type RefreshClaims struct {
	jwt.RegisteredClaims
	AuthenticationID string `json:"sid"`
}

// IdentityClaims describe the signer to the client
type IdentityClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	App  string `json:"app,omitempty"`
}

// tokenizer signs and parses ES256 session tokens
type tokenizer struct {
	signKey    *ecdsa.PrivateKey
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func (t *tokenizer) issue(s *session, now time.Time) (core.AuthenticationTokens, error) {
	access := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.info.Signer,
			ID:        s.info.AuthenticationID,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		AuthenticationID: s.info.AuthenticationID,
		Role:             string(s.role),
		App:              s.info.App,
		Account:          s.account,
	}
	refresh := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.info.Signer,
			ID:        s.refreshID,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{AudienceRefresh},
		},
		AuthenticationID: s.info.AuthenticationID,
	}
	identity := IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.info.Signer,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{AudienceIdentity},
		},
		Role: string(s.role),
		App:  s.info.App,
	}

	var tokens core.AuthenticationTokens
	var err error
	if tokens.AccessToken, err = t.sign(access); err != nil {
		return core.AuthenticationTokens{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	if tokens.RefreshToken, err = t.sign(refresh); err != nil {
		return core.AuthenticationTokens{}, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	if tokens.IDToken, err = t.sign(identity); err != nil {
		return core.AuthenticationTokens{}, fmt.Errorf("failed to sign id token: %w", err)
	}
	return tokens, nil
}

func (t *tokenizer) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(t.signKey)
}

func (t *tokenizer) parseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := t.parse(tokenStr, claims, AudienceAccess); err != nil {
		return nil, err
	}
	return claims, nil
}

func (t *tokenizer) parseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := t.parse(tokenStr, claims, AudienceRefresh); err != nil {
		return nil, err
	}
	return claims, nil
}

func (t *tokenizer) parse(tokenStr string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &t.signKey.PublicKey, nil
	}, jwt.WithAudience(audience))
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return errInvalidToken
	}
	return nil
}
