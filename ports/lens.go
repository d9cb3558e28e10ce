package ports

import (
	"context"

	"github.com/layer-3/lens-onboard/core"
)

// AuthAPI is the remote authentication surface
type AuthAPI interface {
	// Challenge requests a signable challenge for a role-specific request
	Challenge(ctx context.Context, req core.ChallengeRequest) (core.Challenge, error)

	// Authenticate exchanges a signed challenge for tokens
	Authenticate(ctx context.Context, challengeID, signature string) (core.AuthenticationTokens, error)

	// Refresh rotates a refresh token into a new token set
	Refresh(ctx context.Context, refreshToken string) (core.AuthenticationTokens, error)
}

// SessionAPI is the read side of the remote session surface
type SessionAPI interface {
	CurrentSession(ctx context.Context, accessToken string) (core.SessionInfo, error)
	AuthenticatedSessions(ctx context.Context, accessToken, cursor string) (items []core.SessionInfo, next string, err error)
	RevokeAuthentication(ctx context.Context, accessToken, authenticationID string) error
	LastLoggedInAccount(ctx context.Context, address string) (core.Account, error)
	AccountsAvailable(ctx context.Context, address string, includeOwned bool, cursor string) (items []core.AvailableAccount, next string, err error)
}

// AccountAPI is the remote account and app mutation surface. Every call returns a transaction hash.
type AccountAPI interface {
	CreateAccountWithUsername(ctx context.Context, accessToken, username, metadataURI string) (string, error)
	SetAccountMetadata(ctx context.Context, accessToken, metadataURI string) (string, error)
	CreateApp(ctx context.Context, accessToken, metadataURI string) (string, error)
}

// LensAPI is the full remote protocol client
type LensAPI interface {
	AuthAPI
	SessionAPI
	AccountAPI
}
