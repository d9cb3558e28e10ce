package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	slogctx "github.com/veqryn/slog-context"

	"github.com/layer-3/lens-onboard/core"
	"github.com/layer-3/lens-onboard/ports"
)

// DefaultChallengeTTL is how long a challenge may be signed and submitted
const DefaultChallengeTTL = 5 * time.Minute

// LoginOptions selects the role of an integrated login
type LoginOptions struct {
	Role           core.Role
	AppAddress     string
	AccountAddress string // defaults to the signer address for account roles
	UseTestnet     bool
}

// Authenticator exchanges signed challenges for tokens. Each challenge id is accepted
// at most once for the life of the process, whether or not its issue time is known;
// the remote service enforces the same across processes.
type Authenticator struct {
	api       ports.AuthAPI
	requester *ChallengeRequester
	ttl       time.Duration
	consumed  *cache.Cache
	now       func() time.Time
}

// NewAuthenticator creates an authenticator. A zero ttl selects DefaultChallengeTTL.
func NewAuthenticator(api ports.AuthAPI, requester *ChallengeRequester, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &Authenticator{
		api:       api,
		requester: requester,
		ttl:       ttl,
		consumed:  cache.New(cache.NoExpiration, 0),
		now:       time.Now,
	}
}

// Authenticate submits a detached signature for challenge and returns the issued tokens.
// Nothing is persisted.
func (a *Authenticator) Authenticate(ctx context.Context, challenge core.Challenge, signature string) (core.AuthenticationTokens, error) {
	var missing []string
	if strings.TrimSpace(challenge.ID) == "" {
		missing = append(missing, "challengeId")
	}
	if strings.TrimSpace(signature) == "" {
		missing = append(missing, "signature")
	}
	if len(missing) > 0 {
		return core.AuthenticationTokens{}, &core.ValidationError{Fields: missing}
	}

	ctx = slogctx.With(ctx, "challenge_id", challenge.ID)

	if !challenge.IssuedAt.IsZero() && a.now().Sub(challenge.IssuedAt) > a.ttl {
		slogctx.Warn(ctx, "Challenge expired before submission", "issued_at", challenge.IssuedAt)
		return core.AuthenticationTokens{}, &core.AuthError{Kind: core.ErrExpiredChallenge, Reason: "challenge expired"}
	}

	if err := a.consumed.Add(challenge.ID, struct{}{}, cache.NoExpiration); err != nil {
		slogctx.Warn(ctx, "Challenge already submitted")
		return core.AuthenticationTokens{}, &core.AuthError{Kind: core.ErrExpiredChallenge, Reason: "challenge already used"}
	}

	tokens, err := a.api.Authenticate(ctx, challenge.ID, signature)
	if err != nil {
		if errors.Is(err, core.ErrTransport) {
			// the remote may never have seen the submission
			a.consumed.Delete(challenge.ID)
		}
		slogctx.Error(ctx, "Authentication failed", "error", err)
		return core.AuthenticationTokens{}, err
	}

	slogctx.Info(ctx, "Challenge exchanged for tokens")
	return tokens, nil
}

// Login resolves the signer address, requests a challenge for opts.Role, has the signer
// sign it and exchanges the signature, returning a ready handle.
func (a *Authenticator) Login(ctx context.Context, signer ports.Signer, opts LoginOptions) (*SessionHandle, error) {
	address, err := signerAddress(ctx, signer)
	if err != nil {
		return nil, err
	}

	account := opts.AccountAddress
	if account == "" {
		account = address
	}
	req, err := a.requester.BuildRequest(address, ChallengeOptions{
		Role:           opts.Role,
		AppAddress:     opts.AppAddress,
		AccountAddress: account,
		UseTestnet:     opts.UseTestnet,
	})
	if err != nil {
		return nil, err
	}

	ctx = slogctx.With(ctx, "address", address, "role", string(req.Role()))

	challenge, err := a.requester.Request(ctx, req)
	if err != nil {
		return nil, err
	}

	signature, err := signer.SignMessage(ctx, challenge.Text)
	if err != nil {
		return nil, fmt.Errorf("signing challenge: %w", err)
	}

	tokens, err := a.Authenticate(ctx, challenge, signature)
	if err != nil {
		return nil, err
	}

	return NewSessionHandle(tokens, address, req.Role(), requestApp(req)), nil
}

// signerAddress asks the wallet for its address; no wallet or no address is a precondition failure
func signerAddress(ctx context.Context, signer ports.Signer) (string, error) {
	if signer == nil {
		return "", core.ErrWalletNotConnected
	}
	address, err := signer.Address(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrWalletNotConnected, err)
	}
	if strings.TrimSpace(address) == "" {
		return "", core.ErrWalletNotConnected
	}
	return address, nil
}

func requestApp(req core.ChallengeRequest) string {
	switch r := req.(type) {
	case core.OnboardingUserRequest:
		return r.App
	case core.AccountOwnerRequest:
		return r.App
	case core.AccountManagerRequest:
		return r.App
	default:
		return ""
	}
}
