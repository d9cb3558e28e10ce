package service

import (
	"context"
	"errors"
	"strings"

	slogctx "github.com/veqryn/slog-context"

	"github.com/layer-3/lens-onboard/core"
	"github.com/layer-3/lens-onboard/ports"
)

// ChallengeOptions selects the role and addresses of a challenge request
type ChallengeOptions struct {
	Role           core.Role `json:"role"`
	AppAddress     string    `json:"appAddress,omitempty"`
	AccountAddress string    `json:"accountAddress,omitempty"`
	OwnerAddress   string    `json:"ownerAddress,omitempty"`
	UseTestnet     bool      `json:"useTestnet,omitempty"`
}

// ChallengeRequester builds role-specific challenge requests and fetches challenges
type ChallengeRequester struct {
	api  ports.AuthAPI
	apps core.AppAddresses
}

// NewChallengeRequester creates a requester resolving default apps from apps
func NewChallengeRequester(api ports.AuthAPI, apps core.AppAddresses) *ChallengeRequester {
	return &ChallengeRequester{api: api, apps: apps}
}

// BuildRequest resolves the app address and constructs the request for opts.Role.
// No remote call is made.
func (r *ChallengeRequester) BuildRequest(walletAddress string, opts ChallengeOptions) (core.ChallengeRequest, error) {
	role := opts.Role
	if role == "" {
		role = core.RoleOnboardingUser
	}
	role, err := core.ParseRole(string(role))
	if err != nil {
		return nil, &core.ValidationError{Fields: []string{"role"}}
	}

	app := strings.TrimSpace(opts.AppAddress)
	if app == "" {
		app = r.apps.For(opts.UseTestnet)
	}

	var req core.ChallengeRequest
	switch role {
	case core.RoleBuilder:
		req, err = core.NewBuilderRequest(walletAddress)
	case core.RoleOnboardingUser:
		req, err = core.NewOnboardingUserRequest(app, walletAddress)
	case core.RoleAccountOwner:
		req, err = core.NewAccountOwnerRequest(app, opts.AccountAddress, opts.OwnerAddress, walletAddress)
	default:
		req, err = core.NewAccountManagerRequest(app, opts.AccountAddress, walletAddress)
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// GenerateChallenge validates opts and requests a challenge for walletAddress
func (r *ChallengeRequester) GenerateChallenge(ctx context.Context, walletAddress string, opts ChallengeOptions) (core.Challenge, error) {
	req, err := r.BuildRequest(walletAddress, opts)
	if err != nil {
		return core.Challenge{}, err
	}
	return r.Request(ctx, req)
}

// Request fetches a challenge for an already built request
func (r *ChallengeRequester) Request(ctx context.Context, req core.ChallengeRequest) (core.Challenge, error) {
	ctx = slogctx.With(ctx, "address", req.Signer(), "role", string(req.Role()))
	slogctx.Debug(ctx, "Requesting challenge")

	challenge, err := r.api.Challenge(ctx, req)
	if err != nil {
		slogctx.Error(ctx, "Challenge generation failed", "error", err)
		return core.Challenge{}, &core.ChallengeGenerationError{Message: remoteMessage(err), Err: err}
	}

	slogctx.Info(ctx, "Challenge generated", "challenge_id", challenge.ID)
	return challenge, nil
}

// remoteMessage extracts the innermost message of a remote failure
func remoteMessage(err error) string {
	var te *core.TransportError
	if errors.As(err, &te) && te.Err != nil {
		return te.Err.Error()
	}
	return err.Error()
}
