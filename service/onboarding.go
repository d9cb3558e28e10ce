package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/layer-3/lens-onboard/core"
	"github.com/layer-3/lens-onboard/ports"
)

// Step names the stage of an onboarding run
type Step int

const (
	StepConnect Step = iota + 1
	StepLogin
	StepResolveApp
	StepChallenge
	StepSign
	StepAuthenticate
	StepPersist
	StepProfile
)

var stepNames = map[Step]string{
	StepConnect:      "connect",
	StepLogin:        "login",
	StepResolveApp:   "resolve_app",
	StepChallenge:    "challenge",
	StepSign:         "sign",
	StepAuthenticate: "authenticate",
	StepPersist:      "persist",
	StepProfile:      "profile",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// StepError reports which stage aborted an onboarding run
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("onboarding failed at %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// OnboardRequest selects how a wallet is onboarded
type OnboardRequest struct {
	Role       core.Role `json:"role,omitempty"` // defaults to ONBOARDING_USER
	UseTestnet bool      `json:"useTestnet,omitempty"`
	Profile    *Profile  `json:"profile,omitempty"` // nil skips the profile step
}

// ProfileAction is what the profile step did
type ProfileAction string

const (
	ProfileSkipped ProfileAction = "skipped"
	ProfileCreated ProfileAction = "created"
	ProfileUpdated ProfileAction = "updated"
)

// OnboardResult describes a completed run
type OnboardResult struct {
	Address         string                    `json:"address"`
	App             string                    `json:"app"`
	Tokens          core.AuthenticationTokens `json:"-"`
	ExistingAccount *core.Account             `json:"existingAccount,omitempty"`
	Profile         ProfileAction             `json:"profile"`
	TxHash          string                    `json:"txHash,omitempty"`
}

// flowGuard admits one run per wallet at a time
type flowGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func (g *flowGuard) enter(address string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := strings.ToLower(address)
	if _, busy := g.running[key]; busy {
		return false
	}
	g.running[key] = struct{}{}
	return true
}

func (g *flowGuard) leave(address string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, strings.ToLower(address))
}

// ErrNoSessionStore is returned by Run on an Onboarder that has no session store;
// bind one with NewOnboarder or WithStore.
var ErrNoSessionStore = errors.New("no session store configured")

// Onboarder runs the full onboarding pipeline: login, challenge, sign, authenticate,
// persist, then create or update the profile. The first failing step aborts the run;
// completed steps are not rolled back.
type Onboarder struct {
	auth      *Authenticator
	requester *ChallengeRequester
	queries   *SessionQueries
	store     *SessionStore
	profiles  *Profiles
	events    ports.EventPublisher
	apps      core.AppAddresses
	guard     *flowGuard
	now       func() time.Time
}

// NewOnboarder wires the pipeline
func NewOnboarder(
	auth *Authenticator,
	requester *ChallengeRequester,
	queries *SessionQueries,
	store *SessionStore,
	profiles *Profiles,
	events ports.EventPublisher,
	apps core.AppAddresses,
) *Onboarder {
	return &Onboarder{
		auth:      auth,
		requester: requester,
		queries:   queries,
		store:     store,
		profiles:  profiles,
		events:    events,
		apps:      apps,
		guard:     &flowGuard{running: make(map[string]struct{})},
		now:       time.Now,
	}
}

// WithStore returns a copy of o persisting through store. Copies share the
// per-wallet guard.
func (o *Onboarder) WithStore(store *SessionStore) *Onboarder {
	cp := *o
	cp.store = store
	cp.queries = o.queries.WithStore(store)
	return &cp
}

// Run onboards the wallet behind signer
func (o *Onboarder) Run(ctx context.Context, signer ports.Signer, req OnboardRequest) (OnboardResult, error) {
	// 1. wallet precondition
	address, err := signerAddress(ctx, signer)
	if err != nil {
		return OnboardResult{}, &StepError{Step: StepConnect, Err: err}
	}
	if !o.guard.enter(address) {
		return OnboardResult{}, &StepError{Step: StepConnect, Err: core.ErrFlowInProgress}
	}
	defer o.guard.leave(address)

	// tokens that cannot be persisted would be lost, so nothing remote is attempted
	if o.store == nil {
		return OnboardResult{Address: address, Profile: ProfileSkipped}, &StepError{Step: StepPersist, Err: ErrNoSessionStore}
	}

	role := req.Role
	if role == "" {
		role = core.RoleOnboardingUser
	}
	ctx = slogctx.With(ctx, "address", address, "role", string(role))
	slogctx.Info(ctx, "Onboarding started")

	result := OnboardResult{Address: address, Profile: ProfileSkipped}

	existing := o.detectAccount(ctx, address)
	result.ExistingAccount = existing
	var accountAddress string
	if existing != nil {
		accountAddress = existing.Address
	}

	// 2. integrated login
	handle, err := o.auth.Login(ctx, signer, LoginOptions{
		Role:           role,
		AccountAddress: accountAddress,
		UseTestnet:     req.UseTestnet,
	})
	if err != nil {
		return result, o.fail(ctx, StepLogin, err)
	}

	// 3. effective app
	app := handle.App()
	if info, ok := o.queries.GetCurrentSession(ctx, handle); ok && info.App != "" {
		app = info.App
	}
	if app == "" {
		app = o.apps.For(req.UseTestnet)
	}
	result.App = app
	slogctx.Debug(ctx, "Resolved app", "step", StepResolveApp.String(), "app", app)

	// 4. challenge
	if accountAddress == "" {
		accountAddress = address
	}
	challenge, err := o.requester.GenerateChallenge(ctx, address, ChallengeOptions{
		Role:           role,
		AppAddress:     app,
		AccountAddress: accountAddress,
		UseTestnet:     req.UseTestnet,
	})
	if err != nil {
		return result, o.fail(ctx, StepChallenge, err)
	}

	// 5. sign
	signature, err := signer.SignMessage(ctx, challenge.Text)
	if err != nil {
		return result, o.fail(ctx, StepSign, err)
	}

	// 6. exchange
	tokens, err := o.auth.Authenticate(ctx, challenge, signature)
	if err != nil {
		return result, o.fail(ctx, StepAuthenticate, err)
	}
	result.Tokens = tokens

	// 7. persist
	if err := o.store.Save(ctx, tokens); err != nil {
		return result, o.fail(ctx, StepPersist, err)
	}
	o.publish(ctx, core.SessionEventAuthenticated, address, role)

	// 8. profile
	if req.Profile == nil {
		slogctx.Info(ctx, "Onboarding completed without profile")
		return result, nil
	}
	session := NewSessionHandle(tokens, address, role, app)
	if existing != nil {
		result.TxHash, err = o.profiles.UpdateProfile(ctx, session, *req.Profile)
		result.Profile = ProfileUpdated
	} else {
		result.TxHash, err = o.profiles.CreateProfile(ctx, session, *req.Profile)
		result.Profile = ProfileCreated
	}
	if err != nil {
		result.Profile = ProfileSkipped
		return result, o.fail(ctx, StepProfile, err)
	}
	o.publish(ctx, core.SessionEventOnboarded, address, role)

	slogctx.Info(ctx, "Onboarding completed", "profile", string(result.Profile), "tx_hash", result.TxHash)
	return result, nil
}

// detectAccount finds an account the wallet already has: the last one logged in, else any available
func (o *Onboarder) detectAccount(ctx context.Context, address string) *core.Account {
	if account, ok := o.queries.GetLastLoggedInAccount(ctx, address); ok {
		return &account
	}
	if available := o.queries.ListAvailableAccounts(ctx, address); len(available) > 0 {
		account := available[0].Account
		return &account
	}
	return nil
}

func (o *Onboarder) fail(ctx context.Context, step Step, err error) error {
	slogctx.Error(ctx, "Onboarding aborted", "step", step.String(), "error", err)
	return &StepError{Step: step, Err: err}
}

func (o *Onboarder) publish(ctx context.Context, typ core.SessionEventType, address string, role core.Role) {
	if o.events == nil {
		return
	}
	event := core.SessionEvent{Type: typ, Address: address, Role: role, At: o.now().UTC()}
	if err := o.events.PublishSessionEvent(ctx, event); err != nil {
		slogctx.Warn(ctx, "Failed to publish session event", "type", string(typ), "error", err)
	}
}
