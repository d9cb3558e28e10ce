package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/lens-onboard/adapters/store"
	"github.com/layer-3/lens-onboard/core"
	"github.com/layer-3/lens-onboard/ports"
	"github.com/layer-3/lens-onboard/service"
)

type onboardFixture struct {
	api      *fakeAPI
	kv       ports.KeyValueStore
	events   *recordingPublisher
	storage  *memoryStorage
	onboard  *service.Onboarder
	sessions *service.SessionStore
}

func newOnboardFixture(kv ports.KeyValueStore) *onboardFixture {
	f := &onboardFixture{
		api:     newFakeAPI(),
		kv:      kv,
		events:  &recordingPublisher{},
		storage: &memoryStorage{},
	}
	apps := core.DefaultAppAddresses()
	requester := service.NewChallengeRequester(f.api, apps)
	f.sessions = service.NewSessionStore(kv)
	f.onboard = service.NewOnboarder(
		service.NewAuthenticator(f.api, requester, 0),
		requester,
		service.NewSessionQueries(f.api, f.sessions, f.events),
		f.sessions,
		service.NewProfiles(f.api, f.storage),
		f.events,
		apps,
	)
	return f
}

func TestOnboard_CreatesProfile(t *testing.T) {
	ctx := t.Context()
	f := newOnboardFixture(store.NewMemoryStore())
	signer := &stubSigner{address: "0xW", signature: "sig1"}

	result, err := f.onboard.Run(ctx, signer, service.OnboardRequest{
		UseTestnet: true,
		Profile:    &service.Profile{Username: "alice"},
	})

	require.NoError(t, err)
	assert.Equal(t, "0xW", result.Address)
	assert.Equal(t, core.TestnetAppAddress, result.App)
	assert.Equal(t, service.ProfileCreated, result.Profile)
	assert.Equal(t, "0xcreated", result.TxHash)
	assert.Nil(t, result.ExistingAccount)

	assert.Equal(t, 2, f.api.count("Challenge"))
	assert.Equal(t, 2, f.api.count("Authenticate"))
	assert.Equal(t, 1, f.api.count("CreateAccountWithUsername"))
	assert.Zero(t, f.api.count("SetAccountMetadata"))
	assert.Equal(t, []string{"sign-me", "sign-me"}, signer.messages())

	persisted, ok := f.sessions.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, testTokens, persisted)
	assert.Equal(t, []core.SessionEventType{core.SessionEventAuthenticated, core.SessionEventOnboarded}, f.events.types())
}

func TestOnboard_UpdatesExistingAccount(t *testing.T) {
	f := newOnboardFixture(store.NewMemoryStore())
	f.api.lastLoggedIn = func(string) (core.Account, error) {
		return core.Account{Address: "0xACC", Owner: "0xW"}, nil
	}
	signer := &stubSigner{address: "0xW", signature: "sig1"}

	result, err := f.onboard.Run(t.Context(), signer, service.OnboardRequest{
		Role:    core.RoleAccountOwner,
		Profile: &service.Profile{Username: "alice", Bio: "updated"},
	})

	require.NoError(t, err)
	assert.Equal(t, service.ProfileUpdated, result.Profile)
	require.NotNil(t, result.ExistingAccount)
	assert.Equal(t, "0xACC", result.ExistingAccount.Address)
	assert.Equal(t, 1, f.api.count("SetAccountMetadata"))
	assert.Zero(t, f.api.count("CreateAccountWithUsername"))
	assert.Equal(t, core.AccountOwnerRequest{App: core.MainnetAppAddress, Account: "0xACC", Owner: "0xW"}, f.api.lastRequest())
}

func TestOnboard_AvailableAccountCountsAsExisting(t *testing.T) {
	f := newOnboardFixture(store.NewMemoryStore())
	f.api.available = func(string, string) ([]core.AvailableAccount, string, error) {
		return []core.AvailableAccount{{Account: core.Account{Address: "0xMANAGED"}}}, "", nil
	}

	result, err := f.onboard.Run(t.Context(), &stubSigner{address: "0xW", signature: "sig1"}, service.OnboardRequest{
		Profile: &service.Profile{Username: "alice"},
	})

	require.NoError(t, err)
	assert.Equal(t, service.ProfileUpdated, result.Profile)
}

func TestOnboard_UsesAppOfCurrentSession(t *testing.T) {
	f := newOnboardFixture(store.NewMemoryStore())
	f.api.currentSession = func(string) (core.SessionInfo, error) {
		return core.SessionInfo{App: "0xSESSIONAPP"}, nil
	}

	result, err := f.onboard.Run(t.Context(), &stubSigner{address: "0xW", signature: "sig1"}, service.OnboardRequest{})

	require.NoError(t, err)
	assert.Equal(t, "0xSESSIONAPP", result.App)
	assert.Equal(t, core.OnboardingUserRequest{App: "0xSESSIONAPP", Wallet: "0xW"}, f.api.lastRequest())
	assert.Equal(t, service.ProfileSkipped, result.Profile)
	assert.Zero(t, f.storage.uploads())
}

func TestOnboard_WalletNotConnected(t *testing.T) {
	ctx := t.Context()

	for name, signer := range map[string]ports.Signer{
		"no signer":      nil,
		"empty address":  &stubSigner{},
		"address failed": failingSigner{},
	} {
		t.Run(name, func(t *testing.T) {
			f := newOnboardFixture(store.NewMemoryStore())

			_, err := f.onboard.Run(ctx, signer, service.OnboardRequest{})

			var stepErr *service.StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, service.StepConnect, stepErr.Step)
			assert.ErrorIs(t, err, core.ErrWalletNotConnected)
			assert.Zero(t, f.api.count("Challenge"))
			assert.Zero(t, f.api.count("LastLoggedInAccount"))
		})
	}
}

func TestOnboard_WrongSignerAborts(t *testing.T) {
	ctx := t.Context()
	f := newOnboardFixture(store.NewMemoryStore())
	f.api.authenticate = func(string, string) (core.AuthenticationTokens, error) {
		return core.AuthenticationTokens{}, &core.AuthError{Kind: core.ErrWrongSigner, Reason: "mismatch"}
	}

	_, err := f.onboard.Run(ctx, &stubSigner{address: "0xW", signature: "sig1"}, service.OnboardRequest{
		Profile: &service.Profile{Username: "alice"},
	})

	var authErr *core.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.ErrorIs(t, err, core.ErrWrongSigner)
	assert.Equal(t, "mismatch", authErr.Reason)
	assert.False(t, errors.Is(err, core.ErrWalletNotConnected))

	_, ok := f.sessions.Load(ctx)
	assert.False(t, ok)
	assert.Zero(t, f.storage.uploads())
	assert.Empty(t, f.events.types())
}

func TestOnboard_PersistFailureStopsBeforeProfile(t *testing.T) {
	f := newOnboardFixture(brokenKV{})

	_, err := f.onboard.Run(t.Context(), &stubSigner{address: "0xW", signature: "sig1"}, service.OnboardRequest{
		Profile: &service.Profile{Username: "alice"},
	})

	var stepErr *service.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, service.StepPersist, stepErr.Step)
	assert.Zero(t, f.api.count("CreateAccountWithUsername"))
}

func TestOnboard_ProfileFailureKeepsPersistedTokens(t *testing.T) {
	ctx := t.Context()
	f := newOnboardFixture(store.NewMemoryStore())
	f.api.create = func(string, string, string) (string, error) {
		return "", &core.BusinessRuleError{Kind: "UsernameTaken", Reason: "taken"}
	}

	result, err := f.onboard.Run(ctx, &stubSigner{address: "0xW", signature: "sig1"}, service.OnboardRequest{
		Profile: &service.Profile{Username: "alice"},
	})

	var stepErr *service.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, service.StepProfile, stepErr.Step)
	assert.ErrorIs(t, err, core.ErrBusinessRule)
	assert.Equal(t, service.ProfileSkipped, result.Profile)

	_, ok := f.sessions.Load(ctx)
	assert.True(t, ok)
}

func TestOnboard_RejectsConcurrentRunForSameWallet(t *testing.T) {
	ctx := t.Context()
	f := newOnboardFixture(store.NewMemoryStore())
	blocking := &stubSigner{
		address:   "0xW",
		signature: "sig1",
		entered:   make(chan struct{}, 4),
		release:   make(chan struct{}),
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.onboard.Run(ctx, blocking, service.OnboardRequest{})
		done <- err
	}()

	select {
	case <-blocking.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never reached the signer")
	}

	_, err := f.onboard.Run(ctx, &stubSigner{address: "0xw", signature: "sig1"}, service.OnboardRequest{})
	assert.ErrorIs(t, err, core.ErrFlowInProgress)

	other, err := f.onboard.WithStore(service.NewSessionStore(store.NewMemoryStore())).
		Run(ctx, &stubSigner{address: "0xOTHER", signature: "sig1"}, service.OnboardRequest{})
	require.NoError(t, err)
	assert.Equal(t, "0xOTHER", other.Address)

	close(blocking.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("first run did not finish")
	}

	_, err = f.onboard.Run(ctx, &stubSigner{address: "0xW", signature: "sig1"}, service.OnboardRequest{})
	assert.NoError(t, err)
}

func TestOnboard_WithoutSessionStore(t *testing.T) {
	ctx := t.Context()
	api := newFakeAPI()
	apps := core.DefaultAppAddresses()
	requester := service.NewChallengeRequester(api, apps)
	queries := service.NewSessionQueries(api, nil, nil)
	onboarder := service.NewOnboarder(
		service.NewAuthenticator(api, requester, 0),
		requester,
		queries,
		nil,
		service.NewProfiles(api, &memoryStorage{}),
		nil,
		apps,
	)
	signer := &stubSigner{address: "0xW", signature: "sig1"}

	_, err := onboarder.Run(ctx, signer, service.OnboardRequest{UseTestnet: true})

	var stepErr *service.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, service.StepPersist, stepErr.Step)
	assert.ErrorIs(t, err, service.ErrNoSessionStore)
	assert.Zero(t, api.count("Challenge"))
	assert.Zero(t, api.count("Authenticate"))

	kv := store.NewMemoryStore()
	result, err := onboarder.WithStore(service.NewSessionStore(kv)).Run(ctx, signer, service.OnboardRequest{UseTestnet: true})
	require.NoError(t, err)
	assert.Equal(t, testTokens, result.Tokens)
	assert.NotZero(t, kv.Len())
}
