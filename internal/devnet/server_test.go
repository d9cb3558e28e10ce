package devnet_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/lens-onboard/adapters/lensapi"
	"github.com/layer-3/lens-onboard/adapters/signer"
	"github.com/layer-3/lens-onboard/adapters/store"
	"github.com/layer-3/lens-onboard/core"
	"github.com/layer-3/lens-onboard/internal/devnet"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	server *devnet.Server
	client *lensapi.Client
	clock  *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clk := &clock{now: time.Now()}
	srv, err := devnet.New(devnet.Config{Now: clk.Now}, store.NewMemoryStore(), nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.SetupRouter())
	t.Cleanup(ts.Close)
	return &fixture{server: srv, client: lensapi.New(ts.URL + "/graphql"), clock: clk}
}

func newWallet(t *testing.T) (*signer.KeySigner, string) {
	t.Helper()
	w, err := signer.GenerateKeySigner()
	require.NoError(t, err)
	addr, err := w.Address(context.Background())
	require.NoError(t, err)
	return w, addr
}

func (f *fixture) login(t *testing.T, w *signer.KeySigner, req core.ChallengeRequest) (core.AuthenticationTokens, error) {
	t.Helper()
	ctx := t.Context()
	ch, err := f.client.Challenge(ctx, req)
	require.NoError(t, err)
	sig, err := w.SignMessage(ctx, ch.Text)
	require.NoError(t, err)
	return f.client.Authenticate(ctx, ch.ID, sig)
}

func onboardingRequest(t *testing.T, wallet string) core.ChallengeRequest {
	t.Helper()
	req, err := core.NewOnboardingUserRequest(core.TestnetAppAddress, wallet)
	require.NoError(t, err)
	return req
}

func TestChallengeAndAuthenticate(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)
	w, addr := newWallet(t)

	ch, err := f.client.Challenge(ctx, onboardingRequest(t, addr))
	require.NoError(t, err)
	assert.NotEmpty(t, ch.ID)
	assert.Contains(t, ch.Text, addr)

	sig, err := w.SignMessage(ctx, ch.Text)
	require.NoError(t, err)

	tokens, err := f.client.Authenticate(ctx, ch.ID, sig)
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.NotEmpty(t, tokens.IDToken)

	info, err := f.client.CurrentSession(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, addr, info.Signer)
	assert.Equal(t, core.TestnetAppAddress, info.App)

	t.Run("challenge is single use", func(t *testing.T) {
		_, err := f.client.Authenticate(ctx, ch.ID, sig)
		var authErr *core.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.ErrorIs(t, err, core.ErrExpiredChallenge)
		assert.Equal(t, "challenge already used", authErr.Reason)
	})
}

func TestAuthenticateRejections(t *testing.T) {
	ctx := t.Context()

	t.Run("wrong signer", func(t *testing.T) {
		f := newFixture(t)
		_, addr := newWallet(t)
		impostor, _ := newWallet(t)

		_, err := f.login(t, impostor, onboardingRequest(t, addr))

		assert.ErrorIs(t, err, core.ErrWrongSigner)
	})

	t.Run("malformed signature", func(t *testing.T) {
		f := newFixture(t)
		_, addr := newWallet(t)
		ch, err := f.client.Challenge(ctx, onboardingRequest(t, addr))
		require.NoError(t, err)

		_, err = f.client.Authenticate(ctx, ch.ID, "0x1234")

		assert.ErrorIs(t, err, core.ErrWrongSigner)
	})

	t.Run("expired challenge", func(t *testing.T) {
		f := newFixture(t)
		w, addr := newWallet(t)
		ch, err := f.client.Challenge(ctx, onboardingRequest(t, addr))
		require.NoError(t, err)
		sig, err := w.SignMessage(ctx, ch.Text)
		require.NoError(t, err)

		f.clock.Advance(6 * time.Minute)
		_, err = f.client.Authenticate(ctx, ch.ID, sig)

		var authErr *core.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.ErrorIs(t, err, core.ErrExpiredChallenge)
		assert.Equal(t, "challenge expired", authErr.Reason)
	})

	t.Run("owner of someone else's account", func(t *testing.T) {
		f := newFixture(t)
		_, owner := newWallet(t)
		w, addr := newWallet(t)
		account := f.server.AddAccount(owner, "alice")

		req, err := core.NewAccountOwnerRequest(core.TestnetAppAddress, account, "", addr)
		require.NoError(t, err)
		_, err = f.login(t, w, req)

		assert.ErrorIs(t, err, core.ErrForbidden)
	})

	t.Run("manager of a managed account", func(t *testing.T) {
		f := newFixture(t)
		_, owner := newWallet(t)
		w, addr := newWallet(t)
		account := f.server.AddAccount(owner, "alice", addr)

		req, err := core.NewAccountManagerRequest(core.TestnetAppAddress, account, addr)
		require.NoError(t, err)
		tokens, err := f.login(t, w, req)
		require.NoError(t, err)

		last, err := f.client.LastLoggedInAccount(ctx, addr)
		require.NoError(t, err)
		assert.Equal(t, account, last.Address)
		assert.Equal(t, "lens/alice", last.Username)
		assert.NotEmpty(t, tokens.AccessToken)
	})

	t.Run("invalid address is rejected at challenge", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.client.Challenge(ctx, onboardingRequest(t, "0xABC"))

		assert.ErrorIs(t, err, core.ErrTransport)
	})
}

func TestRefreshRotation(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)
	w, addr := newWallet(t)
	first, err := f.login(t, w, onboardingRequest(t, addr))
	require.NoError(t, err)

	second, err := f.client.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = f.client.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, core.ErrForbidden, "a rotated refresh token must not be reusable")

	info, err := f.client.CurrentSession(ctx, second.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.client.RevokeAuthentication(ctx, second.AccessToken, info.AuthenticationID))

	_, err = f.client.CurrentSession(ctx, second.AccessToken)
	assert.ErrorIs(t, err, core.ErrForbidden)
	_, err = f.client.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, core.ErrForbidden)
}

func TestAuthenticatedSessionsPagination(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)
	w, addr := newWallet(t)

	var tokens core.AuthenticationTokens
	for i := 0; i < 12; i++ {
		var err error
		tokens, err = f.login(t, w, onboardingRequest(t, addr))
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	items, next, err := f.client.AuthenticatedSessions(ctx, tokens.AccessToken, "")
	require.NoError(t, err)
	assert.Len(t, items, 10)
	require.NotEmpty(t, next)

	rest, next, err := f.client.AuthenticatedSessions(ctx, tokens.AccessToken, next)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
	assert.Empty(t, next)
}

func TestAccounts(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)
	w, addr := newWallet(t)
	tokens, err := f.login(t, w, onboardingRequest(t, addr))
	require.NoError(t, err)

	_, err = f.client.SetAccountMetadata(ctx, tokens.AccessToken, "lens://meta")
	var br *core.BusinessRuleError
	require.ErrorAs(t, err, &br)
	assert.Equal(t, lensapi.TypeTransactionWillFail, br.Kind)

	hash, err := f.client.CreateAccountWithUsername(ctx, tokens.AccessToken, "alice", "lens://meta")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	_, err = f.client.CreateAccountWithUsername(ctx, tokens.AccessToken, "alice", "lens://meta")
	require.ErrorAs(t, err, &br)
	assert.Equal(t, lensapi.TypeUsernameTaken, br.Kind)

	_, err = f.client.CreateAccountWithUsername(ctx, tokens.AccessToken, "Alice1", "lens://meta")
	require.ErrorAs(t, err, &br)
	assert.Equal(t, lensapi.TypeNamespaceOperationValidationFailed, br.Kind)

	hash, err = f.client.SetAccountMetadata(ctx, tokens.AccessToken, "lens://meta-2")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	for i := 0; i < 11; i++ {
		f.server.AddAccount(addr, fmt.Sprintf("owned%c", 'a'+i))
	}
	items, next, err := f.client.AccountsAvailable(ctx, addr, true, "")
	require.NoError(t, err)
	assert.Len(t, items, 10)
	assert.True(t, items[0].Owned)
	more, _, err := f.client.AccountsAvailable(ctx, addr, true, next)
	require.NoError(t, err)
	assert.Len(t, more, 2)

	none, _, err := f.client.AccountsAvailable(ctx, addr, false, "")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.client.LastLoggedInAccount(ctx, addr)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCreateApp(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)
	w, addr := newWallet(t)

	user, err := f.login(t, w, onboardingRequest(t, addr))
	require.NoError(t, err)
	_, err = f.client.CreateApp(ctx, user.AccessToken, "lens://app")
	assert.ErrorIs(t, err, core.ErrForbidden)

	builderReq, err := core.NewBuilderRequest(addr)
	require.NoError(t, err)
	builder, err := f.login(t, w, builderReq)
	require.NoError(t, err)

	hash, err := f.client.CreateApp(ctx, builder.AccessToken, "lens://app")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	_, err = f.client.CreateApp(ctx, builder.AccessToken, "")
	var br *core.BusinessRuleError
	require.ErrorAs(t, err, &br)
	assert.Equal(t, lensapi.TypeTransactionWillFail, br.Kind)

	_, err = f.client.CreateApp(ctx, "not-a-token", "lens://app")
	assert.ErrorIs(t, err, core.ErrForbidden)
}
