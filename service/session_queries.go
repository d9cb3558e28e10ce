package service

import (
	"context"
	"errors"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/layer-3/lens-onboard/core"
	"github.com/layer-3/lens-onboard/ports"
)

const (
	// maxPages bounds cursor following on paginated reads
	maxPages = 20

	// refreshLeeway refreshes access tokens slightly before they expire
	refreshLeeway = 30 * time.Second
)

// SessionQueries are best-effort reads over an authenticated session. Remote failures
// are logged and reported as no result.
type SessionQueries struct {
	api    ports.LensAPI
	store  *SessionStore
	events ports.EventPublisher
	now    func() time.Time
}

// NewSessionQueries creates the query layer. store may be nil when resumption and
// logout are not needed.
func NewSessionQueries(api ports.LensAPI, store *SessionStore, events ports.EventPublisher) *SessionQueries {
	return &SessionQueries{
		api:    api,
		store:  store,
		events: events,
		now:    time.Now,
	}
}

// WithStore returns a copy of q persisting through store
func (q *SessionQueries) WithStore(store *SessionStore) *SessionQueries {
	cp := *q
	cp.store = store
	return &cp
}

// GetCurrentSession returns the session the handle is authenticated as
func (q *SessionQueries) GetCurrentSession(ctx context.Context, h *SessionHandle) (core.SessionInfo, bool) {
	if h == nil {
		return core.SessionInfo{}, false
	}
	info, err := q.api.CurrentSession(ctx, h.accessToken())
	if err != nil {
		slogctx.Warn(ctx, "Could not fetch current session", "error", err)
		return core.SessionInfo{}, false
	}
	return info, true
}

// ListAuthenticatedSessions returns every authenticated session of the handle's signer,
// in remote order. Any failure yields an empty list.
func (q *SessionQueries) ListAuthenticatedSessions(ctx context.Context, h *SessionHandle) []core.SessionInfo {
	if h == nil {
		return []core.SessionInfo{}
	}

	var (
		all    []core.SessionInfo
		cursor string
	)
	for page := 0; page < maxPages; page++ {
		items, next, err := q.api.AuthenticatedSessions(ctx, h.accessToken(), cursor)
		if err != nil {
			slogctx.Warn(ctx, "Could not list authenticated sessions", "error", err)
			return []core.SessionInfo{}
		}
		all = append(all, items...)
		if next == "" || next == cursor {
			break
		}
		cursor = next
	}

	if all == nil {
		return []core.SessionInfo{}
	}
	return all
}

// GetLastLoggedInAccount returns the account address last logged in with
func (q *SessionQueries) GetLastLoggedInAccount(ctx context.Context, address string) (core.Account, bool) {
	if address == "" {
		return core.Account{}, false
	}
	account, err := q.api.LastLoggedInAccount(ctx, address)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			slogctx.Warn(ctx, "Could not fetch last logged in account", "address", address, "error", err)
		}
		return core.Account{}, false
	}
	return account, true
}

// ListAvailableAccounts returns the accounts address owns or manages
func (q *SessionQueries) ListAvailableAccounts(ctx context.Context, address string) []core.AvailableAccount {
	if address == "" {
		return []core.AvailableAccount{}
	}

	var (
		all    []core.AvailableAccount
		cursor string
	)
	for page := 0; page < maxPages; page++ {
		items, next, err := q.api.AccountsAvailable(ctx, address, true, cursor)
		if err != nil {
			slogctx.Warn(ctx, "Could not fetch available accounts", "address", address, "error", err)
			return []core.AvailableAccount{}
		}
		all = append(all, items...)
		if next == "" || next == cursor {
			break
		}
		cursor = next
	}

	if all == nil {
		return []core.AvailableAccount{}
	}
	return all
}

// ResumeSession rebuilds a handle from the persisted tokens. An expired or rejected
// access token is refreshed once and the rotated tokens are persisted.
func (q *SessionQueries) ResumeSession(ctx context.Context) (*SessionHandle, bool) {
	if q.store == nil {
		return nil, false
	}
	tokens, ok := q.store.Load(ctx)
	if !ok {
		return nil, false
	}

	if !accessExpired(tokens.AccessToken, q.now(), refreshLeeway) {
		info, err := q.api.CurrentSession(ctx, tokens.AccessToken)
		switch {
		case err == nil:
			h := handleFromTokens(tokens)
			if h.address == "" {
				h.address = info.Signer
			}
			if h.app == "" {
				h.app = info.App
			}
			return h, true
		case errors.Is(err, core.ErrForbidden), errors.Is(err, core.ErrNotFound):
			slogctx.Info(ctx, "Persisted access token rejected, refreshing")
		default:
			slogctx.Warn(ctx, "Could not verify persisted session", "error", err)
			return nil, false
		}
	}

	return q.refresh(ctx, tokens)
}

func (q *SessionQueries) refresh(ctx context.Context, tokens core.AuthenticationTokens) (*SessionHandle, bool) {
	if tokens.RefreshToken == "" {
		return nil, false
	}

	rotated, err := q.api.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		slogctx.Warn(ctx, "Could not refresh persisted session", "error", err)
		if errors.Is(err, core.ErrForbidden) {
			if err := q.store.Clear(ctx); err != nil {
				slogctx.Warn(ctx, "Could not clear rejected session", "error", err)
			}
		}
		return nil, false
	}

	if err := q.store.Save(ctx, rotated); err != nil {
		slogctx.Warn(ctx, "Could not persist refreshed session", "error", err)
	}
	return handleFromTokens(rotated), true
}

// Revoke ends the authenticated session authenticationID. It reports whether the
// remote accepted the revocation.
func (q *SessionQueries) Revoke(ctx context.Context, h *SessionHandle, authenticationID string) bool {
	if h == nil || authenticationID == "" {
		return false
	}
	if err := q.api.RevokeAuthentication(ctx, h.accessToken(), authenticationID); err != nil {
		slogctx.Warn(ctx, "Could not revoke session", "authentication_id", authenticationID, "error", err)
		return false
	}
	return true
}

// Logout revokes the handle's own session, clears the persisted tokens and announces it.
// Only a failure to clear the store is returned.
func (q *SessionQueries) Logout(ctx context.Context, h *SessionHandle) error {
	var authenticationID string
	if info, ok := q.GetCurrentSession(ctx, h); ok {
		authenticationID = info.AuthenticationID
		q.Revoke(ctx, h, authenticationID)
	}

	if q.store != nil {
		if err := q.store.Clear(ctx); err != nil {
			return err
		}
	}

	if q.events != nil && h != nil {
		event := core.SessionEvent{
			Type:             core.SessionEventLoggedOut,
			Address:          h.address,
			Role:             h.role,
			AuthenticationID: authenticationID,
			At:               q.now().UTC(),
		}
		if err := q.events.PublishSessionEvent(ctx, event); err != nil {
			slogctx.Warn(ctx, "Failed to publish logout event", "error", err)
		}
	}
	return nil
}
