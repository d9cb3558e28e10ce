package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/layer-3/lens-onboard/core"
	"github.com/layer-3/lens-onboard/ports"
)

const (
	// SessionKey holds the JSON encoded PersistedSession
	SessionKey = "lens.session"

	// AccessTokenKey holds the raw access token for bearer-auth consumers
	AccessTokenKey = "authToken"
)

// PersistedSession is the stored form of a token set
type PersistedSession struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	IDToken      string    `json:"idToken,omitempty"`
	SavedAt      time.Time `json:"savedAt"`
}

// SessionStore persists tokens in a key-value backend. Writes are last-writer-wins.
type SessionStore struct {
	kv  ports.KeyValueStore
	now func() time.Time
}

// NewSessionStore creates a store over kv
func NewSessionStore(kv ports.KeyValueStore) *SessionStore {
	return &SessionStore{kv: kv, now: time.Now}
}

// Save overwrites the persisted session with tokens
func (s *SessionStore) Save(ctx context.Context, tokens core.AuthenticationTokens) error {
	record, err := json.Marshal(PersistedSession{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		IDToken:      tokens.IDToken,
		SavedAt:      s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	if err := s.kv.SetItem(ctx, SessionKey, string(record)); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	if err := s.kv.SetItem(ctx, AccessTokenKey, tokens.AccessToken); err != nil {
		return fmt.Errorf("saving access token: %w", err)
	}
	return nil
}

// Load returns the persisted tokens. A missing, unreadable or corrupt record is
// reported as no session. A bare access token without a record is returned on its own.
func (s *SessionStore) Load(ctx context.Context) (core.AuthenticationTokens, bool) {
	raw, ok, err := s.kv.GetItem(ctx, SessionKey)
	if err != nil {
		slogctx.Warn(ctx, "Could not read persisted session", "error", err)
		return core.AuthenticationTokens{}, false
	}
	if !ok {
		return s.loadAccessToken(ctx)
	}

	var record PersistedSession
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		slogctx.Warn(ctx, "Discarding corrupt persisted session", "error", err)
		return core.AuthenticationTokens{}, false
	}
	if record.AccessToken == "" {
		return core.AuthenticationTokens{}, false
	}

	return core.AuthenticationTokens{
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		IDToken:      record.IDToken,
	}, true
}

func (s *SessionStore) loadAccessToken(ctx context.Context) (core.AuthenticationTokens, bool) {
	token, ok, err := s.kv.GetItem(ctx, AccessTokenKey)
	if err != nil {
		slogctx.Warn(ctx, "Could not read persisted access token", "error", err)
		return core.AuthenticationTokens{}, false
	}
	if !ok || token == "" {
		return core.AuthenticationTokens{}, false
	}
	return core.AuthenticationTokens{AccessToken: token}, true
}

// Clear removes everything Save wrote. Clearing an empty store is not an error.
func (s *SessionStore) Clear(ctx context.Context) error {
	return errors.Join(
		s.kv.RemoveItem(ctx, SessionKey),
		s.kv.RemoveItem(ctx, AccessTokenKey),
	)
}
