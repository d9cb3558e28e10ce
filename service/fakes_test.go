package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/layer-3/lens-onboard/core"
	"github.com/layer-3/lens-onboard/ports"
)

var testTokens = core.AuthenticationTokens{AccessToken: "access-1", RefreshToken: "refresh-1", IDToken: "id-1"}

// fakeAPI is a programmable LensAPI that counts calls per operation
type fakeAPI struct {
	mu       sync.Mutex
	calls    map[string]int
	requests []core.ChallengeRequest

	challenge      func(core.ChallengeRequest) (core.Challenge, error)
	authenticate   func(id, signature string) (core.AuthenticationTokens, error)
	refresh        func(refreshToken string) (core.AuthenticationTokens, error)
	currentSession func(accessToken string) (core.SessionInfo, error)
	sessions       func(accessToken, cursor string) ([]core.SessionInfo, string, error)
	revoke         func(accessToken, id string) error
	lastLoggedIn   func(address string) (core.Account, error)
	available      func(address, cursor string) ([]core.AvailableAccount, string, error)
	create         func(accessToken, username, uri string) (string, error)
	setMetadata    func(accessToken, uri string) (string, error)
	createApp      func(accessToken, uri string) (string, error)
}

var _ ports.LensAPI = (*fakeAPI)(nil)

func newFakeAPI() *fakeAPI {
	return &fakeAPI{calls: map[string]int{}}
}

func (f *fakeAPI) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeAPI) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAPI) lastRequest() core.ChallengeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeAPI) Challenge(_ context.Context, req core.ChallengeRequest) (core.Challenge, error) {
	f.record("Challenge")
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()
	if f.challenge != nil {
		return f.challenge(req)
	}
	return core.Challenge{ID: fmt.Sprintf("c%d", n), Text: "sign-me"}, nil
}

func (f *fakeAPI) Authenticate(_ context.Context, id, signature string) (core.AuthenticationTokens, error) {
	f.record("Authenticate")
	if f.authenticate != nil {
		return f.authenticate(id, signature)
	}
	return testTokens, nil
}

func (f *fakeAPI) Refresh(_ context.Context, refreshToken string) (core.AuthenticationTokens, error) {
	f.record("Refresh")
	if f.refresh != nil {
		return f.refresh(refreshToken)
	}
	return core.AuthenticationTokens{}, &core.AuthError{Kind: core.ErrForbidden, Reason: "refresh disabled"}
}

func (f *fakeAPI) CurrentSession(_ context.Context, accessToken string) (core.SessionInfo, error) {
	f.record("CurrentSession")
	if f.currentSession != nil {
		return f.currentSession(accessToken)
	}
	return core.SessionInfo{}, core.ErrNotFound
}

func (f *fakeAPI) AuthenticatedSessions(_ context.Context, accessToken, cursor string) ([]core.SessionInfo, string, error) {
	f.record("AuthenticatedSessions")
	if f.sessions != nil {
		return f.sessions(accessToken, cursor)
	}
	return nil, "", nil
}

func (f *fakeAPI) RevokeAuthentication(_ context.Context, accessToken, id string) error {
	f.record("RevokeAuthentication")
	if f.revoke != nil {
		return f.revoke(accessToken, id)
	}
	return nil
}

func (f *fakeAPI) LastLoggedInAccount(_ context.Context, address string) (core.Account, error) {
	f.record("LastLoggedInAccount")
	if f.lastLoggedIn != nil {
		return f.lastLoggedIn(address)
	}
	return core.Account{}, core.ErrNotFound
}

func (f *fakeAPI) AccountsAvailable(_ context.Context, address string, _ bool, cursor string) ([]core.AvailableAccount, string, error) {
	f.record("AccountsAvailable")
	if f.available != nil {
		return f.available(address, cursor)
	}
	return nil, "", nil
}

func (f *fakeAPI) CreateAccountWithUsername(_ context.Context, accessToken, username, uri string) (string, error) {
	f.record("CreateAccountWithUsername")
	if f.create != nil {
		return f.create(accessToken, username, uri)
	}
	return "0xcreated", nil
}

func (f *fakeAPI) SetAccountMetadata(_ context.Context, accessToken, uri string) (string, error) {
	f.record("SetAccountMetadata")
	if f.setMetadata != nil {
		return f.setMetadata(accessToken, uri)
	}
	return "0xupdated", nil
}

func (f *fakeAPI) CreateApp(_ context.Context, accessToken, uri string) (string, error) {
	f.record("CreateApp")
	if f.createApp != nil {
		return f.createApp(accessToken, uri)
	}
	return "0xapp", nil
}

// stubSigner signs every message with a fixed signature
type stubSigner struct {
	address   string
	signature string
	signErr   error

	// entered and release, when set, park SignMessage until release is closed
	entered chan struct{}
	release chan struct{}

	mu     sync.Mutex
	signed []string
}

func (s *stubSigner) Address(context.Context) (string, error) { return s.address, nil }

func (s *stubSigner) SignMessage(ctx context.Context, message string) (string, error) {
	s.mu.Lock()
	s.signed = append(s.signed, message)
	s.mu.Unlock()
	if s.entered != nil {
		s.entered <- struct{}{}
		<-s.release
	}
	if s.signErr != nil {
		return "", s.signErr
	}
	return s.signature, nil
}

func (s *stubSigner) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.signed...)
}

// failingSigner cannot report an address
type failingSigner struct{}

func (failingSigner) Address(context.Context) (string, error) {
	return "", errors.New("no provider")
}

func (failingSigner) SignMessage(context.Context, string) (string, error) {
	return "", errors.New("no provider")
}

// memoryStorage records uploaded metadata documents
type memoryStorage struct {
	mu   sync.Mutex
	docs []any
	err  error
}

func (m *memoryStorage) UploadAsJSON(_ context.Context, document any) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, document)
	return "lens://doc", nil
}

func (m *memoryStorage) uploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func (m *memoryStorage) lastDocument() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.docs) == 0 {
		return nil
	}
	return m.docs[len(m.docs)-1]
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []core.SessionEvent
}

func (r *recordingPublisher) PublishSessionEvent(_ context.Context, event core.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingPublisher) types() []core.SessionEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.SessionEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// brokenKV fails every operation
type brokenKV struct{}

func (brokenKV) GetItem(context.Context, string) (string, bool, error) {
	return "", false, errors.New("storage offline")
}
func (brokenKV) SetItem(context.Context, string, string) error { return errors.New("storage offline") }
func (brokenKV) RemoveItem(context.Context, string) error      { return errors.New("storage offline") }

// signedJWT builds an unverifiable token carrying the given claims
func signedJWT(claims jwt.Claims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		panic(err)
	}
	return token
}

func expiringToken(subject string, exp time.Time) string {
	return signedJWT(jwt.RegisteredClaims{Subject: subject, ExpiresAt: jwt.NewNumericDate(exp)})
}
