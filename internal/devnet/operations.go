package devnet

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/layer-3/lens-onboard/adapters/lensapi"
	"github.com/layer-3/lens-onboard/adapters/signer"
	"github.com/layer-3/lens-onboard/core"
	"github.com/layer-3/lens-onboard/service"
)

const pageSize = 10

type challenge struct {
	id        string
	text      string
	request   core.ChallengeRequest
	expiresAt time.Time
	used      bool
}

type session struct {
	info      core.SessionInfo
	role      core.Role
	account   string
	refreshID string
	revoked   bool
}

type account struct {
	address     string
	owner       string
	managers    map[string]struct{}
	username    string
	metadataURI string
	createdAt   time.Time
}

func (a *account) wire() lensapi.AccountResult {
	res := lensapi.AccountResult{Address: a.address, Owner: a.owner, CreatedAt: a.createdAt}
	if a.username != "" {
		res.Username = &struct {
			Value string `json:"value"`
		}{Value: "lens/" + a.username}
	}
	return res
}

func newNonce() (string, error) {
	nonceBytes := make([]byte, 16)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(nonceBytes), nil
}

func newTxHash() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hexutil.Encode(b)
}

func (s *Server) challengeText(req core.ChallengeRequest, nonce string, issuedAt time.Time) string {
	return fmt.Sprintf("%s wants you to sign in with your Ethereum account:\n%s\n\nSign in with Lens as %s\n\nURI: http://%s\nVersion: 1\nChain ID: %d\nNonce: %s\nIssued At: %s",
		s.cfg.Domain, req.Signer(), req.Role(), s.cfg.Domain, s.cfg.ChainID, nonce, issuedAt.UTC().Format(time.RFC3339))
}

func (s *Server) challenge(_ *gin.Context, vars json.RawMessage) (any, error) {
	var envelope core.ChallengeRequestEnvelope
	if err := decodeRequest(vars, &envelope); err != nil {
		return nil, err
	}
	req, err := envelope.Request()
	if err != nil {
		return nil, badInput("%v", err)
	}
	if !common.IsHexAddress(req.Signer()) {
		return nil, badInput("invalid address %q", req.Signer())
	}

	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	now := s.now()
	ch := &challenge{
		id:        uuid.NewString(),
		text:      s.challengeText(req, nonce, now),
		request:   req,
		expiresAt: now.Add(s.cfg.ChallengeTTL),
	}

	s.mu.Lock()
	s.challenges[ch.id] = ch
	s.mu.Unlock()

	return gin.H{"challenge": gin.H{"__typename": "AuthenticationChallenge", "id": ch.id, "text": ch.text}}, nil
}

func tokensResult(typename, reason string) gin.H {
	return gin.H{"authenticate": lensapi.TokensResult{Typename: typename, Reason: reason}}
}

func (s *Server) authenticate(c *gin.Context, vars json.RawMessage) (any, error) {
	var in struct {
		ID        string `json:"id"`
		Signature string `json:"signature"`
	}
	if err := decodeRequest(vars, &in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[in.ID]
	switch {
	case !ok:
		return tokensResult(lensapi.TypeExpiredChallengeError, "unknown challenge"), nil
	case ch.used:
		return tokensResult(lensapi.TypeExpiredChallengeError, "challenge already used"), nil
	case s.now().After(ch.expiresAt):
		delete(s.challenges, in.ID)
		return tokensResult(lensapi.TypeExpiredChallengeError, "challenge expired"), nil
	}
	ch.used = true

	recovered, err := signer.RecoverAddress(ch.text, in.Signature)
	if err != nil {
		return tokensResult(lensapi.TypeWrongSignerError, "invalid signature"), nil
	}
	if recovered != common.HexToAddress(ch.request.Signer()) {
		return tokensResult(lensapi.TypeWrongSignerError, "signature does not match the challenged address"), nil
	}

	var app, accountAddr string
	switch r := ch.request.(type) {
	case core.OnboardingUserRequest:
		app = r.App
	case core.AccountOwnerRequest:
		app, accountAddr = r.App, r.Account
		acc, exists := s.accounts[key(r.Account)]
		if !exists || key(acc.owner) != key(r.Owner) {
			return tokensResult(lensapi.TypeForbiddenError, "signer is not the owner of the account"), nil
		}
	case core.AccountManagerRequest:
		app, accountAddr = r.App, r.Account
		acc, exists := s.accounts[key(r.Account)]
		if !exists {
			return tokensResult(lensapi.TypeForbiddenError, "account does not exist"), nil
		}
		if _, managed := acc.managers[key(r.Manager)]; !managed && key(acc.owner) != key(r.Manager) {
			return tokensResult(lensapi.TypeForbiddenError, "signer is not a manager of the account"), nil
		}
	}

	now := s.now()
	sess := &session{
		info: core.SessionInfo{
			AuthenticationID: uuid.NewString(),
			App:              app,
			Browser:          c.Request.UserAgent(),
			Origin:           c.GetHeader("Origin"),
			Signer:           recovered.Hex(),
			CreatedAt:        now,
			UpdatedAt:        now,
			ExpiresAt:        now.Add(s.cfg.RefreshTTL),
		},
		role:      ch.request.Role(),
		account:   accountAddr,
		refreshID: uuid.NewString(),
	}
	tokens, err := s.tokens.issue(sess, now)
	if err != nil {
		return nil, err
	}
	s.sessions[sess.info.AuthenticationID] = sess
	if accountAddr != "" {
		s.lastLogin[key(sess.info.Signer)] = accountAddr
	}

	s.publish(c, core.SessionEvent{
		Type:             core.SessionEventAuthenticated,
		Address:          sess.info.Signer,
		Role:             sess.role,
		AuthenticationID: sess.info.AuthenticationID,
		At:               now,
	})

	return gin.H{"authenticate": lensapi.TokensResult{
		Typename:     lensapi.TypeAuthenticationTokens,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		IDToken:      tokens.IDToken,
	}}, nil
}

func (s *Server) refresh(c *gin.Context, vars json.RawMessage) (any, error) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeRequest(vars, &in); err != nil {
		return nil, err
	}
	forbidden := func(reason string) (any, error) {
		return gin.H{"refresh": lensapi.TokensResult{Typename: lensapi.TypeForbiddenError, Reason: reason}}, nil
	}

	claims, err := s.tokens.parseRefresh(in.RefreshToken)
	if err != nil {
		return forbidden("invalid refresh token")
	}

	ctx := c.Request.Context()
	if _, invalidated, err := s.revoked.GetItem(ctx, claims.ID); err != nil {
		return nil, fmt.Errorf("failed to check token invalidation: %w", err)
	} else if invalidated {
		return forbidden("refresh token has been invalidated")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[claims.AuthenticationID]
	if !ok || sess.revoked || sess.refreshID != claims.ID {
		return forbidden("session is no longer active")
	}

	if err := s.revoked.SetItem(ctx, claims.ID, "rotated"); err != nil {
		return nil, fmt.Errorf("failed to invalidate old token: %w", err)
	}

	now := s.now()
	sess.refreshID = uuid.NewString()
	sess.info.UpdatedAt = now
	sess.info.ExpiresAt = now.Add(s.cfg.RefreshTTL)
	tokens, err := s.tokens.issue(sess, now)
	if err != nil {
		return nil, err
	}

	return gin.H{"refresh": lensapi.TokensResult{
		Typename:     lensapi.TypeAuthenticationTokens,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		IDToken:      tokens.IDToken,
	}}, nil
}

// authorize resolves the active session of the bearer token. The caller holds s.mu.
func (s *Server) authorize(c *gin.Context) (*session, error) {
	token := bearer(c)
	if token == "" {
		return nil, unauthenticated("missing access token")
	}
	claims, err := s.tokens.parseAccess(token)
	if err != nil {
		return nil, unauthenticated("invalid access token")
	}
	sess, ok := s.sessions[claims.AuthenticationID]
	if !ok || sess.revoked {
		return nil, unauthenticated("session revoked")
	}
	return sess, nil
}

func (s *Server) currentSession(c *gin.Context, _ json.RawMessage) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.authorize(c)
	if err != nil {
		return nil, err
	}
	return gin.H{"currentSession": sess.info}, nil
}

func page[T any](items []T, cursor string) ([]T, lensapi.PageInfo, error) {
	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 || n > len(items) {
			return nil, lensapi.PageInfo{}, badInput("invalid cursor")
		}
		start = n
	}
	end := min(start+pageSize, len(items))

	var info lensapi.PageInfo
	if start > 0 {
		prev := strconv.Itoa(max(start-pageSize, 0))
		info.Prev = &prev
	}
	if end < len(items) {
		next := strconv.Itoa(end)
		info.Next = &next
	}
	return items[start:end], info, nil
}

func (s *Server) authenticatedSessions(c *gin.Context, vars json.RawMessage) (any, error) {
	var in struct {
		Cursor string `json:"cursor"`
	}
	if len(vars) > 0 {
		if err := decodeRequest(vars, &in); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.authorize(c)
	if err != nil {
		return nil, err
	}

	var all []core.SessionInfo
	for _, sess := range s.sessions {
		if !sess.revoked && key(sess.info.Signer) == key(current.info.Signer) {
			all = append(all, sess.info)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].AuthenticationID < all[j].AuthenticationID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	items, info, err := page(all, in.Cursor)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []core.SessionInfo{}
	}
	return gin.H{"authenticatedSessions": gin.H{"items": items, "pageInfo": info}}, nil
}

func (s *Server) revokeAuthentication(c *gin.Context, vars json.RawMessage) (any, error) {
	var in struct {
		AuthenticationID string `json:"authenticationId"`
	}
	if err := decodeRequest(vars, &in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.authorize(c)
	if err != nil {
		return nil, err
	}
	target, ok := s.sessions[in.AuthenticationID]
	if !ok || key(target.info.Signer) != key(current.info.Signer) {
		return nil, &opError{code: lensapi.CodeForbidden, message: "cannot revoke this session"}
	}

	target.revoked = true
	if err := s.revoked.SetItem(c.Request.Context(), target.refreshID, "revoked"); err != nil {
		return nil, fmt.Errorf("failed to invalidate token: %w", err)
	}

	s.publish(c, core.SessionEvent{
		Type:             core.SessionEventLoggedOut,
		Address:          target.info.Signer,
		Role:             target.role,
		AuthenticationID: target.info.AuthenticationID,
		At:               s.now(),
	})
	return gin.H{"revokeAuthentication": nil}, nil
}

func (s *Server) lastLoggedInAccount(_ *gin.Context, vars json.RawMessage) (any, error) {
	var in struct {
		Address string `json:"address"`
	}
	if err := decodeRequest(vars, &in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	addr, ok := s.lastLogin[key(in.Address)]
	if !ok {
		return gin.H{"lastLoggedInAccount": nil}, nil
	}
	return gin.H{"lastLoggedInAccount": s.accounts[key(addr)].wire()}, nil
}

func (s *Server) accountsAvailable(_ *gin.Context, vars json.RawMessage) (any, error) {
	var in struct {
		ManagedBy    string `json:"managedBy"`
		IncludeOwned bool   `json:"includeOwned"`
		Cursor       string `json:"cursor"`
	}
	if err := decodeRequest(vars, &in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*account
	for _, acc := range s.accounts {
		all = append(all, acc)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].createdAt.Before(all[j].createdAt) })

	var matched []lensapi.AvailableAccountResult
	for _, acc := range all {
		if key(acc.owner) == key(in.ManagedBy) {
			if in.IncludeOwned {
				matched = append(matched, lensapi.AvailableAccountResult{Typename: lensapi.TypeAccountOwned, Account: acc.wire()})
			}
			continue
		}
		if _, ok := acc.managers[key(in.ManagedBy)]; ok {
			matched = append(matched, lensapi.AvailableAccountResult{Typename: lensapi.TypeAccountManaged, Account: acc.wire()})
		}
	}

	items, info, err := page(matched, in.Cursor)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []lensapi.AvailableAccountResult{}
	}
	return gin.H{"accountsAvailable": gin.H{"items": items, "pageInfo": info}}, nil
}

func (s *Server) createAccountWithUsername(c *gin.Context, vars json.RawMessage) (any, error) {
	var in struct {
		Username struct {
			LocalName string `json:"localName"`
		} `json:"username"`
		MetadataURI string `json:"metadataUri"`
	}
	if err := decodeRequest(vars, &in); err != nil {
		return nil, err
	}
	result := func(typename, reason string) (any, error) {
		return gin.H{"createAccountWithUsername": lensapi.TxResult{Typename: typename, Reason: reason}}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.authorize(c)
	if err != nil {
		return nil, err
	}

	name := in.Username.LocalName
	if name == "" || name != service.SanitizeUsername(name) {
		return result(lensapi.TypeNamespaceOperationValidationFailed, "username must be lowercase letters only")
	}
	if _, taken := s.usernames[name]; taken {
		return result(lensapi.TypeUsernameTaken, fmt.Sprintf("username %q is already taken", name))
	}
	if in.MetadataURI == "" {
		return result(lensapi.TypeTransactionWillFail, "metadata uri is required")
	}

	addr := common.BytesToAddress(crypto.Keccak256([]byte(key(sess.info.Signer)), []byte(name))).Hex()
	s.accounts[key(addr)] = &account{
		address:     addr,
		owner:       sess.info.Signer,
		managers:    map[string]struct{}{},
		username:    name,
		metadataURI: in.MetadataURI,
		createdAt:   s.now(),
	}
	s.usernames[name] = addr

	return gin.H{"createAccountWithUsername": lensapi.TxResult{
		Typename: lensapi.TypeCreateAccountResponse,
		Hash:     newTxHash(),
	}}, nil
}

func (s *Server) setAccountMetadata(c *gin.Context, vars json.RawMessage) (any, error) {
	var in struct {
		MetadataURI string `json:"metadataUri"`
	}
	if err := decodeRequest(vars, &in); err != nil {
		return nil, err
	}
	result := func(typename, reason string) (any, error) {
		return gin.H{"setAccountMetadata": lensapi.TxResult{Typename: typename, Reason: reason}}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.authorize(c)
	if err != nil {
		return nil, err
	}

	acc := s.accounts[key(sess.account)]
	if acc == nil {
		var oldest *account
		for _, a := range s.accounts {
			if key(a.owner) == key(sess.info.Signer) && (oldest == nil || a.createdAt.Before(oldest.createdAt)) {
				oldest = a
			}
		}
		acc = oldest
	}
	if acc == nil {
		return result(lensapi.TypeTransactionWillFail, "signer has no account")
	}
	if in.MetadataURI == "" {
		return result(lensapi.TypeTransactionWillFail, "metadata uri is required")
	}

	acc.metadataURI = in.MetadataURI
	return gin.H{"setAccountMetadata": lensapi.TxResult{
		Typename: lensapi.TypeSetAccountMetadataResponse,
		Hash:     newTxHash(),
	}}, nil
}

func (s *Server) createApp(c *gin.Context, vars json.RawMessage) (any, error) {
	var in struct {
		MetadataURI string `json:"metadataUri"`
	}
	if err := decodeRequest(vars, &in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.authorize(c)
	if err != nil {
		return nil, err
	}
	if sess.role != core.RoleBuilder {
		return nil, forbidden("app deployment requires a builder session")
	}
	if in.MetadataURI == "" {
		return gin.H{"createApp": lensapi.TxResult{
			Typename: lensapi.TypeTransactionWillFail,
			Reason:   "metadata uri is required",
		}}, nil
	}

	return gin.H{"createApp": lensapi.TxResult{
		Typename: lensapi.TypeCreateAppResponse,
		Hash:     newTxHash(),
	}}, nil
}

// AddAccount seeds an account owned by owner, optionally managed by managers
func (s *Server) AddAccount(owner, username string, managers ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := common.BytesToAddress(crypto.Keccak256([]byte(key(owner)), []byte(username))).Hex()
	acc := &account{
		address:   addr,
		owner:     owner,
		managers:  map[string]struct{}{},
		username:  username,
		createdAt: s.now(),
	}
	for _, m := range managers {
		acc.managers[key(m)] = struct{}{}
	}
	s.accounts[key(addr)] = acc
	if username != "" {
		s.usernames[username] = addr
	}
	return addr
}
