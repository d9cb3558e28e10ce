package lensapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/layer-3/lens-onboard/core"
	"github.com/layer-3/lens-onboard/ports"
)

// DefaultTimeout bounds a single remote call
const DefaultTimeout = 15 * time.Second

// Client talks to the Lens GraphQL API
type Client struct {
	endpoint string
	http     *http.Client
	timeout  time.Duration
	origin   string
	now      func() time.Time
}

var _ ports.LensAPI = (*Client)(nil)

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-call timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithOrigin sets the Origin header sent with every request
func WithOrigin(origin string) Option {
	return func(c *Client) { c.origin = origin }
}

// New creates a client for the given GraphQL endpoint
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     http.DefaultClient,
		timeout:  DefaultTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request is a GraphQL request body
type Request struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Response is a GraphQL response body
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

func (c *Client) Challenge(ctx context.Context, req core.ChallengeRequest) (core.Challenge, error) {
	var out struct {
		Challenge struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"challenge"`
	}
	vars := map[string]any{"request": core.EncodeChallengeRequest(req)}
	if err := c.do(ctx, opChallenge, "", vars, &out); err != nil {
		return core.Challenge{}, err
	}
	if out.Challenge.ID == "" {
		return core.Challenge{}, &core.TransportError{Op: opChallenge.name, Err: fmt.Errorf("empty challenge")}
	}

	return core.Challenge{
		ID:       out.Challenge.ID,
		Text:     out.Challenge.Text,
		IssuedAt: c.now(),
	}, nil
}

func (c *Client) Authenticate(ctx context.Context, challengeID, signature string) (core.AuthenticationTokens, error) {
	var out struct {
		Authenticate TokensResult `json:"authenticate"`
	}
	vars := map[string]any{"request": map[string]any{"id": challengeID, "signature": signature}}
	if err := c.do(ctx, opAuthenticate, "", vars, &out); err != nil {
		return core.AuthenticationTokens{}, err
	}
	return out.Authenticate.tokens(opAuthenticate.name)
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (core.AuthenticationTokens, error) {
	var out struct {
		Refresh TokensResult `json:"refresh"`
	}
	vars := map[string]any{"request": map[string]any{"refreshToken": refreshToken}}
	if err := c.do(ctx, opRefresh, "", vars, &out); err != nil {
		return core.AuthenticationTokens{}, err
	}
	return out.Refresh.tokens(opRefresh.name)
}

func (c *Client) CurrentSession(ctx context.Context, accessToken string) (core.SessionInfo, error) {
	var out struct {
		CurrentSession *core.SessionInfo `json:"currentSession"`
	}
	if err := c.do(ctx, opCurrentSession, accessToken, nil, &out); err != nil {
		return core.SessionInfo{}, err
	}
	if out.CurrentSession == nil {
		return core.SessionInfo{}, core.ErrNotFound
	}
	return *out.CurrentSession, nil
}

func (c *Client) AuthenticatedSessions(ctx context.Context, accessToken, cursor string) ([]core.SessionInfo, string, error) {
	var out struct {
		AuthenticatedSessions struct {
			Items    []core.SessionInfo `json:"items"`
			PageInfo PageInfo           `json:"pageInfo"`
		} `json:"authenticatedSessions"`
	}
	if err := c.do(ctx, opAuthenticatedSessions, accessToken, pageRequest(nil, cursor), &out); err != nil {
		return nil, "", err
	}
	return out.AuthenticatedSessions.Items, out.AuthenticatedSessions.PageInfo.next(), nil
}

func (c *Client) RevokeAuthentication(ctx context.Context, accessToken, authenticationID string) error {
	vars := map[string]any{"request": map[string]any{"authenticationId": authenticationID}}
	return c.do(ctx, opRevokeAuthentication, accessToken, vars, nil)
}

func (c *Client) LastLoggedInAccount(ctx context.Context, address string) (core.Account, error) {
	var out struct {
		LastLoggedInAccount *AccountResult `json:"lastLoggedInAccount"`
	}
	vars := map[string]any{"request": map[string]any{"address": address}}
	if err := c.do(ctx, opLastLoggedInAccount, "", vars, &out); err != nil {
		return core.Account{}, err
	}
	if out.LastLoggedInAccount == nil {
		return core.Account{}, core.ErrNotFound
	}
	return out.LastLoggedInAccount.account(), nil
}

func (c *Client) AccountsAvailable(ctx context.Context, address string, includeOwned bool, cursor string) ([]core.AvailableAccount, string, error) {
	var out struct {
		AccountsAvailable struct {
			Items    []AvailableAccountResult `json:"items"`
			PageInfo PageInfo                 `json:"pageInfo"`
		} `json:"accountsAvailable"`
	}
	vars := pageRequest(map[string]any{"managedBy": address, "includeOwned": includeOwned}, cursor)
	if err := c.do(ctx, opAccountsAvailable, "", vars, &out); err != nil {
		return nil, "", err
	}

	items := make([]core.AvailableAccount, 0, len(out.AccountsAvailable.Items))
	for _, it := range out.AccountsAvailable.Items {
		switch it.Typename {
		case TypeAccountOwned, TypeAccountManaged:
			items = append(items, core.AvailableAccount{
				Account: it.Account.account(),
				Owned:   it.Typename == TypeAccountOwned,
			})
		default:
			return nil, "", unknownResult(opAccountsAvailable.name, it.Typename)
		}
	}
	return items, out.AccountsAvailable.PageInfo.next(), nil
}

func (c *Client) CreateAccountWithUsername(ctx context.Context, accessToken, username, metadataURI string) (string, error) {
	var out struct {
		CreateAccountWithUsername TxResult `json:"createAccountWithUsername"`
	}
	vars := map[string]any{"request": map[string]any{
		"username":    map[string]any{"localName": username},
		"metadataUri": metadataURI,
	}}
	if err := c.do(ctx, opCreateAccountWithUsername, accessToken, vars, &out); err != nil {
		return "", err
	}
	return out.CreateAccountWithUsername.hash(opCreateAccountWithUsername.name,
		TypeCreateAccountResponse,
		TypeUsernameTaken, TypeNamespaceOperationValidationFailed, TypeTransactionWillFail,
	)
}

func (c *Client) SetAccountMetadata(ctx context.Context, accessToken, metadataURI string) (string, error) {
	var out struct {
		SetAccountMetadata TxResult `json:"setAccountMetadata"`
	}
	vars := map[string]any{"request": map[string]any{"metadataUri": metadataURI}}
	if err := c.do(ctx, opSetAccountMetadata, accessToken, vars, &out); err != nil {
		return "", err
	}
	return out.SetAccountMetadata.hash(opSetAccountMetadata.name,
		TypeSetAccountMetadataResponse,
		TypeSponsoredTransactionRequest, TypeSelfFundedTransactionRequest, TypeTransactionWillFail,
	)
}

func (c *Client) CreateApp(ctx context.Context, accessToken, metadataURI string) (string, error) {
	var out struct {
		CreateApp TxResult `json:"createApp"`
	}
	vars := map[string]any{"request": map[string]any{"metadataUri": metadataURI}}
	if err := c.do(ctx, opCreateApp, accessToken, vars, &out); err != nil {
		return "", err
	}
	return out.CreateApp.hash(opCreateApp.name, TypeCreateAppResponse, TypeTransactionWillFail)
}

func (c *Client) do(ctx context.Context, op operation, accessToken string, vars map[string]any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(Request{OperationName: op.name, Query: op.query, Variables: vars})
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", op.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return &core.TransportError{Op: op.name, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &core.TransportError{Op: op.name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &core.TransportError{Op: op.name, Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))}
	}

	var gr Response
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return &core.TransportError{Op: op.name, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(gr.Errors) > 0 {
		return gr.Errors[0].asError(op.name)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return &core.TransportError{Op: op.name, Err: fmt.Errorf("decoding data: %w", err)}
	}

	return nil
}

func pageRequest(request map[string]any, cursor string) map[string]any {
	if request == nil {
		request = map[string]any{}
	}
	if cursor != "" {
		request["cursor"] = cursor
	}
	return map[string]any{"request": request}
}
