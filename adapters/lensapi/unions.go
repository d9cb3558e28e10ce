package lensapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/lens-onboard/core"
)

// Union member names as reported in __typename
const (
	TypeAuthenticationTokens               = "AuthenticationTokens"
	TypeWrongSignerError                   = "WrongSignerError"
	TypeExpiredChallengeError              = "ExpiredChallengeError"
	TypeForbiddenError                     = "ForbiddenError"
	TypeCreateAccountResponse              = "CreateAccountResponse"
	TypeUsernameTaken                      = "UsernameTaken"
	TypeNamespaceOperationValidationFailed = "NamespaceOperationValidationFailed"
	TypeTransactionWillFail                = "TransactionWillFail"
	TypeSetAccountMetadataResponse         = "SetAccountMetadataResponse"
	TypeSponsoredTransactionRequest        = "SponsoredTransactionRequest"
	TypeSelfFundedTransactionRequest       = "SelfFundedTransactionRequest"
	TypeCreateAppResponse                  = "CreateAppResponse"
	TypeAccountOwned                       = "AccountOwned"
	TypeAccountManaged                     = "AccountManaged"
)

// Error codes carried in GraphQL error extensions
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = "FORBIDDEN"
	CodeBadUserInput    = "BAD_USER_INPUT"
)

// TokensResult is the AuthenticationTokens | *Error union
type TokensResult struct {
	Typename     string `json:"__typename"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	IDToken      string `json:"idToken,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

func (r TokensResult) tokens(op string) (core.AuthenticationTokens, error) {
	switch r.Typename {
	case TypeAuthenticationTokens:
		return core.AuthenticationTokens{
			AccessToken:  r.AccessToken,
			RefreshToken: r.RefreshToken,
			IDToken:      r.IDToken,
		}, nil
	case TypeWrongSignerError:
		return core.AuthenticationTokens{}, &core.AuthError{Kind: core.ErrWrongSigner, Reason: r.Reason}
	case TypeExpiredChallengeError:
		return core.AuthenticationTokens{}, &core.AuthError{Kind: core.ErrExpiredChallenge, Reason: r.Reason}
	case TypeForbiddenError:
		return core.AuthenticationTokens{}, &core.AuthError{Kind: core.ErrForbidden, Reason: r.Reason}
	default:
		return core.AuthenticationTokens{}, unknownResult(op, r.Typename)
	}
}

// TxResult is the transaction-hash | failure union of account mutations
type TxResult struct {
	Typename string `json:"__typename"`
	Hash     string `json:"hash,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (r TxResult) hash(op, success string, failures ...string) (string, error) {
	if r.Typename == success {
		return r.Hash, nil
	}
	for _, f := range failures {
		if r.Typename == f {
			return "", &core.BusinessRuleError{Kind: r.Typename, Reason: r.Reason}
		}
	}
	return "", unknownResult(op, r.Typename)
}

// AccountResult is the wire form of an account
type AccountResult struct {
	Address  string `json:"address"`
	Owner    string `json:"owner"`
	Username *struct {
		Value string `json:"value"`
	} `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a AccountResult) account() core.Account {
	acc := core.Account{
		Address:   a.Address,
		Owner:     a.Owner,
		CreatedAt: a.CreatedAt,
	}
	if a.Username != nil {
		acc.Username = a.Username.Value
	}
	return acc
}

// AvailableAccountResult is the AccountOwned | AccountManaged union
type AvailableAccountResult struct {
	Typename string        `json:"__typename"`
	Account  AccountResult `json:"account"`
}

// PageInfo is the cursor pair of a paginated result
type PageInfo struct {
	Prev *string `json:"prev"`
	Next *string `json:"next"`
}

func (p PageInfo) next() string {
	if p.Next == nil {
		return ""
	}
	return *p.Next
}

// GraphQLError is one entry of a GraphQL errors array
type GraphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code,omitempty"`
	} `json:"extensions"`
}

func (e GraphQLError) asError(op string) error {
	switch e.Extensions.Code {
	case CodeUnauthenticated, CodeForbidden:
		return &core.AuthError{Kind: core.ErrForbidden, Reason: e.Message}
	default:
		return &core.TransportError{Op: op, Err: errors.New(e.Message)}
	}
}

func unknownResult(op, typename string) error {
	return &core.TransportError{Op: op, Err: fmt.Errorf("unexpected result type %q", typename)}
}
