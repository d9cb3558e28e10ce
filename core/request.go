package core

import "strings"

// ChallengeRequest is a role-specific challenge request. The concrete types are
// BuilderRequest, OnboardingUserRequest, AccountOwnerRequest and AccountManagerRequest;
// each can only be built through its constructor, which rejects missing addresses.
type ChallengeRequest interface {
	Role() Role
	// Signer returns the address expected to sign the challenge
	Signer() string
	challengeRequest()
}

// BuilderRequest is the BUILDER variant
type BuilderRequest struct {
	Address string `json:"address"`
}

// OnboardingUserRequest is the ONBOARDING_USER variant
type OnboardingUserRequest struct {
	App    string `json:"app"`
	Wallet string `json:"wallet"`
}

// AccountOwnerRequest is the ACCOUNT_OWNER variant
type AccountOwnerRequest struct {
	App     string `json:"app"`
	Account string `json:"account"`
	Owner   string `json:"owner"`
}

// AccountManagerRequest is the ACCOUNT_MANAGER variant
type AccountManagerRequest struct {
	App     string `json:"app"`
	Account string `json:"account"`
	Manager string `json:"manager"`
}

// NewBuilderRequest creates a BUILDER challenge request
func NewBuilderRequest(address string) (BuilderRequest, error) {
	if err := requireFields(RoleBuilder, field{"walletAddress", address}); err != nil {
		return BuilderRequest{}, err
	}
	return BuilderRequest{Address: address}, nil
}

// NewOnboardingUserRequest creates an ONBOARDING_USER challenge request
func NewOnboardingUserRequest(app, wallet string) (OnboardingUserRequest, error) {
	if err := requireFields(RoleOnboardingUser, field{"appAddress", app}, field{"walletAddress", wallet}); err != nil {
		return OnboardingUserRequest{}, err
	}
	return OnboardingUserRequest{App: app, Wallet: wallet}, nil
}

// NewAccountOwnerRequest creates an ACCOUNT_OWNER challenge request.
// An empty owner falls back to wallet.
func NewAccountOwnerRequest(app, account, owner, wallet string) (AccountOwnerRequest, error) {
	if strings.TrimSpace(owner) == "" {
		owner = wallet
	}
	if err := requireFields(RoleAccountOwner,
		field{"walletAddress", wallet},
		field{"appAddress", app},
		field{"accountAddress", account},
	); err != nil {
		return AccountOwnerRequest{}, err
	}
	return AccountOwnerRequest{App: app, Account: account, Owner: owner}, nil
}

// NewAccountManagerRequest creates an ACCOUNT_MANAGER challenge request; the manager is
// always the wallet itself.
func NewAccountManagerRequest(app, account, wallet string) (AccountManagerRequest, error) {
	if err := requireFields(RoleAccountManager,
		field{"walletAddress", wallet},
		field{"appAddress", app},
		field{"accountAddress", account},
	); err != nil {
		return AccountManagerRequest{}, err
	}
	return AccountManagerRequest{App: app, Account: account, Manager: wallet}, nil
}

func (BuilderRequest) Role() Role        { return RoleBuilder }
func (OnboardingUserRequest) Role() Role { return RoleOnboardingUser }
func (AccountOwnerRequest) Role() Role   { return RoleAccountOwner }
func (AccountManagerRequest) Role() Role { return RoleAccountManager }

func (r BuilderRequest) Signer() string        { return r.Address }
func (r OnboardingUserRequest) Signer() string { return r.Wallet }
func (r AccountOwnerRequest) Signer() string   { return r.Owner }
func (r AccountManagerRequest) Signer() string { return r.Manager }

func (BuilderRequest) challengeRequest()        {}
func (OnboardingUserRequest) challengeRequest() {}
func (AccountOwnerRequest) challengeRequest()   {}
func (AccountManagerRequest) challengeRequest() {}

// EncodeChallengeRequest returns the tagged wire form of a request, e.g.
// {"onboardingUser": {"app": "0x..", "wallet": "0x.."}}.
func EncodeChallengeRequest(r ChallengeRequest) map[string]any {
	return map[string]any{r.Role().requestKey(): r}
}

// ChallengeRequestEnvelope is the decoded form of EncodeChallengeRequest output.
// Exactly one field is expected to be set.
type ChallengeRequestEnvelope struct {
	Builder        *BuilderRequest        `json:"builder,omitempty"`
	OnboardingUser *OnboardingUserRequest `json:"onboardingUser,omitempty"`
	AccountOwner   *AccountOwnerRequest   `json:"accountOwner,omitempty"`
	AccountManager *AccountManagerRequest `json:"accountManager,omitempty"`
}

// Request returns the single variant carried by the envelope, re-validated through its constructor.
func (e ChallengeRequestEnvelope) Request() (ChallengeRequest, error) {
	var (
		set []ChallengeRequest
		err error
	)
	if e.Builder != nil {
		var r BuilderRequest
		r, err = NewBuilderRequest(e.Builder.Address)
		set = append(set, r)
	}
	if err == nil && e.OnboardingUser != nil {
		var r OnboardingUserRequest
		r, err = NewOnboardingUserRequest(e.OnboardingUser.App, e.OnboardingUser.Wallet)
		set = append(set, r)
	}
	if err == nil && e.AccountOwner != nil {
		var r AccountOwnerRequest
		r, err = NewAccountOwnerRequest(e.AccountOwner.App, e.AccountOwner.Account, e.AccountOwner.Owner, e.AccountOwner.Owner)
		set = append(set, r)
	}
	if err == nil && e.AccountManager != nil {
		var r AccountManagerRequest
		r, err = NewAccountManagerRequest(e.AccountManager.App, e.AccountManager.Account, e.AccountManager.Manager)
		set = append(set, r)
	}
	if err != nil {
		return nil, err
	}
	if len(set) != 1 {
		return nil, &ValidationError{Fields: []string{"request"}}
	}
	return set[0], nil
}

type field struct {
	name  string
	value string
}

func requireFields(role Role, fields ...field) error {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Role: role, Fields: missing}
	}
	return nil
}
