package core

import "time"

const (
	// MainnetAppAddress is the default Lens app on mainnet
	MainnetAppAddress = "0x8A5Cc31180c37078e1EbA2A23c861Acf351a97cE"

	// TestnetAppAddress is the default Lens app on testnet
	TestnetAppAddress = "0xC75A89145d765c396fd75CbD16380Eb184Bd2ca7"

	// MainnetEndpoint is the Lens API on mainnet
	MainnetEndpoint = "https://api.lens.xyz/graphql"

	// TestnetEndpoint is the Lens API on testnet
	TestnetEndpoint = "https://api.testnet.lens.xyz/graphql"
)

// AppAddresses is the network-default app address table
type AppAddresses struct {
	Mainnet string `yaml:"mainnet"`
	Testnet string `yaml:"testnet"`
}

// DefaultAppAddresses returns the Lens default apps
func DefaultAppAddresses() AppAddresses {
	return AppAddresses{
		Mainnet: MainnetAppAddress,
		Testnet: TestnetAppAddress,
	}
}

// For returns the default app address for the selected network
func (a AppAddresses) For(useTestnet bool) string {
	if useTestnet {
		return a.Testnet
	}
	return a.Mainnet
}

// Challenge is a one-time signable message issued by the remote authentication service
type Challenge struct {
	ID       string    `json:"id"`                 // Opaque challenge identifier
	Text     string    `json:"text"`               // Message to sign
	IssuedAt time.Time `json:"issuedAt,omitempty"` // Local receive time, zero when unknown
}

// AuthenticationTokens are issued on a successful challenge exchange
type AuthenticationTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	IDToken      string `json:"idToken"`
}

// SessionInfo describes one authenticated session as reported by the remote service
type SessionInfo struct {
	AuthenticationID string    `json:"authenticationId"`
	App              string    `json:"app"`
	Browser          string    `json:"browser,omitempty"`
	Device           string    `json:"device,omitempty"`
	OS               string    `json:"os,omitempty"`
	Origin           string    `json:"origin,omitempty"`
	Signer           string    `json:"signer"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

// Account is a protocol account (profile)
type Account struct {
	Address   string    `json:"address"`
	Owner     string    `json:"owner"`
	Username  string    `json:"username,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AvailableAccount is an account a wallet can act for
type AvailableAccount struct {
	Account Account `json:"account"`
	Owned   bool    `json:"owned"` // false means managed
}

// SessionEventType identifies a session lifecycle event
type SessionEventType string

const (
	SessionEventAuthenticated SessionEventType = "session.authenticated"
	SessionEventLoggedOut     SessionEventType = "session.logged_out"
	SessionEventOnboarded     SessionEventType = "session.onboarded"
)

// SessionEvent is emitted on session lifecycle changes
type SessionEvent struct {
	Type             SessionEventType `json:"type"`
	Address          string           `json:"address"`
	Role             Role             `json:"role,omitempty"`
	AuthenticationID string           `json:"authentication_id,omitempty"`
	At               time.Time        `json:"at"`
}
