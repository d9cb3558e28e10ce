package ports

import "context"

// Signer is the wallet capability. Implementations never expose key material.
type Signer interface {
	Address(ctx context.Context) (string, error)
	SignMessage(ctx context.Context, message string) (string, error)
}
