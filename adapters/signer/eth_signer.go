// Package signer provides wallet signers backed by go-ethereum keys.
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/layer-3/lens-onboard/ports"
)

// ErrInvalidSignature is returned when a signature cannot be decoded or recovered
var ErrInvalidSignature = errors.New("invalid signature")

// KeySigner signs personal messages (EIP-191) with an in-memory secp256k1 key
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

var _ ports.Signer = (*KeySigner)(nil)

// NewKeySigner wraps a private key
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewKeySignerFromHex parses a hex private key, with or without 0x prefix
func NewKeySignerFromHex(hexKey string) (*KeySigner, error) {
	if len(hexKey) > 1 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return NewKeySigner(key), nil
}

// GenerateKeySigner creates a signer for a fresh random key
func GenerateKeySigner() (*KeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return NewKeySigner(key), nil
}

// Address returns the checksummed address of the key
func (s *KeySigner) Address(ctx context.Context) (string, error) {
	return s.address.Hex(), nil
}

// SignMessage returns the 65-byte personal_sign signature, hex encoded, with V in {27, 28}
func (s *KeySigner) SignMessage(ctx context.Context, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), s.key)
	if err != nil {
		return "", fmt.Errorf("signing message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverAddress returns the address that produced a personal_sign signature over message
func RecoverAddress(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("decoding signature: %w", ErrInvalidSignature)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, ErrInvalidSignature)
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recovering public key: %w", ErrInvalidSignature)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether signature over message was produced by address
func Verify(message, signature, address string) bool {
	recovered, err := RecoverAddress(message, signature)
	if err != nil {
		return false
	}
	return common.IsHexAddress(address) && recovered == common.HexToAddress(address)
}
