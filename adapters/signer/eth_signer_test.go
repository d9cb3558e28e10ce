package signer

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestKeySigner_SignAndRecover(t *testing.T) {
	ctx := context.Background()
	s, err := GenerateKeySigner()
	require.NoError(t, err)

	address, err := s.Address(ctx)
	require.NoError(t, err)

	sig, err := s.SignMessage(ctx, "sign-me")
	require.NoError(t, err)

	raw, err := hexutil.Decode(sig)
	require.NoError(t, err)
	require.Len(t, raw, crypto.SignatureLength)
	require.Contains(t, []byte{27, 28}, raw[crypto.RecoveryIDOffset])

	recovered, err := RecoverAddress("sign-me", sig)
	require.NoError(t, err)
	require.Equal(t, address, recovered.Hex())

	require.True(t, Verify("sign-me", sig, address))
	require.False(t, Verify("other message", sig, address))
}

func TestKeySigner_WrongKey(t *testing.T) {
	ctx := context.Background()
	s1, _ := GenerateKeySigner()
	s2, _ := GenerateKeySigner()

	sig, err := s2.SignMessage(ctx, "sign-me")
	require.NoError(t, err)

	address, _ := s1.Address(ctx)
	require.False(t, Verify("sign-me", sig, address))
}

func TestNewKeySignerFromHex(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := hexutil.Encode(crypto.FromECDSA(key))

	s, err := NewKeySignerFromHex(hexKey)
	require.NoError(t, err)

	address, _ := s.Address(context.Background())
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), address)

	_, err = NewKeySignerFromHex("not-a-key")
	require.Error(t, err)
}

func TestRecoverAddress_Malformed(t *testing.T) {
	_, err := RecoverAddress("sign-me", "0x1234")
	require.ErrorIs(t, err, ErrInvalidSignature)

	_, err = RecoverAddress("sign-me", "zz")
	require.ErrorIs(t, err, ErrInvalidSignature)
}
