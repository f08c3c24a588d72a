package handoff

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/stretchr/testify/require"
)

func testSigner(t *testing.T) (*Authority, func(id uint64, delegator address.Address, ts int64) []byte) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	authority := NewAuthority(Secp256k1Verifier{Signer: crypto.PubkeyToAddress(key.PublicKey)}, 5*time.Minute)
	sign := func(id uint64, delegator address.Address, ts int64) []byte {
		digest := Digest(abi.ActorID(id), delegator, ts)
		sig, err := crypto.Sign(digest, key)
		require.NoError(t, err)
		return sig
	}
	return authority, sign
}

func testDelegator(t *testing.T) address.Address {
	t.Helper()
	addr, err := address.NewIDAddress(1234)
	require.NoError(t, err)
	return addr
}

func TestAdmitValidProof(t *testing.T) {
	authority, sign := testSigner(t)
	now := int64(1_700_000_000)
	authority.SetNowFunc(func() int64 { return now })
	delegator := testDelegator(t)

	proof := sign(42, delegator, now-10)
	require.NoError(t, authority.Admit(42, delegator, proof, now-10))
}

func TestAdmitRejectsStaleProof(t *testing.T) {
	authority, sign := testSigner(t)
	now := int64(1_700_000_000)
	authority.SetNowFunc(func() int64 { return now })
	delegator := testDelegator(t)

	ts := now - 600
	proof := sign(42, delegator, ts)
	require.ErrorIs(t, authority.Admit(42, delegator, proof, ts), ErrStaleProof)

	future := now + 600
	proof = sign(42, delegator, future)
	require.ErrorIs(t, authority.Admit(42, delegator, proof, future), ErrStaleProof)
}

func TestAdmitRejectsWrongSigner(t *testing.T) {
	authority, _ := testSigner(t)
	now := int64(1_700_000_000)
	authority.SetNowFunc(func() int64 { return now })
	delegator := testDelegator(t)

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	digest := Digest(42, delegator, now)
	forged, err := crypto.Sign(digest, otherKey)
	require.NoError(t, err)
	require.ErrorIs(t, authority.Admit(42, delegator, forged, now), ErrBadProof)
}

func TestAdmitRejectsTamperedFields(t *testing.T) {
	authority, sign := testSigner(t)
	now := int64(1_700_000_000)
	authority.SetNowFunc(func() int64 { return now })
	delegator := testDelegator(t)

	proof := sign(42, delegator, now)
	// Signed for miner 42, presented for miner 43.
	require.ErrorIs(t, authority.Admit(43, delegator, proof, now), ErrBadProof)

	other, err := address.NewIDAddress(5678)
	require.NoError(t, err)
	require.ErrorIs(t, authority.Admit(42, other, proof, now), ErrBadProof)
}

func TestAdmitRejectsReplay(t *testing.T) {
	authority, sign := testSigner(t)
	now := int64(1_700_000_000)
	authority.SetNowFunc(func() int64 { return now })
	delegator := testDelegator(t)

	proof := sign(42, delegator, now)
	require.NoError(t, authority.Admit(42, delegator, proof, now))
	require.ErrorIs(t, authority.Admit(42, delegator, proof, now), ErrReplayedProof)
}

func TestReleaseRestoresProof(t *testing.T) {
	authority, sign := testSigner(t)
	now := int64(1_700_000_000)
	authority.SetNowFunc(func() int64 { return now })
	delegator := testDelegator(t)

	proof := sign(42, delegator, now)
	require.NoError(t, authority.Admit(42, delegator, proof, now))

	authority.Release(42, delegator, now)
	require.NoError(t, authority.Admit(42, delegator, proof, now))
	require.ErrorIs(t, authority.Admit(42, delegator, proof, now), ErrReplayedProof)
}

func TestVerifierRejectsShortSignature(t *testing.T) {
	authority, _ := testSigner(t)
	now := int64(1_700_000_000)
	authority.SetNowFunc(func() int64 { return now })
	require.ErrorIs(t, authority.Admit(42, testDelegator(t), []byte{0x01}, now), ErrBadProof)
}
