package handoff

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Secp256k1Verifier accepts proofs signed by one trusted signer key. The
// proof is a 65-byte [R || S || V] signature over the handoff digest.
type Secp256k1Verifier struct {
	Signer common.Address
}

func (v Secp256k1Verifier) Verify(digest []byte, proof []byte) error {
	if len(proof) != crypto.SignatureLength {
		return fmt.Errorf("%w: signature length %d", ErrBadProof, len(proof))
	}
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, proof)
	// Accept the Ethereum convention of V in {27, 28}.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBadProof, err)
	}
	if crypto.PubkeyToAddress(*pub) != v.Signer {
		return fmt.Errorf("%w: unexpected signer", ErrBadProof)
	}
	return nil
}
