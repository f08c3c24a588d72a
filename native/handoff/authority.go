// Package handoff validates the one-time beneficiary handoff proofs that
// gate pledging a miner into the ledger. A proof binds the miner, the
// delegator and a timestamp; the authority checks freshness, signature
// validity and single use.
package handoff

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
)

var (
	ErrStaleProof    = errors.New("handoff: proof timestamp outside freshness window")
	ErrBadProof      = errors.New("handoff: proof signature invalid")
	ErrReplayedProof = errors.New("handoff: proof already used")
)

// DefaultWindow bounds how old (or how far ahead) a proof timestamp may be.
const DefaultWindow = 300 * time.Second

// Verifier checks a proof signature over a digest.
type Verifier interface {
	Verify(digest []byte, proof []byte) error
}

// Authority enforces freshness, signature and replay rules on handoff
// proofs. Safe for concurrent use.
type Authority struct {
	verifier Verifier
	window   int64

	mu    sync.Mutex
	seen  map[string]int64
	nowFn func() int64
}

// NewAuthority builds an authority around the given verifier. A zero window
// falls back to DefaultWindow.
func NewAuthority(verifier Verifier, window time.Duration) *Authority {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Authority{
		verifier: verifier,
		window:   int64(window / time.Second),
		seen:     make(map[string]int64),
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetNowFunc overrides the time source for tests.
func (a *Authority) SetNowFunc(now func() int64) {
	if now != nil {
		a.nowFn = now
	}
}

// Admit accepts or rejects a pledge proof. Accepted proofs are recorded and
// cannot be admitted twice until released.
func (a *Authority) Admit(id abi.ActorID, delegator address.Address, proof []byte, timestamp int64) error {
	now := a.nowFn()
	if timestamp < now-a.window || timestamp > now+a.window {
		return ErrStaleProof
	}
	digest := Digest(id, delegator, timestamp)
	if err := a.verifier.Verify(digest, proof); err != nil {
		return err
	}
	key := hex.EncodeToString(digest)

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.seen[key]; ok {
		return ErrReplayedProof
	}
	a.seen[key] = timestamp
	a.prune(now)
	return nil
}

// Release returns an admitted proof to the unused pool. Callers invoke it
// when the operation the proof gated fails after admission, so the same
// proof stays valid for a retry within its freshness window.
func (a *Authority) Release(id abi.ActorID, delegator address.Address, timestamp int64) {
	key := hex.EncodeToString(Digest(id, delegator, timestamp))
	a.mu.Lock()
	delete(a.seen, key)
	a.mu.Unlock()
}

// prune drops entries old enough that the freshness check alone would
// reject a replay. Called with the lock held.
func (a *Authority) prune(now int64) {
	for key, ts := range a.seen {
		if ts < now-2*a.window {
			delete(a.seen, key)
		}
	}
}

// Digest is the canonical signing payload for a handoff proof.
func Digest(id abi.ActorID, delegator address.Address, timestamp int64) []byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(id))
	binary.BigEndian.PutUint64(buf[8:], uint64(timestamp))
	return crypto.Keccak256([]byte("filpledge/handoff/v1"), buf[:], delegator.Bytes())
}
