package beneficiary

import (
	"math/big"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
)

// Miner is the collateral-parameter record for a pledged storage provider.
// It exists exactly while the miner's beneficiary rights are pledged and not
// yet released.
type Miner struct {
	// ID is the miner actor id whose beneficiary rights back the debt.
	ID abi.ActorID `json:"id"`
	// Delegator is the address authorized to change borrowing parameters.
	Delegator address.Address `json:"delegator"`
	// MaxDebtAmount is the absolute cap on aggregate owed amount, attoFIL.
	MaxDebtAmount *big.Int `json:"maxDebtAmount"`
	// LoanInterestRate is the annual rate over RateBase.
	LoanInterestRate uint64 `json:"loanInterestRate"`
	// ReceiveAddress is where lend proceeds are paid out.
	ReceiveAddress address.Address `json:"receiveAddress"`
	// Disabled rejects new lending while keeping existing loans valid.
	Disabled bool `json:"disabled"`
	// MaxLenderCount caps simultaneous distinct lenders.
	MaxLenderCount uint64 `json:"maxLenderCount"`
	// MinLendAmount is the per-miner floor for a single lend, attoFIL.
	MinLendAmount *big.Int `json:"minLendAmount"`
	// Lenders is the bounded set of addresses holding a non-zero loan.
	Lenders LenderSet `json:"lenders"`
}

// Clone returns a deep copy of the miner record.
func (m *Miner) Clone() *Miner {
	if m == nil {
		return nil
	}
	clone := *m
	clone.MaxDebtAmount = cloneBigInt(m.MaxDebtAmount)
	clone.MinLendAmount = cloneBigInt(m.MinLendAmount)
	clone.Lenders = m.Lenders.Clone()
	return &clone
}

// Loan is the per (lender, miner) debt record. LastAmount carries principal
// plus accrued interest as of LastUpdateTime; accrual is applied lazily on
// every touch.
type Loan struct {
	Lender  address.Address `json:"lender"`
	MinerID abi.ActorID     `json:"minerId"`
	// PrincipalAmount is the cumulative face value lent, unaffected by
	// accrual.
	PrincipalAmount *big.Int `json:"principalAmount"`
	// LastAmount is the owed snapshot (principal plus interest) at
	// LastUpdateTime. A loan with LastAmount zero is considered absent.
	LastAmount     *big.Int `json:"lastAmount"`
	LastUpdateTime int64    `json:"lastUpdateTime"`
}

// Clone returns a deep copy of the loan record.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.PrincipalAmount = cloneBigInt(l.PrincipalAmount)
	clone.LastAmount = cloneBigInt(l.LastAmount)
	return &clone
}

// Sale is a claim listing on the secondary market, at most one per
// (seller, miner) pair. AmountRemaining is re-validated against the seller's
// live owed amount at fill time, never trusted from listing time.
type Sale struct {
	Seller  address.Address `json:"seller"`
	MinerID abi.ActorID     `json:"minerId"`
	// AmountRemaining is the portion of the claim still offered, attoFIL.
	AmountRemaining *big.Int `json:"amountRemaining"`
	// PricePerFil is the payment per PriceBase units of claim.
	PricePerFil *big.Int `json:"pricePerFil"`
	ListedAt    int64    `json:"listedAt"`
}

// Clone returns a deep copy of the sale record.
func (s *Sale) Clone() *Sale {
	if s == nil {
		return nil
	}
	clone := *s
	clone.AmountRemaining = cloneBigInt(s.AmountRemaining)
	clone.PricePerFil = cloneBigInt(s.PricePerFil)
	return &clone
}

// Treasury holds the foundation-controlled global parameters and the
// accumulated protocol fee balance. There is exactly one per ledger.
type Treasury struct {
	Foundation address.Address `json:"foundation"`
	// MaxDebtRate is the global ceiling on owed/collateral over RateBase.
	MaxDebtRate uint64 `json:"maxDebtRate"`
	// FeeRate is the protocol fee fraction over RateBase, at most
	// MaxFeeRate.
	FeeRate uint64 `json:"feeRate"`
	// MinLendAmount is the global floor for a single lend, attoFIL.
	MinLendAmount *big.Int `json:"minLendAmount"`
	// FeeBalance is the protocol revenue available to withdraw, attoFIL.
	FeeBalance *big.Int `json:"feeBalance"`
}

// Clone returns a deep copy of the treasury record.
func (t *Treasury) Clone() *Treasury {
	if t == nil {
		return nil
	}
	clone := *t
	clone.MinLendAmount = cloneBigInt(t.MinLendAmount)
	clone.FeeBalance = cloneBigInt(t.FeeBalance)
	return &clone
}

// MinerOwed is the aggregate debt projection for a miner.
type MinerOwed struct {
	// Principal is the sum of lender principals, attoFIL.
	Principal *big.Int `json:"principal"`
	// Owed is the sum of accrual-projected owed amounts, attoFIL.
	Owed *big.Int `json:"owed"`
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
