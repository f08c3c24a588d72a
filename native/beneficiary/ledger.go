package beneficiary

import (
	"math/big"

	"github.com/filecoin-project/go-address"
)

// touchedLoan loads the lender's loan against the miner and accrues it up to
// now, creating a zeroed record when none exists. The returned loan is not
// persisted; callers mutate it further and call PutLoan themselves.
func (e *Engine) touchedLoan(lender address.Address, miner *Miner, now int64) (*Loan, error) {
	loan, err := e.state.GetLoan(lender, miner.ID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return &Loan{
			Lender:          lender,
			MinerID:         miner.ID,
			PrincipalAmount: big.NewInt(0),
			LastAmount:      big.NewInt(0),
			LastUpdateTime:  now,
		}, nil
	}
	if loan.PrincipalAmount == nil {
		loan.PrincipalAmount = big.NewInt(0)
	}
	accrued, err := accrueAmount(loan.LastAmount, miner.LoanInterestRate, now-loan.LastUpdateTime)
	if err != nil {
		return nil, err
	}
	loan.LastAmount = accrued
	loan.LastUpdateTime = now
	return loan, nil
}

// decreaseLoan reduces a touched loan by amount, shrinking the principal
// proportionally so the accrued-interest share of the position is preserved.
// It reports the interest component of the reduction. amount must not exceed
// the loan's owed balance.
func decreaseLoan(loan *Loan, amount *big.Int) (interest *big.Int) {
	owed := loan.LastAmount
	newOwed := new(big.Int).Sub(owed, amount)
	// principal' = principal * newOwed / owed, floor division.
	newPrincipal := new(big.Int).Mul(loan.PrincipalAmount, newOwed)
	if owed.Sign() > 0 {
		newPrincipal.Quo(newPrincipal, owed)
	} else {
		newPrincipal.SetInt64(0)
	}
	if newPrincipal.Cmp(newOwed) > 0 {
		newPrincipal.Set(newOwed)
	}
	principalPaid := new(big.Int).Sub(loan.PrincipalAmount, newPrincipal)
	interest = new(big.Int).Sub(amount, principalPaid)
	if interest.Sign() < 0 {
		interest.SetInt64(0)
	}
	loan.PrincipalAmount = newPrincipal
	loan.LastAmount = newOwed
	return interest
}

// settleLoan persists a loan or, when it has been paid down to zero, removes
// it along with any listing it backed and drops the lender from the miner's
// registry. The caller persists the miner afterwards.
func (e *Engine) settleLoan(miner *Miner, loan *Loan) error {
	if loan.LastAmount.Sign() == 0 {
		if err := e.state.DeleteLoan(loan.Lender, miner.ID); err != nil {
			return err
		}
		// A zeroed claim cannot back a listing.
		if err := e.state.DeleteSale(loan.Lender, miner.ID); err != nil {
			return err
		}
		miner.Lenders.Remove(loan.Lender)
		return nil
	}
	return e.state.PutLoan(loan)
}

// projectOwed is the read-only projection of a loan's owed balance at now.
func projectOwed(loan *Loan, rate uint64, now int64) (*big.Int, error) {
	if loan == nil {
		return big.NewInt(0), nil
	}
	return accrueAmount(loan.LastAmount, rate, now-loan.LastUpdateTime)
}
