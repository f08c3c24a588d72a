package beneficiary

import (
	"context"
	"fmt"
	"math/big"

	"github.com/filecoin-project/go-address"
)

// Withdraw pays accumulated protocol fees out of the treasury. Foundation
// only.
func (e *Engine) Withdraw(ctx context.Context, caller, to address.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if to.Empty() {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	treasury, err := e.foundationTreasury(caller)
	if err != nil {
		return err
	}
	if amount.Cmp(treasury.FeeBalance) > 0 {
		return ErrInsufficientFeeBalance
	}
	book := newAccountBook(e)
	feeAcc, err := book.load(e.treasuryAddress)
	if err != nil {
		return err
	}
	if feeAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	toAcc, err := book.load(to)
	if err != nil {
		return err
	}
	treasury.FeeBalance.Sub(treasury.FeeBalance, amount)
	feeAcc.Balance.Sub(feeAcc.Balance, amount)
	toAcc.Balance.Add(toAcc.Balance, amount)
	if err := book.flush(); err != nil {
		return err
	}
	if err := e.state.PutTreasury(treasury); err != nil {
		return err
	}
	e.emit(newWithdrawalEvent(to, amount, treasury.FeeBalance))
	return nil
}

// ChangeFoundation rotates the governance address.
func (e *Engine) ChangeFoundation(ctx context.Context, caller, foundation address.Address) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if foundation.Empty() {
		return ErrZeroAddress
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	treasury, err := e.foundationTreasury(caller)
	if err != nil {
		return err
	}
	treasury.Foundation = foundation
	return e.putTreasuryEvented(treasury, "foundation", foundation.String())
}

// ChangeMaxDebtRate sets the global collateral utilisation bound, in
// millionths of collateral value.
func (e *Engine) ChangeMaxDebtRate(ctx context.Context, caller address.Address, rate uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	treasury, err := e.foundationTreasury(caller)
	if err != nil {
		return err
	}
	treasury.MaxDebtRate = rate
	return e.putTreasuryEvented(treasury, "maxDebtRate", fmt.Sprintf("%d", rate))
}

// ChangeFeeRate sets the protocol fee taken from repaid interest, capped at
// MaxFeeRate.
func (e *Engine) ChangeFeeRate(ctx context.Context, caller address.Address, rate uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if rate > MaxFeeRate {
		return ErrFeeRateTooHigh
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	treasury, err := e.foundationTreasury(caller)
	if err != nil {
		return err
	}
	treasury.FeeRate = rate
	return e.putTreasuryEvented(treasury, "feeRate", fmt.Sprintf("%d", rate))
}

// ChangeMinLendAmount sets the global lend floor.
func (e *Engine) ChangeMinLendAmount(ctx context.Context, caller address.Address, min *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if min == nil || min.Sign() < 0 {
		return ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	treasury, err := e.foundationTreasury(caller)
	if err != nil {
		return err
	}
	treasury.MinLendAmount = new(big.Int).Set(min)
	return e.putTreasuryEvented(treasury, "minLendAmount", min.String())
}

func (e *Engine) foundationTreasury(caller address.Address) (*Treasury, error) {
	treasury, err := e.ensureTreasury()
	if err != nil {
		return nil, err
	}
	if treasury.Foundation.Empty() || treasury.Foundation != caller {
		return nil, ErrNotFoundation
	}
	return treasury, nil
}

func (e *Engine) putTreasuryEvented(treasury *Treasury, field, value string) error {
	if err := e.state.PutTreasury(treasury); err != nil {
		return err
	}
	e.emit(newTreasuryParamEvent(field, value))
	return nil
}
