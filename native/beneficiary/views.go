package beneficiary

import (
	"context"
	"math/big"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
)

// GetMiner returns a copy of the miner record.
func (e *Engine) GetMiner(ctx context.Context, id abi.ActorID) (*Miner, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	miner, err := e.loadMiner(id)
	if err != nil {
		return nil, err
	}
	return miner.Clone(), nil
}

// GetLoan returns a copy of a lender's raw loan record against a miner.
func (e *Engine) GetLoan(ctx context.Context, lender address.Address, id abi.ActorID) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	loan, err := e.state.GetLoan(lender, id)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, ErrLoanNotFound
	}
	return loan.Clone(), nil
}

// GetSale returns a copy of a listing.
func (e *Engine) GetSale(ctx context.Context, seller address.Address, id abi.ActorID) (*Sale, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	sale, err := e.state.GetSale(seller, id)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, ErrSaleNotFound
	}
	return sale.Clone(), nil
}

// CurrentLenderOwed projects a lender's owed balance at the current time
// without mutating the loan.
func (e *Engine) CurrentLenderOwed(ctx context.Context, lender address.Address, id abi.ActorID) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	miner, err := e.loadMiner(id)
	if err != nil {
		return nil, err
	}
	loan, err := e.state.GetLoan(lender, id)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return big.NewInt(0), nil
	}
	return projectOwed(loan, miner.LoanInterestRate, e.now())
}

// CurrentMinerOwed projects the miner's aggregate principal and owed
// balances across all lenders at the current time.
func (e *Engine) CurrentMinerOwed(ctx context.Context, id abi.ActorID) (MinerOwed, error) {
	if e == nil || e.state == nil {
		return MinerOwed{}, ErrNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	miner, err := e.loadMiner(id)
	if err != nil {
		return MinerOwed{}, err
	}
	return e.aggregateOwed(miner, e.now())
}

// TreasuryState returns a copy of the treasury record.
func (e *Engine) TreasuryState(ctx context.Context) (*Treasury, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	treasury, err := e.state.GetTreasury()
	if err != nil {
		return nil, err
	}
	if treasury == nil {
		return &Treasury{
			MaxDebtRate:   DefaultMaxDebtRate,
			FeeRate:       DefaultFeeRate,
			MinLendAmount: new(big.Int).Set(DefaultMinLendAmount),
			FeeBalance:    big.NewInt(0),
		}, nil
	}
	return treasury.Clone(), nil
}
