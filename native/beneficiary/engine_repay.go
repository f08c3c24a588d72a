package beneficiary

import (
	"context"
	"math/big"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
)

// DirectRepayment pays down a single lender's claim against a miner. Anyone
// can pay on the miner's behalf. The payment may not exceed the owed balance
// at payment time; the protocol fee is charged on the interest component
// only and retained in the treasury.
func (e *Engine) DirectRepayment(ctx context.Context, payer, lender address.Address, id abi.ActorID, payment *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if payment == nil || payment.Sign() <= 0 {
		return ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	miner, err := e.loadMiner(id)
	if err != nil {
		return err
	}
	treasury, err := e.ensureTreasury()
	if err != nil {
		return err
	}
	now := e.now()
	loan, err := e.touchedLoan(lender, miner, now)
	if err != nil {
		return err
	}
	if loan.LastAmount.Sign() == 0 {
		return ErrLoanNotFound
	}
	if payment.Cmp(loan.LastAmount) > 0 {
		return ErrOverRepayment
	}
	payerAcc, err := e.loadAccount(payer)
	if err != nil {
		return err
	}
	if payerAcc.Balance.Cmp(payment) < 0 {
		return ErrInsufficientFunds
	}

	interest := decreaseLoan(loan, payment)
	fee := new(big.Int).Mul(interest, new(big.Int).SetUint64(treasury.FeeRate))
	fee.Quo(fee, big.NewInt(RateBase))

	// Aliased parties (payer paying itself, lender being the treasury)
	// must share one account struct so the writes compose.
	book := newAccountBook(e)
	if err := book.alias(payer, payerAcc); err != nil {
		return err
	}
	lenderAcc, err := book.load(lender)
	if err != nil {
		return err
	}
	feeAcc, err := book.load(e.treasuryAddress)
	if err != nil {
		return err
	}
	payerAcc.Balance.Sub(payerAcc.Balance, payment)
	lenderAcc.Balance.Add(lenderAcc.Balance, new(big.Int).Sub(payment, fee))
	feeAcc.Balance.Add(feeAcc.Balance, fee)
	treasury.FeeBalance.Add(treasury.FeeBalance, fee)

	if err := book.flush(); err != nil {
		return err
	}
	if err := e.state.PutTreasury(treasury); err != nil {
		return err
	}
	if err := e.settleLoan(miner, loan); err != nil {
		return err
	}
	if err := e.state.PutMiner(miner); err != nil {
		return err
	}
	e.emit(newRepaymentEvent(miner, lender, payment, interest, fee))
	return nil
}

type repayKey struct {
	lender address.Address
	id     abi.ActorID
}

// BatchDirectRepayment settles many (lender, miner) claims in one atomic
// step. Entries addressing the same claim are aggregated. The whole batch is
// validated against projected owed balances first; any failing entry aborts
// the batch with no state written.
func (e *Engine) BatchDirectRepayment(ctx context.Context, payer address.Address, lenders []address.Address, ids []abi.ActorID, amounts []*big.Int, payment *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if len(lenders) != len(ids) || len(lenders) != len(amounts) {
		return ErrLengthMismatch
	}
	if len(lenders) == 0 {
		return ErrInvalidAmount
	}
	total := big.NewInt(0)
	for _, amount := range amounts {
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		total.Add(total, amount)
	}
	if payment == nil || payment.Cmp(total) != 0 {
		return ErrPaymentMismatch
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	treasury, err := e.ensureTreasury()
	if err != nil {
		return err
	}
	now := e.now()

	miners := make(map[abi.ActorID]*Miner)
	loans := make(map[repayKey]*Loan)
	totals := make(map[repayKey]*big.Int)
	order := make([]repayKey, 0, len(lenders))

	// Validation pass: accrue every touched claim and check the aggregated
	// per-claim amount against its owed balance before writing anything.
	for i := range lenders {
		key := repayKey{lender: lenders[i], id: ids[i]}
		miner, ok := miners[key.id]
		if !ok {
			miner, err = e.loadMiner(key.id)
			if err != nil {
				return err
			}
			miners[key.id] = miner
		}
		loan, ok := loans[key]
		if !ok {
			loan, err = e.touchedLoan(key.lender, miner, now)
			if err != nil {
				return err
			}
			if loan.LastAmount.Sign() == 0 {
				return ErrLoanNotFound
			}
			loans[key] = loan
			totals[key] = big.NewInt(0)
			order = append(order, key)
		}
		totals[key].Add(totals[key], amounts[i])
		if totals[key].Cmp(loan.LastAmount) > 0 {
			return ErrOverRepayment
		}
	}

	book := newAccountBook(e)
	payerAcc, err := book.load(payer)
	if err != nil {
		return err
	}
	if payerAcc.Balance.Cmp(payment) < 0 {
		return ErrInsufficientFunds
	}

	// Apply pass.
	totalFee := big.NewInt(0)
	payerAcc.Balance.Sub(payerAcc.Balance, payment)
	for _, key := range order {
		miner := miners[key.id]
		loan := loans[key]
		amount := totals[key]

		interest := decreaseLoan(loan, amount)
		fee := new(big.Int).Mul(interest, new(big.Int).SetUint64(treasury.FeeRate))
		fee.Quo(fee, big.NewInt(RateBase))
		totalFee.Add(totalFee, fee)

		lenderAcc, err := book.load(key.lender)
		if err != nil {
			return err
		}
		lenderAcc.Balance.Add(lenderAcc.Balance, new(big.Int).Sub(amount, fee))
		if err := e.settleLoan(miner, loan); err != nil {
			return err
		}
		e.emit(newRepaymentEvent(miner, key.lender, amount, interest, fee))
	}
	for _, miner := range miners {
		if err := e.state.PutMiner(miner); err != nil {
			return err
		}
	}

	feeAcc, err := book.load(e.treasuryAddress)
	if err != nil {
		return err
	}
	feeAcc.Balance.Add(feeAcc.Balance, totalFee)
	treasury.FeeBalance.Add(treasury.FeeBalance, totalFee)
	if err := book.flush(); err != nil {
		return err
	}
	if err := e.state.PutTreasury(treasury); err != nil {
		return err
	}
	e.emit(newBatchRepaymentEvent(payer, len(order), payment, totalFee))
	return nil
}
