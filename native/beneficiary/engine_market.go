package beneficiary

import (
	"context"
	"math/big"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
)

// SellLoan lists part of the seller's claim against a miner for sale at a
// fixed price per FIL of owed balance. One listing per (seller, miner) pair.
func (e *Engine) SellLoan(ctx context.Context, seller address.Address, id abi.ActorID, amount, pricePerFil *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if pricePerFil == nil || pricePerFil.Sign() <= 0 {
		return ErrInvalidPrice
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	miner, err := e.loadMiner(id)
	if err != nil {
		return err
	}
	loan, err := e.state.GetLoan(seller, id)
	if err != nil {
		return err
	}
	if loan == nil {
		return ErrLoanNotFound
	}
	owed, err := projectOwed(loan, miner.LoanInterestRate, e.now())
	if err != nil {
		return err
	}
	if amount.Cmp(owed) > 0 {
		return ErrInsufficientOwed
	}
	existing, err := e.state.GetSale(seller, id)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrSaleExists
	}
	sale := &Sale{
		Seller:          seller,
		MinerID:         id,
		AmountRemaining: new(big.Int).Set(amount),
		PricePerFil:     new(big.Int).Set(pricePerFil),
		ListedAt:        e.now(),
	}
	if err := e.state.PutSale(sale); err != nil {
		return err
	}
	e.emit(newSaleEvent("sale_created", sale))
	return nil
}

// ModifyLoanSale replaces the amount and price of an existing listing.
func (e *Engine) ModifyLoanSale(ctx context.Context, seller address.Address, id abi.ActorID, amount, pricePerFil *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if pricePerFil == nil || pricePerFil.Sign() <= 0 {
		return ErrInvalidPrice
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	miner, err := e.loadMiner(id)
	if err != nil {
		return err
	}
	sale, err := e.state.GetSale(seller, id)
	if err != nil {
		return err
	}
	if sale == nil {
		return ErrSaleNotFound
	}
	loan, err := e.state.GetLoan(seller, id)
	if err != nil {
		return err
	}
	owed, err := projectOwed(loan, miner.LoanInterestRate, e.now())
	if err != nil {
		return err
	}
	if amount.Cmp(owed) > 0 {
		return ErrInsufficientOwed
	}
	sale.AmountRemaining = new(big.Int).Set(amount)
	sale.PricePerFil = new(big.Int).Set(pricePerFil)
	if err := e.state.PutSale(sale); err != nil {
		return err
	}
	e.emit(newSaleEvent("sale_modified", sale))
	return nil
}

// CancelLoanSale withdraws a listing. Cancelling an absent listing is a
// no-op so retries are safe.
func (e *Engine) CancelLoanSale(ctx context.Context, seller address.Address, id abi.ActorID) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sale, err := e.state.GetSale(seller, id)
	if err != nil {
		return err
	}
	if sale == nil {
		return nil
	}
	if err := e.state.DeleteSale(seller, id); err != nil {
		return err
	}
	e.emit(newSaleEvent("sale_cancelled", sale))
	return nil
}

// BuyLoan fills a listing. The buyer pays buyAmount * pricePerFil / 1e18 to
// the seller and inherits the pro-rated principal share of the seller's
// claim alongside buyAmount of owed balance.
func (e *Engine) BuyLoan(ctx context.Context, buyer, seller address.Address, id abi.ActorID, buyAmount, expectedPrice, payment *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if buyer.Empty() {
		return ErrZeroAddress
	}
	if buyAmount == nil || buyAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	miner, err := e.loadMiner(id)
	if err != nil {
		return err
	}
	sale, err := e.state.GetSale(seller, id)
	if err != nil {
		return err
	}
	if sale == nil {
		return ErrSaleNotFound
	}
	if expectedPrice == nil || expectedPrice.Cmp(sale.PricePerFil) != 0 {
		return ErrPriceMismatch
	}
	if buyAmount.Cmp(sale.AmountRemaining) > 0 {
		return ErrExceedsListing
	}
	treasury, err := e.ensureTreasury()
	if err != nil {
		return err
	}
	// Partial fills below the lend floor would strand dust positions, so
	// small bites must take the whole remainder.
	if buyAmount.Cmp(treasury.MinLendAmount) < 0 && buyAmount.Cmp(sale.AmountRemaining) != 0 {
		return ErrBuyTooSmall
	}

	cost := new(big.Int).Mul(buyAmount, sale.PricePerFil)
	cost.Quo(cost, PriceBase)
	if payment == nil || payment.Cmp(cost) != 0 {
		return ErrPaymentMismatch
	}

	now := e.now()
	sellerLoan, err := e.touchedLoan(seller, miner, now)
	if err != nil {
		return err
	}
	if buyAmount.Cmp(sellerLoan.LastAmount) > 0 {
		return ErrInsufficientOwed
	}
	if !miner.Lenders.Contains(buyer) && uint64(miner.Lenders.Len()) >= miner.MaxLenderCount {
		return ErrRegistryFull
	}

	book := newAccountBook(e)
	buyerAcc, err := book.load(buyer)
	if err != nil {
		return err
	}
	if buyerAcc.Balance.Cmp(payment) < 0 {
		return ErrInsufficientFunds
	}
	sellerAcc, err := book.load(seller)
	if err != nil {
		return err
	}

	// The buyer inherits the seller's principal pro rata to the owed
	// balance taken over, so accrued interest keeps its character.
	principalMoved := new(big.Int).Mul(sellerLoan.PrincipalAmount, buyAmount)
	principalMoved.Quo(principalMoved, sellerLoan.LastAmount)

	buyerLoan := sellerLoan
	if buyer != seller {
		buyerLoan, err = e.touchedLoan(buyer, miner, now)
		if err != nil {
			return err
		}
	}

	sellerLoan.LastAmount.Sub(sellerLoan.LastAmount, buyAmount)
	sellerLoan.PrincipalAmount.Sub(sellerLoan.PrincipalAmount, principalMoved)
	if sellerLoan.PrincipalAmount.Cmp(sellerLoan.LastAmount) > 0 {
		sellerLoan.PrincipalAmount.Set(sellerLoan.LastAmount)
	}
	buyerLoan.LastAmount.Add(buyerLoan.LastAmount, buyAmount)
	buyerLoan.PrincipalAmount.Add(buyerLoan.PrincipalAmount, principalMoved)

	buyerAcc.Balance.Sub(buyerAcc.Balance, payment)
	sellerAcc.Balance.Add(sellerAcc.Balance, payment)

	sale.AmountRemaining.Sub(sale.AmountRemaining, buyAmount)

	if err := miner.Lenders.Add(buyer, miner.MaxLenderCount); err != nil {
		return err
	}
	if buyer != seller {
		if err := e.settleLoan(miner, sellerLoan); err != nil {
			return err
		}
		if err := e.state.PutLoan(buyerLoan); err != nil {
			return err
		}
	} else if err := e.state.PutLoan(buyerLoan); err != nil {
		return err
	}
	// A filled listing goes away, and so does one whose backing claim was
	// bought down to zero even if the listed amount was never reached.
	if sale.AmountRemaining.Sign() == 0 || sellerLoan.LastAmount.Sign() == 0 {
		if err := e.state.DeleteSale(seller, id); err != nil {
			return err
		}
	} else if err := e.state.PutSale(sale); err != nil {
		return err
	}
	if err := book.flush(); err != nil {
		return err
	}
	if err := e.state.PutMiner(miner); err != nil {
		return err
	}
	e.emit(newClaimPurchaseEvent(sale, buyer, buyAmount, principalMoved, payment))
	return nil
}
