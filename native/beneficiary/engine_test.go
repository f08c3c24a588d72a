package beneficiary

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
)

func TestPledgeLifecycle(t *testing.T) {
	engine, st, _ := testEngine(t)
	ctx := context.Background()
	delegator := idAddr(t, 100)
	receive := idAddr(t, 101)

	pledgeTestMiner(t, engine, 1000, delegator, receive)

	if err := engine.Pledge(ctx, PledgeParams{
		MinerID:          1000,
		Delegator:        delegator,
		MaxDebtAmount:    fil(100),
		LoanInterestRate: 100_000,
		ReceiveAddress:   receive,
		MaxLenderCount:   3,
	}); !errors.Is(err, ErrAlreadyPledged) {
		t.Fatalf("second pledge: got %v", err)
	}

	miner, err := engine.GetMiner(ctx, 1000)
	if err != nil {
		t.Fatalf("get miner: %v", err)
	}
	if miner.Delegator != delegator {
		t.Fatalf("delegator = %s, want %s", miner.Delegator, delegator)
	}

	if err := engine.Release(ctx, idAddr(t, 999), 1000); !errors.Is(err, ErrNotDelegator) {
		t.Fatalf("release by stranger: got %v", err)
	}
	if err := engine.Release(ctx, delegator, 1000); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok := st.miners[1000]; ok {
		t.Fatal("miner record survived release")
	}
	if err := engine.Release(ctx, delegator, 1000); !errors.Is(err, ErrMinerNotPledged) {
		t.Fatalf("release unpledged: got %v", err)
	}
}

func TestPledgeRejectsBadHandoff(t *testing.T) {
	engine, _, _ := testEngine(t)
	engine.SetAuthority(&stubAuthority{err: errors.New("bad signature")})
	err := engine.Pledge(context.Background(), PledgeParams{
		MinerID:          1000,
		Delegator:        idAddr(t, 100),
		MaxDebtAmount:    fil(100),
		LoanInterestRate: 100_000,
		ReceiveAddress:   idAddr(t, 101),
		MaxLenderCount:   3,
	})
	if !errors.Is(err, ErrHandoffRejected) {
		t.Fatalf("got %v, want handoff rejection", err)
	}
}

func TestPledgeFailureReleasesProof(t *testing.T) {
	engine, _, _ := testEngine(t)
	ctx := context.Background()
	engine.SetAuthority(&stubAuthority{})
	engine.SetOracle(stubOracle{value: fil(10)})

	params := PledgeParams{
		MinerID:          1000,
		Delegator:        idAddr(t, 100),
		MaxDebtAmount:    fil(100),
		LoanInterestRate: 100_000,
		ReceiveAddress:   idAddr(t, 101),
		MaxLenderCount:   3,
		Proof:            []byte{0x01},
		ProofTimestamp:   1_700_000_000,
	}
	if err := engine.Pledge(ctx, params); !errors.Is(err, ErrExceedsCollateral) {
		t.Fatalf("low collateral pledge: got %v, want ErrExceedsCollateral", err)
	}

	// The rejected pledge must not burn the proof: the same one retries
	// cleanly once the collateral covers the cap.
	engine.SetOracle(stubOracle{value: fil(10_000)})
	if err := engine.Pledge(ctx, params); err != nil {
		t.Fatalf("retry with same proof: %v", err)
	}

	// The successful pledge consumed it.
	if err := engine.Pledge(ctx, params); !errors.Is(err, ErrHandoffRejected) {
		t.Fatalf("replay after success: got %v, want ErrHandoffRejected", err)
	}
}

func TestPledgeExceedsCollateral(t *testing.T) {
	engine, _, _ := testEngine(t)
	engine.SetOracle(stubOracle{value: fil(100)})
	// Ceiling is 60% of 100 FIL, so a 100 FIL cap is too high.
	err := engine.Pledge(context.Background(), PledgeParams{
		MinerID:          1000,
		Delegator:        idAddr(t, 100),
		MaxDebtAmount:    fil(100),
		LoanInterestRate: 100_000,
		ReceiveAddress:   idAddr(t, 101),
		MaxLenderCount:   3,
	})
	if !errors.Is(err, ErrExceedsCollateral) {
		t.Fatalf("got %v, want ErrExceedsCollateral", err)
	}
}

func TestPledgeWithBundledLend(t *testing.T) {
	engine, st, _ := testEngine(t)
	ctx := context.Background()
	delegator := idAddr(t, 100)
	receive := idAddr(t, 101)
	st.fund(delegator, fil(50))

	err := engine.Pledge(ctx, PledgeParams{
		MinerID:           1000,
		Delegator:         delegator,
		MaxDebtAmount:     fil(100),
		LoanInterestRate:  100_000,
		ReceiveAddress:    receive,
		MaxLenderCount:    3,
		InitialLendAmount: fil(20),
	})
	if err != nil {
		t.Fatalf("pledge with lend: %v", err)
	}
	if got := st.balance(receive); got.Cmp(fil(20)) != 0 {
		t.Fatalf("receive balance = %s, want %s", got, fil(20))
	}
	if got := st.balance(delegator); got.Cmp(fil(30)) != 0 {
		t.Fatalf("delegator balance = %s, want %s", got, fil(30))
	}
	loan := st.loans[loanStateKey{delegator, 1000}]
	if loan == nil || loan.PrincipalAmount.Cmp(fil(20)) != 0 {
		t.Fatalf("bundled loan = %+v", loan)
	}
}

func TestLendAdmission(t *testing.T) {
	engine, st, _ := testEngine(t)
	ctx := context.Background()
	delegator := idAddr(t, 100)
	receive := idAddr(t, 101)
	lender := idAddr(t, 200)
	pledgeTestMiner(t, engine, 1000, delegator, receive)
	st.fund(lender, fil(200))

	if err := engine.Lend(ctx, lender, 1000, 200_000, fil(10)); !errors.Is(err, ErrRateMismatch) {
		t.Fatalf("rate mismatch: got %v", err)
	}
	if err := engine.Lend(ctx, lender, 1000, 100_000, big.NewInt(5)); !errors.Is(err, ErrBelowMinLend) {
		t.Fatalf("below floor: got %v", err)
	}
	if err := engine.Lend(ctx, lender, 1000, 100_000, fil(150)); !errors.Is(err, ErrDebtCapExceeded) {
		t.Fatalf("over cap: got %v", err)
	}
	if err := engine.Lend(ctx, lender, 1000, 100_000, fil(20)); err != nil {
		t.Fatalf("lend: %v", err)
	}
	if got := st.balance(receive); got.Cmp(fil(20)) != 0 {
		t.Fatalf("proceeds = %s, want %s", got, fil(20))
	}

	if err := engine.ChangeMinerDisabled(ctx, delegator, 1000, true); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := engine.Lend(ctx, lender, 1000, 100_000, fil(10)); !errors.Is(err, ErrMinerDisabled) {
		t.Fatalf("disabled miner: got %v", err)
	}
}

func TestLendRegistryBound(t *testing.T) {
	engine, st, _ := testEngine(t)
	ctx := context.Background()
	delegator := idAddr(t, 100)
	pledgeTestMiner(t, engine, 1000, delegator, idAddr(t, 101))

	lenders := []uint64{200, 201, 202}
	for _, id := range lenders {
		addr := idAddr(t, id)
		st.fund(addr, fil(50))
		if err := engine.Lend(ctx, addr, 1000, 100_000, fil(5)); err != nil {
			t.Fatalf("lend %d: %v", id, err)
		}
	}

	extra := idAddr(t, 203)
	st.fund(extra, fil(50))
	if err := engine.Lend(ctx, extra, 1000, 100_000, fil(5)); !errors.Is(err, ErrRegistryFull) {
		t.Fatalf("registry overflow: got %v", err)
	}

	// A member topping up does not consume a slot.
	member := idAddr(t, 200)
	if err := engine.Lend(ctx, member, 1000, 100_000, fil(5)); err != nil {
		t.Fatalf("member top-up: %v", err)
	}
	miner := st.miners[1000]
	if miner.Lenders.Len() != 3 {
		t.Fatalf("lender count = %d, want 3", miner.Lenders.Len())
	}
}

func TestReleaseBlockedByDebt(t *testing.T) {
	engine, st, clock := testEngine(t)
	ctx := context.Background()
	delegator := idAddr(t, 100)
	lender := idAddr(t, 200)
	pledgeTestMiner(t, engine, 1000, delegator, idAddr(t, 101))
	st.fund(lender, fil(50))
	if err := engine.Lend(ctx, lender, 1000, 100_000, fil(10)); err != nil {
		t.Fatalf("lend: %v", err)
	}
	clock.Advance(SecondsPerYear)
	if err := engine.Release(ctx, delegator, 1000); !errors.Is(err, ErrDebtOutstanding) {
		t.Fatalf("release with debt: got %v", err)
	}
}

func TestDirectRepaymentSettlesAndSplitsFee(t *testing.T) {
	engine, st, clock := testEngine(t)
	ctx := context.Background()
	delegator := idAddr(t, 100)
	lender := idAddr(t, 200)
	payer := idAddr(t, 300)
	pledgeTestMiner(t, engine, 1000, delegator, idAddr(t, 101))
	st.fund(lender, fil(50))
	st.fund(payer, fil(50))
	if err := engine.Lend(ctx, lender, 1000, 100_000, fil(10)); err != nil {
		t.Fatalf("lend: %v", err)
	}
	clock.Advance(SecondsPerYear)

	owed, err := engine.CurrentLenderOwed(ctx, lender, 1000)
	if err != nil {
		t.Fatalf("owed: %v", err)
	}
	if owed.Cmp(fil(10)) <= 0 {
		t.Fatalf("no interest accrued: owed %s", owed)
	}

	over := new(big.Int).Add(owed, big.NewInt(1))
	if err := engine.DirectRepayment(ctx, payer, lender, 1000, over); !errors.Is(err, ErrOverRepayment) {
		t.Fatalf("overpayment: got %v", err)
	}

	if err := engine.DirectRepayment(ctx, payer, lender, 1000, owed); err != nil {
		t.Fatalf("repay in full: %v", err)
	}

	interest := new(big.Int).Sub(owed, fil(10))
	fee := new(big.Int).Mul(interest, big.NewInt(DefaultFeeRate))
	fee.Quo(fee, big.NewInt(RateBase))
	wantLender := new(big.Int).Add(fil(40), new(big.Int).Sub(owed, fee))
	if got := st.balance(lender); got.Cmp(wantLender) != 0 {
		t.Fatalf("lender balance = %s, want %s", got, wantLender)
	}
	if st.treasury.FeeBalance.Cmp(fee) != 0 {
		t.Fatalf("fee balance = %s, want %s", st.treasury.FeeBalance, fee)
	}

	// The claim is fully settled: loan gone, registry slot freed.
	if _, ok := st.loans[loanStateKey{lender, 1000}]; ok {
		t.Fatal("loan record survived full repayment")
	}
	if st.miners[1000].Lenders.Contains(lender) {
		t.Fatal("lender still registered after full repayment")
	}

	if err := engine.Release(ctx, delegator, 1000); err != nil {
		t.Fatalf("release after settlement: %v", err)
	}
}

func TestDirectRepaymentPartialKeepsProportions(t *testing.T) {
	engine, st, clock := testEngine(t)
	ctx := context.Background()
	lender := idAddr(t, 200)
	payer := idAddr(t, 300)
	pledgeTestMiner(t, engine, 1000, idAddr(t, 100), idAddr(t, 101))
	st.fund(lender, fil(50))
	st.fund(payer, fil(50))
	if err := engine.Lend(ctx, lender, 1000, 100_000, fil(10)); err != nil {
		t.Fatalf("lend: %v", err)
	}
	clock.Advance(SecondsPerYear)

	owed, err := engine.CurrentLenderOwed(ctx, lender, 1000)
	if err != nil {
		t.Fatal(err)
	}
	half := new(big.Int).Quo(owed, big.NewInt(2))
	if err := engine.DirectRepayment(ctx, payer, lender, 1000, half); err != nil {
		t.Fatalf("partial repay: %v", err)
	}

	loan := st.loans[loanStateKey{lender, 1000}]
	remaining := new(big.Int).Sub(owed, half)
	if loan.LastAmount.Cmp(remaining) != 0 {
		t.Fatalf("remaining owed = %s, want %s", loan.LastAmount, remaining)
	}
	// Principal shrinks pro rata: principal' = principal * remaining / owed.
	wantPrincipal := new(big.Int).Mul(fil(10), remaining)
	wantPrincipal.Quo(wantPrincipal, owed)
	if loan.PrincipalAmount.Cmp(wantPrincipal) != 0 {
		t.Fatalf("principal = %s, want %s", loan.PrincipalAmount, wantPrincipal)
	}
	if loan.PrincipalAmount.Cmp(loan.LastAmount) > 0 {
		t.Fatal("principal exceeds owed after partial repayment")
	}
}

func TestBatchRepaymentAtomicity(t *testing.T) {
	engine, st, clock := testEngine(t)
	ctx := context.Background()
	payer := idAddr(t, 300)
	lenderA := idAddr(t, 200)
	lenderB := idAddr(t, 201)
	pledgeTestMiner(t, engine, 1000, idAddr(t, 100), idAddr(t, 101))
	st.fund(lenderA, fil(50))
	st.fund(lenderB, fil(50))
	st.fund(payer, fil(100))
	if err := engine.Lend(ctx, lenderA, 1000, 100_000, fil(10)); err != nil {
		t.Fatal(err)
	}
	if err := engine.Lend(ctx, lenderB, 1000, 100_000, fil(10)); err != nil {
		t.Fatal(err)
	}
	clock.Advance(1000)

	// One entry over-repays, so nothing at all may be applied.
	amounts := []*big.Int{fil(5), fil(50)}
	payment := new(big.Int).Add(amounts[0], amounts[1])
	err := engine.BatchDirectRepayment(ctx, payer,
		[]address.Address{lenderA, lenderB},
		[]abi.ActorID{1000, 1000}, amounts, payment)
	if !errors.Is(err, ErrOverRepayment) {
		t.Fatalf("got %v, want ErrOverRepayment", err)
	}
	if got := st.balance(payer); got.Cmp(fil(100)) != 0 {
		t.Fatalf("payer balance mutated by failed batch: %s", got)
	}
	if got := st.loans[loanStateKey{lenderA, 1000}].LastAmount; got.Cmp(fil(10)) != 0 {
		t.Fatalf("loan A mutated by failed batch: %s", got)
	}

	// A valid batch settles both claims, including the sum check.
	amounts = []*big.Int{fil(5), fil(5)}
	if err := engine.BatchDirectRepayment(ctx, payer,
		[]address.Address{lenderA, lenderB},
		[]abi.ActorID{1000, 1000}, amounts, fil(9)); !errors.Is(err, ErrPaymentMismatch) {
		t.Fatalf("bad sum: got %v", err)
	}
	if err := engine.BatchDirectRepayment(ctx, payer,
		[]address.Address{lenderA, lenderB},
		[]abi.ActorID{1000, 1000}, amounts, fil(10)); err != nil {
		t.Fatalf("valid batch: %v", err)
	}
	if got := st.balance(payer); got.Cmp(fil(90)) != 0 {
		t.Fatalf("payer balance = %s, want %s", got, fil(90))
	}
}

func TestBatchRepaymentAggregatesDuplicateEntries(t *testing.T) {
	engine, st, _ := testEngine(t)
	ctx := context.Background()
	payer := idAddr(t, 300)
	lender := idAddr(t, 200)
	pledgeTestMiner(t, engine, 1000, idAddr(t, 100), idAddr(t, 101))
	st.fund(lender, fil(50))
	st.fund(payer, fil(100))
	if err := engine.Lend(ctx, lender, 1000, 100_000, fil(10)); err != nil {
		t.Fatal(err)
	}

	// Two entries against the same claim summing past its owed balance.
	amounts := []*big.Int{fil(6), fil(6)}
	err := engine.BatchDirectRepayment(ctx, payer,
		[]address.Address{lender, lender},
		[]abi.ActorID{1000, 1000}, amounts, fil(12))
	if !errors.Is(err, ErrOverRepayment) {
		t.Fatalf("aggregated overpayment: got %v", err)
	}

	amounts = []*big.Int{fil(4), fil(6)}
	if err := engine.BatchDirectRepayment(ctx, payer,
		[]address.Address{lender, lender},
		[]abi.ActorID{1000, 1000}, amounts, fil(10)); err != nil {
		t.Fatalf("aggregated batch: %v", err)
	}
	if _, ok := st.loans[loanStateKey{lender, 1000}]; ok {
		t.Fatal("loan survived aggregated full repayment")
	}
}

func TestChangeRateRequiresZeroDebt(t *testing.T) {
	engine, st, _ := testEngine(t)
	ctx := context.Background()
	delegator := idAddr(t, 100)
	lender := idAddr(t, 200)
	pledgeTestMiner(t, engine, 1000, delegator, idAddr(t, 101))
	st.fund(lender, fil(50))
	if err := engine.Lend(ctx, lender, 1000, 100_000, fil(10)); err != nil {
		t.Fatal(err)
	}
	if err := engine.ChangeMinerLoanInterestRate(ctx, delegator, 1000, 200_000); !errors.Is(err, ErrDebtOutstanding) {
		t.Fatalf("rate change with debt: got %v", err)
	}
	if err := engine.DirectRepayment(ctx, lender, lender, 1000, fil(10)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if err := engine.ChangeMinerLoanInterestRate(ctx, delegator, 1000, 200_000); err != nil {
		t.Fatalf("rate change after settlement: %v", err)
	}
}

func TestTreasuryGovernance(t *testing.T) {
	engine, st, _ := testEngine(t)
	ctx := context.Background()
	foundation := idAddr(t, 500)
	if err := engine.InitTreasury(foundation, DefaultMaxDebtRate, DefaultFeeRate, fil(1)); err != nil {
		t.Fatalf("init treasury: %v", err)
	}

	if err := engine.ChangeFeeRate(ctx, idAddr(t, 900), 50_000); !errors.Is(err, ErrNotFoundation) {
		t.Fatalf("fee change by stranger: got %v", err)
	}
	if err := engine.ChangeFeeRate(ctx, foundation, MaxFeeRate+1); !errors.Is(err, ErrFeeRateTooHigh) {
		t.Fatalf("fee above cap: got %v", err)
	}
	if err := engine.ChangeFeeRate(ctx, foundation, 50_000); err != nil {
		t.Fatalf("fee change: %v", err)
	}
	if st.treasury.FeeRate != 50_000 {
		t.Fatalf("fee rate = %d, want 50000", st.treasury.FeeRate)
	}

	if err := engine.Withdraw(ctx, foundation, idAddr(t, 600), fil(1)); !errors.Is(err, ErrInsufficientFeeBalance) {
		t.Fatalf("withdraw empty treasury: got %v", err)
	}
}
