package beneficiary

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"

	"filpledge/core/events"
	"filpledge/core/types"
)

// State is the persistence boundary for the ledger. Records are addressed by
// their natural keys; lookups return (nil, nil) when the record is absent.
type State interface {
	GetMiner(id abi.ActorID) (*Miner, error)
	PutMiner(miner *Miner) error
	DeleteMiner(id abi.ActorID) error

	GetLoan(lender address.Address, id abi.ActorID) (*Loan, error)
	PutLoan(loan *Loan) error
	DeleteLoan(lender address.Address, id abi.ActorID) error

	GetSale(seller address.Address, id abi.ActorID) (*Sale, error)
	PutSale(sale *Sale) error
	DeleteSale(seller address.Address, id abi.ActorID) error

	GetTreasury() (*Treasury, error)
	PutTreasury(treasury *Treasury) error

	GetAccount(addr address.Address) (*types.Account, error)
	PutAccount(addr address.Address, account *types.Account) error
}

// CollateralOracle supplies the collateral value backing a miner's debt,
// typically the miner actor's available balance. Oracle failures must
// propagate as admission failures, never as a silently-zero value.
type CollateralOracle interface {
	CollateralValue(ctx context.Context, id abi.ActorID) (abi.TokenAmount, error)
}

// HandoffAuthority validates the one-time beneficiary handoff proof gating a
// pledge. Admit reserves the proof; Release returns the reservation when the
// pledge fails after admission, keeping the proof usable for a retry.
type HandoffAuthority interface {
	Admit(id abi.ActorID, delegator address.Address, proof []byte, timestamp int64) error
	Release(id abi.ActorID, delegator address.Address, timestamp int64)
}

// Engine is the multi-lender debt ledger: pledge/release lifecycle, lend
// admission, lazy interest accrual, repayment and the claim secondary
// market. Every operation is serialized behind one lock and runs with
// commit-or-abort semantics: all validation happens before the first write.
type Engine struct {
	mu sync.RWMutex

	state           State
	emitter         events.Emitter
	oracle          CollateralOracle
	authority       HandoffAuthority
	treasuryAddress address.Address
	nowFn           func() int64
}

// NewEngine constructs a ledger engine. The treasury address is the account
// that custodies accumulated protocol fees.
func NewEngine(treasuryAddr address.Address) *Engine {
	return &Engine{
		emitter:         events.NoopEmitter{},
		treasuryAddress: treasuryAddr,
		nowFn:           func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state State) { e.state = state }

// SetOracle configures the collateral value collaborator.
func (e *Engine) SetOracle(oracle CollateralOracle) { e.oracle = oracle }

// SetAuthority configures the beneficiary handoff collaborator.
func (e *Engine) SetAuthority(authority HandoffAuthority) { e.authority = authority }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 { return e.nowFn() }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(ledgerEvent{evt: evt})
}

// InitTreasury seeds the treasury record once. Subsequent calls are no-ops
// so restarts keep the live parameters.
func (e *Engine) InitTreasury(foundation address.Address, maxDebtRate, feeRate uint64, minLendAmount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if foundation.Empty() {
		return ErrZeroAddress
	}
	if feeRate > MaxFeeRate {
		return ErrFeeRateTooHigh
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	existing, err := e.state.GetTreasury()
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	if minLendAmount == nil || minLendAmount.Sign() <= 0 {
		minLendAmount = DefaultMinLendAmount
	}
	return e.state.PutTreasury(&Treasury{
		Foundation:    foundation,
		MaxDebtRate:   maxDebtRate,
		FeeRate:       feeRate,
		MinLendAmount: new(big.Int).Set(minLendAmount),
		FeeBalance:    big.NewInt(0),
	})
}

// PledgeParams bundles the arguments for pledging a miner's beneficiary
// rights into the ledger.
type PledgeParams struct {
	MinerID   abi.ActorID
	Delegator address.Address
	// Proof and ProofTimestamp form the one-time handoff proof checked by
	// the external authority.
	Proof          []byte
	ProofTimestamp int64

	MaxDebtAmount    *big.Int
	LoanInterestRate uint64
	ReceiveAddress   address.Address
	Disabled         bool
	MaxLenderCount   uint64
	MinLendAmount    *big.Int

	// InitialLendAmount optionally bundles a first lend by the delegator.
	InitialLendAmount *big.Int
}

// Pledge admits a miner into the ledger, creating its account record and,
// when requested, a bundled first loan from the delegator.
func (e *Engine) Pledge(ctx context.Context, params PledgeParams) (err error) {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if params.Delegator.Empty() || params.ReceiveAddress.Empty() {
		return ErrZeroAddress
	}
	if params.MaxDebtAmount == nil || params.MaxDebtAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if params.MaxLenderCount == 0 {
		return ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.authority != nil {
		if admitErr := e.authority.Admit(params.MinerID, params.Delegator, params.Proof, params.ProofTimestamp); admitErr != nil {
			return fmt.Errorf("%w: %s", ErrHandoffRejected, admitErr)
		}
		// The proof is one-time. A pledge rejected past this point must hand
		// it back so the delegator can retry with the same proof.
		defer func() {
			if err != nil {
				e.authority.Release(params.MinerID, params.Delegator, params.ProofTimestamp)
			}
		}()
	}

	existing, err := e.state.GetMiner(params.MinerID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyPledged
	}

	treasury, err := e.ensureTreasury()
	if err != nil {
		return err
	}

	minLend := maxBigInt(treasury.MinLendAmount, params.MinLendAmount)
	if params.MaxDebtAmount.Cmp(minLend) < 0 {
		return ErrBelowMinLend
	}

	ceiling, err := e.collateralCeiling(ctx, params.MinerID, treasury.MaxDebtRate)
	if err != nil {
		return err
	}
	if params.MaxDebtAmount.Cmp(ceiling) > 0 {
		return ErrExceedsCollateral
	}

	miner := &Miner{
		ID:               params.MinerID,
		Delegator:        params.Delegator,
		MaxDebtAmount:    new(big.Int).Set(params.MaxDebtAmount),
		LoanInterestRate: params.LoanInterestRate,
		ReceiveAddress:   params.ReceiveAddress,
		Disabled:         params.Disabled,
		MaxLenderCount:   params.MaxLenderCount,
		MinLendAmount:    cloneBigInt(params.MinLendAmount),
	}

	now := e.now()
	if params.InitialLendAmount != nil && params.InitialLendAmount.Sign() > 0 {
		if err := e.applyLend(ctx, treasury, miner, params.Delegator, params.InitialLendAmount, now); err != nil {
			return err
		}
	}

	if err := e.state.PutMiner(miner); err != nil {
		return err
	}
	e.emit(newPledgeEvent(miner))
	return nil
}

// Release returns a miner to the unpledged state. It requires the aggregate
// owed amount across all lenders to be exactly zero and always empties the
// lender registry.
func (e *Engine) Release(ctx context.Context, caller address.Address, id abi.ActorID) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	miner, err := e.loadMiner(id)
	if err != nil {
		return err
	}
	if miner.Delegator != caller {
		return ErrNotDelegator
	}
	owed, err := e.aggregateOwed(miner, e.now())
	if err != nil {
		return err
	}
	if owed.Owed.Sign() != 0 {
		return ErrDebtOutstanding
	}
	for _, lender := range miner.Lenders.List() {
		if err := e.state.DeleteLoan(lender, id); err != nil {
			return err
		}
		if err := e.state.DeleteSale(lender, id); err != nil {
			return err
		}
	}
	if err := e.state.DeleteMiner(id); err != nil {
		return err
	}
	e.emit(newReleaseEvent(miner))
	return nil
}

// Lend admits a new loan (or tops up an existing one) against a pledged
// miner. The debt-rate and debt-cap post-conditions are checked against the
// post-accrual, post-increase aggregate.
func (e *Engine) Lend(ctx context.Context, lender address.Address, id abi.ActorID, expectedRate uint64, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if lender.Empty() {
		return ErrZeroAddress
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	miner, err := e.loadMiner(id)
	if err != nil {
		return err
	}
	if miner.Disabled {
		return ErrMinerDisabled
	}
	if miner.LoanInterestRate != expectedRate {
		return ErrRateMismatch
	}
	treasury, err := e.ensureTreasury()
	if err != nil {
		return err
	}
	if err := e.applyLend(ctx, treasury, miner, lender, amount, e.now()); err != nil {
		return err
	}
	return e.state.PutMiner(miner)
}

// applyLend validates and applies a lend against a loaded miner record. The
// caller persists the miner afterwards; everything else (loan, accounts) is
// written here, after all checks have passed.
func (e *Engine) applyLend(ctx context.Context, treasury *Treasury, miner *Miner, lender address.Address, amount *big.Int, now int64) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if amount.Cmp(maxBigInt(treasury.MinLendAmount, miner.MinLendAmount)) < 0 {
		return ErrBelowMinLend
	}
	if !miner.Lenders.Contains(lender) && uint64(miner.Lenders.Len()) >= miner.MaxLenderCount {
		return ErrRegistryFull
	}

	lenderAcc, err := e.loadAccount(lender)
	if err != nil {
		return err
	}
	if lenderAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}

	loan, err := e.touchedLoan(lender, miner, now)
	if err != nil {
		return err
	}
	loan.PrincipalAmount.Add(loan.PrincipalAmount, amount)
	loan.LastAmount.Add(loan.LastAmount, amount)

	owed, err := e.aggregateOwedExcluding(miner, now, lender)
	if err != nil {
		return err
	}
	totalOwed := new(big.Int).Add(owed.Owed, loan.LastAmount)

	ceiling, err := e.collateralCeiling(ctx, miner.ID, treasury.MaxDebtRate)
	if err != nil {
		return err
	}
	if totalOwed.Cmp(ceiling) > 0 {
		return ErrDebtRateExceeded
	}
	if totalOwed.Cmp(miner.MaxDebtAmount) > 0 {
		return ErrDebtCapExceeded
	}

	if err := miner.Lenders.Add(lender, miner.MaxLenderCount); err != nil {
		return err
	}

	// Proceeds pay out to the miner's receive address immediately.
	book := newAccountBook(e)
	if err := book.alias(lender, lenderAcc); err != nil {
		return err
	}
	receiveAcc, err := book.load(miner.ReceiveAddress)
	if err != nil {
		return err
	}
	lenderAcc.Balance.Sub(lenderAcc.Balance, amount)
	receiveAcc.Balance.Add(receiveAcc.Balance, amount)
	if err := book.flush(); err != nil {
		return err
	}
	if err := e.state.PutLoan(loan); err != nil {
		return err
	}
	e.emit(newLendEvent(miner, loan, amount))
	return nil
}

// --- delegator-gated parameter changes ---

func (e *Engine) delegatorMiner(caller address.Address, id abi.ActorID) (*Miner, error) {
	miner, err := e.loadMiner(id)
	if err != nil {
		return nil, err
	}
	if miner.Delegator != caller {
		return nil, ErrNotDelegator
	}
	return miner, nil
}

func (e *Engine) putMinerEvented(miner *Miner, field string, value string) error {
	if err := e.state.PutMiner(miner); err != nil {
		return err
	}
	e.emit(newMinerParamEvent(miner, field, value))
	return nil
}

// ChangeMinerDelegator hands parameter control to a new delegator address.
func (e *Engine) ChangeMinerDelegator(ctx context.Context, caller address.Address, id abi.ActorID, delegator address.Address) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if delegator.Empty() {
		return ErrZeroAddress
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	miner, err := e.delegatorMiner(caller, id)
	if err != nil {
		return err
	}
	miner.Delegator = delegator
	return e.putMinerEvented(miner, "delegator", delegator.String())
}

// ChangeMinerMaxDebtAmount adjusts the absolute debt cap. The new cap must
// cover the current aggregate owed amount and stay within the
// collateral-derived ceiling.
func (e *Engine) ChangeMinerMaxDebtAmount(ctx context.Context, caller address.Address, id abi.ActorID, maxDebtAmount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if maxDebtAmount == nil || maxDebtAmount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	miner, err := e.delegatorMiner(caller, id)
	if err != nil {
		return err
	}
	owed, err := e.aggregateOwed(miner, e.now())
	if err != nil {
		return err
	}
	if maxDebtAmount.Cmp(owed.Owed) < 0 {
		return ErrDebtOutstanding
	}
	treasury, err := e.ensureTreasury()
	if err != nil {
		return err
	}
	ceiling, err := e.collateralCeiling(ctx, id, treasury.MaxDebtRate)
	if err != nil {
		return err
	}
	if maxDebtAmount.Cmp(ceiling) > 0 {
		return ErrExceedsCollateral
	}
	miner.MaxDebtAmount = new(big.Int).Set(maxDebtAmount)
	return e.putMinerEvented(miner, "maxDebtAmount", maxDebtAmount.String())
}

// ChangeMinerLoanInterestRate sets a new annual rate. The rate is
// miner-scoped and ambiguous to apply retroactively across lenders, so the
// aggregate owed amount must be zero.
func (e *Engine) ChangeMinerLoanInterestRate(ctx context.Context, caller address.Address, id abi.ActorID, rate uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	miner, err := e.delegatorMiner(caller, id)
	if err != nil {
		return err
	}
	owed, err := e.aggregateOwed(miner, e.now())
	if err != nil {
		return err
	}
	if owed.Owed.Sign() != 0 {
		return ErrDebtOutstanding
	}
	miner.LoanInterestRate = rate
	return e.putMinerEvented(miner, "loanInterestRate", fmt.Sprintf("%d", rate))
}

// ChangeMinerReceiveAddress redirects future lend payouts.
func (e *Engine) ChangeMinerReceiveAddress(ctx context.Context, caller address.Address, id abi.ActorID, receive address.Address) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if receive.Empty() {
		return ErrZeroAddress
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	miner, err := e.delegatorMiner(caller, id)
	if err != nil {
		return err
	}
	miner.ReceiveAddress = receive
	return e.putMinerEvented(miner, "receiveAddress", receive.String())
}

// ChangeMinerDisabled toggles admission of new lending. Existing loans keep
// accruing and remain repayable.
func (e *Engine) ChangeMinerDisabled(ctx context.Context, caller address.Address, id abi.ActorID, disabled bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	miner, err := e.delegatorMiner(caller, id)
	if err != nil {
		return err
	}
	miner.Disabled = disabled
	return e.putMinerEvented(miner, "disabled", fmt.Sprintf("%t", disabled))
}

// ChangeMinerMaxLenderCount resizes the registry bound. It cannot shrink
// below the current cardinality.
func (e *Engine) ChangeMinerMaxLenderCount(ctx context.Context, caller address.Address, id abi.ActorID, max uint64) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if max == 0 {
		return ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	miner, err := e.delegatorMiner(caller, id)
	if err != nil {
		return err
	}
	if uint64(miner.Lenders.Len()) > max {
		return ErrRegistryFull
	}
	miner.MaxLenderCount = max
	return e.putMinerEvented(miner, "maxLenderCount", fmt.Sprintf("%d", max))
}

// ChangeMinerMinLendAmount adjusts the per-miner lend floor.
func (e *Engine) ChangeMinerMinLendAmount(ctx context.Context, caller address.Address, id abi.ActorID, min *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if min == nil || min.Sign() < 0 {
		return ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	miner, err := e.delegatorMiner(caller, id)
	if err != nil {
		return err
	}
	miner.MinLendAmount = new(big.Int).Set(min)
	return e.putMinerEvented(miner, "minLendAmount", min.String())
}

// --- shared helpers ---

func (e *Engine) loadMiner(id abi.ActorID) (*Miner, error) {
	miner, err := e.state.GetMiner(id)
	if err != nil {
		return nil, err
	}
	if miner == nil {
		return nil, ErrMinerNotPledged
	}
	if miner.MaxDebtAmount == nil {
		miner.MaxDebtAmount = big.NewInt(0)
	}
	if miner.MinLendAmount == nil {
		miner.MinLendAmount = big.NewInt(0)
	}
	return miner, nil
}

func (e *Engine) ensureTreasury() (*Treasury, error) {
	treasury, err := e.state.GetTreasury()
	if err != nil {
		return nil, err
	}
	if treasury == nil {
		treasury = &Treasury{
			MaxDebtRate:   DefaultMaxDebtRate,
			FeeRate:       DefaultFeeRate,
			MinLendAmount: new(big.Int).Set(DefaultMinLendAmount),
			FeeBalance:    big.NewInt(0),
		}
		if err := e.state.PutTreasury(treasury); err != nil {
			return nil, err
		}
	}
	if treasury.MinLendAmount == nil {
		treasury.MinLendAmount = big.NewInt(0)
	}
	if treasury.FeeBalance == nil {
		treasury.FeeBalance = big.NewInt(0)
	}
	return treasury, nil
}

func (e *Engine) loadAccount(addr address.Address) (*types.Account, error) {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return types.EnsureAccount(acc), nil
}

// accountBook deduplicates account loads inside one operation so transfers
// between aliased parties compose instead of overwriting each other.
type accountBook struct {
	engine *Engine
	open   map[address.Address]*types.Account
	order  []address.Address
}

func newAccountBook(e *Engine) *accountBook {
	return &accountBook{engine: e, open: make(map[address.Address]*types.Account)}
}

func (b *accountBook) alias(addr address.Address, acc *types.Account) error {
	if existing, ok := b.open[addr]; ok && existing != acc {
		return fmt.Errorf("account %s already open", addr)
	}
	if _, ok := b.open[addr]; !ok {
		b.open[addr] = acc
		b.order = append(b.order, addr)
	}
	return nil
}

func (b *accountBook) load(addr address.Address) (*types.Account, error) {
	if acc, ok := b.open[addr]; ok {
		return acc, nil
	}
	acc, err := b.engine.loadAccount(addr)
	if err != nil {
		return nil, err
	}
	b.open[addr] = acc
	b.order = append(b.order, addr)
	return acc, nil
}

func (b *accountBook) flush() error {
	for _, addr := range b.order {
		if err := b.engine.state.PutAccount(addr, b.open[addr]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) collateralCeiling(ctx context.Context, id abi.ActorID, maxDebtRate uint64) (*big.Int, error) {
	if e.oracle == nil {
		return nil, fmt.Errorf("%w: no oracle configured", ErrOracleUnavailable)
	}
	value, err := e.oracle.CollateralValue(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrOracleUnavailable, err)
	}
	if value.Int == nil {
		return nil, fmt.Errorf("%w: empty collateral value", ErrOracleUnavailable)
	}
	ceiling := new(big.Int).Mul(value.Int, new(big.Int).SetUint64(maxDebtRate))
	ceiling.Quo(ceiling, big.NewInt(RateBase))
	return ceiling, nil
}

// aggregateOwed projects the miner's total principal and owed amounts at
// now without mutating any loan.
func (e *Engine) aggregateOwed(miner *Miner, now int64) (MinerOwed, error) {
	return e.aggregateOwedExcluding(miner, now, address.Undef)
}

func (e *Engine) aggregateOwedExcluding(miner *Miner, now int64, skip address.Address) (MinerOwed, error) {
	total := MinerOwed{Principal: big.NewInt(0), Owed: big.NewInt(0)}
	for _, lender := range miner.Lenders.List() {
		if lender == skip {
			continue
		}
		loan, err := e.state.GetLoan(lender, miner.ID)
		if err != nil {
			return total, err
		}
		if loan == nil || loan.LastAmount == nil || loan.LastAmount.Sign() == 0 {
			continue
		}
		projected, err := accrueAmount(loan.LastAmount, miner.LoanInterestRate, now-loan.LastUpdateTime)
		if err != nil {
			return total, err
		}
		total.Principal.Add(total.Principal, loan.PrincipalAmount)
		total.Owed.Add(total.Owed, projected)
	}
	return total, nil
}

func maxBigInt(a, b *big.Int) *big.Int {
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		b = big.NewInt(0)
	}
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}
