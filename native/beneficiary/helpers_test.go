package beneficiary

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	fbig "github.com/filecoin-project/go-state-types/big"

	"filpledge/core/types"
)

type loanStateKey struct {
	lender address.Address
	id     abi.ActorID
}

type mockEngineState struct {
	miners   map[abi.ActorID]*Miner
	loans    map[loanStateKey]*Loan
	sales    map[loanStateKey]*Sale
	treasury *Treasury
	accounts map[address.Address]*types.Account
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		miners:   make(map[abi.ActorID]*Miner),
		loans:    make(map[loanStateKey]*Loan),
		sales:    make(map[loanStateKey]*Sale),
		accounts: make(map[address.Address]*types.Account),
	}
}

func (m *mockEngineState) GetMiner(id abi.ActorID) (*Miner, error) {
	if miner, ok := m.miners[id]; ok {
		return miner.Clone(), nil
	}
	return nil, nil
}

func (m *mockEngineState) PutMiner(miner *Miner) error {
	m.miners[miner.ID] = miner.Clone()
	return nil
}

func (m *mockEngineState) DeleteMiner(id abi.ActorID) error {
	delete(m.miners, id)
	return nil
}

func (m *mockEngineState) GetLoan(lender address.Address, id abi.ActorID) (*Loan, error) {
	if loan, ok := m.loans[loanStateKey{lender, id}]; ok {
		return loan.Clone(), nil
	}
	return nil, nil
}

func (m *mockEngineState) PutLoan(loan *Loan) error {
	m.loans[loanStateKey{loan.Lender, loan.MinerID}] = loan.Clone()
	return nil
}

func (m *mockEngineState) DeleteLoan(lender address.Address, id abi.ActorID) error {
	delete(m.loans, loanStateKey{lender, id})
	return nil
}

func (m *mockEngineState) GetSale(seller address.Address, id abi.ActorID) (*Sale, error) {
	if sale, ok := m.sales[loanStateKey{seller, id}]; ok {
		return sale.Clone(), nil
	}
	return nil, nil
}

func (m *mockEngineState) PutSale(sale *Sale) error {
	m.sales[loanStateKey{sale.Seller, sale.MinerID}] = sale.Clone()
	return nil
}

func (m *mockEngineState) DeleteSale(seller address.Address, id abi.ActorID) error {
	delete(m.sales, loanStateKey{seller, id})
	return nil
}

func (m *mockEngineState) GetTreasury() (*Treasury, error) {
	if m.treasury == nil {
		return nil, nil
	}
	return m.treasury.Clone(), nil
}

func (m *mockEngineState) PutTreasury(treasury *Treasury) error {
	m.treasury = treasury.Clone()
	return nil
}

func (m *mockEngineState) GetAccount(addr address.Address) (*types.Account, error) {
	if acc, ok := m.accounts[addr]; ok {
		return &types.Account{Balance: new(big.Int).Set(acc.Balance)}, nil
	}
	return nil, nil
}

func (m *mockEngineState) PutAccount(addr address.Address, account *types.Account) error {
	m.accounts[addr] = &types.Account{Balance: new(big.Int).Set(account.Balance)}
	return nil
}

func (m *mockEngineState) fund(addr address.Address, amount *big.Int) {
	m.accounts[addr] = &types.Account{Balance: new(big.Int).Set(amount)}
}

func (m *mockEngineState) balance(addr address.Address) *big.Int {
	if acc, ok := m.accounts[addr]; ok {
		return new(big.Int).Set(acc.Balance)
	}
	return big.NewInt(0)
}

type stubOracle struct {
	value *big.Int
	err   error
}

func (o stubOracle) CollateralValue(context.Context, abi.ActorID) (abi.TokenAmount, error) {
	if o.err != nil {
		return abi.TokenAmount{}, o.err
	}
	return fbig.NewFromGo(o.value), nil
}

// stubAuthority mimics the one-time proof semantics: Admit reserves, Release
// hands the reservation back.
type stubAuthority struct {
	err  error
	seen map[string]struct{}
}

func proofKey(id abi.ActorID, delegator address.Address, timestamp int64) string {
	return fmt.Sprintf("%d/%s/%d", id, delegator, timestamp)
}

func (a *stubAuthority) Admit(id abi.ActorID, delegator address.Address, _ []byte, timestamp int64) error {
	if a.err != nil {
		return a.err
	}
	if a.seen == nil {
		a.seen = make(map[string]struct{})
	}
	key := proofKey(id, delegator, timestamp)
	if _, ok := a.seen[key]; ok {
		return errors.New("proof already used")
	}
	a.seen[key] = struct{}{}
	return nil
}

func (a *stubAuthority) Release(id abi.ActorID, delegator address.Address, timestamp int64) {
	delete(a.seen, proofKey(id, delegator, timestamp))
}

type fakeClock struct {
	now int64
}

func (c *fakeClock) Now() int64      { return c.now }
func (c *fakeClock) Advance(d int64) { c.now += d }

func idAddr(t *testing.T, id uint64) address.Address {
	t.Helper()
	addr, err := address.NewIDAddress(id)
	if err != nil {
		t.Fatalf("id address %d: %v", id, err)
	}
	return addr
}

func fil(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

// testEngine builds an engine over a fresh mock state with a deterministic
// clock and a large collateral value.
func testEngine(t *testing.T) (*Engine, *mockEngineState, *fakeClock) {
	t.Helper()
	st := newMockEngineState()
	clock := &fakeClock{now: 1_700_000_000}
	engine := NewEngine(idAddr(t, 900))
	engine.SetState(st)
	engine.SetOracle(stubOracle{value: fil(10_000)})
	engine.SetNowFunc(clock.Now)
	return engine, st, clock
}

func pledgeTestMiner(t *testing.T, engine *Engine, id abi.ActorID, delegator, receive address.Address) {
	t.Helper()
	err := engine.Pledge(context.Background(), PledgeParams{
		MinerID:          id,
		Delegator:        delegator,
		MaxDebtAmount:    fil(100),
		LoanInterestRate: 100_000,
		ReceiveAddress:   receive,
		MaxLenderCount:   3,
	})
	if err != nil {
		t.Fatalf("pledge miner %d: %v", id, err)
	}
}
