package state

import (
	"math/big"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/stretchr/testify/require"

	"filpledge/core/types"
	"filpledge/native/beneficiary"
	"filpledge/storage"
)

func testAddr(t *testing.T, id uint64) address.Address {
	t.Helper()
	addr, err := address.NewIDAddress(id)
	require.NoError(t, err)
	return addr
}

func TestStoreMinerRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())

	got, err := store.GetMiner(1000)
	require.NoError(t, err)
	require.Nil(t, got)

	miner := &beneficiary.Miner{
		ID:               1000,
		Delegator:        testAddr(t, 100),
		MaxDebtAmount:    big.NewInt(1_000_000),
		LoanInterestRate: 100_000,
		ReceiveAddress:   testAddr(t, 101),
		MaxLenderCount:   5,
		MinLendAmount:    big.NewInt(10),
	}
	require.NoError(t, miner.Lenders.Add(testAddr(t, 200), 5))
	require.NoError(t, store.PutMiner(miner))

	got, err = store.GetMiner(1000)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, miner.Delegator, got.Delegator)
	require.Zero(t, miner.MaxDebtAmount.Cmp(got.MaxDebtAmount))
	require.True(t, got.Lenders.Contains(testAddr(t, 200)))

	require.NoError(t, store.DeleteMiner(1000))
	got, err = store.GetMiner(1000)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreLoanKeyedByLenderAndMiner(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	lender := testAddr(t, 200)
	other := testAddr(t, 201)

	loan := &beneficiary.Loan{
		Lender:          lender,
		MinerID:         1000,
		PrincipalAmount: big.NewInt(500),
		LastAmount:      big.NewInt(510),
		LastUpdateTime:  1_700_000_000,
	}
	require.NoError(t, store.PutLoan(loan))

	got, err := store.GetLoan(lender, 1000)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Zero(t, got.LastAmount.Cmp(big.NewInt(510)))

	got, err = store.GetLoan(other, 1000)
	require.NoError(t, err)
	require.Nil(t, got)
	got, err = store.GetLoan(lender, 1001)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreTreasuryAndAccounts(t *testing.T) {
	store := NewStore(storage.NewMemDB())

	treasury, err := store.GetTreasury()
	require.NoError(t, err)
	require.Nil(t, treasury)

	require.NoError(t, store.PutTreasury(&beneficiary.Treasury{
		Foundation:    testAddr(t, 500),
		MaxDebtRate:   600_000,
		FeeRate:       100_000,
		MinLendAmount: big.NewInt(1),
		FeeBalance:    big.NewInt(42),
	}))
	treasury, err = store.GetTreasury()
	require.NoError(t, err)
	require.NotNil(t, treasury)
	require.Zero(t, treasury.FeeBalance.Cmp(big.NewInt(42)))

	addr := testAddr(t, 300)
	acc, err := store.GetAccount(addr)
	require.NoError(t, err)
	require.Nil(t, acc)
	require.NoError(t, store.PutAccount(addr, &types.Account{Balance: big.NewInt(77)}))
	acc, err = store.GetAccount(addr)
	require.NoError(t, err)
	require.Zero(t, acc.Balance.Cmp(big.NewInt(77)))
}

func TestStoreSaleRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	seller := testAddr(t, 200)

	sale := &beneficiary.Sale{
		Seller:          seller,
		MinerID:         1000,
		AmountRemaining: big.NewInt(123),
		PricePerFil:     big.NewInt(456),
		ListedAt:        1_700_000_000,
	}
	require.NoError(t, store.PutSale(sale))
	got, err := store.GetSale(seller, 1000)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Zero(t, got.PricePerFil.Cmp(big.NewInt(456)))

	require.NoError(t, store.DeleteSale(seller, 1000))
	got, err = store.GetSale(seller, 1000)
	require.NoError(t, err)
	require.Nil(t, got)
}
