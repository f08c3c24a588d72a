// Package state persists ledger records as JSON documents in a key-value
// store.
package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"

	"filpledge/core/types"
	"filpledge/native/beneficiary"
	"filpledge/storage"
)

// Store adapts a storage.Database to the ledger engine's State interface.
// Absent records are reported as (nil, nil).
type Store struct {
	db storage.Database
}

func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func minerKey(id abi.ActorID) []byte {
	return []byte(fmt.Sprintf("miner/%d", id))
}

func loanKey(lender address.Address, id abi.ActorID) []byte {
	return []byte(fmt.Sprintf("loan/%s/%d", lender, id))
}

func saleKey(seller address.Address, id abi.ActorID) []byte {
	return []byte(fmt.Sprintf("sale/%s/%d", seller, id))
}

func accountKey(addr address.Address) []byte {
	return []byte(fmt.Sprintf("acct/%s", addr))
}

var treasuryKey = []byte("treasury")

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) put(key []byte, in interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.db.Put(key, raw)
}

func (s *Store) GetMiner(id abi.ActorID) (*beneficiary.Miner, error) {
	var miner beneficiary.Miner
	ok, err := s.get(minerKey(id), &miner)
	if err != nil || !ok {
		return nil, err
	}
	return &miner, nil
}

func (s *Store) PutMiner(miner *beneficiary.Miner) error {
	return s.put(minerKey(miner.ID), miner)
}

func (s *Store) DeleteMiner(id abi.ActorID) error {
	return s.db.Delete(minerKey(id))
}

func (s *Store) GetLoan(lender address.Address, id abi.ActorID) (*beneficiary.Loan, error) {
	var loan beneficiary.Loan
	ok, err := s.get(loanKey(lender, id), &loan)
	if err != nil || !ok {
		return nil, err
	}
	return &loan, nil
}

func (s *Store) PutLoan(loan *beneficiary.Loan) error {
	return s.put(loanKey(loan.Lender, loan.MinerID), loan)
}

func (s *Store) DeleteLoan(lender address.Address, id abi.ActorID) error {
	return s.db.Delete(loanKey(lender, id))
}

func (s *Store) GetSale(seller address.Address, id abi.ActorID) (*beneficiary.Sale, error) {
	var sale beneficiary.Sale
	ok, err := s.get(saleKey(seller, id), &sale)
	if err != nil || !ok {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) PutSale(sale *beneficiary.Sale) error {
	return s.put(saleKey(sale.Seller, sale.MinerID), sale)
}

func (s *Store) DeleteSale(seller address.Address, id abi.ActorID) error {
	return s.db.Delete(saleKey(seller, id))
}

func (s *Store) GetTreasury() (*beneficiary.Treasury, error) {
	var treasury beneficiary.Treasury
	ok, err := s.get(treasuryKey, &treasury)
	if err != nil || !ok {
		return nil, err
	}
	return &treasury, nil
}

func (s *Store) PutTreasury(treasury *beneficiary.Treasury) error {
	return s.put(treasuryKey, treasury)
}

func (s *Store) GetAccount(addr address.Address) (*types.Account, error) {
	var account types.Account
	ok, err := s.get(accountKey(addr), &account)
	if err != nil || !ok {
		return nil, err
	}
	return &account, nil
}

func (s *Store) PutAccount(addr address.Address, account *types.Account) error {
	return s.put(accountKey(addr), account)
}
