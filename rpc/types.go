package rpc

import (
	"fmt"
	"math/big"

	"github.com/filecoin-project/go-address"
)

// request payloads

type pledgeRequest struct {
	Delegator        string `json:"delegator"`
	Proof            string `json:"proof"`
	ProofTimestamp   int64  `json:"proofTimestamp"`
	MaxDebtAmount    string `json:"maxDebtAmount"`
	LoanInterestRate uint64 `json:"loanInterestRate"`
	ReceiveAddress   string `json:"receiveAddress"`
	Disabled         bool   `json:"disabled"`
	MaxLenderCount   uint64 `json:"maxLenderCount"`
	MinLendAmount    string `json:"minLendAmount,omitempty"`
	InitialLend      string `json:"initialLendAmount,omitempty"`
}

type releaseRequest struct {
	Caller string `json:"caller"`
}

type lendRequest struct {
	Lender       string `json:"lender"`
	ExpectedRate uint64 `json:"expectedRate"`
	Amount       string `json:"amount"`
}

type minerParamsRequest struct {
	Caller string `json:"caller"`

	Delegator        *string `json:"delegator,omitempty"`
	MaxDebtAmount    *string `json:"maxDebtAmount,omitempty"`
	LoanInterestRate *uint64 `json:"loanInterestRate,omitempty"`
	ReceiveAddress   *string `json:"receiveAddress,omitempty"`
	Disabled         *bool   `json:"disabled,omitempty"`
	MaxLenderCount   *uint64 `json:"maxLenderCount,omitempty"`
	MinLendAmount    *string `json:"minLendAmount,omitempty"`
}

type repaymentRequest struct {
	Payer   string `json:"payer"`
	Lender  string `json:"lender"`
	MinerID uint64 `json:"minerId"`
	Payment string `json:"payment"`
}

type batchRepaymentRequest struct {
	Payer   string   `json:"payer"`
	Lenders []string `json:"lenders"`
	MinerID []uint64 `json:"minerIds"`
	Amounts []string `json:"amounts"`
	Payment string   `json:"payment"`
}

type sellRequest struct {
	Seller      string `json:"seller"`
	MinerID     uint64 `json:"minerId"`
	Amount      string `json:"amount"`
	PricePerFil string `json:"pricePerFil"`
}

type buyRequest struct {
	Buyer         string `json:"buyer"`
	Amount        string `json:"amount"`
	ExpectedPrice string `json:"expectedPrice"`
	Payment       string `json:"payment"`
}

type withdrawRequest struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type treasuryParamsRequest struct {
	Caller string `json:"caller"`

	Foundation    *string `json:"foundation,omitempty"`
	MaxDebtRate   *uint64 `json:"maxDebtRate,omitempty"`
	FeeRate       *uint64 `json:"feeRate,omitempty"`
	MinLendAmount *string `json:"minLendAmount,omitempty"`
}

// response payloads

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type owedResponse struct {
	Principal string `json:"principal"`
	Owed      string `json:"owed"`
}

type loanResponse struct {
	Lender         string `json:"lender"`
	MinerID        uint64 `json:"minerId"`
	Principal      string `json:"principal"`
	LastAmount     string `json:"lastAmount"`
	LastUpdateTime int64  `json:"lastUpdateTime"`
	CurrentOwed    string `json:"currentOwed"`
}

// decoding helpers

func parseAddr(field, raw string) (address.Address, error) {
	addr, err := address.NewFromString(raw)
	if err != nil {
		return address.Undef, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	return addr, nil
}

func parseAmount(field, raw string) (*big.Int, error) {
	if raw == "" {
		return nil, fmt.Errorf("%s: amount required", field)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", field, raw)
	}
	return v, nil
}

func parseOptionalAmount(field, raw string) (*big.Int, error) {
	if raw == "" {
		return nil, nil
	}
	return parseAmount(field, raw)
}
