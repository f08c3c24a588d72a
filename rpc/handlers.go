package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/go-chi/chi/v5"

	"filpledge/native/beneficiary"
)

func minerIDParam(r *http.Request) (abi.ActorID, error) {
	raw := chi.URLParam(r, "minerID")
	id, err := strconv.ParseUint(strings.TrimPrefix(raw, "f0"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("minerID: invalid actor id %q", raw)
	}
	return abi.ActorID(id), nil
}

func sellerParam(r *http.Request) (address.Address, error) {
	return parseAddr("seller", chi.URLParam(r, "seller"))
}

func (s *Server) handlePledge(w http.ResponseWriter, r *http.Request) {
	id, err := minerIDParam(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req pledgeRequest
	if !s.decode(w, r, &req) {
		return
	}
	delegator, err := parseAddr("delegator", req.Delegator)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	receive, err := parseAddr("receiveAddress", req.ReceiveAddress)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	maxDebt, err := parseAmount("maxDebtAmount", req.MaxDebtAmount)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	minLend, err := parseOptionalAmount("minLendAmount", req.MinLendAmount)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	initialLend, err := parseOptionalAmount("initialLendAmount", req.InitialLend)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	proof, err := hex.DecodeString(strings.TrimPrefix(req.Proof, "0x"))
	if err != nil {
		s.writeBadRequest(w, fmt.Errorf("proof: invalid hex: %w", err))
		return
	}
	params := beneficiary.PledgeParams{
		MinerID:           id,
		Delegator:         delegator,
		Proof:             proof,
		ProofTimestamp:    req.ProofTimestamp,
		MaxDebtAmount:     maxDebt,
		LoanInterestRate:  req.LoanInterestRate,
		ReceiveAddress:    receive,
		Disabled:          req.Disabled,
		MaxLenderCount:    req.MaxLenderCount,
		MinLendAmount:     minLend,
		InitialLendAmount: initialLend,
	}
	if err := s.engine.Pledge(r.Context(), params); err != nil {
		s.writeEngineError(w, "pledge", err)
		return
	}
	s.ok(w, "pledge")
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	id, err := minerIDParam(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req releaseRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.engine.Release(r.Context(), caller, id); err != nil {
		s.writeEngineError(w, "release", err)
		return
	}
	s.ok(w, "release")
}

func (s *Server) handleLend(w http.ResponseWriter, r *http.Request) {
	id, err := minerIDParam(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req lendRequest
	if !s.decode(w, r, &req) {
		return
	}
	lender, err := parseAddr("lender", req.Lender)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.engine.Lend(r.Context(), lender, id, req.ExpectedRate, amount); err != nil {
		s.writeEngineError(w, "lend", err)
		return
	}
	s.ok(w, "lend")
}

func (s *Server) handleMinerParams(w http.ResponseWriter, r *http.Request) {
	id, err := minerIDParam(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req minerParamsRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	ctx := r.Context()
	apply := func(name string, fn func() error) bool {
		if err := fn(); err != nil {
			s.writeEngineError(w, "miner_params."+name, err)
			return false
		}
		return true
	}
	if req.Delegator != nil {
		next, err := parseAddr("delegator", *req.Delegator)
		if err != nil {
			s.writeBadRequest(w, err)
			return
		}
		if !apply("delegator", func() error {
			return s.engine.ChangeMinerDelegator(ctx, caller, id, next)
		}) {
			return
		}
		// Subsequent fields in the same request are gated on the new
		// delegator.
		caller = next
	}
	if req.MaxDebtAmount != nil {
		amount, err := parseAmount("maxDebtAmount", *req.MaxDebtAmount)
		if err != nil {
			s.writeBadRequest(w, err)
			return
		}
		if !apply("maxDebtAmount", func() error {
			return s.engine.ChangeMinerMaxDebtAmount(ctx, caller, id, amount)
		}) {
			return
		}
	}
	if req.LoanInterestRate != nil {
		if !apply("loanInterestRate", func() error {
			return s.engine.ChangeMinerLoanInterestRate(ctx, caller, id, *req.LoanInterestRate)
		}) {
			return
		}
	}
	if req.ReceiveAddress != nil {
		receive, err := parseAddr("receiveAddress", *req.ReceiveAddress)
		if err != nil {
			s.writeBadRequest(w, err)
			return
		}
		if !apply("receiveAddress", func() error {
			return s.engine.ChangeMinerReceiveAddress(ctx, caller, id, receive)
		}) {
			return
		}
	}
	if req.Disabled != nil {
		if !apply("disabled", func() error {
			return s.engine.ChangeMinerDisabled(ctx, caller, id, *req.Disabled)
		}) {
			return
		}
	}
	if req.MaxLenderCount != nil {
		if !apply("maxLenderCount", func() error {
			return s.engine.ChangeMinerMaxLenderCount(ctx, caller, id, *req.MaxLenderCount)
		}) {
			return
		}
	}
	if req.MinLendAmount != nil {
		amount, err := parseAmount("minLendAmount", *req.MinLendAmount)
		if err != nil {
			s.writeBadRequest(w, err)
			return
		}
		if !apply("minLendAmount", func() error {
			return s.engine.ChangeMinerMinLendAmount(ctx, caller, id, amount)
		}) {
			return
		}
	}
	s.ok(w, "miner_params")
}

func (s *Server) handleGetMiner(w http.ResponseWriter, r *http.Request) {
	id, err := minerIDParam(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	miner, err := s.engine.GetMiner(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, "get_miner", err)
		return
	}
	writeJSON(w, http.StatusOK, miner)
}

func (s *Server) handleMinerOwed(w http.ResponseWriter, r *http.Request) {
	id, err := minerIDParam(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	owed, err := s.engine.CurrentMinerOwed(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, "miner_owed", err)
		return
	}
	writeJSON(w, http.StatusOK, owedResponse{
		Principal: owed.Principal.String(),
		Owed:      owed.Owed.String(),
	})
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := minerIDParam(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	lender, err := parseAddr("lender", chi.URLParam(r, "lender"))
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	loan, err := s.engine.GetLoan(r.Context(), lender, id)
	if err != nil {
		s.writeEngineError(w, "get_loan", err)
		return
	}
	owed, err := s.engine.CurrentLenderOwed(r.Context(), lender, id)
	if err != nil {
		s.writeEngineError(w, "get_loan", err)
		return
	}
	writeJSON(w, http.StatusOK, loanResponse{
		Lender:         loan.Lender.String(),
		MinerID:        uint64(loan.MinerID),
		Principal:      loan.PrincipalAmount.String(),
		LastAmount:     loan.LastAmount.String(),
		LastUpdateTime: loan.LastUpdateTime,
		CurrentOwed:    owed.String(),
	})
}

func (s *Server) handleRepayment(w http.ResponseWriter, r *http.Request) {
	var req repaymentRequest
	if !s.decode(w, r, &req) {
		return
	}
	payer, err := parseAddr("payer", req.Payer)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	lender, err := parseAddr("lender", req.Lender)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	payment, err := parseAmount("payment", req.Payment)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.engine.DirectRepayment(r.Context(), payer, lender, abi.ActorID(req.MinerID), payment); err != nil {
		s.writeEngineError(w, "repayment", err)
		return
	}
	s.refreshFeeGauge(r.Context())
	s.ok(w, "repayment")
}

func (s *Server) handleBatchRepayment(w http.ResponseWriter, r *http.Request) {
	var req batchRepaymentRequest
	if !s.decode(w, r, &req) {
		return
	}
	payer, err := parseAddr("payer", req.Payer)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	lenders := make([]address.Address, len(req.Lenders))
	for i, raw := range req.Lenders {
		lenders[i], err = parseAddr("lenders", raw)
		if err != nil {
			s.writeBadRequest(w, err)
			return
		}
	}
	ids := make([]abi.ActorID, len(req.MinerID))
	for i, raw := range req.MinerID {
		ids[i] = abi.ActorID(raw)
	}
	amounts := make([]*big.Int, len(req.Amounts))
	for i, raw := range req.Amounts {
		amounts[i], err = parseAmount("amounts", raw)
		if err != nil {
			s.writeBadRequest(w, err)
			return
		}
	}
	payment, err := parseAmount("payment", req.Payment)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.engine.BatchDirectRepayment(r.Context(), payer, lenders, ids, amounts, payment); err != nil {
		s.writeEngineError(w, "batch_repayment", err)
		return
	}
	s.refreshFeeGauge(r.Context())
	s.ok(w, "batch_repayment")
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, s.recorder.Events())
}
