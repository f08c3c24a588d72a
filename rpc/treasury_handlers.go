package rpc

import (
	"math/big"
	"net/http"
)

func (s *Server) handleGetTreasury(w http.ResponseWriter, r *http.Request) {
	treasury, err := s.engine.TreasuryState(r.Context())
	if err != nil {
		s.writeEngineError(w, "get_treasury", err)
		return
	}
	if treasury.FeeBalance != nil {
		fil, _ := new(big.Float).Quo(
			new(big.Float).SetInt(treasury.FeeBalance),
			big.NewFloat(1e18),
		).Float64()
		s.metrics.SetFeeBalanceFIL(fil)
	}
	writeJSON(w, http.StatusOK, treasury)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddr("caller", req.Caller)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	to, err := parseAddr("to", req.To)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.engine.Withdraw(r.Context(), caller, to, amount); err != nil {
		s.writeEngineError(w, "withdraw", err)
		return
	}
	s.refreshFeeGauge(r.Context())
	s.ok(w, "withdraw")
}

func (s *Server) handleTreasuryParams(w http.ResponseWriter, r *http.Request) {
	var req treasuryParamsRequest
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
			s.writeEngineError(w, "treasury_params."+name, err)
			return false
		}
		return true
	}
	if req.MaxDebtRate != nil {
		if !apply("maxDebtRate", func() error {
			return s.engine.ChangeMaxDebtRate(ctx, caller, *req.MaxDebtRate)
		}) {
			return
		}
	}
	if req.FeeRate != nil {
		if !apply("feeRate", func() error {
			return s.engine.ChangeFeeRate(ctx, caller, *req.FeeRate)
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
			return s.engine.ChangeMinLendAmount(ctx, caller, amount)
		}) {
			return
		}
	}
	// Foundation rotation last so earlier fields stay gated on the caller.
	if req.Foundation != nil {
		next, err := parseAddr("foundation", *req.Foundation)
		if err != nil {
			s.writeBadRequest(w, err)
			return
		}
		if !apply("foundation", func() error {
			return s.engine.ChangeFoundation(ctx, caller, next)
		}) {
			return
		}
	}
	s.ok(w, "treasury_params")
}
