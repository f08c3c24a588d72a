package rpc

import (
	"net/http"

	"github.com/filecoin-project/go-state-types/abi"
)

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if !s.decode(w, r, &req) {
		return
	}
	seller, err := parseAddr("seller", req.Seller)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	price, err := parseAmount("pricePerFil", req.PricePerFil)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.engine.SellLoan(r.Context(), seller, abi.ActorID(req.MinerID), amount, price); err != nil {
		s.writeEngineError(w, "sell", err)
		return
	}
	s.ok(w, "sell")
}

func (s *Server) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, err := minerIDParam(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	seller, err := sellerParam(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	sale, err := s.engine.GetSale(r.Context(), seller, id)
	if err != nil {
		s.writeEngineError(w, "get_sale", err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (s *Server) handleModifySale(w http.ResponseWriter, r *http.Request) {
	id, err := minerIDParam(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	seller, err := sellerParam(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req sellRequest
	if !s.decode(w, r, &req) {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	price, err := parseAmount("pricePerFil", req.PricePerFil)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.engine.ModifyLoanSale(r.Context(), seller, id, amount, price); err != nil {
		s.writeEngineError(w, "modify_sale", err)
		return
	}
	s.ok(w, "modify_sale")
}

func (s *Server) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	id, err := minerIDParam(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	seller, err := sellerParam(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.engine.CancelLoanSale(r.Context(), seller, id); err != nil {
		s.writeEngineError(w, "cancel_sale", err)
		return
	}
	s.ok(w, "cancel_sale")
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	id, err := minerIDParam(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	seller, err := sellerParam(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req buyRequest
	if !s.decode(w, r, &req) {
		return
	}
	buyer, err := parseAddr("buyer", req.Buyer)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	expectedPrice, err := parseAmount("expectedPrice", req.ExpectedPrice)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	payment, err := parseAmount("payment", req.Payment)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.engine.BuyLoan(r.Context(), buyer, seller, id, amount, expectedPrice, payment); err != nil {
		s.writeEngineError(w, "buy", err)
		return
	}
	s.ok(w, "buy")
}
