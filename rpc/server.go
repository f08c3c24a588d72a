// Package rpc exposes the debt ledger over HTTP.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"filpledge/core/events"
	"filpledge/native/beneficiary"
	"filpledge/observability/metrics"
)

const requestBodyLimit = 1 << 20 // 1 MiB

// Server routes ledger operations to the engine.
type Server struct {
	engine   *beneficiary.Engine
	recorder *events.Recorder
	logger   *slog.Logger
	metrics  *metrics.BeneficiaryMetrics
}

func NewServer(engine *beneficiary.Engine, recorder *events.Recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:   engine,
		recorder: recorder,
		logger:   logger,
		metrics:  metrics.Beneficiary(),
	}
}

// Router assembles the HTTP routes. The rate limiter may be nil.
func (s *Server) Router(limiter *RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	if limiter != nil {
		r.Use(limiter.Middleware())
	}

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/miners/{minerID}", func(r chi.Router) {
			r.Get("/", s.handleGetMiner)
			r.Get("/owed", s.handleMinerOwed)
			r.Get("/loans/{lender}", s.handleGetLoan)
			r.Post("/pledge", s.handlePledge)
			r.Post("/release", s.handleRelease)
			r.Post("/lend", s.handleLend)
			r.Post("/params", s.handleMinerParams)
		})
		r.Post("/repayments", s.handleRepayment)
		r.Post("/repayments/batch", s.handleBatchRepayment)
		r.Route("/sales", func(r chi.Router) {
			r.Post("/", s.handleSell)
			r.Route("/{seller}/{minerID}", func(r chi.Router) {
				r.Get("/", s.handleGetSale)
				r.Post("/modify", s.handleModifySale)
				r.Post("/cancel", s.handleCancelSale)
				r.Post("/buy", s.handleBuy)
			})
		})
		r.Route("/treasury", func(r chi.Router) {
			r.Get("/", s.handleGetTreasury)
			r.Post("/withdraw", s.handleWithdraw)
			r.Post("/params", s.handleTreasuryParams)
		})
		r.Get("/events", s.handleEvents)
	})

	return otelhttp.NewHandler(r, "filpledge.rpc")
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, requestBodyLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Message: err.Error()})
}

// writeEngineError maps engine failures to stable reason codes and HTTP
// statuses, and records the outcome metric.
func (s *Server) writeEngineError(w http.ResponseWriter, op string, err error) {
	code := beneficiary.ReasonCode(err)
	s.metrics.RecordOperation(op, code)
	if errors.Is(err, beneficiary.ErrOracleUnavailable) {
		s.metrics.RecordOracleFailure()
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("ledger operation failed", "op", op, "code", code, "err", err)
	} else {
		s.logger.Info("ledger operation rejected", "op", op, "code", code)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

func (s *Server) ok(w http.ResponseWriter, op string) {
	s.metrics.RecordOperation(op, "ok")
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// refreshFeeGauge republishes the treasury fee balance after operations that
// move fees.
func (s *Server) refreshFeeGauge(ctx context.Context) {
	treasury, err := s.engine.TreasuryState(ctx)
	if err != nil || treasury == nil || treasury.FeeBalance == nil {
		return
	}
	fil, _ := new(big.Float).Quo(
		new(big.Float).SetInt(treasury.FeeBalance),
		big.NewFloat(1e18),
	).Float64()
	s.metrics.SetFeeBalanceFIL(fil)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, beneficiary.ErrNotDelegator),
		errors.Is(err, beneficiary.ErrNotFoundation),
		errors.Is(err, beneficiary.ErrHandoffRejected):
		return http.StatusForbidden
	case errors.Is(err, beneficiary.ErrMinerNotPledged),
		errors.Is(err, beneficiary.ErrLoanNotFound),
		errors.Is(err, beneficiary.ErrSaleNotFound):
		return http.StatusNotFound
	case errors.Is(err, beneficiary.ErrAlreadyPledged),
		errors.Is(err, beneficiary.ErrSaleExists):
		return http.StatusConflict
	case errors.Is(err, beneficiary.ErrOracleUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, beneficiary.ErrNilState),
		errors.Is(err, beneficiary.ErrAccrualOverflow):
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}
