package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/filecoin-project/go-address"

	"filpledge/config"
	"filpledge/core/events"
	"filpledge/native/beneficiary"
	"filpledge/native/handoff"
	"filpledge/observability/logging"
	"filpledge/observability/otel"
	"filpledge/oracle"
	"filpledge/rpc"
	"filpledge/state"
	"filpledge/storage"
)

const eventBufferSize = 4096

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("FILPLEDGE_ENV"))
	logger := logging.Setup("filpledged", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := otel.Init(ctx, otel.Config{
		ServiceName: "filpledged",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		logger.Error("Failed to initialise telemetry", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := openDatabase(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	engine, recorder, err := buildEngine(ctx, cfg, logger, db)
	if err != nil {
		logger.Error("Failed to build ledger engine", slog.Any("error", err))
		os.Exit(1)
	}

	limiter := rpc.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	server := rpc.NewServer(engine, recorder, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Ledger API listening", slog.String("addr", cfg.ListenAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown failed", slog.Any("error", err))
	}
}

func openDatabase(dataDir string) (storage.Database, error) {
	if dataDir == ":memory:" {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return storage.NewLevelDB(filepath.Join(dataDir, "ledger"))
}

func buildEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, db storage.Database) (*beneficiary.Engine, *events.Recorder, error) {
	treasuryAddr, err := address.NewFromString(cfg.Treasury.Address)
	if err != nil {
		return nil, nil, fmt.Errorf("treasury address: %w", err)
	}
	foundation, err := address.NewFromString(cfg.Treasury.Foundation)
	if err != nil {
		return nil, nil, fmt.Errorf("foundation address: %w", err)
	}
	minLend, ok := cfg.MinLendAmount()
	if !ok {
		return nil, nil, fmt.Errorf("treasury min lend amount: invalid %q", cfg.Treasury.MinLendAmount)
	}

	engine := beneficiary.NewEngine(treasuryAddr)
	engine.SetState(state.NewStore(db))

	recorder := events.NewRecorder(eventBufferSize)
	engine.SetEmitter(recorder)

	if cfg.Oracle.Endpoint != "" {
		lotus, err := oracle.DialLotus(ctx, cfg.Oracle.Endpoint, cfg.Oracle.Token)
		if err != nil {
			return nil, nil, fmt.Errorf("collateral oracle: %w", err)
		}
		engine.SetOracle(lotus)
		logger.Info("Collateral oracle connected",
			slog.String("endpoint", cfg.Oracle.Endpoint),
			logging.Secret("token", cfg.Oracle.Token))
	} else {
		logger.Warn("No oracle endpoint configured; pledge and lend admission will fail")
	}

	if signer := strings.TrimSpace(cfg.Handoff.SignerAddress); signer != "" {
		verifier := handoff.Secp256k1Verifier{Signer: common.HexToAddress(signer)}
		engine.SetAuthority(handoff.NewAuthority(verifier, time.Duration(cfg.Handoff.WindowSeconds)*time.Second))
	} else {
		logger.Warn("No handoff signer configured; pledge proofs are not checked")
	}

	if err := engine.InitTreasury(foundation, cfg.Treasury.MaxDebtRate, cfg.Treasury.FeeRate, minLend); err != nil {
		return nil, nil, fmt.Errorf("init treasury: %w", err)
	}
	return engine, recorder, nil
}
