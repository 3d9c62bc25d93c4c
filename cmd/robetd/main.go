package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/BakaOtaku/robet-ai/params"
	"github.com/BakaOtaku/robet-ai/pkg/api"
	"github.com/BakaOtaku/robet-ai/pkg/crypto"
	"github.com/BakaOtaku/robet-ai/pkg/exchange"
	"github.com/BakaOtaku/robet-ai/pkg/ledger"
	"github.com/BakaOtaku/robet-ai/pkg/storage"
	"github.com/BakaOtaku/robet-ai/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/robetd.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	// ---- Ledger: pebble store + deposit journal ----
	store, err := storage.Open(cfg.Store.Path)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Store.Path, "err", err)
	}
	defer store.Close()

	journal, err := storage.NewFileJournal(cfg.Store.JournalPath)
	if err != nil {
		sugar.Fatalw("journal_open_failed", "path", cfg.Store.JournalPath, "err", err)
	}
	defer journal.Close()

	ldg := ledger.New(store, journal, util.RealClock{}, sugar)

	// ---- Exchange core ----
	verifier := crypto.NewVerifier(cfg.Chains)
	for _, spec := range cfg.Chains {
		sugar.Infow("chain_registered", "chain", spec.ID, "scheme", spec.Scheme, "trust", spec.Trust)
	}
	x := exchange.New(ldg, verifier, cfg, util.RealClock{}, sugar)

	// ---- API Server ----
	apiServer := api.NewServer(x, cfg, sugar)

	// Market-data fanout: exchange events feed the WebSocket hub.
	x.OnBook = apiServer.BroadcastBook
	x.OnTrade = apiServer.BroadcastTrade
	x.OnSettle = apiServer.BroadcastSettlement

	if cfg.API.AdminSecret == "" {
		sugar.Warn("ADMIN_JWT_SECRET not set - market lifecycle and deposit endpoints disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := apiServer.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("exchange_started",
		"addr", cfg.API.Addr,
		"db", cfg.Store.Path,
		"chains", len(cfg.Chains))

	<-ctx.Done()
	sugar.Info("shutting down")
}
