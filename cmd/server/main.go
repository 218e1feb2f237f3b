package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	_ "github.com/lib/pq"

	"beskarliquidator/internal/api"
	"beskarliquidator/internal/config"
	"beskarliquidator/internal/domain"
	"beskarliquidator/internal/events"
	"beskarliquidator/internal/lifecycle"
	"beskarliquidator/internal/liquidation"
	"beskarliquidator/internal/ltv"
	"beskarliquidator/internal/priceagg"
	"beskarliquidator/internal/store"
	"beskarliquidator/internal/venue"
	"beskarliquidator/pkg/ratelimit"
	"beskarliquidator/pkg/utils"

	busclient "beskarliquidator/internal/bus"
)

const liquidationQueueDepth = 256

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := utils.InitLogger(utils.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	defer log.Sync()

	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatal("failed to connect to database", utils.Err(err))
	}
	defer db.Close()
	log.Info("connected to database", utils.String("dsn", cfg.Database.DSNWithoutPassword()))

	clock := utils.NewSystemClock()
	st := store.New(db)
	ownerID := newOwnerID()

	aggregator := priceagg.New(clock, cfg.Policy.MaxTickAge)

	bus := busclient.New(cfg.Bus.Endpoint, clock, log.WithComponent("bus"))
	if err := bus.Connect(context.Background()); err != nil {
		log.Fatal("failed to connect to message bus", utils.Err(err))
	}
	defer bus.Close()

	publisher := events.New(bus, cfg.Bus.LoanEventsTopic, log.WithComponent("events"))

	venues := venue.Registry{
		domain.VenueMosEspa: venue.NewMosEspaClient(
			cfg.Venues.MosEspaURL, cfg.Policy.VenueHTTPTimeout, ratelimit.NewRateLimiter(10, 20)),
		domain.VenueBlackSpire: venue.NewBlackSpireClient(
			cfg.Venues.BlackSpireURL, cfg.Policy.VenueHTTPTimeout, ratelimit.NewRateLimiter(10, 20)),
	}

	workerCfg := liquidation.DefaultConfig(ownerID)
	workerCfg.TradeBackoffMax = cfg.Policy.VenueRetryCap

	pool := liquidation.NewPool(
		context.Background(), cfg.Policy.LiquidationWorkers, liquidationQueueDepth,
		st, aggregator, venues, publisher, clock, log, ownerID, workerCfg,
	)

	evaluator := ltv.New(st, aggregator, pool, publisher, ltv.Thresholds{
		ActivationMax:  percentToFraction(cfg.Policy.ActivationThresholdPct),
		LiquidationMin: percentToFraction(cfg.Policy.LiquidationThresholdPct),
	}, 250*time.Millisecond, clock, log.WithComponent("ltv"))

	evalCtx, cancelEval := context.WithCancel(context.Background())
	go func() {
		if err := evaluator.Run(evalCtx); err != nil {
			log.Error("ltv evaluator exited with error", utils.Err(err))
		}
	}()

	if err := bus.Subscribe(context.Background(), cfg.Bus.MosEspaTopic, func(payload []byte) {
		if err := aggregator.IngestVenueA(payload); err != nil {
			log.Warn("failed to ingest MOS_ESPA price tick", utils.Err(err))
			return
		}
		evaluator.Notify()
	}); err != nil {
		log.Fatal("failed to subscribe to MOS_ESPA price topic", utils.Err(err))
	}

	if err := bus.Subscribe(context.Background(), cfg.Bus.BlackSpireTopic, func(payload []byte) {
		if err := aggregator.IngestVenueB(payload); err != nil {
			log.Warn("failed to ingest BLACK_SPIRE price tick", utils.Err(err))
			return
		}
		evaluator.Notify()
	}); err != nil {
		log.Fatal("failed to subscribe to BLACK_SPIRE price topic", utils.Err(err))
	}

	recheck := func(ctx context.Context, loanID string) { evaluator.Notify() }
	engine := lifecycle.New(st, publisher, recheck, log.WithComponent("lifecycle"))

	recoverLiquidatingLoans(context.Background(), st, pool, log)

	router := api.SetupRoutes(engine, log.WithComponent("api"))
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", utils.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", utils.Err(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	cancelEval()
	pool.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", utils.Err(err))
	}

	log.Info("server exited")
}

// recoverLiquidatingLoans re-enqueues every loan this process finds still
// in "liquidating" with no unexpired lease — the set a prior instance was
// working when it crashed or was redeployed mid-liquidation.
func recoverLiquidatingLoans(ctx context.Context, st *store.Store, pool *liquidation.Pool, log *utils.Logger) {
	loans, err := st.ListLoans(ctx, domain.StatusLiquidating)
	if err != nil {
		log.Error("startup recovery scan: list liquidating loans failed", utils.Err(err))
		return
	}
	if len(loans) == 0 {
		return
	}

	loanIDs := make([]string, len(loans))
	for i, l := range loans {
		loanIDs[i] = l.LoanID
	}

	candidates, err := st.Leases.ListExpiredOrUnleased(ctx, loanIDs)
	if err != nil {
		log.Error("startup recovery scan: list expired or unleased leases failed", utils.Err(err))
		return
	}

	for _, loanID := range candidates {
		if !pool.Enqueue(loanID) {
			log.Warn("startup recovery scan: liquidation queue full, loan left for the next restart scan", utils.String("loanId", loanID))
			continue
		}
		log.Info("startup recovery scan: re-enqueued liquidating loan", utils.String("loanId", loanID))
	}
}

// percentToFraction converts a 0-100 configured percentage into the 0-1
// fraction domain.Loan.LTV compares against.
func percentToFraction(pct float64) decimal.Decimal {
	return decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100))
}

// newOwnerID generates a process-unique identifier for liquidation lease
// ownership, distinguishing this instance from any other in the cluster.
func newOwnerID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("pid-%d", os.Getpid())
	}
	return "owner-" + hex.EncodeToString(buf)
}

// initDatabase opens and verifies the Postgres connection pool.
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
