// Package liquidation implements the Liquidation Worker (C4): one worker
// per loan currently in "liquidating", sizing and executing a sequence of
// tier-sized sell lots against whichever venue quotes the better price,
// until the loan's collateral sale covers its principal.
package liquidation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"beskarliquidator/internal/domain"
	"beskarliquidator/internal/events"
	"beskarliquidator/internal/metrics"
	"beskarliquidator/internal/store"
	"beskarliquidator/internal/venue"
	"beskarliquidator/pkg/retry"
	"beskarliquidator/pkg/utils"
)

// PriceSource is the narrow slice of the Price Aggregator the worker
// depends on: venue selection and the mid price used for order sizing.
type PriceSource interface {
	EffectiveSellPrice(qty int) (price decimal.Decimal, venue domain.Venue, ok bool)
	MidPrice() (decimal.Decimal, bool)
	AllStale() bool
}

// Config tunes a Worker's lease renewal and backoff behavior. The
// Trade backoff matches the spec's per-lot retry policy (base 500ms,
// cap 30s, full jitter, unbounded attempts); the Stale backoff matches the
// dual-venue-stale policy (base 1s, cap 60s).
type Config struct {
	OwnerID         string
	LeaseTTL        time.Duration
	LeaseRenewEvery time.Duration

	StaleBackoffInitial time.Duration
	StaleBackoffMax     time.Duration

	TradeBackoffInitial time.Duration
	TradeBackoffMax     time.Duration
}

// DefaultConfig returns the policy defaults named in the spec.
func DefaultConfig(ownerID string) Config {
	return Config{
		OwnerID:             ownerID,
		LeaseTTL:            30 * time.Second,
		LeaseRenewEvery:     10 * time.Second,
		StaleBackoffInitial: 1 * time.Second,
		StaleBackoffMax:     60 * time.Second,
		TradeBackoffInitial: 500 * time.Millisecond,
		TradeBackoffMax:     30 * time.Second,
	}
}

// Worker drives one loan through Sizing -> Quoting -> Trading ->
// Finalizing -> Done, with a self-loop on Trading for per-lot retries.
// Terminal failure states do not exist: a worker that cannot make progress
// blocks on backoff indefinitely rather than giving up.
type Worker struct {
	loanID    string
	store     *store.Store
	prices    PriceSource
	venues    venue.Registry
	publisher *events.Publisher
	clock     utils.Clock
	log       *utils.Logger
	cfg       Config

	// staleBackoff tracks the current dual-venue-stale delay across
	// consecutive drive iterations; zero means "use StaleBackoffInitial".
	// Only the drive loop's own goroutine touches it.
	staleBackoff time.Duration
}

// NewWorker constructs a Worker for loanID. The caller is responsible for
// only constructing one Worker per loan per process; cross-process
// exclusivity is enforced by the lease.
func NewWorker(loanID string, st *store.Store, prices PriceSource, venues venue.Registry, publisher *events.Publisher, clock utils.Clock, log *utils.Logger, cfg Config) *Worker {
	return &Worker{
		loanID:    loanID,
		store:     st,
		prices:    prices,
		venues:    venues,
		publisher: publisher,
		clock:     clock,
		log:       log.WithComponent("liquidation").With(utils.String("loanId", loanID)),
		cfg:       cfg,
	}
}

// Run drives the loan to "liquidated", or returns nil early if the loan
// turns out not to need this worker's attention: it is no longer
// liquidating (already finalized by a previous run), or its lease belongs
// to another instance.
func (w *Worker) Run(ctx context.Context) error {
	acquired, err := w.store.Leases.Acquire(ctx, w.loanID, w.cfg.OwnerID, w.cfg.LeaseTTL)
	if err != nil {
		return fmt.Errorf("acquire lease for %s: %w", w.loanID, err)
	}
	if !acquired {
		return nil
	}

	renewCtx, cancelRenew := context.WithCancel(ctx)
	leaseLost := make(chan struct{}, 1)
	go w.renewLoop(renewCtx, leaseLost)
	defer cancelRenew()
	defer w.store.Leases.Release(context.Background(), w.loanID, w.cfg.OwnerID)

	metrics.LiquidationJobsActive.Inc()
	defer metrics.LiquidationJobsActive.Dec()
	start := w.clock.Now()

	done, err := w.drive(ctx, leaseLost)
	if done {
		metrics.LiquidationDuration.Observe(w.clock.Now().Sub(start).Seconds())
	}
	return err
}

// drive runs the Sizing/Quoting/Trading loop until the loan finalizes,
// the context is cancelled, or the lease is lost. The returned bool
// reports whether the loan reached "liquidated" under this call.
func (w *Worker) drive(ctx context.Context, leaseLost <-chan struct{}) (bool, error) {
	for {
		select {
		case <-leaseLost:
			metrics.LiquidationLeaseLost.Inc()
			w.log.Warn("lease lost, abandoning job")
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		loan, err := w.store.GetLoan(ctx, w.loanID)
		if err != nil {
			return false, fmt.Errorf("load loan %s: %w", w.loanID, err)
		}
		if loan.Status != domain.StatusLiquidating {
			// Already finalized by an earlier run of this worker, or by
			// another instance before this one acquired the lease.
			return loan.Status == domain.StatusLiquidated, nil
		}

		remainingPrincipal := loan.Principal.Sub(loan.ProceedsGC)
		remainingCollateral := loan.Collateral.Sub(loan.CollateralSold)
		if remainingPrincipal.Sign() <= 0 || remainingCollateral.Sign() <= 0 {
			if err := w.finalize(ctx, w.loanID); err != nil {
				return false, err
			}
			return true, nil
		}

		// Sizing: figure out how much more BSK needs to be sold at the
		// current mid price, capped at what collateral remains.
		midPrice, ok := w.prices.MidPrice()
		if !ok {
			if stop := w.backoffStalePrice(ctx, leaseLost); stop {
				return false, ctx.Err()
			}
			continue
		}
		qty := requiredQuantity(remainingPrincipal, midPrice)
		if qtyCap := int(remainingCollateral.Ceil().IntPart()); qtyCap > 0 && qty > qtyCap {
			qty = qtyCap
		}
		lotQty := nextLotSize(qty)

		// Quoting: pick the venue with the better effective sell price for
		// this lot size.
		_, chosenVenue, ok := w.prices.EffectiveSellPrice(lotQty)
		if !ok {
			if stop := w.backoffStalePrice(ctx, leaseLost); stop {
				return false, ctx.Err()
			}
			continue
		}
		w.staleBackoff = 0

		// Trading: execute the lot, retrying the same lot with full-jitter
		// backoff until it clears.
		achieved, err := w.tradeLot(ctx, chosenVenue, lotQty, leaseLost)
		if err != nil {
			return false, err
		}
		if achieved == nil {
			// Lease was lost mid-trade.
			return false, nil
		}

		if _, err := w.store.RecordLotFill(ctx, w.loanID, decimal.NewFromInt(int64(lotQty)), *achieved); err != nil {
			return false, fmt.Errorf("record lot fill for %s: %w", w.loanID, err)
		}
	}
}

// backoffStalePrice sleeps the dual-venue-stale backoff window and reports
// whether the wait was cut short by cancellation or lease loss. The delay
// doubles on every consecutive stale iteration, capped at StaleBackoffMax;
// the caller resets it to zero the moment a usable price returns.
func (w *Worker) backoffStalePrice(ctx context.Context, leaseLost <-chan struct{}) bool {
	delay := w.staleBackoff
	if delay <= 0 {
		delay = w.cfg.StaleBackoffInitial
	}
	w.log.Warn("no usable price from either venue, backing off", utils.Any("delay", delay))
	select {
	case <-w.clock.After(delay):
		next := delay * 2
		if next > w.cfg.StaleBackoffMax {
			next = w.cfg.StaleBackoffMax
		}
		w.staleBackoff = next
		return false
	case <-leaseLost:
		return true
	case <-ctx.Done():
		return true
	}
}

// tradeLot executes one lot against chosenVenue, retrying indefinitely on
// any retryable error (venue logical rejection, HTTP 5xx, timeout) with
// full-jitter backoff, per the spec's "liquidation must continue until the
// lot clears" invariant. Returns nil, nil if the lease is lost mid-trade.
func (w *Worker) tradeLot(ctx context.Context, chosenVenue domain.Venue, qty int, leaseLost <-chan struct{}) (*decimal.Decimal, error) {
	client, ok := w.venues[chosenVenue]
	if !ok {
		return nil, fmt.Errorf("no client registered for venue %s", chosenVenue)
	}

	cfg := retry.Config{
		MaxRetries:   0, // unbounded: the spec forbids giving up on a lot
		InitialDelay: w.cfg.TradeBackoffInitial,
		MaxDelay:     w.cfg.TradeBackoffMax,
		Multiplier:   2.0,
		JitterFactor: 1.0, // full jitter
		RetryIf:      func(err error) bool { return domain.KindOf(err).Retryable() },
		OnRetry: func(attempt int, err error, delay time.Duration) {
			w.log.Warn("lot attempt failed, retrying",
				utils.String("venue", string(chosenVenue)), utils.Int("attempt", attempt),
				utils.Err(err), utils.Any("delay", delay))
		},
	}

	var achieved decimal.Decimal
	aborted := false

	err := retry.Do(ctx, func() error {
		select {
		case <-leaseLost:
			aborted = true
			return nil
		default:
		}

		clientOrderID := w.freshClientOrderID()
		price, err := client.PlaceSellOrder(ctx, clientOrderID, qty)
		if err != nil {
			metrics.LiquidationLotAttempts.WithLabelValues(string(chosenVenue), "retry").Inc()
			w.appendTradeAudit(ctx, domain.AuditTradeAttempt, chosenVenue, clientOrderID, qty, err)
			return err
		}
		achieved = price
		metrics.LiquidationLotAttempts.WithLabelValues(string(chosenVenue), "success").Inc()
		w.appendTradeAudit(ctx, domain.AuditTradeOutcome, chosenVenue, clientOrderID, qty, nil)
		return nil
	}, cfg)

	if aborted {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("trade lot on %s: %w", chosenVenue, err)
	}
	return &achieved, nil
}

// finalize transitions the loan liquidating -> liquidated, computing the
// settlement fields, then publishes exactly one liquidation event.
func (w *Worker) finalize(ctx context.Context, loanID string) error {
	loan, err := w.store.Transition(ctx, loanID, domain.StatusLiquidating, domain.StatusLiquidated, func(l *domain.Loan) error {
		l.OutstandingBalance = decimal.Max(decimal.Zero, l.Principal.Sub(l.ProceedsGC))
		l.RemainingCollateral = decimal.Max(decimal.Zero, l.Collateral.Sub(l.CollateralSold))
		return nil
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindStateConflict {
			// Another instance already finalized this loan.
			return nil
		}
		return fmt.Errorf("finalize %s: %w", loanID, err)
	}

	_ = w.store.AppendAudit(ctx, &domain.AuditEntry{
		LoanID: loanID,
		Op:     domain.AuditLiquidationEnd,
		Details: map[string]string{
			"collateralSold":      loan.CollateralSold.String(),
			"proceedsGC":          loan.ProceedsGC.String(),
			"outstandingBalance":  loan.OutstandingBalance.String(),
			"remainingCollateral": loan.RemainingCollateral.String(),
		},
	})

	if err := w.publisher.Publish(ctx, &domain.Event{
		EventType:           domain.EventLiquidation,
		LoanID:              loanID,
		Status:              domain.StatusLiquidated,
		CollateralSold:      loan.CollateralSold.String(),
		CollateralValue:     loan.ProceedsGC.String(),
		RemainingCollateral: loan.RemainingCollateral.String(),
		OutstandingBalance:  loan.OutstandingBalance.String(),
	}); err != nil {
		w.log.Warn("liquidation event publish uncertain", utils.Err(err))
		_ = w.store.AppendAudit(ctx, &domain.AuditEntry{
			LoanID: loanID,
			Op:     domain.AuditEventPublishUncertain,
			Details: map[string]string{"eventType": string(domain.EventLiquidation)},
		})
	}
	return nil
}

// appendTradeAudit records the correlation ID and outcome of one lot
// attempt, so a stuck liquidation can be diagnosed from the audit trail
// alone.
func (w *Worker) appendTradeAudit(ctx context.Context, op domain.AuditOp, v domain.Venue, clientOrderID string, qty int, err error) {
	details := map[string]string{
		"venue":         string(v),
		"clientOrderId": clientOrderID,
		"qty":           fmt.Sprintf("%d", qty),
	}
	if err != nil {
		details["error"] = err.Error()
	}
	_ = w.store.AppendAudit(ctx, &domain.AuditEntry{LoanID: w.loanID, Op: op, Details: details})
}

// renewLoop refreshes the worker's lease every LeaseRenewEvery until ctx
// is cancelled. The first time renewal fails it signals leaseLost once
// (without blocking) and returns.
func (w *Worker) renewLoop(ctx context.Context, leaseLost chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.clock.After(w.cfg.LeaseRenewEvery):
			if err := w.store.Leases.Renew(ctx, w.loanID, w.cfg.OwnerID, w.cfg.LeaseTTL); err != nil {
				select {
				case leaseLost <- struct{}{}:
				default:
				}
				return
			}
		}
	}
}

// freshClientOrderID generates a new idempotency token for a single
// venue attempt. Each retry of the same lot must use a fresh one so the
// venue does not mistake a retried attempt for a duplicate of the attempt
// that actually failed.
func (w *Worker) freshClientOrderID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return w.loanID + "-" + hex.EncodeToString(b[:])
}
