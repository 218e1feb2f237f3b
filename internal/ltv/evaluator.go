// Package ltv implements the LTV Evaluator (C6): a debounced sweep over
// new and active loans that reacts to price updates by activating loans
// whose collateral now covers enough of their principal, and by kicking off
// liquidation for loans whose collateral has fallen too far behind.
package ltv

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"beskarliquidator/internal/domain"
	"beskarliquidator/internal/events"
	"beskarliquidator/internal/metrics"
	"beskarliquidator/internal/store"
	"beskarliquidator/pkg/utils"
)

// epsilon absorbs floating threshold-chatter at the boundary: a loan whose
// LTV sits within epsilon of a threshold is treated as having crossed it,
// rather than flapping in and out of the sweep depending on decimal
// rounding noise in midPrice.
var epsilon = decimal.NewFromFloat(1e-6)

// PriceSource is the narrow slice of the Price Aggregator the evaluator
// depends on.
type PriceSource interface {
	MidPrice() (decimal.Decimal, bool)
}

// LiquidationQueue is the narrow slice of the liquidation worker pool the
// evaluator depends on: enqueuing by loanId, never blocking.
type LiquidationQueue interface {
	Enqueue(loanID string) bool
}

// Thresholds holds the two percentage boundaries named by the policy.
// Stored as fractions (0.50, not 50) to compare directly against
// Loan.LTV's output.
type Thresholds struct {
	ActivationMax  decimal.Decimal
	LiquidationMin decimal.Decimal
}

// DefaultThresholds returns the policy defaults: activate at LTV <= 50%,
// liquidate at LTV >= 80%.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ActivationMax:  decimal.NewFromFloat(0.50),
		LiquidationMin: decimal.NewFromFloat(0.80),
	}
}

// Evaluator is the LTV Evaluator (C6). It is driven by Notify calls made
// from the price-ingest tasks each time a venue tick lands; internally it
// coalesces bursts of notifications into a sweep at most once per debounce
// window, so a venue streaming ticks every few milliseconds doesn't turn
// into a loan-table scan at the same rate.
type Evaluator struct {
	store      *store.Store
	prices     PriceSource
	queue      LiquidationQueue
	publisher  *events.Publisher
	thresholds Thresholds
	debounce   time.Duration
	clock      utils.Clock
	log        *utils.Logger

	dirty chan struct{}
}

// New constructs an Evaluator. Call Run in its own goroutine to start the
// debounced sweep loop; call Notify from the price-ingest path whenever a
// tick is stored.
func New(st *store.Store, prices PriceSource, queue LiquidationQueue, publisher *events.Publisher, thresholds Thresholds, debounce time.Duration, clock utils.Clock, log *utils.Logger) *Evaluator {
	return &Evaluator{
		store:      st,
		prices:     prices,
		queue:      queue,
		publisher:  publisher,
		thresholds: thresholds,
		debounce:   debounce,
		clock:      clock,
		log:        log.WithComponent("ltv-evaluator"),
		dirty:      make(chan struct{}, 1),
	}
}

// Notify marks a price update as pending. Non-blocking: a Notify that
// arrives while one is already pending is coalesced into the same sweep.
func (e *Evaluator) Notify() {
	select {
	case e.dirty <- struct{}{}:
	default:
	}
}

// Run drives the debounce loop until ctx is cancelled: each time Notify has
// fired since the last sweep, wait out the debounce window (so a burst of
// ticks across both venues collapses to one sweep), then evaluate every new
// and active loan.
func (e *Evaluator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.dirty:
		}

		select {
		case <-e.clock.After(e.debounce):
		case <-ctx.Done():
			return nil
		}

		if err := e.sweep(ctx); err != nil {
			e.log.Error("ltv sweep failed", utils.Err(err))
		}
	}
}

// sweep evaluates every loan in "new" or "active" against the current mid
// price. If the mid price is unknown, it takes no action at all: a stale
// price must never force a liquidation, and deferred evaluation resumes
// automatically the next time Notify fires with a fresh tick.
func (e *Evaluator) sweep(ctx context.Context) error {
	mid, ok := e.prices.MidPrice()
	if !ok {
		return nil
	}
	metrics.LtvSweeps.Inc()

	newLoans, err := e.store.ListLoans(ctx, domain.StatusNew)
	if err != nil {
		return err
	}
	activeLoans, err := e.store.ListLoans(ctx, domain.StatusActive)
	if err != nil {
		return err
	}

	for _, l := range newLoans {
		e.evaluateNew(ctx, l, mid)
	}
	for _, l := range activeLoans {
		e.evaluateActive(ctx, l, mid)
	}
	return nil
}

// evaluateNew activates l if its LTV has fallen to or below the activation
// threshold. A CAS loss here means another evaluator tick (or the top-up
// handler, if it also calls C6 inline) already activated the loan; this one
// simply no-ops.
func (e *Evaluator) evaluateNew(ctx context.Context, l *domain.Loan, mid decimal.Decimal) {
	ltv, ok := l.LTV(mid)
	if !ok || !belowOrAt(ltv, e.thresholds.ActivationMax) {
		return
	}

	updated, err := e.store.Transition(ctx, l.LoanID, domain.StatusNew, domain.StatusActive, nil)
	if err != nil {
		if domain.KindOf(err) == domain.KindStateConflict {
			return
		}
		e.log.Error("activation transition failed", utils.String("loanId", l.LoanID), utils.Err(err))
		return
	}

	metrics.LtvActivations.Inc()
	_ = e.store.AppendAudit(ctx, &domain.AuditEntry{
		LoanID: l.LoanID,
		Op:     domain.AuditActivationDecision,
		Details: map[string]string{
			"ltv":       ltv.String(),
			"midPrice":  mid.String(),
			"principal": l.Principal.String(),
		},
	})

	outstanding := decimal.Max(decimal.Zero, updated.Principal.Sub(updated.ProceedsGC))
	if err := e.publisher.Publish(ctx, &domain.Event{
		EventType:          domain.EventActivation,
		LoanID:             l.LoanID,
		Status:             domain.StatusActive,
		OutstandingBalance: outstanding.String(),
	}); err != nil {
		e.log.Warn("activation event publish uncertain", utils.String("loanId", l.LoanID), utils.Err(err))
		_ = e.store.AppendAudit(ctx, &domain.AuditEntry{
			LoanID:  l.LoanID,
			Op:      domain.AuditEventPublishUncertain,
			Details: map[string]string{"eventType": string(domain.EventActivation)},
		})
	}
}

// evaluateActive transitions l to liquidating and enqueues a liquidation
// job if its LTV has risen to or above the liquidation threshold. A CAS
// loss (another evaluator instance already won the transition) no-ops; a
// full liquidation queue leaves the loan liquidating without an enqueue,
// trusting the startup recovery scan to pick it up later.
func (e *Evaluator) evaluateActive(ctx context.Context, l *domain.Loan, mid decimal.Decimal) {
	ltv, ok := l.LTV(mid)
	if !ok || !aboveOrAt(ltv, e.thresholds.LiquidationMin) {
		return
	}

	_, err := e.store.Transition(ctx, l.LoanID, domain.StatusActive, domain.StatusLiquidating, nil)
	if err != nil {
		if domain.KindOf(err) == domain.KindStateConflict {
			return
		}
		e.log.Error("liquidation transition failed", utils.String("loanId", l.LoanID), utils.Err(err))
		return
	}

	metrics.LtvLiquidationsTriggered.Inc()
	_ = e.store.AppendAudit(ctx, &domain.AuditEntry{
		LoanID: l.LoanID,
		Op:     domain.AuditLiquidationStart,
		Details: map[string]string{
			"ltv":      ltv.String(),
			"midPrice": mid.String(),
		},
	})

	if !e.queue.Enqueue(l.LoanID) {
		e.log.Warn("liquidation queue full, deferring to restart scan", utils.String("loanId", l.LoanID))
	}
}

func belowOrAt(ltv, threshold decimal.Decimal) bool {
	return ltv.Sub(threshold).LessThanOrEqual(epsilon)
}

func aboveOrAt(ltv, threshold decimal.Decimal) bool {
	return threshold.Sub(ltv).LessThanOrEqual(epsilon)
}
