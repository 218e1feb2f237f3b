package liquidation

import (
	"context"
	"sync"

	"beskarliquidator/internal/events"
	"beskarliquidator/internal/store"
	"beskarliquidator/internal/venue"
	"beskarliquidator/pkg/utils"
)

// Pool is the bounded liquidation worker pool: a fixed number of
// goroutines draining a buffered job queue of loanIds, each running a
// fresh Worker to completion before picking up its next job. This mirrors
// the teacher's sharded-channel worker pool, collapsed to a single queue
// since liquidation jobs, unlike price ticks, don't need per-symbol
// ordering.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc

	jobs      chan string
	store     *store.Store
	prices    PriceSource
	venues    venue.Registry
	publisher *events.Publisher
	clock     utils.Clock
	log       *utils.Logger
	ownerID   string
	cfg       Config

	wg sync.WaitGroup
}

// NewPool constructs a Pool with workerCount goroutines and a queue of
// depth queueDepth, and starts them immediately. ownerID identifies this
// process instance for lease acquisition, distinguishing it from other
// instances in the cluster. workerCfg is applied to every Worker the pool
// spawns, with OwnerID overridden to ownerID; pass DefaultConfig(ownerID)
// to accept the policy defaults untouched. Cancelling parent stops every
// in-flight Worker.Run via its ctx argument — the only thing the spec
// allows to interrupt a liquidation in progress.
func NewPool(parent context.Context, workerCount, queueDepth int, st *store.Store, prices PriceSource, venues venue.Registry, publisher *events.Publisher, clock utils.Clock, log *utils.Logger, ownerID string, workerCfg Config) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	workerCfg.OwnerID = ownerID
	ctx, cancel := context.WithCancel(parent)
	p := &Pool{
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(chan string, queueDepth),
		store:     st,
		prices:    prices,
		venues:    venues,
		publisher: publisher,
		clock:     clock,
		log:       log.WithComponent("liquidation-pool"),
		ownerID:   ownerID,
		cfg:       workerCfg,
	}
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.runLoop(i)
	}
	return p
}

func (p *Pool) runLoop(slot int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case loanID, ok := <-p.jobs:
			if !ok {
				return
			}
			w := NewWorker(loanID, p.store, p.prices, p.venues, p.publisher, p.clock, p.log, p.cfg)
			if err := w.Run(p.ctx); err != nil {
				p.log.Error("liquidation worker exited with error",
					utils.String("loanId", loanID), utils.Int("slot", slot), utils.Err(err))
			}
		}
	}
}

// Enqueue submits loanID for liquidation. It never blocks: if the queue is
// full, it returns false and the job is dropped. The loan has already been
// transitioned to "liquidating" in the Store, so the startup recovery scan
// of the next process start picks it back up; LTV sweeps only look at new
// and active loans and do not re-enqueue it.
func (p *Pool) Enqueue(loanID string) bool {
	select {
	case p.jobs <- loanID:
		return true
	default:
		return false
	}
}

// Shutdown cancels every in-flight Worker.Run and waits for the pool's
// goroutines to exit. A worker interrupted mid-trade releases its lease on
// the way out, so whatever loan it was working stays eligible for the
// next process's restart scan to pick up.
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
}
