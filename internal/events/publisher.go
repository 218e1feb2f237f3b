// Package events implements the Event Publisher: deterministic event IDs,
// retried delivery to the bus, and an "uncertain" signal to the caller
// when retries are exhausted.
package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"beskarliquidator/internal/domain"
	"beskarliquidator/internal/metrics"
	"beskarliquidator/pkg/retry"
	"beskarliquidator/pkg/utils"
)

// Bus is the narrow publish surface the Event Publisher depends on.
type Bus interface {
	Publish(ctx context.Context, topic string, payload map[string]string) error
}

// Publisher is the Event Publisher (C5).
type Publisher struct {
	bus   Bus
	topic string
	cfg   retry.Config
	log   *utils.Logger
}

// New constructs a Publisher against topic (the loan-events topic).
// Retries use a bounded exponential backoff — unlike the liquidation
// worker's infinite retry, publish exhaustion is itself a valid, expected
// outcome the caller must handle by recording the emission as uncertain.
func New(bus Bus, topic string, log *utils.Logger) *Publisher {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = 5
	return &Publisher{bus: bus, topic: topic, cfg: cfg, log: log}
}

// Publish stamps event with its deterministic eventId and delivers it to
// the bus, retrying on failure. It returns a domain.BusPublishFailure error
// if the retry policy is exhausted without a successful delivery — the
// caller (the Lifecycle Engine) must then record the emission as
// uncertain, since the underlying state transition has already committed.
func (p *Publisher) Publish(ctx context.Context, event *domain.Event) error {
	event.EventID = deterministicEventID(event.LoanID, event.EventType, event.Status)
	payload := event.Payload()

	err := retry.Do(ctx, func() error {
		return p.bus.Publish(ctx, p.topic, payload)
	}, p.cfg)

	if err != nil {
		p.log.Warn("publish exhausted retries",
			utils.String("loanId", event.LoanID), utils.String("eventType", string(event.EventType)), utils.Err(err))
		metrics.EventsPublishUncertain.Inc()
		metrics.EventsPublished.WithLabelValues("uncertain").Inc()
		return domain.BusPublishFailure("publish exhausted retries", err)
	}

	metrics.EventsPublished.WithLabelValues("published").Inc()
	return nil
}

// deterministicEventID hashes (loanId, eventType, status) so that every
// retried publish attempt for the same lifecycle transition carries the
// same eventId, letting consumers de-duplicate. Because the loan state
// machine is forward-only and each (eventType, status) pair occurs at most
// once per loan's lifetime, this triple alone is already a stable key —
// no separate logical-version counter is needed.
func deterministicEventID(loanID string, eventType domain.EventType, status domain.Status) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", loanID, eventType, status)
	return hex.EncodeToString(h.Sum(nil))
}
