package events

import (
	"context"
	"errors"
	"testing"

	"beskarliquidator/internal/domain"
	"beskarliquidator/pkg/utils"
)

type fakeBus struct {
	published []map[string]string
	failTimes int
}

func (b *fakeBus) Publish(ctx context.Context, topic string, payload map[string]string) error {
	if b.failTimes > 0 {
		b.failTimes--
		return errors.New("bus unavailable")
	}
	b.published = append(b.published, payload)
	return nil
}

func newTestPublisher(bus Bus) *Publisher {
	log := utils.InitLogger(utils.LogConfig{Level: "fatal", Format: "json"})
	return New(bus, "coruscant-bank-loan-events", log)
}

func TestPublisherStampsDeterministicEventID(t *testing.T) {
	bus := &fakeBus{}
	p := newTestPublisher(bus)

	event := &domain.Event{
		EventType: domain.EventApplication,
		LoanID:    "loan-1",
		Status:    domain.StatusNew,
		Amount:    "1000",
	}

	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.EventID == "" {
		t.Fatal("expected EventID to be stamped")
	}

	firstID := event.EventID
	event.EventID = ""
	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.EventID != firstID {
		t.Errorf("EventID changed across publishes of the same transition: %q vs %q", event.EventID, firstID)
	}
}

func TestPublisherRetriesTransientFailures(t *testing.T) {
	bus := &fakeBus{failTimes: 2}
	p := newTestPublisher(bus)

	event := &domain.Event{EventType: domain.EventActivation, LoanID: "loan-2", Status: domain.StatusActive, OutstandingBalance: "500"}
	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if len(bus.published) != 1 {
		t.Fatalf("expected exactly one successful publish, got %d", len(bus.published))
	}
}

func TestPublisherReturnsUncertainAfterExhaustion(t *testing.T) {
	bus := &fakeBus{failTimes: 1000}
	p := newTestPublisher(bus)

	event := &domain.Event{EventType: domain.EventLiquidation, LoanID: "loan-3", Status: domain.StatusLiquidated}
	err := p.Publish(context.Background(), event)
	if err == nil {
		t.Fatal("expected an error once retries are exhausted")
	}
	if domain.KindOf(err) != domain.KindBusPublishFailure {
		t.Errorf("KindOf(err) = %v, want bus_publish_failure", domain.KindOf(err))
	}
}

func TestDeterministicEventIDDiffersByStatus(t *testing.T) {
	a := deterministicEventID("loan-1", domain.EventApplication, domain.StatusNew)
	b := deterministicEventID("loan-1", domain.EventActivation, domain.StatusActive)
	if a == b {
		t.Error("expected different eventIds for different transitions")
	}
}
