package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-rental-settlement/internal/kafka"
	"github.com/ariefcatur/go-rental-settlement/internal/logger"
	"github.com/ariefcatur/go-rental-settlement/internal/redisx"
	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
)

type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers ...kafkago.Header) error
}

// KafkaHandoff publishes RentalConfirmed on rental.confirmed for the notifier.
type KafkaHandoff struct {
	Producer Publisher
	Service  string
}

func (h KafkaHandoff) Handoff(ctx context.Context, r *rentals.Rental, c *rentals.Customer) error {
	ev := rentals.Envelope{
		EventID:       uuid.NewString(),
		EventType:     rentals.EventRentalConfirmed,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		CorrelationID: r.ID,
		Payload:       kafkax.MustMarshal(rentals.NewRentalConfirmedPayload(r, c)),
	}
	return h.Producer.Publish(ctx, rentals.PartitionKey(r.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(rentals.EventRentalConfirmed)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// Consumer handles rental.confirmed messages.
type Consumer struct {
	Dispatcher *Dispatcher
	// Dedup is optional; without it a redelivered message sends a second email.
	Dedup *redisx.Deduper
}

// HandleRentalConfirmed is installed as the kafka consumer handler. It returns an error
// only for messages worth redelivering.
func (c *Consumer) HandleRentalConfirmed(ctx context.Context, m kafkago.Message) error {
	var env rentals.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		logger.WarnContext(ctx, "dropping undecodable message", "offset", m.Offset, "error", err)
		return nil
	}
	if env.EventType != rentals.EventRentalConfirmed {
		return nil
	}
	p, err := kafkax.UnwrapPayload[rentals.RentalConfirmedPayload](env.Payload)
	if err != nil {
		logger.WarnContext(ctx, "dropping malformed payload", "event_id", env.EventID, "error", err)
		return nil
	}

	if c.Dedup != nil {
		first, err := c.Dedup.Claim(ctx, p.RentalID)
		if err != nil {
			return fmt.Errorf("dedup claim: %w", err)
		}
		if !first {
			return nil
		}
	}
	if err := c.Dispatcher.Process(ctx, p); err != nil {
		if c.Dedup != nil {
			_ = c.Dedup.Release(ctx, p.RentalID)
		}
		return err
	}
	return nil
}
